package analysis

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/fairscan/internal/errors"
	"github.com/ZanzyTHEbar/fairscan/internal/types"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	catalog, err := NewCatalog()
	require.NoError(t, err)
	return NewPipeline(catalog)
}

func requireInvalidInput(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CategoryInvalidInput, appErr.Category)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestAnalyzeRejectsEmptyText(t *testing.T) {
	pipeline := newTestPipeline(t)

	for _, text := range []string{"", "   ", "\n\t  "} {
		record, err := pipeline.Analyze(text, "", nil)
		assert.Nil(t, record)
		requireInvalidInput(t, err)
	}
}

func TestAnalyzeRejectsOversizedText(t *testing.T) {
	pipeline := newTestPipeline(t)

	record, err := pipeline.Analyze(strings.Repeat("a", types.MaxContentLength+1), "", nil)
	assert.Nil(t, record)
	requireInvalidInput(t, err)
}

func TestAnalyzeAcceptsMaximumLengthText(t *testing.T) {
	pipeline := newTestPipeline(t)

	record, err := pipeline.Analyze(strings.Repeat("a", types.MaxContentLength), "en", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, record.Status)
}

func TestAnalyzeRejectsMalformedLanguage(t *testing.T) {
	pipeline := newTestPipeline(t)

	for _, lang := range []string{"eng", "e", "12", "e n"} {
		record, err := pipeline.Analyze("some text", lang, nil)
		assert.Nil(t, record, "language %q", lang)
		requireInvalidInput(t, err)
	}
}

func TestAnalyzePreservesContentVerbatim(t *testing.T) {
	pipeline := newTestPipeline(t)

	// leading/trailing whitespace and unicode must survive untouched
	text := "  The chairman said नमस्ते to his team.  \n"

	record, err := pipeline.Analyze(text, "", nil)
	require.NoError(t, err)
	assert.Equal(t, text, record.InputText)
}

func TestAnalyzeAgeScenario(t *testing.T) {
	pipeline := newTestPipeline(t)

	record, err := pipeline.Analyze(
		"older developers might struggle to keep up with the fast-paced agile environment", "en", nil)
	require.NoError(t, err)

	require.Contains(t, record.BiasDetection.Explanations, CategoryAge)

	var ageSpans []HighlightedSpan
	for _, span := range record.BiasDetection.HighlightedText {
		if span.BiasType == string(CategoryAge) {
			ageSpans = append(ageSpans, span)
		}
	}
	require.NotEmpty(t, ageSpans)
	assert.Equal(t, "older", ageSpans[0].Text)
	assert.Equal(t, SeverityMedium, ageSpans[0].Severity)

	// the age hit folds into the stereotype dimension and lifts the overall
	assert.Greater(t, record.BiasDetection.BiasScores.Stereotype, 0.0)
	assert.Greater(t, record.BiasDetection.BiasScores.Overall, 0.0)
}

func TestAnalyzeExclusionaryScenario(t *testing.T) {
	pipeline := newTestPipeline(t)
	text := "graduates from top-tier universities"

	record, err := pipeline.Analyze(text, "en", nil)
	require.NoError(t, err)

	var hit *HighlightedSpan
	for i := range record.BiasDetection.HighlightedText {
		if record.BiasDetection.HighlightedText[i].BiasType == string(CategoryExclusionary) {
			hit = &record.BiasDetection.HighlightedText[i]
			break
		}
	}
	require.NotNil(t, hit)
	assert.Equal(t, "top-tier", hit.Text)
	assert.Equal(t, [2]int{15, 23}, hit.Span)
	assert.Equal(t, "top-tier", text[hit.Span[0]:hit.Span[1]])
}

func TestAnalyzeNeutralText(t *testing.T) {
	pipeline := newTestPipeline(t)

	record, err := pipeline.Analyze("the quick brown fox jumps over a fence", "en", nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, record.BiasDetection.BiasScores.Overall)
	assert.Equal(t, RiskLow, record.FairnessMetrics.RiskLevel)
	assert.Equal(t, 1.0, record.FairnessMetrics.MitigationWeights.AdjustedWeight)
	assert.Empty(t, record.FairnessMetrics.Recommendations)
	assert.Empty(t, record.BiasDetection.Explanations)
	assert.Empty(t, record.BiasDetection.HighlightedText)
	assert.Empty(t, record.Hits)
	assert.Equal(t, 1.0, record.FairnessMetrics.FairnessScore)
}

func TestAnalyzeDeterminism(t *testing.T) {
	pipeline := newTestPipeline(t)
	text := "He said she was too emotional for the elite team of young developers."

	first, err := pipeline.Analyze(text, "en", nil)
	require.NoError(t, err)
	second, err := pipeline.Analyze(text, "en", nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.AnalysisID, second.AnalysisID)
	assert.Equal(t, first.BiasDetection, second.BiasDetection)
	assert.Equal(t, first.FairnessMetrics, second.FairnessMetrics)
	assert.Equal(t, first.Hits, second.Hits)
	assert.Equal(t, first.InputText, second.InputText)
	assert.Equal(t, first.Language, second.Language)
}

func TestAnalyzeLanguageHandling(t *testing.T) {
	pipeline := newTestPipeline(t)

	t.Run("provided code is lowercased and echoed", func(t *testing.T) {
		record, err := pipeline.Analyze("some neutral text", "FR", nil)
		require.NoError(t, err)
		assert.Equal(t, "fr", record.Language)
		assert.Equal(t, "fr", record.BiasDetection.LanguageDetected)
	})

	t.Run("missing code triggers detection", func(t *testing.T) {
		record, err := pipeline.Analyze("The committee approved the proposal.", "", nil)
		require.NoError(t, err)
		assert.Equal(t, LanguageEnglish, record.Language)
	})

	t.Run("devanagari content detected as hindi", func(t *testing.T) {
		record, err := pipeline.Analyze("समाज में आज भी पुरानी सोच बनी हुई है", "", nil)
		require.NoError(t, err)
		assert.Equal(t, LanguageHindi, record.Language)
	})
}

func TestAnalyzeConfidence(t *testing.T) {
	pipeline := newTestPipeline(t)

	short, err := pipeline.Analyze("short", "en", nil)
	require.NoError(t, err)
	long, err := pipeline.Analyze(strings.Repeat("a", types.MaxContentLength), "en", nil)
	require.NoError(t, err)

	assert.InDelta(t, 0.7+5.0/10000.0*0.25, short.BiasDetection.Confidence, 1e-12)
	assert.InDelta(t, 0.95, long.BiasDetection.Confidence, 1e-12)
	assert.Greater(t, long.BiasDetection.Confidence, short.BiasDetection.Confidence)
}

func TestAnalyzeRecordShape(t *testing.T) {
	pipeline := newTestPipeline(t)
	meta := &types.Metadata{Source: "unit-test", Tags: []string{"hiring"}}

	record, err := pipeline.Analyze("We want a rockstar engineer.", "en", meta)
	require.NoError(t, err)

	assert.NotEmpty(t, record.AnalysisID)
	assert.NotEmpty(t, record.Timestamp)
	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, meta, record.Metadata)
	assert.Equal(t, modelVersion, record.BiasDetection.ModelVersion)
	assert.GreaterOrEqual(t, record.ProcessingTimeMS, 0.0)
}

func TestAnalyzeScoreBounds(t *testing.T) {
	pipeline := newTestPipeline(t)

	texts := []string{
		"plain neutral text",
		strings.Repeat("elite top-tier rockstar he she old young aggressive ", 50),
		"He said his elite boys club hires only energetic young guys.",
	}

	for _, text := range texts {
		record, err := pipeline.Analyze(text, "en", nil)
		require.NoError(t, err)

		scores := record.BiasDetection.BiasScores
		for name, v := range map[string]float64{
			"gender_bias":        scores.GenderBias,
			"stereotype":         scores.Stereotype,
			"language_dominance": scores.LanguageDominance,
			"overall":            scores.Overall,
		} {
			assert.GreaterOrEqual(t, v, 0.0, name)
			assert.LessOrEqual(t, v, 1.0, name)
		}
	}
}

func TestAnalyzeResponseEnvelope(t *testing.T) {
	pipeline := newTestPipeline(t)

	record, err := pipeline.Analyze("graduates from top-tier universities", "en", nil)
	require.NoError(t, err)

	data, err := json.Marshal(record.Response("/data/audit_logs/x.json"))
	require.NoError(t, err)

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &envelope))

	assert.Contains(t, envelope, "analysis_id")
	assert.Contains(t, envelope, "timestamp")
	assert.Contains(t, envelope, "status")
	assert.Contains(t, envelope, "storage_location")
	assert.NotContains(t, envelope, "input_text")

	detection, ok := envelope["bias_detection"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, detection, "bias_scores")
	assert.Contains(t, detection, "explanations")
	assert.Contains(t, detection, "highlighted_text")
	assert.Contains(t, detection, "language_detected")
	assert.Contains(t, detection, "confidence")

	scores, ok := detection["bias_scores"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"gender_bias", "stereotype", "language_dominance", "overall"} {
		assert.Contains(t, scores, key)
	}

	fairness, ok := envelope["fairness_metrics"].(map[string]interface{})
	require.True(t, ok)
	for _, key := range []string{"risk_level", "fairness_score", "recommendations", "mitigation_weights", "detailed_metrics"} {
		assert.Contains(t, fairness, key)
	}

	weights, ok := fairness["mitigation_weights"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1.0, weights["original_weight"])
	assert.Contains(t, weights, "adjusted_weight")
	assert.Contains(t, weights, "adjustment_factor")
}

func TestExamplesScoreAsCurated(t *testing.T) {
	pipeline := newTestPipeline(t)

	t.Run("neutral control example scores zero", func(t *testing.T) {
		ex, ok := ExampleByID(5)
		require.True(t, ok)

		record, err := pipeline.Analyze(ex.Text, "en", nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, record.BiasDetection.BiasScores.Overall)
	})

	t.Run("biased examples score nonzero", func(t *testing.T) {
		for _, ex := range Examples()[:4] {
			record, err := pipeline.Analyze(ex.Text, "en", nil)
			require.NoError(t, err)
			assert.Greater(t, record.BiasDetection.BiasScores.Overall, 0.0, "example %d", ex.ID)
		}
	})
}
