package analysis

import "github.com/ZanzyTHEbar/fairscan/internal/types"

// BiasCategory identifies one dimension of bias being measured
type BiasCategory string

const (
	CategoryGender       BiasCategory = "gender"
	CategoryStereotype   BiasCategory = "stereotype"
	CategoryExclusionary BiasCategory = "exclusionary"
	CategoryAge          BiasCategory = "age"
)

// AllCategories returns the catalog categories in canonical order. The order
// is fixed so that iteration over scan results stays deterministic.
func AllCategories() []BiasCategory {
	return []BiasCategory{CategoryGender, CategoryStereotype, CategoryExclusionary, CategoryAge}
}

// Valid reports whether c is a known bias category
func (c BiasCategory) Valid() bool {
	switch c {
	case CategoryGender, CategoryStereotype, CategoryExclusionary, CategoryAge:
		return true
	}
	return false
}

// Severity grades how strongly a single rule match signals bias
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Weight returns the score contribution of one hit at this severity.
// The constants are part of the scoring contract: category scores are exact
// sums of these weights, capped at 1.0.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.15
	case SeverityMedium:
		return 0.30
	case SeverityHigh:
		return 0.50
	}
	return 0
}

// Valid reports whether s is a known severity grade
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Hit is a single pattern match contributing to a category's score.
// Start and End are character (rune) offsets into the original text,
// 0 <= Start < End <= character length.
type Hit struct {
	Category    BiasCategory `json:"category"`
	Start       int          `json:"start"`
	End         int          `json:"end"`
	MatchedText string       `json:"matched_text"`
	Severity    Severity     `json:"severity"`
	Label       string       `json:"label"`
}

// CategoryResult holds the normalized score and raw hits for one category
type CategoryResult struct {
	Score float64 `json:"score"`
	Hits  []Hit   `json:"hits"`
}

// BiasScores carries the wire score dimensions plus the weighted overall.
// All values are in [0.0, 1.0].
type BiasScores struct {
	GenderBias        float64 `json:"gender_bias"`
	Stereotype        float64 `json:"stereotype"`
	LanguageDominance float64 `json:"language_dominance"`
	Overall           float64 `json:"overall"`
}

// HighlightedSpan is the externally visible form of a Hit
type HighlightedSpan struct {
	Span     [2]int   `json:"span"`
	Text     string   `json:"text"`
	BiasType string   `json:"bias_type"`
	Severity Severity `json:"severity"`
}

// RiskLevel is the discretized bucket of the overall bias score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// MitigationWeights describes the bounded content re-weighting. The adjusted
// weight never drops below 0.1, so content is dampened but never suppressed.
type MitigationWeights struct {
	OriginalWeight   float64 `json:"original_weight"`
	AdjustedWeight   float64 `json:"adjusted_weight"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
}

// FairnessResult is the aggregated fairness view derived from BiasScores
type FairnessResult struct {
	RiskLevel         RiskLevel          `json:"risk_level"`
	FairnessScore     float64            `json:"fairness_score"`
	Recommendations   []string           `json:"recommendations"`
	MitigationWeights MitigationWeights  `json:"mitigation_weights"`
	DetailedMetrics   map[string]float64 `json:"detailed_metrics"`
	EngineVersion     string             `json:"engine_version,omitempty"`
}

// BiasDetection groups everything the scanner and explanation builder produce
type BiasDetection struct {
	BiasScores       BiasScores              `json:"bias_scores"`
	Explanations     map[BiasCategory]string `json:"explanations"`
	HighlightedText  []HighlightedSpan       `json:"highlighted_text"`
	LanguageDetected string                  `json:"language_detected"`
	Confidence       float64                 `json:"confidence"`
	ModelVersion     string                  `json:"model_version,omitempty"`
}

// StatusCompleted is the only status a returned record ever carries: a record
// is either complete and internally consistent, or not produced at all.
const StatusCompleted = "completed"

// AnalysisRecord is the complete, immutable output of one scoring pass over
// one input text. InputText is stored verbatim, byte-identical to the
// submission.
type AnalysisRecord struct {
	AnalysisID       string          `json:"analysis_id"`
	Timestamp        string          `json:"timestamp"`
	InputText        string          `json:"input_text"`
	Language         string          `json:"language"`
	Metadata         *types.Metadata `json:"metadata,omitempty"`
	Hits             []Hit           `json:"hits"`
	BiasDetection    BiasDetection   `json:"bias_detection"`
	FairnessMetrics  FairnessResult  `json:"fairness_metrics"`
	ProcessingTimeMS float64         `json:"processing_time_ms"`
	Status           string          `json:"status"`
}

// AnalyzeResponse is the wire envelope for the analyze endpoint: the record
// without the verbatim input, plus where the audit copy was stored.
type AnalyzeResponse struct {
	AnalysisID       string         `json:"analysis_id"`
	Timestamp        string         `json:"timestamp"`
	BiasDetection    BiasDetection  `json:"bias_detection"`
	FairnessMetrics  FairnessResult `json:"fairness_metrics"`
	StorageLocation  string         `json:"storage_location,omitempty"`
	Status           string         `json:"status"`
	ProcessingTimeMS float64        `json:"processing_time_ms"`
}

// Response builds the wire envelope for this record
func (r *AnalysisRecord) Response(storageLocation string) AnalyzeResponse {
	return AnalyzeResponse{
		AnalysisID:       r.AnalysisID,
		Timestamp:        r.Timestamp,
		BiasDetection:    r.BiasDetection,
		FairnessMetrics:  r.FairnessMetrics,
		StorageLocation:  storageLocation,
		Status:           r.Status,
		ProcessingTimeMS: r.ProcessingTimeMS,
	}
}
