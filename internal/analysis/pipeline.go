package analysis

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/ZanzyTHEbar/fairscan/internal/errors"
	"github.com/ZanzyTHEbar/fairscan/internal/types"
)

const modelVersion = "pattern-based-v1.0.0"

// Pipeline composes the scanner, explanation builder, and fairness
// aggregator into one synchronous call. It holds only the immutable catalog,
// so one pipeline serves all requests concurrently without locking.
type Pipeline struct {
	scanner *Scanner
	catalog *Catalog
}

// NewPipeline builds the pipeline over an explicitly constructed catalog
func NewPipeline(catalog *Catalog) *Pipeline {
	return &Pipeline{
		scanner: NewScanner(catalog),
		catalog: catalog,
	}
}

// Catalog returns the catalog this pipeline scans with
func (p *Pipeline) Catalog() *Catalog { return p.catalog }

// Analyze runs one full scoring pass over text and assembles the complete,
// immutable analysis record. The input text flows through and into the
// record verbatim; only validation looks at a trimmed copy. Identical
// text/language/metadata produce identical analytical content; only the id
// and timestamp differ between calls. Persistence is the caller's job.
func (p *Pipeline) Analyze(text, language string, metadata *types.Metadata) (*AnalysisRecord, error) {
	started := time.Now()

	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewInvalidInputError("Content must not be empty")
	}

	runeLen := utf8.RuneCountInString(text)
	if runeLen > types.MaxContentLength {
		return nil, apperrors.NewInvalidInputError(
			fmt.Sprintf("Content exceeds maximum length of %d characters", types.MaxContentLength),
			fmt.Sprintf("content length: %d", runeLen))
	}

	lang, ok := NormalizeLanguageCode(language)
	if !ok {
		return nil, apperrors.NewInvalidInputError(
			"Language must be a two-letter ISO 639-1 code",
			fmt.Sprintf("language: %q", language))
	}
	if lang == "" {
		lang = DetectLanguage(text)
	}

	results := p.scanner.Scan(text, AllCategories())
	explanations, highlights := Explain(results)

	bias := FoldScores(results)

	categoryScores := make(map[BiasCategory]float64, len(results))
	allHits := []Hit{}
	for _, cat := range AllCategories() {
		categoryScores[cat] = results[cat].Score
		allHits = append(allHits, results[cat].Hits...)
	}

	fairness := Aggregate(bias, categoryScores)

	record := &AnalysisRecord{
		AnalysisID: uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		InputText:  text,
		Language:   lang,
		Metadata:   metadata,
		Hits:       allHits,
		BiasDetection: BiasDetection{
			BiasScores:       bias,
			Explanations:     explanations,
			HighlightedText:  highlights,
			LanguageDetected: lang,
			Confidence:       confidence(runeLen),
			ModelVersion:     modelVersion,
		},
		FairnessMetrics:  fairness,
		ProcessingTimeMS: float64(time.Since(started).Microseconds()) / 1000.0,
		Status:           StatusCompleted,
	}

	return record, nil
}

// confidence grows with content length: longer submissions give the lexical
// scan more signal, capped at 0.95.
func confidence(runeLen int) float64 {
	c := 0.7 + float64(runeLen)/float64(types.MaxContentLength)*0.25
	if c > 0.95 {
		return 0.95
	}
	return c
}
