package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	catalog, err := NewCatalog()
	require.NoError(t, err)
	return NewScanner(catalog)
}

func TestScanEmptyText(t *testing.T) {
	scanner := newTestScanner(t)

	results := scanner.Scan("", AllCategories())

	require.Len(t, results, len(AllCategories()))
	for cat, result := range results {
		assert.Equal(t, 0.0, result.Score, "category %s", cat)
		assert.Empty(t, result.Hits, "category %s", cat)
	}
}

func TestScanNoMatches(t *testing.T) {
	scanner := newTestScanner(t)

	results := scanner.Scan("the quick brown fox jumps over a fence", AllCategories())

	for cat, result := range results {
		assert.Equal(t, 0.0, result.Score, "category %s", cat)
		assert.Empty(t, result.Hits, "category %s", cat)
	}
}

func TestScanScores(t *testing.T) {
	scanner := newTestScanner(t)

	tests := []struct {
		name     string
		text     string
		category BiasCategory
		score    float64
		hits     int
	}{
		{
			name:     "single low severity gender hit",
			text:     "He joined the team.",
			category: CategoryGender,
			score:    0.15,
			hits:     1,
		},
		{
			name:     "two low severity gender hits",
			text:     "He spoke to her.",
			category: CategoryGender,
			score:    0.30,
			hits:     2,
		},
		{
			name:     "medium severity age hit",
			text:     "older developers might struggle to keep up with the fast-paced agile environment",
			category: CategoryAge,
			score:    0.30,
			hits:     1,
		},
		{
			name:     "high severity exclusionary hit",
			text:     "graduates from top-tier universities",
			category: CategoryExclusionary,
			score:    0.50,
			hits:     1,
		},
		{
			name:     "mixed severity exclusionary hits",
			text:     "an elite school with a prestigious campus",
			category: CategoryExclusionary,
			score:    0.80,
			hits:     2,
		},
		{
			name:     "score capped at 1.0",
			text:     strings.Repeat("elite top-tier ", 5),
			category: CategoryExclusionary,
			score:    1.0,
			hits:     10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := scanner.Scan(tt.text, AllCategories())
			result := results[tt.category]

			assert.InDelta(t, tt.score, result.Score, 1e-12)
			assert.Len(t, result.Hits, tt.hits)
		})
	}
}

func TestScanHitSpans(t *testing.T) {
	scanner := newTestScanner(t)
	text := "graduates from top-tier universities"

	results := scanner.Scan(text, []BiasCategory{CategoryExclusionary})
	hits := results[CategoryExclusionary].Hits

	require.Len(t, hits, 1)
	hit := hits[0]
	assert.Equal(t, CategoryExclusionary, hit.Category)
	assert.Equal(t, 15, hit.Start)
	assert.Equal(t, 23, hit.End)
	assert.Equal(t, "top-tier", hit.MatchedText)
	assert.Equal(t, SeverityHigh, hit.Severity)
	assert.Equal(t, "elitist credential", hit.Label)
}

func TestScanCaseInsensitive(t *testing.T) {
	scanner := newTestScanner(t)

	results := scanner.Scan("ELITE candidates only", []BiasCategory{CategoryExclusionary})

	require.Len(t, results[CategoryExclusionary].Hits, 1)
	assert.Equal(t, "ELITE", results[CategoryExclusionary].Hits[0].MatchedText)
}

func TestScanWordBoundaries(t *testing.T) {
	scanner := newTestScanner(t)

	// "therapist" contains "he", "mangos" contains "man": neither may match
	results := scanner.Scan("the therapist bought mangos", []BiasCategory{CategoryGender})

	assert.Empty(t, results[CategoryGender].Hits)
	assert.Equal(t, 0.0, results[CategoryGender].Score)
}

func TestScanRuneOffsets(t *testing.T) {
	scanner := newTestScanner(t)

	// Devanagari prefix: byte and rune offsets diverge
	text := "नमस्ते he said"
	results := scanner.Scan(text, []BiasCategory{CategoryGender})
	hits := results[CategoryGender].Hits

	require.Len(t, hits, 1)
	assert.Equal(t, "he", hits[0].MatchedText)
	assert.Equal(t, 7, hits[0].Start)
	assert.Equal(t, 9, hits[0].End)

	runes := []rune(text)
	assert.Equal(t, "he", string(runes[hits[0].Start:hits[0].End]))
}

func TestScanInvariants(t *testing.T) {
	scanner := newTestScanner(t)
	texts := []string{
		"",
		"He said she was too emotional for the elite team of young rockstar ninjas.",
		"graduates from top-tier universities",
		strings.Repeat("aggressive bossy pushy hysterical ", 20),
	}

	for _, text := range texts {
		results := scanner.Scan(text, AllCategories())
		runeLen := len([]rune(text))

		for cat, result := range results {
			assert.GreaterOrEqual(t, result.Score, 0.0, "category %s", cat)
			assert.LessOrEqual(t, result.Score, 1.0, "category %s", cat)

			for _, hit := range result.Hits {
				assert.GreaterOrEqual(t, hit.Start, 0)
				assert.Less(t, hit.Start, hit.End)
				assert.LessOrEqual(t, hit.End, runeLen)
				assert.Equal(t, cat, hit.Category)
				assert.True(t, hit.Severity.Valid())
			}
		}
	}
}

func TestScanIsDeterministic(t *testing.T) {
	scanner := newTestScanner(t)
	text := "He said she was too emotional for the elite team of young rockstar ninjas."

	first := scanner.Scan(text, AllCategories())
	second := scanner.Scan(text, AllCategories())

	assert.Equal(t, first, second)
}

func BenchmarkScan(b *testing.B) {
	catalog, err := NewCatalog()
	if err != nil {
		b.Fatal(err)
	}
	scanner := NewScanner(catalog)
	text := strings.Repeat("The chairman said his elite team of young rockstar developers ships aggressive code. ", 20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scanner.Scan(text, AllCategories())
	}
}
