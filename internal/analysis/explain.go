package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// explanationTemplates holds the three phrasing bands per category,
// selected by the category score: < 0.2, < 0.5, and everything above.
// The %d slot takes the hit count, the %s slot the matched terms.
type explanationBands struct {
	minimal  string
	moderate string
	severe   string
}

var explanationTemplates = map[BiasCategory]explanationBands{
	CategoryGender: {
		minimal:  "Minimal gender bias detected: %d instance of gendered language (%s). Language appears relatively balanced.",
		moderate: "Moderate gender bias detected. Found %d instances of gendered language (%s) that may create implicit associations.",
		severe:   "Significant gender bias detected. The text contains imbalanced gendered language, %d instances (%s), that may reinforce stereotypes.",
	},
	CategoryStereotype: {
		minimal:  "Low stereotypical language detected: %d instance (%s). Content appears largely inclusive.",
		moderate: "Moderate stereotypical patterns identified. Found %d terms (%s) that may carry implicit biases.",
		severe:   "High level of stereotypical language detected: %d instances of terms (%s) that reinforce biases or exclusionary patterns.",
	},
	CategoryExclusionary: {
		minimal:  "Minimal exclusionary language: %d instance (%s). Content appears accessible and inclusive.",
		moderate: "Some exclusionary language detected. Found %d terms (%s) that may create barriers or limit diversity.",
		severe:   "Significant exclusionary language present: %d instances of elitist or limiting terminology (%s) that may systematically exclude qualified candidates.",
	},
	CategoryAge: {
		minimal:  "Minimal age-related framing: %d instance (%s).",
		moderate: "Age-related assumptions identified. Found %d terms (%s) that may imply capability based on age.",
		severe:   "Strong age bias detected: %d instances of age-coded language (%s) that may discriminate by age group.",
	},
}

// Explain converts raw scan results into per-category explanation strings
// and the flat, ordered highlight list. Categories with zero hits are absent
// from the explanation map. Deterministic given the same results.
func Explain(results map[BiasCategory]CategoryResult) (map[BiasCategory]string, []HighlightedSpan) {
	explanations := make(map[BiasCategory]string)
	spans := []HighlightedSpan{}

	for _, cat := range AllCategories() {
		result, ok := results[cat]
		if !ok || len(result.Hits) == 0 {
			continue
		}

		explanations[cat] = buildExplanation(cat, result)

		for _, hit := range result.Hits {
			spans = append(spans, HighlightedSpan{
				Span:     [2]int{hit.Start, hit.End},
				Text:     hit.MatchedText,
				BiasType: string(hit.Category),
				Severity: hit.Severity,
			})
		}
	}

	// Ascending start offset; ties by category name, then end offset,
	// so the ordering is total and reproducible.
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Span[0] != spans[j].Span[0] {
			return spans[i].Span[0] < spans[j].Span[0]
		}
		if spans[i].BiasType != spans[j].BiasType {
			return spans[i].BiasType < spans[j].BiasType
		}
		return spans[i].Span[1] < spans[j].Span[1]
	})

	return explanations, spans
}

func buildExplanation(cat BiasCategory, result CategoryResult) string {
	bands := explanationTemplates[cat]

	template := bands.severe
	switch {
	case result.Score < 0.2:
		template = bands.minimal
	case result.Score < 0.5:
		template = bands.moderate
	}

	return fmt.Sprintf(template, len(result.Hits), matchedTerms(result.Hits))
}

// matchedTerms lists the distinct matched terms in first-occurrence order,
// lowercased, capped at three with a trailing ellipsis marker.
func matchedTerms(hits []Hit) string {
	const maxTerms = 3

	seen := make(map[string]bool)
	terms := []string{}
	truncated := false

	for _, hit := range hits {
		term := strings.ToLower(hit.MatchedText)
		if seen[term] {
			continue
		}
		seen[term] = true
		if len(terms) == maxTerms {
			truncated = true
			break
		}
		terms = append(terms, "'"+term+"'")
	}

	joined := strings.Join(terms, ", ")
	if truncated {
		joined += ", ..."
	}
	return joined
}
