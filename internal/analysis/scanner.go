package analysis

import "unicode/utf8"

// normalizationConstant divides the summed severity weights of a category's
// hits before capping at 1.0. Part of the scoring contract.
const normalizationConstant = 1.0

// Scanner evaluates the pattern catalog against input text. It holds only
// the immutable catalog, so a single scanner is safe for concurrent use.
type Scanner struct {
	catalog *Catalog
}

// NewScanner creates a scanner over the given catalog
func NewScanner(catalog *Catalog) *Scanner {
	return &Scanner{catalog: catalog}
}

// Scan matches every rule of the requested categories against text and
// returns the per-category score and hit list. Categories with no match get
// score 0.0 and an empty hit list. Pure function: no side effects, linear in
// text length times catalog size.
func (s *Scanner) Scan(text string, categories []BiasCategory) map[BiasCategory]CategoryResult {
	conv := newOffsetConverter(text)
	results := make(map[BiasCategory]CategoryResult, len(categories))

	for _, cat := range categories {
		hits := []Hit{}
		for _, rule := range s.catalog.byCat[cat] {
			for _, loc := range rule.re.FindAllStringIndex(text, -1) {
				start, end := conv.runeOffsets(loc[0], loc[1])
				hits = append(hits, Hit{
					Category:    cat,
					Start:       start,
					End:         end,
					MatchedText: text[loc[0]:loc[1]],
					Severity:    rule.Severity,
					Label:       rule.Label,
				})
			}
		}

		results[cat] = CategoryResult{
			Score: scoreHits(hits),
			Hits:  hits,
		}
	}

	return results
}

// scoreHits sums severity weights, normalizes, and caps at 1.0
func scoreHits(hits []Hit) float64 {
	if len(hits) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, h := range hits {
		sum += h.Severity.Weight()
	}
	score := sum / normalizationConstant
	if score > 1.0 {
		return 1.0
	}
	return score
}

// offsetConverter translates byte offsets from the regexp engine into the
// rune offsets carried by hits. ASCII text converts for free.
type offsetConverter struct {
	text  string
	ascii bool
}

func newOffsetConverter(text string) offsetConverter {
	return offsetConverter{text: text, ascii: utf8.RuneCountInString(text) == len(text)}
}

func (c offsetConverter) runeOffsets(startByte, endByte int) (int, int) {
	if c.ascii {
		return startByte, endByte
	}
	start := utf8.RuneCountInString(c.text[:startByte])
	return start, start + utf8.RuneCountInString(c.text[startByte:endByte])
}
