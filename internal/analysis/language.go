package analysis

import "strings"

// Language codes the detector can produce. "mixed" and "unknown" are
// detection outcomes, not ISO codes, and only ever come from detection.
const (
	LanguageEnglish = "en"
	LanguageHindi   = "hi"
	LanguageMixed   = "mixed"
	LanguageUnknown = "unknown"
)

// dominanceThreshold is the script share above which a single language wins
const dominanceThreshold = 0.7

// DetectLanguage classifies text by script composition: Devanagari versus
// Latin letter counts. Above 70% of one script the text is tagged with that
// language; both scripts present is "mixed"; neither is "unknown".
func DetectLanguage(text string) string {
	devanagari := 0
	latin := 0

	for _, r := range text {
		switch {
		case r >= 0x0900 && r <= 0x097F:
			devanagari++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin++
		}
	}

	total := devanagari + latin
	if total == 0 {
		return LanguageUnknown
	}

	switch {
	case float64(devanagari)/float64(total) > dominanceThreshold:
		return LanguageHindi
	case float64(latin)/float64(total) > dominanceThreshold:
		return LanguageEnglish
	default:
		return LanguageMixed
	}
}

// NormalizeLanguageCode lowercases a caller-provided ISO 639-1 code and
// reports whether it is well-formed (exactly two ASCII letters). An empty
// code is valid and means "detect".
func NormalizeLanguageCode(code string) (string, bool) {
	if code == "" {
		return "", true
	}
	if len(code) != 2 {
		return "", false
	}
	for _, r := range code {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return "", false
		}
	}
	return strings.ToLower(code), true
}
