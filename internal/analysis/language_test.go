package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
	}{
		{"plain english", "The committee approved the proposal.", LanguageEnglish},
		{"pure hindi", "समाज में आज भी पुरानी सोच बनी हुई है", LanguageHindi},
		{"mixed scripts", "मीटिंग में बताया गया that the policy will change from today onwards", LanguageMixed},
		{"digits only", "1234 5678", LanguageUnknown},
		{"empty", "", LanguageUnknown},
		{"punctuation only", "!?.,;:", LanguageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectLanguage(tt.text))
		})
	}
}

func TestNormalizeLanguageCode(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		want  string
		valid bool
	}{
		{"empty means detect", "", "", true},
		{"lowercase passes through", "en", "en", true},
		{"uppercase lowered", "EN", "en", true},
		{"mixed case lowered", "Hi", "hi", true},
		{"too long", "eng", "", false},
		{"too short", "e", "", false},
		{"digits rejected", "e1", "", false},
		{"non-ascii rejected", "éé", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, valid := NormalizeLanguageCode(tt.code)
			assert.Equal(t, tt.valid, valid)
			assert.Equal(t, tt.want, got)
		})
	}
}
