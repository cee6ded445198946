package scrape

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

var detectable = []lingua.Language{
	lingua.English, lingua.German, lingua.French, lingua.Spanish, lingua.Italian,
	lingua.Portuguese, lingua.Dutch, lingua.Russian, lingua.Japanese, lingua.Korean,
	lingua.Chinese, lingua.Polish, lingua.Turkish, lingua.Swedish, lingua.Vietnamese,
	lingua.Indonesian, lingua.Arabic,
}

// minDetectRunes is the shortest text worth running detection on.
const minDetectRunes = 40

// DetectLanguage returns the ISO 639-1 code of text ("en"), or "" when the
// text is too short or no language is reliably detected.
func DetectLanguage(text string) string {
	if len([]rune(text)) < minDetectRunes {
		return ""
	}
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromLanguages(detectable...).
			WithLowAccuracyMode().
			Build()
	})
	if len(text) > 4000 {
		text = text[:4000]
	}
	lang, ok := detector.DetectLanguageOf(text)
	if !ok {
		return ""
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// SameLanguage compares a detected code with a target language such as
// "en" or "zh-CN". An undetected language counts as a match.
func SameLanguage(detected, target string) bool {
	if detected == "" || target == "" {
		return true
	}
	base := strings.ToLower(target)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	return detected == base
}
