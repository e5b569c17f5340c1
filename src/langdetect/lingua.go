// Package langdetect guesses the language of captured text so a span can
// carry a detected-language hint before any provider is called.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

const (
	minLetters = 6
	maxSample  = 2000
)

// Detector returns an ISO 639-1 code, or "" when unsure.
type Detector interface {
	Detect(text string) string
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(string) string

func (f DetectorFunc) Detect(text string) string { return f(text) }

// Lingua is the default Detector. The underlying models load on first use.
var Lingua Detector = DetectorFunc(DetectISO6391)

// Off never detects anything.
var Off Detector = DetectorFunc(func(string) string { return "" })

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}
	if r := []rune(sample); len(r) > maxSample {
		sample = string(r[:maxSample])
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < minLetters {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

// Warm builds the detector ahead of the first capture.
func Warm() { getDetector() }

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		// Low accuracy mode loads the small models only.
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			WithMinimumRelativeDistance(0.1).
			Build()
	})
	return detector
}
