// Package textutil provides text preparation helpers for the translation
// pipeline: cleanup, language detection, SRT subtitle handling, and decoding
// of non-UTF-8 inputs.
package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var (
	crRegexp        = regexp.MustCompile(`\r\n?`)
	excessBlankLine = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes an input document: strips a BOM, converts line
// endings to LF, and collapses runs of blank lines.
func CleanText(text string) string {
	text = strings.TrimPrefix(text, "\uFEFF")
	text = crRegexp.ReplaceAllString(text, "\n")
	text = excessBlankLine.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Detection thresholds over the non-space rune count.
const (
	hangulThreshold = 0.3
	kanaThreshold   = 0.1
	kanjiThreshold  = 0.2
	latinThreshold  = 0.5
)

// DetectLanguage guesses the dominant language of text from Unicode script
// ranges. Returns one of "ko", "ja", "en", or "unknown".
func DetectLanguage(text string) string {
	var total, hangul, kana, kanji, latin int
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			continue
		}
		total++
		switch {
		case r >= 0xAC00 && r <= 0xD7AF, r >= 0x1100 && r <= 0x11FF, r >= 0x3130 && r <= 0x318F:
			hangul++
		case r >= 0x3040 && r <= 0x309F, r >= 0x30A0 && r <= 0x30FF:
			kana++
		case r >= 0x4E00 && r <= 0x9FFF:
			kanji++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin++
		}
	}
	if total == 0 {
		return "unknown"
	}

	switch {
	case float64(hangul)/float64(total) > hangulThreshold:
		return "ko"
	case float64(kana)/float64(total) > kanaThreshold:
		return "ja"
	case float64(kanji)/float64(total) > kanjiThreshold:
		return "ja"
	case float64(latin)/float64(total) > latinThreshold:
		return "en"
	default:
		return "unknown"
	}
}

// LanguageName renders a language code as its English display name for use
// in prompts ("Korean", "Japanese", ...).
func LanguageName(code string) string {
	switch code {
	case "", "auto":
		return "Auto Detect"
	case "unknown":
		return "Unknown"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return code
	}
	return name
}

// WordSet tokenizes text into a set of lowercase words. Used for overlap
// similarity between chunks.
func WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range wordRegexp.FindAllString(strings.ToLower(text), -1) {
		set[w] = struct{}{}
	}
	return set
}

var wordRegexp = regexp.MustCompile(`[\p{L}\p{N}]+`)

// JaccardSimilarity computes word-overlap similarity between two texts:
// |A ∩ B| / |A ∪ B| over lowercase word sets. Empty inputs score zero.
func JaccardSimilarity(a, b string) float64 {
	setA := WordSet(a)
	setB := WordSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
