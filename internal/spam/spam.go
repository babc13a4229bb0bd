// Package spam classifies message text against a fixed set of spam
// heuristics. Classification is pure and deterministic; rules are evaluated
// in order and the first match wins.
package spam

import (
	"strings"
	"unicode"
)

// Verdict is the result of classifying one piece of text.
type Verdict struct {
	IsSpam bool
	Reason string
}

const (
	// Same character repeated this many times.
	repeatedCharRun = 10

	// A pattern of up to patternMaxLen characters repeated patternRepeats
	// times consecutively.
	patternMaxLen  = 5
	patternRepeats = 5
)

// hasRepeatedChar reports whether any single character appears repeatedCharRun
// or more times in a row.
func hasRepeatedChar(content string) bool {
	var prev rune
	run := 0
	for _, r := range content {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= repeatedCharRun {
			return true
		}
	}
	return false
}

// hasRepeatedPattern reports whether any substring of length 1..patternMaxLen
// occurs patternRepeats or more times back to back.
func hasRepeatedPattern(content string) bool {
	runes := []rune(content)
	n := len(runes)
	for size := 1; size <= patternMaxLen; size++ {
		span := size * patternRepeats
		if span > n {
			break
		}
		for start := 0; start+span <= n; start++ {
			repeats := 1
			for repeats < patternRepeats && sameRunes(runes, start, start+repeats*size, size) {
				repeats++
			}
			if repeats >= patternRepeats {
				return true
			}
		}
	}
	return false
}

// sameRunes reports whether runes[a:a+size] equals runes[b:b+size].
func sameRunes(runes []rune, a, b, size int) bool {
	for i := 0; i < size; i++ {
		if runes[a+i] != runes[b+i] {
			return false
		}
	}
	return true
}

// Classify checks text against the spam rules. Empty or whitespace-only
// input is never spam. Reasons are user-visible strings; only the first
// matching rule's reason is surfaced.
func Classify(content string) Verdict {
	if strings.TrimSpace(content) == "" {
		return Verdict{}
	}

	if hasRepeatedChar(content) {
		return Verdict{IsSpam: true, Reason: "Repeated characters detected"}
	}

	runes := []rune(content)
	total := len(runes)

	symbolCount := 0
	specialCount := 0
	whitespaceCount := 0
	for _, r := range runes {
		if isSymbolOrEmoji(r) {
			symbolCount++
		}
		if !isWordChar(r) && !unicode.IsSpace(r) {
			specialCount++
		}
		if unicode.IsSpace(r) {
			whitespaceCount++
		}
	}

	if float64(symbolCount)/float64(total) > 0.5 && symbolCount >= 10 {
		return Verdict{IsSpam: true, Reason: "Excessive Unicode/emoji detected"}
	}

	if float64(specialCount)/float64(total) > 0.6 && specialCount >= 15 {
		return Verdict{IsSpam: true, Reason: "Excessive special characters detected"}
	}

	if float64(whitespaceCount)/float64(total) > 0.5 && whitespaceCount >= 20 {
		return Verdict{IsSpam: true, Reason: "Excessive whitespace detected"}
	}

	if hasRepeatedPattern(content) {
		return Verdict{IsSpam: true, Reason: "Repeated pattern detected"}
	}

	// Long messages drawing from a tiny alphabet carry no information.
	if total >= 200 {
		unique := make(map[rune]struct{})
		for _, r := range strings.ToLower(content) {
			if !unicode.IsSpace(r) {
				unique[r] = struct{}{}
			}
		}
		if len(unique) <= 5 {
			return Verdict{IsSpam: true, Reason: "Long message with minimal unique characters"}
		}
	}

	return Verdict{}
}

// isWordChar mirrors the \w character class: letters, digits, underscore.
func isWordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isSymbolOrEmoji reports whether r falls in the symbol/emoji blocks the
// unicode-density rule counts: dingbats, arrows, pictographs, variation
// selectors and the supplementary symbol planes.
func isSymbolOrEmoji(r rune) bool {
	switch {
	case r >= 0x2190 && r <= 0x23FF: // arrows, technical
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2B50 && r <= 0x2B55:
		return true
	case r >= 0x3030 && r <= 0x303F:
		return true
	case r == 0x3299:
		return true
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
		return true
	case r >= 0x1F000 && r <= 0x1FAFF: // mahjong through extended pictographs
		return true
	default:
		return false
	}
}
