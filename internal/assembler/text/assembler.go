// Copyright (c) 2024-2026 Aurix AI
//
// Licensed under GPL-2.0 with Aurix Additional Terms.
// See LICENSE.md for commercial usage.

package internal_sentence_assembler

import (
	"strings"
	"unicode"
)

// ============================================================================
// SENTENCE SEGMENTATION
// ============================================================================
//
// Reply text from the language model is streamed to synthesis one sentence
// at a time, so segmentation sits on the latency path: it must be cheap,
// deterministic, and never swallow text. Fragments that are too short to be
// worth a synthesis round-trip are merged into their successor.

// minStandaloneRunes is the smallest fragment synthesized on its own.
const minStandaloneRunes = 3

// Segment splits reply text into ordered sentence units. Terminal
// punctuation (. ! ?) ends a unit unless it reads as part of a number
// ("3.5") or a single-letter abbreviation ("e.g."). Trailing text without
// terminal punctuation forms the final unit. The concatenation of the
// returned units always carries every non-space rune of the input.
func Segment(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var units []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		if splitsWord(runes, i) {
			continue
		}
		// absorb runs like "?!" and "..."
		end := i + 1
		for end < len(runes) && isTerminal(runes[end]) {
			end++
		}
		if unit := strings.TrimSpace(string(runes[start:end])); unit != "" {
			units = append(units, unit)
		}
		i = end - 1
		start = end
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		units = append(units, tail)
	}
	return mergeShort(units)
}

// WordCount reports the whitespace-delimited word count of a sentence,
// used by the short-phrase caching policy.
func WordCount(sentence string) int {
	return len(strings.Fields(sentence))
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// splitsWord reports whether the terminal rune at i sits inside a token
// that should not be broken: a decimal number or a one-letter abbreviation.
func splitsWord(runes []rune, i int) bool {
	if runes[i] != '.' {
		return false
	}
	if i+1 < len(runes) && unicode.IsDigit(runes[i+1]) && i > 0 && unicode.IsDigit(runes[i-1]) {
		return true
	}
	if i > 0 && unicode.IsLetter(runes[i-1]) && (i == 1 || !unicode.IsLetter(runes[i-2])) {
		return true
	}
	return false
}

// mergeShort folds fragments below the standalone minimum into the next
// unit, or the previous one when they arrive last.
func mergeShort(units []string) []string {
	if len(units) < 2 {
		return units
	}
	merged := make([]string, 0, len(units))
	for i := 0; i < len(units); i++ {
		unit := units[i]
		for len([]rune(trimTerminal(unit))) < minStandaloneRunes && i+1 < len(units) {
			i++
			unit = unit + " " + units[i]
		}
		merged = append(merged, unit)
	}
	if len(merged) > 1 {
		last := merged[len(merged)-1]
		if len([]rune(trimTerminal(last))) < minStandaloneRunes {
			merged[len(merged)-2] = merged[len(merged)-2] + " " + last
			merged = merged[:len(merged)-1]
		}
	}
	return merged
}

func trimTerminal(s string) string {
	return strings.TrimRightFunc(s, isTerminal)
}
