// Package anchor relocates a client-reported text selection inside the
// authoritative stored markdown for a document.
//
// The client selects text in a rendered view that may not byte-match the
// stored source (collapsed whitespace, markdown markers stripped by the
// renderer). Resolve finds where that selection lives in the stored text and
// returns a half-open rune range suitable for an in-place replacement.
package anchor

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrNotFound is returned when the claimed selection text, even after
// whitespace normalization, does not appear in the stored document. The
// document has likely changed since the client rendered it.
var ErrNotFound = errors.New("selection not found in document")

// Range is a half-open rune range into the stored document:
// 0 <= Start <= End <= len([]rune(stored)).
type Range struct {
	Start int
	End   int
}

var listMarkerRe = regexp.MustCompile(`^(\d+\.\s+|[*+-]\s+)$`)

// Resolve locates claimText inside stored and returns the range to replace.
//
// Resolution is best-effort, in order: exact match, whitespace-normalized
// match (the only hard-fail point), list-marker prefix expansion, and a
// forward scan correcting the end offset when the earlier steps left the
// window out of sync with the claim. Client-supplied offsets are advisory
// and deliberately not an input; only the selection text is trusted.
func Resolve(stored, claimText string) (Range, error) {
	storedRunes := []rune(stored)
	claimRunes := []rune(claimText)

	if len(claimRunes) == 0 || strings.TrimSpace(claimText) == "" {
		return Range{}, ErrNotFound
	}

	start := runeIndex(storedRunes, claimRunes)
	end := 0
	if start >= 0 {
		end = start + len(claimRunes)
	} else {
		normStored := normalize(stored)
		normClaim := normalize(claimText)

		normStart := runeIndex([]rune(normStored), []rune(normClaim))
		if normStart < 0 {
			return Range{}, ErrNotFound
		}

		// Walk stored, advancing a normalized-position counter: one step per
		// non-whitespace rune, one step per maximal whitespace run. When the
		// counter reaches the normalized match start, the raw index is the
		// match start in stored.
		start = rawIndexFor(storedRunes, normStart)
		// Approximate: the original claim length, not the normalized one.
		// Step 4 corrects the end when normalization changed the rune count.
		end = start + len(claimRunes)
		if end > len(storedRunes) {
			end = len(storedRunes)
		}
	}

	start = expandListMarker(storedRunes, start)
	end = correctEnd(storedRunes, claimRunes, start, end)

	return Range{Start: start, End: end}, nil
}

// Slice returns the stored text covered by r.
func (r Range) Slice(stored string) string {
	runes := []rune(stored)
	return string(runes[r.Start:r.End])
}

// Replace substitutes the text covered by r with replacement.
func (r Range) Replace(stored, replacement string) string {
	runes := []rune(stored)
	return string(runes[:r.Start]) + replacement + string(runes[r.End:])
}

// normalize collapses whitespace so that two renderings of the same text
// compare equal: split on whitespace, rejoin with single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// rawIndexFor maps a position in the normalized form of stored back to a
// rune index in stored itself.
func rawIndexFor(stored []rune, normPos int) int {
	raw := 0
	norm := 0
	for raw < len(stored) && norm < normPos {
		if unicode.IsSpace(stored[raw]) {
			for raw < len(stored) && unicode.IsSpace(stored[raw]) {
				raw++
			}
			norm++
			continue
		}
		raw++
		norm++
	}
	return raw
}

// expandListMarker pulls the match start back to the beginning of its line
// when the selection began immediately after a markdown list marker, so the
// marker travels with the content on replace. Otherwise a replacement would
// leave a dangling "1. " or "- " behind.
func expandListMarker(stored []rune, start int) int {
	lineStart := 0
	for i := start - 1; i >= 0; i-- {
		if stored[i] == '\n' {
			lineStart = i + 1
			break
		}
	}
	if lineStart == start {
		return start
	}
	if listMarkerRe.MatchString(string(stored[lineStart:start])) {
		return lineStart
	}
	return start
}

// correctEnd re-derives the end offset after the start may have moved or the
// normalized match made the window approximate. It scans forward for the
// smallest window whose normalized text equals the normalized claim; when no
// window matches, the approximate end stands (best effort, not an error).
func correctEnd(stored, claim []rune, start, end int) int {
	if end > len(stored) {
		end = len(stored)
	}
	if string(stored[start:end]) == string(claim) {
		return end
	}
	normClaim := normalize(string(claim))
	for offset := len(claim); offset <= len(stored)-start; offset++ {
		if normalize(string(stored[start:start+offset])) == normClaim {
			return start + offset
		}
	}
	return end
}

// runeIndex returns the index of the first occurrence of needle in haystack,
// in runes, or -1.
func runeIndex(haystack, needle []rune) int {
	byteIdx := strings.Index(string(haystack), string(needle))
	if byteIdx < 0 {
		return -1
	}
	return len([]rune(string(haystack)[:byteIdx]))
}
