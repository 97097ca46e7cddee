package cue

import (
	"cmp"
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Compare orders cues by (section position, start, end, comment, uuid).
// This is the canonical iteration order for interval rebuilds, lane
// assignment and the visible list; lane numbers depend on it.
func Compare(a, b Cue) int {
	if c := cmp.Compare(a.Section.Position(), b.Section.Position()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.End, b.End); c != 0 {
		return c
	}
	if c := cmp.Compare(norm.NFC.String(a.Comment), norm.NFC.String(b.Comment)); c != 0 {
		return c
	}
	return cmp.Compare(a.UUID.String(), b.UUID.String())
}

// Sorted returns the cues in canonical order without modifying the input.
func Sorted(cues []Cue) []Cue {
	out := slices.Clone(cues)
	slices.SortFunc(out, Compare)
	return out
}
