package cue

// SectionTag identifies a phrase-trigger section. Track cues have no section.
type SectionTag string

const (
	SectionNone  SectionTag = ""
	SectionStart SectionTag = "start"
	SectionLoop  SectionTag = "loop"
	SectionEnd   SectionTag = "end"
	SectionFill  SectionTag = "fill"
)

// Sections lists phrase-trigger sections in playback order.
var Sections = []SectionTag{SectionStart, SectionLoop, SectionEnd, SectionFill}

// Position orders sections for sorting. Track cues sort first.
func (s SectionTag) Position() int {
	switch s {
	case SectionStart:
		return 0
	case SectionLoop:
		return 1
	case SectionEnd:
		return 2
	case SectionFill:
		return 3
	}
	return -1
}

// Valid reports whether s is a known tag, including SectionNone.
func (s SectionTag) Valid() bool {
	return s == SectionNone || s.Position() >= 0
}

// BeatsPerBar is fixed for phrase-trigger section lengths.
const BeatsPerBar = 4
