package cue

import (
	"fmt"
	"maps"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Cue is a time-ranged marker with configurable event actions.
//
// Start and End are 1-based beat numbers and the range is half-open:
// a player positioned on beat End is no longer inside the cue.
type Cue struct {
	UUID        uuid.UUID
	Start       int
	End         int
	Section     SectionTag
	Hue         float64
	Comment     string
	Events      map[EventKind]EventConfig
	Expressions map[ExpressionKind]string

	// Linked names the library template this cue mirrors, or is empty.
	Linked string
}

// New creates an unlinked cue with a fresh UUID and unconfigured events.
func New(start, end int, section SectionTag) Cue {
	c := Cue{
		UUID:        uuid.New(),
		Start:       start,
		End:         end,
		Section:     section,
		Events:      make(map[EventKind]EventConfig, len(EventKinds)),
		Expressions: make(map[ExpressionKind]string),
	}
	for _, kind := range EventKinds {
		c.Events[kind] = DefaultEventConfig()
	}
	return c
}

// Clone returns a deep copy whose maps can be mutated independently.
func (c Cue) Clone() Cue {
	out := c
	out.Events = maps.Clone(c.Events)
	out.Expressions = maps.Clone(c.Expressions)
	if out.Events == nil {
		out.Events = make(map[EventKind]EventConfig, len(EventKinds))
	}
	if out.Expressions == nil {
		out.Expressions = make(map[ExpressionKind]string)
	}
	return out
}

// Event returns the configuration of kind, defaulting when absent.
func (c Cue) Event(kind EventKind) EventConfig {
	if cfg, ok := c.Events[kind]; ok {
		return cfg
	}
	return DefaultEventConfig()
}

// Expression returns the source text of kind, or "".
func (c Cue) Expression(kind ExpressionKind) string {
	return c.Expressions[kind]
}

// Overlaps reports whether the half-open ranges of c and o intersect and
// both cues belong to the same section.
func (c Cue) Overlaps(o Cue) bool {
	return c.Section == o.Section && c.Start < o.End && o.Start < c.End
}

// Contains reports whether beat lies inside [Start, End).
func (c Cue) Contains(beat int) bool {
	return beat >= c.Start && beat < c.End
}

// Validate checks structural invariants. maxEnd is the largest legal End:
// the track beat count plus one, or the section length in beats plus one.
// A maxEnd of zero skips the upper bound check.
func (c Cue) Validate(maxEnd int) error {
	if c.UUID == uuid.Nil {
		return fmt.Errorf("cue has no uuid")
	}
	if c.Start < 1 {
		return fmt.Errorf("cue %s: start %d must be at least 1", c.UUID, c.Start)
	}
	if c.Start >= c.End {
		return fmt.Errorf("cue %s: start %d must be before end %d", c.UUID, c.Start, c.End)
	}
	if maxEnd > 0 && c.End > maxEnd {
		return fmt.Errorf("cue %s: end %d beyond container end %d", c.UUID, c.End, maxEnd)
	}
	if !c.Section.Valid() {
		return fmt.Errorf("cue %s: unknown section %q", c.UUID, c.Section)
	}
	if math.IsNaN(c.Hue) || c.Hue < 0 || c.Hue >= 360 {
		return fmt.Errorf("cue %s: hue %v outside [0,360)", c.UUID, c.Hue)
	}
	for kind, cfg := range c.Events {
		if !kind.Valid() {
			return fmt.Errorf("cue %s: unknown event %q", c.UUID, kind)
		}
		if err := cfg.Validate(kind); err != nil {
			return fmt.Errorf("cue %s: %w", c.UUID, err)
		}
	}
	for kind := range c.Expressions {
		if !kind.Valid() {
			return fmt.Errorf("cue %s: unknown expression %q", c.UUID, kind)
		}
	}
	return nil
}

// ResolveEvent follows a started-late Same configuration to started-on-beat.
// It returns the kind whose configuration and expression actually apply.
func (c Cue) ResolveEvent(kind EventKind) (EventKind, EventConfig) {
	cfg := c.Event(kind)
	if kind == EventStartedLate && cfg.Message == MessageSame {
		return EventStartedOnBeat, c.Event(EventStartedOnBeat)
	}
	return kind, cfg
}

// Enabled reports whether kind would do anything when it fires: its resolved
// message is not None, and a Custom message has a non-blank expression.
func (c Cue) Enabled(kind EventKind) bool {
	resolved, cfg := c.ResolveEvent(kind)
	switch cfg.Message {
	case MessageNone, MessageSame, "":
		return false
	case MessageCustom:
		return strings.TrimSpace(c.Expression(EntryExpression(resolved))) != ""
	}
	return true
}

// WithNormalizedHue wraps Hue into [0,360).
func (c Cue) WithNormalizedHue() Cue {
	h := math.Mod(c.Hue, 360)
	if h < 0 {
		h += 360
	}
	c.Hue = h
	return c
}
