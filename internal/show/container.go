package show

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/expr"
	"github.com/roach88/beatcue/internal/lanes"
)

// Kind distinguishes tracks from phrase triggers.
type Kind string

const (
	KindTrack         Kind = "track"
	KindPhraseTrigger Kind = "phrase-trigger"
)

// maxSwapAttempts bounds the compare-and-swap retry loop in Update.
const maxSwapAttempts = 64

// State is an immutable snapshot of one container. Callers must not modify a
// State obtained from Snapshot; Update hands out copies for that.
type State struct {
	// Beats is the track length in beats. Zero means unbounded.
	Beats int

	// Sections maps each phrase trigger section to its length in bars.
	Sections map[cue.SectionTag]int

	// Output names the MIDI output this container sends to. Empty means none.
	Output string

	Cues    map[uuid.UUID]cue.Cue
	Layout  *lanes.Layout
	Runtime Runtime

	// Version increases by one with every successful swap.
	Version uint64
}

// Clone returns a copy whose maps may be modified freely. The layout is
// shared until SetCues replaces it.
func (s *State) Clone() *State {
	out := *s
	out.Sections = maps.Clone(s.Sections)
	out.Cues = maps.Clone(s.Cues)
	if out.Cues == nil {
		out.Cues = make(map[uuid.UUID]cue.Cue)
	}
	out.Runtime = s.Runtime.Clone()
	return &out
}

// SetCues replaces the cue set and recomputes the layout.
func (s *State) SetCues(cues map[uuid.UUID]cue.Cue) {
	s.Cues = cues
	s.Layout = lanes.Compute(slices.Collect(maps.Values(cues)))
}

// replaceCue swaps c in for old, which share a UUID, reindexing only the
// sections the cue leaves and enters.
func (s *State) replaceCue(old, c cue.Cue) {
	s.Cues[c.UUID] = c
	s.Layout = s.Layout.Update(slices.Collect(maps.Values(s.Cues)), old, c)
}

// Cue returns the cue with the given UUID.
func (s *State) Cue(id uuid.UUID) (cue.Cue, bool) {
	c, ok := s.Cues[id]
	return c, ok
}

// Sorted returns the cues in canonical order.
func (s *State) Sorted() []cue.Cue {
	out := make([]cue.Cue, 0, len(s.Layout.Sorted))
	for _, id := range s.Layout.Sorted {
		out = append(out, s.Cues[id])
	}
	return out
}

// At returns the cues of section containing beat, in canonical order.
func (s *State) At(section cue.SectionTag, beat int) []cue.Cue {
	return s.lookup(s.Layout.At(section, beat))
}

// Overlapping returns the cues of section intersecting [from, to), in
// canonical order.
func (s *State) Overlapping(section cue.SectionTag, from, to int) []cue.Cue {
	return s.lookup(s.Layout.Overlapping(section, from, to))
}

func (s *State) lookup(ids []uuid.UUID) []cue.Cue {
	out := make([]cue.Cue, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Cues[id])
	}
	slices.SortFunc(out, cue.Compare)
	return out
}

// MaxEnd returns the largest legal cue End for section, or zero when the
// container does not bound it.
func (s *State) MaxEnd(section cue.SectionTag) int {
	if s.Sections != nil {
		return s.Sections[section]*cue.BeatsPerBar + 1
	}
	if s.Beats > 0 {
		return s.Beats + 1
	}
	return 0
}

// Runtime is the per-container playback state. It is never persisted.
type Runtime struct {
	// Entered maps a player number to the cues its position lies inside.
	Entered map[int]map[uuid.UUID]struct{}

	// Playing records whether each player was playing at its last update.
	Playing map[int]bool

	// LastEntry remembers which start event fired for a cue so the matching
	// end message can be sent when playback stops.
	LastEntry map[uuid.UUID]cue.EventKind
}

// Clone returns a deep copy.
func (r Runtime) Clone() Runtime {
	out := Runtime{
		Entered:   make(map[int]map[uuid.UUID]struct{}, len(r.Entered)),
		Playing:   maps.Clone(r.Playing),
		LastEntry: maps.Clone(r.LastEntry),
	}
	for player, set := range r.Entered {
		out.Entered[player] = maps.Clone(set)
	}
	if out.Playing == nil {
		out.Playing = make(map[int]bool)
	}
	if out.LastEntry == nil {
		out.LastEntry = make(map[uuid.UUID]cue.EventKind)
	}
	return out
}

// CueEntered reports whether any player is inside the cue.
func (r Runtime) CueEntered(id uuid.UUID) bool {
	for _, set := range r.Entered {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// CueStarted reports whether any playing player is inside the cue.
func (r Runtime) CueStarted(id uuid.UUID) bool {
	for player, set := range r.Entered {
		if _, ok := set[id]; ok && r.Playing[player] {
			return true
		}
	}
	return false
}

// Players returns the players inside the cue, ascending.
func (r Runtime) Players(id uuid.UUID) []int {
	var out []int
	for player, set := range r.Entered {
		if _, ok := set[id]; ok {
			out = append(out, player)
		}
	}
	slices.Sort(out)
	return out
}

// EnteredCues returns the cues player is inside.
func (r Runtime) EnteredCues(player int) []uuid.UUID {
	out := slices.Collect(maps.Keys(r.Entered[player]))
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return slices.Compare(a[:], b[:])
	})
	return out
}

// Enter records player inside the cue.
func (r *Runtime) Enter(player int, id uuid.UUID) {
	set, ok := r.Entered[player]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		r.Entered[player] = set
	}
	set[id] = struct{}{}
}

// Exit removes player from the cue.
func (r *Runtime) Exit(player int, id uuid.UUID) {
	delete(r.Entered[player], id)
	if len(r.Entered[player]) == 0 {
		delete(r.Entered, player)
	}
}

// Forget drops every trace of the cue.
func (r *Runtime) Forget(id uuid.UUID) {
	for player := range r.Entered {
		r.Exit(player, id)
	}
	delete(r.LastEntry, id)
}

// Container is a track or phrase trigger owning a cue set.
type Container struct {
	name   string
	kind   Kind
	state  atomic.Pointer[State]
	locals *expr.Scratch
}

func newContainer(name string, kind Kind, initial *State) *Container {
	c := &Container{name: name, kind: kind, locals: expr.NewScratch()}
	if initial.Cues == nil {
		initial.Cues = make(map[uuid.UUID]cue.Cue)
	}
	initial.SetCues(initial.Cues)
	initial.Runtime = initial.Runtime.Clone()
	c.state.Store(initial)
	return c
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Kind reports whether this is a track or a phrase trigger.
func (c *Container) Kind() Kind { return c.kind }

// Locals returns the scratch map shared by this container's expressions.
func (c *Container) Locals() *expr.Scratch { return c.locals }

// Snapshot returns the current state.
func (c *Container) Snapshot() *State {
	return c.state.Load()
}

// Update applies fn to the current state and swaps in the result. fn
// receives the live snapshot and must return a new State (see State.Clone),
// the same pointer for no change, or an error to abort. fn may run more than
// once when other writers win the race.
func (c *Container) Update(fn func(cur *State) (*State, error)) (*State, error) {
	for range maxSwapAttempts {
		cur := c.state.Load()
		next, err := fn(cur)
		if err != nil {
			return cur, err
		}
		if next == nil || next == cur {
			return cur, nil
		}
		next.Version = cur.Version + 1
		if c.state.CompareAndSwap(cur, next) {
			return next, nil
		}
	}
	return c.state.Load(), &Error{
		Code:      ErrCodeConflict,
		Message:   fmt.Sprintf("state kept changing after %d attempts", maxSwapAttempts),
		Container: c.name,
	}
}

// UpdateRuntime runs fn against a copy of the runtime state and swaps it in.
func (c *Container) UpdateRuntime(fn func(cur *State, rt *Runtime) error) (*State, error) {
	return c.Update(func(cur *State) (*State, error) {
		next := *cur
		next.Runtime = cur.Runtime.Clone()
		if err := fn(cur, &next.Runtime); err != nil {
			return nil, err
		}
		return &next, nil
	})
}

// SetOutput selects the MIDI output the container sends to.
func (c *Container) SetOutput(output string) error {
	_, err := c.Update(func(cur *State) (*State, error) {
		if cur.Output == output {
			return cur, nil
		}
		next := *cur
		next.Output = output
		return &next, nil
	})
	return err
}

// checkPlacement validates c against the container bounds.
func (c *Container) checkPlacement(s *State, cu cue.Cue) error {
	switch c.kind {
	case KindTrack:
		if cu.Section != cue.SectionNone {
			return &Error{Code: ErrCodeInvalidRange, Message: "track cues cannot carry a section", Container: c.name, Cue: cu.UUID}
		}
	case KindPhraseTrigger:
		if s.Sections[cu.Section] <= 0 {
			return &Error{Code: ErrCodeInvalidRange, Message: fmt.Sprintf("phrase trigger has no %q section", cu.Section), Container: c.name, Cue: cu.UUID}
		}
	}
	if err := cu.Validate(s.MaxEnd(cu.Section)); err != nil {
		return &Error{Code: ErrCodeInvalidRange, Message: err.Error(), Container: c.name, Cue: cu.UUID}
	}
	return nil
}
