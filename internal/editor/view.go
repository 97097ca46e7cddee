package editor

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/lanes"
	"github.com/roach88/beatcue/internal/show"
)

// Filter narrows the cues a window lists.
type Filter struct {
	// Text matches case-insensitively against the cue comment and the name
	// of the template it is linked to.
	Text string

	// EnteredOnly hides cues no player is inside.
	EnteredOnly bool
}

type matcher struct {
	filter Filter
	fold   cases.Caser
	needle string
}

func newMatcher(f Filter) *matcher {
	m := &matcher{filter: f, fold: cases.Fold()}
	if text := strings.TrimSpace(f.Text); text != "" {
		m.needle = m.fold.String(norm.NFC.String(text))
	}
	return m
}

func (m *matcher) matches(c cue.Cue, rt show.Runtime) bool {
	if m.filter.EnteredOnly && !rt.CueEntered(c.UUID) {
		return false
	}
	if m.needle == "" {
		return true
	}
	for _, hay := range []string{c.Comment, c.Linked} {
		if strings.Contains(m.fold.String(norm.NFC.String(hay)), m.needle) {
			return true
		}
	}
	return false
}

// Diff reports how a window's visible list changed on refresh.
type Diff struct {
	// Added and Moved follow the new list order; Removed the old one.
	Added   []uuid.UUID
	Removed []uuid.UUID

	// Moved lists cues visible before and after whose range, section or
	// lane changed, or whose order relative to the other remaining cues did.
	Moved []uuid.UUID

	// Redraw is set when the list changed or the lane count did.
	Redraw bool
}

type placement struct {
	start   int
	end     int
	section cue.SectionTag
	pos     lanes.Position
}

// view is the filtered, canonically ordered cue list of one refresh.
type view struct {
	visible  []uuid.UUID
	placed   map[uuid.UUID]placement
	maxLanes int
}

func buildView(state *show.State, f Filter) view {
	m := newMatcher(f)
	v := view{placed: make(map[uuid.UUID]placement), maxLanes: state.Layout.MaxLanes}
	for _, c := range state.Sorted() {
		if !m.matches(c, state.Runtime) {
			continue
		}
		pos, _ := state.Layout.Position(c.UUID)
		v.visible = append(v.visible, c.UUID)
		v.placed[c.UUID] = placement{start: c.Start, end: c.End, section: c.Section, pos: pos}
	}
	return v
}

func diffViews(prev, next view) Diff {
	var d Diff
	for _, id := range prev.visible {
		if _, ok := next.placed[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}

	var prevKept []uuid.UUID
	for _, id := range prev.visible {
		if _, ok := next.placed[id]; ok {
			prevKept = append(prevKept, id)
		}
	}
	prevIndex := make(map[uuid.UUID]int, len(prevKept))
	for i, id := range prevKept {
		prevIndex[id] = i
	}

	kept := 0
	for _, id := range next.visible {
		before, ok := prev.placed[id]
		if !ok {
			d.Added = append(d.Added, id)
			continue
		}
		if prevIndex[id] != kept || before != next.placed[id] {
			d.Moved = append(d.Moved, id)
		}
		kept++
	}

	d.Redraw = len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Moved) > 0 || prev.maxLanes != next.maxLanes
	return d
}
