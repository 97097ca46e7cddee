package show

import (
	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
)

// NewCue creates an unconfigured cue covering [start, end) in section.
func (s *Show) NewCue(ctr *Container, start, end int, section cue.SectionTag) (cue.Cue, error) {
	return s.AddCue(ctr, cue.New(start, end, section))
}

// AddCue stores c in ctr. A nil UUID is replaced by a fresh one. When c is
// linked, its events and expressions are taken from the library template.
func (s *Show) AddCue(ctr *Container, c cue.Cue) (cue.Cue, error) {
	c = c.Clone().WithNormalizedHue()
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Linked != "" {
		t, ok := s.Template(c.Linked)
		if !ok {
			return cue.Cue{}, templateNotFound(c.Linked)
		}
		c = c.ApplyTemplate(t, normalizeName(c.Linked))
	}
	return s.insertCue(ctr, c)
}

// RestoreCue stores a persisted cue exactly as saved, without copying a
// linked template's content over it. The template must still exist.
func (s *Show) RestoreCue(ctr *Container, c cue.Cue) (cue.Cue, error) {
	c = c.Clone().WithNormalizedHue()
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Linked != "" {
		if _, ok := s.Template(c.Linked); !ok {
			return cue.Cue{}, templateNotFound(c.Linked)
		}
		c.Linked = normalizeName(c.Linked)
	}
	return s.insertCue(ctr, c)
}

func (s *Show) insertCue(ctr *Container, c cue.Cue) (cue.Cue, error) {
	_, err := ctr.Update(func(cur *State) (*State, error) {
		if _, exists := cur.Cues[c.UUID]; exists {
			return nil, &Error{Code: ErrCodeDuplicateName, Message: "cue uuid already present", Container: ctr.name, Cue: c.UUID}
		}
		if err := ctr.checkPlacement(cur, c); err != nil {
			return nil, err
		}
		next := cur.Clone()
		next.Cues[c.UUID] = c
		next.SetCues(next.Cues)
		return next, nil
	})
	if err != nil {
		return cue.Cue{}, err
	}

	s.logger.Debug("cue added", "container", ctr.name, "cue", c.UUID, "start", c.Start, "end", c.End)
	s.notifyChanged(ctr, c)
	return c, nil
}

// UpdateCue replaces a cue with edit's result. edit may not change the
// cue's identity or link; use Link and Unlink for the latter. A change to a
// linked cue's events or expressions propagates through the library.
func (s *Show) UpdateCue(ctr *Container, id uuid.UUID, edit func(c cue.Cue) cue.Cue) (cue.Cue, error) {
	var before, after cue.Cue
	_, err := ctr.Update(func(cur *State) (*State, error) {
		old, ok := cur.Cues[id]
		if !ok {
			return nil, cueNotFound(ctr.name, id)
		}
		updated := edit(old.Clone()).WithNormalizedHue()
		updated.UUID = id
		updated.Linked = old.Linked
		if err := ctr.checkPlacement(cur, updated); err != nil {
			return nil, err
		}
		next := cur.Clone()
		if reorders(old, updated) {
			next.replaceCue(old, updated)
		} else {
			next.Cues[id] = updated
		}
		before, after = old, updated
		return next, nil
	})
	if err != nil {
		return cue.Cue{}, err
	}

	s.notifyChanged(ctr, after)
	if after.Linked != "" && !before.Template().Equal(after.Template()) {
		s.propagate(after.Linked, after.Template(), ctr, id)
	}
	return after, nil
}

// reorders reports whether the edit moves the cue in the canonical order or
// the interval index.
func reorders(a, b cue.Cue) bool {
	return a.Start != b.Start || a.End != b.End || a.Section != b.Section || a.Comment != b.Comment
}

// SetEvent replaces the configuration of one event.
func (s *Show) SetEvent(ctr *Container, id uuid.UUID, kind cue.EventKind, cfg cue.EventConfig) (cue.Cue, error) {
	if err := cfg.Validate(kind); err != nil {
		return cue.Cue{}, &Error{Code: ErrCodeInvalidRange, Message: err.Error(), Container: ctr.name, Cue: id}
	}
	return s.UpdateCue(ctr, id, func(c cue.Cue) cue.Cue {
		c.Events[kind] = cfg
		return c
	})
}

// SetExpression replaces the source of one expression. Blank source removes it.
func (s *Show) SetExpression(ctr *Container, id uuid.UUID, kind cue.ExpressionKind, source string) (cue.Cue, error) {
	return s.UpdateCue(ctr, id, func(c cue.Cue) cue.Cue {
		if source == "" {
			delete(c.Expressions, kind)
		} else {
			c.Expressions[kind] = source
		}
		return c
	})
}

// SetHue changes the display hue.
func (s *Show) SetHue(ctr *Container, id uuid.UUID, hue float64) (cue.Cue, error) {
	return s.UpdateCue(ctr, id, func(c cue.Cue) cue.Cue {
		c.Hue = hue
		return c
	})
}

// SetComment changes the comment.
func (s *Show) SetComment(ctr *Container, id uuid.UUID, comment string) (cue.Cue, error) {
	return s.UpdateCue(ctr, id, func(c cue.Cue) cue.Cue {
		c.Comment = comment
		return c
	})
}

// MoveCue shifts a cue to begin at start, keeping its length and clamping it
// inside the container.
func (s *Show) MoveCue(ctr *Container, id uuid.UUID, start int) (cue.Cue, error) {
	maxEnd := ctr.Snapshot().MaxEnd
	return s.UpdateCue(ctr, id, func(c cue.Cue) cue.Cue {
		length := c.End - c.Start
		start = max(start, 1)
		if limit := maxEnd(c.Section); limit > 0 {
			start = min(start, max(limit-length, 1))
		}
		c.Start, c.End = start, start+length
		return c
	})
}

// ResizeCue sets both ends of a cue, clamping them inside the container and
// keeping at least one beat.
func (s *Show) ResizeCue(ctr *Container, id uuid.UUID, start, end int) (cue.Cue, error) {
	maxEnd := ctr.Snapshot().MaxEnd
	return s.UpdateCue(ctr, id, func(c cue.Cue) cue.Cue {
		c.Start, c.End = clampRange(start, end, maxEnd(c.Section))
		return c
	})
}

func clampRange(start, end, limit int) (int, int) {
	start = max(start, 1)
	if limit > 0 {
		end = min(end, limit)
		start = min(start, limit-1)
	}
	if end <= start {
		end = start + 1
	}
	return start, end
}

// DuplicateCue copies a cue under a fresh UUID, keeping its range and link.
func (s *Show) DuplicateCue(ctr *Container, id uuid.UUID) (cue.Cue, error) {
	src, ok := ctr.Snapshot().Cue(id)
	if !ok {
		return cue.Cue{}, cueNotFound(ctr.name, id)
	}
	dup := src.Clone()
	dup.UUID = uuid.New()
	return s.AddCue(ctr, dup)
}

// DeleteCue removes a cue. Unsaved expression editors on it veto the
// deletion unless force is set. Removal and the end of playback membership
// happen in one swap; observers then end whatever that swap took away.
func (s *Show) DeleteCue(ctr *Container, id uuid.UUID, force bool) (cue.Cue, error) {
	if _, ok := ctr.Snapshot().Cue(id); !ok {
		return cue.Cue{}, cueNotFound(ctr.name, id)
	}

	match := func(k EditorKey) bool { return k.Container == ctr.name && k.Cue == id }
	if err := s.veto(match, force, &Error{Message: "cue has unsaved expression editors", Container: ctr.name, Cue: id}); err != nil {
		return cue.Cue{}, err
	}

	var last *State
	_, err := ctr.Update(func(cur *State) (*State, error) {
		if _, ok := cur.Cues[id]; !ok {
			return nil, cueNotFound(ctr.name, id)
		}
		last = cur
		next := cur.Clone()
		delete(next.Cues, id)
		next.SetCues(next.Cues)
		next.Runtime.Forget(id)
		return next, nil
	})
	if err != nil {
		return cue.Cue{}, err
	}

	c := last.Cues[id]
	for _, o := range s.observerList() {
		o.CueRemoved(ctr, last, c)
	}
	s.dropPanels(ctr.name, id)
	s.logger.Debug("cue deleted", "container", ctr.name, "cue", id)
	return c, nil
}

// CuesOverlapping returns the cues of section intersecting [from, to).
func (s *Show) CuesOverlapping(ctr *Container, section cue.SectionTag, from, to int) []cue.Cue {
	return ctr.Snapshot().Overlapping(section, from, to)
}
