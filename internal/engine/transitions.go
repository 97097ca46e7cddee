package engine

import (
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/player"
	"github.com/roach88/beatcue/internal/show"
)

// transition is one event a status update caused for one cue.
type transition struct {
	event  cue.ExpressionKind
	cue    cue.Cue
	player int

	// config is the event whose message configuration applies. It is empty
	// for beat and tracked, which only run expressions.
	config cue.EventKind
}

// exits reports whether the transition belongs to the exit class, which
// sends note-off and CC value 0.
func (t transition) exits() bool {
	return t.event == cue.ExprExited || t.event == cue.ExprEnded
}

type membership struct {
	entered bool
	started bool
}

// step applies st to the runtime state rt of a container and returns the
// resulting transitions: exit-class events first, then entries, then the
// informational beat and tracked events, each group in canonical cue order.
//
// A cue counts as entered while any player is inside it and as started while
// any playing player is inside it, so with several players on the same cue
// only the first in and the last out fire.
func step(state *show.State, rt *show.Runtime, st player.Status) []transition {
	p := st.Player
	inside := make(map[uuid.UUID]bool)
	if st.Beat > 0 {
		for _, c := range state.At(st.Section, st.Beat) {
			inside[c.UUID] = true
		}
	}

	var affected []cue.Cue
	seen := make(map[uuid.UUID]bool)
	for _, id := range rt.EnteredCues(p) {
		seen[id] = true
	}
	for id := range inside {
		seen[id] = true
	}
	for id := range seen {
		if c, ok := state.Cues[id]; ok {
			affected = append(affected, c)
		} else {
			rt.Exit(p, id)
		}
	}
	slices.SortFunc(affected, cue.Compare)

	before := make(map[uuid.UUID]membership, len(affected))
	for _, c := range affected {
		before[c.UUID] = membership{entered: rt.CueEntered(c.UUID), started: rt.CueStarted(c.UUID)}
	}

	rt.Playing[p] = st.Playing
	for _, c := range affected {
		if inside[c.UUID] {
			rt.Enter(p, c.UUID)
		} else {
			rt.Exit(p, c.UUID)
		}
	}

	var exits, entries, info []transition
	for _, c := range affected {
		b := before[c.UUID]
		a := membership{entered: rt.CueEntered(c.UUID), started: rt.CueStarted(c.UUID)}

		if b.started && !a.started {
			kind, ok := rt.LastEntry[c.UUID]
			if !ok {
				kind = cue.EventStartedOnBeat
			}
			delete(rt.LastEntry, c.UUID)
			exits = append(exits, transition{event: cue.ExprEnded, cue: c, player: p, config: kind})
		}
		if b.entered && !a.entered {
			exits = append(exits, transition{event: cue.ExprExited, cue: c, player: p, config: cue.EventEntered})
		}
		if !b.entered && a.entered {
			entries = append(entries, transition{event: cue.ExprEntered, cue: c, player: p, config: cue.EventEntered})
		}
		if !b.started && a.started {
			// Starting on any beat boundary inside the range is on time;
			// starting between beats or after a seek is late.
			kind := cue.EventStartedLate
			if st.OnBeat {
				kind = cue.EventStartedOnBeat
			}
			rt.LastEntry[c.UUID] = kind
			entries = append(entries, transition{event: cue.ExpressionKind(kind), cue: c, player: p, config: kind})
		}
		if inside[c.UUID] {
			if st.OnBeat && st.Playing {
				info = append(info, transition{event: cue.ExprBeat, cue: c, player: p})
			}
			info = append(info, transition{event: cue.ExprTracked, cue: c, player: p})
		}
	}

	if st.Beat <= 0 && len(rt.Entered[p]) == 0 {
		delete(rt.Playing, p)
	}

	out := make([]transition, 0, len(exits)+len(entries)+len(info))
	out = append(out, exits...)
	out = append(out, entries...)
	return append(out, info...)
}

// leaving returns the transitions that end every active state of c, as
// when the cue is deleted out from under its players.
func leaving(rt show.Runtime, c cue.Cue) []transition {
	players := rt.Players(c.UUID)
	if len(players) == 0 {
		return nil
	}
	p := players[0]
	var out []transition
	if rt.CueStarted(c.UUID) {
		kind, ok := rt.LastEntry[c.UUID]
		if !ok {
			kind = cue.EventStartedOnBeat
		}
		out = append(out, transition{event: cue.ExprEnded, cue: c, player: p, config: kind})
	}
	return append(out, transition{event: cue.ExprExited, cue: c, player: p, config: cue.EventEntered})
}
