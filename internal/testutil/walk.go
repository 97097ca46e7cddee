// Package testutil holds deterministic fixtures shared by package tests.
package testutil

import (
	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/player"
)

// Walk returns the statuses a playing player reports when it lands on each
// beat from from to to inclusive. TimeMs follows bpm from beat 1.
func Walk(p int, container string, section cue.SectionTag, bpm float64, from, to int) []player.Status {
	out := make([]player.Status, 0, max(to-from+1, 0))
	for beat := from; beat <= to; beat++ {
		out = append(out, player.Status{
			Player:    p,
			Container: container,
			Section:   section,
			Beat:      beat,
			TimeMs:    beatTime(beat, bpm),
			Playing:   true,
			OnBeat:    true,
			BPM:       bpm,
		})
	}
	return out
}

// Stop returns the status reported when a player halts on beat.
func Stop(p int, container string, section cue.SectionTag, bpm float64, beat int) player.Status {
	return player.Status{
		Player:    p,
		Container: container,
		Section:   section,
		Beat:      beat,
		TimeMs:    beatTime(beat, bpm),
		BPM:       bpm,
	}
}

// Leave returns the status of a player that has unloaded its container.
func Leave(p int) player.Status {
	return player.Status{Player: p}
}

func beatTime(beat int, bpm float64) int64 {
	if bpm <= 0 || beat < 1 {
		return 0
	}
	return int64(float64(beat-1) * 60000 / bpm)
}
