package player

import (
	"fmt"

	"github.com/roach88/beatcue/internal/cue"
)

// Position is the compact playback position of one player.
type Position struct {
	TimeMs  int64
	Beat    int
	Playing bool
}

// Status is a full status update from one player.
type Status struct {
	Player int

	// Container names the track loaded on the player, or the phrase trigger
	// whose phrase is playing.
	Container string

	// Section is the phrase trigger section being played; empty for tracks.
	Section cue.SectionTag

	// Beat is the 1-based beat within the track or section. Zero means the
	// position is unknown.
	Beat int

	TimeMs  int64
	Playing bool

	// OnBeat marks an update produced by a beat packet, meaning the position
	// sits exactly on the start of Beat.
	OnBeat bool

	BPM float64
}

// Position returns the compact form of s.
func (s Status) Position() Position {
	return Position{TimeMs: s.TimeMs, Beat: s.Beat, Playing: s.Playing}
}

// Map returns s as a plain map for expression bindings.
func (s Status) Map() map[string]any {
	return map[string]any{
		"player":    s.Player,
		"container": s.Container,
		"section":   string(s.Section),
		"beat":      s.Beat,
		"time_ms":   s.TimeMs,
		"playing":   s.Playing,
		"on_beat":   s.OnBeat,
		"bpm":       s.BPM,
	}
}

func (s Status) String() string {
	state := "stopped"
	if s.Playing {
		state = "playing"
	}
	if s.Section != cue.SectionNone {
		return fmt.Sprintf("player %d %s/%s beat %d %s", s.Player, s.Container, s.Section, s.Beat, state)
	}
	return fmt.Sprintf("player %d %s beat %d %s", s.Player, s.Container, s.Beat, state)
}

// Source answers pull-based position queries.
type Source interface {
	LatestPosition(player int) (Position, bool)
	LatestStatus(player int) (Status, bool)
}

// Listener is told about status changes and lost players.
type Listener interface {
	StatusChanged(s Status)
	PlayerLost(player int)
}
