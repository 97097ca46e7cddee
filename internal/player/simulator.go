package player

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/roach88/beatcue/internal/cue"
)

// Default simulation cadences.
const (
	DefaultActiveTick     = time.Millisecond
	DefaultIdleTick       = 250 * time.Millisecond
	DefaultStatusInterval = 200 * time.Millisecond
)

// VirtualPlayer configures a simulated player.
type VirtualPlayer struct {
	Number    int
	Container string
	Section   cue.SectionTag
	BPM       float64

	// Beats stops playback when the position passes the end. Zero is unbounded.
	Beats int
}

type virtual struct {
	cfg     VirtualPlayer
	playing bool
	posMs   float64
	beat    int
	since   time.Time
	lastPub time.Time
}

func (v *virtual) beatAt(ms float64) int {
	return 1 + int(ms*v.cfg.BPM/60000)
}

func (v *virtual) beatStart(beat int) float64 {
	return float64(beat-1) * 60000 / v.cfg.BPM
}

func (v *virtual) status(onBeat bool) Status {
	return Status{
		Player:    v.cfg.Number,
		Container: v.cfg.Container,
		Section:   v.cfg.Section,
		Beat:      v.beat,
		TimeMs:    int64(v.posMs),
		Playing:   v.playing,
		OnBeat:    onBeat,
		BPM:       v.cfg.BPM,
	}
}

// Simulator drives virtual players and publishes their statuses through a
// Tracker, the same path real player updates take.
type Simulator struct {
	tracker        *Tracker
	clock          clock.Clock
	logger         *slog.Logger
	activeTick     time.Duration
	idleTick       time.Duration
	statusInterval time.Duration

	mu      sync.Mutex
	players map[int]*virtual
	wake    chan struct{}
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) SimulatorOption {
	return func(s *Simulator) { s.clock = c }
}

// WithTicks sets the loop cadence while any virtual player plays and while none do.
func WithTicks(active, idle time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if active > 0 {
			s.activeTick = active
		}
		if idle > 0 {
			s.idleTick = idle
		}
	}
}

// WithStatusInterval sets how often a playing virtual player republishes
// its position between beats.
func WithStatusInterval(d time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if d > 0 {
			s.statusInterval = d
		}
	}
}

// WithSimulatorLogger sets the logger.
func WithSimulatorLogger(logger *slog.Logger) SimulatorOption {
	return func(s *Simulator) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSimulator returns a simulator publishing to tracker.
func NewSimulator(tracker *Tracker, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		tracker:        tracker,
		clock:          clock.RealClock{},
		logger:         slog.Default(),
		activeTick:     DefaultActiveTick,
		idleTick:       DefaultIdleTick,
		statusInterval: DefaultStatusInterval,
		players:        make(map[int]*virtual),
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add creates a stopped virtual player positioned on beat 1.
func (s *Simulator) Add(vp VirtualPlayer) error {
	if vp.BPM <= 0 {
		return fmt.Errorf("virtual player %d: bpm must be positive", vp.Number)
	}
	s.mu.Lock()
	if _, ok := s.players[vp.Number]; ok {
		s.mu.Unlock()
		return fmt.Errorf("virtual player %d already exists", vp.Number)
	}
	v := &virtual{cfg: vp, beat: 1}
	s.players[vp.Number] = v
	st := v.status(false)
	s.mu.Unlock()

	s.logger.Info("virtual player added", "player", vp.Number, "container", vp.Container, "bpm", vp.BPM)
	s.tracker.Publish(st)
	return nil
}

// Remove drops a virtual player; listeners see it as lost.
func (s *Simulator) Remove(number int) {
	s.mu.Lock()
	_, ok := s.players[number]
	delete(s.players, number)
	s.mu.Unlock()
	if ok {
		s.tracker.Lose(number)
	}
}

// Play starts playback. Starting exactly on a beat is reported as on-beat.
func (s *Simulator) Play(number int) error {
	return s.control(number, func(v *virtual, now time.Time) Status {
		v.playing = true
		v.since = now
		v.lastPub = now
		return v.status(v.posMs == v.beatStart(v.beat))
	})
}

// Stop halts playback in place.
func (s *Simulator) Stop(number int) error {
	return s.control(number, func(v *virtual, now time.Time) Status {
		v.playing = false
		v.lastPub = now
		return v.status(false)
	})
}

// Seek jumps to the start of beat. A seek is never reported as on-beat.
func (s *Simulator) Seek(number, beat int) error {
	return s.control(number, func(v *virtual, now time.Time) Status {
		v.beat = max(beat, 1)
		v.posMs = v.beatStart(v.beat)
		v.since = now
		v.lastPub = now
		return v.status(false)
	})
}

func (s *Simulator) control(number int, fn func(v *virtual, now time.Time) Status) error {
	s.mu.Lock()
	v, ok := s.players[number]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("no virtual player %d", number)
	}
	st := fn(v, s.clock.Now())
	s.mu.Unlock()

	s.tracker.Publish(st)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Active reports whether any virtual player is playing.
func (s *Simulator) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.players {
		if v.playing {
			return true
		}
	}
	return false
}

// Run advances virtual players until ctx ends, ticking quickly while any of
// them plays and slowly otherwise.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Debug("simulation loop starting")
	for {
		interval := s.idleTick
		if s.Active() {
			interval = s.activeTick
		}
		timer := s.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Debug("simulation loop stopping")
			return nil
		case <-s.wake:
			timer.Stop()
		case <-timer.C():
		}
		s.advance(s.clock.Now())
	}
}

func (s *Simulator) advance(now time.Time) {
	var out []Status
	s.mu.Lock()
	for _, n := range slices.Sorted(maps.Keys(s.players)) {
		v := s.players[n]
		if !v.playing {
			continue
		}
		v.posMs += float64(now.Sub(v.since)) / float64(time.Millisecond)
		v.since = now

		beat := v.beatAt(v.posMs)
		if v.cfg.Beats > 0 && beat > v.cfg.Beats {
			v.playing = false
			v.beat = v.cfg.Beats
			v.posMs = v.beatStart(v.beat)
			v.lastPub = now
			out = append(out, v.status(false))
			continue
		}
		switch {
		case beat != v.beat:
			v.beat = beat
			v.lastPub = now
			out = append(out, v.status(true))
		case now.Sub(v.lastPub) >= s.statusInterval:
			v.lastPub = now
			out = append(out, v.status(false))
		}
	}
	s.mu.Unlock()

	for _, st := range out {
		s.tracker.Publish(st)
	}
}
