package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/roach88/beatcue/internal/cue"
)

type recordingListener struct {
	mu       sync.Mutex
	statuses []Status
	lost     []int
}

func (l *recordingListener) StatusChanged(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, s)
}

func (l *recordingListener) PlayerLost(player int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lost = append(l.lost, player)
}

func (l *recordingListener) seen(match func(Status) bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.statuses {
		if match(s) {
			return true
		}
	}
	return false
}

func TestTracker_PublishAndQuery(t *testing.T) {
	tr := NewTracker()
	l := &recordingListener{}
	remove := tr.AddListener(l)

	tr.Publish(Status{Player: 2, Container: "Track 1", Beat: 5, TimeMs: 2000, Playing: true})
	tr.Publish(Status{Player: 1, Container: "Track 1", Beat: 1})

	pos, ok := tr.LatestPosition(2)
	require.True(t, ok)
	assert.Equal(t, Position{TimeMs: 2000, Beat: 5, Playing: true}, pos)
	assert.Equal(t, []int{1, 2}, tr.Players())
	require.Len(t, tr.Playing(), 1)
	assert.Equal(t, 2, tr.Playing()[0].Player)

	tr.Lose(2)
	tr.Lose(7)
	_, ok = tr.LatestStatus(2)
	assert.False(t, ok)
	assert.Equal(t, []int{2}, l.lost)

	remove()
	tr.Publish(Status{Player: 3})
	assert.Len(t, l.statuses, 2)
}

func TestParseStatus_RoundTrip(t *testing.T) {
	want := Status{
		Player:    3,
		Container: "Phrase",
		Section:   cue.SectionLoop,
		Beat:      9,
		TimeMs:    4500,
		Playing:   true,
		OnBeat:    true,
		BPM:       128,
	}
	got, err := ParseStatus(StatusMessage(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseStatus_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []any
	}{
		{"too few", []any{int32(1), "Track"}},
		{"bad player", []any{"one", "Track", "", int32(1), int32(0), true, false}},
		{"bad section", []any{int32(1), "Track", "chorus", int32(1), int32(0), true, false}},
		{"bad playing", []any{int32(1), "Track", "", int32(1), int32(0), "yes", false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := osc.NewMessage(StatusAddress, tt.args...)
			_, err := ParseStatus(msg)
			assert.Error(t, err)
		})
	}
}

func TestParseStatus_IntegerFlags(t *testing.T) {
	msg := osc.NewMessage(StatusAddress, int32(1), "Track", "", int32(4), int64(1500), int32(1), int32(0))
	got, err := ParseStatus(msg)
	require.NoError(t, err)
	assert.True(t, got.Playing)
	assert.False(t, got.OnBeat)
	assert.Equal(t, int64(1500), got.TimeMs)
}

func TestOSCReceiver_Dispatch(t *testing.T) {
	tr := NewTracker()
	l := &recordingListener{}
	tr.AddListener(l)
	r := &OSCReceiver{Tracker: tr}
	d := r.Dispatcher()

	d.Dispatch(StatusMessage(Status{Player: 1, Container: "Track 1", Beat: 2, Playing: true}))
	d.Dispatch(osc.NewMessage(StatusAddress, "garbage"))
	d.Dispatch(osc.NewMessage(LostAddress, int32(1)))

	require.Len(t, l.statuses, 1)
	assert.Equal(t, 2, l.statuses[0].Beat)
	assert.Equal(t, []int{1}, l.lost)
}

func TestSimulator_PlayPublishesBeats(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(0, 0))
	tr := NewTracker()
	l := &recordingListener{}
	tr.AddListener(l)
	sim := NewSimulator(tr, WithClock(fc))

	require.NoError(t, sim.Add(VirtualPlayer{Number: 1, Container: "Track 1", BPM: 120}))
	assert.Error(t, sim.Add(VirtualPlayer{Number: 1, Container: "Track 1", BPM: 120}))
	assert.Error(t, sim.Add(VirtualPlayer{Number: 2, BPM: 0}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	require.NoError(t, sim.Play(1))
	assert.True(t, l.seen(func(s Status) bool { return s.Playing && s.Beat == 1 && s.OnBeat }))
	assert.True(t, sim.Active())

	// 120 bpm is one beat every 500ms.
	require.Eventually(t, func() bool {
		if fc.HasWaiters() {
			fc.Step(500 * time.Millisecond)
		}
		return l.seen(func(s Status) bool { return s.Beat == 2 && s.OnBeat })
	}, time.Second, time.Millisecond)

	require.NoError(t, sim.Stop(1))
	assert.False(t, sim.Active())

	cancel()
	require.NoError(t, <-done)
}

func TestSimulator_StopsAtEnd(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(0, 0))
	tr := NewTracker()
	sim := NewSimulator(tr, WithClock(fc))
	require.NoError(t, sim.Add(VirtualPlayer{Number: 1, Container: "Track 1", BPM: 60, Beats: 2}))
	require.NoError(t, sim.Play(1))

	fc.Step(5 * time.Second)
	sim.advance(fc.Now())

	st, ok := tr.LatestStatus(1)
	require.True(t, ok)
	assert.False(t, st.Playing)
	assert.Equal(t, 2, st.Beat)
}

func TestSimulator_SeekIsLate(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(0, 0))
	tr := NewTracker()
	sim := NewSimulator(tr, WithClock(fc))
	require.NoError(t, sim.Add(VirtualPlayer{Number: 1, Container: "Track 1", BPM: 120}))

	require.NoError(t, sim.Seek(1, 8))
	st, _ := tr.LatestStatus(1)
	assert.Equal(t, 8, st.Beat)
	assert.Equal(t, int64(3500), st.TimeMs)
	assert.False(t, st.OnBeat)

	require.NoError(t, sim.Play(1))
	st, _ = tr.LatestStatus(1)
	assert.True(t, st.OnBeat)

	fc.Step(250 * time.Millisecond)
	sim.advance(fc.Now())
	st, _ = tr.LatestStatus(1)
	assert.Equal(t, 8, st.Beat)
	assert.Equal(t, int64(3750), st.TimeMs)
	assert.False(t, st.OnBeat)

	sim.Remove(1)
	_, ok := tr.LatestStatus(1)
	assert.False(t, ok)
	assert.Error(t, sim.Play(1))
}
