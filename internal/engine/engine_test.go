package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/expr"
	"github.com/roach88/beatcue/internal/midi"
	"github.com/roach88/beatcue/internal/player"
	"github.com/roach88/beatcue/internal/show"
	"github.com/roach88/beatcue/internal/store"
	"github.com/roach88/beatcue/internal/testutil"
)

const testOutput = "rec"

type fixture struct {
	show   *show.Show
	track  *show.Container
	rec    *midi.Recorder
	engine *Engine

	mu    sync.Mutex
	fired []Fired
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s := show.NewShow()
	track, err := s.AddTrack("Intro", 64, testOutput)
	require.NoError(t, err)

	rec := midi.NewRecorder(testOutput)
	outputs := midi.NewRegistry(nil, nil)
	outputs.Register(rec)

	f := &fixture{show: s, track: track, rec: rec}
	f.engine = New(s, outputs, opts...)
	t.Cleanup(f.engine.Close)
	f.engine.Subscribe(func(ev Fired) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.fired = append(f.fired, ev)
	})
	return f
}

func (f *fixture) addCue(t *testing.T, start, end int, edit func(c *cue.Cue)) cue.Cue {
	t.Helper()
	c := cue.New(start, end, cue.SectionNone)
	if edit != nil {
		edit(&c)
	}
	added, err := f.show.AddCue(f.track, c)
	require.NoError(t, err)
	return added
}

func (f *fixture) process(t *testing.T, st player.Status) {
	t.Helper()
	if st.Container == "" {
		st.Container = f.track.Name()
	}
	if st.Player == 0 {
		st.Player = 1
	}
	require.NoError(t, f.engine.Process(context.Background(), st))
}

// events returns fired event kinds, without tracked updates.
func (f *fixture) events() []cue.ExpressionKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []cue.ExpressionKind
	for _, ev := range f.fired {
		if ev.Event != cue.ExprTracked {
			out = append(out, ev.Event)
		}
	}
	return out
}

func (f *fixture) last(kind cue.ExpressionKind) (Fired, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.fired) - 1; i >= 0; i-- {
		if f.fired[i].Event == kind {
			return f.fired[i], true
		}
	}
	return Fired{}, false
}

func (f *fixture) reset() {
	f.mu.Lock()
	f.fired = nil
	f.mu.Unlock()
	f.rec.Reset()
}

func noteOn(n, v, ch int) midi.Message {
	return midi.Message{Output: testOutput, Kind: midi.KindNoteOn, Number: n, Value: v, Channel: ch}
}

func noteOff(n, ch int) midi.Message {
	return midi.Message{Output: testOutput, Kind: midi.KindNoteOff, Number: n, Value: 0, Channel: ch}
}

func TestEngine_EnteredExitedSendNotes(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 2)
	})

	f.process(t, player.Status{Beat: 12})
	assert.Equal(t, []midi.Message{noteOn(40, 127, 2)}, f.rec.Messages())
	assert.Equal(t, []cue.ExpressionKind{cue.ExprEntered}, f.events())

	f.process(t, player.Status{Beat: 19})
	assert.Len(t, f.rec.Messages(), 1, "moving inside the cue sends nothing")

	f.process(t, player.Status{Beat: 20})
	assert.Equal(t, []midi.Message{noteOn(40, 127, 2), noteOff(40, 2)}, f.rec.Messages())
	assert.Equal(t, []cue.ExpressionKind{cue.ExprEntered, cue.ExprExited}, f.events())
}

func TestEngine_ControlChangeValues(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 5, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.EventConfig{Message: cue.MessageCC, Note: 7, Channel: 16}
	})

	f.process(t, player.Status{Beat: 1})
	f.process(t, player.Status{Beat: 6})
	assert.Equal(t, []midi.Message{
		{Output: testOutput, Kind: midi.KindCC, Number: 7, Value: 127, Channel: 16},
		{Output: testOutput, Kind: midi.KindCC, Number: 7, Value: 0, Channel: 16},
	}, f.rec.Messages())
}

func TestEngine_StartedOnBeat(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(60, 1)
		c.Events[cue.EventStartedLate] = cue.NoteOn(61, 1)
	})

	f.process(t, player.Status{Beat: 10, Playing: true, OnBeat: true})

	assert.Equal(t, []cue.ExpressionKind{cue.ExprEntered, cue.ExprStartedOnBeat, cue.ExprBeat}, f.events())
	assert.Equal(t, []midi.Message{noteOn(60, 127, 1)}, f.rec.Messages())
	assert.Equal(t, cue.EventStartedOnBeat, f.track.Snapshot().Runtime.LastEntry[f.track.Snapshot().Sorted()[0].UUID])
}

func TestEngine_EndedPairsWithStartedLate(t *testing.T) {
	f := newFixture(t)
	c := f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(60, 1)
		c.Events[cue.EventStartedLate] = cue.NoteOn(61, 1)
	})

	// Between beats.
	f.process(t, player.Status{Beat: 12, Playing: true, OnBeat: false})
	assert.Equal(t, []midi.Message{noteOn(61, 127, 1)}, f.rec.Messages())
	assert.Equal(t, cue.EventStartedLate, f.track.Snapshot().Runtime.LastEntry[c.UUID])

	f.process(t, player.Status{Beat: 12, Playing: false})
	assert.Equal(t, []midi.Message{noteOn(61, 127, 1), noteOff(61, 1)}, f.rec.Messages())

	ended, ok := f.last(cue.ExprEnded)
	require.True(t, ok)
	assert.Equal(t, cue.EventStartedLate, ended.Config)
	assert.NotContains(t, f.track.Snapshot().Runtime.LastEntry, c.UUID)
	assert.True(t, f.track.Snapshot().Runtime.CueEntered(c.UUID), "stopping inside the cue keeps it entered")
}

func TestEngine_StartedOnInteriorBeat(t *testing.T) {
	f := newFixture(t)
	c := f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(60, 1)
		c.Events[cue.EventStartedLate] = cue.NoteOn(61, 1)
	})

	f.process(t, player.Status{Beat: 12, Playing: false})
	f.process(t, player.Status{Beat: 12, Playing: true, OnBeat: true})

	assert.Equal(t, []midi.Message{noteOn(60, 127, 1)}, f.rec.Messages())
	assert.Equal(t, cue.EventStartedOnBeat, f.track.Snapshot().Runtime.LastEntry[c.UUID])

	f.process(t, player.Status{Beat: 14, Playing: false})
	ended, ok := f.last(cue.ExprEnded)
	require.True(t, ok)
	assert.Equal(t, cue.EventStartedOnBeat, ended.Config)
	assert.Equal(t, []midi.Message{noteOn(60, 127, 1), noteOff(60, 1)}, f.rec.Messages())
}

func TestEngine_SeekIsStartedLate(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(60, 1)
		c.Events[cue.EventStartedLate] = cue.NoteOn(61, 1)
	})

	f.process(t, player.Status{Beat: 10, Playing: true, OnBeat: false})
	assert.Equal(t, []midi.Message{noteOn(61, 127, 1)}, f.rec.Messages())
}

func TestEngine_SameResolvesToStartedOnBeat(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(60, 3)
		c.Events[cue.EventStartedLate] = cue.EventConfig{Message: cue.MessageSame, Note: 1, Channel: 1}
	})

	f.process(t, player.Status{Beat: 15, Playing: true})
	assert.Equal(t, []midi.Message{noteOn(60, 127, 3)}, f.rec.Messages())

	late, ok := f.last(cue.ExprStartedLate)
	require.True(t, ok)
	assert.Equal(t, cue.EventStartedOnBeat, late.Config)
	assert.Equal(t, cue.MessageNote, late.Message)

	f.process(t, player.Status{Beat: 15, Playing: false})
	assert.Equal(t, []midi.Message{noteOn(60, 127, 3), noteOff(60, 3)}, f.rec.Messages())
}

func TestEngine_TransitionOrder(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 5, nil)
	f.addCue(t, 5, 9, nil)

	f.process(t, player.Status{Beat: 4, Playing: true})
	f.reset()

	f.process(t, player.Status{Beat: 5, Playing: true, OnBeat: true})
	assert.Equal(t, []cue.ExpressionKind{
		cue.ExprEnded, cue.ExprExited,
		cue.ExprEntered, cue.ExprStartedOnBeat,
		cue.ExprBeat,
	}, f.events())
}

func TestEngine_CustomExpressionWritesGlobals(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.EventConfig{Message: cue.MessageCustom, Note: 1, Channel: 1}
		c.Expressions[cue.ExprEntered] = `globals.hits = (globals.hits or 0) + 1
locals.last = container
return status.beat`
		c.Expressions[cue.ExprExited] = `globals.hits = globals.hits - 1`
	})

	f.process(t, player.Status{Beat: 12})

	hits, ok := f.show.Globals().Get("hits")
	require.True(t, ok)
	assert.Equal(t, 1, hits)
	last, ok := f.track.Locals().Get("last")
	require.True(t, ok)
	assert.Equal(t, "Intro", last)

	entered, ok := f.last(cue.ExprEntered)
	require.True(t, ok)
	assert.Equal(t, 12, entered.Result)
	assert.Empty(t, f.rec.Messages(), "custom events send no midi")

	f.process(t, player.Status{Beat: 30})
	hits, _ = f.show.Globals().Get("hits")
	assert.Equal(t, 0, hits)
}

func TestEngine_EndedRunsExitExpression(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.EventConfig{Message: cue.MessageCustom, Note: 1, Channel: 1}
		c.Events[cue.EventStartedLate] = cue.EventConfig{Message: cue.MessageSame, Note: 1, Channel: 1}
		c.Expressions[cue.ExprStartedOnBeat] = `return "start"`
		c.Expressions[cue.ExprEnded] = `return "end"`
	})

	f.process(t, player.Status{Beat: 12, Playing: true})
	late, ok := f.last(cue.ExprStartedLate)
	require.True(t, ok)
	assert.Equal(t, "start", late.Result)

	f.process(t, player.Status{Beat: 12, Playing: false})
	ended, ok := f.last(cue.ExprEnded)
	require.True(t, ok)
	assert.Equal(t, cue.EventStartedOnBeat, ended.Config)
	assert.Equal(t, "end", ended.Result)
}

func TestEngine_BeatExpression(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 9, func(c *cue.Cue) {
		c.Expressions[cue.ExprBeat] = `return status.beat * 10`
	})

	for beat := 1; beat <= 3; beat++ {
		f.process(t, player.Status{Beat: beat, Playing: true, OnBeat: true})
		ev, ok := f.last(cue.ExprBeat)
		require.True(t, ok)
		assert.Equal(t, beat*10, ev.Result)
	}

	f.reset()
	f.process(t, player.Status{Beat: 4, Playing: false, OnBeat: true})
	_, ok := f.last(cue.ExprBeat)
	assert.False(t, ok, "no beat expression while stopped")
}

func TestEngine_ExpressionErrorIsSwallowed(t *testing.T) {
	var mu sync.Mutex
	var alerts []string
	alerter := expr.AlertFunc(func(title, message string) {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, title)
	})

	f := newFixture(t, WithAlerts(alerter, true))
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.EventConfig{Message: cue.MessageCustom, Note: 1, Channel: 1}
		c.Expressions[cue.ExprEntered] = `error("boom")`
		c.Events[cue.EventStartedLate] = cue.NoteOn(61, 1)
	})

	f.process(t, player.Status{Beat: 12, Playing: true})

	assert.Equal(t, []cue.ExpressionKind{cue.ExprEntered, cue.ExprStartedLate}, f.events())
	assert.Equal(t, []midi.Message{noteOn(61, 127, 1)}, f.rec.Messages(), "later transitions still fire")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Expression failed"}, alerts)
}

func TestEngine_NoOutputIsSilent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.track.SetOutput(""))
	f.addCue(t, 1, 5, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
	})

	f.process(t, player.Status{Beat: 2})
	assert.Empty(t, f.rec.Messages())
	assert.Equal(t, []cue.ExpressionKind{cue.ExprEntered}, f.events())
}

func TestEngine_PlayersShareMembership(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
	})

	f.process(t, player.Status{Player: 1, Beat: 12})
	f.process(t, player.Status{Player: 2, Beat: 14})
	assert.Equal(t, []midi.Message{noteOn(40, 127, 1)}, f.rec.Messages(), "second player does not re-enter")

	f.process(t, player.Status{Player: 1, Beat: 25})
	assert.Len(t, f.rec.Messages(), 1, "cue stays entered while player 2 is inside")

	f.process(t, player.Status{Player: 2, Beat: 2})
	assert.Equal(t, []midi.Message{noteOn(40, 127, 1), noteOff(40, 1)}, f.rec.Messages())
}

func TestEngine_SectionsAreScoped(t *testing.T) {
	f := newFixture(t)
	phrase, err := f.show.AddPhraseTrigger("Phrase", map[cue.SectionTag]int{cue.SectionStart: 2, cue.SectionLoop: 2}, testOutput)
	require.NoError(t, err)
	c := cue.New(1, 5, cue.SectionLoop)
	c.Events[cue.EventEntered] = cue.NoteOn(50, 1)
	_, err = f.show.AddCue(phrase, c)
	require.NoError(t, err)

	f.process(t, player.Status{Container: "Phrase", Section: cue.SectionStart, Beat: 2})
	assert.Empty(t, f.rec.Messages())

	f.process(t, player.Status{Container: "Phrase", Section: cue.SectionLoop, Beat: 2})
	assert.Equal(t, []midi.Message{noteOn(50, 127, 1)}, f.rec.Messages())
}

func TestEngine_ContainerSwitchLeavesPrevious(t *testing.T) {
	f := newFixture(t)
	_, err := f.show.AddTrack("Outro", 64, testOutput)
	require.NoError(t, err)
	c := f.addCue(t, 1, 9, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
		c.Events[cue.EventStartedLate] = cue.NoteOn(41, 1)
	})

	f.process(t, player.Status{Beat: 3, Playing: true})
	f.process(t, player.Status{Container: "Outro", Beat: 3, Playing: true})

	assert.Equal(t, []midi.Message{
		noteOn(40, 127, 1), noteOn(41, 127, 1),
		noteOff(41, 1), noteOff(40, 1),
	}, f.rec.Messages())
	assert.False(t, f.track.Snapshot().Runtime.CueEntered(c.UUID))
}

func TestEngine_UnknownContainer(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Process(context.Background(), player.Status{Player: 1, Container: "nope", Beat: 1})
	require.Error(t, err)
	assert.True(t, IsUnknownContainer(err))
}

func TestEngine_LosePlayer(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 9, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
		c.Events[cue.EventStartedLate] = cue.NoteOn(41, 1)
	})
	f.process(t, player.Status{Beat: 3, Playing: true})
	f.reset()

	f.engine.LosePlayer(context.Background(), 1)
	assert.Equal(t, []cue.ExpressionKind{cue.ExprEnded, cue.ExprExited}, f.events())
	assert.Equal(t, []midi.Message{noteOff(41, 1), noteOff(40, 1)}, f.rec.Messages())

	f.reset()
	f.engine.LosePlayer(context.Background(), 1)
	assert.Empty(t, f.events(), "losing an unknown player is a no-op")
}

func TestEngine_DeleteActiveCueSendsEndAndExit(t *testing.T) {
	f := newFixture(t)
	c := f.addCue(t, 1, 9, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(42, 1)
		c.Expressions[cue.ExprBeat] = `return 1`
	})
	f.process(t, player.Status{Beat: 1, Playing: true, OnBeat: true})
	f.reset()

	_, err := f.show.DeleteCue(f.track, c.UUID, false)
	require.NoError(t, err)

	assert.Equal(t, []cue.ExpressionKind{cue.ExprEnded, cue.ExprExited}, f.events())
	assert.Equal(t, []midi.Message{noteOff(42, 1), noteOff(40, 1)}, f.rec.Messages())
	_, ok := f.engine.Expressions().Get(c.UUID, cue.ExprBeat)
	assert.False(t, ok, "expressions of deleted cues are dropped")

	f.reset()
	f.process(t, player.Status{Beat: 2, Playing: true})
	assert.Empty(t, f.events())
}

func TestEngine_RemoveContainerEndsActiveCues(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 9, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(42, 1)
	})
	f.process(t, player.Status{Beat: 1, Playing: true, OnBeat: true})
	f.reset()

	require.NoError(t, f.show.RemoveContainer("Intro", false))

	assert.Equal(t, []cue.ExpressionKind{cue.ExprEnded, cue.ExprExited}, f.events())
	assert.Equal(t, []midi.Message{noteOff(42, 1)}, f.rec.Messages())

	err := f.engine.Process(context.Background(), player.Status{Player: 1, Container: "Intro", Beat: 2, Playing: true})
	assert.True(t, IsUnknownContainer(err))
}

func TestEngine_DeleteDuringUpdatesLeavesNoHangingNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for round := 0; round < 40; round++ {
		c := f.addCue(t, 1, 9, func(c *cue.Cue) {
			c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
			c.Events[cue.EventStartedOnBeat] = cue.NoteOn(42, 1)
		})

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for beat := 1; ; beat = beat%12 + 1 {
				select {
				case <-stop:
					return
				default:
				}
				st := player.Status{Player: 1, Container: "Intro", Beat: beat, Playing: true, OnBeat: true}
				assert.NoError(t, f.engine.Process(ctx, st))
			}
		}()

		_, err := f.show.DeleteCue(f.track, c.UUID, false)
		require.NoError(t, err)
		close(stop)
		wg.Wait()
		require.NoError(t, f.engine.Process(ctx, player.Status{Player: 1, Container: "Intro"}))
		assert.False(t, f.track.Snapshot().Runtime.CueEntered(c.UUID))
	}

	on := map[int]int{}
	off := map[int]int{}
	for _, m := range f.rec.Messages() {
		switch m.Kind {
		case midi.KindNoteOn:
			on[m.Number]++
		case midi.KindNoteOff:
			off[m.Number]++
		}
	}
	assert.Equal(t, on, off, "every note-on is paired with a note-off")
}

func TestEngine_SimulateEvent(t *testing.T) {
	f := newFixture(t)
	c := f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(60, 1)
		c.Events[cue.EventStartedLate] = cue.NoteOn(61, 1)
	})
	ctx := context.Background()

	require.NoError(t, f.engine.SimulateEvent(ctx, f.track, c.UUID, cue.ExprStartedOnBeat, 0))
	assert.Equal(t, []midi.Message{noteOn(60, 127, 1)}, f.rec.Messages())
	ev, ok := f.last(cue.ExprStartedOnBeat)
	require.True(t, ok)
	assert.True(t, ev.Simulated)
	assert.False(t, f.track.Snapshot().Runtime.CueEntered(c.UUID), "simulation leaves playback state alone")

	require.NoError(t, f.engine.SimulateEvent(ctx, f.track, c.UUID, cue.ExprEnded, 0))
	assert.Equal(t, noteOff(60, 1), f.rec.Messages()[1])

	err := f.engine.SimulateEvent(ctx, f.track, uuid.New(), cue.ExprEntered, 0)
	assert.True(t, IsUnknownCue(err))

	err = f.engine.SimulateEvent(ctx, f.track, c.UUID, cue.ExpressionKind("bogus"), 0)
	require.Error(t, err)
}

func TestEngine_Enabled(t *testing.T) {
	f := newFixture(t)
	c := f.addCue(t, 1, 5, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
		c.Events[cue.EventStartedOnBeat] = cue.EventConfig{Message: cue.MessageCustom, Note: 1, Channel: 1}
		c.Events[cue.EventStartedLate] = cue.EventConfig{Message: cue.MessageSame, Note: 1, Channel: 1}
	})

	assert.True(t, f.engine.Enabled(f.track, c.UUID, cue.EventEntered))
	assert.False(t, f.engine.Enabled(f.track, c.UUID, cue.EventStartedOnBeat), "custom without expression")
	assert.False(t, f.engine.Enabled(f.track, c.UUID, cue.EventStartedLate), "same follows started-on-beat")

	_, err := f.show.SetExpression(f.track, c.UUID, cue.ExprStartedOnBeat, `return 1`)
	require.NoError(t, err)
	assert.True(t, f.engine.Enabled(f.track, c.UUID, cue.EventStartedOnBeat))
	assert.True(t, f.engine.Enabled(f.track, c.UUID, cue.EventStartedLate))

	_, err = f.show.SetExpression(f.track, c.UUID, cue.ExprStartedOnBeat, `return (`)
	require.NoError(t, err)
	assert.False(t, f.engine.Enabled(f.track, c.UUID, cue.EventStartedOnBeat), "compile failure disables the action")

	assert.False(t, f.engine.Enabled(f.track, uuid.New(), cue.EventEntered))
}

func TestEngine_Subscribe(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 5, nil)

	var count int
	unsubscribe := f.engine.Subscribe(func(Fired) { count++ })
	f.process(t, player.Status{Beat: 2})
	assert.Equal(t, 2, count, "entered and tracked")

	unsubscribe()
	f.process(t, player.Status{Beat: 8})
	assert.Equal(t, 2, count)
}

func TestEngine_ClockStampsInOrder(t *testing.T) {
	f := newFixture(t, WithClock(NewClockAt(100)))
	f.addCue(t, 1, 5, nil)
	f.process(t, player.Status{Beat: 2, Playing: true})

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.fired)
	for i, ev := range f.fired {
		assert.Equal(t, int64(101+i), ev.Seq)
	}
}

func TestEngine_JournalsFiredEvents(t *testing.T) {
	st, err := store.Open(t.TempDir() + "/journal.db")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	f := newFixture(t, WithStore(st))
	c := f.addCue(t, 10, 20, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 2)
	})
	f.process(t, player.Status{Beat: 10, Playing: true, OnBeat: true})
	require.NoError(t, f.engine.SimulateEvent(context.Background(), f.track, c.UUID, cue.ExprExited, 4))

	events, err := st.ReadFired(context.Background(), store.FiredFilter{})
	require.NoError(t, err)
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Event)
		assert.Equal(t, c.UUID.String(), ev.Cue)
		assert.Equal(t, "Intro", ev.Container)
	}
	assert.Equal(t, []string{"entered", "started-on-beat", "beat", "exited"}, kinds)
	assert.Equal(t, "note", events[0].Message)
	assert.Equal(t, 40, events[0].Note)
	assert.True(t, events[3].Simulated)
	assert.Equal(t, 4, events[3].Player)
}

func TestEngine_Run_ProcessesQueuedEvents(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 5, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	f.engine.StatusChanged(player.Status{Player: 1, Container: "Intro", Beat: 2})
	f.engine.PlayerLost(1)

	require.Eventually(t, func() bool {
		return len(f.rec.Messages()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []midi.Message{noteOn(40, 127, 1), noteOff(40, 1)}, f.rec.Messages())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
	assert.False(t, f.engine.Enqueue(Event{Type: EventTypeLost, Player: 1}), "queue closed after Run returns")
}

func TestEngine_Run_StopDrainsQueue(t *testing.T) {
	f := newFixture(t)
	f.addCue(t, 1, 5, func(c *cue.Cue) {
		c.Events[cue.EventEntered] = cue.NoteOn(40, 1)
	})

	f.engine.Enqueue(Event{Type: EventTypeStatus, Status: player.Status{Player: 1, Container: "Intro", Beat: 2}})
	f.engine.Enqueue(Event{Type: EventTypeStatus, Status: player.Status{Player: 1, Container: "missing", Beat: 2}})
	f.engine.Stop()

	require.NoError(t, f.engine.Run(context.Background()))
	assert.Equal(t, 0, f.engine.QueueLen())
	assert.Equal(t, []midi.Message{noteOn(40, 127, 1), noteOff(40, 1)}, f.rec.Messages(),
		"moving to an unknown container leaves the old one")
}

func TestEngine_WalkThroughTrack(t *testing.T) {
	f := newFixture(t, WithLogger(testutil.Logger(t)))
	f.addCue(t, 3, 6, func(c *cue.Cue) {
		c.Events[cue.EventStartedOnBeat] = cue.NoteOn(50, 4)
	})

	for _, st := range testutil.Walk(1, "Intro", cue.SectionNone, 128, 1, 8) {
		require.NoError(t, f.engine.Process(context.Background(), st))
	}

	assert.Equal(t, []cue.ExpressionKind{
		cue.ExprEntered, cue.ExprStartedOnBeat, cue.ExprBeat,
		cue.ExprBeat,
		cue.ExprBeat,
		cue.ExprEnded, cue.ExprExited,
	}, f.events())
	assert.Equal(t, []midi.Message{noteOn(50, 127, 4), noteOff(50, 4)}, f.rec.Messages())
}

func TestEngine_WalkThenLeave(t *testing.T) {
	f := newFixture(t, WithLogger(testutil.Logger(t)))
	c := f.addCue(t, 1, 9, nil)
	ctx := context.Background()

	for _, st := range testutil.Walk(2, "Intro", cue.SectionNone, 120, 1, 2) {
		require.NoError(t, f.engine.Process(ctx, st))
	}
	require.NoError(t, f.engine.Process(ctx, testutil.Stop(2, "Intro", cue.SectionNone, 120, 2)))
	assert.True(t, f.track.Snapshot().Runtime.CueEntered(c.UUID))

	err := f.engine.Process(ctx, testutil.Leave(2))
	require.Error(t, err, "an unloaded player names no container")
	assert.False(t, f.track.Snapshot().Runtime.CueEntered(c.UUID))

	ev, ok := f.last(cue.ExprExited)
	require.True(t, ok)
	assert.Equal(t, 2, ev.Player)
}
