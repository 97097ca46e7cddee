package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/engine"
	"github.com/roach88/beatcue/internal/midi"
	"github.com/roach88/beatcue/internal/player"
	"github.com/roach88/beatcue/internal/show"
	"github.com/roach88/beatcue/internal/store"
)

// defaultPlayer is used by steps that name no player.
const defaultPlayer = 1

// Harness is the scenario execution engine for one run.
type Harness struct {
	show   *show.Show
	ctr    *show.Container
	engine *engine.Engine
	store  *store.Store
	result *Result
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs on a fresh show and a fresh in-memory journal. The
// engine clock starts at zero, so sequence numbers in the trace are
// reproducible.
//
// Execution flow:
// 1. Build the container, library templates and cues
// 2. Start an engine recording MIDI and fired events into the trace
// 3. Execute flow steps in order
// 4. Evaluate assertions against the trace and journal
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := show.NewShow(show.WithLogger(logger))

	ctr, err := build(s, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build show: %w", err)
	}

	result := NewResult()
	outputs := midi.NewRegistry(nil, logger)
	if name := scenario.Container.Output; name != "" {
		outputs.Register(&tracingOutput{name: name, result: result})
	}

	eng := engine.New(s, outputs, engine.WithLogger(logger), engine.WithStore(st))
	defer eng.Close()
	unsubscribe := eng.Subscribe(func(f engine.Fired) {
		if f.Event == cue.ExprTracked {
			return
		}
		result.AddFiredTrace(traceFired(f))
	})
	defer unsubscribe()

	h := &Harness{
		show:   s,
		ctr:    ctr,
		engine: eng,
		store:  st,
		result: result,
		logger: logger,
	}

	ctx := context.Background()
	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	journal, err := st.ReadFired(ctx, store.FiredFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	result.Journal = len(journal)

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// build creates the scenario's container, library and cues on s.
func build(s *show.Show, scenario *Scenario) (*show.Container, error) {
	spec := scenario.Container
	var (
		ctr *show.Container
		err error
	)
	if spec.Kind == show.KindPhraseTrigger {
		ctr, err = s.AddPhraseTrigger(spec.Name, spec.Sections, spec.Output)
	} else {
		ctr, err = s.AddTrack(spec.Name, spec.Beats, spec.Output)
	}
	if err != nil {
		return nil, err
	}

	for _, t := range scenario.Templates {
		if t.Folder != "" {
			if err := s.AddFolder(t.Folder); err != nil && !show.IsDuplicate(err) {
				return nil, fmt.Errorf("template %q: %w", t.Name, err)
			}
		}
		if _, err := s.AddTemplate(t.Name, t.Template, t.Folder); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
	}

	for i, r := range scenario.Cues {
		c, err := cue.FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("cue %d: %w", i, err)
		}
		if _, err := s.AddCue(ctr, c); err != nil {
			return nil, fmt.Errorf("cue %d: %w", i, err)
		}
	}
	return ctr, nil
}

// executeFlow runs every step in order. A step the engine rejects fails the
// run; actions that fail inside the engine are logged there and never
// reach the harness.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		var err error
		switch {
		case step.Status != nil:
			err = h.engine.Process(ctx, h.status(*step.Status))
		case step.Lose != 0:
			h.engine.LosePlayer(ctx, step.Lose)
		case step.Delete != "":
			err = h.deleteCue(step.Delete)
		case step.Simulate != nil:
			err = h.simulate(ctx, *step.Simulate)
		}
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		h.logger.Debug("flow step completed", "step", i, "trace", len(h.result.Trace))
	}
	return nil
}

func (h *Harness) status(s StatusStep) player.Status {
	st := player.Status{
		Player:    s.Player,
		Container: s.Container,
		Section:   s.Section,
		Beat:      s.Beat,
		TimeMs:    s.TimeMs,
		Playing:   s.Playing,
		OnBeat:    s.OnBeat,
		BPM:       s.BPM,
	}
	if st.Player == 0 {
		st.Player = defaultPlayer
	}
	if st.Container == "" {
		st.Container = h.ctr.Name()
	}
	return st
}

func (h *Harness) deleteCue(raw string) error {
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	_, err = h.show.DeleteCue(h.ctr, id, true)
	return err
}

func (h *Harness) simulate(ctx context.Context, s SimulateStep) error {
	id, err := uuid.Parse(s.Cue)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	p := s.Player
	if p == 0 {
		p = defaultPlayer
	}
	return h.engine.SimulateEvent(ctx, h.ctr, id, s.Event, p)
}

func traceFired(f engine.Fired) TraceEvent {
	return TraceEvent{
		Seq:       f.Seq,
		Event:     string(f.Event),
		Cue:       f.Cue.String(),
		Player:    f.Player,
		Config:    string(f.Config),
		Message:   string(f.Message),
		Simulated: f.Simulated,
		Result:    f.Result,
	}
}

// tracingOutput is a MIDI output that appends every send to the trace.
type tracingOutput struct {
	name   string
	result *Result
}

func (o *tracingOutput) Name() string { return o.name }

func (o *tracingOutput) NoteOn(note, velocity, channel int) error {
	return o.record(midi.KindNoteOn, note, velocity, channel)
}

func (o *tracingOutput) NoteOff(note, velocity, channel int) error {
	return o.record(midi.KindNoteOff, note, velocity, channel)
}

func (o *tracingOutput) ControlChange(controller, value, channel int) error {
	return o.record(midi.KindCC, controller, value, channel)
}

func (o *tracingOutput) record(kind midi.Kind, number, value, channel int) error {
	o.result.AddMIDITrace(midi.Message{
		Output:  o.name,
		Kind:    kind,
		Number:  number,
		Value:   value,
		Channel: channel,
	})
	return nil
}
