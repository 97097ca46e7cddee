package engine

import (
	"context"
	"fmt"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/expr"
	"github.com/roach88/beatcue/internal/midi"
	"github.com/roach88/beatcue/internal/player"
	"github.com/roach88/beatcue/internal/show"
	"github.com/roach88/beatcue/internal/store"
)

// MIDI values sent for entry-class and exit-class events.
const (
	entryValue = 127
	exitValue  = 0
)

// dispatch performs the action of one transition, then publishes and
// journals it. Action failures are logged and never returned.
func (e *Engine) dispatch(ctx context.Context, ctr *show.Container, state *show.State, tr transition, st player.Status, simulated bool) {
	f := Fired{
		Seq:       e.clock.Next(),
		Container: ctr.Name(),
		Cue:       tr.cue.UUID,
		Player:    tr.player,
		Event:     tr.event,
		Simulated: simulated,
	}

	if tr.config == "" {
		f.Result = e.invoke(ctr, tr, tr.event, st)
	} else {
		resolved, cfg := tr.cue.ResolveEvent(tr.config)
		f.Config = resolved
		f.Message = cfg.Message
		f.Note = cfg.Note
		f.Channel = cfg.Channel

		switch cfg.Message {
		case cue.MessageNote, cue.MessageCC:
			e.send(state.Output, tr, cfg)
		case cue.MessageCustom:
			kind := cue.EntryExpression(resolved)
			if tr.exits() {
				kind = cue.ExitExpression(resolved)
			}
			f.Result = e.invoke(ctr, tr, kind, st)
		}
	}

	if f.Event != cue.ExprTracked {
		e.logger.Debug("cue event",
			"seq", f.Seq,
			"container", f.Container,
			"cue", f.Cue,
			"player", f.Player,
			"event", f.Event,
			"message", f.Message,
			"simulated", simulated,
		)
		e.journal(ctx, f)
	}
	e.publish(f)
}

func (e *Engine) send(output string, tr transition, cfg cue.EventConfig) {
	out, ok := e.output(output)
	if !ok {
		e.logger.Debug("no midi output, send skipped", "output", output, "cue", tr.cue.UUID, "event", tr.event)
		return
	}
	value := entryValue
	if tr.exits() {
		value = exitValue
	}

	var err error
	switch {
	case cfg.Message == cue.MessageCC:
		err = out.ControlChange(cfg.Note, value, cfg.Channel)
	case tr.exits():
		err = out.NoteOff(cfg.Note, value, cfg.Channel)
	default:
		err = out.NoteOn(cfg.Note, value, cfg.Channel)
	}
	if err != nil {
		e.logger.Warn("midi send failed", "output", output, "cue", tr.cue.UUID, "event", tr.event, "error", err)
	}
}

func (e *Engine) output(name string) (midi.Output, bool) {
	if e.outputs == nil {
		return nil, false
	}
	return e.outputs.Lookup(name)
}

// invoke runs the cue's expression of kind if one is compiled. Errors and
// panics are logged and swallowed.
func (e *Engine) invoke(ctr *show.Container, tr transition, kind cue.ExpressionKind, st player.Status) (result any) {
	fn, ok := e.exprs.Get(tr.cue.UUID, kind)
	if !ok {
		return nil
	}

	status := st.Map()
	status["event"] = string(tr.event)

	defer func() {
		if r := recover(); r != nil {
			e.expressionFailed(ctr, tr, kind, fmt.Errorf("panic: %v", r))
			result = nil
		}
	}()
	result, err := fn(expr.Call{
		Status:    status,
		Cue:       cueBinding(tr.cue),
		Container: ctr.Name(),
		Locals:    ctr.Locals(),
		Globals:   e.show.Globals(),
	})
	if err != nil {
		e.expressionFailed(ctr, tr, kind, err)
		return nil
	}
	return result
}

func (e *Engine) expressionFailed(ctr *show.Container, tr transition, kind cue.ExpressionKind, err error) {
	rerr := &expr.RuntimeError{Container: ctr.Name(), Cue: tr.cue.UUID, Kind: kind, Err: err}
	e.logger.Error("expression failed",
		"container", ctr.Name(),
		"cue", tr.cue.UUID,
		"kind", kind,
		"player", tr.player,
		"error", err,
	)
	if e.alertOnError && e.alerter != nil {
		e.alerter.Alert("Expression failed", rerr.Error())
	}
}

func cueBinding(c cue.Cue) map[string]any {
	return map[string]any{
		"uuid":    c.UUID.String(),
		"start":   c.Start,
		"end":     c.End,
		"section": string(c.Section),
		"comment": c.Comment,
		"hue":     c.Hue,
		"linked":  c.Linked,
	}
}

func (e *Engine) journal(ctx context.Context, f Fired) {
	if e.store == nil {
		return
	}
	err := e.store.AppendFired(ctx, store.FiredEvent{
		Seq:       f.Seq,
		Container: f.Container,
		Cue:       f.Cue.String(),
		Player:    f.Player,
		Event:     string(f.Event),
		Config:    string(f.Config),
		Message:   string(f.Message),
		Note:      f.Note,
		Channel:   f.Channel,
		Simulated: f.Simulated,
	})
	if err != nil {
		e.logger.Warn("journal fired event", "seq", f.Seq, "error", err)
	}
}

// observer keeps compiled expressions and playback state in step with the
// cue store.
type observer struct {
	e *Engine
}

func (o observer) CueChanged(_ *show.Container, c cue.Cue) {
	// Failures are logged and alerted by the registry; the slot stays empty.
	_ = o.e.exprs.Load(c)
}

// CueRemoved ends the events the removing swap cut short. It waits on the
// engine lock, so an update that entered the cue before the swap has
// finished dispatching before the matching exits go out.
func (o observer) CueRemoved(ctr *show.Container, last *show.State, c cue.Cue) {
	e := o.e
	e.mu.Lock()
	for _, tr := range leaving(last.Runtime, c) {
		st := player.Status{Player: tr.player, Container: ctr.Name(), Section: c.Section}
		e.dispatch(context.Background(), ctr, last, tr, st, false)
	}
	e.mu.Unlock()
	e.exprs.Remove(c.UUID)
}
