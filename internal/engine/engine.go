package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/expr"
	"github.com/roach88/beatcue/internal/midi"
	"github.com/roach88/beatcue/internal/player"
	"github.com/roach88/beatcue/internal/show"
	"github.com/roach88/beatcue/internal/store"
)

// Fired describes one event the engine dispatched.
type Fired struct {
	Seq       int64
	Container string
	Cue       uuid.UUID
	Player    int
	Event     cue.ExpressionKind

	// Config is the event whose configuration was used after resolving Same.
	// Empty for beat and tracked.
	Config  cue.EventKind
	Message cue.MessageType
	Note    int
	Channel int

	// Result is the value returned by a custom expression, if one ran.
	Result any

	Simulated bool
}

// Engine is the cue event state machine.
//
// Status updates are applied by a single writer: Process holds the engine
// lock while it swaps in the container's new runtime state and dispatches
// the resulting actions, and Run drains the queue that receivers and the
// simulator fill. Subscribers are called synchronously after each dispatch
// and must not edit cues from inside the callback.
type Engine struct {
	show    *show.Show
	outputs *midi.Registry
	exprs   *expr.Registry
	store   *store.Store
	clock   *Clock
	queue   *eventQueue
	logger  *slog.Logger

	alerter      expr.Alerter
	alertOnError bool

	mu    sync.Mutex
	where map[int]string

	subMu   sync.RWMutex
	subs    map[int]func(Fired)
	nextSub int

	unobserve func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStore journals every fired event except tracked updates.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithClock replaces the sequence clock, as when resuming a journal.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithExpressions replaces the expression registry.
func WithExpressions(r *expr.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.exprs = r
		}
	}
}

// WithAlerts routes expression runtime failures to a when enabled is true.
func WithAlerts(a expr.Alerter, enabled bool) Option {
	return func(e *Engine) {
		e.alerter = a
		e.alertOnError = enabled
	}
}

// New creates an engine for s sending MIDI through outputs, which may be nil
// to make every send a no-op. The engine observes the show: expressions of
// existing and future cues are compiled, and deleted cues are ended.
func New(s *show.Show, outputs *midi.Registry, opts ...Option) *Engine {
	e := &Engine{
		show:    s,
		outputs: outputs,
		clock:   NewClock(),
		queue:   newEventQueue(),
		logger:  s.Logger(),
		where:   make(map[int]string),
		subs:    make(map[int]func(Fired)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.exprs == nil {
		e.exprs = expr.NewRegistry(expr.WithLogger(e.logger), expr.WithAlerter(e.alerter))
	}

	for _, ctr := range s.Containers() {
		for _, c := range ctr.Snapshot().Sorted() {
			_ = e.exprs.Load(c)
		}
	}
	e.unobserve = s.Observe(observer{e})
	return e
}

// Close detaches the engine from the show and stops the queue.
func (e *Engine) Close() {
	e.unobserve()
	e.queue.Close()
}

// Expressions returns the registry holding compiled cue expressions.
func (e *Engine) Expressions() *expr.Registry { return e.exprs }

// Clock returns the sequence clock.
func (e *Engine) Clock() *Clock { return e.clock }

// Subscribe registers fn for every fired event. The returned function
// removes it.
func (e *Engine) Subscribe(fn func(Fired)) (unsubscribe func()) {
	e.subMu.Lock()
	e.nextSub++
	token := e.nextSub
	e.subs[token] = fn
	e.subMu.Unlock()
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, token)
	}
}

func (e *Engine) publish(f Fired) {
	e.subMu.RLock()
	tokens := slices.Sorted(maps.Keys(e.subs))
	fns := make([]func(Fired), 0, len(tokens))
	for _, t := range tokens {
		fns = append(fns, e.subs[t])
	}
	e.subMu.RUnlock()

	for _, fn := range fns {
		fn(f)
	}
}

// Enqueue submits an event for the Run loop. Safe from any goroutine.
// Returns false once the engine has stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of events waiting for Run.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// StatusChanged queues a status update; it makes the engine a player.Listener.
func (e *Engine) StatusChanged(s player.Status) {
	e.Enqueue(Event{Type: EventTypeStatus, Status: s})
}

// PlayerLost queues the loss of a player.
func (e *Engine) PlayerLost(p int) {
	e.Enqueue(Event{Type: EventTypeLost, Player: p})
}

// Run processes queued events until ctx is cancelled or Stop is called.
// Must be called from exactly one goroutine.
//
// A failing event is logged and skipped; the loop carries on with the next.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")

	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			if err := e.processEvent(ctx, ev); err != nil {
				logEventError(e.logger, ev, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes with the queue.
			if e.queue.Len() == 0 && e.stopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) stopped() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// Stop closes the queue, which makes Run return once it is drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) processEvent(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTypeStatus:
		return e.Process(ctx, ev.Status)
	case EventTypeLost:
		e.LosePlayer(ctx, ev.Player)
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", ev.Type)
	}
}

func logEventError(logger *slog.Logger, ev Event, err error) {
	if IsUnknownContainer(err) {
		logger.Debug("status for unknown container", "player", ev.Status.Player, "container", ev.Status.Container)
		return
	}
	logger.Error("event processing failed",
		"type", ev.Type,
		"player", ev.Status.Player,
		"container", ev.Status.Container,
		"error", err,
	)
}

// Process applies one status update and dispatches the transitions it
// causes. A player moving to another container first leaves every cue of
// the previous one.
func (e *Engine) Process(ctx context.Context, st player.Status) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.where[st.Player]; ok && prev != st.Container {
		e.leave(ctx, prev, st.Player)
		delete(e.where, st.Player)
	}

	ctr, err := e.show.Container(st.Container)
	if err != nil {
		return &RuntimeError{
			Code:      ErrCodeUnknownContainer,
			Message:   "status names no container of the show",
			Container: st.Container,
			Player:    st.Player,
		}
	}
	e.where[st.Player] = st.Container
	return e.apply(ctx, ctr, st)
}

// LosePlayer ends and exits every cue the player is inside.
func (e *Engine) LosePlayer(ctx context.Context, p int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name, ok := e.where[p]; ok {
		e.leave(ctx, name, p)
		delete(e.where, p)
		e.logger.Info("player lost", "player", p, "container", name)
	}
}

func (e *Engine) leave(ctx context.Context, name string, p int) {
	ctr, err := e.show.Container(name)
	if err != nil {
		return
	}
	if err := e.apply(ctx, ctr, player.Status{Player: p, Container: name}); err != nil {
		e.logger.Warn("leave container", "player", p, "container", name, "error", err)
	}
}

func (e *Engine) apply(ctx context.Context, ctr *show.Container, st player.Status) error {
	var trs []transition
	state, err := ctr.UpdateRuntime(func(cur *show.State, rt *show.Runtime) error {
		trs = step(cur, rt, st)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update %s runtime: %w", ctr.Name(), err)
	}
	for _, tr := range trs {
		e.dispatch(ctx, ctr, state, tr, st, false)
	}
	return nil
}

// Enabled reports whether kind would act for the cue: its resolved message
// is not None, and a Custom message has a compiled, non-blank expression.
func (e *Engine) Enabled(ctr *show.Container, id uuid.UUID, kind cue.EventKind) bool {
	c, ok := ctr.Snapshot().Cue(id)
	if !ok || !c.Enabled(kind) {
		return false
	}
	resolved, cfg := c.ResolveEvent(kind)
	if cfg.Message == cue.MessageCustom {
		_, ok := e.exprs.Get(id, cue.EntryExpression(resolved))
		return ok
	}
	return true
}

// SimulateEvent fires a cue's action for event as though player had
// triggered it, without touching playback state.
func (e *Engine) SimulateEvent(ctx context.Context, ctr *show.Container, id uuid.UUID, event cue.ExpressionKind, p int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := ctr.Snapshot()
	c, ok := state.Cue(id)
	if !ok {
		return &RuntimeError{Code: ErrCodeUnknownCue, Message: "no such cue", Container: ctr.Name(), Cue: id}
	}

	tr := transition{event: event, cue: c, player: p}
	switch event {
	case cue.ExprEntered, cue.ExprExited:
		tr.config = cue.EventEntered
	case cue.ExprStartedOnBeat, cue.ExprStartedLate:
		tr.config = cue.EventKind(event)
	case cue.ExprEnded:
		tr.config = cue.EventStartedOnBeat
		if kind, ok := state.Runtime.LastEntry[id]; ok {
			tr.config = kind
		}
	case cue.ExprBeat, cue.ExprTracked:
	default:
		return &RuntimeError{Code: ErrCodeUnknownEvent, Message: fmt.Sprintf("cannot simulate %q", event), Container: ctr.Name(), Cue: id}
	}

	st := player.Status{
		Player:    p,
		Container: ctr.Name(),
		Section:   c.Section,
		Beat:      c.Start,
		Playing:   event != cue.ExprEnded && event != cue.ExprExited,
		OnBeat:    event == cue.ExprStartedOnBeat || event == cue.ExprBeat,
	}
	e.dispatch(ctx, ctr, state, tr, st, true)
	return nil
}
