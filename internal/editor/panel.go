package editor

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/show"
)

// Panel is the editing pane of one cue. It registers with the show so a
// linked edit made through another cue redraws it.
//
// While a refresh is being applied the panel is suppressed: edits arriving
// from its own widgets in that window are dropped, so redrawing a field
// never writes the redrawn value back through the cue store.
type Panel struct {
	w          *Window
	id         uuid.UUID
	unregister func()
	suppress   atomic.Bool

	mu        sync.Mutex
	cue       cue.Cue
	onRefresh func(cue.Cue)
	closed    bool
}

// OpenPanel returns the panel of a cue, opening it if needed.
func (w *Window) OpenPanel(id uuid.UUID) (*Panel, error) {
	c, ok := w.ctr.Snapshot().Cue(id)
	if !ok {
		return nil, &show.Error{Code: show.ErrCodeNotFound, Message: "no such cue", Container: w.ctr.Name(), Cue: id}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.panels[id]; ok {
		return p, nil
	}
	p := &Panel{w: w, id: id, cue: c}
	p.unregister = w.m.show.RegisterPanel(w.ctr, id, p)
	w.panels[id] = p
	return p, nil
}

func (w *Window) closePanels() {
	w.mu.Lock()
	panels := make([]*Panel, 0, len(w.panels))
	for _, p := range w.panels {
		panels = append(panels, p)
	}
	w.panels = make(map[uuid.UUID]*Panel)
	w.mu.Unlock()

	for _, p := range panels {
		p.detach()
	}
}

// OnRefresh sets the redraw callback. fn runs with the panel suppressed.
func (p *Panel) OnRefresh(fn func(cue.Cue)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRefresh = fn
}

// Refresh takes in content changed elsewhere; it makes Panel a show.Panel.
func (p *Panel) Refresh(c cue.Cue) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.cue = c
	fn := p.onRefresh
	p.mu.Unlock()

	if fn == nil {
		return
	}
	p.suppress.Store(true)
	defer p.suppress.Store(false)
	fn(c)
}

// Suppressed reports whether a refresh is being applied.
func (p *Panel) Suppressed() bool { return p.suppress.Load() }

// Cue returns the content the panel shows.
func (p *Panel) Cue() cue.Cue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cue
}

// Edit applies a change made in the panel. While suppressed it does
// nothing and returns the shown content.
func (p *Panel) Edit(edit func(c cue.Cue) cue.Cue) (cue.Cue, error) {
	if p.suppress.Load() {
		return p.Cue(), nil
	}
	updated, err := p.w.m.show.UpdateCue(p.w.ctr, p.id, edit)
	if err != nil {
		return cue.Cue{}, err
	}
	p.mu.Lock()
	p.cue = updated
	p.mu.Unlock()
	return updated, nil
}

// SetEvent changes one event configuration through Edit.
func (p *Panel) SetEvent(kind cue.EventKind, cfg cue.EventConfig) (cue.Cue, error) {
	return p.Edit(func(c cue.Cue) cue.Cue {
		c.Events[kind] = cfg
		return c
	})
}

// SetExpression changes one expression through Edit.
func (p *Panel) SetExpression(kind cue.ExpressionKind, source string) (cue.Cue, error) {
	return p.Edit(func(c cue.Cue) cue.Cue {
		c.Expressions[kind] = source
		return c
	})
}

// Close detaches the panel from its window and the show.
func (p *Panel) Close() {
	p.w.mu.Lock()
	if p.w.panels[p.id] == p {
		delete(p.w.panels, p.id)
	}
	p.w.mu.Unlock()
	p.detach()
}

func (p *Panel) detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.unregister()
}
