package editor

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/player"
	"github.com/roach88/beatcue/internal/show"
)

// DefaultAnimationInterval is the playhead refresh cadence.
const DefaultAnimationInterval = 33 * time.Millisecond

// Players is the playback source windows animate from.
type Players interface {
	player.Source
	Players() []int
}

// Manager owns the open cue editor windows of a show, one per container.
// A window's entry here is its ownership record: closing the window clears
// it, which stops the window's animation loop.
type Manager struct {
	show     *show.Show
	players  Players
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	windows map[string]*Window
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock driving animation loops.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithInterval sets the animation cadence.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a window manager. players may be nil, in which case
// windows show no playheads.
func NewManager(s *show.Show, players Players, opts ...Option) *Manager {
	m := &Manager{
		show:     s,
		players:  players,
		clock:    clock.RealClock{},
		interval: DefaultAnimationInterval,
		logger:   s.Logger(),
		windows:  make(map[string]*Window),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns the editor window of container name, opening it if needed.
func (m *Manager) Open(name string) (*Window, error) {
	ctr, err := m.show.Container(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.windows[name]; ok {
		return w, nil
	}
	w := &Window{
		m:         m,
		ctr:       ctr,
		playheads: make(map[int]Playhead),
		enteredAt: make(map[uuid.UUID]time.Time),
		panels:    make(map[uuid.UUID]*Panel),
	}
	w.refreshLocked()
	m.windows[name] = w
	m.logger.Debug("cue editor opened", "container", name)
	return w, nil
}

// Window returns the open window of container name.
func (m *Manager) Window(name string) (*Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[name]
	return w, ok
}

// Names lists containers with an open window.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.windows))
}

// Close closes the window of container name. Unsaved expression editors on
// its cues veto the close unless force is set.
func (m *Manager) Close(name string, force bool) error {
	m.mu.Lock()
	w, ok := m.windows[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := m.show.ReleaseEditors(name, force); err != nil {
		return err
	}

	m.mu.Lock()
	if m.windows[name] == w {
		delete(m.windows, name)
	}
	m.mu.Unlock()
	w.closePanels()
	m.logger.Debug("cue editor closed", "container", name)
	return nil
}

func (m *Manager) owns(w *Window) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.windows[w.ctr.Name()] == w
}

// Selection is a beat range picked in a window.
type Selection struct {
	Section cue.SectionTag
	Start   int
	End     int
}

// Playhead is the latest position of a playing player inside a window's
// container.
type Playhead struct {
	Player  int
	Section cue.SectionTag
	Beat    int
	TimeMs  int64
}

// Row is the render state of one visible cue.
type Row struct {
	Cue          cue.Cue
	Lane         int
	ClusterLanes int
	Entered      bool
	Started      bool
	Color        string
}

// Window is the editor of one container.
type Window struct {
	m   *Manager
	ctr *show.Container

	mu        sync.Mutex
	filter    Filter
	view      view
	selection *Selection
	playheads map[int]Playhead
	enteredAt map[uuid.UUID]time.Time
	panels    map[uuid.UUID]*Panel
	onRedraw  func(Diff)
}

// Container returns the container being edited.
func (w *Window) Container() *show.Container { return w.ctr }

// Filter returns the active filter.
func (w *Window) Filter() Filter {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filter
}

// SetFilter replaces the filter and refreshes the list.
func (w *Window) SetFilter(f Filter) Diff {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filter = f
	return w.refreshLocked()
}

// OnRedraw sets the callback the animation loop runs after a frame whose
// refresh needs a redraw. It is called without the window lock held.
func (w *Window) OnRedraw(fn func(Diff)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onRedraw = fn
}

// Refresh recomputes the visible list from the container's current snapshot
// and reports what changed since the previous refresh.
func (w *Window) Refresh() Diff {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.refreshLocked()
}

func (w *Window) refreshLocked() Diff {
	state := w.ctr.Snapshot()
	next := buildView(state, w.filter)
	d := diffViews(w.view, next)
	w.view = next
	w.trackEntries(state)
	return d
}

// trackEntries stamps cues as they become entered so Rows can flash them.
func (w *Window) trackEntries(state *show.State) {
	now := w.m.clock.Now()
	for id := range state.Cues {
		entered := state.Runtime.CueEntered(id)
		_, seen := w.enteredAt[id]
		switch {
		case entered && !seen:
			w.enteredAt[id] = now
		case !entered && seen:
			delete(w.enteredAt, id)
		}
	}
	for id := range w.enteredAt {
		if _, ok := state.Cues[id]; !ok {
			delete(w.enteredAt, id)
		}
	}
}

// Visible returns the listed cues in canonical order.
func (w *Window) Visible() []uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.view.visible)
}

// MaxLanes returns the lane count the drawing surface needs.
func (w *Window) MaxLanes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return max(w.view.maxLanes, 1)
}

// Rows returns the render state of the visible cues as of the last refresh.
func (w *Window) Rows() []Row {
	state := w.ctr.Snapshot()
	now := w.m.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Row, 0, len(w.view.visible))
	for _, id := range w.view.visible {
		c, ok := state.Cue(id)
		if !ok {
			continue
		}
		pos := w.view.placed[id].pos
		r := Row{
			Cue:          c,
			Lane:         pos.Lane,
			ClusterLanes: pos.ClusterLanes,
			Entered:      state.Runtime.CueEntered(id),
			Started:      state.Runtime.CueStarted(id),
		}
		if at, ok := w.enteredAt[id]; ok && r.Entered {
			r.Color = flashColor(c.Hue, now.Sub(at))
		} else {
			r.Color = HueColor(c.Hue, r.Entered)
		}
		out = append(out, r)
	}
	return out
}

// Select sets the selected range, clamped to the container's bounds.
func (w *Window) Select(section cue.SectionTag, start, end int) (Selection, error) {
	state := w.ctr.Snapshot()
	if w.ctr.Kind() == show.KindPhraseTrigger && state.Sections[section] == 0 {
		return Selection{}, &show.Error{
			Code:      show.ErrCodeInvalidRange,
			Message:   fmt.Sprintf("phrase trigger has no %q section", section),
			Container: w.ctr.Name(),
		}
	}
	start = max(start, 1)
	if limit := state.MaxEnd(section); limit > 0 {
		end = min(end, limit)
	}
	if start >= end {
		return Selection{}, &show.Error{
			Code:      show.ErrCodeInvalidRange,
			Message:   fmt.Sprintf("empty selection %d..%d", start, end),
			Container: w.ctr.Name(),
		}
	}

	sel := Selection{Section: section, Start: start, End: end}
	w.mu.Lock()
	w.selection = &sel
	w.mu.Unlock()
	return sel, nil
}

// ClearSelection drops the selected range.
func (w *Window) ClearSelection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.selection = nil
}

// Selection returns the selected range, if any.
func (w *Window) Selection() (Selection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selection == nil {
		return Selection{}, false
	}
	return *w.selection, true
}

// SelectedCues returns the cues overlapping the selection.
func (w *Window) SelectedCues() []cue.Cue {
	sel, ok := w.Selection()
	if !ok {
		return nil
	}
	return w.m.show.CuesOverlapping(w.ctr, sel.Section, sel.Start, sel.End)
}

// NewCueFromSelection creates an unconfigured cue covering the selection.
// With template set, the cue is created from and linked to that library cue.
func (w *Window) NewCueFromSelection(template string) (cue.Cue, error) {
	sel, ok := w.Selection()
	if !ok {
		return cue.Cue{}, &show.Error{Code: show.ErrCodeInvalidRange, Message: "nothing selected", Container: w.ctr.Name()}
	}
	var (
		c   cue.Cue
		err error
	)
	if template != "" {
		c, err = w.m.show.NewCueFromTemplate(w.ctr, template, sel.Start, sel.End, sel.Section)
	} else {
		c, err = w.m.show.NewCue(w.ctr, sel.Start, sel.End, sel.Section)
	}
	if err != nil {
		return cue.Cue{}, err
	}
	w.Refresh()
	return c, nil
}

// Playheads returns the positions pushed by the last animation tick,
// ordered by player.
func (w *Window) Playheads() []Playhead {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Playhead, 0, len(w.playheads))
	for _, p := range slices.Sorted(maps.Keys(w.playheads)) {
		out = append(out, w.playheads[p])
	}
	return out
}
