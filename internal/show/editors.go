package show

import (
	"cmp"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
)

// EditorKey identifies an open expression editor. Cue editors set Container
// and Cue; library template editors set Template.
type EditorKey struct {
	Container string
	Cue       uuid.UUID
	Template  string
	Kind      cue.ExpressionKind
}

func compareEditorKeys(a, b EditorKey) int {
	return cmp.Or(
		cmp.Compare(a.Container, b.Container),
		cmp.Compare(a.Template, b.Template),
		cmp.Compare(a.Cue.String(), b.Cue.String()),
		cmp.Compare(a.Kind, b.Kind),
	)
}

// editors tracks open expression editors and whether they hold unsaved text.
type editors struct {
	mu   sync.Mutex
	open map[EditorKey]bool
}

func newEditors() *editors {
	return &editors{open: make(map[EditorKey]bool)}
}

func (e *editors) matching(match func(EditorKey) bool, dirtyOnly bool) []EditorKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []EditorKey
	for key, dirty := range e.open {
		if match(key) && (dirty || !dirtyOnly) {
			out = append(out, key)
		}
	}
	slices.SortFunc(out, compareEditorKeys)
	return out
}

func (e *editors) close(match func(EditorKey) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.open {
		if match(key) {
			delete(e.open, key)
		}
	}
}

func (e *editors) rename(match func(EditorKey) bool, apply func(EditorKey) EditorKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key, dirty := range e.open {
		if match(key) {
			delete(e.open, key)
			e.open[apply(key)] = dirty
		}
	}
}

// OpenEditor records an open editor. Opening one twice is harmless.
func (s *Show) OpenEditor(key EditorKey) {
	s.editors.mu.Lock()
	defer s.editors.mu.Unlock()
	if _, ok := s.editors.open[key]; !ok {
		s.editors.open[key] = false
	}
}

// MarkDirty flags an open editor as holding unsaved changes.
func (s *Show) MarkDirty(key EditorKey) {
	s.editors.mu.Lock()
	defer s.editors.mu.Unlock()
	if _, ok := s.editors.open[key]; ok {
		s.editors.open[key] = true
	}
}

// MarkSaved clears the unsaved flag of an open editor.
func (s *Show) MarkSaved(key EditorKey) {
	s.editors.mu.Lock()
	defer s.editors.mu.Unlock()
	if _, ok := s.editors.open[key]; ok {
		s.editors.open[key] = false
	}
}

// CloseEditor forgets an editor, discarding unsaved text.
func (s *Show) CloseEditor(key EditorKey) {
	s.editors.close(func(k EditorKey) bool { return k == key })
}

// OpenEditors lists every open editor.
func (s *Show) OpenEditors() []EditorKey {
	return s.editors.matching(func(EditorKey) bool { return true }, false)
}

// ReleaseEditors closes every expression editor on the container's cues,
// as when its cue editor window closes. Unsaved editors veto the release
// unless force is set.
func (s *Show) ReleaseEditors(container string, force bool) error {
	match := func(k EditorKey) bool { return k.Container == container }
	return s.veto(match, force, &Error{Message: "cue editor has unsaved expression editors", Container: container})
}

// veto returns an EDITORS_OPEN error when unsaved editors match, unless
// force is set. Matching editors are closed when the operation may proceed.
func (s *Show) veto(match func(EditorKey) bool, force bool, vetoed *Error) error {
	if dirty := s.editors.matching(match, true); len(dirty) > 0 && !force {
		vetoed.Code = ErrCodeEditorsOpen
		vetoed.Editors = dirty
		return vetoed
	}
	s.editors.close(match)
	return nil
}

// Panel is an open cue editor panel that redraws when its cue changes
// underneath it.
type Panel interface {
	Refresh(c cue.Cue)
}

type panelKey struct {
	container string
	cue       uuid.UUID
}

type panels struct {
	mu    sync.Mutex
	next  int
	byCue map[panelKey]map[int]Panel
}

func newPanels() *panels {
	return &panels{byCue: make(map[panelKey]map[int]Panel)}
}

// RegisterPanel attaches p to a cue so linked edits made elsewhere refresh
// it. The returned function detaches it.
func (s *Show) RegisterPanel(ctr *Container, id uuid.UUID, p Panel) (unregister func()) {
	key := panelKey{container: ctr.Name(), cue: id}
	s.panels.mu.Lock()
	s.panels.next++
	token := s.panels.next
	set, ok := s.panels.byCue[key]
	if !ok {
		set = make(map[int]Panel)
		s.panels.byCue[key] = set
	}
	set[token] = p
	s.panels.mu.Unlock()

	return func() {
		s.panels.mu.Lock()
		defer s.panels.mu.Unlock()
		delete(s.panels.byCue[key], token)
		if len(s.panels.byCue[key]) == 0 {
			delete(s.panels.byCue, key)
		}
	}
}

func (s *Show) refreshPanels(ctr *Container, c cue.Cue) {
	key := panelKey{container: ctr.Name(), cue: c.UUID}
	s.panels.mu.Lock()
	targets := make([]Panel, 0, len(s.panels.byCue[key]))
	for _, p := range s.panels.byCue[key] {
		targets = append(targets, p)
	}
	s.panels.mu.Unlock()

	for _, p := range targets {
		p.Refresh(c)
	}
}

func (s *Show) dropPanels(container string, id uuid.UUID) {
	s.panels.mu.Lock()
	defer s.panels.mu.Unlock()
	for key := range s.panels.byCue {
		if key.container == container && (id == uuid.Nil || key.cue == id) {
			delete(s.panels.byCue, key)
		}
	}
}
