package show

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
	"github.com/roach88/beatcue/internal/expr"
)

// Observer is told about cue changes so derived state (compiled expressions,
// playback state) can follow the store.
type Observer interface {
	// CueChanged is called after a cue is added or its content replaced.
	CueChanged(ctr *Container, c cue.Cue)

	// CueRemoved is called once a cue is gone, with last, the final state
	// that still held it. Playback membership recorded in last is what must
	// be ended; no later update can enter the cue again.
	CueRemoved(ctr *Container, last *State, c cue.Cue)
}

// Show is the context object shared by every cue store operation.
type Show struct {
	logger *slog.Logger

	mu         sync.RWMutex
	containers map[string]*Container

	library atomic.Pointer[Library]
	globals *expr.Scratch

	editors *editors
	panels  *panels

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObs   int
}

// Option configures a Show.
type Option func(*Show)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Show) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewShow returns an empty show.
func NewShow(opts ...Option) *Show {
	s := &Show{
		logger:     slog.Default(),
		containers: make(map[string]*Container),
		globals:    expr.NewScratch(),
		editors:    newEditors(),
		panels:     newPanels(),
		observers:  make(map[int]Observer),
	}
	s.library.Store(emptyLibrary())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Logger returns the show logger.
func (s *Show) Logger() *slog.Logger { return s.logger }

// Globals returns the scratch map shared by every expression in the show.
func (s *Show) Globals() *expr.Scratch { return s.globals }

// Observe registers o. The returned function removes it.
func (s *Show) Observe(o Observer) (remove func()) {
	s.obsMu.Lock()
	s.nextObs++
	token := s.nextObs
	s.observers[token] = o
	s.obsMu.Unlock()
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, token)
	}
}

func (s *Show) observerList() []Observer {
	s.obsMu.RLock()
	defer s.obsMu.RUnlock()
	tokens := slices.Sorted(maps.Keys(s.observers))
	out := make([]Observer, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, s.observers[t])
	}
	return out
}

func (s *Show) notifyChanged(ctr *Container, c cue.Cue) {
	for _, o := range s.observerList() {
		o.CueChanged(ctr, c)
	}
}

// AddTrack creates a track container. beats bounds cue ends; zero leaves
// them unbounded.
func (s *Show) AddTrack(name string, beats int, output string) (*Container, error) {
	if beats < 0 {
		return nil, &Error{Code: ErrCodeInvalidRange, Message: fmt.Sprintf("negative beat count %d", beats), Container: name}
	}
	return s.addContainer(name, KindTrack, &State{Beats: beats, Output: output})
}

// AddPhraseTrigger creates a phrase trigger whose sections have the given
// lengths in bars. Sections absent from the map cannot hold cues.
func (s *Show) AddPhraseTrigger(name string, sections map[cue.SectionTag]int, output string) (*Container, error) {
	clean := make(map[cue.SectionTag]int, len(sections))
	for tag, bars := range sections {
		if tag.Position() < 0 || bars < 0 {
			return nil, &Error{Code: ErrCodeInvalidRange, Message: fmt.Sprintf("section %q with %d bars", tag, bars), Container: name}
		}
		if bars > 0 {
			clean[tag] = bars
		}
	}
	return s.addContainer(name, KindPhraseTrigger, &State{Sections: clean, Output: output})
}

func (s *Show) addContainer(name string, kind Kind, initial *State) (*Container, error) {
	if name == "" {
		return nil, &Error{Code: ErrCodeNotFound, Message: "container name is empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[name]; ok {
		return nil, &Error{Code: ErrCodeDuplicateName, Message: "container already exists", Container: name}
	}
	ctr := newContainer(name, kind, initial)
	s.containers[name] = ctr
	s.logger.Debug("container added", "container", name, "kind", kind)
	return ctr, nil
}

// Container returns the container called name.
func (s *Show) Container(name string) (*Container, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctr, ok := s.containers[name]
	if !ok {
		return nil, &Error{Code: ErrCodeNotFound, Message: "no such container", Container: name}
	}
	return ctr, nil
}

// Containers returns every container ordered by name.
func (s *Show) Containers() []*Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := slices.Sorted(maps.Keys(s.containers))
	out := make([]*Container, 0, len(names))
	for _, n := range names {
		out = append(out, s.containers[n])
	}
	return out
}

// RemoveContainer closes a container. Unsaved editors on its cues veto the
// removal unless force is set. Active cues are ended as they go.
func (s *Show) RemoveContainer(name string, force bool) error {
	ctr, err := s.Container(name)
	if err != nil {
		return err
	}
	match := func(k EditorKey) bool { return k.Container == name }
	if err := s.veto(match, force, &Error{Message: "container has unsaved expression editors", Container: name}); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.containers, name)
	s.mu.Unlock()

	// Empty the container so an update already holding it enters nothing.
	var last *State
	_, err = ctr.Update(func(cur *State) (*State, error) {
		last = cur
		next := cur.Clone()
		next.SetCues(make(map[uuid.UUID]cue.Cue))
		next.Runtime = Runtime{}.Clone()
		return next, nil
	})
	if err != nil {
		return err
	}
	for _, c := range last.Sorted() {
		for _, o := range s.observerList() {
			o.CueRemoved(ctr, last, c)
		}
	}
	s.dropPanels(name, uuid.Nil)
	s.logger.Info("container removed", "container", name)
	return nil
}
