package expr

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
)

// Key identifies one expression slot of one cue.
type Key struct {
	Cue  uuid.UUID
	Kind cue.ExpressionKind
}

// Alerter surfaces a problem to the operator.
type Alerter interface {
	Alert(title, message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(title, message string)

func (f AlertFunc) Alert(title, message string) { f(title, message) }

type entry struct {
	source string
	fn     CompiledFn
}

// Registry holds compiled expressions per cue and kind. Failed compilations
// leave the slot empty, which callers treat as disabled.
type Registry struct {
	mu       sync.RWMutex
	compiler Compiler
	logger   *slog.Logger
	alerter  Alerter
	entries  map[Key]entry
	alerted  map[Key]string
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAlerter routes compile failures to an operator-facing alert.
func WithAlerter(a Alerter) RegistryOption {
	return func(r *Registry) {
		r.alerter = a
	}
}

// WithCompiler replaces the Lua compiler.
func WithCompiler(c Compiler) RegistryOption {
	return func(r *Registry) {
		if c != nil {
			r.compiler = c
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		compiler: LuaCompiler{},
		logger:   slog.Default(),
		entries:  make(map[Key]entry),
		alerted:  make(map[Key]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load compiles every non-blank expression of c, replacing what was held for
// the cue before. Slots whose source is unchanged are not recompiled. The
// returned error joins one CompileError per failing expression.
func (r *Registry) Load(c cue.Cue) error {
	var errs []error
	for _, kind := range cue.ExpressionKinds {
		if err := r.Set(c.UUID, kind, c.Expression(kind)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Set compiles one expression. Blank source clears the slot.
func (r *Registry) Set(id uuid.UUID, kind cue.ExpressionKind, source string) error {
	key := Key{Cue: id, Kind: kind}
	if strings.TrimSpace(source) == "" {
		r.mu.Lock()
		delete(r.entries, key)
		delete(r.alerted, key)
		r.mu.Unlock()
		return nil
	}

	r.mu.RLock()
	current, ok := r.entries[key]
	r.mu.RUnlock()
	if ok && current.source == source {
		return nil
	}

	fn, err := r.compiler.Compile(source)
	if err != nil {
		cerr := &CompileError{Cue: id, Kind: kind, Err: err}
		r.mu.Lock()
		delete(r.entries, key)
		first := r.alerted[key] != source
		r.alerted[key] = source
		r.mu.Unlock()

		r.logger.Warn("expression compile failed", "cue", id, "kind", kind, "error", err)
		if first && r.alerter != nil {
			r.alerter.Alert("Expression failed to compile", cerr.Error())
		}
		return cerr
	}

	r.mu.Lock()
	r.entries[key] = entry{source: source, fn: fn}
	delete(r.alerted, key)
	r.mu.Unlock()
	return nil
}

// Get returns the compiled expression for key, if any.
func (r *Registry) Get(id uuid.UUID, kind cue.ExpressionKind) (CompiledFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{Cue: id, Kind: kind}]
	if !ok {
		return nil, false
	}
	return e.fn, true
}

// Remove drops every expression held for the cue.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.entries {
		if key.Cue == id {
			delete(r.entries, key)
		}
	}
	for key := range r.alerted {
		if key.Cue == id {
			delete(r.alerted, key)
		}
	}
}

// Len reports how many expressions are compiled.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
