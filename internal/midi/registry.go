package midi

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"gitlab.com/gomidi/midi/v2/drivers"
)

// Registry resolves output names chosen per container to Outputs.
type Registry struct {
	mu      sync.Mutex
	driver  drivers.Driver
	outputs map[string]Output
	logger  *slog.Logger
}

// NewRegistry returns a registry backed by driver, which may be nil when
// only registered outputs are wanted.
func NewRegistry(driver drivers.Driver, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		driver:  driver,
		outputs: make(map[string]Output),
		logger:  logger,
	}
}

// Register makes out available under its name.
func (r *Registry) Register(out Output) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[out.Name()] = out
}

// Lookup returns the output called name. An empty name or an unknown device
// reports false; callers treat that as a silent no-op.
func (r *Registry) Lookup(name string) (Output, bool) {
	if name == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.outputs[name]; ok {
		return out, true
	}
	if r.driver == nil {
		return nil, false
	}
	ports, err := r.driver.Outs()
	if err != nil {
		r.logger.Warn("list midi outputs", "error", err)
		return nil, false
	}
	for _, port := range ports {
		if port.String() == name {
			out := NewPortOutput(port)
			r.outputs[name] = out
			r.logger.Info("midi output attached", "output", name)
			return out, true
		}
	}
	return nil, false
}

// Names lists registered outputs and, when a driver is present, every
// output port it reports.
func (r *Registry) Names() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(r.outputs))
	for name := range r.outputs {
		seen[name] = true
	}
	if r.driver != nil {
		ports, err := r.driver.Outs()
		if err != nil {
			return nil, fmt.Errorf("list midi outputs: %w", err)
		}
		for _, port := range ports {
			seen[port.String()] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every port output opened through the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, out := range r.outputs {
		if p, ok := out.(*PortOutput); ok {
			if err := p.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
