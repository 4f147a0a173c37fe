// Package screening implements the second, per-sensor filtering stage of a
// matchup run. Screenings see the open primary and secondary readers so they
// can test quantities that are not part of a Sample, such as viewing angles.
package screening

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/reader"
)

// ErrUnknownScreening is returned for screening names nobody registered.
var ErrUnknownScreening = errors.New("unknown screening")

// Screening filters the sample sets of one primary/secondary observation
// pair. Apply returns a new slice and never modifies its input. A read error
// aborts the screening.
type Screening interface {
	Name() string
	Apply(sets []matchup.SampleSet, primary, secondary reader.Reader) ([]matchup.SampleSet, error)
}

// Factory builds a Screening from its raw JSON parameters, which may be empty.
type Factory func(params json.RawMessage) (Screening, error)

// Registry maps screening names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in screening.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(AngularName, NewAngular)
	r.Register(AtsrAngularName, NewAtsrAngular)
	return r
}

// Register adds a factory. Registering a name twice replaces it.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named screening.
func (r *Registry) New(name string, params json.RawMessage) (Screening, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScreening, name)
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("screening %q: %w", name, err)
	}
	return s, nil
}

// decodeParams strictly decodes screening parameters into v. Empty params
// leave v untouched.
func decodeParams(params json.RawMessage, v any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return nil
}
