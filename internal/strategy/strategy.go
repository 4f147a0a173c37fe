// Package strategy builds the matchup collection of a run. A strategy finds
// raw candidates between primary and secondary observations and then hands
// them to the condition and screening engines.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/matchup/internal/catalog"
	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/reader"
	"github.com/banshee-data/matchup/internal/screening"
)

// ErrUnknownStrategy is returned for strategy tags nobody registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Catalog is the observation lookup a strategy needs. *catalog.Store
// implements it.
type Catalog interface {
	QueryObservations(q catalog.Query) ([]catalog.Observation, error)
}

// RunContext carries everything one run needs. It is built once at run start
// and lives as long as the run.
type RunContext struct {
	Config     config.UseCaseConfig
	Start      time.Time
	End        time.Time
	Catalog    Catalog
	Readers    reader.Opener
	Screenings *screening.Registry
}

// Validate checks the run window and collaborators.
func (rc RunContext) Validate() error {
	if err := rc.Config.Validate(); err != nil {
		return err
	}
	if rc.End.Before(rc.Start) {
		return fmt.Errorf("%w: run ends %s before it starts %s", config.ErrInvalidConfig,
			rc.End.Format(time.RFC3339), rc.Start.Format(time.RFC3339))
	}
	if rc.Catalog == nil || rc.Readers == nil {
		return errors.New("run context needs a catalog and a reader opener")
	}
	return nil
}

// Strategy produces the matchup result of one run.
type Strategy interface {
	Name() string
	CreateMatchupCollection(rc RunContext) (*matchup.Result, error)
}

// Registry maps strategy tags to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// DefaultRegistry returns a registry with both built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(PolarOrbiting{})
	r.Register(InsituPolarOrbiting{})
	return r
}

// Register adds s under its name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Names returns the registered tags in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Run resolves the strategy named by the use case and runs it.
func (r *Registry) Run(rc RunContext) (*matchup.Result, error) {
	s, err := r.Get(rc.Config.GetStrategy())
	if err != nil {
		return nil, err
	}
	return s.CreateMatchupCollection(rc)
}
