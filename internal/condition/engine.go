package condition

import (
	"strings"
	"time"

	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/matchup"
)

// Engine runs an ordered list of conditions over a collection.
type Engine struct {
	conditions   []Condition
	maxTimeDelta time.Duration
}

// NewEngine returns an engine with the given conditions in order.
func NewEngine(conditions ...Condition) *Engine {
	e := &Engine{conditions: conditions}
	for _, c := range conditions {
		if td, ok := c.(TimeDelta); ok {
			e.maxTimeDelta = td.Max
		}
	}
	return e
}

// Configure builds the condition list of a use case. The time range is always
// applied; time delta and distance only when the use case sets them. A missing
// time delta means unconstrained time matching, not a zero-width window.
func Configure(cfg config.UseCaseConfig) *Engine {
	conditions := []Condition{TimeRange{}}
	if cfg.HasTimeDelta() {
		conditions = append(conditions, TimeDelta{Max: cfg.GetTimeDelta()})
	}
	if cfg.HasMaxPixelDistance() {
		conditions = append(conditions, Distance{MaxKm: cfg.GetMaxPixelDistanceKm()})
	}
	return NewEngine(conditions...)
}

// MaxTimeDelta returns the configured time delta, or zero when the use case
// has none.
func (e *Engine) MaxTimeDelta() time.Duration { return e.maxTimeDelta }

// Conditions returns the configured conditions in order.
func (e *Engine) Conditions() []Condition {
	out := make([]Condition, len(e.conditions))
	copy(out, e.conditions)
	return out
}

// Process applies every condition in order and returns a new collection.
// Stage i+1 sees only what stage i kept; an empty collection ends the run of
// stages early.
func (e *Engine) Process(in *matchup.Collection, ctx Context) *matchup.Collection {
	out := in
	for _, c := range e.conditions {
		if out.IsEmpty() {
			break
		}
		before := out.NumMatchups()
		out = out.Map(func(m matchup.MatchupSet) []matchup.SampleSet {
			return c.Apply(m.SampleSets, ctx)
		})
		diagf("%s kept %d of %d sample sets", String(c), out.NumMatchups(), before)
	}
	if out == in {
		// no stage ran; hand back a fresh collection all the same
		out = in.Map(func(m matchup.MatchupSet) []matchup.SampleSet { return m.SampleSets })
	}
	return out
}

// Describe lists the configured conditions for logs.
func (e *Engine) Describe() string {
	names := make([]string, len(e.conditions))
	for i, c := range e.conditions {
		names[i] = String(c)
	}
	return strings.Join(names, ", ")
}
