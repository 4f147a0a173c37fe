// Package condition implements the cheap spatiotemporal filters applied to
// raw matchup candidates before any per-pixel data is read.
package condition

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/matchup/internal/geometry"
	"github.com/banshee-data/matchup/internal/matchup"
)

// Context is the processing state shared by all conditions of a run.
type Context struct {
	StartTime    time.Time
	EndTime      time.Time
	MaxTimeDelta time.Duration
}

// NewContext returns a context for the processing interval [start, end].
func NewContext(start, end time.Time, maxTimeDelta time.Duration) Context {
	return Context{StartTime: start, EndTime: end, MaxTimeDelta: maxTimeDelta}
}

// Condition is a pure filter over sample sets. Apply returns a new slice with
// the sets that pass and never modifies its input.
type Condition interface {
	Name() string
	Apply(sets []matchup.SampleSet, ctx Context) []matchup.SampleSet
}

func filter(sets []matchup.SampleSet, keep func(matchup.SampleSet) bool) []matchup.SampleSet {
	var out []matchup.SampleSet
	for _, s := range sets {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// TimeDelta keeps sample sets whose secondaries are all within Max of the
// primary acquisition time.
type TimeDelta struct {
	Max time.Duration
}

func (TimeDelta) Name() string { return "time-delta" }

func (c TimeDelta) Apply(sets []matchup.SampleSet, _ Context) []matchup.SampleSet {
	maxMillis := c.Max.Milliseconds()
	return filter(sets, func(s matchup.SampleSet) bool {
		for _, sec := range s.Secondaries {
			d := s.Primary.Time - sec.Time
			if d < 0 {
				d = -d
			}
			if d > maxMillis {
				return false
			}
		}
		return true
	})
}

// TimeRange keeps sample sets whose primary time lies in the context's
// processing interval, bounds included.
type TimeRange struct{}

func (TimeRange) Name() string { return "time-range" }

func (TimeRange) Apply(sets []matchup.SampleSet, ctx Context) []matchup.SampleSet {
	start := ctx.StartTime.UnixMilli()
	end := ctx.EndTime.UnixMilli()
	return filter(sets, func(s matchup.SampleSet) bool {
		return s.Primary.Time >= start && s.Primary.Time <= end
	})
}

// Distance keeps sample sets whose secondaries all lie within MaxKm of the
// primary on the great circle.
type Distance struct {
	MaxKm float64
}

func (Distance) Name() string { return "distance" }

func (c Distance) Apply(sets []matchup.SampleSet, _ Context) []matchup.SampleSet {
	return filter(sets, func(s matchup.SampleSet) bool {
		for _, sec := range s.Secondaries {
			d := geometry.DistanceKm(s.Primary.Lon, s.Primary.Lat, sec.Lon, sec.Lat)
			if math.IsNaN(d) || d > c.MaxKm {
				tracef("distance: drop primary (%d,%d) secondary (%d,%d) at %.3f km", s.Primary.X, s.Primary.Y, sec.X, sec.Y, d)
				return false
			}
		}
		return true
	})
}

// String describes a condition and its threshold for logs.
func String(c Condition) string {
	switch v := c.(type) {
	case TimeDelta:
		return fmt.Sprintf("%s(%s)", v.Name(), v.Max)
	case Distance:
		return fmt.Sprintf("%s(%.3fkm)", v.Name(), v.MaxKm)
	default:
		return c.Name()
	}
}
