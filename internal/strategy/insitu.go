package strategy

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/matchup/internal/catalog"
	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/geometry"
	"github.com/banshee-data/matchup/internal/matchup"
)

// InsituPolarOrbiting matches in-situ records against satellite swaths. Each
// record is one primary sample; a swath is searched for it when the swath
// footprint contains the record and, if the swath has time axes, the axis
// time at the record is within the time delta.
type InsituPolarOrbiting struct{}

func (InsituPolarOrbiting) Name() string { return config.StrategyInsituPolarOrbiting }

func (s InsituPolarOrbiting) CreateMatchupCollection(rc RunContext) (*matchup.Result, error) {
	return run(s.Name(), rc, selectContaining)
}

func selectContaining(_, s catalog.Observation, samples []matchup.Sample, delta time.Duration) []matchup.Sample {
	var out []matchup.Sample
	for _, smp := range samples {
		t := smp.Timestamp()
		if delta > 0 && (t.Before(s.Start.Add(-delta)) || t.After(s.Stop.Add(delta))) {
			continue
		}
		pt := orb.Point{smp.Lon, smp.Lat}
		if len(s.Footprint) > 0 && !geometry.Contains(s.Footprint, pt) {
			continue
		}
		if delta > 0 && !axisAllows(s.TimeAxes, pt, t, delta) {
			continue
		}
		out = append(out, smp)
	}
	return out
}

// axisAllows estimates the swath time at pt from its time axes. The estimate
// is only as good as the axis vertex spacing, so one vertex step is added to
// the tolerance. Observations without usable axes always pass.
func axisAllows(axes []catalog.TimeAxisRecord, pt orb.Point, t time.Time, delta time.Duration) bool {
	usable := false
	for _, rec := range axes {
		axis, err := rec.TimeAxis()
		if err != nil {
			continue
		}
		usable = true
		step := time.Duration(0)
		if n := len(rec.Points); n > 1 {
			step = rec.EndTime.Sub(rec.StartTime) / time.Duration(n-1)
			if step < 0 {
				step = -step
			}
		}
		diff := axis.Time(pt).Sub(t)
		if diff < 0 {
			diff = -diff
		}
		if diff <= delta+step {
			return true
		}
	}
	return !usable
}
