package strategy

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/matchup/internal/catalog"
	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/geometry"
	"github.com/banshee-data/matchup/internal/matchup"
)

// PolarOrbiting matches two satellite swaths. A secondary is searched when
// its footprint intersects the primary footprint and its acquisition period
// is within the time delta of the primary's. Every primary pixel inside the
// secondary footprint is then paired with the nearest secondary pixel.
type PolarOrbiting struct{}

func (PolarOrbiting) Name() string { return config.StrategyPolarOrbiting }

func (s PolarOrbiting) CreateMatchupCollection(rc RunContext) (*matchup.Result, error) {
	return run(s.Name(), rc, selectIntersecting)
}

func selectIntersecting(p, s catalog.Observation, samples []matchup.Sample, delta time.Duration) []matchup.Sample {
	if delta > 0 && !overlaps(p.Start.Add(-delta), p.Stop.Add(delta), s.Start, s.Stop) {
		return nil
	}
	if len(s.Footprint) == 0 {
		return samples
	}
	if len(p.Footprint) > 0 && !geometry.Intersects(p.Footprint, s.Footprint) {
		return nil
	}

	var out []matchup.Sample
	for _, smp := range samples {
		if geometry.Contains(s.Footprint, orb.Point{smp.Lon, smp.Lat}) {
			out = append(out, smp)
		}
	}
	return out
}

// overlaps reports whether [aStart, aEnd] and [bStart, bEnd] share an instant.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
