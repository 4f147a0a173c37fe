package strategy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/matchup/internal/catalog"
	"github.com/banshee-data/matchup/internal/condition"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/reader"
	"github.com/banshee-data/matchup/internal/screening"
)

// selector returns the primary samples that may have a counterpart in the
// secondary observation. delta is zero when time matching is unconstrained.
type selector func(primary, secondary catalog.Observation, samples []matchup.Sample, delta time.Duration) []matchup.Sample

// run is the flow shared by all strategies: configure both engines, query
// the catalog, search raw candidates per primary observation, then filter.
func run(name string, rc RunContext, sel selector) (*matchup.Result, error) {
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	cfg := rc.Config

	conditions := condition.Configure(cfg)
	registry := rc.Screenings
	if registry == nil {
		registry = screening.DefaultRegistry()
	}
	screenings, err := screening.Configure(cfg, registry)
	if err != nil {
		return nil, err
	}
	delta := conditions.MaxTimeDelta()
	diagf("%s: conditions [%s], screenings [%s]", name, conditions.Describe(), screenings.Describe())

	// Overlap, not containment: primarySamples drops pixels outside the window.
	primaries, err := rc.Catalog.QueryObservations(catalog.Query{
		Sensor: cfg.PrimarySensor.Name,
		Start:  rc.Start,
		Stop:   rc.End,
	})
	if err != nil {
		return nil, fmt.Errorf("query primary observations: %w", err)
	}
	secondaries, err := rc.Catalog.QueryObservations(catalog.Query{
		Sensor: cfg.SecondarySensor.Name,
		Start:  rc.Start.Add(-delta),
		Stop:   rc.End.Add(delta),
	})
	if err != nil {
		return nil, fmt.Errorf("query secondary observations: %w", err)
	}
	diagf("%s: %d primary and %d secondary observations", name, len(primaries), len(secondaries))

	started := time.Now()
	m := &matcher{rc: rc, delta: delta, secondaries: secondaries, sel: sel}
	raw := matchup.NewCollection()
	var diags []matchup.Diagnostic
	for _, r := range m.matchAll(primaries, cfg.GetWorkers()) {
		for _, set := range r.sets {
			raw.Add(set)
		}
		diags = append(diags, r.diags...)
	}
	rawCount := raw.NumMatchups()
	diagf("%s: %d raw sample sets in %d matchup sets (%v)", name, rawCount, raw.Len(), time.Since(started))

	filtered := conditions.Process(raw, condition.NewContext(rc.Start, rc.End, delta))
	diagf("%s: %d sample sets after conditions", name, filtered.NumMatchups())

	screened, screenDiags := screenings.Process(filtered, rc.Readers)
	diags = append(diags, screenDiags...)
	diagf("%s: %d sample sets after screenings", name, screened.NumMatchups())

	return &matchup.Result{
		RunID:       uuid.NewString(),
		Collection:  screened,
		RawCount:    rawCount,
		Skipped:     countSkipped(diags),
		Diagnostics: diags,
	}, nil
}

// countSkipped counts distinct observations named by diags.
func countSkipped(diags []matchup.Diagnostic) int {
	seen := make(map[string]bool, len(diags))
	for _, d := range diags {
		seen[d.Path] = true
	}
	return len(seen)
}

type primaryResult struct {
	sets  []matchup.MatchupSet
	diags []matchup.Diagnostic
}

type matcher struct {
	rc          RunContext
	delta       time.Duration
	secondaries []catalog.Observation
	sel         selector
}

// matchAll searches every primary observation on a fixed pool of workers.
// Each worker writes only its own slot; results are read after the barrier
// in primary order.
func (m *matcher) matchAll(primaries []catalog.Observation, workers int) []primaryResult {
	results := make([]primaryResult, len(primaries))
	if len(primaries) == 0 {
		return results
	}
	if workers > len(primaries) {
		workers = len(primaries)
	}

	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = m.matchPrimary(primaries[idx])
			}
		}()
	}
	for idx := range primaries {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return results
}

func (m *matcher) matchPrimary(p catalog.Observation) primaryResult {
	var res primaryResult
	samples, err := m.primarySamples(p)
	if err != nil {
		opsf("skipping primary %s: %v", p.Path, err)
		res.diags = append(res.diags, matchup.Diagnostic{Path: p.Path, Message: err.Error()})
		return res
	}
	tracef("%s: %d samples in processing interval", p.Path, len(samples))
	if len(samples) == 0 {
		return res
	}

	for _, s := range m.secondaries {
		candidates := m.sel(p, s, samples, m.delta)
		if len(candidates) == 0 {
			continue
		}
		sets, err := m.matchSecondary(s, candidates)
		if err != nil {
			opsf("skipping secondary %s for %s: %v", s.Path, p.Path, err)
			res.diags = append(res.diags, matchup.Diagnostic{Path: s.Path, Message: err.Error()})
			continue
		}
		tracef("%s x %s: %d of %d candidates matched", p.Path, s.Path, len(sets), len(candidates))
		res.sets = append(res.sets, matchup.MatchupSet{
			ID:              uuid.NewString(),
			PrimarySensor:   p.Sensor,
			SecondarySensor: s.Sensor,
			PrimaryPath:     p.Path,
			SecondaryPath:   s.Path,
			SampleSets:      sets,
		})
	}
	return res
}

// primarySamples reads every geolocated pixel of the primary whose
// acquisition time lies in the run window.
func (m *matcher) primarySamples(p catalog.Observation) ([]matchup.Sample, error) {
	r, err := m.rc.Readers.Open(p.Sensor, p.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	dim, err := r.ProductSize()
	if err != nil {
		return nil, err
	}
	lonVar, latVar := r.GeolocationVariables()
	start, end := m.rc.Start.UnixMilli(), m.rc.End.UnixMilli()

	var samples []matchup.Sample
	for y := 0; y < dim.Ny; y++ {
		times, err := reader.ReadRow(r, y, "")
		if err != nil {
			return nil, err
		}
		lons, err := reader.ReadRow(r, y, lonVar)
		if err != nil {
			return nil, err
		}
		lats, err := reader.ReadRow(r, y, latVar)
		if err != nil {
			return nil, err
		}
		for x := range times {
			if math.IsNaN(times[x]) || math.IsNaN(lons[x]) || math.IsNaN(lats[x]) {
				continue
			}
			t := secondsToMillis(times[x])
			if t < start || t > end {
				continue
			}
			samples = append(samples, matchup.Sample{X: x, Y: y, Lon: lons[x], Lat: lats[x], Time: t})
		}
	}
	return samples, nil
}

// matchSecondary pairs each candidate with the nearest pixel of the
// secondary. Candidates whose nearest pixel is outside the time delta, or has
// no valid time, are dropped.
func (m *matcher) matchSecondary(s catalog.Observation, candidates []matchup.Sample) ([]matchup.SampleSet, error) {
	r, err := m.rc.Readers.Open(s.Sensor, s.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	locator, err := reader.NewPixelLocator(r)
	if err != nil {
		return nil, err
	}

	maxDelta := m.delta.Milliseconds()
	var sets []matchup.SampleSet
	for _, c := range candidates {
		x, y, _, ok := locator.Locate(c.Lon, c.Lat)
		if !ok {
			break
		}
		seconds, err := reader.ReadTimePixel(r, x, y)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(seconds) {
			continue
		}
		t := secondsToMillis(seconds)
		if maxDelta > 0 && absInt64(t-c.Time) > maxDelta {
			continue
		}
		lon, lat, err := reader.ReadLocation(r, x, y)
		if err != nil {
			return nil, err
		}
		sets = append(sets, matchup.NewSampleSet(c, matchup.Sample{X: x, Y: y, Lon: lon, Lat: lat, Time: t}))
	}
	return sets, nil
}

func secondsToMillis(s float64) int64 {
	return int64(math.Round(s * 1000))
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
