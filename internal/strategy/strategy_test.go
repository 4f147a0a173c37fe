package strategy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/matchup/internal/catalog"
	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/geometry"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/screening"
	"github.com/banshee-data/matchup/internal/testutil"
)

const (
	t0        = 1_000_000
	primary   = "atsr-e2"
	secondary = "avhrr-n18"
)

func ts(sec float64) time.Time {
	return time.UnixMilli(int64(sec * 1000)).UTC()
}

type memCatalog struct {
	obs     []catalog.Observation
	queries []catalog.Query
}

func (c *memCatalog) add(o catalog.Observation) { c.obs = append(c.obs, o) }

func (c *memCatalog) QueryObservations(q catalog.Query) ([]catalog.Observation, error) {
	c.queries = append(c.queries, q)
	var out []catalog.Observation
	for _, o := range c.obs {
		if o.Sensor == q.Sensor && !o.Stop.Before(q.Start) && !o.Start.After(q.Stop) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// observation describes a product whose pixels lie in [lon0, lon1] x [lat0,
// lat1]. The footprint is padded by half a degree.
func observation(sensor, path string, start, stop float64, lon0, lat0, lon1, lat1 float64) catalog.Observation {
	fp := geometry.FootprintFromPoints([]orb.Point{{lon0 - 0.5, lat0 - 0.5}, {lon1 + 0.5, lat1 + 0.5}})
	return catalog.Observation{Sensor: sensor, Path: path, Start: ts(start), Stop: ts(stop), Footprint: fp}
}

func useCase(strategy string) config.UseCaseConfig {
	delta := int64(300)
	dist := 4.0
	return config.UseCaseConfig{
		Name:               "test",
		Strategy:           &strategy,
		PrimarySensor:      config.Sensor{Name: primary},
		SecondarySensor:    config.Sensor{Name: secondary},
		TimeDeltaSeconds:   &delta,
		MaxPixelDistanceKm: &dist,
	}
}

func runContext(cfg config.UseCaseConfig, cat Catalog, o *testutil.MemOpener) RunContext {
	return RunContext{
		Config:     cfg,
		Start:      ts(t0),
		End:        ts(t0 + 1000),
		Catalog:    cat,
		Readers:    o,
		Screenings: screening.DefaultRegistry(),
	}
}

// swathFixture registers a 5x5 primary and a co-located 5x5 secondary
// acquired 50 s later.
func swathFixture(cat *memCatalog, o *testutil.MemOpener) {
	o.Add("p1.csv", testutil.Swath(5, 5, 10, 10, 0.01, t0+100, 1))
	cat.add(observation(primary, "p1.csv", t0+100, t0+104, 10, 10, 10.04, 10.04))

	o.Add("s1.csv", testutil.Swath(5, 5, 10, 10, 0.01, t0+150, 1))
	cat.add(observation(secondary, "s1.csv", t0+150, t0+154, 10, 10, 10.04, 10.04))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()
	assert.Equal(t, []string{config.StrategyInsituPolarOrbiting, config.StrategyPolarOrbiting}, reg.Names())

	_, err := reg.Get("geostationary")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	cfg := useCase("geostationary")
	_, err = reg.Run(runContext(cfg, &memCatalog{}, testutil.NewMemOpener()))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRunContextValidate(t *testing.T) {
	t.Parallel()

	rc := runContext(useCase(config.StrategyPolarOrbiting), &memCatalog{}, testutil.NewMemOpener())
	require.NoError(t, rc.Validate())

	bad := rc
	bad.End = bad.Start.Add(-time.Second)
	assert.ErrorIs(t, bad.Validate(), config.ErrInvalidConfig)

	bad = rc
	bad.Config.Name = ""
	assert.ErrorIs(t, bad.Validate(), config.ErrInvalidConfig)

	bad = rc
	bad.Catalog = nil
	assert.Error(t, bad.Validate())
}

func TestPolarOrbiting(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	swathFixture(cat, o)

	res, err := PolarOrbiting{}.CreateMatchupCollection(runContext(useCase(config.StrategyPolarOrbiting), cat, o))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 25, res.RawCount)
	assert.Equal(t, 25, res.NumMatchups())
	assert.Zero(t, res.Skipped)
	testutil.AssertAllClosed(t, o)

	m, ok := res.Collection.First()
	require.True(t, ok)
	assert.Equal(t, "p1.csv", m.PrimaryPath)
	assert.Equal(t, "s1.csv", m.SecondaryPath)
	assert.Equal(t, primary, m.PrimarySensor)
	for _, set := range m.SampleSets {
		sec, ok := set.Secondary()
		require.True(t, ok)
		assert.Equal(t, set.Primary.X, sec.X)
		assert.Equal(t, set.Primary.Y, sec.Y)
		assert.EqualValues(t, 50_000, sec.Time-set.Primary.Time)
	}

	// secondary search window is widened by the time delta
	require.Len(t, cat.queries, 2)
	assert.Equal(t, ts(t0), cat.queries[0].Start)
	assert.Equal(t, ts(t0-300), cat.queries[1].Start)
	assert.Equal(t, ts(t0+1300), cat.queries[1].Stop)
}

func TestPolarOrbitingSkipsBrokenObservations(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	swathFixture(cat, o)

	cat.add(observation(primary, "p-broken.csv", t0+200, t0+204, 10, 10, 10.04, 10.04))
	o.Break("p-broken.csv")
	cat.add(observation(secondary, "s-broken.csv", t0+150, t0+154, 10, 10, 10.04, 10.04))
	o.Break("s-broken.csv")

	res, err := PolarOrbiting{}.CreateMatchupCollection(runContext(useCase(config.StrategyPolarOrbiting), cat, o))
	require.NoError(t, err)

	assert.Equal(t, 25, res.NumMatchups())
	assert.Equal(t, 2, res.Skipped)
	paths := []string{}
	for _, d := range res.Diagnostics {
		paths = append(paths, d.Path)
	}
	assert.ElementsMatch(t, []string{"p-broken.csv", "s-broken.csv"}, paths)
	testutil.AssertAllClosed(t, o)
}

func TestPolarOrbitingCandidateSelection(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	swathFixture(cat, o)

	// elsewhere on the globe
	o.Add("s-far.csv", testutil.Swath(5, 5, -120, -40, 0.01, t0+150, 1))
	cat.add(observation(secondary, "s-far.csv", t0+150, t0+154, -120, -40, -119.96, -39.96))
	// same place, 800 s later
	o.Add("s-late.csv", testutil.Swath(5, 5, 10, 10, 0.01, t0+900, 1))
	cat.add(observation(secondary, "s-late.csv", t0+900, t0+904, 10, 10, 10.04, 10.04))

	res, err := PolarOrbiting{}.CreateMatchupCollection(runContext(useCase(config.StrategyPolarOrbiting), cat, o))
	require.NoError(t, err)

	require.Equal(t, 1, res.Collection.Len())
	assert.Equal(t, "s1.csv", res.Collection.Sets()[0].SecondaryPath)
	assert.Equal(t, 25, res.RawCount)
	// primary plus s1 only
	assert.EqualValues(t, 2, o.Opened())
}

func TestPolarOrbitingConditionsFilterRaw(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	o.Add("p1.csv", testutil.Swath(5, 5, 10, 10, 0.01, t0+998, 1))
	cat.add(observation(primary, "p1.csv", t0+998, t0+1002, 10, 10, 10.04, 10.04))
	// about 0.1 degrees east: 6 to 11 km from every primary pixel
	o.Add("s1.csv", testutil.Swath(5, 5, 10.1, 10, 0.01, t0+998, 1))
	cat.add(observation(secondary, "s1.csv", t0+998, t0+1002, 10.1, 10, 10.14, 10.04))

	res, err := PolarOrbiting{}.CreateMatchupCollection(runContext(useCase(config.StrategyPolarOrbiting), cat, o))
	require.NoError(t, err)

	// rows 0..2 are acquired inside the run window
	assert.Equal(t, 15, res.RawCount)
	assert.True(t, res.Collection.IsEmpty())

	cfg := useCase(config.StrategyPolarOrbiting)
	cfg.MaxPixelDistanceKm = nil
	res, err = PolarOrbiting{}.CreateMatchupCollection(runContext(cfg, cat, o))
	require.NoError(t, err)
	assert.Equal(t, 15, res.NumMatchups())
	for _, set := range res.Collection.Sets()[0].SampleSets {
		assert.LessOrEqual(t, set.Primary.Time, ts(t0+1000).UnixMilli())
	}
}

func TestPolarOrbitingScreening(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	p := testutil.Swath(5, 5, 10, 10, 0.01, t0+100, 1)
	p.Fill(screening.DefaultNadirVariable, 10)
	p.Fill(screening.DefaultFwardVariable, 55)
	o.Add("p1.csv", p)
	cat.add(observation(primary, "p1.csv", t0+100, t0+104, 10, 10, 10.04, 10.04))

	s := testutil.Swath(5, 5, 10, 10, 0.01, t0+150, 1)
	s.Fill(screening.DefaultSecondaryVariable, 12)
	s.Set(screening.DefaultSecondaryVariable, 0, 0, 40)
	o.Add("s1.csv", s)
	cat.add(observation(secondary, "s1.csv", t0+150, t0+154, 10, 10, 10.04, 10.04))

	cfg := useCase(config.StrategyPolarOrbiting)
	cfg.Screenings = []config.ScreeningConfig{
		{Name: screening.AtsrAngularName, Params: json.RawMessage(`{"angle-delta-nadir": 5}`)},
	}
	res, err := PolarOrbiting{}.CreateMatchupCollection(runContext(cfg, cat, o))
	require.NoError(t, err)

	assert.Equal(t, 25, res.RawCount)
	assert.Equal(t, 24, res.NumMatchups())
	testutil.AssertAllClosed(t, o)
}

func TestScreeningReadErrorSkipsPair(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	for i, lon := range []float64{10, 20} {
		p := testutil.Swath(5, 5, lon, 10, 0.01, t0+100, 1)
		p.Fill(screening.DefaultNadirVariable, 10)
		p.Fill(screening.DefaultFwardVariable, 55)
		pPath := fmt.Sprintf("p%d.csv", i+1)
		o.Add(pPath, p)
		cat.add(observation(primary, pPath, t0+100, t0+104, lon, 10, lon+0.04, 10.04))

		s := testutil.Swath(5, 5, lon, 10, 0.01, t0+150, 1)
		s.Fill(screening.DefaultSecondaryVariable, 12)
		sPath := fmt.Sprintf("s%d.csv", i+1)
		o.Add(sPath, s)
		cat.add(observation(secondary, sPath, t0+150, t0+154, lon, 10, lon+0.04, 10.04))
		if i == 1 {
			s.Layers[screening.DefaultSecondaryVariable] = 3
		}
	}

	cfg := useCase(config.StrategyPolarOrbiting)
	cfg.Screenings = []config.ScreeningConfig{
		{Name: screening.AtsrAngularName, Params: json.RawMessage(`{"angle-delta-nadir": 5}`)},
	}
	res, err := PolarOrbiting{}.CreateMatchupCollection(runContext(cfg, cat, o))
	require.NoError(t, err)

	assert.Equal(t, 50, res.RawCount)
	assert.Equal(t, 25, res.NumMatchups())
	first, ok := res.Collection.First()
	require.True(t, ok)
	assert.Equal(t, "s1.csv", first.SecondaryPath)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "s2.csv", res.Diagnostics[0].Path)
	assert.Contains(t, res.Diagnostics[0].Message, "unsupported variable rank")
	testutil.AssertAllClosed(t, o)
}

func TestUnknownScreeningIsFatalBeforeAnyRead(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	swathFixture(cat, o)

	cfg := useCase(config.StrategyPolarOrbiting)
	cfg.Screenings = []config.ScreeningConfig{{Name: "cloud-mask"}}
	_, err := PolarOrbiting{}.CreateMatchupCollection(runContext(cfg, cat, o))
	assert.ErrorIs(t, err, screening.ErrUnknownScreening)
	assert.Empty(t, cat.queries)
	assert.Zero(t, o.Opened())
}

func TestNoPrimaryObservations(t *testing.T) {
	t.Parallel()

	for _, s := range []Strategy{PolarOrbiting{}, InsituPolarOrbiting{}} {
		res, err := s.CreateMatchupCollection(runContext(useCase(s.Name()), &memCatalog{}, testutil.NewMemOpener()))
		require.NoError(t, err, s.Name())
		assert.True(t, res.Collection.IsEmpty(), s.Name())
		assert.Zero(t, res.Skipped, s.Name())
	}
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	for i, name := range []string{"p1.csv", "p2.csv", "p3.csv", "p4.csv", "p5.csv"} {
		start := float64(t0 + 100 + 50*i)
		o.Add(name, testutil.Swath(4, 6, 10, 10, 0.01, start, 1))
		cat.add(observation(primary, name, start, start+5, 10, 10, 10.03, 10.05))
	}
	o.Add("s1.csv", testutil.Swath(5, 5, 10, 10, 0.01, t0+150, 1))
	cat.add(observation(secondary, "s1.csv", t0+150, t0+154, 10, 10, 10.04, 10.04))
	o.Add("s2.csv", testutil.Swath(5, 5, 10.005, 10.005, 0.01, t0+250, 1))
	cat.add(observation(secondary, "s2.csv", t0+250, t0+254, 10.005, 10.005, 10.045, 10.045))

	runWith := func(workers int) *matchup.Result {
		cfg := useCase(config.StrategyPolarOrbiting)
		cfg.Workers = &workers
		res, err := PolarOrbiting{}.CreateMatchupCollection(runContext(cfg, cat, o))
		require.NoError(t, err)
		return res
	}

	serial := runWith(1)
	require.False(t, serial.Collection.IsEmpty())
	for _, workers := range []int{2, 4, 16} {
		got := runWith(workers)
		if diff := cmp.Diff(serial.Collection.Sets(), got.Collection.Sets(),
			cmpopts.IgnoreFields(matchup.MatchupSet{}, "ID")); diff != "" {
			t.Errorf("workers=%d: collection mismatch (-serial +parallel):\n%s", workers, diff)
		}
	}
	testutil.AssertAllClosed(t, o)
}

func TestInsituPolarOrbiting(t *testing.T) {
	t.Parallel()

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	o.Add("buoys.csv", testutil.Insitu(
		[3]float64{10.02, 10.02, t0 + 102},
		[3]float64{10.0, 10.0, t0 + 2000}, // after the run window
		[3]float64{50, 50, t0 + 102},      // outside the swath
		[3]float64{10.03, 10.01, t0 + 101},
	))
	cat.add(catalog.Observation{Sensor: primary, Path: "buoys.csv", Start: ts(t0 + 101), Stop: ts(t0 + 2000)})

	s := observation(secondary, "s1.csv", t0+150, t0+154, 10, 10, 10.04, 10.04)
	s.TimeAxes = []catalog.TimeAxisRecord{{
		Points:    []orb.Point{{10.02, 10}, {10.02, 10.02}, {10.02, 10.04}},
		StartTime: ts(t0 + 150),
		EndTime:   ts(t0 + 154),
	}}
	o.Add("s1.csv", testutil.Swath(5, 5, 10, 10, 0.01, t0+150, 1))
	cat.add(s)

	res, err := InsituPolarOrbiting{}.CreateMatchupCollection(runContext(useCase(config.StrategyInsituPolarOrbiting), cat, o))
	require.NoError(t, err)

	require.Equal(t, 1, res.Collection.Len())
	m := res.Collection.Sets()[0]
	require.Len(t, m.SampleSets, 2)

	first, second := m.SampleSets[0], m.SampleSets[1]
	assert.Equal(t, 0, first.Primary.X)
	assert.Equal(t, 0, first.Primary.Y)
	assert.Equal(t, 3, second.Primary.Y)

	sec, _ := first.Secondary()
	assert.Equal(t, [2]int{2, 2}, [2]int{sec.X, sec.Y})
	sec, _ = second.Secondary()
	assert.Equal(t, [2]int{3, 1}, [2]int{sec.X, sec.Y})
	testutil.AssertAllClosed(t, o)
}

func TestAxisAllows(t *testing.T) {
	t.Parallel()

	axes := []catalog.TimeAxisRecord{{
		Points:    []orb.Point{{0, 0}, {0, 10}, {0, 20}},
		StartTime: ts(t0),
		EndTime:   ts(t0 + 2000),
	}}
	delta := 300 * time.Second

	// nearest vertex (0, 10) is at t0+1000; one vertex step of tolerance
	assert.True(t, axisAllows(axes, orb.Point{0.5, 10}, ts(t0+1000), delta))
	assert.True(t, axisAllows(axes, orb.Point{0.5, 10}, ts(t0+2300), delta))
	assert.False(t, axisAllows(axes, orb.Point{0.5, 10}, ts(t0+2400), delta))
	assert.True(t, axisAllows(nil, orb.Point{0.5, 10}, ts(t0+9999), delta))
}

func TestWithCatalogStore(t *testing.T) {
	t.Parallel()

	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.MigrateUp())

	cat := &memCatalog{}
	o := testutil.NewMemOpener()
	swathFixture(cat, o)
	for _, obs := range cat.obs {
		_, err := store.Insert(obs)
		require.NoError(t, err)
	}

	res, err := DefaultRegistry().Run(runContext(useCase(config.StrategyPolarOrbiting), store, o))
	require.NoError(t, err)
	assert.Equal(t, 25, res.NumMatchups())

	id, err := store.SaveRun(catalog.Run{UseCase: "test", Strategy: config.StrategyPolarOrbiting}, res)
	require.NoError(t, err)
	loaded, err := store.LoadRun(id)
	require.NoError(t, err)
	assert.Equal(t, res.Collection.Sets(), loaded.Collection.Sets())
}
