package condition

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/matchup"
)

func pair(pLon, pLat float64, pTime int64, sLon, sLat float64, sTime int64) matchup.SampleSet {
	return matchup.NewSampleSet(
		matchup.Sample{Lon: pLon, Lat: pLat, Time: pTime},
		matchup.Sample{Lon: sLon, Lat: sLat, Time: sTime},
	)
}

func collection(sets ...matchup.SampleSet) *matchup.Collection {
	return matchup.NewCollection(matchup.MatchupSet{ID: "test", SampleSets: sets})
}

func sampleSets(c *matchup.Collection) []matchup.SampleSet {
	var out []matchup.SampleSet
	for _, m := range c.Sets() {
		out = append(out, m.SampleSets...)
	}
	return out
}

func TestTimeDelta(t *testing.T) {
	t.Parallel()

	sets := []matchup.SampleSet{
		pair(0, 0, 1000000, 0, 0, 1000000),
		pair(0, 0, 1000000, 0, 0, 1300000),
		pair(0, 0, 1000000, 0, 0, 1300001),
		pair(0, 0, 1000000, 0, 0, 700001),
		pair(0, 0, 1000000, 0, 0, 699999),
	}

	got := TimeDelta{Max: 300 * time.Second}.Apply(sets, Context{})
	require.Len(t, got, 3)
	assert.Equal(t, int64(1000000), got[0].Secondaries[0].Time)
	assert.Equal(t, int64(1300000), got[1].Secondaries[0].Time)
	assert.Equal(t, int64(700001), got[2].Secondaries[0].Time)
	assert.Len(t, sets, 5, "input must not change")
}

func TestTimeDeltaAllSecondaries(t *testing.T) {
	t.Parallel()

	ok := matchup.NewSampleSet(matchup.Sample{Time: 0}, matchup.Sample{Time: 10}, matchup.Sample{Time: -10})
	bad := matchup.NewSampleSet(matchup.Sample{Time: 0}, matchup.Sample{Time: 10}, matchup.Sample{Time: 11})

	got := TimeDelta{Max: 10 * time.Millisecond}.Apply([]matchup.SampleSet{ok, bad}, Context{})
	require.Len(t, got, 1)
	assert.Len(t, got[0].Secondaries, 2)
	assert.Equal(t, int64(-10), got[0].Secondaries[1].Time)
}

func TestTimeRange(t *testing.T) {
	t.Parallel()

	start := time.Date(2002, 6, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(12 * 24 * time.Hour)
	ctx := NewContext(start, end, 0)

	sets := []matchup.SampleSet{
		pair(0, 0, start.UnixMilli()-1, 0, 0, 0),
		pair(0, 0, start.UnixMilli(), 0, 0, 0),
		pair(0, 0, start.Add(5*24*time.Hour).UnixMilli(), 0, 0, 0),
		pair(0, 0, end.UnixMilli(), 0, 0, 0),
		pair(0, 0, end.UnixMilli()+1, 0, 0, 0),
	}

	got := TimeRange{}.Apply(sets, ctx)
	require.Len(t, got, 3)
	assert.Equal(t, start.UnixMilli(), got[0].Primary.Time)
	assert.Equal(t, start.Add(5*24*time.Hour).UnixMilli(), got[1].Primary.Time)
	assert.Equal(t, end.UnixMilli(), got[2].Primary.Time)
}

func TestDistance(t *testing.T) {
	t.Parallel()

	sets := []matchup.SampleSet{
		pair(4.5, 5.6, 0, 4.50001, 5.60001, 0),
		pair(20, 14, 0, 20.002, 13.998, 0),
		pair(1, 2, 0, 3, 4, 0),
		pair(10, 0, 0, 10.03, 0, 0),
	}

	got := Distance{MaxKm: 4}.Apply(sets, Context{})
	require.Len(t, got, 3)
	assert.Equal(t, 4.5, got[0].Primary.Lon)
	assert.Equal(t, 20.0, got[1].Primary.Lon)
	// about 3.3 km along the equator
	assert.Equal(t, 10.0, got[2].Primary.Lon)
}

func TestConfigure(t *testing.T) {
	t.Parallel()

	delta := int64(300)
	dist := 4.0

	t.Run("all options", func(t *testing.T) {
		t.Parallel()
		e := Configure(config.UseCaseConfig{TimeDeltaSeconds: &delta, MaxPixelDistanceKm: &dist})
		names := []string{}
		for _, c := range e.Conditions() {
			names = append(names, c.Name())
		}
		assert.Equal(t, []string{"time-range", "time-delta", "distance"}, names)
		assert.Equal(t, int64(300000), e.MaxTimeDelta().Milliseconds())
		assert.Equal(t, "time-range, time-delta(5m0s), distance(4.000km)", e.Describe())
	})

	t.Run("omitted options are not applied", func(t *testing.T) {
		t.Parallel()
		e := Configure(config.UseCaseConfig{})
		require.Len(t, e.Conditions(), 1)
		assert.Equal(t, "time-range", e.Conditions()[0].Name())
		assert.Equal(t, time.Duration(0), e.MaxTimeDelta())

		// without a time-delta condition any time offset is accepted
		ctx := NewContext(time.UnixMilli(0), time.UnixMilli(10), 0)
		in := collection(pair(0, 0, 5, 50, 50, 99999999))
		out := e.Process(in, ctx)
		assert.Equal(t, 1, out.NumMatchups())
	})
}

func TestEngineProcessProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	const n = 500
	sets := make([]matchup.SampleSet, 0, n)
	for i := 0; i < n; i++ {
		pTime := rng.Int63n(20 * 24 * 3600 * 1000)
		pLon := rng.Float64()*360 - 180
		pLat := rng.Float64()*160 - 80
		sets = append(sets, pair(
			pLon, pLat, pTime,
			pLon+rng.Float64()*0.1-0.05, pLat+rng.Float64()*0.1-0.05, pTime+rng.Int63n(1200000)-600000,
		))
	}

	delta := int64(300)
	dist := 4.0
	cfg := config.UseCaseConfig{TimeDeltaSeconds: &delta, MaxPixelDistanceKm: &dist}
	start := time.UnixMilli(2 * 24 * 3600 * 1000)
	end := time.UnixMilli(15 * 24 * 3600 * 1000)
	ctx := NewContext(start, end, cfg.GetTimeDelta())

	e := Configure(cfg)
	in := collection(sets...)
	out := e.Process(in, ctx)
	kept := sampleSets(out)

	assert.Equal(t, n, in.NumMatchups(), "input must not change")
	require.NotEmpty(t, kept)
	require.Less(t, len(kept), n)

	t.Run("retained sets satisfy every bound", func(t *testing.T) {
		for _, s := range kept {
			sec := s.Secondaries[0]
			d := s.Primary.Time - sec.Time
			if d < 0 {
				d = -d
			}
			assert.LessOrEqual(t, d, delta*1000)
			assert.GreaterOrEqual(t, s.Primary.Time, start.UnixMilli())
			assert.LessOrEqual(t, s.Primary.Time, end.UnixMilli())
		}
	})

	t.Run("removed sets violate a bound", func(t *testing.T) {
		keptSet := make(map[matchup.Sample]bool, len(kept))
		for _, s := range kept {
			keptSet[s.Primary] = true
		}
		for _, s := range sets {
			if keptSet[s.Primary] {
				continue
			}
			one := []matchup.SampleSet{s}
			violates := len(TimeRange{}.Apply(one, ctx)) == 0 ||
				len(TimeDelta{Max: cfg.GetTimeDelta()}.Apply(one, ctx)) == 0 ||
				len(Distance{MaxKm: dist}.Apply(one, ctx)) == 0
			assert.True(t, violates, "set %+v removed without violating a condition", s.Primary)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		again := e.Process(out, ctx)
		if diff := cmp.Diff(kept, sampleSets(again)); diff != "" {
			t.Errorf("second pass changed the collection (-first +second):\n%s", diff)
		}
	})

	t.Run("order independent", func(t *testing.T) {
		reversed := NewEngine(Distance{MaxKm: dist}, TimeDelta{Max: cfg.GetTimeDelta()}, TimeRange{})
		got := sampleSets(reversed.Process(in, ctx))
		less := func(a, b matchup.SampleSet) bool { return a.Primary.Time < b.Primary.Time }
		if diff := cmp.Diff(kept, got, cmpopts.SortSlices(less)); diff != "" {
			t.Errorf("evaluation order changed the result (-want +got):\n%s", diff)
		}
	})
}

func TestEngineEmptyCollection(t *testing.T) {
	t.Parallel()

	delta := int64(1)
	e := Configure(config.UseCaseConfig{TimeDeltaSeconds: &delta})
	out := e.Process(matchup.NewCollection(), Context{})
	require.NotNil(t, out)
	assert.True(t, out.IsEmpty())
	assert.Equal(t, 0, out.NumMatchups())

	out = e.Process(nil, Context{})
	assert.Equal(t, 0, out.NumMatchups())
}

func TestEngineDropsEmptiedMatchupSets(t *testing.T) {
	t.Parallel()

	ctx := NewContext(time.UnixMilli(0), time.UnixMilli(100), 0)
	in := matchup.NewCollection(
		matchup.MatchupSet{ID: "out-of-range", SampleSets: []matchup.SampleSet{pair(0, 0, 500, 0, 0, 500)}},
		matchup.MatchupSet{ID: "in-range", SampleSets: []matchup.SampleSet{pair(0, 0, 50, 0, 0, 50)}},
	)

	out := NewEngine(TimeRange{}).Process(in, ctx)
	require.Equal(t, 1, out.Len())
	first, _ := out.First()
	assert.Equal(t, "in-range", first.ID)
}
