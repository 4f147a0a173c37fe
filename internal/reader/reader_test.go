package reader_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/matchup/internal/reader"
	"github.com/banshee-data/matchup/internal/testutil"
)

func TestWindowValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, reader.SinglePixel.Validate())
	assert.NoError(t, reader.Window{Nx: 5, Ny: 3}.Validate())
	assert.Error(t, reader.Window{Nx: 2, Ny: 3}.Validate())
	assert.Error(t, reader.Window{Nx: 3, Ny: 0}.Validate())
	assert.Error(t, reader.Window{Nx: -1, Ny: 1}.Validate())
}

func TestReadHelpers(t *testing.T) {
	t.Parallel()

	o := testutil.NewMemOpener()
	o.Add("swath", testutil.Swath(4, 3, 10, 20, 0.5, 5000, 2))

	r, err := o.Open("s", "swath")
	require.NoError(t, err)
	defer r.Close()

	lon, lat, err := reader.ReadLocation(r, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 11.0, lon)
	assert.Equal(t, 20.5, lat)

	ts, err := reader.ReadTimePixel(r, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5004.0, ts)

	row, err := reader.ReadRow(r, 1, testutil.LonVar)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 10.5, 11, 11.5}, row)

	times, err := reader.ReadRow(r, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []float64{5004, 5004, 5004, 5004}, times)

	_, err = reader.ReadPixel(r, 0, 0, "nope")
	assert.ErrorIs(t, err, reader.ErrVariableNotFound)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := reader.NewRegistry()
	reg.Register("mem", func() reader.Reader { return &testutil.MemReader{} })

	assert.Equal(t, []string{"mem"}, reg.Tags())
	assert.ErrorIs(t, reg.Bind("atsr", "netcdf"), reader.ErrUnknownReader)
	require.NoError(t, reg.Bind("atsr", "mem"))

	_, err := reg.New("avhrr")
	assert.ErrorIs(t, err, reader.ErrUnknownReader)

	r, err := reg.New("atsr")
	require.NoError(t, err)
	assert.IsType(t, &testutil.MemReader{}, r)
}

func TestPixelLocator(t *testing.T) {
	t.Parallel()

	o := testutil.NewMemOpener()
	p := testutil.Swath(20, 10, 175, -5, 0.5, 0, 1)
	p.Set(testutil.LonVar, 3, 3, math.NaN())
	o.Add("swath", p)

	r, err := o.Open("s", "swath")
	require.NoError(t, err)
	defer r.Close()

	loc, err := reader.NewPixelLocator(r)
	require.NoError(t, err)
	assert.Equal(t, 199, loc.Len())

	t.Run("exact hit", func(t *testing.T) {
		x, y, d, ok := loc.Locate(177, -3)
		require.True(t, ok)
		assert.Equal(t, 4, x)
		assert.Equal(t, 4, y)
		assert.InDelta(t, 0, d, 1e-6)
	})

	t.Run("across the antimeridian", func(t *testing.T) {
		// x=12 sits at 175+6 = 181, stored as -179
		x, y, d, ok := loc.Locate(-179.1, -2.05)
		require.True(t, ok)
		assert.Equal(t, 12, x)
		assert.Equal(t, 6, y)
		assert.Less(t, d, 15.0)
	})

	t.Run("far away reports distance", func(t *testing.T) {
		_, _, d, ok := loc.Locate(0, 0)
		require.True(t, ok)
		assert.Greater(t, d, 10000.0)
	})
}

func TestPixelLocatorEmpty(t *testing.T) {
	t.Parallel()

	o := testutil.NewMemOpener()
	o.Add("empty", testutil.NewProduct(3, 3))
	r, err := o.Open("s", "empty")
	require.NoError(t, err)
	defer r.Close()

	loc, err := reader.NewPixelLocator(r)
	require.NoError(t, err)
	_, _, _, ok := loc.Locate(1, 1)
	assert.False(t, ok)
}
