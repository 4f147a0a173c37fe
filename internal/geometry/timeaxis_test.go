package geometry

import (
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTimeAxis(t *testing.T) {
	t.Parallel()

	ring := orb.Ring{{10, 30}, {10, 20}, {10, 10}, {20, 10}, {30, 10}, {30, 20}, {30, 30}, {20, 30}, {10, 30}}
	start := time.UnixMilli(1000)
	end := time.UnixMilli(2000)

	t.Run("vertices along segment", func(t *testing.T) {
		t.Parallel()
		axis, err := CreateTimeAxis(ring, 0, 2, start, end)
		require.NoError(t, err)

		assert.Equal(t, int64(1000), axis.Time(orb.Point{10, 30}).UnixMilli())
		assert.Equal(t, int64(1500), axis.Time(orb.Point{10, 20}).UnixMilli())
		assert.Equal(t, int64(2000), axis.Time(orb.Point{10, 10}).UnixMilli())
		assert.Equal(t, start, axis.StartTime())
		assert.Equal(t, end, axis.EndTime())
	})

	t.Run("off-axis point snaps to nearest vertex", func(t *testing.T) {
		t.Parallel()
		axis, err := CreateTimeAxis(ring, 0, 2, start, end)
		require.NoError(t, err)

		// closer to (10, 20) than to either end
		assert.Equal(t, int64(1500), axis.Time(orb.Point{12, 18}).UnixMilli())
		// far east of the axis, still nearest to the southern vertex
		assert.Equal(t, int64(2000), axis.Time(orb.Point{25, 11}).UnixMilli())
	})

	t.Run("wraps past closing vertex", func(t *testing.T) {
		t.Parallel()
		axis, err := CreateTimeAxis(ring, 6, 1, start, end)
		require.NoError(t, err)

		points := axis.Points()
		require.Len(t, points, 4)
		assert.Equal(t, orb.Point{30, 30}, points[0])
		assert.Equal(t, orb.Point{10, 20}, points[3])
		assert.Equal(t, int64(2000), axis.Time(orb.Point{10, 20}).UnixMilli())
	})

	t.Run("single vertex axis", func(t *testing.T) {
		t.Parallel()
		axis, err := CreateTimeAxis(ring, 3, 3, start, end)
		require.NoError(t, err)
		assert.Equal(t, start, axis.Time(orb.Point{0, 0}))
	})

	t.Run("invalid indices", func(t *testing.T) {
		t.Parallel()
		_, err := CreateTimeAxis(ring, 0, 8, start, end)
		assert.ErrorIs(t, err, ErrInvalidTimeAxis)

		_, err = CreateTimeAxis(ring, -1, 2, start, end)
		assert.ErrorIs(t, err, ErrInvalidTimeAxis)

		_, err = CreateTimeAxis(nil, 0, 0, start, end)
		assert.ErrorIs(t, err, ErrInvalidTimeAxis)
	})
}

func TestNewTimeAxis(t *testing.T) {
	t.Parallel()

	points := []orb.Point{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}}
	axis, err := NewTimeAxis(points, time.UnixMilli(0), time.UnixMilli(4000))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), axis.Time(orb.Point{0.1, 2.9}).UnixMilli())

	points[0] = orb.Point{50, 50}
	assert.Equal(t, orb.Point{0, 0}, axis.Points()[0], "axis keeps its own copy")

	_, err = NewTimeAxis(nil, time.UnixMilli(0), time.UnixMilli(1))
	assert.ErrorIs(t, err, ErrInvalidTimeAxis)
}
