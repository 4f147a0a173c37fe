package geometry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
)

// ErrInvalidTimeAxis is returned when the axis indices do not address the ring.
var ErrInvalidTimeAxis = errors.New("invalid time axis")

// TimeAxis maps positions along a segment of a footprint boundary to an
// estimated acquisition time. Times are assigned per vertex by linear
// interpolation over the vertex index; Time answers with the time of the
// nearest vertex.
type TimeAxis struct {
	points []orb.Point
	times  []time.Time
}

// CreateTimeAxis builds a TimeAxis from the ring vertices between startIndex
// and endIndex inclusive, walking in ring order. When endIndex is before
// startIndex the walk wraps around the ring's closing vertex.
func CreateTimeAxis(ring orb.Ring, startIndex, endIndex int, startTime, endTime time.Time) (*TimeAxis, error) {
	n := len(ring)
	if n > 1 && ring.Closed() {
		n--
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty ring", ErrInvalidTimeAxis)
	}
	if startIndex < 0 || startIndex >= n || endIndex < 0 || endIndex >= n {
		return nil, fmt.Errorf("%w: indices %d..%d outside ring of %d vertices", ErrInvalidTimeAxis, startIndex, endIndex, n)
	}

	count := endIndex - startIndex + 1
	if endIndex < startIndex {
		count = n - startIndex + endIndex + 1
	}

	points := make([]orb.Point, 0, count)
	for i := 0; i < count; i++ {
		points = append(points, ring[(startIndex+i)%n])
	}
	return NewTimeAxis(points, startTime, endTime)
}

// NewTimeAxis builds a TimeAxis directly from its ordered vertices. The first
// vertex is acquired at startTime and the last at endTime.
func NewTimeAxis(points []orb.Point, startTime, endTime time.Time) (*TimeAxis, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no vertices", ErrInvalidTimeAxis)
	}
	count := len(points)
	axis := &TimeAxis{
		points: make([]orb.Point, count),
		times:  make([]time.Time, 0, count),
	}
	copy(axis.points, points)

	span := endTime.Sub(startTime)
	for i := 0; i < count; i++ {
		if count == 1 {
			axis.times = append(axis.times, startTime)
			continue
		}
		frac := float64(i) / float64(count-1)
		offset := time.Duration(math.Round(float64(span) * frac))
		axis.times = append(axis.times, startTime.Add(offset))
	}
	return axis, nil
}

// Time returns the acquisition time of the axis vertex nearest to p.
func (a *TimeAxis) Time(p orb.Point) time.Time {
	best := 0
	bestDist := math.Inf(1)
	for i, q := range a.points {
		d := PointDistanceKm(p, q)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return a.times[best]
}

// StartTime is the time of the first axis vertex.
func (a *TimeAxis) StartTime() time.Time { return a.times[0] }

// EndTime is the time of the last axis vertex.
func (a *TimeAxis) EndTime() time.Time { return a.times[len(a.times)-1] }

// Points returns a copy of the axis vertices.
func (a *TimeAxis) Points() []orb.Point {
	out := make([]orb.Point, len(a.points))
	copy(out, a.points)
	return out
}
