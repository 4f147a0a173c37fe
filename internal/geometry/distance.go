package geometry

import (
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean earth radius used for all great-circle distances.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two positions given in
// degrees.
func DistanceKm(lon1, lat1, lon2, lat2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusKm
}

// PointDistanceKm is DistanceKm for orb points.
func PointDistanceKm(a, b orb.Point) float64 {
	return DistanceKm(a[0], a[1], b[0], b[1])
}

// UnitVector returns the position on the unit sphere for a lon/lat pair.
// Chord distances between unit vectors are monotonic in great-circle
// distance, so they can be indexed with a euclidean tree.
func UnitVector(lon, lat float64) [3]float64 {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	return [3]float64{p.X, p.Y, p.Z}
}

// ChordToKm converts a squared chord length between unit vectors into a
// great-circle distance.
func ChordToKm(chord2 float64) float64 {
	return s1.ChordAngleFromSquaredLength(chord2).Angle().Radians() * EarthRadiusKm
}
