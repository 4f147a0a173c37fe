// Package geometry holds the antimeridian-aware footprint handling used by
// the matchup strategies: polygon normalisation across ±180°, splitting of
// shifted polygons back onto the canonical globe, great-circle distance and
// the piecewise time axis along an observation's ground track.
//
// Coordinates are orb.Point values in (longitude, latitude) degree order.
package geometry
