package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// minFootprintExtent pads degenerate (point or line) footprints.
const minFootprintExtent = 1e-4

// FootprintFromPoints returns the bounding footprint of a sequence of
// geolocations, split at the antimeridian. Points are expected in acquisition
// order so that meridian crossings show up as jumps between neighbours.
func FootprintFromPoints(points []orb.Point) orb.MultiPolygon {
	if len(points) == 0 {
		return nil
	}

	shifted := make([]orb.Point, len(points))
	copy(shifted, points)
	NormalizePolygon(shifted)

	bound := orb.MultiPoint(shifted).Bound()
	if bound.Max[0]-bound.Min[0] >= 360 {
		bound.Min[0], bound.Max[0] = -180, 180
	}
	if bound.Max[0]-bound.Min[0] < minFootprintExtent {
		bound.Max[0] += minFootprintExtent
	}
	if bound.Max[1]-bound.Min[1] < minFootprintExtent {
		bound.Max[1] += minFootprintExtent
	}

	return orb.MultiPolygon(MapToGlobe(bound.ToPolygon()))
}

// Contains reports whether the footprint covers the point.
func Contains(footprint orb.MultiPolygon, p orb.Point) bool {
	return planar.MultiPolygonContains(footprint, p)
}

// Intersects reports whether any polygon bounds of a and b overlap. It is a
// coarse test used to select candidate observations.
func Intersects(a, b orb.MultiPolygon) bool {
	for _, pa := range a {
		ba := pa.Bound()
		for _, pb := range b {
			if ba.Intersects(pb.Bound()) {
				return true
			}
		}
	}
	return false
}

// MarshalFootprint encodes a footprint as WKT. An empty footprint encodes to
// the empty string.
func MarshalFootprint(footprint orb.MultiPolygon) string {
	if len(footprint) == 0 {
		return ""
	}
	return wkt.MarshalString(footprint)
}

// ParseFootprint decodes a WKT POLYGON or MULTIPOLYGON.
func ParseFootprint(s string) (orb.MultiPolygon, error) {
	if s == "" {
		return nil, nil
	}
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to parse footprint: %w", err)
	}
	switch v := g.(type) {
	case orb.MultiPolygon:
		return v, nil
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	default:
		return nil, fmt.Errorf("unsupported footprint geometry %s", g.GeoJSONType())
	}
}
