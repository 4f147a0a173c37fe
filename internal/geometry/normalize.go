package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
)

// globeOffsets are the longitude offsets of the three candidate globes a
// shifted polygon is intersected with, in output order.
var globeOffsets = [3]float64{-360, 0, 360}

// minClippedArea rejects clip results that collapsed onto a band edge.
const minClippedArea = 1e-12

// NormalizePolygon removes the ±180° discontinuity from a vertex sequence in
// place so that all longitudes lie in one contiguous 360° band.
//
// Each vertex is compared against the previous original longitude; a jump of
// more than 180° is treated as a meridian crossing and the running offset is
// adjusted by 360°. If the result reaches below -180° the whole sequence is
// moved east by 360°. Sequences with fewer than two vertices are left alone.
func NormalizePolygon(points []orb.Point) {
	if len(points) < 2 {
		return
	}

	offset := 0.0
	prev := points[0][0]
	minLon := points[0][0]
	for i := 1; i < len(points); i++ {
		lon := points[i][0]
		delta := lon - prev
		switch {
		case delta > 180:
			offset -= 360
		case delta < -180:
			offset += 360
		}
		prev = lon
		points[i][0] = lon + offset
		minLon = math.Min(minLon, points[i][0])
	}

	if minLon < -180 {
		for i := range points {
			points[i][0] += 360
		}
	}
}

// MapToGlobe maps a polygon whose longitudes may lie outside [-180, 180] back
// onto the canonical globe. The polygon is clipped against the globes at
// longitude offsets -360, 0 and +360; every non-empty piece is shifted into
// [-180, 180] and returned in offset order.
//
// The input is not modified. Vertex winding of the pieces is whatever the clip
// produces.
func MapToGlobe(p orb.Polygon) []orb.Polygon {
	if len(p) == 0 || len(p[0]) == 0 {
		return nil
	}

	var out []orb.Polygon
	for _, offset := range globeOffsets {
		bound := orb.Bound{
			Min: orb.Point{-180 + offset, -90},
			Max: orb.Point{180 + offset, 90},
		}
		if !bound.Intersects(p.Bound()) {
			continue
		}

		clipped := clip.Polygon(bound, p.Clone())
		if len(clipped) == 0 || len(clipped[0]) < 3 {
			continue
		}
		if math.Abs(planar.Area(clipped)) < minClippedArea {
			continue
		}

		out = append(out, shiftPolygon(clipped, -offset))
	}
	return out
}

func shiftPolygon(p orb.Polygon, dLon float64) orb.Polygon {
	if dLon == 0 {
		return p
	}
	for _, ring := range p {
		for i := range ring {
			ring[i][0] += dLon
		}
	}
	return p
}
