package reader

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/matchup/internal/geometry"
)

// pixel is a geolocated product pixel stored as a unit vector so that
// euclidean nearest neighbours are great-circle nearest neighbours.
type pixel struct {
	v    [3]float64
	x, y int
}

func (p pixel) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.v[d] - c.(pixel).v[d]
}

func (p pixel) Dims() int { return 3 }

func (p pixel) Distance(c kdtree.Comparable) float64 {
	q := c.(pixel)
	var sum float64
	for i := range p.v {
		d := p.v[i] - q.v[i]
		sum += d * d
	}
	return sum
}

type pixels []pixel

func (p pixels) Index(i int) kdtree.Comparable { return p[i] }
func (p pixels) Len() int                      { return len(p) }
func (p pixels) Pivot(d kdtree.Dim) int        { return plane{pixels: p, Dim: d}.Pivot() }
func (p pixels) Slice(start, end int) kdtree.Interface {
	return p[start:end]
}

type plane struct {
	kdtree.Dim
	pixels
}

func (p plane) Less(i, j int) bool { return p.pixels[i].v[p.Dim] < p.pixels[j].v[p.Dim] }
func (p plane) Pivot() int         { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{Dim: p.Dim, pixels: p.pixels[start:end]}
}
func (p plane) Swap(i, j int) { p.pixels[i], p.pixels[j] = p.pixels[j], p.pixels[i] }

// PixelLocator finds the product pixel nearest to a geographic position.
type PixelLocator struct {
	tree *kdtree.Tree
	size int
}

// NewPixelLocator indexes every geolocated pixel of an open reader. Pixels
// with a NaN longitude or latitude are left out.
func NewPixelLocator(r Reader) (*PixelLocator, error) {
	dim, err := r.ProductSize()
	if err != nil {
		return nil, err
	}
	lonVar, latVar := r.GeolocationVariables()

	var pts pixels
	for y := 0; y < dim.Ny; y++ {
		lons, err := ReadRow(r, y, lonVar)
		if err != nil {
			return nil, fmt.Errorf("read longitude row %d: %w", y, err)
		}
		lats, err := ReadRow(r, y, latVar)
		if err != nil {
			return nil, fmt.Errorf("read latitude row %d: %w", y, err)
		}
		for x := range lons {
			if math.IsNaN(lons[x]) || math.IsNaN(lats[x]) {
				continue
			}
			pts = append(pts, pixel{v: geometry.UnitVector(lons[x], lats[x]), x: x, y: y})
		}
	}

	loc := &PixelLocator{size: len(pts)}
	if len(pts) > 0 {
		loc.tree = kdtree.New(pts, false)
	}
	return loc, nil
}

// Len returns the number of indexed pixels.
func (l *PixelLocator) Len() int { return l.size }

// Locate returns the pixel nearest to (lon, lat) and its great-circle distance
// in km. ok is false when no pixel is indexed.
func (l *PixelLocator) Locate(lon, lat float64) (x, y int, distKm float64, ok bool) {
	if l.tree == nil {
		return 0, 0, 0, false
	}
	got, d2 := l.tree.Nearest(pixel{v: geometry.UnitVector(lon, lat)})
	if got == nil {
		return 0, 0, 0, false
	}
	p := got.(pixel)
	return p.x, p.y, geometry.ChordToKm(d2), true
}
