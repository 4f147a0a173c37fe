// Package ingest reads sensor products and records their metadata in the
// observation catalog: acquisition period, footprint, pass direction and a
// time axis along the ground track.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/matchup/internal/catalog"
	"github.com/banshee-data/matchup/internal/geometry"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/reader"
)

// ErrNoValidPixels is returned for products without a single geolocated,
// timestamped pixel.
var ErrNoValidPixels = errors.New("no valid pixels")

// maxAxisPoints caps the vertices of a time axis.
const maxAxisPoints = 64

// Store receives ingested observations. *catalog.Store implements it.
type Store interface {
	Insert(obs catalog.Observation) (int64, error)
}

// Ingester adds products to the catalog.
type Ingester struct {
	store   Store
	readers reader.Opener
}

// New returns an Ingester writing to store and opening products via readers.
func New(store Store, readers reader.Opener) *Ingester {
	return &Ingester{store: store, readers: readers}
}

// Ingest describes the product at path and inserts it into the catalog.
func (in *Ingester) Ingest(sensor, path string) (catalog.Observation, error) {
	r, err := in.readers.Open(sensor, path)
	if err != nil {
		return catalog.Observation{}, err
	}
	defer r.Close()

	obs, err := Describe(r)
	if err != nil {
		return catalog.Observation{}, fmt.Errorf("%s: %w", path, err)
	}
	obs.Sensor = sensor
	obs.Path = path
	if obs.ID, err = in.store.Insert(obs); err != nil {
		return catalog.Observation{}, err
	}
	diagf("ingested %s %s: %s .. %s, %s, %d footprint polygons", sensor, path,
		obs.Start.Format(time.RFC3339), obs.Stop.Format(time.RFC3339), obs.NodeType, len(obs.Footprint))
	return obs, nil
}

// IngestAll ingests every path. Products that fail are skipped and reported.
func (in *Ingester) IngestAll(sensor string, paths []string) ([]catalog.Observation, []matchup.Diagnostic) {
	var (
		out   []catalog.Observation
		diags []matchup.Diagnostic
	)
	for _, path := range paths {
		obs, err := in.Ingest(sensor, path)
		if err != nil {
			opsf("skipping %s: %v", path, err)
			diags = append(diags, matchup.Diagnostic{Path: path, Message: err.Error()})
			continue
		}
		out = append(out, obs)
	}
	return out, diags
}

type grid struct {
	nx, ny          int
	lon, lat, times [][]float64
}

func (g *grid) valid(x, y int) bool {
	return !math.IsNaN(g.lon[y][x]) && !math.IsNaN(g.lat[y][x])
}

// Describe derives catalog metadata from an open reader. Sensor and Path are
// left for the caller.
func Describe(r reader.Reader) (catalog.Observation, error) {
	g, err := readGrid(r)
	if err != nil {
		return catalog.Observation{}, err
	}

	start, stop := math.Inf(1), math.Inf(-1)
	for y := 0; y < g.ny; y++ {
		for x := 0; x < g.nx; x++ {
			t := g.times[y][x]
			if math.IsNaN(t) || !g.valid(x, y) {
				continue
			}
			start = math.Min(start, t)
			stop = math.Max(stop, t)
		}
	}
	if math.IsInf(start, 1) {
		return catalog.Observation{}, ErrNoValidPixels
	}

	obs := catalog.Observation{
		Start:     secondsToTime(start),
		Stop:      secondsToTime(stop),
		NodeType:  catalog.NodeUndefined,
		Footprint: geometry.FootprintFromPoints(outline(g)),
	}
	if g.nx > 1 && g.ny > 1 {
		if axis, node, ok := centreAxis(g); ok {
			obs.TimeAxes = []catalog.TimeAxisRecord{axis}
			obs.NodeType = node
		}
	}
	return obs, nil
}

func readGrid(r reader.Reader) (*grid, error) {
	dim, err := r.ProductSize()
	if err != nil {
		return nil, err
	}
	lonVar, latVar := r.GeolocationVariables()
	g := &grid{nx: dim.Nx, ny: dim.Ny}
	for y := 0; y < dim.Ny; y++ {
		times, err := reader.ReadRow(r, y, "")
		if err != nil {
			return nil, fmt.Errorf("read time row %d: %w", y, err)
		}
		lons, err := reader.ReadRow(r, y, lonVar)
		if err != nil {
			return nil, fmt.Errorf("read longitude row %d: %w", y, err)
		}
		lats, err := reader.ReadRow(r, y, latVar)
		if err != nil {
			return nil, fmt.Errorf("read latitude row %d: %w", y, err)
		}
		g.times = append(g.times, times)
		g.lon = append(g.lon, lons)
		g.lat = append(g.lat, lats)
	}
	return g, nil
}

// outline walks the product edge in order: first row, last column, last row
// backwards, first column upwards. Single row or column products yield their
// pixels in acquisition order.
func outline(g *grid) []orb.Point {
	var pts []orb.Point
	add := func(x, y int) {
		if g.valid(x, y) {
			pts = append(pts, orb.Point{g.lon[y][x], g.lat[y][x]})
		}
	}

	if g.nx == 1 || g.ny == 1 {
		for y := 0; y < g.ny; y++ {
			for x := 0; x < g.nx; x++ {
				add(x, y)
			}
		}
		return pts
	}

	for x := 0; x < g.nx; x++ {
		add(x, 0)
	}
	for y := 1; y < g.ny; y++ {
		add(g.nx-1, y)
	}
	for x := g.nx - 2; x >= 0; x-- {
		add(x, g.ny-1)
	}
	for y := g.ny - 2; y > 0; y-- {
		add(0, y)
	}
	return pts
}

// centreAxis builds the time axis along the central column. The node type
// follows the latitude trend between the first and last axis vertex.
func centreAxis(g *grid) (catalog.TimeAxisRecord, catalog.NodeType, bool) {
	x := g.nx / 2
	var rows []int
	for y := 0; y < g.ny; y++ {
		if g.valid(x, y) && !math.IsNaN(g.times[y][x]) {
			rows = append(rows, y)
		}
	}
	if len(rows) < 2 {
		return catalog.TimeAxisRecord{}, catalog.NodeUndefined, false
	}

	step := 1
	if len(rows) > maxAxisPoints {
		step = (len(rows) + maxAxisPoints - 1) / maxAxisPoints
	}
	var pts []orb.Point
	last := -1
	for i := 0; i < len(rows); i += step {
		last = rows[i]
		pts = append(pts, orb.Point{g.lon[last][x], g.lat[last][x]})
	}
	if end := rows[len(rows)-1]; end != last {
		last = end
		pts = append(pts, orb.Point{g.lon[end][x], g.lat[end][x]})
	}

	first := rows[0]
	rec := catalog.TimeAxisRecord{
		Points:    pts,
		StartTime: secondsToTime(g.times[first][x]),
		EndTime:   secondsToTime(g.times[last][x]),
	}

	node := catalog.NodeUndefined
	switch dLat := g.lat[last][x] - g.lat[first][x]; {
	case dLat > 0:
		node = catalog.NodeAscending
	case dLat < 0:
		node = catalog.NodeDescending
	}
	return rec, node, true
}

func secondsToTime(s float64) time.Time {
	return time.UnixMilli(int64(math.Round(s * 1000))).UTC()
}
