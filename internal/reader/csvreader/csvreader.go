// Package csvreader reads pixel tables stored as CSV. Each row is one pixel:
//
//	x,y,time,lon,lat,<variables...>
//
// x and y are optional; without them row i is pixel (0, i), one record per
// line as in-situ data is laid out. time is seconds since the Unix epoch.
// Empty cells read as NaN. Columns named like "radiance[0]", "radiance[1]"
// form a layered variable that windowed reads refuse with
// reader.ErrUnsupportedRank.
package csvreader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/matchup/internal/reader"
)

// Tag is the registry tag of this reader.
const Tag = "csv"

const (
	colX    = "x"
	colY    = "y"
	colTime = "time"
	colLon  = "lon"
	colLat  = "lat"
)

// Reader is a reader.Reader for CSV pixel tables.
type Reader struct {
	path   string
	dim    reader.Dimension
	vars   map[string][]float64
	layers map[string]int
	open   bool
}

var _ reader.Reader = (*Reader)(nil)

// New returns an unopened reader.
func New() reader.Reader { return &Reader{} }

// Register adds the CSV reader to r under Tag.
func Register(r *reader.Registry) { r.Register(Tag, New) }

// Open loads the whole table.
func (r *Reader) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if err := r.load(f); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	r.path = path
	r.open = true
	return nil
}

func (r *Reader) load(in io.Reader) error {
	cr := csv.NewReader(in)
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	records, err := cr.ReadAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return errors.New("missing header row")
	}

	header := records[0]
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colTime, colLon, colLat} {
		if _, ok := index[required]; !ok {
			return fmt.Errorf("missing column %q", required)
		}
	}
	xi, hasX := index[colX]
	yi, hasY := index[colY]

	rows := records[1:]
	xs := make([]int, len(rows))
	ys := make([]int, len(rows))
	r.dim = reader.Dimension{}
	for i, rec := range rows {
		x, y := 0, i
		if hasX {
			if x, err = strconv.Atoi(strings.TrimSpace(rec[xi])); err != nil {
				return fmt.Errorf("row %d: bad x: %w", i+2, err)
			}
		}
		if hasY {
			if y, err = strconv.Atoi(strings.TrimSpace(rec[yi])); err != nil {
				return fmt.Errorf("row %d: bad y: %w", i+2, err)
			}
		}
		if x < 0 || y < 0 {
			return fmt.Errorf("row %d: negative pixel index (%d, %d)", i+2, x, y)
		}
		xs[i], ys[i] = x, y
		r.dim.Nx = max(r.dim.Nx, x+1)
		r.dim.Ny = max(r.dim.Ny, y+1)
	}

	r.vars = make(map[string][]float64)
	r.layers = make(map[string]int)
	n := r.dim.Nx * r.dim.Ny
	for col, raw := range header {
		name := strings.TrimSpace(raw)
		if (hasX && col == xi) || (hasY && col == yi) {
			continue
		}
		if base, ok := layerName(name); ok {
			r.layers[base]++
			continue
		}
		values := make([]float64, n)
		for i := range values {
			values[i] = math.NaN()
		}
		for i, rec := range rows {
			v, err := parseCell(rec[col])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i+2, name, err)
			}
			values[ys[i]*r.dim.Nx+xs[i]] = v
		}
		r.vars[name] = values
	}
	return nil
}

func layerName(name string) (string, bool) {
	open := strings.IndexByte(name, '[')
	if open <= 0 || !strings.HasSuffix(name, "]") {
		return "", false
	}
	if _, err := strconv.Atoi(name[open+1 : len(name)-1]); err != nil {
		return "", false
	}
	return name[:open], true
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// Close releases the table. Closing twice is allowed.
func (r *Reader) Close() error {
	r.open = false
	r.vars = nil
	r.layers = nil
	return nil
}

// Path returns the path of the open product.
func (r *Reader) Path() string { return r.path }

func (r *Reader) ProductSize() (reader.Dimension, error) {
	if !r.open {
		return reader.Dimension{}, reader.ErrNotOpen
	}
	return r.dim, nil
}

func (r *Reader) ReadAcquisitionTime(x, y int, w reader.Window) (*mat.Dense, error) {
	return r.ReadRaw(x, y, w, colTime)
}

func (r *Reader) ReadRaw(x, y int, w reader.Window, variable string) (*mat.Dense, error) {
	if !r.open {
		return nil, reader.ErrNotOpen
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if n, ok := r.layers[variable]; ok {
		return nil, fmt.Errorf("%w: %q has %d layers", reader.ErrUnsupportedRank, variable, n)
	}
	values, ok := r.vars[variable]
	if !ok {
		return nil, fmt.Errorf("%w: %q", reader.ErrVariableNotFound, variable)
	}

	out := mat.NewDense(w.Ny, w.Nx, nil)
	x0, y0 := x-w.Nx/2, y-w.Ny/2
	for j := 0; j < w.Ny; j++ {
		for i := 0; i < w.Nx; i++ {
			px, py := x0+i, y0+j
			v := math.NaN()
			if px >= 0 && px < r.dim.Nx && py >= 0 && py < r.dim.Ny {
				v = values[py*r.dim.Nx+px]
			}
			out.Set(j, i, v)
		}
	}
	return out, nil
}

func (r *Reader) GeolocationVariables() (lon, lat string) { return colLon, colLat }
