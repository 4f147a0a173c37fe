// Package testutil provides shared test utilities and fixtures.
//
// Products are held in memory and served through an Opener, so strategy and
// screening tests run without touching sensor files.
package testutil

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/matchup/internal/reader"
)

// Variable names used by the fixtures.
const (
	LonVar  = "lon"
	LatVar  = "lat"
	TimeVar = "time"
)

// ErrBroken is returned when opening a product registered as broken.
var ErrBroken = errors.New("broken product")

// Product is an in-memory sensor product. Variables are row-major, Nx*Ny
// values each. Time is seconds since the Unix epoch.
type Product struct {
	Dim    reader.Dimension
	Vars   map[string][]float64
	Layers map[string]int
}

// NewProduct returns a product of the given size with every variable NaN.
func NewProduct(nx, ny int) *Product {
	p := &Product{
		Dim:    reader.Dimension{Nx: nx, Ny: ny},
		Vars:   make(map[string][]float64),
		Layers: make(map[string]int),
	}
	for _, name := range []string{LonVar, LatVar, TimeVar} {
		p.Vars[name] = nanSlice(nx * ny)
	}
	return p
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// Set stores value for variable at pixel (x, y), creating the variable on
// first use.
func (p *Product) Set(variable string, x, y int, value float64) {
	v, ok := p.Vars[variable]
	if !ok {
		v = nanSlice(p.Dim.Nx * p.Dim.Ny)
		p.Vars[variable] = v
	}
	v[y*p.Dim.Nx+x] = value
}

// SetPixel stores the geolocation and acquisition time of a pixel.
func (p *Product) SetPixel(x, y int, lon, lat, timeSeconds float64) {
	p.Set(LonVar, x, y, lon)
	p.Set(LatVar, x, y, lat)
	p.Set(TimeVar, x, y, timeSeconds)
}

// Fill sets variable to value on every pixel.
func (p *Product) Fill(variable string, value float64) {
	for y := 0; y < p.Dim.Ny; y++ {
		for x := 0; x < p.Dim.Nx; x++ {
			p.Set(variable, x, y, value)
		}
	}
}

// Swath builds an nx by ny product on a regular grid starting at (lon0, lat0)
// with step degrees between pixels. Row y is acquired at t0 + y*rowSeconds.
func Swath(nx, ny int, lon0, lat0, step, t0, rowSeconds float64) *Product {
	p := NewProduct(nx, ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			lon := math.Mod(lon0+float64(x)*step+540, 360) - 180
			p.SetPixel(x, y, lon, lat0+float64(y)*step, t0+float64(y)*rowSeconds)
		}
	}
	return p
}

// Insitu builds a single-column product with one record per row. Each point
// is {lon, lat, timeSeconds}.
func Insitu(points ...[3]float64) *Product {
	p := NewProduct(1, len(points))
	for i, pt := range points {
		p.SetPixel(0, i, pt[0], pt[1], pt[2])
	}
	return p
}

// MemReader is a reader.Reader over a Product.
type MemReader struct {
	opener  *MemOpener
	product *Product
	path    string
}

var _ reader.Reader = (*MemReader)(nil)

// Open looks path up in the opener's products.
func (r *MemReader) Open(path string) error {
	p, err := r.opener.lookup(path)
	if err != nil {
		return err
	}
	r.product = p
	r.path = path
	r.opener.open.Add(1)
	return nil
}

// Close releases the product.
func (r *MemReader) Close() error {
	if r.product != nil {
		r.product = nil
		r.opener.open.Add(-1)
	}
	return nil
}

func (r *MemReader) ProductSize() (reader.Dimension, error) {
	if r.product == nil {
		return reader.Dimension{}, reader.ErrNotOpen
	}
	return r.product.Dim, nil
}

func (r *MemReader) ReadAcquisitionTime(x, y int, w reader.Window) (*mat.Dense, error) {
	return r.ReadRaw(x, y, w, TimeVar)
}

func (r *MemReader) ReadRaw(x, y int, w reader.Window, variable string) (*mat.Dense, error) {
	if r.product == nil {
		return nil, reader.ErrNotOpen
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if n, ok := r.product.Layers[variable]; ok {
		return nil, fmt.Errorf("%w: %q has %d layers", reader.ErrUnsupportedRank, variable, n)
	}
	values, ok := r.product.Vars[variable]
	if !ok {
		return nil, fmt.Errorf("%w: %q", reader.ErrVariableNotFound, variable)
	}
	dim := r.product.Dim
	out := mat.NewDense(w.Ny, w.Nx, nil)
	for j := 0; j < w.Ny; j++ {
		for i := 0; i < w.Nx; i++ {
			px, py := x-w.Nx/2+i, y-w.Ny/2+j
			v := math.NaN()
			if px >= 0 && px < dim.Nx && py >= 0 && py < dim.Ny {
				v = values[py*dim.Nx+px]
			}
			out.Set(j, i, v)
		}
	}
	return out, nil
}

func (r *MemReader) GeolocationVariables() (lon, lat string) { return LonVar, LatVar }

// MemOpener serves in-memory products by path and counts open readers.
type MemOpener struct {
	mu       sync.Mutex
	products map[string]*Product
	broken   map[string]bool
	open     atomic.Int64
	opened   atomic.Int64
}

var _ reader.Opener = (*MemOpener)(nil)

// NewMemOpener returns an opener with no products.
func NewMemOpener() *MemOpener {
	return &MemOpener{
		products: make(map[string]*Product),
		broken:   make(map[string]bool),
	}
}

// Add registers a product under path.
func (o *MemOpener) Add(path string, p *Product) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.products[path] = p
}

// Break makes opening path fail with ErrBroken.
func (o *MemOpener) Break(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.broken[path] = true
}

func (o *MemOpener) lookup(path string) (*Product, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.broken[path] {
		return nil, fmt.Errorf("%w: %s", ErrBroken, path)
	}
	p, ok := o.products[path]
	if !ok {
		return nil, fmt.Errorf("no such product: %s", path)
	}
	return p, nil
}

// Open implements reader.Opener. The sensor name is ignored.
func (o *MemOpener) Open(_, path string) (reader.Reader, error) {
	r := &MemReader{opener: o}
	if err := r.Open(path); err != nil {
		return nil, err
	}
	o.opened.Add(1)
	return r, nil
}

// OpenReaders returns the number of readers not yet closed.
func (o *MemOpener) OpenReaders() int64 { return o.open.Load() }

// Opened returns the number of successful opens.
func (o *MemOpener) Opened() int64 { return o.opened.Load() }

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertAllClosed fails the test if any reader opened through o is still open.
func AssertAllClosed(t *testing.T, o *MemOpener) {
	t.Helper()
	if n := o.OpenReaders(); n != 0 {
		t.Errorf("%d readers left open", n)
	}
}
