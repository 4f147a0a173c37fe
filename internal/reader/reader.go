// Package reader defines how the matchup engine reads sensor products. A
// Reader exposes acquisition time, geolocation and named variables as
// windowed arrays around a pixel.
package reader

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotOpen is returned by reads on a reader that is not open.
	ErrNotOpen = errors.New("reader not open")
	// ErrUnsupportedRank is returned when a variable has more dimensions
	// than a windowed read can return.
	ErrUnsupportedRank = errors.New("unsupported variable rank")
	// ErrVariableNotFound is returned for unknown variable names.
	ErrVariableNotFound = errors.New("variable not found")
	// ErrUnknownReader is returned for reader tags nobody registered.
	ErrUnknownReader = errors.New("unknown reader")
)

// Window is the extent of a windowed read, centred on the requested pixel.
// Both sides are odd.
type Window struct {
	Nx int
	Ny int
}

// SinglePixel is the 1x1 window.
var SinglePixel = Window{Nx: 1, Ny: 1}

// Validate checks that the window is odd and positive.
func (w Window) Validate() error {
	if w.Nx < 1 || w.Ny < 1 || w.Nx%2 == 0 || w.Ny%2 == 0 {
		return fmt.Errorf("window %dx%d must have odd positive sides", w.Nx, w.Ny)
	}
	return nil
}

// Dimension is the pixel extent of a product.
type Dimension struct {
	Nx int
	Ny int
}

// Reader reads one sensor product. Reads after Close fail with ErrNotOpen.
//
// Windowed reads return an Ny x Nx matrix; element (j, i) holds pixel
// (x-Nx/2+i, y-Ny/2+j). Pixels outside the product are NaN.
type Reader interface {
	Open(path string) error
	Close() error
	ProductSize() (Dimension, error)
	// ReadAcquisitionTime returns acquisition times in seconds since the
	// Unix epoch.
	ReadAcquisitionTime(x, y int, w Window) (*mat.Dense, error)
	ReadRaw(x, y int, w Window, variable string) (*mat.Dense, error)
	// GeolocationVariables names the longitude and latitude variables.
	GeolocationVariables() (lon, lat string)
}

// ReadPixel returns the value of variable at a single pixel.
func ReadPixel(r Reader, x, y int, variable string) (float64, error) {
	m, err := r.ReadRaw(x, y, SinglePixel, variable)
	if err != nil {
		return 0, err
	}
	return m.At(0, 0), nil
}

// ReadTimePixel returns the acquisition time of a single pixel in seconds.
func ReadTimePixel(r Reader, x, y int) (float64, error) {
	m, err := r.ReadAcquisitionTime(x, y, SinglePixel)
	if err != nil {
		return 0, err
	}
	return m.At(0, 0), nil
}

// ReadLocation returns the longitude and latitude of a single pixel.
func ReadLocation(r Reader, x, y int) (lon, lat float64, err error) {
	lonVar, latVar := r.GeolocationVariables()
	if lon, err = ReadPixel(r, x, y, lonVar); err != nil {
		return 0, 0, err
	}
	if lat, err = ReadPixel(r, x, y, latVar); err != nil {
		return 0, 0, err
	}
	return lon, lat, nil
}

// ReadRow returns variable for the whole row y, indexed by x. An empty variable
// name reads the acquisition time.
func ReadRow(r Reader, y int, variable string) ([]float64, error) {
	dim, err := r.ProductSize()
	if err != nil {
		return nil, err
	}
	if dim.Nx == 0 {
		return nil, nil
	}
	half := dim.Nx / 2
	w := Window{Nx: 2*half + 1, Ny: 1}

	var m *mat.Dense
	if variable == "" {
		m, err = r.ReadAcquisitionTime(half, y, w)
	} else {
		m, err = r.ReadRaw(half, y, w, variable)
	}
	if err != nil {
		return nil, err
	}
	row := make([]float64, dim.Nx)
	for i := range row {
		row[i] = m.At(0, i)
	}
	return row, nil
}
