package screening

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/reader"
)

// Engine runs an ordered list of screenings over a collection.
type Engine struct {
	screenings []Screening
}

// NewEngine returns an engine with the given screenings in order.
func NewEngine(screenings ...Screening) *Engine {
	return &Engine{screenings: screenings}
}

// Configure builds the screenings listed in the use case. An unknown name or
// bad parameters are configuration errors.
func Configure(cfg config.UseCaseConfig, registry *Registry) (*Engine, error) {
	e := &Engine{}
	for i, sc := range cfg.Screenings {
		s, err := registry.New(sc.Name, sc.Params)
		if err != nil {
			return nil, fmt.Errorf("screenings[%d]: %w", i, err)
		}
		e.screenings = append(e.screenings, s)
	}
	return e, nil
}

// Len returns the number of configured screenings.
func (e *Engine) Len() int { return len(e.screenings) }

// Describe lists the configured screenings for logs.
func (e *Engine) Describe() string {
	names := make([]string, len(e.screenings))
	for i, s := range e.screenings {
		names[i] = s.Name()
	}
	return strings.Join(names, ", ")
}

// Process screens every matchup set of in and returns a new collection.
// Readers for each observation pair are opened through opener and closed
// before the next pair. A pair that cannot be opened or read, including a
// missing or layered variable, is dropped and reported as a diagnostic
// naming the observation at fault; the remaining pairs are still screened.
func (e *Engine) Process(in *matchup.Collection, opener reader.Opener) (*matchup.Collection, []matchup.Diagnostic) {
	out := matchup.NewCollection()
	if len(e.screenings) == 0 {
		for _, m := range in.Sets() {
			out.Add(m)
		}
		return out, nil
	}

	var diags []matchup.Diagnostic
	for _, m := range in.Sets() {
		sets, err := e.screenSet(m, opener)
		if err != nil {
			path := m.SecondaryPath
			var oe *observationError
			if errors.As(err, &oe) {
				path = oe.path
			}
			opsf("skipping %s/%s: %v", m.PrimaryPath, m.SecondaryPath, err)
			diags = append(diags, matchup.Diagnostic{Path: path, Message: err.Error()})
			continue
		}
		diagf("%s x %s: screenings kept %d of %d sample sets", m.PrimaryPath, m.SecondaryPath, len(sets), len(m.SampleSets))
		out.Add(m.WithSampleSets(sets))
	}
	return out, diags
}

func (e *Engine) screenSet(m matchup.MatchupSet, opener reader.Opener) ([]matchup.SampleSet, error) {
	primary, err := opener.Open(m.PrimarySensor, m.PrimaryPath)
	if err != nil {
		return nil, &observationError{path: m.PrimaryPath, err: err}
	}
	defer primary.Close()

	secondary, err := opener.Open(m.SecondarySensor, m.SecondaryPath)
	if err != nil {
		return nil, &observationError{path: m.SecondaryPath, err: err}
	}
	defer secondary.Close()

	p := pathReader{Reader: primary, path: m.PrimaryPath}
	s := pathReader{Reader: secondary, path: m.SecondaryPath}
	sets := m.SampleSets
	for _, sc := range e.screenings {
		if len(sets) == 0 {
			break
		}
		if sets, err = sc.Apply(sets, p, s); err != nil {
			return nil, fmt.Errorf("screening %s: %w", sc.Name(), err)
		}
	}
	return sets, nil
}

// pathReader tags read errors with the observation they came from.
type pathReader struct {
	reader.Reader
	path string
}

func (r pathReader) ReadAcquisitionTime(x, y int, w reader.Window) (*mat.Dense, error) {
	m, err := r.Reader.ReadAcquisitionTime(x, y, w)
	if err != nil {
		return nil, &observationError{path: r.path, err: err}
	}
	return m, nil
}

func (r pathReader) ReadRaw(x, y int, w reader.Window, variable string) (*mat.Dense, error) {
	m, err := r.Reader.ReadRaw(x, y, w, variable)
	if err != nil {
		return nil, &observationError{path: r.path, err: err}
	}
	return m, nil
}

type observationError struct {
	path string
	err  error
}

func (e *observationError) Error() string { return fmt.Sprintf("%s: %v", e.path, e.err) }

func (e *observationError) Unwrap() error { return e.err }
