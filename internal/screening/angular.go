package screening

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/reader"
)

// Names of the built-in screenings.
const (
	AngularName     = "angular"
	AtsrAngularName = "atsr-angular"
)

// Default variable names.
const (
	DefaultNadirVariable     = "view_zenith_nadir"
	DefaultFwardVariable     = "view_zenith_fward"
	DefaultSecondaryVariable = "satellite_zenith_angle"
)

// AngularConfig bounds the view zenith angles of a single-view pair.
// Unset limits are not checked.
type AngularConfig struct {
	MaxPrimaryVZA     *float64 `json:"max-primary-vza,omitempty"`
	MaxSecondaryVZA   *float64 `json:"max-secondary-vza,omitempty"`
	MaxAngleDelta     *float64 `json:"max-angle-delta,omitempty"`
	PrimaryVariable   string   `json:"primary-variable,omitempty"`
	SecondaryVariable string   `json:"secondary-variable,omitempty"`
}

// Angular keeps sample sets whose view zenith angles are within limits.
type Angular struct {
	cfg AngularConfig
}

// NewAngular is the Factory of the angular screening.
func NewAngular(params json.RawMessage) (Screening, error) {
	cfg := AngularConfig{
		PrimaryVariable:   DefaultSecondaryVariable,
		SecondaryVariable: DefaultSecondaryVariable,
	}
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	for name, v := range map[string]*float64{
		"max-primary-vza":   cfg.MaxPrimaryVZA,
		"max-secondary-vza": cfg.MaxSecondaryVZA,
		"max-angle-delta":   cfg.MaxAngleDelta,
	} {
		if v != nil && *v < 0 {
			return nil, fmt.Errorf("%w: %s must be non-negative, got %f", config.ErrInvalidConfig, name, *v)
		}
	}
	return &Angular{cfg: cfg}, nil
}

func (*Angular) Name() string { return AngularName }

func (a *Angular) Apply(sets []matchup.SampleSet, primary, secondary reader.Reader) ([]matchup.SampleSet, error) {
	var out []matchup.SampleSet
	for _, set := range sets {
		pVZA, err := reader.ReadPixel(primary, set.Primary.X, set.Primary.Y, a.cfg.PrimaryVariable)
		if err != nil {
			return nil, err
		}
		keep := within(pVZA, a.cfg.MaxPrimaryVZA)
		for _, sec := range set.Secondaries {
			if !keep {
				break
			}
			sVZA, err := reader.ReadPixel(secondary, sec.X, sec.Y, a.cfg.SecondaryVariable)
			if err != nil {
				return nil, err
			}
			keep = within(sVZA, a.cfg.MaxSecondaryVZA) && within(math.Abs(pVZA-sVZA), a.cfg.MaxAngleDelta)
		}
		if keep {
			out = append(out, set)
		}
	}
	return out, nil
}

// AtsrAngularConfig compares the two views of a dual-view primary against
// the secondary view angle.
type AtsrAngularConfig struct {
	AngleDeltaNadir      *float64 `json:"angle-delta-nadir,omitempty"`
	AngleDeltaFward      *float64 `json:"angle-delta-fward,omitempty"`
	PrimaryNadirVariable string   `json:"primary-nadir-variable,omitempty"`
	PrimaryFwardVariable string   `json:"primary-fward-variable,omitempty"`
	SecondaryVariable    string   `json:"secondary-variable,omitempty"`
}

// AtsrAngular keeps a sample set when the secondary view angle matches the
// primary nadir view or the primary forward view within the configured delta.
// A view without a delta is not considered; with neither delta set every set
// passes.
type AtsrAngular struct {
	cfg AtsrAngularConfig
}

// NewAtsrAngular is the Factory of the atsr-angular screening.
func NewAtsrAngular(params json.RawMessage) (Screening, error) {
	cfg := AtsrAngularConfig{
		PrimaryNadirVariable: DefaultNadirVariable,
		PrimaryFwardVariable: DefaultFwardVariable,
		SecondaryVariable:    DefaultSecondaryVariable,
	}
	if err := decodeParams(params, &cfg); err != nil {
		return nil, err
	}
	if cfg.AngleDeltaNadir != nil && *cfg.AngleDeltaNadir < 0 {
		return nil, fmt.Errorf("%w: angle-delta-nadir must be non-negative", config.ErrInvalidConfig)
	}
	if cfg.AngleDeltaFward != nil && *cfg.AngleDeltaFward < 0 {
		return nil, fmt.Errorf("%w: angle-delta-fward must be non-negative", config.ErrInvalidConfig)
	}
	return &AtsrAngular{cfg: cfg}, nil
}

func (*AtsrAngular) Name() string { return AtsrAngularName }

func (a *AtsrAngular) Apply(sets []matchup.SampleSet, primary, secondary reader.Reader) ([]matchup.SampleSet, error) {
	if a.cfg.AngleDeltaNadir == nil && a.cfg.AngleDeltaFward == nil {
		return append([]matchup.SampleSet(nil), sets...), nil
	}

	var out []matchup.SampleSet
	for _, set := range sets {
		nadir, fward := math.NaN(), math.NaN()
		var err error
		if a.cfg.AngleDeltaNadir != nil {
			if nadir, err = reader.ReadPixel(primary, set.Primary.X, set.Primary.Y, a.cfg.PrimaryNadirVariable); err != nil {
				return nil, err
			}
		}
		if a.cfg.AngleDeltaFward != nil {
			if fward, err = reader.ReadPixel(primary, set.Primary.X, set.Primary.Y, a.cfg.PrimaryFwardVariable); err != nil {
				return nil, err
			}
		}

		keep := true
		for _, sec := range set.Secondaries {
			angle, err := reader.ReadPixel(secondary, sec.X, sec.Y, a.cfg.SecondaryVariable)
			if err != nil {
				return nil, err
			}
			nadirOK := a.cfg.AngleDeltaNadir != nil && within(math.Abs(nadir-angle), a.cfg.AngleDeltaNadir)
			fwardOK := a.cfg.AngleDeltaFward != nil && within(math.Abs(fward-angle), a.cfg.AngleDeltaFward)
			if !nadirOK && !fwardOK {
				tracef("atsr-angular: drop (%d,%d) nadir=%.2f fward=%.2f secondary=%.2f", set.Primary.X, set.Primary.Y, nadir, fward, angle)
				keep = false
				break
			}
		}
		if keep {
			out = append(out, set)
		}
	}
	return out, nil
}

// within reports whether v is a number no larger than limit. A nil limit
// accepts any number.
func within(v float64, limit *float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return limit == nil || v <= *limit
}
