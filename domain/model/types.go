package model

import (
	"fmt"
)

// ============================================================================
// GENERATIVE MODEL PRIMITIVES
// ============================================================================

// ParamVector is an ordered sequence of real-valued coefficients, one per
// modeled attribute level. Immutable once drawn: every consumer receives a
// copy or treats it as read-only.
type ParamVector []float64

// Len returns the number of coefficients
func (p ParamVector) Len() int {
	return len(p)
}

// Clone returns an independent copy
func (p ParamVector) Clone() ParamVector {
	out := make(ParamVector, len(p))
	copy(out, p)
	return out
}

// PriorFamily names a supported prior distribution family
type PriorFamily string

const (
	PriorNormal PriorFamily = "normal"
)

// PriorSpec declares the independent prior placed on each coefficient
type PriorSpec struct {
	Family PriorFamily `json:"family"`
	Loc    float64     `json:"loc"`
	Scale  float64     `json:"scale"`
	Dim    int         `json:"dim"`
}

// StandardNormalPrior returns independent normal(0,1) priors over dim coefficients
func StandardNormalPrior(dim int) PriorSpec {
	return PriorSpec{Family: PriorNormal, Loc: 0, Scale: 1, Dim: dim}
}

// Validate checks the prior specification
func (p PriorSpec) Validate() error {
	if p.Dim <= 0 {
		return fmt.Errorf("prior dimensionality must be positive, got %d", p.Dim)
	}
	if p.Family != PriorNormal {
		return fmt.Errorf("unsupported prior family %q", p.Family)
	}
	if p.Scale <= 0 {
		return fmt.Errorf("prior scale must be positive, got %g", p.Scale)
	}
	return nil
}

// ============================================================================
// DATASETS
// ============================================================================

// Dataset is the opaque payload carried from a data simulator to a posterior
// fitter. The orchestration layer never inspects it beyond validation; each
// fitter asserts the concrete dataset type it was built for.
type Dataset interface {
	Validate() error
}

// ChoiceDesign is the experimental design for a discrete-choice experiment:
// for each of N observations, P alternatives described by L attribute levels.
type ChoiceDesign struct {
	N int `json:"N"` // observations
	P int `json:"P"` // alternatives per observation
	L int `json:"L"` // attribute levels (coefficient dimensionality)

	// X[n][p] is the length-L attribute row for alternative p of observation n
	X [][][]float64 `json:"X"`
}

// Validate checks design shape consistency
func (d ChoiceDesign) Validate() error {
	if d.N <= 0 || d.P < 2 || d.L <= 0 {
		return fmt.Errorf("invalid design shape N=%d P=%d L=%d", d.N, d.P, d.L)
	}
	if len(d.X) != d.N {
		return fmt.Errorf("design has %d observation rows, declared N=%d", len(d.X), d.N)
	}
	for n, alts := range d.X {
		if len(alts) != d.P {
			return fmt.Errorf("observation %d has %d alternatives, declared P=%d", n, len(alts), d.P)
		}
		for p, row := range alts {
			if len(row) != d.L {
				return fmt.Errorf("observation %d alternative %d has %d levels, declared L=%d", n, p, len(row), d.L)
			}
		}
	}
	return nil
}

// ChoiceData is the full data contract passed to a multinomial-logit fitter:
// the design plus one chosen alternative index per observation.
type ChoiceData struct {
	Design ChoiceDesign `json:"design"`

	// Y[n] is the chosen alternative for observation n, in [0, P)
	Y []int `json:"Y"`
}

// Validate checks the observation vector against the design
func (c ChoiceData) Validate() error {
	if err := c.Design.Validate(); err != nil {
		return err
	}
	if len(c.Y) != c.Design.N {
		return fmt.Errorf("observation vector has length %d, design declares N=%d", len(c.Y), c.Design.N)
	}
	for n, y := range c.Y {
		if y < 0 || y >= c.Design.P {
			return fmt.Errorf("observation %d chose alternative %d outside [0, %d)", n, y, c.Design.P)
		}
	}
	return nil
}

// ============================================================================
// POSTERIOR DRAWS
// ============================================================================

// PosteriorDraws is the ordered sequence of parameter-vector draws returned by
// a fitting engine for one dataset. Produced per run, consumed by the rank
// calculator, then discardable.
type PosteriorDraws struct {
	Params []ParamVector
}

// Len returns the number of draws (M)
func (d *PosteriorDraws) Len() int {
	return len(d.Params)
}

// Dim returns the coefficient dimensionality of the draws, or 0 when empty
func (d *PosteriorDraws) Dim() int {
	if len(d.Params) == 0 {
		return 0
	}
	return len(d.Params[0])
}

// Validate checks that the draw set is non-empty and rectangular with the
// expected dimensionality. A violation is a contract mismatch between the
// declared model and the data passed in, never something to coerce.
func (d *PosteriorDraws) Validate(expectDim int) error {
	if d == nil || len(d.Params) == 0 {
		return fmt.Errorf("empty posterior draw set")
	}
	for m, draw := range d.Params {
		if len(draw) != expectDim {
			return fmt.Errorf("posterior draw %d has dimension %d, expected %d", m, len(draw), expectDim)
		}
	}
	return nil
}
