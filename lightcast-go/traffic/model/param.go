package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Param is one trainable parameter tensor with its gradient accumulator.
// Parameters are created once at model construction and never change
// identity afterwards; only their values train.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, r, c int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(r, c, nil),
		Grad:  mat.NewDense(r, c, nil),
	}
}

// initUniform fills the parameter with U(-bound, bound), the recurrent and
// linear layer default.
func (p *Param) initUniform(rng *rand.Rand, bound float64) {
	data := p.Value.RawMatrix().Data
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * bound
	}
}

// initNormal fills the parameter with N(0, 1), the embedding default.
func (p *Param) initNormal(rng *rand.Rand) {
	data := p.Value.RawMatrix().Data
	for i := range data {
		data[i] = rng.NormFloat64()
	}
}

// fill sets every entry to v.
func (p *Param) fill(v float64) {
	data := p.Value.RawMatrix().Data
	for i := range data {
		data[i] = v
	}
}

// ZeroGrad clears the gradient accumulator.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

const (
	gradClampMin = -0.25
	gradClampMax = 0.25
)

// sanitizeSlice replaces NaN and infinite entries with zero, then clamps all
// entries to [gradClampMin, gradClampMax]. Infinities are zeroed, not
// clamped to the bound.
func sanitizeSlice(data []float64) {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		if v < gradClampMin {
			v = gradClampMin
		} else if v > gradClampMax {
			v = gradClampMax
		}
		data[i] = v
	}
}

// SanitizeGradients sanitizes every parameter gradient. It must run after
// backward and before the optimizer consumes the gradients.
func SanitizeGradients(params []*Param) {
	for _, p := range params {
		sanitizeSlice(p.Grad.RawMatrix().Data)
	}
}

// ClipGradNorm scales all gradients jointly so their global L2 norm does not
// exceed maxNorm. It returns the pre-clip norm.
func ClipGradNorm(params []*Param, maxNorm float64) float64 {
	var sum float64
	for _, p := range params {
		data := p.Grad.RawMatrix().Data
		sum += floats.Dot(data, data)
	}
	norm := math.Sqrt(sum)
	if norm > maxNorm {
		scale := maxNorm / (norm + 1e-6)
		for _, p := range params {
			floats.Scale(scale, p.Grad.RawMatrix().Data)
		}
	}
	return norm
}
