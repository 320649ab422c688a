package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear is a single-output affine map used by the per-signal heads.
type Linear struct {
	W *Param // 1 x in
	B *Param // 1 x 1
}

func newLinear(name string, in int, rng *rand.Rand, bias float64) *Linear {
	l := &Linear{
		W: newParam(name+".w", 1, in),
		B: newParam(name+".b", 1, 1),
	}
	bound := 1 / math.Sqrt(float64(in))
	l.W.initUniform(rng, bound)
	l.B.fill(bias)
	return l
}

func (l *Linear) params() []*Param {
	return []*Param{l.W, l.B}
}

// Forward returns w·x + b.
func (l *Linear) Forward(x *mat.VecDense) float64 {
	return mat.Dot(l.W.Value.RowView(0), x) + l.B.Value.At(0, 0)
}

// Backward accumulates parameter gradients for upstream gradient dy and adds
// the input gradient into dx.
func (l *Linear) Backward(x *mat.VecDense, dy float64, dx *mat.VecDense) {
	w := l.W.Value.RawMatrix().Data
	gw := l.W.Grad.RawMatrix().Data
	for i := 0; i < x.Len(); i++ {
		gw[i] += dy * x.AtVec(i)
		dx.SetVec(i, dx.AtVec(i)+dy*w[i])
	}
	l.B.Grad.Set(0, 0, l.B.Grad.At(0, 0)+dy)
}
