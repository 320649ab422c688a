package model

import "math"

// Adam is the optimizer used for all training runs.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64

	params []*Param
}

// NewAdam creates an Adam optimizer over the given parameters.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		params: params,
	}
	for _, p := range params {
		n := len(p.Value.RawMatrix().Data)
		a.m = append(a.m, make([]float64, n))
		a.v = append(a.v, make([]float64, n))
	}
	return a
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 {
	return a.lr
}

// SetLR replaces the learning rate; used by the plateau scheduler.
func (a *Adam) SetLR(lr float64) {
	a.lr = lr
}

// Step applies one update from the accumulated gradients.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, p := range a.params {
		data := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data
		m, v := a.m[i], a.v[i]
		for j, g := range grad {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			mHat := m[j] / c1
			vHat := v[j] / c2
			data[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}
