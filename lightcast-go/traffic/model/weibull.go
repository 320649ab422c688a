package model

import "math"

// Weibull is the two-parameter time-to-event distribution produced by the
// per-signal heads: shape K and scale Lambda, both strictly positive.
type Weibull struct {
	K      float64
	Lambda float64
}

// LogProb returns the log density at x:
//
//	ln k - ln λ + (k-1)(ln x - ln λ) - (x/λ)^k
//
// The result may be NaN or infinite in numerically unstable regions; callers
// are expected to zero such contributions rather than propagate them.
func (w Weibull) LogProb(x float64) float64 {
	lx := math.Log(x) - math.Log(w.Lambda)
	return math.Log(w.K) - math.Log(w.Lambda) + (w.K-1)*lx - math.Pow(x/w.Lambda, w.K)
}

// LogProbGrad returns the partial derivatives of LogProb with respect to K
// and Lambda.
func (w Weibull) LogProbGrad(x float64) (dk, dlambda float64) {
	lx := math.Log(x) - math.Log(w.Lambda)
	pow := math.Pow(x/w.Lambda, w.K)
	dk = 1/w.K + lx - pow*lx
	dlambda = (w.K / w.Lambda) * (pow - 1)
	return dk, dlambda
}

// Mode returns the continuous mode of the distribution:
// λ((k-1)/k)^(1/k) for k > 1. For k <= 1 the density is monotonically
// decreasing with no interior mode, so the mode is 0.
func (w Weibull) Mode() float64 {
	if w.K <= 1 {
		return 0
	}
	return w.Lambda * math.Pow((w.K-1)/w.K, 1/w.K)
}

// Quantile returns the quantile at probability p: λ(-ln(1-p))^(1/k).
func (w Weibull) Quantile(p float64) float64 {
	return w.Lambda * math.Pow(-math.Log(1-p), 1/w.K)
}
