package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeibullMode(t *testing.T) {
	// k = 1 exactly is the boundary: monotonically decreasing density
	assert.Equal(t, 0.0, Weibull{K: 1.0, Lambda: 5.0}.Mode())
	assert.Equal(t, 0.0, Weibull{K: 0.5, Lambda: 5.0}.Mode())

	// k = 2, lambda = 3: mode = 3 * 0.5^0.5
	assert.InDelta(t, 2.1213, Weibull{K: 2.0, Lambda: 3.0}.Mode(), 1e-4)
}

func TestWeibullQuantile(t *testing.T) {
	// k = 1, lambda = 10, p = 0.5: 10 * (-ln 0.5)
	assert.InDelta(t, 6.931, Weibull{K: 1.0, Lambda: 10.0}.Quantile(0.5), 1e-3)

	w := Weibull{K: 2.0, Lambda: 3.0}
	assert.Less(t, w.Quantile(0.25), w.Quantile(0.75))
}

func TestWeibullLogProb(t *testing.T) {
	// k = 1 reduces to Exponential(1/lambda)
	w := Weibull{K: 1.0, Lambda: 2.0}
	x := 3.0
	want := math.Log(0.5) - x/2.0
	assert.InDelta(t, want, w.LogProb(x), 1e-12)
}

func TestWeibullLogProbGrad_MatchesFiniteDifference(t *testing.T) {
	const h = 1e-6
	for _, tc := range []struct {
		k, lambda, x float64
	}{
		{1.5, 2.0, 1.0},
		{3.0, 0.5, 4.0},
		{0.7, 10.0, 2.5},
	} {
		dk, dl := Weibull{K: tc.k, Lambda: tc.lambda}.LogProbGrad(tc.x)

		numK := (Weibull{K: tc.k + h, Lambda: tc.lambda}.LogProb(tc.x) -
			Weibull{K: tc.k - h, Lambda: tc.lambda}.LogProb(tc.x)) / (2 * h)
		numL := (Weibull{K: tc.k, Lambda: tc.lambda + h}.LogProb(tc.x) -
			Weibull{K: tc.k, Lambda: tc.lambda - h}.LogProb(tc.x)) / (2 * h)

		assert.InDelta(t, numK, dk, 1e-5, "dk at %+v", tc)
		assert.InDelta(t, numL, dl, 1e-5, "dlambda at %+v", tc)
	}
}
