package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
)

func testConfig() Config {
	return Config{
		VocabSize:     4,
		Signals:       []int{7, 3}, // deliberately unsorted
		EmbeddingDim:  3,
		HiddenDim:     4,
		Layers:        2,
		Bidirectional: true,
		Dropout:       0,
		Seed:          1,
	}
}

// testSample builds a sample with seqLen real tokens padded up to capacity.
func testSample(seqLen, capacity int, signals []int) history.Sample {
	s := history.Sample{
		Tokens:     make([]int, capacity),
		TokenTypes: make([][4]float32, capacity),
		Timesteps:  make([]float32, capacity),
		SeqLen:     seqLen,
		Classes:    map[int]float32{},
		ClassAvail: map[int]float32{},
		TTE:        map[int]float32{},
		TTEAvail:   map[int]float32{},
	}
	for t := 0; t < capacity; t++ {
		if t < seqLen {
			s.Tokens[t] = t % 4
			s.TokenTypes[t][t%4] = 1
			s.Timesteps[t] = float32(seqLen-t) / float32(seqLen)
		} else {
			s.Tokens[t] = 5 // PAD row for VocabSize 4
		}
	}
	for _, tl := range signals {
		s.Classes[tl] = 1
		s.ClassAvail[tl] = 1
		s.TTE[tl] = 2.5
		s.TTEAvail[tl] = 1
	}
	return s
}

func TestForwardShapesAndOrdering(t *testing.T) {
	cfg := testConfig()
	m := New(cfg)

	batch := []history.Sample{
		testSample(3, 8, cfg.Signals),
		testSample(5, 8, cfg.Signals),
	}
	out := m.Forward(batch, false)

	assert.Equal(t, []int{3, 7}, out.Signals)
	for _, tl := range out.Signals {
		require.Len(t, out.GreenProb[tl], 2)
		require.Len(t, out.ShapeK[tl], 2)
		require.Len(t, out.ScaleLambda[tl], 2)
		for s := 0; s < 2; s++ {
			assert.Greater(t, out.GreenProb[tl][s], 0.0)
			assert.Less(t, out.GreenProb[tl][s], 1.0)
			assert.Greater(t, out.ShapeK[tl][s], 0.0)
			assert.Greater(t, out.ScaleLambda[tl][s], 0.0)
		}
	}
}

func TestForwardDeterministicForSeed(t *testing.T) {
	cfg := testConfig()
	batch := []history.Sample{testSample(4, 8, cfg.Signals)}

	a := New(cfg).Forward(batch, false)
	b := New(cfg).Forward(batch, false)
	for _, tl := range a.Signals {
		assert.Equal(t, a.GreenProb[tl], b.GreenProb[tl])
		assert.Equal(t, a.ShapeK[tl], b.ShapeK[tl])
		assert.Equal(t, a.ScaleLambda[tl], b.ScaleLambda[tl])
	}
}

func TestAllPaddingSampleUsesHeadBiases(t *testing.T) {
	cfg := testConfig()
	m := New(cfg)

	// zero sequence length means a zero pooled state, so the heads emit
	// exactly their bias activations
	out := m.Forward([]history.Sample{testSample(0, 8, cfg.Signals)}, false)
	for _, tl := range out.Signals {
		assert.InDelta(t, 0.5, out.GreenProb[tl][0], 1e-12)
		assert.InDelta(t, softplus(3.0), out.ShapeK[tl][0], 1e-12)
		assert.InDelta(t, softplus(2.0), out.ScaleLambda[tl][0], 1e-12)
	}
	assert.InDelta(t, 3.0486, softplus(3.0), 1e-4)
	assert.InDelta(t, 2.1269, softplus(2.0), 1e-4)
}

func TestCheckpointRoundTrip(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	path := CheckpointPath(dir, 0, 1)

	m := New(cfg)
	batch := []history.Sample{testSample(4, 8, cfg.Signals)}
	want := m.Forward(batch, false)

	require.NoError(t, m.SaveCheckpoint(path))

	// perturb every weight, then restore
	for _, p := range m.Parameters() {
		data := p.Value.RawMatrix().Data
		for j := range data {
			data[j] += 0.5
		}
	}
	require.NoError(t, m.LoadCheckpoint(path))

	got := m.Forward(batch, false)
	for _, tl := range want.Signals {
		assert.Equal(t, want.GreenProb[tl], got.GreenProb[tl])
		assert.Equal(t, want.ShapeK[tl], got.ShapeK[tl])
		assert.Equal(t, want.ScaleLambda[tl], got.ScaleLambda[tl])
	}
}

func TestCheckpointShapeMismatch(t *testing.T) {
	cfg := testConfig()
	dir := t.TempDir()
	path := CheckpointPath(dir, 0, 0)

	require.NoError(t, New(cfg).SaveCheckpoint(path))

	other := cfg
	other.HiddenDim = 8
	err := New(other).LoadCheckpoint(path)
	require.Error(t, err)
}

// TestBackwardMatchesFiniteDifference checks every parameter of the full
// model (embedding, both recurrent layers in both directions, all heads)
// against central finite differences of a fixed linear readout of the
// outputs.
func TestBackwardMatchesFiniteDifference(t *testing.T) {
	cfg := testConfig()
	m := New(cfg)

	batch := []history.Sample{
		testSample(3, 8, cfg.Signals),
		testSample(5, 8, cfg.Signals),
	}

	lossOf := func() float64 {
		out := m.Forward(batch, false)
		var loss float64
		for _, tl := range out.Signals {
			for s := range batch {
				loss += out.GreenProb[tl][s] + 2*out.ShapeK[tl][s] + 3*out.ScaleLambda[tl][s]
			}
		}
		return loss
	}

	out := m.Forward(batch, false)
	grads := NewOutputGrads(out)
	for _, tl := range out.Signals {
		for s := range batch {
			grads.DGreenProb[tl][s] = 1
			grads.DShapeK[tl][s] = 2
			grads.DScaleLambda[tl][s] = 3
		}
	}
	m.ZeroGrads()
	m.Backward(out, grads)

	const h = 1e-5
	for _, p := range m.Parameters() {
		data := p.Value.RawMatrix().Data
		grad := p.Grad.RawMatrix().Data

		// a few entries per parameter keeps the test fast
		n := len(data)
		if n > 4 {
			n = 4
		}
		for j := 0; j < n; j++ {
			orig := data[j]
			data[j] = orig + h
			up := lossOf()
			data[j] = orig - h
			down := lossOf()
			data[j] = orig

			num := (up - down) / (2 * h)
			tol := 1e-6 + 1e-4*math.Abs(num)
			assert.InDelta(t, num, grad[j], tol, "%s[%d]", p.Name, j)
		}
	}
}
