// Package model implements the per-intersection sequence model: an embedding
// over event tokens, a bidirectional multi-layer LSTM encoder shared across
// the intersection's signals, and per-signal heads producing a green-color
// probability and the two positive Weibull time-to-event parameters.
//
// The forward/backward passes are written out explicitly; there is no
// graph framework underneath, just the chain rule and gonum.
package model

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
)

// tokenFeatures is the width of the non-embedding per-token features: the
// 4-dim type one-hot plus the recency weight.
const tokenFeatures = 5

// Config fixes the model architecture. VocabSize counts raw vocabulary
// entries; UNKNOWN and PAD rows are added on top.
type Config struct {
	VocabSize int
	Signals   []int

	EmbeddingDim  int
	HiddenDim     int
	Layers        int
	Bidirectional bool
	Dropout       float64

	Seed int64
}

// DefaultConfig returns the architecture used in production runs.
func DefaultConfig(vocabSize int, signals []int) Config {
	return Config{
		VocabSize:     vocabSize,
		Signals:       signals,
		EmbeddingDim:  64,
		HiddenDim:     64,
		Layers:        2,
		Bidirectional: true,
		Dropout:       0.2,
		Seed:          42,
	}
}

// SignalHead groups the three output heads of one signal: color logit plus
// the Weibull shape and scale parameters. Heads are created once at
// construction, keyed by signal id, and never change identity afterwards.
type SignalHead struct {
	Color  *Linear
	ShapeK *Linear
	ScaleL *Linear
}

// Head bias initialization: color starts neutral; shape and scale start so
// that the initial Weibull is moderately peaked (k ~ softplus(3),
// lambda ~ softplus(2)) rather than a degenerate exponential or bathtub
// shape at step zero.
const (
	colorBiasInit = 0.0
	shapeBiasInit = 3.0
	scaleBiasInit = 2.0
)

// Model is the trainable predictor for one intersection.
type Model struct {
	Cfg Config

	Embedding *Param
	rnn       *lstmStack
	Heads     map[int]*SignalHead

	params []*Param
	rng    *rand.Rand
}

// New constructs and initializes a model from the config.
func New(cfg Config) *Model {
	rng := rand.New(rand.NewSource(cfg.Seed))

	m := &Model{
		Cfg:       cfg,
		Embedding: newParam("embedding", cfg.VocabSize+2, cfg.EmbeddingDim),
		Heads:     make(map[int]*SignalHead, len(cfg.Signals)),
		rng:       rng,
	}
	m.Embedding.initNormal(rng)

	m.rnn = newLSTMStack(cfg.EmbeddingDim+tokenFeatures, cfg.HiddenDim,
		cfg.Layers, cfg.Bidirectional, cfg.Dropout, rng)

	pooledDim := m.rnn.outWidth()
	for _, tl := range cfg.Signals {
		head := &SignalHead{
			Color:  newLinear(fmt.Sprintf("head.%d.color", tl), pooledDim, rng, colorBiasInit),
			ShapeK: newLinear(fmt.Sprintf("head.%d.shape_k", tl), pooledDim, rng, shapeBiasInit),
			ScaleL: newLinear(fmt.Sprintf("head.%d.scale_lambda", tl), pooledDim, rng, scaleBiasInit),
		}
		m.Heads[tl] = head
	}

	m.params = append(m.params, m.Embedding)
	m.params = append(m.params, m.rnn.params()...)
	for _, tl := range m.signalOrder() {
		head := m.Heads[tl]
		m.params = append(m.params, head.Color.params()...)
		m.params = append(m.params, head.ShapeK.params()...)
		m.params = append(m.params, head.ScaleL.params()...)
	}
	return m
}

// Parameters returns every trainable parameter in a stable order.
func (m *Model) Parameters() []*Param {
	return m.params
}

// ZeroGrads clears all gradient accumulators.
func (m *Model) ZeroGrads() {
	for _, p := range m.params {
		p.ZeroGrad()
	}
}

// SanitizeGradients replaces NaN/Inf gradient entries with zero and clamps
// all entries, for every parameter. Must run before the optimizer step.
func (m *Model) SanitizeGradients() {
	SanitizeGradients(m.params)
}

func (m *Model) signalOrder() []int {
	out := append([]int(nil), m.Cfg.Signals...)
	sort.Ints(out)
	return out
}

// sampleTape caches one sample's forward pass for backward.
type sampleTape struct {
	stack  *stackTape
	pooled *mat.VecDense
	tokens []int // token index per processed timestep

	// head pre-activations per signal
	colorLogit map[int]float64
	shapePre   map[int]float64
	scalePre   map[int]float64
}

// Output is one batch's forward result, indexed [signal][sample].
type Output struct {
	Signals []int

	GreenProb   map[int][]float64
	ShapeK      map[int][]float64
	ScaleLambda map[int][]float64

	tapes []*sampleTape
}

// OutputGrads carries the loss gradients wrt the forward outputs, with the
// same indexing as Output.
type OutputGrads struct {
	DGreenProb   map[int][]float64
	DShapeK      map[int][]float64
	DScaleLambda map[int][]float64
}

// NewOutputGrads allocates zeroed gradient holders matching out.
func NewOutputGrads(out *Output) *OutputGrads {
	var n int
	for _, tl := range out.Signals {
		n = len(out.GreenProb[tl])
		break
	}
	g := &OutputGrads{
		DGreenProb:   make(map[int][]float64, len(out.Signals)),
		DShapeK:      make(map[int][]float64, len(out.Signals)),
		DScaleLambda: make(map[int][]float64, len(out.Signals)),
	}
	for _, tl := range out.Signals {
		g.DGreenProb[tl] = make([]float64, n)
		g.DShapeK[tl] = make([]float64, n)
		g.DScaleLambda[tl] = make([]float64, n)
	}
	return g
}

// Forward runs the batch through the model. The pass is stateless: batches
// may arrive with lengths in any order. Dropout is active only when train is
// set.
func (m *Model) Forward(batch []history.Sample, train bool) *Output {
	out := &Output{
		Signals:     m.signalOrder(),
		GreenProb:   make(map[int][]float64, len(m.Heads)),
		ShapeK:      make(map[int][]float64, len(m.Heads)),
		ScaleLambda: make(map[int][]float64, len(m.Heads)),
	}
	for _, tl := range out.Signals {
		out.GreenProb[tl] = make([]float64, len(batch))
		out.ShapeK[tl] = make([]float64, len(batch))
		out.ScaleLambda[tl] = make([]float64, len(batch))
	}

	for s, sample := range batch {
		tape := m.forwardSample(sample, train)
		out.tapes = append(out.tapes, tape)

		for _, tl := range out.Signals {
			out.GreenProb[tl][s] = sigmoid(tape.colorLogit[tl])
			out.ShapeK[tl][s] = softplus(tape.shapePre[tl])
			out.ScaleLambda[tl][s] = softplus(tape.scalePre[tl])
		}
	}
	return out
}

func (m *Model) forwardSample(sample history.Sample, train bool) *sampleTape {
	pooledDim := m.rnn.outWidth()
	pooled := make([]float64, pooledDim)

	var stack *stackTape
	if sample.SeqLen > 0 {
		xs := make([]*mat.VecDense, sample.SeqLen)
		for t := 0; t < sample.SeqLen; t++ {
			xs[t] = m.tokenVector(sample, t)
		}
		var p []float64
		stack, p = m.rnn.forward(xs, train, m.rng)
		copy(pooled, p)
	}
	// an all-padding window encodes as the zero state

	tape := &sampleTape{
		stack:      stack,
		pooled:     mat.NewVecDense(pooledDim, pooled),
		tokens:     append([]int(nil), sample.Tokens[:sample.SeqLen]...),
		colorLogit: make(map[int]float64, len(m.Heads)),
		shapePre:   make(map[int]float64, len(m.Heads)),
		scalePre:   make(map[int]float64, len(m.Heads)),
	}
	for tl, head := range m.Heads {
		tape.colorLogit[tl] = head.Color.Forward(tape.pooled)
		tape.shapePre[tl] = head.ShapeK.Forward(tape.pooled)
		tape.scalePre[tl] = head.ScaleL.Forward(tape.pooled)
	}
	return tape
}

// tokenVector concatenates the token embedding with the type one-hot and the
// recency weight.
func (m *Model) tokenVector(sample history.Sample, t int) *mat.VecDense {
	dim := m.Cfg.EmbeddingDim
	v := make([]float64, dim+tokenFeatures)
	copy(v, m.Embedding.Value.RawRowView(sample.Tokens[t]))
	for j := 0; j < 4; j++ {
		v[dim+j] = float64(sample.TokenTypes[t][j])
	}
	v[dim+4] = float64(sample.Timesteps[t])
	return mat.NewVecDense(len(v), v)
}

// Backward accumulates parameter gradients for the batch given the loss
// gradients wrt the outputs. Forward must have produced out.
func (m *Model) Backward(out *Output, grads *OutputGrads) {
	for s, tape := range out.tapes {
		dPooled := mat.NewVecDense(m.rnn.outWidth(), nil)

		for _, tl := range out.Signals {
			head := m.Heads[tl]

			// sigmoid'(z) = p(1-p)
			p := out.GreenProb[tl][s]
			if d := grads.DGreenProb[tl][s]; d != 0 {
				head.Color.Backward(tape.pooled, d*p*(1-p), dPooled)
			}
			// softplus'(z) = sigmoid(z)
			if d := grads.DShapeK[tl][s]; d != 0 {
				head.ShapeK.Backward(tape.pooled, d*sigmoid(tape.shapePre[tl]), dPooled)
			}
			if d := grads.DScaleLambda[tl][s]; d != 0 {
				head.ScaleL.Backward(tape.pooled, d*sigmoid(tape.scalePre[tl]), dPooled)
			}
		}

		if tape.stack == nil {
			continue // all-padding sample: nothing below the heads
		}

		dxs := m.rnn.backward(tape.stack, dPooled.RawVector().Data)
		m.backwardEmbedding(tape, dxs)
	}
}

func (m *Model) backwardEmbedding(tape *sampleTape, dxs []*mat.VecDense) {
	dim := m.Cfg.EmbeddingDim
	for t, dx := range dxs {
		grow := m.Embedding.Grad.RawRowView(tape.tokens[t])
		for j := 0; j < dim; j++ {
			grow[j] += dx.AtVec(j)
		}
	}
}
