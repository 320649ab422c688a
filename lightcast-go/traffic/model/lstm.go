package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// lstmCell holds the parameters of one direction of one recurrent layer.
// Gate layout follows the usual i, f, g, o order with all four gates stacked
// in the leading dimension.
type lstmCell struct {
	wih *Param // 4H x in
	whh *Param // 4H x H
	bih *Param // 4H x 1
	bhh *Param // 4H x 1

	in     int
	hidden int
}

func newLSTMCell(name string, in, hidden int, rng *rand.Rand) *lstmCell {
	c := &lstmCell{
		wih:    newParam(name+".wih", 4*hidden, in),
		whh:    newParam(name+".whh", 4*hidden, hidden),
		bih:    newParam(name+".bih", 4*hidden, 1),
		bhh:    newParam(name+".bhh", 4*hidden, 1),
		in:     in,
		hidden: hidden,
	}
	bound := 1 / math.Sqrt(float64(hidden))
	for _, p := range c.params() {
		p.initUniform(rng, bound)
	}
	return c
}

func (c *lstmCell) params() []*Param {
	return []*Param{c.wih, c.whh, c.bih, c.bhh}
}

// cellStep caches everything one timestep needs for backpropagation.
type cellStep struct {
	t     int // original timestep index
	x     *mat.VecDense
	hPrev []float64
	cPrev []float64

	i, f, g, o   []float64
	tanhC        []float64
	c, h         []float64
}

func (c *lstmCell) step(t int, x *mat.VecDense, hPrev, cPrev []float64) *cellStep {
	H := c.hidden

	z := mat.NewVecDense(4*H, nil)
	z.MulVec(c.wih.Value, x)
	rec := mat.NewVecDense(4*H, nil)
	rec.MulVec(c.whh.Value, mat.NewVecDense(H, hPrev))
	z.AddVec(z, rec)
	z.AddVec(z, c.bih.Value.ColView(0))
	z.AddVec(z, c.bhh.Value.ColView(0))

	st := &cellStep{
		t: t, x: x, hPrev: hPrev, cPrev: cPrev,
		i: make([]float64, H), f: make([]float64, H),
		g: make([]float64, H), o: make([]float64, H),
		tanhC: make([]float64, H),
		c:     make([]float64, H), h: make([]float64, H),
	}
	for j := 0; j < H; j++ {
		st.i[j] = sigmoid(z.AtVec(j))
		st.f[j] = sigmoid(z.AtVec(H + j))
		st.g[j] = math.Tanh(z.AtVec(2*H + j))
		st.o[j] = sigmoid(z.AtVec(3*H + j))
		st.c[j] = st.f[j]*cPrev[j] + st.i[j]*st.g[j]
		st.tanhC[j] = math.Tanh(st.c[j])
		st.h[j] = st.o[j] * st.tanhC[j]
	}
	return st
}

// runSeq processes xs in the given timestep order and returns the per-step
// tape in processing order plus the final hidden state.
func (c *lstmCell) runSeq(xs []*mat.VecDense, order []int) (tape []*cellStep, final []float64) {
	h := make([]float64, c.hidden)
	cc := make([]float64, c.hidden)
	for _, t := range order {
		st := c.step(t, xs[t], h, cc)
		tape = append(tape, st)
		h, cc = st.h, st.c
	}
	return tape, h
}

// backwardSeq backpropagates through a processed sequence. dOuts carries the
// gradient of each timestep's hidden output (indexed by original timestep,
// entries may be nil); dFinal the gradient of the final hidden state. Input
// gradients are accumulated into dxs.
func (c *lstmCell) backwardSeq(tape []*cellStep, dOuts [][]float64, dFinal []float64, dxs []*mat.VecDense) {
	H := c.hidden

	carryH := make([]float64, H)
	if dFinal != nil {
		copy(carryH, dFinal)
	}
	carryC := make([]float64, H)

	dz := mat.NewVecDense(4*H, nil)
	tmp := mat.NewVecDense(c.in, nil)
	tmpH := mat.NewVecDense(H, nil)

	gwih := c.wih.Grad.RawMatrix()
	gwhh := c.whh.Grad.RawMatrix()
	gbih := c.bih.Grad.RawMatrix().Data
	gbhh := c.bhh.Grad.RawMatrix().Data

	for k := len(tape) - 1; k >= 0; k-- {
		st := tape[k]

		dh := carryH
		if dOuts != nil && dOuts[st.t] != nil {
			for j := 0; j < H; j++ {
				dh[j] += dOuts[st.t][j]
			}
		}

		for j := 0; j < H; j++ {
			do := dh[j] * st.tanhC[j]
			dct := carryC[j] + dh[j]*st.o[j]*(1-st.tanhC[j]*st.tanhC[j])

			di := dct * st.g[j]
			df := dct * st.cPrev[j]
			dg := dct * st.i[j]

			dz.SetVec(j, di*st.i[j]*(1-st.i[j]))
			dz.SetVec(H+j, df*st.f[j]*(1-st.f[j]))
			dz.SetVec(2*H+j, dg*(1-st.g[j]*st.g[j]))
			dz.SetVec(3*H+j, do*st.o[j]*(1-st.o[j]))

			carryC[j] = dct * st.f[j]
		}

		// parameter gradients
		for r := 0; r < 4*H; r++ {
			d := dz.AtVec(r)
			if d == 0 {
				continue
			}
			wrow := gwih.Data[r*gwih.Stride : r*gwih.Stride+c.in]
			for q := 0; q < c.in; q++ {
				wrow[q] += d * st.x.AtVec(q)
			}
			hrow := gwhh.Data[r*gwhh.Stride : r*gwhh.Stride+H]
			for q := 0; q < H; q++ {
				hrow[q] += d * st.hPrev[q]
			}
			gbih[r] += d
			gbhh[r] += d
		}

		// input gradient
		tmp.MulVec(c.wih.Value.T(), dz)
		dxs[st.t].AddVec(dxs[st.t], tmp)

		// recurrent gradient becomes the carry for the previous step
		tmpH.MulVec(c.whh.Value.T(), dz)
		carryH = make([]float64, H)
		copy(carryH, tmpH.RawVector().Data)
	}
}

// lstmStack is the multi-layer, optionally bidirectional recurrent encoder.
type lstmStack struct {
	layers  [][]*lstmCell // [layer][direction]
	hidden  int
	dropout float64
}

func newLSTMStack(in, hidden, numLayers int, bidirectional bool, dropout float64, rng *rand.Rand) *lstmStack {
	dirs := 1
	if bidirectional {
		dirs = 2
	}
	s := &lstmStack{hidden: hidden, dropout: dropout}
	layerIn := in
	for l := 0; l < numLayers; l++ {
		var cells []*lstmCell
		for d := 0; d < dirs; d++ {
			name := lstmName(l, d)
			cells = append(cells, newLSTMCell(name, layerIn, hidden, rng))
		}
		s.layers = append(s.layers, cells)
		layerIn = hidden * dirs
	}
	return s
}

func lstmName(layer, dir int) string {
	if dir == 0 {
		return fmt.Sprintf("lstm.l%d.fwd", layer)
	}
	return fmt.Sprintf("lstm.l%d.bwd", layer)
}

func (s *lstmStack) params() []*Param {
	var out []*Param
	for _, layer := range s.layers {
		for _, cell := range layer {
			out = append(out, cell.params()...)
		}
	}
	return out
}

func (s *lstmStack) dirs() int {
	return len(s.layers[0])
}

// outWidth is the pooled hidden width: hidden per direction.
func (s *lstmStack) outWidth() int {
	return s.hidden * s.dirs()
}

// stackTape caches one sequence's pass through every layer and direction.
type stackTape struct {
	T           int
	layerInputs [][]*mat.VecDense // input sequence fed to each layer
	dirTapes    [][][]*cellStep   // [layer][dir] tapes in processing order
	masks       [][][]float64     // dropout masks per non-top layer, nil if unused
}

// forward runs the full stack over one sequence, returning the tape and the
// pooled hidden state: the final forward hidden state concatenated with the
// final backward hidden state of the top layer.
func (s *lstmStack) forward(xs []*mat.VecDense, train bool, rng *rand.Rand) (*stackTape, []float64) {
	T := len(xs)
	dirs := s.dirs()

	fwdOrder := make([]int, T)
	bwdOrder := make([]int, T)
	for t := 0; t < T; t++ {
		fwdOrder[t] = t
		bwdOrder[t] = T - 1 - t
	}

	tape := &stackTape{
		T:           T,
		layerInputs: make([][]*mat.VecDense, len(s.layers)),
		dirTapes:    make([][][]*cellStep, len(s.layers)),
		masks:       make([][][]float64, len(s.layers)),
	}

	cur := xs
	var pooled []float64
	for l, cells := range s.layers {
		tape.layerInputs[l] = cur
		tape.dirTapes[l] = make([][]*cellStep, dirs)

		outs := make([][]float64, T) // concatenated per-direction outputs
		for t := range outs {
			outs[t] = make([]float64, s.hidden*dirs)
		}

		var finals []float64
		for d, cell := range cells {
			order := fwdOrder
			if d == 1 {
				order = bwdOrder
			}
			dirTape, final := cell.runSeq(cur, order)
			tape.dirTapes[l][d] = dirTape
			for _, st := range dirTape {
				copy(outs[st.t][d*s.hidden:(d+1)*s.hidden], st.h)
			}
			finals = append(finals, final...)
		}

		if l == len(s.layers)-1 {
			pooled = finals
			break
		}

		// dropout between layers, training only
		if train && s.dropout > 0 {
			keep := 1 - s.dropout
			masks := make([][]float64, T)
			for t := range outs {
				masks[t] = make([]float64, len(outs[t]))
				for j := range outs[t] {
					if rng.Float64() < keep {
						masks[t][j] = 1 / keep
					}
					outs[t][j] *= masks[t][j]
				}
			}
			tape.masks[l] = masks
		}

		next := make([]*mat.VecDense, T)
		for t := range outs {
			next[t] = mat.NewVecDense(len(outs[t]), outs[t])
		}
		cur = next
	}
	return tape, pooled
}

// backward propagates the pooled-state gradient through the stack and
// returns the gradient of the layer-0 input sequence.
func (s *lstmStack) backward(tape *stackTape, dPooled []float64) []*mat.VecDense {
	top := len(s.layers) - 1

	// dOuts of the layer currently being processed, nil above the top layer
	var dOuts [][]float64

	var dIn []*mat.VecDense
	for l := top; l >= 0; l-- {
		// gradient wrt this layer's input sequence
		dIn = make([]*mat.VecDense, tape.T)
		for t := range dIn {
			dIn[t] = mat.NewVecDense(s.layers[l][0].in, nil)
		}

		// dropout mask applied on this layer's outputs before they fed
		// the next layer
		if tape.masks[l] != nil && dOuts != nil {
			for t := range dOuts {
				if dOuts[t] == nil {
					continue
				}
				for j := range dOuts[t] {
					dOuts[t][j] *= tape.masks[l][t][j]
				}
			}
		}

		for d, cell := range s.layers[l] {
			var dirOuts [][]float64
			if dOuts != nil {
				dirOuts = make([][]float64, tape.T)
				for t := range dOuts {
					if dOuts[t] == nil {
						continue
					}
					dirOuts[t] = dOuts[t][d*s.hidden : (d+1)*s.hidden]
				}
			}

			var dFinal []float64
			if l == top && dPooled != nil {
				dFinal = dPooled[d*s.hidden : (d+1)*s.hidden]
			}

			cell.backwardSeq(tape.dirTapes[l][d], dirOuts, dFinal, dIn)
		}

		// this layer's input gradients are the lower layer's output
		// gradients
		if l > 0 {
			dOuts = make([][]float64, tape.T)
			for t := range dIn {
				dOuts[t] = dIn[t].RawVector().Data
			}
		}
	}
	return dIn
}
