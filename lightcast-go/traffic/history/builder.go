// Package history assembles padded token/feature sequences for each valid
// row of an intersection's event table.
package history

import (
	"github.com/lightcast/lightcast/lightcast-go/traffic/events"
	"github.com/lightcast/lightcast/lightcast-go/traffic/vocab"
)

// UnavailableTTE is the sentinel stored for signals without a known
// time-to-change. It must never be read without checking the availability
// flag.
const UnavailableTTE = 99.0

// Sample is one (row, valid window) pair ready for the model.
type Sample struct {
	// Tokens, TokenTypes and Timesteps are parallel sequences padded on
	// the right up to the builder's capacity. Timesteps holds normalized
	// recency weights.
	Tokens     []int
	TokenTypes [][4]float32
	Timesteps  []float32
	// SeqLen is the true sequence length before padding.
	SeqLen int

	// Per-signal labels for the target row. Classes defaults to 0 and
	// TTE to UnavailableTTE when the corresponding availability is 0.
	Classes    map[int]float32
	ClassAvail map[int]float32
	TTE        map[int]float32
	TTEAvail   map[int]float32

	SceneIdx int64
	FrameIdx int64
}

// Builder turns rows of a single intersection's table into Samples, given a
// fixed vocabulary and the intersection's signal ids.
type Builder struct {
	table   *events.Table
	vocab   *vocab.Vocab
	signals []int

	histLen  int
	minFreq  int
	capacity int
}

// NewBuilder sizes the sequence capacity from the table: max window length
// times the maximum number of events observed in any single frame.
func NewBuilder(t *events.Table, v *vocab.Vocab, signals []int, minFreq int) *Builder {
	maxEvents := 0
	for _, r := range t.Records {
		if len(r.Inputs) > maxEvents {
			maxEvents = len(r.Inputs)
		}
	}
	return &Builder{
		table:    t,
		vocab:    v,
		signals:  signals,
		histLen:  events.MaxHistFrames,
		minFreq:  minFreq,
		capacity: events.MaxHistFrames * maxEvents,
	}
}

// Capacity returns the fixed padded sequence length.
func (b *Builder) Capacity() int {
	return b.capacity
}

// Signals returns the signal ids this builder labels.
func (b *Builder) Signals() []int {
	return b.signals
}

// Build assembles the Sample for the given row.
//
// The traversal order is load-bearing: frames are visited oldest to newest
// across the window (target row inclusive) while a counter starts at
// validHistLen+1 and decrements per frame, so each token's recency weight is
// (distance to target row + 1) / max window length and the target row's
// tokens carry the smallest weight. The weight attaches positionally to the
// token emitted in the same iteration.
func (b *Builder) Build(row int) Sample {
	histLen := b.table.ValidHistLen[row]
	if histLen > b.histLen {
		histLen = b.histLen
	}

	tokens := make([]int, 0, b.capacity)
	types := make([][4]float32, 0, b.capacity)
	weights := make([]float32, 0, b.capacity)

	counter := histLen + 1
	for frame := row - histLen; frame <= row; frame++ {
		for _, obs := range b.table.Records[frame].Inputs {
			weights = append(weights, float32(counter)/float32(b.histLen))
			tokens = append(tokens, b.vocab.Lookup(obs.Token, b.minFreq))
			types = append(types, obs.TypeOneHot)
		}
		counter--
	}

	seqLen := len(tokens)
	for len(tokens) < b.capacity {
		tokens = append(tokens, b.vocab.PadIndex())
		types = append(types, [4]float32{})
		weights = append(weights, 0)
	}

	target := b.table.Records[row]
	s := Sample{
		Tokens:     tokens,
		TokenTypes: types,
		Timesteps:  weights,
		SeqLen:     seqLen,
		Classes:    make(map[int]float32, len(b.signals)),
		ClassAvail: make(map[int]float32, len(b.signals)),
		TTE:        make(map[int]float32, len(b.signals)),
		TTEAvail:   make(map[int]float32, len(b.signals)),
		SceneIdx:   target.SceneIdx,
		FrameIdx:   target.FrameIdx,
	}

	for _, tl := range b.signals {
		if class, ok := target.SignalClasses[tl]; ok {
			s.Classes[tl] = class
			s.ClassAvail[tl] = 1
		} else {
			s.Classes[tl] = 0
			s.ClassAvail[tl] = 0
		}
		if tte, ok := target.TimeToChange[tl]; ok {
			s.TTE[tl] = tte
			s.TTEAvail[tl] = 1
		} else {
			s.TTE[tl] = UnavailableTTE
			s.TTEAvail[tl] = 0
		}
	}
	return s
}
