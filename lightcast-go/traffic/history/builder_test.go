package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightcast/lightcast/lightcast-go/traffic/events"
	"github.com/lightcast/lightcast/lightcast-go/traffic/vocab"
)

var t0 = time.Date(2020, 3, 14, 10, 0, 0, 0, time.UTC)

func frame(i int, tokens ...string) events.Record {
	r := events.Record{
		Timestamp:    t0.Add(time.Duration(i) * 100 * time.Millisecond),
		Intersection: 0,
		SceneIdx:     int64(100 + i),
		FrameIdx:     int64(i),
	}
	for j, tok := range tokens {
		var ohe [4]float32
		ohe[j%4] = 1
		r.Inputs = append(r.Inputs, events.TokenObservation{Token: tok, TypeOneHot: ohe})
	}
	return r
}

func withLabel(r events.Record, signal int, class, tte float32) events.Record {
	r.SignalClasses = map[int]float32{signal: class}
	r.TimeToChange = map[int]float32{signal: tte}
	return r
}

func newVocab(t *events.Table) *vocab.Vocab {
	return vocab.Build(t)
}

func TestBuild_TokenAndWeightOrdering(t *testing.T) {
	// three continuous frames; frame 2 has two tokens so the per-frame
	// counter must hold constant within a frame
	table := events.NewTable([]events.Record{
		frame(0, "a"),
		frame(1, "b", "c"),
		withLabel(frame(2, "d"), 5, 1, 2.0),
	})
	v := newVocab(table)
	b := NewBuilder(table, v, []int{5}, 0)

	s := b.Build(2)
	require.Equal(t, 4, s.SeqLen)

	// frames oldest to newest, per-frame tokens in original order
	assert.Equal(t, []int{v.Index["a"], v.Index["b"], v.Index["c"], v.Index["d"]}, s.Tokens[:4])

	// counter starts at validHistLen+1 = 3 and decrements per frame:
	// "a" -> 3/100, "b" and "c" -> 2/100, "d" -> 1/100
	assert.Equal(t, []float32{0.03, 0.02, 0.02, 0.01}, s.Timesteps[:4])

	// type vectors travel with their token
	assert.Equal(t, [4]float32{1, 0, 0, 0}, s.TokenTypes[0])
	assert.Equal(t, [4]float32{0, 1, 0, 0}, s.TokenTypes[2])
}

func TestBuild_PaddingAndCapacity(t *testing.T) {
	table := events.NewTable([]events.Record{
		frame(0, "a", "b"), // widest frame: 2 events
		withLabel(frame(1, "c"), 5, 0, 1.0),
	})
	v := newVocab(table)
	b := NewBuilder(table, v, []int{5}, 0)

	require.Equal(t, events.MaxHistFrames*2, b.Capacity())

	s := b.Build(1)
	assert.Equal(t, 3, s.SeqLen)
	assert.Len(t, s.Tokens, b.Capacity())
	for i := s.SeqLen; i < b.Capacity(); i++ {
		assert.Equal(t, v.PadIndex(), s.Tokens[i])
		assert.Equal(t, [4]float32{}, s.TokenTypes[i])
		assert.Equal(t, float32(0), s.Timesteps[i])
	}
}

func TestBuild_MinFreqResolvesToUnknown(t *testing.T) {
	table := events.NewTable([]events.Record{
		frame(0, "rare"),
		withLabel(frame(1, "rare"), 5, 1, 1.0),
	})
	v := newVocab(table) // "rare" has frequency 2

	b := NewBuilder(table, v, []int{5}, vocab.DefaultMinFreq)
	s := b.Build(1)
	assert.Equal(t, []int{v.UnknownIndex(), v.UnknownIndex()}, s.Tokens[:2])
}

func TestBuild_EmptyWindowStillValidSample(t *testing.T) {
	table := events.NewTable([]events.Record{
		frame(0),
		withLabel(frame(1), 5, 1, 4.5),
	})
	v := newVocab(table)
	b := NewBuilder(table, v, []int{5}, 0)

	// no tokens anywhere: capacity collapses to zero events per frame
	require.Equal(t, 0, b.Capacity())
	s := b.Build(1)
	assert.Equal(t, 0, s.SeqLen)
	assert.Equal(t, float32(1), s.ClassAvail[5])
}

func TestBuild_SentinelsAndAvailability(t *testing.T) {
	table := events.NewTable([]events.Record{
		frame(0, "a"),
		withLabel(frame(1, "a"), 5, 1, 2.5),
	})
	v := newVocab(table)
	b := NewBuilder(table, v, []int{5, 6}, 0)

	s := b.Build(1)

	assert.Equal(t, float32(1), s.Classes[5])
	assert.Equal(t, float32(1), s.ClassAvail[5])
	assert.Equal(t, float32(2.5), s.TTE[5])
	assert.Equal(t, float32(1), s.TTEAvail[5])

	// signal 6 has no label at this frame: sentinel values, zero flags
	assert.Equal(t, float32(0), s.Classes[6])
	assert.Equal(t, float32(0), s.ClassAvail[6])
	assert.Equal(t, float32(UnavailableTTE), s.TTE[6])
	assert.Equal(t, float32(0), s.TTEAvail[6])
}

func TestEndToEnd_ThreeRowTable(t *testing.T) {
	// synthetic 3-row single-intersection table, continuous timestamps,
	// one token per row, label only on the last row
	table := events.NewTable([]events.Record{
		frame(0, "t0"),
		frame(1, "t1"),
		withLabel(frame(2, "t2"), 9, 1, 3.0),
	})

	valid := events.ValidIndices(table, false)
	require.Equal(t, []int{2}, valid, "exactly one valid training sample")

	v := newVocab(table)
	b := NewBuilder(table, v, []int{9}, 0)
	s := b.Build(valid[0])

	assert.Equal(t, 3, s.SeqLen, "history covers rows 1-3 before padding")
	assert.Equal(t, []int{v.Index["t0"], v.Index["t1"], v.Index["t2"]}, s.Tokens[:3])
}

func TestDatasetAndLoader(t *testing.T) {
	table := events.NewTable([]events.Record{
		frame(0, "a"),
		withLabel(frame(1, "b"), 5, 0, 1.0),
		withLabel(frame(2, "a"), 5, 1, 2.0),
		withLabel(frame(3, "b"), 5, 0, 3.0),
	})
	v := newVocab(table)
	b := NewBuilder(table, v, []int{5}, 0)
	ds := NewDataset(b, events.ValidIndices(table, false))
	require.Equal(t, 3, ds.Len())

	// cached rebuild returns identical samples
	assert.Equal(t, ds.At(1), ds.At(1))

	loader := NewLoader(ds, 2, 2, false, 42)
	var sizes []int
	var seen int
	require.NoError(t, loader.Each(func(batch []Sample) error {
		sizes = append(sizes, len(batch))
		seen += len(batch)
		return nil
	}))
	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, ds.Len(), seen)
}
