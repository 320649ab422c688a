package train

import (
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightcast/lightcast/lightcast-go/traffic/events"
	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
	"github.com/lightcast/lightcast/lightcast-go/traffic/model"
	"github.com/lightcast/lightcast/lightcast-go/traffic/vocab"
)

var trainT0 = time.Date(2020, 3, 14, 10, 0, 0, 0, time.UTC)

func labeledFrame(i int, tok string, class, tte float32) events.Record {
	return events.Record{
		Timestamp:     trainT0.Add(time.Duration(i) * 100 * time.Millisecond),
		Intersection:  0,
		SceneIdx:      int64(100 + i),
		FrameIdx:      int64(i),
		Inputs:        []events.TokenObservation{{Token: tok, TypeOneHot: [4]float32{1}}},
		SignalClasses: map[int]float32{5: class},
		TimeToChange:  map[int]float32{5: tte},
	}
}

func TestTrainer_SmokeRun(t *testing.T) {
	toks := []string{"stop", "go"}
	var recs []events.Record
	for i := 0; i < 8; i++ {
		recs = append(recs, labeledFrame(i, toks[i%2], float32(i%2), float32(i%3)+0.5))
	}
	table := events.NewTable(recs)

	valid := events.ValidIndices(table, false)
	require.GreaterOrEqual(t, len(valid), 7)

	v := vocab.Build(table)
	b := history.NewBuilder(table, v, []int{5}, 0)

	trainLoader := history.NewLoader(history.NewDataset(b, valid[:5]), 2, 2, true, 1)
	valLoader := history.NewLoader(history.NewDataset(b, valid[5:]), 2, 2, false, 1)

	m := model.New(model.Config{
		VocabSize:     len(v.Index),
		Signals:       []int{5},
		EmbeddingDim:  4,
		HiddenDim:     4,
		Layers:        2,
		Bidirectional: true,
		Dropout:       0.2,
		Seed:          11,
	})

	ckpt := model.CheckpointPath(t.TempDir(), 0, 0)
	tr := NewTrainer(m, trainLoader, valLoader, 2, ckpt)
	require.NoError(t, tr.Run())

	// the best epoch was checkpointed
	_, err := os.Stat(ckpt)
	require.NoError(t, err)

	// post-training validation score is finite
	stats, err := tr.evalEpoch()
	require.NoError(t, err)
	_, _, valMean := stats.mean()
	assert.False(t, math.IsNaN(valMean))
	assert.False(t, math.IsInf(valMean, 0))
	assert.Greater(t, valMean, 0.0)
}
