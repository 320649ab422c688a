// Package infer runs a trained model over an intersection's valid rows and
// decodes the raw head outputs into per-signal state predictions.
package infer

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/lightcast/lightcast/lightcast-golib/errors"
	"github.com/lightcast/lightcast/lightcast-golib/serialization"

	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
	"github.com/lightcast/lightcast/lightcast-go/traffic/model"
	"github.com/lightcast/lightcast/lightcast-go/traffic/train"
)

// SignalPrediction is the decoded state of one signal at one frame: the
// green probability plus the mode and interquartile range of the predicted
// time-to-event distribution.
type SignalPrediction struct {
	GreenProb float64 `json:"green_prob"`
	TTEMode   float64 `json:"tte_mode"`
	TTE25     float64 `json:"tte_25th_perc"`
	TTE75     float64 `json:"tte_75th_perc"`
}

// Row is the prediction record for one (scene, frame) pair.
type Row struct {
	SceneIdx int64                    `json:"scene_idx"`
	FrameIdx int64                    `json:"scene_frame_idx"`
	Signals  map[int]SignalPrediction `json:"signals"`
}

// ResultsPath names the prediction artifact for a run. predictionID is an
// optional tag distinguishing concurrent runs.
func ResultsPath(dir, predictionID string, fold, intersection int) string {
	name := fmt.Sprintf("tl_pred_%d_intersection_%d.json.gz", fold, intersection)
	if predictionID != "" {
		name = fmt.Sprintf("tl_pred_%s_%d_intersection_%d.json.gz", predictionID, fold, intersection)
	}
	return filepath.Join(dir, name)
}

// Run decodes predictions for every sample the loader yields. When any
// labels are present it also reports the masked validation score as a
// cross-fold diagnostic.
func Run(m *model.Model, loader *history.Loader) ([]Row, error) {
	rows := make([]Row, 0, loader.Len())

	var scored train.BatchLoss
	var scoredBatches int
	var valSum float64

	err := loader.Each(func(batch []history.Sample) error {
		out := m.Forward(batch, false)

		for s, sample := range batch {
			row := Row{
				SceneIdx: sample.SceneIdx,
				FrameIdx: sample.FrameIdx,
				Signals:  make(map[int]SignalPrediction, len(out.Signals)),
			}
			for _, tl := range out.Signals {
				w := model.Weibull{K: out.ShapeK[tl][s], Lambda: out.ScaleLambda[tl][s]}
				row.Signals[tl] = SignalPrediction{
					GreenProb: out.GreenProb[tl][s],
					TTEMode:   w.Mode(),
					TTE25:     w.Quantile(0.25),
					TTE75:     w.Quantile(0.75),
				}
			}
			rows = append(rows, row)
		}

		if loss, _ := train.ComputeLoss(out, batch); loss.Counted() {
			scored.ClassCount += loss.ClassCount
			scored.TTECount += loss.TTECount
			valSum += loss.Val()
			scoredBatches++
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error running inference")
	}

	if scoredBatches > 0 {
		log.Printf("scored %d labeled color / %d labeled tte entries, masked val loss %.4f",
			scored.ClassCount, scored.TTECount, valSum/float64(scoredBatches))
	}
	return rows, nil
}

// Write persists the prediction rows.
func Write(path string, rows []Row) error {
	if err := serialization.Encode(path, rows); err != nil {
		return errors.Wrapf(err, "error writing predictions to %s", path)
	}
	log.Printf("wrote %d prediction rows to %s", len(rows), path)
	return nil
}
