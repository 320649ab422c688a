// Package train implements the masked joint loss and the epoch loop: Adam
// with gradient sanitization and norm clipping, a reduce-on-plateau learning
// rate schedule, and early stopping on the validation score.
package train

import (
	"math"

	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
	"github.com/lightcast/lightcast/lightcast-go/traffic/model"
)

// logFloor bounds the log terms of the color loss so a saturated probability
// cannot produce an infinite loss.
const logFloor = -100.0

// BatchLoss is the masked joint loss of one batch. BCE and NLL are means
// over the available color and time-to-event labels respectively; a term
// with no available labels in the batch is exactly zero.
type BatchLoss struct {
	BCE float64
	NLL float64

	ClassCount int
	TTECount   int
}

// Train is the loss optimized during training.
func (l BatchLoss) Train() float64 {
	return l.BCE + l.NLL
}

// Val is the score used for scheduling, early stopping and checkpoint
// selection: the time-to-event term is down-weighted by half.
func (l BatchLoss) Val() float64 {
	return l.BCE + l.NLL/2
}

// Counted reports whether the batch contributed any label at all.
func (l BatchLoss) Counted() bool {
	return l.ClassCount > 0 || l.TTECount > 0
}

func clampedLog(x float64) float64 {
	lx := math.Log(x)
	if lx < logFloor {
		return logFloor
	}
	return lx
}

// ComputeLoss evaluates the masked joint loss for a forward pass and returns
// it together with the gradients wrt the model outputs. Unavailable labels
// contribute nothing to either.
//
// A non-finite time-to-event log-density (such as a zero-time label under a
// shape above one) is dropped from the sum but still counted in the
// denominator, with a zero gradient.
func ComputeLoss(out *model.Output, batch []history.Sample) (BatchLoss, *model.OutputGrads) {
	grads := model.NewOutputGrads(out)
	var loss BatchLoss

	for _, tl := range out.Signals {
		for _, sample := range batch {
			if sample.ClassAvail[tl] > 0 {
				loss.ClassCount++
			}
			if sample.TTEAvail[tl] > 0 {
				loss.TTECount++
			}
		}
	}

	for _, tl := range out.Signals {
		for s, sample := range batch {
			if sample.ClassAvail[tl] > 0 {
				y := float64(sample.Classes[tl])
				p := out.GreenProb[tl][s]

				loss.BCE -= (y*clampedLog(p) + (1-y)*clampedLog(1-p)) / float64(loss.ClassCount)

				pc := math.Min(math.Max(p, 1e-12), 1-1e-12)
				grads.DGreenProb[tl][s] = (-y/pc + (1-y)/(1-pc)) / float64(loss.ClassCount)
			}

			if sample.TTEAvail[tl] > 0 {
				w := model.Weibull{K: out.ShapeK[tl][s], Lambda: out.ScaleLambda[tl][s]}
				x := float64(sample.TTE[tl])

				logp := w.LogProb(x)
				if math.IsNaN(logp) || math.IsInf(logp, 0) {
					continue
				}
				loss.NLL -= logp / float64(loss.TTECount)

				dk, dl := w.LogProbGrad(x)
				grads.DShapeK[tl][s] = -dk / float64(loss.TTECount)
				grads.DScaleLambda[tl][s] = -dl / float64(loss.TTECount)
			}
		}
	}
	return loss, grads
}
