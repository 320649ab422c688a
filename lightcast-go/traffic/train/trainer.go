package train

import (
	"log"
	"time"

	"github.com/lightcast/lightcast/lightcast-golib/errors"

	"github.com/lightcast/lightcast/lightcast-go/traffic/history"
	"github.com/lightcast/lightcast/lightcast-go/traffic/model"
)

const (
	// DefaultLR is the Adam learning rate for production runs.
	DefaultLR = 6e-5
	// MaxGradNorm caps the global gradient norm before each step.
	MaxGradNorm = 5.0
	// StopPatience is the early-stopping patience in epochs.
	StopPatience = 4
)

// Trainer runs the epoch loop for one (intersection, fold) model.
type Trainer struct {
	Model *model.Model
	Opt   *model.Adam

	TrainData *history.Loader
	ValData   *history.Loader

	EpochMax int
	// Checkpoint is where the best model by validation score is written.
	Checkpoint string

	scheduler *Plateau
	stopper   *EarlyStopping
}

// NewTrainer wires a trainer with the production scheduler and stopper.
func NewTrainer(m *model.Model, trainData, valData *history.Loader, epochMax int, checkpoint string) *Trainer {
	return &Trainer{
		Model:      m,
		Opt:        model.NewAdam(m.Parameters(), DefaultLR),
		TrainData:  trainData,
		ValData:    valData,
		EpochMax:   epochMax,
		Checkpoint: checkpoint,
		scheduler:  NewPlateau(),
		stopper:    NewEarlyStopping(StopPatience),
	}
}

// epochStats averages per-batch losses, skipping batches that carried no
// labels at all.
type epochStats struct {
	bce, nll, total float64
	batches         int
}

func (s *epochStats) add(l BatchLoss, total float64) {
	if !l.Counted() {
		return
	}
	s.bce += l.BCE
	s.nll += l.NLL
	s.total += total
	s.batches++
}

func (s *epochStats) mean() (bce, nll, total float64) {
	if s.batches == 0 {
		return 0, 0, 0
	}
	n := float64(s.batches)
	return s.bce / n, s.nll / n, s.total / n
}

// Run trains until EpochMax, early stopping, or an empty validation score.
// The best checkpoint is on disk when it returns.
func (t *Trainer) Run() error {
	for epoch := 0; epoch < t.EpochMax; epoch++ {
		start := time.Now()

		trainStats, err := t.trainEpoch()
		if err != nil {
			return errors.Wrapf(err, "error in training epoch %d", epoch)
		}
		valStats, err := t.evalEpoch()
		if err != nil {
			return errors.Wrapf(err, "error in validation epoch %d", epoch)
		}

		bce, nll, trainMean := trainStats.mean()
		_, _, valMean := valStats.mean()

		lr := t.scheduler.Step(valMean, t.Opt)
		if err := t.stopper.Step(valMean, func() error {
			return t.Model.SaveCheckpoint(t.Checkpoint)
		}); err != nil {
			return errors.Wrapf(err, "error checkpointing at epoch %d", epoch)
		}

		log.Printf("epoch %d: train loss %.4f (bce %.4f, nll %.4f), val loss %.4f, lr %g, took %s",
			epoch, trainMean, bce, nll, valMean, lr, time.Since(start))

		if valMean == 0 {
			log.Printf("no validation labels, stopping after epoch %d", epoch)
			break
		}
		if t.stopper.Stopped() {
			log.Printf("validation loss stalled for %d epochs, stopping (best %.4f)",
				StopPatience, t.stopper.Best())
			break
		}
	}
	return nil
}

func (t *Trainer) trainEpoch() (*epochStats, error) {
	var stats epochStats
	err := t.TrainData.Each(func(batch []history.Sample) error {
		out := t.Model.Forward(batch, true)
		loss, grads := ComputeLoss(out, batch)
		if !loss.Counted() {
			return nil
		}

		t.Model.ZeroGrads()
		t.Model.Backward(out, grads)
		t.Model.SanitizeGradients()
		model.ClipGradNorm(t.Model.Parameters(), MaxGradNorm)
		t.Opt.Step()

		stats.add(loss, loss.Train())
		return nil
	})
	return &stats, err
}

// evalEpoch scores the validation set without gradients or dropout.
func (t *Trainer) evalEpoch() (*epochStats, error) {
	var stats epochStats
	err := t.ValData.Each(func(batch []history.Sample) error {
		out := t.Model.Forward(batch, false)
		loss, _ := ComputeLoss(out, batch)
		stats.add(loss, loss.Val())
		return nil
	})
	return &stats, err
}
