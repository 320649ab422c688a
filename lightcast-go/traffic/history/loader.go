package history

import (
	"math/rand"

	"github.com/lightcast/lightcast/lightcast-golib/workerpool"
)

// Loader produces batches of Samples from a Dataset, building the samples of
// each batch on a worker pool. Batches are consumed sequentially by a single
// training or inference stream.
type Loader struct {
	ds        *Dataset
	batchSize int
	workers   int
	shuffle   bool
	rng       *rand.Rand

	order []int
}

// NewLoader creates a Loader. With shuffle set, the sample order is
// re-drawn at the start of every epoch.
func NewLoader(ds *Dataset, batchSize, workers int, shuffle bool, seed int64) *Loader {
	if batchSize < 1 {
		batchSize = 1
	}
	order := make([]int, ds.Len())
	for i := range order {
		order[i] = i
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		workers:   workers,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     order,
	}
}

// Len returns the number of samples per epoch.
func (l *Loader) Len() int {
	return l.ds.Len()
}

// Signals returns the signal ids labeled on every sample.
func (l *Loader) Signals() []int {
	return l.ds.Signals()
}

// Each runs one epoch: it visits every sample once in (possibly shuffled)
// order, assembling batches in parallel and handing them to fn sequentially.
func (l *Loader) Each(fn func(batch []Sample) error) error {
	if l.shuffle {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}

	pool := workerpool.New(l.workers)
	defer pool.Stop()

	for start := 0; start < len(l.order); start += l.batchSize {
		end := start + l.batchSize
		if end > len(l.order) {
			end = len(l.order)
		}
		batch := make([]Sample, end-start)

		jobs := make([]workerpool.Job, 0, end-start)
		for i := start; i < end; i++ {
			slot, idx := i-start, l.order[i]
			jobs = append(jobs, func() error {
				batch[slot] = l.ds.At(idx)
				return nil
			})
		}
		pool.AddBlocking(jobs)
		if err := pool.Wait(); err != nil {
			return err
		}

		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}
