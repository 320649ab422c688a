package train

// EarlyStopping tracks the best validation score and calls save whenever it
// improves; after patience consecutive epochs without improvement the run is
// marked as stopped.
type EarlyStopping struct {
	patience int
	delta    float64

	best    float64
	bad     int
	init    bool
	stopped bool
}

// NewEarlyStopping returns a stopper with the given patience.
func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{patience: patience}
}

// Step records one epoch's validation score. save runs only on improvement
// and its error is returned unchanged.
func (e *EarlyStopping) Step(score float64, save func() error) error {
	if !e.init || score < e.best-e.delta {
		e.best = score
		e.bad = 0
		e.init = true
		return save()
	}

	e.bad++
	if e.bad >= e.patience {
		e.stopped = true
	}
	return nil
}

// Stopped reports whether patience has run out.
func (e *EarlyStopping) Stopped() bool {
	return e.stopped
}

// Best returns the best score seen so far.
func (e *EarlyStopping) Best() float64 {
	return e.best
}
