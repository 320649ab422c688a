package train

// Plateau reduces the optimizer learning rate when the validation score
// stops improving. An improvement must beat the best score by a relative
// threshold; after patience epochs without one the rate is multiplied by
// factor, down to minLR.
type Plateau struct {
	factor    float64
	patience  int
	threshold float64
	minLR     float64
	eps       float64

	best float64
	bad  int
	init bool
}

// NewPlateau returns a scheduler with the production settings: decimate the
// rate after two stalled epochs.
func NewPlateau() *Plateau {
	return &Plateau{
		factor:    0.1,
		patience:  2,
		threshold: 1e-4,
		eps:       1e-8,
	}
}

type lrSetter interface {
	LR() float64
	SetLR(float64)
}

// Step records one epoch's validation score and adjusts opt if stalled.
// It returns the learning rate in effect afterwards.
func (p *Plateau) Step(score float64, opt lrSetter) float64 {
	if !p.init || score < p.best*(1-p.threshold) {
		p.best = score
		p.bad = 0
		p.init = true
		return opt.LR()
	}

	p.bad++
	if p.bad > p.patience {
		lr := opt.LR()
		next := lr * p.factor
		if next < p.minLR {
			next = p.minLR
		}
		if lr-next > p.eps {
			opt.SetLR(next)
		}
		p.bad = 0
	}
	return opt.LR()
}
