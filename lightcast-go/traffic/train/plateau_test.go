package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeOpt struct {
	lr float64
}

func (f *fakeOpt) LR() float64      { return f.lr }
func (f *fakeOpt) SetLR(lr float64) { f.lr = lr }

func TestPlateau_ReducesAfterPatience(t *testing.T) {
	p := NewPlateau()
	opt := &fakeOpt{lr: 6e-5}

	p.Step(1.0, opt) // sets best
	p.Step(1.0, opt) // stalled 1
	p.Step(1.0, opt) // stalled 2
	assert.InDelta(t, 6e-5, opt.lr, 1e-12)

	p.Step(1.0, opt) // stalled 3 > patience 2
	assert.InDelta(t, 6e-6, opt.lr, 1e-12)
}

func TestPlateau_ImprovementResetsCounter(t *testing.T) {
	p := NewPlateau()
	opt := &fakeOpt{lr: 1e-3}

	p.Step(1.0, opt)
	p.Step(1.0, opt)
	p.Step(1.0, opt)
	p.Step(0.5, opt) // real improvement resets the stall counter
	p.Step(0.5, opt)
	p.Step(0.5, opt)
	assert.InDelta(t, 1e-3, opt.lr, 1e-12)
}

func TestPlateau_ThresholdIsRelative(t *testing.T) {
	p := NewPlateau()
	opt := &fakeOpt{lr: 1e-3}

	p.Step(1.0, opt)
	// a hair below best does not count as improvement
	p.Step(1.0-1e-6, opt)
	p.Step(1.0-2e-6, opt)
	p.Step(1.0-3e-6, opt)
	assert.InDelta(t, 1e-4, opt.lr, 1e-12)
}
