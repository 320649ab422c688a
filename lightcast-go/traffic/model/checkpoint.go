package model

import (
	"fmt"
	"path/filepath"

	"github.com/lightcast/lightcast/lightcast-golib/errors"
	"github.com/lightcast/lightcast/lightcast-golib/serialization"
)

// CheckpointPath returns the best-model artifact path for an
// (intersection, fold).
func CheckpointPath(dir string, intersection, fold int) string {
	return filepath.Join(dir,
		fmt.Sprintf("intersection_%d_fold_%d_combined_loss_checkpoint.gob", intersection, fold))
}

type savedParam struct {
	Rows int
	Cols int
	Data []float64
}

type checkpoint struct {
	Config Config
	Params map[string]savedParam
}

// SaveCheckpoint persists the current weights to path.
func (m *Model) SaveCheckpoint(path string) error {
	cp := checkpoint{
		Config: m.Cfg,
		Params: make(map[string]savedParam, len(m.params)),
	}
	for _, p := range m.params {
		r, c := p.Value.Dims()
		cp.Params[p.Name] = savedParam{
			Rows: r,
			Cols: c,
			Data: append([]float64(nil), p.Value.RawMatrix().Data...),
		}
	}
	if err := serialization.Encode(path, cp); err != nil {
		return errors.Wrapf(err, "error saving checkpoint to %s", path)
	}
	return nil
}

// LoadCheckpoint restores weights saved by SaveCheckpoint into a model of
// the same architecture. A missing or mismatched checkpoint is fatal for the
// caller: inference cannot proceed without it.
func (m *Model) LoadCheckpoint(path string) error {
	var cp checkpoint
	if err := serialization.Decode(path, &cp); err != nil {
		return errors.Wrapf(err, "error loading checkpoint from %s", path)
	}
	for _, p := range m.params {
		saved, ok := cp.Params[p.Name]
		if !ok {
			return errors.Errorf("checkpoint %s is missing parameter %s", path, p.Name)
		}
		r, c := p.Value.Dims()
		if saved.Rows != r || saved.Cols != c || len(saved.Data) != r*c {
			return errors.Errorf("checkpoint %s has shape %dx%d for parameter %s, want %dx%d",
				path, saved.Rows, saved.Cols, p.Name, r, c)
		}
		copy(p.Value.RawMatrix().Data, saved.Data)
	}
	return nil
}
