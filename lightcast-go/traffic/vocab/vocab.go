// Package vocab builds and persists the per-(intersection, fold) token
// vocabulary used to index raw event tokens.
package vocab

import (
	"fmt"
	"log"
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
	"github.com/lightcast/lightcast/lightcast-go/traffic/events"
	"github.com/lightcast/lightcast/lightcast-golib/errors"
	"github.com/lightcast/lightcast/lightcast-golib/serialization"
)

// DefaultMinFreq is the minimum training-set frequency below which a token
// resolves to UNKNOWN even though it has an assigned index.
const DefaultMinFreq = 5

// Vocab maps raw tokens to integer indices, with a parallel frequency count
// per token. It is built once from training data and immutable afterwards.
// Two reserved indices follow the raw entries: UNKNOWN and PAD.
type Vocab struct {
	Index map[string]int `json:"index"`
	Freq  map[string]int `json:"freq"`
}

// Build constructs a vocabulary from the rows of one intersection's training
// table, assigning indices in first-seen order.
func Build(t *events.Table) *Vocab {
	v := &Vocab{
		Index: make(map[string]int),
		Freq:  make(map[string]int),
	}
	for _, r := range t.Records {
		for _, obs := range r.Inputs {
			if _, ok := v.Index[obs.Token]; !ok {
				v.Index[obs.Token] = len(v.Index)
			}
			v.Freq[obs.Token]++
		}
	}
	log.Printf("built vocabulary with %s tokens", humanize.Comma(int64(len(v.Index))))
	return v
}

// Len returns the number of raw vocabulary entries, reserved tokens excluded.
func (v *Vocab) Len() int {
	return len(v.Index)
}

// UnknownIndex is the reserved index for rare or unseen tokens.
func (v *Vocab) UnknownIndex() int {
	return len(v.Index)
}

// PadIndex is the reserved index used to right-pad token sequences.
func (v *Vocab) PadIndex() int {
	return len(v.Index) + 1
}

// Lookup resolves a token to its index, falling back to UNKNOWN when the
// token is absent or its training frequency is below minFreq.
func (v *Vocab) Lookup(token string, minFreq int) int {
	idx, ok := v.Index[token]
	if !ok || v.Freq[token] < minFreq {
		return v.UnknownIndex()
	}
	return idx
}

// IndexPath returns the vocabulary artifact path for an (intersection, fold).
func IndexPath(dir string, intersection, fold int) string {
	return filepath.Join(dir, fmt.Sprintf("intersection_%d_fold_%d_train_vocab.json", intersection, fold))
}

// FreqPath returns the term-frequency artifact path for an (intersection, fold).
func FreqPath(dir string, intersection, fold int) string {
	return filepath.Join(dir, fmt.Sprintf("intersection_%d_fold_%d_term_freq.json", intersection, fold))
}

// Save persists the vocabulary and term frequencies as two json artifacts.
func (v *Vocab) Save(dir string, intersection, fold int) error {
	if err := serialization.Encode(IndexPath(dir, intersection, fold), v.Index); err != nil {
		return errors.Wrapf(err, "error saving vocabulary")
	}
	if err := serialization.Encode(FreqPath(dir, intersection, fold), v.Freq); err != nil {
		return errors.Wrapf(err, "error saving term frequencies")
	}
	return nil
}

// Load reloads a persisted vocabulary. Training folds and their complementary
// inference runs must see identical mappings.
func Load(dir string, intersection, fold int) (*Vocab, error) {
	v := &Vocab{}
	if err := serialization.Decode(IndexPath(dir, intersection, fold), &v.Index); err != nil {
		return nil, errors.Wrapf(err, "error loading vocabulary for intersection %d fold %d", intersection, fold)
	}
	if err := serialization.Decode(FreqPath(dir, intersection, fold), &v.Freq); err != nil {
		return nil, errors.Wrapf(err, "error loading term frequencies for intersection %d fold %d", intersection, fold)
	}
	return v, nil
}
