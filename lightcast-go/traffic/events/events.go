// Package events holds the per-intersection traffic-light event table and
// the logic that decides which rows carry enough continuous history to be
// usable as training or inference samples.
package events

import (
	"log"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/lightcast/lightcast/lightcast-golib/errors"
	"github.com/lightcast/lightcast/lightcast-golib/serialization"
)

const (
	// MaxHistFrames bounds how many rows a history window may span,
	// target row included.
	MaxHistFrames = 100

	// ContinuityGap is the largest timestamp delta from the previous row
	// that still counts as the same continuous recording. 0.3s jumps were
	// observed between consecutive scenes.
	ContinuityGap = 310 * time.Millisecond
)

// TokenObservation is one raw input token observed in a frame, paired with
// its one-hot token-type feature.
type TokenObservation struct {
	Token      string     `json:"token"`
	TypeOneHot [4]float32 `json:"type_one_hot"`
}

// Record is one observation row of the event table. Empty token lists and
// label maps are expected: observability is sparse, not an error.
type Record struct {
	SceneIdx     int64     `json:"scene_idx"`
	FrameIdx     int64     `json:"frame_idx"`
	Timestamp    time.Time `json:"timestamp"`
	Intersection int       `json:"intersection"`

	Inputs []TokenObservation `json:"inputs"`

	// SignalClasses maps signal id to the observed color class (0 red,
	// 1 green), only for signals with a known label at this frame.
	SignalClasses map[int]float32 `json:"signal_classes,omitempty"`

	// TimeToChange maps signal id to the observed time until the signal
	// next changes color, only where known.
	TimeToChange map[int]float32 `json:"time_to_change,omitempty"`
}

// Table is a time-ordered event table with the derived per-row continuity
// flags and valid history lengths.
type Table struct {
	Records      []Record
	Continuous   []bool
	ValidHistLen []int
}

// NewTable derives continuity and history lengths for the given time-ordered
// records.
func NewTable(records []Record) *Table {
	t := &Table{Records: records}
	t.computeContinuity()
	t.computeValidHistLen()
	return t
}

// Load reads and concatenates event records from the given json(.gz) paths
// and derives the per-row columns.
func Load(paths []string) (*Table, error) {
	var records []Record
	for _, path := range paths {
		err := serialization.Decode(path, func(r *Record) {
			records = append(records, *r)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "error loading event table from %s", path)
		}
	}
	log.Printf("loaded %s event records from %d file(s)",
		humanize.Comma(int64(len(records))), len(paths))
	return NewTable(records), nil
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Records)
}

// ForIntersection returns a sub-table holding only this intersection's rows.
// Continuity flags are carried over from the full table: the flag already
// requires the previous row to belong to the same intersection, so a
// continuous run never crosses intersections and stays contiguous after
// filtering. History lengths are recomputed on the filtered rows.
func (t *Table) ForIntersection(intersection int) *Table {
	sub := &Table{}
	for i, r := range t.Records {
		if r.Intersection != intersection {
			continue
		}
		sub.Records = append(sub.Records, r)
		sub.Continuous = append(sub.Continuous, t.Continuous[i])
	}
	sub.computeValidHistLen()
	return sub
}

func (t *Table) computeContinuity() {
	t.Continuous = make([]bool, len(t.Records))
	for i := 1; i < len(t.Records); i++ {
		prev, cur := t.Records[i-1], t.Records[i]
		t.Continuous[i] = cur.Timestamp.Sub(prev.Timestamp) < ContinuityGap &&
			cur.Intersection == prev.Intersection
	}
}

// computeValidHistLen walks backward from each row while the continuity flag
// holds, capped so the window never exceeds MaxHistFrames rows including the
// target row.
func (t *Table) computeValidHistLen() {
	t.ValidHistLen = make([]int, len(t.Records))
	for row := range t.Records {
		last := row
		for row-last+1 < MaxHistFrames && t.Continuous[last] {
			last--
		}
		t.ValidHistLen[row] = row - last
	}
}
