package events

import (
	"github.com/lightcast/lightcast/lightcast-golib/errors"
	"github.com/lightcast/lightcast/lightcast-golib/serialization"
)

// SignalMap maps an intersection id to the signal ids physically present at
// that intersection. It is supplied externally and is a read-only lookup.
type SignalMap map[int][]int

// LoadSignalMap reads the intersection-to-signals mapping from a json file.
func LoadSignalMap(path string) (SignalMap, error) {
	var m SignalMap
	if err := serialization.Decode(path, &m); err != nil {
		return nil, errors.Wrapf(err, "error loading signal map from %s", path)
	}
	return m, nil
}

// Signals returns the signal ids at the given intersection, or an error when
// the intersection is not in the mapping.
func (m SignalMap) Signals(intersection int) ([]int, error) {
	signals, ok := m[intersection]
	if !ok || len(signals) == 0 {
		return nil, errors.Errorf("no signals known for intersection %d", intersection)
	}
	return signals, nil
}
