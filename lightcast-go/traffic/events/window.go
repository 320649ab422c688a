package events

// The selector scans a sliding window per row. Each row's
// (has-token, is-continuous) pair is packed into a small int so the scan
// operates on one flat slice.
const (
	nonEmptyBit   = 1 << 0
	continuousBit = 1 << 1
)

func encodeRowFlags(tokenCount int, continuous bool) uint8 {
	var flags uint8
	if tokenCount >= 1 {
		flags |= nonEmptyBit
	}
	if continuous {
		flags |= continuousBit
	}
	return flags
}

// windowValid scans backward from row over a window of MaxHistFrames-1 rows
// (shorter near the start of the table): the window is invalid as soon as a
// row breaks continuity, and valid once any row within the continuity-
// preserved prefix carries at least one token.
func windowValid(flags []uint8, row int) bool {
	for j := row; j >= 0 && row-j < MaxHistFrames-1; j-- {
		if flags[j]&continuousBit == 0 {
			return false
		}
		if flags[j]&nonEmptyBit != 0 {
			return true
		}
	}
	return false
}

// ValidIndices returns the rows of t usable as samples: rows whose window is
// valid and which carry at least one labeled signal. In inference mode
// missing labels are acceptable.
func ValidIndices(t *Table, inference bool) []int {
	flags := make([]uint8, len(t.Records))
	for i, r := range t.Records {
		flags[i] = encodeRowFlags(len(r.Inputs), t.Continuous[i])
	}

	var valid []int
	for i, r := range t.Records {
		if !windowValid(flags, i) {
			continue
		}
		if len(r.SignalClasses) > 0 || inference {
			valid = append(valid, i)
		}
	}
	return valid
}
