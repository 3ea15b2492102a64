package partition

import "strings"

const (
	mib = 1 << 20
	// DefaultSplitThreshold is the memory ceiling at or above which the
	// coarse one-character split is used.
	DefaultSplitThreshold = 910 * mib
	emptyBucket           = "_"
)

// SplitLevel returns the prefix length used to bucket terms for a process
// with the given memory ceiling: 1 when the ceiling reaches threshold,
// otherwise 2. It depends only on its arguments.
func SplitLevel(ceiling, threshold uint64) int {
	if threshold == 0 {
		threshold = DefaultSplitThreshold
	}
	if ceiling >= threshold {
		return 1
	}
	return 2
}

// BucketKey returns the partition key of term at the given level: the first
// level bytes (all of them for shorter terms), lower-cased, with
// non-alphanumerics removed. Terms that reduce to nothing share one bucket.
func BucketKey(term string, level int) string {
	if level < 1 {
		level = 1
	}
	if len(term) > level {
		term = term[:level]
	}
	key := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return -1
		}
	}, term)
	if key == "" {
		return emptyBucket
	}
	return key
}
