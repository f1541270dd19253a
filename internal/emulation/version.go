package emulation

import (
	"strconv"
	"strings"
)

// CompareVersions orders two dotted version strings numerically per segment.
// Returns -1, 0, or 1. Missing segments count as zero, so "2.6" and "2.6.0"
// compare equal, and "2.10" is newer than "2.6".
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimSpace(a), ".")
	bs := strings.Split(strings.TrimSpace(b), ".")

	segments := len(as)
	if len(bs) > segments {
		segments = len(bs)
	}

	for i := 0; i < segments; i++ {
		av := segmentValue(as, i)
		bv := segmentValue(bs, i)
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

func segmentValue(segments []string, i int) int {
	if i >= len(segments) {
		return 0
	}
	// Trailing non-numeric suffixes (e.g. "1+dfsg") are ignored.
	segment := segments[i]
	end := 0
	for end < len(segment) && segment[end] >= '0' && segment[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	value, err := strconv.Atoi(segment[:end])
	if err != nil {
		return 0
	}
	return value
}
