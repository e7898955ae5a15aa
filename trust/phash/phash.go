// Package phash compares fixed-width hex perceptual hash fingerprints.
// Hashes are computed by the upstream media pipeline; this package only
// measures distance between them.
package phash

import (
	"errors"
	"fmt"
	"math/bits"
)

var ErrLengthMismatch = errors.New("perceptual hashes have different widths")

// HammingDistance returns the number of differing bits between two
// equal-length hex strings. Comparison is case-insensitive on hex digits.
func HammingDistance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		av, err := hexNibble(a[i])
		if err != nil {
			return 0, err
		}
		bv, err := hexNibble(b[i])
		if err != nil {
			return 0, err
		}
		dist += bits.OnesCount8(av ^ bv)
	}
	return dist, nil
}

// Equal reports whether two hashes are bit-identical. Empty hashes (not
// supplied by the pipeline) never match anything.
func Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	d, err := HammingDistance(a, b)
	return err == nil && d == 0
}

func hexNibble(c byte) (uint8, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit: %q", c)
	}
}
