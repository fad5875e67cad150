// Package millify abbreviates large numbers for display.
package millify

import (
	"fmt"
	"math"
)

var units = []string{"", " k", " M", " B", " T"}

// Format renders n scaled to the largest fitting unit with one decimal,
// e.g. 1500 -> "1.5 k", 2300000 -> "2.3 M". The unit index is
// floor(log10(|n|)/3) clamped to the known units.
func Format(n float64) string {
	abs := math.Abs(n)
	idx := 0
	// math.Log10 is inexact at exact powers of ten; compare against them instead.
	for idx < len(units)-1 && abs >= math.Pow10(3*(idx+1)) {
		idx++
	}

	return fmt.Sprintf("%.1f%s", n/math.Pow10(3*idx), units[idx])
}
