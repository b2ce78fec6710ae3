package metrics

import (
	"math"
	"sort"
)

// Summary aggregation helpers. All of them return 0.0 on empty input rather
// than an error or NaN, and all of them operate on full-precision values:
// rounding to one decimal happens exactly once, when the response is shaped.

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// rate returns part/total as a percentage, 0.0 when total is zero.
func rate(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100
}

// round1 rounds to one decimal place for response formatting.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
