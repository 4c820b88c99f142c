package solver

import (
	"math"
	"sort"
)

// bucket is one participant of the water-level distribution.
// The implicit cash bucket uses the same shape with an empty symbol.
type bucket struct {
	symbol string
	weight float64
	lower  float64
	upper  float64 // +Inf when unbounded
}

// waterLevel distributes total across buckets minimising Σ (x_i/total - w_i)^2
// under lower_i <= x_i <= upper_i and Σ x_i = total.
//
// The optimum is x_i = clamp(total·(w_i + ν), lower_i, upper_i) for a single scalar ν.
// Σ x_i(ν) is piecewise linear and nondecreasing, so ν is located exactly on the
// sorted breakpoints and interpolated inside the crossing segment.
//
// If Σ lower exceeds total every bucket sits at its lower bound; if Σ upper is
// below total every bucket sits at its upper bound. Callers avoid both.
func waterLevel(buckets []bucket, total float64) []float64 {
	out := make([]float64, len(buckets))
	if len(buckets) == 0 {
		return out
	}

	if total <= 0 {
		for i, b := range buckets {
			out[i] = b.lower
		}
		return out
	}

	fill := func(nu float64) float64 {
		sum := 0.0
		for _, b := range buckets {
			sum += clamp(total*(b.weight+nu), b.lower, b.upper)
		}
		return sum
	}

	breaks := make([]float64, 0, 2*len(buckets))
	unbounded := 0
	for _, b := range buckets {
		breaks = append(breaks, b.lower/total-b.weight)
		if math.IsInf(b.upper, 1) {
			unbounded++
			continue
		}
		breaks = append(breaks, b.upper/total-b.weight)
	}
	sort.Float64s(breaks)

	var nu float64
	lowest := fill(breaks[0])
	switch {
	case total <= lowest:
		nu = breaks[0]
	default:
		nu = math.NaN()
		prev, prevSum := breaks[0], lowest
		for _, bp := range breaks[1:] {
			sum := fill(bp)
			if sum >= total {
				if sum == prevSum {
					nu = bp
				} else {
					nu = prev + (bp-prev)*(total-prevSum)/(sum-prevSum)
				}
				break
			}
			prev, prevSum = bp, sum
		}
		if math.IsNaN(nu) {
			// beyond the last breakpoint only unbounded buckets still grow
			if unbounded == 0 {
				nu = breaks[len(breaks)-1]
			} else {
				nu = prev + (total-prevSum)/(total*float64(unbounded))
			}
		}
	}

	for i, b := range buckets {
		out[i] = clamp(total*(b.weight+nu), b.lower, b.upper)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
