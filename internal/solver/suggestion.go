package solver

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/allocator/internal/contracts"
)

// MinBudget returns the smallest new cash that, deployed by buying only, leaves no
// asset more than the tolerance below its target weight. Fees of the implied trades
// are added on top and the result is rounded up to cents.
//
// The total T is found symbolically. With buy-only water filling every asset ends at
// max(c_i, T·(w_i + ν)); assets reach w_i - tol exactly when
//
//	g(T) = Σ max(c_i, T·(w_i - tol)) + cash(T) - T <= 0
//
// g is convex and piecewise linear with breakpoints c_i/(w_i - tol), so the root
// is interpolated on the first segment where g turns non-positive.
func (s *Solver) MinBudget(p *contracts.Problem) float64 {
	invested := p.InvestedTotal()
	tol := s.tolerance
	symbols := p.Symbols()
	cashWeight := p.CashWeight()

	g := func(total float64) float64 {
		sum := 0.0
		for _, sym := range symbols {
			a := p.Assets[sym]
			sum += math.Max(a.CurrentAmount, total*(a.TargetWeight-tol))
		}
		if cashWeight > cashEpsilon {
			sum += math.Max(0, total*(cashWeight-tol))
		}
		return sum - total
	}

	// assets already at or above target need nothing
	satisfied := true
	for _, sym := range symbols {
		a := p.Assets[sym]
		if a.CurrentAmount < invested*(a.TargetWeight-tol)-dustFor(invested) {
			satisfied = false
			break
		}
	}
	if satisfied || g(invested) <= 0 {
		return 0
	}

	breaks := make([]float64, 0, len(symbols))
	for _, sym := range symbols {
		a := p.Assets[sym]
		if w := a.TargetWeight - tol; w > 0 {
			if bp := a.CurrentAmount / w; bp > invested {
				breaks = append(breaks, bp)
			}
		}
	}
	sort.Float64s(breaks)

	target := math.NaN()
	prev, gPrev := invested, g(invested)
	for _, bp := range breaks {
		gb := g(bp)
		if gb <= 0 {
			target = prev + (bp-prev)*gPrev/(gPrev-gb)
			break
		}
		prev, gPrev = bp, gb
	}

	if math.IsNaN(target) {
		slope := -1.0
		for _, sym := range symbols {
			if w := p.Assets[sym].TargetWeight - tol; w > 0 {
				slope += w
			}
		}
		if cashWeight-tol > 0 && cashWeight > cashEpsilon {
			slope += cashWeight - tol
		}
		if slope >= 0 {
			s.log.WithField("slope", slope).Warn("target weights unreachable by buying only")
			return 0
		}
		target = prev - gPrev/slope
	}

	budget := target - invested + s.impliedFees(p, target)
	return roundUpCents(budget)
}

// impliedFees prices the buy-only trades that reach the given portfolio total
func (s *Solver) impliedFees(p *contracts.Problem, total float64) float64 {
	symbols := p.Symbols()
	buckets := make([]bucket, 0, len(symbols)+1)
	for _, sym := range symbols {
		a := p.Assets[sym]
		buckets = append(buckets, bucket{symbol: sym, weight: a.TargetWeight, lower: a.CurrentAmount, upper: math.Inf(1)})
	}
	if cw := p.CashWeight(); cw > cashEpsilon {
		buckets = append(buckets, bucket{weight: cw, upper: math.Inf(1)})
	}

	amounts := waterLevel(buckets, total)
	dust := dustFor(total)
	fees := 0.0
	for i, sym := range symbols {
		if trade := amounts[i] - p.Assets[sym].CurrentAmount; trade > dust {
			fees += p.FeesFor(sym).Cost(trade)
		}
	}
	return fees
}

// roundUpCents drops float noise below 1e-6 and rounds up to two decimals
func roundUpCents(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return decimal.NewFromFloat(v).Round(6).RoundUp(2).InexactFloat64()
}
