package solver

import (
	"math"
	"sort"

	"github.com/wonny/allocator/internal/contracts"
)

// maxFeeIterations bounds the fee fixed-point loop before trades start being frozen
const maxFeeIterations = 64

// slot is an asset as seen by one fill pass
type slot struct {
	symbol  string
	weight  float64
	current float64
	fees    *contracts.FeeModel
	fixed   bool // never traded in this pass
}

// fillResult is the outcome of one fee-aware water-level pass
type fillResult struct {
	amounts map[string]float64
	fees    map[string]float64
	capped  bool // at least one trade was refused by its fee cap
}

// fill deploys spendable cash across slots by water level.
//
// Fees are deducted from the distributable total and iterated to a fixed point.
// A trade whose fee ratio exceeds its cap is frozen at zero and the level is
// recomputed, so its cash flows to the other assets or to the cash bucket.
// In buyOnly mode every asset is bounded below by its current amount.
func fill(slots []slot, spendable, cashWeight float64, buyOnly bool) fillResult {
	invested := 0.0
	frozen := make(map[string]bool, len(slots))
	for _, s := range slots {
		invested += s.current
		if s.fixed {
			frozen[s.symbol] = true
		}
	}

	dust := dustFor(invested + spendable)
	deltas := make([]float64, len(slots))
	capped := false
	assumed := 0.0

	for iter := 0; ; iter++ {
		total := invested + spendable - assumed

		buckets := make([]bucket, 0, len(slots)+1)
		open := 0
		for _, s := range slots {
			b := bucket{symbol: s.symbol, weight: s.weight, upper: math.Inf(1)}
			switch {
			case frozen[s.symbol]:
				b.lower, b.upper = s.current, s.current
			case buyOnly:
				b.lower = s.current
				open++
			default:
				open++
			}
			buckets = append(buckets, b)
		}
		if cashWeight > cashEpsilon || open == 0 {
			buckets = append(buckets, bucket{weight: cashWeight, upper: math.Inf(1)})
		}

		amounts := waterLevel(buckets, total)
		for i, s := range slots {
			d := amounts[i] - s.current
			if frozen[s.symbol] || math.Abs(d) < dust {
				d = 0
			}
			if buyOnly && d < 0 {
				d = 0
			}
			deltas[i] = d
		}

		// route the cash of the smallest over-cap trade elsewhere
		if i := smallestTrade(slots, deltas, func(i int) bool {
			return slots[i].fees.ExceedsCap(deltas[i])
		}); i >= 0 {
			frozen[slots[i].symbol] = true
			capped = true
			continue
		}

		actual := 0.0
		for i, s := range slots {
			actual += s.fees.Cost(deltas[i])
		}

		budgetForFees := spendable
		if !buyOnly {
			budgetForFees = invested + spendable
		}
		if actual > budgetForFees+dust || iter >= maxFeeIterations+len(slots) {
			if i := smallestTrade(slots, deltas, func(int) bool { return true }); i >= 0 {
				frozen[slots[i].symbol] = true
				continue
			}
		}

		if math.Abs(actual-assumed) <= dust || iter >= maxFeeIterations+2*len(slots) {
			break
		}
		assumed = actual
	}

	res := fillResult{
		amounts: make(map[string]float64, len(slots)),
		fees:    make(map[string]float64, len(slots)),
		capped:  capped,
	}
	for i, s := range slots {
		res.amounts[s.symbol] = s.current + deltas[i]
		res.fees[s.symbol] = s.fees.Cost(deltas[i])
	}
	return res
}

// smallestTrade returns the index of the smallest nonzero trade matching pred, or -1.
// Ties go to the lower symbol.
func smallestTrade(slots []slot, deltas []float64, pred func(i int) bool) int {
	candidates := make([]int, 0, len(slots))
	for i := range slots {
		if deltas[i] != 0 && pred(i) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return -1
	}

	sort.Slice(candidates, func(a, b int) bool {
		da, db := math.Abs(deltas[candidates[a]]), math.Abs(deltas[candidates[b]])
		if da != db {
			return da < db
		}
		return slots[candidates[a]].symbol < slots[candidates[b]].symbol
	})
	return candidates[0]
}

// continuousSlots builds the slots of a continuous solve
func continuousSlots(p *contracts.Problem) []slot {
	slots := make([]slot, 0, len(p.Assets))
	for _, sym := range p.Symbols() {
		a := p.Assets[sym]
		slots = append(slots, slot{
			symbol:  sym,
			weight:  a.TargetWeight,
			current: a.CurrentAmount,
			fees:    p.FeesFor(sym),
		})
	}
	return slots
}

// solveContinuous allocates fractional currency amounts.
// Tax-efficient problems only buy; otherwise the whole portfolio is rebalanced.
func solveContinuous(p *contracts.Problem) outcome {
	res := fill(continuousSlots(p), p.Budget, p.CashWeight(), p.TaxEfficient)
	return outcome{
		amounts: res.amounts,
		fees:    res.fees,
		capped:  res.capped,
	}
}

func dustFor(scale float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(scale))
}
