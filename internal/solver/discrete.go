package solver

import (
	"context"
	"math"
	"sort"

	"github.com/wonny/allocator/internal/contracts"
)

const (
	// ctxCheckEvery is how many purchase rounds run between context checks
	ctxCheckEvery = 64

	// weightDust is the smallest weight deficit still worth a purchase
	weightDust = 1e-12

	// maxLotShares keeps share counts inside the range float64 represents exactly
	maxLotShares = 1 << 53

	// levelSearchSteps bounds the bisection on the fill level
	levelSearchSteps = 100
)

// lot is the next purchase considered for a whole-share asset
type lot struct {
	shares     int64
	cost       float64 // shares·price plus the incremental fee
	fee        float64
	capLimited bool // the fee cap forced more than one share
}

// unaffordable marks a first lot the cap pushes past the budget
var unaffordable = lot{cost: math.Inf(1), capLimited: true}

// nextLot prices the next purchase of an asset that already bought `held` shares in this solve.
// The first purchase is the smallest share count whose fee ratio satisfies the cap.
func nextLot(price float64, held int64, fees *contracts.FeeModel, budget float64) (lot, bool) {
	shares := int64(1)
	capLimited := false
	if held == 0 {
		minTrade := fees.MinCompliantTrade()
		if math.IsInf(minTrade, 1) || math.IsNaN(minTrade) {
			return lot{}, false
		}
		if minTrade > price {
			if minTrade > budget {
				return unaffordable, true
			}
			n := math.Ceil(minTrade/price - 1e-12)
			if n >= maxLotShares {
				return unaffordable, true
			}
			shares, capLimited = int64(n), true
		}
		// ceil can land one share short on rounding
		if fees.ExceedsCap(float64(shares) * price) {
			shares++
			capLimited = true
			if fees.ExceedsCap(float64(shares) * price) {
				return unaffordable, true
			}
		}
	}

	return priceLot(price, held, shares, fees, capLimited), true
}

func priceLot(price float64, held, shares int64, fees *contracts.FeeModel, capLimited bool) lot {
	before := float64(held) * price
	after := float64(held+shares) * price
	fee := fees.Cost(after) - fees.Cost(before)
	return lot{shares: shares, cost: after - before + fee, fee: fee, capLimited: capLimited}
}

// candidate is a whole-share asset that can still take its next lot
type candidate struct {
	symbol  string
	price   float64
	held    int64
	deficit float64
	fees    *contracts.FeeModel
	next    lot
}

// sharesAbove counts the shares the greedy order buys for c while its deficit stays above level.
// ok is false when the count leaves the representable range.
func (c *candidate) sharesAbove(level, total float64) (int64, bool) {
	if c.deficit <= level {
		return 0, true
	}
	step := c.price / total
	rest := c.deficit - float64(c.next.shares)*step
	if rest <= level {
		return c.next.shares, true
	}
	n := float64(c.next.shares) + math.Ceil((rest-level)/step)
	if n >= maxLotShares {
		return 0, false
	}
	return int64(n), true
}

// levelLots finds the lowest fill level whose purchases fit in the budget and returns them.
// Buying every lot whose deficit sits above one level is the same as running the
// greedy order up to that level, so long stretches collapse into one round.
func levelLots(cands []*candidate, remaining, total, dust float64) map[string]lot {
	buy := func(level float64) (map[string]lot, bool) {
		lots := make(map[string]lot, len(cands))
		spent := 0.0
		for _, c := range cands {
			n, ok := c.sharesAbove(level, total)
			if !ok {
				return nil, false
			}
			if n == 0 {
				continue
			}
			l := priceLot(c.price, c.held, n, c.fees, c.next.capLimited)
			spent += l.cost
			if spent > remaining+dust {
				return nil, false
			}
			lots[c.symbol] = l
		}
		return lots, true
	}

	if lots, ok := buy(weightDust); ok {
		return lots
	}

	lo, hi := weightDust, weightDust
	for _, c := range cands {
		hi = math.Max(hi, c.deficit)
	}
	best, _ := buy(hi)
	for i := 0; i < levelSearchSteps; i++ {
		mid := lo + (hi-lo)/2
		if mid <= lo || mid >= hi {
			break
		}
		if lots, ok := buy(mid); ok {
			hi, best = mid, lots
		} else {
			lo = mid
		}
	}
	return best
}

// solveDiscrete buys whole shares in the greedy order: one lot at a time for the asset
// furthest below its target, ties going to the lower symbol. Runs of that order are
// bought in batches through levelLots. Existing holdings are never sold. Leftover cash
// then goes to fractional assets when allowed.
func solveDiscrete(ctx context.Context, p *contracts.Problem) (outcome, error) {
	total := p.TotalValue()
	remaining := p.Budget
	dust := dustFor(total)
	symbols := p.Symbols()

	bought := make(map[string]int64, len(symbols))
	paid := make(map[string]float64, len(symbols))
	capBlocked := false
	blocked := make(map[string]bool)

	for round := 0; ; round++ {
		if round%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return outcome{}, err
			}
		}

		var cands []*candidate
		for _, sym := range symbols {
			a := p.Assets[sym]
			if !a.IsWholeShares || blocked[sym] {
				continue
			}

			value := a.CurrentAmount + float64(bought[sym])*a.Price
			deficit := a.TargetWeight - value/total
			if deficit <= weightDust {
				continue
			}

			fees := p.FeesFor(sym)
			next, ok := nextLot(a.Price, bought[sym], fees, remaining)
			if !ok {
				blocked[sym] = true
				capBlocked = true
				continue
			}
			if next.cost > remaining+dust {
				if next.capLimited && bought[sym] == 0 {
					capBlocked = true
				}
				continue
			}

			cands = append(cands, &candidate{
				symbol:  sym,
				price:   a.Price,
				held:    bought[sym],
				deficit: deficit,
				fees:    fees,
				next:    next,
			})
		}

		if len(cands) == 0 {
			break
		}

		lots := levelLots(cands, remaining, total, dust)
		if len(lots) == 0 {
			lots = map[string]lot{}
			top := greediest(cands)
			lots[top.symbol] = top.next
		}
		for sym, l := range lots {
			bought[sym] += l.shares
			paid[sym] += l.fee
			remaining -= l.cost
		}
	}

	out := outcome{
		amounts: make(map[string]float64, len(symbols)),
		fees:    make(map[string]float64, len(symbols)),
		shares:  make(map[string]int64, len(symbols)),
		capped:  capBlocked,
	}

	slots := make([]slot, 0, len(symbols))
	fractional := 0
	for _, sym := range symbols {
		a := p.Assets[sym]
		if a.IsWholeShares {
			out.shares[sym] = bought[sym]
			out.fees[sym] = paid[sym]
			out.amounts[sym] = a.CurrentAmount + float64(bought[sym])*a.Price
			slots = append(slots, slot{symbol: sym, weight: a.TargetWeight, current: out.amounts[sym], fixed: true})
			continue
		}

		out.amounts[sym] = a.CurrentAmount
		slots = append(slots, slot{
			symbol:  sym,
			weight:  a.TargetWeight,
			current: a.CurrentAmount,
			fees:    p.FeesFor(sym),
			fixed:   !p.AllowFractionalRemainder,
		})
		fractional++
	}

	if fractional == 0 || !p.AllowFractionalRemainder || remaining <= dust {
		return out, nil
	}

	res := fill(slots, remaining, p.CashWeight(), true)
	for _, s := range slots {
		if s.fixed {
			continue
		}
		out.amounts[s.symbol] = res.amounts[s.symbol]
		out.fees[s.symbol] = res.fees[s.symbol]
	}
	out.capped = out.capped || res.capped
	return out, nil
}

// greediest picks the largest deficit, ties going to the lower symbol
func greediest(cands []*candidate) *candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].deficit != cands[j].deficit {
			return cands[i].deficit > cands[j].deficit
		}
		return cands[i].symbol < cands[j].symbol
	})
	return cands[0]
}
