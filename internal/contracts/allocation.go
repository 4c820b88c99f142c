package contracts

import (
	"fmt"
	"math"
	"sort"
)

// weightSumEpsilon tolerates float noise when targets are entered as percentages
const weightSumEpsilon = 1e-9

// Mode selects the solving strategy
type Mode string

const (
	ModeContinuous Mode = "continuous"
	ModeDiscrete   Mode = "discrete"
)

// AssetUnit is one investable line of the portfolio
type AssetUnit struct {
	Symbol        string    `json:"symbol"`
	CurrentAmount float64   `json:"current_amount"`   // value already held, in quote currency
	Shares        float64   `json:"shares,omitempty"` // units already held (discrete mode)
	Price         float64   `json:"price,omitempty"`  // value of one unit; required for whole shares
	TargetWeight  float64   `json:"target_weight"`    // 0.0 ~ 1.0
	IsWholeShares bool      `json:"is_whole_shares"`
	Fees          *FeeModel `json:"fees,omitempty"` // overrides the problem-level model
}

// Problem is the immutable input of one solve
// ⭐ SSOT: UI state → Problem goes through internal/problem only
type Problem struct {
	Budget                   float64              `json:"budget"` // new cash deployed by this solve
	Assets                   map[string]AssetUnit `json:"assets"`
	GlobalFees               *FeeModel            `json:"fees,omitempty"`
	QuoteCurrency            string               `json:"quoteCurrency,omitempty"` // informational only
	TaxEfficient             bool                 `json:"taxEfficient"`
	UseWholeShares           bool                 `json:"useWholeShares"`
	AllowFractionalRemainder bool                 `json:"allowFractionalRemainder"`
}

// Clone returns a deep copy so later edits of the source never reach an in-flight solve
func (p *Problem) Clone() *Problem {
	c := *p
	c.Assets = make(map[string]AssetUnit, len(p.Assets))
	for k, a := range p.Assets {
		if a.Fees != nil {
			a.Fees = cloneFees(a.Fees)
		}
		c.Assets[k] = a
	}
	if p.GlobalFees != nil {
		c.GlobalFees = cloneFees(p.GlobalFees)
	}
	return &c
}

func cloneFees(m *FeeModel) *FeeModel {
	c := *m
	if m.MaxFeeImpact != nil {
		v := *m.MaxFeeImpact
		c.MaxFeeImpact = &v
	}
	return &c
}

// Mode returns the solving strategy selected by the problem
func (p *Problem) Mode() Mode {
	if p.UseWholeShares {
		return ModeDiscrete
	}
	return ModeContinuous
}

// Symbols returns asset symbols in ascending order
func (p *Problem) Symbols() []string {
	symbols := make([]string, 0, len(p.Assets))
	for s := range p.Assets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// InvestedTotal returns the value already held across all assets
func (p *Problem) InvestedTotal() float64 {
	total := 0.0
	for _, s := range p.Symbols() {
		total += p.Assets[s].CurrentAmount
	}
	return total
}

// TotalValue is the post-contribution portfolio value weights are measured against
func (p *Problem) TotalValue() float64 {
	return p.InvestedTotal() + p.Budget
}

// TotalTargetWeight returns the sum of all target weights
func (p *Problem) TotalTargetWeight() float64 {
	total := 0.0
	for _, s := range p.Symbols() {
		total += p.Assets[s].TargetWeight
	}
	return total
}

// CashWeight is the residual target weight kept as unallocated cash
func (p *Problem) CashWeight() float64 {
	return math.Max(0, 1-p.TotalTargetWeight())
}

// FeesFor returns the asset's own fee model, falling back to the problem-level one
func (p *Problem) FeesFor(symbol string) *FeeModel {
	if a, ok := p.Assets[symbol]; ok && a.Fees != nil {
		return a.Fees
	}
	return p.GlobalFees
}

// Validate checks every invariant of the problem
func (p *Problem) Validate() error {
	if math.IsNaN(p.Budget) || math.IsInf(p.Budget, 0) {
		return ValidationError{"budget", "must be finite"}
	}
	if p.Budget < 0 {
		return ValidationError{"budget", "must be >= 0"}
	}

	if err := p.GlobalFees.Validate("fees"); err != nil {
		return err
	}

	for _, key := range p.Symbols() {
		a := p.Assets[key]
		field := fmt.Sprintf("assets[%s]", key)

		if key == "" || a.Symbol == "" {
			return ValidationError{field + ".symbol", "must not be empty"}
		}
		if a.Symbol != key {
			return ValidationError{field + ".symbol", fmt.Sprintf("does not match key (%q)", a.Symbol)}
		}
		if a.CurrentAmount < 0 || math.IsNaN(a.CurrentAmount) || math.IsInf(a.CurrentAmount, 0) {
			return ValidationError{field + ".current_amount", "must be a finite value >= 0"}
		}
		if a.TargetWeight < 0 || a.TargetWeight > 1 || math.IsNaN(a.TargetWeight) {
			return ValidationError{field + ".target_weight", "must be in [0, 1]"}
		}
		if a.Price < 0 || math.IsNaN(a.Price) || math.IsInf(a.Price, 0) {
			return ValidationError{field + ".price", "must be a finite value >= 0"}
		}
		if a.IsWholeShares && a.Price <= 0 {
			return ValidationError{field + ".price", "whole-shares asset requires price > 0"}
		}
		if a.Shares < 0 {
			return ValidationError{field + ".shares", "must be >= 0"}
		}
		if err := a.Fees.Validate(field + ".fees"); err != nil {
			return err
		}
	}

	if total := p.TotalTargetWeight(); total > 1+weightSumEpsilon {
		return ValidationError{"assets", fmt.Sprintf("target weights sum to %.6f (> 1)", total)}
	}

	return nil
}

// AssetAllocation is the per-asset outcome of a solve
type AssetAllocation struct {
	Symbol        string  `json:"symbol"`
	CurrentAmount float64 `json:"current_amount"`
	NewAmount     float64 `json:"new_amount"`
	NewWeight     float64 `json:"new_weight"`
	TargetWeight  float64 `json:"target_weight"`
	DeltaAmount   float64 `json:"delta_amount"` // NewAmount - CurrentAmount (signed)
	DeltaShares   *int64  `json:"delta_shares,omitempty"`
	Fee           float64 `json:"fee"`
}

// Action classifies the trade implied by the allocation
func (a AssetAllocation) Action() Action {
	switch {
	case a.DeltaAmount > 0:
		return ActionBuy
	case a.DeltaAmount < 0:
		return ActionSell
	default:
		return ActionHold
	}
}

// Action represents the trade direction for one asset
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Solution is the immutable output of one solve; a new solve never mutates an old one
type Solution struct {
	Mode              Mode                       `json:"mode"`
	Budget            float64                    `json:"budget"`
	PerAsset          map[string]AssetAllocation `json:"per_asset"`
	MinBudgetToTarget float64                    `json:"min_budget_to_target"`
	UnallocatedCash   float64                    `json:"unallocated_cash"`
	TotalFees         float64                    `json:"total_fees"`
	Deviation         float64                    `json:"deviation"`  // Σ (newWeight - target)^2
	Infeasible        bool                       `json:"infeasible"` // no trade satisfied the fee caps
}

// Symbols returns the allocated symbols in ascending order
func (s *Solution) Symbols() []string {
	symbols := make([]string, 0, len(s.PerAsset))
	for sym := range s.PerAsset {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols
}

// TotalDelta returns Σ deltaAmount over all assets
func (s *Solution) TotalDelta() float64 {
	total := 0.0
	for _, a := range s.PerAsset {
		total += a.DeltaAmount
	}
	return total
}

// Get returns the allocation of one asset
func (s *Solution) Get(symbol string) (AssetAllocation, bool) {
	a, ok := s.PerAsset[symbol]
	return a, ok
}

// HasTrades reports whether any asset moved
func (s *Solution) HasTrades() bool {
	for _, a := range s.PerAsset {
		if a.DeltaAmount != 0 {
			return true
		}
	}
	return false
}
