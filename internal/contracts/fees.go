package contracts

import (
	"fmt"
	"math"
)

// FeeType tags the variant held by a FeeStructure
type FeeType string

const (
	FeeTypeZero       FeeType = "zeroFee"
	FeeTypeFixed      FeeType = "fixed"
	FeeTypePercentage FeeType = "variable"
)

// FeeStructure is the cost rule applied to a single trade.
// Only the field matching Type is meaningful: Amount for fixed, Rate for percentage.
type FeeStructure struct {
	Type   FeeType `json:"type" yaml:"type"`
	Amount float64 `json:"feeAmount,omitempty" yaml:"fee_amount,omitempty"` // flat cost per trade
	Rate   float64 `json:"feeRate,omitempty" yaml:"fee_rate,omitempty"`     // fraction of the traded amount (0.0 ~ 1.0)
}

// FixedFee returns a flat per-trade fee structure
func FixedFee(amount float64) FeeStructure {
	return FeeStructure{Type: FeeTypeFixed, Amount: amount}
}

// PercentageFee returns a proportional fee structure, rate expressed as a fraction
func PercentageFee(rate float64) FeeStructure {
	return FeeStructure{Type: FeeTypePercentage, Rate: rate}
}

// ZeroFee returns a structure that never costs anything
func ZeroFee() FeeStructure {
	return FeeStructure{Type: FeeTypeZero}
}

// FeeModel couples a fee structure with an optional cap on fee/trade ratio
// ⭐ SSOT: trade cost and cap checks are computed only here
type FeeModel struct {
	Structure    FeeStructure `json:"feeStructure" yaml:"fee_structure"`
	MaxFeeImpact *float64     `json:"maxFeeImpact,omitempty" yaml:"max_fee_impact,omitempty"` // fraction, nil = uncapped
}

// NewFeeModel creates a fee model without a cap
func NewFeeModel(structure FeeStructure) *FeeModel {
	return &FeeModel{Structure: structure}
}

// WithCap returns a copy of the model capped at maxFeeImpact
func (m *FeeModel) WithCap(maxFeeImpact float64) *FeeModel {
	c := *m
	c.MaxFeeImpact = &maxFeeImpact
	return &c
}

// Cost returns the fee incurred by a trade of the given signed amount.
// A nil model costs nothing.
func (m *FeeModel) Cost(tradeAmount float64) float64 {
	if m == nil || tradeAmount == 0 {
		return 0
	}

	switch m.Structure.Type {
	case FeeTypeFixed:
		return m.Structure.Amount
	case FeeTypePercentage:
		return m.Structure.Rate * math.Abs(tradeAmount)
	default:
		return 0
	}
}

// ExceedsCap reports whether cost(tradeAmount)/|tradeAmount| is above the cap.
// A zero trade never exceeds.
func (m *FeeModel) ExceedsCap(tradeAmount float64) bool {
	if m == nil || m.MaxFeeImpact == nil || tradeAmount == 0 {
		return false
	}
	return m.Cost(tradeAmount)/math.Abs(tradeAmount) > *m.MaxFeeImpact
}

// MinCompliantTrade returns the smallest trade size whose fee ratio respects the cap.
// +Inf means no trade size can satisfy it.
func (m *FeeModel) MinCompliantTrade() float64 {
	if m == nil || m.MaxFeeImpact == nil {
		return 0
	}

	maxImpact := *m.MaxFeeImpact
	switch m.Structure.Type {
	case FeeTypeFixed:
		if m.Structure.Amount <= 0 {
			return 0
		}
		if maxImpact <= 0 {
			return math.Inf(1)
		}
		// fixed / trade <= cap  =>  trade >= fixed / cap
		return m.Structure.Amount / maxImpact
	case FeeTypePercentage:
		if m.Structure.Rate > maxImpact {
			return math.Inf(1)
		}
		return 0
	default:
		return 0
	}
}

// Validate checks the model invariants
func (m *FeeModel) Validate(field string) error {
	if m == nil {
		return nil
	}

	switch m.Structure.Type {
	case FeeTypeZero:
	case FeeTypeFixed:
		if m.Structure.Amount < 0 || math.IsNaN(m.Structure.Amount) || math.IsInf(m.Structure.Amount, 0) {
			return ValidationError{field + ".feeAmount", "must be a finite value >= 0"}
		}
	case FeeTypePercentage:
		if m.Structure.Rate < 0 || m.Structure.Rate > 1 || math.IsNaN(m.Structure.Rate) {
			return ValidationError{field + ".feeRate", "must be in [0, 1]"}
		}
	default:
		return ValidationError{field + ".type", fmt.Sprintf("unknown fee type %q", m.Structure.Type)}
	}

	if m.MaxFeeImpact != nil {
		v := *m.MaxFeeImpact
		if v < 0 || v > 1 || math.IsNaN(v) {
			return ValidationError{field + ".maxFeeImpact", "must be in [0, 1]"}
		}
	}

	return nil
}
