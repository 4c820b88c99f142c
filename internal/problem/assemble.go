package problem

import (
	"fmt"

	"github.com/wonny/allocator/internal/contracts"
)

// Options are the solve-time choices made next to the portfolio
type Options struct {
	Cash                     float64 // new money to deploy
	TaxEfficient             bool
	UseWholeShares           bool
	AllowFractionalRemainder bool
}

// DefaultOptions mirrors what the allocation flow always sends
func DefaultOptions(cash float64) Options {
	return Options{Cash: cash, AllowFractionalRemainder: true}
}

// Assemble turns a portfolio document into an immutable allocation problem.
// ⭐ SSOT: every percent → fraction conversion happens here
//
// The budget is the new cash only; the already-invested total reaches the solver
// through the current amounts. In whole-shares mode share-based lines carry
// qty × price and are never re-traded downwards.
func Assemble(doc *Document, opts Options) (*contracts.Problem, error) {
	if doc == nil {
		return nil, ValidationError{Field: "document", Message: "required"}
	}
	if err := Validate(doc); err != nil {
		return nil, err
	}
	if opts.Cash < 0 {
		return nil, ValidationError{Field: "cash", Message: "must be >= 0"}
	}

	global := feeModel(doc.Fees)

	p := &contracts.Problem{
		Budget:                   opts.Cash,
		Assets:                   make(map[string]contracts.AssetUnit, len(doc.Assets)),
		GlobalFees:               global,
		QuoteCurrency:            doc.QuoteCcy,
		TaxEfficient:             opts.TaxEfficient,
		UseWholeShares:           opts.UseWholeShares,
		AllowFractionalRemainder: opts.AllowFractionalRemainder,
	}

	for _, a := range doc.Assets {
		unit := contracts.AssetUnit{
			Symbol:        a.Symbol,
			CurrentAmount: a.CurrentAmount(),
			Shares:        a.Shares(),
			Price:         a.Price,
			TargetWeight:  a.TargetWeight / 100,
			IsWholeShares: opts.UseWholeShares && a.AClass.WholeShares(),
			Fees:          global,
		}
		if own := feeModel(a.Fees); own != nil {
			unit.Fees = own
		}
		p.Assets[a.Symbol] = unit
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("assemble problem: %w", err)
	}
	return p, nil
}

// feeModel converts a fee document, percent fields divided by 100
func feeModel(f *FeesDoc) *contracts.FeeModel {
	if f == nil {
		return nil
	}

	m := &contracts.FeeModel{Structure: contracts.FeeStructure{Type: f.Type}}
	switch f.Type {
	case contracts.FeeTypeFixed:
		m.Structure.Amount = f.FeeAmount
	case contracts.FeeTypePercentage:
		m.Structure.Rate = f.FeeRate / 100
	}
	if f.MaxFeeImpact != nil {
		v := *f.MaxFeeImpact / 100
		m.MaxFeeImpact = &v
	}
	return m
}
