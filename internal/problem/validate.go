package problem

import (
	"fmt"
	"math"
	"regexp"

	"github.com/wonny/allocator/internal/contracts"
)

// ValidationError is the rejected-input error shared with the solver
type ValidationError = contracts.ValidationError

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3,5}$`)

// Validate checks a document before assembly
func Validate(doc *Document) error {
	if doc.QuoteCcy != "" && !currencyPattern.MatchString(doc.QuoteCcy) {
		return ValidationError{Field: "quote_ccy", Message: fmt.Sprintf("invalid currency code %q", doc.QuoteCcy)}
	}

	if err := validateFees(doc.Fees, "fees"); err != nil {
		return err
	}

	seen := make(map[string]bool, len(doc.Assets))
	totalWeight := 0.0
	for i, a := range doc.Assets {
		field := fmt.Sprintf("assets[%d]", i)

		if a.Symbol == "" {
			return ValidationError{Field: field + ".symbol", Message: "required"}
		}
		if seen[a.Symbol] {
			return ValidationError{Field: field + ".symbol", Message: fmt.Sprintf("duplicate symbol %q", a.Symbol)}
		}
		seen[a.Symbol] = true

		switch a.AClass {
		case ClassCurrency, ClassCrypto, ClassEquity, ClassETF, ClassFund:
		default:
			return ValidationError{Field: field + ".aclass", Message: fmt.Sprintf("unknown asset class %q", a.AClass)}
		}

		if a.Amount != nil && a.Qty != nil {
			return ValidationError{Field: field, Message: "amount and qty are mutually exclusive"}
		}
		if a.Amount != nil && *a.Amount < 0 {
			return ValidationError{Field: field + ".amount", Message: "must be >= 0"}
		}
		if a.Qty != nil && *a.Qty < 0 {
			return ValidationError{Field: field + ".qty", Message: "must be >= 0"}
		}
		if a.Price < 0 {
			return ValidationError{Field: field + ".price", Message: "must be >= 0"}
		}
		if a.TargetWeight < 0 || a.TargetWeight > 100 {
			return ValidationError{Field: field + ".target_weight", Message: "must be in [0, 100]"}
		}
		totalWeight += a.TargetWeight

		if err := validateFees(a.Fees, field+".fees"); err != nil {
			return err
		}
	}

	if totalWeight > 100+1e-6 {
		return ValidationError{Field: "assets", Message: fmt.Sprintf("target weights sum to %.4f%% (> 100%%)", totalWeight)}
	}

	return nil
}

func validateFees(f *FeesDoc, field string) error {
	if f == nil {
		return nil
	}

	switch f.Type {
	case contracts.FeeTypeZero, contracts.FeeTypeFixed, contracts.FeeTypePercentage:
	default:
		return ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown fee type %q", f.Type)}
	}
	if f.FeeAmount < 0 || math.IsNaN(f.FeeAmount) {
		return ValidationError{Field: field + ".fee_amount", Message: "must be >= 0"}
	}
	if f.FeeRate < 0 || f.FeeRate > 100 {
		return ValidationError{Field: field + ".fee_rate", Message: "must be in [0, 100]"}
	}
	if f.MaxFeeImpact != nil && (*f.MaxFeeImpact < 0 || *f.MaxFeeImpact > 100) {
		return ValidationError{Field: field + ".max_fee_impact", Message: "must be in [0, 100]"}
	}
	return nil
}
