package problem

import "github.com/wonny/allocator/internal/contracts"

// AssetClass is the kind of a portfolio line as entered by the user
type AssetClass string

const (
	ClassCurrency AssetClass = "CURRENCY"
	ClassCrypto   AssetClass = "CRYPTO"
	ClassEquity   AssetClass = "EQUITY"
	ClassETF      AssetClass = "ETF"
	ClassFund     AssetClass = "MUTUALFUND"
)

// WholeShares reports whether the class trades in integer units
func (c AssetClass) WholeShares() bool {
	switch c {
	case ClassEquity, ClassETF, ClassFund:
		return true
	default:
		return false
	}
}

// Document is a portfolio as the user builds or imports it.
// Percentages are expressed as 0 ~ 100, as typed in.
type Document struct {
	QuoteCcy string     `yaml:"quote_ccy" json:"quote_ccy"`
	Fees     *FeesDoc   `yaml:"fees,omitempty" json:"fees,omitempty"`
	Assets   []AssetDoc `yaml:"assets" json:"assets"`
}

// AssetDoc is one portfolio line.
// Current value is either Amount, or Qty × Price for share-based assets.
type AssetDoc struct {
	Symbol       string     `yaml:"symbol" json:"symbol"`
	Name         string     `yaml:"name,omitempty" json:"name,omitempty"`
	AClass       AssetClass `yaml:"aclass" json:"aclass"`
	Amount       *float64   `yaml:"amount,omitempty" json:"amount,omitempty"`
	Qty          *float64   `yaml:"qty,omitempty" json:"qty,omitempty"`
	Price        float64    `yaml:"price,omitempty" json:"price,omitempty"`
	TargetWeight float64    `yaml:"target_weight" json:"target_weight"` // percent
	Fees         *FeesDoc   `yaml:"fees,omitempty" json:"fees,omitempty"`
}

// FeesDoc is a fee model with percentage fields in percent
type FeesDoc struct {
	Type         contracts.FeeType `yaml:"type" json:"type"`
	FeeAmount    float64           `yaml:"fee_amount,omitempty" json:"fee_amount,omitempty"`
	FeeRate      float64           `yaml:"fee_rate,omitempty" json:"fee_rate,omitempty"`             // percent
	MaxFeeImpact *float64          `yaml:"max_fee_impact,omitempty" json:"max_fee_impact,omitempty"` // percent
}

// CurrentAmount returns the value already held
func (a AssetDoc) CurrentAmount() float64 {
	if a.Qty != nil {
		return *a.Qty * a.Price
	}
	if a.Amount != nil {
		return *a.Amount
	}
	return 0
}

// Shares returns the units already held
func (a AssetDoc) Shares() float64 {
	if a.Qty != nil {
		return *a.Qty
	}
	return 0
}
