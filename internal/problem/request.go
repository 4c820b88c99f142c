package problem

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/wonny/allocator/internal/contracts"
)

// Request is the solve message exchanged with a worker.
// Fractions, not percentages, are used at this boundary.
type Request struct {
	Budget                   float64                        `json:"budget"` // new cash
	Assets                   map[string]contracts.AssetUnit `json:"assets"`
	QuoteCurrency            string                         `json:"quoteCurrency,omitempty"`
	TaxEfficient             bool                           `json:"taxEfficient"`
	UseWholeShares           bool                           `json:"useWholeShares"`
	Fees                     *contracts.FeeModel            `json:"fees,omitempty"`
	AllowFractionalRemainder *bool                          `json:"allowFractionalRemainder,omitempty"` // default true
}

// DecodeRequest parses a JSON solve request; unknown fields and repeated asset symbols are rejected
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, ValidationError{Field: "request", Message: fmt.Sprintf("malformed: %v", err)}
	}

	var raw struct {
		Assets json.RawMessage `json:"assets"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ValidationError{Field: "request", Message: fmt.Sprintf("malformed: %v", err)}
	}
	if sym, ok := duplicateKey(raw.Assets); ok {
		return nil, ValidationError{Field: "assets", Message: fmt.Sprintf("duplicate symbol %q", sym)}
	}
	return &req, nil
}

// duplicateKey returns the first key repeated at the top level of a JSON object.
// encoding/json keeps the last value of a repeated key, which would drop an asset silently.
func duplicateKey(obj json.RawMessage) (string, bool) {
	if len(obj) == 0 {
		return "", false
	}

	dec := json.NewDecoder(bytes.NewReader(obj))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return "", false
	}

	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, _ := tok.(string)
		if _, dup := seen[key]; dup {
			return key, true
		}
		seen[key] = struct{}{}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return "", false
		}
	}
	return "", false
}

// Problem normalizes a request into a validated problem.
// Share-based assets sent without a current amount are valued at shares × price.
func (r *Request) Problem() (*contracts.Problem, error) {
	allowRemainder := true
	if r.AllowFractionalRemainder != nil {
		allowRemainder = *r.AllowFractionalRemainder
	}

	p := &contracts.Problem{
		Budget:                   r.Budget,
		Assets:                   make(map[string]contracts.AssetUnit, len(r.Assets)),
		GlobalFees:               r.Fees,
		QuoteCurrency:            r.QuoteCurrency,
		TaxEfficient:             r.TaxEfficient,
		UseWholeShares:           r.UseWholeShares,
		AllowFractionalRemainder: allowRemainder,
	}

	for key, a := range r.Assets {
		if a.Symbol == "" {
			a.Symbol = key
		}
		if a.CurrentAmount == 0 && a.Shares > 0 && a.Price > 0 {
			a.CurrentAmount = a.Shares * a.Price
		}
		if !r.UseWholeShares {
			a.IsWholeShares = false
		}
		p.Assets[key] = a
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
