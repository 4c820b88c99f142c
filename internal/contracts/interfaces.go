package contracts

import (
	"context"
	"time"
)

// Solver turns a Problem into a Solution
// ⭐ SSOT: allocation solver interface
type Solver interface {
	Solve(ctx context.Context, problem *Problem) (*Solution, error)
}

// SolverFunc adapts a plain function to the Solver interface
type SolverFunc func(ctx context.Context, problem *Problem) (*Solution, error)

// Solve calls f
func (f SolverFunc) Solve(ctx context.Context, problem *Problem) (*Solution, error) {
	return f(ctx, problem)
}

// AssetKind is the category a lookup searches in
type AssetKind string

const (
	AssetKindFiat   AssetKind = "fiat"
	AssetKindCrypto AssetKind = "crypto"
	AssetKindEquity AssetKind = "equity"
)

// AssetInfo is a lookup candidate
type AssetInfo struct {
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
	Kind     AssetKind `json:"kind"`
	Type     string    `json:"type,omitempty"`     // EQUITY, ETF, MUTUALFUND for equities
	Exchange string    `json:"exchange,omitempty"` // equities only
}

// Price is a conversion rate between an asset and a quote currency
type Price struct {
	Base      string    `json:"base"`
	Quote     string    `json:"quote"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency,omitempty"` // instrument's native currency for equities
	FetchedAt time.Time `json:"fetched_at"`
}

// AssetProvider is a black-box, cancellable, best-effort market data source
type AssetProvider interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Assets lists candidates of a kind; query narrows the result for search-style providers
	Assets(ctx context.Context, kind AssetKind, query string) ([]AssetInfo, error)

	// Price returns the current price; ok=false means not available yet
	Price(ctx context.Context, symbol, quote string) (Price, bool, error)
}
