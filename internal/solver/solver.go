package solver

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/pkg/logger"
)

const (
	// DefaultTolerance is how far below its target an asset may stay for the budget suggestion
	DefaultTolerance = 1e-4

	// cashEpsilon is the smallest residual weight treated as an explicit cash target
	cashEpsilon = 1e-12
)

// Solver computes allocations for a Problem.
// It holds no state across calls: every Solve works on its own copy of the input.
// ⭐ SSOT: allocation arithmetic lives only in this package
type Solver struct {
	log       *logger.Logger
	tolerance float64
}

// Option configures a Solver
type Option func(*Solver)

// WithTolerance sets the weight tolerance of the minimum-budget suggestion.
// Non-positive values are ignored.
func WithTolerance(tol float64) Option {
	return func(s *Solver) {
		if tol > 0 {
			s.tolerance = tol
		}
	}
}

// New creates a new solver
func New(log *logger.Logger, opts ...Option) *Solver {
	s := &Solver{
		log:       log,
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome is the raw per-asset result of a mode-specific solve
type outcome struct {
	amounts map[string]float64
	fees    map[string]float64
	shares  map[string]int64 // whole-share assets in discrete mode only
	capped  bool
}

// Solve validates the problem and computes its allocation.
// Invalid input is rejected with a contracts.ValidationError; every valid
// problem yields a Solution, possibly with everything left unallocated.
func (s *Solver) Solve(ctx context.Context, problem *contracts.Problem) (*contracts.Solution, error) {
	if problem == nil {
		return nil, contracts.ValidationError{Field: "problem", Message: "must not be nil"}
	}
	if err := problem.Validate(); err != nil {
		return nil, fmt.Errorf("validate problem: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	p := problem.Clone()

	var (
		out outcome
		err error
	)
	switch p.Mode() {
	case contracts.ModeDiscrete:
		out, err = solveDiscrete(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("discrete solve: %w", err)
		}
	default:
		out = solveContinuous(p)
	}

	sol := assemble(p, out)
	sol.MinBudgetToTarget = s.MinBudget(p)

	s.log.WithFields(map[string]interface{}{
		"mode":        sol.Mode,
		"budget":      sol.Budget,
		"assets":      len(sol.PerAsset),
		"unallocated": sol.UnallocatedCash,
		"total_fees":  sol.TotalFees,
		"infeasible":  sol.Infeasible,
		"duration":    time.Since(start).String(),
	}).Debug("allocation solved")

	return sol, nil
}

// assemble turns a raw outcome into an immutable Solution.
// Unallocated cash is derived so that Σ delta + fees + unallocated equals the budget.
func assemble(p *contracts.Problem, out outcome) *contracts.Solution {
	symbols := p.Symbols()
	deltas := make([]float64, len(symbols))
	fees := make([]float64, len(symbols))
	amounts := make([]float64, len(symbols))
	for i, sym := range symbols {
		a := p.Assets[sym]
		amounts[i] = out.amounts[sym]
		deltas[i] = amounts[i] - a.CurrentAmount
		if shares, ok := out.shares[sym]; ok {
			deltas[i] = float64(shares) * a.Price
		}
		fees[i] = out.fees[sym]
	}

	totalFees := floats.Sum(fees)
	unallocated := p.Budget - floats.Sum(deltas) - totalFees
	if math.Abs(unallocated) < dustFor(p.TotalValue()) {
		unallocated = 0
	}

	portfolio := floats.Sum(amounts) + unallocated
	diffs := make([]float64, len(symbols))
	sol := &contracts.Solution{
		Mode:            p.Mode(),
		Budget:          p.Budget,
		PerAsset:        make(map[string]contracts.AssetAllocation, len(symbols)),
		UnallocatedCash: unallocated,
		TotalFees:       totalFees,
	}

	for i, sym := range symbols {
		a := p.Assets[sym]
		alloc := contracts.AssetAllocation{
			Symbol:        sym,
			CurrentAmount: a.CurrentAmount,
			NewAmount:     amounts[i],
			TargetWeight:  a.TargetWeight,
			DeltaAmount:   deltas[i],
			Fee:           fees[i],
		}
		if portfolio > 0 {
			alloc.NewWeight = amounts[i] / portfolio
		}
		if shares, ok := out.shares[sym]; ok {
			n := shares
			alloc.DeltaShares = &n
		}
		diffs[i] = alloc.NewWeight - a.TargetWeight
		sol.PerAsset[sym] = alloc
	}

	sol.Deviation = floats.Dot(diffs, diffs)
	sol.Infeasible = out.capped && p.Budget > 0 && !sol.HasTrades()
	return sol
}
