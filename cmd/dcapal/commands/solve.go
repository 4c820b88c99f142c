package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/allocator/internal/contracts"
	"github.com/wonny/allocator/internal/problem"
	"github.com/wonny/allocator/internal/solver"
	"github.com/wonny/allocator/internal/worker"
)

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Allocate new cash across a portfolio file",
	Long: `Reads a portfolio (YAML or JSON) and prints how to split the new cash.

The table shows per asset the current and new amount, the new weight next to
its target, the amount and whole shares to buy or sell and the fee paid.
It ends with the unallocated cash and the smallest budget that reaches every
target weight by buying only.

Example:
  go run ./cmd/dcapal solve --file portfolio.yaml --cash 1000
  go run ./cmd/dcapal solve --file portfolio.yaml --cash 1000 --whole-shares --tax-efficient
  go run ./cmd/dcapal solve --file portfolio.yaml --cash 1000 --json`,
	RunE: runSolve,
}

var (
	solveFile         string
	solveCash         float64
	solveTaxEfficient bool
	solveWholeShares  bool
	solveNoRemainder  bool
	solveJSON         bool
)

func init() {
	rootCmd.AddCommand(solveCmd)

	solveCmd.Flags().StringVarP(&solveFile, "file", "f", "", "portfolio file (YAML or JSON)")
	solveCmd.Flags().Float64Var(&solveCash, "cash", 0, "new cash to invest")
	solveCmd.Flags().BoolVar(&solveTaxEfficient, "tax-efficient", false, "buy only, never sell")
	solveCmd.Flags().BoolVar(&solveWholeShares, "whole-shares", false, "trade equities, ETFs and funds in whole shares")
	solveCmd.Flags().BoolVar(&solveNoRemainder, "no-fractional-remainder", false, "leave cash unallocated instead of spreading it over fractional assets")
	solveCmd.Flags().BoolVar(&solveJSON, "json", false, "print the solution as JSON")
	_ = solveCmd.MarkFlagRequired("file")
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	doc, _, err := problem.Load(solveFile)
	if err != nil {
		return err
	}

	opts := problem.DefaultOptions(solveCash)
	opts.TaxEfficient = solveTaxEfficient
	opts.UseWholeShares = solveWholeShares
	opts.AllowFractionalRemainder = !solveNoRemainder

	p, err := problem.Assemble(doc, opts)
	if err != nil {
		return fmt.Errorf("assemble problem: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Solver.Timeout)
	defer cancel()

	s := solver.New(log, solver.WithTolerance(cfg.Solver.Tolerance))
	sol, err := worker.Solve(ctx, s, log, p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if solveJSON {
		return writeJSON(out, sol)
	}

	printSolution(out, p.QuoteCurrency, sol)
	return nil
}

// printSolution renders a solution as a table followed by its totals
func printSolution(w io.Writer, quote string, sol *contracts.Solution) {
	columns := []string{"Symbol", "Current", "New", "Weight", "Target", "Delta", "Shares", "Fee"}
	widths := []int{10, 14, 14, 8, 8, 14, 7, 10}

	fmt.Fprintln(w)
	printDoubleSeparator(w)
	fmt.Fprintf(w, "  Allocation (%s mode)\n", sol.Mode)
	printSeparator(w)

	printTableHeader(w, columns, widths)
	for _, sym := range sol.Symbols() {
		a := sol.PerAsset[sym]
		shares := "-"
		if a.DeltaShares != nil && *a.DeltaShares != 0 {
			shares = strconv.FormatInt(*a.DeltaShares, 10)
		}
		fee := "-"
		if a.Fee > 0 {
			fee = formatMoney(a.Fee, quote)
		}
		printTableRow(w, []string{
			sym,
			formatMoney(a.CurrentAmount, quote),
			formatMoney(a.NewAmount, quote),
			formatPercent(a.NewWeight),
			formatPercent(a.TargetWeight),
			formatSignedMoney(a.DeltaAmount, quote),
			shares,
			fee,
		}, widths)
	}

	printSeparator(w)
	printKeyValue(w, "Budget", formatMoney(sol.Budget, quote), 20)
	printKeyValue(w, "Total fees", formatMoney(sol.TotalFees, quote), 20)
	printKeyValue(w, "Unallocated cash", formatMoney(sol.UnallocatedCash, quote), 20)
	if sol.MinBudgetToTarget > 0 {
		printKeyValue(w, "Budget to target", formatMoney(sol.MinBudgetToTarget, quote), 20)
	} else {
		printKeyValue(w, "Budget to target", "on target", 20)
	}
	if sol.Infeasible {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "⚠️  No trade fits the fee limits; the budget stays unallocated")
	}
	fmt.Fprintln(w)
}
