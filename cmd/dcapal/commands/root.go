package commands

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dcapal",
	Short: "dcapal - portfolio allocation for periodic investing",
	Long: `dcapal CLI

Splits new cash across a portfolio so that it moves as close as possible
to its target weights, honoring fees and whole-share trading.

Usage:
  go run ./cmd/dcapal [command]

Examples:
  go run ./cmd/dcapal solve --file portfolio.yaml --cash 1000
  go run ./cmd/dcapal api --port 8089
  go run ./cmd/dcapal search bitcoin
  go run ./cmd/dcapal price btc --quote eur`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
