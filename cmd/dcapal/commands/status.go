package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/allocator/pkg/config"
	"github.com/wonny/allocator/pkg/database"
	"github.com/wonny/allocator/pkg/redis"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and backend connectivity",
	Long: `Prints the effective configuration and checks that the database and
redis answer. Optional backends that are not configured are reported as disabled.

Example:
  go run ./cmd/dcapal status`,
	RunE: runStatus,
}

const statusTimeout = 5 * time.Second

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printDoubleSeparator(out)
	fmt.Fprintln(out, "  dcapal status")
	printSeparator(out)
	printConfig(out, cfg)
	printSeparator(out)

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	healthy := true
	if !checkDatabase(ctx, out, cfg) {
		healthy = false
	}
	if !checkRedis(ctx, out, cfg) {
		healthy = false
	}
	fmt.Fprintln(out)

	if !healthy {
		return errors.New("one or more backends are unreachable")
	}
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) {
	printKeyValue(w, "Environment", cfg.Env, 16)
	printKeyValue(w, "Port", cfg.Port, 16)
	printKeyValue(w, "Market API", cfg.Market.APIURL, 16)
	printKeyValue(w, "Solver workers", fmt.Sprintf("%d", cfg.Solver.Workers), 16)
	printKeyValue(w, "Solver timeout", cfg.Solver.Timeout.String(), 16)
	printKeyValue(w, "Compute limit", cfg.Solver.MaxCompute.String(), 16)
	printKeyValue(w, "Import TTL", cfg.ImportTTL.String(), 16)
	printKeyValue(w, "Metrics", fmt.Sprintf("%t", cfg.MetricsEnabled), 16)
}

func checkDatabase(ctx context.Context, w io.Writer, cfg *config.Config) bool {
	db, err := database.New(ctx, cfg)
	if errors.Is(err, database.ErrDisabled) {
		printKeyValue(w, "Database", "disabled", 16)
		return true
	}
	if err != nil {
		printKeyValue(w, "Database", "❌ "+err.Error(), 16)
		return false
	}
	defer db.Close()

	health, err := db.HealthCheck(ctx)
	if err != nil {
		printKeyValue(w, "Database", "❌ "+err.Error(), 16)
		return false
	}
	printKeyValue(w, "Database", fmt.Sprintf("✅ %s (%d/%d conns)",
		health.Latency.Round(time.Microsecond), health.TotalConns, health.MaxConns), 16)

	migrations, err := database.Migrations()
	if err == nil {
		printKeyValue(w, "Migrations", fmt.Sprintf("%d embedded", len(migrations)), 16)
	}
	return true
}

func checkRedis(ctx context.Context, w io.Writer, cfg *config.Config) bool {
	if !cfg.Redis.Enabled {
		printKeyValue(w, "Redis", "disabled", 16)
		return true
	}

	rc, err := redis.New(cfg)
	if err != nil {
		printKeyValue(w, "Redis", "❌ "+err.Error(), 16)
		return false
	}
	defer rc.Close()

	start := time.Now()
	if err := rc.Ping(ctx); err != nil {
		printKeyValue(w, "Redis", "❌ "+err.Error(), 16)
		return false
	}
	printKeyValue(w, "Redis", "✅ "+time.Since(start).Round(time.Microsecond).String(), 16)
	return true
}
