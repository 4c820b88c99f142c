package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/allocator/internal/api"
	"github.com/wonny/allocator/internal/api/handlers"
	"github.com/wonny/allocator/internal/solver"
	"github.com/wonny/allocator/internal/worker"
	"github.com/wonny/allocator/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the allocation API server",
	Long: `Starts the REST and websocket API.

Endpoints:
  GET  /health                   - Health check
  GET  /metrics                  - Prometheus metrics
  GET  /api/assets/{fiat|crypto} - Asset catalog
  GET  /api/assets/search?q=     - Search fiat, crypto and equities
  GET  /api/price/{asset}?quote= - Asset price in a quote currency
  POST /api/solve                - Allocate new cash
  GET  /ws/solve                 - Allocation over websocket
  POST /api/import               - Store a portfolio (needs DATABASE_URL)
  GET  /api/import/{id}          - Fetch an imported portfolio

Example:
  go run ./cmd/dcapal api
  go run ./cmd/dcapal api --port 8080 --scheduler=false`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "listen port (default from PORT)")
	apiCmd.Flags().BoolVar(&apiScheduler, "scheduler", true, "run the maintenance jobs in-process")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== dcapal API Server ===")

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := newLogger(cfg)
	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to redis (optional)
	rc, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rc.Close()

	// 4. Market data
	market := newMarketService(cfg, log, rc)

	// 5. Solver and worker pool
	s := solver.New(log, solver.WithTolerance(cfg.Solver.Tolerance))
	pool := worker.NewPool(cfg.Solver.Workers, s, cfg.Solver.Timeout, log, worker.WithComputeLimit(cfg.Solver.MaxCompute))
	defer pool.Close()

	h := api.Handlers{
		Assets: handlers.NewAssetHandler(market, log),
		Solve:  handlers.NewSolveHandler(pool, s, cfg.Solver.Timeout, log),
	}

	// 6. Database (optional)
	db, importer, err := openImporter(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		h.Import = handlers.NewImportHandler(importer, log)
	}

	// 7. Scheduler
	if apiScheduler {
		sched, err := newScheduler(log, market, importer)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// 8. Server with graceful shutdown
	server := api.New(cfg, log, api.NewRouter(h, cfg.MetricsEnabled, log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
