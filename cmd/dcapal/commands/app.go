package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wonny/allocator/internal/marketdata"
	"github.com/wonny/allocator/internal/portfolio"
	"github.com/wonny/allocator/internal/scheduler"
	"github.com/wonny/allocator/internal/scheduler/jobs"
	"github.com/wonny/allocator/pkg/config"
	"github.com/wonny/allocator/pkg/database"
	"github.com/wonny/allocator/pkg/httputil"
	"github.com/wonny/allocator/pkg/logger"
	"github.com/wonny/allocator/pkg/redis"
)

// loadConfig reads the configuration and applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger logs to stderr so that command output stays parseable
func newLogger(cfg *config.Config) *logger.Logger {
	return logger.NewWithWriter(cfg, os.Stderr)
}

// newMarketService wires both providers behind their rate limits and the redis cache
func newMarketService(cfg *config.Config, log *logger.Logger, rc *redis.Client) *marketdata.Service {
	limiter := redis.NewRateLimiter(rc, "dcapal:ratelimit")

	catalogHTTP := httputil.New(cfg, log).WithRateLimiter(limiter, redis.DcaPalRateLimit)
	equityHTTP := httputil.New(cfg, log).WithRateLimiter(limiter, redis.YahooRateLimit)

	catalog := marketdata.NewDcaPalClient(catalogHTTP, log, cfg.Market.APIURL)
	equities := marketdata.NewYahooClient(equityHTTP, log, cfg.Market.YahooSearchURL, cfg.Market.YahooChartURL)

	return marketdata.NewService(
		catalog,
		equities,
		redis.NewCache(rc, "dcapal"),
		marketdata.NewMarketRepository(rc, log),
		log,
	)
}

// openImporter connects to the database, applies migrations and returns the importer.
// Both results are nil when no database is configured.
func openImporter(ctx context.Context, cfg *config.Config, log *logger.Logger) (*database.DB, *portfolio.Importer, error) {
	db, err := database.New(ctx, cfg)
	if errors.Is(err, database.ErrDisabled) {
		log.Warn("DATABASE_URL not set, portfolio import disabled")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	if len(applied) > 0 {
		log.WithField("migrations", applied).Info("Database migrated")
	}

	return db, portfolio.NewImporter(portfolio.NewRepository(db.Pool), cfg.ImportTTL, log), nil
}

// newScheduler registers the maintenance jobs; cleanup only runs with a database
func newScheduler(log *logger.Logger, market *marketdata.Service, importer *portfolio.Importer) (*scheduler.Scheduler, error) {
	sched := scheduler.New(log)

	if err := sched.AddJob(jobs.NewCatalogRefreshJob(market, log)); err != nil {
		return nil, err
	}
	if importer != nil {
		if err := sched.AddJob(jobs.NewPortfolioCleanupJob(importer, log)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
