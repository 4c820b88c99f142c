package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/allocator/pkg/logger"
)

// ExpiredCleaner deletes imported portfolios past their expiry
type ExpiredCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// PortfolioCleanupJob purges expired imported portfolios
type PortfolioCleanupJob struct {
	cleaner ExpiredCleaner
	logger  *logger.Logger
}

// NewPortfolioCleanupJob creates a new cleanup job
func NewPortfolioCleanupJob(cleaner ExpiredCleaner, log *logger.Logger) *PortfolioCleanupJob {
	return &PortfolioCleanupJob{
		cleaner: cleaner,
		logger:  log,
	}
}

// Name returns the job name
func (j *PortfolioCleanupJob) Name() string {
	return "imported_portfolio_cleanup"
}

// Schedule returns the cron schedule (hourly, on the hour)
func (j *PortfolioCleanupJob) Schedule() string {
	return "0 0 * * * *"
}

// Run deletes expired portfolios
func (j *PortfolioCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting imported portfolio cleanup")

	n, err := j.cleaner.Cleanup(ctx)
	if err != nil {
		return fmt.Errorf("delete expired portfolios: %w", err)
	}

	if n > 0 {
		j.logger.WithField("removed", n).Info("Imported portfolio cleanup completed")
	}
	return nil
}
