package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/allocator/pkg/logger"
)

// CatalogWarmer reloads the fiat and crypto asset lists into the cache
type CatalogWarmer interface {
	Warm(ctx context.Context) (int, error)
}

// CatalogRefreshJob keeps the cached asset catalog fresh
type CatalogRefreshJob struct {
	warmer CatalogWarmer
	logger *logger.Logger
}

// NewCatalogRefreshJob creates a new catalog refresh job
func NewCatalogRefreshJob(warmer CatalogWarmer, log *logger.Logger) *CatalogRefreshJob {
	return &CatalogRefreshJob{
		warmer: warmer,
		logger: log,
	}
}

// Name returns the job name
func (j *CatalogRefreshJob) Name() string {
	return "asset_catalog_refresh"
}

// Schedule returns the cron schedule (every 5 minutes)
func (j *CatalogRefreshJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run refreshes the catalog
func (j *CatalogRefreshJob) Run(ctx context.Context) error {
	n, err := j.warmer.Warm(ctx)
	if err != nil {
		return fmt.Errorf("refresh asset catalog: %w", err)
	}

	j.logger.WithField("assets", n).Debug("Asset catalog refreshed")
	return nil
}
