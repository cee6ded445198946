package websitedata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/storage"
)

// WebsiteLister finds websites whose overview cache has expired and keeps
// the failure backoff that StaleWebsites honours.
type WebsiteLister interface {
	StaleWebsites(ctx context.Context, limit int) ([]seo.Website, error)
	RecordRefreshFailure(ctx context.Context, websiteID string, kind storage.CacheKind, errMsg string) (time.Time, error)
	ClearRefreshFailure(ctx context.Context, websiteID string, kind storage.CacheKind) error
}

// Refresher keeps overview caches warm in the background.
type Refresher struct {
	sites   WebsiteLister
	service *Service
	loc     seo.Location
	poll    time.Duration
	batch   int
	logger  *slog.Logger
}

// NewRefresher creates a Refresher. If pollInterval is <= 0, it defaults to
// one hour.
func NewRefresher(sites WebsiteLister, service *Service, pollInterval time.Duration) *Refresher {
	if pollInterval <= 0 {
		pollInterval = time.Hour
	}
	return &Refresher{
		sites:   sites,
		service: service,
		loc:     seo.DefaultLocation,
		poll:    pollInterval,
		batch:   10,
		logger:  slog.Default(),
	}
}

// Run refreshes stale websites until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("refresher iteration failed", "error", err)
		}
		if n > 0 {
			r.logger.Info("refreshed website data", "websites", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.poll):
		}
	}
}

// RunOnce refreshes one batch of stale websites and returns how many were
// refreshed. Websites another request is already refreshing are skipped; a
// failed refresh is recorded so the website backs off instead of taking a
// batch slot on every poll.
func (r *Refresher) RunOnce(ctx context.Context) (int, error) {
	sites, err := r.sites.StaleWebsites(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("listing stale websites: %w", err)
	}

	refreshed := 0
	for _, site := range sites {
		if ctx.Err() != nil {
			break
		}
		if _, err := r.service.UpdateMetrics(ctx, site, r.loc); err != nil {
			if errors.Is(err, ErrRefreshInProgress) || ctx.Err() != nil {
				continue
			}
			retryAfter, ferr := r.sites.RecordRefreshFailure(ctx, site.ID, storage.KindOverview, err.Error())
			if ferr != nil {
				r.logger.Error("failed to record refresh failure", "website_id", site.ID, "error", ferr)
			}
			r.logger.Warn("website refresh failed", "website_id", site.ID, "domain", site.Domain, "retry_after", retryAfter, "error", err)
			continue
		}
		if err := r.sites.ClearRefreshFailure(ctx, site.ID, storage.KindOverview); err != nil {
			r.logger.Warn("failed to clear refresh failures", "website_id", site.ID, "error", err)
		}
		refreshed++
	}
	return refreshed, nil
}
