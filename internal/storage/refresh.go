package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	refreshBackoffBase = time.Minute
	refreshBackoffMax  = 24 * time.Hour
)

// MarkEmpty records that the last fetch for websiteID/kind returned no rows.
// Until ttl passes, KnownEmpty reports true and callers can answer empty
// without asking the upstream again.
func (s *Store) MarkEmpty(ctx context.Context, websiteID string, kind CacheKind, ttl time.Duration) error {
	now := s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_refresh_state (website_id, kind, empty_until, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (website_id, kind) DO UPDATE
		SET empty_until = EXCLUDED.empty_until, updated_at = EXCLUDED.updated_at`,
		websiteID, string(kind), now.Add(ttl), now)
	if err != nil {
		return fmt.Errorf("marking %s empty for %s: %w", kind, websiteID, err)
	}
	return nil
}

func (s *Store) KnownEmpty(ctx context.Context, websiteID string, kind CacheKind) (bool, error) {
	var empty bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM cache_refresh_state
			WHERE website_id = $1 AND kind = $2 AND empty_until > NOW()
		)`, websiteID, string(kind)).Scan(&empty)
	if err != nil {
		return false, fmt.Errorf("reading %s state for %s: %w", kind, websiteID, err)
	}
	return empty, nil
}

// RecordRefreshFailure counts a failed background refresh and pushes the
// next attempt back: 2, 4, 8 ... minutes, capped at a day. It returns the
// time before which StaleWebsites skips the website.
func (s *Store) RecordRefreshFailure(ctx context.Context, websiteID string, kind CacheKind, errMsg string) (time.Time, error) {
	var retryAfter time.Time
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var failures int
		err := tx.QueryRow(ctx,
			"SELECT failures FROM cache_refresh_state WHERE website_id = $1 AND kind = $2 FOR UPDATE",
			websiteID, string(kind)).Scan(&failures)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		now := s.now()
		failures++
		retryAfter = now.Add(refreshBackoff(failures))
		_, err = tx.Exec(ctx, `
			INSERT INTO cache_refresh_state (website_id, kind, failures, retry_after, last_error, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (website_id, kind) DO UPDATE
			SET failures = EXCLUDED.failures, retry_after = EXCLUDED.retry_after,
			    last_error = EXCLUDED.last_error, updated_at = EXCLUDED.updated_at`,
			websiteID, string(kind), failures, retryAfter, errMsg, now)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("recording %s failure for %s: %w", kind, websiteID, err)
	}
	return retryAfter, nil
}

// ClearRefreshFailure resets the failure count after a successful refresh.
func (s *Store) ClearRefreshFailure(ctx context.Context, websiteID string, kind CacheKind) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE cache_refresh_state
		SET failures = 0, retry_after = NULL, last_error = '', updated_at = $3
		WHERE website_id = $1 AND kind = $2 AND failures > 0`,
		websiteID, string(kind), s.now())
	if err != nil {
		return fmt.Errorf("clearing %s failures for %s: %w", kind, websiteID, err)
	}
	return nil
}

func refreshBackoff(failures int) time.Duration {
	if failures > 10 {
		return refreshBackoffMax
	}
	return min(time.Duration(math.Pow(2, float64(failures)))*refreshBackoffBase, refreshBackoffMax)
}
