package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

// EnsureUser records a user id seen in a verified token.
func (s *Store) EnsureUser(ctx context.Context, id, email string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		WHERE EXCLUDED.email <> '' AND users.email <> EXCLUDED.email`, id, email)
	if err != nil {
		return fmt.Errorf("ensuring user %s: %w", id, err)
	}
	return nil
}

// CreateWebsite registers a website for userID, deriving its domain from url.
func (s *Store) CreateWebsite(ctx context.Context, userID, url string) (seo.Website, error) {
	domain := seo.RegistrableDomain(url)
	if domain == "" {
		return seo.Website{}, fmt.Errorf("invalid website url %q", url)
	}
	w := seo.Website{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       strings.TrimSpace(url),
		Domain:    domain,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO user_websites (id, user_id, url, domain, created_at) VALUES ($1, $2, $3, $4, $5)",
		w.ID, w.UserID, w.URL, w.Domain, w.CreatedAt)
	if err != nil {
		return seo.Website{}, fmt.Errorf("creating website: %w", err)
	}
	return w, nil
}

func (s *Store) Website(ctx context.Context, id string) (seo.Website, error) {
	var w seo.Website
	err := s.pool.QueryRow(ctx,
		"SELECT id, user_id, url, domain, created_at FROM user_websites WHERE id = $1", id,
	).Scan(&w.ID, &w.UserID, &w.URL, &w.Domain, &w.CreatedAt)
	if err != nil {
		return seo.Website{}, notFound(err)
	}
	return w, nil
}

// OwnedWebsite returns the website if userID owns it, ErrForbidden if
// another user does.
func (s *Store) OwnedWebsite(ctx context.Context, userID, id string) (seo.Website, error) {
	w, err := s.Website(ctx, id)
	if err != nil {
		return seo.Website{}, err
	}
	if w.UserID != userID {
		return seo.Website{}, ErrForbidden
	}
	return w, nil
}

// StaleWebsites returns up to limit websites with no unexpired overview row,
// skipping those still backing off after a failed refresh.
func (s *Store) StaleWebsites(ctx context.Context, limit int) ([]seo.Website, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT w.id, w.user_id, w.url, w.domain, w.created_at
		FROM user_websites w
		LEFT JOIN cache_refresh_state f ON f.website_id = w.id AND f.kind = 'overview'
		WHERE NOT EXISTS (
			SELECT 1 FROM domain_overview_cache c
			WHERE c.website_id = w.id AND c.cache_expires_at > NOW()
		)
		AND (f.retry_after IS NULL OR f.retry_after <= NOW())
		ORDER BY COALESCE(f.failures, 0) ASC, w.created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale websites: %w", err)
	}
	defer rows.Close()

	var out []seo.Website
	for rows.Next() {
		var w seo.Website
		if err := rows.Scan(&w.ID, &w.UserID, &w.URL, &w.Domain, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
