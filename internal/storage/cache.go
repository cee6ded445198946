package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

// Cache rows are only read while cache_expires_at > NOW() and are never
// deleted; a refresh overwrites them by upsert.

// ClaimRefresh takes the refresh lease for websiteID/kind unless another
// caller holds an unexpired one. It reports whether the lease was taken.
func (s *Store) ClaimRefresh(ctx context.Context, websiteID string, kind CacheKind, lease time.Duration) (bool, error) {
	until := s.now().Add(lease)
	var got time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO cache_refresh_claims (website_id, kind, claimed_until)
		VALUES ($1, $2, $3)
		ON CONFLICT (website_id, kind) DO UPDATE SET claimed_until = EXCLUDED.claimed_until
		WHERE cache_refresh_claims.claimed_until < NOW()
		RETURNING claimed_until`, websiteID, string(kind), until,
	).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claiming %s refresh for %s: %w", kind, websiteID, err)
	}
	return true, nil
}

// ReleaseRefresh drops a lease so the next caller can claim immediately.
func (s *Store) ReleaseRefresh(ctx context.Context, websiteID string, kind CacheKind) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM cache_refresh_claims WHERE website_id = $1 AND kind = $2", websiteID, string(kind))
	if err != nil {
		return fmt.Errorf("releasing %s refresh for %s: %w", kind, websiteID, err)
	}
	return nil
}

// --- Overview ---

func (s *Store) CachedOverview(ctx context.Context, websiteID string) (seo.DomainOverview, error) {
	var o seo.DomainOverview
	err := s.pool.QueryRow(ctx, `
		SELECT website_id, domain, organic_traffic, organic_keywords, top3_keywords, top10_keywords,
		       traffic_cost, data_date, cached_at, cache_expires_at
		FROM domain_overview_cache
		WHERE website_id = $1 AND cache_expires_at > NOW()
		ORDER BY data_date DESC, cached_at DESC
		LIMIT 1`, websiteID,
	).Scan(&o.WebsiteID, &o.Domain, &o.OrganicTraffic, &o.OrganicKeywords, &o.Top3Keywords, &o.Top10Keywords,
		&o.TrafficCost, &o.DataDate, &o.CachedAt, &o.ExpiresAt)
	if err != nil {
		return seo.DomainOverview{}, notFound(err)
	}
	return o, nil
}

func (s *Store) SaveOverview(ctx context.Context, o seo.DomainOverview, ttl time.Duration) error {
	now := s.now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO domain_overview_cache (website_id, domain, data_date, organic_traffic, organic_keywords,
			top3_keywords, top10_keywords, traffic_cost, cached_at, cache_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (website_id, data_date) DO UPDATE SET
			domain = EXCLUDED.domain,
			organic_traffic = EXCLUDED.organic_traffic,
			organic_keywords = EXCLUDED.organic_keywords,
			top3_keywords = EXCLUDED.top3_keywords,
			top10_keywords = EXCLUDED.top10_keywords,
			traffic_cost = EXCLUDED.traffic_cost,
			cached_at = EXCLUDED.cached_at,
			cache_expires_at = EXCLUDED.cache_expires_at`,
		o.WebsiteID, o.Domain, o.DataDate, o.OrganicTraffic, o.OrganicKeywords,
		o.Top3Keywords, o.Top10Keywords, o.TrafficCost, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("saving overview for %s: %w", o.WebsiteID, err)
	}
	return nil
}

// --- Keywords ---

// keywordTable is either domain_keywords_cache or ranked_keywords_cache;
// both share a layout.
type keywordTable string

const (
	domainKeywordsTable keywordTable = "domain_keywords_cache"
	rankedKeywordsTable keywordTable = "ranked_keywords_cache"
)

func (s *Store) CachedDomainKeywords(ctx context.Context, websiteID string, limit int) ([]seo.RankedKeyword, error) {
	return s.cachedKeywords(ctx, domainKeywordsTable, websiteID, limit)
}

func (s *Store) SaveDomainKeywords(ctx context.Context, websiteID string, kws []seo.RankedKeyword, ttl time.Duration) error {
	return s.saveKeywords(ctx, domainKeywordsTable, websiteID, kws, ttl)
}

func (s *Store) CachedRankedKeywords(ctx context.Context, websiteID string, limit int) ([]seo.RankedKeyword, error) {
	return s.cachedKeywords(ctx, rankedKeywordsTable, websiteID, limit)
}

func (s *Store) SaveRankedKeywords(ctx context.Context, websiteID string, kws []seo.RankedKeyword, ttl time.Duration) error {
	return s.saveKeywords(ctx, rankedKeywordsTable, websiteID, kws, ttl)
}

func (s *Store) cachedKeywords(ctx context.Context, table keywordTable, websiteID string, limit int) ([]seo.RankedKeyword, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT keyword, position, previous_position, search_volume, etv, url, difficulty
		FROM %s
		WHERE website_id = $1 AND cache_expires_at > NOW()
		ORDER BY etv DESC, search_volume DESC
		LIMIT $2`, table), websiteID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", table, err)
	}
	defer rows.Close()

	var out []seo.RankedKeyword
	for rows.Next() {
		var k seo.RankedKeyword
		if err := rows.Scan(&k.Keyword, &k.Position, &k.PreviousPosition, &k.SearchVolume, &k.ETV, &k.URL, &k.Difficulty); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) saveKeywords(ctx context.Context, table keywordTable, websiteID string, kws []seo.RankedKeyword, ttl time.Duration) error {
	if len(kws) == 0 {
		return nil
	}
	now := s.now().UTC()
	query := fmt.Sprintf(`
		INSERT INTO %s (website_id, keyword, position, previous_position, search_volume, etv, url, difficulty,
			cached_at, cache_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (website_id, keyword) DO UPDATE SET
			position = EXCLUDED.position,
			previous_position = EXCLUDED.previous_position,
			search_volume = EXCLUDED.search_volume,
			etv = EXCLUDED.etv,
			url = EXCLUDED.url,
			difficulty = EXCLUDED.difficulty,
			cached_at = EXCLUDED.cached_at,
			cache_expires_at = EXCLUDED.cache_expires_at`, table)
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, k := range kws {
			if _, err := tx.Exec(ctx, query, websiteID, k.Keyword, k.Position, k.PreviousPosition,
				k.SearchVolume, k.ETV, k.URL, k.Difficulty, now, now.Add(ttl)); err != nil {
				return fmt.Errorf("saving %s row %q: %w", table, k.Keyword, err)
			}
		}
		return nil
	})
}

// --- Competitors ---

func (s *Store) CachedCompetitors(ctx context.Context, websiteID string, limit int) ([]seo.DomainCompetitor, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT competitor_domain, avg_position, intersections, organic_traffic, organic_keywords
		FROM domain_competitors_cache
		WHERE website_id = $1 AND cache_expires_at > NOW()
		ORDER BY intersections DESC
		LIMIT $2`, websiteID, limit)
	if err != nil {
		return nil, fmt.Errorf("reading competitors: %w", err)
	}
	defer rows.Close()

	var out []seo.DomainCompetitor
	for rows.Next() {
		var c seo.DomainCompetitor
		if err := rows.Scan(&c.Domain, &c.AvgPosition, &c.Intersections, &c.OrganicTraffic, &c.OrganicKeywords); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SaveCompetitors(ctx context.Context, websiteID string, cs []seo.DomainCompetitor, ttl time.Duration) error {
	if len(cs) == 0 {
		return nil
	}
	now := s.now().UTC()
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, c := range cs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO domain_competitors_cache (website_id, competitor_domain, avg_position, intersections,
					organic_traffic, organic_keywords, cached_at, cache_expires_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (website_id, competitor_domain) DO UPDATE SET
					avg_position = EXCLUDED.avg_position,
					intersections = EXCLUDED.intersections,
					organic_traffic = EXCLUDED.organic_traffic,
					organic_keywords = EXCLUDED.organic_keywords,
					cached_at = EXCLUDED.cached_at,
					cache_expires_at = EXCLUDED.cache_expires_at`,
				websiteID, c.Domain, c.AvgPosition, c.Intersections, c.OrganicTraffic, c.OrganicKeywords,
				now, now.Add(ttl)); err != nil {
				return fmt.Errorf("saving competitor %q: %w", c.Domain, err)
			}
		}
		return nil
	})
}

// --- Recommendations ---

func (s *Store) CachedRecommendations(ctx context.Context, websiteID string) ([]seo.KeywordRecommendation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT keyword, reason, priority, search_volume, difficulty
		FROM domain_keyword_recommendations_cache
		WHERE website_id = $1 AND cache_expires_at > NOW()
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, search_volume DESC`, websiteID)
	if err != nil {
		return nil, fmt.Errorf("reading recommendations: %w", err)
	}
	defer rows.Close()

	var out []seo.KeywordRecommendation
	for rows.Next() {
		var r seo.KeywordRecommendation
		if err := rows.Scan(&r.Keyword, &r.Reason, &r.Priority, &r.SearchVolume, &r.Difficulty); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SaveRecommendations(ctx context.Context, websiteID string, recs []seo.KeywordRecommendation, ttl time.Duration) error {
	if len(recs) == 0 {
		return nil
	}
	now := s.now().UTC()
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, r := range recs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO domain_keyword_recommendations_cache (website_id, keyword, reason, priority,
					search_volume, difficulty, cached_at, cache_expires_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (website_id, keyword) DO UPDATE SET
					reason = EXCLUDED.reason,
					priority = EXCLUDED.priority,
					search_volume = EXCLUDED.search_volume,
					difficulty = EXCLUDED.difficulty,
					cached_at = EXCLUDED.cached_at,
					cache_expires_at = EXCLUDED.cache_expires_at`,
				websiteID, r.Keyword, r.Reason, r.Priority, r.SearchVolume, r.Difficulty, now, now.Add(ttl)); err != nil {
				return fmt.Errorf("saving recommendation %q: %w", r.Keyword, err)
			}
		}
		return nil
	})
}
