// Package websitedata serves a website's domain analytics from the Postgres
// cache and refreshes it from DataForSEO when it is missing or expired.
package websitedata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/storage"
)

const (
	DefaultTTL   = 24 * time.Hour
	DefaultLease = 2 * time.Minute

	topKeywordLimit    = 20
	domainKeywordFetch = 100
	competitorLimit    = 20
)

// ErrRefreshInProgress is returned when another request holds the refresh
// lease for the same website and cache.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Store is the cache persistence used by the service.
type Store interface {
	ClaimRefresh(ctx context.Context, websiteID string, kind storage.CacheKind, lease time.Duration) (bool, error)
	ReleaseRefresh(ctx context.Context, websiteID string, kind storage.CacheKind) error

	CachedOverview(ctx context.Context, websiteID string) (seo.DomainOverview, error)
	SaveOverview(ctx context.Context, o seo.DomainOverview, ttl time.Duration) error
	CachedDomainKeywords(ctx context.Context, websiteID string, limit int) ([]seo.RankedKeyword, error)
	SaveDomainKeywords(ctx context.Context, websiteID string, kws []seo.RankedKeyword, ttl time.Duration) error
	CachedCompetitors(ctx context.Context, websiteID string, limit int) ([]seo.DomainCompetitor, error)
	SaveCompetitors(ctx context.Context, websiteID string, cs []seo.DomainCompetitor, ttl time.Duration) error
	CachedRankedKeywords(ctx context.Context, websiteID string, limit int) ([]seo.RankedKeyword, error)
	SaveRankedKeywords(ctx context.Context, websiteID string, kws []seo.RankedKeyword, ttl time.Duration) error
	CachedRecommendations(ctx context.Context, websiteID string) ([]seo.KeywordRecommendation, error)
	SaveRecommendations(ctx context.Context, websiteID string, recs []seo.KeywordRecommendation, ttl time.Duration) error

	MarkEmpty(ctx context.Context, websiteID string, kind storage.CacheKind, ttl time.Duration) error
	KnownEmpty(ctx context.Context, websiteID string, kind storage.CacheKind) (bool, error)
}

// Source fetches live domain analytics.
type Source interface {
	Overview(ctx context.Context, domain string, loc seo.Location) (seo.DomainOverview, error)
	RankedKeywords(ctx context.Context, domain string, loc seo.Location, limit int) ([]seo.RankedKeyword, error)
	Competitors(ctx context.Context, domain string, loc seo.Location, limit int) ([]seo.DomainCompetitor, error)
}

type Chatter interface {
	Complete(ctx context.Context, route llm.Route, messages []llm.Message, opts ...llm.CallOption) (string, error)
}

// HitRecorder observes cache reads per table.
type HitRecorder interface {
	ObserveCache(table string, hit bool)
}

type Service struct {
	store   Store
	source  Source
	llm     Chatter
	ttl     time.Duration
	lease   time.Duration
	metrics HitRecorder
}

type Option func(*Service)

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lease = d
		}
	}
}

func WithMetrics(m HitRecorder) Option { return func(s *Service) { s.metrics = m } }

func NewService(store Store, source Source, client Chatter, opts ...Option) *Service {
	s := &Service{store: store, source: source, llm: client, ttl: DefaultTTL, lease: DefaultLease}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Snapshot is the overview view of a website.
type Snapshot struct {
	HasData      bool                   `json:"hasData"`
	Refreshing   bool                   `json:"refreshing,omitempty"`
	Refreshed    bool                   `json:"refreshed,omitempty"`
	Overview     *seo.DomainOverview    `json:"overview,omitempty"`
	TopKeywords  []seo.RankedKeyword    `json:"topKeywords"`
	Competitors  []seo.DomainCompetitor `json:"competitors"`
	Status       outcome.Status         `json:"status"`
	Degradations []string               `json:"degradations,omitempty"`
}

func (s *Service) observe(table string, hit bool) {
	if s.metrics != nil {
		s.metrics.ObserveCache(table, hit)
	}
}

// Overview returns the cached snapshot. With no valid cache it claims the
// refresh and populates the cache synchronously; if another request already
// holds the claim it reports refreshing without fetching.
func (s *Service) Overview(ctx context.Context, site seo.Website, loc seo.Location) (Snapshot, error) {
	o, err := s.store.CachedOverview(ctx, site.ID)
	switch {
	case err == nil:
		s.observe("domain_overview_cache", true)
		return s.cachedSnapshot(ctx, site, o)
	case !errors.Is(err, storage.ErrNotFound):
		return Snapshot{}, fmt.Errorf("reading overview cache: %w", err)
	}
	s.observe("domain_overview_cache", false)

	snap, err := s.claimAndRefresh(ctx, site, loc)
	if errors.Is(err, ErrRefreshInProgress) {
		return Snapshot{HasData: false, Refreshing: true, TopKeywords: []seo.RankedKeyword{}, Competitors: []seo.DomainCompetitor{}, Status: outcome.StatusOK}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap.HasData = false
	return snap, nil
}

func (s *Service) cachedSnapshot(ctx context.Context, site seo.Website, o seo.DomainOverview) (Snapshot, error) {
	kws, err := s.store.CachedDomainKeywords(ctx, site.ID, topKeywordLimit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading domain keywords cache: %w", err)
	}
	cs, err := s.store.CachedCompetitors(ctx, site.ID, competitorLimit)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading competitors cache: %w", err)
	}
	return Snapshot{
		HasData:     true,
		Overview:    &o,
		TopKeywords: nonNil(kws),
		Competitors: nonNil(cs),
		Status:      outcome.StatusOK,
	}, nil
}

// UpdateMetrics refetches overview, domain keywords and competitors and
// overwrites the cache. A failed overview fails the call; failed keyword or
// competitor fetches degrade it.
func (s *Service) UpdateMetrics(ctx context.Context, site seo.Website, loc seo.Location) (Snapshot, error) {
	return s.claimAndRefresh(ctx, site, loc)
}

func (s *Service) claimAndRefresh(ctx context.Context, site seo.Website, loc seo.Location) (Snapshot, error) {
	claimed, err := s.store.ClaimRefresh(ctx, site.ID, storage.KindOverview, s.lease)
	if err != nil {
		return Snapshot{}, err
	}
	if !claimed {
		return Snapshot{}, ErrRefreshInProgress
	}
	defer s.release(site.ID, storage.KindOverview)

	return s.refresh(ctx, site, loc)
}

// release runs detached from the request so a cancelled request still frees
// its lease.
func (s *Service) release(websiteID string, kind storage.CacheKind) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.ReleaseRefresh(ctx, websiteID, kind); err != nil {
		slog.Warn("releasing refresh claim", "website_id", websiteID, "kind", kind, "error", err)
	}
}

func (s *Service) refresh(ctx context.Context, site seo.Website, loc seo.Location) (Snapshot, error) {
	o, err := s.source.Overview(ctx, site.Domain, loc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching overview for %s: %w", site.Domain, err)
	}
	o.WebsiteID = site.ID
	if o.Domain == "" {
		o.Domain = site.Domain
	}
	if err := s.store.SaveOverview(ctx, o, s.ttl); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{HasData: true, Refreshed: true, Overview: &o, Status: outcome.StatusOK}

	kws, err := s.source.RankedKeywords(ctx, site.Domain, loc, domainKeywordFetch)
	if err != nil {
		slog.Warn("domain keywords fetch failed", "domain", site.Domain, "error", err)
		snap.Degradations = append(snap.Degradations, "keywords: "+err.Error())
	} else if err := s.store.SaveDomainKeywords(ctx, site.ID, kws, s.ttl); err != nil {
		return Snapshot{}, err
	}
	snap.TopKeywords = nonNil(head(kws, topKeywordLimit))

	cs, err := s.source.Competitors(ctx, site.Domain, loc, competitorLimit)
	if err != nil {
		slog.Warn("competitors fetch failed", "domain", site.Domain, "error", err)
		snap.Degradations = append(snap.Degradations, "competitors: "+err.Error())
	} else if err := s.store.SaveCompetitors(ctx, site.ID, cs, s.ttl); err != nil {
		return Snapshot{}, err
	}
	snap.Competitors = nonNil(cs)

	if len(snap.Degradations) > 0 {
		snap.Status = outcome.StatusDegraded
	}
	slog.Debug("website data refreshed", "website_id", site.ID, "keywords", len(kws), "competitors", len(cs))
	return snap, nil
}

// RankedKeywordsView lists keywords a website ranks for.
type RankedKeywordsView struct {
	Keywords   []seo.RankedKeyword `json:"keywords"`
	Cached     bool                `json:"cached"`
	Refreshing bool                `json:"refreshing,omitempty"`
}

func (s *Service) RankedKeywords(ctx context.Context, site seo.Website, loc seo.Location, limit int) (RankedKeywordsView, error) {
	if limit <= 0 {
		limit = domainKeywordFetch
	}
	kws, err := s.store.CachedRankedKeywords(ctx, site.ID, limit)
	if err != nil {
		return RankedKeywordsView{}, fmt.Errorf("reading ranked keywords cache: %w", err)
	}
	if len(kws) == 0 {
		empty, err := s.store.KnownEmpty(ctx, site.ID, storage.KindRankedKeywords)
		if err != nil {
			return RankedKeywordsView{}, err
		}
		if empty {
			s.observe("ranked_keywords_cache", true)
			return RankedKeywordsView{Keywords: []seo.RankedKeyword{}, Cached: true}, nil
		}
	}
	s.observe("ranked_keywords_cache", len(kws) > 0)
	if len(kws) > 0 {
		return RankedKeywordsView{Keywords: kws, Cached: true}, nil
	}

	claimed, err := s.store.ClaimRefresh(ctx, site.ID, storage.KindRankedKeywords, s.lease)
	if err != nil {
		return RankedKeywordsView{}, err
	}
	if !claimed {
		return RankedKeywordsView{Keywords: []seo.RankedKeyword{}, Refreshing: true}, nil
	}
	defer s.release(site.ID, storage.KindRankedKeywords)

	kws, err = s.source.RankedKeywords(ctx, site.Domain, loc, limit)
	if err != nil {
		return RankedKeywordsView{}, fmt.Errorf("fetching ranked keywords for %s: %w", site.Domain, err)
	}
	if len(kws) == 0 {
		if err := s.store.MarkEmpty(ctx, site.ID, storage.KindRankedKeywords, s.ttl); err != nil {
			return RankedKeywordsView{}, err
		}
		return RankedKeywordsView{Keywords: []seo.RankedKeyword{}}, nil
	}
	if err := s.store.SaveRankedKeywords(ctx, site.ID, kws, s.ttl); err != nil {
		return RankedKeywordsView{}, err
	}
	return RankedKeywordsView{Keywords: nonNil(kws)}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
