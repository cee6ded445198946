package websitedata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/extract"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/storage"
)

const recommendSystemPrompt = `You are an SEO strategist. Given the keywords a website already ranks for and its organic competitors, recommend new keywords the website should target next. Prefer keywords with realistic difficulty, clear intent, and gaps versus the competitors.

Output ONLY a JSON array: [{"keyword": "...", "reason": "...", "priority": "high|medium|low", "searchVolume": 0, "difficulty": 0}]`

const maxPromptKeywords = 50

// Recommendations is the keyword recommendation view of a website.
type Recommendations struct {
	Recommendations []seo.KeywordRecommendation `json:"recommendations"`
	Cached          bool                        `json:"cached"`
	Status          outcome.Status              `json:"status"`
	Reason          string                      `json:"reason,omitempty"`
}

// AnalyzeKeywordRecommendations returns cached recommendations unless force
// is set, otherwise asks the model using the ranked keywords and
// competitors, and caches a usable answer.
func (s *Service) AnalyzeKeywordRecommendations(ctx context.Context, route llm.Route, site seo.Website, loc seo.Location, force bool) (Recommendations, error) {
	if !force {
		recs, err := s.store.CachedRecommendations(ctx, site.ID)
		if err != nil {
			return Recommendations{}, fmt.Errorf("reading recommendations cache: %w", err)
		}
		s.observe("domain_keyword_recommendations_cache", len(recs) > 0)
		if len(recs) > 0 {
			return Recommendations{Recommendations: recs, Cached: true, Status: outcome.StatusOK}, nil
		}
	}

	claimed, err := s.store.ClaimRefresh(ctx, site.ID, storage.KindRecommendations, s.lease)
	if err != nil {
		return Recommendations{}, err
	}
	if !claimed {
		return Recommendations{}, ErrRefreshInProgress
	}
	defer s.release(site.ID, storage.KindRecommendations)

	ranked, err := s.RankedKeywords(ctx, site, loc, domainKeywordFetch)
	if err != nil {
		return Recommendations{}, err
	}
	if ranked.Refreshing {
		// Without the ranked set the model would recommend keywords the
		// site already ranks for.
		return Recommendations{}, ErrRefreshInProgress
	}
	competitors, err := s.store.CachedCompetitors(ctx, site.ID, competitorLimit)
	if err != nil {
		return Recommendations{}, fmt.Errorf("reading competitors cache: %w", err)
	}
	if len(competitors) == 0 {
		if competitors, err = s.source.Competitors(ctx, site.Domain, loc, competitorLimit); err != nil {
			slog.Warn("competitors fetch failed", "domain", site.Domain, "error", err)
		}
	}

	res := s.recommend(ctx, route, site, ranked.Keywords, competitors)
	if res.IsFailed() {
		return Recommendations{}, fmt.Errorf("recommending keywords: %s", res.Reason)
	}
	if len(res.Data) > 0 {
		if err := s.store.SaveRecommendations(ctx, site.ID, res.Data, s.ttl); err != nil {
			return Recommendations{}, err
		}
	}
	return Recommendations{Recommendations: res.Data, Status: res.Status, Reason: res.Reason}, nil
}

type recommendation struct {
	Keyword      string      `json:"keyword"`
	Reason       string      `json:"reason"`
	Priority     string      `json:"priority"`
	SearchVolume seo.FlexInt `json:"searchVolume"`
	Difficulty   seo.FlexInt `json:"difficulty"`
}

func (s *Service) recommend(ctx context.Context, route llm.Route, site seo.Website, ranked []seo.RankedKeyword, competitors []seo.DomainCompetitor) outcome.Result[[]seo.KeywordRecommendation] {
	raw, err := s.llm.Complete(ctx, route, []llm.Message{
		llm.System(recommendSystemPrompt),
		llm.User(BuildRecommendPrompt(site.Domain, ranked, competitors)),
	}, llm.Temperature(0.4))
	if err != nil {
		return outcome.Failed[[]seo.KeywordRecommendation](err.Error())
	}

	var parsed []recommendation
	if err := extract.Decode(raw, extract.Array, &parsed); err != nil {
		slog.Warn("recommendations parse failed", "domain", site.Domain, "raw", extract.Truncate(raw, 300), "error", err)
		return outcome.Degraded([]seo.KeywordRecommendation{}, "model output was not a recommendation list")
	}

	owned := make(map[string]bool, len(ranked))
	for _, k := range ranked {
		owned[strings.ToLower(k.Keyword)] = true
	}
	out := make([]seo.KeywordRecommendation, 0, len(parsed))
	seen := map[string]bool{}
	for _, p := range parsed {
		kw := strings.TrimSpace(p.Keyword)
		key := strings.ToLower(kw)
		if kw == "" || seen[key] || owned[key] {
			continue
		}
		seen[key] = true
		out = append(out, seo.KeywordRecommendation{
			Keyword:      kw,
			Reason:       p.Reason,
			Priority:     normalizePriority(p.Priority),
			SearchVolume: int(p.SearchVolume),
			Difficulty:   int(p.Difficulty),
		})
	}
	if len(out) == 0 {
		return outcome.Degraded(out, "no new keywords recommended")
	}
	return outcome.OK(out)
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

// BuildRecommendPrompt lists the site's strongest keywords and competitors.
func BuildRecommendPrompt(domain string, ranked []seo.RankedKeyword, competitors []seo.DomainCompetitor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Website: %s\n\n", domain)
	if len(ranked) == 0 {
		b.WriteString("The website does not rank for any tracked keywords yet.\n")
	} else {
		b.WriteString("Keywords it ranks for (keyword | position | volume | difficulty):\n")
		for _, k := range head(ranked, maxPromptKeywords) {
			fmt.Fprintf(&b, "- %s | %d | %d | %d\n", k.Keyword, k.Position, k.SearchVolume, k.Difficulty)
		}
	}
	if len(competitors) > 0 {
		b.WriteString("\nOrganic competitors (domain | shared keywords | traffic):\n")
		for _, c := range competitors {
			fmt.Fprintf(&b, "- %s | %d | %d\n", c.Domain, c.Intersections, c.OrganicTraffic)
		}
	}
	b.WriteString("\nRecommend up to 15 keywords it does not rank for yet.")
	return b.String()
}
