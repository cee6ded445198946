// Package deepdive builds an SEO strategy report for one keyword from live
// SERP data, scraped competitor pages and keyword metrics.
package deepdive

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/extract"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/scrape"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seranking"
)

const (
	DefaultCompetitors = 3
	MaxCompetitors     = 5

	scrapeConcurrency = 3
	scrapeTimeout     = 45 * time.Second
	serpResults       = 10
)

type Chatter interface {
	Complete(ctx context.Context, route llm.Route, messages []llm.Message, opts ...llm.CallOption) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, q seo.SERPQuery) (seo.SERPResult, error)
}

type MetricsFetcher interface {
	Fetch(ctx context.Context, keywords []string, source string) (map[string]seo.SERankingData, error)
}

// Strategist runs a deep dive. Searcher, scraper and metrics are optional;
// a missing one is reported as a degradation.
type Strategist struct {
	client        Chatter
	serp          Searcher
	scraper       scrape.Fetcher
	metrics       MetricsFetcher
	scrapeTimeout time.Duration
	now           func() time.Time
}

func NewStrategist(client Chatter, serp Searcher, scraper scrape.Fetcher, metrics MetricsFetcher) *Strategist {
	return &Strategist{
		client:        client,
		serp:          serp,
		scraper:       scraper,
		metrics:       metrics,
		scrapeTimeout: scrapeTimeout,
		now:           time.Now,
	}
}

type Request struct {
	Keyword         string
	TargetLanguage  string
	WebsiteDomain   string
	CompetitorLimit int
	PromptOverride  string
}

// Analysis is everything a deep dive produced.
type Analysis struct {
	Report       seo.SEOStrategyReport `json:"report"`
	Competitors  []seo.Competitor      `json:"competitors"`
	SERP         *seo.SERPResult       `json:"serp,omitempty"`
	Metrics      *seo.SERankingData    `json:"metrics,omitempty"`
	Degradations []string              `json:"degradations,omitempty"`
}

// Run executes the deep dive. Missing inputs degrade the result; only an
// LLM transport or parse failure fails it.
func (s *Strategist) Run(ctx context.Context, route llm.Route, req Request) outcome.Result[Analysis] {
	req = normalize(req)
	if req.Keyword == "" {
		return outcome.Failed[Analysis]("keyword is required")
	}

	an := Analysis{Competitors: []seo.Competitor{}}
	degrade := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		an.Degradations = append(an.Degradations, msg)
		slog.Warn("deep dive degraded", "keyword", req.Keyword, "reason", msg)
	}

	// SERP and metrics are independent of each other.
	var g errgroup.Group
	g.Go(func() error {
		if s.serp == nil {
			degrade("SERP search not configured")
			return nil
		}
		res, err := s.serp.Search(ctx, seo.SERPQuery{Keyword: req.Keyword, Language: req.TargetLanguage, Num: serpResults})
		if err != nil {
			degrade("SERP search failed: %v", err)
			return nil
		}
		an.SERP = &res
		return nil
	})
	var metrics *seo.SERankingData
	var metricsErr error
	g.Go(func() error {
		if s.metrics == nil {
			return nil
		}
		data, err := s.metrics.Fetch(ctx, []string{req.Keyword}, seranking.SourceForLanguage(req.TargetLanguage))
		if err != nil {
			metricsErr = err
			return nil
		}
		if d, ok := seranking.Lookup(data, req.Keyword); ok {
			metrics = &d
		}
		return nil
	})
	_ = g.Wait()
	an.Metrics = metrics
	if metricsErr != nil {
		degrade("keyword metrics failed: %v", metricsErr)
	} else if s.metrics != nil && (metrics == nil || !metrics.IsDataFound) {
		degrade("no keyword metrics found")
	}

	if an.SERP != nil {
		an.Competitors = SelectCompetitors(an.SERP.Organic, req.WebsiteDomain, req.CompetitorLimit)
		if failed := s.scrapeAll(ctx, req.TargetLanguage, an.Competitors); failed > 0 {
			degrade("%d of %d competitor pages could not be scraped", failed, len(an.Competitors))
		}
	}

	raw, err := s.client.Complete(ctx, route, BuildPrompt(req, an.SERP, an.Competitors, an.Metrics), llm.Temperature(0.5), llm.MaxTokens(4096))
	if err != nil {
		slog.Error("deep dive strategy call failed", "keyword", req.Keyword, "error", err)
		return outcome.Failed[Analysis](fmt.Sprintf("strategy generation: %v", err))
	}
	report, err := parseReport(raw, req.Keyword)
	if err != nil {
		slog.Warn("deep dive strategy unparseable", "keyword", req.Keyword, "error", err, "response", extract.Truncate(raw, 500))
		return outcome.Failed[Analysis]("strategy report could not be parsed")
	}
	report.GeneratedAt = s.now().UTC()
	an.Report = report

	if len(an.Degradations) > 0 {
		return outcome.Degraded(an, strings.Join(an.Degradations, "; "))
	}
	return outcome.OK(an)
}

// SelectCompetitors keeps the first result per registrable domain, skipping
// ownDomain, up to limit.
func SelectCompetitors(results []seo.SERPSnippet, ownDomain string, limit int) []seo.Competitor {
	own := seo.RegistrableDomain(ownDomain)
	seen := map[string]bool{}
	out := make([]seo.Competitor, 0, limit)
	for _, r := range results {
		domain := r.Domain
		if domain == "" {
			domain = seo.RegistrableDomain(r.URL)
		}
		if domain == "" || seen[domain] || (own != "" && domain == own) {
			continue
		}
		seen[domain] = true
		out = append(out, seo.Competitor{
			Domain:        domain,
			URL:           r.URL,
			Title:         r.Title,
			Position:      r.Position,
			Snippet:       r.Snippet,
			LanguageMatch: true,
		})
		if len(out) == limit {
			break
		}
	}
	return out
}

// scrapeAll fills the competitors in place and returns how many failed.
func (s *Strategist) scrapeAll(ctx context.Context, lang string, comps []seo.Competitor) int {
	if len(comps) == 0 {
		return 0
	}
	if s.scraper == nil {
		return len(comps)
	}

	failed := make([]bool, len(comps))
	var g errgroup.Group
	g.SetLimit(scrapeConcurrency)
	for i := range comps {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, s.scrapeTimeout)
			defer cancel()

			page, err := s.scraper.Fetch(pctx, comps[i].URL)
			if err != nil {
				slog.Debug("competitor scrape failed", "url", comps[i].URL, "error", err)
				failed[i] = true
				return nil
			}
			c := &comps[i]
			c.Scraped = true
			c.Content = page.Text
			c.Headings = page.Headings
			c.WordCount = page.WordCount()
			if page.Title != "" {
				c.Title = page.Title
			}
			c.Language = page.Language
			if c.Language == "" {
				c.Language = scrape.DetectLanguage(page.Text)
			}
			c.LanguageMatch = scrape.SameLanguage(c.Language, lang)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}

var slugRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func parseReport(raw, keyword string) (seo.SEOStrategyReport, error) {
	var r seo.SEOStrategyReport
	if err := extract.Decode(raw, extract.Object, &r); err != nil {
		return r, err
	}
	if strings.TrimSpace(r.PageTitleH1) == "" && len(r.ContentStructure) == 0 {
		return r, fmt.Errorf("report has neither title nor structure")
	}
	if r.TargetKeyword == "" {
		r.TargetKeyword = keyword
	}
	if r.PageTitleH1 == "" {
		r.PageTitleH1 = keyword
	}
	if r.URLSlug == "" {
		r.URLSlug = Slugify(keyword)
	}
	if r.ContentStructure == nil {
		r.ContentStructure = []seo.ContentSection{}
	}
	if r.LongTailKeywords == nil {
		r.LongTailKeywords = []string{}
	}
	return r, nil
}

// Slugify lower-cases s and joins its letters and digits with hyphens.
func Slugify(s string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func normalize(req Request) Request {
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.TargetLanguage == "" {
		req.TargetLanguage = "en"
	}
	if req.CompetitorLimit <= 0 {
		req.CompetitorLimit = DefaultCompetitors
	}
	if req.CompetitorLimit > MaxCompetitors {
		req.CompetitorLimit = MaxCompetitors
	}
	return req
}
