// Package ranking estimates, per keyword, the chance of reaching page one.
package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/extract"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 300 * time.Millisecond
	DefaultBudget     = 55 * time.Second

	// BlueOceanThreshold: a keyword with fewer than this many SERP results
	// is always High probability with a "Weak Page" top domain type,
	// whatever the model estimated.
	BlueOceanThreshold = 20
	WeakPage           = "Weak Page"

	serpSnippetCount = 5
)

// Chatter is the LLM call the analyzer needs.
type Chatter interface {
	Complete(ctx context.Context, route llm.Route, messages []llm.Message, opts ...llm.CallOption) (string, error)
}

// Searcher fetches live SERP results used to ground the estimate.
type Searcher interface {
	Search(ctx context.Context, q seo.SERPQuery) (seo.SERPResult, error)
}

// Analyzer runs the per-keyword analysis in fixed-size batches under a
// wall-clock budget.
type Analyzer struct {
	client     Chatter
	serp       Searcher
	batchSize  int
	batchDelay time.Duration
	budget     time.Duration
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

type Option func(*Analyzer)

// WithSearcher grounds each analysis in live SERP snippets.
func WithSearcher(s Searcher) Option { return func(a *Analyzer) { a.serp = s } }

func WithBatching(size int, delay time.Duration) Option {
	return func(a *Analyzer) {
		if size > 0 {
			a.batchSize = size
		}
		a.batchDelay = delay
	}
}

func WithBudget(d time.Duration) Option { return func(a *Analyzer) { a.budget = d } }

func NewAnalyzer(client Chatter, opts ...Option) *Analyzer {
	a := &Analyzer{
		client:     client,
		batchSize:  DefaultBatchSize,
		batchDelay: DefaultBatchDelay,
		budget:     DefaultBudget,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request is a batch of keywords to analyse.
type Request struct {
	Keywords       []seo.KeywordData
	TargetLanguage string
	PromptOverride string
}

// Analyze returns one entry per input keyword, in input order. Keywords that
// fail, or that are not reached before the budget runs out, get a Low
// probability fallback. The result is Degraded when any fallback was used.
func (a *Analyzer) Analyze(ctx context.Context, route llm.Route, req Request) outcome.Result[[]seo.KeywordData] {
	out := make([]seo.KeywordData, len(req.Keywords))
	if len(req.Keywords) == 0 {
		return outcome.OK(out)
	}

	start := a.now()
	deadline := start.Add(a.budget)
	budgetCtx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	failed := make([]bool, len(req.Keywords))
	next := 0
	for next < len(req.Keywords) {
		if next > 0 {
			if err := a.sleep(budgetCtx, a.batchDelay); err != nil {
				break
			}
		}
		if !a.now().Before(deadline) || budgetCtx.Err() != nil {
			break
		}

		end := min(next+a.batchSize, len(req.Keywords))
		var g errgroup.Group
		for i := next; i < end; i++ {
			g.Go(func() error {
				analysed, err := a.analyzeOne(budgetCtx, route, req, req.Keywords[i])
				if err != nil {
					reason := "Analysis failed"
					if errors.Is(err, context.DeadlineExceeded) || budgetCtx.Err() != nil {
						reason = "Analysis timed out"
					}
					slog.Warn("keyword analysis failed, using fallback", "keyword", req.Keywords[i].Keyword, "error", err)
					out[i] = fallback(req.Keywords[i], reason)
					failed[i] = true
					return nil
				}
				out[i] = analysed
				return nil
			})
		}
		_ = g.Wait()
		next = end
	}

	for i := next; i < len(req.Keywords); i++ {
		out[i] = fallback(req.Keywords[i], "Analysis timed out")
		failed[i] = true
	}

	var fallbacks int
	for _, f := range failed {
		if f {
			fallbacks++
		}
	}
	slog.Debug("ranking analysis finished", "keywords", len(out), "fallbacks", fallbacks, "elapsed", a.now().Sub(start))
	if fallbacks > 0 {
		return outcome.Degraded(out, fmt.Sprintf("%d of %d keywords not analysed", fallbacks, len(out)))
	}
	return outcome.OK(out)
}

type analysis struct {
	SERPResultCount json.RawMessage `json:"serpResultCount"`
	TopDomainType   string          `json:"topDomainType"`
	Probability     string          `json:"probability"`
	Reasoning       string          `json:"reasoning"`
	SearchIntent    string          `json:"searchIntent"`
	IntentAnalysis  string          `json:"intentAnalysis"`
}

// resultCount reads serpResultCount when the model gave a JSON number.
// Strings, null and negative values count as unknown; huge values are
// clamped to math.MaxInt32.
func (an analysis) resultCount() (int, bool) {
	var f float64
	if len(an.SERPResultCount) == 0 || string(an.SERPResultCount) == "null" || json.Unmarshal(an.SERPResultCount, &f) != nil || f < 0 {
		return 0, false
	}
	return clampCount(f), true
}

func clampCount(f float64) int {
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func (a *Analyzer) analyzeOne(ctx context.Context, route llm.Route, req Request, kw seo.KeywordData) (seo.KeywordData, error) {
	var serp *seo.SERPResult
	if a.serp != nil {
		res, err := a.serp.Search(ctx, seo.SERPQuery{Keyword: kw.Keyword, Language: req.TargetLanguage, Num: serpSnippetCount})
		if err != nil {
			slog.Debug("serp grounding unavailable", "keyword", kw.Keyword, "error", err)
		} else {
			serp = &res
		}
	}

	raw, err := a.client.Complete(ctx, route, BuildPrompt(kw, req.TargetLanguage, req.PromptOverride, serp), llm.Temperature(0.2))
	if err != nil {
		return seo.KeywordData{}, err
	}
	var an analysis
	if err := extract.Decode(raw, extract.Object, &an); err != nil {
		return seo.KeywordData{}, fmt.Errorf("parsing analysis: %w (response %q)", err, extract.Truncate(raw, 200))
	}
	return merge(kw, an, serp), nil
}

// merge overlays the analysis fields onto a copy of kw.
func merge(kw seo.KeywordData, an analysis, serp *seo.SERPResult) seo.KeywordData {
	out := kw
	if n, ok := an.resultCount(); ok {
		out.SERPResultCount = &n
	} else if serp != nil && serp.TotalKnown {
		n := clampCount(float64(serp.TotalResults))
		out.SERPResultCount = &n
	}
	if s := strings.TrimSpace(an.TopDomainType); s != "" {
		out.TopDomainType = s
	}
	out.Probability = seo.NormalizeProbability(an.Probability)
	if an.Reasoning != "" {
		out.Reasoning = an.Reasoning
	}
	if an.SearchIntent != "" {
		out.SearchIntent = an.SearchIntent
	}
	if an.IntentAnalysis != "" {
		out.IntentAnalysis = an.IntentAnalysis
	}
	if serp != nil && len(serp.Organic) > 0 {
		out.TopSERPSnippets = serp.Organic
	}
	return applyBlueOcean(out)
}

// applyBlueOcean enforces the BlueOceanThreshold rule.
func applyBlueOcean(kw seo.KeywordData) seo.KeywordData {
	if kw.SERPResultCount != nil && *kw.SERPResultCount >= 0 && *kw.SERPResultCount < BlueOceanThreshold {
		kw.Probability = seo.ProbabilityHigh
		kw.TopDomainType = WeakPage
	}
	return kw
}

func fallback(kw seo.KeywordData, reason string) seo.KeywordData {
	out := kw
	out.Probability = seo.ProbabilityLow
	if out.TopDomainType == "" {
		out.TopDomainType = "Unknown"
	}
	out.Reasoning = reason
	return out
}
