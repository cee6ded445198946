// Package mining runs multi-round keyword mining sessions: generate, dedupe,
// enrich with SE-Ranking metrics, analyse, accumulate.
package mining

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/keywords"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/ranking"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seranking"
)

const (
	DefaultRounds = 3
	MaxRounds     = 10
)

type Generator interface {
	Generate(ctx context.Context, route llm.Route, req keywords.Request) outcome.Result[[]seo.KeywordData]
}

type Analyzer interface {
	Analyze(ctx context.Context, route llm.Route, req ranking.Request) outcome.Result[[]seo.KeywordData]
}

// MetricsFetcher returns SE-Ranking data keyed as seranking.Lookup expects.
type MetricsFetcher interface {
	Fetch(ctx context.Context, keywords []string, source string) (map[string]seo.SERankingData, error)
}

// Miner orchestrates rounds. The analyzer and metrics fetcher are optional.
type Miner struct {
	gen      Generator
	analyzer Analyzer
	metrics  MetricsFetcher
	now      func() time.Time
}

func NewMiner(gen Generator, analyzer Analyzer, metrics MetricsFetcher) *Miner {
	return &Miner{gen: gen, analyzer: analyzer, metrics: metrics, now: time.Now}
}

// Request configures a session.
type Request struct {
	Seed           string
	TargetLanguage string
	Strategy       string
	Rounds         int
	PerRound       int
	// TargetHigh stops mining once this many High probability keywords
	// have been accumulated. 0 runs every round.
	TargetHigh     int
	SkipAnalysis   bool
	Workflow       *seo.WorkflowConfig
}

// RoundReport summarizes one round.
type RoundReport struct {
	Round     int            `json:"round"`
	Generated int            `json:"generated"`
	Added     int            `json:"added"`
	HighTotal int            `json:"highTotal"`
	Status    outcome.Status `json:"status"`
	Reason    string         `json:"reason,omitempty"`
}

// Session is the accumulated result of a mining run.
type Session struct {
	Seed           string            `json:"seed"`
	TargetLanguage string            `json:"targetLanguage"`
	Keywords       []seo.KeywordData `json:"keywords"`
	Rounds         []RoundReport     `json:"rounds"`
	HighCount      int               `json:"highCount"`
	StoppedEarly   bool              `json:"stoppedEarly"`
	Degradations   []string          `json:"degradations,omitempty"`
	StartedAt      time.Time         `json:"startedAt"`
	FinishedAt     time.Time         `json:"finishedAt"`
}

// Mine runs up to req.Rounds rounds. progress, when non-nil, is called after
// each round. The session is Failed only when no round produced keywords
// and at least one round failed outright.
func (m *Miner) Mine(ctx context.Context, route llm.Route, req Request, progress func(RoundReport)) outcome.Result[Session] {
	req = normalize(req)
	sess := Session{
		Seed:           req.Seed,
		TargetLanguage: req.TargetLanguage,
		Keywords:       []seo.KeywordData{},
		StartedAt:      m.now(),
	}
	if req.Seed == "" {
		return outcome.Failed[Session]("seed keyword is required")
	}

	seen := map[string]bool{key(req.Seed): true}
	var found []string
	anyFailed := false

	for round := 1; round <= req.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			sess.Degradations = append(sess.Degradations, fmt.Sprintf("stopped before round %d: %v", round, err))
			break
		}

		report := m.runRound(ctx, route, req, round, found, seen, &sess)
		if report.Status == outcome.StatusFailed {
			anyFailed = true
		}
		for _, kw := range sess.Keywords[len(found):] {
			found = append(found, kw.Keyword)
		}
		sess.HighCount = countHigh(sess.Keywords)
		report.HighTotal = sess.HighCount
		sess.Rounds = append(sess.Rounds, report)

		slog.Info("mining round finished", "seed", req.Seed, "round", round, "generated", report.Generated, "added", report.Added, "high", sess.HighCount, "status", report.Status)
		if progress != nil {
			progress(report)
		}
		if req.TargetHigh > 0 && sess.HighCount >= req.TargetHigh {
			sess.StoppedEarly = round < req.Rounds
			break
		}
	}

	sortKeywords(sess.Keywords)
	sess.FinishedAt = m.now()

	switch {
	case len(sess.Keywords) == 0 && anyFailed:
		return outcome.Failed[Session](strings.Join(sess.Degradations, "; "))
	case len(sess.Degradations) > 0:
		return outcome.Degraded(sess, strings.Join(sess.Degradations, "; "))
	default:
		return outcome.OK(sess)
	}
}

func (m *Miner) runRound(ctx context.Context, route llm.Route, req Request, round int, found []string, seen map[string]bool, sess *Session) RoundReport {
	report := RoundReport{Round: round, Status: outcome.StatusOK}
	degrade := func(status outcome.Status, reason string) {
		if report.Status != outcome.StatusFailed {
			report.Status = status
		}
		if report.Reason != "" {
			report.Reason += "; "
		}
		report.Reason += reason
		sess.Degradations = append(sess.Degradations, fmt.Sprintf("round %d: %s", round, reason))
	}

	gen := m.gen.Generate(ctx, route, keywords.Request{
		Seed:           req.Seed,
		TargetLanguage: req.TargetLanguage,
		Round:          round,
		Strategy:       req.Strategy,
		Exclude:        found,
		Count:          req.PerRound,
		PromptOverride: req.Workflow.Override(seo.NodeKeywordGenerator),
	})
	report.Generated = len(gen.Data)
	if !gen.IsOK() {
		degrade(gen.Status, gen.Reason)
	}

	fresh := make([]seo.KeywordData, 0, len(gen.Data))
	for _, kw := range gen.Data {
		k := key(kw.Keyword)
		if seen[k] {
			continue
		}
		seen[k] = true
		fresh = append(fresh, kw)
	}
	if len(fresh) == 0 {
		return report
	}

	if m.metrics != nil {
		if err := m.enrich(ctx, req.TargetLanguage, fresh); err != nil {
			degrade(outcome.StatusDegraded, "keyword metrics unavailable")
			slog.Warn("seranking enrichment failed", "round", round, "error", err)
		}
	}

	if m.analyzer != nil && !req.SkipAnalysis {
		an := m.analyzer.Analyze(ctx, route, ranking.Request{
			Keywords:       fresh,
			TargetLanguage: req.TargetLanguage,
			PromptOverride: req.Workflow.Override(seo.NodeRankingAnalyzer),
		})
		if !an.IsOK() {
			degrade(outcome.StatusDegraded, an.Reason)
		}
		if len(an.Data) == len(fresh) {
			fresh = an.Data
		}
	}

	sess.Keywords = append(sess.Keywords, fresh...)
	report.Added = len(fresh)
	return report
}

// enrich attaches SE-Ranking data in place; found volumes replace the
// model's guess.
func (m *Miner) enrich(ctx context.Context, lang string, kws []seo.KeywordData) error {
	terms := make([]string, len(kws))
	for i, kw := range kws {
		terms[i] = kw.Keyword
	}
	data, err := m.metrics.Fetch(ctx, terms, seranking.SourceForLanguage(lang))
	if err != nil {
		return err
	}
	for i := range kws {
		d, ok := seranking.Lookup(data, kws[i].Keyword)
		if !ok {
			continue
		}
		kws[i].SERanking = &d
		if d.IsDataFound {
			kws[i].Volume = d.Volume
		}
	}
	return nil
}

func normalize(req Request) Request {
	req.Seed = strings.TrimSpace(req.Seed)
	if req.Rounds <= 0 {
		req.Rounds = DefaultRounds
	}
	if req.Rounds > MaxRounds {
		req.Rounds = MaxRounds
	}
	if req.PerRound <= 0 {
		req.PerRound = keywords.DefaultCount
	}
	if req.PerRound > keywords.MaxCount {
		req.PerRound = keywords.MaxCount
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = "en"
	}
	if req.TargetHigh < 0 {
		req.TargetHigh = 0
	}
	return req
}

func key(kw string) string {
	return strings.ToLower(strings.Join(strings.Fields(kw), " "))
}

func countHigh(kws []seo.KeywordData) int {
	n := 0
	for _, kw := range kws {
		if kw.Probability == seo.ProbabilityHigh {
			n++
		}
	}
	return n
}

// sortKeywords orders High > Medium > Low > unanalysed, then by volume.
func sortKeywords(kws []seo.KeywordData) {
	sort.SliceStable(kws, func(i, j int) bool {
		ri, rj := kws[i].Probability.Rank(), kws[j].Probability.Rank()
		if ri != rj {
			return ri < rj
		}
		return kws[i].Volume > kws[j].Volume
	})
}
