package mining

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/keywords"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/ranking"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

type fakeGenerator struct {
	rounds   map[int]outcome.Result[[]seo.KeywordData]
	requests []keywords.Request
}

func (f *fakeGenerator) Generate(_ context.Context, _ llm.Route, req keywords.Request) outcome.Result[[]seo.KeywordData] {
	f.requests = append(f.requests, req)
	if r, ok := f.rounds[req.Round]; ok {
		return r
	}
	return outcome.Degraded([]seo.KeywordData{}, "no output")
}

// fakeAnalyzer marks keywords containing "high" as High, others Low.
type fakeAnalyzer struct {
	calls int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ llm.Route, req ranking.Request) outcome.Result[[]seo.KeywordData] {
	f.calls++
	out := make([]seo.KeywordData, len(req.Keywords))
	for i, kw := range req.Keywords {
		kw.Probability = seo.ProbabilityLow
		if strings.Contains(kw.Keyword, "high") {
			kw.Probability = seo.ProbabilityHigh
		}
		out[i] = kw
	}
	return outcome.OK(out)
}

type fakeMetrics struct {
	data map[string]seo.SERankingData
	err  error
}

func (f *fakeMetrics) Fetch(context.Context, []string, string) (map[string]seo.SERankingData, error) {
	return f.data, f.err
}

func kws(names ...string) []seo.KeywordData {
	out := make([]seo.KeywordData, len(names))
	for i, n := range names {
		out[i] = seo.KeywordData{ID: fmt.Sprintf("kw-1-%d", i), Keyword: n, Translation: n, Intent: seo.IntentCommercial, Volume: 10 * (i + 1)}
	}
	return out
}

func TestMine_AccumulatesAndDedupes(t *testing.T) {
	gen := &fakeGenerator{rounds: map[int]outcome.Result[[]seo.KeywordData]{
		1: outcome.OK(kws("Best Coffee Machine", "espresso machine", "drip coffee maker")),
		2: outcome.OK(kws("Espresso  Machine", "coffee machine without plastic", "high pressure espresso")),
		3: outcome.OK(kws("coffee subscription vs machine")),
	}}
	an := &fakeAnalyzer{}
	m := NewMiner(gen, an, nil)

	var progress []RoundReport
	res := m.Mine(context.Background(), llm.Route{}, Request{Seed: "best coffee machine", Rounds: 3}, func(r RoundReport) {
		progress = append(progress, r)
	})

	require.True(t, res.IsOK(), res.Reason)
	sess := res.Data
	names := make([]string, len(sess.Keywords))
	for i, kw := range sess.Keywords {
		names[i] = kw.Keyword
	}
	assert.ElementsMatch(t, []string{
		"espresso machine", "drip coffee maker", "coffee machine without plastic",
		"high pressure espresso", "coffee subscription vs machine",
	}, names)
	assert.Equal(t, "high pressure espresso", sess.Keywords[0].Keyword, "High sorts first")

	require.Len(t, progress, 3)
	assert.Equal(t, 3, progress[0].Generated)
	assert.Equal(t, 2, progress[0].Added, "seed itself is deduped")
	assert.Equal(t, 2, progress[1].Added)

	// Later rounds see everything accumulated so far as exclusions.
	require.Len(t, gen.requests, 3)
	assert.Empty(t, gen.requests[0].Exclude)
	assert.Equal(t, []string{"espresso machine", "drip coffee maker"}, gen.requests[1].Exclude)
	assert.Len(t, gen.requests[2].Exclude, 4)
	assert.Equal(t, 3, an.calls)
}

func TestMine_StopsAtTargetHigh(t *testing.T) {
	gen := &fakeGenerator{rounds: map[int]outcome.Result[[]seo.KeywordData]{
		1: outcome.OK(kws("high one", "low one")),
		2: outcome.OK(kws("high two")),
		3: outcome.OK(kws("high three")),
	}}
	res := NewMiner(gen, &fakeAnalyzer{}, nil).Mine(context.Background(), llm.Route{}, Request{Seed: "x", Rounds: 5, TargetHigh: 2}, nil)

	require.True(t, res.IsOK())
	assert.Len(t, res.Data.Rounds, 2)
	assert.True(t, res.Data.StoppedEarly)
	assert.Equal(t, 2, res.Data.HighCount)
}

func TestMine_DegradedRoundsAreReported(t *testing.T) {
	gen := &fakeGenerator{rounds: map[int]outcome.Result[[]seo.KeywordData]{
		1: outcome.OK(kws("a keyword")),
		2: outcome.Failed[[]seo.KeywordData]("proxy down"),
	}}
	res := NewMiner(gen, nil, nil).Mine(context.Background(), llm.Route{}, Request{Seed: "x", Rounds: 3}, nil)

	assert.Equal(t, outcome.StatusDegraded, res.Status)
	assert.Len(t, res.Data.Keywords, 1)
	assert.Equal(t, outcome.StatusFailed, res.Data.Rounds[1].Status)
	assert.Equal(t, outcome.StatusDegraded, res.Data.Rounds[2].Status)
	assert.Contains(t, res.Reason, "proxy down")
}

func TestMine_AllRoundsFailed(t *testing.T) {
	gen := &fakeGenerator{rounds: map[int]outcome.Result[[]seo.KeywordData]{
		1: outcome.Failed[[]seo.KeywordData]("proxy down"),
	}}
	res := NewMiner(gen, nil, nil).Mine(context.Background(), llm.Route{}, Request{Seed: "x", Rounds: 1}, nil)
	assert.True(t, res.IsFailed())
}

func TestMine_EnrichesWithSERanking(t *testing.T) {
	gen := &fakeGenerator{rounds: map[int]outcome.Result[[]seo.KeywordData]{
		1: outcome.OK(kws("espresso machine", "obscure term")),
	}}
	metrics := &fakeMetrics{data: map[string]seo.SERankingData{
		"espresso machine": {IsDataFound: true, Volume: 9900, Difficulty: 55},
		"obscure term":     {IsDataFound: false},
	}}
	res := NewMiner(gen, nil, metrics).Mine(context.Background(), llm.Route{}, Request{Seed: "x", Rounds: 1}, nil)
	require.True(t, res.IsOK())

	byName := map[string]seo.KeywordData{}
	for _, kw := range res.Data.Keywords {
		byName[kw.Keyword] = kw
	}
	assert.Equal(t, 9900, byName["espresso machine"].Volume)
	require.NotNil(t, byName["obscure term"].SERanking)
	assert.False(t, byName["obscure term"].SERanking.IsDataFound)
	assert.Equal(t, 20, byName["obscure term"].Volume, "model volume kept when no data")
}

func TestMine_MetricsFailureDegrades(t *testing.T) {
	gen := &fakeGenerator{rounds: map[int]outcome.Result[[]seo.KeywordData]{1: outcome.OK(kws("a"))}}
	res := NewMiner(gen, nil, &fakeMetrics{err: errors.New("quota")}).Mine(context.Background(), llm.Route{}, Request{Seed: "x", Rounds: 1}, nil)
	assert.Equal(t, outcome.StatusDegraded, res.Status)
	assert.Len(t, res.Data.Keywords, 1)
}

func TestMine_WorkflowOverridesReachAgents(t *testing.T) {
	gen := &fakeGenerator{rounds: map[int]outcome.Result[[]seo.KeywordData]{1: outcome.OK(kws("a"))}}
	wf := &seo.WorkflowConfig{Nodes: []seo.NodeOverride{{NodeID: seo.NodeKeywordGenerator, Prompt: "custom"}}}
	NewMiner(gen, nil, nil).Mine(context.Background(), llm.Route{}, Request{Seed: "x", Rounds: 1, Workflow: wf}, nil)
	require.Len(t, gen.requests, 1)
	assert.Equal(t, "custom", gen.requests[0].PromptOverride)
}

func TestMine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGenerator{}
	res := NewMiner(gen, nil, nil).Mine(ctx, llm.Route{}, Request{Seed: "x"}, nil)
	assert.Empty(t, gen.requests)
	assert.Equal(t, outcome.StatusDegraded, res.Status)
}
