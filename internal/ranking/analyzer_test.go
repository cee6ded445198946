package ranking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

// --- mocks ---

type mockChatter struct {
	calls  atomic.Int32
	respFn func(keyword string) (string, error)
}

func (m *mockChatter) Complete(ctx context.Context, _ llm.Route, msgs []llm.Message, _ ...llm.CallOption) (string, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.respFn(keywordOf(msgs))
}

func keywordOf(msgs []llm.Message) string {
	user := msgs[len(msgs)-1].Content
	line := strings.SplitN(user, "\n", 2)[0]
	return strings.Trim(strings.TrimPrefix(line, "Keyword: "), `"`)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return nil
}

func newTestAnalyzer(chat Chatter, opts ...Option) (*Analyzer, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := NewAnalyzer(chat, opts...)
	a.now = clock.now
	a.sleep = clock.sleep
	return a, clock
}

func makeKeywords(n int) []seo.KeywordData {
	kws := make([]seo.KeywordData, n)
	for i := range kws {
		kws[i] = seo.KeywordData{ID: fmt.Sprintf("kw-1-%d", i), Keyword: fmt.Sprintf("keyword %d", i), Volume: 100 * i}
	}
	return kws
}

// --- tests ---

func TestAnalyze_OutputLengthAlwaysEqualsInput(t *testing.T) {
	chat := &mockChatter{respFn: func(kw string) (string, error) {
		var n int
		fmt.Sscanf(kw, "keyword %d", &n)
		switch n % 4 {
		case 0:
			return "", errors.New("upstream 500")
		case 1:
			return "not json at all", nil
		default:
			return `{"serpResultCount": 5000, "probability": "Medium", "topDomainType": "Niche Site"}`, nil
		}
	}}

	for _, n := range []int{0, 1, 4, 5, 6, 11, 23} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			a, _ := newTestAnalyzer(chat)
			in := makeKeywords(n)
			res := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: in})

			require.Len(t, res.Data, n)
			for i := range in {
				assert.Equal(t, in[i].ID, res.Data[i].ID, "order must be preserved")
				assert.NotEmpty(t, res.Data[i].Probability)
			}
			if n > 0 {
				assert.Equal(t, outcome.StatusDegraded, res.Status)
			}
		})
	}
}

func TestAnalyze_BudgetExhaustionFillsFallbacks(t *testing.T) {
	chat := &mockChatter{respFn: func(string) (string, error) {
		return `{"serpResultCount": 900000, "probability": "Medium"}`, nil
	}}
	// Batches of 2; the second sleep pushes the clock past the 1s budget.
	a, _ := newTestAnalyzer(chat, WithBatching(2, 600*time.Millisecond), WithBudget(time.Second))

	in := makeKeywords(7)
	res := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: in})

	require.Len(t, res.Data, 7)
	assert.Equal(t, int32(4), chat.calls.Load())
	for i := range 4 {
		assert.Equal(t, seo.ProbabilityMedium, res.Data[i].Probability)
	}
	for i := 4; i < 7; i++ {
		assert.Equal(t, seo.ProbabilityLow, res.Data[i].Probability)
		assert.Equal(t, "Analysis timed out", res.Data[i].Reasoning)
		assert.Equal(t, in[i].Keyword, res.Data[i].Keyword)
	}
	assert.Equal(t, outcome.StatusDegraded, res.Status)
	assert.Contains(t, res.Reason, "3 of 7")
}

func TestAnalyze_CancelledContextStillReturnsAll(t *testing.T) {
	chat := &mockChatter{respFn: func(string) (string, error) { return `{"probability":"High"}`, nil }}
	a, _ := newTestAnalyzer(chat)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.Analyze(ctx, llm.Route{}, Request{Keywords: makeKeywords(8)})
	require.Len(t, res.Data, 8)
	for _, kw := range res.Data {
		assert.Equal(t, seo.ProbabilityLow, kw.Probability)
	}
}

func TestAnalyze_BlueOceanOverride(t *testing.T) {
	for count := 0; count < BlueOceanThreshold; count++ {
		chat := &mockChatter{respFn: func(string) (string, error) {
			return fmt.Sprintf(`{"serpResultCount": %d, "probability": "Low", "topDomainType": "Big Brand", "reasoning": "brands dominate"}`, count), nil
		}}
		a, _ := newTestAnalyzer(chat)
		res := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: makeKeywords(1)})

		require.True(t, res.IsOK())
		got := res.Data[0]
		assert.Equal(t, seo.ProbabilityHigh, got.Probability, "count %d", count)
		assert.Equal(t, WeakPage, got.TopDomainType, "count %d", count)
		require.NotNil(t, got.SERPResultCount)
		assert.Equal(t, count, *got.SERPResultCount)
		assert.Equal(t, "brands dominate", got.Reasoning)
	}
}

func TestAnalyze_NoOverrideAtThresholdOrUnknown(t *testing.T) {
	cases := map[string]string{
		"at threshold": `{"serpResultCount": 20, "probability": "Low", "topDomainType": "Big Brand"}`,
		"string":       `{"serpResultCount": "5", "probability": "Low", "topDomainType": "Big Brand"}`,
		"null":         `{"serpResultCount": null, "probability": "Low", "topDomainType": "Big Brand"}`,
		"negative":     `{"serpResultCount": -1, "probability": "Low", "topDomainType": "Big Brand"}`,
		"missing":      `{"probability": "Low", "topDomainType": "Big Brand"}`,
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			chat := &mockChatter{respFn: func(string) (string, error) { return resp, nil }}
			a, _ := newTestAnalyzer(chat)
			res := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: makeKeywords(1)})
			assert.Equal(t, seo.ProbabilityLow, res.Data[0].Probability)
			assert.Equal(t, "Big Brand", res.Data[0].TopDomainType)
		})
	}
}

func TestAnalyze_MergeKeepsInputFields(t *testing.T) {
	chat := &mockChatter{respFn: func(string) (string, error) {
		return "```json\n{\"serpResultCount\": 120000, \"probability\": \"medium\", \"searchIntent\": \"compare models\"}\n```", nil
	}}
	a, _ := newTestAnalyzer(chat)
	in := seo.KeywordData{ID: "kw-1-0", Keyword: "espresso machine", Translation: "espresso machine", Intent: seo.IntentCommercial, Volume: 9900}
	res := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: []seo.KeywordData{in}})

	got := res.Data[0]
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Volume, got.Volume)
	assert.Equal(t, seo.IntentCommercial, got.Intent)
	assert.Equal(t, seo.ProbabilityMedium, got.Probability)
	assert.Equal(t, "compare models", got.SearchIntent)
}

type stubSearcher struct {
	res seo.SERPResult
	err error
}

func (s stubSearcher) Search(context.Context, seo.SERPQuery) (seo.SERPResult, error) { return s.res, s.err }

func TestAnalyze_SERPGrounding(t *testing.T) {
	var prompt atomic.Value
	chat := &mockChatter{respFn: func(string) (string, error) { return `{"probability":"Medium"}`, nil }}
	wrapped := chatterFunc(func(ctx context.Context, r llm.Route, msgs []llm.Message, opts ...llm.CallOption) (string, error) {
		prompt.Store(msgs[len(msgs)-1].Content)
		return chat.Complete(ctx, r, msgs, opts...)
	})
	serp := stubSearcher{res: seo.SERPResult{TotalResults: 12, TotalKnown: true, Organic: []seo.SERPSnippet{
		{Position: 1, Title: "Tiny forum thread", Domain: "forum.example", Snippet: "anyone know?"},
	}}}
	a, _ := newTestAnalyzer(wrapped, WithSearcher(serp))

	res := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: makeKeywords(1)})
	got := res.Data[0]
	assert.Contains(t, prompt.Load().(string), "Tiny forum thread")
	require.Len(t, got.TopSERPSnippets, 1)
	// The model gave no count, so the live total is used and the rule applies.
	require.NotNil(t, got.SERPResultCount)
	assert.Equal(t, 12, *got.SERPResultCount)
	assert.Equal(t, seo.ProbabilityHigh, got.Probability)
}

func TestAnalyze_SERPWithoutTotalLeavesCountUnset(t *testing.T) {
	chat := &mockChatter{respFn: func(string) (string, error) {
		return `{"probability":"Low","topDomainType":"Big Brand"}`, nil
	}}
	serp := stubSearcher{res: seo.SERPResult{Organic: []seo.SERPSnippet{
		{Position: 1, Title: "Coffee machines", Domain: "amazon.com"},
	}}}
	a, _ := newTestAnalyzer(chat, WithSearcher(serp))

	got := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: makeKeywords(1)}).Data[0]
	assert.Nil(t, got.SERPResultCount)
	assert.Equal(t, seo.ProbabilityLow, got.Probability)
	assert.Equal(t, "Big Brand", got.TopDomainType)
}

func TestAnalyze_HugeCountIsClamped(t *testing.T) {
	chat := &mockChatter{respFn: func(string) (string, error) {
		return `{"serpResultCount": 1e300, "probability":"Low"}`, nil
	}}
	a, _ := newTestAnalyzer(chat)

	got := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: makeKeywords(1)}).Data[0]
	require.NotNil(t, got.SERPResultCount)
	assert.Equal(t, math.MaxInt32, *got.SERPResultCount)
	assert.Equal(t, seo.ProbabilityLow, got.Probability)
}

func TestAnalyze_SERPFailureDoesNotFailKeyword(t *testing.T) {
	chat := &mockChatter{respFn: func(string) (string, error) { return `{"probability":"Medium"}`, nil }}
	a, _ := newTestAnalyzer(chat, WithSearcher(stubSearcher{err: errors.New("serp down")}))
	res := a.Analyze(context.Background(), llm.Route{}, Request{Keywords: makeKeywords(1)})
	assert.True(t, res.IsOK())
	assert.Equal(t, seo.ProbabilityMedium, res.Data[0].Probability)
}

type chatterFunc func(ctx context.Context, r llm.Route, msgs []llm.Message, opts ...llm.CallOption) (string, error)

func (f chatterFunc) Complete(ctx context.Context, r llm.Route, msgs []llm.Message, opts ...llm.CallOption) (string, error) {
	return f(ctx, r, msgs, opts...)
}
