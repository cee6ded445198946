package keywords

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

type mockChatter struct {
	resp     string
	err      error
	messages []llm.Message
	route    llm.Route
}

func (m *mockChatter) Complete(_ context.Context, route llm.Route, msgs []llm.Message, _ ...llm.CallOption) (string, error) {
	m.messages = msgs
	m.route = route
	return m.resp, m.err
}

func fixedClock() time.Time { return time.UnixMilli(1700000000000) }

func newTestGenerator(c Chatter) *Generator {
	g := NewGenerator(c)
	g.now = fixedClock
	return g
}

func TestGenerate_BestCoffeeMachineRoundOne(t *testing.T) {
	resp := "Here are the keywords:\n```json\n[" +
		`{"keyword":"best coffee machine","translation":"best coffee machine","intent":"commercial","volume":"12,100"},` +
		`{"keyword":"coffee machine for home","translation":"coffee machine for home","intent":"Transactional","volume":5400},` +
		`{"keyword":"how to descale a coffee machine","translation":"how to descale a coffee machine","intent":"informational","volume":2900},` +
		`{"keyword":"coffee machine repair near me","translation":"coffee machine repair near me","intent":"Local","volume":880},` +
		`{"keyword":"","intent":"Commercial","volume":1}` +
		"]\n```"
	chat := &mockChatter{resp: resp}
	res := newTestGenerator(chat).Generate(context.Background(), llm.Route{Provider: llm.Provider302}, Request{
		Seed: "best coffee machine", TargetLanguage: "en", Round: 1,
	})

	require.Equal(t, outcome.StatusOK, res.Status)
	require.LessOrEqual(t, len(res.Data), 10)
	require.Len(t, res.Data, 4)

	allowed := map[seo.Intent]bool{}
	for _, in := range seo.Intents {
		allowed[in] = true
	}
	for i, kw := range res.Data {
		assert.NotEmpty(t, kw.Keyword)
		assert.NotEmpty(t, kw.Translation)
		assert.True(t, allowed[kw.Intent], "intent %q not allowed", kw.Intent)
		assert.GreaterOrEqual(t, kw.Volume, 0)
		assert.Equal(t, fmt.Sprintf("kw-1700000000000-%d", i), kw.ID)
	}
	assert.Equal(t, 12100, res.Data[0].Volume)
	assert.Equal(t, seo.IntentCommercial, res.Data[0].Intent)
	assert.Equal(t, llm.Provider302, chat.route.Provider)
}

func TestGenerate_ThinkingProseQuotesAnotherArray(t *testing.T) {
	chat := &mockChatter{resp: `I considered ["price", "brand"] as angles, then settled on these. Final: ` +
		`[{"keyword":"quiet coffee grinder","translation":"quiet coffee grinder","intent":"Commercial","volume":720}]`}
	res := newTestGenerator(chat).Generate(context.Background(), llm.Route{}, Request{Seed: "coffee grinder"})

	require.Equal(t, outcome.StatusOK, res.Status)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "quiet coffee grinder", res.Data[0].Keyword)
	assert.Equal(t, 720, res.Data[0].Volume)
}

func TestGenerate_CapsAtCount(t *testing.T) {
	var items []string
	for i := range 30 {
		items = append(items, fmt.Sprintf(`{"keyword":"kw %d","translation":"kw %d","intent":"Informational","volume":%d}`, i, i, i))
	}
	chat := &mockChatter{resp: "[" + strings.Join(items, ",") + "]"}
	res := newTestGenerator(chat).Generate(context.Background(), llm.Route{}, Request{Seed: "x"})
	assert.True(t, res.IsOK())
	assert.Len(t, res.Data, DefaultCount)

	res = newTestGenerator(chat).Generate(context.Background(), llm.Route{}, Request{Seed: "x", Count: 25})
	assert.Len(t, res.Data, 25)
}

func TestGenerate_ParseFailureIsDegraded(t *testing.T) {
	cases := map[string]string{
		"prose":        "Sorry, I cannot help with that.",
		"object":       `{"keywords": "none"}`,
		"empty array":  "[]",
		"wrong schema": `[{"name":"x"}]`,
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			res := newTestGenerator(&mockChatter{resp: resp}).Generate(context.Background(), llm.Route{}, Request{Seed: "x"})
			assert.Equal(t, outcome.StatusDegraded, res.Status)
			assert.NotNil(t, res.Data)
			assert.Empty(t, res.Data)
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestGenerate_LLMErrorIsFailed(t *testing.T) {
	res := newTestGenerator(&mockChatter{err: errors.New("proxy down")}).Generate(context.Background(), llm.Route{}, Request{Seed: "x"})
	assert.True(t, res.IsFailed())
	assert.Empty(t, res.Data)
	assert.Contains(t, res.Reason, "proxy down")
}

func TestGenerate_RequiresSeed(t *testing.T) {
	chat := &mockChatter{}
	res := newTestGenerator(chat).Generate(context.Background(), llm.Route{}, Request{Seed: "  "})
	assert.True(t, res.IsFailed())
	assert.Nil(t, chat.messages, "no LLM call without a seed")
}

func TestBuildPrompt_RoundBranching(t *testing.T) {
	round1 := BuildPrompt(normalize(Request{Seed: "best coffee machine", Round: 1, Exclude: []string{"espresso machine"}}))
	text1 := joinContent(round1)
	assert.NotContains(t, text1, "SCAMPER")
	assert.NotContains(t, text1, "espresso machine")
	assert.Contains(t, text1, "broad keywords")

	round2 := BuildPrompt(normalize(Request{Seed: "best coffee machine", Round: 2, Exclude: []string{"espresso machine", "drip coffee maker"}}))
	text2 := joinContent(round2)
	assert.Contains(t, text2, "SCAMPER")
	assert.Contains(t, text2, "Avoid similarity")
	assert.Contains(t, text2, "espresso machine")
	assert.Contains(t, text2, "drip coffee maker")
}

func TestBuildPrompt_ListsOnlyLastTwentyExclusions(t *testing.T) {
	var exclude []string
	for i := range 25 {
		exclude = append(exclude, fmt.Sprintf("prior-%02d", i))
	}
	text := joinContent(BuildPrompt(normalize(Request{Seed: "x", Round: 3, Exclude: exclude})))
	assert.NotContains(t, text, "prior-04")
	assert.Contains(t, text, "prior-05")
	assert.Contains(t, text, "prior-24")
}

func TestBuildPrompt_Override(t *testing.T) {
	msgs := BuildPrompt(normalize(Request{Seed: "x", PromptOverride: "Custom instruction"}))
	require.Len(t, msgs, 2)
	assert.Equal(t, "Custom instruction", msgs[0].Content)
	assert.Equal(t, "system", msgs[0].Role)
}

func joinContent(msgs []llm.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
