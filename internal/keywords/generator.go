// Package keywords generates keyword ideas for a seed term with the LLM.
package keywords

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/extract"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

const (
	DefaultCount = 10
	MaxCount     = 50
)

// Chatter is the LLM call the generator needs.
type Chatter interface {
	Complete(ctx context.Context, route llm.Route, messages []llm.Message, opts ...llm.CallOption) (string, error)
}

// Request describes one generation round.
type Request struct {
	Seed           string
	TargetLanguage string
	Round          int
	Strategy       string
	// Exclude lists keywords found in earlier rounds. Only the last 20 are
	// sent to the model, as advisory text.
	Exclude        []string
	Count          int
	PromptOverride string
}

// Generator produces KeywordData for a seed.
type Generator struct {
	client Chatter
	now    func() time.Time
}

func NewGenerator(client Chatter) *Generator {
	return &Generator{client: client, now: time.Now}
}

type rawKeyword struct {
	Keyword     string      `json:"keyword"`
	Translation string      `json:"translation"`
	Intent      string      `json:"intent"`
	Volume      seo.FlexInt `json:"volume"`
}

// Generate runs one round. An LLM failure yields a Failed result; output the
// model produced but that holds no usable keywords yields a Degraded result
// with an empty list. There is no retry here beyond the client's own.
func (g *Generator) Generate(ctx context.Context, route llm.Route, req Request) outcome.Result[[]seo.KeywordData] {
	req = normalize(req)
	if req.Seed == "" {
		return outcome.Failed[[]seo.KeywordData]("seed keyword is required")
	}

	raw, err := g.client.Complete(ctx, route, BuildPrompt(req), llm.Temperature(0.8))
	if err != nil {
		slog.Error("keyword generation failed", "seed", req.Seed, "round", req.Round, "error", err)
		return outcome.Failed[[]seo.KeywordData](fmt.Sprintf("keyword generation: %v", err))
	}

	var items []rawKeyword
	if err := extract.Decode(raw, extract.Array, &items); err != nil {
		slog.Warn("keyword generation returned no JSON array", "seed", req.Seed, "round", req.Round, "error", err, "response", extract.Truncate(raw, 500))
		return outcome.Degraded([]seo.KeywordData{}, "model output contained no keyword array")
	}

	stamp := g.now().UnixMilli()
	out := make([]seo.KeywordData, 0, min(len(items), req.Count))
	for _, it := range items {
		kw := strings.TrimSpace(it.Keyword)
		if kw == "" {
			continue
		}
		translation := strings.TrimSpace(it.Translation)
		if translation == "" {
			translation = kw
		}
		out = append(out, seo.KeywordData{
			ID:          fmt.Sprintf("kw-%d-%d", stamp, len(out)),
			Keyword:     kw,
			Translation: translation,
			Intent:      seo.NormalizeIntent(it.Intent),
			Volume:      max(int(it.Volume), 0),
		})
		if len(out) == req.Count {
			break
		}
	}

	if len(out) == 0 {
		slog.Warn("keyword generation returned an empty array", "seed", req.Seed, "round", req.Round, "response", extract.Truncate(raw, 500))
		return outcome.Degraded(out, "model returned no keywords")
	}
	slog.Debug("keywords generated", "seed", req.Seed, "round", req.Round, "count", len(out))
	return outcome.OK(out)
}

func normalize(req Request) Request {
	req.Seed = strings.TrimSpace(req.Seed)
	if req.Round < 1 {
		req.Round = 1
	}
	if req.Count <= 0 {
		req.Count = DefaultCount
	}
	if req.Count > MaxCount {
		req.Count = MaxCount
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = "en"
	}
	return req
}
