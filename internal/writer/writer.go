// Package writer turns a strategy report into a Markdown article.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
)

const (
	writeTimeout  = 180 * time.Second
	streamTimeout = 300 * time.Second
	maxTokens     = 8192
)

// Client is the LLM surface the writer uses.
type Client interface {
	Complete(ctx context.Context, route llm.Route, messages []llm.Message, opts ...llm.CallOption) (string, error)
	Stream(ctx context.Context, route llm.Route, messages []llm.Message, onDelta func(string) error, opts ...llm.CallOption) (string, error)
}

type Request struct {
	Report         seo.SEOStrategyReport
	Competitors    []seo.Competitor
	References     []Reference
	TargetLanguage string
	Tone           string
	PromptOverride string
}

// Article is the writer output.
type Article struct {
	Title     string `json:"title"`
	Markdown  string `json:"markdown"`
	HTML      string `json:"html"`
	WordCount int    `json:"wordCount"`
}

type Writer struct {
	client   Client
	composer *Composer
}

func New(client Client, composer *Composer) *Writer {
	if composer == nil {
		composer = NewComposer(0)
	}
	return &Writer{client: client, composer: composer}
}

// Write generates the article. When onDelta is non-nil the completion is
// streamed and each chunk is passed to it as it arrives.
func (w *Writer) Write(ctx context.Context, route llm.Route, req Request, onDelta func(string) error) outcome.Result[Article] {
	if req.TargetLanguage == "" {
		req.TargetLanguage = "en"
	}
	msgs := w.composer.Compose(req)

	var (
		raw string
		err error
	)
	if onDelta != nil {
		raw, err = w.client.Stream(ctx, route, msgs, onDelta, llm.Timeout(streamTimeout), llm.MaxTokens(maxTokens), llm.Temperature(0.7))
	} else {
		raw, err = w.client.Complete(ctx, route, msgs, llm.Timeout(writeTimeout), llm.MaxTokens(maxTokens), llm.Temperature(0.7))
	}
	if err != nil {
		slog.Error("article generation failed", "keyword", req.Report.TargetKeyword, "error", err)
		return outcome.Failed[Article](fmt.Sprintf("article generation: %v", err))
	}

	md := CleanMarkdown(raw)
	if md == "" {
		return outcome.Failed[Article]("model returned an empty article")
	}
	art := Article{
		Title:     Title(md, req.Report.PageTitleH1),
		Markdown:  md,
		HTML:      RenderHTML(md),
		WordCount: CountWords(md),
	}
	if req.Report.RecommendedWordCount > 0 && art.WordCount < req.Report.RecommendedWordCount/2 {
		return outcome.Degraded(art, fmt.Sprintf("article has %d words, recommended %d", art.WordCount, req.Report.RecommendedWordCount))
	}
	return outcome.OK(art)
}

var (
	outerFenceRe = regexp.MustCompile("(?s)^```(?:markdown|md)?[ \t]*\r?\n(.*?)\r?\n?```$")
	thinkRe      = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)
	mdSyntaxRe   = regexp.MustCompile("[#*_`>\\[\\]()|-]+")
)

// CleanMarkdown strips thinking blocks and an outer code fence.
func CleanMarkdown(raw string) string {
	s := strings.TrimSpace(thinkRe.ReplaceAllString(raw, ""))
	if m := outerFenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}

// Title returns the first "# " heading, or fallback.
func Title(md, fallback string) string {
	for _, line := range strings.Split(md, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return fallback
}

// CountWords counts words with Markdown syntax removed.
func CountWords(md string) int {
	return len(strings.Fields(mdSyntaxRe.ReplaceAllString(md, " ")))
}
