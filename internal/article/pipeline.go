// Package article chains deep dive, writing and image planning into one
// visual article run that reports progress as events.
package article

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/creative"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/deepdive"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/scrape"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/writer"
)

// Event types.
const (
	TypeEvent = "event"
	TypeDone  = "done"
	TypeError = "error"
)

// Stages, in order.
const (
	StageStrategy = "strategy"
	StageWriting  = "writing"
	StageImages   = "images"
)

// Event is one progress frame.
type Event struct {
	Type    string  `json:"type"`
	Stage   string  `json:"stage,omitempty"`
	Status  string  `json:"status,omitempty"`
	Message string  `json:"message,omitempty"`
	Delta   string  `json:"delta,omitempty"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Result is carried by the final done event.
type Result struct {
	Report       seo.SEOStrategyReport `json:"report"`
	Competitors  []seo.Competitor      `json:"competitors"`
	Article      writer.Article        `json:"article"`
	Images       []creative.ImagePlan  `json:"images"`
	Degradations []string              `json:"degradations,omitempty"`
}

type Strategist interface {
	Run(ctx context.Context, route llm.Route, req deepdive.Request) outcome.Result[deepdive.Analysis]
}

type Writer interface {
	Write(ctx context.Context, route llm.Route, req writer.Request, onDelta func(string) error) outcome.Result[writer.Article]
}

type Planner interface {
	Plan(ctx context.Context, route llm.Route, req creative.Request) outcome.Result[[]creative.ImagePlan]
}

type Pipeline struct {
	strategist Strategist
	writer     Writer
	planner    Planner
}

func NewPipeline(s Strategist, w Writer, p Planner) *Pipeline {
	return &Pipeline{strategist: s, writer: w, planner: p}
}

type Request struct {
	Keyword         string
	TargetLanguage  string
	WebsiteDomain   string
	CompetitorLimit int
	Tone            string
	ImageStyle      string
	ImageCount      int
	References      []writer.Reference
	Workflow        *seo.WorkflowConfig
}

// ErrStageFailed wraps the reason a required stage failed.
var ErrStageFailed = errors.New("stage failed")

// Run executes every stage and reports through emit. It always ends with
// exactly one done or error event unless emit itself fails, in which case
// that error is returned.
func (p *Pipeline) Run(ctx context.Context, route llm.Route, req Request, emit func(Event) error) error {
	res, err := p.run(ctx, route, req, emit)
	if err != nil {
		var emitErr *emitError
		if errors.As(err, &emitErr) {
			return emitErr.err
		}
		slog.Warn("visual article failed", "keyword", req.Keyword, "error", err)
		return emit(Event{Type: TypeError, Error: err.Error()})
	}
	return emit(Event{Type: TypeDone, Result: res})
}

type emitError struct{ err error }

func (e *emitError) Error() string { return "emitting event: " + e.err.Error() }

func (p *Pipeline) run(ctx context.Context, route llm.Route, req Request, emit func(Event) error) (*Result, error) {
	send := func(ev Event) error {
		if err := emit(ev); err != nil {
			return &emitError{err: err}
		}
		return nil
	}
	stage := func(name, status, msg string) error {
		return send(Event{Type: TypeEvent, Stage: name, Status: status, Message: msg})
	}

	res := &Result{}

	if err := stage(StageStrategy, "started", "Analysing search results and competitors"); err != nil {
		return nil, err
	}
	dd := p.strategist.Run(ctx, route, deepdive.Request{
		Keyword:         req.Keyword,
		TargetLanguage:  req.TargetLanguage,
		WebsiteDomain:   req.WebsiteDomain,
		CompetitorLimit: req.CompetitorLimit,
		PromptOverride:  req.Workflow.Override(seo.NodeDeepDive),
	})
	if dd.IsFailed() {
		return nil, fmt.Errorf("%w: %s: %s", ErrStageFailed, StageStrategy, dd.Reason)
	}
	res.Report = dd.Data.Report
	res.Competitors = dd.Data.Competitors
	res.Degradations = append(res.Degradations, dd.Data.Degradations...)
	if err := stage(StageStrategy, string(dd.Status), res.Report.PageTitleH1); err != nil {
		return nil, err
	}

	if err := stage(StageWriting, "started", "Writing the article"); err != nil {
		return nil, err
	}
	art := p.writer.Write(ctx, route, writer.Request{
		Report:         res.Report,
		Competitors:    res.Competitors,
		References:     req.References,
		TargetLanguage: req.TargetLanguage,
		Tone:           req.Tone,
		PromptOverride: req.Workflow.Override(seo.NodeContentWriter),
	}, func(delta string) error {
		return send(Event{Type: TypeEvent, Stage: StageWriting, Status: "delta", Delta: delta})
	})
	if art.IsFailed() {
		return nil, fmt.Errorf("%w: %s: %s", ErrStageFailed, StageWriting, art.Reason)
	}
	if art.Status == outcome.StatusDegraded {
		res.Degradations = append(res.Degradations, art.Reason)
	}
	res.Article = art.Data
	if err := stage(StageWriting, string(art.Status), fmt.Sprintf("%d words", art.Data.WordCount)); err != nil {
		return nil, err
	}

	if err := stage(StageImages, "started", "Planning images"); err != nil {
		return nil, err
	}
	imgs := p.planner.Plan(ctx, route, creative.Request{
		Keyword:        req.Keyword,
		Title:          res.Article.Title,
		Headings:       scrape.HeadingsFromMarkdown(res.Article.Markdown),
		Style:          req.ImageStyle,
		TargetLanguage: req.TargetLanguage,
		Count:          req.ImageCount,
		PromptOverride: req.Workflow.Override(seo.NodeImageCreative),
	})
	res.Images = imgs.Data
	if res.Images == nil {
		res.Images = []creative.ImagePlan{}
	}
	if !imgs.IsOK() {
		res.Degradations = append(res.Degradations, "images: "+imgs.Reason)
	}
	if err := stage(StageImages, string(imgs.Status), fmt.Sprintf("%d images planned", len(res.Images))); err != nil {
		return nil, err
	}
	return res, nil
}
