package article

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/creative"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/deepdive"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/writer"
)

type fakeStrategist struct {
	res outcome.Result[deepdive.Analysis]
	req deepdive.Request
}

func (f *fakeStrategist) Run(_ context.Context, _ llm.Route, req deepdive.Request) outcome.Result[deepdive.Analysis] {
	f.req = req
	return f.res
}

type fakeWriter struct {
	deltas []string
	res    outcome.Result[writer.Article]
}

func (f *fakeWriter) Write(_ context.Context, _ llm.Route, _ writer.Request, onDelta func(string) error) outcome.Result[writer.Article] {
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return outcome.Failed[writer.Article](err.Error())
		}
	}
	return f.res
}

type fakePlanner struct {
	res outcome.Result[[]creative.ImagePlan]
	req creative.Request
}

func (f *fakePlanner) Plan(_ context.Context, _ llm.Route, req creative.Request) outcome.Result[[]creative.ImagePlan] {
	f.req = req
	return f.res
}

func okStrategy() outcome.Result[deepdive.Analysis] {
	return outcome.OK(deepdive.Analysis{Report: seo.SEOStrategyReport{TargetKeyword: "k", PageTitleH1: "Title"}})
}

func okArticle() outcome.Result[writer.Article] {
	return outcome.OK(writer.Article{Title: "Title", Markdown: "# Title\n## Section A\ntext", WordCount: 4})
}

func collect(events *[]Event) func(Event) error {
	return func(ev Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestRun_EmitsStagesThenDone(t *testing.T) {
	planner := &fakePlanner{res: outcome.OK([]creative.ImagePlan{{Prompt: "p"}})}
	p := NewPipeline(&fakeStrategist{res: okStrategy()}, &fakeWriter{deltas: []string{"# Ti", "tle"}, res: okArticle()}, planner)

	var events []Event
	require.NoError(t, p.Run(context.Background(), llm.Route{}, Request{Keyword: "k"}, collect(&events)))

	var stages []string
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, TypeEvent, ev.Type)
		stages = append(stages, ev.Stage+":"+ev.Status)
	}
	assert.Equal(t, []string{
		"strategy:started", "strategy:ok",
		"writing:started", "writing:delta", "writing:delta", "writing:ok",
		"images:started", "images:ok",
	}, stages)

	last := events[len(events)-1]
	assert.Equal(t, TypeDone, last.Type)
	require.NotNil(t, last.Result)
	assert.Equal(t, "Title", last.Result.Report.PageTitleH1)
	assert.Len(t, last.Result.Images, 1)
	assert.Equal(t, []string{"H1: Title", "H2: Section A"}, planner.req.Headings)
}

func TestRun_StrategyFailureEmitsError(t *testing.T) {
	p := NewPipeline(&fakeStrategist{res: outcome.Failed[deepdive.Analysis]("llm down")}, &fakeWriter{}, &fakePlanner{})

	var events []Event
	require.NoError(t, p.Run(context.Background(), llm.Route{}, Request{Keyword: "k"}, collect(&events)))
	last := events[len(events)-1]
	assert.Equal(t, TypeError, last.Type)
	assert.Contains(t, last.Error, "llm down")
	for _, ev := range events {
		assert.NotEqual(t, TypeDone, ev.Type)
	}
}

func TestRun_ImageDegradationStillDone(t *testing.T) {
	p := NewPipeline(&fakeStrategist{res: okStrategy()}, &fakeWriter{res: okArticle()},
		&fakePlanner{res: outcome.Degraded([]creative.ImagePlan{}, "no plans")})

	var events []Event
	require.NoError(t, p.Run(context.Background(), llm.Route{}, Request{Keyword: "k"}, collect(&events)))
	last := events[len(events)-1]
	assert.Equal(t, TypeDone, last.Type)
	assert.Contains(t, last.Result.Degradations, "images: no plans")
	assert.NotNil(t, last.Result.Images)
}

func TestRun_WorkflowOverridesPassedToStages(t *testing.T) {
	s := &fakeStrategist{res: okStrategy()}
	planner := &fakePlanner{res: outcome.OK([]creative.ImagePlan{})}
	wf := &seo.WorkflowConfig{Nodes: []seo.NodeOverride{
		{NodeID: seo.NodeDeepDive, Prompt: "dd"},
		{NodeID: seo.NodeImageCreative, Prompt: "img"},
	}}
	p := NewPipeline(s, &fakeWriter{res: okArticle()}, planner)
	require.NoError(t, p.Run(context.Background(), llm.Route{}, Request{Keyword: "k", Workflow: wf}, func(Event) error { return nil }))
	assert.Equal(t, "dd", s.req.PromptOverride)
	assert.Equal(t, "img", planner.req.PromptOverride)
}

func TestRun_EmitErrorAborts(t *testing.T) {
	p := NewPipeline(&fakeStrategist{res: okStrategy()}, &fakeWriter{res: okArticle()}, &fakePlanner{})
	gone := errors.New("client disconnected")
	calls := 0
	err := p.Run(context.Background(), llm.Route{}, Request{Keyword: "k"}, func(Event) error {
		calls++
		return gone
	})
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 1, calls)
}
