package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/article"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/auth"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/billing"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/deepdive"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/keywords"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/mining"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/outcome"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/ranking"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/storage"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/websitedata"
)

// --- mocks ---

type mockGenerator struct {
	mu    sync.Mutex
	res   outcome.Result[[]seo.KeywordData]
	calls []keywords.Request
	route llm.Route
}

func (m *mockGenerator) Generate(_ context.Context, route llm.Route, req keywords.Request) outcome.Result[[]seo.KeywordData] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	m.route = route
	return m.res
}

type mockAnalyzer struct {
	calls []ranking.Request
}

func (m *mockAnalyzer) Analyze(_ context.Context, _ llm.Route, req ranking.Request) outcome.Result[[]seo.KeywordData] {
	m.calls = append(m.calls, req)
	out := make([]seo.KeywordData, len(req.Keywords))
	for i, k := range req.Keywords {
		k.Probability = seo.ProbabilityHigh
		out[i] = k
	}
	return outcome.OK(out)
}

type mockMiner struct {
	req     mining.Request
	failure string
}

func (m *mockMiner) Mine(_ context.Context, _ llm.Route, req mining.Request, progress func(mining.RoundReport)) outcome.Result[mining.Session] {
	m.req = req
	if m.failure != "" {
		return outcome.Failed[mining.Session](m.failure)
	}
	if progress != nil {
		progress(mining.RoundReport{Round: 1, Added: 1})
	}
	return outcome.OK(mining.Session{
		Seed:     req.Seed,
		Keywords: []seo.KeywordData{{ID: "k1", Keyword: req.Seed + " ideas", Probability: seo.ProbabilityHigh}},
	})
}

type mockStrategist struct {
	res outcome.Result[deepdive.Analysis]
	req deepdive.Request
}

func (m *mockStrategist) Run(_ context.Context, _ llm.Route, req deepdive.Request) outcome.Result[deepdive.Analysis] {
	m.req = req
	return m.res
}

type mockPipeline struct {
	events []article.Event
	req    article.Request
}

func (m *mockPipeline) Run(_ context.Context, _ llm.Route, req article.Request, emit func(article.Event) error) error {
	m.req = req
	for _, ev := range m.events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}

type mockWebsiteData struct {
	snap   websitedata.Snapshot
	ranked websitedata.RankedKeywordsView
	recs   websitedata.Recommendations
	err    error
	site   seo.Website
	loc    seo.Location
	limit  int
	force  bool
}

func (m *mockWebsiteData) Overview(_ context.Context, site seo.Website, loc seo.Location) (websitedata.Snapshot, error) {
	m.site, m.loc = site, loc
	return m.snap, m.err
}

func (m *mockWebsiteData) UpdateMetrics(_ context.Context, site seo.Website, loc seo.Location) (websitedata.Snapshot, error) {
	m.site, m.loc = site, loc
	return m.snap, m.err
}

func (m *mockWebsiteData) RankedKeywords(_ context.Context, site seo.Website, loc seo.Location, limit int) (websitedata.RankedKeywordsView, error) {
	m.site, m.loc, m.limit = site, loc, limit
	return m.ranked, m.err
}

func (m *mockWebsiteData) AnalyzeKeywordRecommendations(_ context.Context, _ llm.Route, site seo.Website, loc seo.Location, force bool) (websitedata.Recommendations, error) {
	m.site, m.loc, m.force = site, loc, force
	return m.recs, m.err
}

// mockStore keeps workflow configs and websites in memory.
type mockStore struct {
	mu        sync.Mutex
	users     map[string]string
	websites  map[string]seo.Website
	workflows map[string]seo.WorkflowConfig
	nextID    int
	applied   []int
}

func newMockStore() *mockStore {
	return &mockStore{
		users:     make(map[string]string),
		websites:  make(map[string]seo.Website),
		workflows: make(map[string]seo.WorkflowConfig),
	}
}

func (m *mockStore) EnsureUser(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = email
	return nil
}

func (m *mockStore) OwnedWebsite(_ context.Context, userID, id string) (seo.Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.websites[id]
	if !ok {
		return seo.Website{}, storage.ErrNotFound
	}
	if site.UserID != userID {
		return seo.Website{}, storage.ErrForbidden
	}
	return site, nil
}

func (m *mockStore) ListWorkflows(_ context.Context, userID string) ([]seo.WorkflowConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []seo.WorkflowConfig{}
	for _, w := range m.workflows {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *mockStore) Workflow(_ context.Context, userID, id string) (seo.WorkflowConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok || w.UserID != userID {
		return seo.WorkflowConfig{}, storage.ErrNotFound
	}
	return w, nil
}

func (m *mockStore) DefaultWorkflow(_ context.Context, userID string) (seo.WorkflowConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workflows {
		if w.UserID == userID && w.IsDefault {
			return w, nil
		}
	}
	return seo.WorkflowConfig{}, storage.ErrNotFound
}

func (m *mockStore) CreateWorkflow(_ context.Context, w seo.WorkflowConfig) (seo.WorkflowConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	w.ID = fmt.Sprintf("wf-%d", m.nextID)
	w.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.UpdatedAt = w.CreatedAt
	m.workflows[w.ID] = w
	return w, nil
}

func (m *mockStore) UpdateWorkflow(_ context.Context, w seo.WorkflowConfig) (seo.WorkflowConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.workflows[w.ID]
	if !ok || old.UserID != w.UserID {
		return seo.WorkflowConfig{}, storage.ErrNotFound
	}
	w.CreatedAt = old.CreatedAt
	m.workflows[w.ID] = w
	return w, nil
}

func (m *mockStore) DeleteWorkflow(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workflows[id]
	if !ok || w.UserID != userID {
		return storage.ErrNotFound
	}
	delete(m.workflows, id)
	return nil
}

func (m *mockStore) Migrate(context.Context) ([]int, error) {
	return m.applied, nil
}

func (m *mockStore) MigrationStatus(context.Context) ([]storage.Migration, error) {
	return []storage.Migration{{Version: 1, Name: "001_init.sql", Applied: true}}, nil
}

// mockAuth accepts "Bearer good" as user-1 and "Bearer expired" as an
// expired token.
type mockAuth struct{}

func (mockAuth) Authenticate(_ context.Context, header string) (auth.Principal, error) {
	switch header {
	case "Bearer good":
		return auth.Principal{UserID: "user-1", Email: "a@example.com", Credential: "good"}, nil
	case "Bearer expired":
		return auth.Principal{}, auth.ErrExpiredToken
	case "":
		return auth.Principal{}, auth.ErrMissingToken
	default:
		return auth.Principal{}, auth.ErrInvalidToken
	}
}

type mockBiller struct {
	mu    sync.Mutex
	err   error
	usage []billing.Usage
}

func (m *mockBiller) Consume(_ context.Context, _ auth.Principal, u billing.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.usage = append(m.usage, u)
	return nil
}

type mockObserver struct {
	mu       sync.Mutex
	observed []string
}

func (m *mockObserver) ObserveAgent(agent, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed = append(m.observed, agent+":"+status)
}

func (m *mockObserver) Middleware(next http.Handler) http.Handler { return next }

func (m *mockObserver) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("seoagent_agent_runs_total 1\n"))
	})
}
