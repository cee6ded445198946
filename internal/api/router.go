package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

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

type KeywordGenerator interface {
	Generate(ctx context.Context, route llm.Route, req keywords.Request) outcome.Result[[]seo.KeywordData]
}

type RankingAnalyzer interface {
	Analyze(ctx context.Context, route llm.Route, req ranking.Request) outcome.Result[[]seo.KeywordData]
}

type KeywordMiner interface {
	Mine(ctx context.Context, route llm.Route, req mining.Request, progress func(mining.RoundReport)) outcome.Result[mining.Session]
}

type Strategist interface {
	Run(ctx context.Context, route llm.Route, req deepdive.Request) outcome.Result[deepdive.Analysis]
}

type ArticlePipeline interface {
	Run(ctx context.Context, route llm.Route, req article.Request, emit func(article.Event) error) error
}

type WebsiteData interface {
	Overview(ctx context.Context, site seo.Website, loc seo.Location) (websitedata.Snapshot, error)
	UpdateMetrics(ctx context.Context, site seo.Website, loc seo.Location) (websitedata.Snapshot, error)
	RankedKeywords(ctx context.Context, site seo.Website, loc seo.Location, limit int) (websitedata.RankedKeywordsView, error)
	AnalyzeKeywordRecommendations(ctx context.Context, route llm.Route, site seo.Website, loc seo.Location, force bool) (websitedata.Recommendations, error)
}

// Store is the persistence the handlers need.
type Store interface {
	EnsureUser(ctx context.Context, id, email string) error
	OwnedWebsite(ctx context.Context, userID, id string) (seo.Website, error)

	ListWorkflows(ctx context.Context, userID string) ([]seo.WorkflowConfig, error)
	Workflow(ctx context.Context, userID, id string) (seo.WorkflowConfig, error)
	DefaultWorkflow(ctx context.Context, userID string) (seo.WorkflowConfig, error)
	CreateWorkflow(ctx context.Context, w seo.WorkflowConfig) (seo.WorkflowConfig, error)
	UpdateWorkflow(ctx context.Context, w seo.WorkflowConfig) (seo.WorkflowConfig, error)
	DeleteWorkflow(ctx context.Context, userID, id string) error

	Migrate(ctx context.Context) ([]int, error)
	MigrationStatus(ctx context.Context) ([]storage.Migration, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, header string) (auth.Principal, error)
}

type Biller interface {
	Consume(ctx context.Context, p auth.Principal, u billing.Usage) error
}

// AgentObserver records agent outcomes.
type AgentObserver interface {
	ObserveAgent(agent, status string)
}

type MetricsRecorder interface {
	AgentObserver
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

// Deps holds everything the router wires into handlers. Website and
// Store may be nil when no database is configured; their routes then
// answer 503.
type Deps struct {
	DefaultRoute   llm.Route
	Generator      KeywordGenerator
	Analyzer       RankingAnalyzer
	Miner          KeywordMiner
	Strategist     Strategist
	Articles       ArticlePipeline
	Website        WebsiteData
	Store          Store
	Auth           Authenticator
	Billing        Biller
	Metrics        MetricsRecorder
	AllowedOrigins []string
}

// NewRouter builds the HTTP API.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestIDHeader)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", llm.HeaderProvider, llm.HeaderModel},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(deps))

		r.Post("/generate-keywords", handleGenerateKeywords(deps))
		r.Post("/keyword-mining", handleKeywordMining(deps))
		r.Post("/deep-dive-strategy", handleDeepDive(deps))
		r.Post("/visual-article", handleVisualArticle(deps))

		r.Route("/website-data", func(r chi.Router) {
			r.Use(requireDB(deps))
			r.Post("/overview", handleWebsiteOverview(deps))
			r.Post("/update-metrics", handleUpdateMetrics(deps))
			r.Post("/ranked-keywords", handleRankedKeywords(deps))
			r.Post("/analyze-keyword-recommendations", handleKeywordRecommendations(deps))
		})

		r.Route("/workflow-configs", func(r chi.Router) {
			r.Use(requireDB(deps))
			r.Get("/", handleListWorkflows(deps))
			r.Post("/", handleCreateWorkflow(deps))
			r.Get("/{id}", handleGetWorkflow(deps))
			r.Put("/{id}", handleUpdateWorkflow(deps))
			r.Delete("/{id}", handleDeleteWorkflow(deps))
		})

		r.Route("/migrations", func(r chi.Router) {
			r.Use(requireDB(deps))
			r.Post("/run", handleRunMigrations(deps))
			r.Get("/status", handleMigrationStatus(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// requestIDHeader echoes chi's request id to the client.
func requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-Id", id)
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// authenticate resolves the bearer credential into a principal and records
// the user so foreign keys hold.
func authenticate(deps Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.Auth == nil {
				httpError(w, http.StatusUnauthorized, errUnauthorized, "authentication is not configured")
				return
			}
			p, err := deps.Auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeErr(w, err)
				return
			}
			if deps.Store != nil {
				if err := deps.Store.EnsureUser(r.Context(), p.UserID, p.Email); err != nil {
					slog.Warn("recording user", "user_id", p.UserID, "error", err)
				}
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func requireDB(deps Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if deps.Store == nil {
				httpError(w, http.StatusServiceUnavailable, errInternal, "database is not configured")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}

// charge consumes credits for the request, writing the error response when
// it fails. Agent handlers charge once they hold a usable result, so failed
// runs are free.
func charge(w http.ResponseWriter, r *http.Request, deps Deps, credits int, op, desc string) bool {
	if deps.Billing == nil {
		return true
	}
	err := deps.Billing.Consume(r.Context(), principal(r), billing.Usage{Credits: credits, Operation: op, Description: desc})
	if err != nil {
		writeErr(w, err)
		return false
	}
	return true
}

// workflow resolves the config named by id, or the user's default when id is
// empty. A missing default is not an error.
func workflow(r *http.Request, deps Deps, id string) (*seo.WorkflowConfig, error) {
	if deps.Store == nil {
		return nil, nil
	}
	p := principal(r)
	if id != "" {
		w, err := deps.Store.Workflow(r.Context(), p.UserID, id)
		if err != nil {
			return nil, err
		}
		return &w, nil
	}
	w, err := deps.Store.DefaultWorkflow(r.Context(), p.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

func observe(deps Deps, agent string, status outcome.Status) {
	if deps.Metrics != nil {
		deps.Metrics.ObserveAgent(agent, string(status))
	}
}
