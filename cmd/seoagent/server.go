package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/api"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/article"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/auth"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/billing"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/config"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/creative"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/dataforseo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/deepdive"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/firecrawl"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/keywords"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/llm"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/metrics"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/mining"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/ranking"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/scrape"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seo"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/seranking"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/serpcache"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/storage"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/thordata"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/websitedata"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/writer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// setupLogging installs the default slog handler at the configured level.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

type searcher interface {
	Search(ctx context.Context, q seo.SERPQuery) (seo.SERPResult, error)
}

type keywordMetrics interface {
	Fetch(ctx context.Context, keywords []string, source string) (map[string]seo.SERankingData, error)
}

// agents holds the LLM-backed components shared by serve and mcp.
type agents struct {
	route      llm.Route
	llm        *llm.Client
	generator  *keywords.Generator
	analyzer   *ranking.Analyzer
	miner      *mining.Miner
	strategist *deepdive.Strategist
	articles   *article.Pipeline
	closers    []func()
}

func (a *agents) Close() {
	for _, c := range a.closers {
		c()
	}
}

func defaultRoute(cfg config.Config) llm.Route {
	p, ok := llm.ParseProvider(cfg.LLM.DefaultProvider)
	if !ok {
		p = llm.Provider302
	}
	return llm.Route{Provider: p, Model: cfg.LLM.Model}
}

// buildAgents wires the LLM client and the external data sources into the
// agents. Data sources without credentials are left out; agents report their
// absence as a degradation.
func buildAgents(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*agents, error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, err
	}
	route := defaultRoute(cfg)
	client, err := llm.NewClient(map[llm.Provider]llm.ProviderConfig{
		llm.Provider302:  {BaseURL: cfg.LLM.ProxyURL, APIKey: cfg.LLM.APIKey},
		llm.ProviderTuzi: {BaseURL: cfg.LLM.TuziProxyURL, APIKey: cfg.LLM.TuziAPIKey},
	}, route, llm.WithObserver(m))
	if err != nil {
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}

	a := &agents{route: route, llm: client}
	observe := upstream.WithObserver(m)

	var serp searcher
	if cfg.ThorData.APIToken != "" {
		serp = thordata.New(cfg.ThorData.APIToken, cfg.ThorData.APIURL, observe)
		if cfg.Redis.URL != "" {
			rdb, err := serpcache.Connect(ctx, cfg.Redis.URL)
			if err != nil {
				slog.Warn("SERP cache disabled", "error", err)
			} else {
				a.closers = append(a.closers, func() { rdb.Close() })
				ttl := cfg.Redis.SERPTTL
				if ttl <= 0 {
					ttl = 24 * time.Hour
				}
				serp = serpcache.New(serp, rdb, ttl, serpcache.WithMetrics(m))
				slog.Info("SERP cache enabled", "ttl", ttl)
			}
		}
	} else {
		slog.Warn("THORDATA_API_TOKEN not set, search results unavailable")
	}

	var kwMetrics keywordMetrics
	if cfg.SERanking.APIKey != "" {
		kwMetrics = seranking.New(cfg.SERanking.APIKey, cfg.SERanking.APIURL, seranking.WithUpstream(observe))
	} else {
		slog.Warn("SERANKING_API_KEY not set, keyword metrics unavailable")
	}

	fetchers := scrape.Chain{}
	if cfg.Firecrawl.APIKey != "" {
		fetchers = append(fetchers, firecrawl.New(cfg.Firecrawl.APIKey, cfg.Firecrawl.APIURL, observe))
	}
	fetchers = append(fetchers, scrape.NewLocal(nil))

	var rankOpts []ranking.Option
	if serp != nil {
		rankOpts = append(rankOpts, ranking.WithSearcher(serp))
	}

	a.generator = keywords.NewGenerator(client)
	a.analyzer = ranking.NewAnalyzer(client, rankOpts...)
	a.miner = mining.NewMiner(a.generator, a.analyzer, kwMetrics)
	a.strategist = deepdive.NewStrategist(client, serp, fetchers, kwMetrics)
	a.articles = article.NewPipeline(a.strategist, writer.New(client, writer.NewComposer(0)), creative.New(client))
	return a, nil
}

// openStore connects to Postgres and applies pending migrations when
// auto-migrate is on.
func openStore(ctx context.Context, cfg config.Config) (*storage.Store, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, cfg.Database.URL, cfg.Database.PoolMax, cfg.Database.PoolMin)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	if cfg.Database.AutoMigrate {
		applied, err := store.Migrate(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("applying migrations: %w", err)
		}
		if len(applied) > 0 {
			slog.Info("applied migrations", "versions", applied)
		}
	}
	return store, nil
}

func runServer() error {
	fmt.Fprintln(os.Stderr, versionString())

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	ag, err := buildAgents(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer ag.Close()

	bill := billing.New(cfg.MainApp.URL, upstream.WithObserver(m))
	var keys auth.KeyVerifier
	if bill.Enabled() {
		keys = bill
	} else {
		slog.Warn("MAIN_APP_URL not set, credits are not charged and API keys are rejected")
	}
	if cfg.Auth.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, bearer tokens cannot be verified")
	}

	deps := api.Deps{
		DefaultRoute:   ag.route,
		Generator:      ag.generator,
		Analyzer:       ag.analyzer,
		Miner:          ag.miner,
		Strategist:     ag.strategist,
		Articles:       ag.articles,
		Auth:           auth.New(cfg.Auth.JWTSecret, keys),
		Billing:        bill,
		Metrics:        m,
		AllowedOrigins: cfg.AllowedOrigins(),
	}

	if cfg.Database.URL != "" {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Store = store

		if cfg.DataForSEO.Login != "" {
			source := dataforseo.New(cfg.DataForSEO.Login, cfg.DataForSEO.Password, cfg.DataForSEO.APIURL, upstream.WithObserver(m))
			svc := websitedata.NewService(store, source, ag.llm,
				websitedata.WithTTL(cfg.CacheTTL()),
				websitedata.WithMetrics(m),
			)
			deps.Website = svc

			if every := cfg.Cache.RefreshInterval; every > 0 {
				go websitedata.NewRefresher(store, svc, every).Run(ctx)
				slog.Info("website data refresher started", "interval", every)
			}
		} else {
			slog.Warn("DATAFORSEO_LOGIN not set, website data routes disabled")
		}
	} else {
		slog.Warn("database URL not set, website data and workflow routes disabled")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("seoagent listening", "addr", addr, "provider", ag.route.Provider, "model", ag.route.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Article streams can run for minutes; give them a bounded grace period.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
