package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/agent"
	"github.com/sells-group/company-research/internal/config"
	"github.com/sells-group/company-research/internal/dispatch"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/resilience"
	"github.com/sells-group/company-research/internal/scrape"
	"github.com/sells-group/company-research/internal/store"
	"github.com/sells-group/company-research/internal/websearch"
	"github.com/sells-group/company-research/pkg/jina"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "research.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// engine is the store plus a dispatcher with all agents wired to their
// collaborators.
type engine struct {
	Store      store.Store
	Dispatcher *dispatch.Dispatcher
	cache      *scrape.PageCache
}

func newEngine(ctx context.Context, mode string) (*engine, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	deps, cache, err := buildDeps(cfg)
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	d := dispatch.New(st, agent.NewDefaultRegistry(deps),
		dispatch.WithConcurrency(cfg.Dispatch.Concurrency),
		dispatch.WithMetrics(dispatch.DefaultMetrics()),
	)
	return &engine{Store: st, Dispatcher: d, cache: cache}, nil
}

// buildDeps wires the search, crawl and completion collaborators.
func buildDeps(cfg *config.Config) (agent.Deps, *scrape.PageCache, error) {
	breakers := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())

	jc := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
	)

	cache, err := scrape.NewPageCache(cfg.Crawl.CacheMaxBytes, time.Duration(cfg.Crawl.CacheTTLMinutes)*time.Minute)
	if err != nil {
		return agent.Deps{}, nil, eris.Wrap(err, "init page cache")
	}
	scrapers := []scrape.Scraper{scrape.NewLocalScraper(cfg.Crawl.RatePerHost)}
	if cfg.Crawl.UseJinaFallback {
		scrapers = append(scrapers, scrape.NewJinaAdapter(jc))
	}

	completer, err := llm.New(cfg, breakers)
	if err != nil {
		cache.Close()
		return agent.Deps{}, nil, eris.Wrap(err, "init llm")
	}

	deps := agent.DepsFromConfig(cfg)
	deps.Searcher = websearch.NewJina(jc, breakers)
	deps.Fetcher = scrape.NewChain(scrapers, scrape.WithCache(cache), scrape.WithBreakers(breakers))
	deps.Completer = completer
	return deps, cache, nil
}

func (e *engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}
