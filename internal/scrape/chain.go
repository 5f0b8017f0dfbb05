// Package scrape fetches web pages for the crawl agent through a chain of
// scrapers with per-scraper circuit breakers and an in-memory page cache.
package scrape

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/resilience"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
	cache    *PageCache
	breakers *resilience.ServiceBreakers
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithCache serves repeat fetches from cache.
func WithCache(cache *PageCache) ChainOption {
	return func(c *Chain) { c.cache = cache }
}

// WithBreakers runs each scraper behind its own breaker from breakers.
func WithBreakers(breakers *resilience.ServiceBreakers) ChainOption {
	return func(c *Chain) { c.breakers = breakers }
}

// NewChain creates a Chain over scrapers.
func NewChain(scrapers []Scraper, opts ...ChainOption) *Chain {
	c := &Chain{scrapers: scrapers}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch returns the page at targetURL, giving the whole chain at most
// timeout. Each scraper's failure falls through to the next one.
func (c *Chain) Fetch(ctx context.Context, targetURL string, timeout time.Duration) (*model.CrawledPage, error) {
	if page, ok := c.cache.Get(targetURL); ok {
		zap.L().Debug("scrape: cache hit", zap.String("url", targetURL))
		return page, nil
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var lastErr error
	for _, s := range c.scrapers {
		result, err := c.scrape(ctx, s, targetURL)
		if err == nil && result != nil {
			c.cache.Set(targetURL, &result.Page)
			return &result.Page, nil
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = eris.Errorf("no scraper configured for %s", targetURL)
	}
	return nil, model.CollaboratorError("scrape: "+targetURL, lastErr)
}

func (c *Chain) scrape(ctx context.Context, s Scraper, targetURL string) (*Result, error) {
	if c.breakers == nil {
		return s.Scrape(ctx, targetURL)
	}
	return resilience.ExecuteVal(ctx, c.breakers.Get("scrape."+s.Name()), func(ctx context.Context) (*Result, error) {
		return s.Scrape(ctx, targetURL)
	})
}
