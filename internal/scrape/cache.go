package scrape

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
)

// PageCache keeps recently crawled pages in memory keyed by URL, so a
// re-crawl of the same search hit inside the TTL costs nothing.
type PageCache struct {
	c   *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// NewPageCache creates a cache bounded by maxCostBytes of encoded pages.
func NewPageCache(maxCostBytes int64, ttl time.Duration) (*PageCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create page cache")
	}
	return &PageCache{c: c, ttl: ttl}, nil
}

// Get returns the cached page for url.
func (p *PageCache) Get(url string) (*model.CrawledPage, bool) {
	if p == nil {
		return nil, false
	}
	raw, ok := p.c.Get(url)
	if !ok {
		return nil, false
	}
	var page model.CrawledPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false
	}
	return &page, true
}

// Set stores page under url. Ristretto admits asynchronously; Wait flushes.
func (p *PageCache) Set(url string, page *model.CrawledPage) {
	if p == nil || page == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	p.c.SetWithTTL(url, raw, int64(len(raw)), p.ttl)
}

// Wait blocks until buffered writes are applied.
func (p *PageCache) Wait() {
	if p != nil {
		p.c.Wait()
	}
}

// Close releases the cache.
func (p *PageCache) Close() {
	if p != nil {
		p.c.Close()
	}
}
