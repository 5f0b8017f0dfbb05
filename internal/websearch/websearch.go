// Package websearch adapts Jina Search to the search agent's Searcher.
package websearch

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/resilience"
	"github.com/sells-group/company-research/pkg/jina"
)

// Jina runs web searches through the Jina Search API.
type Jina struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJina creates a searcher. breakers may be nil.
func NewJina(client jina.Client, breakers *resilience.ServiceBreakers) *Jina {
	s := &Jina{client: client}
	if breakers != nil {
		s.breaker = breakers.Get("search")
	}
	return s
}

// Search returns at most maxResults hits for query in the provider's
// order. Hits without a URL are dropped.
func (s *Jina) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	call := func(ctx context.Context) (*jina.SearchResponse, error) {
		return s.client.Search(ctx, query)
	}
	var (
		resp *jina.SearchResponse
		err  error
	)
	if s.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, s.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return nil, model.CollaboratorError("websearch", err)
	}

	hits := make([]model.SearchHit, 0, len(resp.Data))
	for _, r := range resp.Data {
		if maxResults > 0 && len(hits) == maxResults {
			break
		}
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		snippet := r.Content
		if strings.TrimSpace(snippet) == "" {
			snippet = r.Description
		}
		hits = append(hits, model.SearchHit{Title: r.Title, URL: r.URL, Snippet: snippet})
	}

	zap.L().Debug("websearch: results",
		zap.String("query", query),
		zap.Int("returned", len(resp.Data)),
		zap.Int("kept", len(hits)),
	)
	return hits, nil
}
