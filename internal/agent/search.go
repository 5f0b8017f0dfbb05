package agent

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

// Column limits of search_results, in bytes.
const (
	maxTitleBytes   = 511
	maxURLBytes     = 511
	maxSnippetBytes = 1023
)

// Search runs web searches and stores ranked hits.
type Search struct {
	searcher   Searcher
	maxResults int
}

// NewSearch creates the search agent.
func NewSearch(deps Deps) *Search {
	deps = deps.withDefaults()
	return &Search{searcher: deps.Searcher, maxResults: deps.SearchMaxResults}
}

// Type implements Agent.
func (s *Search) Type() model.AgentType { return model.AgentSearch }

// Process implements Agent.
func (s *Search) Process(ctx context.Context, q store.Queries, task model.Task) (Outcome, error) {
	if task.TaskType != model.TaskWebSearch {
		return Outcome{}, unsupported(s, task)
	}

	queryID := task.Params.String("search_query_id")
	if queryID == "" {
		return Outcome{}, missingParam(model.AgentSearch, "search_query_id")
	}
	sq, err := q.GetSearchQuery(ctx, queryID)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "search agent: load query")
	}
	query := task.Params.String("query")
	if query == "" {
		query = sq.QueryText
	}
	if query == "" {
		return Outcome{}, missingParam(model.AgentSearch, "query")
	}
	maxResults := task.Params.Int("max_results", s.maxResults)

	log := zap.L().With(zap.String("task_id", task.ID), zap.String("query", query))
	log.Info("search agent: searching", zap.Int("max_results", maxResults))

	hits, err := s.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "search agent: search")
	}

	results := make([]model.SearchResult, 0, len(hits))
	for i, h := range hits {
		results = append(results, model.SearchResult{
			QueryID: queryID,
			Title:   truncateBytes(h.Title, maxTitleBytes),
			URL:     truncateBytes(h.URL, maxURLBytes),
			Snippet: truncateBytes(h.Snippet, maxSnippetBytes),
			Rank:    i + 1,
		})
	}
	stored, err := q.AddSearchResults(ctx, queryID, results)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "search agent: store results")
	}

	log.Info("search agent: stored results", zap.Int("count", stored))
	res := success(fmt.Sprintf("Search completed and %d results stored.", stored))
	res["results_stored_count"] = stored
	res["search_query_id"] = queryID
	return Done(res), nil
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
