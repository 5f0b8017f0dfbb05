package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
)

// outcome decides the state a task settles in when it is created.
// Returning pending keeps the task unfinished forever.
type outcome func(agentType model.AgentType, params model.Params) (model.TaskStatus, model.Result, string)

func succeedAll(agentType model.AgentType, params model.Params) (model.TaskStatus, model.Result, string) {
	switch agentType {
	case model.AgentExtract:
		return model.TaskStatusCompleted, model.Result{
			"status":         "success",
			"source_url":     params.String("source_url"),
			"extracted_data": map[string]any{"summary": "Acme builds widgets.", "metrics": []any{}, "events": []any{}},
		}, ""
	case model.AgentCrawl:
		return model.TaskStatusCompleted, model.Result{
			"status":               "success",
			"url":                  params.String("url"),
			"full_content_limited": "page text",
		}, ""
	}
	return model.TaskStatusCompleted, model.Result{"status": "success"}, ""
}

// fakeAPI is an in-memory TaskAPI whose tasks settle immediately.
type fakeAPI struct {
	mu        sync.Mutex
	seq       int
	tasks     map[string]*model.Task
	polls     map[string]int
	results   []model.SearchResult
	outcome   outcome
	processed []string
	stored    []model.SourcedData

	getErr func(id string, n int) error
}

func newFakeAPI(results []model.SearchResult, o outcome) *fakeAPI {
	if o == nil {
		o = succeedAll
	}
	return &fakeAPI{
		tasks:   make(map[string]*model.Task),
		polls:   make(map[string]int),
		results: results,
		outcome: o,
	}
}

func (f *fakeAPI) add(agentType model.AgentType, taskType model.TaskType, params model.Params) string {
	f.seq++
	id := fmt.Sprintf("%s-%d", agentType, f.seq)
	status, result, errMsg := f.outcome(agentType, params)
	f.tasks[id] = &model.Task{ID: id, AgentType: agentType, TaskType: taskType, Status: status, Params: params, Result: result, Error: errMsg}
	return id
}

func (f *fakeAPI) set(id string, status model.TaskStatus, result model.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = status
	f.tasks[id].Result = result
}

func (f *fakeAPI) pollsOf(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[id]
}

func (f *fakeAPI) CreateTask(_ context.Context, agentType model.AgentType, taskType model.TaskType, params model.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.add(agentType, taskType, params), nil
}

func (f *fakeAPI) CreateSearch(_ context.Context, query, _ string, maxResults int) (model.SearchHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.add(model.AgentSearch, model.TaskWebSearch, model.Params{"query": query, "max_results": maxResults})
	return model.SearchHandle{SearchQueryID: "query-1", TaskID: id}, nil
}

func (f *fakeAPI) GetTask(_ context.Context, id string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[id]++
	if f.getErr != nil {
		if err := f.getErr(id, f.polls[id]); err != nil {
			return nil, err
		}
	}
	t, ok := f.tasks[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "task %s", id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeAPI) ListTasks(context.Context, model.TaskFilter) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeAPI) ProcessTask(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeAPI) SearchResults(context.Context, string) ([]model.SearchResult, error) {
	return f.results, nil
}

func (f *fakeAPI) CrawlSearchResults(context.Context, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.results))
	for _, r := range f.results {
		ids = append(ids, f.add(model.AgentCrawl, model.TaskCrawlURL, model.Params{"url": r.URL, "search_result_id": r.ID}))
	}
	return ids, nil
}

func (f *fakeAPI) ExtractFromCrawl(_ context.Context, crawlTaskID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	crawl, ok := f.tasks[crawlTaskID]
	if !ok {
		return "", eris.Wrapf(model.ErrNotFound, "task %s", crawlTaskID)
	}
	content, _ := crawl.Result["full_content_limited"].(string)
	if crawl.Status != model.TaskStatusCompleted || content == "" {
		return "", nil
	}
	return f.add(model.AgentExtract, model.TaskExtractFromContent, model.Params{
		"content":    content,
		"source_url": crawl.Params.String("url"),
	}), nil
}

func (f *fakeAPI) StoreAggregated(_ context.Context, companyID string, items []model.SourcedData, overwrite bool) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, items...)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, f.add(model.AgentStore, model.TaskStoreExtractedData, model.Params{
			"company_id": companyID,
			"source_url": it.SourceURL,
			"overwrite":  overwrite,
		}))
	}
	return ids, nil
}

func acmeResults() []model.SearchResult {
	return []model.SearchResult{
		{ID: "sr-1", URL: "https://acme.example/about", Rank: 1},
		{ID: "sr-2", URL: "https://news.example/acme", Rank: 2},
		{ID: "sr-3", URL: "https://broken.example/acme", Rank: 3},
	}
}

// brokenCrawl fails the crawl of broken.example and succeeds everything else.
func brokenCrawl(agentType model.AgentType, params model.Params) (model.TaskStatus, model.Result, string) {
	if agentType == model.AgentCrawl && params.String("url") == "https://broken.example/acme" {
		return model.TaskStatusFailed, nil, "fetch: connection refused"
	}
	return succeedAll(agentType, params)
}
