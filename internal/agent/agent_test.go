package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-research/internal/agent/mocks"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTask(agentType model.AgentType, taskType model.TaskType, params model.Params) model.Task {
	return model.Task{ID: "task-1", AgentType: agentType, TaskType: taskType, Status: model.TaskStatusRunning, Params: params}
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(Deps{})
	for _, at := range []model.AgentType{
		model.AgentSearch, model.AgentCrawl, model.AgentExtract, model.AgentAnalyze,
		model.AgentStore, model.AgentDataIngestion, model.AgentOrchestration,
	} {
		a, err := r.Get(at)
		require.NoError(t, err, at)
		assert.Equal(t, at, a.Type())
	}

	_, err := r.Get("web_crawler")
	assert.ErrorIs(t, err, model.ErrUnknownAgentType)
}

func TestAgents_RejectUnsupportedTaskType(t *testing.T) {
	st := newTestStore(t)
	for _, a := range NewDefaultRegistry(Deps{}).agents {
		_, err := a.Process(context.Background(), st, newTask(a.Type(), "bogus", nil))
		assert.ErrorIs(t, err, model.ErrUnsupportedTaskType, a.Type())
	}
}

func TestDone_Detach(t *testing.T) {
	assert.False(t, Done(model.Result{"a": 1}).KeepRunning)
	assert.True(t, Detach(model.Result{"a": 1}).KeepRunning)
}

// --- Search ---

func TestSearch_StoresRankedHits(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sq, err := st.CreateSearchQuery(ctx, "Acme Inc", "Acme Inc")
	require.NoError(t, err)

	searcher := mocks.NewMockSearcher(t)
	searcher.On("Search", mock.Anything, "Acme Inc", 3).Return([]model.SearchHit{
		{Title: "Acme", URL: "https://acme.com", Snippet: "Widgets"},
		{Title: strings.Repeat("é", 300), URL: "https://news.example/acme", Snippet: strings.Repeat("x", 2000)},
	}, nil)

	out, err := NewSearch(Deps{Searcher: searcher}).Process(ctx, st, newTask(model.AgentSearch, model.TaskWebSearch,
		model.Params{"query": "Acme Inc", "search_query_id": sq.ID, "max_results": float64(3)}))
	require.NoError(t, err)
	assert.False(t, out.KeepRunning)
	assert.Equal(t, "success", out.Result.Status())
	assert.Equal(t, 2, out.Result["results_stored_count"])
	assert.Equal(t, sq.ID, out.Result["search_query_id"])

	results, err := st.ListSearchResults(ctx, sq.ID, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, 2, results[1].Rank)
	assert.Len(t, results[1].Title, 510, "two-byte runes are kept whole")
	assert.Len(t, results[1].Snippet, 1023)

	got, err := st.GetSearchQuery(ctx, sq.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ResultCount)
}

func TestSearch_QueryFallsBackToRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sq, err := st.CreateSearchQuery(ctx, "Globex", "")
	require.NoError(t, err)

	searcher := mocks.NewMockSearcher(t)
	searcher.On("Search", mock.Anything, "Globex", 5).Return(nil, nil)

	out, err := NewSearch(Deps{Searcher: searcher}).Process(ctx, st,
		newTask(model.AgentSearch, model.TaskWebSearch, model.Params{"search_query_id": sq.ID}))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Result["results_stored_count"])
}

func TestSearch_MissingQueryRecord(t *testing.T) {
	st := newTestStore(t)
	_, err := NewSearch(Deps{Searcher: mocks.NewMockSearcher(t)}).Process(context.Background(), st,
		newTask(model.AgentSearch, model.TaskWebSearch, model.Params{"query": "x", "search_query_id": "nope"}))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSearch_CollaboratorError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sq, err := st.CreateSearchQuery(ctx, "Acme", "")
	require.NoError(t, err)

	searcher := mocks.NewMockSearcher(t)
	searcher.On("Search", mock.Anything, "Acme", 5).Return(nil, model.CollaboratorError("search", errors.New("down")))

	_, err = NewSearch(Deps{Searcher: searcher}).Process(ctx, st,
		newTask(model.AgentSearch, model.TaskWebSearch, model.Params{"query": "Acme", "search_query_id": sq.ID}))
	assert.ErrorIs(t, err, model.ErrCollaborator)
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abc", 5))
	assert.Equal(t, "ab", truncateBytes("abc", 2))
	assert.Equal(t, "a", truncateBytes("aé", 2))
	assert.Equal(t, "", truncateBytes("日本", 2))
}

// --- Crawl ---

func seedSearchResult(t *testing.T, st *store.SQLiteStore) model.SearchResult {
	t.Helper()
	ctx := context.Background()
	sq, err := st.CreateSearchQuery(ctx, "Acme", "")
	require.NoError(t, err)
	_, err = st.AddSearchResults(ctx, sq.ID, []model.SearchResult{{Title: "Acme", URL: "https://acme.com", Rank: 1}})
	require.NoError(t, err)
	results, err := st.ListSearchResults(ctx, sq.ID, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestCrawl_SuccessTruncatesAndMarks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sr := seedSearchResult(t, st)

	text := strings.Repeat("a", 6000)
	fetcher := mocks.NewMockFetcher(t)
	fetcher.On("Fetch", mock.Anything, "https://acme.com", 30*time.Second).
		Return(&model.CrawledPage{URL: "https://acme.com", Title: "Acme", Text: text}, nil)

	out, err := NewCrawl(Deps{Fetcher: fetcher}).Process(ctx, st, newTask(model.AgentCrawl, model.TaskCrawlURL,
		model.Params{"url": "https://acme.com", "search_result_id": sr.ID}))
	require.NoError(t, err)

	assert.Equal(t, "success", out.Result.Status())
	assert.Equal(t, "Acme", out.Result["title"])
	assert.Equal(t, 6000, out.Result["content_length"])
	assert.Equal(t, strings.Repeat("a", 5000)+"... (truncated)", out.Result["full_content_limited"])
	assert.Equal(t, strings.Repeat("a", 200)+"...", out.Result["extracted_content_snippet"])

	results, err := st.ListSearchResults(ctx, sr.QueryID, false)
	require.NoError(t, err)
	assert.True(t, results[0].IsProcessed)
	assert.True(t, results[0].ProcessOK)
}

func TestCrawl_ShortPageKeptWhole(t *testing.T) {
	st := newTestStore(t)
	fetcher := mocks.NewMockFetcher(t)
	fetcher.On("Fetch", mock.Anything, "https://acme.com", mock.Anything).
		Return(&model.CrawledPage{Title: "Acme", Text: "Acme makes widgets."}, nil)

	out, err := NewCrawl(Deps{Fetcher: fetcher}).Process(context.Background(), st,
		newTask(model.AgentCrawl, model.TaskCrawlURL, model.Params{"url": "https://acme.com"}))
	require.NoError(t, err)
	assert.Equal(t, "Acme makes widgets.", out.Result["full_content_limited"])
	assert.Equal(t, "Acme makes widgets.", out.Result["extracted_content_snippet"])
}

func TestCrawl_FetchErrorAndFailureHook(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sr := seedSearchResult(t, st)

	fetcher := mocks.NewMockFetcher(t)
	fetcher.On("Fetch", mock.Anything, "https://acme.com", mock.Anything).
		Return(nil, model.CollaboratorError("scrape", errors.New("blocked")))

	c := NewCrawl(Deps{Fetcher: fetcher})
	task := newTask(model.AgentCrawl, model.TaskCrawlURL, model.Params{"url": "https://acme.com", "search_result_id": sr.ID})
	_, err := c.Process(ctx, st, task)
	require.ErrorIs(t, err, model.ErrCollaborator)

	var hook FailureHook = c
	require.NoError(t, hook.OnFailure(ctx, st, task, err))

	results, err := st.ListSearchResults(ctx, sr.QueryID, false)
	require.NoError(t, err)
	assert.True(t, results[0].IsProcessed)
	assert.False(t, results[0].ProcessOK)
}

func TestCrawl_MissingSearchResultIgnored(t *testing.T) {
	st := newTestStore(t)
	c := NewCrawl(Deps{})
	task := newTask(model.AgentCrawl, model.TaskCrawlURL, model.Params{"url": "https://acme.com", "search_result_id": "gone"})
	assert.NoError(t, c.OnFailure(context.Background(), st, task, errors.New("x")))
	assert.NoError(t, c.OnFailure(context.Background(), st, newTask(model.AgentCrawl, model.TaskCrawlURL, nil), errors.New("x")))
}

func TestCrawl_RequiresURL(t *testing.T) {
	st := newTestStore(t)
	_, err := NewCrawl(Deps{}).Process(context.Background(), st, newTask(model.AgentCrawl, model.TaskCrawlURL, model.Params{}))
	assert.ErrorIs(t, err, model.ErrInvalidParams)
}

// --- Extract ---

func TestExtract_Success(t *testing.T) {
	completer := mocks.NewMockCompleter(t)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Acme raised $10M") && strings.Contains(p, "company Acme Inc")
	})).Return("```json\n{\"company_name_mentioned\":\"Acme\",\"summary\":\"Acme raised money.\",\"metrics\":[{\"metric_type\":\"funding\",\"value\":10000000}],\"events\":[]}\n```", nil)

	out, err := NewExtract(Deps{Completer: completer}).Process(context.Background(), nil, newTask(model.AgentExtract, model.TaskExtractFromContent,
		model.Params{"full_content_limited": "Acme raised $10M", "source_url": "https://acme.com", "original_search_result_id": "sr-1", "company_name": "Acme Inc"}))
	require.NoError(t, err)

	assert.Equal(t, "success", out.Result.Status())
	assert.Equal(t, "https://acme.com", out.Result["source_url"])
	assert.Equal(t, "sr-1", out.Result["original_search_result_id"])
	data, ok := out.Result["extracted_data"].(model.ExtractedData)
	require.True(t, ok)
	assert.Equal(t, "Acme", data.CompanyNameMentioned)
	require.Len(t, data.Metrics, 1)
	assert.Equal(t, 10_000_000.0, *data.Metrics[0].Value)
}

func TestExtract_SkipsEmptyContent(t *testing.T) {
	out, err := NewExtract(Deps{Completer: mocks.NewMockCompleter(t)}).Process(context.Background(), nil,
		newTask(model.AgentExtract, model.TaskExtractFromContent, model.Params{"content": ""}))
	require.NoError(t, err)
	assert.Equal(t, "skipped", out.Result.Status())
}

func TestExtract_UnparseableReplyIsEmptySuccess(t *testing.T) {
	completer := mocks.NewMockCompleter(t)
	completer.On("Complete", mock.Anything, mock.Anything).Return("I could not find anything.", nil)

	out, err := NewExtract(Deps{Completer: completer}).Process(context.Background(), nil,
		newTask(model.AgentExtract, model.TaskExtractFromContent, model.Params{"content": "text"}))
	require.NoError(t, err)
	assert.Equal(t, "success", out.Result.Status())
	assert.Equal(t, "Unknown", out.Result["source_url"])
	assert.True(t, out.Result["extracted_data"].(model.ExtractedData).Empty())
}

func TestExtract_CompleterError(t *testing.T) {
	completer := mocks.NewMockCompleter(t)
	completer.On("Complete", mock.Anything, mock.Anything).Return("", model.CollaboratorError("llm", errors.New("overloaded")))

	_, err := NewExtract(Deps{Completer: completer}).Process(context.Background(), nil,
		newTask(model.AgentExtract, model.TaskExtractFromContent, model.Params{"content": "text"}))
	assert.ErrorIs(t, err, model.ErrCollaborator)
}

// --- Analyze ---

func TestAnalyze_ScoresFilteredCompanies(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	strategy, err := st.CreateStrategy(ctx, model.Strategy{Name: "SaaS growth", Criteria: model.StrategyCriteria{
		IndustryFocus: []string{"software"},
		RevenueRange:  &model.Range{Min: 10_000_000, Max: 100_000_000},
	}})
	require.NoError(t, err)

	acme, err := st.CreateCompany(ctx, model.Company{Name: "Acme", Industry: "Software", Location: "Austin, TX"})
	require.NoError(t, err)
	_, err = st.CreateCompany(ctx, model.Company{Name: "Globex", Industry: "Software", Location: "Ohio"})
	require.NoError(t, err)
	require.NoError(t, st.UpsertMetric(ctx, model.FinancialMetric{CompanyID: acme.ID, MetricType: "revenue", Value: 20_000_000, Period: "2024"}))

	out, err := NewAnalyze().Process(ctx, st, newTask(model.AgentAnalyze, model.TaskCompanyAnalysis, model.Params{
		"strategy_id": strategy.ID,
		"filters":     map[string]any{"industry": "Software", "location": "TX"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result["analyzed_count"])
	results := out.Result["results"].([]map[string]any)
	assert.Equal(t, "Acme", results[0]["company_name"])
	assert.Equal(t, 1.0, results[0]["score"])

	saved, err := st.ListAnalysisResults(ctx, strategy.ID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, acme.ID, saved[0].CompanyID)
	assert.Len(t, saved[0].ScoreBreakdown, 2)
}

func TestAnalyze_MissingStrategy(t *testing.T) {
	st := newTestStore(t)
	_, err := NewAnalyze().Process(context.Background(), st,
		newTask(model.AgentAnalyze, model.TaskCompanyAnalysis, model.Params{"strategy_id": "missing"}))
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = NewAnalyze().Process(context.Background(), st,
		newTask(model.AgentAnalyze, model.TaskCompanyAnalysis, model.Params{}))
	assert.ErrorIs(t, err, model.ErrInvalidParams)
}

// --- Store ---

func storeParams(companyID string, overwrite bool, source string) model.Params {
	return model.Params{
		"company_id": companyID,
		"overwrite":  overwrite,
		"source_url": source,
		"extracted_data": map[string]any{
			"summary": "Acme makes widgets.",
			"metrics": []any{
				map[string]any{"metric_type": "revenue", "value": 5e6, "period": "2024"},
				map[string]any{"metric_type": "employees", "value": nil},
			},
			"events": []any{
				map[string]any{"event_type": "funding_round", "details": "Series A", "date": "2024-01-01"},
			},
		},
	}
}

func TestStorage_AppendIsIdempotentForLinks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme"})
	require.NoError(t, err)

	a := NewStorage()
	out, err := a.Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, storeParams(c.ID, false, "https://acme.com")))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result["metrics_stored"])
	assert.Equal(t, 1, out.Result["events_stored"])
	assert.Equal(t, 1, out.Result["links_stored"])

	out, err = a.Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, storeParams(c.ID, false, "https://acme.com")))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Result["links_stored"])

	sources, err := st.ListSources(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
	metrics, err := st.ListMetrics(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, metrics, 1, "metrics upsert on company, type and period")

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme makes widgets.", got.Overview, "an identical summary is not appended twice")
}

func TestStorage_AppendAddsNewParagraphOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme", Overview: "Founded in 1990."})
	require.NoError(t, err)

	a := NewStorage()
	for range 2 {
		_, err = a.Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, storeParams(c.ID, false, "https://acme.com")))
		require.NoError(t, err)
	}

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Founded in 1990.\n\nAcme makes widgets.", got.Overview)
}

func TestStorage_EmptyDataStillRecordsSource(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme"})
	require.NoError(t, err)

	out, err := NewStorage().Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, model.Params{
		"company_id":     c.ID,
		"source_url":     "https://acme.com/careers",
		"extracted_data": model.ExtractedData{},
	}))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Result["metrics_stored"])
	assert.Equal(t, 1, out.Result["links_stored"])

	sources, err := st.ListSources(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://acme.com/careers", sources[0].URL)

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Overview)
}

func TestStorage_OverwriteReplacesLinksAndOverview(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme", Overview: "old"})
	require.NoError(t, err)
	_, err = st.AddSource(ctx, c.ID, "https://old.example")
	require.NoError(t, err)

	a := NewStorage()
	for range 2 {
		out, err := a.Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, storeParams(c.ID, true, "https://acme.com")))
		require.NoError(t, err)
		assert.Equal(t, 1, out.Result["links_stored"])
	}

	sources, err := st.ListSources(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://acme.com", sources[0].URL)

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme makes widgets.", got.Overview)
}

func TestStorage_Validation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a := NewStorage()

	_, err := a.Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, model.Params{}))
	assert.ErrorIs(t, err, model.ErrInvalidParams)

	_, err = a.Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, storeParams("missing", false, "")))
	assert.ErrorIs(t, err, model.ErrNotFound)

	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme"})
	require.NoError(t, err)
	_, err = a.Process(ctx, st, newTask(model.AgentStore, model.TaskStoreExtractedData, model.Params{"company_id": c.ID}))
	assert.ErrorIs(t, err, model.ErrInvalidParams)
}

// --- Ingestion ---

func TestIngestion_StrategyDocument(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc := `
name: Midwest industrials
description: Buy-and-build
criteria:
  industry_focus: [Manufacturing]
  revenue_range: {min: 5000000, max: 50000000}
  growth_criteria: {min_annual_growth: 5}
  weights: {industry_match: 2}
`
	out, err := NewIngestion().Process(ctx, st, newTask(model.AgentDataIngestion, model.TaskProcessStrategy, model.Params{"document": doc}))
	require.NoError(t, err)
	id, _ := out.Result["strategy_id"].(string)
	require.NotEmpty(t, id)

	got, err := st.GetStrategy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Midwest industrials", got.Name)
	assert.Equal(t, []string{"Manufacturing"}, got.Criteria.IndustryFocus)
	assert.Equal(t, 50_000_000.0, got.Criteria.RevenueRange.Max)
	assert.Equal(t, 5.0, got.Criteria.Growth.MinAnnualGrowth)
	assert.Equal(t, 2.0, got.Criteria.Weights["industry_match"])
}

func TestStrategyFromParams(t *testing.T) {
	st, err := StrategyFromParams(model.Params{"document": `{"name": "JSON doc", "criteria": {"geographic_focus": ["Texas"]}}`})
	require.NoError(t, err)
	assert.Equal(t, "JSON doc", st.Name)
	assert.Equal(t, []string{"Texas"}, st.Criteria.GeographicFocus)

	st, err = StrategyFromParams(model.Params{"strategy": map[string]any{"name": "Object", "criteria": map[string]any{"growth_criteria": map[string]any{"min_annual_growth": 10}}}})
	require.NoError(t, err)
	assert.Equal(t, 10.0, st.Criteria.Growth.MinAnnualGrowth)

	_, err = StrategyFromParams(model.Params{"document": "description: no name"})
	assert.ErrorIs(t, err, model.ErrInvalidParams)
	_, err = StrategyFromParams(model.Params{"document": "name: [unterminated"})
	assert.ErrorIs(t, err, model.ErrInvalidParams)
	_, err = StrategyFromParams(model.Params{})
	assert.ErrorIs(t, err, model.ErrInvalidParams)
}

func TestIngestion_CSVAcknowledged(t *testing.T) {
	out, err := NewIngestion().Process(context.Background(), nil,
		newTask(model.AgentDataIngestion, model.TaskProcessCSV, model.Params{"file_path": "companies.csv"}))
	require.NoError(t, err)
	assert.Equal(t, "success", out.Result.Status())
}

// --- Orchestration ---

func TestOrchestration_StartsProfile(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme Inc"})
	require.NoError(t, err)

	out, err := NewOrchestration(Deps{}).Process(ctx, st,
		newTask(model.AgentOrchestration, model.TaskGenerateFullProfile, model.Params{"company_id": c.ID}))
	require.NoError(t, err)
	assert.True(t, out.KeepRunning)
	assert.Equal(t, "started", out.Result.Status())

	searchID := out.Result["search_task_id"].(string)
	search, err := st.GetTask(ctx, searchID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, search.Status)
	assert.Equal(t, "Acme Inc", search.Params.String("query"))
	assert.Equal(t, out.Result["search_query_id"], search.Params.String("search_query_id"))
	assert.Equal(t, 5, search.Params.Int("max_results", 0))

	tasks, err := st.ListTasks(ctx, model.TaskFilter{AgentType: model.AgentSearch})
	require.NoError(t, err)
	assert.Len(t, tasks, 1, "exactly one child search task")

	run, err := st.GetProfileRun(ctx, out.Result["profile_run_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSearching, run.Phase)
	assert.Equal(t, "task-1", run.ParentTaskID)
	assert.Equal(t, searchID, run.SearchTaskID)
}

func TestOrchestration_MissingCompany(t *testing.T) {
	st := newTestStore(t)
	_, err := NewOrchestration(Deps{}).Process(context.Background(), st,
		newTask(model.AgentOrchestration, model.TaskGenerateFullProfile, model.Params{"company_id": "nope"}))
	assert.ErrorIs(t, err, model.ErrNotFound)
}
