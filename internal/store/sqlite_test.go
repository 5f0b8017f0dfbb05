package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-research/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", withPragmas("a.db"))
	assert.Contains(t, withPragmas("file:a.db?cache=shared"), "cache=shared&_pragma=")
	assert.Equal(t, "a.db?_pragma=foreign_keys(OFF)", withPragmas("a.db?_pragma=foreign_keys(OFF)"))
}

// --- Tasks ---

func TestSQLite_TaskLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, model.AgentSearch, model.TaskWebSearch, model.Params{"query": "Acme Inc"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.NotEmpty(t, task.ID)

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", got.Params.String("query"))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.Result)

	claimed, err := st.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	again, err := st.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, again, "second claim must lose")

	ok, err := st.FinishTask(ctx, task.ID, model.TaskStatusCompleted, model.Result{"status": "success"}, "")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, got.Status)
	assert.Equal(t, "success", got.Result.Status())
	assert.Empty(t, got.Error)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(*got.StartedAt))
}

func TestSQLite_FinishTask_TerminalIsFinal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, model.AgentCrawl, model.TaskCrawlURL, nil)
	require.NoError(t, err)

	ok, err := st.FinishTask(ctx, task.ID, model.TaskStatusFailed, nil, "boom")
	require.NoError(t, err)
	assert.False(t, ok, "pending task cannot be finished")

	_, err = st.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	ok, err = st.FinishTask(ctx, task.ID, model.TaskStatusFailed, nil, "boom")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.FinishTask(ctx, task.ID, model.TaskStatusCompleted, model.Result{"status": "success"}, "")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Nil(t, got.Result)
}

func TestSQLite_FinishTask_RejectsNonTerminal(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.FinishTask(context.Background(), "x", model.TaskStatusRunning, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not terminal")
}

func TestSQLite_GetTask_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetTask(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSQLite_ListTasks_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.CreateTask(ctx, model.AgentCrawl, model.TaskCrawlURL, nil)
		require.NoError(t, err)
	}
	search, err := st.CreateTask(ctx, model.AgentSearch, model.TaskWebSearch, nil)
	require.NoError(t, err)
	_, err = st.ClaimTask(ctx, search.ID)
	require.NoError(t, err)

	crawls, err := st.ListTasks(ctx, model.TaskFilter{AgentType: model.AgentCrawl})
	require.NoError(t, err)
	assert.Len(t, crawls, 3)

	running, err := st.ListTasks(ctx, model.TaskFilter{Status: model.TaskStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, search.ID, running[0].ID)

	page, err := st.ListTasks(ctx, model.TaskFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestSQLite_DeleteTask(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, model.AgentStore, model.TaskStoreExtractedData, nil)
	require.NoError(t, err)
	require.NoError(t, st.DeleteTask(ctx, task.ID))

	err = st.DeleteTask(ctx, task.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSQLite_RecordResult_RequiresRunning(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, model.AgentOrchestration, model.TaskGenerateFullProfile, nil)
	require.NoError(t, err)

	err = st.RecordResult(ctx, task.ID, model.Result{"status": "running"})
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = st.ClaimTask(ctx, task.ID)
	require.NoError(t, err)
	require.NoError(t, st.RecordResult(ctx, task.ID, model.Result{"profile_run_id": "r1"}))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRunning, got.Status)
	assert.Equal(t, "r1", got.Result["profile_run_id"])
}

// --- Sessions ---

func TestSQLite_TxRollbackDiscardsWrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, model.AgentSearch, model.TaskWebSearch, nil)
	require.NoError(t, err)
	_, err = st.ClaimTask(ctx, task.ID)
	require.NoError(t, err)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	sq, err := tx.CreateSearchQuery(ctx, "acme", "Acme")
	require.NoError(t, err)
	ok, err := tx.FinishTask(ctx, task.ID, model.TaskStatusCompleted, model.Result{"status": "success"}, "")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tx.Rollback(ctx))

	_, err = st.GetSearchQuery(ctx, sq.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusRunning, got.Status)
}

func TestSQLite_TxCommitThenRollbackIsNoop(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	c, err := tx.CreateCompany(ctx, model.Company{Name: "Acme Inc"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", got.Name)
}

func TestSQLite_SessionReadsDoNotHoldConnection(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	task, err := st.CreateTask(ctx, model.AgentCrawl, model.TaskCrawlURL, nil)
	require.NoError(t, err)
	other, err := st.CreateTask(ctx, model.AgentSearch, model.TaskWebSearch, nil)
	require.NoError(t, err)

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck
	_, err = tx.GetTask(ctx, task.ID)
	require.NoError(t, err)

	// An open session that has only read must not stall other callers.
	readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = st.GetTask(readCtx, other.ID)
	require.NoError(t, err)
	_, err = st.ClaimTask(readCtx, other.ID)
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
}

func TestSQLite_SessionWriteLockAllowsReaders(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck
	c, err := tx.CreateCompany(ctx, model.Company{Name: "Acme Inc"})
	require.NoError(t, err)

	got, err := tx.GetCompany(ctx, c.ID)
	require.NoError(t, err, "the session sees its own writes")
	assert.Equal(t, "Acme Inc", got.Name)

	readCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err = st.GetCompany(readCtx, c.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound), "uncommitted writes stay private")
	_, err = st.ListTasks(readCtx, model.TaskFilter{})
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	_, err = st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
}

func TestSQLite_SessionWritersQueue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.Begin(ctx)
	require.NoError(t, err)
	_, err = first.CreateCompany(ctx, model.Company{Name: "First"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		second, err := st.Begin(ctx)
		if err != nil {
			done <- err
			return
		}
		defer second.Rollback(ctx) //nolint:errcheck
		if _, err := second.CreateCompany(ctx, model.Company{Name: "Second"}); err != nil {
			done <- err
			return
		}
		done <- second.Commit(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, first.Commit(ctx))
	require.NoError(t, <-done)

	companies, err := st.ListCompanies(ctx, model.CompanyFilter{})
	require.NoError(t, err)
	assert.Len(t, companies, 2)
}

func TestSQLite_SessionEnded(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	tx, err := st.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx), "a session without writes commits as a no-op")

	_, err = tx.CreateCompany(ctx, model.Company{Name: "Late"})
	assert.True(t, errors.Is(err, sql.ErrTxDone))
	assert.NoError(t, tx.Rollback(ctx))
}

// --- Search ---

func TestSQLite_SearchResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sq, err := st.CreateSearchQuery(ctx, "Acme Inc revenue", "Acme Inc")
	require.NoError(t, err)

	n, err := st.AddSearchResults(ctx, sq.ID, []model.SearchResult{
		{Title: "second", URL: "https://b.example", Rank: 2},
		{Title: "first", URL: "https://a.example", Rank: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.GetSearchQuery(ctx, sq.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ResultCount)

	results, err := st.ListSearchResults(ctx, sq.ID, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Title)

	require.NoError(t, st.MarkSearchResultProcessed(ctx, results[0].ID, false))

	unprocessed, err := st.ListSearchResults(ctx, sq.ID, true)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "second", unprocessed[0].Title)

	all, err := st.ListSearchResults(ctx, sq.ID, false)
	require.NoError(t, err)
	assert.True(t, all[0].IsProcessed)
	assert.False(t, all[0].ProcessOK)
}

func TestSQLite_AddSearchResults_UnknownQuery(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.AddSearchResults(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

// --- Companies ---

func TestSQLite_CompanyOverview(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme Inc", Industry: "software"})
	require.NoError(t, err)

	require.NoError(t, st.UpdateCompanyOverview(ctx, c.ID, "first", false))
	require.NoError(t, st.UpdateCompanyOverview(ctx, c.ID, "second", false))
	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond", got.Overview)

	require.NoError(t, st.UpdateCompanyOverview(ctx, c.ID, "fresh", true))
	got, err = st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Overview)

	err = st.UpdateCompanyOverview(ctx, "missing", "x", true)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestSQLite_CompanyOverview_SkipsRepeatedLastParagraph(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme Inc"})
	require.NoError(t, err)

	for _, p := range []string{"first", "first", "second", "second", "ond", "first"} {
		require.NoError(t, st.UpdateCompanyOverview(ctx, c.ID, p, false))
	}
	got, err := st.GetCompany(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "first\n\nsecond\n\nond\n\nfirst", got.Overview)
}

func TestSQLite_ListCompanies_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateCompany(ctx, model.Company{Name: "Beta", Industry: "software", Location: "Austin, TX"})
	require.NoError(t, err)
	_, err = st.CreateCompany(ctx, model.Company{Name: "Alpha", Industry: "software", Location: "Denver, CO"})
	require.NoError(t, err)
	_, err = st.CreateCompany(ctx, model.Company{Name: "Gamma", Industry: "retail", Location: "Austin, TX"})
	require.NoError(t, err)

	sw, err := st.ListCompanies(ctx, model.CompanyFilter{Industry: "software"})
	require.NoError(t, err)
	require.Len(t, sw, 2)
	assert.Equal(t, "Alpha", sw[0].Name)

	austin, err := st.ListCompanies(ctx, model.CompanyFilter{Location: "Austin"})
	require.NoError(t, err)
	assert.Len(t, austin, 2)
}

func TestSQLite_MetricAndEventUpsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme Inc"})
	require.NoError(t, err)

	require.NoError(t, st.UpsertMetric(ctx, model.FinancialMetric{CompanyID: c.ID, MetricType: "revenue", Value: 10, Period: "2023"}))
	require.NoError(t, st.UpsertMetric(ctx, model.FinancialMetric{CompanyID: c.ID, MetricType: "revenue", Value: 12, Period: "2023"}))
	require.NoError(t, st.UpsertMetric(ctx, model.FinancialMetric{CompanyID: c.ID, MetricType: "revenue", Value: 8, Period: "2022"}))

	metrics, err := st.ListMetrics(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	byPeriod := map[string]float64{}
	for _, m := range metrics {
		byPeriod[m.Period] = m.Value
	}
	assert.Equal(t, 12.0, byPeriod["2023"])

	require.NoError(t, st.UpsertEvent(ctx, model.CompanyEvent{CompanyID: c.ID, EventType: "funding", EventDate: "2023-05", Details: "Series A"}))
	require.NoError(t, st.UpsertEvent(ctx, model.CompanyEvent{CompanyID: c.ID, EventType: "funding", EventDate: "2023-05", Details: "Series A, $10M"}))
	events, err := st.ListEvents(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Series A, $10M", events[0].Details)
}

func TestSQLite_Sources_AppendAndReplace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c, err := st.CreateCompany(ctx, model.Company{Name: "Acme Inc"})
	require.NoError(t, err)

	added, err := st.AddSource(ctx, c.ID, "https://a.example")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = st.AddSource(ctx, c.ID, "https://a.example")
	require.NoError(t, err)
	assert.False(t, added, "duplicate source is ignored")

	n, err := st.ReplaceSources(ctx, c.ID, []string{"https://b.example", "https://c.example", "https://b.example"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sources, err := st.ListSources(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "https://b.example", sources[0].URL)
}

// --- Strategies ---

func TestSQLite_StrategyAndAnalysis(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	strat, err := st.CreateStrategy(ctx, model.Strategy{
		Name: "growth",
		Criteria: model.StrategyCriteria{
			IndustryFocus: []string{"software"},
			RevenueRange:  &model.Range{Min: 1e6, Max: 5e7},
			Weights:       map[string]float64{"industry": 2},
		},
	})
	require.NoError(t, err)

	got, err := st.GetStrategy(ctx, strat.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"software"}, got.Criteria.IndustryFocus)
	require.NotNil(t, got.Criteria.RevenueRange)
	assert.Equal(t, 5e7, got.Criteria.RevenueRange.Max)

	c1, err := st.CreateCompany(ctx, model.Company{Name: "Low"})
	require.NoError(t, err)
	c2, err := st.CreateCompany(ctx, model.Company{Name: "High"})
	require.NoError(t, err)

	_, err = st.SaveAnalysisResult(ctx, model.AnalysisResult{CompanyID: c1.ID, StrategyID: strat.ID, OverallScore: 0.3})
	require.NoError(t, err)
	_, err = st.SaveAnalysisResult(ctx, model.AnalysisResult{
		CompanyID: c2.ID, StrategyID: strat.ID, OverallScore: 0.9,
		ScoreBreakdown: map[string]model.FactorScore{"industry": {Score: 1, Weight: 2, WeightedScore: 2}},
	})
	require.NoError(t, err)

	results, err := st.ListAnalysisResults(ctx, strat.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, c2.ID, results[0].CompanyID)
	assert.Equal(t, 2.0, results[0].ScoreBreakdown["industry"].WeightedScore)
}

// --- Profile runs ---

func TestSQLite_ProfileRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	parent, err := st.CreateTask(ctx, model.AgentOrchestration, model.TaskGenerateFullProfile, nil)
	require.NoError(t, err)

	run, err := st.CreateProfileRun(ctx, model.ProfileRun{
		ParentTaskID: parent.ID,
		CompanyID:    "c1",
		CompanyName:  "Acme Inc",
		Phase:        model.PhaseSearching,
		SearchTaskID: "s1",
	})
	require.NoError(t, err)

	active, err := st.ListActiveProfileRuns(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "s1", active[0].SearchTaskID)

	run.Phase = model.PhaseCrawling
	run.CrawlTaskIDs = []string{"c-1", "c-2"}
	run.Polls = 3
	run.Report.ResultsFound = 2
	require.NoError(t, st.UpdateProfileRun(ctx, run))

	got, err := st.GetProfileRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCrawling, got.Phase)
	assert.Equal(t, []string{"c-1", "c-2"}, got.CrawlTaskIDs)
	assert.Equal(t, 3, got.Polls)
	assert.Equal(t, 2, got.Report.ResultsFound)

	got.Phase = model.PhaseDone
	require.NoError(t, st.UpdateProfileRun(ctx, got))
	active, err = st.ListActiveProfileRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
