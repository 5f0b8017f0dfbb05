package store

import (
	"context"

	"github.com/sells-group/company-research/internal/model"
)

// Queries is the set of persistence operations available both directly on
// a Store and inside a task session (Tx).
type Queries interface {
	// Tasks
	CreateTask(ctx context.Context, agentType model.AgentType, taskType model.TaskType, params model.Params) (*model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	// ClaimTask moves a task from pending to running. It reports false when
	// the task was not pending, which includes losing a race to another
	// dispatcher.
	ClaimTask(ctx context.Context, id string) (bool, error)
	// FinishTask writes the terminal state of a running task. It reports
	// false when the task was no longer running.
	FinishTask(ctx context.Context, id string, status model.TaskStatus, result model.Result, errMsg string) (bool, error)
	// RecordResult stores a result on a running task without ending it.
	RecordResult(ctx context.Context, id string, result model.Result) error

	// Search
	CreateSearchQuery(ctx context.Context, queryText, targetEntity string) (*model.SearchQuery, error)
	GetSearchQuery(ctx context.Context, id string) (*model.SearchQuery, error)
	AddSearchResults(ctx context.Context, queryID string, results []model.SearchResult) (int, error)
	ListSearchResults(ctx context.Context, queryID string, unprocessedOnly bool) ([]model.SearchResult, error)
	MarkSearchResultProcessed(ctx context.Context, id string, ok bool) error

	// Companies
	CreateCompany(ctx context.Context, c model.Company) (*model.Company, error)
	GetCompany(ctx context.Context, id string) (*model.Company, error)
	ListCompanies(ctx context.Context, filter model.CompanyFilter) ([]model.Company, error)
	UpdateCompanyOverview(ctx context.Context, id, overview string, replace bool) error
	UpsertMetric(ctx context.Context, m model.FinancialMetric) error
	ListMetrics(ctx context.Context, companyID string) ([]model.FinancialMetric, error)
	UpsertEvent(ctx context.Context, e model.CompanyEvent) error
	ListEvents(ctx context.Context, companyID string) ([]model.CompanyEvent, error)
	AddSource(ctx context.Context, companyID, url string) (bool, error)
	ReplaceSources(ctx context.Context, companyID string, urls []string) (int, error)
	ListSources(ctx context.Context, companyID string) ([]model.CompanySource, error)

	// Strategies and analysis
	CreateStrategy(ctx context.Context, s model.Strategy) (*model.Strategy, error)
	GetStrategy(ctx context.Context, id string) (*model.Strategy, error)
	SaveAnalysisResult(ctx context.Context, r model.AnalysisResult) (*model.AnalysisResult, error)
	ListAnalysisResults(ctx context.Context, strategyID string) ([]model.AnalysisResult, error)

	// Profile runs
	CreateProfileRun(ctx context.Context, run model.ProfileRun) (*model.ProfileRun, error)
	GetProfileRun(ctx context.Context, id string) (*model.ProfileRun, error)
	UpdateProfileRun(ctx context.Context, run *model.ProfileRun) error
	ListActiveProfileRuns(ctx context.Context) ([]model.ProfileRun, error)
}

// Tx is an isolated task session. Every Tx must end in Commit or Rollback;
// Rollback after Commit is a no-op.
type Tx interface {
	Queries
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store defines the persistence interface for the research engine.
type Store interface {
	Queries
	Begin(ctx context.Context) (Tx, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
