// Package service is the in-process task API. The HTTP handlers and the
// workflow coordinator both drive the engine through it.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/agent"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

// Scheduler runs tasks in the background.
type Scheduler interface {
	Submit(taskID string)
	SubmitDrain()
}

// Service creates, schedules and inspects tasks.
type Service struct {
	store            store.Store
	scheduler        Scheduler
	autoDispatch     bool
	searchMaxResults int
}

// Option configures a Service.
type Option func(*Service)

// WithAutoDispatch schedules every task the service creates.
func WithAutoDispatch(on bool) Option {
	return func(s *Service) { s.autoDispatch = on }
}

// WithSearchMaxResults sets the result count used when a search does not
// ask for one.
func WithSearchMaxResults(n int) Option {
	return func(s *Service) { s.searchMaxResults = n }
}

// New creates a Service. scheduler may be nil, in which case tasks are
// only created and something else must dispatch them.
func New(st store.Store, scheduler Scheduler, opts ...Option) *Service {
	s := &Service{store: st, scheduler: scheduler, searchMaxResults: 5}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) schedule(taskID string) {
	if s.autoDispatch && s.scheduler != nil {
		s.scheduler.Submit(taskID)
	}
}

// CreateTask creates a pending task and schedules it when auto-dispatch
// is on.
func (s *Service) CreateTask(ctx context.Context, agentType model.AgentType, taskType model.TaskType, params model.Params) (string, error) {
	if agentType == "" || taskType == "" {
		return "", eris.Wrap(model.ErrInvalidParams, "service: agent_type and task_type are required")
	}
	task, err := s.store.CreateTask(ctx, agentType, taskType, params)
	if err != nil {
		return "", eris.Wrap(err, "service: create task")
	}
	zap.L().Debug("service: task created",
		zap.String("task_id", task.ID),
		zap.String("agent_type", string(agentType)),
		zap.String("task_type", string(taskType)),
	)
	s.schedule(task.ID)
	return task.ID, nil
}

// ProcessTask schedules an existing task regardless of auto-dispatch.
func (s *Service) ProcessTask(ctx context.Context, taskID string) error {
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return eris.Wrap(err, "service: process task")
	}
	if s.scheduler == nil {
		return eris.New("service: no scheduler configured")
	}
	s.scheduler.Submit(taskID)
	return nil
}

// ProcessPending schedules a drain of all pending tasks.
func (s *Service) ProcessPending(_ context.Context) error {
	if s.scheduler == nil {
		return eris.New("service: no scheduler configured")
	}
	s.scheduler.SubmitDrain()
	return nil
}

// GetTask returns a task.
func (s *Service) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := s.store.GetTask(ctx, id)
	return t, eris.Wrap(err, "service: get task")
}

// ListTasks lists tasks newest first.
func (s *Service) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	tasks, err := s.store.ListTasks(ctx, filter)
	return tasks, eris.Wrap(err, "service: list tasks")
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return eris.Wrap(s.store.DeleteTask(ctx, id), "service: delete task")
}

// CreateSearch records a search query and creates its search task.
func (s *Service) CreateSearch(ctx context.Context, query, target string, maxResults int) (model.SearchHandle, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.SearchHandle{}, eris.Wrap(model.ErrInvalidParams, "service: query is required")
	}
	if maxResults <= 0 {
		maxResults = s.searchMaxResults
	}
	sq, err := s.store.CreateSearchQuery(ctx, query, target)
	if err != nil {
		return model.SearchHandle{}, eris.Wrap(err, "service: create search query")
	}
	taskID, err := s.CreateTask(ctx, model.AgentSearch, model.TaskWebSearch, model.Params{
		"query":           query,
		"search_query_id": sq.ID,
		"max_results":     maxResults,
	})
	if err != nil {
		return model.SearchHandle{}, err
	}
	return model.SearchHandle{SearchQueryID: sq.ID, TaskID: taskID}, nil
}

// SearchResults lists the results of a search by rank.
func (s *Service) SearchResults(ctx context.Context, searchQueryID string) ([]model.SearchResult, error) {
	if _, err := s.store.GetSearchQuery(ctx, searchQueryID); err != nil {
		return nil, eris.Wrap(err, "service: search results")
	}
	results, err := s.store.ListSearchResults(ctx, searchQueryID, false)
	return results, eris.Wrap(err, "service: search results")
}

// CrawlSearchResults creates one crawl task per unprocessed result of a
// search and returns their ids. No unprocessed results is not an error.
func (s *Service) CrawlSearchResults(ctx context.Context, searchQueryID string) ([]string, error) {
	if _, err := s.store.GetSearchQuery(ctx, searchQueryID); err != nil {
		return nil, eris.Wrap(err, "service: crawl search results")
	}
	results, err := s.store.ListSearchResults(ctx, searchQueryID, true)
	if err != nil {
		return nil, eris.Wrap(err, "service: crawl search results")
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		id, err := s.CreateTask(ctx, model.AgentCrawl, model.TaskCrawlURL, model.Params{
			"url":              r.URL,
			"search_result_id": r.ID,
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	zap.L().Info("service: crawl tasks created", zap.String("search_query_id", searchQueryID), zap.Int("count", len(ids)))
	return ids, nil
}

// ExtractFromCrawl creates an extract task from a completed crawl task. It
// returns "" when the crawl has not completed or produced no content.
func (s *Service) ExtractFromCrawl(ctx context.Context, crawlTaskID string) (string, error) {
	crawl, err := s.store.GetTask(ctx, crawlTaskID)
	if err != nil {
		return "", eris.Wrap(err, "service: extract from crawl")
	}
	if crawl.AgentType != model.AgentCrawl {
		return "", eris.Wrapf(model.ErrInvalidParams, "service: task %s is not a crawl task", crawlTaskID)
	}
	log := zap.L().With(zap.String("crawl_task_id", crawlTaskID))
	if crawl.Status != model.TaskStatusCompleted || crawl.Result.Status() != "success" {
		log.Info("service: crawl not completed, extraction skipped", zap.String("status", string(crawl.Status)))
		return "", nil
	}

	content, _ := crawl.Result["full_content_limited"].(string)
	if content == "" {
		content, _ = crawl.Result["extracted_content_snippet"].(string)
	}
	if content == "" {
		log.Info("service: crawl has no content, extraction skipped")
		return "", nil
	}
	sourceURL, _ := crawl.Result["url"].(string)
	if sourceURL == "" {
		sourceURL = crawl.Params.String("url")
	}

	params := model.Params{
		"content":                   content,
		"source_url":                sourceURL,
		"original_search_result_id": crawl.Params.String("search_result_id"),
	}
	if name := crawl.Params.String("company_name"); name != "" {
		params["company_name"] = name
	}
	return s.CreateTask(ctx, model.AgentExtract, model.TaskExtractFromContent, params)
}

// StoreAggregated creates one store task per extracted item for a company.
func (s *Service) StoreAggregated(ctx context.Context, companyID string, items []model.SourcedData, overwrite bool) ([]string, error) {
	if _, err := s.store.GetCompany(ctx, companyID); err != nil {
		return nil, eris.Wrap(err, "service: store aggregated")
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		id, err := s.CreateTask(ctx, model.AgentStore, model.TaskStoreExtractedData, model.Params{
			"company_id":     companyID,
			"extracted_data": it.Data,
			"overwrite":      overwrite,
			"source_url":     it.SourceURL,
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// CreateCompany adds a research target.
func (s *Service) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, eris.Wrap(model.ErrInvalidParams, "service: company name is required")
	}
	created, err := s.store.CreateCompany(ctx, c)
	return created, eris.Wrap(err, "service: create company")
}

// GetCompany returns a company.
func (s *Service) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	c, err := s.store.GetCompany(ctx, id)
	return c, eris.Wrap(err, "service: get company")
}

// FindCompanies lists companies, optionally only those named name
// (case-insensitive).
func (s *Service) FindCompanies(ctx context.Context, name string) ([]model.Company, error) {
	all, err := s.store.ListCompanies(ctx, model.CompanyFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "service: list companies")
	}
	if name == "" {
		return all, nil
	}
	var out []model.Company
	for _, c := range all {
		if strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateStrategy parses and stores a strategy from a "document" or
// "strategy" payload.
func (s *Service) CreateStrategy(ctx context.Context, params model.Params) (*model.Strategy, error) {
	st, err := agent.StrategyFromParams(params)
	if err != nil {
		return nil, eris.Wrap(err, "service: create strategy")
	}
	saved, err := s.store.CreateStrategy(ctx, st)
	return saved, eris.Wrap(err, "service: create strategy")
}

// StartAnalysis creates a company_analysis task for a strategy.
func (s *Service) StartAnalysis(ctx context.Context, strategyID string, filter model.CompanyFilter) (string, error) {
	if _, err := s.store.GetStrategy(ctx, strategyID); err != nil {
		return "", eris.Wrap(err, "service: start analysis")
	}
	params := model.Params{"strategy_id": strategyID}
	if filter != (model.CompanyFilter{}) {
		params["filters"] = map[string]any{"industry": filter.Industry, "location": filter.Location}
	}
	return s.CreateTask(ctx, model.AgentAnalyze, model.TaskCompanyAnalysis, params)
}

// AnalysisResults lists a strategy's results, best score first.
func (s *Service) AnalysisResults(ctx context.Context, strategyID string) ([]model.AnalysisResult, error) {
	if _, err := s.store.GetStrategy(ctx, strategyID); err != nil {
		return nil, eris.Wrap(err, "service: analysis results")
	}
	results, err := s.store.ListAnalysisResults(ctx, strategyID)
	return results, eris.Wrap(err, "service: analysis results")
}

// StartProfile creates the generate_full_profile meta-task for a company.
func (s *Service) StartProfile(ctx context.Context, companyID string) (string, error) {
	c, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return "", eris.Wrap(err, "service: start profile")
	}
	return s.CreateTask(ctx, model.AgentOrchestration, model.TaskGenerateFullProfile, model.Params{
		"company_id":   c.ID,
		"company_name": c.Name,
	})
}

// GetProfileRun returns a profile run.
func (s *Service) GetProfileRun(ctx context.Context, id string) (*model.ProfileRun, error) {
	run, err := s.store.GetProfileRun(ctx, id)
	return run, eris.Wrap(err, "service: get profile run")
}

// IsValidation reports whether err is a caller error.
func IsValidation(err error) bool {
	return errors.Is(err, model.ErrInvalidParams) ||
		errors.Is(err, model.ErrUnsupportedTaskType) ||
		errors.Is(err, model.ErrUnknownAgentType)
}
