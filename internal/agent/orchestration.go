package agent

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

// Orchestration starts a full company profile. It creates the search task
// and the profile run, then detaches; the profile driver advances the run
// and finishes the parent task.
type Orchestration struct {
	maxResults int
}

// NewOrchestration creates the orchestration agent.
func NewOrchestration(deps Deps) *Orchestration {
	deps = deps.withDefaults()
	return &Orchestration{maxResults: deps.SearchMaxResults}
}

// Type implements Agent.
func (o *Orchestration) Type() model.AgentType { return model.AgentOrchestration }

// Process implements Agent.
func (o *Orchestration) Process(ctx context.Context, q store.Queries, task model.Task) (Outcome, error) {
	if task.TaskType != model.TaskGenerateFullProfile {
		return Outcome{}, unsupported(o, task)
	}
	companyID := task.Params.String("company_id")
	if companyID == "" {
		return Outcome{}, missingParam(model.AgentOrchestration, "company_id")
	}
	company, err := q.GetCompany(ctx, companyID)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "orchestration agent: load company")
	}
	name := strings.TrimSpace(task.Params.String("company_name"))
	if name == "" {
		name = company.Name
	}

	sq, err := q.CreateSearchQuery(ctx, name, name)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "orchestration agent: create search query")
	}
	search, err := q.CreateTask(ctx, model.AgentSearch, model.TaskWebSearch, model.Params{
		"query":           name,
		"search_query_id": sq.ID,
		"max_results":     o.maxResults,
		"company_id":      companyID,
	})
	if err != nil {
		return Outcome{}, eris.Wrap(err, "orchestration agent: create search task")
	}
	run, err := q.CreateProfileRun(ctx, model.ProfileRun{
		ParentTaskID:  task.ID,
		CompanyID:     companyID,
		CompanyName:   name,
		Phase:         model.PhaseSearching,
		SearchTaskID:  search.ID,
		SearchQueryID: sq.ID,
		Report:        model.PipelineReport{CompanyID: companyID, SearchTaskID: search.ID, SearchQueryID: sq.ID},
	})
	if err != nil {
		return Outcome{}, eris.Wrap(err, "orchestration agent: create profile run")
	}

	zap.L().Info("orchestration agent: profile started",
		zap.String("task_id", task.ID),
		zap.String("company_id", companyID),
		zap.String("search_task_id", search.ID),
		zap.String("profile_run_id", run.ID),
	)
	return Detach(model.Result{
		"status":          "started",
		"search_task_id":  search.ID,
		"search_query_id": sq.ID,
		"profile_run_id":  run.ID,
	}), nil
}
