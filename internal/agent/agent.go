// Package agent implements the capability-specific workers the dispatcher
// routes tasks to. Each agent handles one AgentType and runs inside the
// task's store session.
package agent

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/config"
	"github.com/sells-group/company-research/internal/extract"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

// Agent executes tasks of one capability.
type Agent interface {
	Type() model.AgentType
	// Process runs task inside the session q. The task is a copy; status
	// transitions belong to the dispatcher.
	Process(ctx context.Context, q store.Queries, task model.Task) (Outcome, error)
}

// FailureHook is implemented by agents that record side effects when a
// task fails. It runs in a fresh session after the failed attempt was
// rolled back, before the failure is written.
type FailureHook interface {
	OnFailure(ctx context.Context, q store.Queries, task model.Task, cause error) error
}

// Outcome is what a successful Process returns.
type Outcome struct {
	Result model.Result
	// KeepRunning leaves the task running with Result recorded on it. Meta
	// tasks use it to hand off to an external driver.
	KeepRunning bool
}

// Done ends the task as completed with result.
func Done(result model.Result) Outcome {
	return Outcome{Result: result}
}

// Detach records result and leaves the task running.
func Detach(result model.Result) Outcome {
	return Outcome{Result: result, KeepRunning: true}
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error)
}

// Fetcher fetches a page and returns its cleaned text.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*model.CrawledPage, error)
}

// Completer returns a model's reply to a single prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Deps holds the collaborators and limits shared by the agents.
type Deps struct {
	Searcher  Searcher
	Fetcher   Fetcher
	Completer Completer

	SearchMaxResults int
	CrawlTimeout     time.Duration
	MaxContentLength int
	PreviewLength    int
	MaxInputChars    int
}

// DepsFromConfig fills the limits in Deps from cfg. Collaborators are left
// for the caller to set.
func DepsFromConfig(cfg *config.Config) Deps {
	return Deps{
		SearchMaxResults: cfg.Search.MaxResults,
		CrawlTimeout:     time.Duration(cfg.Crawl.TimeoutSecs) * time.Second,
		MaxContentLength: cfg.Crawl.MaxLength,
		PreviewLength:    cfg.Crawl.PreviewLength,
		MaxInputChars:    cfg.LLM.MaxInputChars,
	}
}

func (d Deps) withDefaults() Deps {
	if d.SearchMaxResults <= 0 {
		d.SearchMaxResults = 5
	}
	if d.CrawlTimeout <= 0 {
		d.CrawlTimeout = 30 * time.Second
	}
	if d.MaxContentLength <= 0 {
		d.MaxContentLength = 5000
	}
	if d.PreviewLength <= 0 {
		d.PreviewLength = 200
	}
	if d.MaxInputChars <= 0 {
		d.MaxInputChars = extract.DefaultMaxInputChars
	}
	return d
}

// Registry maps agent types to agents.
type Registry struct {
	agents map[model.AgentType]Agent
}

// NewRegistry creates a registry holding agents.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[model.AgentType]Agent, len(agents))}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// NewDefaultRegistry registers all seven agents over deps.
func NewDefaultRegistry(deps Deps) *Registry {
	deps = deps.withDefaults()
	return NewRegistry(
		NewSearch(deps),
		NewCrawl(deps),
		NewExtract(deps),
		NewAnalyze(),
		NewStorage(),
		NewIngestion(),
		NewOrchestration(deps),
	)
}

// Register adds a, replacing any agent of the same type.
func (r *Registry) Register(a Agent) {
	r.agents[a.Type()] = a
}

// Get returns the agent for t or ErrUnknownAgentType.
func (r *Registry) Get(t model.AgentType) (Agent, error) {
	a, ok := r.agents[t]
	if !ok {
		return nil, eris.Wrapf(model.ErrUnknownAgentType, "agent: %q", t)
	}
	return a, nil
}

func unsupported(a Agent, task model.Task) error {
	return eris.Wrapf(model.ErrUnsupportedTaskType, "%s agent: %q", a.Type(), task.TaskType)
}

func missingParam(agent model.AgentType, name string) error {
	return eris.Wrapf(model.ErrInvalidParams, "%s agent: %s is required", agent, name)
}

func success(message string) model.Result {
	return model.Result{"status": "success", "message": message}
}
