package model

import "time"

// WorkflowPhase is the position of a profile run in the
// search → crawl → extract → store chain. It is tracked separately from
// the parent task's status, which stays running until the run ends.
type WorkflowPhase string

const (
	PhaseSearching  WorkflowPhase = "searching"
	PhaseCrawling   WorkflowPhase = "crawling"
	PhaseExtracting WorkflowPhase = "extracting"
	PhaseStoring    WorkflowPhase = "storing"
	PhaseDone       WorkflowPhase = "done"
	PhaseEmpty      WorkflowPhase = "empty"
	PhaseFailed     WorkflowPhase = "failed"
)

// Terminal reports whether the run has finished.
func (p WorkflowPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseEmpty || p == PhaseFailed
}

// Next returns the phase that follows p in the chain.
func (p WorkflowPhase) Next() WorkflowPhase {
	switch p {
	case PhaseSearching:
		return PhaseCrawling
	case PhaseCrawling:
		return PhaseExtracting
	case PhaseExtracting:
		return PhaseStoring
	case PhaseStoring:
		return PhaseDone
	}
	return p
}

// PipelineReport summarises a pipeline run per stage.
type PipelineReport struct {
	CompanyID      string `json:"company_id"`
	SearchTaskID   string `json:"search_task_id,omitempty"`
	SearchQueryID  string `json:"search_query_id,omitempty"`
	ResultsFound   int    `json:"results_found"`
	CrawlTasks     int    `json:"crawl_tasks"`
	Crawled        int    `json:"crawled"`
	ExtractTasks   int    `json:"extract_tasks"`
	Extracted      int    `json:"extracted"`
	StoreTasks     int    `json:"store_tasks"`
	CompletedCount int    `json:"completed_count"`
	FailedCount    int    `json:"failed_count"`
	StoppedAt      string `json:"stopped_at,omitempty"`
}

// ProfileRun is the workflow-phase record that drives a
// generate_full_profile meta-task to completion.
type ProfileRun struct {
	ID             string          `json:"id"`
	ParentTaskID   string          `json:"parent_task_id"`
	CompanyID      string          `json:"company_id"`
	CompanyName    string          `json:"company_name"`
	Phase          WorkflowPhase   `json:"phase"`
	SearchTaskID   string          `json:"search_task_id,omitempty"`
	SearchQueryID  string          `json:"search_query_id,omitempty"`
	CrawlTaskIDs   []string        `json:"crawl_task_ids,omitempty"`
	ExtractTaskIDs []string        `json:"extract_task_ids,omitempty"`
	StoreTaskIDs   []string        `json:"store_task_ids,omitempty"`
	Aggregated     []SourcedData   `json:"aggregated,omitempty"`
	Report         PipelineReport  `json:"report"`
	Polls          int             `json:"polls"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// SearchHandle identifies a search started through the task API.
type SearchHandle struct {
	SearchQueryID string `json:"search_id"`
	TaskID        string `json:"task_id"`
}
