package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// AgentType selects the capability that executes a task.
type AgentType string

const (
	AgentSearch        AgentType = "search"
	AgentCrawl         AgentType = "crawl"
	AgentExtract       AgentType = "extract"
	AgentAnalyze       AgentType = "analyze"
	AgentStore         AgentType = "store"
	AgentDataIngestion AgentType = "data_ingestion"
	AgentOrchestration AgentType = "orchestration"
)

// TaskType names an operation within an agent's capability.
type TaskType string

const (
	TaskWebSearch           TaskType = "web_search"
	TaskCrawlURL            TaskType = "crawl_url"
	TaskExtractFromContent  TaskType = "extract_from_content"
	TaskCompanyAnalysis     TaskType = "company_analysis"
	TaskStoreExtractedData  TaskType = "store_extracted_data"
	TaskProcessCSV          TaskType = "process_csv"
	TaskProcessStrategy     TaskType = "process_strategy"
	TaskGenerateFullProfile TaskType = "generate_full_profile"
)

// Task is the persisted unit of work.
type Task struct {
	ID          string     `json:"id"`
	AgentType   AgentType  `json:"agent_type"`
	TaskType    TaskType   `json:"task_type"`
	Status      TaskStatus `json:"status"`
	Params      Params     `json:"params,omitempty"`
	Result      Result     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Params is the immutable input payload of a task.
type Params map[string]any

// Result is the success payload of a task.
type Result map[string]any

// String returns the string value for key, or "" if absent or not a string.
func (p Params) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// Int returns the integer value for key. JSON numbers decode as float64,
// so both are accepted along with numeric strings.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the boolean value for key, or def.
func (p Params) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Map returns a nested object for key, or nil.
func (p Params) Map(key string) map[string]any {
	if m, ok := p[key].(map[string]any); ok {
		return m
	}
	return nil
}

// Status returns the "status" marker an agent wrote into its result.
func (r Result) Status() string {
	s, _ := r["status"].(string)
	return s
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	AgentType AgentType  `json:"agent_type,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}
