// Package workflow chains search, crawl, extract and store tasks into a
// company profile. It drives tasks only through TaskAPI, so the same code
// runs in-process or against a remote API.
package workflow

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
)

// TaskAPI is the task surface the workflow needs.
type TaskAPI interface {
	CreateTask(ctx context.Context, agentType model.AgentType, taskType model.TaskType, params model.Params) (string, error)
	CreateSearch(ctx context.Context, query, target string, maxResults int) (model.SearchHandle, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
	ProcessTask(ctx context.Context, id string) error
	SearchResults(ctx context.Context, searchQueryID string) ([]model.SearchResult, error)
	CrawlSearchResults(ctx context.Context, searchQueryID string) ([]string, error)
	// ExtractFromCrawl returns "" when the crawl produced nothing to extract.
	ExtractFromCrawl(ctx context.Context, crawlTaskID string) (string, error)
	StoreAggregated(ctx context.Context, companyID string, items []model.SourcedData, overwrite bool) ([]string, error)
}

// ErrCoordinationTimeout is returned when a task does not finish within
// the poll budget.
var ErrCoordinationTimeout = eris.New("task did not finish in time")

// TaskFailedError reports a task that ended failed.
type TaskFailedError struct {
	TaskID  string
	Message string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// Stage names used in reports and logs.
const (
	StageSearch  = "search"
	StageCrawl   = "crawl"
	StageExtract = "extract"
	StageStore   = "store"
)

func succeeded(t *model.Task) bool {
	return t != nil && t.Status == model.TaskStatusCompleted && t.Result.Status() == "success"
}

// sourcedFrom returns the extracted data of a successful extract task.
// Empty or unreadable data is still forwarded so storage records the
// source link.
func sourcedFrom(t *model.Task) (model.SourcedData, bool) {
	if !succeeded(t) {
		return model.SourcedData{}, false
	}
	src, _ := t.Result["source_url"].(string)
	data, err := model.DecodeExtractedData(t.Result["extracted_data"])
	if err != nil {
		zap.L().Warn("workflow: unreadable extracted data",
			zap.String("task_id", t.ID),
			zap.String("source_url", src),
			zap.Error(err),
		)
		data = model.ExtractedData{}
	}
	return model.SourcedData{Data: data, SourceURL: src}, true
}
