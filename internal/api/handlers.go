package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sells-group/company-research/internal/model"
)

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type createTaskRequest struct {
	AgentType model.AgentType `json:"agent_type"`
	TaskType  model.TaskType  `json:"task_type"`
	Params    model.Params    `json:"params"`
}

// CreateTask creates a task and schedules it.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createTaskRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, string(req.AgentType), "agent_type") || !requireField(w, string(req.TaskType), "task_type") {
		return
	}
	id, err := h.svc.CreateTask(r.Context(), req.AgentType, req.TaskType, req.Params)
	if err != nil {
		writeServiceError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

// GetTask returns one task.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.svc.GetTask(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListTasks lists tasks newest first.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.TaskFilter{
		AgentType: model.AgentType(q.Get("agent_type")),
		Status:    model.TaskStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(filter.Status)))
		return
	}
	var ok bool
	if filter.Offset, ok = queryInt(w, r, "skip"); !ok {
		return
	}
	if filter.Limit, ok = queryInt(w, r, "limit"); !ok {
		return
	}
	tasks, err := h.svc.ListTasks(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// DeleteTask removes a task.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTask(r.Context(), urlParam(r, "id")); err != nil {
		writeServiceError(w, r, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ProcessTask schedules one task.
func (h *Handlers) ProcessTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.svc.ProcessTask(r.Context(), id); err != nil {
		writeServiceError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "processing"})
}

// ProcessPending schedules a drain of all pending tasks.
func (h *Handlers) ProcessPending(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ProcessPending(r.Context()); err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "processing",
		"message": "Pending tasks are being processed in the background.",
	})
}

type searchRequest struct {
	Query        string `json:"query"`
	TargetEntity string `json:"target_entity"`
	MaxResults   int    `json:"max_results"`
}

// CreateSearch starts a web search.
func (h *Handlers) CreateSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[searchRequest](w, r)
	if !ok || !requireField(w, req.Query, "query") {
		return
	}
	handle, err := h.svc.CreateSearch(r.Context(), req.Query, req.TargetEntity, req.MaxResults)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"search_id": handle.SearchQueryID,
		"task_id":   handle.TaskID,
		"status":    "pending",
	})
}

// SearchResults lists a search's results by rank.
func (h *Handlers) SearchResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.SearchResults(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "search not found")
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// CrawlSearchResults creates crawl tasks for a search's unprocessed results.
func (h *Handlers) CrawlSearchResults(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.CrawlSearchResults(r.Context(), urlParam(r, "search_id"))
	if err != nil {
		writeServiceError(w, r, err, "search not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":  fmt.Sprintf("Created %d crawl tasks.", len(ids)),
		"task_ids": ids,
	})
}

// ExtractFromCrawl creates an extract task from a finished crawl task.
func (h *Handlers) ExtractFromCrawl(w http.ResponseWriter, r *http.Request) {
	crawlID := urlParam(r, "crawl_task_id")
	id, err := h.svc.ExtractFromCrawl(r.Context(), crawlID)
	if err != nil {
		writeServiceError(w, r, err, "crawl task not found")
		return
	}
	msg := "Extraction task created."
	if id == "" {
		msg = "Crawl task has no completed content; extraction skipped."
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":            msg,
		"extraction_task_id": id,
	})
}

// StoreAggregated creates store tasks for a company from extracted data.
// Items are either bare extracted data or {extracted_data, source_url}.
func (h *Handlers) StoreAggregated(w http.ResponseWriter, r *http.Request) {
	raw, ok := readJSON[[]json.RawMessage](w, r)
	if !ok {
		return
	}
	overwrite := false
	if v := r.URL.Query().Get("overwrite"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "overwrite must be a boolean")
			return
		}
		overwrite = b
	}

	items := make([]model.SourcedData, 0, len(raw))
	for i, msg := range raw {
		item, err := decodeSourced(msg)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("item %d: invalid extracted data", i))
			return
		}
		items = append(items, item)
	}

	ids, err := h.svc.StoreAggregated(r.Context(), urlParam(r, "company_id"), items, overwrite)
	if err != nil {
		writeServiceError(w, r, err, "company not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":          fmt.Sprintf("Created %d storage tasks.", len(ids)),
		"storage_task_ids": ids,
	})
}

func decodeSourced(msg json.RawMessage) (model.SourcedData, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return model.SourcedData{}, err
	}
	if _, wrapped := fields["extracted_data"]; wrapped {
		var item model.SourcedData
		err := json.Unmarshal(msg, &item)
		return item, err
	}
	var data model.ExtractedData
	err := json.Unmarshal(msg, &data)
	return model.SourcedData{Data: data}, err
}

// CreateCompany adds a research target.
func (h *Handlers) CreateCompany(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[model.Company](w, r)
	if !ok || !requireField(w, req.Name, "name") {
		return
	}
	c, err := h.svc.CreateCompany(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListCompanies lists companies, optionally filtered by exact name.
func (h *Handlers) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.svc.FindCompanies(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	if companies == nil {
		companies = []model.Company{}
	}
	writeJSON(w, http.StatusOK, companies)
}

// GetCompany returns one company.
func (h *Handlers) GetCompany(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCompany(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "company not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// StartProfile creates the full profile meta-task for a company.
func (h *Handlers) StartProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.StartProfile(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "company not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"master_task_id": id})
}

// GetProfileRun returns a profile run's progress.
func (h *Handlers) GetProfileRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetProfileRun(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err, "profile run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// CreateStrategy stores a strategy sent as {"document": yaml}, as
// {"strategy": {...}} or as a bare strategy object.
func (h *Handlers) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	body, ok := readJSON[model.Params](w, r)
	if !ok {
		return
	}
	if _, doc := body["document"]; !doc {
		if _, obj := body["strategy"]; !obj {
			body = model.Params{"strategy": map[string]any(body)}
		}
	}
	st, err := h.svc.CreateStrategy(r.Context(), body)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

type analysisRequest struct {
	StrategyID string              `json:"strategy_id"`
	Filters    model.CompanyFilter `json:"filters"`
}

// StartAnalysis scores companies against a strategy in the background.
func (h *Handlers) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[analysisRequest](w, r)
	if !ok || !requireField(w, req.StrategyID, "strategy_id") {
		return
	}
	id, err := h.svc.StartAnalysis(r.Context(), req.StrategyID, req.Filters)
	if err != nil {
		writeServiceError(w, r, err, "strategy not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id})
}

// AnalysisResults lists a strategy's scores, best first.
func (h *Handlers) AnalysisResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.AnalysisResults(r.Context(), urlParam(r, "strategy_id"))
	if err != nil {
		writeServiceError(w, r, err, "strategy not found")
		return
	}
	if results == nil {
		results = []model.AnalysisResult{}
	}
	writeJSON(w, http.StatusOK, results)
}
