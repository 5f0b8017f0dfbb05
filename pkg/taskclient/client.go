// Package taskclient is an HTTP client for the company-research task API.
package taskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/resilience"
)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client calls the task API. It makes a single attempt per call; callers
// that poll count a failed read as one attempt.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiError struct {
	Error string `json:"error"`
}

// do sends a JSON request and decodes a JSON reply into out. 404 maps to
// model.ErrNotFound and 400 to model.ErrInvalidParams.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "taskclient: marshal request")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, "taskclient: create request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "taskclient: %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "taskclient: read response body")
	}
	if resp.StatusCode >= 300 {
		var ae apiError
		msg := string(raw)
		if json.Unmarshal(raw, &ae) == nil && ae.Error != "" {
			msg = ae.Error
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return eris.Wrapf(model.ErrNotFound, "taskclient: %s %s: %s", method, path, msg)
		case http.StatusBadRequest:
			return eris.Wrapf(model.ErrInvalidParams, "taskclient: %s %s: %s", method, path, msg)
		}
		return eris.Wrapf(resilience.HTTPStatusError("taskclient", resp.StatusCode, msg), "taskclient: %s %s", method, path)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(raw, out), "taskclient: decode response")
}

// CreateTask creates a task.
func (c *Client) CreateTask(ctx context.Context, agentType model.AgentType, taskType model.TaskType, params model.Params) (string, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks", map[string]any{
		"agent_type": agentType,
		"task_type":  taskType,
		"params":     params,
	}, &out)
	return out.TaskID, err
}

// CreateSearch starts a web search.
func (c *Client) CreateSearch(ctx context.Context, query, target string, maxResults int) (model.SearchHandle, error) {
	var out model.SearchHandle
	err := c.do(ctx, http.MethodPost, "/api/search", map[string]any{
		"query":         query,
		"target_entity": target,
		"max_results":   maxResults,
	}, &out)
	return out, err
}

// GetTask reads a task.
func (c *Client) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks lists tasks newest first.
func (c *Client) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	q := url.Values{}
	if filter.AgentType != "" {
		q.Set("agent_type", string(filter.AgentType))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Offset > 0 {
		q.Set("skip", strconv.Itoa(filter.Offset))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []model.Task
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// ProcessTask asks the server to run a task.
func (c *Client) ProcessTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/process", nil, nil)
}

// ProcessPending asks the server to drain pending tasks.
func (c *Client) ProcessPending(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/agents/process-tasks", nil, nil)
}

// SearchResults lists a search's results by rank.
func (c *Client) SearchResults(ctx context.Context, searchQueryID string) ([]model.SearchResult, error) {
	var out []model.SearchResult
	err := c.do(ctx, http.MethodGet, "/api/search/"+url.PathEscape(searchQueryID)+"/results", nil, &out)
	return out, err
}

// CrawlSearchResults creates crawl tasks for a search's unprocessed results.
func (c *Client) CrawlSearchResults(ctx context.Context, searchQueryID string) ([]string, error) {
	var out struct {
		TaskIDs []string `json:"task_ids"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks/crawl-search-results/"+url.PathEscape(searchQueryID), nil, &out)
	return out.TaskIDs, err
}

// ExtractFromCrawl creates an extract task from a crawl task. It returns
// "" when the server skipped extraction.
func (c *Client) ExtractFromCrawl(ctx context.Context, crawlTaskID string) (string, error) {
	var out struct {
		ExtractionTaskID string `json:"extraction_task_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks/extract-from-crawl/"+url.PathEscape(crawlTaskID), nil, &out)
	return out.ExtractionTaskID, err
}

// StoreAggregated creates store tasks for a company.
func (c *Client) StoreAggregated(ctx context.Context, companyID string, items []model.SourcedData, overwrite bool) ([]string, error) {
	if items == nil {
		items = []model.SourcedData{}
	}
	var out struct {
		StorageTaskIDs []string `json:"storage_task_ids"`
	}
	path := fmt.Sprintf("/api/tasks/store-aggregated-data/%s?overwrite=%t", url.PathEscape(companyID), overwrite)
	err := c.do(ctx, http.MethodPost, path, items, &out)
	return out.StorageTaskIDs, err
}

// GetCompany reads a company.
func (c *Client) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	var out model.Company
	if err := c.do(ctx, http.MethodGet, "/api/companies/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
