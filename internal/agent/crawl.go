package agent

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

const truncatedSuffix = "... (truncated)"

// Crawl fetches a page and returns its text. It marks the originating
// search result processed on both success and failure.
type Crawl struct {
	fetcher       Fetcher
	timeout       time.Duration
	maxLength     int
	previewLength int
}

// NewCrawl creates the crawl agent.
func NewCrawl(deps Deps) *Crawl {
	deps = deps.withDefaults()
	return &Crawl{
		fetcher:       deps.Fetcher,
		timeout:       deps.CrawlTimeout,
		maxLength:     deps.MaxContentLength,
		previewLength: deps.PreviewLength,
	}
}

// Type implements Agent.
func (c *Crawl) Type() model.AgentType { return model.AgentCrawl }

// Process implements Agent.
func (c *Crawl) Process(ctx context.Context, q store.Queries, task model.Task) (Outcome, error) {
	if task.TaskType != model.TaskCrawlURL {
		return Outcome{}, unsupported(c, task)
	}
	url := task.Params.String("url")
	if url == "" {
		return Outcome{}, missingParam(model.AgentCrawl, "url")
	}

	log := zap.L().With(zap.String("task_id", task.ID), zap.String("url", url))
	log.Info("crawl agent: fetching")

	page, err := c.fetcher.Fetch(ctx, url, c.timeout)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "crawl agent: fetch")
	}

	text := []rune(page.Text)
	limited := page.Text
	if len(text) > c.maxLength {
		limited = string(text[:c.maxLength]) + truncatedSuffix
	}
	preview := page.Text
	if len(text) > c.previewLength {
		preview = string(text[:c.previewLength]) + "..."
	}

	if id := task.Params.String("search_result_id"); id != "" {
		if err := c.mark(ctx, q, id, true); err != nil {
			return Outcome{}, err
		}
	}

	log.Info("crawl agent: fetched", zap.Int("content_length", len(text)))
	return Done(model.Result{
		"status":                    "success",
		"url":                       url,
		"title":                     page.Title,
		"extracted_content_snippet": preview,
		"content_length":            len(text),
		"full_content_limited":      limited,
	}), nil
}

// OnFailure implements FailureHook.
func (c *Crawl) OnFailure(ctx context.Context, q store.Queries, task model.Task, _ error) error {
	id := task.Params.String("search_result_id")
	if id == "" {
		return nil
	}
	return c.mark(ctx, q, id, false)
}

// mark flags the search result processed. A result that no longer exists
// is logged and skipped.
func (c *Crawl) mark(ctx context.Context, q store.Queries, id string, ok bool) error {
	err := q.MarkSearchResultProcessed(ctx, id, ok)
	if errors.Is(err, model.ErrNotFound) {
		zap.L().Warn("crawl agent: search result not found", zap.String("search_result_id", id))
		return nil
	}
	return eris.Wrap(err, "crawl agent: mark search result")
}
