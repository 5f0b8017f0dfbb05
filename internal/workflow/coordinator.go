package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-research/internal/model"
)

// Coordinator runs the profile pipeline for one company, blocking on each
// stage until its tasks finish.
type Coordinator struct {
	api        TaskAPI
	poller     *Poller
	maxResults int
}

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

type coordinatorConfig struct {
	interval    time.Duration
	maxAttempts int
	maxResults  int
}

// WithPollInterval sets the delay between status reads.
func WithPollInterval(d time.Duration) Option {
	return func(c *coordinatorConfig) { c.interval = d }
}

// WithMaxPollAttempts sets how many reads a task gets before it times out.
func WithMaxPollAttempts(n int) Option {
	return func(c *coordinatorConfig) { c.maxAttempts = n }
}

// WithMaxResults sets the search result count requested per pipeline.
func WithMaxResults(n int) Option {
	return func(c *coordinatorConfig) { c.maxResults = n }
}

// NewCoordinator creates a Coordinator over api.
func NewCoordinator(api TaskAPI, opts ...Option) *Coordinator {
	var cfg coordinatorConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Coordinator{
		api:        api,
		poller:     NewPoller(api, cfg.interval, cfg.maxAttempts),
		maxResults: cfg.maxResults,
	}
}

// RunPipeline searches for companyName, crawls the results, extracts data
// from the pages and stores it on companyID. Only a search that cannot be
// started or does not complete is an error. Later stages degrade to counts
// in the report, and a stage with nothing to forward stops the pipeline.
func (c *Coordinator) RunPipeline(ctx context.Context, companyID, companyName string) (*model.PipelineReport, error) {
	report := &model.PipelineReport{CompanyID: companyID}
	log := zap.L().With(zap.String("company_id", companyID), zap.String("company_name", companyName))

	h, err := c.api.CreateSearch(ctx, companyName, companyName, c.maxResults)
	if err != nil {
		return report, eris.Wrap(err, "workflow: start search")
	}
	report.SearchTaskID = h.TaskID
	report.SearchQueryID = h.SearchQueryID
	if _, err := c.poller.Wait(ctx, h.TaskID); err != nil {
		return report, eris.Wrap(err, "workflow: search")
	}

	results, err := c.api.SearchResults(ctx, h.SearchQueryID)
	if err != nil {
		log.Warn("workflow: read search results", zap.Error(err))
	}
	report.ResultsFound = len(results)
	if report.ResultsFound == 0 {
		return stop(report, StageSearch), nil
	}

	crawlIDs, err := c.api.CrawlSearchResults(ctx, h.SearchQueryID)
	if err != nil {
		log.Warn("workflow: start crawls", zap.Error(err))
	}
	report.CrawlTasks = len(crawlIDs)
	crawled := c.waitAll(ctx, StageCrawl, crawlIDs)
	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "workflow: crawl")
	}
	report.Crawled = len(crawled)
	if report.Crawled == 0 {
		return stop(report, StageCrawl), nil
	}

	var extractIDs []string
	for _, t := range crawled {
		id, err := c.api.ExtractFromCrawl(ctx, t.ID)
		if err != nil {
			log.Warn("workflow: start extraction", zap.String("crawl_task_id", t.ID), zap.Error(err))
			continue
		}
		if id != "" {
			extractIDs = append(extractIDs, id)
		}
	}
	report.ExtractTasks = len(extractIDs)
	if report.ExtractTasks == 0 {
		return stop(report, StageExtract), nil
	}

	var items []model.SourcedData
	for _, t := range c.waitAll(ctx, StageExtract, extractIDs) {
		if item, ok := sourcedFrom(t); ok {
			items = append(items, item)
		}
	}
	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "workflow: extract")
	}
	report.Extracted = len(items)
	if report.Extracted == 0 {
		return stop(report, StageExtract), nil
	}

	storeIDs, err := c.api.StoreAggregated(ctx, companyID, items, false)
	if err != nil {
		log.Warn("workflow: start storage", zap.Error(err))
	}
	report.StoreTasks = len(storeIDs)
	if report.StoreTasks == 0 {
		return stop(report, StageStore), nil
	}
	stored := c.waitAll(ctx, StageStore, storeIDs)
	report.CompletedCount = len(stored)
	report.FailedCount = report.StoreTasks - report.CompletedCount

	log.Info("workflow: pipeline finished",
		zap.Int("results", report.ResultsFound),
		zap.Int("crawled", report.Crawled),
		zap.Int("extracted", report.Extracted),
		zap.Int("stored", report.CompletedCount),
		zap.Int("store_failed", report.FailedCount),
	)
	return report, nil
}

// waitAll polls ids concurrently and returns the tasks that succeeded.
// A failed or timed-out sibling is logged and left out.
func (c *Coordinator) waitAll(ctx context.Context, stage string, ids []string) []*model.Task {
	tasks := make([]*model.Task, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			t, err := c.poller.Wait(ctx, id)
			if err != nil {
				zap.L().Warn("workflow: sibling skipped",
					zap.String("stage", stage),
					zap.String("task_id", id),
					zap.Error(err),
				)
				return nil
			}
			tasks[i] = t
			return nil
		})
	}
	_ = g.Wait()

	out := tasks[:0]
	for _, t := range tasks {
		if succeeded(t) {
			out = append(out, t)
		}
	}
	return out
}

func stop(report *model.PipelineReport, stage string) *model.PipelineReport {
	report.StoppedAt = stage
	zap.L().Info("workflow: pipeline stopped", zap.String("company_id", report.CompanyID), zap.String("stage", stage))
	return report
}
