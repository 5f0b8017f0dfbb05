package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
)

// ProfileStore is the persistence the profile driver needs.
type ProfileStore interface {
	ListActiveProfileRuns(ctx context.Context) ([]model.ProfileRun, error)
	UpdateProfileRun(ctx context.Context, run *model.ProfileRun) error
	FinishTask(ctx context.Context, id string, status model.TaskStatus, result model.Result, errMsg string) (bool, error)
}

// ProfileDriver advances generate_full_profile runs. Each tick reads task
// states without blocking and moves every active run forward at most one
// phase.
type ProfileDriver struct {
	runs     ProfileStore
	api      TaskAPI
	maxTicks int
	interval time.Duration
}

// NewProfileDriver creates a driver that ticks every interval and gives a
// phase maxTicks ticks before its unfinished tasks count as timed out.
func NewProfileDriver(runs ProfileStore, api TaskAPI, interval time.Duration, maxTicks int) *ProfileDriver {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if maxTicks <= 0 {
		maxTicks = defaultMaxPollAttempts
	}
	return &ProfileDriver{runs: runs, api: api, maxTicks: maxTicks, interval: interval}
}

// Run ticks until ctx is cancelled.
func (d *ProfileDriver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if err := d.Tick(ctx); err != nil {
			zap.L().Error("workflow: profile tick", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick advances every active run once. A run that cannot be advanced is
// logged and retried on the next tick.
func (d *ProfileDriver) Tick(ctx context.Context) error {
	runs, err := d.runs.ListActiveProfileRuns(ctx)
	if err != nil {
		return eris.Wrap(err, "workflow: list profile runs")
	}
	for i := range runs {
		run := &runs[i]
		if err := d.advance(ctx, run); err != nil {
			zap.L().Warn("workflow: advance profile run",
				zap.String("profile_run_id", run.ID),
				zap.String("phase", string(run.Phase)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (d *ProfileDriver) advance(ctx context.Context, run *model.ProfileRun) error {
	before := run.Phase
	var err error
	switch run.Phase {
	case model.PhaseSearching:
		err = d.searching(ctx, run)
	case model.PhaseCrawling:
		err = d.crawling(ctx, run)
	case model.PhaseExtracting:
		err = d.extracting(ctx, run)
	case model.PhaseStoring:
		d.storing(ctx, run)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if run.Phase != before {
		run.Polls = 0
		zap.L().Info("workflow: profile run advanced",
			zap.String("profile_run_id", run.ID),
			zap.String("from", string(before)),
			zap.String("to", string(run.Phase)),
		)
	} else {
		run.Polls++
	}
	if run.Phase.Terminal() {
		if err := d.finishParent(ctx, run); err != nil {
			return err
		}
	}
	return eris.Wrap(d.runs.UpdateProfileRun(ctx, run), "workflow: save profile run")
}

func (d *ProfileDriver) timedOut(run *model.ProfileRun) bool {
	return run.Polls+1 >= d.maxTicks
}

func (d *ProfileDriver) searching(ctx context.Context, run *model.ProfileRun) error {
	t, err := d.api.GetTask(ctx, run.SearchTaskID)
	if err != nil {
		return eris.Wrap(err, "workflow: read search task")
	}
	switch t.Status {
	case model.TaskStatusFailed:
		fail(run, fmt.Sprintf("search task failed: %s", t.Error))
		return nil
	case model.TaskStatusCompleted:
	default:
		if t.Status == model.TaskStatusPending && run.Polls == 0 {
			if err := d.api.ProcessTask(ctx, t.ID); err != nil {
				return eris.Wrap(err, "workflow: start search task")
			}
		}
		if d.timedOut(run) {
			fail(run, "search task did not finish in time")
		}
		return nil
	}

	results, err := d.api.SearchResults(ctx, run.SearchQueryID)
	if err != nil {
		return eris.Wrap(err, "workflow: read search results")
	}
	run.Report.ResultsFound = len(results)
	if len(results) == 0 {
		empty(run, StageSearch)
		return nil
	}
	ids, err := d.api.CrawlSearchResults(ctx, run.SearchQueryID)
	if err != nil {
		return eris.Wrap(err, "workflow: start crawls")
	}
	run.CrawlTaskIDs = ids
	run.Report.CrawlTasks = len(ids)
	if len(ids) == 0 {
		empty(run, StageCrawl)
		return nil
	}
	run.Phase = model.PhaseCrawling
	return nil
}

func (d *ProfileDriver) crawling(ctx context.Context, run *model.ProfileRun) error {
	done, ok := d.collect(ctx, run, run.CrawlTaskIDs)
	if !ok {
		return nil
	}
	var ids []string
	crawled := 0
	for _, t := range done {
		if !succeeded(t) {
			continue
		}
		crawled++
		id, err := d.api.ExtractFromCrawl(ctx, t.ID)
		if err != nil {
			zap.L().Warn("workflow: start extraction", zap.String("crawl_task_id", t.ID), zap.Error(err))
			continue
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	run.Report.Crawled = crawled
	run.ExtractTaskIDs = ids
	run.Report.ExtractTasks = len(ids)
	if crawled == 0 {
		empty(run, StageCrawl)
		return nil
	}
	if len(ids) == 0 {
		empty(run, StageExtract)
		return nil
	}
	run.Phase = model.PhaseExtracting
	return nil
}

func (d *ProfileDriver) extracting(ctx context.Context, run *model.ProfileRun) error {
	done, ok := d.collect(ctx, run, run.ExtractTaskIDs)
	if !ok {
		return nil
	}
	var items []model.SourcedData
	for _, t := range done {
		if item, ok := sourcedFrom(t); ok {
			items = append(items, item)
		}
	}
	run.Aggregated = items
	run.Report.Extracted = len(items)
	if len(items) == 0 {
		empty(run, StageExtract)
		return nil
	}
	ids, err := d.api.StoreAggregated(ctx, run.CompanyID, items, false)
	if err != nil {
		return eris.Wrap(err, "workflow: start storage")
	}
	run.StoreTaskIDs = ids
	run.Report.StoreTasks = len(ids)
	if len(ids) == 0 {
		empty(run, StageStore)
		return nil
	}
	run.Phase = model.PhaseStoring
	return nil
}

func (d *ProfileDriver) storing(ctx context.Context, run *model.ProfileRun) {
	done, ok := d.collect(ctx, run, run.StoreTaskIDs)
	if !ok {
		return
	}
	completed := 0
	for _, t := range done {
		if succeeded(t) {
			completed++
		}
	}
	run.Report.CompletedCount = completed
	run.Report.FailedCount = len(run.StoreTaskIDs) - completed
	run.Phase = model.PhaseDone
}

// collect reads ids and reports whether the phase can close: every task is
// terminal, or the phase ran out of ticks. Unreadable and unfinished tasks
// are left out of the returned slice.
func (d *ProfileDriver) collect(ctx context.Context, run *model.ProfileRun, ids []string) ([]*model.Task, bool) {
	tasks := make([]*model.Task, 0, len(ids))
	pending := 0
	for _, id := range ids {
		t, err := d.api.GetTask(ctx, id)
		if err != nil {
			zap.L().Warn("workflow: read sibling", zap.String("task_id", id), zap.Error(err))
			pending++
			continue
		}
		if !t.Status.Terminal() {
			pending++
			continue
		}
		tasks = append(tasks, t)
	}
	if pending > 0 && !d.timedOut(run) {
		return nil, false
	}
	if pending > 0 {
		zap.L().Warn("workflow: siblings timed out",
			zap.String("profile_run_id", run.ID),
			zap.String("phase", string(run.Phase)),
			zap.Int("pending", pending),
		)
	}
	return tasks, true
}

func (d *ProfileDriver) finishParent(ctx context.Context, run *model.ProfileRun) error {
	var (
		status = model.TaskStatusCompleted
		result model.Result
		errMsg string
	)
	switch run.Phase {
	case model.PhaseFailed:
		status = model.TaskStatusFailed
		errMsg = run.Error
	case model.PhaseEmpty:
		result = model.Result{
			"status":  "empty",
			"message": fmt.Sprintf("Profile for %s stopped at %s: nothing to forward.", run.CompanyName, run.Report.StoppedAt),
			"report":  run.Report,
		}
	default:
		result = model.Result{
			"status": "success",
			"message": fmt.Sprintf("Profile for %s stored %d of %d items.",
				run.CompanyName, run.Report.CompletedCount, run.Report.StoreTasks),
			"report": run.Report,
		}
	}
	ok, err := d.runs.FinishTask(ctx, run.ParentTaskID, status, result, errMsg)
	if err != nil {
		return eris.Wrap(err, "workflow: finish profile task")
	}
	if !ok {
		zap.L().Warn("workflow: profile task was no longer running", zap.String("task_id", run.ParentTaskID))
	}
	return nil
}

func fail(run *model.ProfileRun, msg string) {
	run.Phase = model.PhaseFailed
	run.Error = msg
}

func empty(run *model.ProfileRun, stage string) {
	run.Phase = model.PhaseEmpty
	run.Report.StoppedAt = stage
}
