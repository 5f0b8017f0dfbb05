// Package dispatch claims pending tasks, routes them to agents and writes
// their terminal state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-research/internal/agent"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/store"
)

const tracerName = "company-research"

// drainPageSize is how many pending tasks one drain round lists.
const drainPageSize = 500

// errLostTask means the task left running before the attempt could finish it.
var errLostTask = eris.New("task no longer running")

// Dispatcher executes tasks through the agent registry.
type Dispatcher struct {
	store       store.Store
	registry    *agent.Registry
	metrics     *Metrics
	concurrency int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records task metrics to m.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithConcurrency bounds DrainPending. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.concurrency = max(n, 1) }
}

// New creates a Dispatcher.
func New(st store.Store, registry *agent.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: st, registry: registry, concurrency: 1}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run processes taskID and guarantees it does not stay running because of
// a fault outside the agent's own error handling: a panic, or an error
// escaping Process, marks the task failed before returning. Every
// execution path, including DrainPending, goes through Run.
func (d *Dispatcher) Run(ctx context.Context, taskID string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("dispatch: task panicked",
				zap.String("task_id", taskID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			err = eris.Errorf("dispatch: task %s panicked: %v", taskID, p)
			d.failTask(ctx, taskID, fmt.Sprintf("internal error: %v", p))
		}
	}()

	err = d.Process(ctx, taskID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		d.failTask(ctx, taskID, "internal error: "+err.Error())
	}
	return err
}

// failTask is a best-effort terminal write. It only affects running tasks.
func (d *Dispatcher) failTask(ctx context.Context, taskID, msg string) {
	ctx = context.WithoutCancel(ctx)
	ok, err := d.store.FinishTask(ctx, taskID, model.TaskStatusFailed, nil, msg)
	if err != nil {
		zap.L().Error("dispatch: could not fail task", zap.String("task_id", taskID), zap.Error(err))
		return
	}
	if ok {
		zap.L().Warn("dispatch: task failed by runner", zap.String("task_id", taskID), zap.String("error", msg))
	}
}

// Process runs one task. Terminal tasks and tasks another dispatcher
// claimed first are left untouched. An agent failure is recorded on the
// task and is not returned.
func (d *Dispatcher) Process(ctx context.Context, taskID string) error {
	task, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		return eris.Wrapf(err, "dispatch: load task %s", taskID)
	}
	log := zap.L().With(
		zap.String("task_id", task.ID),
		zap.String("agent_type", string(task.AgentType)),
		zap.String("task_type", string(task.TaskType)),
	)
	if task.Status.Terminal() {
		log.Debug("dispatch: task already terminal", zap.String("status", string(task.Status)))
		return nil
	}

	claimed, err := d.store.ClaimTask(ctx, task.ID)
	if err != nil {
		return eris.Wrapf(err, "dispatch: claim task %s", task.ID)
	}
	if !claimed {
		log.Debug("dispatch: task not claimable", zap.String("status", string(task.Status)))
		return nil
	}
	task.Status = model.TaskStatusRunning

	ctx, span := otel.Tracer(tracerName).Start(ctx, "task", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("agent.type", string(task.AgentType)),
		attribute.String("task.type", string(task.TaskType)),
	))
	defer span.End()

	start := time.Now()
	d.metrics.start()
	status := string(model.TaskStatusFailed)
	defer func() { d.metrics.finish(task.AgentType, status, time.Since(start)) }()

	a, err := d.registry.Get(task.AgentType)
	if err == nil {
		var detached bool
		detached, err = d.execute(ctx, a, *task)
		switch {
		case err == nil && detached:
			status = "detached"
			log.Info("dispatch: task detached", zap.Duration("elapsed", time.Since(start)))
			return nil
		case err == nil:
			status = string(model.TaskStatusCompleted)
			log.Info("dispatch: task completed", zap.Duration("elapsed", time.Since(start)))
			return nil
		case errors.Is(err, errLostTask):
			status = "lost"
			log.Warn("dispatch: task finished elsewhere, attempt discarded")
			return nil
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "task failed")
	log.Warn("dispatch: task failed", zap.Error(err))
	if ferr := d.recordFailure(ctx, a, *task, err); ferr != nil {
		return eris.Wrapf(ferr, "dispatch: record failure of %s", task.ID)
	}
	return nil
}

// execute runs the agent inside a task session and commits its side
// effects together with the task's new state.
func (d *Dispatcher) execute(ctx context.Context, a agent.Agent, task model.Task) (detached bool, err error) {
	tx, err := d.store.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "dispatch: begin session")
	}
	// Releases the session on error and panic paths.
	defer tx.Rollback(context.WithoutCancel(ctx)) //nolint:errcheck

	out, err := a.Process(ctx, tx, task)
	if err != nil {
		return false, err
	}

	if out.KeepRunning {
		if err := tx.RecordResult(ctx, task.ID, out.Result); err != nil {
			return false, eris.Wrap(err, "dispatch: record result")
		}
	} else {
		ok, err := tx.FinishTask(ctx, task.ID, model.TaskStatusCompleted, withSummary(out.Result, task), "")
		if err != nil {
			return false, eris.Wrap(err, "dispatch: finish task")
		}
		if !ok {
			return false, errLostTask
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, eris.Wrap(err, "dispatch: commit session")
	}
	return out.KeepRunning, nil
}

// recordFailure marks the task failed in a fresh session. The agent's
// failure hook runs in that session first; if the hook fails, the failure
// is recorded without it.
func (d *Dispatcher) recordFailure(ctx context.Context, a agent.Agent, task model.Task, cause error) error {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()

	if hook, ok := a.(agent.FailureHook); ok {
		err := d.inSession(ctx, func(tx store.Tx) error {
			if err := hook.OnFailure(ctx, tx, task, cause); err != nil {
				return err
			}
			return finishFailed(ctx, tx, task.ID, msg)
		})
		if err == nil {
			return nil
		}
		zap.L().Warn("dispatch: failure hook failed", zap.String("task_id", task.ID), zap.Error(err))
	}
	return d.inSession(ctx, func(tx store.Tx) error {
		return finishFailed(ctx, tx, task.ID, msg)
	})
}

func (d *Dispatcher) inSession(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := d.store.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "dispatch: begin session")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "dispatch: commit session")
}

func finishFailed(ctx context.Context, q store.Queries, taskID, msg string) error {
	ok, err := q.FinishTask(ctx, taskID, model.TaskStatusFailed, nil, msg)
	if err != nil {
		return eris.Wrap(err, "dispatch: fail task")
	}
	if !ok {
		zap.L().Warn("dispatch: task left running before failure was recorded", zap.String("task_id", taskID))
	}
	return nil
}

// withSummary adds the default status and message to results that carry
// no status of their own.
func withSummary(r model.Result, task model.Task) model.Result {
	if r == nil {
		r = model.Result{}
	}
	if _, ok := r["status"]; ok {
		return r
	}
	r["status"] = "success"
	if _, ok := r["message"]; !ok {
		r["message"] = fmt.Sprintf("%s/%s completed", task.AgentType, task.TaskType)
	}
	return r
}

// DrainPending processes pending tasks with bounded concurrency until a
// round finds no task it has not already attempted. Tasks created during
// the drain, such as a profile's search task, are picked up by later
// rounds. It returns the number of tasks attempted.
func (d *Dispatcher) DrainPending(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})
	for {
		pending, err := d.store.ListTasks(ctx, model.TaskFilter{Status: model.TaskStatusPending, Limit: drainPageSize})
		if err != nil {
			return len(seen), eris.Wrap(err, "dispatch: list pending")
		}
		// Oldest first.
		slices.Reverse(pending)

		var batch []string
		for _, t := range pending {
			if _, ok := seen[t.ID]; !ok {
				seen[t.ID] = struct{}{}
				batch = append(batch, t.ID)
			}
		}
		if len(batch) == 0 {
			return len(seen), nil
		}
		zap.L().Info("dispatch: draining pending tasks", zap.Int("count", len(batch)))

		var g errgroup.Group
		g.SetLimit(d.concurrency)
		for _, id := range batch {
			g.Go(func() error {
				if err := d.Run(ctx, id); err != nil {
					zap.L().Error("dispatch: drain task", zap.String("task_id", id), zap.Error(err))
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return len(seen), eris.Wrap(err, "dispatch: drain")
		}
	}
}
