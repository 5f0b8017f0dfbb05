package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 12
)

// TaskGetter reads a task's current state.
type TaskGetter interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
}

// Poller waits for tasks to finish at a fixed interval.
type Poller struct {
	api         TaskGetter
	interval    time.Duration
	maxAttempts int
}

// NewPoller creates a Poller. Non-positive values select the defaults.
func NewPoller(api TaskGetter, interval time.Duration, maxAttempts int) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxPollAttempts
	}
	return &Poller{api: api, interval: interval, maxAttempts: maxAttempts}
}

// Wait polls id until it completes, fails, or the attempt budget runs out.
// It makes at most maxAttempts reads and does not sleep after the last.
func (p *Poller) Wait(ctx context.Context, id string) (*model.Task, error) {
	for attempt := 1; ; attempt++ {
		task, err := p.api.GetTask(ctx, id)
		switch {
		case err != nil:
			if errors.Is(err, model.ErrNotFound) || ctx.Err() != nil || attempt >= p.maxAttempts {
				return nil, eris.Wrapf(err, "workflow: poll task %s", id)
			}
			zap.L().Warn("workflow: poll failed, retrying",
				zap.String("task_id", id),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		case task.Status == model.TaskStatusCompleted:
			return task, nil
		case task.Status == model.TaskStatusFailed:
			return nil, &TaskFailedError{TaskID: id, Message: task.Error}
		}

		if attempt >= p.maxAttempts {
			return nil, eris.Wrapf(ErrCoordinationTimeout, "workflow: task %s after %d polls", id, attempt)
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "workflow: poll task %s", id)
		case <-time.After(p.interval):
		}
	}
}
