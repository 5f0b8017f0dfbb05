package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
)

const pgTaskColumns = `id, agent_type, task_type, status, params, result, error, created_at, started_at, completed_at`

func (s pgQueries) CreateTask(ctx context.Context, agentType model.AgentType, taskType model.TaskType, params model.Params) (*model.Task, error) {
	id := uuid.New().String()
	ts := now()

	paramsJSON, err := marshalNullable(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create task")
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO agent_tasks (id, agent_type, task_type, status, params, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(agentType), string(taskType), string(model.TaskStatusPending), paramsJSON, ts,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert task")
	}

	return &model.Task{
		ID:        id,
		AgentType: agentType,
		TaskType:  taskType,
		Status:    model.TaskStatusPending,
		Params:    params,
		CreatedAt: ts,
	}, nil
}

func (s pgQueries) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t, err := scanPgTask(s.q.QueryRow(ctx,
		`SELECT `+pgTaskColumns+` FROM agent_tasks WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get task %s", id)
	}
	return t, nil
}

func (s pgQueries) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + pgTaskColumns + ` FROM agent_tasks WHERE 1=1`
	var args []any
	argN := 1

	if filter.AgentType != "" {
		query += fmt.Sprintf(` AND agent_type = $%d`, argN)
		args = append(args, string(filter.AgentType))
		argN++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argN)
		args = append(args, string(filter.Status))
		argN++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argN)
	args = append(args, limit)
	argN++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanPgTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "postgres: list tasks iterate")
}

func (s pgQueries) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM agent_tasks WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete task %s", id)
	}
	return checkTag(tag, "task", id)
}

func (s pgQueries) ClaimTask(ctx context.Context, id string) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE agent_tasks SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		string(model.TaskStatusRunning), now(), id, string(model.TaskStatusPending),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim task %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s pgQueries) FinishTask(ctx context.Context, id string, status model.TaskStatus, result model.Result, errMsg string) (bool, error) {
	if !status.Terminal() {
		return false, eris.Errorf("postgres: finish task %s: %s is not terminal", id, status)
	}
	resultJSON, err := marshalNullable(result)
	if err != nil {
		return false, eris.Wrap(err, "postgres: finish task")
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE agent_tasks SET status = $1, result = $2, error = $3, completed_at = $4 WHERE id = $5 AND status = $6`,
		string(status), resultJSON, nullText(errMsg), now(), id, string(model.TaskStatusRunning),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: finish task %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s pgQueries) RecordResult(ctx context.Context, id string, result model.Result) error {
	resultJSON, err := marshalNullable(result)
	if err != nil {
		return eris.Wrap(err, "postgres: record result")
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE agent_tasks SET result = $1 WHERE id = $2 AND status = $3`,
		resultJSON, id, string(model.TaskStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record result %s", id)
	}
	return checkTag(tag, "running task", id)
}

func scanPgTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var agentType, taskType, status string
	var params, result []byte
	var errMsg *string

	if err := row.Scan(&t.ID, &agentType, &taskType, &status, &params, &result, &errMsg,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	t.AgentType = model.AgentType(agentType)
	t.TaskType = model.TaskType(taskType)
	t.Status = model.TaskStatus(status)

	var err error
	if t.Params, err = unmarshalMap[model.Params](params); err != nil {
		return nil, err
	}
	if t.Result, err = unmarshalMap[model.Result](result); err != nil {
		return nil, err
	}
	if errMsg != nil {
		t.Error = *errMsg
	}
	return &t, nil
}
