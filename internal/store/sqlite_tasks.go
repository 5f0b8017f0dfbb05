package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-research/internal/model"
)

const sqliteTaskColumns = `id, agent_type, task_type, status, params, result, error, created_at, started_at, completed_at`

func (s sqliteQueries) CreateTask(ctx context.Context, agentType model.AgentType, taskType model.TaskType, params model.Params) (*model.Task, error) {
	id := uuid.New().String()
	ts := now()

	paramsJSON, err := marshalNullable(params)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create task")
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO agent_tasks (id, agent_type, task_type, status, params, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(agentType), string(taskType), string(model.TaskStatusPending), nullString(paramsJSON), ts,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert task")
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

func (s sqliteQueries) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sqliteTaskColumns+` FROM agent_tasks WHERE id = ?`, id,
	)
	t, err := scanSQLiteTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get task %s", id)
	}
	return t, nil
}

func (s sqliteQueries) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + sqliteTaskColumns + ` FROM agent_tasks WHERE 1=1`
	var args []any

	if filter.AgentType != "" {
		query += ` AND agent_type = ?`
		args = append(args, string(filter.AgentType))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tasks")
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanSQLiteTask(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		tasks = append(tasks, *t)
	}
	return tasks, eris.Wrap(rows.Err(), "sqlite: list tasks iterate")
}

func (s sqliteQueries) DeleteTask(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM agent_tasks WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete task %s", id)
	}
	return checkRowsAffected(res, "task", id)
}

func (s sqliteQueries) ClaimTask(ctx context.Context, id string) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`UPDATE agent_tasks SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		string(model.TaskStatusRunning), now(), id, string(model.TaskStatusPending),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim task %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: claim rows affected")
	}
	return n == 1, nil
}

func (s sqliteQueries) FinishTask(ctx context.Context, id string, status model.TaskStatus, result model.Result, errMsg string) (bool, error) {
	if !status.Terminal() {
		return false, eris.Errorf("sqlite: finish task %s: %s is not terminal", id, status)
	}
	resultJSON, err := marshalNullable(result)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: finish task")
	}

	res, err := s.q.ExecContext(ctx,
		`UPDATE agent_tasks SET status = ?, result = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?`,
		string(status), nullString(resultJSON), nullText(errMsg), now(), id, string(model.TaskStatusRunning),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: finish task %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: finish rows affected")
	}
	return n == 1, nil
}

func (s sqliteQueries) RecordResult(ctx context.Context, id string, result model.Result) error {
	resultJSON, err := marshalNullable(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: record result")
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE agent_tasks SET result = ? WHERE id = ? AND status = ?`,
		nullString(resultJSON), id, string(model.TaskStatusRunning),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record result %s", id)
	}
	return checkRowsAffected(res, "running task", id)
}

func scanSQLiteTask(row scannable) (*model.Task, error) {
	var t model.Task
	var params, result, errMsg sql.NullString
	var started, completed sql.NullTime

	if err := row.Scan(&t.ID, &t.AgentType, &t.TaskType, &t.Status, &params, &result, &errMsg,
		&t.CreatedAt, &started, &completed); err != nil {
		return nil, err
	}

	var err error
	if t.Params, err = unmarshalMap[model.Params]([]byte(params.String)); err != nil {
		return nil, err
	}
	if t.Result, err = unmarshalMap[model.Result]([]byte(result.String)); err != nil {
		return nil, err
	}
	t.Error = errMsg.String
	if started.Valid {
		t.StartedAt = timePtr(started.Time.UTC())
	}
	if completed.Valid {
		t.CompletedAt = timePtr(completed.Time.UTC())
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func nullString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func nullText(s string) any {
	if s == "" {
		return nil
	}
	return s
}
