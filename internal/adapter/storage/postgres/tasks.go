package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var taskColumns = []string{
	"id", "workspace_id", "title", "workflow_status",
	"workflow_started_at", "workflow_completed_at", "stakwork_project_id",
	"created_at", "updated_at",
}

type taskRepository struct {
	db  *pgxpool.Pool
	qb  sq.StatementBuilderType
	log *zap.Logger
}

// NewTaskRepository creates a new postgres repository
func NewTaskRepository(db *pgxpool.Pool, log *zap.Logger) port.TaskRepository {
	return &taskRepository{
		db:  db,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		log: log,
	}
}

func (r *taskRepository) Save(ctx context.Context, task *domain.Task) error {
	query, args, err := r.qb.Insert("tasks").
		Columns(taskColumns...).
		Values(task.ID, task.WorkspaceID, task.Title, task.WorkflowStatus,
			task.WorkflowStartedAt, task.WorkflowCompletedAt, task.StakworkProjectID,
			task.CreatedAt, task.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.log.Error("Failed to save task", zap.String("task_id", task.ID), zap.Error(err))
		return mapError(err, "task "+task.ID)
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	query, args, err := r.qb.Select(taskColumns...).From("tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	task, err := scanTask(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// ApplyWorkflowStatus falls back to a plain read when the guarded update matched no row
func (r *taskRepository) ApplyWorkflowStatus(ctx context.Context, id string, status domain.WorkflowStatus, at time.Time) (*domain.Task, bool, error) {
	query, args, err := applyStatusQuery(r.qb, id, status, at)
	if err != nil {
		return nil, false, err
	}

	task, err := scanTask(r.db.QueryRow(ctx, query, args...))
	if err == nil {
		return task, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("update task %s: %w", id, err)
	}

	// Either the task does not exist or it is already terminal
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

// applyStatusQuery builds a single conditional UPDATE guarded on the stored
// status being non-terminal. Timestamps are only ever stamped once.
func applyStatusQuery(qb sq.StatementBuilderType, id string, status domain.WorkflowStatus, at time.Time) (string, []interface{}, error) {
	update := qb.Update("tasks").
		Set("workflow_status", status).
		Set("updated_at", at)
	if status == domain.WorkflowStatusInProgress {
		update = update.Set("workflow_started_at", sq.Expr("COALESCE(workflow_started_at, ?)", at))
	}
	if status.IsTerminal() {
		update = update.Set("workflow_completed_at", sq.Expr("COALESCE(workflow_completed_at, ?)", at))
	}

	return update.
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"workflow_status": terminalStatuses()}).
		Suffix("RETURNING " + joinColumns(taskColumns)).
		ToSql()
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.WorkflowStatus,
		&t.WorkflowStartedAt, &t.WorkflowCompletedAt, &t.StakworkProjectID,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func terminalStatuses() []string {
	statuses := domain.TerminalWorkflowStatuses()
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
