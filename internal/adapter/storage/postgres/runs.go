package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var runColumns = []string{
	"id", "workspace_id", "task_id", "project_id", "status",
	"thinking_artifacts", "created_at", "updated_at",
}

// RunRepository persists workflow engine runs in the stakwork_runs table
type RunRepository struct {
	db  *pgxpool.Pool
	qb  sq.StatementBuilderType
	now func() time.Time
	log *zap.Logger
}

func NewRunRepository(db *pgxpool.Pool, log *zap.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
		log: log,
	}
}

func (r *RunRepository) SaveRun(ctx context.Context, run *domain.Run) error {
	artifacts, err := encodeArtifacts(run.ThinkingArtifacts)
	if err != nil {
		return err
	}

	var taskID *string
	if run.TaskID != "" {
		taskID = &run.TaskID
	}

	query, args, err := r.qb.Insert("stakwork_runs").
		Columns(runColumns...).
		Values(run.ID, run.WorkspaceID, taskID, run.ProjectID, run.Status,
			artifacts, run.CreatedAt, run.UpdatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return mapError(err, "run "+run.ID)
	}
	return nil
}

func (r *RunRepository) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	query, args, err := r.qb.Select(runColumns...).From("stakwork_runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	var (
		run       domain.Run
		taskID    *string
		artifacts []byte
	)
	err = r.db.QueryRow(ctx, query, args...).Scan(&run.ID, &run.WorkspaceID, &taskID, &run.ProjectID,
		&run.Status, &artifacts, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	if taskID != nil {
		run.TaskID = *taskID
	}
	if len(artifacts) > 0 {
		if err := json.Unmarshal(artifacts, &run.ThinkingArtifacts); err != nil {
			// A corrupt cache is treated as empty so callers fall back to the engine
			r.log.Warn("Discarding undecodable thinking artifacts", zap.String("run_id", id), zap.Error(err))
			run.ThinkingArtifacts = nil
		}
	}
	return &run, nil
}

func (r *RunRepository) SaveThinkingArtifacts(ctx context.Context, id string, artifacts []domain.ThinkingArtifact) error {
	data, err := encodeArtifacts(artifacts)
	if err != nil {
		return err
	}

	query, args, err := r.qb.Update("stakwork_runs").
		Set("thinking_artifacts", data).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save thinking artifacts %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func encodeArtifacts(artifacts []domain.ThinkingArtifact) ([]byte, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}
	return json.Marshal(artifacts)
}
