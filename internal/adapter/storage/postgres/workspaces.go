package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var workspaceColumns = []string{
	"id", "slug", "name", "pool_name", "pool_api_key", "minimum_vms", "updated_at",
}

// WorkspaceRepository reads and updates workspace fleet settings
type WorkspaceRepository struct {
	db  *pgxpool.Pool
	qb  sq.StatementBuilderType
	now func() time.Time
	log *zap.Logger
}

func NewWorkspaceRepository(db *pgxpool.Pool, log *zap.Logger) *WorkspaceRepository {
	return &WorkspaceRepository{
		db:  db,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
		log: log,
	}
}

// SaveWorkspace inserts a workspace or overwrites the one with the same slug
func (r *WorkspaceRepository) SaveWorkspace(ctx context.Context, ws *domain.Workspace) error {
	query, args, err := r.qb.Insert("workspaces").
		Columns(workspaceColumns...).
		Values(ws.ID, ws.Slug, ws.Name, ws.PoolName, ws.PoolAPIKey, ws.MinimumVMs, r.now().UTC()).
		Suffix(`ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			pool_name = EXCLUDED.pool_name,
			pool_api_key = EXCLUDED.pool_api_key,
			minimum_vms = EXCLUDED.minimum_vms,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return mapError(err, "workspace "+ws.Slug)
	}
	return nil
}

func (r *WorkspaceRepository) GetBySlug(ctx context.Context, slug string) (*domain.Workspace, error) {
	query, args, err := r.qb.Select(workspaceColumns...).From("workspaces").Where(sq.Eq{"slug": slug}).ToSql()
	if err != nil {
		return nil, err
	}
	return r.scanOne(ctx, query, args...)
}

func (r *WorkspaceRepository) UpdateMinimumVMs(ctx context.Context, slug string, minimumVMs int) (*domain.Workspace, error) {
	query, args, err := r.qb.Update("workspaces").
		Set("minimum_vms", minimumVMs).
		Set("updated_at", r.now().UTC()).
		Where(sq.Eq{"slug": slug}).
		Suffix("RETURNING " + joinColumns(workspaceColumns)).
		ToSql()
	if err != nil {
		return nil, err
	}

	ws, err := r.scanOne(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	r.log.Info("Workspace minimumVms updated", zap.String("workspace", slug), zap.Int("minimum_vms", minimumVMs))
	return ws, nil
}

func (r *WorkspaceRepository) scanOne(ctx context.Context, query string, args ...any) (*domain.Workspace, error) {
	var ws domain.Workspace
	err := r.db.QueryRow(ctx, query, args...).Scan(&ws.ID, &ws.Slug, &ws.Name,
		&ws.PoolName, &ws.PoolAPIKey, &ws.MinimumVMs, &ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workspace: %w", err)
	}
	return &ws, nil
}
