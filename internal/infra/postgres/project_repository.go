package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/jinford/kb-chat/internal/core/project"
)

// ProjectRepository は core/project.Repository を実装する PostgreSQL リポジトリ。
type ProjectRepository struct {
	pool *pgxpool.Pool
}

// NewProjectRepository は新しい ProjectRepository を返す。
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

var _ project.Repository = (*ProjectRepository)(nil)

func (r *ProjectRepository) CreateProject(ctx context.Context, tenantID uuid.UUID, name string, description string) (*project.Project, error) {
	p := &project.Project{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO projects (id, tenant_id, name, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		UUIDToPgtype(p.ID), UUIDToPgtype(p.TenantID), p.Name, p.Description, TimeToPgtype(p.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) GetProjectByID(ctx context.Context, id uuid.UUID) (mo.Option[*project.Project], error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, created_at
		 FROM projects WHERE id = $1`,
		UUIDToPgtype(id),
	)

	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*project.Project](), nil
		}
		return mo.None[*project.Project](), fmt.Errorf("failed to get project: %w", err)
	}
	return mo.Some(p), nil
}

func (r *ProjectRepository) ListProjectsByTenant(ctx context.Context, tenantID uuid.UUID) ([]*project.Project, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, description, created_at
		 FROM projects WHERE tenant_id = $1
		 ORDER BY created_at ASC, id ASC`,
		UUIDToPgtype(tenantID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*project.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) DeleteProject(ctx context.Context, id uuid.UUID) error {
	// documents / chunks / conversations / messages はFKのON DELETE CASCADEで連鎖削除される
	_, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetTenantStats(ctx context.Context, tenantID uuid.UUID) (*project.TenantStats, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT
		   count(DISTINCT p.id),
		   count(DISTINCT d.id),
		   count(DISTINCT c.id),
		   count(DISTINCT cv.id)
		 FROM projects p
		 LEFT JOIN documents d ON d.project_id = p.id
		 LEFT JOIN chunks c ON c.project_id = p.id
		 LEFT JOIN conversations cv ON cv.project_id = p.id
		 WHERE p.tenant_id = $1`,
		UUIDToPgtype(tenantID),
	)

	var stats project.TenantStats
	if err := row.Scan(&stats.Projects, &stats.Documents, &stats.Chunks, &stats.Conversations); err != nil {
		return nil, fmt.Errorf("failed to get tenant stats: %w", err)
	}
	return &stats, nil
}

func scanProject(row pgx.Row) (*project.Project, error) {
	var (
		p         project.Project
		id, tid   pgtype.UUID
		createdAt pgtype.Timestamp
	)
	if err := row.Scan(&id, &tid, &p.Name, &p.Description, &createdAt); err != nil {
		return nil, err
	}
	p.ID = PgtypeToUUID(id)
	p.TenantID = PgtypeToUUID(tid)
	p.CreatedAt = PgtypeToTime(createdAt)
	return &p, nil
}
