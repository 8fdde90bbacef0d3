package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/springboard/internal/database"
	"github.com/BradenHooton/springboard/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const projectColumns = `id, title, description, owner_id, created_at, updated_at`

type ProjectRepository struct {
	pool *pgxpool.Pool
}

func NewProjectRepository(db *database.DB) *ProjectRepository {
	return &ProjectRepository{pool: db.Pool}
}

func scanProjectRow(scanner rowScanner) (*models.Project, error) {
	var p models.Project
	var description *string

	if err := scanner.Scan(&p.ID, &p.Title, &description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	p.Description = deref(description)

	return &p, nil
}

func scanProjectRows(rows pgx.Rows) ([]*models.Project, error) {
	defer rows.Close()

	projects := make([]*models.Project, 0)
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return projects, nil
}

func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	return scanProjectRow(r.pool.QueryRow(ctx, query, id))
}

func (r *ProjectRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Project, error) {
	query := `
		SELECT ` + projectColumns + ` FROM projects
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	return scanProjectRows(rows)
}

func (r *ProjectRepository) Create(ctx context.Context, p *models.Project) (*models.Project, error) {
	p.ID = uuid.New().String()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO projects (id, title, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + projectColumns

	return scanProjectRow(r.pool.QueryRow(ctx, query,
		p.ID, p.Title, nullable(p.Description), p.OwnerID, p.CreatedAt, p.UpdatedAt,
	))
}

func (r *ProjectRepository) Update(ctx context.Context, p *models.Project) (*models.Project, error) {
	query := `
		UPDATE projects SET title = $1, description = $2, updated_at = $3
		WHERE id = $4
		RETURNING ` + projectColumns

	return scanProjectRow(r.pool.QueryRow(ctx, query, p.Title, nullable(p.Description), time.Now().UTC(), p.ID))
}

func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteByOwner removes every project owned by ownerID and returns how many
// rows were deleted.
func (r *ProjectRepository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
