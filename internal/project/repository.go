package project

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agency-chat/internal/model"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("project not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const projectColumns = `id, user_id, type, description, status, budget, timeline, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*model.Project, error) {
	p := &model.Project{}
	var status string
	var timeline sql.NullTime
	if err := row.Scan(&p.ID, &p.UserID, &p.Type, &p.Description, &status, &p.Budget,
		&timeline, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Status = model.Status(status)
	if timeline.Valid {
		t := timeline.Time
		p.Timeline = &t
	}
	return p, nil
}

func (r *Repository) Create(ctx context.Context, p *model.Project) (*model.Project, error) {
	query := `
		INSERT INTO projects (id, user_id, type, description, status, budget, timeline)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + projectColumns

	var timeline sql.NullTime
	if p.Timeline != nil {
		timeline = sql.NullTime{Time: *p.Timeline, Valid: true}
	}
	row := r.db.QueryRowContext(ctx, query, uuid.NewString(), p.UserID, p.Type, p.Description,
		string(p.Status), p.Budget, timeline)
	return scanProject(row)
}

func (r *Repository) Get(ctx context.Context, id string) (*model.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// List returns projects newest first. An empty ownerID lists every project.
func (r *Repository) List(ctx context.Context, ownerID string) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if ownerID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateStatus moves the project from one status to the next. The WHERE
// clause on the current status makes concurrent advances lose cleanly.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to model.Status, now time.Time) (*model.Project, error) {
	query := `
		UPDATE projects SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + projectColumns
	row := r.db.QueryRowContext(ctx, query, id, string(from), string(to), now)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleStatus
	}
	return p, err
}
