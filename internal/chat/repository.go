package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agency-chat/internal/model"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const messageColumns = `id, project_id, sender_id, type, content, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*model.Message, error) {
	msg := &model.Message{}
	var kind string
	if err := row.Scan(&msg.ID, &msg.ProjectID, &msg.SenderID, &kind, &msg.Content, &msg.CreatedAt); err != nil {
		return nil, err
	}
	msg.Kind = model.Kind(kind)
	return msg, nil
}

func (r *Repository) SaveMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	query := `
		INSERT INTO messages (id, project_id, sender_id, type, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + messageColumns
	row := r.db.QueryRowContext(ctx, query, uuid.NewString(), msg.ProjectID, msg.SenderID, string(msg.Kind), msg.Content)
	return scanMessage(row)
}

func (r *Repository) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// GetProjectMessages returns the thread in display order (oldest first).
func (r *Repository) GetProjectMessages(ctx context.Context, projectID string) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE project_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (r *Repository) UpdateContent(ctx context.Context, id, content string) (*model.Message, error) {
	query := `UPDATE messages SET content = $2 WHERE id = $1 RETURNING ` + messageColumns
	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id, content))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

func (r *Repository) DeleteMessage(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountSince counts messages newer than since that the actor did not send.
// An empty ownerID counts across every project.
func (r *Repository) CountSince(ctx context.Context, actorID, ownerID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN projects p ON p.id = m.project_id
		WHERE m.created_at > $1 AND m.sender_id <> $2 AND ($3 = '' OR p.user_id::text = $3)`
	var n int
	err := r.db.QueryRowContext(ctx, query, since, actorID, ownerID).Scan(&n)
	return n, err
}

// LatestByProject maps project id to its newest message timestamp.
func (r *Repository) LatestByProject(ctx context.Context, ownerID string) (map[string]time.Time, error) {
	query := `
		SELECT m.project_id, MAX(m.created_at)
		FROM messages m
		JOIN projects p ON p.id = m.project_id
		WHERE ($1 = '' OR p.user_id::text = $1)
		GROUP BY m.project_id`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	latest := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var at time.Time
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		latest[id] = at
	}
	return latest, rows.Err()
}
