package user

import (
	"context"
	"database/sql"
	"errors"

	"agency-chat/internal/model"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts the user. The very first account becomes the
// administrator; every later one is a client.
func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	query := `
		INSERT INTO users (id, username, password, role)
		SELECT $1, $2, $3,
		       CASE WHEN EXISTS (SELECT 1 FROM users) THEN 'client' ELSE 'admin' END
		RETURNING role`

	id := uuid.NewString()
	var role string
	err := r.db.QueryRowContext(ctx, query, id, user.Username, user.Password).Scan(&role)
	if err != nil {
		return nil, err
	}

	user.ID = id
	user.Role = model.Role(role)
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password, role FROM users WHERE username = $1"

	var role string
	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Password, &role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	u.Role = model.Role(role)
	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username, role FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role); err != nil {
			return nil, err
		}
		u.Role = model.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) ListWithStats(ctx context.Context) ([]UserWithStats, error) {
	q := `
		SELECT u.id, u.username, u.role, COUNT(p.id)
		FROM users u
		LEFT JOIN projects p ON p.user_id = u.id
		GROUP BY u.id, u.username, u.role
		ORDER BY u.username`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []UserWithStats
	for rows.Next() {
		var u UserWithStats
		var role string
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.ProjectCount); err != nil {
			return nil, err
		}
		u.Role = model.Role(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) UpdateRole(ctx context.Context, userID string, role model.Role) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET role = $2 WHERE id = $1", userID, string(role))
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
