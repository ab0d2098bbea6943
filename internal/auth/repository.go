package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the credential-store contract the service depends on. Lookups
// return sql.ErrNoRows for absent users; writes are field-level so an
// unrelated profile update can never clobber the refresh-token slot.
type Store interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user User) error
	SaveRefreshToken(ctx context.Context, userID, token string) error
	ClearRefreshToken(ctx context.Context, userID string) error
	ClearRefreshTokenIf(ctx context.Context, userID, token string) (bool, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	ListActiveRefreshTokens(ctx context.Context, limit int) ([]User, error)
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

func NewUserID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid v7: %w", err)
	}
	return id.String(), nil
}

func (r *Repository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, `
		SELECT id, email, name, password_hash, COALESCE(refresh_token, ''), created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
}

func (r *Repository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, `
		SELECT id, email, name, password_hash, COALESCE(refresh_token, ''), created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.RefreshToken, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	return user, nil
}

func (r *Repository) Create(ctx context.Context, user User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.RefreshToken, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		// Two concurrent registrations can both pass the lookup in the
		// service and race into the unique index on email.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *Repository) SaveRefreshToken(ctx context.Context, userID, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = $2, updated_at = $3
		WHERE id = $1
	`, userID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}

	return nil
}

func (r *Repository) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, updated_at = $2
		WHERE id = $1
	`, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	return nil
}

// ClearRefreshTokenIf drops the slot only while it still holds the observed
// value. A session issued after the observation keeps its token.
func (r *Repository) ClearRefreshTokenIf(ctx context.Context, userID, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET refresh_token = NULL, updated_at = $3
		WHERE id = $1 AND refresh_token = $2
	`, userID, token, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("clear refresh token conditionally: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return affected > 0, nil
}

// UpdatePassword stores the new hash and drops the refresh-token slot in one
// statement, so a crash between the two cannot leave the old session alive.
func (r *Repository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, refresh_token = NULL, updated_at = $3
		WHERE id = $1
	`, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

func (r *Repository) ListActiveRefreshTokens(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(refresh_token, '')
		FROM users
		WHERE refresh_token IS NOT NULL
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh token holders: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.RefreshToken); err != nil {
			return nil, fmt.Errorf("scan refresh token holder: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh token holders: %w", err)
	}

	return users, nil
}
