package post

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns published posts plus, when viewerID is non-empty, the viewer's
// own unpublished drafts.
func (r *Repository) List(ctx context.Context, viewerID string) ([]Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, author_id, title, content, published, created_at, updated_at
		FROM posts
		WHERE published OR author_id = $1
		ORDER BY created_at DESC
	`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]Post, 0)
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Published, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.Mine = viewerID != "" && p.AuthorID == viewerID
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}

	return posts, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Post, error) {
	var p Post
	err := r.db.QueryRowContext(ctx, `
		SELECT id, author_id, title, content, published, created_at, updated_at
		FROM posts
		WHERE id = $1
	`, id).Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("query post: %w", err)
	}

	return p, nil
}

func (r *Repository) Create(ctx context.Context, authorID string, input PostInput) (Post, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Post{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	p := Post{
		ID:        id.String(),
		AuthorID:  authorID,
		Title:     input.Title,
		Content:   input.Content,
		Published: input.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, title, content, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.AuthorID, p.Title, p.Content, p.Published, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, id string, input PostInput) (Post, error) {
	var p Post
	err := r.db.QueryRowContext(ctx, `
		UPDATE posts
		SET title = $2, content = $3, published = $4, updated_at = $5
		WHERE id = $1
		RETURNING id, author_id, title, content, published, created_at, updated_at
	`, id, input.Title, input.Content, input.Published, time.Now().UTC()).
		Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Post{}, err
		}
		return Post{}, fmt.Errorf("update post: %w", err)
	}

	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
