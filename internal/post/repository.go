package post

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/foothill/blog/internal/database"
)

var ErrNotFound = errors.New("post not found")

// ListQuery selects a newest-first window of posts, optionally by one author
type ListQuery struct {
	AuthorID *uuid.UUID
	Limit    int
	Offset   int
}

// Repository handles post persistence
type Repository struct {
	db bun.IDB
}

func NewRepository(db bun.IDB) *Repository {
	return &Repository{db: db}
}

// List returns the requested window and the total number of matching posts
func (r *Repository) List(ctx context.Context, lq ListQuery) ([]*Post, int, error) {
	var rows []database.Post
	q := r.db.NewSelect().
		Model(&rows).
		Relation("Author").
		OrderExpr("p.date_posted DESC").
		Limit(lq.Limit).
		Offset(lq.Offset)
	if lq.AuthorID != nil {
		q = q.Where("p.author_id = ?", *lq.AuthorID)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list posts: %w", err)
	}

	posts := make([]*Post, 0, len(rows))
	for i := range rows {
		posts = append(posts, mapDBPostToModel(&rows[i]))
	}
	return posts, total, nil
}

// GetByID retrieves a post with its author
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Post, error) {
	row := new(database.Post)
	err := r.db.NewSelect().
		Model(row).
		Relation("Author").
		Where("p.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return mapDBPostToModel(row), nil
}

// Create inserts a post authored by authorID
func (r *Repository) Create(ctx context.Context, authorID uuid.UUID, title, content string) (*Post, error) {
	row := &database.Post{
		ID:       uuid.New(),
		AuthorID: authorID,
		Title:    title,
		Content:  content,
	}

	_, err := r.db.NewInsert().
		Model(row).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	return mapDBPostToModel(row), nil
}

func mapDBPostToModel(row *database.Post) *Post {
	p := &Post{
		ID:         row.ID,
		AuthorID:   row.AuthorID,
		Title:      row.Title,
		Content:    row.Content,
		DatePosted: row.DatePosted,
	}
	if row.Author != nil {
		p.Author = Author{
			ID:        row.Author.ID,
			Username:  row.Author.Username,
			ImageFile: row.Author.ImageFile,
		}
	}
	return p
}
