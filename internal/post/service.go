package post

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/foothill/blog/internal/auth"
	"github.com/foothill/blog/internal/forms"
	"github.com/foothill/blog/internal/user"
)

// Store is the post persistence the service needs
type Store interface {
	List(ctx context.Context, q ListQuery) ([]*Post, int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Post, error)
	Create(ctx context.Context, authorID uuid.UUID, title, content string) (*Post, error)
}

// UserFinder resolves the author named in a listing URL
type UserFinder interface {
	GetByUsername(ctx context.Context, username string) (*user.User, error)
}

// Service serves the read side of the blog plus post creation
type Service struct {
	posts Store
	users UserFinder
}

func NewService(posts Store, users UserFinder) *Service {
	return &Service{posts: posts, users: users}
}

// Home lists every post, newest first
func (s *Service) Home(ctx context.Context, page int) (*Page, error) {
	return s.list(ctx, nil, page)
}

// UserPosts lists the posts of one author, newest first. An unknown username
// yields user.ErrNotFound; a page past the end yields an empty page.
func (s *Service) UserPosts(ctx context.Context, username string, page int) (*user.User, *Page, error) {
	author, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	p, err := s.list(ctx, &author.ID, page)
	if err != nil {
		return nil, nil, err
	}
	return author, p, nil
}

func (s *Service) list(ctx context.Context, authorID *uuid.UUID, page int) (*Page, error) {
	p := &Page{Number: NormalizePage(page), PerPage: PageSize}

	items, total, err := s.posts.List(ctx, ListQuery{
		AuthorID: authorID,
		Limit:    p.PerPage,
		Offset:   p.Offset(),
	})
	if err != nil {
		return nil, err
	}

	p.Items = items
	p.Total = total
	return p, nil
}

// Get returns a single post
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Post, error) {
	return s.posts.GetByID(ctx, id)
}

// NewPostInput is the submitted new-post form
type NewPostInput struct {
	Title   string
	Content string
}

// Validate checks the new-post form fields
func (in NewPostInput) Validate() forms.Errors {
	errs := forms.Errors{}
	errs.Check("title", forms.Required(in.Title), forms.MaxLength(in.Title, 100))
	errs.Check("content", forms.Required(in.Content))
	return errs
}

// Create publishes a post authored by the viewer
func (s *Service) Create(ctx context.Context, viewer auth.Identity, in NewPostInput) (*Post, error) {
	if !viewer.Authenticated() {
		return nil, auth.ErrAuthRequired
	}
	if errs := in.Validate(); errs.Any() {
		return nil, &forms.ValidationError{Errors: errs}
	}

	p, err := s.posts.Create(ctx, viewer.UserID, in.Title, in.Content)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return p, nil
}
