package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blog-writer/internal/domain"
	"blog-writer/internal/repository"
)

// PostService coordinates post level operations backed by repositories.
//
// The owner-scoped methods back the HTTP API; the lifecycle methods are used
// by the generation orchestrator and are not scoped to an author.
type PostService interface {
	CreatePost(ctx context.Context, authorID int64, title string) (*domain.Post, error)
	GetPost(ctx context.Context, authorID, id int64) (*domain.Post, error)
	ListPosts(ctx context.Context, authorID int64) ([]domain.Post, error)
	UpdatePost(ctx context.Context, authorID, id int64, update domain.PostUpdate) (*domain.Post, error)
	DeletePost(ctx context.Context, authorID, id int64) error

	FindPost(ctx context.Context, id int64) (*domain.Post, error)
	ListByStatuses(ctx context.Context, statuses ...domain.PostStatus) ([]domain.Post, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkCompleted(ctx context.Context, id int64, content string) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	SetArchiveLocation(ctx context.Context, id int64, location string) error
}

type postService struct {
	posts repository.PostRepository
}

func NewPostService(posts repository.PostRepository) PostService {
	return &postService{posts: posts}
}

func (s *postService) CreatePost(ctx context.Context, authorID int64, title string) (*domain.Post, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	post := &domain.Post{
		AuthorID: authorID,
		Title:    title,
		Status:   domain.PostStatusInProgress,
	}
	if _, err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *postService) GetPost(ctx context.Context, authorID, id int64) (*domain.Post, error) {
	post, err := s.posts.GetOwned(ctx, id, authorID)
	if err != nil {
		return nil, translatePostErr(err)
	}
	return post, nil
}

func (s *postService) ListPosts(ctx context.Context, authorID int64) ([]domain.Post, error) {
	return s.posts.ListByAuthor(ctx, authorID)
}

func (s *postService) UpdatePost(ctx context.Context, authorID, id int64, update domain.PostUpdate) (*domain.Post, error) {
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		update.Title = &title
	}
	if update.Content != nil && strings.TrimSpace(*update.Content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", ErrInvalidInput)
	}

	if !update.Empty() {
		if err := s.posts.UpdateOwned(ctx, id, authorID, update); err != nil {
			return nil, translatePostErr(err)
		}
	}
	return s.GetPost(ctx, authorID, id)
}

func (s *postService) DeletePost(ctx context.Context, authorID, id int64) error {
	return translatePostErr(s.posts.DeleteOwned(ctx, id, authorID))
}

func (s *postService) FindPost(ctx context.Context, id int64) (*domain.Post, error) {
	post, err := s.posts.Get(ctx, id)
	if err != nil {
		return nil, translatePostErr(err)
	}
	return post, nil
}

func (s *postService) ListByStatuses(ctx context.Context, statuses ...domain.PostStatus) ([]domain.Post, error) {
	return s.posts.ListByStatuses(ctx, statuses...)
}

func (s *postService) MarkProcessing(ctx context.Context, id int64) error {
	return s.transition(ctx, id, domain.PostStatusInProgress, domain.PostStatusProcessing, nil, "")
}

func (s *postService) MarkCompleted(ctx context.Context, id int64, content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: completed post needs content", ErrInvalidInput)
	}
	return s.transition(ctx, id, domain.PostStatusProcessing, domain.PostStatusCompleted, &content, "")
}

func (s *postService) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, id, domain.PostStatusProcessing, domain.PostStatusFailed, nil, reason)
}

func (s *postService) SetArchiveLocation(ctx context.Context, id int64, location string) error {
	return translatePostErr(s.posts.SetArchiveLocation(ctx, id, location))
}

func (s *postService) transition(ctx context.Context, id int64, from, to domain.PostStatus, content *string, reason string) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrPostNotReady, from, to)
	}
	return translatePostErr(s.posts.Transition(ctx, id, from, to, content, reason))
}

func translatePostErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrPostNotFound, err)
	case errors.Is(err, repository.ErrStaleStatus):
		return fmt.Errorf("%w: %v", ErrPostNotReady, err)
	}
	return err
}
