package repository

import (
	"context"

	"blog-writer/internal/domain"
)

// PostRepository exposes persistence operations for Post aggregates.
//
// Methods taking an authorID only match rows owned by that author, so a
// foreign post is indistinguishable from a missing one.
type PostRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, post *domain.Post) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Post, error)
	GetOwned(ctx context.Context, id, authorID int64) (*domain.Post, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]domain.Post, error)
	ListByStatuses(ctx context.Context, statuses ...domain.PostStatus) ([]domain.Post, error)
	UpdateOwned(ctx context.Context, id, authorID int64, update domain.PostUpdate) error
	Transition(ctx context.Context, id int64, from, to domain.PostStatus, content *string, errorMessage string) error
	SetArchiveLocation(ctx context.Context, id int64, location string) error
	DeleteOwned(ctx context.Context, id, authorID int64) error
}
