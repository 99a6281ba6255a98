// Package events publishes post lifecycle notifications.
package events

import (
	"context"
	"time"

	"blog-writer/internal/domain"
)

const (
	TypePostCompleted = "post.completed"
	TypePostFailed    = "post.failed"
)

type PostEvent struct {
	Type            string    `json:"type"`
	PostID          int64     `json:"post_id"`
	AuthorID        int64     `json:"author_id"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ArchiveLocation string    `json:"archive_location,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewPostEvent snapshots post under the given event type.
func NewPostEvent(eventType string, post *domain.Post) PostEvent {
	return PostEvent{
		Type:            eventType,
		PostID:          post.ID,
		AuthorID:        post.AuthorID,
		Title:           post.Title,
		Status:          string(post.Status),
		ErrorMessage:    post.ErrorMessage,
		ArchiveLocation: post.ArchiveLocation,
		OccurredAt:      time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event PostEvent) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, PostEvent) error { return nil }
func (Noop) Close() error                             { return nil }

var _ Publisher = Noop{}
