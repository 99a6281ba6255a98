package domain

import "time"

type PostStatus string

const (
	PostStatusInProgress PostStatus = "in_progress"
	PostStatusProcessing PostStatus = "processing"
	PostStatusCompleted  PostStatus = "completed"
	PostStatusFailed     PostStatus = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusInProgress, PostStatusProcessing, PostStatusCompleted, PostStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s PostStatus) Terminal() bool {
	return s == PostStatusCompleted || s == PostStatusFailed
}

// CanTransitionTo enforces in_progress -> processing -> completed|failed.
func (s PostStatus) CanTransitionTo(next PostStatus) bool {
	switch s {
	case PostStatusInProgress:
		return next == PostStatusProcessing
	case PostStatusProcessing:
		return next == PostStatusCompleted || next == PostStatusFailed
	}
	return false
}

// Post is a blog article whose body is produced by the content generator.
type Post struct {
	ID              int64
	AuthorID        int64
	Title           string
	Content         string
	Status          PostStatus
	ErrorMessage    string
	ArchiveLocation string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PostUpdate carries a partial update; nil fields are left unchanged.
type PostUpdate struct {
	Title   *string
	Content *string
}

// Empty reports whether the update touches no field.
func (u PostUpdate) Empty() bool {
	return u.Title == nil && u.Content == nil
}
