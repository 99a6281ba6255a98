package service

import "errors"

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserAlreadyExists is returned when the username or email is already registered.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUnauthorized is returned for any bearer token that does not resolve to a user.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrPostNotFound covers both missing posts and posts owned by someone else.
	ErrPostNotFound = errors.New("post not found")
	// ErrPostNotReady is returned when an operation needs a completed post.
	ErrPostNotReady = errors.New("post not ready")
)
