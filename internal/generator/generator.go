// Package generator turns a topic into a finished blog article by running a
// sequence of LLM-backed stages (research, review, writing, editing).
package generator

import (
	"context"
	"errors"
)

var (
	// ErrRateLimited signals that the upstream model rejected the call for rate or quota reasons.
	// It is the only generator error worth retrying.
	ErrRateLimited = errors.New("generator rate limited")
	// ErrEmptyContent is returned when a stage produced no usable text.
	ErrEmptyContent = errors.New("generator returned empty content")
	// ErrGenerationFailed wraps every other upstream failure.
	ErrGenerationFailed = errors.New("generation failed")
)

// Generator produces an article body for a topic. Calls may take minutes.
type Generator interface {
	Generate(ctx context.Context, topic string) (string, error)
}

// Func adapts a plain function to the Generator interface.
type Func func(ctx context.Context, topic string) (string, error)

func (f Func) Generate(ctx context.Context, topic string) (string, error) {
	return f(ctx, topic)
}
