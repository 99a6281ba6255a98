package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blog-writer/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestPostService_CreateStartsInProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.users.Register(ctx, "alice", "alice@x.com", "pw123")
	require.NoError(t, err)

	post, err := env.posts.CreatePost(ctx, alice.ID, "  Rust vs Go ")
	require.NoError(t, err)
	assert.Equal(t, "Rust vs Go", post.Title)
	assert.Equal(t, domain.PostStatusInProgress, post.Status)
	assert.Empty(t, post.Content)

	_, err = env.posts.CreatePost(ctx, alice.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPostService_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.users.Register(ctx, "alice", "alice@x.com", "pw123")
	require.NoError(t, err)
	post, err := env.posts.CreatePost(ctx, alice.ID, "topic")
	require.NoError(t, err)

	assert.ErrorIs(t, env.posts.MarkCompleted(ctx, post.ID, "body"), ErrPostNotReady, "cannot skip processing")
	require.NoError(t, env.posts.MarkProcessing(ctx, post.ID))
	assert.ErrorIs(t, env.posts.MarkProcessing(ctx, post.ID), ErrPostNotReady)
	assert.ErrorIs(t, env.posts.MarkCompleted(ctx, post.ID, "  "), ErrInvalidInput)
	require.NoError(t, env.posts.MarkCompleted(ctx, post.ID, "Article body..."))
	assert.ErrorIs(t, env.posts.MarkFailed(ctx, post.ID, "late"), ErrPostNotReady, "terminal states are final")

	got, err := env.posts.GetPost(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusCompleted, got.Status)
	assert.Equal(t, "Article body...", got.Content)

	assert.ErrorIs(t, env.posts.MarkProcessing(ctx, post.ID+10), ErrPostNotFound)
}

func TestPostService_FailedKeepsContentEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.users.Register(ctx, "alice", "alice@x.com", "pw123")
	require.NoError(t, err)
	post, err := env.posts.CreatePost(ctx, alice.ID, "topic")
	require.NoError(t, err)

	require.NoError(t, env.posts.MarkProcessing(ctx, post.ID))
	require.NoError(t, env.posts.MarkFailed(ctx, post.ID, "generator exploded"))

	got, err := env.posts.FindPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusFailed, got.Status)
	assert.Empty(t, got.Content)
	assert.Equal(t, "generator exploded", got.ErrorMessage)
}

func TestPostService_UpdatePartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.users.Register(ctx, "alice", "alice@x.com", "pw123")
	require.NoError(t, err)
	post, err := env.posts.CreatePost(ctx, alice.ID, "Initial Title")
	require.NoError(t, err)
	require.NoError(t, env.posts.MarkProcessing(ctx, post.ID))
	require.NoError(t, env.posts.MarkCompleted(ctx, post.ID, "Initial Content"))

	updated, err := env.posts.UpdatePost(ctx, alice.ID, post.ID, domain.PostUpdate{Title: strPtr("Updated Title")})
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)
	assert.Equal(t, "Initial Content", updated.Content)

	updated, err = env.posts.UpdatePost(ctx, alice.ID, post.ID, domain.PostUpdate{Content: strPtr("Edited")})
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)
	assert.Equal(t, "Edited", updated.Content)

	unchanged, err := env.posts.UpdatePost(ctx, alice.ID, post.ID, domain.PostUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "Edited", unchanged.Content)

	_, err = env.posts.UpdatePost(ctx, alice.ID, post.ID, domain.PostUpdate{Title: strPtr(" ")})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.posts.UpdatePost(ctx, alice.ID, post.ID, domain.PostUpdate{Content: strPtr("")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPostService_ContentEditRequiresCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.users.Register(ctx, "alice", "alice@x.com", "pw123")
	require.NoError(t, err)
	post, err := env.posts.CreatePost(ctx, alice.ID, "topic")
	require.NoError(t, err)

	_, err = env.posts.UpdatePost(ctx, alice.ID, post.ID, domain.PostUpdate{Content: strPtr("too early")})
	assert.ErrorIs(t, err, ErrPostNotReady)

	got, err := env.posts.GetPost(ctx, alice.ID, post.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Content)
}

func TestPostService_OwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.users.Register(ctx, "alice", "alice@x.com", "pw123")
	require.NoError(t, err)
	bob, err := env.users.Register(ctx, "bob", "bob@x.com", "pw123")
	require.NoError(t, err)
	post, err := env.posts.CreatePost(ctx, alice.ID, "alice only")
	require.NoError(t, err)

	_, err = env.posts.GetPost(ctx, bob.ID, post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)
	_, err = env.posts.UpdatePost(ctx, bob.ID, post.ID, domain.PostUpdate{Title: strPtr("mine")})
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.ErrorIs(t, env.posts.DeletePost(ctx, bob.ID, post.ID), ErrPostNotFound)

	bobs, err := env.posts.ListPosts(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, bobs)

	alices, err := env.posts.ListPosts(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, alices, 1)
}

func TestPostService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, err := env.users.Register(ctx, "alice", "alice@x.com", "pw123")
	require.NoError(t, err)
	post, err := env.posts.CreatePost(ctx, alice.ID, "to delete")
	require.NoError(t, err)

	require.NoError(t, env.posts.DeletePost(ctx, alice.ID, post.ID))
	_, err = env.posts.GetPost(ctx, alice.ID, post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.ErrorIs(t, env.posts.DeletePost(ctx, alice.ID, post.ID), ErrPostNotFound)
}
