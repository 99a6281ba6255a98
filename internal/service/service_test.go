package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"blog-writer/internal/repository/sqlite"
)

type testEnv struct {
	users  UserService
	posts  PostService
	tokens *tokenService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	userRepo := sqlite.NewUserRepository(db)
	postRepo := sqlite.NewPostRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, postRepo.Init(ctx))

	users := NewUserService(userRepo).(*userService)
	users.cost = bcrypt.MinCost

	tokens, err := NewTokenService(users, "test-secret", defaultTestTTL)
	require.NoError(t, err)

	return &testEnv{
		users:  users,
		posts:  NewPostService(postRepo),
		tokens: tokens.(*tokenService),
	}
}
