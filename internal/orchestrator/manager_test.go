package orchestrator

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blog-writer/internal/domain"
	"blog-writer/internal/events"
	"blog-writer/internal/generator"
	"blog-writer/internal/metrics"
	"blog-writer/internal/repository/sqlite"
	"blog-writer/internal/service"
	"blog-writer/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PostEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event events.PostEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	posts     service.PostService
	authorID  int64
	store     *storage.Memory
	publisher *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "blog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	userRepo := sqlite.NewUserRepository(db)
	postRepo := sqlite.NewPostRepository(db)
	require.NoError(t, userRepo.Init(ctx))
	require.NoError(t, postRepo.Init(ctx))

	author := &domain.User{Username: "alice", Email: "alice@x.com", PasswordHash: "hash"}
	_, err = userRepo.Create(ctx, author)
	require.NoError(t, err)

	return &testEnv{
		posts:     service.NewPostService(postRepo),
		authorID:  author.ID,
		store:     storage.NewMemory(),
		publisher: &recordingPublisher{},
	}
}

func (e *testEnv) start(t *testing.T, cfg Config, gen generator.Generator) Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg.Logger = logger
	cfg.Publisher = e.publisher
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Millisecond
	}
	m := NewManager(cfg, e.posts, gen, e.store)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Shutdown)
	return m
}

func (e *testEnv) createPost(t *testing.T, title string) *domain.Post {
	t.Helper()
	post, err := e.posts.CreatePost(context.Background(), e.authorID, title)
	require.NoError(t, err)
	return post
}

func (e *testEnv) waitForStatus(t *testing.T, id int64, status domain.PostStatus) *domain.Post {
	t.Helper()
	var got *domain.Post
	require.Eventually(t, func() bool {
		post, err := e.posts.FindPost(context.Background(), id)
		if err != nil {
			return false
		}
		got = post
		return post.Status == status
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

func TestManager_CompletesAndArchives(t *testing.T) {
	env := newTestEnv(t)
	m := env.start(t, Config{Bucket: "bucket", KeyPrefix: "blog-posts", Metrics: metrics.NewRecorder()},
		generator.Func(func(_ context.Context, topic string) (string, error) {
			return "# " + topic + "\n\nbody", nil
		}))

	post := env.createPost(t, "Rust vs Go")
	require.NoError(t, m.Enqueue(context.Background(), post.ID))

	got := env.waitForStatus(t, post.ID, domain.PostStatusCompleted)
	assert.Equal(t, "# Rust vs Go\n\nbody", got.Content)

	require.Eventually(t, func() bool {
		p, err := env.posts.FindPost(context.Background(), post.ID)
		return err == nil && p.ArchiveLocation != ""
	}, 5*time.Second, 5*time.Millisecond)

	data, ok := env.store.Object("bucket", storage.ArticleKey("blog-posts", post.ID))
	require.True(t, ok)
	assert.Equal(t, "# Rust vs Go\n\nbody", string(data))

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{events.TypePostCompleted}, env.publisher.types())
	}, 5*time.Second, 5*time.Millisecond)
}

func TestManager_RetriesRateLimits(t *testing.T) {
	env := newTestEnv(t)
	var calls atomic.Int32
	m := env.start(t, Config{MaxAttempts: 5}, generator.Func(func(context.Context, string) (string, error) {
		if calls.Add(1) <= 2 {
			return "", generator.ErrRateLimited
		}
		return "finally", nil
	}))

	post := env.createPost(t, "topic")
	require.NoError(t, m.Enqueue(context.Background(), post.ID))

	got := env.waitForStatus(t, post.ID, domain.PostStatusCompleted)
	assert.Equal(t, "finally", got.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestManager_FailsAfterRetryBudget(t *testing.T) {
	env := newTestEnv(t)
	var calls atomic.Int32
	m := env.start(t, Config{MaxAttempts: 3}, generator.Func(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "", generator.ErrRateLimited
	}))

	post := env.createPost(t, "topic")
	require.NoError(t, m.Enqueue(context.Background(), post.ID))

	got := env.waitForStatus(t, post.ID, domain.PostStatusFailed)
	assert.Empty(t, got.Content)
	assert.Contains(t, got.ErrorMessage, "rate limit")
	assert.Equal(t, int32(3), calls.Load())

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{events.TypePostFailed}, env.publisher.types())
	}, 5*time.Second, 5*time.Millisecond)
}

func TestManager_BackoffDoublesBetweenAttempts(t *testing.T) {
	const base = 40 * time.Millisecond
	env := newTestEnv(t)

	var (
		mu    sync.Mutex
		calls []time.Time
	)
	m := env.start(t, Config{MaxAttempts: 4, BaseDelay: base}, generator.Func(func(context.Context, string) (string, error) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		return "", generator.ErrRateLimited
	}))

	post := env.createPost(t, "topic")
	require.NoError(t, m.Enqueue(context.Background(), post.ID))
	env.waitForStatus(t, post.ID, domain.PostStatusFailed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 4)

	gaps := make([]time.Duration, 0, len(calls)-1)
	for i := 1; i < len(calls); i++ {
		gaps = append(gaps, calls[i].Sub(calls[i-1]))
	}
	for i, gap := range gaps {
		want := base << i
		assert.GreaterOrEqual(t, gap, want, "wait %d", i)
	}
	assert.Greater(t, gaps[1], gaps[0]+base/2)
	assert.Greater(t, gaps[2], gaps[1]+base)
}

func TestManager_OtherErrorsFailImmediately(t *testing.T) {
	cases := map[string]generator.Func{
		"provider error": func(context.Context, string) (string, error) {
			return "", errors.New("invalid api key")
		},
		"empty output": func(context.Context, string) (string, error) {
			return "   ", nil
		},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			var calls atomic.Int32
			m := env.start(t, Config{MaxAttempts: 5}, generator.Func(func(ctx context.Context, topic string) (string, error) {
				calls.Add(1)
				return gen(ctx, topic)
			}))

			post := env.createPost(t, "topic")
			require.NoError(t, m.Enqueue(context.Background(), post.ID))

			got := env.waitForStatus(t, post.ID, domain.PostStatusFailed)
			assert.Empty(t, got.Content)
			assert.NotEmpty(t, got.ErrorMessage)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestManager_TimeoutFailsPost(t *testing.T) {
	env := newTestEnv(t)
	m := env.start(t, Config{Timeout: 20 * time.Millisecond}, generator.Func(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))

	post := env.createPost(t, "slow topic")
	require.NoError(t, m.Enqueue(context.Background(), post.ID))

	got := env.waitForStatus(t, post.ID, domain.PostStatusFailed)
	assert.Contains(t, got.ErrorMessage, "deadline exceeded")
}

func TestManager_ResumeUnfinished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	fresh := env.createPost(t, "fresh")
	midway := env.createPost(t, "midway")
	require.NoError(t, env.posts.MarkProcessing(ctx, midway.ID))
	done := env.createPost(t, "done")
	require.NoError(t, env.posts.MarkProcessing(ctx, done.ID))
	require.NoError(t, env.posts.MarkCompleted(ctx, done.ID, "original"))

	m := env.start(t, Config{}, generator.Func(func(_ context.Context, topic string) (string, error) {
		return "resumed " + topic, nil
	}))
	require.NoError(t, m.Resume(ctx))

	assert.Equal(t, "resumed fresh", env.waitForStatus(t, fresh.ID, domain.PostStatusCompleted).Content)
	assert.Equal(t, "resumed midway", env.waitForStatus(t, midway.ID, domain.PostStatusCompleted).Content)

	untouched, err := env.posts.FindPost(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", untouched.Content)
}

func TestManager_CancelLeavesPostProcessing(t *testing.T) {
	env := newTestEnv(t)
	started := make(chan struct{})
	m := env.start(t, Config{}, generator.Func(func(ctx context.Context, _ string) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}))

	post := env.createPost(t, "topic")
	require.NoError(t, m.Enqueue(context.Background(), post.ID))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Cancel(ctx, post.ID))

	got, err := env.posts.FindPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusProcessing, got.Status)
	assert.Empty(t, env.publisher.types())

	assert.NoError(t, m.Cancel(ctx, 999), "unknown posts are ignored")
}

func TestManager_ShutdownInterruptsBackoff(t *testing.T) {
	env := newTestEnv(t)
	m := NewManager(Config{MaxAttempts: 5, BaseDelay: time.Hour, Logger: quietLogger()}, env.posts,
		generator.Func(func(context.Context, string) (string, error) {
			return "", generator.ErrRateLimited
		}), nil)
	require.NoError(t, m.Start(context.Background()))

	post := env.createPost(t, "topic")
	require.NoError(t, m.Enqueue(context.Background(), post.ID))
	env.waitForStatus(t, post.ID, domain.PostStatusProcessing)

	stopped := make(chan struct{})
	go func() {
		m.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not interrupt the backoff wait")
	}

	got, err := env.posts.FindPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PostStatusProcessing, got.Status)
}

func TestManager_BoundsConcurrency(t *testing.T) {
	env := newTestEnv(t)
	var running, peak atomic.Int32
	m := env.start(t, Config{MaxConcurrent: 2}, generator.Func(func(context.Context, string) (string, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return "ok", nil
	}))

	var ids []int64
	for i := 0; i < 6; i++ {
		post := env.createPost(t, "topic")
		ids = append(ids, post.ID)
		require.NoError(t, m.Enqueue(context.Background(), post.ID))
	}
	for _, id := range ids {
		env.waitForStatus(t, id, domain.PostStatusCompleted)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestManager_EnqueueRequiresStart(t *testing.T) {
	env := newTestEnv(t)
	m := NewManager(Config{Logger: quietLogger()}, env.posts, generator.Func(func(context.Context, string) (string, error) {
		return "x", nil
	}), nil)

	post := env.createPost(t, "topic")
	assert.ErrorIs(t, m.Enqueue(context.Background(), post.ID), ErrNotStarted)
	assert.ErrorIs(t, m.Resume(context.Background()), ErrNotStarted)
}

func TestManager_EnqueueAfterShutdownDoesNothing(t *testing.T) {
	env := newTestEnv(t)
	var calls atomic.Int32
	m := env.start(t, Config{MaxConcurrent: 4}, generator.Func(func(context.Context, string) (string, error) {
		calls.Add(1)
		return "x", nil
	}))
	m.Shutdown()

	var ids []int64
	for i := 0; i < 20; i++ {
		post := env.createPost(t, "late")
		require.NoError(t, m.Enqueue(context.Background(), post.ID))
		ids = append(ids, post.ID)
	}
	m.Shutdown()

	assert.Zero(t, calls.Load())
	for _, id := range ids {
		post, err := env.posts.FindPost(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.PostStatusInProgress, post.Status)
	}
	assert.Empty(t, env.publisher.types())
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
