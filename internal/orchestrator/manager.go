package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"blog-writer/internal/domain"
	"blog-writer/internal/events"
	"blog-writer/internal/generator"
	"blog-writer/internal/metrics"
	"blog-writer/internal/service"
	"blog-writer/internal/storage"
)

var ErrNotStarted = errors.New("orchestrator not started")

// Manager runs content generation for posts in the background.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(ctx context.Context, postID int64) error
	Resume(ctx context.Context) error
	Cancel(ctx context.Context, postID int64) error
}

type Config struct {
	MaxConcurrent int
	// MaxAttempts counts the first call; only rate-limited calls are retried.
	MaxAttempts int
	BaseDelay   time.Duration
	// Timeout bounds a single generator call.
	Timeout time.Duration

	Bucket    string
	KeyPrefix string

	Publisher events.Publisher
	Metrics   *metrics.Recorder
	Logger    *logrus.Logger
}

type manager struct {
	cfg       Config
	posts     service.PostService
	generator generator.Generator
	storage   storage.Service

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[int64]*jobHandle
}

type jobHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager wires the worker pool. store may be nil, which disables archiving.
func NewManager(cfg Config, posts service.PostService, gen generator.Generator, store storage.Service) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Noop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:       cfg,
		posts:     posts,
		generator: gen,
		storage:   store,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		active:    make(map[int64]*jobHandle),
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.generator == nil {
		return fmt.Errorf("generator is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return fmt.Errorf("orchestrator already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("generation manager started, max concurrent: %d", m.cfg.MaxConcurrent)
	return nil
}

func (m *manager) Shutdown() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.cfg.Logger.Info("generation manager stopped")
}

func (m *manager) Enqueue(ctx context.Context, postID int64) error {
	if m.lifetime() == nil {
		return ErrNotStarted
	}
	post, err := m.posts.FindPost(ctx, postID)
	if err != nil {
		return err
	}
	m.spawnJob(*post)
	return nil
}

// Resume picks up posts a previous process left unfinished.
func (m *manager) Resume(ctx context.Context) error {
	if m.lifetime() == nil {
		return ErrNotStarted
	}
	posts, err := m.posts.ListByStatuses(ctx,
		domain.PostStatusInProgress,
		domain.PostStatusProcessing,
	)
	if err != nil {
		return err
	}

	for i := range posts {
		m.spawnJob(posts[i])
	}
	if len(posts) > 0 {
		m.cfg.Logger.Infof("resumed %d unfinished posts", len(posts))
	}
	return nil
}

func (m *manager) lifetime() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *manager) spawnJob(post domain.Post) {
	jobCtx, cancel := context.WithCancel(m.lifetime())
	handle := &jobHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if !m.registerJob(post.ID, handle) {
		cancel()
		m.cfg.Logger.WithField("post_id", post.ID).Debug("post already queued, skipping")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			cancel()
			m.unregisterJob(post.ID)
			close(handle.done)
		}()
		select {
		case <-jobCtx.Done():
			return
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
			if jobCtx.Err() != nil {
				return
			}
			m.handlePost(jobCtx, &post)
		}
	}()
}

func (m *manager) registerJob(id int64, handle *jobHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.active[id]; exists {
		return false
	}
	m.active[id] = handle
	return true
}

func (m *manager) unregisterJob(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *manager) getJobHandle(id int64) (*jobHandle, bool) {
	m.mu.Lock()
	handle, ok := m.active[id]
	m.mu.Unlock()
	return handle, ok
}

// Cancel stops generation for a post and waits for its worker to exit.
// The post keeps whatever status it had.
func (m *manager) Cancel(ctx context.Context, postID int64) error {
	handle, ok := m.getJobHandle(postID)
	if !ok {
		return nil
	}

	handle.cancel()

	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manager) handlePost(ctx context.Context, post *domain.Post) {
	logger := m.cfg.Logger.WithField("post_id", post.ID)
	switch {
	case post.Status.Terminal():
		logger.Debug("post already finished, skipping")
		return
	case post.Status == domain.PostStatusProcessing:
		logger.Info("post was mid-generation, resuming")
	default:
		if err := m.posts.MarkProcessing(ctx, post.ID); err != nil {
			logger.Errorf("mark processing: %v", err)
			return
		}
		post.Status = domain.PostStatusProcessing
	}

	done := m.cfg.Metrics.Started()
	defer done()
	started := time.Now()

	logger.Infof("generating article for topic %q", post.Title)
	content, err := m.generate(ctx, logger, post.Title)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("generation cancelled, post left processing")
			return
		}
		m.failPost(ctx, post, err)
		m.cfg.Metrics.Finished(string(domain.PostStatusFailed), time.Since(started))
		return
	}

	if err := m.posts.MarkCompleted(ctx, post.ID, content); err != nil {
		logger.Errorf("mark completed: %v", err)
		return
	}
	post.Status = domain.PostStatusCompleted
	post.Content = content
	m.cfg.Metrics.Finished(string(domain.PostStatusCompleted), time.Since(started))

	m.archive(ctx, logger, post)
	m.publish(ctx, logger, events.TypePostCompleted, post)
	logger.Info("post completed")
}

// generate calls the generator, retrying rate-limited calls with exponential backoff.
func (m *manager) generate(ctx context.Context, logger *logrus.Entry, topic string) (string, error) {
	backoff := retry.WithMaxRetries(uint64(m.cfg.MaxAttempts-1), retry.NewExponential(m.cfg.BaseDelay))

	var (
		content string
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		logger.Debugf("attempt %d/%d", attempt, m.cfg.MaxAttempts)

		callCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()

		out, err := m.generator.Generate(callCtx, topic)
		if err == nil && strings.TrimSpace(out) == "" {
			err = generator.ErrEmptyContent
		}
		if err != nil {
			if errors.Is(err, generator.ErrRateLimited) {
				m.cfg.Metrics.Attempt(metrics.ResultRateLimited)
				logger.Warnf("rate limited on attempt %d: %v", attempt, err)
				return retry.RetryableError(err)
			}
			m.cfg.Metrics.Attempt(metrics.ResultError)
			return err
		}
		m.cfg.Metrics.Attempt(metrics.ResultSuccess)
		content = out
		return nil
	})
	if err != nil {
		if errors.Is(err, generator.ErrRateLimited) {
			return "", fmt.Errorf("exceeded maximum retries due to rate limit: %w", err)
		}
		return "", err
	}
	return content, nil
}

func (m *manager) archive(ctx context.Context, logger *logrus.Entry, post *domain.Post) {
	if m.storage == nil || m.cfg.Bucket == "" {
		return
	}
	key := storage.ArticleKey(m.cfg.KeyPrefix, post.ID)
	location, err := m.storage.PutObject(ctx, m.cfg.Bucket, key, strings.NewReader(post.Content), "text/markdown; charset=utf-8")
	if err != nil {
		logger.Warnf("archive article: %v", err)
		return
	}
	if err := m.posts.SetArchiveLocation(ctx, post.ID, location); err != nil {
		logger.Warnf("record archive location: %v", err)
		return
	}
	post.ArchiveLocation = location
	logger.Infof("article archived to %s", location)
}

func (m *manager) publish(ctx context.Context, logger *logrus.Entry, eventType string, post *domain.Post) {
	if err := m.cfg.Publisher.Publish(ctx, events.NewPostEvent(eventType, post)); err != nil {
		logger.Warnf("publish %s: %v", eventType, err)
	}
}

func (m *manager) failPost(ctx context.Context, post *domain.Post, failErr error) {
	logger := m.cfg.Logger.WithField("post_id", post.ID)
	msg := failErr.Error()
	if err := m.posts.MarkFailed(ctx, post.ID, msg); err != nil {
		logger.Errorf("persist failure status: %v", err)
		return
	}
	post.Status = domain.PostStatusFailed
	post.ErrorMessage = msg
	logger.Error(msg)
	m.publish(ctx, logger, events.TypePostFailed, post)
}

var _ Manager = (*manager)(nil)
