package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"blog-writer/internal/config"
	"blog-writer/internal/events"
	"blog-writer/internal/generator"
	apphttp "blog-writer/internal/http"
	"blog-writer/internal/metrics"
	"blog-writer/internal/orchestrator"
	"blog-writer/internal/repository/sqlite"
	"blog-writer/internal/service"
	"blog-writer/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	postRepo := sqlite.NewPostRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := postRepo.Init(ctx); err != nil {
		logger.Fatalf("init post repository: %v", err)
	}

	userService := service.NewUserService(userRepo)
	postService := service.NewPostService(postRepo)
	tokenService, err := service.NewTokenService(userService, cfg.Auth.JWTSecret, cfg.TokenTTL())
	if err != nil {
		logger.Fatalf("setup tokens: %v", err)
	}

	gen, err := buildGenerator(cfg, logger)
	if err != nil {
		logger.Fatalf("setup generator: %v", err)
	}

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		logger.Fatalf("setup events: %v", err)
	}
	defer publisher.Close()

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
	}

	manager := orchestrator.NewManager(orchestrator.Config{
		MaxConcurrent: cfg.Worker.MaxConcurrent,
		MaxAttempts:   cfg.Generator.MaxAttempts,
		BaseDelay:     cfg.Generator.BaseDelay,
		Timeout:       cfg.Generator.Timeout,
		Bucket:        cfg.Storage.Bucket,
		KeyPrefix:     cfg.Storage.KeyPrefix,
		Publisher:     publisher,
		Metrics:       recorder,
		Logger:        logger,
	}, postService, gen, storageSvc)

	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start manager: %v", err)
	}
	if err := manager.Resume(ctx); err != nil {
		logger.Warnf("resume posts: %v", err)
	}

	limiterStore, closeLimiterStore, err := apphttp.NewLimiterStore(ctx, cfg.RateLimit.RedisURL)
	if err != nil {
		logger.Fatalf("setup rate limiter: %v", err)
	}
	defer closeLimiterStore()

	opts := apphttp.Options{
		Users:       userService,
		Tokens:      tokenService,
		Posts:       postService,
		Manager:     manager,
		Storage:     storageSvc,
		Bucket:      cfg.Storage.Bucket,
		AuthLimiter: apphttp.NewRateLimitMiddleware(limiterStore, int64(cfg.RateLimit.AuthPerMinute), logger),
		Logger:      logger,
	}
	if recorder != nil {
		opts.Metrics = recorder.Handler()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apphttp.NewHandler(opts).RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	manager.Shutdown()

	logger.Info("bye")
}

func buildGenerator(cfg config.Config, logger *logrus.Logger) (generator.Generator, error) {
	model, err := generator.NewModel(generator.ProviderConfig{
		Provider: cfg.Generator.Provider,
		Model:    cfg.Generator.Model,
		APIKey:   cfg.Generator.APIKey,
		APIURL:   cfg.Generator.APIURL,
	})
	if err != nil {
		return nil, err
	}

	callOpts := []llms.CallOption{llms.WithTemperature(cfg.Generator.Temperature)}
	if cfg.Generator.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.Generator.MaxTokens))
	}

	logger.Infof("using %s generator (model %s)", cfg.Generator.Provider, cfg.Generator.Model)
	return generator.NewPipeline(model,
		generator.WithProvider(cfg.Generator.Provider),
		generator.WithLimiter(generator.NewRequestLimiter(cfg.Generator.RequestsPerMinute)),
		generator.WithLogger(logrus.NewEntry(logger)),
		generator.WithCallOptions(callOpts...),
	), nil
}

// buildStorage returns nil when no bucket is configured; archiving is then skipped.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("storage bucket not set, article archiving disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}

func buildPublisher(cfg config.Config, logger *logrus.Logger) (events.Publisher, error) {
	if cfg.Events.NATSURL == "" {
		return events.Noop{}, nil
	}
	publisher, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.Subject, logger)
	if err != nil {
		return nil, err
	}
	logger.Infof("publishing post events to %s.*", cfg.Events.Subject)
	return publisher, nil
}
