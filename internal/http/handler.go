package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"blog-writer/internal/orchestrator"
	"blog-writer/internal/service"
	"blog-writer/internal/storage"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users   service.UserService
	tokens  service.TokenService
	posts   service.PostService
	manager orchestrator.Manager
	storage storage.Service
	bucket  string

	authLimiter gin.HandlerFunc
	metrics     http.Handler
	logger      *logrus.Logger
}

type Options struct {
	Users   service.UserService
	Tokens  service.TokenService
	Posts   service.PostService
	Manager orchestrator.Manager
	// Storage is optional; without it exports answer 404 and delete_remote is rejected.
	Storage storage.Service
	Bucket  string

	// AuthLimiter throttles register and login. Nil disables throttling.
	AuthLimiter gin.HandlerFunc
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	Logger  *logrus.Logger
}

func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.AuthLimiter == nil {
		opts.AuthLimiter = func(c *gin.Context) { c.Next() }
	}
	return &Handler{
		users:       opts.Users,
		tokens:      opts.Tokens,
		posts:       opts.Posts,
		manager:     opts.Manager,
		storage:     opts.Storage,
		bucket:      opts.Bucket,
		authLimiter: opts.AuthLimiter,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestIDMiddleware(), accessLogMiddleware(h.logger), corsMiddleware())

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		users := api.Group("/users")
		users.POST("/register", h.authLimiter, h.register)
		users.POST("/login", h.authLimiter, h.login)
		users.GET("/me", h.requireUser(), h.me)

		blogs := api.Group("/blogs", h.requireUser())
		for _, root := range []string{"", "/"} {
			blogs.POST(root, h.createPost)
			blogs.GET(root, h.listPosts)
		}
		blogs.GET("/:id", h.getPost)
		blogs.PUT("/:id", h.updatePost)
		blogs.DELETE("/:id", h.deletePost)
		blogs.GET("/:id/export", h.exportPost)
	}
}
