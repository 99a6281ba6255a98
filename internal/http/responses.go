package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"blog-writer/internal/domain"
	"blog-writer/internal/service"
)

type PostResponse struct {
	ID              int64             `json:"id"`
	AuthorID        int64             `json:"author_id"`
	Title           string            `json:"title"`
	Content         string            `json:"content"`
	Status          domain.PostStatus `json:"status"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	ArchiveLocation string            `json:"archive_location,omitempty"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

type UserResponse struct {
	ID        int64  `json:"id,omitempty"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

type ExportResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

func postToResponse(post domain.Post) PostResponse {
	return PostResponse{
		ID:              post.ID,
		AuthorID:        post.AuthorID,
		Title:           post.Title,
		Content:         post.Content,
		Status:          post.Status,
		ErrorMessage:    post.ErrorMessage,
		ArchiveLocation: post.ArchiveLocation,
		CreatedAt:       post.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       post.UpdatedAt.Format(time.RFC3339),
	}
}

// writeError maps service errors onto status codes. Unknown errors are logged
// and answered with a generic 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": "username or email already registered"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
	case errors.Is(err, service.ErrUnauthorized):
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "could not validate credentials"})
	case errors.Is(err, service.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "blog not found"})
	case errors.Is(err, service.ErrPostNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "blog is not completed yet"})
	default:
		h.logger.WithField("request_id", c.GetString(requestIDKey)).Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid blog id"})
		return 0, false
	}
	return id, true
}
