package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"blog-writer/internal/domain"
	"blog-writer/internal/storage"
)

const exportURLTTL = 15 * time.Minute

type createPostRequest struct {
	Title string `json:"title" binding:"required"`
}

type updatePostRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (h *Handler) createPost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := currentUser(c)
	post, err := h.posts.CreatePost(c.Request.Context(), user.ID, req.Title)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// The post is already stored; a failed enqueue is picked up by Resume on the next start.
	if err := h.manager.Enqueue(c.Request.Context(), post.ID); err != nil {
		h.logger.WithField("post_id", post.ID).Errorf("enqueue generation: %v", err)
	}

	c.JSON(http.StatusCreated, postToResponse(*post))
}

func (h *Handler) listPosts(c *gin.Context) {
	posts, err := h.posts.ListPosts(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]PostResponse, len(posts))
	for i := range posts {
		resp[i] = postToResponse(posts[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getPost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	post, err := h.posts.GetPost(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, postToResponse(*post))
}

func (h *Handler) updatePost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.posts.UpdatePost(c.Request.Context(), currentUser(c).ID, id, domain.PostUpdate{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, postToResponse(*post))
}

func (h *Handler) deletePost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleteRemote, err := strconv.ParseBool(c.DefaultQuery("delete_remote", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid flag delete_remote"})
		return
	}

	user := currentUser(c)
	post, err := h.posts.GetPost(c.Request.Context(), user.ID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if deleteRemote && (h.storage == nil || h.bucket == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "storage service not configured"})
		return
	}

	var warnings []string
	cancelCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := h.manager.Cancel(cancelCtx, post.ID); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		warnings = append(warnings, fmt.Sprintf("cancel generation: %v", err))
	}

	if deleteRemote && post.ArchiveLocation != "" {
		bucket, key, err := storage.ParseLocation(post.ArchiveLocation)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("delete remote data: %v", err))
		case bucket != h.bucket:
			warnings = append(warnings, "delete remote data: s3 bucket mismatch")
		default:
			remoteCtx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
			defer cancel()
			if err := h.storage.DeletePrefix(remoteCtx, bucket, path.Dir(key)+"/"); err != nil {
				warnings = append(warnings, fmt.Sprintf("delete remote data: %v", err))
			}
		}
	}

	if err := h.posts.DeletePost(c.Request.Context(), user.ID, post.ID); err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"detail": "Blog deleted"}
	if len(warnings) > 0 {
		resp["warnings"] = warnings
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) exportPost(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	post, err := h.posts.GetPost(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if post.Status != domain.PostStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "blog is not completed yet"})
		return
	}
	if h.storage == nil || post.ArchiveLocation == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "blog has not been archived"})
		return
	}

	bucket, key, err := storage.ParseLocation(post.ArchiveLocation)
	if err != nil {
		h.writeError(c, err)
		return
	}
	found, err := h.archiveExists(c.Request.Context(), bucket, key)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "blog has not been archived"})
		return
	}
	url, err := h.storage.GetObjectURL(c.Request.Context(), bucket, key, exportURLTTL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ExportResponse{
		URL:       url,
		ExpiresAt: time.Now().Add(exportURLTTL).UTC().Format(time.RFC3339),
	})
}

func (h *Handler) archiveExists(ctx context.Context, bucket, key string) (bool, error) {
	objects, err := h.storage.ListObjects(ctx, bucket, path.Dir(key)+"/")
	if err != nil {
		return false, err
	}
	for _, obj := range objects {
		if obj.Key == key {
			return true, nil
		}
	}
	return false, nil
}
