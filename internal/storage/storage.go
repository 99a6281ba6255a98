package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Service archives generated articles to remote object storage.
type Service interface {
	// PutObject stores body under bucket/key and returns its s3:// location.
	PutObject(ctx context.Context, bucket, key string, body io.Reader, contentType string) (string, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	GetObjectURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
}

const ArticleFileName = "article.md"

// PostPrefix is the folder holding every object archived for a post.
func PostPrefix(keyPrefix string, postID int64) string {
	folder := fmt.Sprintf("post-%d", postID)
	keyPrefix = strings.Trim(keyPrefix, "/")
	if keyPrefix == "" {
		return folder + "/"
	}
	return keyPrefix + "/" + folder + "/"
}

func ArticleKey(keyPrefix string, postID int64) string {
	return PostPrefix(keyPrefix, postID) + ArticleFileName
}

func Location(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, strings.TrimLeft(key, "/"))
}

// ParseLocation splits an s3://bucket/key location.
func ParseLocation(location string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(location), "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("incomplete s3 location: %q", location)
	}
	return bucket, key, nil
}
