package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory keeps objects in process. Used for local development and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), now: time.Now}
}

func (m *Memory) PutObject(ctx context.Context, bucket, key string, body io.Reader, _ string) (string, error) {
	if bucket == "" {
		return "", fmt.Errorf("storage bucket is required")
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[bucket+"/"+key] = data
	m.mu.Unlock()
	return Location(bucket, key), nil
}

// Object returns the stored bytes for bucket/key.
func (m *Memory) Object(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	return data, ok
}

func (m *Memory) ListObjects(_ context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var objects []ObjectInfo
	for full, data := range m.objects {
		key, ok := strings.CutPrefix(full, bucket+"/")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{Key: key, Size: int64(len(data))})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *Memory) DeletePrefix(_ context.Context, bucket, prefix string) error {
	if bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if strings.TrimSpace(prefix) == "" {
		return fmt.Errorf("prefix is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for full := range m.objects {
		if strings.HasPrefix(full, bucket+"/"+prefix) {
			delete(m.objects, full)
		}
	}
	return nil
}

func (m *Memory) GetObjectURL(_ context.Context, bucket, key string, expires time.Duration) (string, error) {
	if _, ok := m.Object(bucket, key); !ok {
		return "", fmt.Errorf("object %s/%s not found", bucket, key)
	}
	u := url.URL{Scheme: "memory", Host: bucket, Path: "/" + key}
	q := u.Query()
	q.Set("expires", m.now().Add(expires).UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ Service = (*Memory)(nil)
