// Package storage persists pipeline artifacts. The object store backend is
// the production path; the filesystem backend serves development and tests.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Object is a blob plus the metadata needed to serve it back.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Reference points at a persisted object.
type Reference struct {
	Key  string
	URL  string
	ETag string
}

// Store abstracts artifact storage. Put is idempotent for identical content
// and reports domain.ErrObjectConflict when a key already holds different
// bytes.
type Store interface {
	Put(ctx context.Context, obj Object) (Reference, error)
	Get(ctx context.Context, key string) (Object, error)
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)
	Healthy(ctx context.Context) error
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

// joinURL appends a storage key onto a base URL.
func joinURL(base, key string) string {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return ""
	}
	return base + "/" + key
}
