package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"assetgen/internal/domain"
)

// contentTypeOverrides covers extensions the platform mime table misses.
var contentTypeOverrides = map[string]string{
	".glb":  "model/gltf-binary",
	".gltf": "model/gltf+json",
}

// FileStore persists artifacts onto the local filesystem. It is intended for
// development and test environments where an object storage service is not
// available.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath. baseURL, when set,
// is the public prefix joined onto keys for Presign.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Put writes the object under its key. Re-putting identical bytes is a no-op;
// differing bytes under an existing key report domain.ErrObjectConflict.
func (s *FileStore) Put(ctx context.Context, obj Object) (Reference, error) {
	if s == nil {
		return Reference{}, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return Reference{}, err
	}
	cleanKey, err := sanitizeKey(obj.Key)
	if err != nil {
		return Reference{}, err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if existing, readErr := os.ReadFile(fullPath); readErr == nil {
		if !bytes.Equal(existing, obj.Data) {
			return Reference{}, fmt.Errorf("storage: key %s: %w", cleanKey, domain.ErrObjectConflict)
		}
		return s.reference(cleanKey, existing), nil
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return Reference{}, fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, obj.Data, 0o644); err != nil {
		return Reference{}, fmt.Errorf("storage: write file: %w", err)
	}
	return s.reference(cleanKey, obj.Data), nil
}

// Get reads the object back. Content type is inferred from the key extension.
func (s *FileStore) Get(ctx context.Context, key string) (Object, error) {
	if s == nil {
		return Object{}, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Object{}, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, fmt.Errorf("storage: key %s: %w", cleanKey, domain.ErrNotFound)
		}
		return Object{}, fmt.Errorf("storage: read file: %w", err)
	}
	return Object{Key: cleanKey, ContentType: contentTypeForKey(cleanKey), Data: data}, nil
}

// Presign returns the public URL for a key. Filesystem URLs do not expire, so
// ttl is ignored.
func (s *FileStore) Presign(ctx context.Context, key string, _ time.Duration) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if s.baseURL == "" {
		return "", errors.New("storage: no base URL configured")
	}
	return joinURL(s.baseURL, cleanKey), nil
}

// List walks the tree under prefix and returns up to limit entries in key
// order. limit <= 0 means no limit.
func (s *FileStore) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	if s == nil {
		return nil, errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var infos []ObjectInfo
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, ObjectInfo{
			Key:          key,
			Size:         fi.Size(),
			ContentType:  contentTypeForKey(key),
			LastModified: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	if limit > 0 && len(infos) > limit {
		infos = infos[:limit]
	}
	return infos, nil
}

// Healthy reports whether the storage root is usable.
func (s *FileStore) Healthy(ctx context.Context) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fi, err := os.Stat(s.basePath)
	if err != nil {
		return fmt.Errorf("storage: stat base path: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("storage: base path %s is not a directory", s.basePath)
	}
	return nil
}

func (s *FileStore) reference(key string, data []byte) Reference {
	sum := md5.Sum(data)
	ref := Reference{Key: key, ETag: hex.EncodeToString(sum[:])}
	if s.baseURL != "" {
		ref.URL = joinURL(s.baseURL, key)
	}
	return ref
}

func contentTypeForKey(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := contentTypeOverrides[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var _ Store = (*FileStore)(nil)
