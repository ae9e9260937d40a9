package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/retry"
)

const defaultPresignTTL = time.Hour

// ObjectStoreOptions configures the S3-compatible backend.
type ObjectStoreOptions struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
	Retry     *retry.Policy
	Logger    *infra.Logger
}

func (o ObjectStoreOptions) validate() error {
	if strings.TrimSpace(o.Endpoint) == "" {
		return errors.New("storage: endpoint is required")
	}
	if strings.Contains(o.Endpoint, "://") {
		return fmt.Errorf("storage: endpoint must not include scheme: %q", o.Endpoint)
	}
	if strings.TrimSpace(o.Bucket) == "" {
		return errors.New("storage: bucket is required")
	}
	if strings.TrimSpace(o.AccessKey) == "" {
		return errors.New("storage: access key is required")
	}
	if strings.TrimSpace(o.SecretKey) == "" {
		return errors.New("storage: secret key is required")
	}
	return nil
}

// ObjectStore persists artifacts in an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	region string
	retry  *retry.Policy
	logger *infra.Logger
}

// NewObjectStore builds the client. It does not touch the network; call
// EnsureBucket or Healthy to verify connectivity.
func NewObjectStore(opts ObjectStoreOptions) (*ObjectStore, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	transport := opts.Transport
	if transport == nil {
		transport = newObjectTransport()
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:    opts.UseSSL,
		Region:    opts.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: init client: %w", err)
	}
	policy := opts.Retry
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &ObjectStore{
		client: client,
		bucket: opts.Bucket,
		region: opts.Region,
		retry:  policy,
		logger: logger,
	}, nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return mapObjectErr("ensure bucket", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return mapObjectErr("make bucket", s.bucket, err)
	}
	s.logger.Info().Str("bucket", s.bucket).Msg("storage: bucket created")
	return nil
}

// Put uploads the object. Re-putting identical bytes is a no-op; a key that
// already holds different bytes reports domain.ErrObjectConflict.
func (s *ObjectStore) Put(ctx context.Context, obj Object) (Reference, error) {
	cleanKey, err := sanitizeKey(obj.Key)
	if err != nil {
		return Reference{}, err
	}
	contentMD5 := contentDigest(obj.Data)
	var ref Reference
	attempt := func() error {
		info, statErr := s.client.StatObject(ctx, s.bucket, cleanKey, minio.StatObjectOptions{})
		switch {
		case statErr == nil:
			if !etagMatches(info.ETag, contentMD5) {
				return fmt.Errorf("storage: key %s: %w", cleanKey, domain.ErrObjectConflict)
			}
			ref = Reference{Key: cleanKey, ETag: trimETag(info.ETag)}
			return nil
		case minio.ToErrorResponse(statErr).Code != "NoSuchKey":
			return mapObjectErr("stat object", cleanKey, statErr)
		}
		upload, putErr := s.client.PutObject(ctx, s.bucket, cleanKey,
			bytes.NewReader(obj.Data), int64(len(obj.Data)),
			minio.PutObjectOptions{ContentType: obj.ContentType})
		if putErr != nil {
			return mapObjectErr("put object", cleanKey, putErr)
		}
		ref = Reference{Key: cleanKey, ETag: trimETag(upload.ETag)}
		return nil
	}
	if err := s.retry.Do(ctx, attempt); err != nil {
		return Reference{}, err
	}
	s.logger.Debug().Str("key", cleanKey).Int("bytes", len(obj.Data)).Msg("storage: object stored")
	return ref, nil
}

// Get downloads the object and its content type.
func (s *ObjectStore) Get(ctx context.Context, key string) (Object, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return Object{}, err
	}
	var obj Object
	attempt := func() error {
		info, statErr := s.client.StatObject(ctx, s.bucket, cleanKey, minio.StatObjectOptions{})
		if statErr != nil {
			return mapObjectErr("stat object", cleanKey, statErr)
		}
		reader, getErr := s.client.GetObject(ctx, s.bucket, cleanKey, minio.GetObjectOptions{})
		if getErr != nil {
			return mapObjectErr("get object", cleanKey, getErr)
		}
		defer reader.Close()
		data, readErr := io.ReadAll(reader)
		if readErr != nil {
			return mapObjectErr("read object", cleanKey, readErr)
		}
		obj = Object{Key: cleanKey, ContentType: info.ContentType, Data: data}
		return nil
	}
	if err := s.retry.Do(ctx, attempt); err != nil {
		return Object{}, err
	}
	return obj, nil
}

// Presign returns a time-limited download URL.
func (s *ObjectStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, cleanKey, ttl, nil)
	if err != nil {
		return "", mapObjectErr("presign object", cleanKey, err)
	}
	return u.String(), nil
}

// List returns up to limit objects under prefix. limit <= 0 means no limit.
func (s *ObjectStore) List(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error) {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var infos []ObjectInfo
	for obj := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, mapObjectErr("list objects", prefix, obj.Err)
		}
		infos = append(infos, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         trimETag(obj.ETag),
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
		if limit > 0 && len(infos) >= limit {
			break
		}
	}
	return infos, nil
}

// Healthy verifies the bucket is reachable.
func (s *ObjectStore) Healthy(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return mapObjectErr("bucket exists", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("storage: bucket missing: %s", s.bucket)
	}
	return nil
}

// mapObjectErr classifies S3 failures. Auth rejections are fatal, throttling
// and server-side failures stay retryable, missing keys map to
// domain.ErrNotFound.
func mapObjectErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return fmt.Errorf("storage: %s %s: %w", op, key, domain.ErrNotFound)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return domain.WrapError(domain.KindUnauthorized, fmt.Sprintf("storage: %s %s rejected", op, key), err)
	case "SlowDown":
		return retry.Transient(domain.WrapError(domain.KindUnavailable, fmt.Sprintf("storage: %s %s throttled", op, key), err))
	case "":
		// No S3 error code means the failure happened below the protocol,
		// usually a connection problem.
		return retry.Transient(domain.WrapError(domain.KindUnavailable, fmt.Sprintf("storage: %s %s failed", op, key), err))
	}
	if resp.StatusCode >= 500 {
		return retry.Transient(domain.WrapError(domain.KindUnavailable, fmt.Sprintf("storage: %s %s failed upstream", op, key), err))
	}
	return domain.WrapError(domain.KindUnexpected, fmt.Sprintf("storage: %s %s failed", op, key), err)
}

func contentDigest(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// etagMatches compares a stored ETag against a content MD5. Multipart ETags
// carry a part suffix and cannot prove equality, so they compare as false.
func etagMatches(etag, contentMD5 string) bool {
	etag = trimETag(etag)
	if etag == "" || strings.Contains(etag, "-") {
		return false
	}
	return strings.EqualFold(etag, contentMD5)
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func newObjectTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

var _ Store = (*ObjectStore)(nil)
