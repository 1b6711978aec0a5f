package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"github.com/hpc-analysis/pkg/config"
	apperrors "github.com/hpc-analysis/pkg/errors"
	"github.com/hpc-analysis/pkg/telemetry"
)

const (
	cosListPageSize = 1000
	cosDomain       = "myqcloud.com"
)

// COSStorage keeps experiment databases and exported tables in a Tencent
// Cloud COS bucket. Keys are rooted at the configured prefix.
type COSStorage struct {
	client  *cos.Client
	bucket  *url.URL
	prefix  string
	timeout time.Duration
}

// COSOption customizes a COSStorage.
type COSOption func(*cosOptions)

type cosOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// WithTransport sends the signed requests through rt instead of the
// default transport.
func WithTransport(rt http.RoundTripper) COSOption {
	return func(o *cosOptions) { o.transport = rt }
}

// WithTimeout bounds every request; zero disables the bound.
func WithTimeout(d time.Duration) COSOption {
	return func(o *cosOptions) { o.timeout = d }
}

// NewCOSStorage connects to the bucket named by cfg.
func NewCOSStorage(cfg *config.StorageConfig, opts ...COSOption) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "bucket and region are required for COS storage")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "credentials are required for COS storage")
	}

	o := cosOptions{timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	domain := cfg.Domain
	if domain == "" {
		domain = cosDomain
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "invalid COS bucket URL", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "invalid COS service URL", err)
	}

	client := cos.NewClient(&cos.BaseURL{
		BucketURL:  bucketURL,
		ServiceURL: serviceURL,
	}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Transport: o.transport,
		},
	})

	return &COSStorage{
		client:  client,
		bucket:  bucketURL,
		prefix:  normalizePrefix(cfg.Prefix),
		timeout: o.timeout,
	}, nil
}

// normalizePrefix turns " /runs " into "runs/". An empty prefix stays empty.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// objectKey maps a storage key to its bucket key.
func (s *COSStorage) objectKey(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || slices.Contains(strings.Split(key, "/"), "..") {
		return "", apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("invalid storage key %q", key), apperrors.ErrInvalidInput)
	}
	return s.prefix + strings.TrimPrefix(clean, "/"), nil
}

func (s *COSStorage) start(ctx context.Context, op, key string) (context.Context, context.CancelFunc, func(error)) {
	ctx, span := telemetry.StartSpan(ctx, "storage.cos."+op, telemetry.AttrInput.String(key))
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	return ctx, cancel, func(err error) { telemetry.EndSpan(span, err) }
}

// Upload stores the contents of reader at key.
func (s *COSStorage) Upload(ctx context.Context, key string, reader io.Reader) (err error) {
	name, err := s.objectKey(key)
	if err != nil {
		return err
	}
	ctx, cancel, end := s.start(ctx, "upload", name)
	defer cancel()
	defer func() { end(err) }()

	if _, err := s.client.Object.Put(ctx, name, reader, nil); err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, fmt.Sprintf("failed to upload %s", key), err)
	}
	return nil
}

// UploadFile stores a local file at key.
func (s *COSStorage) UploadFile(ctx context.Context, key string, localPath string) (err error) {
	name, err := s.objectKey(key)
	if err != nil {
		return err
	}
	ctx, cancel, end := s.start(ctx, "upload_file", name)
	defer cancel()
	defer func() { end(err) }()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	if _, err := s.client.Object.Put(ctx, name, f, nil); err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, fmt.Sprintf("failed to upload %s", localPath), err)
	}
	return nil
}

// Download opens the object at key. The caller closes the body; the
// request timeout does not apply to reading it.
func (s *COSStorage) Download(ctx context.Context, key string) (_ io.ReadCloser, err error) {
	name, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartSpan(ctx, "storage.cos.download", telemetry.AttrInput.String(name))
	defer func() { telemetry.EndSpan(span, err) }()

	resp, err := s.client.Object.Get(ctx, name, nil)
	if err != nil {
		return nil, s.downloadError(key, err)
	}
	return resp.Body, nil
}

// DownloadFile copies the object at key to localPath.
func (s *COSStorage) DownloadFile(ctx context.Context, key string, localPath string) (err error) {
	body, err := s.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, body); err != nil {
		return apperrors.Wrap(apperrors.CodeDownloadError, fmt.Sprintf("failed to download %s", key), err)
	}
	return dst.Close()
}

func (s *COSStorage) downloadError(key string, err error) error {
	if cos.IsNotFoundError(err) {
		return notFound(key)
	}
	return apperrors.Wrap(apperrors.CodeDownloadError, fmt.Sprintf("failed to download %s", key), err)
}

// Delete removes the object at key. Deleting a missing key succeeds.
func (s *COSStorage) Delete(ctx context.Context, key string) (err error) {
	name, err := s.objectKey(key)
	if err != nil {
		return err
	}
	ctx, cancel, end := s.start(ctx, "delete", name)
	defer cancel()
	defer func() { end(err) }()

	if _, err := s.client.Object.Delete(ctx, name, nil); err != nil && !cos.IsNotFoundError(err) {
		return apperrors.Wrap(apperrors.CodeStorageError, fmt.Sprintf("failed to delete %s", key), err)
	}
	return nil
}

// Exists reports whether an object is stored at key.
func (s *COSStorage) Exists(ctx context.Context, key string) (ok bool, err error) {
	name, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	ctx, cancel, end := s.start(ctx, "exists", name)
	defer cancel()
	defer func() { end(err) }()

	ok, err = s.client.Object.IsExist(ctx, name)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStorageError, fmt.Sprintf("failed to stat %s", key), err)
	}
	return ok, nil
}

// List pages through the bucket listing of prefix. Returned keys are
// relative to the storage prefix.
func (s *COSStorage) List(ctx context.Context, prefix string) (_ []ObjectInfo, err error) {
	ctx, cancel, end := s.start(ctx, "list", s.prefix+prefix)
	defer cancel()
	defer func() { end(err) }()

	var objects []ObjectInfo
	opt := &cos.BucketGetOptions{Prefix: s.prefix + prefix, MaxKeys: cosListPageSize}
	for {
		result, _, err := s.client.Bucket.Get(ctx, opt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageError, fmt.Sprintf("failed to list %q", prefix), err)
		}
		for _, obj := range result.Contents {
			modified, _ := time.Parse(time.RFC3339, obj.LastModified)
			objects = append(objects, ObjectInfo{
				Key:          strings.TrimPrefix(obj.Key, s.prefix),
				Size:         obj.Size,
				LastModified: modified,
			})
		}
		if !result.IsTruncated || result.NextMarker == "" {
			break
		}
		opt.Marker = result.NextMarker
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// GetURL returns the public URL of key, or "" for an invalid key.
func (s *COSStorage) GetURL(key string) string {
	name, err := s.objectKey(key)
	if err != nil {
		return ""
	}
	return s.bucket.String() + "/" + name
}
