// Package storage provides object storage for experiment databases and
// exported tables.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hpc-analysis/pkg/config"
	apperrors "github.com/hpc-analysis/pkg/errors"
)

// Storage is a flat key space of experiment databases and exported tables.
// Keys are slash-separated; keys that would escape the store are rejected
// with an INVALID_INPUT AppError.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader) error
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download opens the object at key. A missing key is a NOT_FOUND
	// AppError.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	DownloadFile(ctx context.Context, key string, localPath string) error

	// Delete succeeds when key does not exist.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// GetURL is where a user can fetch key: a file path or a bucket URL.
	GetURL(key string) string
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// StorageType names a backend in the storage.type config key.
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeCOS   StorageType = "cos"
)

// NewStorage opens the backend selected by cfg.Type.
func NewStorage(cfg *config.StorageConfig) (Storage, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch StorageType(cfg.Type) {
	case StorageTypeCOS:
		return NewCOSStorage(cfg)
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

// ValidateConfig checks that cfg names a usable backend. An empty type
// means local storage.
func ValidateConfig(cfg *config.StorageConfig) error {
	if cfg == nil {
		return apperrors.New(apperrors.CodeConfigError, "storage config is nil")
	}

	var missing []string
	switch StorageType(cfg.Type) {
	case StorageTypeCOS:
		if cfg.Bucket == "" {
			missing = append(missing, "bucket")
		}
		if cfg.Region == "" {
			missing = append(missing, "region")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			missing = append(missing, "credentials")
		}
	case StorageTypeLocal, "":
		if cfg.LocalPath == "" {
			missing = append(missing, "local_path")
		}
	default:
		return apperrors.New(apperrors.CodeConfigError, fmt.Sprintf("unsupported storage type: %s", cfg.Type))
	}
	if len(missing) > 0 {
		return apperrors.New(apperrors.CodeConfigError,
			fmt.Sprintf("%s storage requires %s", storageName(cfg.Type), strings.Join(missing, ", ")))
	}
	return nil
}

func storageName(t string) string {
	if t == "" {
		return string(StorageTypeLocal)
	}
	return t
}
