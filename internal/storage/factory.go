package storage

import (
	"fmt"
	"log/slog"

	"github.com/studentid/walletpass/internal/config"
)

// NewObjectStore creates the backend selected by STORAGE_BACKEND.
func NewObjectStore(cfg *config.ServerEnvironment, log *slog.Logger) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case "s3":
		return NewS3Backend(S3Options{
			Bucket:         cfg.S3Bucket,
			Prefix:         cfg.S3Prefix,
			Region:         cfg.S3Region,
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      cfg.S3AccessKeyID,
			SecretKey:      cfg.S3SecretAccessKey,
			ForcePathStyle: cfg.S3ForcePathStyle,
		}, log)
	case "file":
		return NewFileBackend(cfg.FileStorageDir, cfg.PublicBaseURL, []byte(cfg.DownloadTokenSecret), log)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.StorageBackend)
	}
}
