// Package backends opens the storage.Backend named by the service
// configuration.
package backends

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"gridsilo/internal/config"
	"gridsilo/internal/storage"
	"gridsilo/internal/storage/memstore"
	"gridsilo/internal/storage/mongostore"
	"gridsilo/internal/storage/s3store"
	"gridsilo/internal/storage/sqlitestore"
)

// Open connects to or creates the backend selected by cfg.Backend. The
// caller owns the result and must Close it.
func Open(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	slog.Info("Opening storage backend", "backend", cfg.Backend)

	switch cfg.Backend {
	case config.BackendMemory:
		return memstore.New(), nil

	case config.BackendSQLite:
		return sqlitestore.Open(ctx, filepath.Join(cfg.DataDir, "gridsilo.sqlite"))

	case config.BackendLocal:
		compression, err := storage.ParseCompressionTag(cfg.Compression)
		if err != nil {
			return nil, err
		}
		return storage.NewLocalFileStorage(cfg.DataDir, compression), nil

	case config.BackendS3:
		return s3store.New(s3store.Config{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Secure:    cfg.S3.Secure,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
		})

	case config.BackendMongo:
		return mongostore.Dial(mongostore.Config{
			URL:      cfg.Mongo.URL,
			Database: cfg.Mongo.Database,
			Prefix:   cfg.Mongo.Prefix,
		})

	default:
		return nil, fmt.Errorf("unknown backend: %q", cfg.Backend)
	}
}
