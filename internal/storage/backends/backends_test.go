package backends_test

import (
	"context"
	"testing"

	"gridsilo/internal/config"
	"gridsilo/internal/storage"
	"gridsilo/internal/storage/backends"
	"gridsilo/internal/storage/memstore"
	"gridsilo/internal/storage/sqlitestore"

	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	backend, err := backends.Open(ctx, config.Config{Backend: config.BackendMemory})
	require.NoError(t, err)
	require.IsType(t, &memstore.Store{}, backend)

	backend, err = backends.Open(ctx, config.Config{Backend: config.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	require.IsType(t, &sqlitestore.Store{}, backend)
	require.NoError(t, backend.Close())

	backend, err = backends.Open(ctx, config.Config{Backend: config.BackendLocal, DataDir: t.TempDir(), Compression: "lz4"})
	require.NoError(t, err)
	require.IsType(t, &storage.LocalFileStorage{}, backend)

	_, err = backends.Open(ctx, config.Config{Backend: config.BackendLocal, DataDir: t.TempDir(), Compression: "brotli"})
	require.Error(t, err)

	_, err = backends.Open(ctx, config.Config{Backend: "tape"})
	require.Error(t, err)
}
