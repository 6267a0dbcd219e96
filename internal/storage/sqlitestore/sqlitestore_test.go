package sqlitestore_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"gridsilo/internal/storage"
	"gridsilo/internal/storage/sqlitestore"
	"gridsilo/internal/upload"

	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()

	store, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "gridsilo.sqlite"))
	require.NoError(t, err, "Open error")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := sqlitestore.Open(context.Background(), "")
	require.Error(t, err)
}

func TestChunksUniqueAfterEnsureIndexes(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	id := upload.NewFileID()

	require.NoError(t, store.EnsureIndexes(ctx))
	// Running it twice is harmless.
	require.NoError(t, store.EnsureIndexes(ctx))

	require.NoError(t, store.InsertChunk(ctx, upload.Chunk{FileID: id, N: 0, Data: []byte("a")}))
	require.NoError(t, store.InsertChunk(ctx, upload.Chunk{FileID: id, N: 1, Data: []byte("b")}))

	err := store.InsertChunk(ctx, upload.Chunk{FileID: id, N: 1, Data: []byte("c")})
	require.ErrorIs(t, err, storage.ErrDuplicateChunk)

	chunks, err := store.ReadChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, []byte("a"), chunks[0].Data)
	require.Equal(t, []byte("b"), chunks[1].Data)

	require.NoError(t, store.DeleteChunks(ctx, id))
	chunks, err = store.ReadChunks(ctx, id)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestFileRecords(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureIndexes(ctx))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	later := upload.File{
		ID:                upload.NewFileID(),
		Filename:          "later.bin",
		Length:            3,
		ChunkSize:         2,
		UploadDate:        base.Add(500 * time.Millisecond),
		Checksum:          "abc",
		ChecksumAlgorithm: upload.ChecksumSHA256,
	}
	earlier := upload.File{
		ID:                upload.NewFileID(),
		Filename:          "earlier.bin",
		Length:            0,
		ChunkSize:         2,
		UploadDate:        base,
		Checksum:          "def",
		ChecksumAlgorithm: upload.ChecksumMD5,
		Metadata:          map[string]any{"kind": "report"},
	}

	require.NoError(t, store.InsertFile(ctx, later))
	require.NoError(t, store.InsertFile(ctx, earlier))
	require.ErrorIs(t, store.InsertFile(ctx, earlier), storage.ErrDuplicateFile)

	got, err := store.GetFile(ctx, earlier.ID)
	require.NoError(t, err)
	require.Equal(t, "earlier.bin", got.Filename)
	require.Equal(t, upload.ChecksumMD5, got.ChecksumAlgorithm)
	require.Equal(t, "report", got.Metadata["kind"])
	require.True(t, base.Equal(got.UploadDate))

	got, err = store.GetFile(ctx, later.ID)
	require.NoError(t, err)
	require.Nil(t, got.Metadata)

	files, err := store.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, earlier.ID, files[0].ID)
	require.Equal(t, later.ID, files[1].ID)

	_, err = store.GetFile(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBucketUploadAndAbort(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	bucket, err := upload.NewBucket(store, upload.WithChunkSize(5))
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("hello sqlite chunks")

	id, err := bucket.UploadFromReader(ctx, "hello.txt", bytes.NewReader(payload))
	require.NoError(t, err)

	chunks, err := store.ReadChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	var reassembled []byte
	for i, chunk := range chunks {
		require.Equal(t, int64(i), chunk.N)
		reassembled = append(reassembled, chunk.Data...)
	}
	require.Equal(t, payload, reassembled)

	stream, err := bucket.OpenUploadStream("aborted.txt")
	require.NoError(t, err)
	_, err = stream.Write(ctx, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, stream.Abort(ctx))

	chunks, err = store.ReadChunks(ctx, stream.FileID())
	require.NoError(t, err)
	require.Empty(t, chunks)

	_, err = store.GetFile(ctx, stream.FileID())
	require.ErrorIs(t, err, storage.ErrNotFound)
}
