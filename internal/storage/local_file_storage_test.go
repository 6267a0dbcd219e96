package storage_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gridsilo/internal/storage"
	"gridsilo/internal/upload"

	"github.com/stretchr/testify/require"
)

func newLocalEngine(t *testing.T, compression storage.CompressionTag) (*storage.LocalFileStorage, string) {
	t.Helper()

	dataDir := t.TempDir()
	engine := storage.NewLocalFileStorage(dataDir, compression)
	require.NoError(t, engine.EnsureIndexes(context.Background()), "EnsureIndexes error")
	return engine, dataDir
}

func TestLocalFileStorageInsertAndReadChunk(t *testing.T) {
	t.Parallel()

	for _, tag := range []storage.CompressionTag{storage.CompressionNone, storage.CompressionLZ4, storage.CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()

			engine, dataDir := newLocalEngine(t, tag)
			ctx := context.Background()
			id := upload.NewFileID()

			payload := bytes.Repeat([]byte("compressible payload "), 64)
			require.NoError(t, engine.InsertChunk(ctx, upload.Chunk{FileID: id, N: 0, Data: payload}), "InsertChunk error")

			chunkPath, err := storage.ChunkPath(dataDir, id, 0)
			require.NoError(t, err)

			info, err := os.Stat(chunkPath)
			require.NoError(t, err, "expected chunk file to exist")
			require.False(t, info.IsDir(), "chunk path should be a file")
			if tag != storage.CompressionNone {
				require.Less(t, info.Size(), int64(len(payload)), "compressed chunk should be smaller")
			}

			got, err := engine.ReadChunk(id, 0)
			require.NoError(t, err, "ReadChunk error")
			require.Equal(t, payload, got, "payload mismatch")
		})
	}
}

func TestLocalFileStorageIncompressibleChunkStoredRaw(t *testing.T) {
	t.Parallel()

	engine, _ := newLocalEngine(t, storage.CompressionZstd)
	ctx := context.Background()
	id := upload.NewFileID()

	payload := []byte("abc")
	require.NoError(t, engine.InsertChunk(ctx, upload.Chunk{FileID: id, N: 0, Data: payload}))

	got, err := engine.ReadChunk(id, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLocalFileStorageDuplicateChunkRejected(t *testing.T) {
	t.Parallel()

	engine, _ := newLocalEngine(t, storage.CompressionNone)
	ctx := context.Background()
	id := upload.NewFileID()

	require.NoError(t, engine.InsertChunk(ctx, upload.Chunk{FileID: id, N: 3, Data: []byte("first")}))

	err := engine.InsertChunk(ctx, upload.Chunk{FileID: id, N: 3, Data: []byte("second")})
	require.ErrorIs(t, err, storage.ErrDuplicateChunk)

	got, err := engine.ReadChunk(id, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("first"), got, "existing chunk must not be replaced")
}

func TestLocalFileStorageDeleteChunks(t *testing.T) {
	t.Parallel()

	engine, dataDir := newLocalEngine(t, storage.CompressionLZ4)
	ctx := context.Background()
	id := upload.NewFileID()
	other := upload.NewFileID()

	for n := int64(0); n < 3; n++ {
		require.NoError(t, engine.InsertChunk(ctx, upload.Chunk{FileID: id, N: n, Data: []byte("x")}))
	}
	require.NoError(t, engine.InsertChunk(ctx, upload.Chunk{FileID: other, N: 0, Data: []byte("y")}))

	require.NoError(t, engine.DeleteChunks(ctx, id), "DeleteChunks error")

	dir, err := storage.ChunkDir(dataDir, id)
	require.NoError(t, err)
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err), "chunk directory should be gone")

	_, err = engine.ReadChunk(id, 0)
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := engine.ReadChunk(other, 0)
	require.NoError(t, err, "other file's chunks must survive")
	require.Equal(t, []byte("y"), got)

	// Deleting again is not an error.
	require.NoError(t, engine.DeleteChunks(ctx, id))
}

func TestLocalFileStorageInvalidFileID(t *testing.T) {
	t.Parallel()

	engine, _ := newLocalEngine(t, storage.CompressionNone)
	ctx := context.Background()

	err := engine.InsertChunk(ctx, upload.Chunk{FileID: "a", N: 0, Data: []byte("data")})
	require.Error(t, err, "expected error for too-short id")

	err = engine.InsertChunk(ctx, upload.Chunk{FileID: "../escape", N: 0, Data: []byte("data")})
	require.Error(t, err, "expected error for id with a path separator")

	_, err = engine.GetFile(ctx, "a")
	require.Error(t, err)
}

func TestLocalFileStorageFileRecords(t *testing.T) {
	t.Parallel()

	engine, dataDir := newLocalEngine(t, storage.CompressionNone)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	second := upload.File{
		ID:                upload.NewFileID(),
		Filename:          "b.txt",
		Length:            10,
		ChunkSize:         4,
		UploadDate:        base.Add(time.Minute),
		Checksum:          strings.Repeat("a", 32),
		ChecksumAlgorithm: upload.ChecksumMD5,
	}
	first := upload.File{
		ID:                upload.NewFileID(),
		Filename:          "a.txt",
		Length:            0,
		ChunkSize:         4,
		UploadDate:        base,
		Checksum:          strings.Repeat("b", 32),
		ChecksumAlgorithm: upload.ChecksumMD5,
		Metadata:          map[string]any{"owner": "alice"},
	}

	require.NoError(t, engine.InsertFile(ctx, second))
	require.NoError(t, engine.InsertFile(ctx, first))

	require.ErrorIs(t, engine.InsertFile(ctx, first), storage.ErrDuplicateFile)

	_, err := os.Stat(filepath.Join(dataDir, "files", first.ID.String()+".cbor"))
	require.NoError(t, err, "expected record file")

	got, err := engine.GetFile(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.Filename, got.Filename)
	require.Equal(t, "alice", got.Metadata["owner"])
	require.True(t, first.UploadDate.Equal(got.UploadDate))

	files, err := engine.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, first.ID, files[0].ID, "files should be ordered by upload date")
	require.Equal(t, second.ID, files[1].ID)

	_, err = engine.GetFile(ctx, upload.NewFileID())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocalFileStorageListFilesBeforeEnsure(t *testing.T) {
	t.Parallel()

	engine := storage.NewLocalFileStorage(t.TempDir(), storage.CompressionNone)

	files, err := engine.ListFiles(context.Background())
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestLocalFileStorageBucketUpload(t *testing.T) {
	t.Parallel()

	engine := storage.NewLocalFileStorage(t.TempDir(), storage.CompressionZstd)
	bucket, err := upload.NewBucket(engine, upload.WithChunkSize(8))
	require.NoError(t, err)

	ctx := context.Background()
	payload := []byte("a local filesystem upload spanning chunks")

	id, err := bucket.UploadFromReader(ctx, "local.txt", bytes.NewReader(payload))
	require.NoError(t, err)

	file, err := engine.GetFile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), file.Length)
	require.Equal(t, 8, file.ChunkSize)

	var reassembled []byte
	for n := int64(0); n*8 < file.Length; n++ {
		data, err := engine.ReadChunk(id, n)
		require.NoError(t, err)
		reassembled = append(reassembled, data...)
	}
	require.Equal(t, payload, reassembled)
}

func TestParseCompressionTag(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]storage.CompressionTag{
		"":     storage.CompressionNone,
		"none": storage.CompressionNone,
		"lz4":  storage.CompressionLZ4,
		"zstd": storage.CompressionZstd,
	} {
		got, err := storage.ParseCompressionTag(name)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}

	_, err := storage.ParseCompressionTag("gzip")
	require.Error(t, err)
}
