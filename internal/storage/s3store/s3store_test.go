package s3store_test

import (
	"bytes"
	"context"
	"os"
	"testing"

	"gridsilo/internal/storage"
	"gridsilo/internal/storage/s3store"
	"gridsilo/internal/upload"

	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
)

func TestChunkKeysSortInSequenceOrder(t *testing.T) {
	t.Parallel()

	id := upload.FileID("cq1abc")
	require.Equal(t, "data/chunks/cq1abc/0000000002", s3store.ChunkKey("data/", id, 2))
	require.Less(t, s3store.ChunkKey("", id, 9), s3store.ChunkKey("", id, 10))
	require.Equal(t, "files/cq1abc.cbor", s3store.FileKey("", id))
}

func TestParseChunkKey(t *testing.T) {
	t.Parallel()

	id := upload.FileID("cq1abc")
	for _, n := range []int64{0, 7, 1234567} {
		got, err := s3store.ParseChunkKey("data/", id, s3store.ChunkKey("data/", id, n))
		require.NoError(t, err)
		require.Equal(t, n, got)
	}

	for _, key := range []string{
		"data/chunks/other/0000000001",
		"data/chunks/cq1abc/12",
		"data/chunks/cq1abc/00000000x1",
		"chunks/cq1abc/0000000001",
	} {
		_, err := s3store.ParseChunkKey("data/", id, key)
		require.Errorf(t, err, "key %q", key)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := s3store.New(s3store.Config{Bucket: "b"})
	require.Error(t, err, "endpoint is required")

	_, err = s3store.New(s3store.Config{Endpoint: "localhost:9000"})
	require.Error(t, err, "bucket is required")
}

// newIntegrationStore connects to the S3 endpoint named by
// GRIDSILO_TEST_S3_ENDPOINT, skipping the test when it is unset.
func newIntegrationStore(t *testing.T) *s3store.Store {
	t.Helper()

	endpoint := os.Getenv("GRIDSILO_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("GRIDSILO_TEST_S3_ENDPOINT not set")
	}

	store, err := s3store.New(s3store.Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("GRIDSILO_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("GRIDSILO_TEST_S3_SECRET_KEY"),
		Region:    "us-east-1",
		Bucket:    "gridsilo-test",
		Prefix:    xid.New().String() + "/",
	})
	require.NoError(t, err)
	return store
}

func TestIntegrationUploadAndAbort(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()

	bucket, err := upload.NewBucket(store, upload.WithChunkSize(6))
	require.NoError(t, err)

	payload := []byte("object store chunked upload")
	id, err := bucket.UploadFromReader(ctx, "s3.txt", bytes.NewReader(payload))
	require.NoError(t, err)

	chunks, err := store.ReadChunks(ctx, id)
	require.NoError(t, err)

	var reassembled []byte
	for _, chunk := range chunks {
		reassembled = append(reassembled, chunk.Data...)
	}
	require.Equal(t, payload, reassembled)

	file, err := store.GetFile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), file.Length)

	err = store.InsertChunk(ctx, upload.Chunk{FileID: id, N: 0, Data: []byte("dup")})
	require.ErrorIs(t, err, storage.ErrDuplicateChunk)

	stream, err := bucket.OpenUploadStream("aborted.txt")
	require.NoError(t, err)
	_, err = stream.Write(ctx, bytes.Repeat([]byte("x"), 20))
	require.NoError(t, err)
	require.NoError(t, stream.Abort(ctx))

	chunks, err = store.ReadChunks(ctx, stream.FileID())
	require.NoError(t, err)
	require.Empty(t, chunks)

	_, err = store.GetFile(ctx, stream.FileID())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegrationReadChunksKeepsSequenceNumbers(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	require.NoError(t, store.EnsureIndexes(ctx))

	id := upload.FileID(xid.New().String())
	require.NoError(t, store.InsertChunk(ctx, upload.Chunk{FileID: id, N: 0, Data: []byte("a")}))
	require.NoError(t, store.InsertChunk(ctx, upload.Chunk{FileID: id, N: 2, Data: []byte("c")}))
	t.Cleanup(func() { _ = store.DeleteChunks(context.Background(), id) })

	chunks, err := store.ReadChunks(ctx, id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, int64(0), chunks[0].N)
	require.Equal(t, int64(2), chunks[1].N)
}
