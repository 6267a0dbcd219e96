package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gridsilo/internal/storage/s3store"
	"gridsilo/internal/upload"

	"github.com/charmbracelet/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const (
	BucketName    = "gridsilo-example"
	ObjectPrefix  = "example/"
	ChunkSize     = 16
	FileName      = "greeting.txt"
	AbortFileName = "abandoned.bin"
)

// ListChunkObjects logs every chunk object stored for id.
func ListChunkObjects(ctx context.Context, client *minio.Client, id upload.FileID) (int, error) {
	prefix := ObjectPrefix + "chunks/" + id.String() + "/"

	count := 0
	for objectInfo := range client.ListObjects(ctx, BucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if objectInfo.Err != nil {
			return 0, fmt.Errorf("failed to list objects in bucket %q: %w", BucketName, objectInfo.Err)
		}
		slog.Info("Chunk object", "key", objectInfo.Key, "size", objectInfo.Size)
		count++
	}
	return count, nil
}

// UploadInPieces writes content through one stream in several writes of
// uneven size, then closes it.
func UploadInPieces(ctx context.Context, bucket *upload.Bucket, name string, content []byte) (upload.FileID, error) {
	stream, err := bucket.OpenUploadStream(name, upload.WithMetadata(map[string]any{"source": "example"}))
	if err != nil {
		return "", err
	}

	for _, size := range []int{5, 23, 1, 40} {
		if len(content) == 0 {
			break
		}
		size = min(size, len(content))
		if _, err := stream.Write(ctx, content[:size]); err != nil {
			return "", fmt.Errorf("write: %w", err)
		}
		content = content[size:]
	}
	if len(content) > 0 {
		if _, err := stream.Write(ctx, content); err != nil {
			return "", fmt.Errorf("write: %w", err)
		}
	}

	if err := stream.Close(ctx); err != nil {
		return "", fmt.Errorf("close: %w", err)
	}
	return stream.FileID(), nil
}

func Run(ctx context.Context) error {
	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           log.DebugLevel,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
	})
	slog.SetDefault(slog.New(handler))

	endpoint := getenv("MINIO_ENDPOINT", "localhost:9000")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(getenv("MINIO_ACCESS_KEY", "minioadmin"), getenv("MINIO_SECRET_KEY", "minioadmin"), ""),
		Secure:       getenv("MINIO_SECURE", "false") == "true",
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	store, err := s3store.NewWithClient(client, BucketName, ObjectPrefix, "us-east-1")
	if err != nil {
		return err
	}

	// The bucket is created by the first write through EnsureIndexes.
	bucket, err := upload.NewBucket(store, upload.WithChunkSize(ChunkSize))
	if err != nil {
		return err
	}

	content := []byte("Hello from the gridsilo example! This text is stored as 16 byte chunks.\n")
	id, err := UploadInPieces(ctx, bucket, FileName, content)
	if err != nil {
		return fmt.Errorf("upload %s: %w", FileName, err)
	}

	file, err := store.GetFile(ctx, id)
	if err != nil {
		return err
	}
	slog.Info("Uploaded file", "id", file.ID, "length", file.Length, "checksum", file.Checksum)

	count, err := ListChunkObjects(ctx, client, id)
	if err != nil {
		return err
	}
	slog.Info("Chunks stored", "file", FileName, "count", count)

	// A second upload is abandoned halfway: its chunks are removed and no
	// file record is written.
	stream, err := bucket.OpenUploadStream(AbortFileName)
	if err != nil {
		return err
	}
	if _, err := stream.Write(ctx, bytes.Repeat([]byte{0xAB}, 3*ChunkSize)); err != nil {
		return err
	}
	if count, err := ListChunkObjects(ctx, client, stream.FileID()); err == nil {
		slog.Info("Chunks before abort", "file", AbortFileName, "count", count)
	}
	if err := stream.Abort(ctx); err != nil {
		return fmt.Errorf("abort: %w", err)
	}

	count, err = ListChunkObjects(ctx, client, stream.FileID())
	if err != nil {
		return err
	}
	slog.Info("Chunks after abort", "file", AbortFileName, "count", count)

	return nil
}

func main() {
	if err := Run(context.Background()); err != nil {
		slog.Error("Example failed", "error", err)
		os.Exit(1)
	}
}
