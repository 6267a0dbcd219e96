// Package s3store keeps uploads in an S3-compatible object store. Every
// chunk is one object and every file record is one CBOR object.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gridsilo/internal/codec"
	"gridsilo/internal/storage"
	"gridsilo/internal/upload"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool

	// Bucket holds every object this store writes.
	Bucket string

	// Prefix is prepended to every object key, letting several stores share
	// one bucket.
	Prefix string
}

type Store struct {
	client *minio.Client
	bucket string
	prefix string
	region string
}

var _ storage.Backend = (*Store)(nil)

// New connects to the object store described by cfg. No request is made
// until the first operation.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("s3 endpoint must not be empty")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return NewWithClient(client, cfg.Bucket, cfg.Prefix, cfg.Region)
}

// NewWithClient wraps an existing client.
func NewWithClient(client *minio.Client, bucket string, prefix string, region string) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket must not be empty")
	}
	return &Store{client: client, bucket: bucket, prefix: prefix, region: region}, nil
}

// ChunkKey returns the object key of chunk n of file id. The sequence
// number is zero padded so a prefix listing returns chunks in order.
func ChunkKey(prefix string, id upload.FileID, n int64) string {
	return fmt.Sprintf("%s%s%010d", prefix, chunkPrefix("", id), n)
}

// ParseChunkKey returns the sequence number encoded in a key made by
// ChunkKey for the same prefix and id.
func ParseChunkKey(prefix string, id upload.FileID, key string) (int64, error) {
	suffix, ok := strings.CutPrefix(key, chunkPrefix(prefix, id))
	if !ok || len(suffix) != 10 {
		return 0, fmt.Errorf("object %q is not a chunk of %s", key, id)
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("object %q has an invalid chunk number", key)
	}
	return n, nil
}

func chunkPrefix(prefix string, id upload.FileID) string {
	return prefix + "chunks/" + id.String() + "/"
}

// FileKey returns the object key of the record of file id.
func FileKey(prefix string, id upload.FileID) string {
	return prefix + "files/" + id.String() + ".cbor"
}

// EnsureIndexes checks if the bucket exists, and creates it if it does not.
// Object keys are the only index an object store has.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", s.bucket, err)
		}
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// objectExists reports whether key is present. Between the check and a
// following put another writer may still win; S3 offers no cheaper
// create-only put through this client.
func (s *Store) objectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNoSuchKey(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) putNew(ctx context.Context, key string, data []byte, contentType string, duplicate error) error {
	exists, err := s.objectExists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return duplicate
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %q to bucket %q: %w", key, s.bucket, err)
	}
	return nil
}

func (s *Store) InsertChunk(ctx context.Context, chunk upload.Chunk) error {
	key := ChunkKey(s.prefix, chunk.FileID, chunk.N)
	duplicate := fmt.Errorf("chunk %d of %s: %w", chunk.N, chunk.FileID, storage.ErrDuplicateChunk)
	return s.putNew(ctx, key, chunk.Data, "application/octet-stream", duplicate)
}

// chunkKeys lists the keys of every chunk object of id in sequence order.
func (s *Store) chunkKeys(ctx context.Context, id upload.FileID) ([]string, error) {
	var keys []string
	opts := minio.ListObjectsOptions{Prefix: chunkPrefix(s.prefix, id), Recursive: true}
	for objectInfo := range s.client.ListObjects(ctx, s.bucket, opts) {
		if objectInfo.Err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %q: %w", s.bucket, objectInfo.Err)
		}
		keys = append(keys, objectInfo.Key)
	}
	return keys, nil
}

func (s *Store) DeleteChunks(ctx context.Context, id upload.FileID) error {
	keys, err := s.chunkKeys(ctx, id)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove object %q: %w", key, err)
		}
	}
	return nil
}

func (s *Store) readObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if isNoSuchKey(err) {
		return nil, storage.ErrNotFound
	}
	return data, err
}

// ReadChunks returns every stored chunk of id ordered by sequence number.
func (s *Store) ReadChunks(ctx context.Context, id upload.FileID) ([]upload.Chunk, error) {
	keys, err := s.chunkKeys(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks := make([]upload.Chunk, 0, len(keys))
	for _, key := range keys {
		n, err := ParseChunkKey(s.prefix, id, key)
		if err != nil {
			return nil, err
		}
		data, err := s.readObject(ctx, key)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, upload.Chunk{FileID: id, N: n, Data: data})
	}
	return chunks, nil
}

func (s *Store) InsertFile(ctx context.Context, file upload.File) error {
	data, err := codec.MarshalFile(file)
	if err != nil {
		return err
	}

	duplicate := fmt.Errorf("file %s: %w", file.ID, storage.ErrDuplicateFile)
	return s.putNew(ctx, FileKey(s.prefix, file.ID), data, "application/cbor", duplicate)
}

func (s *Store) GetFile(ctx context.Context, id upload.FileID) (upload.File, error) {
	data, err := s.readObject(ctx, FileKey(s.prefix, id))
	if err != nil {
		return upload.File{}, err
	}
	return codec.UnmarshalFile(data)
}

func (s *Store) ListFiles(ctx context.Context) ([]upload.File, error) {
	var files []upload.File
	opts := minio.ListObjectsOptions{Prefix: s.prefix + "files/", Recursive: true}
	for objectInfo := range s.client.ListObjects(ctx, s.bucket, opts) {
		if objectInfo.Err != nil {
			return nil, fmt.Errorf("failed to list objects in bucket %q: %w", s.bucket, objectInfo.Err)
		}

		data, err := s.readObject(ctx, objectInfo.Key)
		if err != nil {
			return nil, err
		}
		file, err := codec.UnmarshalFile(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", objectInfo.Key, err)
		}
		files = append(files, file)
	}

	storage.SortFiles(files)
	return files, nil
}

func (s *Store) Close() error {
	return nil
}
