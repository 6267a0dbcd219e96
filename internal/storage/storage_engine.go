package storage

import (
	"context"
	"errors"

	"gridsilo/internal/upload"
)

var (
	// ErrNotFound is returned when a file record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateChunk is returned when a chunk with the same file id and
	// sequence number was already persisted.
	ErrDuplicateChunk = errors.New("duplicate chunk")

	// ErrDuplicateFile is returned when a file record with the same id was
	// already written.
	ErrDuplicateFile = errors.New("duplicate file record")
)

// Backend is a storage engine that can hold GridFS-style uploads: it
// persists chunks and file records, prepares its indexes, and lists what
// it holds for the HTTP browser and the CLI.
type Backend interface {
	upload.ChunkStore
	upload.FileStore
	upload.IndexEnsurer

	// GetFile returns the file record for id, or ErrNotFound.
	GetFile(ctx context.Context, id upload.FileID) (upload.File, error)

	// ListFiles returns every finalized file record ordered by upload date.
	ListFiles(ctx context.Context) ([]upload.File, error)

	// Close releases any connections or handles held by the backend.
	Close() error
}
