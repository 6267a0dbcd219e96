package upload

import (
	"context"
	"time"

	"github.com/rs/xid"
)

// FileID identifies one upload. It is assigned when the stream is opened
// and never changes.
type FileID string

// NewFileID returns a new globally unique, time-ordered file id.
func NewFileID() FileID {
	return FileID(xid.New().String())
}

func (id FileID) String() string {
	return string(id)
}

// Chunk is one persisted segment of an upload. Every chunk of a file except
// possibly the last holds exactly ChunkSize bytes, and N runs contiguously
// from zero.
type Chunk struct {
	FileID FileID
	N      int64
	Data   []byte
}

// File is the record written once when an upload is closed.
type File struct {
	ID                FileID
	Filename          string
	Length            int64
	ChunkSize         int
	UploadDate        time.Time
	Checksum          string
	ChecksumAlgorithm ChecksumAlgorithm
	Metadata          map[string]any
}

// ChunkStore persists chunk records.
type ChunkStore interface {
	// InsertChunk persists a single chunk. Implementations should reject a
	// second chunk with the same file id and sequence number.
	InsertChunk(ctx context.Context, chunk Chunk) error

	// DeleteChunks removes every chunk whose file id equals id, regardless
	// of sequence number.
	DeleteChunks(ctx context.Context, id FileID) error
}

// FileStore persists finalized file records.
type FileStore interface {
	InsertFile(ctx context.Context, file File) error
}

// IndexEnsurer makes sure the lookup indexes the stores rely on exist.
type IndexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}

// IndexEnsurerFunc adapts a function to the IndexEnsurer interface.
type IndexEnsurerFunc func(ctx context.Context) error

func (f IndexEnsurerFunc) EnsureIndexes(ctx context.Context) error {
	return f(ctx)
}

type noIndexes struct{}

func (noIndexes) EnsureIndexes(context.Context) error { return nil }
