package upload

import (
	"context"
	"errors"
	"maps"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of an UploadStream.
type State int32

const (
	StateOpen State = iota
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// UploadStream turns a byte stream into chunk records and, on Close, one
// file record.
//
// An UploadStream serializes its own operations but does not queue them:
// Write, Close and Abort fail with ErrConcurrentOperation when called while
// another of them is still waiting on the stores. Callers that share a
// stream between goroutines must order their calls themselves.
//
// Errors from the stores are returned exactly as the store produced them.
// No error moves the stream out of StateOpen; the caller decides whether to
// retry, close or abort.
type UploadStream struct {
	id        FileID
	filename  string
	chunkSize int
	metadata  map[string]any
	clock     func() time.Time

	chunks  ChunkStore
	files   FileStore
	indexes IndexEnsurer

	guard guard
	state atomic.Int32

	// Owned by whoever holds the guard.
	buffer       *chunkBuffer
	checksum     *checksum
	sequence     int64
	length       int64
	indexChecked bool
}

// NewUploadStream opens a stream for filename. indexes may be nil when the
// stores need no index preparation.
func NewUploadStream(filename string, chunks ChunkStore, files FileStore, indexes IndexEnsurer, opts ...Option) (*UploadStream, error) {
	if chunks == nil {
		return nil, errors.New("chunk store must not be nil")
	}
	if files == nil {
		return nil, errors.New("file store must not be nil")
	}
	if indexes == nil {
		indexes = noIndexes{}
	}

	cfg := NewConfig(opts...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sum, err := newChecksum(cfg.Checksum)
	if err != nil {
		return nil, err
	}

	id := cfg.FileID
	if id == "" {
		id = NewFileID()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &UploadStream{
		id:        id,
		filename:  filename,
		chunkSize: cfg.ChunkSize,
		metadata:  maps.Clone(cfg.Metadata),
		clock:     clock,
		chunks:    chunks,
		files:     files,
		indexes:   indexes,
		buffer:    newChunkBuffer(cfg.ChunkSize),
		checksum:  sum,
	}, nil
}

// FileID returns the id assigned when the stream was opened. It is safe to
// call at any time.
func (s *UploadStream) FileID() FileID {
	return s.id
}

func (s *UploadStream) Filename() string {
	return s.filename
}

func (s *UploadStream) ChunkSize() int {
	return s.chunkSize
}

// State returns the current lifecycle state.
func (s *UploadStream) State() State {
	return State(s.state.Load())
}

// Write buffers p and persists every chunk that becomes complete, in
// sequence order, waiting for each insert before issuing the next.
//
// On success Write returns len(p). If the index check fails nothing is
// buffered and Write returns 0. If a chunk insert fails, the bytes of p
// are already buffered and Write returns len(p) together with the store's
// error; the chunk that failed stays buffered and is attempted again by the
// next Write or by Close.
func (s *UploadStream) Write(ctx context.Context, p []byte) (int, error) {
	if !s.guard.tryEnter() {
		return 0, ErrConcurrentOperation
	}
	defer s.guard.exit()

	if state := s.State(); state != StateOpen {
		return 0, &StateError{Op: "write", State: state}
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return 0, err
	}

	s.buffer.append(p)
	for s.buffer.full() {
		if err := s.persistChunk(ctx); err != nil {
			return len(p), err
		}
	}

	return len(p), nil
}

// Close flushes any buffered bytes as the final chunk and writes the file
// record. Closing a closed stream is a no-op.
func (s *UploadStream) Close(ctx context.Context) error {
	switch state := s.State(); state {
	case StateClosed:
		return nil
	case StateAborted:
		return &StateError{Op: "close", State: state}
	}

	if !s.guard.tryEnter() {
		return ErrConcurrentOperation
	}
	defer s.guard.exit()

	switch state := s.State(); state {
	case StateClosed:
		return nil
	case StateAborted:
		return &StateError{Op: "close", State: state}
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return err
	}

	for s.buffer.len() > 0 {
		if err := s.persistChunk(ctx); err != nil {
			return err
		}
	}

	if err := s.finalize(ctx); err != nil {
		return err
	}

	s.state.Store(int32(StateClosed))
	return nil
}

// Abort deletes every chunk persisted for this upload. An aborted stream
// accepts no further operations.
func (s *UploadStream) Abort(ctx context.Context) error {
	if state := s.State(); state != StateOpen {
		return &StateError{Op: "abort", State: state}
	}

	if !s.guard.tryEnter() {
		return ErrConcurrentOperation
	}
	defer s.guard.exit()

	if state := s.State(); state != StateOpen {
		return &StateError{Op: "abort", State: state}
	}

	if err := s.chunks.DeleteChunks(ctx, s.id); err != nil {
		return err
	}

	s.buffer.reset()
	s.state.Store(int32(StateAborted))
	return nil
}

// ensureIndexes runs the index check the first time any persist is about
// to happen. A failed check is attempted again by the next operation.
func (s *UploadStream) ensureIndexes(ctx context.Context) error {
	if s.indexChecked {
		return nil
	}
	if err := s.indexes.EnsureIndexes(ctx); err != nil {
		return err
	}
	s.indexChecked = true
	return nil
}

// persistChunk inserts the chunk at the head of the buffer. The sequence
// number, length and checksum only advance once the insert succeeded.
func (s *UploadStream) persistChunk(ctx context.Context) error {
	data := s.buffer.peek()

	chunk := Chunk{
		FileID: s.id,
		N:      s.sequence,
		Data:   data,
	}
	if err := s.chunks.InsertChunk(ctx, chunk); err != nil {
		return err
	}

	s.buffer.commit(len(data))
	s.checksum.update(data)
	s.sequence++
	s.length += int64(len(data))
	return nil
}

func (s *UploadStream) finalize(ctx context.Context) error {
	file := File{
		ID:                s.id,
		Filename:          s.filename,
		Length:            s.length,
		ChunkSize:         s.chunkSize,
		UploadDate:        s.clock().UTC(),
		Checksum:          s.checksum.hex(),
		ChecksumAlgorithm: s.checksum.algorithm,
		Metadata:          s.metadata,
	}
	return s.files.InsertFile(ctx, file)
}
