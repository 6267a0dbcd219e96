package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// Backend is the set of stores a Bucket writes through.
type Backend interface {
	ChunkStore
	FileStore
	IndexEnsurer
}

// Bucket opens upload streams against one backend with shared defaults.
type Bucket struct {
	backend  Backend
	defaults []Option
	indexes  *onceIndexes
}

// NewBucket returns a Bucket writing to backend. defaults are applied to
// every stream before the options given to OpenUploadStream.
func NewBucket(backend Backend, defaults ...Option) (*Bucket, error) {
	if backend == nil {
		return nil, errors.New("backend must not be nil")
	}

	cfg := NewConfig(defaults...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Bucket{
		backend:  backend,
		defaults: defaults,
		indexes:  &onceIndexes{next: backend},
	}, nil
}

// OpenUploadStream opens a new stream for filename.
func (b *Bucket) OpenUploadStream(filename string, opts ...Option) (*UploadStream, error) {
	all := make([]Option, 0, len(b.defaults)+len(opts))
	all = append(all, b.defaults...)
	all = append(all, opts...)
	return NewUploadStream(filename, b.backend, b.backend, b.indexes, all...)
}

// UploadFromReader copies r into a new upload and closes it. If reading or
// writing fails the upload is aborted; an abort failure is joined to the
// original error.
func (b *Bucket) UploadFromReader(ctx context.Context, filename string, r io.Reader, opts ...Option) (FileID, error) {
	stream, err := b.OpenUploadStream(filename, opts...)
	if err != nil {
		return "", err
	}

	buf := make([]byte, stream.ChunkSize())
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			if _, err := stream.Write(ctx, buf[:n]); err != nil {
				return "", abortAfter(ctx, stream, err)
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return "", abortAfter(ctx, stream, fmt.Errorf("read upload source: %w", readErr))
		}
	}

	if err := stream.Close(ctx); err != nil {
		return "", abortAfter(ctx, stream, err)
	}

	return stream.FileID(), nil
}

func abortAfter(ctx context.Context, stream *UploadStream, cause error) error {
	if err := stream.Abort(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("abort upload %s: %w", stream.FileID(), err))
	}
	return cause
}

// onceIndexes remembers a successful index check so later streams of the
// same bucket skip the round trip. Failures are not remembered.
type onceIndexes struct {
	next IndexEnsurer
	done atomic.Bool
}

func (o *onceIndexes) EnsureIndexes(ctx context.Context) error {
	if o.done.Load() {
		return nil
	}
	if err := o.next.EnsureIndexes(ctx); err != nil {
		return err
	}
	o.done.Store(true)
	return nil
}
