package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gridsilo/internal/upload"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// evictionAbortTimeout bounds how long aborting an evicted upload may
	// take, including waiting for a request that is still writing to it.
	evictionAbortTimeout = 30 * time.Second

	abortRetryInitial = 10 * time.Millisecond
	abortRetryMax     = 500 * time.Millisecond
)

// session is one resumable upload driven over several HTTP requests.
type session struct {
	id      string
	stream  *upload.UploadStream
	written atomic.Int64
}

func (s *session) response() UploadResponse {
	return UploadResponse{
		UploadID:  s.id,
		FileID:    s.stream.FileID().String(),
		Filename:  s.stream.Filename(),
		ChunkSize: s.stream.ChunkSize(),
		State:     s.stream.State().String(),
		Written:   s.written.Load(),
	}
}

// sessionTable holds the open sessions in a bounded LRU. When a session is
// pushed out while its stream is still open, the stream is aborted in the
// background so its chunks do not linger.
type sessionTable struct {
	cache    *lru.Cache[string, *session]
	aborting sync.WaitGroup
}

func newSessionTable(size int) (*sessionTable, error) {
	table := &sessionTable{}
	cache, err := lru.NewWithEvict(size, table.onEvict)
	if err != nil {
		return nil, err
	}
	table.cache = cache
	return table, nil
}

func (t *sessionTable) onEvict(id string, s *session) {
	if s.stream.State() != upload.StateOpen {
		return
	}

	t.aborting.Add(1)
	go func() {
		defer t.aborting.Done()

		ctx, cancel := context.WithTimeout(context.Background(), evictionAbortTimeout)
		defer cancel()

		log := slog.With("upload_id", id, "file_id", s.stream.FileID())
		err := abortWhenIdle(ctx, s.stream)
		switch {
		case err == nil:
			log.Info("Aborted evicted upload")
		case errors.Is(err, upload.ErrStreamClosed):
			log.Info("Evicted upload finished before it could be aborted", "error", err)
		default:
			log.Warn("Failed to abort evicted upload", "error", err)
		}
	}()
}

// abortWhenIdle aborts stream, waiting with backoff while another request
// still holds it.
func abortWhenIdle(ctx context.Context, stream *upload.UploadStream) error {
	delay := abortRetryInitial
	for {
		err := stream.Abort(ctx)
		if !errors.Is(err, upload.ErrConcurrentOperation) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", err, ctx.Err())
		case <-timer.C:
		}
		delay = min(delay*2, abortRetryMax)
	}
}

func (t *sessionTable) add(stream *upload.UploadStream) *session {
	s := &session{id: uuid.NewString(), stream: stream}
	t.cache.Add(s.id, s)
	return s
}

func (t *sessionTable) get(id string) (*session, bool) {
	return t.cache.Get(id)
}

func (t *sessionTable) remove(id string) {
	t.cache.Remove(id)
}

func (t *sessionTable) len() int {
	return t.cache.Len()
}

// close aborts every open session and waits for all aborts to finish,
// including those waiting on a request that is still writing.
func (t *sessionTable) close() {
	t.cache.Purge()
	t.aborting.Wait()
}
