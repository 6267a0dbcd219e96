package upload

import (
	"context"
	"sync"
)

// call records one store invocation in the order it happened.
type call struct {
	op    string
	chunk Chunk
	file  File
	id    FileID
}

// fakeStore is a deterministic ChunkStore, FileStore and IndexEnsurer. The
// err fields make the matching operation fail; block, when set, holds the
// next chunk insert until it is closed.
type fakeStore struct {
	mu    sync.Mutex
	calls []call

	insertChunkErr  error
	failChunkAt     int64
	insertFileErr   error
	deleteChunksErr error
	ensureErr       error

	entered chan struct{}
	block   chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{failChunkAt: -1}
}

func (f *fakeStore) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeStore) InsertChunk(ctx context.Context, chunk Chunk) error {
	if f.block != nil {
		if f.entered != nil {
			close(f.entered)
			f.entered = nil
		}
		<-f.block
	}
	f.record(call{op: "insertChunk", chunk: chunk})
	if f.insertChunkErr != nil && (f.failChunkAt < 0 || f.failChunkAt == chunk.N) {
		return f.insertChunkErr
	}
	return nil
}

func (f *fakeStore) DeleteChunks(ctx context.Context, id FileID) error {
	f.record(call{op: "deleteChunks", id: id})
	return f.deleteChunksErr
}

func (f *fakeStore) InsertFile(ctx context.Context, file File) error {
	f.record(call{op: "insertFile", file: file})
	return f.insertFileErr
}

func (f *fakeStore) EnsureIndexes(ctx context.Context) error {
	f.record(call{op: "ensureIndexes"})
	return f.ensureErr
}

func (f *fakeStore) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeStore) ops(name string) []call {
	var out []call
	for _, c := range f.snapshot() {
		if c.op == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeStore) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
