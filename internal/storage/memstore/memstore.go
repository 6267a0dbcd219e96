// Package memstore keeps uploads in process memory. It backs tests and the
// "memory" backend of the server, where nothing needs to survive a restart.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"gridsilo/internal/storage"
	"gridsilo/internal/upload"
)

type chunkKey struct {
	id upload.FileID
	n  int64
}

type Store struct {
	mu      sync.RWMutex
	chunks  map[chunkKey][]byte
	files   map[upload.FileID]upload.File
	indexed bool
}

var _ storage.Backend = (*Store)(nil)

func New() *Store {
	return &Store{
		chunks: make(map[chunkKey][]byte),
		files:  make(map[upload.FileID]upload.File),
	}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indexed = true
	return nil
}

// Indexed reports whether EnsureIndexes has been called.
func (s *Store) Indexed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.indexed
}

func (s *Store) InsertChunk(ctx context.Context, chunk upload.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := chunkKey{id: chunk.FileID, n: chunk.N}
	if _, ok := s.chunks[key]; ok {
		return fmt.Errorf("chunk %d of %s: %w", chunk.N, chunk.FileID, storage.ErrDuplicateChunk)
	}

	s.chunks[key] = append([]byte(nil), chunk.Data...)
	return nil
}

func (s *Store) DeleteChunks(ctx context.Context, id upload.FileID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.chunks {
		if key.id == id {
			delete(s.chunks, key)
		}
	}
	return nil
}

// Chunks returns copies of every stored chunk of id, ordered by sequence
// number.
func (s *Store) Chunks(id upload.FileID) []upload.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var chunks []upload.Chunk
	for n := int64(0); ; n++ {
		data, ok := s.chunks[chunkKey{id: id, n: n}]
		if !ok {
			break
		}
		chunks = append(chunks, upload.Chunk{FileID: id, N: n, Data: append([]byte(nil), data...)})
	}
	return chunks
}

// ChunkCount returns the number of chunks stored for id, contiguous or not.
func (s *Store) ChunkCount(id upload.FileID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.chunks {
		if key.id == id {
			count++
		}
	}
	return count
}

func (s *Store) InsertFile(ctx context.Context, file upload.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[file.ID]; ok {
		return fmt.Errorf("file %s: %w", file.ID, storage.ErrDuplicateFile)
	}
	s.files[file.ID] = file
	return nil
}

func (s *Store) GetFile(ctx context.Context, id upload.FileID) (upload.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, ok := s.files[id]
	if !ok {
		return upload.File{}, storage.ErrNotFound
	}
	return file, nil
}

func (s *Store) ListFiles(ctx context.Context) ([]upload.File, error) {
	s.mu.RLock()
	files := make([]upload.File, 0, len(s.files))
	for _, file := range s.files {
		files = append(files, file)
	}
	s.mu.RUnlock()

	storage.SortFiles(files)
	return files, nil
}

func (s *Store) Close() error {
	return nil
}
