package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gridsilo/internal/codec"
	"gridsilo/internal/upload"
)

const (
	chunksDir = "chunks"
	filesDir  = "files"
	tmpDir    = "tmp"

	chunkExt  = ".chunk"
	recordExt = ".cbor"

	// chunkHeaderSize is one compression tag byte followed by the
	// big-endian uncompressed payload length.
	chunkHeaderSize = 5
)

// LocalFileStorage is a Backend that keeps uploads on the local filesystem
// rooted at dataDir. Chunks of one file share a directory, addressed by the
// file id with its first two characters used as a subdirectory prefix, and
// each chunk is stored as its own file named after its sequence number. File
// records are CBOR documents under files/.
type LocalFileStorage struct {
	dataDir     string
	compression CompressionTag
}

var _ Backend = (*LocalFileStorage)(nil)

// NewLocalFileStorage creates a new LocalFileStorage rooted at dataDir.
// Chunk payloads are compressed with the given codec where that saves space.
func NewLocalFileStorage(dataDir string, compression CompressionTag) *LocalFileStorage {
	return &LocalFileStorage{dataDir: dataDir, compression: compression}
}

// ChunkDir computes the directory holding every chunk of the file id.
func ChunkDir(directory string, id upload.FileID) (string, error) {
	s := id.String()
	if len(s) < 2 {
		return "", fmt.Errorf("invalid file id length: %d", len(s))
	}
	if strings.ContainsAny(s, `/\`) || s == ".." {
		return "", fmt.Errorf("invalid file id: %q", s)
	}
	return filepath.Join(directory, chunksDir, s[:2], s), nil
}

// ChunkPath computes the full filesystem path of chunk n of file id.
func ChunkPath(directory string, id upload.FileID, n int64) (string, error) {
	dir, err := ChunkDir(directory, id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, strconv.FormatInt(n, 10)+chunkExt), nil
}

func (s *LocalFileStorage) recordPath(id upload.FileID) (string, error) {
	if _, err := ChunkDir(s.dataDir, id); err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, filesDir, id.String()+recordExt), nil
}

// EnsureIndexes creates the directory layout. The directory tree is the
// only index a filesystem backend has.
func (s *LocalFileStorage) EnsureIndexes(ctx context.Context) error {
	for _, dir := range []string{chunksDir, filesDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(s.dataDir, dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (s *LocalFileStorage) InsertChunk(ctx context.Context, chunk upload.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chunkPath, err := ChunkPath(s.dataDir, chunk.FileID, chunk.N)
	if err != nil {
		return err
	}

	encoded, err := encodeChunkFile(chunk.Data, s.compression)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(chunkPath), 0o755); err != nil {
		return err
	}

	err = WriteFileExclusive(filepath.Join(s.dataDir, tmpDir), chunkPath, encoded)
	if errors.Is(err, ErrExist) {
		return fmt.Errorf("chunk %d of %s: %w", chunk.N, chunk.FileID, ErrDuplicateChunk)
	}
	return err
}

// ReadChunk returns the decoded payload of chunk n of file id.
func (s *LocalFileStorage) ReadChunk(id upload.FileID, n int64) ([]byte, error) {
	chunkPath, err := ChunkPath(s.dataDir, id, n)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(chunkPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeChunkFile(raw)
}

// DeleteChunks removes the file's chunk directory. Deleting chunks of a
// file that never stored any is not an error.
func (s *LocalFileStorage) DeleteChunks(ctx context.Context, id upload.FileID) error {
	dir, err := ChunkDir(s.dataDir, id)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (s *LocalFileStorage) InsertFile(ctx context.Context, file upload.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	recordPath, err := s.recordPath(file.ID)
	if err != nil {
		return err
	}

	data, err := codec.MarshalFile(file)
	if err != nil {
		return err
	}

	err = WriteFileExclusive(filepath.Join(s.dataDir, tmpDir), recordPath, data)
	if errors.Is(err, ErrExist) {
		return fmt.Errorf("file %s: %w", file.ID, ErrDuplicateFile)
	}
	return err
}

func (s *LocalFileStorage) GetFile(ctx context.Context, id upload.FileID) (upload.File, error) {
	recordPath, err := s.recordPath(id)
	if err != nil {
		return upload.File{}, err
	}

	data, err := os.ReadFile(recordPath)
	if errors.Is(err, fs.ErrNotExist) {
		return upload.File{}, ErrNotFound
	}
	if err != nil {
		return upload.File{}, err
	}
	return codec.UnmarshalFile(data)
}

func (s *LocalFileStorage) ListFiles(ctx context.Context) ([]upload.File, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, filesDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	files := make([]upload.File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(filepath.Join(s.dataDir, filesDir, entry.Name()))
		if err != nil {
			return nil, err
		}
		file, err := codec.UnmarshalFile(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Name(), err)
		}
		files = append(files, file)
	}

	SortFiles(files)
	return files, nil
}

func (s *LocalFileStorage) Close() error {
	return nil
}

// SortFiles orders file records by upload date, then by id.
func SortFiles(files []upload.File) {
	sort.Slice(files, func(i, j int) bool {
		if !files[i].UploadDate.Equal(files[j].UploadDate) {
			return files[i].UploadDate.Before(files[j].UploadDate)
		}
		return files[i].ID < files[j].ID
	})
}

func encodeChunkFile(data []byte, tag CompressionTag) ([]byte, error) {
	payload, err := compressChunk(data, tag)
	if errors.Is(err, errIncompressible) {
		payload, tag = data, CompressionNone
	} else if err != nil {
		return nil, err
	}

	out := make([]byte, chunkHeaderSize+len(payload))
	out[0] = byte(tag)
	binary.BigEndian.PutUint32(out[1:chunkHeaderSize], uint32(len(data)))
	copy(out[chunkHeaderSize:], payload)
	return out, nil
}

func decodeChunkFile(raw []byte) ([]byte, error) {
	if len(raw) < chunkHeaderSize {
		return nil, fmt.Errorf("chunk file too short: %d bytes", len(raw))
	}
	tag := CompressionTag(raw[0])
	size := int(binary.BigEndian.Uint32(raw[1:chunkHeaderSize]))
	return decompressChunk(raw[chunkHeaderSize:], tag, size)
}
