// Package sqlitestore keeps uploads in a single SQLite database: one row per
// chunk and one row per finalized file.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gridsilo/internal/codec"
	"gridsilo/internal/storage"
	"gridsilo/internal/upload"

	"github.com/mattn/go-sqlite3"
)

//go:embed migrations
var migrationsFS embed.FS

// dateLayout has fixed-width fractional seconds so upload dates sort
// correctly as text.
const dateLayout = "2006-01-02T15:04:05.000000000Z"

// Store is a storage.Backend over SQLite. The tables are created by Open;
// the unique chunk index and the filename lookup index are created by
// EnsureIndexes, the first time an upload writes.
type Store struct {
	db *sql.DB
}

var _ storage.Backend = (*Store)(nil)

// initSchema applies all SQL files in the embedded migrations in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// Open opens (creating if needed) the database at dbPath and applies the
// schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path must not be empty")
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// WithTransaction runs a function within a database transaction.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("error executing transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	return WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_files_id_n ON chunks(files_id, n);`,
			`CREATE INDEX IF NOT EXISTS idx_files_filename_upload_date ON files(filename, upload_date);`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ensure indexes: %w", err)
			}
		}
		return nil
	})
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func (s *Store) InsertChunk(ctx context.Context, chunk upload.Chunk) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (files_id, n, data) VALUES (?, ?, ?)`,
		string(chunk.FileID), chunk.N, chunk.Data,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("chunk %d of %s: %w", chunk.N, chunk.FileID, storage.ErrDuplicateChunk)
	}
	return err
}

func (s *Store) DeleteChunks(ctx context.Context, id upload.FileID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE files_id = ?`, string(id))
	return err
}

// ReadChunks returns every stored chunk of id ordered by sequence number.
func (s *Store) ReadChunks(ctx context.Context, id upload.FileID) ([]upload.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n, data FROM chunks WHERE files_id = ? ORDER BY n`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []upload.Chunk
	for rows.Next() {
		chunk := upload.Chunk{FileID: id}
		if err := rows.Scan(&chunk.N, &chunk.Data); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *Store) InsertFile(ctx context.Context, file upload.File) error {
	var metadata []byte
	if file.Metadata != nil {
		var err error
		if metadata, err = codec.Marshal(file.Metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (id, filename, length, chunk_size, upload_date, checksum, checksum_algorithm, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(file.ID), file.Filename, file.Length, file.ChunkSize,
		file.UploadDate.UTC().Format(dateLayout),
		file.Checksum, string(file.ChecksumAlgorithm), metadata,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("file %s: %w", file.ID, storage.ErrDuplicateFile)
	}
	return err
}

const selectFiles = `SELECT id, filename, length, chunk_size, upload_date, checksum, checksum_algorithm, metadata FROM files`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (upload.File, error) {
	var (
		file       upload.File
		id         string
		uploadDate string
		algorithm  string
		metadata   []byte
	)

	if err := row.Scan(&id, &file.Filename, &file.Length, &file.ChunkSize, &uploadDate, &file.Checksum, &algorithm, &metadata); err != nil {
		return upload.File{}, err
	}

	parsed, err := time.Parse(dateLayout, uploadDate)
	if err != nil {
		return upload.File{}, fmt.Errorf("parse upload date of %s: %w", id, err)
	}

	file.ID = upload.FileID(id)
	file.UploadDate = parsed
	file.ChecksumAlgorithm = upload.ChecksumAlgorithm(algorithm)

	if len(metadata) > 0 {
		if err := codec.Unmarshal(metadata, &file.Metadata); err != nil {
			return upload.File{}, fmt.Errorf("decode metadata of %s: %w", id, err)
		}
	}

	return file, nil
}

func (s *Store) GetFile(ctx context.Context, id upload.FileID) (upload.File, error) {
	file, err := scanFile(s.db.QueryRowContext(ctx, selectFiles+` WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return upload.File{}, storage.ErrNotFound
	}
	return file, err
}

func (s *Store) ListFiles(ctx context.Context) ([]upload.File, error) {
	rows, err := s.db.QueryContext(ctx, selectFiles+` ORDER BY upload_date, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []upload.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
