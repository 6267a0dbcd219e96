// Package mongostore keeps uploads in MongoDB using the GridFS collection
// layout: <prefix>.chunks holds {files_id, n, data} documents and
// <prefix>.files holds one document per finalized file.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridsilo/internal/storage"
	"gridsilo/internal/upload"

	"github.com/juju/mgo/v3"
	"github.com/juju/mgo/v3/bson"
)

// DefaultPrefix is the collection prefix GridFS drivers use.
const DefaultPrefix = "fs"

type Config struct {
	URL      string
	Database string
	Prefix   string
	Timeout  time.Duration
}

type Store struct {
	session  *mgo.Session
	database string
	prefix   string
}

var _ storage.Backend = (*Store)(nil)

type chunkDoc struct {
	FilesID string `bson:"files_id"`
	N       int64  `bson:"n"`
	Data    []byte `bson:"data"`
}

type fileDoc struct {
	ID                string         `bson:"_id"`
	Filename          string         `bson:"filename"`
	Length            int64          `bson:"length"`
	ChunkSize         int            `bson:"chunkSize"`
	UploadDate        time.Time      `bson:"uploadDate"`
	Checksum          string         `bson:"checksum"`
	ChecksumAlgorithm string         `bson:"checksumAlgorithm"`
	Metadata          map[string]any `bson:"metadata,omitempty"`
}

// Dial connects to the MongoDB deployment at cfg.URL.
func Dial(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("mongo url must not be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	session, err := mgo.DialWithTimeout(cfg.URL, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial mongo: %w", err)
	}
	session.SetMode(mgo.Strong, true)
	session.SetSafe(&mgo.Safe{})

	return NewWithSession(session, cfg.Database, cfg.Prefix), nil
}

// NewWithSession wraps an established session. The store takes ownership
// of it and closes it in Close. An empty database uses the one named in the
// dial URL; an empty prefix uses DefaultPrefix.
func NewWithSession(session *mgo.Session, database string, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{session: session, database: database, prefix: prefix}
}

// collection runs fn against the named collection on a copy of the root
// session, so concurrent uploads use separate sockets.
func (s *Store) collection(ctx context.Context, name string, fn func(c *mgo.Collection) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := s.session.Copy()
	defer session.Close()

	return fn(session.DB(s.database).C(s.prefix + "." + name))
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	err := s.collection(ctx, "chunks", func(c *mgo.Collection) error {
		return c.EnsureIndex(mgo.Index{Key: []string{"files_id", "n"}, Unique: true})
	})
	if err != nil {
		return fmt.Errorf("ensure chunks index: %w", err)
	}

	err = s.collection(ctx, "files", func(c *mgo.Collection) error {
		return c.EnsureIndex(mgo.Index{Key: []string{"filename", "uploadDate"}})
	})
	if err != nil {
		return fmt.Errorf("ensure files index: %w", err)
	}
	return nil
}

func (s *Store) InsertChunk(ctx context.Context, chunk upload.Chunk) error {
	err := s.collection(ctx, "chunks", func(c *mgo.Collection) error {
		return c.Insert(chunkDoc{FilesID: chunk.FileID.String(), N: chunk.N, Data: chunk.Data})
	})
	if mgo.IsDup(err) {
		return fmt.Errorf("chunk %d of %s: %w", chunk.N, chunk.FileID, storage.ErrDuplicateChunk)
	}
	return err
}

func (s *Store) DeleteChunks(ctx context.Context, id upload.FileID) error {
	return s.collection(ctx, "chunks", func(c *mgo.Collection) error {
		_, err := c.RemoveAll(bson.M{"files_id": id.String()})
		return err
	})
}

// ReadChunks returns every stored chunk of id ordered by sequence number.
func (s *Store) ReadChunks(ctx context.Context, id upload.FileID) ([]upload.Chunk, error) {
	var docs []chunkDoc
	err := s.collection(ctx, "chunks", func(c *mgo.Collection) error {
		return c.Find(bson.M{"files_id": id.String()}).Sort("n").All(&docs)
	})
	if err != nil {
		return nil, err
	}

	chunks := make([]upload.Chunk, 0, len(docs))
	for _, doc := range docs {
		chunks = append(chunks, upload.Chunk{FileID: id, N: doc.N, Data: doc.Data})
	}
	return chunks, nil
}

func (s *Store) InsertFile(ctx context.Context, file upload.File) error {
	doc := fileDoc{
		ID:                file.ID.String(),
		Filename:          file.Filename,
		Length:            file.Length,
		ChunkSize:         file.ChunkSize,
		UploadDate:        file.UploadDate.UTC(),
		Checksum:          file.Checksum,
		ChecksumAlgorithm: string(file.ChecksumAlgorithm),
		Metadata:          file.Metadata,
	}

	err := s.collection(ctx, "files", func(c *mgo.Collection) error {
		return c.Insert(doc)
	})
	if mgo.IsDup(err) {
		return fmt.Errorf("file %s: %w", file.ID, storage.ErrDuplicateFile)
	}
	return err
}

func (doc fileDoc) file() upload.File {
	return upload.File{
		ID:                upload.FileID(doc.ID),
		Filename:          doc.Filename,
		Length:            doc.Length,
		ChunkSize:         doc.ChunkSize,
		UploadDate:        doc.UploadDate.UTC(),
		Checksum:          doc.Checksum,
		ChecksumAlgorithm: upload.ChecksumAlgorithm(doc.ChecksumAlgorithm),
		Metadata:          doc.Metadata,
	}
}

func (s *Store) GetFile(ctx context.Context, id upload.FileID) (upload.File, error) {
	var doc fileDoc
	err := s.collection(ctx, "files", func(c *mgo.Collection) error {
		return c.FindId(id.String()).One(&doc)
	})
	if err == mgo.ErrNotFound {
		return upload.File{}, storage.ErrNotFound
	}
	if err != nil {
		return upload.File{}, err
	}
	return doc.file(), nil
}

func (s *Store) ListFiles(ctx context.Context) ([]upload.File, error) {
	var docs []fileDoc
	err := s.collection(ctx, "files", func(c *mgo.Collection) error {
		return c.Find(nil).Sort("uploadDate", "_id").All(&docs)
	})
	if err != nil {
		return nil, err
	}

	files := make([]upload.File, 0, len(docs))
	for _, doc := range docs {
		files = append(files, doc.file())
	}
	return files, nil
}

// Close closes the root session.
func (s *Store) Close() error {
	s.session.Close()
	return nil
}
