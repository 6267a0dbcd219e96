package upload

import (
	"errors"
	"fmt"
	"time"
)

// DefaultChunkSize matches the GridFS default of 255 KiB, which keeps a
// chunk document comfortably below common document size limits.
const DefaultChunkSize = 255 * 1024

// Config holds the per-stream settings an UploadStream is opened with.
type Config struct {
	ChunkSize int
	Checksum  ChecksumAlgorithm
	Metadata  map[string]any
	FileID    FileID
	Clock     func() time.Time
}

// Option customizes a Config.
type Option func(*Config)

func WithChunkSize(size int) Option {
	return func(cfg *Config) {
		cfg.ChunkSize = size
	}
}

func WithChecksum(algorithm ChecksumAlgorithm) Option {
	return func(cfg *Config) {
		cfg.Checksum = algorithm
	}
}

// WithMetadata attaches a document to the finalized file record verbatim.
func WithMetadata(metadata map[string]any) Option {
	return func(cfg *Config) {
		cfg.Metadata = metadata
	}
}

// WithFileID uses id instead of generating a new one.
func WithFileID(id FileID) Option {
	return func(cfg *Config) {
		cfg.FileID = id
	}
}

// WithClock overrides the clock used to stamp the upload date.
func WithClock(clock func() time.Time) Option {
	return func(cfg *Config) {
		cfg.Clock = clock
	}
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		ChunkSize: DefaultChunkSize,
		Checksum:  ChecksumMD5,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (cfg *Config) validate() error {
	if cfg.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Checksum == "" {
		return errors.New("checksum algorithm must not be empty")
	}
	return nil
}
