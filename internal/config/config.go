// Package config loads the service configuration from a gridsilo.yaml file,
// GRIDSILO_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"gridsilo/internal/storage"
	"gridsilo/internal/upload"

	"github.com/spf13/viper"
)

// Backend names accepted by the backend setting.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendLocal  = "localfs"
	BackendS3     = "s3"
	BackendMongo  = "mongo"
)

type S3 struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Secure    bool   `mapstructure:"secure"`
}

type Mongo struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
	Prefix   string `mapstructure:"prefix"`
}

type Auth struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Enabled reports whether basic authentication is configured.
func (a Auth) Enabled() bool {
	return a.Username != ""
}

type Config struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`

	Backend     string `mapstructure:"backend"`
	DataDir     string `mapstructure:"data_dir"`
	Compression string `mapstructure:"compression"`

	ChunkSize int    `mapstructure:"chunk_size"`
	Checksum  string `mapstructure:"checksum"`

	// SessionCacheSize bounds the number of resumable HTTP uploads kept
	// open at once.
	SessionCacheSize int `mapstructure:"session_cache_size"`

	// MaxPatchBodySize bounds the body of one resumable write request.
	MaxPatchBodySize int64 `mapstructure:"max_patch_body_size"`

	Auth  Auth  `mapstructure:"auth"`
	S3    S3    `mapstructure:"s3"`
	Mongo Mongo `mapstructure:"mongo"`
}

// SetDefaults registers the default of every key. Keys without a default
// are invisible to environment lookups during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("compression", "none")
	v.SetDefault("chunk_size", upload.DefaultChunkSize)
	v.SetDefault("checksum", string(upload.ChecksumMD5))
	v.SetDefault("session_cache_size", 1024)
	v.SetDefault("max_patch_body_size", 64<<20)

	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "gridsilo")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.secure", false)

	v.SetDefault("mongo.url", "")
	v.SetDefault("mongo.database", "gridsilo")
	v.SetDefault("mongo.prefix", "fs")
}

// Load reads configFile (or gridsilo.yaml from the working directory or
// $HOME/.config/gridsilo when configFile is empty) into v, overlays the
// environment, and returns the validated result. A missing default config
// file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("GRIDSILO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("gridsilo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/gridsilo")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite, BackendLocal:
		if c.DataDir == "" {
			return fmt.Errorf("backend %s requires data_dir", c.Backend)
		}
	case BackendS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return errors.New("backend s3 requires s3.endpoint and s3.bucket")
		}
	case BackendMongo:
		if c.Mongo.URL == "" {
			return errors.New("backend mongo requires mongo.url")
		}
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}

	if _, err := storage.ParseCompressionTag(c.Compression); err != nil {
		return err
	}

	if _, err := c.UploadOptions(); err != nil {
		return err
	}

	if c.SessionCacheSize <= 0 {
		return fmt.Errorf("session_cache_size must be positive, got %d", c.SessionCacheSize)
	}

	if c.MaxPatchBodySize <= 0 {
		return fmt.Errorf("max_patch_body_size must be positive, got %d", c.MaxPatchBodySize)
	}

	if c.Auth.Enabled() && c.Auth.Password == "" {
		return errors.New("auth.password must be set when auth.username is")
	}

	return nil
}

// UploadOptions returns the bucket defaults described by the config.
func (c Config) UploadOptions() ([]upload.Option, error) {
	algorithm, err := upload.ParseChecksumAlgorithm(c.Checksum)
	if err != nil {
		return nil, err
	}

	if c.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}

	return []upload.Option{upload.WithChunkSize(c.ChunkSize), upload.WithChecksum(algorithm)}, nil
}
