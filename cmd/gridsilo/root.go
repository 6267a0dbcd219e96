package main

import (
	"context"
	"fmt"

	"gridsilo/internal/config"
	"gridsilo/internal/metrics"
	"gridsilo/internal/storage"
	"gridsilo/internal/storage/backends"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLI holds state shared by the subcommands.
type CLI struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	cli := &CLI{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "gridsilo",
		Short:         "Chunked file storage in the GridFS layout",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.initialize()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cli.configFile, "config", "", "config file (default ./gridsilo.yaml)")
	flags.String("backend", config.BackendSQLite, "storage backend: memory, sqlite, localfs, s3, mongo")
	flags.String("data-dir", "./data", "directory for the sqlite and localfs backends")
	flags.Int("chunk-size", 0, "chunk size in bytes (default 255 KiB)")
	flags.String("checksum", "", "checksum algorithm: md5, sha256, blake3")
	flags.String("compression", "", "localfs chunk compression: none, lz4, zstd")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("s3-endpoint", "", "S3 endpoint host:port")
	flags.String("s3-bucket", "", "S3 bucket name")
	flags.String("s3-access-key", "", "S3 access key")
	flags.String("s3-secret-key", "", "S3 secret key")
	flags.Bool("s3-secure", false, "use HTTPS for S3")
	flags.String("mongo-url", "", "MongoDB connection URL")
	flags.String("mongo-database", "", "MongoDB database name")

	bindings := map[string]string{
		"backend":        "backend",
		"data_dir":       "data-dir",
		"chunk_size":     "chunk-size",
		"checksum":       "checksum",
		"compression":    "compression",
		"log_level":      "log-level",
		"s3.endpoint":    "s3-endpoint",
		"s3.bucket":      "s3-bucket",
		"s3.access_key":  "s3-access-key",
		"s3.secret_key":  "s3-secret-key",
		"s3.secure":      "s3-secure",
		"mongo.url":      "mongo-url",
		"mongo.database": "mongo-database",
	}
	for key, flag := range bindings {
		// Unset flags fall back to the file, environment and defaults.
		if err := cli.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}

	rootCmd.AddCommand(newServeCommand(cli), newPutCommand(cli), newListCommand(cli))
	return rootCmd
}

func (cli *CLI) initialize() error {
	cfg, err := config.Load(cli.v, cli.configFile)
	if err != nil {
		return err
	}
	cli.cfg = cfg

	return setupLogging(cfg.LogLevel)
}

// openBackend opens the configured backend wrapped with metrics and tracing.
func (cli *CLI) openBackend(ctx context.Context, reg prometheus.Registerer) (storage.Backend, error) {
	backend, err := backends.Open(ctx, cli.cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cli.cfg.Backend, err)
	}

	observer, err := metrics.NewPrometheusObserver("", reg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	return metrics.Instrument(backend, observer), nil
}
