package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gridsilo/internal/upload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newPutCommand(cli *CLI) *cobra.Command {
	var name string
	var meta map[string]string

	cmd := &cobra.Command{
		Use:   "put <path>",
		Short: "Upload a local file and print its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if name == "" {
				name = filepath.Base(args[0])
			}

			backend, err := cli.openBackend(ctx, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer backend.Close()

			defaults, err := cli.cfg.UploadOptions()
			if err != nil {
				return err
			}

			bucket, err := upload.NewBucket(backend, defaults...)
			if err != nil {
				return err
			}

			var opts []upload.Option
			if len(meta) > 0 {
				metadata := make(map[string]any, len(meta))
				for key, value := range meta {
					metadata[key] = value
				}
				opts = append(opts, upload.WithMetadata(metadata))
			}

			id, err := bucket.UploadFromReader(ctx, name, f, opts...)
			if err != nil {
				return fmt.Errorf("upload %s: %w", args[0], err)
			}

			file, err := backend.GetFile(ctx, id)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(file)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "filename to store (default: base name of path)")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	return cmd
}
