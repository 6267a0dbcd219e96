package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newListCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List finalized files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			backend, err := cli.openBackend(ctx, prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer backend.Close()

			files, err := backend.ListFiles(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tLENGTH\tUPLOADED\tCHECKSUM")
			for _, file := range files {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s:%s\n",
					file.ID, file.Filename, file.Length,
					file.UploadDate.UTC().Format(time.RFC3339),
					file.ChecksumAlgorithm, file.Checksum)
			}
			return w.Flush()
		},
	}
}
