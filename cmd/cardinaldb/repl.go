package main

import (
	"github.com/spf13/cobra"

	"github.com/leengari/cardinaldb/internal/repl"
)

func newReplCmd(opts *rootOptions) *cobra.Command {
	var ds string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, eng, closeFn, err := opts.open()
			if err != nil {
				return err
			}
			defer closeFn()
			return repl.Start(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), eng, ds)
		},
	}
	cmd.Flags().StringVar(&ds, "ds", "", "datastore to select on start")
	return cmd
}
