package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leengari/cardinaldb/internal/domain/schema"
)

func newReindexCmd(opts *rootOptions) *cobra.Command {
	var ds, table, column, kind string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Drop and rebuild the index of a column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			indexType, err := schema.ParseIndexType(kind)
			if err != nil {
				return err
			}
			_, eng, closeFn, err := opts.open()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := eng.Reindex(cmd.Context(), ds, table, column, indexType); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %s.%s as %s\n", table, column, indexType)
			return nil
		},
	}
	cmd.Flags().StringVar(&ds, "ds", "", "datastore")
	cmd.Flags().StringVar(&table, "table", "", "table")
	cmd.Flags().StringVar(&column, "column", "", "column")
	cmd.Flags().StringVar(&kind, "type", string(schema.IndexBTree), "index kind")
	for _, name := range []string{"ds", "table", "column"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
