package main

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/leengari/cardinaldb/internal/engine"
)

func newExecCmd(opts *rootOptions) *cobra.Command {
	var ds string
	cmd := &cobra.Command{
		Use:   "exec SQL",
		Short: "Run one statement and print its envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, eng, closeFn, err := opts.open()
			if err != nil {
				return err
			}
			defer closeFn()

			session := eng.Session()
			if ds != "" {
				if err := session.Use(ds); err != nil {
					return err
				}
			}
			res := engine.Envelope(session.Execute(cmd.Context(), args[0]))

			b, err := json.Marshal(res)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(b, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&ds, "ds", "", "datastore to run the statement in")
	return cmd
}
