package main

import (
	"github.com/spf13/cobra"

	"github.com/leengari/cardinaldb/internal/network"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve JSON-lines queries over TCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, eng, closeFn, err := opts.open()
			if err != nil {
				return err
			}
			defer closeFn()

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return network.Start(cmd.Context(), cfg.Server.Port, eng, nil)
		},
	}
	cmd.Flags().IntVar(&port, "port", 4000, "port to listen on, overrides server.port")
	return cmd
}
