package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leengari/cardinaldb/internal/config"
	"github.com/leengari/cardinaldb/internal/engine"
	"github.com/leengari/cardinaldb/internal/logging"
)

type rootOptions struct {
	configPath string
	dataDir    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "cardinaldb",
		Short:         "File-backed datastore with cardinal indexes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "override data_dir from the config")

	cmd.AddCommand(
		newServeCmd(opts),
		newReplCmd(opts),
		newExecCmd(opts),
		newReindexCmd(opts),
	)
	return cmd
}

// open loads the config, installs the default logger and opens the
// engine. The returned function flushes the log sinks.
func (o *rootOptions) open() (*config.Config, *engine.Engine, func(), error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}

	logger, closeFn := logging.Setup(cfg.Logging)
	slog.SetDefault(logger)

	eng, err := engine.Open(cfg, logger)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return cfg, eng, closeFn, nil
}
