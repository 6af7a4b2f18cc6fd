package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "docmigrate",
		Short:         "Copy records between document store containers",
		Long:          "docmigrate copies all records from a source container to a destination container in bounded batches, retries transient failures, and verifies record counts afterwards.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newRunCmd(&logLevel))
	root.AddCommand(newServeCmd(&logLevel))
	return root
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), errors.Errorf("parsing log level %q: %w", level, err)
	}
	w := zerolog.NewConsoleWriter()
	w.Out = os.Stderr
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl), nil
}
