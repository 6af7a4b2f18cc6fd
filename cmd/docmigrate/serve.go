package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mbenali/docmigrate/pkg/config"
	"github.com/mbenali/docmigrate/pkg/web"
)

func newServeCmd(logLevel *string) *cobra.Command {
	var (
		cfgPath string
		addr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web form and live progress stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(*logLevel)
			if err != nil {
				return err
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return web.NewServer(cfg, log).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file (optional)")
	cmd.Flags().StringVar(&addr, "addr", config.DefaultListenAddr, "listen address")
	return cmd
}
