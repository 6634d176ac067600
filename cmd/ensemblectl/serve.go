package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/ensemblectl/internal/api"
	"github.com/mattjoyce/ensemblectl/internal/log"
)

func serveCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only HTTP API over plugins and submissions",
		Long: `serve exposes /healthz, /plugins, /submissions and /stats as JSON.
When api.api_key is set every route except /healthz requires
"Authorization: Bearer <key>". Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.API.Listen
			}
			reg, _, err := a.plugins(cfg)
			if err != nil {
				return err
			}
			l, closer, err := a.openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			ws, err := a.workspaces(cfg)
			if err != nil {
				return err
			}

			srv := api.New(api.Config{Listen: listen, APIKey: cfg.API.APIKey}, l, reg, ws, log.WithComponent("api"))
			if err := srv.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: api.listen)")
	return cmd
}
