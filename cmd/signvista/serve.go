package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recognition API",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			cfg := rt.registry.Current()
			if addr == "" {
				addr = cfg.Server.ListenAddr
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				rt.engine.RunSweeper(ctx, sweepInterval)
				return nil
			})
			g.Go(func() error {
				slog.Info("starting server", "addr", addr)
				return rt.newServer(cfg).ListenAndServe(ctx, addr)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default server.listen_addr)")
	return cmd
}
