package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/flemzord/companion/pkg/app"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and scheduled connection probes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g, bind)
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides gateway.bind)")
	return cmd
}

func runServe(ctx context.Context, g *globalFlags, bind string) error {
	a, err := g.open(ctx, slog.LevelInfo)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	return a.Serve(ctx, app.ServeOptions{
		Bind: bind,
		Ready: func(addr string) {
			a.Logger.Info("companion ready", "addr", addr, "chats", a.Sessions.Chats())
		},
	})
}
