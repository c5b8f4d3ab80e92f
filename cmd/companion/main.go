// Package main is the entry point for the companion CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/companion/internal/kv"
	"github.com/flemzord/companion/internal/session"
	"github.com/flemzord/companion/pkg/app"

	_ "github.com/flemzord/companion/modules/kv/postgres"
	_ "github.com/flemzord/companion/modules/kv/redis"
	_ "github.com/flemzord/companion/modules/kv/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newGenerator replaces the inference client when set.
var newGenerator session.GeneratorFactory

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dataDir    string
	logLevel   string
	chat       string
}

func rootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "companion",
		Short:         "A personal AI chat companion backed by a local Ollama server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Path to configuration file")
	pf.StringVar(&g.dataDir, "data-dir", "", "Directory for persistent data")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.StringVar(&g.chat, "chat", "main", "Chat to operate on")

	root.AddCommand(
		versionCmd(),
		chatCmd(&g),
		sendCmd(&g),
		historyCmd(&g),
		clearCmd(&g),
		modelsCmd(&g),
		statusCmd(&g),
		configureCmd(&g),
		generateCmd(&g),
		missionCmd(&g),
		serveCmd(&g),
		mcpCmd(&g),
		setupCmd(&g),
		serviceCmd(&g),
		configCmd(&g),
	)
	return root
}

// open loads the application. Interactive commands log at warn unless a
// level is given.
func (g *globalFlags) open(ctx context.Context, defaultLevel slog.Level) (*app.App, error) {
	level := defaultLevel
	if g.logLevel != "" {
		if err := level.UnmarshalText([]byte(g.logLevel)); err != nil {
			return nil, fmt.Errorf("invalid --log-level %q: %w", g.logLevel, err)
		}
	}
	return app.Open(ctx, app.Params{
		ConfigPath:   g.configPath,
		DataDir:      g.dataDir,
		LogLevel:     &level,
		NewGenerator: newGenerator,
	})
}

// withApp opens the application, runs fn and closes it.
func (g *globalFlags) withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) error {
	ctx := cmd.Context()
	a, err := g.open(ctx, slog.LevelWarn)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()
	return fn(ctx, a)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and storage drivers",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "companion %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nStorage drivers:")
			for _, name := range kv.Drivers() {
				fmt.Fprintf(out, "  %s\n", name)
			}
		},
	}
}
