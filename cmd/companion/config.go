package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/companion/internal/config"
	"github.com/flemzord/companion/internal/personality"
)

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check [path]",
			Short: "Load and validate a configuration file",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				path := g.configPath
				if len(args) == 1 {
					path = args[0]
				}
				cfg, found, err := config.LoadOrDefault(path)
				if err != nil {
					return err
				}
				if err := config.Validate(cfg); err != nil {
					return err
				}
				if found == "" {
					found = "built-in defaults"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (storage: %s, chats: %v)\n",
					found, cfg.Storage.Driver, cfg.ChatTypes())
				return nil
			},
		},
		&cobra.Command{
			Use:   "paths",
			Short: "List the locations searched for a configuration file",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				out := cmd.OutOrStdout()
				for _, p := range config.SearchPaths() {
					marker := " "
					if _, err := os.Stat(p); err == nil {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %s\n", marker, p)
				}
			},
		},
		&cobra.Command{
			Use:   "presets",
			Short: "List the personality presets",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				for _, name := range personality.Presets() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			},
		},
	)
	return cmd
}
