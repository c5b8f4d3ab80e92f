package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/companion/internal/mission"
	"github.com/flemzord/companion/pkg/app"
)

func missionCmd(g *globalFlags) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "mission <topic>",
		Short: "Ask for five short insights on a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Missions.Execute(ctx, strings.Join(args, " "), model)
				printMission(cmd.OutOrStdout(), m)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model override")
	cmd.AddCommand(missionListCmd(g), missionShowCmd(g))
	return cmd
}

func missionListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List past missions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(_ context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				for _, m := range a.Missions.List() {
					fmt.Fprintf(out, "%s  %-11s  %s  %s\n",
						m.ID, m.Status, m.CreatedAt.Local().Format(time.DateTime), m.Topic)
				}
				return nil
			})
		},
	}
}

func missionShowCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(_ context.Context, a *app.App) error {
				m, err := a.Missions.Get(args[0])
				if err != nil {
					return err
				}
				printMission(cmd.OutOrStdout(), m)
				return nil
			})
		},
	}
}

func printMission(w io.Writer, m mission.Mission) {
	if m.ID == "" {
		return
	}
	fmt.Fprintf(w, "Mission %s: %s [%s]\n", m.ID, m.Topic, m.Status)
	for i, insight := range m.Insights {
		fmt.Fprintf(w, "  %d. %s\n", i+1, insight)
	}
	if m.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", m.Error)
	}
}
