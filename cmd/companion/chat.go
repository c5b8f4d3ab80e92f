package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/companion/internal/session"
	"github.com/flemzord/companion/pkg/app"
)

func chatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. Type a message and press enter.
Commands: /clear empties the history, /status checks the server, /quit exits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Session(g.chat)
				if err != nil {
					return err
				}
				return repl(ctx, m, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func repl(ctx context.Context, m *session.Manager, in io.Reader, out io.Writer) error {
	st := m.TestConnection(ctx)
	cfg := m.Config()
	fmt.Fprintf(out, "%s | %s | %s\n", m.Chat(), cfg.Model, st)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			st := m.ClearHistory(ctx)
			fmt.Fprintf(out, "History cleared. %s\n", st)
			continue
		case "/status":
			fmt.Fprintln(out, m.TestConnection(ctx))
			continue
		}

		reply, err := m.SendMessage(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply)
	}
}

func sendCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Session(g.chat)
				if err != nil {
					return err
				}
				reply, err := m.SendMessage(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply)
				return nil
			})
		},
	}
}

func historyCmd(g *globalFlags) *cobra.Command {
	var last int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the conversation history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(_ context.Context, a *app.App) error {
				m, err := a.Session(g.chat)
				if err != nil {
					return err
				}
				turns := m.History()
				if last > 0 && len(turns) > last {
					turns = turns[len(turns)-last:]
				}
				out := cmd.OutOrStdout()
				for _, t := range turns {
					fmt.Fprintf(out, "[%s] %s: %s\n", t.CreatedAt.Local().Format(time.DateTime), t.Origin.Label(), t.Content)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&last, "last", "n", 0, "Only print the last n turns")
	return cmd
}

func clearCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the conversation history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Session(g.chat)
				if err != nil {
					return err
				}
				st := m.ClearHistory(ctx)
				fmt.Fprintf(cmd.OutOrStdout(), "History of %s cleared. %s\n", m.Chat(), st)
				return nil
			})
		},
	}
}

func modelsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models offered by the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Session(g.chat)
				if err != nil {
					return err
				}
				models, err := m.FetchAvailableModels(ctx)
				if err != nil {
					return err
				}
				current := m.Config().Model
				out := cmd.OutOrStdout()
				for _, name := range models {
					marker := " "
					if name == current {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %s\n", marker, name)
				}
				return nil
			})
		},
	}
}

func statusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the connection of every chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				for _, name := range a.Sessions.Chats() {
					m, _ := a.Session(name)
					st := m.TestConnection(ctx)
					cfg := m.Config()
					fmt.Fprintf(out, "%-8s %-20s %-28s %s\n", name, cfg.Model, cfg.ServerAddress, st)
				}
				return nil
			})
		},
	}
}

func configureCmd(g *globalFlags) *cobra.Command {
	var (
		server, model, prompt, preset string
		fallbacks                     []string
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Change the server, model or personality of a chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var u session.Update
			flags := cmd.Flags()
			if flags.Changed("server") {
				u.ServerAddress = &server
			}
			if flags.Changed("model") {
				u.Model = &model
			}
			if flags.Changed("prompt") {
				u.SystemPrompt = &prompt
			}
			if flags.Changed("preset") {
				u.Preset = &preset
			}
			if flags.Changed("fallback") {
				u.FallbackURLs = fallbacks
			}
			if u.Empty() {
				return errors.New("nothing to change; see --help")
			}

			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Session(g.chat)
				if err != nil {
					return err
				}
				st, err := m.Configure(ctx, u)
				if err != nil {
					return err
				}
				cfg := m.Config()
				fmt.Fprintf(cmd.OutOrStdout(), "%s: server=%s model=%s preset=%s\n%s\n",
					m.Chat(), cfg.ServerAddress, cfg.Model, cfg.Preset, st)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&server, "server", "", "Server address, e.g. http://localhost:11434")
	f.StringSliceVar(&fallbacks, "fallback", nil, "Fallback server addresses (repeatable; empty clears)")
	f.StringVar(&model, "model", "", "Model name")
	f.StringVar(&prompt, "prompt", "", "Custom system prompt (overrides the preset; empty clears)")
	f.StringVar(&preset, "preset", "", "Personality preset")
	return cmd
}

func generateCmd(g *globalFlags) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Send a raw prompt without history or personality",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withApp(cmd, func(ctx context.Context, a *app.App) error {
				m, err := a.Session(g.chat)
				if err != nil {
					return err
				}
				text, err := m.GenerateWithoutHistory(ctx, strings.Join(args, " "), model)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model override")
	return cmd
}
