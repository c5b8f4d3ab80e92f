package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/companion/internal/config"
	"github.com/flemzord/companion/internal/cron"
	"github.com/flemzord/companion/internal/inference"
	"github.com/flemzord/companion/internal/personality"
	"github.com/flemzord/companion/internal/session"
)

const customPersonality = "custom"

// tokenVariable is written in place of the gateway token so the secret
// stays out of the file.
const tokenVariable = "${COMPANION_GATEWAY_TOKEN}"

// setupAnswers collects the wizard input.
type setupAnswers struct {
	Server string
	Model  string

	// Personality is a preset name or customPersonality.
	Personality string
	Profile     personality.Profile

	Driver string
	Bind   string
	Auth   bool
}

func defaultAnswers() setupAnswers {
	def := session.DefaultConfig(session.ChatMain)
	return setupAnswers{
		Server:      inference.DefaultBaseURL,
		Model:       def.Model,
		Personality: personality.DefaultPreset,
		Profile:     personality.Profile{Perspective: personality.PerspectiveBalanced},
		Driver:      "sqlite",
		Bind:        "127.0.0.1:8080",
	}
}

func setupCmd(g *globalFlags) *cobra.Command {
	var (
		accessible bool
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := g.configPath
			if path == "" {
				path = config.SearchPaths()[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				overwrite := false
				err := huh.NewForm(huh.NewGroup(
					huh.NewConfirm().
						Title(fmt.Sprintf("%s exists. Overwrite?", path)).
						Value(&overwrite),
				)).WithAccessible(accessible).Run()
				if err != nil {
					return abortErr(err)
				}
				if !overwrite {
					return nil
				}
			}

			answers := defaultAnswers()
			if err := runSetupForm(&answers, accessible); err != nil {
				return abortErr(err)
			}
			data, err := renderSetup(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration written to %s\n", path)
			if answers.Auth {
				fmt.Fprintln(out, "Set COMPANION_GATEWAY_TOKEN before running 'companion serve'.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&accessible, "accessible", false, "Use plain prompts instead of the interactive form")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file without asking")
	return cmd
}

func abortErr(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return errors.New("setup aborted")
	}
	return err
}

func runSetupForm(a *setupAnswers, accessible bool) error {
	presets := append(personality.Presets(), customPersonality)
	traits := make([]huh.Option[string], 0, len(personality.Traits()))
	for _, t := range personality.Traits() {
		traits = append(traits, huh.NewOption(t, t))
	}
	notCustom := func() bool { return a.Personality != customPersonality }

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Ollama server").
				Description("Address of the server, e.g. http://localhost:11434").
				Value(&a.Server).
				Validate(func(s string) error {
					_, err := inference.GenerateURL(s)
					return err
				}),
			huh.NewInput().
				Title("Model").
				Value(&a.Model).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("model is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Personality").
				Options(huh.NewOptions(presets...)...).
				Value(&a.Personality),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Perspective").
				Options(huh.NewOptions(
					string(personality.PerspectiveBalanced),
					string(personality.PerspectiveChallenger),
					string(personality.PerspectiveSupportive),
				)...).
				Value((*string)(&a.Profile.Perspective)),
			huh.NewMultiSelect[string]().
				Title("Traits").
				Options(traits...).
				Limit(personality.MaxTraits).
				Value(&a.Profile.Traits),
			huh.NewConfirm().
				Title("Prioritize new ideas?").
				Value(&a.Profile.PrioritizeNewIdeas),
		).WithHideFunc(notCustom),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage").
				Options(
					huh.NewOption("SQLite file", "sqlite"),
					huh.NewOption("Redis", "redis"),
					huh.NewOption("PostgreSQL", "postgres"),
					huh.NewOption("Memory (nothing persisted)", "memory"),
				).
				Value(&a.Driver),
			huh.NewInput().
				Title("Gateway address").
				Value(&a.Bind).
				Validate(func(s string) error {
					_, _, err := net.SplitHostPort(s)
					return err
				}),
			huh.NewConfirm().
				Title("Require a bearer token on the gateway?").
				Value(&a.Auth),
		),
	).WithAccessible(accessible)

	return form.Run()
}

type setupFile struct {
	Version   string                  `yaml:"version"`
	Inference setupInference          `yaml:"inference"`
	Storage   setupStorage            `yaml:"storage"`
	Sessions  map[string]setupSession `yaml:"sessions"`
	Gateway   setupGateway            `yaml:"gateway"`
	Probe     config.ProbeConfig      `yaml:"probe"`
}

type setupInference struct {
	BaseURL string `yaml:"base_url"`
}

type setupStorage struct {
	Driver   string            `yaml:"driver"`
	Redis    map[string]string `yaml:"redis,omitempty"`
	Postgres map[string]string `yaml:"postgres,omitempty"`
}

type setupSession struct {
	Model        string `yaml:"model"`
	Preset       string `yaml:"preset,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
}

type setupGateway struct {
	Bind string            `yaml:"bind"`
	Auth map[string]string `yaml:"auth,omitempty"`
}

// renderSetup turns the answers into a configuration file.
func renderSetup(a setupAnswers) ([]byte, error) {
	mainChat := setupSession{Model: a.Model}
	if a.Personality == customPersonality {
		if err := a.Profile.Validate(); err != nil {
			return nil, err
		}
		mainChat.SystemPrompt = personality.Compose(a.Profile)
	} else {
		mainChat.Preset = a.Personality
	}

	f := setupFile{
		Version:   "1",
		Inference: setupInference{BaseURL: a.Server},
		Storage:   setupStorage{Driver: a.Driver},
		Sessions:  map[string]setupSession{session.ChatMain: mainChat},
		Gateway:   setupGateway{Bind: a.Bind},
		Probe:     config.ProbeConfig{Schedule: cron.DefaultProbeSchedule},
	}
	switch a.Driver {
	case "redis":
		f.Storage.Redis = map[string]string{"addr": "localhost:6379"}
	case "postgres":
		f.Storage.Postgres = map[string]string{"dsn": "${COMPANION_POSTGRES_DSN}"}
	}
	if a.Auth {
		f.Gateway.Auth = map[string]string{"bearer_token": tokenVariable}
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return append([]byte("# Generated by companion setup.\n"), data...), nil
}
