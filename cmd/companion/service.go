package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

const serviceName = "companion"

// program runs the gateway under a service manager.
type program struct {
	g    *globalFlags
	bind string

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- runServe(ctx, p.g, p.bind) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case err := <-p.done:
		return err
	case <-time.After(15 * time.Second):
		return errors.New("service: timed out waiting for shutdown")
	}
}

// serviceConfig describes the installed unit. The unit runs "service run"
// with the same configuration flags.
func serviceConfig(g *globalFlags, bind string, system bool) (*service.Config, error) {
	args := []string{"service", "run"}
	for _, f := range []struct{ name, value string }{
		{"--config", g.configPath},
		{"--data-dir", g.dataDir},
	} {
		if f.value == "" {
			continue
		}
		abs, err := filepath.Abs(f.value)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", f.name, err)
		}
		args = append(args, f.name, abs)
	}
	if g.logLevel != "" {
		args = append(args, "--log-level", g.logLevel)
	}
	if bind != "" {
		args = append(args, "--bind", bind)
	}

	return &service.Config{
		Name:        serviceName,
		DisplayName: "Companion",
		Description: "AI chat companion gateway backed by a local Ollama server.",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": !system},
	}, nil
}

func serviceCmd(g *globalFlags) *cobra.Command {
	var (
		bind   string
		system bool
	)
	newService := func() (service.Service, error) {
		cfg, err := serviceConfig(g, bind, system)
		if err != nil {
			return nil, err
		}
		return service.New(&program{g: g, bind: bind}, cfg)
	}

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control companion serve as a system service",
	}
	cmd.PersistentFlags().StringVar(&bind, "bind", "", "Listen address (overrides gateway.bind)")
	cmd.PersistentFlags().BoolVar(&system, "system", false, "Use a system-wide service instead of a user service")

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the companion service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService()
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: %s done\n", serviceName, action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the service is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService()
			if err != nil {
				return err
			}
			st, err := s.Status()
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Fprintln(cmd.OutOrStdout(), "not installed")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), statusText(st))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			s, err := newService()
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}

func statusText(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
