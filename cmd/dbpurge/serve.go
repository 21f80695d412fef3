package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/dbpurge/pkg/app"
)

const serviceName = "dbpurge"

// program adapts app.Run to the service manager's Start/Stop callbacks.
type program struct {
	params app.RunParams
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() { p.done <- app.Run(ctx, p.params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func runParams(cmd *cobra.Command) (app.RunParams, error) {
	params, err := engineParams(cmd)
	if err != nil {
		return app.RunParams{}, err
	}
	if params.ConfigPath == "" {
		if params.ConfigPath, err = app.ResolveConfigPath(); err != nil {
			return app.RunParams{}, err
		}
	}
	// Service managers start the binary from another working directory.
	if params.ConfigPath, err = filepath.Abs(params.ConfigPath); err != nil {
		return app.RunParams{}, err
	}
	return app.RunParams{Params: params, Version: version, Commit: commit, Date: date}, nil
}

func newService(params app.RunParams) (service.Service, *program, error) {
	args := []string{"serve", "--config", params.ConfigPath}
	if params.DataDir != "" {
		args = append(args, "--data-dir", params.DataDir)
	}
	prg := &program{params: params}
	s, err := service.New(prg, &service.Config{
		Name:        serviceName,
		DisplayName: "dbpurge",
		Description: "Purges and optimizes the analytics database on a schedule and over HTTP.",
		Arguments:   args,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("service: %w", err)
	}
	return s, prg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and the maintenance scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			if service.Interactive() {
				return app.Run(cmd.Context(), params)
			}
			s, _, err := newService(params)
			if err != nil {
				return err
			}
			return s.Run()
		},
	}
}

func serviceCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|status>",
		Short:     "Manage dbpurge as a system service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: append([]string{"status"}, service.ControlAction[:]...),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			s, _, err := newService(params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if args[0] == "status" {
				st, err := s.Status()
				if err != nil {
					return fmt.Errorf("service status: %w", err)
				}
				fmt.Fprintf(out, "%s: %s\n", serviceName, statusName(st))
				return nil
			}
			if err := service.Control(s, args[0]); err != nil {
				return fmt.Errorf("service %s: %w", args[0], err)
			}
			fmt.Fprintf(out, "%s: %s done\n", serviceName, args[0])
			return nil
		},
	}
}

func statusName(st service.Status) string {
	switch st {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
