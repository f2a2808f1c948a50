package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/budgetforce/pkg/app"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP gateway and background jobs until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Serve(runParams(cmd))
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the think, baseline and get_run tools over MCP stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			params := runParams(cmd)
			params.LogOutput = os.Stderr
			return app.ServeMCP(ctx, params, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// program adapts app.Server to the service manager lifecycle.
type program struct {
	params app.RunParams
	srv    *app.Server
}

// Start implements service.Interface. It must not block.
func (p *program) Start(service.Service) error {
	srv, err := app.NewServer(p.params)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	p.srv = srv
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Stop()
}

// serviceConfig pins the absolute config path, and data dir if set, so
// the service manager starts the gateway with the same files. params is
// updated to the absolute paths.
func serviceConfig(params *app.RunParams) (*service.Config, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}
	abs, err := filepath.Abs(cfgPath)
	if err != nil {
		return nil, err
	}
	params.ConfigPath = abs

	args := []string{"service", "run", "--config", abs}
	if params.DataDir != "" {
		dataDir, err := filepath.Abs(params.DataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", dataDir)
		params.DataDir = dataDir
	}
	return &service.Config{
		Name:        "budgetforce",
		DisplayName: "budgetforce gateway",
		Description: "Budget-forcing controller for reasoning models.",
		Arguments:   args,
	}, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the gateway as a system service",
	}

	newService := func(cmd *cobra.Command) (service.Service, error) {
		params := runParams(cmd)
		svcCfg, err := serviceConfig(&params)
		if err != nil {
			return nil, err
		}
		return service.New(&program{params: params}, svcCfg)
	}

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: action + " the budgetforce service",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
			if err != nil {
				return err
			}
			st, err := s.Status()
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
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
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
