package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trinitydeploy/trinity/pkg/policy"
	"github.com/trinitydeploy/trinity/pkg/server"
)

func newServeCommand(version string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve deployments over HTTP",
		Long: `Start the HTTP server.

Endpoints:
  POST /api/deploy       deployment progress as Server-Sent Events
  GET  /api/ws/deploy    the same stream over a websocket
  POST /api/discover     classification only
  GET  /healthz          credential and ledger check
  GET  /metrics          Prometheus metrics

With policy.watch enabled, policy files are reloaded when they change.`,
		Example: `  trinity serve --addr :8080`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(version)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if err := a.openLedger(ctx); err != nil {
				return err
			}
			if err := a.loadPolicies(ctx); err != nil {
				return err
			}

			opts := []server.Option{
				server.WithLogger(a.logger),
				server.WithMetrics(a.tel.Metrics),
				server.WithHealthCheck(func(ctx context.Context) error {
					var errs []error
					if err := a.cfg.RequireCredentials(); err != nil {
						errs = append(errs, err)
					}
					if a.ledger != nil {
						if err := a.ledger.HealthCheck(ctx); err != nil {
							errs = append(errs, fmt.Errorf("ledger: %w", err))
						}
					}
					return errors.Join(errs...)
				}),
			}
			if a.cfg.Policy.Watch && len(a.cfg.Policy.Paths) > 0 {
				loader := policy.NewLoader(a.logger)
				opts = append(opts, server.WithBackground(func(ctx context.Context) error {
					return loader.Watch(ctx, a.cfg.Policy.Paths, a.reloadPolicies(ctx))
				}))
			}

			srv, err := server.New(server.Config{
				Addr:              a.cfg.Server.Addr,
				HeartbeatInterval: a.cfg.Server.HeartbeatInterval,
				ShutdownTimeout:   a.cfg.Server.ShutdownTimeout,
			}, func(dryRun bool) (server.Deployer, error) {
				o, err := a.orchestrator(ctx, dryRun)
				if err != nil {
					return nil, err
				}
				return o, nil
			}, a.classifier, opts...)
			if err != nil {
				return err
			}

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	return cmd
}
