package commands

import (
	"github.com/spf13/cobra"

	"github.com/trinitydeploy/trinity/pkg/discovery"
	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/server"
)

func newDeployCommand(version string) *cobra.Command {
	var (
		dryRun      bool
		fullTrinity bool
		repo        string
		env         []string
		backendEnv  []string
		frontendEnv []string
	)

	cmd := &cobra.Command{
		Use:   "deploy <target> [projectName] [serviceName]",
		Short: "Classify a repository and deploy it",
		Long: `Classify the target and deploy it.

By default the target goes to the one platform matching its category:
frontend to Vercel, backend to Railway, database to Neon. With --full-trinity
all three are provisioned in order and the database URL and backend URL are
propagated to the later stages.

The target is a local path or a git URL. For a local path the repository
given to Railway and Vercel is read from the checkout's origin remote unless
--repo is set.

--env applies to every platform that receives variables; --backend-env and
--frontend-env override it per platform. DATABASE_URL and NEXT_PUBLIC_API_URL
are always set by the pipeline.`,
		Example: `  # Deploy a Next.js app to Vercel
  trinity deploy https://github.com/acme/site

  # Full stack with custom names and a backend secret
  trinity deploy ./shop shop shop-api --full-trinity --backend-env STRIPE_KEY=sk_test

  # Preview what would be created
  trinity deploy ./shop --full-trinity --repo acme/shop --dry-run`,
		Args: cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			shared, err := parseEnvPairs(env)
			if err != nil {
				return err
			}
			backend, err := parseEnvPairs(backendEnv)
			if err != nil {
				return err
			}
			frontend, err := parseEnvPairs(frontendEnv)
			if err != nil {
				return err
			}

			req := engine.Request{
				Target:      args[0],
				Repository:  repo,
				DryRun:      dryRun,
				BackendEnv:  mergeEnv(shared, backend),
				FrontendEnv: mergeEnv(shared, frontend),
			}
			if len(args) > 1 {
				req.ProjectName = args[1]
			}
			if len(args) > 2 {
				req.ServiceName = args[2]
			}

			a, err := newApp(version)
			if err != nil {
				return err
			}
			defer a.close()

			if req.Repository == "" && !discovery.IsRemote(req.Target) {
				origin, err := discovery.RemoteURL(req.Target)
				if err != nil {
					a.logger.Debug().Err(err).Msg("could not read origin remote")
				}
				req.Repository = origin
			}

			o, err := a.orchestrator(cmd.Context(), dryRun)
			if err != nil {
				return err
			}

			a.logger.Info().
				Str("target", req.Target).
				Str("repository", req.Repository).
				Bool("full", fullTrinity).
				Bool("dry_run", dryRun).
				Strs("backend_env", sortedKeys(req.BackendEnv)).
				Strs("frontend_env", sortedKeys(req.FrontendEnv)).
				Msg("Starting deployment")

			sink := engine.LogSink{Logger: a.logger}
			deploy := o.DeploySingle
			if fullTrinity {
				deploy = o.Deploy
			}
			outcome, err := deploy(cmd.Context(), req, sink)

			out := cmd.OutOrStdout()
			if err != nil {
				if jsonOutput {
					_ = writeJSON(out, server.Completion{Error: server.NewErrorPayload(err)})
				} else {
					renderFailure(out, err)
				}
				return err
			}

			if jsonOutput {
				return writeJSON(out, outcome)
			}
			renderOutcome(out, outcome)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log intended actions without calling the platform APIs")
	cmd.Flags().BoolVar(&fullTrinity, "full-trinity", false, "provision database, backend and frontend")
	cmd.Flags().StringVar(&repo, "repo", "", "source repository for the platforms (owner/repo or URL)")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "variable for every platform (KEY=VALUE, repeatable)")
	cmd.Flags().StringArrayVar(&backendEnv, "backend-env", nil, "compute platform variable (KEY=VALUE, repeatable)")
	cmd.Flags().StringArrayVar(&frontendEnv, "frontend-env", nil, "frontend platform variable (KEY=VALUE, repeatable)")

	return cmd
}

func newDiscoveryCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "test-discovery <target>",
		Aliases: []string{"discover"},
		Short:   "Classify a target without deploying it",
		Example: `  trinity test-discovery ./shop
  trinity test-discovery https://github.com/acme/site#develop --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(version)
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.classifier.Classify(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			renderClassification(cmd.OutOrStdout(), args[0], result)
			return nil
		},
	}
	return cmd
}
