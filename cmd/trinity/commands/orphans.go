package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trinitydeploy/trinity/pkg/stores"
)

func newOrphansCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Inspect and delete resources left by interrupted runs",
		Long: `Every resource is recorded in the local ledger while its run is in
flight and forgotten when the run succeeds or finishes rolling back. Rows
that remain belong to runs whose process died before reaching either state.`,
	}

	cmd.AddCommand(newOrphansListCommand(version))
	cmd.AddCommand(newOrphansCleanupCommand(version))
	return cmd
}

func openLedgerApp(cmd *cobra.Command, version string) (*app, error) {
	a, err := newApp(version)
	if err != nil {
		return nil, err
	}
	if a.cfg.Ledger.Path == "" {
		a.close()
		return nil, fmt.Errorf("the ledger is disabled (ledger.path is empty)")
	}
	if err := a.openLedger(cmd.Context()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func newOrphansListCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List orphaned resources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openLedgerApp(cmd, version)
			if err != nil {
				return err
			}
			defer a.close()

			runs, err := a.ledger.Orphans(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				if runs == nil {
					runs = []stores.OrphanRun{}
				}
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			renderOrphans(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

func newOrphansCleanupCommand(version string) *cobra.Command {
	var (
		runID     string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete orphaned resources, newest first",
		Long: `Delete orphaned resources through the platform APIs in reverse creation
order. Resources that fail to delete stay in the ledger for another attempt.

Use --older-than to leave runs that may still be in progress alone.`,
		Example: `  trinity orphans cleanup --older-than 1h
  trinity orphans cleanup --run 3f2b0c6e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openLedgerApp(cmd, version)
			if err != nil {
				return err
			}
			defer a.close()

			adapters, _, err := a.adapters(false)
			if err != nil {
				return err
			}

			results, err := a.ledger.Cleanup(cmd.Context(), adapters, stores.CleanupFilter{
				RunID:     runID,
				OlderThan: olderThan,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				renderCleanup(cmd.OutOrStdout(), results)
			}

			for _, r := range results {
				if !r.Completed() {
					return fmt.Errorf("cleanup incomplete for run %s", r.RunID)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "only clean up this run")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "skip runs started more recently than this")
	return cmd
}
