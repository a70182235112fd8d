package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trinity",
		Short: "Trinity - database, backend and frontend deployment in one command",
		Long: `Trinity classifies a source repository and provisions it across three
platforms in a fixed order:

  1. Neon      (database platform)   connection URI
  2. Railway   (compute platform)    DATABASE_URL wired in, backend URL
  3. Vercel    (frontend platform)   NEXT_PUBLIC_API_URL wired in

Every resource created by a failed run is deleted again in reverse order.

Run without a subcommand to check platform credentials.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd, version, false)
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ./trinity.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file with platform credentials (default ./.env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newHealthCommand(version))
	rootCmd.AddCommand(newDeployCommand(version))
	rootCmd.AddCommand(newDiscoveryCommand(version))
	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newOrphansCommand(version))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trinity %s\n", cmd.Root().Version)
		},
	}
}
