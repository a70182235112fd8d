package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

const verifyTimeout = 10 * time.Second

func newHealthCommand(version string) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check platform credentials and local state",
		Long: `Check that every platform credential is configured and accepted.

Missing credentials are reported by variable name. Unless --offline is set,
each configured credential is verified with one read-only API call. The
command exits non-zero when anything is missing or rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd, version, offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "only check that credentials are present")
	return cmd
}

// healthRow is one line of the health report.
type healthRow struct {
	Component string `json:"component"`
	Detail    string `json:"detail"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

func runHealth(cmd *cobra.Command, version string, offline bool) error {
	a, err := newApp(version)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	var rows []healthRow

	credErr := a.cfg.RequireCredentials()
	for _, cred := range a.cfg.Credentials() {
		row := healthRow{Component: platformLabel(cred.Platform), Detail: cred.EnvVar, OK: cred.Set}
		if !cred.Set {
			row.Error = "not set"
		}
		rows = append(rows, row)
	}

	var verifyErrs []error
	if credErr == nil && !offline {
		_, verifiers, err := a.adapters(false)
		if err != nil {
			return err
		}
		for i, v := range verifiers {
			vctx, cancel := context.WithTimeout(ctx, verifyTimeout)
			err := v.Verify(vctx)
			cancel()
			if err != nil {
				rows[i].OK = false
				rows[i].Error = err.Error()
				verifyErrs = append(verifyErrs, fmt.Errorf("%s: %w", v.Name(), err))
			}
		}
	}

	ledger := healthRow{Component: "Ledger", Detail: a.cfg.Ledger.Path, OK: true}
	if a.cfg.Ledger.Path == "" {
		ledger.Detail = "disabled"
	} else if err := a.openLedger(ctx); err != nil {
		ledger.OK = false
		ledger.Error = err.Error()
	} else if orphans, err := a.ledger.Orphans(ctx); err == nil && len(orphans) > 0 {
		ledger.Error = fmt.Sprintf("%d orphaned run(s), see 'trinity orphans list'", len(orphans))
	}
	rows = append(rows, ledger)

	policies := healthRow{Component: "Policies", OK: true}
	if err := a.loadPolicies(ctx); err != nil {
		policies.OK = false
		policies.Error = err.Error()
	} else {
		enabled := 0
		for _, p := range a.policies.ListPolicies() {
			if p.Enabled {
				enabled++
			}
		}
		policies.Detail = fmt.Sprintf("%d enabled", enabled)
	}
	rows = append(rows, policies)

	if jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), rows); err != nil {
			return err
		}
	} else {
		renderHealth(cmd, rows)
	}

	if credErr != nil {
		return credErr
	}
	if len(verifyErrs) > 0 {
		return fmt.Errorf("credential verification failed: %w", errors.Join(verifyErrs...))
	}
	return nil
}

func renderHealth(cmd *cobra.Command, rows []healthRow) {
	t := newTable(cmd.OutOrStdout())
	t.AppendHeader(header("COMPONENT", "DETAIL", "STATUS"))
	for _, r := range rows {
		status := text.FgGreen.Sprint("ok")
		switch {
		case !r.OK:
			status = text.FgRed.Sprint(r.Error)
		case r.Error != "":
			status = text.FgYellow.Sprint(r.Error)
		}
		t.AppendRow(table.Row{r.Component, r.Detail, status})
	}
	t.Render()
}
