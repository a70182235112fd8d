package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/trinitydeploy/trinity/pkg/engine"
	"github.com/trinitydeploy/trinity/pkg/stores"
)

// platformOrder is the provisioning order used for display.
var platformOrder = []engine.Platform{
	engine.PlatformDatabase,
	engine.PlatformCompute,
	engine.PlatformFrontend,
}

var platformLabels = map[engine.Platform]string{
	engine.PlatformDatabase: "Neon",
	engine.PlatformCompute:  "Railway",
	engine.PlatformFrontend: "Vercel",
	engine.PlatformSystem:   "system",
}

func platformLabel(p engine.Platform) string {
	if l, ok := platformLabels[p]; ok {
		return l
	}
	return string(p)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func header(cols ...string) table.Row {
	row := make(table.Row, 0, len(cols))
	for _, c := range cols {
		row = append(row, text.FgHiCyan.Sprint(c))
	}
	return row
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderOutcome(w io.Writer, o *engine.Outcome) {
	title := "Deployment succeeded"
	if o.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(w, "%s %s\n", text.FgGreen.Sprint("✔"), text.FgGreen.Sprint(title))

	t := newTable(w)
	t.AppendHeader(header("PLATFORM", "PROJECT", "SERVICE", "URL"))
	for _, p := range platformOrder {
		res, ok := o.Platforms[p]
		if !ok {
			continue
		}
		project := res.ProjectName
		if res.ProjectID != "" {
			project += " (" + res.ProjectID + ")"
		}
		service := res.ServiceName
		if res.ServiceID != "" {
			service += " (" + res.ServiceID + ")"
		}
		url := res.URL
		if res.ConnectionURI != "" {
			url = redactURI(res.ConnectionURI)
		}
		t.AppendRow(table.Row{platformLabel(p), project, service, url})
	}
	t.Render()

	fmt.Fprintf(w, "Run %s completed in %s\n", o.RunID, o.Duration().Round(time.Millisecond))
	for _, warning := range o.Warnings {
		fmt.Fprintf(w, "%s %s\n", text.FgYellow.Sprint("!"), warning)
	}
}

// redactURI hides the password of a connection URI.
func redactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return uri
	}
	user, _, hasPassword := strings.Cut(creds, ":")
	if !hasPassword {
		return uri
	}
	return scheme + "://" + user + ":****@" + host
}

func renderFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", text.FgRed.Sprint("✘"), text.FgRed.Sprint("Deployment failed"))

	leftover := engine.LeftoverResources(err)
	if len(leftover) == 0 {
		return
	}
	fmt.Fprintln(w, text.FgYellow.Sprint("The following resources could not be deleted and need manual cleanup:"))
	renderResources(w, leftover)
}

func renderResources(w io.Writer, resources []engine.TrackedResource) {
	t := newTable(w)
	t.AppendHeader(header("PLATFORM", "KIND", "ID", "NAME"))
	for _, r := range resources {
		t.AppendRow(table.Row{platformLabel(r.Platform), r.Kind, r.ID, r.Name})
	}
	t.Render()
}

func renderClassification(w io.Writer, target string, c *engine.ClassificationResult) {
	t := newTable(w)
	t.SetTitle(target)
	t.AppendHeader(header("KEY", "VALUE"))
	t.AppendRows([]table.Row{
		{"Category", c.Category},
		{"Confidence", fmt.Sprintf("%d%%", c.ConfidencePercent())},
		{"Framework", c.Metadata.Framework},
		{"Runtime", c.Metadata.Runtime},
		{"Package manager", c.Metadata.PackageManager},
		{"Technologies", strings.Join(c.Metadata.Technologies, ", ")},
		{"Optimized runtime", c.Metadata.OptimizedRuntime},
		{"Indicators", strings.Join(c.Indicators, "\n")},
	})
	t.Render()

	if p, ok := engine.PlatformFor(c.Category); ok {
		fmt.Fprintf(w, "Single-platform deploy target: %s\n", platformLabel(p))
	} else {
		fmt.Fprintln(w, text.FgYellow.Sprint("No deployable platform for this category"))
	}
}

func renderOrphans(w io.Writer, runs []stores.OrphanRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, text.FgGreen.Sprint("No orphaned resources"))
		return
	}

	t := newTable(w)
	t.AppendHeader(header("RUN", "STARTED", "HOST", "PID", "PLATFORM", "KIND", "ID", "NAME"))
	for _, run := range runs {
		for i, r := range run.Resources {
			row := table.Row{"", "", "", "", platformLabel(r.Platform), r.Kind, r.ID, r.Name}
			if i == 0 {
				row[0] = run.RunID
				row[1] = run.StartedAt.Local().Format(time.RFC3339)
				row[2] = run.Hostname
				row[3] = run.PID
			}
			t.AppendRow(row)
		}
	}
	t.Render()
}

func renderCleanup(w io.Writer, results []stores.CleanupResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "Nothing to clean up")
		return
	}

	t := newTable(w)
	t.AppendHeader(header("RUN", "DELETED", "LEFTOVER", "STATUS"))
	for _, r := range results {
		status := text.FgGreen.Sprint("clean")
		if !r.Completed() {
			status = text.FgRed.Sprint("incomplete")
		}
		t.AppendRow(table.Row{r.RunID, len(r.Deleted), len(r.Leftover), status})
	}
	t.Render()

	for _, r := range results {
		for _, e := range r.Errors {
			fmt.Fprintf(w, "%s %s: %s\n", text.FgRed.Sprint("✘"), r.RunID, e)
		}
	}
}

// parseEnvPairs turns repeated KEY=VALUE flags into a map. Later pairs win.
func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q: expected KEY=VALUE", pair)
		}
		out[key] = value
	}
	return out, nil
}

// mergeEnv layers specific over shared.
func mergeEnv(shared, specific map[string]string) map[string]string {
	if len(shared) == 0 && len(specific) == 0 {
		return nil
	}
	out := make(map[string]string, len(shared)+len(specific))
	for k, v := range shared {
		out[k] = v
	}
	for k, v := range specific {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
