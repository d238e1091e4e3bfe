package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/envmgr/internal/environment"
)

// listEntry is one row of `envmgr list`.
type listEntry struct {
	environment.Record `yaml:",inline"`
	Selected           bool `json:"selected" yaml:"selected"`
}

func listCmd(a *app) *cobra.Command {
	var (
		output  string
		offline bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available and installed environments",
		Long: `List every environment found in the install directory or announced by
the environment index, newest first. The environment selected by the last
install is marked with *.

Examples:
  envmgr list
  envmgr list --offline
  envmgr list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := a.manager(ctx)
			if err != nil {
				return err
			}
			if err := a.initialize(ctx, m, offline); err != nil {
				return err
			}
			return renderList(a.out, m.Store().List(), m.Selected(), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&offline, "offline", false, "Do not fetch the environment index")

	return cmd
}

func renderList(w io.Writer, records []environment.Record, selected, format string) error {
	entries := make([]listEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, listEntry{Record: r, Selected: r.Version == selected})
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		if len(entries) == 0 {
			fmt.Fprintln(w, "No environments found.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "\tVERSION\tSTATUS\tTOOLCHAIN\tREVISION")
		for _, e := range entries {
			mark := ""
			if e.Selected {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, e.Version, status(e.Record), latestToolchain(e.Record), dash(e.SourceRevision))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// status summarizes a record for the table view.
func status(r environment.Record) string {
	switch {
	case r.IsRemoving:
		return "removing"
	case r.IsCloning:
		return "cloning"
	case r.Progress != nil:
		return fmt.Sprintf("installing %d%%", *r.Progress)
	case r.Installed() && r.IsWestPresent:
		return "installed"
	case r.Installed():
		return "installed (not cloned)"
	default:
		return "available"
	}
}

func latestToolchain(r environment.Record) string {
	tc, ok := environment.LatestToolchain(r)
	if !ok {
		return "-"
	}
	return tc.Version
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
