package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspace packages and their build support",
	Long: `List every package in the workspace with its configured backend
and whether kiln can build it.

Examples:
  kiln list
  kiln list --json
  kiln list --history @acme/web`,
	RunE: runList,
}

var (
	listJSON    bool
	listHistory string
	listLimit   int
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Emit JSON instead of a table")
	listCmd.Flags().StringVar(&listHistory, "history", "", "Show recent builds for a package instead of the package table")
	listCmd.Flags().IntVar(&listLimit, "limit", 10, "Maximum history entries to show")
}

func runList(cmd *cobra.Command, args []string) error {
	root, err := resolveWorkspace()
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot resolve workspace", err)
	}

	svc, journal, err := newService(root)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot initialize build service", err)
	}
	if journal != nil {
		defer func() { _ = journal.Close() }()
	}

	if listHistory != "" {
		if journal == nil {
			return exitError(foundry.ExitInvalidArgument, "Build history is disabled", nil)
		}

		entries, err := journal.Recent(cmd.Context(), listHistory, listLimit)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Cannot read build history", err)
		}

		if listJSON {
			return json.NewEncoder(os.Stdout).Encode(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tSTATUS\tEXIT\tDURATION\tFINISHED")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%dms\t%s\n",
				entry.JobID, entry.Status, entry.ExitCode, entry.DurationMS,
				entry.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	}

	infos, err := svc.ListPackages()
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot list packages", err)
	}

	if listJSON {
		return json.NewEncoder(os.Stdout).Encode(infos)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PACKAGE\tBUILDER\tBUILDABLE\tDIR")
	for _, info := range infos {
		buildable := "no"
		if info.Supported {
			buildable = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Builder, buildable, info.Dir)
	}
	return w.Flush()
}
