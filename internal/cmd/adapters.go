package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3leaps/kiln/pkg/adapter"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "Show build backends and their availability",
	Long: `Show every registered build backend, whether its toolchain is
available on this host, and the automatic selection order.

Examples:
  kiln adapters
  kiln adapters --json`,
	RunE: runAdapters,
}

var adaptersJSON bool

func init() {
	rootCmd.AddCommand(adaptersCmd)
	adaptersCmd.Flags().BoolVar(&adaptersJSON, "json", false, "Emit JSON instead of a table")
}

// adapterStatus is the JSON row for one backend.
type adapterStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`

	// Priority is the backend's position in automatic selection,
	// starting at 1. Zero means the backend is only used when pinned.
	Priority int `json:"priority,omitempty"`
}

func runAdapters(cmd *cobra.Command, args []string) error {
	registry := newRegistry()

	priority := make(map[string]int, len(adapter.PriorityOrder))
	for i, name := range adapter.PriorityOrder {
		priority[name] = i + 1
	}

	var rows []adapterStatus
	for _, name := range registry.Names() {
		a, err := registry.Get(name)
		if err != nil {
			continue
		}
		rows = append(rows, adapterStatus{
			Name:      name,
			Available: a.IsAvailable(cmd.Context()),
			Priority:  priority[name],
		})
	}

	if adaptersJSON {
		return json.NewEncoder(os.Stdout).Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADAPTER\tAVAILABLE\tSELECTION")
	for _, row := range rows {
		available := "no"
		if row.Available {
			available = "yes"
		}
		selection := "pinned only"
		if row.Priority > 0 {
			selection = fmt.Sprintf("#%d", row.Priority)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", row.Name, available, selection)
	}
	return w.Flush()
}
