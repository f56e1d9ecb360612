package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/3leaps/kiln/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE:  runVersion,
}

var versionJSON bool

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Emit JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	if versionJSON {
		return json.NewEncoder(os.Stdout).Encode(version.Get())
	}
	fmt.Println(version.String())
	return nil
}
