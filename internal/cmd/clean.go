package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/kiln/internal/observability"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <package> [package...]",
	Short: "Remove package build outputs",
	Long: `Remove the configured output directory for each package, or run the
package's clean command when one is configured.

Clean does not take the package lock; a concurrent build simply
recreates the output.

Examples:
  kiln clean @acme/web
  kiln clean packages/web packages/core`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
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

	for _, pkg := range args {
		if err := svc.CleanPackage(cmd.Context(), pkg); err != nil {
			return exitError(foundry.ExitFileWriteError, "Clean failed for "+pkg, err)
		}
		observability.CLILogger.Info("cleaned", zap.String("package", pkg))
	}
	return nil
}
