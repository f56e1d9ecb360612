// Package cmd implements the kiln CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/kiln/internal/config"
	"github.com/3leaps/kiln/internal/observability"
	"github.com/3leaps/kiln/internal/version"
	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/adapter/toolchain"
	"github.com/3leaps/kiln/pkg/buildsvc"
	"github.com/3leaps/kiln/pkg/history"
	"github.com/3leaps/kiln/pkg/lock"
	"github.com/3leaps/kiln/pkg/workspace"
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Coordinated builds for multi-package JavaScript workspaces",
	Long: `kiln builds packages in npm/bun-style workspaces through pluggable
toolchain backends, with per-package locking so concurrent invocations
never build the same package twice.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		observability.InitCLILogger("kiln", rootVerbose)

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
		}
		appConfig = cfg
		return nil
	},
}

var (
	rootVerbose   bool
	rootWorkspace string

	// appConfig is resolved once in the persistent pre-run.
	appConfig *config.Config
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&rootWorkspace, "workspace", "C", "", "Workspace root (default: discovered from the working directory)")
}

// SetVersionInfo records build-time version metadata before Execute.
func SetVersionInfo(ver, commit, date string) {
	version.Version = ver
	version.Commit = commit
	version.Date = date
	rootCmd.Version = ver
}

// ExecuteContext runs the CLI under the given context and exits the
// process with the command's code.
func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return
	}

	var coded *codedError
	if errors.As(err, &coded) {
		os.Exit(coded.code)
	}
	observability.CLILogger.Error(err.Error())
	os.Exit(1)
}

// codedError carries a process exit code alongside the message.
type codedError struct {
	code    int
	message string
	err     error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}
	return e.message
}

func (e *codedError) Unwrap() error { return e.err }

// exitError logs the failure and wraps it with the exit code Execute
// will use.
func exitError(code int, message string, err error) error {
	if err != nil {
		observability.CLILogger.Error(message, zap.Error(err))
	} else {
		observability.CLILogger.Error(message)
	}
	return &codedError{code: code, message: message, err: err}
}

// resolveWorkspace locates the workspace root: the --workspace flag, the
// discovered workspace above the working directory, or the working
// directory itself for single-package use.
func resolveWorkspace() (string, error) {
	if rootWorkspace != "" {
		abs, err := filepath.Abs(rootWorkspace)
		if err != nil {
			return "", err
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	root, err := workspace.FindRoot(cwd)
	if errors.Is(err, workspace.ErrNoWorkspace) {
		return cwd, nil
	}
	if err != nil {
		return "", err
	}
	return root, nil
}

// resolvePackageDir maps a package name or path to its directory.
func resolvePackageDir(root, ref string) (string, error) {
	return workspace.ResolvePackage(root, ref)
}

// newRegistry builds the adapter registry with every built-in backend.
func newRegistry() *adapter.Registry {
	registry := adapter.NewRegistry()
	toolchain.RegisterDefaults(registry)
	return registry
}

// newService wires the build service for the resolved workspace. The
// returned journal is nil when history is disabled; otherwise the caller
// owns closing it.
func newService(root string) (*buildsvc.Service, *history.Store, error) {
	locks := lock.NewManager(appConfig.LockDir(root)).
		WithStaleAfter(appConfig.Locks.StaleAfter).
		WithPollEvery(appConfig.Locks.PollEvery)

	svc := buildsvc.New(root, locks, newRegistry()).
		WithLogger(observability.CLILogger).
		WithLockTimeout(appConfig.Locks.AcquireTimeout)

	if appConfig.History.Disabled {
		return svc, nil, nil
	}

	journal, err := history.Open(rootCmd.Context(), history.Config{Path: appConfig.HistoryPath()})
	if err != nil {
		// A broken journal degrades to uncached builds instead of
		// blocking them.
		observability.CLILogger.Warn("history journal unavailable", zap.Error(err))
		return svc, nil, nil
	}

	svc.WithJournal(journal)
	return svc, journal, nil
}
