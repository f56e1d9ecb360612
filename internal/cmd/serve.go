package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/kiln/internal/observability"
	"github.com/3leaps/kiln/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workspace build state over HTTP",
	Long: `Run an HTTP API exposing package listing, build history, and
synchronous build triggering for the workspace.

Examples:
  kiln serve
  kiln serve --port 9000`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Bind host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Bind port (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	host := appConfig.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := appConfig.Server.Port
	if servePort != 0 {
		port = servePort
	}

	logger, err := observability.NewServerLogger(appConfig.Logging.Level)
	if err != nil {
		logger = observability.CLILogger
	}
	defer func() { _ = logger.Sync() }()

	srv := server.New(host, port).
		WithService(svc).
		WithJournal(journal).
		WithLogger(logger)

	observability.CLILogger.Info("serving workspace",
		zap.String("root", root),
		zap.String("addr", srv.Addr()))

	err = srv.Run(cmd.Context(),
		appConfig.Server.ReadTimeout,
		appConfig.Server.WriteTimeout,
		appConfig.Server.IdleTimeout,
		appConfig.Server.ShutdownTimeout)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	return nil
}
