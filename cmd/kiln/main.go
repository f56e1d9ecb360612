package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/3leaps/kiln/internal/cmd"
)

// Populated at build time via -ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.SetVersionInfo(version, commit, buildDate)
	cmd.ExecuteContext(ctx)
}
