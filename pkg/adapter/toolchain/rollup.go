package toolchain

import (
	"context"

	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// Rollup adapts the rollup bundler. With entry points configured they are
// passed on the command line; otherwise rollup's own config file is used.
type Rollup struct{}

var _ adapter.Adapter = (*Rollup)(nil)

// NewRollup creates the rollup adapter.
func NewRollup() *Rollup { return &Rollup{} }

// Name returns the registry name.
func (*Rollup) Name() string { return "rollup" }

// IsAvailable reports whether rollup resolves on PATH.
func (*Rollup) IsAvailable(ctx context.Context) bool { return lookPath("rollup") }

// Build runs rollup against the configured entry points or its config file.
func (r *Rollup) Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error) {
	var args []string
	if len(cfg.EntryPoints) > 0 {
		args = append(args, cfg.EntryPoints...)
		args = append(args, "-d", cfg.OutDir)
	} else {
		args = append(args, "-c")
	}
	args = append(args, optionArgs(cfg)...)

	ex := runTool(ctx, packageDir, opts.Env, "rollup", args...)
	return finishResult(ctx, ex, r.Name(), packageDir, cfg)
}

// DiscoverArtifacts scans the configured artifact globs.
func (*Rollup) DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return discoverArtifacts(ctx, packageDir, cfg)
}
