package toolchain

import (
	"context"

	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// Tsc adapts the TypeScript compiler. The package's tsconfig drives most
// behavior; only the output directory and incremental mode are overridden
// from the build configuration.
type Tsc struct{}

var _ adapter.Adapter = (*Tsc)(nil)

// NewTsc creates the tsc adapter.
func NewTsc() *Tsc { return &Tsc{} }

// Name returns the registry name.
func (*Tsc) Name() string { return "tsc" }

// IsAvailable reports whether tsc resolves on PATH.
func (*Tsc) IsAvailable(ctx context.Context) bool { return lookPath("tsc") }

// Build runs `tsc -p .` in the package directory.
func (t *Tsc) Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error) {
	args := []string{"-p", "."}
	if cfg.OutDir != "" {
		args = append(args, "--outDir", cfg.OutDir)
	}
	if cfg.Incremental {
		args = append(args, "--incremental")
	}
	args = append(args, optionArgs(cfg)...)

	ex := runTool(ctx, packageDir, opts.Env, "tsc", args...)
	return finishResult(ctx, ex, t.Name(), packageDir, cfg)
}

// DiscoverArtifacts scans the configured artifact globs.
func (*Tsc) DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return discoverArtifacts(ctx, packageDir, cfg)
}
