package toolchain

import (
	"context"

	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// Bun adapts the bun bundler.
type Bun struct{}

var _ adapter.Adapter = (*Bun)(nil)

// NewBun creates the bun adapter.
func NewBun() *Bun { return &Bun{} }

// Name returns the registry name.
func (*Bun) Name() string { return "bun" }

// IsAvailable reports whether bun resolves on PATH.
func (*Bun) IsAvailable(ctx context.Context) bool { return lookPath("bun") }

// Build runs `bun build` against the configured entry points.
func (b *Bun) Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error) {
	args := []string{"build"}
	args = append(args, cfg.EntryPoints...)
	args = append(args, "--outdir", cfg.OutDir)
	if opts.Target == build.TargetProduction {
		args = append(args, "--minify")
	}
	args = append(args, optionArgs(cfg)...)

	ex := runTool(ctx, packageDir, opts.Env, "bun", args...)
	return finishResult(ctx, ex, b.Name(), packageDir, cfg)
}

// DiscoverArtifacts scans the configured artifact globs.
func (*Bun) DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return discoverArtifacts(ctx, packageDir, cfg)
}
