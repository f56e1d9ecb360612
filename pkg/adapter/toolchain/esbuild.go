package toolchain

import (
	"context"

	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// Esbuild adapts the esbuild bundler.
type Esbuild struct{}

var _ adapter.Adapter = (*Esbuild)(nil)

// NewEsbuild creates the esbuild adapter.
func NewEsbuild() *Esbuild { return &Esbuild{} }

// Name returns the registry name.
func (*Esbuild) Name() string { return "esbuild" }

// IsAvailable reports whether esbuild resolves on PATH.
func (*Esbuild) IsAvailable(ctx context.Context) bool { return lookPath("esbuild") }

// Build runs esbuild in bundle mode against the configured entry points.
func (e *Esbuild) Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error) {
	args := append([]string{}, cfg.EntryPoints...)
	args = append(args, "--bundle", "--outdir="+cfg.OutDir)
	if opts.Target == build.TargetProduction {
		args = append(args, "--minify")
	}
	if opts.Verbose {
		args = append(args, "--log-level=debug")
	}
	args = append(args, optionArgs(cfg)...)

	ex := runTool(ctx, packageDir, opts.Env, "esbuild", args...)
	return finishResult(ctx, ex, e.Name(), packageDir, cfg)
}

// DiscoverArtifacts scans the configured artifact globs.
func (*Esbuild) DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return discoverArtifacts(ctx, packageDir, cfg)
}
