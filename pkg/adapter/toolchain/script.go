package toolchain

import (
	"context"
	"errors"

	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// ErrNoBuildScript indicates the package manifest declares no build script.
var ErrNoBuildScript = errors.New("manifest has no build script")

// Script adapts the package manifest's own build script. It is registered
// under a name outside the priority order, so it only runs when a package
// pins it explicitly.
type Script struct {
	shell string
}

var _ adapter.Adapter = (*Script)(nil)

// NewScript creates the manifest-script adapter.
func NewScript() *Script { return &Script{shell: "sh"} }

// Name returns the registry name.
func (*Script) Name() string { return "script" }

// IsAvailable reports whether a POSIX shell resolves on PATH.
func (s *Script) IsAvailable(ctx context.Context) bool { return lookPath(s.shell) }

// Build runs the manifest's build script through the shell.
func (s *Script) Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error) {
	manifest := cfg.Manifest()
	if manifest == nil || !manifest.HasBuildScript() {
		return nil, ErrNoBuildScript
	}

	ex := runTool(ctx, packageDir, opts.Env, s.shell, "-c", manifest.BuildScript())
	return finishResult(ctx, ex, s.Name(), packageDir, cfg)
}

// DiscoverArtifacts scans the configured artifact globs.
func (*Script) DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return discoverArtifacts(ctx, packageDir, cfg)
}
