// Package adapter defines the build backend contract and the registry that
// selects between backends.
//
// An adapter wraps one build toolchain (bun, esbuild, tsc, rollup, or a
// package script) behind a uniform interface. Adapters report expected
// build failures through the result, never through the error return; a
// non-nil error is reserved for faults in the adapter itself.
package adapter

import (
	"context"

	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// Adapter is the contract every build backend implements.
type Adapter interface {
	// Name returns the stable registry name of the backend.
	Name() string

	// IsAvailable reports whether the backend's toolchain is usable on
	// this host. Availability is probed fresh on every call; the result
	// is never cached across builds.
	IsAvailable(ctx context.Context) bool

	// Build runs the backend against the package at packageDir.
	//
	// Diagnosable build failures (compile errors, nonzero tool exit) are
	// reported in the returned result with status failure and at least
	// one error entry; the error return stays nil. A non-nil error means
	// the adapter itself faulted and carries no result.
	Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error)

	// DiscoverArtifacts scans the package for this backend's outputs.
	// The scan runs fresh against the filesystem on every call.
	DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error)
}
