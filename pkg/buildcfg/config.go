// Package buildcfg loads per-package build configuration.
//
// Configuration is discovered from a fixed list of candidate file names in
// the package directory; when none can be loaded, a minimal default is
// synthesized from the package manifest. Configuration is read fresh on
// every build invocation and never cached between calls.
package buildcfg

import (
	"path"
	"strings"

	"github.com/3leaps/kiln/pkg/workspace"
)

// BuilderAuto marks a configuration that does not pin a specific backend;
// the build service resolves one through the registry's priority order.
const BuilderAuto = "auto"

// DefaultOutDir is the conventional output directory for synthesized
// default configurations.
const DefaultOutDir = "dist"

// CandidateFiles are the configuration file names tried in fixed order.
// The first candidate that loads wins.
//
// The .ts/.js variants exist for compatibility with workspaces that keep
// an executable config; this host cannot evaluate them, so they fall
// through to the next candidate exactly like a malformed file.
var CandidateFiles = []string{
	"build.config.ts",
	"build.config.js",
	"package.build.config.json",
	"package.build.config.yaml",
}

// CacheRule declares content-hash build skipping for a package.
type CacheRule struct {
	// Enabled turns on input hashing and cache-hit short-circuiting.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Include are globs (relative to the package root) hashed into the
	// cache key. Empty defaults to DefaultCacheIncludes.
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`

	// Exclude are globs removed from the hashed set.
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// ExpiryHours bounds how old a recorded result may be and still
	// count as a hit. Zero means no expiry.
	ExpiryHours int `json:"expiry_hours,omitempty" yaml:"expiry_hours,omitempty"`
}

// DefaultCacheIncludes are hashed when a cache rule enables caching
// without naming its own include globs.
var DefaultCacheIncludes = []string{"src/**", "package.json"}

// Hooks are shell commands run around the backend invocation.
type Hooks struct {
	Pre  []string `json:"pre,omitempty" yaml:"pre,omitempty"`
	Post []string `json:"post,omitempty" yaml:"post,omitempty"`
}

// ArtifactStore configures optional post-build artifact mirroring to an
// S3-compatible object store.
type ArtifactStore struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Profile  string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Config is the declarative per-package build configuration.
type Config struct {
	// Package is the package name used for locking and reporting.
	// Defaults to the manifest name when omitted.
	Package string `json:"package,omitempty" yaml:"package,omitempty"`

	// Builder selects a backend by name, or BuilderAuto for priority
	// selection.
	Builder string `json:"builder,omitempty" yaml:"builder,omitempty"`

	// BuilderOptions is the backend-specific option bag, passed through
	// opaquely to the selected adapter.
	BuilderOptions map[string]any `json:"builder_options,omitempty" yaml:"builder_options,omitempty"`

	// EntryPoints are the source entry files handed to the backend.
	EntryPoints []string `json:"entry_points,omitempty" yaml:"entry_points,omitempty"`

	// OutDir is the output directory relative to the package root.
	OutDir string `json:"out_dir,omitempty" yaml:"out_dir,omitempty"`

	// ArtifactGlobs select the files reported as build artifacts.
	// Defaults to everything under OutDir.
	ArtifactGlobs []string `json:"artifact_globs,omitempty" yaml:"artifact_globs,omitempty"`

	// Cache declares content-hash build skipping.
	Cache CacheRule `json:"cache,omitempty" yaml:"cache,omitempty"`

	// Incremental asks the backend for an incremental build when it
	// supports one.
	Incremental bool `json:"incremental,omitempty" yaml:"incremental,omitempty"`

	// Hooks run around the backend invocation.
	Hooks Hooks `json:"hooks,omitempty" yaml:"hooks,omitempty"`

	// RequiredEnv lists environment variables that must be present
	// before the build starts.
	RequiredEnv []string `json:"required_env,omitempty" yaml:"required_env,omitempty"`

	// CleanCommand overrides output-directory removal for clean.
	CleanCommand string `json:"clean_command,omitempty" yaml:"clean_command,omitempty"`

	// Store mirrors artifacts to an object store after a successful
	// build.
	Store *ArtifactStore `json:"artifact_store,omitempty" yaml:"artifact_store,omitempty"`

	// manifest is the package manifest the config was resolved against.
	manifest *workspace.Manifest
}

// ApplyDefaults fills optional fields with conventional values.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Builder) == "" {
		c.Builder = BuilderAuto
	}
	if strings.TrimSpace(c.OutDir) == "" {
		c.OutDir = DefaultOutDir
	}
	if len(c.ArtifactGlobs) == 0 {
		c.ArtifactGlobs = []string{path.Join(c.OutDir, "**", "*")}
	}
	if c.Cache.Enabled && len(c.Cache.Include) == 0 {
		c.Cache.Include = DefaultCacheIncludes
	}
}

// Pinned reports whether the configuration names a specific backend.
func (c *Config) Pinned() bool {
	b := strings.TrimSpace(c.Builder)
	return b != "" && b != BuilderAuto
}

// Manifest returns the package manifest the configuration was resolved
// against, or nil when loading skipped manifest resolution.
func (c *Config) Manifest() *workspace.Manifest {
	return c.manifest
}
