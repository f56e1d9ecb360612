package buildcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePackage(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(manifest), 0644))
	return dir
}

func TestLoad_SynthesizesDefaultFromManifest(t *testing.T) {
	dir := writePackage(t, `{"name": "@x/y", "scripts": {"build": "tsc -p ."}}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "@x/y", cfg.Package)
	assert.Equal(t, BuilderAuto, cfg.Builder)
	assert.Equal(t, "dist", cfg.OutDir)
	assert.Equal(t, []string{"dist/**/*"}, cfg.ArtifactGlobs)
	assert.False(t, cfg.Pinned())
	require.NotNil(t, cfg.Manifest())
	assert.True(t, cfg.Manifest().HasBuildScript())
}

func TestLoad_JSONCandidate(t *testing.T) {
	dir := writePackage(t, `{"name": "@x/y"}`)
	config := `{
		"builder": "esbuild",
		"entry_points": ["src/index.ts"],
		"out_dir": "build",
		"artifact_globs": ["build/**/*.js"],
		"required_env": ["NODE_ENV"]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.build.config.json"), []byte(config), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "@x/y", cfg.Package) // name defaulted from manifest
	assert.Equal(t, "esbuild", cfg.Builder)
	assert.True(t, cfg.Pinned())
	assert.Equal(t, "build", cfg.OutDir)
	assert.Equal(t, []string{"build/**/*.js"}, cfg.ArtifactGlobs)
	assert.Equal(t, []string{"NODE_ENV"}, cfg.RequiredEnv)
}

func TestLoad_YAMLCandidate(t *testing.T) {
	dir := writePackage(t, `{"name": "@x/y"}`)
	config := "builder: rollup\ncache:\n  enabled: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.build.config.yaml"), []byte(config), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "rollup", cfg.Builder)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, DefaultCacheIncludes, cfg.Cache.Include)
}

func TestLoad_ExecutableConfigFallsThrough(t *testing.T) {
	dir := writePackage(t, `{"name": "@x/y"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.config.ts"),
		[]byte("export default { builder: 'bun' }"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.build.config.json"),
		[]byte(`{"builder": "tsc"}`), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	// The .ts candidate exists but cannot be evaluated; the JSON
	// candidate behind it wins.
	assert.Equal(t, "tsc", cfg.Builder)
}

func TestLoad_MalformedCandidateFallsThroughToDefault(t *testing.T) {
	dir := writePackage(t, `{"name": "@x/y"}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.build.config.json"),
		[]byte(`{"builder": `), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BuilderAuto, cfg.Builder)
	assert.Equal(t, "dist", cfg.OutDir)
}

func TestLoad_MissingManifestIsTerminal(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}
