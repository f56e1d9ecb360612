package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDiscover_MatchesGlobs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dist/index.js", "console.log(1)")
	writeFile(t, dir, "dist/lib/util.js", "export {}")
	writeFile(t, dir, "src/index.ts", "not an artifact")
	writeFile(t, dir, "node_modules/dep/index.js", "never scanned")

	artifacts, err := NewScanner().Discover(context.Background(), dir, []string{"dist/**/*"})
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	// Sorted by path.
	assert.Equal(t, "dist/index.js", artifacts[0].Path)
	assert.Equal(t, "dist/lib/util.js", artifacts[1].Path)

	for _, a := range artifacts {
		assert.NotEmpty(t, a.Checksum)
		assert.Greater(t, a.SizeBytes, int64(0))
		assert.Empty(t, a.RemoteURI)
	}
}

func TestDiscover_ChecksumStability(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "dist/a.js", "alpha")
	writeFile(t, dir, "dist/b.js", "beta")

	first, err := NewScanner().Discover(context.Background(), dir, []string{"dist/**/*"})
	require.NoError(t, err)
	second, err := NewScanner().WithConcurrency(1).Discover(context.Background(), dir, []string{"dist/**/*"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDiscover_NoGlobs(t *testing.T) {
	artifacts, err := NewScanner().Discover(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestDiscover_EmptyTree(t *testing.T) {
	artifacts, err := NewScanner().Discover(context.Background(), t.TempDir(), []string{"dist/**/*"})
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestChecksumFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "f.txt", "hello")

	sum, err := ChecksumFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	// sha256("hello")
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)
}
