// Package workspace resolves multi-package workspaces: locating the
// workspace root, expanding package globs, and mapping caller-supplied
// package identifiers (paths or names) onto package directories.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Sentinel errors for workspace resolution.
var (
	// ErrNoWorkspace indicates no ancestor manifest declares workspaces.
	ErrNoWorkspace = errors.New("workspace root not found")

	// ErrPackageNotFound indicates the identifier matched no package.
	ErrPackageNotFound = errors.New("package not found")
)

// Package is one discovered workspace member.
type Package struct {
	// Name is the manifest name (may be scoped, e.g. "@acme/web").
	Name string

	// Dir is the absolute package directory.
	Dir string

	// Manifest is the parsed package manifest.
	Manifest *Manifest
}

// FindRoot walks parent directories from startDir upward until it finds a
// manifest declaring a "workspaces" field.
//
// Returns ErrNoWorkspace when the filesystem root is reached without a
// match.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start dir: %w", err)
	}

	for {
		m, err := LoadManifest(dir)
		if err == nil && len(m.Workspaces) > 0 {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w: searched from %s upward", ErrNoWorkspace, startDir)
		}
		dir = parent
	}
}

// ListPackages expands the root manifest's workspace globs and returns
// every matching directory that contains a manifest, sorted by name.
//
// Glob entries use doublestar semantics relative to the workspace root
// (e.g. "packages/*", "apps/**"). Matches without a manifest are skipped.
func ListPackages(root string) ([]Package, error) {
	rootManifest, err := LoadManifest(root)
	if err != nil {
		return nil, err
	}
	if len(rootManifest.Workspaces) == 0 {
		return nil, fmt.Errorf("%w: %s does not declare workspaces", ErrNoWorkspace, root)
	}

	seen := make(map[string]bool)
	var packages []Package

	fsys := os.DirFS(root)
	for _, pattern := range rootManifest.Workspaces {
		pattern = strings.TrimSuffix(strings.TrimSpace(pattern), "/")
		if pattern == "" {
			continue
		}

		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("workspace glob %q: %w", pattern, err)
		}

		for _, rel := range matches {
			abs := filepath.Join(root, filepath.FromSlash(rel))
			if seen[abs] {
				continue
			}

			info, err := os.Stat(abs)
			if err != nil || !info.IsDir() {
				continue
			}

			m, err := LoadManifest(abs)
			if err != nil {
				continue
			}

			seen[abs] = true
			packages = append(packages, Package{
				Name:     packageName(m, root, abs),
				Dir:      abs,
				Manifest: m,
			})
		}
	}

	sort.Slice(packages, func(i, j int) bool {
		return packages[i].Name < packages[j].Name
	})

	return packages, nil
}

// packageName falls back to the root-relative directory when a manifest
// has no name field.
func packageName(m *Manifest, root, dir string) string {
	if strings.TrimSpace(m.Name) != "" {
		return m.Name
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.ToSlash(rel)
}

// ResolvePackage maps a caller-supplied identifier onto an existing
// package directory.
//
// The identifier may be:
//   - an absolute path to a package directory
//   - a path relative to the workspace root (or the current directory)
//   - a bare or scoped package name matched against workspace members
//
// Returns ErrPackageNotFound when nothing matches.
func ResolvePackage(root, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty package identifier", ErrPackageNotFound)
	}

	if filepath.IsAbs(id) {
		if isDir(id) {
			return filepath.Clean(id), nil
		}
		return "", fmt.Errorf("%w: %s is not a directory", ErrPackageNotFound, id)
	}

	// Relative path, tried against the workspace root then the cwd.
	for _, base := range []string{root, "."} {
		candidate := filepath.Join(base, id)
		if isDir(candidate) && hasManifest(candidate) {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return "", err
			}
			return abs, nil
		}
	}

	// Bare name lookup against workspace members.
	packages, err := ListPackages(root)
	if err != nil {
		if errors.Is(err, ErrNoWorkspace) {
			return "", fmt.Errorf("%w: %q", ErrPackageNotFound, id)
		}
		return "", err
	}
	for _, pkg := range packages {
		if pkg.Name == id {
			return pkg.Dir, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrPackageNotFound, id)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil && info.Mode().IsRegular()
}

// WalkPackageFiles walks all regular files below dir, calling fn with the
// slash-separated path relative to dir. Hidden directories such as
// node_modules and .git are skipped.
func WalkPackageFiles(dir string, fn func(relPath string, info fs.FileInfo) error) error {
	return filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if path != dir && (name == "node_modules" || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), info)
	})
}
