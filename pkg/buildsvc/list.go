package buildsvc

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/3leaps/kiln/pkg/buildcfg"
	"github.com/3leaps/kiln/pkg/workspace"
)

// PackageInfo summarizes one workspace package for listing.
type PackageInfo struct {
	// Name is the package name from its manifest (or its directory when
	// unnamed).
	Name string `json:"name"`

	// Dir is the absolute package directory.
	Dir string `json:"dir"`

	// Supported reports whether the package is buildable: it has a build
	// configuration or a manifest build script.
	Supported bool `json:"supported"`

	// Builder is the configured backend name, or "auto" when unpinned.
	Builder string `json:"builder,omitempty"`
}

// ListPackages enumerates the workspace's packages with their build
// support status.
func (s *Service) ListPackages() ([]PackageInfo, error) {
	packages, err := workspace.ListPackages(s.root)
	if err != nil {
		return nil, fmt.Errorf("list workspace packages: %w", err)
	}

	infos := make([]PackageInfo, 0, len(packages))
	for _, pkg := range packages {
		info := PackageInfo{
			Name: pkg.Name,
			Dir:  pkg.Dir,
		}

		cfg, err := buildcfg.Load(pkg.Dir)
		if err == nil {
			info.Builder = cfg.Builder
			info.Supported = hasExplicitConfig(pkg.Dir) || pkg.Manifest.HasBuildScript() || cfg.Pinned()
		}

		infos = append(infos, info)
	}

	return infos, nil
}

func hasExplicitConfig(dir string) bool {
	for _, name := range buildcfg.CandidateFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// resolveDir maps a package reference (name or path) to its directory.
func resolveDir(root, ref string) (string, error) {
	return workspace.ResolvePackage(root, ref)
}
