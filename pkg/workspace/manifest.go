package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFile is the per-package manifest consulted for workspace and
// package discovery.
const ManifestFile = "package.json"

// Manifest is the subset of the package manifest this tool reads.
type Manifest struct {
	Name       string            `json:"name"`
	Version    string            `json:"version,omitempty"`
	Private    bool              `json:"private,omitempty"`
	Workspaces WorkspaceGlobs    `json:"workspaces,omitempty"`
	Scripts    map[string]string `json:"scripts,omitempty"`
}

// WorkspaceGlobs is the manifest "workspaces" field, which appears either
// as a bare array of globs or as an object with a "packages" array.
type WorkspaceGlobs []string

// UnmarshalJSON accepts both workspace declaration shapes.
func (w *WorkspaceGlobs) UnmarshalJSON(data []byte) error {
	var globs []string
	if err := json.Unmarshal(data, &globs); err == nil {
		*w = globs
		return nil
	}

	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid workspaces field: %w", err)
	}
	*w = obj.Packages
	return nil
}

// LoadManifest reads and parses the manifest in the given directory.
//
// Returns an error if the file cannot be read or is not valid JSON; a
// manifest without a name is returned as-is (callers decide whether a
// name is required).
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid JSON in manifest %s: %w", path, err)
	}
	return &m, nil
}

// HasBuildScript reports whether the manifest declares a "build" script.
func (m *Manifest) HasBuildScript() bool {
	if m == nil || m.Scripts == nil {
		return false
	}
	_, ok := m.Scripts["build"]
	return ok
}

// BuildScript returns the declared "build" script command, if any.
func (m *Manifest) BuildScript() string {
	if m == nil || m.Scripts == nil {
		return ""
	}
	return m.Scripts["build"]
}
