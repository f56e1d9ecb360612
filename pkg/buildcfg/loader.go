package buildcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/kiln/pkg/workspace"
)

// Load resolves the build configuration for the package at dir.
//
// Candidate file names are tried in CandidateFiles order; a candidate that
// is missing, not parseable by this host (.ts/.js), or malformed falls
// through to the next. When no candidate loads, a default configuration is
// synthesized from the package manifest. Only an unreadable manifest is
// terminal.
//
// The returned configuration has defaults applied and is never shared or
// cached between calls.
func Load(dir string) (*Config, error) {
	manifest, err := workspace.LoadManifest(dir)
	if err != nil {
		return nil, fmt.Errorf("load package manifest: %w", err)
	}

	for _, name := range CandidateFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		cfg, err := parseConfig(data, name)
		if err != nil {
			// Malformed candidates fall through; the manifest-derived
			// default is the final fallback.
			continue
		}

		finish(cfg, manifest)
		return cfg, nil
	}

	cfg := Default(manifest)
	return cfg, nil
}

// Default synthesizes a minimal configuration from a package manifest:
// automatic backend selection and the conventional output directory.
func Default(manifest *workspace.Manifest) *Config {
	cfg := &Config{
		Package: manifest.Name,
		Builder: BuilderAuto,
		OutDir:  DefaultOutDir,
	}
	finish(cfg, manifest)
	return cfg
}

func finish(cfg *Config, manifest *workspace.Manifest) {
	if strings.TrimSpace(cfg.Package) == "" {
		cfg.Package = manifest.Name
	}
	cfg.manifest = manifest
	cfg.ApplyDefaults()
}

// parseConfig parses candidate data based on file extension.
func parseConfig(data []byte, name string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(name))

	switch ext {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	case ".ts", ".js":
		// Executable configs cannot be evaluated here; treated the same
		// as a malformed candidate by the caller.
		return nil, fmt.Errorf("unsupported executable config: %s", name)
	default:
		// Unknown extension: try YAML first (more permissive), then JSON
		cfg, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return cfg, nil
		}
		cfg, jsonErr := parseJSON(data)
		if jsonErr == nil {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to parse config (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON in build config: %w", err)
	}
	return &cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in build config: %w", err)
	}
	return &cfg, nil
}
