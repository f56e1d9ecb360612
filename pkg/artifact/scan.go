// Package artifact discovers build outputs and optionally mirrors them to
// an object store.
//
// Discovery scans the configured glob patterns fresh on every build:
// artifact lists are recomputed from the filesystem, never cached or
// diffed against a previous run.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/match"
	"github.com/3leaps/kiln/pkg/workspace"
)

// DefaultConcurrency is the number of files hashed in parallel.
const DefaultConcurrency = 4

// Scanner discovers artifacts below a package directory.
//
// The Scanner is stateless and safe for concurrent use.
type Scanner struct {
	concurrency int
}

// NewScanner creates a scanner with the default hashing concurrency.
func NewScanner() *Scanner {
	return &Scanner{concurrency: DefaultConcurrency}
}

// WithConcurrency overrides the number of parallel hash workers.
// Returns the scanner for method chaining.
func (s *Scanner) WithConcurrency(n int) *Scanner {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Discover returns every file below packageDir matching the given globs,
// with size and SHA-256 checksum, sorted by path.
//
// Patterns use doublestar semantics relative to the package root. Hidden
// segments and node_modules are never scanned. Two consecutive calls over
// an unchanged tree yield identical checksums and sizes.
func (s *Scanner) Discover(ctx context.Context, packageDir string, globs []string) ([]build.Artifact, error) {
	if len(globs) == 0 {
		return nil, nil
	}

	matcher, err := match.New(match.Config{Includes: globs})
	if err != nil {
		return nil, fmt.Errorf("artifact globs: %w", err)
	}

	type candidate struct {
		rel  string
		size int64
	}
	var candidates []candidate

	err = workspace.WalkPackageFiles(packageDir, func(rel string, info fs.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if matcher.Match(rel) {
			candidates = append(candidates, candidate{rel: rel, size: info.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	artifacts := make([]build.Artifact, len(candidates))
	sem := make(chan struct{}, s.concurrency)

	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i, c := range candidates {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int, c candidate) {
			defer wg.Done()
			defer func() { <-sem }()

			sum, err := ChecksumFile(filepath.Join(packageDir, filepath.FromSlash(c.rel)))
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			artifacts[i] = build.Artifact{
				Path:      c.rel,
				SizeBytes: c.size,
				Checksum:  sum,
			}
		}(i, c)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Path < artifacts[j].Path
	})

	return artifacts, nil
}

// ChecksumFile returns the hex-encoded SHA-256 over the file bytes.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash artifact %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
