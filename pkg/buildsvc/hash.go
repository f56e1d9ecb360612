package buildsvc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"

	"github.com/3leaps/kiln/pkg/artifact"
	"github.com/3leaps/kiln/pkg/buildcfg"
	"github.com/3leaps/kiln/pkg/match"
	"github.com/3leaps/kiln/pkg/workspace"
)

// InputHash computes the content hash of a package's cache inputs.
//
// Files matching the rule's include globs (minus excludes) are hashed
// individually, then folded into a single digest over the sorted
// (path, checksum) pairs. The same file contents always produce the
// same hash regardless of walk order or timestamps.
func InputHash(packageDir string, rule buildcfg.CacheRule) (string, error) {
	includes := rule.Include
	if len(includes) == 0 {
		includes = buildcfg.DefaultCacheIncludes
	}

	matcher, err := match.New(match.Config{Includes: includes, Excludes: rule.Exclude})
	if err != nil {
		return "", fmt.Errorf("cache globs: %w", err)
	}

	var paths []string
	err = workspace.WalkPackageFiles(packageDir, func(rel string, info fs.FileInfo) error {
		if matcher.Match(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan cache inputs: %w", err)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		sum, err := artifact.ChecksumFile(joinRel(packageDir, rel))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%s\n", rel, sum)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
