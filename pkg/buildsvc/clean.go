package buildsvc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/kiln/pkg/buildcfg"
)

// ErrUnsafeOutDir indicates a configured output directory that escapes
// the package root and will not be removed.
var ErrUnsafeOutDir = errors.New("output directory escapes package root")

// CleanPackage removes a package's build outputs.
//
// Clean runs without taking the package lock: it only removes output and
// a concurrent build would recreate it anyway. A configured clean command
// replaces output-directory removal entirely.
func (s *Service) CleanPackage(ctx context.Context, ref string) error {
	dir, cfg, err := s.configure(ref)
	if err != nil {
		return err
	}

	s.logger.Info("cleaning package",
		zap.String("package", cfg.Package),
		zap.String("dir", dir))

	return s.cleanOutDir(ctx, dir, cfg)
}

func (s *Service) cleanOutDir(ctx context.Context, dir string, cfg *buildcfg.Config) error {
	if cmd := strings.TrimSpace(cfg.CleanCommand); cmd != "" {
		c := exec.CommandContext(ctx, "sh", "-c", cmd)
		c.Dir = dir
		if out, err := c.CombinedOutput(); err != nil {
			return fmt.Errorf("clean command failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
		return nil
	}

	target, err := safeOutDir(dir, cfg.OutDir)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("remove output directory: %w", err)
	}
	return nil
}

// safeOutDir resolves the output directory and refuses anything outside
// the package root.
func safeOutDir(dir, outDir string) (string, error) {
	if filepath.IsAbs(outDir) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeOutDir, outDir)
	}

	target := filepath.Clean(filepath.Join(dir, filepath.FromSlash(outDir)))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafeOutDir, outDir)
	}
	return target, nil
}
