// Package toolchain implements build adapters that shell out to JavaScript
// build tools (bun, esbuild, tsc, rollup) and to package manifest scripts.
//
// Every adapter probes its tool with exec.LookPath on each availability
// check and invokes it with the package directory as working directory.
// Tool output is captured line by line in arrival order and attached to
// the build result.
package toolchain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/3leaps/kiln/pkg/artifact"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// execution is the outcome of one tool invocation.
type execution struct {
	exitCode   int
	logs       []string
	startedAt  time.Time
	finishedAt time.Time
	err        error
}

// runTool executes a command in dir, merging extra env over the ambient
// environment and collecting interleaved stdout/stderr lines.
//
// A nonzero tool exit is not an error here; it is reported through
// exitCode. The err field is set only when the tool could not be run at
// all.
func runTool(ctx context.Context, dir string, extraEnv map[string]string, name string, args ...string) execution {
	ex := execution{startedAt: time.Now().UTC()}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = mergedEnv(extraEnv)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		ex.err = fmt.Errorf("pipe stdout: %w", err)
		return ex
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		ex.err = fmt.Errorf("start %s: %w", name, err)
		return ex
	}

	ex.logs = collectLines(stdout)

	err = cmd.Wait()
	ex.finishedAt = time.Now().UTC()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ex.exitCode = exitErr.ExitCode()
			return ex
		}
		ex.err = fmt.Errorf("run %s: %w", name, err)
		return ex
	}

	return ex
}

func collectLines(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// lookPath reports whether a binary resolves on the current PATH.
// Probed fresh on every call so toolchain changes take effect immediately.
func lookPath(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}

var scannerPool = struct {
	once sync.Once
	s    *artifact.Scanner
}{}

func sharedScanner() *artifact.Scanner {
	scannerPool.once.Do(func() {
		scannerPool.s = artifact.NewScanner()
	})
	return scannerPool.s
}

// discoverArtifacts is the shared DiscoverArtifacts implementation: a
// fresh glob scan over the configured artifact patterns.
func discoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return sharedScanner().Discover(ctx, packageDir, cfg.ArtifactGlobs)
}

// finishResult converts a tool execution into a build result, attaching
// artifacts on success and parsed diagnostics on failure.
func finishResult(ctx context.Context, ex execution, toolName, packageDir string, cfg *buildcfg.Config) (*build.Result, error) {
	if ex.err != nil {
		return nil, ex.err
	}

	res := &build.Result{
		Package:    cfg.Package,
		ExitCode:   ex.exitCode,
		DurationMS: ex.finishedAt.Sub(ex.startedAt).Milliseconds(),
		Logs:       ex.logs,
		StartedAt:  ex.startedAt,
		FinishedAt: ex.finishedAt,
	}

	if ex.exitCode != 0 {
		res.Status = build.StatusFailure
		res.Errors = parseDiagnostics(ex.logs)
		if len(res.Errors) == 0 {
			res.Errors = []build.Error{{
				Message: fmt.Sprintf("%s exited with code %d", toolName, ex.exitCode),
				Code:    toolName + "_exit",
			}}
		}
		return res, nil
	}

	artifacts, err := discoverArtifacts(ctx, packageDir, cfg)
	if err != nil {
		return nil, fmt.Errorf("discover artifacts: %w", err)
	}

	res.Status = build.StatusSuccess
	res.Artifacts = artifacts
	return res, nil
}
