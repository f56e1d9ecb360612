package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/kiln/internal/observability"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
	"github.com/3leaps/kiln/pkg/buildsvc"
	"github.com/3leaps/kiln/pkg/output"
	"github.com/3leaps/kiln/pkg/watch"
)

var buildCmd = &cobra.Command{
	Use:   "build [package...]",
	Short: "Build workspace packages",
	Long: `Build one or more packages through their configured backend.

Without arguments, every buildable package in the workspace is built.
Packages are referenced by manifest name or by path.

Examples:
  kiln build                      # build everything buildable
  kiln build @acme/web            # build one package by name
  kiln build packages/web --clean # clean output first
  kiln build --watch @acme/web    # rebuild on source changes`,
	RunE: runBuild,
}

var (
	buildClean  bool
	buildTarget string
	buildJSON   bool
	buildWatch  bool
	buildEnvKVs []string
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove the output directory before building")
	buildCmd.Flags().StringVar(&buildTarget, "target", string(build.TargetDevelopment), "Build target (development|production|test)")
	buildCmd.Flags().BoolVar(&buildJSON, "json", false, "Emit JSONL records to stdout")
	buildCmd.Flags().BoolVarP(&buildWatch, "watch", "w", false, "Rebuild on source changes")
	buildCmd.Flags().StringArrayVarP(&buildEnvKVs, "env", "e", nil, "Extra environment for backends (KEY=VALUE, repeatable)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	opts, err := buildOptions()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid build options", err)
	}

	root, err := resolveWorkspace()
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot resolve workspace", err)
	}

	svc, journal, err := newService(root)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Cannot initialize build service", err)
	}
	if journal != nil {
		defer func() { _ = journal.Close() }()
	}

	var writer output.Writer
	if buildJSON {
		jw := output.NewJSONLWriter(os.Stdout, uuid.NewString())
		defer func() { _ = jw.Close() }()
		writer = jw
		svc.WithWriter(jw)
	}

	targets, err := buildTargets(svc, args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot resolve build targets", err)
	}
	if len(targets) == 0 {
		observability.CLILogger.Info("No buildable packages found")
		return nil
	}

	if buildWatch {
		return runWatchLoop(ctx, svc, root, targets, opts)
	}

	started := time.Now()
	summary := output.SummaryRecord{Total: len(targets)}
	failed := 0
	worstExit := 0

	for _, pkg := range targets {
		res, err := svc.Run(ctx, buildsvc.Request{Package: pkg, Options: opts})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return exitError(foundry.ExitSignalInt, "Build cancelled", err)
			}
			return exitError(foundry.ExitExternalServiceUnavailable, "Build pipeline failed", err)
		}

		reportResult(res)
		if res.Status == build.StatusSuccess {
			summary.Succeeded++
			continue
		}
		summary.Failed++
		failed++
		if res.ExitCode > worstExit {
			worstExit = res.ExitCode
		}
	}

	summary.DurationMS = time.Since(started).Milliseconds()
	if writer != nil {
		_ = writer.WriteSummary(ctx, &summary)
	}

	if failed > 0 {
		if worstExit == 0 {
			worstExit = 1
		}
		return &codedError{code: worstExit, message: fmt.Sprintf("%d of %d packages failed", failed, summary.Total)}
	}
	return nil
}

// buildTargets expands the package arguments, defaulting to every
// buildable package in the workspace.
func buildTargets(svc *buildsvc.Service, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	infos, err := svc.ListPackages()
	if err != nil {
		return nil, err
	}

	var targets []string
	for _, info := range infos {
		if info.Supported {
			targets = append(targets, info.Name)
		}
	}
	return targets, nil
}

func buildOptions() (build.Options, error) {
	opts := build.Options{
		Clean:   buildClean,
		Verbose: rootVerbose,
	}

	switch build.Target(buildTarget) {
	case build.TargetDevelopment, build.TargetProduction, build.TargetTest:
		opts.Target = build.Target(buildTarget)
	default:
		return opts, fmt.Errorf("unsupported target: %s", buildTarget)
	}

	if len(buildEnvKVs) > 0 {
		opts.Env = make(map[string]string, len(buildEnvKVs))
		for _, kv := range buildEnvKVs {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || key == "" {
				return opts, fmt.Errorf("invalid --env value (want KEY=VALUE): %s", kv)
			}
			opts.Env[key] = value
		}
	}

	return opts, nil
}

func reportResult(res *build.Result) {
	fields := []zap.Field{
		zap.String("package", res.Package),
		zap.String("job_id", res.JobID),
		zap.Int64("duration_ms", res.DurationMS),
	}

	if res.Status == build.StatusSuccess {
		observability.CLILogger.Info(fmt.Sprintf("✅ %s built (%d artifacts)", res.Package, len(res.Artifacts)), fields...)
		return
	}

	observability.CLILogger.Error(fmt.Sprintf("❌ %s failed (exit %d)", res.Package, res.ExitCode), fields...)
	for _, buildErr := range res.Errors {
		if buildErr.File != "" {
			observability.CLILogger.Error(fmt.Sprintf("  %s(%d,%d): %s", buildErr.File, buildErr.Line, buildErr.Column, buildErr.Message))
		} else {
			observability.CLILogger.Error("  " + buildErr.Message)
		}
	}
}

// runWatchLoop builds every target once, then rebuilds on changes until
// interrupted.
func runWatchLoop(ctx context.Context, svc *buildsvc.Service, root string, targets []string, opts build.Options) error {
	watchTargets := make([]watch.Target, 0, len(targets))
	for _, pkg := range targets {
		res, err := svc.Run(ctx, buildsvc.Request{Package: pkg, Options: opts})
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Initial build failed", err)
		}
		reportResult(res)

		dir, cfg, err := describePackage(root, pkg)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Cannot watch package", err)
		}
		watchTargets = append(watchTargets, watch.Target{
			Name:   pkg,
			Dir:    dir,
			Ignore: []string{cfg.OutDir},
		})
	}

	observability.CLILogger.Info("Watching for changes...",
		zap.Int("packages", len(watchTargets)))

	watcher := watch.NewWatcher().
		WithDebounce(appConfig.Watch.Debounce).
		WithLimiter(rate.NewLimiter(rate.Every(appConfig.Watch.RebuildInterval), 1)).
		WithLogger(observability.CLILogger)

	// Watch-mode rebuilds never clean; incremental output survives.
	rebuildOpts := opts
	rebuildOpts.Clean = false

	return watcher.Watch(ctx, watchTargets, func(ctx context.Context, pkg string) {
		res, err := svc.Run(ctx, buildsvc.Request{Package: pkg, Options: rebuildOpts})
		if err != nil {
			observability.CLILogger.Error("Rebuild failed", zap.String("package", pkg), zap.Error(err))
			return
		}
		reportResult(res)
	})
}

func describePackage(root, ref string) (string, *buildcfg.Config, error) {
	dir, err := resolvePackageDir(root, ref)
	if err != nil {
		return "", nil, err
	}
	cfg, err := buildcfg.Load(dir)
	if err != nil {
		return "", nil, err
	}
	return dir, cfg, nil
}
