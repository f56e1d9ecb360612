// Package buildsvc orchestrates single-package builds: package
// resolution, configuration, locking, backend selection, execution,
// artifact handling, and history recording.
//
// Run never reports expected failures through its error return: an
// unresolvable package, a lock timeout, a missing backend, and a failing
// compile all surface as a terminal failure result with a nil error, so
// callers can treat every outcome as data. Only context cancellation
// comes back as an error.
package buildsvc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/artifact"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
	"github.com/3leaps/kiln/pkg/history"
	"github.com/3leaps/kiln/pkg/lock"
	"github.com/3leaps/kiln/pkg/output"
)

// StoreFactory opens an artifact store for a package's store config.
type StoreFactory func(ctx context.Context, cfg buildcfg.ArtifactStore) (artifact.Store, error)

// Request describes one build invocation.
type Request struct {
	// Package is a package name, a path relative to the workspace root,
	// or an absolute path.
	Package string

	// Options modify this build only.
	Options build.Options
}

// Service coordinates package builds against a workspace.
type Service struct {
	root     string
	locks    *lock.Manager
	registry *adapter.Registry

	journal     *history.Store
	writer      output.Writer
	logger      *zap.Logger
	lockTimeout time.Duration
	newStore    StoreFactory
}

// New creates a build service for the workspace rooted at root.
func New(root string, locks *lock.Manager, registry *adapter.Registry) *Service {
	return &Service{
		root:        root,
		locks:       locks,
		registry:    registry,
		logger:      zap.NewNop(),
		lockTimeout: lock.DefaultAcquireTimeout,
		newStore: func(ctx context.Context, cfg buildcfg.ArtifactStore) (artifact.Store, error) {
			return artifact.NewS3Store(ctx, artifact.StoreConfig{
				Bucket:   cfg.Bucket,
				Prefix:   cfg.Prefix,
				Region:   cfg.Region,
				Endpoint: cfg.Endpoint,
				Profile:  cfg.Profile,
			})
		},
	}
}

// WithJournal attaches a history journal. Returns the service for chaining.
func (s *Service) WithJournal(j *history.Store) *Service {
	s.journal = j
	return s
}

// WithWriter attaches a JSONL progress writer. Returns the service for chaining.
func (s *Service) WithWriter(w output.Writer) *Service {
	s.writer = w
	return s
}

// WithLogger attaches a structured logger. Returns the service for chaining.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// WithLockTimeout overrides the lock acquisition timeout. Returns the
// service for chaining.
func (s *Service) WithLockTimeout(d time.Duration) *Service {
	if d > 0 {
		s.lockTimeout = d
	}
	return s
}

// WithStoreFactory overrides how artifact stores are opened. Returns the
// service for chaining.
func (s *Service) WithStoreFactory(f StoreFactory) *Service {
	if f != nil {
		s.newStore = f
	}
	return s
}

// Run executes one build end to end and returns its terminal result.
//
// Every expected failure category, from an unresolvable package reference
// through a lock timeout to a failing compile, comes back as a failure
// result with a nil error; the error return is reserved for context
// cancellation. The package lock is held for the whole build and released
// unconditionally, whatever the outcome.
func (s *Service) Run(ctx context.Context, req Request) (*build.Result, error) {
	job := &build.Job{
		ID:        uuid.NewString(),
		Package:   req.Package,
		Status:    build.StatusQueued,
		StartedAt: time.Now().UTC(),
	}

	dir, cfg, err := s.configure(req.Package)
	if err != nil {
		res := build.Failure(job, 1, build.Error{
			Message: err.Error(),
			Code:    "resolve_failed",
		})
		s.record(ctx, res, "")
		return res, nil
	}
	job.Package = cfg.Package

	s.progress(ctx, "lock", "acquiring package lock", "")

	// The manager sanitizes the name for the lock path itself; passing
	// the declared name keeps lock.json attributable to the package.
	release, err := s.locks.Acquire(ctx, cfg.Package, s.lockTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		res := build.Failure(job, 1, build.Error{
			Message: fmt.Sprintf("acquire lock for %s: %v", cfg.Package, err),
			Code:    "lock_timeout",
		})
		s.record(ctx, res, "")
		return res, nil
	}
	defer func() {
		if relErr := release(); relErr != nil {
			// A failed release leaves a stale directory behind; the
			// staleness reaper will reclaim it on the next acquire.
			s.logger.Warn("failed to release package lock",
				zap.String("package", cfg.Package),
				zap.Error(relErr))
		}
	}()

	job.Status = build.StatusInProgress
	res := s.execute(ctx, job, dir, cfg, req.Options)

	s.record(ctx, res, job.InputHash)
	return res, nil
}

// execute runs the locked portion of the pipeline. It always returns a
// terminal result; faults inside the adapter are converted to failure
// results here.
func (s *Service) execute(ctx context.Context, job *build.Job, dir string, cfg *buildcfg.Config, opts build.Options) *build.Result {
	if missing := missingEnv(cfg.RequiredEnv, opts.Env); len(missing) > 0 {
		return build.Failure(job, 1, build.Error{
			Message: "missing required environment variables: " + strings.Join(missing, ", "),
			Code:    "missing_env",
		})
	}

	if opts.Clean {
		// Pre-build clean is best-effort housekeeping; a failed removal
		// does not abort the build.
		if err := s.cleanOutDir(ctx, dir, cfg); err != nil {
			s.logger.Warn("clean before build failed",
				zap.String("package", cfg.Package),
				zap.Error(err))
		}
	}

	selected, err := s.selectAdapter(ctx, cfg)
	if err != nil {
		return build.Failure(job, 1, build.Error{
			Message: err.Error(),
			Code:    "no_adapter",
		})
	}
	s.progress(ctx, "build", "backend selected", selected.Name())
	s.logger.Info("building package",
		zap.String("package", cfg.Package),
		zap.String("job_id", job.ID),
		zap.String("adapter", selected.Name()))

	if cfg.Cache.Enabled && !opts.Clean {
		if res := s.tryCache(ctx, job, dir, cfg); res != nil {
			return res
		}
	}

	if fail := s.runHooks(ctx, job, dir, cfg.Hooks.Pre, "pre", opts.Env); fail != nil {
		return fail
	}

	res, err := selected.Build(ctx, dir, cfg, opts)
	if err != nil {
		// Adapter faults become failure results carrying the message and
		// the service-side stack, so one build never aborts a run.
		return build.Failure(job, 1, build.Error{
			Message: fmt.Sprintf("adapter %s: %v", selected.Name(), err),
			Code:    "adapter_fault",
			Stack:   string(debug.Stack()),
		})
	}

	res.JobID = job.ID
	res.Package = cfg.Package
	job.Logs = res.Logs

	if res.Status != build.StatusSuccess {
		return res
	}

	if fail := s.runHooks(ctx, job, dir, cfg.Hooks.Post, "post", opts.Env); fail != nil {
		return fail
	}

	if cfg.Store != nil {
		s.mirror(ctx, dir, cfg, res)
	}

	return res
}

// tryCache short-circuits the build when the package's cache inputs hash
// to the same value as its latest recorded success. Returns nil on a
// cache miss or when no journal is attached.
func (s *Service) tryCache(ctx context.Context, job *build.Job, dir string, cfg *buildcfg.Config) *build.Result {
	hash, err := InputHash(dir, cfg.Cache)
	if err != nil {
		s.logger.Warn("cache input hashing failed, building anyway",
			zap.String("package", cfg.Package),
			zap.Error(err))
		return nil
	}
	job.InputHash = hash

	if s.journal == nil {
		return nil
	}

	entry, err := s.journal.LatestSuccess(ctx, cfg.Package)
	if err != nil {
		return nil
	}
	if entry.InputHash == "" || entry.InputHash != hash {
		return nil
	}
	if cfg.Cache.ExpiryHours > 0 {
		expiry := time.Duration(cfg.Cache.ExpiryHours) * time.Hour
		if time.Since(entry.FinishedAt) > expiry {
			return nil
		}
	}

	s.progress(ctx, "cache", "inputs unchanged, reusing recorded result", "")
	s.logger.Info("cache hit",
		zap.String("package", cfg.Package),
		zap.String("input_hash", hash))

	now := time.Now().UTC()
	return &build.Result{
		JobID:      job.ID,
		Package:    cfg.Package,
		Status:     build.StatusSuccess,
		Artifacts:  entry.Result.Artifacts,
		Logs:       []string{fmt.Sprintf("cache hit: inputs unchanged since job %s", entry.JobID)},
		StartedAt:  job.StartedAt,
		FinishedAt: now,
		DurationMS: now.Sub(job.StartedAt).Milliseconds(),
	}
}

// selectAdapter resolves the backend: a pinned builder must be
// registered, an unpinned one is chosen by priority and availability.
func (s *Service) selectAdapter(ctx context.Context, cfg *buildcfg.Config) (adapter.Adapter, error) {
	if cfg.Pinned() {
		return s.registry.Get(cfg.Builder)
	}
	return s.registry.GetBest(ctx)
}

// mirror uploads artifacts to the configured store. Upload failures do
// not demote a successful build; they are logged and the artifacts keep
// empty remote URIs.
func (s *Service) mirror(ctx context.Context, dir string, cfg *buildcfg.Config, res *build.Result) {
	store, err := s.newStore(ctx, *cfg.Store)
	if err != nil {
		s.logger.Warn("artifact store unavailable",
			zap.String("package", cfg.Package),
			zap.Error(err))
		return
	}
	defer func() { _ = store.Close() }()

	s.progress(ctx, "upload", "mirroring artifacts", "")
	mirrored, err := artifact.Mirror(ctx, store, dir, cfg.Package, res.Artifacts)
	if err != nil {
		s.logger.Warn("artifact upload failed",
			zap.String("package", cfg.Package),
			zap.Error(err))
		return
	}
	res.Artifacts = mirrored
}

// record persists a terminal result and emits it to the JSONL writer.
func (s *Service) record(ctx context.Context, res *build.Result, inputHash string) {
	if s.journal != nil {
		if err := s.journal.Record(ctx, res, inputHash); err != nil {
			s.logger.Warn("failed to record build history",
				zap.String("package", res.Package),
				zap.Error(err))
		}
	}
	if s.writer != nil {
		if err := s.writer.WriteResult(ctx, res); err != nil {
			s.logger.Warn("failed to write result record", zap.Error(err))
		}
	}
}

func (s *Service) progress(ctx context.Context, phase, message, adapterName string) {
	if s.writer == nil {
		return
	}
	_ = s.writer.WriteProgress(ctx, &output.ProgressRecord{
		Phase:   phase,
		Message: message,
		Adapter: adapterName,
	})
}

// configure resolves the package reference and loads its build
// configuration.
func (s *Service) configure(ref string) (string, *buildcfg.Config, error) {
	dir, err := resolveDir(s.root, ref)
	if err != nil {
		return "", nil, err
	}

	cfg, err := buildcfg.Load(dir)
	if err != nil {
		return "", nil, err
	}
	return dir, cfg, nil
}

func missingEnv(required []string, extra map[string]string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := extra[name]; ok {
			continue
		}
		if _, ok := os.LookupEnv(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func joinRel(dir, rel string) string {
	return filepath.Join(dir, filepath.FromSlash(rel))
}
