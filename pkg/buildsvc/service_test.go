package buildsvc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
	"github.com/3leaps/kiln/pkg/history"
	"github.com/3leaps/kiln/pkg/lock"
)

// stubAdapter returns scripted outcomes and counts invocations.
type stubAdapter struct {
	name   string
	result *build.Result
	err    error
	calls  int
	onRun  func(packageDir string)
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) IsAvailable(ctx context.Context) bool { return true }

func (a *stubAdapter) Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error) {
	a.calls++
	if a.onRun != nil {
		a.onRun(packageDir)
	}
	if a.err != nil {
		return nil, a.err
	}

	res := *a.result
	return &res, nil
}

func (a *stubAdapter) DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return nil, nil
}

func successResult() *build.Result {
	now := time.Now().UTC()
	return &build.Result{
		Status:     build.StatusSuccess,
		Artifacts:  []build.Artifact{{Path: "dist/index.js", SizeBytes: 10, Checksum: "abc"}},
		Logs:       []string{"built"},
		StartedAt:  now,
		FinishedAt: now,
	}
}

func failureResult() *build.Result {
	now := time.Now().UTC()
	return &build.Result{
		Status:     build.StatusFailure,
		ExitCode:   2,
		Errors:     []build.Error{{Message: "compile error", Code: "TS2322"}},
		StartedAt:  now,
		FinishedAt: now,
	}
}

type fixture struct {
	root    string
	pkgDir  string
	service *Service
	locks   *lock.Manager
	stub    *stubAdapter
}

// newFixture scaffolds a workspace with one package pinned to the stub
// backend.
func newFixture(t *testing.T, configJSON string) *fixture {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"),
		[]byte(`{"name": "monorepo", "workspaces": ["packages/*"]}`), 0644))

	pkgDir := filepath.Join(root, "packages", "web")
	require.NoError(t, os.MkdirAll(pkgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.json"),
		[]byte(`{"name": "@acme/web", "scripts": {"build": "tsc"}}`), 0644))
	if configJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "package.build.config.json"),
			[]byte(configJSON), 0644))
	}

	stub := &stubAdapter{name: "tsc", result: successResult()}
	registry := adapter.NewRegistry()
	registry.Register(stub)

	locks := lock.NewManager(filepath.Join(root, ".locks"))
	svc := New(root, locks, registry).WithLockTimeout(2 * time.Second)

	return &fixture{root: root, pkgDir: pkgDir, service: svc, locks: locks, stub: stub}
}

func (f *fixture) withJournal(t *testing.T) *history.Store {
	t.Helper()
	j, err := history.Open(context.Background(), history.Config{Path: filepath.Join(f.root, ".kiln", "history.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	f.service.WithJournal(j)
	return j
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)
	j := f.withJournal(t)

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	assert.Equal(t, build.StatusSuccess, res.Status)
	assert.Equal(t, "@acme/web", res.Package)
	assert.NotEmpty(t, res.JobID)
	assert.Empty(t, res.Errors)
	assert.NotEmpty(t, res.Artifacts)

	entry, err := j.LatestSuccess(context.Background(), "@acme/web")
	require.NoError(t, err)
	assert.Equal(t, res.JobID, entry.JobID)
}

func TestRun_FailureIsResultNotError(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)
	f.stub.result = failureResult()

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	assert.Equal(t, build.StatusFailure, res.Status)
	assert.Empty(t, res.Artifacts)
	assert.NotEmpty(t, res.Errors)
	assert.Equal(t, 2, res.ExitCode)
}

func TestRun_AdapterFaultConverted(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)
	f.stub.err = errors.New("toolchain panicked")

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	assert.Equal(t, build.StatusFailure, res.Status)
	assert.Equal(t, 1, res.ExitCode)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "toolchain panicked")
	assert.Equal(t, "adapter_fault", res.Errors[0].Code)
	assert.NotEmpty(t, res.Errors[0].Stack)
}

func TestRun_ReleasesLockAfterFailure(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)
	f.stub.err = errors.New("boom")

	_, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	// The lock must be free immediately, whatever the build outcome.
	release, err := f.locks.Acquire(context.Background(), "@acme/web", 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, release())
}

func TestRun_PinnedUnknownBuilder(t *testing.T) {
	f := newFixture(t, `{"builder": "webpack"}`)

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	assert.Equal(t, build.StatusFailure, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "no_adapter", res.Errors[0].Code)
	assert.Zero(t, f.stub.calls)
}

func TestRun_MissingRequiredEnv(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc", "required_env": ["KILN_TEST_DEPLOY_KEY"]}`)

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	assert.Equal(t, build.StatusFailure, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "missing_env", res.Errors[0].Code)
	assert.Contains(t, res.Errors[0].Message, "KILN_TEST_DEPLOY_KEY")
	assert.Zero(t, f.stub.calls)
}

func TestRun_RequiredEnvFromOptions(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc", "required_env": ["KILN_TEST_DEPLOY_KEY"]}`)

	res, err := f.service.Run(context.Background(), Request{
		Package: "@acme/web",
		Options: build.Options{Env: map[string]string{"KILN_TEST_DEPLOY_KEY": "secret"}},
	})
	require.NoError(t, err)
	assert.Equal(t, build.StatusSuccess, res.Status)
}

func TestRun_CacheHitSkipsBuild(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc", "cache": {"enabled": true, "include": ["src/**"]}}`)
	f.withJournal(t)

	require.NoError(t, os.MkdirAll(filepath.Join(f.pkgDir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.pkgDir, "src", "index.ts"), []byte("export {}"), 0644))

	first, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)
	require.Equal(t, build.StatusSuccess, first.Status)
	require.Equal(t, 1, f.stub.calls)

	second, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)
	assert.Equal(t, build.StatusSuccess, second.Status)
	assert.Equal(t, 1, f.stub.calls) // adapter not invoked again
	assert.Equal(t, first.Artifacts, second.Artifacts)
	assert.NotEqual(t, first.JobID, second.JobID)
}

func TestRun_CacheMissAfterSourceChange(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc", "cache": {"enabled": true, "include": ["src/**"]}}`)
	f.withJournal(t)

	require.NoError(t, os.MkdirAll(filepath.Join(f.pkgDir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.pkgDir, "src", "index.ts"), []byte("export {}"), 0644))

	_, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(f.pkgDir, "src", "index.ts"), []byte("export const x = 1"), 0644))

	_, err = f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.stub.calls)
}

func TestRun_CleanOptionRemovesOutDir(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)

	distDir := filepath.Join(f.pkgDir, "dist")
	require.NoError(t, os.MkdirAll(distDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(distDir, "stale.js"), []byte("old"), 0644))

	var seenStale bool
	f.stub.onRun = func(packageDir string) {
		_, err := os.Stat(filepath.Join(packageDir, "dist", "stale.js"))
		seenStale = err == nil
	}

	res, err := f.service.Run(context.Background(), Request{
		Package: "@acme/web",
		Options: build.Options{Clean: true},
	})
	require.NoError(t, err)
	assert.Equal(t, build.StatusSuccess, res.Status)
	assert.False(t, seenStale)
}

func TestRun_UnknownPackageIsFailureResult(t *testing.T) {
	f := newFixture(t, "")

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/missing"})
	require.NoError(t, err)

	assert.Equal(t, build.StatusFailure, res.Status)
	assert.Empty(t, res.Artifacts)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "resolve_failed", res.Errors[0].Code)
	assert.Zero(t, f.stub.calls)
}

func TestRun_LockTimeoutIsFailureResult(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)
	f.service.WithLockTimeout(200 * time.Millisecond)

	release, err := f.locks.Acquire(context.Background(), "@acme/web", time.Second)
	require.NoError(t, err)
	defer func() { _ = release() }()

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	assert.Equal(t, build.StatusFailure, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Equal(t, "lock_timeout", res.Errors[0].Code)
	assert.Zero(t, f.stub.calls)
}

func TestRun_LockMetadataRecordsDeclaredName(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)

	var meta *lock.Metadata
	f.stub.onRun = func(string) {
		meta, _ = f.locks.ReadMetadata("@acme/web")
	}

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)
	require.Equal(t, build.StatusSuccess, res.Status)

	require.NotNil(t, meta, "lock metadata missing while build held the lock")
	assert.Equal(t, "@acme/web", meta.Package)
}

func TestCleanPackage(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc"}`)

	distDir := filepath.Join(f.pkgDir, "dist")
	require.NoError(t, os.MkdirAll(distDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(distDir, "index.js"), []byte("x"), 0644))

	require.NoError(t, f.service.CleanPackage(context.Background(), "@acme/web"))

	_, err := os.Stat(distDir)
	assert.True(t, os.IsNotExist(err))
}

func TestSafeOutDir(t *testing.T) {
	dir := t.TempDir()

	got, err := safeOutDir(dir, "dist")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dist"), got)

	_, err = safeOutDir(dir, "../outside")
	assert.ErrorIs(t, err, ErrUnsafeOutDir)

	_, err = safeOutDir(dir, ".")
	assert.ErrorIs(t, err, ErrUnsafeOutDir)

	_, err = safeOutDir(dir, "/abs")
	assert.ErrorIs(t, err, ErrUnsafeOutDir)
}

func TestListPackages(t *testing.T) {
	f := newFixture(t, `{"builder": "esbuild"}`)

	// A package with neither config nor build script is unsupported.
	bareDir := filepath.Join(f.root, "packages", "docs")
	require.NoError(t, os.MkdirAll(bareDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bareDir, "package.json"),
		[]byte(`{"name": "@acme/docs"}`), 0644))

	infos, err := f.service.ListPackages()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	byName := map[string]PackageInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}

	web := byName["@acme/web"]
	assert.True(t, web.Supported)
	assert.Equal(t, "esbuild", web.Builder)

	docs := byName["@acme/docs"]
	assert.False(t, docs.Supported)
	assert.Equal(t, buildcfg.BuilderAuto, docs.Builder)
}

func TestInputHash_Deterministic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.ts"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "b.ts"), []byte("b"), 0644))

	rule := buildcfg.CacheRule{Enabled: true, Include: []string{"src/**"}}

	first, err := InputHash(dir, rule)
	require.NoError(t, err)
	second, err := InputHash(dir, rule)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.ts"), []byte("changed"), 0644))
	third, err := InputHash(dir, rule)
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}
