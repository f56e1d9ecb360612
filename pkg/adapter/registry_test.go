package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// fakeAdapter is a registry test double with scripted availability.
type fakeAdapter struct {
	name      string
	available bool
	probes    int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) IsAvailable(ctx context.Context) bool {
	f.probes++
	return f.available
}

func (f *fakeAdapter) Build(ctx context.Context, packageDir string, cfg *buildcfg.Config, opts build.Options) (*build.Result, error) {
	return &build.Result{Status: build.StatusSuccess}, nil
}

func (f *fakeAdapter) DiscoverArtifacts(ctx context.Context, packageDir string, cfg *buildcfg.Config) ([]build.Artifact, error) {
	return nil, nil
}

func TestRegistry_GetBest_PriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "tsc", available: true})
	r.Register(&fakeAdapter{name: "esbuild", available: true})
	r.Register(&fakeAdapter{name: "bun", available: false})

	best, err := r.GetBest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "esbuild", best.Name())
}

func TestRegistry_GetBest_Deterministic(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "rollup", available: true})
	r.Register(&fakeAdapter{name: "tsc", available: true})
	r.Register(&fakeAdapter{name: "esbuild", available: false})
	r.Register(&fakeAdapter{name: "bun", available: false})

	for range 5 {
		best, err := r.GetBest(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tsc", best.Name())
	}
}

func TestRegistry_GetBest_ShortCircuits(t *testing.T) {
	bun := &fakeAdapter{name: "bun", available: true}
	rollup := &fakeAdapter{name: "rollup", available: true}

	r := NewRegistry()
	r.Register(bun)
	r.Register(rollup)

	best, err := r.GetBest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bun", best.Name())
	assert.Equal(t, 1, bun.probes)
	assert.Zero(t, rollup.probes)
}

func TestRegistry_GetBest_NoneAvailable(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "tsc", available: false})

	_, err := r.GetBest(context.Background())
	assert.ErrorIs(t, err, ErrNoneAvailable)
}

func TestRegistry_GetBest_SkipsUnprioritizedNames(t *testing.T) {
	r := NewRegistry()
	// The script adapter is selectable only when pinned.
	r.Register(&fakeAdapter{name: "script", available: true})

	_, err := r.GetBest(context.Background())
	assert.ErrorIs(t, err, ErrNoneAvailable)
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "script", available: true})

	a, err := r.Get("script")
	require.NoError(t, err)
	assert.Equal(t, "script", a.Name())

	_, err = r.Get("webpack")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	first := &fakeAdapter{name: "tsc", available: false}
	second := &fakeAdapter{name: "tsc", available: true}

	r := NewRegistry()
	r.Register(first)
	r.Register(second)

	a, err := r.Get("tsc")
	require.NoError(t, err)
	assert.Same(t, second, a.(*fakeAdapter))
	assert.Equal(t, []string{"tsc"}, r.Names())
}

func TestRegistry_Names_Sorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "tsc"})
	r.Register(&fakeAdapter{name: "bun"})
	r.Register(&fakeAdapter{name: "script"})

	assert.Equal(t, []string{"bun", "script", "tsc"}, r.Names())
}
