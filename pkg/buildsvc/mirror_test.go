package buildsvc

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/kiln/pkg/artifact"
	"github.com/3leaps/kiln/pkg/build"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

type memStore struct {
	keys []string
}

func (m *memStore) Put(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return err
	}
	m.keys = append(m.keys, key)
	return nil
}

func (m *memStore) URI(key string) string { return "s3://test-bucket/" + key }
func (m *memStore) Close() error          { return nil }

func TestRun_MirrorsArtifacts(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc", "artifact_store": {"bucket": "test-bucket"}}`)

	require.NoError(t, os.MkdirAll(filepath.Join(f.pkgDir, "dist"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(f.pkgDir, "dist", "index.js"), []byte("built bytes"), 0644))

	store := &memStore{}
	f.service.WithStoreFactory(func(ctx context.Context, cfg buildcfg.ArtifactStore) (artifact.Store, error) {
		assert.Equal(t, "test-bucket", cfg.Bucket)
		return store, nil
	})

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	require.Equal(t, build.StatusSuccess, res.Status)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "s3://test-bucket/@acme/web/dist/index.js", res.Artifacts[0].RemoteURI)
	assert.Equal(t, []string{"@acme/web/dist/index.js"}, store.keys)
}

func TestRun_StoreFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t, `{"builder": "tsc", "artifact_store": {"bucket": "test-bucket"}}`)

	f.service.WithStoreFactory(func(ctx context.Context, cfg buildcfg.ArtifactStore) (artifact.Store, error) {
		return nil, errors.New("store unreachable")
	})

	res, err := f.service.Run(context.Background(), Request{Package: "@acme/web"})
	require.NoError(t, err)

	// An unreachable store never demotes a successful build.
	assert.Equal(t, build.StatusSuccess, res.Status)
	for _, a := range res.Artifacts {
		assert.Empty(t, a.RemoteURI)
	}
}
