package output

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/kiln/pkg/build"
)

func TestJSONLWriter_WriteResult(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	res := &build.Result{
		JobID:    "job-123",
		Package:  "@acme/web",
		Status:   build.StatusSuccess,
		ExitCode: 0,
		Artifacts: []build.Artifact{
			{Path: "dist/index.js", SizeBytes: 2048, Checksum: "abc"},
		},
	}

	err := w.WriteResult(context.Background(), res)
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, TypeResult, record.Type)
	assert.Equal(t, "job-123", record.JobID)
	assert.Equal(t, "@acme/web", record.Package)
	assert.False(t, record.TS.IsZero())

	var payload build.Result
	require.NoError(t, json.Unmarshal(record.Data, &payload))
	assert.Equal(t, build.StatusSuccess, payload.Status)
	require.Len(t, payload.Artifacts, 1)
	assert.Equal(t, "dist/index.js", payload.Artifacts[0].Path)
}

func TestJSONLWriter_WriteProgress(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	err := w.WriteProgress(context.Background(), &ProgressRecord{
		Phase:   "build",
		Adapter: "esbuild",
	})
	require.NoError(t, err)

	var record Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, TypeProgress, record.Type)
	assert.Empty(t, record.Package)
}

func TestJSONLWriter_OneRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	ctx := context.Background()
	require.NoError(t, w.WriteProgress(ctx, &ProgressRecord{Phase: "lock"}))
	require.NoError(t, w.WriteError(ctx, &ErrorRecord{Message: "boom", Package: "@acme/web"}))
	require.NoError(t, w.WriteSummary(ctx, &SummaryRecord{Total: 2, Succeeded: 1, Failed: 1}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		var record Record
		require.NoError(t, json.Unmarshal([]byte(line), &record))
	}
}

func TestJSONLWriter_WriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")
	require.NoError(t, w.Close())

	err := w.WriteProgress(context.Background(), &ProgressRecord{Phase: "build"})
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestJSONLWriter_CancelledContext(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.WriteProgress(ctx, &ProgressRecord{Phase: "build"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, buf.Len())
}

func TestJSONLWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf, "job-123")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.WriteProgress(context.Background(), &ProgressRecord{Phase: "build"})
		}()
	}
	wg.Wait()

	// Every line must be complete JSON (no interleaving).
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var record Record
		require.NoError(t, json.Unmarshal([]byte(line), &record))
	}
}
