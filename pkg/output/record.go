// Package output provides JSONL output for build runs.
//
// Output is structured as typed record envelopes containing build
// results, artifacts, errors, and progress updates. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/kiln/pkg/build"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: kiln.<type>.v<version>
const (
	// TypeResult identifies terminal build result records.
	TypeResult = "kiln.result.v1"

	// TypeArtifact identifies per-artifact records.
	TypeArtifact = "kiln.artifact.v1"

	// TypeError identifies error records.
	TypeError = "kiln.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "kiln.progress.v1"

	// TypeSummary identifies multi-package summary records.
	TypeSummary = "kiln.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "kiln.result.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this build job.
	JobID string `json:"job_id"`

	// Package is the package the record belongs to, when known.
	Package string `json:"package,omitempty"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// ProgressRecord is the data payload for build progress updates.
type ProgressRecord struct {
	// Phase names the pipeline stage (e.g., "lock", "build", "upload").
	Phase string `json:"phase"`

	// Message is a human-readable progress note.
	Message string `json:"message,omitempty"`

	// Adapter is the selected backend, once known.
	Adapter string `json:"adapter,omitempty"`
}

// SummaryRecord is the data payload for a multi-package run summary.
type SummaryRecord struct {
	// Total is the number of packages attempted.
	Total int `json:"total"`

	// Succeeded counts successful builds, including cache hits.
	Succeeded int `json:"succeeded"`

	// Failed counts failed builds.
	Failed int `json:"failed"`

	// Skipped counts cache-hit short circuits.
	Skipped int `json:"skipped"`

	// DurationMS is the wall time of the whole run.
	DurationMS int64 `json:"duration_ms"`
}

// ErrorRecord is the data payload for error records emitted outside a
// terminal result, such as orchestration faults.
type ErrorRecord struct {
	// Message describes the error.
	Message string `json:"message"`

	// Code is a stable machine-readable error code, when available.
	Code string `json:"code,omitempty"`

	// Package is the affected package, when known.
	Package string `json:"package,omitempty"`
}

// ArtifactRecord is the data payload for a single produced artifact.
type ArtifactRecord struct {
	build.Artifact

	// Package is the producing package.
	Package string `json:"package"`
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = errors.New("output writer is closed")

// WriteError wraps errors that occur during record writing.
type WriteError struct {
	// Op is the operation that failed (e.g., "marshal_data", "write").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return "output " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}
