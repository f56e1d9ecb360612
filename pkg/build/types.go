// Package build defines the shared data model for build execution:
// job lifecycle, normalized results, artifacts, and structured build errors.
//
// These types are the contract between the build service, the adapter
// registry, and every builder backend. A Result is immutable once returned;
// callers own it and nothing in this module mutates it afterwards.
package build

import "time"

// Status is the lifecycle state of a build attempt.
//
// NOTE: These values appear in JSON output and are part of the stable
// CLI/API contract.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailure    Status = "failure"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Target selects the build profile passed through to backends.
type Target string

const (
	TargetDevelopment Target = "development"
	TargetProduction  Target = "production"
	TargetTest        Target = "test"
)

// Artifact is a single output file produced by a build.
//
// Path is relative to the package root. Checksum is a hex-encoded SHA-256
// over the file bytes, recomputed fresh on every build (never cached or
// diffed). RemoteURI is set only when an artifact store is configured and
// the upload succeeded.
type Artifact struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
	RemoteURI string `json:"remote_uri,omitempty"`
}

// Error is a structured build diagnostic.
//
// Produced either by a backend's own diagnostics (with optional source
// location) or by the service wrapping an unexpected failure (message and
// stack only).
type Error struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Result is the terminal, immutable record of one build attempt.
//
// Invariants:
//   - Status == StatusFailure implies len(Artifacts) == 0 and len(Errors) > 0
//   - Status == StatusSuccess implies len(Errors) == 0
type Result struct {
	JobID      string     `json:"job_id"`
	Package    string     `json:"package"`
	Status     Status     `json:"status"`
	ExitCode   int        `json:"exit_code"`
	DurationMS int64      `json:"duration_ms"`
	Artifacts  []Artifact `json:"artifacts"`
	Logs       []string   `json:"logs"`
	Errors     []Error    `json:"errors"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Job tracks one build invocation while it is in flight.
//
// Jobs are created at the start of a build, mutated only by the build
// service, and discarded after the call returns. They are never persisted
// across process runs; only terminal Results reach the history journal.
type Job struct {
	ID        string
	Package   string
	InputHash string
	Status    Status
	StartedAt time.Time
	Logs      []string
}

// Options are the caller-supplied modifiers for a single build.
type Options struct {
	// Clean removes the configured output directory before building.
	Clean bool

	// Target selects the build profile. Empty means TargetDevelopment.
	Target Target

	// Verbose enables detailed logging and stack traces in output.
	Verbose bool

	// Env is merged over the process environment for backend invocations.
	Env map[string]string
}

// Failure builds a terminal failure Result for the given job.
//
// The result carries zero artifacts and the provided errors, with the
// duration measured from the job's original start time.
func Failure(job *Job, exitCode int, errs ...Error) *Result {
	now := time.Now().UTC()
	return &Result{
		JobID:      job.ID,
		Package:    job.Package,
		Status:     StatusFailure,
		ExitCode:   exitCode,
		DurationMS: now.Sub(job.StartedAt).Milliseconds(),
		Artifacts:  nil,
		Logs:       job.Logs,
		Errors:     errs,
		StartedAt:  job.StartedAt,
		FinishedAt: now,
	}
}
