// Package lock provides a filesystem-backed mutex keyed by package name.
//
// The primitive works across independent OS processes: atomically creating
// a directory under a shared lock root is the acquisition, and removing it
// is the release. A lock.json metadata file inside the directory records
// the holder for operator inspection and staleness judgement.
//
// Staleness is judged purely by the original acquisition timestamp; there
// is no heartbeat renewal. The stale threshold is therefore a hard ceiling
// on how long a holder may legitimately run before a contender is allowed
// to reclaim the lock.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultStaleAfter is the age past which a lock is presumed abandoned.
	DefaultStaleAfter = 5 * time.Minute

	// DefaultPollEvery is the fixed back-off between contended attempts.
	DefaultPollEvery = time.Second

	// DefaultAcquireTimeout bounds the total wait for a contended lock.
	DefaultAcquireTimeout = 5 * time.Minute

	metadataFile = "lock.json"
)

// ErrTimeout is returned when acquisition exceeds the wait budget.
var ErrTimeout = errors.New("lock acquisition timed out")

// Metadata is the persistent record written to lock.json.
type Metadata struct {
	Package    string    `json:"package"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// ReleaseFunc removes the lock directory. Removal is best-effort: a failed
// release is safe to ignore because staleness detection self-heals the
// orphaned directory on the next contended acquisition.
type ReleaseFunc func() error

// Manager acquires and releases package locks under a shared root.
//
// Two different package names never contend; only identical sanitized lock
// paths do. The Manager itself is stateless and safe for concurrent use.
type Manager struct {
	root       string
	staleAfter time.Duration
	pollEvery  time.Duration
}

// NewManager creates a lock manager rooted at the given directory.
func NewManager(root string) *Manager {
	return &Manager{
		root:       strings.TrimSpace(root),
		staleAfter: DefaultStaleAfter,
		pollEvery:  DefaultPollEvery,
	}
}

// WithStaleAfter overrides the staleness threshold.
// Returns the manager for method chaining.
func (m *Manager) WithStaleAfter(d time.Duration) *Manager {
	if d > 0 {
		m.staleAfter = d
	}
	return m
}

// WithPollEvery overrides the contention poll interval.
// Returns the manager for method chaining.
func (m *Manager) WithPollEvery(d time.Duration) *Manager {
	if d > 0 {
		m.pollEvery = d
	}
	return m
}

// RootDir returns the shared lock root directory.
func (m *Manager) RootDir() string {
	return m.root
}

// LockPath returns the deterministic lock directory for a package name.
func (m *Manager) LockPath(packageName string) string {
	return filepath.Join(m.root, SanitizeName(packageName))
}

// SanitizeName converts a package name into a filesystem-safe token.
//
// Scoped names like "@acme/web" become "-acme-web": every character outside
// [A-Za-z0-9._-] is replaced, so distinct names can collide only if they
// sanitize identically.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// Acquire obtains the lock for packageName, waiting up to timeout.
//
// A timeout of zero or less uses DefaultAcquireTimeout. On contention the
// existing lock's age is inspected: stale locks are forcibly removed and
// acquisition is retried immediately; live locks are polled at a fixed
// interval until the wait budget elapses, at which point ErrTimeout is
// returned. There is no fairness among waiters.
//
// Any filesystem error other than "already exists" propagates unretried.
func (m *Manager) Acquire(ctx context.Context, packageName string, timeout time.Duration) (ReleaseFunc, error) {
	if strings.TrimSpace(packageName) == "" {
		return nil, errors.New("package name is required")
	}
	if strings.TrimSpace(m.root) == "" {
		return nil, errors.New("lock root dir is empty")
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	if err := os.MkdirAll(m.root, 0755); err != nil {
		return nil, fmt.Errorf("create lock root: %w", err)
	}

	path := m.LockPath(packageName)
	deadline := time.Now().Add(timeout)

	for {
		err := os.Mkdir(path, 0755)
		if err == nil {
			if werr := m.writeMetadata(path, packageName); werr != nil {
				// A metadata-less lock is stolen as stale by any
				// contender; better to release and fail loudly.
				_ = os.RemoveAll(path)
				return nil, fmt.Errorf("write lock metadata: %w", werr)
			}
			return func() error { return os.RemoveAll(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}

		if m.isStale(path) {
			if rerr := os.RemoveAll(path); rerr != nil && !os.IsNotExist(rerr) {
				return nil, fmt.Errorf("remove stale lock: %w", rerr)
			}
			// Stale takeover retries immediately; a competing fresh
			// acquirer may win the re-created directory.
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: package %q held for longer than %s", ErrTimeout, packageName, timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.pollEvery):
		}
	}
}

// writeMetadata records the holder inside an already-acquired lock dir.
func (m *Manager) writeMetadata(path, packageName string) error {
	host, _ := os.Hostname()
	meta := Metadata{
		Package:    packageName,
		PID:        os.Getpid(),
		Hostname:   host,
		AcquiredAt: time.Now().UTC(),
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock metadata: %w", err)
	}
	b = append(b, '\n')

	return os.WriteFile(filepath.Join(path, metadataFile), b, 0644)
}

// ReadMetadata loads the holder record from an existing lock directory.
func (m *Manager) ReadMetadata(packageName string) (*Metadata, error) {
	return readMetadata(m.LockPath(packageName))
}

func readMetadata(path string) (*Metadata, error) {
	b, err := os.ReadFile(filepath.Join(path, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, fmt.Errorf("parse lock metadata: %w", err)
	}
	return &meta, nil
}

// isStale judges whether the lock at path is abandoned.
//
// Missing or unparseable metadata is stale outright: a lock that cannot
// prove a live holder does not get to block contenders.
func (m *Manager) isStale(path string) bool {
	meta, err := readMetadata(path)
	if err != nil {
		return true
	}
	return time.Since(meta.AcquiredAt) > m.staleAfter
}
