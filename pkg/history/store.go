// Package history persists terminal build results in a local SQLite
// journal. The journal backs the `kiln list` history view and the
// content-hash build cache.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"

	"github.com/3leaps/kiln/pkg/build"
)

const driverLibsql = "libsql"

func init() {
	sql.Register(driverLibsql, &sqlite.Driver{})
}

// ErrNotFound indicates no matching journal entry exists.
var ErrNotFound = errors.New("history entry not found")

// Config configures the history journal.
type Config struct {
	// Path is a local filesystem path to the journal database.
	// ":memory:" opens an in-process database, useful for tests.
	Path string
}

// Entry is one recorded build attempt.
type Entry struct {
	ID         int64
	Package    string
	JobID      string
	Status     build.Status
	ExitCode   int
	DurationMS int64
	InputHash  string
	FinishedAt time.Time

	// Result is the full terminal result as recorded.
	Result *build.Result
}

// Store is a SQLite-backed journal of terminal build results.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the journal database.
//
// Local file parents are created if missing. WAL and busy_timeout are
// applied for predictable CLI behavior, and the pool is pinned to a
// single connection to avoid writer contention.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, dsn)
	if err != nil {
		return nil, fmt.Errorf("open history journal: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history journal: %w", err)
	}

	if err := configureLocalSQLite(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a terminal result to the journal. The input hash may be
// empty when caching is disabled for the package.
func (s *Store) Record(ctx context.Context, res *build.Result, inputHash string) error {
	if !res.Status.IsTerminal() {
		return fmt.Errorf("refusing to record non-terminal status %q", res.Status)
	}

	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO builds (package, job_id, status, exit_code, duration_ms, input_hash, finished_at, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Package,
		res.JobID,
		string(res.Status),
		res.ExitCode,
		res.DurationMS,
		inputHash,
		res.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(resultJSON),
	)
	if err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}

// LatestSuccess returns the most recent successful entry for a package.
// Returns ErrNotFound when the package has no recorded success.
func (s *Store) LatestSuccess(ctx context.Context, pkg string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, package, job_id, status, exit_code, duration_ms, input_hash, finished_at, result_json
		FROM builds
		WHERE package = ? AND status = ?
		ORDER BY id DESC
		LIMIT 1`,
		pkg, string(build.StatusSuccess),
	)
	return scanEntry(row)
}

// Recent returns up to limit entries for a package, newest first. An
// empty package returns entries across all packages.
func (s *Store) Recent(ctx context.Context, pkg string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, package, job_id, status, exit_code, duration_ms, input_hash, finished_at, result_json
		FROM builds`
	args := []any{}
	if pkg != "" {
		query += ` WHERE package = ?`
		args = append(args, pkg)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// rowScanner lets scanEntry work over both QueryRow and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry      Entry
		status     string
		finishedAt string
		resultJSON string
	)

	err := row.Scan(
		&entry.ID,
		&entry.Package,
		&entry.JobID,
		&status,
		&entry.ExitCode,
		&entry.DurationMS,
		&entry.InputHash,
		&finishedAt,
		&resultJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan history entry: %w", err)
	}

	entry.Status = build.Status(status)
	if ts, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
		entry.FinishedAt = ts
	}

	var res build.Result
	if err := json.Unmarshal([]byte(resultJSON), &res); err != nil {
		return nil, fmt.Errorf("decode recorded result: %w", err)
	}
	entry.Result = &res

	return &entry, nil
}

func buildDSN(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("history journal path is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func configureLocalSQLite(ctx context.Context, db *sql.DB, dsn string) error {
	if dsn == ":memory:" {
		// In-memory databases still need a pinned connection, otherwise
		// each pooled connection sees its own empty database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		return nil
	}
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}

	// Keep a single connection and use WAL to reduce lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	return nil
}

func ensureStoreDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 1)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS builds (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			package TEXT NOT NULL,
			job_id TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			input_hash TEXT NOT NULL DEFAULT '',
			finished_at TEXT NOT NULL,
			result_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_package ON builds(package, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_package_status ON builds(package, status, id DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return tx.Commit()
}
