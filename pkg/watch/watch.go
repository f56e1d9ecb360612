// Package watch triggers package rebuilds on filesystem changes.
//
// Change bursts are debounced per package, and rebuild dispatch is rate
// limited so a misbehaving tool that touches files continuously cannot
// spin the build loop.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultDebounce is how long a package must stay quiet before its
	// rebuild fires.
	DefaultDebounce = 500 * time.Millisecond

	// DefaultRebuildInterval is the minimum spacing between rebuild
	// dispatches across all packages.
	DefaultRebuildInterval = 2 * time.Second
)

// Func is called for each debounced change, with the package name.
type Func func(ctx context.Context, pkg string)

// Target is one watched package.
type Target struct {
	// Name is the package name passed to the rebuild function.
	Name string

	// Dir is the absolute package directory.
	Dir string

	// Ignore lists directory names under Dir that never trigger
	// rebuilds, typically the output directory.
	Ignore []string
}

// Watcher dispatches debounced rebuilds for a set of packages.
type Watcher struct {
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewWatcher creates a watcher with default debounce and rate limit.
func NewWatcher() *Watcher {
	return &Watcher{
		debounce: DefaultDebounce,
		limiter:  rate.NewLimiter(rate.Every(DefaultRebuildInterval), 1),
		logger:   zap.NewNop(),
	}
}

// WithDebounce overrides the per-package quiet period. Returns the
// watcher for chaining.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// WithLimiter overrides the rebuild dispatch limiter. Returns the
// watcher for chaining.
func (w *Watcher) WithLimiter(l *rate.Limiter) *Watcher {
	if l != nil {
		w.limiter = l
	}
	return w
}

// WithLogger attaches a structured logger. Returns the watcher for
// chaining.
func (w *Watcher) WithLogger(l *zap.Logger) *Watcher {
	if l != nil {
		w.logger = l
	}
	return w
}

// Watch blocks, dispatching rebuilds until the context is cancelled.
// Rebuilds run sequentially on the watch goroutine; a slow build delays
// later dispatches rather than overlapping them.
func (w *Watcher) Watch(ctx context.Context, targets []Target, rebuild Func) error {
	if len(targets) == 0 {
		return errors.New("no packages to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	for _, target := range targets {
		if err := addRecursive(fsw, target); err != nil {
			return err
		}
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	fire := make(chan string, len(targets))

	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			target, ok := match(targets, event.Name)
			if !ok {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = fsw.Add(event.Name)
				}
			}

			mu.Lock()
			if t, ok := timers[target.Name]; ok {
				t.Reset(w.debounce)
			} else {
				name := target.Name
				timers[name] = time.AfterFunc(w.debounce, func() {
					// The timer unregisters itself before handing off,
					// so a change arriving after this point starts a
					// fresh debounce cycle instead of resetting a timer
					// that has already fired. Delivery blocks when the
					// channel is full; a fire is never dropped.
					mu.Lock()
					delete(timers, name)
					mu.Unlock()
					select {
					case fire <- name:
					case <-ctx.Done():
					}
				})
			}
			mu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case pkg := <-fire:
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
			w.logger.Info("change detected, rebuilding", zap.String("package", pkg))
			rebuild(ctx, pkg)
		}
	}
}

// addRecursive watches the target directory and every non-ignored
// subdirectory.
func addRecursive(fsw *fsnotify.Watcher, target Target) error {
	return filepath.Walk(target.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != target.Dir && skipDir(target, path) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func skipDir(target Target, path string) bool {
	base := filepath.Base(path)
	if base == "node_modules" || strings.HasPrefix(base, ".") {
		return true
	}

	rel, err := filepath.Rel(target.Dir, path)
	if err != nil {
		return false
	}
	first := strings.Split(filepath.ToSlash(rel), "/")[0]
	for _, ignored := range target.Ignore {
		if first == ignored {
			return true
		}
	}
	return false
}

// match finds the target owning a changed path, taking the longest
// matching directory so nested packages resolve to the inner one.
func match(targets []Target, path string) (Target, bool) {
	var (
		best  Target
		found bool
	)
	for _, target := range targets {
		rel, err := filepath.Rel(target.Dir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		if ignored(target, rel) {
			continue
		}
		if !found || len(target.Dir) > len(best.Dir) {
			best = target
			found = true
		}
	}
	return best, found
}

func ignored(target Target, rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, part := range parts[:max(len(parts)-1, 0)] {
		if part == "node_modules" || strings.HasPrefix(part, ".") {
			return true
		}
	}
	if len(parts) == 0 {
		return false
	}
	first := parts[0]
	for _, ig := range target.Ignore {
		if first == ig {
			return true
		}
	}
	return false
}
