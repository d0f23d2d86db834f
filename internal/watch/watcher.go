// SPDX-License-Identifier: MPL-2.0

// Package watch delivers debounced batches of file-system changes.
//
// It monitors one or more directory trees and invokes a callback after a
// quiet period. Events within the debounce window are coalesced so the
// callback fires once with the full set of changed paths. Callbacks never
// overlap: a batch runs to completion before the next one starts.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the delay before firing the callback after the last
// filesystem event. Editors that write then rename a temp file produce
// several events for one save.
const DefaultDebounce = 100 * time.Millisecond

// ErrAlreadyRunning is returned when Run is called more than once.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

// defaultIgnores lists path patterns that never trigger callbacks.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.#*",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Dirs are the directory trees to watch. An empty slice watches the
		// current working directory.
		Dirs []string

		// Ignore are additional doublestar patterns, matched against the path
		// relative to its watched directory, that never trigger callbacks.
		Ignore []string

		// Filter selects which absolute file paths are reported. A nil Filter
		// reports every non-ignored path.
		Filter func(path string) bool

		// Debounce is the quiet period after the last event before the
		// callback fires. Zero or negative values fall back to DefaultDebounce.
		Debounce time.Duration

		// OnChange receives the deduplicated, sorted absolute paths that were
		// created, written, renamed or removed during the debounce window.
		OnChange func(ctx context.Context, changed []string) error

		// Logger receives watcher diagnostics. nil discards them.
		Logger *log.Logger
	}

	// Watcher monitors directory trees and fires a debounced callback when
	// matching files change. Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		dirs     []string
		logger   *log.Logger
		debounce time.Duration
		started  atomic.Bool
	}
)

// New creates a Watcher. Every directory under cfg.Dirs is registered before
// New returns, so changes made after New are observed once Run starts.
func New(cfg Config) (*Watcher, error) {
	dirs := cfg.Dirs
	if len(dirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("watch: determine working directory: %w", err)
		}
		dirs = []string{wd}
	}

	absDirs := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve directory %q: %w", dir, err)
		}
		absDirs = append(absDirs, abs)
	}

	if err := validatePatterns(cfg.Ignore); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  slices.Concat(defaultIgnores, cfg.Ignore),
		dirs:     absDirs,
		logger:   logger,
		debounce: debounce,
	}

	for _, dir := range absDirs {
		if err := w.addDirectories(dir); err != nil {
			if closeErr := fsw.Close(); closeErr != nil {
				logger.Warn("close after init failure", "error", closeErr)
			}
			return nil, err
		}
	}

	return w, nil
}

// Close releases the watch handles of a Watcher whose Run was never called.
func (w *Watcher) Close() error {
	if w.started.Load() {
		return nil
	}
	return w.fsw.Close()
}

// Run blocks until ctx is cancelled, processing filesystem events and
// dispatching debounced callbacks. It returns nil on cancellation and
// propagates fatal watcher errors.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
		// callMu is held for the duration of a callback; stopped is set under
		// it once Run is returning so no callback starts afterwards.
		callMu  sync.Mutex
		stopped bool
	)

	// fire may be scheduled by time.AfterFunc after ctx is cancelled. The
	// skip-if-busy guard keeps callbacks serial when one outlasts the
	// debounce period; the pending set is retried rather than dropped.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		callMu.Lock()
		defer callMu.Unlock()
		if stopped || ctx.Err() != nil {
			return
		}
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("change callback failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		// A callback already in flight finishes before Run returns.
		callMu.Lock()
		stopped = true
		callMu.Unlock()
		if closeErr := w.fsw.Close(); closeErr != nil {
			w.logger.Warn("close fsnotify", "error", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			if evt.Op == fsnotify.Chmod {
				continue
			}

			path := filepath.Clean(evt.Name)
			if w.isIgnored(path) {
				continue
			}

			paths := []string{path}
			// Extend recursive watches to directories created after startup.
			// Files written into them before the watch was added are reported
			// as part of the same batch.
			if evt.Has(fsnotify.Create) {
				if isDir, files := w.maybeAddDir(path); isDir {
					paths = files
				}
			}

			w.logger.Debug("file event", "op", evt.Op.String(), "path", path)

			mu.Lock()
			queued := false
			for _, p := range paths {
				if w.cfg.Filter != nil && !w.cfg.Filter(p) {
					continue
				}
				pending[p] = struct{}{}
				queued = true
			}
			if queued {
				if timer == nil {
					timer = time.AfterFunc(w.debounce, fire)
				} else {
					timer.Reset(w.debounce)
				}
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

// addDirectories registers root and every non-ignored directory below it.
func (w *Watcher) addDirectories(root string) error {
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			// Inaccessible directories are skipped rather than aborting the walk.
			w.logger.Warn("skipping inaccessible path", "path", path, "error", walkDirErr)
			return nil //nolint:nilerr // intentional skip
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.isIgnored(path) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk directory tree: %w", walkErr)
	}
	return nil
}

// maybeAddDir registers path if it is a new, non-ignored directory. It
// reports whether path is a directory and returns the files already in it.
func (w *Watcher) maybeAddDir(path string) (bool, []string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false, nil
	}
	if err := w.addDirectories(path); err != nil {
		w.logger.Warn("add new directory", "path", path, "error", err)
	}

	var files []string
	_ = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort listing
		}
		if d.IsDir() {
			if p != path && w.isIgnored(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.isIgnored(p) {
			files = append(files, filepath.Clean(p))
		}
		return nil
	})
	return true, files
}

// isIgnored matches path, relative to the watched directory containing it,
// against the ignore patterns.
func (w *Watcher) isIgnored(path string) bool {
	rel := w.relative(path)
	if rel == "" {
		return false
	}
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
		// Directory patterns like "**/.git/**" also cover the directory itself.
		if matched, matchErr := doublestar.Match(pat, normalized+"/"); matchErr == nil && matched {
			return true
		}
	}
	return false
}

func (w *Watcher) relative(path string) string {
	for _, dir := range w.dirs {
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return rel
	}
	return ""
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	return slices.Clone(defaultIgnores)
}

func validatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid ignore pattern %q", pat)
		}
	}
	return nil
}
