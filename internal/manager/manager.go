// SPDX-License-Identifier: MPL-2.0

// Package manager keeps the dependency graph of a set of managed scripts
// current. It discovers files by glob, parses them in parallel, validates the
// graph, and then reparses files as they change on disk, reporting readiness,
// errors and updates through subscriptions.
package manager

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/akkumar/closure-util/internal/core/lifecycle"
	"github.com/akkumar/closure-util/internal/dag"
	"github.com/akkumar/closure-util/internal/discovery"
	"github.com/akkumar/closure-util/internal/script"
	"github.com/akkumar/closure-util/internal/watch"
)

// DefaultCacheSize is the number of parse results kept by content digest.
const DefaultCacheSize = 4096

// graphErrorKey is the Errors() slot for whole-graph failures.
const graphErrorKey = ""

// closureExcludes keep Closure Library tests and demos out of the graph.
var closureExcludes = []string{"**/*_test.js", "**/demos/**", "**/testing/**/*_test*.js"}

type (
	// Config holds the parameters of a Manager.
	Config struct {
		// Root is the directory relative patterns are matched against.
		// Empty means the working directory.
		Root string
		// Lib are glob patterns for library scripts.
		Lib []string
		// Main are glob patterns for entry scripts.
		Main []string
		// IgnoreRequires is a regular expression; matching required names
		// are dropped before graph construction.
		IgnoreRequires string
		// Closure adds the Closure Library under ClosureLibrary to Lib.
		Closure bool
		// ClosureLibrary is the directory containing closure/goog/base.js.
		ClosureLibrary string
		// Watch enables incremental updates from the file system.
		Watch bool
		// Debounce is the quiet period before a batch of changes is applied.
		Debounce time.Duration
		// Workers bounds parallel parsing at startup. Zero means NumCPU.
		Workers int
		// CacheSize bounds the parse cache. Zero means DefaultCacheSize.
		CacheSize int
		// PreWatch, when set, runs synchronously after EventPreWatch is
		// published and before watchers are armed. Closing the manager from
		// it prevents watching.
		PreWatch func()
		Logger   *log.Logger
	}

	// Manager owns the script table, the name index and the file watchers.
	// Queries are safe for concurrent use; changes are applied serially.
	Manager struct {
		cfg       Config
		logger    *log.Logger
		life      *lifecycle.Base
		disc      *discovery.Discovery
		parseOpts script.Options
		cache     *lru.Cache[cacheKey, *script.Script]
		events    *bus

		// startMu serializes arming the watcher with Close.
		startMu sync.Mutex
		watcher *watch.Watcher

		mu      sync.RWMutex
		scripts map[string]*script.Script
		order   []string
		index   *dag.Index
		errs    map[string]error
	}

	cacheKey struct {
		path   string
		role   script.Role
		digest [sha256.Size]byte
	}
)

// New validates cfg and returns a Manager in the initializing state. Call
// Subscribe to observe events, then Start.
func New(cfg Config) (*Manager, error) {
	root := cfg.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		root = wd
	}

	var ignore *regexp.Regexp
	if cfg.IgnoreRequires != "" {
		re, err := regexp.Compile(cfg.IgnoreRequires)
		if err != nil {
			return nil, fmt.Errorf("invalid ignoreRequires pattern: %w", err)
		}
		ignore = re
	}

	lib := slices.Clone(cfg.Lib)
	var opts []discovery.Option
	if cfg.Closure {
		if cfg.ClosureLibrary == "" {
			return nil, errors.New("closure library directory is required when closure is enabled")
		}
		goog, err := filepath.Abs(filepath.Join(cfg.ClosureLibrary, "closure", "goog"))
		if err != nil {
			return nil, fmt.Errorf("resolve closure library: %w", err)
		}
		lib = append(lib, filepath.ToSlash(goog)+"/**/*.js")
		opts = append(opts, discovery.WithExclude(closureExcludes...))
	}

	disc, err := discovery.New(root, lib, cfg.Main, opts...)
	if err != nil {
		return nil, err
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, *script.Script](size)
	if err != nil {
		return nil, fmt.Errorf("create parse cache: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger = logger.WithPrefix("manager")

	return &Manager{
		cfg:       cfg,
		logger:    logger,
		life:      lifecycle.New(),
		disc:      disc,
		parseOpts: script.Options{IgnoreRequires: ignore},
		cache:     cache,
		events:    newBus(logger),
		scripts:   make(map[string]*script.Script),
		errs:      make(map[string]error),
	}, nil
}

// Root returns the absolute directory relative patterns are matched against.
func (m *Manager) Root() string { return m.disc.Root() }

// State returns the lifecycle state.
func (m *Manager) State() lifecycle.State { return m.life.State() }

// WaitReady blocks until the initial resolution settled. It returns the
// startup error if the manager failed.
func (m *Manager) WaitReady(ctx context.Context) error { return m.life.WaitReady(ctx) }

// Subscribe registers a new event consumer. Subscribing to a closed manager
// returns an already-closed subscription.
func (m *Manager) Subscribe() *Subscription {
	return m.events.subscribe()
}

// Unsubscribe cancels a subscription and closes its channel.
func (m *Manager) Unsubscribe(id uuid.UUID) {
	m.events.unsubscribe(id)
}

// Start discovers and parses every script, validates the whole-library
// order and, when watching is enabled, arms the file watchers. On failure
// it publishes EventError, moves to the error state and returns the error.
func (m *Manager) Start(ctx context.Context) error {
	if s := m.life.State(); s == lifecycle.StateClosing || s == lifecycle.StateClosed {
		return &ClosedManagerError{Op: "start"}
	}
	if err := m.life.Begin(ctx); err != nil {
		if m.life.State() == lifecycle.StateFailed {
			m.events.publish(Event{Kind: EventError, Err: err})
		}
		return err
	}

	start := time.Now()
	scripts, idx, err := m.initialLoad(ctx)
	if err != nil {
		if m.life.Fail(err) {
			m.logger.Error("initial resolution failed", "error", err)
			m.events.publish(Event{Kind: EventError, Err: err})
		}
		return err
	}

	m.mu.Lock()
	for _, s := range scripts {
		m.scripts[s.Path] = s
		m.order = append(m.order, s.Path)
	}
	m.index = idx
	m.mu.Unlock()

	m.logger.Info("scripts resolved", "count", idx.Len(), "elapsed", time.Since(start).Round(time.Millisecond))

	if m.cfg.Watch {
		m.events.publish(Event{Kind: EventPreWatch})
		if m.cfg.PreWatch != nil {
			m.cfg.PreWatch()
		}
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.life.State() != lifecycle.StateInitializing {
		return &ClosedManagerError{Op: "start"}
	}

	if m.cfg.Watch {
		if err := m.armWatcher(); err != nil {
			if m.life.Fail(err) {
				m.events.publish(Event{Kind: EventError, Err: err})
			}
			return err
		}
	}

	m.life.MarkReady()
	m.events.publish(Event{Kind: EventReady})
	return nil
}

func (m *Manager) initialLoad(ctx context.Context) ([]*script.Script, *dag.Index, error) {
	files, err := m.disc.Discover()
	if err != nil {
		return nil, nil, err
	}

	scripts, err := m.parseAll(ctx, files)
	if err != nil {
		return nil, nil, err
	}

	idx, err := dag.Build(scripts)
	if err != nil {
		return nil, nil, err
	}
	if _, err := idx.ResolveAll(); err != nil {
		return nil, nil, err
	}
	return scripts, idx, nil
}

// parseAll parses files on a bounded worker pool, keeping discovery order.
func (m *Manager) parseAll(ctx context.Context, files []discovery.DiscoveredFile) ([]*script.Script, error) {
	workers := m.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*script.Script, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := m.load(f.Path, f.Role)
			if err != nil {
				return err
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// load reads and parses one file, reusing the cached result when the
// content is unchanged.
func (m *Manager) load(path string, role script.Role) (*script.Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	key := cacheKey{path: path, role: role, digest: sha256.Sum256(src)}
	if cached, ok := m.cache.Get(key); ok {
		cp := *cached
		cp.ModTime = info.ModTime()
		return &cp, nil
	}

	s, err := script.New(path, src, role, info.ModTime(), m.parseOpts)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, s)
	return s, nil
}

func (m *Manager) armWatcher() error {
	w, err := watch.New(watch.Config{
		Dirs:     m.disc.Dirs(),
		Debounce: m.cfg.Debounce,
		Filter: func(path string) bool {
			_, ok := m.disc.Classify(path)
			return ok
		},
		OnChange: m.applyChanges,
		Logger:   m.logger,
	})
	if err != nil {
		return err
	}
	m.watcher = w

	m.life.Go(func(ctx context.Context) {
		if err := w.Run(ctx); err != nil {
			m.logger.Error("watcher stopped", "error", err)
			m.events.publish(Event{Kind: EventError, Err: err})
		}
	})
	m.logger.Debug("watching", "dirs", m.disc.Dirs())
	return nil
}

// applyChanges reparses or removes each changed path, rebuilds the index
// and publishes the outcome. It runs on the watcher goroutine, one batch
// at a time.
func (m *Manager) applyChanges(ctx context.Context, changed []string) error {
	if ctx.Err() != nil || m.life.State() != lifecycle.StateReady {
		return nil
	}

	var pending []Event

	m.mu.Lock()
	for _, path := range changed {
		role, managed := m.disc.Classify(path)
		_, known := m.scripts[path]
		_, hadErr := m.errs[path]

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) || !managed {
			if known {
				delete(m.scripts, path)
				m.order = slices.DeleteFunc(m.order, func(p string) bool { return p == path })
			}
			delete(m.errs, path)
			if known || hadErr {
				m.logger.Info("script removed", "path", path)
				pending = append(pending, Event{Kind: EventUpdate})
			}
			continue
		}

		s, err := m.load(path, role)
		if err != nil {
			m.errs[path] = err
			m.logger.Error("reparse failed", "path", path, "error", err)
			pending = append(pending, Event{Kind: EventError, Err: err, Path: path})
			continue
		}

		if !known {
			m.order = append(m.order, path)
		}
		m.scripts[path] = s
		delete(m.errs, path)
		m.logger.Info("script updated", "path", path)
		pending = append(pending, Event{Kind: EventUpdate, Script: s, Path: path})
	}

	graphErr := m.rebuildLocked()
	m.mu.Unlock()

	for _, ev := range pending {
		m.events.publish(ev)
	}
	if graphErr != nil {
		m.logger.Error("graph invalid", "error", graphErr)
		m.events.publish(Event{Kind: EventError, Err: graphErr})
	}
	return nil
}

// rebuildLocked rebuilds the index from the script table. A table that
// cannot be indexed keeps the previous index; a graph that indexes but does
// not resolve replaces it so unaffected entries remain queryable.
func (m *Manager) rebuildLocked() error {
	list := make([]*script.Script, 0, len(m.order))
	for _, path := range m.order {
		list = append(list, m.scripts[path])
	}

	idx, err := dag.Build(list)
	if err == nil {
		m.index = idx
		_, err = idx.ResolveAll()
	}

	if err != nil {
		m.errs[graphErrorKey] = err
		return err
	}
	delete(m.errs, graphErrorKey)
	return nil
}

func (m *Manager) checkQuery(op string) error {
	switch m.life.State() {
	case lifecycle.StateReady:
		return nil
	case lifecycle.StateClosing, lifecycle.StateClosed:
		return &ClosedManagerError{Op: op}
	default:
		return ErrNotReady
	}
}

func (m *Manager) snapshot() *dag.Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index
}

// Dependencies returns the load order for the script at main, or the
// whole-library order when main is empty. The order is computed from the
// current graph on every call.
func (m *Manager) Dependencies(main string) ([]*script.Script, error) {
	if err := m.checkQuery("dependencies"); err != nil {
		return nil, err
	}
	idx := m.snapshot()

	if main == "" {
		return idx.ResolveAll()
	}
	entry, ok := idx.Script(filepath.Clean(main))
	if !ok {
		return nil, &NotManagedError{Path: main}
	}
	return idx.Resolve(entry)
}

// Script returns the managed script at path.
func (m *Manager) Script(path string) (*script.Script, error) {
	if err := m.checkQuery("script"); err != nil {
		return nil, err
	}
	s, ok := m.snapshot().Script(filepath.Clean(path))
	if !ok {
		return nil, &NotManagedError{Path: path}
	}
	return s, nil
}

// Scripts returns every managed script in discovery order.
func (m *Manager) Scripts() ([]*script.Script, error) {
	if err := m.checkQuery("scripts"); err != nil {
		return nil, err
	}
	return m.snapshot().Scripts(), nil
}

// Errors returns the errors recorded since the manager became ready that a
// later successful reparse has not superseded, ordered by path with the
// whole-graph error first.
func (m *Manager) Errors() ([]error, error) {
	if err := m.checkQuery("errors"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.errs))
	for k := range m.errs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]error, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.errs[k])
	}
	return out, nil
}

// Close releases the watchers and publishes EventClosed once. Subsequent
// queries fail with ClosedManagerError. Close is idempotent.
func (m *Manager) Close() error {
	m.startMu.Lock()
	began := m.life.BeginClose()
	m.startMu.Unlock()
	if !began {
		return nil
	}

	// The watcher goroutine exits on cancellation; a batch in flight
	// finishes first.
	m.life.Wait()
	m.startMu.Lock()
	if m.watcher != nil {
		_ = m.watcher.Close()
	}
	m.startMu.Unlock()

	m.events.close(Event{Kind: EventClosed})
	m.life.MarkClosed()
	m.logger.Debug("closed")
	return nil
}
