// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/akkumar/closure-util/internal/core/lifecycle"
	"github.com/akkumar/closure-util/internal/manager"
	"github.com/akkumar/closure-util/internal/script"
)

const (
	// DefaultLoader is the URL prefix of loader requests.
	DefaultLoader = "/@"
	// DefaultLivePath is the URL path of the push channel.
	DefaultLivePath = "/@live"
	// DefaultAddr is the listen address used when Config.Addr is empty.
	DefaultAddr = "127.0.0.1:3000"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// ErrNoSource is returned by New when Config.Source is nil.
var ErrNoSource = errors.New("server: no script source configured")

type (
	// Source is the view of the dependency manager the server needs.
	// *manager.Manager satisfies it.
	Source interface {
		Dependencies(main string) ([]*script.Script, error)
		Script(path string) (*script.Script, error)
		Errors() ([]error, error)
		Subscribe() *manager.Subscription
		Unsubscribe(id uuid.UUID)
	}

	// Config holds the parameters of a Server.
	Config struct {
		// Source answers dependency and script queries.
		Source Source
		// Root is the directory static files are served from and relative
		// main paths are resolved against. Empty means the working directory.
		Root string
		// Loader is the literal URL prefix of loader requests. Empty means
		// DefaultLoader. Ignored when LoaderPattern is set.
		Loader string
		// LoaderPattern, when set, classifies loader requests instead of
		// Loader. The first match in the request path is the effective prefix.
		LoaderPattern *regexp.Regexp
		// DisableSocket turns off the push channel.
		DisableSocket bool
		// LivePath is the URL path of the push channel. Empty means
		// DefaultLivePath.
		LivePath string
		// Addr is the TCP listen address. Empty means DefaultAddr.
		Addr string
		// MainFunc overrides how the entry script is derived from a loader
		// request. It returns an absolute path, or "" for the whole library.
		MainFunc func(r *http.Request) string
		Logger   *log.Logger
	}

	// Server is the development HTTP server. It is an http.Handler and can
	// also own a listener through Start and Stop.
	Server struct {
		cfg      Config
		root     string
		loader   string
		livePath string
		logger   *log.Logger
		life     *lifecycle.Base
		tmpl     *templates

		mu         sync.Mutex
		httpServer *http.Server
		listener   net.Listener

		// connMu orders push-connection registration with Stop.
		connMu sync.Mutex
		conns  sync.WaitGroup
	}
)

// New validates cfg and returns a Server that is ready to be used as a
// handler. Call Start to listen on cfg.Addr.
func New(cfg Config) (*Server, error) {
	if cfg.Source == nil {
		return nil, ErrNoSource
	}

	root := cfg.Root
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("server: resolve root: %w", err)
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	loader := cfg.Loader
	if loader == "" {
		loader = DefaultLoader
	}
	livePath := cfg.LivePath
	if livePath == "" {
		livePath = DefaultLivePath
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	return &Server{
		cfg:      cfg,
		root:     root,
		loader:   loader,
		livePath: livePath,
		logger:   logger,
		life:     lifecycle.New(),
		tmpl:     tmpl,
	}, nil
}

// Root returns the absolute static root.
func (s *Server) Root() string { return s.root }

// State returns the lifecycle state of the listener.
func (s *Server) State() lifecycle.State { return s.life.State() }

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.life.Begin(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stop may have run between Begin and here.
	if s.life.State() != lifecycle.StateInitializing {
		return errors.New("server: stopped before start")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		err = fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
		s.life.Fail(err)
		return err
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          s.logger.StandardLog(log.StandardLogOptions{ForceLevel: log.WarnLevel}),
	}
	s.listener = ln
	s.httpServer = srv

	s.life.Go(func(context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve", "error", err)
			s.life.SendError(fmt.Errorf("server: %w", err))
		}
	})

	s.life.MarkReady()
	s.logger.Info("listening", "url", "http://"+ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or the configured address
// before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	return "http://" + s.Addr()
}

// Stop shuts the listener down, closes push connections and waits for the
// serving goroutines. Stop is idempotent.
func (s *Server) Stop() error {
	if !s.life.BeginClose() {
		return nil
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("server: shutdown: %w", shutdownErr)
		}
	}

	// No push connection registers after this point.
	s.connMu.Lock()
	//nolint:staticcheck // empty critical section orders registration with Wait
	s.connMu.Unlock()
	s.conns.Wait()

	s.life.Wait()
	s.life.MarkClosed()
	s.logger.Debug("stopped")
	return err
}

// Run starts the server and blocks until ctx is cancelled or serving fails,
// then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-s.life.Err():
	}
	if err := s.Stop(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// ServeHTTP dispatches a request to the push channel, the loader protocol
// or static file serving.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.cfg.DisableSocket && r.URL.Path == s.livePath {
		s.serveLive(w, r)
		return
	}

	if prefix, rest, ok := s.matchLoader(r.URL.Path); ok {
		s.serveLoader(w, r, prefix, rest)
		return
	}

	s.serveStatic(w, r)
}
