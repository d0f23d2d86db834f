// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/akkumar/closure-util/internal/dag"
	"github.com/akkumar/closure-util/internal/manager"
	"github.com/akkumar/closure-util/internal/script"
)

const contentTypeScript = "application/javascript"

// matchLoader classifies a request path. It returns the effective prefix and
// the remainder of the path after it.
func (s *Server) matchLoader(p string) (prefix, rest string, ok bool) {
	if s.cfg.LoaderPattern != nil {
		loc := s.cfg.LoaderPattern.FindStringIndex(p)
		if loc == nil || loc[1] == loc[0] {
			return "", "", false
		}
		return p[loc[0]:loc[1]], p[loc[1]:], true
	}
	if !strings.HasPrefix(p, s.loader) {
		return "", "", false
	}
	return s.loader, p[len(s.loader):], true
}

func (s *Server) serveLoader(w http.ResponseWriter, r *http.Request, prefix, rest string) {
	if rest == "" {
		s.serveBootstrap(w, r, prefix)
		return
	}

	p := s.scriptPath(rest)
	sc, err := s.cfg.Source.Script(p)
	if err != nil {
		if errors.Is(err, manager.ErrNotManaged) {
			http.Error(w, "Script not being managed: "+p, http.StatusNotFound)
			return
		}
		s.internalError(w, err)
		return
	}

	src, err := sc.Contents()
	if err != nil {
		s.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeScript)
	w.Header().Set("Content-Length", strconv.Itoa(len(src)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(src)
}

// serveBootstrap renders the script that loads every dependency of the
// requested main in order.
func (s *Server) serveBootstrap(w http.ResponseWriter, r *http.Request, prefix string) {
	main := s.mainFor(r)
	if main != "" {
		if _, err := s.cfg.Source.Script(main); err != nil {
			if errors.Is(err, manager.ErrNotManaged) {
				s.tmpl.renderError(w, "Main script not in manager paths: "+main)
				return
			}
			s.internalError(w, err)
			return
		}
	}

	deps, err := s.cfg.Source.Dependencies(main)
	if err != nil {
		if isGraphError(err) {
			s.tmpl.renderError(w, err.Error())
			return
		}
		s.internalError(w, err)
		return
	}

	paths := make([]string, len(deps))
	for i, dep := range deps {
		paths[i] = prefix + scriptURLPath(dep.Path)
	}
	encoded, err := json.Marshal(paths)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.tmpl.renderLoad(w, loadData{
		Root:   "http://" + r.Host,
		Paths:  string(encoded),
		Socket: !s.cfg.DisableSocket,
		Live:   s.livePath,
	})
}

// mainFor derives the entry script from the main query parameter. A
// relative main resolves against the directory of the referring page, or
// the root when there is no referrer.
func (s *Server) mainFor(r *http.Request) string {
	if s.cfg.MainFunc != nil {
		return s.cfg.MainFunc(r)
	}

	main := r.URL.Query().Get("main")
	if main == "" {
		return ""
	}
	main = filepath.FromSlash(main)
	if filepath.IsAbs(main) {
		return filepath.Clean(main)
	}

	from := s.root
	if ref := r.Referer(); ref != "" {
		if u, err := url.Parse(ref); err == nil {
			from = filepath.Join(from, filepath.FromSlash(path.Dir(u.Path)))
		}
	}
	return filepath.Join(from, main)
}

// scriptPath maps the part of a loader URL after the prefix to a file path.
func (s *Server) scriptPath(rest string) string {
	p := filepath.FromSlash(rest)
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	return filepath.Clean(p)
}

// scriptURLPath renders an absolute file path as an escaped URL path.
func scriptURLPath(p string) string {
	slashed := filepath.ToSlash(p)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return (&url.URL{Path: slashed}).EscapedPath()
}

func isGraphError(err error) bool {
	return errors.Is(err, dag.ErrCycle) ||
		errors.Is(err, dag.ErrDuplicateProvide) ||
		errors.Is(err, dag.ErrUnresolvedRequire) ||
		errors.Is(err, script.ErrParse)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
