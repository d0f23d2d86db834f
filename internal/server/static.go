// SPDX-License-Identifier: MPL-2.0

package server

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const indexFile = "index.html"

// serveStatic serves files below the root. Directories are served through
// their index.html or, failing that, a generated listing.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	upath := r.URL.Path
	if !strings.HasPrefix(upath, "/") {
		upath = "/" + upath
	}
	clean := path.Clean(upath)
	if hasDotSegment(clean) {
		http.NotFound(w, r)
		return
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))
	if !within(s.root, full) {
		http.Error(w, "Outside root", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	if err != nil {
		s.staticError(w, r, err)
		return
	}

	if !info.IsDir() {
		s.serveFile(w, r, full)
		return
	}

	if !strings.HasSuffix(upath, "/") {
		target := upath + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	index := filepath.Join(full, indexFile)
	if st, err := os.Stat(index); err == nil && !st.IsDir() {
		s.serveFile(w, r, index)
		return
	}
	s.serveListing(w, upath, full)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, name string) {
	f, err := os.Open(name)
	if err != nil {
		s.staticError(w, r, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.staticError(w, r, err)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// serveListing renders the entries of dir, skipping dot-prefixed names.
func (s *Server) serveListing(w http.ResponseWriter, pathname, dir string) {
	items, err := os.ReadDir(dir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]listingEntry, 0, len(items)+1)
	if pathname != "/" {
		entries = append(entries, listingEntry{Path: "..", Name: "..", Dir: true})
	}
	for _, item := range items {
		name := item.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		// Follow symlinks so linked directories list as directories.
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		entry := listingEntry{Path: name, Name: name, Dir: info.IsDir()}
		if entry.Dir {
			entry.Path += "/"
		}
		entries = append(entries, entry)
	}

	s.tmpl.renderListing(w, listingData{Pathname: pathname, Entries: entries})
}

func (s *Server) staticError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		http.NotFound(w, r)
	case errors.Is(err, fs.ErrPermission):
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	default:
		s.internalError(w, err)
	}
}

func hasDotSegment(p string) bool {
	for seg := range strings.SplitSeq(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
