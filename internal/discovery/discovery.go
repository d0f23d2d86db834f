// SPDX-License-Identifier: MPL-2.0

// Package discovery locates managed scripts by glob pattern and tags each one
// with the role of the pattern that matched it.
//
// Patterns use doublestar syntax (`**`, `{a,b}`). Relative patterns are
// matched against the configured root; absolute patterns are matched as-is,
// which lets a library checkout outside the project root take part.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/akkumar/closure-util/internal/script"
)

// ErrInvalidPattern is returned for malformed glob patterns.
var ErrInvalidPattern = errors.New("invalid glob pattern")

type (
	// DiscoveredFile is one matched script path with its role.
	DiscoveredFile struct {
		// Path is the absolute, cleaned file path.
		Path string
		Role script.Role
	}

	// Discovery resolves library and main patterns against a root directory.
	Discovery struct {
		root    string
		lib     []string
		main    []string
		exclude []string
	}

	// Option configures a Discovery.
	Option func(*Discovery)
)

// WithExclude adds patterns whose matches are never managed.
func WithExclude(patterns ...string) Option {
	return func(d *Discovery) {
		d.exclude = append(d.exclude, patterns...)
	}
}

// New creates a Discovery. Every pattern is validated up front.
func New(root string, lib, main []string, opts ...Option) (*Discovery, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}

	d := &Discovery{
		root: absRoot,
		lib:  normalize(lib),
		main: normalize(main),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.exclude = normalize(d.exclude)

	for _, group := range [][]string{d.lib, d.main, d.exclude} {
		for _, pat := range group {
			if !doublestar.ValidatePattern(pat) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pat)
			}
		}
	}

	return d, nil
}

func normalize(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, filepath.ToSlash(p))
	}
	return out
}

// Root returns the absolute root directory.
func (d *Discovery) Root() string { return d.root }

// Dirs returns the directories that contain every possible match: the root
// plus the static prefix of each absolute pattern. Nested directories are
// folded into their ancestor.
func (d *Discovery) Dirs() []string {
	dirs := []string{d.root}
	for _, pat := range slices.Concat(d.lib, d.main) {
		if !isAbs(pat) {
			continue
		}
		base, _ := doublestar.SplitPattern(pat)
		dirs = append(dirs, filepath.Clean(filepath.FromSlash(base)))
	}

	slices.Sort(dirs)
	dirs = slices.Compact(dirs)

	var out []string
	for _, dir := range dirs {
		nested := false
		for _, kept := range out {
			if within(kept, dir) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, dir)
		}
	}
	return out
}

// Discover returns every matching file in discovery order: library patterns
// first, then main patterns, each pattern's matches in lexical order. A file
// matched by a main pattern is a main script even if a library pattern also
// matches it.
func (d *Discovery) Discover() ([]DiscoveredFile, error) {
	mains := make(map[string]bool)
	var mainFiles []string
	for _, pat := range d.main {
		matches, err := d.glob(pat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !mains[m] {
				mains[m] = true
				mainFiles = append(mainFiles, m)
			}
		}
	}

	seen := make(map[string]bool)
	var files []DiscoveredFile
	for _, pat := range d.lib {
		matches, err := d.glob(pat)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if seen[m] || mains[m] {
				continue
			}
			seen[m] = true
			files = append(files, DiscoveredFile{Path: m, Role: script.RoleLibrary})
		}
	}
	for _, m := range mainFiles {
		files = append(files, DiscoveredFile{Path: m, Role: script.RoleMain})
	}

	return files, nil
}

// Classify reports the role of path and whether any pattern manages it.
func (d *Discovery) Classify(path string) (script.Role, bool) {
	path = filepath.Clean(path)
	if d.matchAny(d.exclude, path) {
		return 0, false
	}
	if d.matchAny(d.main, path) {
		return script.RoleMain, true
	}
	if d.matchAny(d.lib, path) {
		return script.RoleLibrary, true
	}
	return 0, false
}

func (d *Discovery) matchAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if d.match(pat, path) {
			return true
		}
	}
	return false
}

func (d *Discovery) match(pat, path string) bool {
	if isAbs(pat) {
		ok, _ := doublestar.Match(pat, filepath.ToSlash(path))
		return ok
	}
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		// Unanchored patterns still apply outside the root.
		if strings.HasPrefix(pat, "**/") {
			ok, _ := doublestar.Match(pat, strings.TrimPrefix(filepath.ToSlash(path), "/"))
			return ok
		}
		return false
	}
	ok, _ := doublestar.Match(pat, filepath.ToSlash(rel))
	return ok
}

// glob expands one pattern into sorted absolute file paths.
func (d *Discovery) glob(pat string) ([]string, error) {
	base, rest := d.root, pat
	if isAbs(pat) {
		b, r := doublestar.SplitPattern(pat)
		base, rest = filepath.FromSlash(b), r
	}

	info, err := os.Stat(base)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", base, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pattern base %s is not a directory", base)
	}

	matches, err := doublestar.Glob(os.DirFS(base), rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pat, err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		abs := filepath.Join(base, filepath.FromSlash(m))
		if d.matchAny(d.exclude, abs) {
			continue
		}
		out = append(out, abs)
	}
	slices.Sort(out)
	return out, nil
}

func isAbs(pat string) bool {
	return filepath.IsAbs(filepath.FromSlash(pat)) || strings.HasPrefix(pat, "/")
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
