// SPDX-License-Identifier: MPL-2.0

// Package script models a single managed JavaScript source file and extracts
// the goog.provide/goog.require declarations that place it in the dependency graph.
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// BaseName is the namespace provided by a script carrying the @provideGoog marker.
const BaseName = "goog"

const (
	// RoleLibrary marks a script matched by a library pattern.
	RoleLibrary Role = iota
	// RoleMain marks a script matched by a main pattern. Main scripts are only
	// ordered when explicitly requested as an entry.
	RoleMain
)

type (
	// Role tags how a script was discovered.
	Role int

	// Script is an immutable record for one managed file. A reparse produces
	// a new Script; existing values are never modified.
	Script struct {
		// Path is the absolute, cleaned file path and the script's identity.
		Path string
		// Source is the raw file text. Synthetic scripts carry no source.
		Source []byte
		// Provides lists the names this script defines, in declaration order.
		Provides []string
		// Requires lists the names this script depends on, after ignore filtering.
		Requires []string
		Role     Role
		ModTime  time.Time

		// Base is set when the file carries @provideGoog.
		Base bool
		// Manifest is set when the file contains goog.addDependency declarations.
		Manifest bool
		// Declared holds the synthetic scripts described by a manifest.
		Declared []*Script

		// Synthetic is set for entries created from a manifest declaration.
		Synthetic bool
		// DeclaredBy is the manifest path that produced a synthetic entry.
		DeclaredBy string
	}
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleLibrary:
		return "library"
	case RoleMain:
		return "main"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// New parses src and returns the Script for path. When the file is a
// dependency manifest, the synthetic scripts it declares are attached as
// Declared with paths resolved against the manifest's directory.
func New(path string, src []byte, role Role, modTime time.Time, opts Options) (*Script, error) {
	path = filepath.Clean(path)
	res, err := Parse(path, src, opts)
	if err != nil {
		return nil, err
	}

	s := &Script{
		Path:     path,
		Source:   src,
		Provides: res.Provides,
		Requires: res.Requires,
		Role:     role,
		ModTime:  modTime,
		Base:     res.Base,
		Manifest: len(res.Declarations) > 0,
	}

	dir := filepath.Dir(path)
	for _, decl := range res.Declarations {
		declPath := decl.Path
		if !filepath.IsAbs(declPath) {
			declPath = filepath.Join(dir, filepath.FromSlash(declPath))
		}
		s.Declared = append(s.Declared, &Script{
			Path:       filepath.Clean(declPath),
			Provides:   decl.Provides,
			Requires:   decl.Requires,
			Role:       RoleLibrary,
			Synthetic:  true,
			DeclaredBy: path,
		})
	}

	return s, nil
}

// Load reads path from disk and parses it.
func Load(path string, role Role, opts Options) (*Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(path, src, role, info.ModTime(), opts)
}

// HasDeclarations reports whether the script takes part in ordering on its own.
func (s *Script) HasDeclarations() bool {
	return len(s.Provides) > 0 || len(s.Requires) > 0
}

// Contents returns the text served for the script. Synthetic scripts are read
// from disk on each call since the manifest never carried their source.
func (s *Script) Contents() ([]byte, error) {
	if !s.Synthetic {
		return s.Source, nil
	}
	return os.ReadFile(s.Path)
}
