// SPDX-License-Identifier: MPL-2.0

// Package dag indexes managed scripts by the names they provide and resolves
// load orders by depth-first, post-order traversal of their requirements.
package dag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akkumar/closure-util/internal/script"
)

var (
	// ErrCycle is the sentinel wrapped by CycleError.
	ErrCycle = errors.New("dependency cycle detected")
	// ErrDuplicateProvide is the sentinel wrapped by DuplicateProvideError.
	ErrDuplicateProvide = errors.New("name provided more than once")
	// ErrUnresolvedRequire is the sentinel wrapped by UnresolvedRequireError.
	ErrUnresolvedRequire = errors.New("required name has no provider")
)

type (
	// CycleError indicates that a traversal re-entered a script that was still
	// on the stack, preventing a valid load order.
	CycleError struct {
		// Cycle lists the script paths forming the cycle, starting and ending
		// with the script where the cycle was entered.
		Cycle []string
	}

	// DuplicateProvideError indicates that two scripts provide the same name.
	DuplicateProvideError struct {
		Name  string
		Paths []string
	}

	// UnresolvedRequireError indicates a required name with no provider.
	UnresolvedRequireError struct {
		Name string
		// Path is the script that requires Name.
		Path string
	}

	// Index maps provided names and paths to scripts. It is built once per
	// change to the script table and is safe for concurrent reads.
	Index struct {
		// scripts holds every indexed script in discovery order.
		scripts []*script.Script
		byPath  map[string]*script.Script
		byName  map[string]*script.Script
		// base is the script providing "goog", if any.
		base *script.Script
		// manifests are emitted after every other script in a non-empty order.
		manifests []*script.Script
	}

	resolver struct {
		idx     *Index
		visited map[*script.Script]bool
		onStack map[*script.Script]bool
		stack   []*script.Script
		order   []*script.Script
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCycle for errors.Is checks.
func (e *CycleError) Unwrap() error { return ErrCycle }

func (e *DuplicateProvideError) Error() string {
	return fmt.Sprintf("%s: %q is provided by %s", ErrDuplicateProvide, e.Name, strings.Join(e.Paths, " and "))
}

// Unwrap returns ErrDuplicateProvide for errors.Is checks.
func (e *DuplicateProvideError) Unwrap() error { return ErrDuplicateProvide }

func (e *UnresolvedRequireError) Error() string {
	return fmt.Sprintf("%s: %q required by %s", ErrUnresolvedRequire, e.Name, e.Path)
}

// Unwrap returns ErrUnresolvedRequire for errors.Is checks.
func (e *UnresolvedRequireError) Unwrap() error { return ErrUnresolvedRequire }

// Build indexes scripts, given in discovery order. Synthetic scripts declared
// by manifests are indexed at their manifest's position unless a discovered
// script (or an earlier manifest) already claims the same path.
// Returns DuplicateProvideError if two scripts provide the same name.
func Build(scripts []*script.Script) (*Index, error) {
	idx := &Index{
		byPath: make(map[string]*script.Script, len(scripts)),
		byName: make(map[string]*script.Script),
	}

	for _, s := range scripts {
		idx.byPath[s.Path] = s
	}

	for _, s := range scripts {
		for _, decl := range s.Declared {
			if _, taken := idx.byPath[decl.Path]; taken {
				continue
			}
			idx.byPath[decl.Path] = decl
			if err := idx.add(decl); err != nil {
				return nil, err
			}
		}
		if err := idx.add(s); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

func (x *Index) add(s *script.Script) error {
	x.scripts = append(x.scripts, s)
	if s.Manifest {
		x.manifests = append(x.manifests, s)
	}
	if s.Base && x.base == nil {
		x.base = s
	}
	for _, name := range s.Provides {
		if other, ok := x.byName[name]; ok && other != s {
			return &DuplicateProvideError{Name: name, Paths: []string{other.Path, s.Path}}
		}
		x.byName[name] = s
	}
	return nil
}

// Len returns the number of indexed scripts, synthetic ones included.
func (x *Index) Len() int { return len(x.scripts) }

// Scripts returns the indexed scripts in discovery order.
func (x *Index) Scripts() []*script.Script {
	out := make([]*script.Script, len(x.scripts))
	copy(out, x.scripts)
	return out
}

// Script returns the script indexed under path.
func (x *Index) Script(path string) (*script.Script, bool) {
	s, ok := x.byPath[path]
	return s, ok
}

// Provider returns the script providing name.
func (x *Index) Provider(name string) (*script.Script, bool) {
	s, ok := x.byName[name]
	return s, ok
}

// Resolve returns the load order for entry: every transitive requirement
// exactly once, each before the scripts requiring it, ending with entry.
func (x *Index) Resolve(entry *script.Script) ([]*script.Script, error) {
	r := x.newResolver()
	if err := r.visit(entry); err != nil {
		return nil, err
	}
	return x.finish(r.order), nil
}

// ResolveAll returns the combined load order of every library script in
// discovery order. Main scripts and scripts without declarations are only
// included when a library script requires them.
func (x *Index) ResolveAll() ([]*script.Script, error) {
	r := x.newResolver()
	for _, s := range x.scripts {
		if s.Role != script.RoleLibrary || !s.HasDeclarations() {
			continue
		}
		if err := r.visit(s); err != nil {
			return nil, err
		}
	}
	return x.finish(r.order), nil
}

func (x *Index) newResolver() *resolver {
	return &resolver{
		idx:     x,
		visited: make(map[*script.Script]bool),
		onStack: make(map[*script.Script]bool),
	}
}

// finish moves the base script to the front and manifests to the back of a
// non-empty order.
func (x *Index) finish(order []*script.Script) []*script.Script {
	if len(order) == 0 {
		return nil
	}

	out := make([]*script.Script, 0, len(order)+1+len(x.manifests))
	if x.base != nil {
		out = append(out, x.base)
	}
	for _, s := range order {
		if s == x.base || s.Manifest {
			continue
		}
		out = append(out, s)
	}
	out = append(out, x.manifests...)
	return out
}

func (r *resolver) visit(s *script.Script) error {
	if r.visited[s] {
		return nil
	}
	if r.onStack[s] {
		return r.cycleFrom(s)
	}

	r.onStack[s] = true
	r.stack = append(r.stack, s)

	for _, name := range s.Requires {
		dep, ok := r.idx.byName[name]
		if !ok {
			return &UnresolvedRequireError{Name: name, Path: s.Path}
		}
		if dep == s {
			continue
		}
		if err := r.visit(dep); err != nil {
			return err
		}
	}

	r.stack = r.stack[:len(r.stack)-1]
	delete(r.onStack, s)
	r.visited[s] = true
	r.order = append(r.order, s)
	return nil
}

func (r *resolver) cycleFrom(s *script.Script) error {
	start := 0
	for i, on := range r.stack {
		if on == s {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(r.stack)-start+1)
	for _, on := range r.stack[start:] {
		cycle = append(cycle, on.Path)
	}
	cycle = append(cycle, s.Path)
	return &CycleError{Cycle: cycle}
}
