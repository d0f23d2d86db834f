// SPDX-License-Identifier: MPL-2.0

package script

import (
	"errors"
	"path/filepath"
	"regexp"
	"slices"
	"testing"
	"time"
)

func TestParse_ProvidesAndRequires(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		src          string
		wantProvides []string
		wantRequires []string
	}{
		{
			name:         "empty file",
			src:          "",
			wantProvides: nil,
			wantRequires: nil,
		},
		{
			name: "provide and require",
			src: `goog.provide('fruit');

goog.require('food');

fruit.eat = function() {};
`,
			wantProvides: []string{"fruit"},
			wantRequires: []string{"food"},
		},
		{
			name: "double quotes and spacing",
			src: `  goog.provide( "a.b" );
goog.require ("c.d");`,
			wantProvides: []string{"a.b"},
			wantRequires: []string{"c.d"},
		},
		{
			name: "goog.module with assigned requires",
			src: `goog.module('app.main');
const dom = goog.require('goog.dom');
const {assert, fail} = goog.require('goog.asserts');
let x = goog.require('x');`,
			wantProvides: []string{"app.main"},
			wantRequires: []string{"goog.dom", "goog.asserts", "x"},
		},
		{
			name: "duplicates collapse",
			src: `goog.provide('a');
goog.provide('a');
goog.require('b');
goog.require('b');`,
			wantProvides: []string{"a"},
			wantRequires: []string{"b"},
		},
		{
			name: "commented declarations are skipped",
			src: `// goog.require('nope');
/*
 * goog.provide('nope');
 */
goog.provide('yes');`,
			wantProvides: []string{"yes"},
			wantRequires: nil,
		},
		{
			name: "wrapped destructuring require",
			src: `goog.module('app.main');
const {
  Foo,
  Bar,
} = goog.require('app.dep');
const {
  Baz,
} =
    goog.require('app.other');
`,
			wantProvides: []string{"app.main"},
			wantRequires: []string{"app.dep", "app.other"},
		},
		{
			name: "wrapped provide and require",
			src: `goog.provide(
    'app.some.very.long.namespace');
goog.require(
    'app.some.other.long.namespace'
);
const longName =
    goog.require('app.assigned');`,
			wantProvides: []string{"app.some.very.long.namespace"},
			wantRequires: []string{"app.some.other.long.namespace", "app.assigned"},
		},
		{
			name: "plain destructuring is not a require",
			src: `goog.provide('a');
const {
  x,
  y,
} = point;
goog.require('b');`,
			wantProvides: []string{"a"},
			wantRequires: []string{"b"},
		},
		{
			name:         "requireType does not add an edge",
			src:          `goog.requireType('types');`,
			wantProvides: nil,
			wantRequires: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := Parse("/src/file.js", []byte(tt.src), Options{})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if !slices.Equal(res.Provides, tt.wantProvides) {
				t.Errorf("Provides = %v, want %v", res.Provides, tt.wantProvides)
			}
			if !slices.Equal(res.Requires, tt.wantRequires) {
				t.Errorf("Requires = %v, want %v", res.Requires, tt.wantRequires)
			}
		})
	}
}

func TestParse_IgnoreRequires(t *testing.T) {
	t.Parallel()

	src := `goog.provide('main');
goog.require('carrot');
goog.require('meat.beef');
goog.require('meat.pork');
goog.require('eggplant');`

	res, err := Parse("/src/main.js", []byte(src), Options{IgnoreRequires: regexp.MustCompile(`^meat\..*`)})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := []string{"carrot", "eggplant"}
	if !slices.Equal(res.Requires, want) {
		t.Errorf("Requires = %v, want %v", res.Requires, want)
	}
}

func TestParse_BaseMarker(t *testing.T) {
	t.Parallel()

	src := `/**
 * @fileoverview Bootstrap for the Closure Library.
 * @provideGoog
 */
goog.provide = function(name) {};
goog.require = function(namespace) {};
goog.require(namespace);`

	res, err := Parse("/lib/closure/goog/base.js", []byte(src), Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !res.Base {
		t.Error("expected Base to be set")
	}
	if !slices.Equal(res.Provides, []string{BaseName}) {
		t.Errorf("Provides = %v, want [goog]", res.Provides)
	}
	if len(res.Requires) != 0 {
		t.Errorf("Requires = %v, want none", res.Requires)
	}
}

func TestParse_Manifest(t *testing.T) {
	t.Parallel()

	src := `// generated
goog.addDependency('math.js', ['math'], []);
goog.addDependency("../app/main.js", ["app.main"], ["math", 'meat.x'], {'lang': 'es6'});
goog.addDependency('empty.js', [], [], false);
`
	res, err := Parse("/src/deps.js", []byte(src), Options{IgnoreRequires: regexp.MustCompile(`^meat\.`)})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Provides) != 0 || len(res.Requires) != 0 {
		t.Errorf("manifest should declare nothing itself, got provides=%v requires=%v", res.Provides, res.Requires)
	}
	if len(res.Declarations) != 3 {
		t.Fatalf("got %d declarations, want 3", len(res.Declarations))
	}

	main := res.Declarations[1]
	if main.Path != "../app/main.js" {
		t.Errorf("Path = %q", main.Path)
	}
	if !slices.Equal(main.Provides, []string{"app.main"}) {
		t.Errorf("Provides = %v", main.Provides)
	}
	if !slices.Equal(main.Requires, []string{"math"}) {
		t.Errorf("Requires = %v, want [math]", main.Requires)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		src      string
		wantLine int
	}{
		{name: "non-literal provide", src: "goog.provide(name);", wantLine: 1},
		{name: "empty provide", src: "\ngoog.provide('');", wantLine: 2},
		{name: "non-literal require", src: "goog.provide('a');\n\ngoog.require(dep);", wantLine: 3},
		{name: "unterminated require", src: "goog.require('a'", wantLine: 1},
		{name: "bad manifest list", src: "goog.addDependency('a.js', [a], []);", wantLine: 1},
		{name: "manifest without lists", src: "goog.addDependency('a.js');", wantLine: 1},
		{name: "wrapped non-literal provide", src: "goog.provide('a');\ngoog.provide(\n    name);", wantLine: 2},
		{name: "unterminated wrapped require", src: "const {\n  A,\n} = goog.require(\n  'a'", wantLine: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse("/src/bad.js", []byte(tt.src), Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrParse) {
				t.Errorf("error should wrap ErrParse, got %v", err)
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if perr.Path != "/src/bad.js" {
				t.Errorf("Path = %q", perr.Path)
			}
			if perr.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", perr.Line, tt.wantLine)
			}
		})
	}
}

func TestParse_WrappedManifest(t *testing.T) {
	t.Parallel()

	src := `goog.addDependency('a.js',
    ['a'],
    ['b', 'c'], {'lang': 'es6'});
`
	res, err := Parse("/src/deps.js", []byte(src), Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Declarations) != 1 {
		t.Fatalf("got %d declarations, want 1", len(res.Declarations))
	}
	decl := res.Declarations[0]
	if decl.Path != "a.js" || !slices.Equal(decl.Provides, []string{"a"}) || !slices.Equal(decl.Requires, []string{"b", "c"}) {
		t.Errorf("unexpected declaration %+v", decl)
	}
}

func TestParse_MalformedTextIsCompacted(t *testing.T) {
	t.Parallel()

	_, err := Parse("/src/bad.js", []byte("goog.require(\n    dep);"), Options{})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Text != "goog.require( dep);" {
		t.Errorf("Text = %q", perr.Text)
	}
}

func TestNew_SyntheticScripts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	manifest := filepath.Join(dir, "deps.js")
	src := []byte(`goog.addDependency('math.js', ['math'], []);
goog.addDependency('sub/main.js', ['main'], ['math']);`)

	s, err := New(manifest, src, RoleLibrary, time.Now(), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !s.Manifest {
		t.Error("expected Manifest to be set")
	}
	if s.HasDeclarations() {
		t.Error("manifest should have no declarations of its own")
	}
	if len(s.Declared) != 2 {
		t.Fatalf("got %d synthetic scripts, want 2", len(s.Declared))
	}

	main := s.Declared[1]
	if main.Path != filepath.Join(dir, "sub", "main.js") {
		t.Errorf("Path = %q", main.Path)
	}
	if !main.Synthetic || main.DeclaredBy != manifest {
		t.Errorf("synthetic fields not set: %+v", main)
	}
	if main.Role != RoleLibrary {
		t.Errorf("Role = %v, want library", main.Role)
	}
}

func TestScript_Contents(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "math.js")
	writeFile(t, path, "var math = {};")

	direct := &Script{Path: path, Source: []byte("in memory")}
	got, err := direct.Contents()
	if err != nil || string(got) != "in memory" {
		t.Errorf("Contents() = %q, %v", got, err)
	}

	synthetic := &Script{Path: path, Synthetic: true}
	got, err = synthetic.Contents()
	if err != nil || string(got) != "var math = {};" {
		t.Errorf("synthetic Contents() = %q, %v", got, err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "car.js")
	writeFile(t, path, "goog.provide('car');\ngoog.require('vehicle');\n")

	s, err := Load(path, RoleMain, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Role != RoleMain || s.ModTime.IsZero() {
		t.Errorf("unexpected script %+v", s)
	}
	if !slices.Equal(s.Requires, []string{"vehicle"}) {
		t.Errorf("Requires = %v", s.Requires)
	}

	if _, err := Load(filepath.Join(dir, "missing.js"), RoleLibrary, Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}
