// SPDX-License-Identifier: MPL-2.0

package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/akkumar/closure-util/internal/script"
)

func touch(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("// "+rel), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func rels(t *testing.T, root string, files []DiscoveredFile) []string {
	t.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		rel, err := filepath.Rel(root, f.Path)
		if err != nil {
			t.Fatalf("rel: %v", err)
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

func TestDiscover_RolesAndOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	touch(t, root,
		"lib/vehicle.js",
		"lib/fuel.js",
		"lib/sub/boat.js",
		"goog/base.js",
		"main-car.js",
		"main-boat.js",
		"other/ignored.js",
	)

	d, err := New(root, []string{"{lib,goog}/**/*.js"}, []string{"main-*.js"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	files, err := d.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	got := rels(t, root, files)
	expected := []string{"goog/base.js", "lib/fuel.js", "lib/sub/boat.js", "lib/vehicle.js", "main-boat.js", "main-car.js"}
	if !slices.Equal(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	for _, f := range files {
		wantMain := filepath.Base(f.Path) == "main-boat.js" || filepath.Base(f.Path) == "main-car.js"
		if (f.Role == script.RoleMain) != wantMain {
			t.Errorf("%s has role %v", f.Path, f.Role)
		}
	}
}

func TestDiscover_MainWinsOverLibrary(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	touch(t, root, "src/a.js", "src/main.js")

	d, err := New(root, []string{"src/*.js"}, []string{"src/main.js"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	files, err := d.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[1].Role != script.RoleMain || filepath.Base(files[1].Path) != "main.js" {
		t.Errorf("main.js should be discovered once as main, got %+v", files)
	}
}

func TestDiscover_AbsolutePatternAndExclude(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	external := t.TempDir()
	touch(t, root, "app.js")
	touch(t, external, "closure/goog/base.js", "closure/goog/array/array.js", "closure/goog/array/array_test.js")

	libPattern := filepath.ToSlash(filepath.Join(external, "closure", "goog")) + "/**/*.js"
	d, err := New(root, []string{"*.js", libPattern}, nil, WithExclude("**/*_test.js"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	files, err := d.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f.Path))
	}
	expected := []string{"app.js", "array.js", "base.js"}
	if !slices.Equal(names, expected) {
		t.Errorf("expected %v, got %v", expected, names)
	}

	dirs := d.Dirs()
	if len(dirs) != 2 {
		t.Errorf("expected root and library dirs, got %v", dirs)
	}
}

func TestDiscover_MissingBase(t *testing.T) {
	t.Parallel()

	d, err := New(t.TempDir(), []string{"/definitely/not/here/**/*.js"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	files, err := d.Discover()
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir(), []string{"lib/[.js"}, nil)
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d, err := New(root, []string{"lib/**/*.js"}, []string{"main.js"}, WithExclude("**/node_modules/**"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		rel      string
		wantRole script.Role
		wantOK   bool
	}{
		{rel: "lib/a.js", wantRole: script.RoleLibrary, wantOK: true},
		{rel: "lib/deep/b.js", wantRole: script.RoleLibrary, wantOK: true},
		{rel: "main.js", wantRole: script.RoleMain, wantOK: true},
		{rel: "lib/a.css", wantOK: false},
		{rel: "lib/node_modules/x.js", wantOK: false},
		{rel: "../outside.js", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			t.Parallel()
			role, ok := d.Classify(filepath.Join(root, filepath.FromSlash(tt.rel)))
			if ok != tt.wantOK {
				t.Fatalf("Classify ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && role != tt.wantRole {
				t.Errorf("role = %v, want %v", role, tt.wantRole)
			}
		})
	}
}
