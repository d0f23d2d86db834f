// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"errors"
	"slices"
	"testing"

	"github.com/akkumar/closure-util/internal/script"
)

func lib(path string, provides []string, requires ...string) *script.Script {
	return &script.Script{Path: path, Provides: provides, Requires: requires, Role: script.RoleLibrary}
}

func mainScript(path string, requires ...string) *script.Script {
	return &script.Script{Path: path, Requires: requires, Role: script.RoleMain}
}

func base(path string) *script.Script {
	return &script.Script{Path: path, Provides: []string{script.BaseName}, Base: true, Role: script.RoleLibrary}
}

func paths(scripts []*script.Script) []string {
	out := make([]string, len(scripts))
	for i, s := range scripts {
		out[i] = s.Path
	}
	return out
}

func mustBuild(t *testing.T, scripts ...*script.Script) *Index {
	t.Helper()
	idx, err := Build(scripts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return idx
}

func TestResolveAll_Empty(t *testing.T) {
	t.Parallel()
	idx := mustBuild(t)
	order, err := idx.ResolveAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Errorf("expected nil, got %v", paths(order))
	}
}

func TestResolveAll_LinearChain(t *testing.T) {
	t.Parallel()
	// Discovered alphabetically, required in the opposite order.
	idx := mustBuild(t,
		lib("banana.js", []string{"banana"}, "fruit"),
		base("base.js"),
		lib("food.js", []string{"food"}),
		lib("fruit.js", []string{"fruit"}, "food"),
	)

	order, err := idx.ResolveAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"base.js", "food.js", "fruit.js", "banana.js"}
	if !slices.Equal(paths(order), expected) {
		t.Errorf("expected %v, got %v", expected, paths(order))
	}
}

func TestResolveAll_ExcludesMains(t *testing.T) {
	t.Parallel()
	idx := mustBuild(t,
		base("base.js"),
		lib("boat.js", []string{"boat"}, "vehicle", "fuel"),
		lib("car.js", []string{"car"}, "vehicle", "fuel"),
		lib("fuel.js", []string{"fuel"}),
		lib("truck.js", []string{"truck"}, "vehicle", "fuel"),
		lib("vehicle.js", []string{"vehicle"}),
		mainScript("main-boat.js", "boat"),
		mainScript("main-car.js", "car"),
	)

	order, err := idx.ResolveAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := paths(order)
	expected := []string{"base.js", "vehicle.js", "fuel.js", "boat.js", "car.js", "truck.js"}
	if !slices.Equal(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
	for _, p := range got {
		if p == "main-boat.js" || p == "main-car.js" {
			t.Errorf("main script %s in library order", p)
		}
	}
}

func TestResolve_Entry(t *testing.T) {
	t.Parallel()
	idx := mustBuild(t,
		base("base.js"),
		lib("boat.js", []string{"boat"}, "vehicle", "fuel"),
		lib("car.js", []string{"car"}, "fuel", "vehicle"),
		lib("fuel.js", []string{"fuel"}),
		lib("vehicle.js", []string{"vehicle"}),
		mainScript("main-boat.js", "boat"),
		mainScript("main-car.js", "car"),
	)

	entry, _ := idx.Script("main-car.js")
	order, err := idx.Resolve(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"base.js", "fuel.js", "vehicle.js", "car.js", "main-car.js"}
	if !slices.Equal(paths(order), expected) {
		t.Errorf("expected %v, got %v", expected, paths(order))
	}
}

func TestResolve_Diamond(t *testing.T) {
	t.Parallel()
	// d requires b and c, both require a.
	idx := mustBuild(t,
		lib("a.js", []string{"a"}),
		lib("b.js", []string{"b"}, "a"),
		lib("c.js", []string{"c"}, "a"),
		mainScript("d.js", "b", "c"),
	)

	entry, _ := idx.Script("d.js")
	order, err := idx.Resolve(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"a.js", "b.js", "c.js", "d.js"}
	if !slices.Equal(paths(order), expected) {
		t.Errorf("expected %v, got %v", expected, paths(order))
	}
}

func TestResolveAll_SkipsScriptsWithoutDeclarations(t *testing.T) {
	t.Parallel()
	idx := mustBuild(t,
		base("base.js"),
		lib("child.js", []string{"child"}, "parent"),
		lib("extra.js", nil),
		lib("parent.js", []string{"parent"}),
	)

	order, err := idx.ResolveAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"base.js", "parent.js", "child.js"}
	if !slices.Equal(paths(order), expected) {
		t.Errorf("expected %v, got %v", expected, paths(order))
	}
}

func TestResolve_SelfRequire(t *testing.T) {
	t.Parallel()
	idx := mustBuild(t, lib("a.js", []string{"a", "a.sub"}, "a.sub"))
	entry, _ := idx.Script("a.js")
	order, err := idx.Resolve(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(paths(order), []string{"a.js"}) {
		t.Errorf("got %v", paths(order))
	}
}

func TestResolve_Cycle(t *testing.T) {
	t.Parallel()
	idx := mustBuild(t,
		lib("a.js", []string{"a"}, "b"),
		lib("b.js", []string{"b"}, "c"),
		lib("c.js", []string{"c"}, "a"),
	)

	_, err := idx.ResolveAll()
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !errors.Is(err, ErrCycle) {
		t.Errorf("error should wrap ErrCycle, got %v", err)
	}
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	expected := []string{"a.js", "b.js", "c.js", "a.js"}
	if !slices.Equal(cycleErr.Cycle, expected) {
		t.Errorf("expected cycle %v, got %v", expected, cycleErr.Cycle)
	}
}

func TestResolve_Unresolved(t *testing.T) {
	t.Parallel()
	idx := mustBuild(t, lib("a.js", []string{"a"}, "missing"))

	_, err := idx.ResolveAll()
	var unresolved *UnresolvedRequireError
	if !errors.As(err, &unresolved) {
		t.Fatalf("expected *UnresolvedRequireError, got %v", err)
	}
	if unresolved.Name != "missing" || unresolved.Path != "a.js" {
		t.Errorf("unexpected error fields: %+v", unresolved)
	}
	if !errors.Is(err, ErrUnresolvedRequire) {
		t.Error("error should wrap ErrUnresolvedRequire")
	}
}

func TestBuild_DuplicateProvide(t *testing.T) {
	t.Parallel()
	_, err := Build([]*script.Script{
		lib("one.js", []string{"dup"}),
		lib("two.js", []string{"dup"}),
	})
	var dup *DuplicateProvideError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *DuplicateProvideError, got %v", err)
	}
	if dup.Name != "dup" || !slices.Equal(dup.Paths, []string{"one.js", "two.js"}) {
		t.Errorf("unexpected error fields: %+v", dup)
	}
	if !errors.Is(err, ErrDuplicateProvide) {
		t.Error("error should wrap ErrDuplicateProvide")
	}
}

func TestResolve_Manifest(t *testing.T) {
	t.Parallel()
	manifest := &script.Script{
		Path:     "lib/deps.js",
		Role:     script.RoleLibrary,
		Manifest: true,
	}
	manifest.Declared = []*script.Script{
		{Path: "lib/math.js", Provides: []string{"math"}, Role: script.RoleLibrary, Synthetic: true, DeclaredBy: manifest.Path},
		{Path: "lib/extra.js", Provides: []string{"extra"}, Requires: []string{"math"}, Role: script.RoleLibrary, Synthetic: true, DeclaredBy: manifest.Path},
	}
	discoveredMath := lib("lib/math.js", []string{"math"})

	idx := mustBuild(t,
		base("goog/base.js"),
		manifest,
		discoveredMath,
		mainScript("main.js", "math"),
	)

	// The discovered file wins over the synthetic entry with the same path.
	got, _ := idx.Script("lib/math.js")
	if got != discoveredMath {
		t.Error("discovered script should take precedence over synthetic entry")
	}
	extra, ok := idx.Script("lib/extra.js")
	if !ok || !extra.Synthetic {
		t.Fatal("synthetic script should be indexed")
	}

	entry, _ := idx.Script("main.js")
	order, err := idx.Resolve(entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"goog/base.js", "lib/math.js", "main.js", "lib/deps.js"}
	if !slices.Equal(paths(order), expected) {
		t.Errorf("expected %v, got %v", expected, paths(order))
	}

	all, err := idx.ResolveAll()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected = []string{"goog/base.js", "lib/math.js", "lib/extra.js", "lib/deps.js"}
	if !slices.Equal(paths(all), expected) {
		t.Errorf("expected %v, got %v", expected, paths(all))
	}
}

func TestIndex_Lookups(t *testing.T) {
	t.Parallel()
	a := lib("a.js", []string{"a", "a.b"})
	idx := mustBuild(t, a, lib("c.js", []string{"c"}))

	if idx.Len() != 2 {
		t.Errorf("Len() = %d, want 2", idx.Len())
	}
	if p, ok := idx.Provider("a.b"); !ok || p != a {
		t.Error("Provider(a.b) should return a.js")
	}
	if _, ok := idx.Provider("nope"); ok {
		t.Error("Provider(nope) should not be found")
	}
	scripts := idx.Scripts()
	scripts[0] = nil
	if idx.Scripts()[0] != a {
		t.Error("Scripts() should return a copy")
	}
}
