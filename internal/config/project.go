// SPDX-License-Identifier: MPL-2.0

package config

import (
	_ "embed"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/akkumar/closure-util/internal/issue"
	"github.com/akkumar/closure-util/internal/manager"
	"github.com/akkumar/closure-util/pkg/cueutil"
)

//go:embed project_schema.cue
var projectSchema []byte

type (
	// Project describes one managed code base. Paths are absolute once
	// loaded.
	Project struct {
		// Dir is the directory of the project file.
		Dir string `json:"-"`
		// Cwd is the directory lib and main patterns are matched against.
		Cwd string `json:"cwd"`
		// Root is the directory served by the development server.
		Root           string         `json:"root"`
		Lib            []string       `json:"lib"`
		Main           []string       `json:"main"`
		IgnoreRequires string         `json:"ignoreRequires,omitempty"`
		Closure        bool           `json:"closure"`
		Loader         string         `json:"loader,omitempty"`
		Socket         bool           `json:"socket"`
		Port           int            `json:"port,omitempty"`
		Host           string         `json:"host,omitempty"`
		Watch          bool           `json:"watch"`
		JVM            []string       `json:"jvm,omitempty"`
		Compile        map[string]any `json:"compile,omitempty"`
	}

	// projectFile is the decoded document. Lib and Main accept a single
	// pattern or a list.
	projectFile struct {
		Cwd            string         `json:"cwd"`
		Root           string         `json:"root"`
		Lib            any            `json:"lib"`
		Main           any            `json:"main"`
		IgnoreRequires string         `json:"ignoreRequires"`
		Closure        bool           `json:"closure"`
		Loader         string         `json:"loader"`
		Socket         bool           `json:"socket"`
		Port           int            `json:"port"`
		Host           string         `json:"host"`
		Watch          bool           `json:"watch"`
		JVM            []string       `json:"jvm"`
		Compile        map[string]any `json:"compile"`
	}
)

// LoadProject reads and validates the project file at path. A relative cwd
// resolves against the file's directory and a relative root against cwd;
// both default to the directory they resolve against.
func LoadProject(path string) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	result, err := cueutil.ReadAndDecode[projectFile](projectSchema, abs, "#Project", cueutil.WithConcrete(true))
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load project").
			WithResource(path).
			WithSuggestion("Check that the file is valid JSON or CUE").
			WithSuggestion("Verify lib and main are a pattern or a list of patterns").
			WithIssue(issue.ProjectConfigInvalidId).
			Wrap(err).
			BuildError()
	}
	f := result.Value

	lib, err := patterns("lib", f.Lib)
	if err != nil {
		return nil, err
	}
	main, err := patterns("main", f.Main)
	if err != nil {
		return nil, err
	}

	p := &Project{
		Dir:            filepath.Dir(abs),
		Lib:            lib,
		Main:           main,
		IgnoreRequires: f.IgnoreRequires,
		Closure:        f.Closure,
		Loader:         f.Loader,
		Socket:         f.Socket,
		Port:           f.Port,
		Host:           f.Host,
		Watch:          f.Watch,
		JVM:            f.JVM,
		Compile:        f.Compile,
	}
	p.Cwd = resolve(p.Dir, f.Cwd)
	p.Root = resolve(p.Cwd, f.Root)
	return p, nil
}

// ManagerConfig returns the manager parameters for p.
func (p *Project) ManagerConfig(s *Settings, logger *log.Logger) manager.Config {
	cfg := manager.Config{
		Root:           p.Cwd,
		Lib:            p.Lib,
		Main:           p.Main,
		IgnoreRequires: p.IgnoreRequires,
		Closure:        p.Closure,
		Watch:          p.Watch,
		Logger:         logger,
	}
	if s != nil {
		cfg.ClosureLibrary = s.LibraryPath
		cfg.Debounce = s.Debounce
	}
	return cfg
}

// Addr returns the listen address, falling back to s for unset fields.
func (p *Project) Addr(s *Settings) string {
	host, port := p.Host, p.Port
	if host == "" {
		host = s.Host
	}
	if port == 0 {
		port = s.Port
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// LoaderPrefix returns the loader path, falling back to s.
func (p *Project) LoaderPrefix(s *Settings) string {
	if p.Loader != "" {
		return p.Loader
	}
	return s.Loader
}

func resolve(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, filepath.FromSlash(p))
}

func patterns(field string, v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d]: expected string, got %T", field, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("%s: expected string or list, got %T", field, v)
	}
}
