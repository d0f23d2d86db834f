// SPDX-License-Identifier: MPL-2.0

// Package build produces a single output file from a project: the managed
// scripts in dependency order, either concatenated or passed through the
// compiler.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/akkumar/closure-util/internal/compile"
	"github.com/akkumar/closure-util/internal/config"
	"github.com/akkumar/closure-util/internal/issue"
	"github.com/akkumar/closure-util/internal/manager"
	"github.com/akkumar/closure-util/internal/script"
)

// ErrIncomplete is returned when Options lacks a project or settings.
var ErrIncomplete = errors.New("build: project and settings are required")

// Options configures one build.
type Options struct {
	Project  *config.Project
	Settings *config.Settings
	// Output is the file written. Parent directories are created.
	Output string
	// Java overrides the JVM launcher.
	Java   string
	Logger *log.Logger
}

// Run resolves the project and writes the result to opts.Output. Without a
// compile section in the project the sources are concatenated.
func Run(ctx context.Context, opts Options) error {
	if opts.Project == nil || opts.Settings == nil {
		return ErrIncomplete
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	settings := opts.Settings

	deps, err := Order(ctx, opts.Project, settings, logger, "")
	if err != nil {
		return err
	}

	var out []byte
	if opts.Project.Compile == nil {
		logger.Info("concatenating sources", "count", len(deps))
		out, err = Concatenate(deps)
	} else {
		logger.Info("compiling sources", "count", len(deps))
		out, err = compileScripts(ctx, opts, settings, deps, logger)
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return issue.WrapWithContext(err, "create output directory", filepath.Dir(opts.Output))
	}
	if err := os.WriteFile(opts.Output, out, 0o644); err != nil {
		return issue.WrapWithContext(err, "write output", opts.Output)
	}
	logger.Info("wrote output", "path", opts.Output, "bytes", len(out))
	return nil
}

// Order runs a non-watching manager over project and returns its scripts in
// load order for main. With an empty main, a project with exactly one main
// script is ordered for that script; otherwise the whole library is.
func Order(ctx context.Context, project *config.Project, settings *config.Settings, logger *log.Logger, main string) ([]*script.Script, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	cfg := project.ManagerConfig(settings, logger.WithPrefix("manager"))
	cfg.Watch = false

	m, err := manager.New(cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close manager", "error", err)
		}
	}()

	if err := m.Start(ctx); err != nil {
		return nil, err
	}

	if main != "" {
		return m.Dependencies(main)
	}

	scripts, err := m.Scripts()
	if err != nil {
		return nil, err
	}
	for _, s := range scripts {
		if s.Role != script.RoleMain {
			continue
		}
		if main != "" {
			main = ""
			break
		}
		main = s.Path
	}
	return m.Dependencies(main)
}

// Concatenate joins the sources of scripts, each followed by a newline.
func Concatenate(scripts []*script.Script) ([]byte, error) {
	var buf bytes.Buffer
	for _, s := range scripts {
		src, err := s.Contents()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.Path, err)
		}
		buf.Write(src)
		if len(src) > 0 && src[len(src)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

func compileScripts(ctx context.Context, opts Options, settings *config.Settings, deps []*script.Script, logger *log.Logger) ([]byte, error) {
	flags := make(map[string]any, len(opts.Project.Compile)+1)
	maps.Copy(flags, opts.Project.Compile)
	js := make([]string, len(deps))
	for i, s := range deps {
		js[i] = s.Path
	}
	flags["js"] = js

	out, err := compile.Compile(ctx, compile.Options{
		CompilerPath: settings.CompilerPath,
		JVM:          opts.Project.JVM,
		Flags:        flags,
		Cwd:          opts.Project.Cwd,
		Java:         opts.Java,
		Logger:       logger.WithPrefix("compiler"),
	})
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
