// SPDX-License-Identifier: MPL-2.0

// Package compile runs the Closure Compiler as a JVM subprocess.
package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
)

const (
	// JarPattern matches compiler archives inside the compiler directory.
	// Release archives carry their version in the file name.
	JarPattern = "*compiler*.jar"

	defaultJava = "java"
)

// ErrSubprocess is the sentinel wrapped by SubprocessError.
var ErrSubprocess = errors.New("compiler subprocess failed")

// DefaultJVM are the JVM arguments used when Options.JVM is empty.
var DefaultJVM = []string{"-server", "-XX:+TieredCompilation"}

type (
	// SubprocessError reports a compiler that could not be located or that
	// exited with a non-zero status.
	SubprocessError struct {
		// ExitCode is the process exit status, or -1 if it never ran.
		ExitCode int
		Reason   string
	}

	// Options configures one compiler run.
	Options struct {
		// CompilerPath is the directory holding exactly one compiler archive.
		CompilerPath string
		// JVM are the arguments passed to java before -jar.
		JVM []string
		// Flags are compiler flags keyed by name without the leading dashes.
		// A nil map passes no flag file.
		Flags map[string]any
		// Cwd is the working directory of the subprocess.
		Cwd string
		// Java is the JVM launcher. Empty means "java" from PATH.
		Java   string
		Logger *log.Logger
	}
)

func (e *SubprocessError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s: %s: %d", ErrSubprocess, e.Reason, e.ExitCode)
	}
	return fmt.Sprintf("%s: %s", ErrSubprocess, e.Reason)
}

// Unwrap returns ErrSubprocess.
func (e *SubprocessError) Unwrap() error { return ErrSubprocess }

// FindJar returns the single compiler archive in dir.
func FindJar(dir string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), JarPattern, doublestar.WithFilesOnly())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("search compiler in %s: %w", dir, err)
	}
	if len(matches) != 1 {
		return "", &SubprocessError{
			ExitCode: -1,
			Reason:   fmt.Sprintf("no or more than one compiler found in %s (%d matches)", dir, len(matches)),
		}
	}
	return filepath.Join(dir, filepath.FromSlash(matches[0])), nil
}

// Flags renders compiler flags. Keys are emitted in sorted order. A true
// boolean becomes a bare --key and false is omitted; every other value,
// or each element of a list, becomes --key followed by the quoted value.
func Flags(flags map[string]any) ([]string, error) {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var out []string
	for _, key := range keys {
		switch v := flags[key].(type) {
		case bool:
			if v {
				out = append(out, "--"+key)
			}
		case []string:
			for _, item := range v {
				out = append(out, "--"+key, quote(item))
			}
		case []any:
			for _, item := range v {
				s, err := scalar(key, item)
				if err != nil {
					return nil, err
				}
				out = append(out, "--"+key, quote(s))
			}
		default:
			s, err := scalar(key, v)
			if err != nil {
				return nil, err
			}
			out = append(out, "--"+key, quote(s))
		}
	}
	return out, nil
}

func scalar(key string, v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int, int64, float64, bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("compiler flag %q: unsupported value of type %T", key, v)
	}
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// Compile runs the compiler and returns its standard output. Standard error
// is logged line by line. The flag file is removed before Compile returns.
func Compile(ctx context.Context, opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	jar, err := FindJar(opts.CompilerPath)
	if err != nil {
		return "", err
	}

	jvm := opts.JVM
	if len(jvm) == 0 {
		jvm = DefaultJVM
	}
	args := slices.Concat(jvm, []string{"-jar", jar})

	if opts.Flags != nil {
		flagFile, err := writeFlagFile(opts.Flags)
		if err != nil {
			return "", err
		}
		defer func() {
			if rmErr := os.Remove(flagFile); rmErr != nil {
				logger.Warn("remove flag file", "path", flagFile, "error", rmErr)
			}
		}()
		args = append(args, "--flagfile="+flagFile)
	}

	java := opts.Java
	if java == "" {
		java = defaultJava
	}
	logger.Debug("running compiler", "cmd", java+" "+strings.Join(args, " "))

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, java, args...)
	cmd.Dir = opts.Cwd
	cmd.Stdout = &stdout
	cmd.Stderr = &stderrLog{logger: logger}

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), &SubprocessError{
				ExitCode: exitErr.ExitCode(),
				Reason:   "process exited with non-zero status, see log for more detail",
			}
		}
		return "", fmt.Errorf("run %s: %w", java, err)
	}
	return stdout.String(), nil
}

func writeFlagFile(flags map[string]any) (string, error) {
	rendered, err := Flags(flags)
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp("", "compile-flags-*.txt")
	if err != nil {
		return "", fmt.Errorf("create flag file: %w", err)
	}
	name := f.Name()
	if _, err := f.WriteString(strings.Join(rendered, " ")); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("write flag file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close flag file: %w", err)
	}
	return name, nil
}

// stderrLog forwards compiler diagnostics to the logger.
type stderrLog struct {
	logger *log.Logger
}

func (w *stderrLog) Write(p []byte) (int, error) {
	for line := range strings.Lines(string(p)) {
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			w.logger.Error(line)
		}
	}
	return len(p), nil
}
