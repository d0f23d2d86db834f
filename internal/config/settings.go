// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// FileName is the name of settings files searched for in the install
	// and working directories.
	FileName = "closure-util.json"
	// EnvPrefix prefixes settings read from the environment.
	EnvPrefix = "closure_"

	// LogLevelSilly logs everything.
	LogLevelSilly LogLevel = "silly"
	// LogLevelVerbose logs everything.
	LogLevelVerbose LogLevel = "verbose"
	// LogLevelDebug logs everything.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is the default.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs warnings and errors.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"

	depsDir = ".deps"
)

// ErrInvalidLogLevel is the sentinel wrapped by InvalidLogLevelError.
var ErrInvalidLogLevel = errors.New("invalid log level")

type (
	// LogLevel names a logging threshold as accepted by --loglevel.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	// It wraps ErrInvalidLogLevel for errors.Is() compatibility.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// Settings are the global tool settings.
	Settings struct {
		// CompilerPath is the directory holding the compiler archive.
		CompilerPath string `json:"compiler_path" toml:"compiler_path" mapstructure:"compiler_path"`
		// LibraryPath is the directory holding closure/goog/base.js.
		LibraryPath string        `json:"library_path" toml:"library_path" mapstructure:"library_path"`
		LogLevel    LogLevel      `json:"loglevel" toml:"loglevel" mapstructure:"loglevel"`
		Host        string        `json:"host" toml:"host" mapstructure:"host"`
		Port        int           `json:"port" toml:"port" mapstructure:"port"`
		Loader      string        `json:"loader" toml:"loader" mapstructure:"loader"`
		Debounce    time.Duration `json:"debounce" toml:"debounce" mapstructure:"debounce"`

		// Sources lists the files merged into these settings, lowest
		// precedence first.
		Sources []string `json:"-" toml:"-" mapstructure:"-"`
	}
)

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: silly, verbose, debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel so callers can use errors.Is for programmatic detection.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// Validate returns nil if the LogLevel is recognized, or an error otherwise.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelSilly, LogLevelVerbose, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// Level maps l onto a logger level. Unknown values map to info.
func (l LogLevel) Level() log.Level {
	switch l {
	case LogLevelSilly, LogLevelVerbose, LogLevelDebug:
		return log.DebugLevel
	case LogLevelWarn:
		return log.WarnLevel
	case LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// DefaultSettings returns the settings used when no file or variable
// overrides them. Compiler and library live under .deps in installDir.
func DefaultSettings(installDir string) *Settings {
	return &Settings{
		CompilerPath: filepath.Join(installDir, depsDir, "compiler"),
		LibraryPath:  filepath.Join(installDir, depsDir, "library"),
		LogLevel:     LogLevelInfo,
		Host:         "127.0.0.1",
		Port:         3000,
		Loader:       "/@",
		Debounce:     100 * time.Millisecond,
	}
}

// Addr returns host:port.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate checks constraints viper cannot enforce after merging.
func (s *Settings) Validate() error {
	if err := s.LogLevel.Validate(); err != nil {
		return err
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.Debounce < 0 {
		return fmt.Errorf("debounce %s is negative", s.Debounce)
	}
	return nil
}

// Display returns the settings keyed as in settings files.
func (s *Settings) Display() map[string]any {
	return map[string]any{
		"compiler_path": s.CompilerPath,
		"library_path":  s.LibraryPath,
		"loglevel":      s.LogLevel.String(),
		"host":          s.Host,
		"port":          s.Port,
		"loader":        s.Loader,
		"debounce":      s.Debounce.String(),
	}
}
