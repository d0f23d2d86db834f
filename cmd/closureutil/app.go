// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/akkumar/closure-util/internal/config"
	"github.com/akkumar/closure-util/internal/issue"
)

type (
	// App wires CLI services and shared dependencies. Command handlers
	// receive an App and read settings and write output through it.
	App struct {
		Config config.Provider
		// InstallDir overrides where install-level settings are searched.
		InstallDir string
		stdout     io.Writer
		stderr     io.Writer

		// Global flag values.
		logLevel   string
		configFile string
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config     config.Provider
		InstallDir string
		Stdout     io.Writer
		Stderr     io.Writer
	}
)

// NewApp creates an App from deps.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:     deps.Config,
		InstallDir: deps.InstallDir,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// loadSettings reads the global settings honoring --config.
func (a *App) loadSettings(ctx context.Context) (*config.Settings, error) {
	return a.Config.Load(ctx, config.LoadOptions{
		InstallDir: a.InstallDir,
		ConfigFile: a.configFile,
	})
}

// newLogger builds the process logger. An explicit --loglevel wins over the
// loglevel setting.
func (a *App) newLogger(s *config.Settings) *log.Logger {
	level := config.LogLevelInfo
	if s != nil {
		level = s.LogLevel
	}
	if a.logLevel != "" {
		level = config.LogLevel(a.logLevel)
	}
	return log.NewWithOptions(a.stderr, log.Options{
		Level:           level.Level(),
		Prefix:          "closure-util",
		ReportTimestamp: true,
	})
}

// report renders catalog guidance and the context carried by err to stderr
// and returns err. The error line itself is printed by fang.
func (a *App) report(err error) error {
	if err == nil {
		return nil
	}
	if id := classifyError(err); id != 0 {
		if rendered, renderErr := issue.Get(id).Render(a.glamourStyle()); renderErr == nil {
			_, _ = io.WriteString(a.stderr, rendered)
		}
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		fmt.Fprintf(a.stderr, "%s %s\n\n", ErrorStyle.Render("Error:"), ae.Format(a.verbose()))
	}
	return err
}

// verbose reports whether --loglevel asks for debug output.
func (a *App) verbose() bool {
	return config.LogLevel(a.logLevel).Level() == log.DebugLevel
}

func (a *App) glamourStyle() string {
	if f, ok := a.stderr.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "dark"
	}
	return "notty"
}
