// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/akkumar/closure-util/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
)

// NewRootCommand builds the command tree for app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "closure-util",
		Short: "Dependency management and a development server for Closure projects",
		Long: TitleStyle.Render("closure-util") + SubtitleStyle.Render(" - goog.provide/goog.require dependency management") + `

closure-util keeps the dependency graph of a Closure code base current,
serves it to the browser in load order with live reload, and builds it
into a single file by concatenation or with the Closure Compiler.

` + SubtitleStyle.Render("Examples:") + `
  closure-util serve project.json           Start the development server
  closure-util build project.json app.js    Build the project into app.js
  closure-util deps project.json main.js    Print the load order for main.js
  closure-util config show                  Show the effective settings`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.logLevel == "" {
				return nil
			}
			return config.LogLevel(app.logLevel).Validate()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.logLevel, "loglevel", "l", "",
		"log level: silly, verbose, debug, info, warn or error (default from settings, info)")
	rootCmd.PersistentFlags().StringVar(&app.configFile, "config", "",
		"settings file to use instead of the closure-util.json lookup")

	rootCmd.AddCommand(newServeCommand(app))
	rootCmd.AddCommand(newBuildCommand(app))
	rootCmd.AddCommand(newDepsCommand(app))
	rootCmd.AddCommand(newConfigCommand(app))
	return rootCmd
}

func versionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// Execute runs the command line and exits the process with its status.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:]))
}

// Run executes the command line with args and returns the exit status.
func Run(ctx context.Context, args []string) int {
	app := NewApp(Dependencies{})
	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)

	if err := fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}
