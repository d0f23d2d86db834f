// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akkumar/closure-util/internal/build"
	"github.com/akkumar/closure-util/internal/config"
)

func newDepsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <config> [main]",
		Short: "Print scripts in dependency order",
		Long: `Print the managed scripts of the project described by <config> in the
order they must be loaded, one path per line relative to the project's
cwd. With [main] the order for that entry script is printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := app.loadSettings(ctx)
			if err != nil {
				return app.report(err)
			}
			project, err := config.LoadProject(args[0])
			if err != nil {
				return app.report(err)
			}

			main := ""
			if len(args) == 2 {
				if main, err = filepath.Abs(args[1]); err != nil {
					return err
				}
			}

			deps, err := build.Order(ctx, project, settings, app.newLogger(settings), main)
			if err != nil {
				return app.report(err)
			}
			for _, d := range deps {
				p := d.Path
				if rel, err := filepath.Rel(project.Cwd, p); err == nil {
					p = filepath.ToSlash(rel)
				}
				fmt.Fprintln(app.stdout, p)
			}
			return nil
		},
	}
}
