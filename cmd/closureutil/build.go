// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/akkumar/closure-util/internal/build"
	"github.com/akkumar/closure-util/internal/config"
)

func newBuildCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "build <config> <output>",
		Short: "Build the project into a single file",
		Long: `Build the project described by <config> into <output>.

Without a "compile" section the managed scripts are concatenated in
dependency order. With one, they are passed to the Closure Compiler
together with the listed flags.`,
		Args: cobra.ExactArgs(2),
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
			output, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}

			err = build.Run(ctx, build.Options{
				Project:  project,
				Settings: settings,
				Output:   output,
				Logger:   app.newLogger(settings),
			})
			if err != nil {
				return app.report(err)
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Built"), output)
			return nil
		},
	}
}
