// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/akkumar/closure-util/internal/config"
	"github.com/akkumar/closure-util/internal/issue"
	"github.com/akkumar/closure-util/internal/manager"
	"github.com/akkumar/closure-util/internal/server"
)

func newServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve <config>",
		Short: "Start the development server",
		Long: `Start the development server for the project described by <config>.

Scripts are served through the loader path (default /@) in dependency
order. Static files below the project root are served as-is, and pages
reload when a managed script changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.report(serve(cmd.Context(), app, args[0]))
		},
	}
}

func serve(ctx context.Context, app *App, projectPath string) error {
	settings, err := app.loadSettings(ctx)
	if err != nil {
		return err
	}
	logger := app.newLogger(settings)

	project, err := config.LoadProject(projectPath)
	if err != nil {
		return err
	}

	m, err := manager.New(project.ManagerConfig(settings, logger.WithPrefix("manager")))
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close manager", "error", err)
		}
	}()

	if err := m.Start(ctx); err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Source:        m,
		Root:          project.Root,
		Loader:        project.LoaderPrefix(settings),
		DisableSocket: !project.Socket,
		Addr:          project.Addr(settings),
		Logger:        logger.WithPrefix("server"),
	})
	if err != nil {
		return err
	}
	if err := srv.Run(ctx); err != nil {
		return issue.WrapWithContext(err, "run server", project.Addr(settings))
	}
	return nil
}
