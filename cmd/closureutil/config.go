// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/akkumar/closure-util/internal/config"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatTOML = "toml"
)

// newConfigCommand creates the `closure-util config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect closure-util settings",
		Long: `Inspect closure-util settings.

Settings are merged from, lowest precedence first:
  - built-in defaults
  - closure-util.json next to the executable or in one of its parents
  - closure-util.json in the working directory or one of its parents
  - closure_-prefixed entries of .env in the working directory
  - closure_-prefixed environment variables`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var format string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := app.loadSettings(cmd.Context())
			if err != nil {
				return app.report(err)
			}
			return showConfig(app, settings, format)
		},
	}
	showCmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or toml")
	cfgCmd.AddCommand(showCmd)

	return cfgCmd
}

func showConfig(app *App, s *config.Settings, format string) error {
	values := s.Display()
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(values, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(app.stdout, string(data))
	case formatTOML:
		data, err := toml.Marshal(values)
		if err != nil {
			return err
		}
		fmt.Fprint(app.stdout, string(data))
	case formatText:
		fmt.Fprintln(app.stdout, TitleStyle.Render("Current Settings"))
		fmt.Fprintln(app.stdout)
		if len(s.Sources) == 0 {
			fmt.Fprintf(app.stdout, "%s: %s\n", KeyStyle.Render("sources"), SubtitleStyle.Render("(using defaults)"))
		} else {
			fmt.Fprintf(app.stdout, "%s:\n", KeyStyle.Render("sources"))
			for _, src := range s.Sources {
				fmt.Fprintf(app.stdout, "  - %s\n", src)
			}
		}
		fmt.Fprintln(app.stdout)
		for _, k := range slices.Sorted(maps.Keys(values)) {
			fmt.Fprintf(app.stdout, "%s: %s\n", KeyStyle.Render(k), SuccessStyle.Render(fmt.Sprint(values[k])))
		}
	default:
		return fmt.Errorf("unknown format %q (valid: %s)", format, strings.Join([]string{formatText, formatJSON, formatTOML}, ", "))
	}
	return nil
}
