// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the closure-util command line.
//
// The root command carries the global --loglevel and --config flags; serve,
// build and deps each take a project file, and config show prints the
// effective global settings.
package cmd
