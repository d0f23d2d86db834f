// SPDX-License-Identifier: MPL-2.0

// Package config loads closure-util settings and project files.
//
// Global settings are layered with Viper: built-in defaults, then a
// closure-util.json found next to the executable (or in any ancestor of its
// directory), then a closure-util.json found in the working directory or any
// of its ancestors, then closure_-prefixed entries of a .env file in the
// working directory, and finally closure_-prefixed environment variables.
// Every file is validated against the embedded #Settings CUE schema before it
// is merged.
//
// Project files describe one managed code base (patterns, server and compiler
// options). They are JSON or CUE documents validated against #Project.
package config
