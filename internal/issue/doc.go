// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing error handling for the command line.
//
// ActionableError attaches the failed operation, the resource involved and
// remediation hints to an error. The issue catalog holds longer Markdown
// guidance for the failures users hit most often (a broken dependency
// graph, a missing compiler, a busy port) rendered to the terminal with
// glamour.
package issue
