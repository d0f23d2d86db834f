// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"io/fs"
	"net"

	"github.com/akkumar/closure-util/internal/compile"
	"github.com/akkumar/closure-util/internal/dag"
	"github.com/akkumar/closure-util/internal/issue"
	"github.com/akkumar/closure-util/internal/manager"
	"github.com/akkumar/closure-util/internal/script"
)

// classifyError maps a command failure to an issue catalog entry. Zero
// means no guidance applies.
func classifyError(err error) issue.Id {
	var subErr *compile.SubprocessError
	var opErr *net.OpError
	var ae *issue.ActionableError

	switch {
	case errors.Is(err, dag.ErrCycle):
		return issue.DependencyCycleId
	case errors.Is(err, dag.ErrDuplicateProvide):
		return issue.DuplicateProvideId
	case errors.Is(err, dag.ErrUnresolvedRequire):
		return issue.UnresolvedRequireId
	case errors.Is(err, script.ErrParse):
		return issue.ScriptParseErrorId
	case errors.As(err, &subErr):
		if subErr.ExitCode < 0 {
			return issue.CompilerNotFoundId
		}
		return issue.CompilerFailedId
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, manager.ErrNotManaged):
		return issue.FileNotFoundId
	case errors.As(err, &ae) && ae.Issue != 0:
		return ae.Issue
	case errors.As(err, &opErr) && opErr.Op == "listen":
		return issue.ServerStartFailedId
	default:
		return 0
	}
}
