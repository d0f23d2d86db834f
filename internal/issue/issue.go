// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Id identifies a catalog entry.
type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	ProjectConfigInvalidId
	ScriptParseErrorId
	DuplicateProvideId
	UnresolvedRequireId
	DependencyCycleId
	CompilerNotFoundId
	CompilerFailedId
	ServerStartFailedId
	FileNotFoundId
)

type (
	// MarkdownMsg is guidance text in Markdown.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is one catalog entry.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

// Id returns the catalog key.
func (i *Issue) Id() Id {
	return i.id
}

// MarkdownMsg returns the raw guidance.
func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// DocLinks returns a copy of the documentation links.
func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the guidance for the terminal. stylePath is a glamour
// style name such as "dark", "light" or "notty", or a path to a JSON style.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	closureDocs HttpLink = "https://developers.google.com/closure/library/docs/gettingstarted"

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Could not load closure-util settings

Settings are merged from, in increasing precedence:

1. built-in defaults
2. ` + "`closure-util.json`" + ` next to the executable (or any ancestor directory)
3. ` + "`closure-util.json`" + ` in the working directory (or any ancestor directory)
4. ` + "`.env`" + ` in the working directory
5. environment variables prefixed with ` + "`closure_`" + `

## Things you can try
- Check that every ` + "`closure-util.json`" + ` is valid JSON or CUE
- Inspect the merged result:
~~~
$ closure-util config show
~~~`,
	}

	projectConfigInvalidIssue = &Issue{
		id: ProjectConfigInvalidId,
		mdMsg: `
# The project config is invalid

A project config names the scripts to manage. A minimal example:

~~~json
{
  "lib": ["src/**/*.js"],
  "main": "main.js",
  "closure": true
}
~~~

Patterns are matched relative to ` + "`cwd`" + `, which defaults to the
directory holding the config file.`,
	}

	scriptParseErrorIssue = &Issue{
		id: ScriptParseErrorId,
		mdMsg: `
# A script has a malformed declaration

Each ` + "`goog.provide`" + `, ` + "`goog.module`" + ` and ` + "`goog.require`" + ` call must take
string literals:

~~~js
goog.provide('app.widget');
goog.require('goog.dom');
~~~

Fix the line named in the error and save; a running server picks up the
change.`,
		docLinks: []HttpLink{closureDocs},
	}

	duplicateProvideIssue = &Issue{
		id: DuplicateProvideId,
		mdMsg: `
# Two scripts provide the same name

Every name may be provided by one script only. This usually means a
library is matched twice, for example by two overlapping ` + "`lib`" + ` patterns
or a copy of the Closure Library inside the project.

## Things you can try
- Narrow the ` + "`lib`" + ` patterns in the project config
- Remove the stale copy of the script`,
	}

	unresolvedRequireIssue = &Issue{
		id: UnresolvedRequireId,
		mdMsg: `
# A required name has no provider

A script calls ` + "`goog.require`" + ` for a name no managed script provides.

## Things you can try
- Add the providing script to the ` + "`lib`" + ` patterns
- Set ` + "`closure: true`" + ` if the name belongs to the Closure Library
- Skip names provided at runtime with ` + "`ignoreRequires`" + `:
~~~json
{"ignoreRequires": "^goog\\.testing\\."}
~~~`,
		docLinks: []HttpLink{closureDocs},
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Scripts require each other in a cycle

The error lists the scripts in the cycle in require order. Break it by
moving the shared code into a new name that both scripts require.`,
	}

	compilerNotFoundIssue = &Issue{
		id: CompilerNotFoundId,
		mdMsg: `
# No compiler found

The build looks for exactly one ` + "`*compiler*.jar`" + ` in the compiler directory.

## Things you can try
- Point ` + "`compiler_path`" + ` at the directory holding the jar:
~~~
$ closure_compiler_path=/opt/closure-compiler closure-util build config.json out.js
~~~
- Remove older jars so only one matches`,
		docLinks: []HttpLink{"https://github.com/google/closure-compiler#getting-started"},
	}

	compilerFailedIssue = &Issue{
		id: CompilerFailedId,
		mdMsg: `
# The compiler reported errors

The compiler's diagnostics were logged above. Run with ` + "`--loglevel debug`" + `
to see the full java command line.`,
	}

	serverStartFailedIssue = &Issue{
		id: ServerStartFailedId,
		mdMsg: `
# The development server could not start

Another process may already be listening on the port.

## Things you can try
- Pick another port with ` + "`\"port\"`" + ` in the project config or ` + "`closure_port`" + `
- Stop the other process`,
	}

	fileNotFoundIssue = &Issue{
		id: FileNotFoundId,
		mdMsg: `
# File not found

Check the path given on the command line. Relative paths are resolved
against the working directory.`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():     configLoadFailedIssue,
		projectConfigInvalidIssue.Id(): projectConfigInvalidIssue,
		scriptParseErrorIssue.Id():     scriptParseErrorIssue,
		duplicateProvideIssue.Id():     duplicateProvideIssue,
		unresolvedRequireIssue.Id():    unresolvedRequireIssue,
		dependencyCycleIssue.Id():      dependencyCycleIssue,
		compilerNotFoundIssue.Id():     compilerNotFoundIssue,
		compilerFailedIssue.Id():       compilerFailedIssue,
		serverStartFailedIssue.Id():    serverStartFailedIssue,
		fileNotFoundIssue.Id():         fileNotFoundIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id) - int(b.id)
	})
}

// Get returns the entry for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
