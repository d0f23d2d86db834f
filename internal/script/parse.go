// SPDX-License-Identifier: MPL-2.0

package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParse is the sentinel wrapped by every ParseError.
var ErrParse = errors.New("malformed dependency declaration")

var (
	provideRe = regexp.MustCompile(`^\s*goog\.(?:provide|module)\s*\(\s*['"]([^'"\s]+)['"]\s*\)`)
	requireRe = regexp.MustCompile(`^\s*(?:(?:const|let|var)\s+(?:[\w$]+|\{[^}]*\})\s*=\s*)?goog\.require\s*\(\s*['"]([^'"\s]+)['"]\s*\)`)
	addDepRe  = regexp.MustCompile(`^\s*goog\.addDependency\s*\(\s*['"]([^'"]+)['"]\s*,\s*\[([^\]]*)\]\s*,\s*\[([^\]]*)\]`)

	// Lines that open a declaration call. A statement starting with one of
	// these but not matching the full literal form above is malformed. The
	// full forms are matched against the whole statement, which may span
	// several lines.
	provideStartRe = regexp.MustCompile(`^\s*goog\.(?:provide|module)\s*\(`)
	requireStartRe = regexp.MustCompile(`^\s*(?:(?:const|let|var)\s+[^=]+=\s*)?goog\.require\s*\(`)
	addDepStartRe  = regexp.MustCompile(`^\s*goog\.addDependency\s*\(`)

	// A destructuring pattern whose closing brace is on a later line.
	destructureStartRe = regexp.MustCompile(`^\s*(?:const|let|var)\s*\{[^}]*$`)

	provideGoogRe = regexp.MustCompile(`@provideGoog\b`)
)

type (
	// Options controls parsing.
	Options struct {
		// IgnoreRequires drops every required name it matches.
		IgnoreRequires *regexp.Regexp
	}

	// Declaration is one goog.addDependency entry of a manifest.
	Declaration struct {
		Path     string
		Provides []string
		Requires []string
	}

	// Result is the outcome of parsing one file.
	Result struct {
		Provides     []string
		Requires     []string
		Base         bool
		Declarations []Declaration
	}

	// ParseError reports a declaration that could not be read.
	ParseError struct {
		Path string
		Line int
		Text string
		// Reason describes what was wrong with the declaration.
		Reason string
	}
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s:%d: %s", e.Path, e.Line, ErrParse)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Text != "" {
		msg += fmt.Sprintf(" (%q)", e.Text)
	}
	return msg
}

// Unwrap returns ErrParse for errors.Is checks.
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// Parse extracts provides and requires from src. A file marked with
// @provideGoog is the Closure base script: it provides "goog" and its own
// body is not scanned, since it defines the declaration functions themselves.
func Parse(path string, src []byte, opts Options) (*Result, error) {
	res := &Result{}

	if provideGoogRe.Match(src) {
		res.Base = true
		res.Provides = []string{BaseName}
		return res, nil
	}

	seenProvide := make(map[string]bool)
	seenRequire := make(map[string]bool)

	lines := strings.Split(string(src), "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSuffix(lines[i], "\r")

		kind := statementKind(line)
		if kind == stmtNone {
			continue
		}
		stmt, last, ok := readStatement(lines, i, kind)
		if !ok {
			if kind == stmtDestructure && !requireStartRe.MatchString(stmt) {
				// An ordinary destructuring assignment.
				continue
			}
			return nil, &ParseError{Path: path, Line: i + 1, Text: compact(stmt), Reason: "unterminated declaration"}
		}
		if kind == stmtDestructure {
			if !requireStartRe.MatchString(stmt) {
				i = last
				continue
			}
			kind = stmtRequire
		}

		switch kind {
		case stmtProvide:
			m := provideRe.FindStringSubmatch(stmt)
			if m == nil {
				return nil, &ParseError{Path: path, Line: i + 1, Text: compact(stmt), Reason: "expected a string literal namespace"}
			}
			if !seenProvide[m[1]] {
				seenProvide[m[1]] = true
				res.Provides = append(res.Provides, m[1])
			}

		case stmtRequire:
			m := requireRe.FindStringSubmatch(stmt)
			if m == nil {
				return nil, &ParseError{Path: path, Line: i + 1, Text: compact(stmt), Reason: "expected a string literal namespace"}
			}
			if !seenRequire[m[1]] && !ignored(opts, m[1]) {
				seenRequire[m[1]] = true
				res.Requires = append(res.Requires, m[1])
			}

		case stmtManifest:
			decl, err := parseDeclaration(stmt, opts)
			if err != nil {
				return nil, &ParseError{Path: path, Line: i + 1, Text: compact(stmt), Reason: err.Error()}
			}
			res.Declarations = append(res.Declarations, decl)
		}
		i = last
	}

	return res, nil
}

type stmtKind int

const (
	stmtNone stmtKind = iota
	stmtProvide
	stmtRequire
	stmtManifest
	// stmtDestructure is a destructuring pattern left open at the end of
	// its first line. It is a require only if goog.require follows it.
	stmtDestructure
)

// maxStatementLines bounds how far a declaration may be wrapped.
const maxStatementLines = 256

func statementKind(line string) stmtKind {
	if !strings.Contains(line, "goog.") && !strings.Contains(line, "{") {
		return stmtNone
	}
	switch {
	case provideStartRe.MatchString(line):
		return stmtProvide
	case requireStartRe.MatchString(line):
		return stmtRequire
	case addDepStartRe.MatchString(line):
		return stmtManifest
	case destructureStartRe.MatchString(line):
		return stmtDestructure
	default:
		return stmtNone
	}
}

// readStatement joins lines from first on until the declaration call is
// closed. It returns the joined text, the index of its last line and whether
// the statement was complete.
func readStatement(lines []string, first int, kind stmtKind) (string, int, bool) {
	var b strings.Builder
	limit := min(len(lines), first+maxStatementLines)
	for i := first; i < limit; i++ {
		if i > first {
			b.WriteByte('\n')
		}
		b.WriteString(strings.TrimSuffix(lines[i], "\r"))
		stmt := b.String()

		if kind == stmtDestructure {
			// Wait for the pattern to close and its right-hand side to start.
			if !strings.Contains(stmt, "}") || strings.HasSuffix(strings.TrimSpace(stmt), "=") {
				continue
			}
			if !strings.Contains(stmt, "goog.") {
				return stmt, i, false
			}
		}
		if callClosed(stmt) {
			return stmt, i, true
		}
	}
	return b.String(), limit - 1, false
}

// callClosed reports whether the first goog call in stmt has its closing
// parenthesis. Parentheses inside string literals are not counted.
func callClosed(stmt string) bool {
	start := strings.Index(stmt, "goog.")
	if start < 0 {
		return false
	}
	open := strings.IndexByte(stmt[start:], '(')
	if open < 0 {
		return false
	}
	depth := 0
	var quote byte
	for k := start + open; k < len(stmt); k++ {
		c := stmt[k]
		switch {
		case quote != 0:
			if c == '\\' {
				k++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

// compact folds a wrapped statement onto one line for error messages.
func compact(stmt string) string {
	return strings.Join(strings.Fields(stmt), " ")
}

func parseDeclaration(line string, opts Options) (Declaration, error) {
	m := addDepRe.FindStringSubmatch(line)
	if m == nil {
		return Declaration{}, errors.New("expected goog.addDependency('path', [provides], [requires])")
	}
	provides, err := parseNameList(m[2])
	if err != nil {
		return Declaration{}, fmt.Errorf("provides: %w", err)
	}
	requires, err := parseNameList(m[3])
	if err != nil {
		return Declaration{}, fmt.Errorf("requires: %w", err)
	}

	kept := requires[:0]
	for _, name := range requires {
		if !ignored(opts, name) {
			kept = append(kept, name)
		}
	}

	return Declaration{Path: m[1], Provides: provides, Requires: kept}, nil
}

// parseNameList reads the body of a JavaScript array of string literals.
func parseNameList(body string) ([]string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}

	var names []string
	for item := range strings.SplitSeq(body, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			// trailing comma
			continue
		}
		if len(item) < 3 || (item[0] != '\'' && item[0] != '"') || item[len(item)-1] != item[0] {
			return nil, fmt.Errorf("%s is not a string literal", item)
		}
		names = append(names, item[1:len(item)-1])
	}
	return names, nil
}

func ignored(opts Options, name string) bool {
	return opts.IgnoreRequires != nil && opts.IgnoreRequires.MatchString(name)
}
