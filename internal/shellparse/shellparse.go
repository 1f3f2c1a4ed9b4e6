// Package shellparse wraps mvdan.cc/sh for the questions the pipeline
// asks about shell text: can this command run as a plain argv, does the
// line continue, and where are the statements in this script.
package shellparse

import (
	"bufio"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

func newParser() *syntax.Parser {
	return syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
}

// Argv returns the argument vector of command when it is one simple
// invocation made of literal words. ok is false whenever a shell would
// have to interpret something: lists, pipes, redirects, assignments,
// expansions, globs, escapes or background jobs.
func Argv(command string) ([]string, bool) {
	file, err := newParser().Parse(strings.NewReader(command), "")
	if err != nil || len(file.Stmts) != 1 {
		return nil, false
	}

	stmt := file.Stmts[0]
	if stmt.Negated || stmt.Background || stmt.Coprocess || len(stmt.Redirs) > 0 {
		return nil, false
	}
	call, isCall := stmt.Cmd.(*syntax.CallExpr)
	if !isCall || len(call.Assigns) > 0 || len(call.Args) == 0 {
		return nil, false
	}

	argv := make([]string, 0, len(call.Args))
	for _, word := range call.Args {
		s, ok := literalWord(word)
		if !ok {
			return nil, false
		}
		argv = append(argv, s)
	}
	return argv, true
}

func literalWord(word *syntax.Word) (string, bool) {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			if strings.ContainsAny(p.Value, "\\*?[{~") {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			if p.Dollar {
				return "", false
			}
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			if p.Dollar {
				return "", false
			}
			for _, inner := range p.Parts {
				lit, ok := inner.(*syntax.Lit)
				if !ok || strings.Contains(lit.Value, `\`) {
					return "", false
				}
				sb.WriteString(lit.Value)
			}
		default:
			return "", false
		}
	}
	return sb.String(), true
}

// stateBuiltins change the calling shell itself and mean nothing when
// run in a child process.
var stateBuiltins = map[string]bool{
	"cd": true, "pushd": true, "popd": true, "export": true, "unset": true,
	"set": true, "source": true, ".": true, "alias": true, "unalias": true,
	"exit": true, "exec": true, "shopt": true, "setopt": true, "ulimit": true,
	"umask": true, "hash": true, "builtin": true,
}

// ChangesShellState reports whether command starts with a builtin that
// only has an effect inside the interactive shell.
func ChangesShellState(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	return stateBuiltins[filepath.Base(fields[0])]
}

// Statement is one top-level statement of a script.
type Statement struct {
	Line uint
	Text string
}

// Split parses script and returns its top-level statements as written.
// A statement spanning lines keeps its line breaks.
func Split(script string) ([]Statement, error) {
	file, err := newParser().Parse(strings.NewReader(script), "")
	if err != nil {
		return nil, err
	}

	stmts := make([]Statement, 0, len(file.Stmts))
	for _, stmt := range file.Stmts {
		start, end := stmt.Pos().Offset(), stmt.End().Offset()
		if stmt.Semicolon.IsValid() {
			end = stmt.Semicolon.Offset()
		}
		if int(end) > len(script) {
			end = uint(len(script))
		}
		text := strings.TrimSpace(script[start:end])
		if text == "" {
			continue
		}
		stmts = append(stmts, Statement{Line: stmt.Pos().Line(), Text: text})
	}
	return stmts, nil
}

// Lines is the fallback for text the parser rejects: one statement per
// non-blank, non-comment line.
func Lines(script string) []Statement {
	var stmts []Statement
	sc := bufio.NewScanner(strings.NewReader(script))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var n uint
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		stmts = append(stmts, Statement{Line: n, Text: text})
	}
	return stmts
}

// Join quotes args so that Argv(Join(args)) gives args back. A single
// argument is returned as is: it is taken to be a whole command line.
func Join(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " "), nil
}

// Incomplete reports whether an interactive shell would prompt for a
// continuation line after command: an open quote or block, a dangling
// operator, or a trailing backslash.
func Incomplete(command string) bool {
	trimmed := strings.TrimRight(command, " \t")
	if n := len(trimmed) - len(strings.TrimRight(trimmed, `\`)); n%2 == 1 {
		return true
	}
	_, err := newParser().Parse(strings.NewReader(command), "")
	return err != nil && syntax.IsIncomplete(err)
}
