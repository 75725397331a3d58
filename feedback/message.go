// Package feedback renders compile failures as single, colorized
// diagnostic messages naming the offending token and its source line.
package feedback

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/OxenFxc/luaaivmp/source"
)

// Kind classifies an Error by which stage of the pipeline produced it.
// The four kinds mirror the error taxonomy the compiler is allowed to
// produce: a malformed token, a malformed grammar, a violated static
// rule, or a failure while writing the emitted program.
type Kind string

// Recognized diagnostic kinds. Every compiler/emitter failure is
// reported as exactly one of these.
const (
	LexError      Kind = "lex error"
	ParseError    Kind = "parse error"
	SemanticError Kind = "semantic error"
	EmitError     Kind = "emit error"
)

// Error is a fatal diagnostic naming the offending token's text and
// line number. It implements the standard `error` interface so
// compiler internals can return it like any other Go error; `Make`
// renders the human-facing, optionally colorized form.
type Error struct {
	Kind    Kind
	File    *source.File
	Lexeme  string
	Line    int
	Message string
}

// Error satisfies the `error` interface with an uncolored, single-line
// rendering suitable for wrapping with fmt.Errorf or logging.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (near %q, line %d)", e.Kind, e.Message, e.Lexeme, e.Line)
}

// Make renders the diagnostic as a multi-line message with the
// offending source line shown underneath, matching the shape:
//
//	error: parse error
//	  --> main.sl:12
//	   |
//	12 | local x = )
//	   | unexpected token ")"
func (e *Error) Make(withColor bool) string {
	color.NoColor = !withColor

	redBold := color.New(color.FgRed, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	blue := color.New(color.FgBlue).SprintFunc()

	var lines []string
	lines = append(lines, redBold(fmt.Sprintf("error: %s", e.Kind)))

	filename := "<input>"
	if e.File != nil {
		filename = e.File.Filename
	}
	lines = append(lines, fmt.Sprintf("  %s %s:%d", blue("-->"), filename, e.Line))
	lines = append(lines, blue("   |"))

	if e.File != nil && e.Line >= 1 && e.Line <= len(e.File.Lines) {
		srcLine := strings.TrimRight(e.File.Lines[e.Line-1], "\n")
		lines = append(lines, fmt.Sprintf("%s %s %s", blue(fmt.Sprintf("%2d", e.Line)), blue("|"), srcLine))
	}

	lines = append(lines, fmt.Sprintf("   %s %s", blue("|"), red(e.Message)))

	return strings.Join(lines, "\n")
}

// New builds an Error of the given Kind, formatting Message with the
// supplied args via fmt.Sprintf.
func New(kind Kind, file *source.File, lexeme string, line int, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		File:    file,
		Lexeme:  lexeme,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}
