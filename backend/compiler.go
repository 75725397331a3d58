// Package backend implements the single-pass, register-based
// compiler and bytecode emitter described by spec.md: a lexer-fed
// recursive-descent parser that emits three-address bytecode as it
// parses (no intermediate AST), producing the Prototype tree that
// package emitter serializes into a self-contained SL source text.
package backend

import (
	"strconv"

	"github.com/OxenFxc/luaaivmp/feedback"
	"github.com/OxenFxc/luaaivmp/frontend"
	"github.com/OxenFxc/luaaivmp/source"
)

// trailingCallInfo records that the value currently held in `reg` was
// produced by a CALL instruction with nothing else wrapping it, so
// that statements needing the multi-value adjustment (spec.md §4.2)
// can find and rewrite that CALL's result count. It is cleared by
// every construct that wraps or otherwise invalidates "bare call"
// status (arithmetic, unary ops, parenthesization, literals).
type trailingCallInfo struct {
	instrIndex int
	reg        int
}

// Compiler holds the token stream and the chain of per-function
// compilerStates while compiling one source file into a Prototype
// tree, per spec.md §3's CompilerState.
type Compiler struct {
	file  *source.File
	toks  []frontend.Token
	pos   int
	state *compilerState

	// isVararg is true while compiling a function whose parameter
	// list ended in `...`; checked by the `...` atom.
	isVararg bool

	// trailingCall is non-nil exactly when the most recently parsed
	// expression was nothing more than a bare trailing call.
	trailingCall *trailingCallInfo
}

// Compile lexes and compiles an entire source file into its top-level
// Prototype, per spec.md's Compiler component. All errors are fatal:
// the first one encountered stops the compile and no partial
// Prototype is returned.
func Compile(file *source.File) (*Prototype, error) {
	toks := frontend.NewLexer(file).Tokenize()
	c := &Compiler{file: file, toks: toks}
	c.state = newCompilerState(nil)

	if err := c.compileFunctionBody(nil); err != nil {
		return nil, err
	}

	return c.state.proto, nil
}

// compileFunctionBody parses statements until one of `terminators` (or
// EOF) is seen, then resolves this function's gotos and appends the
// implicit trailing RETURN required by invariant I6. `terminators` is
// nil for the top-level chunk, which only ever ends at EOF.
func (c *Compiler) compileFunctionBody(terminators []frontend.TokenKind) error {
	for !c.check(frontend.EOF) && !c.atAny(terminators) {
		if err := c.parseStatement(); err != nil {
			return err
		}
		c.state.resetToLive()
	}

	if err := c.resolveGotos(); err != nil {
		return err
	}

	c.emit(Instruction{Op: OpReturn, A: 0, B: 1, C: 0})
	return nil
}

func (c *Compiler) atAny(kinds []frontend.TokenKind) bool {
	for _, k := range kinds {
		if c.check(k) {
			return true
		}
	}
	return false
}

// resolveGotos patches every pending `goto` in the current function
// against its labels table, per spec.md §4.2.1. A goto with no
// matching label is a fatal SemanticError.
func (c *Compiler) resolveGotos() error {
	for _, pg := range c.state.pendingGotos {
		target, ok := c.state.labels[pg.label]
		if !ok {
			return feedback.New(feedback.SemanticError, c.file, pg.label, pg.line,
				"no visible label %q for goto", pg.label)
		}
		c.state.proto.patchJumpTo(pg.instrIndex, target)
	}
	c.state.pendingGotos = nil
	return nil
}

// --- token stream helpers -------------------------------------------------

func (c *Compiler) peek() frontend.Token { return c.toks[c.pos] }

func (c *Compiler) peekAt(offset int) frontend.Token {
	idx := c.pos + offset
	if idx >= len(c.toks) {
		return c.toks[len(c.toks)-1]
	}
	return c.toks[idx]
}

func (c *Compiler) advance() frontend.Token {
	tok := c.toks[c.pos]
	if c.pos < len(c.toks)-1 {
		c.pos++
	}
	return tok
}

func (c *Compiler) check(kind frontend.TokenKind) bool { return c.peek().Kind == kind }

func (c *Compiler) match(kind frontend.TokenKind) bool {
	if c.check(kind) {
		c.advance()
		return true
	}
	return false
}

func (c *Compiler) expect(kind frontend.TokenKind, what string) (frontend.Token, error) {
	if c.check(kind) {
		return c.advance(), nil
	}
	tok := c.peek()
	return frontend.Token{}, feedback.New(feedback.ParseError, c.file, tok.Lexeme, tok.Line,
		"expected %s, found %q", what, displayLexeme(tok))
}

func displayLexeme(tok frontend.Token) string {
	if tok.Kind == frontend.EOF {
		return "<eof>"
	}
	return tok.Lexeme
}

func (c *Compiler) errorf(kind feedback.Kind, format string, args ...interface{}) error {
	tok := c.peek()
	return feedback.New(kind, c.file, displayLexeme(tok), tok.Line, format, args...)
}

// --- emission helpers ------------------------------------------------------

func (c *Compiler) emit(inst Instruction) int { return c.state.proto.emit(inst) }

func (c *Compiler) addConstant(v Value) int { return c.state.proto.addConstant(v) }

// allocate reserves the lowest free register, failing with a
// SemanticError once the function has used all 256 (spec.md
// invariant I5).
func (c *Compiler) allocate() (int, error) {
	reg, ok := c.state.allocateRegister()
	if !ok {
		return 0, c.errorf(feedback.SemanticError, "too many registers used in a single function")
	}
	return reg, nil
}

// reserve marks a specific register as occupied (used to stake out
// contiguous call-argument slots before evaluating the arguments that
// will land there), failing once `reg` runs past 255.
func (c *Compiler) reserve(reg int) error {
	if reg < 0 || reg >= 256 {
		return c.errorf(feedback.SemanticError, "too many registers used in a single function")
	}
	c.state.allocated[reg] = true
	return nil
}

func parseNumberLiteral(lexeme string) (float64, error) {
	return strconv.ParseFloat(lexeme, 64)
}
