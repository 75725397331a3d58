package backend

import (
	"github.com/OxenFxc/luaaivmp/feedback"
	"github.com/OxenFxc/luaaivmp/frontend"
)

// parseStatement dispatches on the next token to the statement form it
// introduces, per spec.md §4.2.1's statement grammar.
func (c *Compiler) parseStatement() error {
	switch c.peek().Kind {
	case frontend.Semicolon:
		c.advance()
		return nil
	case frontend.KwLocal:
		c.advance()
		return c.parseLocalStatement()
	case frontend.KwIf:
		return c.parseIfStatement()
	case frontend.KwWhile:
		return c.parseWhileStatement()
	case frontend.KwFor:
		return c.parseForStatement()
	case frontend.KwFunction:
		return c.parseFunctionStatement()
	case frontend.KwReturn:
		return c.parseReturnStatement()
	case frontend.KwBreak:
		return c.parseBreakStatement()
	case frontend.KwGoto:
		return c.parseGotoStatement()
	case frontend.ColonColon:
		return c.parseLabelStatement()
	case frontend.KwDo:
		c.advance()
		if err := c.parseBlock([]frontend.TokenKind{frontend.KwEnd}); err != nil {
			return err
		}
		_, err := c.expect(frontend.KwEnd, "'end'")
		return err
	case frontend.Ident:
		return c.parseExprStatement()
	default:
		return c.errorf(feedback.ParseError, "unexpected token %q", displayLexeme(c.peek()))
	}
}

// parseBlock parses statements until one of `terminators` or EOF is
// reached, resetting scratch registers to the live-locals set after
// each one (spec.md §4.2's statement-boundary reset).
func (c *Compiler) parseBlock(terminators []frontend.TokenKind) error {
	for !c.check(frontend.EOF) && !c.atAny(terminators) {
		if err := c.parseStatement(); err != nil {
			return err
		}
		c.state.resetToLive()
	}
	return nil
}

// parseExprStatement parses a prefix expression used as a whole
// statement: either an assignment (`x = e`, `t.f = e`, `t[k] = e`) or
// a bare call (`f(...)`, `t:m(...)`).
func (c *Compiler) parseExprStatement() error {
	_, target, isCall, err := c.parsePrefix(true)
	if err != nil {
		return err
	}

	if c.match(frontend.Assign) {
		if target == nil {
			return c.errorf(feedback.ParseError, "cannot assign to this expression")
		}
		rhsReg, err := c.parseExpr()
		if err != nil {
			return err
		}
		switch target.kind {
		case "local":
			if rhsReg != target.reg {
				c.emit(Instruction{Op: OpMove, A: target.reg, B: rhsReg})
			}
		case "upvalue":
			c.emit(Instruction{Op: OpSetUpval, A: rhsReg, B: target.upvalIdx})
		case "global":
			c.emit(Instruction{Op: OpSetGlobal, A: rhsReg, B: target.constIdx})
		case "table":
			c.emit(Instruction{Op: OpSetTable, A: target.reg, B: target.keyReg, C: rhsReg})
		}
		return nil
	}

	if !isCall {
		return c.errorf(feedback.ParseError, "syntax error near %q", displayLexeme(c.peek()))
	}
	return nil
}

// parseLocalStatement parses `local name, ... [= expr, ...]` or
// `local function name(...) ... end`, implementing the multi-value
// adjustment of spec.md §4.2 when the single RHS expression is a bare
// trailing call.
func (c *Compiler) parseLocalStatement() error {
	if c.match(frontend.KwFunction) {
		return c.parseLocalFunctionStatement()
	}

	var names []string
	first, err := c.expect(frontend.Ident, "identifier")
	if err != nil {
		return err
	}
	names = append(names, first.Lexeme)
	for c.match(frontend.Comma) {
		t, err := c.expect(frontend.Ident, "identifier")
		if err != nil {
			return err
		}
		names = append(names, t.Lexeme)
	}

	var rhsRegs []int
	if c.match(frontend.Assign) {
		r, err := c.parseExpr()
		if err != nil {
			return err
		}
		rhsRegs = append(rhsRegs, r)
		for c.match(frontend.Comma) {
			r, err := c.parseExpr()
			if err != nil {
				return err
			}
			rhsRegs = append(rhsRegs, r)
		}
	}

	if len(names) > 1 && len(rhsRegs) == 1 && c.trailingCall != nil && c.trailingCall.reg == rhsRegs[0] {
		base := rhsRegs[0]
		c.state.proto.setCallResultCount(c.trailingCall.instrIndex, len(names)+1)
		for i := 1; i < len(names); i++ {
			if err := c.reserve(base + i); err != nil {
				return err
			}
		}
		rhsRegs = make([]int, len(names))
		for i := range rhsRegs {
			rhsRegs[i] = base + i
		}
	}

	for i, nm := range names {
		destReg, err := c.allocate()
		if err != nil {
			return err
		}
		if i < len(rhsRegs) {
			if rhsRegs[i] != destReg {
				c.emit(Instruction{Op: OpMove, A: destReg, B: rhsRegs[i]})
			}
		} else {
			kidx := c.addConstant(Nil)
			c.emit(Instruction{Op: OpLoadK, A: destReg, B: kidx})
		}
		c.state.bindLocal(nm, destReg)
	}
	return nil
}

// parseLocalFunctionStatement binds the function's name as a local
// before compiling its body, so the body can call itself recursively.
func (c *Compiler) parseLocalFunctionStatement() error {
	nameTok, err := c.expect(frontend.Ident, "identifier")
	if err != nil {
		return err
	}
	destReg, err := c.allocate()
	if err != nil {
		return err
	}
	c.state.bindLocal(nameTok.Lexeme, destReg)

	funcReg, err := c.parseFunctionBody(false)
	if err != nil {
		return err
	}
	if funcReg != destReg {
		c.emit(Instruction{Op: OpMove, A: destReg, B: funcReg})
	}
	return nil
}

// parseFunctionStatement parses `function Name(...) ... end`, where
// Name may be a dotted chain (`a.b.c`) and may end in a method form
// (`a.b:m`), which implicitly adds a leading `self` parameter.
func (c *Compiler) parseFunctionStatement() error {
	c.advance() // KwFunction
	nameTok, err := c.expect(frontend.Ident, "identifier")
	if err != nil {
		return err
	}

	target, isMethod, err := c.parseFuncNameTarget(nameTok)
	if err != nil {
		return err
	}

	funcReg, err := c.parseFunctionBody(isMethod)
	if err != nil {
		return err
	}

	switch target.kind {
	case "local":
		if funcReg != target.reg {
			c.emit(Instruction{Op: OpMove, A: target.reg, B: funcReg})
		}
	case "upvalue":
		c.emit(Instruction{Op: OpSetUpval, A: funcReg, B: target.upvalIdx})
	case "global":
		c.emit(Instruction{Op: OpSetGlobal, A: funcReg, B: target.constIdx})
	case "table":
		c.emit(Instruction{Op: OpSetTable, A: target.reg, B: target.keyReg, C: funcReg})
	}
	return nil
}

// parseFuncNameTarget resolves the (possibly dotted, possibly
// method-suffixed) name following `function`, without consuming the
// parameter list. It mirrors parsePrefix's suffix walk but only
// understands `.field` and a single trailing `:method`.
func (c *Compiler) parseFuncNameTarget(first frontend.Token) (*assignTarget, bool, error) {
	name := first.Lexeme
	var curReg int
	var target *assignTarget

	if reg, ok := c.state.lookupLocal(name); ok {
		curReg = reg
		target = &assignTarget{kind: "local", reg: reg}
	} else if idx := resolveUpvalue(c.state, name); idx != -1 {
		reg, err := c.allocate()
		if err != nil {
			return nil, false, err
		}
		c.emit(Instruction{Op: OpGetUpval, A: reg, B: idx})
		curReg = reg
		target = &assignTarget{kind: "upvalue", upvalIdx: idx}
	} else {
		kidx := c.addConstant(String(name))
		reg, err := c.allocate()
		if err != nil {
			return nil, false, err
		}
		c.emit(Instruction{Op: OpGetGlobal, A: reg, B: kidx})
		curReg = reg
		target = &assignTarget{kind: "global", constIdx: kidx}
	}

	for c.check(frontend.Dot) {
		c.advance()
		fieldTok, err := c.expect(frontend.Ident, "field name")
		if err != nil {
			return nil, false, err
		}
		kidx := c.addConstant(String(fieldTok.Lexeme))
		keyReg, err := c.allocate()
		if err != nil {
			return nil, false, err
		}
		c.emit(Instruction{Op: OpLoadK, A: keyReg, B: kidx})

		if c.check(frontend.LParen) {
			return &assignTarget{kind: "table", reg: curReg, keyReg: keyReg}, false, nil
		}

		newReg, err := c.allocate()
		if err != nil {
			return nil, false, err
		}
		c.emit(Instruction{Op: OpGetTable, A: newReg, B: curReg, C: keyReg})
		curReg = newReg
		target = &assignTarget{kind: "table", reg: curReg}
	}

	if c.match(frontend.Colon) {
		methodTok, err := c.expect(frontend.Ident, "method name")
		if err != nil {
			return nil, false, err
		}
		kidx := c.addConstant(String(methodTok.Lexeme))
		keyReg, err := c.allocate()
		if err != nil {
			return nil, false, err
		}
		c.emit(Instruction{Op: OpLoadK, A: keyReg, B: kidx})
		return &assignTarget{kind: "table", reg: curReg, keyReg: keyReg}, true, nil
	}

	return target, false, nil
}

// parseFunctionBody parses `(params) block end` (the `function`
// keyword already consumed) into a child Prototype and emits a
// CLOSURE instruction in the enclosing function, returning the
// register holding the new closure. implicitSelf prepends a `self`
// parameter for method definitions (`function t:m(...)`).
func (c *Compiler) parseFunctionBody(implicitSelf bool) (int, error) {
	if _, err := c.expect(frontend.LParen, "'('"); err != nil {
		return 0, err
	}

	parent := c.state
	child := newCompilerState(parent)
	c.state = child

	var params []string
	if implicitSelf {
		params = append(params, "self")
	}
	isVarargBody := false
	if !c.check(frontend.RParen) {
		for {
			if c.check(frontend.DotDotDot) {
				c.advance()
				isVarargBody = true
				break
			}
			t, err := c.expect(frontend.Ident, "parameter name")
			if err != nil {
				c.state = parent
				return 0, err
			}
			params = append(params, t.Lexeme)
			if !c.match(frontend.Comma) {
				break
			}
		}
	}
	if _, err := c.expect(frontend.RParen, "')'"); err != nil {
		c.state = parent
		return 0, err
	}

	for _, pn := range params {
		reg, err := c.allocate()
		if err != nil {
			c.state = parent
			return 0, err
		}
		c.state.bindLocal(pn, reg)
	}
	child.proto.NumParams = len(params)

	savedVararg := c.isVararg
	c.isVararg = isVarargBody

	if err := c.compileFunctionBody([]frontend.TokenKind{frontend.KwEnd}); err != nil {
		c.state = parent
		c.isVararg = savedVararg
		return 0, err
	}
	if _, err := c.expect(frontend.KwEnd, "'end'"); err != nil {
		c.state = parent
		c.isVararg = savedVararg
		return 0, err
	}

	c.state = parent
	c.isVararg = savedVararg

	protoIdx := c.state.proto.addProto(child.proto)
	dst, err := c.allocate()
	if err != nil {
		return 0, err
	}
	c.emit(Instruction{Op: OpClosure, A: dst, B: protoIdx})
	c.trailingCall = nil
	return dst, nil
}

// parseReturnStatement parses `return [explist]`, evaluating each
// expression then moving the results into a fresh contiguous block so
// RETURN's operands describe a single run of registers.
func (c *Compiler) parseReturnStatement() error {
	c.advance() // KwReturn

	if c.atReturnEnd() {
		c.emit(Instruction{Op: OpReturn, A: 0, B: 1})
		return nil
	}

	var regs []int
	r, err := c.parseExpr()
	if err != nil {
		return err
	}
	regs = append(regs, r)
	for c.match(frontend.Comma) {
		r, err := c.parseExpr()
		if err != nil {
			return err
		}
		regs = append(regs, r)
	}

	base, ok := c.state.allocateBlock(len(regs))
	if !ok {
		return c.errorf(feedback.SemanticError, "too many registers used in a single function")
	}
	for i, r := range regs {
		if base+i != r {
			c.emit(Instruction{Op: OpMove, A: base + i, B: r})
		}
	}
	c.emit(Instruction{Op: OpReturn, A: base, B: len(regs) + 1})
	return nil
}

func (c *Compiler) atReturnEnd() bool {
	switch c.peek().Kind {
	case frontend.Semicolon, frontend.KwEnd, frontend.KwElse, frontend.KwElseif, frontend.EOF:
		return true
	default:
		return false
	}
}

// parseBreakStatement records this break as pending against the
// innermost enclosing loop, to be patched once that loop's compiler
// knows where the loop exits to.
func (c *Compiler) parseBreakStatement() error {
	c.advance()
	idx := c.emit(Instruction{Op: OpJmp})
	if !c.state.addBreak(idx) {
		return c.errorf(feedback.SemanticError, "break outside a loop")
	}
	return nil
}

func (c *Compiler) parseGotoStatement() error {
	c.advance()
	labelTok, err := c.expect(frontend.Ident, "label name")
	if err != nil {
		return err
	}
	idx := c.emit(Instruction{Op: OpJmp})
	c.state.pendingGotos = append(c.state.pendingGotos, pendingGoto{
		label:      labelTok.Lexeme,
		instrIndex: idx,
		line:       labelTok.Line,
	})
	return nil
}

func (c *Compiler) parseLabelStatement() error {
	c.advance() // '::'
	labelTok, err := c.expect(frontend.Ident, "label name")
	if err != nil {
		return err
	}
	if _, err := c.expect(frontend.ColonColon, "'::'"); err != nil {
		return err
	}
	c.state.labels[labelTok.Lexeme] = len(c.state.proto.Instructions)
	return nil
}

// parseIfStatement parses `if cond then block {elseif cond then
// block} [else block] end`, per spec.md §4.2.1's JMP_FALSE/JMP chain
// lowering.
func (c *Compiler) parseIfStatement() error {
	c.advance() // KwIf

	cond, err := c.parseExpr()
	if err != nil {
		return err
	}
	if _, err := c.expect(frontend.KwThen, "'then'"); err != nil {
		return err
	}
	jf := c.emit(Instruction{Op: OpJmpFalse, A: cond})

	clauseTerm := []frontend.TokenKind{frontend.KwElseif, frontend.KwElse, frontend.KwEnd}
	if err := c.parseBlock(clauseTerm); err != nil {
		return err
	}

	var jumpEnds []int
	for c.check(frontend.KwElseif) {
		jumpEnds = append(jumpEnds, c.emit(Instruction{Op: OpJmp}))
		c.state.proto.patchJump(jf)

		c.advance() // elseif
		cond, err := c.parseExpr()
		if err != nil {
			return err
		}
		if _, err := c.expect(frontend.KwThen, "'then'"); err != nil {
			return err
		}
		jf = c.emit(Instruction{Op: OpJmpFalse, A: cond})
		if err := c.parseBlock(clauseTerm); err != nil {
			return err
		}
	}

	if c.match(frontend.KwElse) {
		jumpEnds = append(jumpEnds, c.emit(Instruction{Op: OpJmp}))
		c.state.proto.patchJump(jf)
		if err := c.parseBlock([]frontend.TokenKind{frontend.KwEnd}); err != nil {
			return err
		}
	} else {
		c.state.proto.patchJump(jf)
	}

	if _, err := c.expect(frontend.KwEnd, "'end'"); err != nil {
		return err
	}
	for _, j := range jumpEnds {
		c.state.proto.patchJump(j)
	}
	return nil
}

// parseWhileStatement parses `while cond do block end`.
func (c *Compiler) parseWhileStatement() error {
	c.advance() // KwWhile
	loopStart := len(c.state.proto.Instructions)

	cond, err := c.parseExpr()
	if err != nil {
		return err
	}
	if _, err := c.expect(frontend.KwDo, "'do'"); err != nil {
		return err
	}
	jf := c.emit(Instruction{Op: OpJmpFalse, A: cond})

	c.state.pushLoop()
	if err := c.parseBlock([]frontend.TokenKind{frontend.KwEnd}); err != nil {
		return err
	}
	if _, err := c.expect(frontend.KwEnd, "'end'"); err != nil {
		return err
	}

	back := c.emit(Instruction{Op: OpJmp})
	c.state.proto.patchJumpTo(back, loopStart)
	c.state.proto.patchJump(jf)

	for _, bj := range c.state.popLoop() {
		c.state.proto.patchJump(bj)
	}
	return nil
}

// parseForStatement disambiguates numeric `for i = a, b[, c] do ...
// end` from generic `for k, v in iter do ... end` by looking one
// token past the loop variable's name.
func (c *Compiler) parseForStatement() error {
	if c.peekAt(2).Kind == frontend.Assign {
		return c.parseNumericForStatement()
	}
	return c.parseGenericForStatement()
}

func (c *Compiler) parseNumericForStatement() error {
	c.advance() // KwFor
	nameTok, err := c.expect(frontend.Ident, "identifier")
	if err != nil {
		return err
	}
	if _, err := c.expect(frontend.Assign, "'='"); err != nil {
		return err
	}

	startReg, err := c.parseExpr()
	if err != nil {
		return err
	}
	if _, err := c.expect(frontend.Comma, "','"); err != nil {
		return err
	}
	stopReg, err := c.parseExpr()
	if err != nil {
		return err
	}

	stepReg := -1
	if c.match(frontend.Comma) {
		posBefore := c.pos
		r, err := c.parseExpr()
		if err != nil {
			return err
		}
		if c.pos-posBefore == 1 {
			tok := c.toks[posBefore]
			if tok.Kind == frontend.Number {
				if v, verr := parseNumberLiteral(tok.Lexeme); verr == nil && v == 0 {
					return c.errorf(feedback.SemanticError, "'for' step is zero")
				}
			}
		}
		stepReg = r
	}
	if _, err := c.expect(frontend.KwDo, "'do'"); err != nil {
		return err
	}

	base, ok := c.state.allocateBlock(4)
	if !ok {
		return c.errorf(feedback.SemanticError, "too many registers used in a single function")
	}
	c.emit(Instruction{Op: OpMove, A: base, B: startReg})
	c.emit(Instruction{Op: OpMove, A: base + 1, B: stopReg})
	if stepReg == -1 {
		kidx := c.addConstant(Number(1))
		c.emit(Instruction{Op: OpLoadK, A: base + 2, B: kidx})
	} else {
		c.emit(Instruction{Op: OpMove, A: base + 2, B: stepReg})
	}

	c.state.bindLocal("(for state)", base)
	c.state.bindLocal("(for limit)", base+1)
	c.state.bindLocal("(for step)", base+2)
	c.state.bindLocal(nameTok.Lexeme, base+3)

	prepIdx := c.emit(Instruction{Op: OpForPrep, A: base})
	bodyStart := len(c.state.proto.Instructions)

	c.state.pushLoop()
	if err := c.parseBlock([]frontend.TokenKind{frontend.KwEnd}); err != nil {
		return err
	}
	if _, err := c.expect(frontend.KwEnd, "'end'"); err != nil {
		return err
	}

	loopIdx := c.emit(Instruction{Op: OpForLoop, A: base})
	c.state.proto.patchJumpTo(prepIdx, loopIdx)
	c.state.proto.patchJumpTo(loopIdx, bodyStart)

	for _, bj := range c.state.popLoop() {
		c.state.proto.patchJump(bj)
	}

	c.state.unbindLocal(nameTok.Lexeme)
	c.state.unbindLocal("(for step)")
	c.state.unbindLocal("(for limit)")
	c.state.unbindLocal("(for state)")
	return nil
}

func (c *Compiler) parseGenericForStatement() error {
	c.advance() // KwFor

	var names []string
	first, err := c.expect(frontend.Ident, "identifier")
	if err != nil {
		return err
	}
	names = append(names, first.Lexeme)
	for c.match(frontend.Comma) {
		t, err := c.expect(frontend.Ident, "identifier")
		if err != nil {
			return err
		}
		names = append(names, t.Lexeme)
	}
	if _, err := c.expect(frontend.KwIn, "'in'"); err != nil {
		return err
	}

	var exprRegs []int
	r, err := c.parseExpr()
	if err != nil {
		return err
	}
	exprRegs = append(exprRegs, r)
	for c.match(frontend.Comma) {
		r, err := c.parseExpr()
		if err != nil {
			return err
		}
		exprRegs = append(exprRegs, r)
	}

	if len(exprRegs) == 1 && c.trailingCall != nil && c.trailingCall.reg == exprRegs[0] {
		b0 := exprRegs[0]
		c.state.proto.setCallResultCount(c.trailingCall.instrIndex, 4)
		for i := 1; i < 3; i++ {
			if err := c.reserve(b0 + i); err != nil {
				return err
			}
		}
		exprRegs = []int{b0, b0 + 1, b0 + 2}
	}

	ctrl := make([]int, 3)
	for i := 0; i < 3; i++ {
		if i < len(exprRegs) {
			ctrl[i] = exprRegs[i]
		} else {
			reg, err := c.allocate()
			if err != nil {
				return err
			}
			kidx := c.addConstant(Nil)
			c.emit(Instruction{Op: OpLoadK, A: reg, B: kidx})
			ctrl[i] = reg
		}
	}

	if _, err := c.expect(frontend.KwDo, "'do'"); err != nil {
		return err
	}

	base, ok := c.state.allocateBlock(3)
	if !ok {
		return c.errorf(feedback.SemanticError, "too many registers used in a single function")
	}
	c.emit(Instruction{Op: OpMove, A: base, B: ctrl[0]})
	c.emit(Instruction{Op: OpMove, A: base + 1, B: ctrl[1]})
	c.emit(Instruction{Op: OpMove, A: base + 2, B: ctrl[2]})

	c.state.bindLocal("(for iterator)", base)
	c.state.bindLocal("(for state)", base+1)
	c.state.bindLocal("(for control)", base+2)

	namesBase, ok := c.state.allocateBlock(len(names))
	if !ok {
		return c.errorf(feedback.SemanticError, "too many registers used in a single function")
	}
	for i, nm := range names {
		c.state.bindLocal(nm, namesBase+i)
	}

	jmpToTest := c.emit(Instruction{Op: OpJmp})
	bodyStart := len(c.state.proto.Instructions)

	c.state.pushLoop()
	if err := c.parseBlock([]frontend.TokenKind{frontend.KwEnd}); err != nil {
		return err
	}
	if _, err := c.expect(frontend.KwEnd, "'end'"); err != nil {
		return err
	}

	c.state.proto.patchJump(jmpToTest)
	c.emit(Instruction{Op: OpTForCall, A: base, C: len(names)})
	loopIdx := c.emit(Instruction{Op: OpTForLoop, A: base + 2})
	c.state.proto.patchJumpTo(loopIdx, bodyStart)

	for _, bj := range c.state.popLoop() {
		c.state.proto.patchJump(bj)
	}

	for i := len(names) - 1; i >= 0; i-- {
		c.state.unbindLocal(names[i])
	}
	c.state.unbindLocal("(for control)")
	c.state.unbindLocal("(for state)")
	c.state.unbindLocal("(for iterator)")
	c.state.freeAbove(base + 2)
	return nil
}
