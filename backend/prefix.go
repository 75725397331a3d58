package backend

import "github.com/OxenFxc/luaaivmp/frontend"

// assignTarget describes where a prefix expression's final suffix can
// be assigned to, per spec.md §4.2.2's variable-resolution order
// (local, upvalue, global) plus table indexing.
type assignTarget struct {
	kind     string // "local", "upvalue", "global", "table"
	reg      int    // local: the bound register. table: the table register.
	keyReg   int    // table: the key register.
	upvalIdx int
	constIdx int // global: name constant index.
}

// parsePrefix parses an identifier and any chain of `.field`,
// `[expr]`, `(args)` and `:method(args)` suffixes, per spec.md's
// supplemented chained-lookup and method-call-sugar features.
//
// It returns the register holding the expression's current value, an
// assignTarget describing how to assign to it (nil once a call or a
// read-through has happened, since the result is a plain value, not
// an lvalue), and whether the final thing parsed was a call
// (meaningful as a standalone statement).
//
// stmtContext is true when this prefix is being parsed directly as a
// statement, which affects the result-count (C) chosen for a trailing
// call with no further suffixes.
func (c *Compiler) parsePrefix(stmtContext bool) (reg int, target *assignTarget, isCall bool, err error) {
	tok, err := c.expect(frontend.Ident, "identifier")
	if err != nil {
		return 0, nil, false, err
	}
	name := tok.Lexeme

	var curReg int
	if lreg, ok := c.state.lookupLocal(name); ok {
		curReg = lreg
		target = &assignTarget{kind: "local", reg: lreg}
	} else if idx := resolveUpvalue(c.state, name); idx != -1 {
		curReg, err = c.allocate()
		if err != nil {
			return 0, nil, false, err
		}
		c.emit(Instruction{Op: OpGetUpval, A: curReg, B: idx})
		target = &assignTarget{kind: "upvalue", upvalIdx: idx}
	} else {
		kidx := c.addConstant(String(name))
		curReg, err = c.allocate()
		if err != nil {
			return 0, nil, false, err
		}
		c.emit(Instruction{Op: OpGetGlobal, A: curReg, B: kidx})
		target = &assignTarget{kind: "global", constIdx: kidx}
	}
	c.trailingCall = nil
	isCall = false

	for {
		switch c.peek().Kind {
		case frontend.Dot:
			c.advance()
			fieldTok, err := c.expect(frontend.Ident, "field name")
			if err != nil {
				return 0, nil, false, err
			}
			kidx := c.addConstant(String(fieldTok.Lexeme))
			keyReg, err := c.allocate()
			if err != nil {
				return 0, nil, false, err
			}
			c.emit(Instruction{Op: OpLoadK, A: keyReg, B: kidx})

			if c.check(frontend.Assign) {
				target = &assignTarget{kind: "table", reg: curReg, keyReg: keyReg}
				return curReg, target, false, nil
			}

			newReg, err := c.allocate()
			if err != nil {
				return 0, nil, false, err
			}
			c.emit(Instruction{Op: OpGetTable, A: newReg, B: curReg, C: keyReg})
			curReg = newReg
			target = nil
			isCall = false

		case frontend.LBracket:
			c.advance()
			keyReg, err := c.parseExpr()
			if err != nil {
				return 0, nil, false, err
			}
			if _, err := c.expect(frontend.RBracket, "']'"); err != nil {
				return 0, nil, false, err
			}

			if c.check(frontend.Assign) {
				target = &assignTarget{kind: "table", reg: curReg, keyReg: keyReg}
				return curReg, target, false, nil
			}

			newReg, err := c.allocate()
			if err != nil {
				return 0, nil, false, err
			}
			c.emit(Instruction{Op: OpGetTable, A: newReg, B: curReg, C: keyReg})
			curReg = newReg
			target = nil
			isCall = false

		case frontend.LParen:
			c.advance()
			base := curReg
			argc, err := c.parseCallArgs(base, 0, nil)
			if err != nil {
				return 0, nil, false, err
			}
			resultCount := 2
			moreSuffixes := c.atSuffixStart()
			if stmtContext && !moreSuffixes {
				resultCount = 1
			}
			instrIdx := c.emit(Instruction{Op: OpCall, A: base, B: argc + 1, C: resultCount})
			curReg = base
			target = nil
			isCall = true
			c.trailingCall = &trailingCallInfo{instrIndex: instrIdx, reg: base}

		case frontend.Colon:
			c.advance()
			methodTok, err := c.expect(frontend.Ident, "method name")
			if err != nil {
				return 0, nil, false, err
			}
			kidx := c.addConstant(String(methodTok.Lexeme))
			keyReg, err := c.allocate()
			if err != nil {
				return 0, nil, false, err
			}
			c.emit(Instruction{Op: OpLoadK, A: keyReg, B: kidx})
			funcReg, err := c.allocate()
			if err != nil {
				return 0, nil, false, err
			}
			c.emit(Instruction{Op: OpGetTable, A: funcReg, B: curReg, C: keyReg})

			if _, err := c.expect(frontend.LParen, "'('"); err != nil {
				return 0, nil, false, err
			}
			argc, err := c.parseCallArgs(funcReg, 0, []int{curReg})
			if err != nil {
				return 0, nil, false, err
			}
			resultCount := 2
			moreSuffixes := c.atSuffixStart()
			if stmtContext && !moreSuffixes {
				resultCount = 1
			}
			instrIdx := c.emit(Instruction{Op: OpCall, A: funcReg, B: argc + 1, C: resultCount})
			curReg = funcReg
			target = nil
			isCall = true
			c.trailingCall = &trailingCallInfo{instrIndex: instrIdx, reg: funcReg}

		default:
			return curReg, target, isCall, nil
		}
	}
}

func (c *Compiler) atSuffixStart() bool {
	switch c.peek().Kind {
	case frontend.Dot, frontend.LBracket, frontend.LParen, frontend.Colon:
		return true
	default:
		return false
	}
}

// parseCallArgs parses a parenthesized, comma-separated argument list
// (the opening '(' already consumed) and moves each argument into the
// contiguous slot base+1+i, with i counting from startIdx, reserving each slot before
// evaluating the argument that lands there so the argument's own
// sub-expressions can never collide with it. preset supplies any
// slots already decided before the textual argument list (namely a
// method call's implicit receiver at index 0).
func (c *Compiler) parseCallArgs(base, startIdx int, preset []int) (int, error) {
	i := startIdx
	for _, p := range preset {
		slot := base + 1 + i
		if err := c.reserve(slot); err != nil {
			return 0, err
		}
		if p != slot {
			c.emit(Instruction{Op: OpMove, A: slot, B: p})
		}
		i++
	}

	if !c.check(frontend.RParen) {
		for {
			slot := base + 1 + i
			if err := c.reserve(slot); err != nil {
				return 0, err
			}
			r, err := c.parseExpr()
			if err != nil {
				return 0, err
			}
			if r != slot {
				c.emit(Instruction{Op: OpMove, A: slot, B: r})
			}
			i++
			if !c.match(frontend.Comma) {
				break
			}
		}
	}

	if _, err := c.expect(frontend.RParen, "')'"); err != nil {
		return 0, err
	}
	return i, nil
}

// parseTableConstructor compiles a `{ ... }` literal into a NEWTABLE
// plus one SETTABLE per entry, per spec.md §4.2.2. Array-style entries
// get an implicit, auto-incrementing integer key; `[expr] = value` and
// `ident = value` entries set an explicit key. Scratch registers used
// by one entry are released before the next so a constructor with many
// entries doesn't exhaust the register file.
func (c *Compiler) parseTableConstructor() (int, error) {
	if _, err := c.expect(frontend.LBrace, "'{'"); err != nil {
		return 0, err
	}

	tableReg, err := c.allocate()
	if err != nil {
		return 0, err
	}
	c.emit(Instruction{Op: OpNewTable, A: tableReg})
	c.trailingCall = nil

	if c.match(frontend.RBrace) {
		return tableReg, nil
	}

	snap := c.state.snapshotAllocated()
	arrayIdx := 1
	first := true

	for {
		if !first {
			c.state.restoreAllocated(snap)
		}
		first = false

		switch {
		case c.check(frontend.LBracket):
			c.advance()
			keyReg, err := c.parseExpr()
			if err != nil {
				return 0, err
			}
			if _, err := c.expect(frontend.RBracket, "']'"); err != nil {
				return 0, err
			}
			if _, err := c.expect(frontend.Assign, "'='"); err != nil {
				return 0, err
			}
			valReg, err := c.parseExpr()
			if err != nil {
				return 0, err
			}
			c.emit(Instruction{Op: OpSetTable, A: tableReg, B: keyReg, C: valReg})

		case c.check(frontend.Ident) && c.peekAt(1).Kind == frontend.Assign:
			fieldTok := c.advance()
			c.advance() // '='
			valReg, err := c.parseExpr()
			if err != nil {
				return 0, err
			}
			kidx := c.addConstant(String(fieldTok.Lexeme))
			keyReg, err := c.allocate()
			if err != nil {
				return 0, err
			}
			c.emit(Instruction{Op: OpLoadK, A: keyReg, B: kidx})
			c.emit(Instruction{Op: OpSetTable, A: tableReg, B: keyReg, C: valReg})

		default:
			valReg, err := c.parseExpr()
			if err != nil {
				return 0, err
			}
			kidx := c.addConstant(Number(float64(arrayIdx)))
			arrayIdx++
			keyReg, err := c.allocate()
			if err != nil {
				return 0, err
			}
			c.emit(Instruction{Op: OpLoadK, A: keyReg, B: kidx})
			c.emit(Instruction{Op: OpSetTable, A: tableReg, B: keyReg, C: valReg})
		}

		if !c.match(frontend.Comma) && !c.match(frontend.Semicolon) {
			break
		}
		if c.check(frontend.RBrace) {
			break
		}
	}

	if _, err := c.expect(frontend.RBrace, "'}'"); err != nil {
		return 0, err
	}

	c.trailingCall = nil
	return tableReg, nil
}
