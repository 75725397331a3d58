package backend

import (
	"github.com/OxenFxc/luaaivmp/feedback"
	"github.com/OxenFxc/luaaivmp/frontend"
)

// parseExpr is the entry point for the full expression grammar,
// spec.md §4.2.2: logic → compare → concat → term → factor → unary →
// atom, each level left-associative except concat (right-associative).
func (c *Compiler) parseExpr() (int, error) {
	return c.parseLogic()
}

func (c *Compiler) parseLogic() (int, error) {
	left, err := c.parseCompare()
	if err != nil {
		return 0, err
	}

	for c.check(frontend.KwAnd) || c.check(frontend.KwOr) {
		op := c.advance().Kind
		c.trailingCall = nil

		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.emit(Instruction{Op: OpMove, A: dst, B: left})

		if op == frontend.KwAnd {
			jmp := c.emit(Instruction{Op: OpJmpFalse, A: dst})
			right, err := c.parseCompare()
			if err != nil {
				return 0, err
			}
			c.emit(Instruction{Op: OpMove, A: dst, B: right})
			c.state.proto.patchJump(jmp)
		} else {
			notReg, err := c.allocate()
			if err != nil {
				return 0, err
			}
			c.emit(Instruction{Op: OpNot, A: notReg, B: dst})
			jmp := c.emit(Instruction{Op: OpJmpFalse, A: notReg})
			right, err := c.parseCompare()
			if err != nil {
				return 0, err
			}
			c.emit(Instruction{Op: OpMove, A: dst, B: right})
			c.state.proto.patchJump(jmp)
		}

		left = dst
		c.trailingCall = nil
	}

	return left, nil
}

func (c *Compiler) parseCompare() (int, error) {
	left, err := c.parseConcat()
	if err != nil {
		return 0, err
	}

	for {
		var kind frontend.TokenKind
		switch c.peek().Kind {
		case frontend.Eq, frontend.Ne, frontend.Lt, frontend.Le, frontend.Gt, frontend.Ge:
			kind = c.peek().Kind
		default:
			return left, nil
		}
		c.advance()

		right, err := c.parseConcat()
		if err != nil {
			return 0, err
		}

		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}

		switch kind {
		case frontend.Eq:
			c.emit(Instruction{Op: OpEq, A: dst, B: left, C: right})
		case frontend.Ne:
			c.emit(Instruction{Op: OpEq, A: dst, B: left, C: right})
			c.emit(Instruction{Op: OpNot, A: dst, B: dst})
		case frontend.Lt:
			c.emit(Instruction{Op: OpLt, A: dst, B: left, C: right})
		case frontend.Le:
			c.emit(Instruction{Op: OpLe, A: dst, B: left, C: right})
		case frontend.Gt:
			// a > b lowers to LT with swapped operands.
			c.emit(Instruction{Op: OpLt, A: dst, B: right, C: left})
		case frontend.Ge:
			c.emit(Instruction{Op: OpLe, A: dst, B: right, C: left})
		}

		left = dst
		c.trailingCall = nil
	}
}

func (c *Compiler) parseConcat() (int, error) {
	left, err := c.parseTerm()
	if err != nil {
		return 0, err
	}

	if c.check(frontend.DotDot) {
		c.advance()
		right, err := c.parseConcat() // right-associative
		if err != nil {
			return 0, err
		}
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.emit(Instruction{Op: OpConcat, A: dst, B: left, C: right})
		c.trailingCall = nil
		return dst, nil
	}

	return left, nil
}

func (c *Compiler) parseTerm() (int, error) {
	left, err := c.parseFactor()
	if err != nil {
		return 0, err
	}

	for c.check(frontend.Plus) || c.check(frontend.Minus) {
		op := c.advance().Kind
		right, err := c.parseFactor()
		if err != nil {
			return 0, err
		}
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		if op == frontend.Plus {
			c.emit(Instruction{Op: OpAdd, A: dst, B: left, C: right})
		} else {
			c.emit(Instruction{Op: OpSub, A: dst, B: left, C: right})
		}
		left = dst
		c.trailingCall = nil
	}

	return left, nil
}

func (c *Compiler) parseFactor() (int, error) {
	left, err := c.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		var op OpCode
		switch c.peek().Kind {
		case frontend.Star:
			op = OpMul
		case frontend.Slash:
			op = OpDiv
		case frontend.SlashSlash:
			op = OpIDiv
		case frontend.Percent:
			op = OpMod
		default:
			return left, nil
		}
		c.advance()

		right, err := c.parseUnary()
		if err != nil {
			return 0, err
		}
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.emit(Instruction{Op: op, A: dst, B: left, C: right})
		left = dst
		c.trailingCall = nil
	}
}

func (c *Compiler) parseUnary() (int, error) {
	switch c.peek().Kind {
	case frontend.KwNot:
		c.advance()
		operand, err := c.parseUnary()
		if err != nil {
			return 0, err
		}
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.emit(Instruction{Op: OpNot, A: dst, B: operand})
		c.trailingCall = nil
		return dst, nil

	case frontend.Hash:
		c.advance()
		operand, err := c.parseUnary()
		if err != nil {
			return 0, err
		}
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.emit(Instruction{Op: OpLen, A: dst, B: operand})
		c.trailingCall = nil
		return dst, nil

	case frontend.Minus:
		c.advance()
		operand, err := c.parseUnary()
		if err != nil {
			return 0, err
		}
		zeroReg, err := c.allocate()
		if err != nil {
			return 0, err
		}
		kidx := c.addConstant(Number(0))
		c.emit(Instruction{Op: OpLoadK, A: zeroReg, B: kidx})
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.emit(Instruction{Op: OpSub, A: dst, B: zeroReg, C: operand})
		c.trailingCall = nil
		return dst, nil

	default:
		return c.parseAtom()
	}
}

func (c *Compiler) parseAtom() (int, error) {
	tok := c.peek()

	switch tok.Kind {
	case frontend.Number:
		c.advance()
		val, err := parseNumberLiteral(tok.Lexeme)
		if err != nil {
			return 0, c.errorf(feedback.ParseError, "invalid number literal %q", tok.Lexeme)
		}
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		kidx := c.addConstant(Number(val))
		c.emit(Instruction{Op: OpLoadK, A: dst, B: kidx})
		c.trailingCall = nil
		return dst, nil

	case frontend.String:
		c.advance()
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		kidx := c.addConstant(String(tok.Lexeme))
		c.emit(Instruction{Op: OpLoadK, A: dst, B: kidx})
		c.trailingCall = nil
		return dst, nil

	case frontend.KwNil:
		c.advance()
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		kidx := c.addConstant(Nil)
		c.emit(Instruction{Op: OpLoadK, A: dst, B: kidx})
		c.trailingCall = nil
		return dst, nil

	case frontend.KwTrue, frontend.KwFalse:
		c.advance()
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		kidx := c.addConstant(Bool(tok.Kind == frontend.KwTrue))
		c.emit(Instruction{Op: OpLoadK, A: dst, B: kidx})
		c.trailingCall = nil
		return dst, nil

	case frontend.DotDotDot:
		c.advance()
		if !c.isVararg {
			return 0, c.errorf(feedback.SemanticError, "cannot use '...' outside a variadic function")
		}
		dst, err := c.allocate()
		if err != nil {
			return 0, err
		}
		c.emit(Instruction{Op: OpVararg, A: dst, C: 2})
		c.trailingCall = nil
		return dst, nil

	case frontend.LBrace:
		return c.parseTableConstructor()

	case frontend.LParen:
		c.advance()
		reg, err := c.parseExpr()
		if err != nil {
			return 0, err
		}
		if _, err := c.expect(frontend.RParen, "')'"); err != nil {
			return 0, err
		}
		// Parenthesizing truncates any bare call to a single value.
		c.trailingCall = nil
		return reg, nil

	case frontend.KwFunction:
		c.advance()
		return c.parseFunctionBody(false)

	case frontend.Ident:
		reg, _, _, err := c.parsePrefix(false)
		return reg, err

	default:
		return 0, c.errorf(feedback.ParseError, "unexpected token %q", displayLexeme(tok))
	}
}
