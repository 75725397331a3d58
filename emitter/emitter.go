// Package emitter turns a compiled backend.Prototype tree into a
// self-contained SL program: a data table describing the bytecode
// plus a fixed virtual-machine driver, embedded as SL source text so
// the output needs nothing but an SL interpreter to run (spec.md §6).
package emitter

import (
	"fmt"
	"strings"

	"github.com/OxenFxc/luaaivmp/backend"
	"github.com/OxenFxc/luaaivmp/vmp"
)

// Options controls the optional obfuscation passes spec.md's VMP
// section describes. Strategy may be left nil, which is treated as
// vmp.Identity{}.
type Options struct {
	Strategy vmp.OpCodeStrategy
	Encrypt  bool // per-instruction XOR and string XOR obfuscation
	Pack     bool // whitespace/comment minification of the final text
}

// Emit serializes proto into a runnable SL program per Options.
func Emit(proto *backend.Prototype, opts Options) string {
	strategy := opts.Strategy
	if strategy == nil {
		strategy = vmp.Identity{}
	}

	var b strings.Builder
	writeOpcodeBank(&b, strategy)

	if opts.Encrypt {
		b.WriteString(decryptHelpersSource)
	}

	b.WriteString("local main_proto = ")
	writeProto(&b, proto, strategy, opts.Encrypt)
	b.WriteString("\n")

	b.WriteString(vmDriverPrelude)
	if opts.Encrypt {
		b.WriteString("        local inst = decrypt_instruction(code[pc], pc)\n")
	} else {
		b.WriteString("        local inst = code[pc]\n")
	}
	b.WriteString(vmDriverBody)

	out := b.String()
	if opts.Pack {
		out = Minify(out)
	}
	return out
}

// opcodeNames lists the mnemonic-order used for the emitted
// "local OP_X = <n>" bank, mirroring LuaGenerator.cpp's fixed
// ordering so a diff against the original's output structure is
// mechanical even after opcode renumbering.
var opcodeNames = []struct {
	mnemonic string
	op       backend.OpCode
}{
	{"OP_MOVE", backend.OpMove},
	{"OP_LOADK", backend.OpLoadK},
	{"OP_ADD", backend.OpAdd},
	{"OP_SUB", backend.OpSub},
	{"OP_MUL", backend.OpMul},
	{"OP_DIV", backend.OpDiv},
	{"OP_IDIV", backend.OpIDiv},
	{"OP_MOD", backend.OpMod},
	{"OP_CONCAT", backend.OpConcat},
	{"OP_LEN", backend.OpLen},
	{"OP_NOT", backend.OpNot},
	{"OP_EQ", backend.OpEq},
	{"OP_LT", backend.OpLt},
	{"OP_LE", backend.OpLe},
	{"OP_JMP", backend.OpJmp},
	{"OP_JMP_FALSE", backend.OpJmpFalse},
	{"OP_GETGLOBAL", backend.OpGetGlobal},
	{"OP_SETGLOBAL", backend.OpSetGlobal},
	{"OP_NEWTABLE", backend.OpNewTable},
	{"OP_GETTABLE", backend.OpGetTable},
	{"OP_SETTABLE", backend.OpSetTable},
	{"OP_CALL", backend.OpCall},
	{"OP_CLOSURE", backend.OpClosure},
	{"OP_GETUPVAL", backend.OpGetUpval},
	{"OP_SETUPVAL", backend.OpSetUpval},
	{"OP_VARARG", backend.OpVararg},
	{"OP_FORPREP", backend.OpForPrep},
	{"OP_FORLOOP", backend.OpForLoop},
	{"OP_TFORCALL", backend.OpTForCall},
	{"OP_TFORLOOP", backend.OpTForLoop},
	{"OP_RETURN", backend.OpReturn},
}

func writeOpcodeBank(b *strings.Builder, strategy vmp.OpCodeStrategy) {
	for _, entry := range opcodeNames {
		fmt.Fprintf(b, "local %s = %d\n", entry.mnemonic, strategy.Get(entry.op))
	}
	b.WriteString("\n")
}

// writeProto recursively serializes one Prototype as an SL table
// literal: numParams, constants, code, protos, upvalues, per
// spec.md §4.3.
func writeProto(b *strings.Builder, proto *backend.Prototype, strategy vmp.OpCodeStrategy, encrypt bool) {
	b.WriteString("{\n")
	fmt.Fprintf(b, "  numParams = %d,\n", proto.NumParams)

	b.WriteString("  constants = {\n")
	for i, v := range proto.Constants {
		fmt.Fprintf(b, "    [%d] = %s,\n", i, constantLiteral(v, encrypt))
	}
	b.WriteString("  },\n")

	b.WriteString("  code = {\n")
	for i, inst := range proto.Instructions {
		op := strategy.Get(inst.Op)
		if encrypt {
			fmt.Fprintf(b, "    %s,\n", EncryptInstruction(op, inst.A, inst.B, inst.C, i+1))
		} else {
			fmt.Fprintf(b, "    {%d, %d, %d, %d},\n", op, inst.A, inst.B, inst.C)
		}
	}
	b.WriteString("  },\n")

	b.WriteString("  protos = {\n")
	for i, child := range proto.Protos {
		fmt.Fprintf(b, "    [%d] = ", i)
		writeProto(b, child, strategy, encrypt)
		b.WriteString(",\n")
	}
	b.WriteString("  },\n")

	b.WriteString("  upvalues = {\n")
	for i, uv := range proto.Upvalues {
		fmt.Fprintf(b, "    [%d] = { isLocal = %t, index = %d },\n", i, uv.IsLocal, uv.Index)
	}
	b.WriteString("  }\n")

	b.WriteString("}")
}

func constantLiteral(v backend.Value, encrypt bool) string {
	switch v.Kind {
	case backend.KindNumber:
		return formatNumber(v.Num)
	case backend.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case backend.KindString:
		if encrypt {
			return EncryptString(v.Str)
		}
		return quoteString(v.Str)
	default:
		return "nil"
	}
}

func formatNumber(n float64) string {
	s := fmt.Sprintf("%g", n)
	return s
}

// quoteString wraps a string constant in double quotes with no escape
// translation whatsoever, matching LuaGenerator.cpp's
// `out << "\"" << as_string(v) << "\""`. A `"` embedded in the source
// string lands in the output unescaped; spec.md §4.3 names this a
// known limitation, not a bug.
func quoteString(s string) string {
	return `"` + s + `"`
}
