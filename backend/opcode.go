package backend

// OpCode is the canonical numbering of the three-address virtual
// machine's instruction set, per spec.md §4.5. These numbers are the
// ones the Compiler bakes into every Instruction; the Emitter may
// remap them through an OpCodeStrategy before writing them into the
// emitted program, but the Compiler itself never sees anything but
// this canonical numbering.
//
// No PRINT opcode is retained (see spec.md's Open Questions): a call
// to the global `print` lowers through GETGLOBAL+CALL like any other
// global function call.
type OpCode uint8

// The canonical opcode set, in the order spec.md §4.5 lists them.
const (
	OpMove OpCode = iota
	OpLoadK
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIDiv
	OpMod
	OpConcat
	OpLen
	OpNot
	OpEq
	OpLt
	OpLe
	OpJmp
	OpJmpFalse
	OpGetGlobal
	OpSetGlobal
	OpNewTable
	OpGetTable
	OpSetTable
	OpCall
	OpClosure
	OpGetUpval
	OpSetUpval
	OpVararg
	OpForPrep
	OpForLoop
	OpTForCall
	OpTForLoop
	OpReturn

	// lastOp is a sentinel equal to the highest real opcode; used by
	// OpCodeStrategy implementations to size their permutation table.
	lastOp = OpReturn
)

// LastOp returns the highest-numbered canonical opcode, inclusive.
func LastOp() OpCode { return lastOp }

// names gives each opcode the bare mnemonic used both by
// Prototype.Dump and by the Emitter's opcode-name constant bank (the
// emitted SL local is named "OP_" + this mnemonic).
var names = [...]string{
	OpMove:      "MOVE",
	OpLoadK:     "LOADK",
	OpAdd:       "ADD",
	OpSub:       "SUB",
	OpMul:       "MUL",
	OpDiv:       "DIV",
	OpIDiv:      "IDIV",
	OpMod:       "MOD",
	OpConcat:    "CONCAT",
	OpLen:       "LEN",
	OpNot:       "NOT",
	OpEq:        "EQ",
	OpLt:        "LT",
	OpLe:        "LE",
	OpJmp:       "JMP",
	OpJmpFalse:  "JMP_FALSE",
	OpGetGlobal: "GETGLOBAL",
	OpSetGlobal: "SETGLOBAL",
	OpNewTable:  "NEWTABLE",
	OpGetTable:  "GETTABLE",
	OpSetTable:  "SETTABLE",
	OpCall:      "CALL",
	OpClosure:   "CLOSURE",
	OpGetUpval:  "GETUPVAL",
	OpSetUpval:  "SETUPVAL",
	OpVararg:    "VARARG",
	OpForPrep:   "FORPREP",
	OpForLoop:   "FORLOOP",
	OpTForCall:  "TFORCALL",
	OpTForLoop:  "TFORLOOP",
	OpReturn:    "RETURN",
}

// String returns the opcode's bare mnemonic, e.g. "ADD".
func (op OpCode) String() string {
	if int(op) < len(names) {
		return names[op]
	}
	return "UNKNOWN"
}

// AllOpCodes returns every canonical opcode in ascending numeric
// order, used by OpCodeStrategy implementations and by the Emitter's
// opcode-name bank.
func AllOpCodes() []OpCode {
	ops := make([]OpCode, int(lastOp)+1)
	for i := range ops {
		ops[i] = OpCode(i)
	}
	return ops
}
