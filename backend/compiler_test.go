package backend

import (
	"strings"
	"testing"

	"github.com/OxenFxc/luaaivmp/source"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) *Prototype {
	t.Helper()
	file := &source.File{Filename: "test.sl", Contents: src, Lines: strings.SplitAfter(src, "\n")}
	proto, err := Compile(file)
	require.NoError(t, err)
	return proto
}

func compileErr(t *testing.T, src string) error {
	t.Helper()
	file := &source.File{Filename: "test.sl", Contents: src, Lines: strings.SplitAfter(src, "\n")}
	_, err := Compile(file)
	require.Error(t, err)
	return err
}

// I6: every prototype's instruction stream ends in RETURN.
func TestEveryPrototypeEndsInReturn(t *testing.T) {
	proto := compile(t, "local x = 1\n")
	require.NotEmpty(t, proto.Instructions)
	require.Equal(t, OpReturn, proto.Instructions[len(proto.Instructions)-1].Op)
}

func TestEveryPrototypeEndsInReturnEvenAfterExplicitReturn(t *testing.T) {
	proto := compile(t, "return 1\n")
	require.Equal(t, OpReturn, proto.Instructions[len(proto.Instructions)-1].Op)
	returns := 0
	for _, inst := range proto.Instructions {
		if inst.Op == OpReturn {
			returns++
		}
	}
	require.Equal(t, 2, returns)
}

func TestArithmeticLowersToThreeAddressForm(t *testing.T) {
	proto := compile(t, "local x = 1 + 2 * 3\n")
	var add, mul int
	for _, inst := range proto.Instructions {
		if inst.Op == OpAdd {
			add++
		}
		if inst.Op == OpMul {
			mul++
		}
	}
	require.Equal(t, 1, add)
	require.Equal(t, 1, mul)
}

func TestGreaterThanLowersToSwappedLess(t *testing.T) {
	proto := compile(t, "local x = 1 > 2\n")
	found := false
	for _, inst := range proto.Instructions {
		if inst.Op == OpLt {
			found = true
		}
		require.NotEqual(t, OpLe, inst.Op, "strict > must not lower through LE")
	}
	require.True(t, found)
}

func TestNotEqualLowersThroughEqAndNot(t *testing.T) {
	proto := compile(t, "local x = 1 ~= 2\n")
	var eq, not int
	for _, inst := range proto.Instructions {
		if inst.Op == OpEq {
			eq++
		}
		if inst.Op == OpNot {
			not++
		}
	}
	require.Equal(t, 1, eq)
	require.Equal(t, 1, not)
}

func TestLocalVariableReadDoesNotAllocateFreshRegister(t *testing.T) {
	proto := compile(t, "local x = 1\nlocal y = x\n")
	// Each declaration ends in one MOVE into its freshly allocated local
	// register. y's initializer reads x's register directly, so it adds no
	// extra MOVE into a scratch register: two MOVEs in total.
	moves := 0
	for _, inst := range proto.Instructions {
		if inst.Op == OpMove {
			moves++
		}
	}
	require.Equal(t, 2, moves)
}

// I1: forward jump offsets patch relative to the instruction after the jump.
func TestIfStatementPatchesForwardJump(t *testing.T) {
	proto := compile(t, "if true then\n  local x = 1\nend\n")
	var jf Instruction
	var jfIdx int
	for i, inst := range proto.Instructions {
		if inst.Op == OpJmpFalse {
			jf = inst
			jfIdx = i
			break
		}
	}
	require.Equal(t, OpJmpFalse, jf.Op)
	target := jfIdx + 1 + jf.B
	require.GreaterOrEqual(t, target, jfIdx+1)
	require.LessOrEqual(t, target, len(proto.Instructions))
}

func TestWhileLoopBacklinks(t *testing.T) {
	proto := compile(t, "while true do\n  break\nend\n")
	var back Instruction
	var backIdx int
	for i, inst := range proto.Instructions {
		if inst.Op == OpJmp {
			back = inst
			backIdx = i
		}
	}
	// Last JMP in the function should be the backward loop edge, landing
	// at or before its own index.
	target := backIdx + 1 + back.B
	require.LessOrEqual(t, target, backIdx)
}

func TestBreakOutsideLoopIsAnError(t *testing.T) {
	compileErr(t, "break\n")
}

func TestNumericForStepZeroLiteralIsRejected(t *testing.T) {
	compileErr(t, "for i = 1, 10, 0 do end\n")
}

func TestNumericForLowersToForPrepAndForLoop(t *testing.T) {
	proto := compile(t, "for i = 1, 10 do\nend\n")
	var hasPrep, hasLoop bool
	for _, inst := range proto.Instructions {
		if inst.Op == OpForPrep {
			hasPrep = true
		}
		if inst.Op == OpForLoop {
			hasLoop = true
		}
	}
	require.True(t, hasPrep)
	require.True(t, hasLoop)
}

func TestGenericForLowersToTForCallAndTForLoop(t *testing.T) {
	proto := compile(t, "for k, v in pairs(t) do\nend\n")
	var hasCall, hasLoop bool
	for _, inst := range proto.Instructions {
		if inst.Op == OpTForCall {
			hasCall = true
		}
		if inst.Op == OpTForLoop {
			hasLoop = true
		}
	}
	require.True(t, hasCall)
	require.True(t, hasLoop)
}

// Multi-value adjustment: `local a, b = f()` rewrites the trailing
// call's result count rather than padding with nils.
func TestLocalMultiAssignRewritesCallResultCount(t *testing.T) {
	proto := compile(t, "local a, b = f()\n")
	var call Instruction
	for _, inst := range proto.Instructions {
		if inst.Op == OpCall {
			call = inst
		}
	}
	require.Equal(t, OpCall, call.Op)
	require.Equal(t, 3, call.C)
}

func TestLocalMultiAssignPadsWithNilWhenNoTrailingCall(t *testing.T) {
	proto := compile(t, "local a, b = 1\n")
	loadKs := 0
	for _, inst := range proto.Instructions {
		if inst.Op == OpLoadK {
			loadKs++
		}
	}
	// One LOADK for the literal 1, one for the implicit nil.
	require.Equal(t, 2, loadKs)
}

// I5: register allocation fails cleanly once a function runs past 255.
func TestRegisterExhaustionIsAFatalError(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("local v")
		b.WriteString(itoaForTest(i))
		b.WriteString(" = ")
		b.WriteString(itoaForTest(i))
		b.WriteString("\n")
	}
	compileErr(t, b.String())
}

func itoaForTest(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// Upvalue capture: a nested function reading an enclosing local gets
// exactly one upvalue entry, regardless of how many times it reads it.
func TestUpvalueCaptureIsDeduplicated(t *testing.T) {
	proto := compile(t, `
local x = 1
local function f()
  return x + x
end
`)
	require.Len(t, proto.Protos, 1)
	require.Len(t, proto.Protos[0].Upvalues, 1)
	require.True(t, proto.Protos[0].Upvalues[0].IsLocal)
}

func TestNestedClosureCapturesGrandparentAsNonLocalUpvalue(t *testing.T) {
	proto := compile(t, `
local x = 1
local function outer()
  local function inner()
    return x
  end
end
`)
	outer := proto.Protos[0]
	require.Len(t, outer.Upvalues, 1)
	require.True(t, outer.Upvalues[0].IsLocal)

	inner := outer.Protos[0]
	require.Len(t, inner.Upvalues, 1)
	require.False(t, inner.Upvalues[0].IsLocal)
	require.Equal(t, 0, inner.Upvalues[0].Index)
}

func TestGotoLabelPatchesForward(t *testing.T) {
	proto := compile(t, `
goto done
local x = 1
::done::
`)
	var jmp Instruction
	var jmpIdx int
	for i, inst := range proto.Instructions {
		if inst.Op == OpJmp {
			jmp = inst
			jmpIdx = i
			break
		}
	}
	target := jmpIdx + 1 + jmp.B
	require.Equal(t, len(proto.Instructions)-1, target)
}

func TestUndefinedGotoIsAnError(t *testing.T) {
	compileErr(t, "goto nowhere\n")
}

func TestTableConstructorArrayKeysAutoIncrement(t *testing.T) {
	proto := compile(t, "local t = {10, 20, 30}\n")
	var keys []float64
	for _, c := range proto.Constants {
		if c.Kind == KindNumber && (c.Num == 1 || c.Num == 2 || c.Num == 3) {
			keys = append(keys, c.Num)
		}
	}
	require.Contains(t, keys, 1.0)
	require.Contains(t, keys, 2.0)
	require.Contains(t, keys, 3.0)
}

// S5: `local a = false or "x"` must store the right operand's actual
// value, not a coerced boolean — the destination register's final
// write is a straight MOVE from the string operand's register, never
// routed through OpNot.
func TestOrShortCircuitStoresRightOperandWithoutCoercion(t *testing.T) {
	proto := compile(t, `local a = false or "x"`+"\n")

	stringReg := -1
	for _, inst := range proto.Instructions {
		if inst.Op == OpLoadK && proto.Constants[inst.B].Kind == KindString && proto.Constants[inst.B].Str == "x" {
			stringReg = inst.A
		}
	}
	require.GreaterOrEqual(t, stringReg, 0)

	lastMoveIdx := -1
	for i, inst := range proto.Instructions {
		if inst.Op == OpMove && inst.B == stringReg {
			lastMoveIdx = i
		}
	}
	require.GreaterOrEqual(t, lastMoveIdx, 0)

	dst := proto.Instructions[lastMoveIdx].A
	for _, inst := range proto.Instructions[:lastMoveIdx] {
		require.False(t, inst.Op == OpNot && inst.A == dst,
			"destination register %d was coerced through NOT before storing the right operand", dst)
	}
}

// Mirror of the above for `and`: `local a = true and "x"` must also
// land the right operand's value directly, with no NOT writing the
// destination register before that final MOVE.
func TestAndShortCircuitStoresRightOperandWithoutCoercion(t *testing.T) {
	proto := compile(t, `local a = true and "x"`+"\n")

	stringReg := -1
	for _, inst := range proto.Instructions {
		if inst.Op == OpLoadK && proto.Constants[inst.B].Kind == KindString && proto.Constants[inst.B].Str == "x" {
			stringReg = inst.A
		}
	}
	require.GreaterOrEqual(t, stringReg, 0)

	lastMoveIdx := -1
	for i, inst := range proto.Instructions {
		if inst.Op == OpMove && inst.B == stringReg {
			lastMoveIdx = i
		}
	}
	require.GreaterOrEqual(t, lastMoveIdx, 0)

	dst := proto.Instructions[lastMoveIdx].A
	for _, inst := range proto.Instructions[:lastMoveIdx] {
		require.False(t, inst.Op == OpNot && inst.A == dst,
			"destination register %d was coerced through NOT before storing the right operand", dst)
	}
}

func TestMethodCallPassesReceiverAsFirstArgument(t *testing.T) {
	proto := compile(t, "local t = {}\nt:m(1)\n")
	var call Instruction
	for _, inst := range proto.Instructions {
		if inst.Op == OpCall {
			call = inst
		}
	}
	// receiver + explicit arg => argc 2, encoded as B = argc+1 = 3.
	require.Equal(t, 3, call.B)
}
