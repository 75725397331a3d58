package backend

import "fmt"

// Instruction is a single three-address bytecode instruction:
// {Op, A, B, C} per spec.md §3. B doubles as a signed jump offset or
// a constant-table index (`Bx`) depending on the opcode; C is unused
// by most opcodes.
type Instruction struct {
	Op OpCode
	A  int
	B  int
	C  int
}

// UpvalueInfo describes where a captured variable lives relative to
// the enclosing Prototype, per spec.md §3: if IsLocal, Index names a
// register in the immediately enclosing prototype; otherwise Index
// names an entry in the enclosing prototype's own Upvalues table.
type UpvalueInfo struct {
	IsLocal bool
	Index   int
}

// Prototype is the compiled representation of one function: its
// instruction stream, constant pool, nested function prototypes, and
// upvalue metadata (spec.md §3). The top-level Prototype returned by
// Compile owns every descendant in its Protos tree.
type Prototype struct {
	Instructions []Instruction
	Constants    []Value
	Protos       []*Prototype
	Upvalues     []UpvalueInfo
	NumParams    int
}

// emit appends an instruction and returns its index, the position a
// jump targeting "the instruction after this one" would start
// counting from.
func (p *Prototype) emit(inst Instruction) int {
	p.Instructions = append(p.Instructions, inst)
	return len(p.Instructions) - 1
}

// patchJump fixes up a previously emitted jump's B operand so that it
// lands on the instruction *about to be emitted next* (i.e. the
// current end of the instruction stream), per the "relative to the
// instruction after the jump" rule in spec.md invariant I1. This is
// one of the two sanctioned ways to mutate an already-emitted
// instruction's jump offset (patchJumpTo below is the other);
// call-result extension gets its own narrow setter below.
func (p *Prototype) patchJump(instrIdx int) {
	offset := len(p.Instructions) - instrIdx - 1
	p.Instructions[instrIdx].B = offset
}

// patchJumpTo sets a jump's B operand to an explicit target
// instruction index, used where the target is already known rather
// than "here": loop backedges, FORPREP's jump to its FORLOOP, and
// resolved gotos.
func (p *Prototype) patchJumpTo(instrIdx, targetIdx int) {
	p.Instructions[instrIdx].B = targetIdx - instrIdx - 1
}

// setCallResultCount rewrites a previously emitted CALL's C operand,
// implementing the multi-value adjustment from spec.md §4.2: when a
// trailing call needs to produce more than one result, the compiler
// goes back and sets C to `count` (results wanted plus one) in place
// of the original 2.
func (p *Prototype) setCallResultCount(instrIdx, count int) {
	p.Instructions[instrIdx].C = count
}

// addConstant appends a constant and returns its index. Deduplication
// is optional per spec.md §3 and is not performed here; correctness
// does not depend on it.
func (p *Prototype) addConstant(v Value) int {
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

// addProto appends a child prototype and returns its index.
func (p *Prototype) addProto(child *Prototype) int {
	p.Protos = append(p.Protos, child)
	return len(p.Protos) - 1
}

// Dump renders a disassembly of the prototype tree: one line per
// instruction, in the mnemonic form `OP a b c`, followed by each
// child prototype indented and labeled by its index. This backs the
// CLI's -dump flag.
func (p *Prototype) Dump() string {
	var buf []byte
	buf = p.dump(buf, 0)
	return string(buf)
}

func (p *Prototype) dump(buf []byte, depth int) []byte {
	indent := func(b []byte) []byte {
		for i := 0; i < depth; i++ {
			b = append(b, ' ', ' ')
		}
		return b
	}

	for i, inst := range p.Instructions {
		buf = indent(buf)
		buf = append(buf, []byte(fmt.Sprintf("%4d  %-10s %d %d %d\n", i, inst.Op, inst.A, inst.B, inst.C))...)
	}

	for i, child := range p.Protos {
		buf = indent(buf)
		buf = append(buf, []byte(fmt.Sprintf("-- proto #%d --\n", i))...)
		buf = child.dump(buf, depth+1)
	}

	return buf
}
