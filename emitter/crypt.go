package emitter

import (
	"fmt"
	"strconv"
	"strings"
)

// stringXORKey is the fixed byte every string constant is XORed
// against when -encrypt is set, undone at runtime by the emitted
// decrypt_string helper.
const stringXORKey = 0xAA

// instructionXORBase is XORed with the instruction's 1-based program
// counter to derive the per-instruction key, undone at runtime by the
// emitted decrypt_instruction helper.
const instructionXORBase = 0xDEADBEEF

// EncryptString renders a string constant as a call to the emitted
// decrypt_string helper over its XOR-0xAA'd bytes, so the literal
// text never appears in the emitted program.
func EncryptString(s string) string {
	var b strings.Builder
	b.WriteString("decrypt_string({")
	bytes := []byte(s)
	for i, by := range bytes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(by ^ stringXORKey)))
	}
	b.WriteString("})")
	return b.String()
}

// EncryptInstruction renders one instruction's four fields XORed with
// a key derived from its program counter, as the table literal the
// emitted decrypt_instruction helper expects.
func EncryptInstruction(op, a, b, c, pc int) string {
	key := instructionXORBase ^ pc
	return fmt.Sprintf("{%d, %d, %d, %d}", op^key, a^key, b^key, c^key)
}
