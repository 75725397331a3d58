package emitter

import (
	"strings"
	"testing"

	"github.com/OxenFxc/luaaivmp/backend"
	"github.com/OxenFxc/luaaivmp/source"
	"github.com/OxenFxc/luaaivmp/vmp"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, src string) *backend.Prototype {
	t.Helper()
	file := &source.File{Filename: "test.sl", Contents: src}
	proto, err := backend.Compile(file)
	require.NoError(t, err)
	return proto
}

func TestEmitIdentityContainsCanonicalOpcodes(t *testing.T) {
	proto := compile(t, "local x = 1 + 2\n")
	out := Emit(proto, Options{Strategy: vmp.Identity{}})

	require.Contains(t, out, "local OP_MOVE = 0")
	require.Contains(t, out, "local main_proto = {")
	require.Contains(t, out, "run_vm({ proto = main_proto, upvalues = {} }, {})")
}

func TestEmitWithoutEncryptionEmbedsPlainStrings(t *testing.T) {
	proto := compile(t, `local s = "hello"` + "\n")
	out := Emit(proto, Options{Strategy: vmp.Identity{}})
	require.Contains(t, out, `"hello"`)
	require.NotContains(t, out, "decrypt_string")
}

// The emitter performs no escape translation when serializing string
// constants (spec.md §4.3): an embedded quote passes through as-is,
// matching LuaGenerator.cpp's unescaped `"` + value + `"` output.
func TestQuoteStringPerformsNoEscaping(t *testing.T) {
	require.Equal(t, `"say "hi""`, quoteString(`say "hi"`))
	require.Equal(t, `"back\slash"`, quoteString(`back\slash`))
}

func TestEmitWithEncryptionHidesPlainStrings(t *testing.T) {
	proto := compile(t, `local s = "hello"` + "\n")
	out := Emit(proto, Options{Strategy: vmp.Identity{}, Encrypt: true})
	require.NotContains(t, out, `"hello"`)
	require.Contains(t, out, "decrypt_string")
	require.Contains(t, out, "decrypt_instruction")
}

func TestEncryptStringRoundTripsThroughXOR(t *testing.T) {
	enc := EncryptString("abc")
	require.True(t, strings.HasPrefix(enc, "decrypt_string({"))
	for _, by := range []byte("abc") {
		require.Contains(t, enc, itoa(int(by^stringXORKey)))
	}
}

func TestEncryptInstructionIsInvolution(t *testing.T) {
	pc := 7
	key := instructionXORBase ^ pc
	op, a, b, c := 3, 1, 2, 0
	enc := EncryptInstruction(op, a, b, c, pc)
	require.Equal(t, itoa(op^key), extractField(enc, 0))
	require.Equal(t, itoa(a^key), extractField(enc, 1))
}

func TestMinifyPreservesStringContents(t *testing.T) {
	src := `local x = "a -- not a comment\n  spaced"  -- real comment
local y = 1`
	out := Minify(src)
	require.Contains(t, out, `"a -- not a comment\n  spaced"`)
	require.NotContains(t, out, "real comment")
}

func TestMinifyCollapsesWhitespace(t *testing.T) {
	src := "local   x   =   1\n\n\nlocal y = 2"
	out := Minify(src)
	require.NotContains(t, out, "   ")
	require.NotContains(t, out, "\n\n")
}

func itoa(n int) string {
	neg := n < 0
	if n == 0 {
		return "0"
	}
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func extractField(tableLiteral string, idx int) string {
	inner := strings.Trim(tableLiteral, "{}")
	parts := strings.Split(inner, ", ")
	return parts[idx]
}
