package vmp

import (
	"testing"

	"github.com/OxenFxc/luaaivmp/backend"
	"github.com/stretchr/testify/require"
)

func TestIdentityIsCanonical(t *testing.T) {
	id := Identity{}
	for _, op := range backend.AllOpCodes() {
		require.Equal(t, int(op), id.Get(op))
	}
}

func TestRandomizedIsBijection(t *testing.T) {
	r := NewRandomized()
	ops := backend.AllOpCodes()
	seen := make(map[int]bool, len(ops))

	for _, op := range ops {
		v := r.Get(op)
		require.GreaterOrEqual(t, v, 0)
		require.LessOrEqual(t, v, int(backend.LastOp()))
		require.False(t, seen[v], "opcode value %d assigned twice", v)
		seen[v] = true
	}
	require.Len(t, seen, len(ops))
}

func TestRandomizedInstancesAreIndependent(t *testing.T) {
	a := NewRandomized()
	b := NewRandomized()

	differs := false
	for _, op := range backend.AllOpCodes() {
		if a.Get(op) != b.Get(op) {
			differs = true
			break
		}
	}
	// Not a hard guarantee (two independent shuffles could coincide),
	// but overwhelmingly likely across 31 opcodes; a failure here is
	// worth a second look rather than an automatic retry.
	require.True(t, differs, "two independently seeded strategies produced the same permutation")
}
