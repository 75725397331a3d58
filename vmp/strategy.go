// Package vmp implements the optional opcode-renumbering layer
// described by spec.md's VMP (virtual machine protection) feature:
// the Emitter asks an OpCodeStrategy for the numeric value to write
// into the emitted program for each canonical OpCode, rather than
// writing the canonical numbering directly.
package vmp

import (
	"math/rand"
	"time"

	"github.com/OxenFxc/luaaivmp/backend"
)

// OpCodeStrategy maps a canonical OpCode to the integer the Emitter
// should actually write for it, per spec.md's VMP section. The
// Compiler and Prototype tree never see anything but the canonical
// numbering; only the Emitter consults a strategy, at the point it
// serializes instructions and the opcode-name constant bank.
type OpCodeStrategy interface {
	Get(op backend.OpCode) int
}

// Identity writes each opcode's own canonical number, i.e. no
// renumbering at all.
type Identity struct{}

func (Identity) Get(op backend.OpCode) int { return int(op) }

// Randomized assigns every canonical opcode a number from a uniformly
// shuffled permutation of [0, LastOp()], fixed for the lifetime of one
// Randomized instance. Two emits from two different instances will
// almost never agree, which is the point: the renumbering carries no
// information recoverable without the emitted program's own opcode
// table.
type Randomized struct {
	opMap map[backend.OpCode]int
}

// NewRandomized builds a fresh permutation seeded from the current
// time. Every Emitter invocation that asks for a Randomized strategy
// gets its own instance (and so its own independent seed) rather than
// sharing one process-wide generator.
func NewRandomized() *Randomized {
	ops := backend.AllOpCodes()
	values := make([]int, len(ops))
	for i := range ops {
		values[i] = i
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
	})

	opMap := make(map[backend.OpCode]int, len(ops))
	for i, op := range ops {
		opMap[op] = values[i]
	}
	return &Randomized{opMap: opMap}
}

func (r *Randomized) Get(op backend.OpCode) int {
	if v, ok := r.opMap[op]; ok {
		return v
	}
	return int(op)
}
