package backend

// localVar binds a source identifier to the register holding its
// value within one function's CompilerState.
type localVar struct {
	name string
	reg  int
}

// pendingGoto records an emitted but not-yet-patched `goto` jump,
// waiting for its target label to resolve once the whole function
// body has been parsed (spec.md §4.2.1).
type pendingGoto struct {
	label      string
	instrIndex int
	line       int
}

// compilerState is the per-nested-function compilation context from
// spec.md §3's CompilerState: the Prototype being built, the live
// local-variable bindings, label/goto bookkeeping, the register
// occupancy bitmap, and a non-owning link to the enclosing function's
// state (used only while compiling this function's body).
type compilerState struct {
	proto *Prototype

	// locals is a flat, ordered binding list rather than a map so
	// that shadowing (the same name declared twice) resolves to the
	// most recent binding by scanning from the end, matching how a
	// fresh `local x` shadows an earlier one declared earlier in the
	// same function without disturbing the earlier register.
	locals []localVar

	labels       map[string]int
	pendingGotos []pendingGoto

	// allocated is the 256-bit register occupancy bitmap from
	// spec.md §3. allocateRegister scans it for the lowest clear bit.
	allocated [256]bool

	// breakJumps is a stack of pending-break-jump lists, one entry
	// per enclosing loop currently being compiled; `break` appends a
	// jump index to the top list and the loop compiler patches every
	// entry in its own list to its exit point once the body is done.
	breakJumps [][]int

	enclosing *compilerState
}

func newCompilerState(enclosing *compilerState) *compilerState {
	return &compilerState{
		proto:     &Prototype{},
		labels:    make(map[string]int),
		enclosing: enclosing,
	}
}

// allocateRegister returns the lowest index not currently marked used
// in the occupancy bitmap, per spec.md §4.2. Allocation fails once
// every register in [0,255] is occupied (spec.md invariant I5).
func (s *compilerState) allocateRegister() (int, bool) {
	for i := 0; i < 256; i++ {
		if !s.allocated[i] {
			s.allocated[i] = true
			return i, true
		}
	}
	return 0, false
}

// allocateBlock finds n consecutive free registers, marks them all
// used, and returns the index of the first one. Used where the VM's
// calling convention demands a contiguous run (e.g. `return` with
// several values) rather than whatever the next lowest free index
// happens to be.
func (s *compilerState) allocateBlock(n int) (int, bool) {
	if n == 0 {
		return 0, true
	}
	for start := 0; start+n <= 256; start++ {
		free := true
		for i := 0; i < n; i++ {
			if s.allocated[start+i] {
				free = false
				break
			}
		}
		if free {
			for i := 0; i < n; i++ {
				s.allocated[start+i] = true
			}
			return start, true
		}
	}
	return 0, false
}

// freeRegister releases a single register back to the free pool.
func (s *compilerState) freeRegister(reg int) {
	if reg >= 0 && reg < 256 {
		s.allocated[reg] = false
	}
}

// freeAbove releases every register above (but not including) `base`
// back to the free pool. This backs the generic-for scratch cleanup,
// which spec.md §9 says should be treated as "free all scratch above
// the three control slots" rather than reserving an exact range.
func (s *compilerState) freeAbove(base int) {
	for i := base + 1; i < 256; i++ {
		s.allocated[i] = false
	}
}

// resetToLive clears every register not currently bound to a live
// local (including synthetic locals used to lock loop-control
// registers), implementing the statement-boundary reset from
// spec.md §4.2: scratch registers used by one statement's
// sub-expressions never leak into the next statement.
func (s *compilerState) resetToLive() {
	for i := range s.allocated {
		s.allocated[i] = false
	}
	for _, lv := range s.locals {
		s.allocated[lv.reg] = true
	}
}

// snapshotAllocated copies the current occupancy bitmap so a caller
// can restore it later. Used by the table-constructor lowering, which
// snapshots once before the first field and restores before each
// subsequent field so that fields share scratch registers.
func (s *compilerState) snapshotAllocated() [256]bool {
	return s.allocated
}

func (s *compilerState) restoreAllocated(snap [256]bool) {
	s.allocated = snap
}

// bindLocal records a new local-variable binding of name to reg
// (possibly shadowing an earlier one with the same name).
func (s *compilerState) bindLocal(name string, reg int) {
	s.locals = append(s.locals, localVar{name: name, reg: reg})
}

// lookupLocal searches the binding list from the end so the most
// recent (innermost) binding of `name` wins.
func (s *compilerState) lookupLocal(name string) (reg int, ok bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if s.locals[i].name == name {
			return s.locals[i].reg, true
		}
	}
	return 0, false
}

// unbindLocal removes the most recent binding for name, used to
// restore a shadowed loop variable once a numeric/generic for loop
// exits.
func (s *compilerState) unbindLocal(name string) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if s.locals[i].name == name {
			s.locals = append(s.locals[:i], s.locals[i+1:]...)
			return
		}
	}
}

// pushLoop starts a new break-jump list for a loop about to be
// compiled.
func (s *compilerState) pushLoop() {
	s.breakJumps = append(s.breakJumps, nil)
}

// addBreak appends a pending break jump to the innermost loop's list.
// Returns false if there is no enclosing loop.
func (s *compilerState) addBreak(instrIdx int) bool {
	n := len(s.breakJumps)
	if n == 0 {
		return false
	}
	s.breakJumps[n-1] = append(s.breakJumps[n-1], instrIdx)
	return true
}

// popLoop pops and returns the innermost loop's pending break jumps
// so the loop compiler can patch each one to the loop's exit point.
func (s *compilerState) popLoop() []int {
	n := len(s.breakJumps)
	if n == 0 {
		return nil
	}
	jumps := s.breakJumps[n-1]
	s.breakJumps = s.breakJumps[:n-1]
	return jumps
}
