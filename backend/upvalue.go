package backend

// resolveUpvalue implements spec.md §4.2.3's algorithm from the
// perspective of the function wishing to capture `name`:
//
//  1. If there is no enclosing function, it cannot be an upvalue.
//  2. If `name` is a local of the enclosing function, capture it
//     directly (isLocal=true).
//  3. Otherwise, recursively resolve `name` as an upvalue of the
//     enclosing function; if found, capture that upvalue
//     (isLocal=false).
//  4. Otherwise, `name` is not an upvalue of this function.
//
// Returns the (possibly newly added) index into state.proto.Upvalues,
// or -1 if `name` cannot be resolved as an upvalue anywhere up the
// enclosing chain.
func resolveUpvalue(state *compilerState, name string) int {
	if state.enclosing == nil {
		return -1
	}

	if reg, ok := state.enclosing.lookupLocal(name); ok {
		return addUpvalue(state, reg, true)
	}

	if idx := resolveUpvalue(state.enclosing, name); idx != -1 {
		return addUpvalue(state, idx, false)
	}

	return -1
}

// addUpvalue deduplicates by (index, isLocal) and appends otherwise,
// so a function capturing the same outer variable twice always gets
// the same upvalue slot (spec.md §4.2.3).
func addUpvalue(state *compilerState, index int, isLocal bool) int {
	for i, uv := range state.proto.Upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	state.proto.Upvalues = append(state.proto.Upvalues, UpvalueInfo{IsLocal: isLocal, Index: index})
	return len(state.proto.Upvalues) - 1
}
