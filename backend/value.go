package backend

import "strconv"

// ValueKind tags which variant of Value is populated.
type ValueKind uint8

// The four variants SL constants can hold.
const (
	KindNil ValueKind = iota
	KindBool
	KindNumber
	KindString
)

// Value is a compile-time constant: the tagged union {nil, bool,
// number(f64), string} from spec.md §3. It is a plain struct rather
// than an interface{} so that constant-pool entries compare with `==`
// for the optional deduplication path the spec allows but does not
// require.
type Value struct {
	Kind ValueKind
	Bool bool
	Num  float64
	Str  string
}

// Nil is the singular nil constant value.
var Nil = Value{Kind: KindNil}

// Bool wraps a boolean constant.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number wraps a numeric constant.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// String wraps a string constant.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Truthy implements SL's truthiness rule: only nil and false are
// falsey; every other value, including 0 and the empty string, is
// truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.Bool
	default:
		return true
	}
}

// String renders a Value for debugging: numbers in shortest 'g' form,
// strings Go-quoted. The emitter formats constants on its own.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.Str)
	default:
		return "<invalid value>"
	}
}
