// Package value implements the tagged value union and heap object model
// that the smog compiler and VM share.
//
// A Value is small enough to pass by copy (it is either an immediate --
// nil, a bool, a float64 -- or a pointer to a heap Object). This mirrors
// the teacher VM's choice to keep its stack a flat []interface{}, but
// replaces the open interface{} with a closed tagged union so that the
// Empty sentinel (tombstone / uninitialised marker) and heap identity
// (for interned strings and reference objects) are both representable
// without relying on Go's interface comparison rules.
package value

import "math"

// Kind identifies which arm of the Value union is populated.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	// KindEmpty is a sentinel distinct from Nil. It is never constructible
	// by user code; the hash table uses it to mark tombstones and unused
	// slots, and the compiler uses it as a "no value yet" placeholder.
	KindEmpty
	KindObject
)

// Value is the tagged union manipulated by the compiler and VM. The zero
// Value is Nil.
type Value struct {
	kind Kind
	b    bool
	n    float64
	obj  Object
}

// Nil is the canonical nil value.
var Nil = Value{kind: KindNil}

// Empty is the canonical empty/tombstone sentinel.
var Empty = Value{kind: KindEmpty}

// True and False are the canonical boolean values.
var (
	True  = Value{kind: KindBool, b: true}
	False = Value{kind: KindBool, b: false}
)

// Bool returns the tagged boolean value for b.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number returns a tagged numeric value.
func Number(n float64) Value {
	return Value{kind: KindNumber, n: n}
}

// Obj returns a tagged value wrapping a heap object. Passing a nil Object
// is a programmer error -- use Nil instead.
func Obj(o Object) Value {
	if o == nil {
		return Nil
	}
	return Value{kind: KindObject, obj: o}
}

// Kind reports which arm of the union is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether v is the Nil value.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsEmpty reports whether v is the Empty sentinel.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// AsBool returns the boolean payload. Only meaningful when Kind() == KindBool.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the float64 payload. Only meaningful when Kind() == KindNumber.
func (v Value) AsNumber() float64 { return v.n }

// AsObject returns the heap object payload. Only meaningful when Kind() == KindObject.
func (v Value) AsObject() Object { return v.obj }

// IsObjKind reports whether v is a heap object of the given kind.
func (v Value) IsObjKind(k ObjKind) bool {
	return v.kind == KindObject && v.obj.ObjKind() == k
}

// IsTruthy implements the language's truthiness rule (spec 4.1):
// false, nil, empty, negative numbers, and empty strings/bytes/lists/dicts
// are falsey. Everything else -- including zero-length classes, instances,
// closures, and zero-length ranges -- is truthy. The zero-length-range
// exception is a deliberate asymmetry carried over from the source
// language; do not "fix" it to match lists.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case KindNil, KindEmpty:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n >= 0
	case KindObject:
		switch o := v.obj.(type) {
		case *String:
			return len(o.Bytes) > 0
		case *Bytes:
			return len(o.Data) > 0
		case *List:
			return len(o.Items) > 0
		case *Dict:
			return len(o.Keys) > 0
		default:
			return true
		}
	}
	return true
}

// Equal implements value equality: numbers compare bitwise-double equal,
// objects compare by identity (which for interned strings reduces to
// byte-equality, since construction always returns the shared instance).
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNil, KindEmpty:
		return true
	case KindBool:
		return a.b == b.b
	case KindNumber:
		return a.n == b.n
	case KindObject:
		return a.obj == b.obj
	}
	return false
}

// Hash computes the value's hash per spec 4.1: booleans hash to small
// distinct odd constants, numbers hash via a bit-mix of their double
// payload, strings use their cached hash, other objects use kind-specific
// rules (falling back to 0, which makes them legal table keys only by
// identity -- the table's linear probe still terminates because the slot
// comparison itself uses Equal, not just the hash).
func Hash(v Value) uint32 {
	switch v.kind {
	case KindNil:
		return 1
	case KindEmpty:
		return 3
	case KindBool:
		if v.b {
			return 7
		}
		return 5
	case KindNumber:
		bits := math.Float64bits(v.n)
		return mix64(bits)
	case KindObject:
		return v.obj.Hash()
	}
	return 0
}

func mix64(x uint64) uint32 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return uint32(x ^ (x >> 32))
}

// Copy implements the "deep-copy-one-level" rule (spec 4.1): strings and
// byte sequences copy by value, lists shallow-copy their element slice,
// and everything else (including dicts) is returned unchanged -- a
// reference copy.
func Copy(v Value) Value {
	if v.kind != KindObject {
		return v
	}
	switch o := v.obj.(type) {
	case *String:
		return v // strings are immutable and interned; copy is a no-op
	case *Bytes:
		data := make([]byte, len(o.Data))
		copy(data, o.Data)
		return Obj(&Bytes{Data: data})
	case *List:
		items := make([]Value, len(o.Items))
		copy(items, o.Items)
		return Obj(&List{Items: items})
	default:
		return v
	}
}

// TypeName returns the language-level type name used by error messages
// and the _reflect.typeof native function.
func TypeName(v Value) string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindEmpty:
		return "empty"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindObject:
		switch v.obj.ObjKind() {
		case ObjString:
			return "string"
		case ObjBytes:
			return "bytes"
		case ObjRange:
			return "range"
		case ObjList:
			return "list"
		case ObjDict:
			return "dict"
		case ObjFile:
			return "file"
		case ObjBoundMethod:
			return "function"
		case ObjClosure, ObjFunction, ObjNativeFunction:
			return "function"
		case ObjInstance:
			if n, ok := v.obj.(Named); ok {
				return n.TypeLabel()
			}
			return "instance"
		case ObjClass:
			return "class"
		case ObjModule:
			return "module"
		case ObjSwitch:
			return "switch"
		case ObjPointer:
			return "ptr"
		case ObjUpvalue:
			return "upvalue"
		}
	}
	return "unknown"
}
