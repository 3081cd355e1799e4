package value

// Blob is the tuple of (bytecode, line numbers, constant pool) attached to
// a compiled function (spec 3, "Function", and the GLOSSARY entry "Blob").
// It lives here rather than in pkg/bytecode because Function -- which must
// live in this package so the Object kind enumeration stays closed --
// embeds one; pkg/bytecode instead supplies the Opcode enum and a
// disassembler that reads a *Blob.
type Blob struct {
	Code      []byte
	Lines     []int
	Constants []Value
}

// FunctionKind tags how the compiler classified a function, per spec 4.5:
// the VM enforces visibility and call-target rules based on this tag.
type FunctionKind byte

const (
	FuncScript FunctionKind = iota
	FuncFunction
	FuncMethod
	FuncInitializer
	FuncPrivate
	FuncStatic
)

func (k FunctionKind) String() string {
	switch k {
	case FuncScript:
		return "script"
	case FuncFunction:
		return "function"
	case FuncMethod:
		return "method"
	case FuncInitializer:
		return "initializer"
	case FuncPrivate:
		return "private"
	case FuncStatic:
		return "static"
	}
	return "unknown"
}

// UpvalueDesc describes one upvalue captured by a Function's enclosing
// closure, as emitted by OP_CLOSURE (spec 4.5, "Closure emission").
type UpvalueDesc struct {
	IsLocal bool
	Index   int
}

// Function holds a compiled function's immutable metadata and code. Module
// is an interface{} rather than *Module to avoid value<->object import
// cycles; callers type-assert to *object.Module.
type Function struct {
	Header
	Name         *String
	Arity        int
	UpvalueCount int
	Variadic     bool
	Kind         FunctionKind
	Module       interface{}
	Blob         *Blob
	Upvalues     []UpvalueDesc
}

func (f *Function) ObjKind() ObjKind { return ObjFunction }
func (f *Function) Hash() uint32 {
	if f.Name == nil {
		return uint32(f.Arity) ^ uint32(len(f.Blob.Code))
	}
	return uint32(f.Arity) ^ uint32(len(f.Blob.Code)) ^ f.Name.HashVal
}

// Upvalue is two-state (spec 3, "Upvalue"): open while Slot points at a
// live stack slot, closed once Close copies the value out and clears Slot.
type Upvalue struct {
	Header
	Slot       *Value
	Closed     Value
	StackIndex int
	NextOpen   *Upvalue
}

func (u *Upvalue) ObjKind() ObjKind { return ObjUpvalue }
func (u *Upvalue) Hash() uint32     { return 0 }

// Get returns the upvalue's current value regardless of open/closed state.
func (u *Upvalue) Get() Value {
	if u.Slot != nil {
		return *u.Slot
	}
	return u.Closed
}

// Set writes through to the live stack slot (open) or the closed copy.
func (u *Upvalue) Set(v Value) {
	if u.Slot != nil {
		*u.Slot = v
		return
	}
	u.Closed = v
}

// Close detaches the upvalue from its stack slot, copying the current
// value into Closed. Called when the enclosing frame unwinds past this
// slot.
func (u *Upvalue) Close() {
	u.Closed = *u.Slot
	u.Slot = nil
}

// Closure pairs a Function with the upvalues it captured at creation time.
type Closure struct {
	Header
	Fn       *Function
	Upvalues []*Upvalue
}

func (c *Closure) ObjKind() ObjKind { return ObjClosure }
func (c *Closure) Hash() uint32     { return c.Fn.Hash() }

// NativeVM is the minimal surface a native function needs from the VM: the
// ability to protect a transient allocation from the tracing GC for the
// duration of the call (spec 4.3, "GC protection register").
type NativeVM interface {
	Protect(Value)
}

// NativeFn is the Go-native implementation behind a NativeFunction. It
// returns the call's result value, or a non-nil error to raise an
// exception in the caller (the idiomatic-Go analogue of the C calling
// convention's boolean success return plus args[-1] result slot).
type NativeFn func(vm NativeVM, args []Value) (Value, error)

// NativeFunction wraps a Go function so it can be called like any other
// smog callable. Arity -1 marks a variadic native (all arguments are
// passed through as a single slice).
type NativeFunction struct {
	Header
	Name  *String
	Arity int
	Fn    NativeFn
}

func (n *NativeFunction) ObjKind() ObjKind { return ObjNativeFunction }
func (n *NativeFunction) Hash() uint32     { return 0 }

// BoundMethod pairs a receiver with the closure or native function it
// should be invoked with, produced when GET_PROPERTY resolves a method
// off an instance (spec 4.6, "Call protocol").
type BoundMethod struct {
	Header
	Receiver Value
	Method   Value
}

func (bm *BoundMethod) ObjKind() ObjKind { return ObjBoundMethod }
func (bm *BoundMethod) Hash() uint32     { return 0 }
