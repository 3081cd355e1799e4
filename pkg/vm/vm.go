// Package vm implements the stack-based bytecode interpreter (spec 4.6):
// a flat value stack, a call-frame stack, and a single dispatch loop that
// switches on the opcodes pkg/bytecode defines.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/gc"
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

const stackMax = 1024 * maxFrames / 64 // generous headroom over typical frame depth * locals

// VM is a single-threaded bytecode interpreter instance (spec 4.6,
// "Single-threaded execution": one VM never runs two call stacks at once).
type VM struct {
	stack  [stackMax]value.Value
	sp     int
	frames []CallFrame

	globals  *table.Table
	interner *value.Interner
	gc       *gc.Collector

	openUpvalues *value.Upvalue

	protectedCount int

	exceptionClass    *object.Class
	illegalStateClass *object.Class

	pendingReraise       value.Value
	pendingReraiseActive bool

	modules    map[string]*object.Module
	lastModule *object.Module
	Loader     ModuleLoader

	Stdout io.Writer

	// Trace, when non-nil, receives the disassembly of each instruction
	// just before it runs (spec 4.11's `-trace` flag).
	Trace func(line string)

	// Argv is the process argument slice exposed to scripts through the
	// _os native module's `args` field (spec 4.9's Config, "argv slice").
	Argv []string
}

// New constructs a VM sharing interner with the compiler that produced the
// bytecode it will run (spec 4.3: the GC's "remove whites" pass needs the
// same interner the compiler and VM both read strings through).
func New(interner *value.Interner) *VM {
	vm := &VM{
		globals:  table.New(),
		interner: interner,
		gc:       gc.New(interner),
		modules:  make(map[string]*object.Module),
		Stdout:   os.Stdout,
	}
	vm.bootstrapExceptions()
	vm.bootstrapCoercions()
	return vm
}

// bootstrapExceptions registers the built-in Exception class (and the
// IllegalState subclass `assert` raises) as globals, with no declared
// initializer: callClass special-cases any initializer-less subclass of
// Exception (spec 4.7, "Exception").
func (vm *VM) bootstrapExceptions() {
	excName := vm.interner.Intern([]byte("Exception"))
	vm.exceptionClass = object.NewClass(excName)
	vm.globals.Set(value.Obj(excName), value.Obj(vm.exceptionClass))

	isName := vm.interner.Intern([]byte("IllegalState"))
	vm.illegalStateClass = object.NewClass(isName)
	vm.illegalStateClass.Inherit(vm.exceptionClass)
	vm.globals.Set(value.Obj(isName), value.Obj(vm.illegalStateClass))
}

// DefineGlobal registers a host value (a native function, a native
// module, a constant) under name before a script runs.
func (vm *VM) DefineGlobal(name string, v value.Value) {
	vm.globals.Set(value.Obj(vm.internGo(name)), v)
}

func (vm *VM) internGo(s string) *value.String { return vm.interner.Intern([]byte(s)) }

// track registers a freshly allocated heap object with the collector.
func (vm *VM) track(o value.Object) { vm.gc.Track(o) }

func (vm *VM) allocString(b []byte) value.Value {
	return value.Obj(vm.interner.Intern(b))
}

func (vm *VM) allocList(items []value.Value) value.Value {
	l := &value.List{Items: items}
	vm.track(l)
	return value.Obj(l)
}

func (vm *VM) allocBytes(data []byte) value.Value {
	b := &value.Bytes{Data: data}
	vm.track(b)
	return value.Obj(b)
}

// Interpret wraps an already-compiled script Function in a Closure and
// drives the dispatch loop to completion (spec 4.6).
func (vm *VM) Interpret(fn *value.Function) error {
	vm.sp = 0
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil

	cl := &value.Closure{Fn: fn}
	vm.track(cl)
	vm.push(value.Obj(cl))
	if err := vm.callClosure(cl, 0, value.Nil, false); err != nil {
		return err
	}
	return vm.run(0)
}

// push/pop/peek are the operand-stack primitives every opcode handler
// builds on.
func (vm *VM) push(v value.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) currentFrame() *CallFrame { return &vm.frames[len(vm.frames)-1] }

// popFrame closes upvalues pointing into the frame's slot window and pops
// it (spec 4.6, "RETURN pops the frame, closes any open upvalues at or
// above its base").
func (vm *VM) popFrame() {
	f := vm.currentFrame()
	vm.closeUpvalues(f.slotBase)
	vm.frames = vm.frames[:len(vm.frames)-1]
}

// readByte/readShort advance the current frame's instruction pointer past
// a decoded operand.
func (vm *VM) readByte() byte {
	f := vm.currentFrame()
	b := f.blob().Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	f := vm.currentFrame()
	v := bytecode.ReadShort(f.blob(), f.ip)
	f.ip += 2
	return v
}

func (vm *VM) readConstant() value.Value {
	idx := vm.readShort()
	return vm.currentFrame().blob().Constants[idx]
}

func (vm *VM) readConstantString() *value.String {
	s, _ := vm.readConstant().AsObject().(*value.String)
	return s
}

// run drives the dispatch loop until the call stack unwinds back to
// stopDepth frames (0 for the top-level Interpret call; a deeper value
// when re-entered to run a single hook call to completion).
func (vm *VM) run(stopDepth int) error {
	for len(vm.frames) > stopDepth {
		if vm.gc.ShouldRun() {
			vm.collectGarbage()
		}

		f := vm.currentFrame()
		if vm.Trace != nil {
			line, _ := bytecode.DisassembleInstruction(f.blob(), f.ip)
			vm.Trace(line)
		}

		op := bytecode.Opcode(vm.readByte())
		if err := vm.dispatch(op); err != nil {
			return err
		}
	}
	return nil
}

// collectGarbage gathers roots (the live stack, every active frame's
// closure, every open upvalue) plus the root tables (globals, loaded
// modules) and runs one collection cycle (spec 4.3).
func (vm *VM) collectGarbage() {
	roots := make([]value.Value, 0, vm.sp+len(vm.frames)+4)
	roots = append(roots, vm.stack[:vm.sp]...)
	for i := range vm.frames {
		roots = append(roots, value.Obj(vm.frames[i].closure))
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		roots = append(roots, value.Obj(uv))
	}
	roots = append(roots, value.Obj(vm.exceptionClass), value.Obj(vm.illegalStateClass))

	tables := make([]*table.Table, 0, len(vm.modules)+1)
	tables = append(tables, vm.globals)
	for _, m := range vm.modules {
		tables = append(tables, m.Values)
	}
	vm.gc.Collect(roots, tables)
}

// captureStack snapshots the current call stack, outermost first, for a
// RuntimeError or an Exception's stacktrace property.
func (vm *VM) captureStack() []StackFrame {
	frames := make([]StackFrame, 0, len(vm.frames))
	for _, f := range vm.frames {
		name := "script"
		if f.closure.Fn.Name != nil {
			name = f.closure.Fn.Name.GoString()
		}
		line := 0
		if f.ip > 0 && f.ip-1 < len(f.blob().Lines) {
			line = f.blob().Lines[f.ip-1]
		}
		frames = append(frames, StackFrame{Name: name, SourceLine: line, IP: f.ip})
	}
	return frames
}

func (vm *VM) buildStackTrace() string {
	return newRuntimeError("", vm.captureStack()).Error()
}

func (vm *VM) runtimeErrorfPlain(format string, args ...interface{}) error {
	return newRuntimeError(fmt.Sprintf(format, args...), vm.captureStack())
}
