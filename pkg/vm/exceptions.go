package vm

import (
	"fmt"

	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
)

// sentinel used by OP_TRY's finally operand when the try has no finally
// clause (spec 4.7: compiled as 0xFFFF so the VM can tell "no finally" from
// a real offset).
const noFinally = 0xFFFF

// tryHandler is one entry of a call frame's exception-handler stack
// (spec 4.7: "class-to-match, handler offset, finally offset"), plus the
// operand-stack height to restore to when it fires.
type tryHandler struct {
	class       *object.Class
	handlerAddr int
	finallyAddr int
	stackHeight int
}

// pushTry installs a handler for the currently running frame, executed by
// OP_TRY.
func (vm *VM) pushTry(class *object.Class, handlerAddr, finallyAddr int) {
	f := vm.currentFrame()
	f.handlers = append(f.handlers, tryHandler{
		class:       class,
		handlerAddr: handlerAddr,
		finallyAddr: finallyAddr,
		stackHeight: vm.sp,
	})
}

// popTry discards the innermost handler of the current frame, executed by
// OP_POP_TRY when a try block completes normally without raising.
func (vm *VM) popTry() {
	f := vm.currentFrame()
	if len(f.handlers) > 0 {
		f.handlers = f.handlers[:len(f.handlers)-1]
	}
}

// publishTry executes at the end of a compiled finally block (OP_PUBLISH_TRY):
// if a raise was deferred to let this finally run, resume unwinding with it,
// otherwise fall through to normal execution (spec 4.7, step 2).
func (vm *VM) publishTry() error {
	if vm.pendingReraiseActive {
		exc := vm.pendingReraise
		vm.pendingReraiseActive = false
		vm.pendingReraise = value.Nil
		return vm.raise(exc)
	}
	return nil
}

// raise implements the exception unwind algorithm (spec 4.7):
//  1. scan the current frame's handler stack top-down for a class match;
//  2. a handler with a finally but no match still runs its finally, with
//     the exception stashed for publishTry to re-raise afterward;
//  3. no applicable handler in this frame unwinds it and continues in the
//     caller;
//  4. exhausting every frame surfaces a RuntimeError to the host.
func (vm *VM) raise(exc value.Value) error {
	excClass := classOf(exc)

	for len(vm.frames) > 0 {
		f := vm.currentFrame()
		for i := len(f.handlers) - 1; i >= 0; i-- {
			h := f.handlers[i]
			if excClass != nil && h.class != nil && excClass.IsSubclassOf(h.class) {
				f.handlers = f.handlers[:i]
				vm.sp = h.stackHeight
				vm.push(exc)
				f.ip = h.handlerAddr
				return nil
			}
			if h.finallyAddr != noFinally {
				f.handlers = f.handlers[:i]
				vm.sp = h.stackHeight
				vm.pendingReraise = exc
				vm.pendingReraiseActive = true
				f.ip = h.finallyAddr
				return nil
			}
		}
		if len(vm.frames) == 1 {
			break
		}
		vm.popFrame()
	}

	return vm.fatalException(exc)
}

func classOf(v value.Value) *object.Class {
	if inst, ok := v.AsObject().(*object.Instance); ok {
		return inst.Class
	}
	return nil
}

// fatalException builds the RuntimeError returned to the host when no
// handler anywhere in the call stack applies (spec 4.7, step 4).
func (vm *VM) fatalException(exc value.Value) error {
	msg := value.ToDisplayString(exc)
	if inst, ok := exc.AsObject().(*object.Instance); ok {
		if m, ok := inst.Properties.Get(value.Obj(vm.internGo("message"))); ok && !m.IsNil() {
			msg = value.ToDisplayString(m)
		}
	}
	return newRuntimeError(msg, vm.captureStack())
}

// raiseDie implements `die expr;` (OP_DIE): an Instance raises directly,
// anything else is wrapped in a fresh Exception carrying it as `message`
// (spec 4.7, "die").
func (vm *VM) raiseDie(v value.Value) error {
	if _, ok := v.AsObject().(*object.Instance); ok {
		return vm.raise(v)
	}
	inst := object.NewInstance(vm.exceptionClass)
	vm.track(inst)
	inst.Properties.Set(value.Obj(vm.internGo("message")), v)
	inst.Properties.Set(value.Obj(vm.internGo("stacktrace")), vm.allocString([]byte(vm.buildStackTrace())))
	return vm.raise(value.Obj(inst))
}

// raiseAssert implements `assert cond, msg;` (OP_ASSERT): stack is
// [cond, msg] with msg on top (evaluated second, defaulting to nil). On a
// falsey condition this raises an IllegalState exception (spec 4.7,
// "assert is syntactic sugar").
func (vm *VM) raiseAssert(cond, msg value.Value) error {
	if cond.IsTruthy() {
		return nil
	}
	if msg.IsNil() {
		msg = vm.allocString([]byte("assertion failed"))
	}
	inst := object.NewInstance(vm.illegalStateClass)
	vm.track(inst)
	inst.Properties.Set(value.Obj(vm.internGo("message")), msg)
	inst.Properties.Set(value.Obj(vm.internGo("stacktrace")), vm.allocString([]byte(vm.buildStackTrace())))
	return vm.raise(value.Obj(inst))
}

// raiseNativeError wraps a Go error returned by a native function into an
// Exception and raises it, so native and user-raised exceptions are
// indistinguishable to a catch clause.
func (vm *VM) raiseNativeError(err error) error {
	inst := object.NewInstance(vm.exceptionClass)
	vm.track(inst)
	inst.Properties.Set(value.Obj(vm.internGo("message")), vm.allocString([]byte(err.Error())))
	inst.Properties.Set(value.Obj(vm.internGo("stacktrace")), vm.allocString([]byte(vm.buildStackTrace())))
	return vm.raise(value.Obj(inst))
}

// runtimeErrorf builds and raises a VM-internal Exception (argument
// errors, type errors, and the like), rather than returning a bare Go
// error, so scripts can catch it like any other exception.
func (vm *VM) runtimeErrorf(format string, args ...interface{}) error {
	return vm.raiseNativeError(&simpleError{fmt.Sprintf(format, args...)})
}

type simpleError struct{ msg string }

func (e *simpleError) Error() string { return e.msg }
