package vm

import (
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
)

const maxFrames = 512

// CallFrame is one activation record: the running closure, its
// instruction pointer, the base of its stack window, and its own stack of
// exception handlers (spec 4.7: "each call frame carries a fixed-capacity
// stack of exception frames").
type CallFrame struct {
	closure  *value.Closure
	ip       int
	slotBase int
	handlers []tryHandler
}

func (f *CallFrame) blob() *value.Blob { return f.closure.Fn.Blob }

// Protect implements value.NativeVM: pushing v onto the operand stack
// keeps it reachable for the duration of a native call (spec 4.3, "GC
// protection register").
func (vm *VM) Protect(v value.Value) {
	vm.push(v)
	vm.protectedCount++
}

// callValue dispatches CALL argc against whatever sits beneath the
// arguments on the stack (spec 4.6, "Call protocol").
func (vm *VM) callValue(callee value.Value, argc int) error {
	obj := callee.AsObject()
	if obj == nil {
		return vm.runtimeErrorf("'%s' is not callable", value.TypeName(callee))
	}
	switch c := obj.(type) {
	case *value.Closure:
		return vm.callClosure(c, argc, value.Nil, false)
	case *value.NativeFunction:
		return vm.callNative(c, argc, vm.sp-argc-1)
	case *object.Class:
		return vm.callClass(c, argc, vm.sp-argc-1)
	case *value.BoundMethod:
		return vm.callBound(c, argc)
	case *object.Module:
		if callable, ok := c.AsCallable(); ok {
			vm.stack[vm.sp-argc-1] = callable
			return vm.callValue(callable, argc)
		}
		return vm.runtimeErrorf("module '%s' is not callable", c.Name.GoString())
	default:
		return vm.runtimeErrorf("'%s' is not callable", value.TypeName(callee))
	}
}

func (vm *VM) callBound(bm *value.BoundMethod, argc int) error {
	slotBase := vm.sp - argc - 1
	switch m := bm.Method.AsObject().(type) {
	case *value.Closure:
		return vm.callClosure(m, argc, bm.Receiver, true)
	case *value.NativeFunction:
		vm.stack[slotBase] = bm.Receiver
		return vm.callNative(m, argc, slotBase)
	default:
		return vm.runtimeErrorf("bound method wraps uncallable value")
	}
}

// callClosure pushes a new frame for cl. When hasReceiver is true,
// receiver overwrites the frame's slot 0 (spec 4.5: slot 0 holds `self`
// for methods). Missing fixed arguments are padded with nil; a trailing
// `...name` parameter collects the remainder into a freshly allocated
// list (spec 4.6, "variadic binding").
func (vm *VM) callClosure(cl *value.Closure, argc int, receiver value.Value, hasReceiver bool) error {
	fn := cl.Fn
	slotBase := vm.sp - argc - 1

	if fn.Variadic {
		fixed := fn.Arity
		if argc < fixed {
			for vm.sp < slotBase+1+fixed {
				vm.push(value.Nil)
			}
			argc = fixed
		}
		extra := argc - fixed
		items := make([]value.Value, extra)
		copy(items, vm.stack[slotBase+1+fixed:slotBase+1+argc])
		rest := vm.allocList(items)
		vm.sp = slotBase + 1 + fixed
		vm.push(rest)
	} else {
		if argc > fn.Arity {
			return vm.runtimeErrorf("expected %d arguments but got %d", fn.Arity, argc)
		}
		for vm.sp < slotBase+1+fn.Arity {
			vm.push(value.Nil)
		}
	}

	if hasReceiver {
		vm.stack[slotBase] = receiver
	}

	if len(vm.frames) >= maxFrames {
		return vm.runtimeErrorf("stack overflow")
	}
	vm.frames = append(vm.frames, CallFrame{closure: cl, slotBase: slotBase})
	return nil
}

func (vm *VM) callNative(nf *value.NativeFunction, argc int, slotBase int) error {
	if nf.Arity >= 0 && argc != nf.Arity {
		return vm.runtimeErrorf("expected %d arguments but got %d", nf.Arity, argc)
	}
	args := make([]value.Value, argc)
	copy(args, vm.stack[slotBase+1:slotBase+1+argc])

	result, err := nf.Fn(vm, args)
	vm.protectedCount = 0
	if err != nil {
		return vm.raiseNativeError(err)
	}
	vm.sp = slotBase
	vm.push(result)
	return nil
}

// callClass implements the `Class(...)` constructor call: allocate an
// instance into the receiver slot, then run the initializer over the
// same arguments (spec 4.6: "class (allocates an instance in slot -n-1,
// then invokes the initializer)").
func (vm *VM) callClass(class *object.Class, argc int, slotBase int) error {
	inst := object.NewInstance(class)
	vm.track(inst)
	instVal := value.Obj(inst)
	vm.stack[slotBase] = instVal

	if class.Initializer.IsNil() {
		if class.IsSubclassOf(vm.exceptionClass) {
			return vm.initException(inst, argc, slotBase)
		}
		if argc != 0 {
			return vm.runtimeErrorf("'%s' takes no arguments", class.Name.GoString())
		}
		vm.sp = slotBase + 1
		return nil
	}

	initCl, ok := class.Initializer.AsObject().(*value.Closure)
	if !ok {
		return vm.runtimeErrorf("'%s' has a malformed initializer", class.Name.GoString())
	}
	return vm.callClosure(initCl, argc, instVal, true)
}

// initException seeds an Exception (or undecorated subclass) instance
// from its constructor arguments: message defaults to nil, stacktrace is
// captured from the current call stack (spec 4.7, "Exception").
func (vm *VM) initException(inst *object.Instance, argc int, slotBase int) error {
	if argc > 1 {
		return vm.runtimeErrorf("Exception takes at most 1 argument")
	}
	msg := value.Nil
	if argc == 1 {
		msg = vm.stack[slotBase+1]
	}
	inst.Properties.Set(value.Obj(vm.internGo("message")), msg)
	inst.Properties.Set(value.Obj(vm.internGo("stacktrace")), vm.allocString([]byte(vm.buildStackTrace())))
	vm.sp = slotBase + 1
	return nil
}

// getProperty implements GET_PROPERTY: own fields first, then the method
// chain, wrapping a found method into a BoundMethod (spec 4.6).
func (vm *VM) getProperty(receiver value.Value, name *value.String, allowPrivate bool) (value.Value, error) {
	switch r := receiver.AsObject().(type) {
	case *object.Instance:
		if v, ok := r.Properties.Get(value.Obj(name)); ok {
			return v, nil
		}
		method, ok := r.Class.LookupMethod(name)
		if !ok {
			return value.Nil, vm.runtimeErrorf("undefined property '%s'", name.GoString())
		}
		if !vm.visible(method, allowPrivate) {
			return value.Nil, vm.runtimeErrorf("'%s' is private", name.GoString())
		}
		bm := &value.BoundMethod{Receiver: receiver, Method: method}
		vm.track(bm)
		return value.Obj(bm), nil
	case *object.Class:
		if v, ok := r.Statics.Get(value.Obj(name)); ok {
			return v, nil
		}
		if v, ok := r.Methods.Get(value.Obj(name)); ok {
			if kindOf(v) == value.FuncStatic {
				return v, nil
			}
		}
		return value.Nil, vm.runtimeErrorf("undefined static property '%s'", name.GoString())
	case *object.Module:
		if v, ok := r.Values.Get(value.Obj(name)); ok {
			return v, nil
		}
		return value.Nil, vm.runtimeErrorf("undefined module member '%s'", name.GoString())
	default:
		return value.Nil, vm.runtimeErrorf("cannot access property '%s' on %s", name.GoString(), value.TypeName(receiver))
	}
}

func (vm *VM) getSelfProperty(receiver value.Value, name *value.String) (value.Value, error) {
	return vm.getProperty(receiver, name, true)
}

func (vm *VM) visible(method value.Value, allowPrivate bool) bool {
	if kindOf(method) == value.FuncPrivate {
		return allowPrivate
	}
	return true
}

func kindOf(v value.Value) value.FunctionKind {
	switch fn := v.AsObject().(type) {
	case *value.Closure:
		return fn.Fn.Kind
	case *value.NativeFunction:
		return value.FuncFunction
	}
	return value.FuncFunction
}

// setProperty implements SET_PROPERTY. Assignment is an expression in
// this language, so callers leave val on the stack themselves; this just
// performs the write (spec 4.6).
func (vm *VM) setProperty(receiver value.Value, name *value.String, val value.Value) error {
	inst, ok := receiver.AsObject().(*object.Instance)
	if !ok {
		return vm.runtimeErrorf("cannot set property '%s' on %s", name.GoString(), value.TypeName(receiver))
	}
	inst.Properties.Set(value.Obj(name), val)
	return nil
}

// invoke implements INVOKE/INVOKE_SELF: a fused GET_PROPERTY+CALL. Falls
// through to invokeBuiltin for receivers that aren't instances, classes,
// or modules (spec 4.6: "built-in container methods dispatch the same
// way user-defined methods do").
func (vm *VM) invoke(name *value.String, argc int, allowPrivate bool) error {
	slotBase := vm.sp - argc - 1
	receiver := vm.stack[slotBase]

	switch r := receiver.AsObject().(type) {
	case *object.Instance:
		if v, ok := r.Properties.Get(value.Obj(name)); ok {
			vm.stack[slotBase] = v
			return vm.callValue(v, argc)
		}
		method, ok := r.Class.LookupMethod(name)
		if !ok {
			return vm.runtimeErrorf("undefined method '%s'", name.GoString())
		}
		if !vm.visible(method, allowPrivate) {
			return vm.runtimeErrorf("'%s' is private", name.GoString())
		}
		cl, ok := method.AsObject().(*value.Closure)
		if !ok {
			return vm.runtimeErrorf("'%s' is not a method", name.GoString())
		}
		return vm.callClosure(cl, argc, receiver, true)
	case *object.Class:
		if v, ok := r.Statics.Get(value.Obj(name)); ok {
			return vm.callValue(v, argc)
		}
		if v, ok := r.Methods.Get(value.Obj(name)); ok && kindOf(v) == value.FuncStatic {
			return vm.callValue(v, argc)
		}
		return vm.runtimeErrorf("method '%s' requires an instance", name.GoString())
	case *object.Module:
		if v, ok := r.Values.Get(value.Obj(name)); ok {
			return vm.callValue(v, argc)
		}
		return vm.runtimeErrorf("undefined module member '%s'", name.GoString())
	default:
		return vm.invokeBuiltin(receiver, name, argc)
	}
}

// getSuper resolves the dotted `parent.m` form: pops [self, class] and
// pushes a BoundMethod looked up starting at class.Super (spec 4.6,
// "SUPER_INVOKE skips the current class").
func (vm *VM) getSuper(name *value.String) error {
	classVal := vm.pop()
	selfVal := vm.pop()
	cls, ok := classVal.AsObject().(*object.Class)
	if !ok {
		return vm.runtimeErrorf("'parent' used outside a class method")
	}
	if cls.Super == nil {
		return vm.runtimeErrorf("class '%s' has no parent", cls.Name.GoString())
	}
	method, ok := cls.Super.LookupMethod(name)
	if !ok {
		return vm.runtimeErrorf("undefined superclass method '%s'", name.GoString())
	}
	bm := &value.BoundMethod{Receiver: selfVal, Method: method}
	vm.track(bm)
	vm.push(value.Obj(bm))
	return nil
}

// superInvokeSelf resolves the bare `parent(...)` form: stack layout is
// [self, class, arg1..argn]; the class slot is squeezed out before the
// call so the callee's frame sees an ordinary [self, arg1..argn] window.
func (vm *VM) superInvokeSelf(name *value.String, argc int) error {
	classVal := vm.stack[vm.sp-argc-1]
	selfVal := vm.stack[vm.sp-argc-2]
	cls, ok := classVal.AsObject().(*object.Class)
	if !ok {
		return vm.runtimeErrorf("'parent' used outside a class method")
	}
	if cls.Super == nil {
		return vm.runtimeErrorf("class '%s' has no parent", cls.Name.GoString())
	}
	method, ok := cls.Super.LookupMethod(name)
	if !ok && name.GoString() == cls.Name.GoString() && !cls.Super.Initializer.IsNil() {
		method, ok = cls.Super.Initializer, true
	}
	if !ok {
		return vm.runtimeErrorf("undefined superclass method '%s'", name.GoString())
	}
	cl, ok := method.AsObject().(*value.Closure)
	if !ok {
		return vm.runtimeErrorf("'%s' is not a method", name.GoString())
	}
	copy(vm.stack[vm.sp-argc-1:vm.sp-1], vm.stack[vm.sp-argc:vm.sp])
	vm.sp--
	return vm.callClosure(cl, argc, selfVal, true)
}

// captureUpvalue finds or creates an open upvalue pointing at the given
// stack slot, keeping the open-upvalue list sorted so a later capture of
// the same slot reuses the existing Upvalue object (spec 4.5).
func (vm *VM) captureUpvalue(slot int) *value.Upvalue {
	var prev *value.Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.StackIndex > slot {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.StackIndex == slot {
		return cur
	}
	uv := &value.Upvalue{Slot: &vm.stack[slot], StackIndex: slot, NextOpen: cur}
	vm.track(uv)
	if prev == nil {
		vm.openUpvalues = uv
	} else {
		prev.NextOpen = uv
	}
	return uv
}

// closeUpvalues closes every open upvalue at or above slot, copying its
// value out of the stack before the frame that owns that slot unwinds.
func (vm *VM) closeUpvalues(slot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.StackIndex >= slot {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.NextOpen
	}
}
