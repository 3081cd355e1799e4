package vm

import (
	"fmt"
	"math"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
)

// dispatch executes a single decoded opcode, advancing the current
// frame's instruction pointer past whatever operand bytes it reads. An
// exception that a handler catches returns nil (frame.ip already
// redirected by raise -- see exceptions.go); a non-nil return is a fatal
// error that run() surfaces to the host.
func (vm *VM) dispatch(op bytecode.Opcode) error {
	switch op {

	// === Stack manipulation ===
	case bytecode.OpConstant:
		vm.push(vm.readConstant())
	case bytecode.OpPop:
		vm.pop()
	case bytecode.OpPopN:
		n := int(vm.readByte())
		vm.sp -= n
	case bytecode.OpDup:
		vm.push(vm.peek(0))
	case bytecode.OpNil:
		vm.push(value.Nil)
	case bytecode.OpTrue:
		vm.push(value.True)
	case bytecode.OpFalse:
		vm.push(value.False)
	case bytecode.OpEmpty:
		vm.push(value.Empty)
	case bytecode.OpOne:
		vm.push(value.Number(1))

	// === Arithmetic and bitwise ===
	case bytecode.OpAdd:
		b, a := vm.pop(), vm.pop()
		v, err := vm.binaryAdd(a, b)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpSub:
		return vm.numOp(func(a, b float64) float64 { return a - b })
	case bytecode.OpMul:
		b, a := vm.pop(), vm.pop()
		v, err := vm.binaryMul(a, b)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpDiv:
		return vm.numOp(func(a, b float64) float64 { return a / b })
	case bytecode.OpFDivide:
		return vm.numOp(floorDivide)
	case bytecode.OpReminder:
		return vm.numOp(floorMod)
	case bytecode.OpPow:
		return vm.numOp(math.Pow)
	case bytecode.OpNegate:
		v, err := vm.negate(vm.pop())
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpNot:
		vm.push(value.Bool(!vm.pop().IsTruthy()))
	case bytecode.OpBitNot:
		a := vm.pop()
		if a.Kind() != value.KindNumber {
			return vm.runtimeErrorf("operand must be a number, got %s", value.TypeName(a))
		}
		vm.push(value.Number(float64(^to32(a.AsNumber()))))
	case bytecode.OpBitAnd:
		return vm.bitOp(func(a, b int32) int32 { return a & b })
	case bytecode.OpBitOr:
		return vm.bitOp(func(a, b int32) int32 { return a | b })
	case bytecode.OpBitXor:
		return vm.bitOp(func(a, b int32) int32 { return a ^ b })
	case bytecode.OpLeftShift:
		return vm.bitOp(func(a, b int32) int32 { return a << uint32(b&31) })
	case bytecode.OpRightShift:
		return vm.bitOp(func(a, b int32) int32 { return a >> uint32(b&31) })

	// === Comparison ===
	case bytecode.OpEqual:
		b, a := vm.pop(), vm.pop()
		vm.push(value.Bool(value.Equal(a, b)))
	case bytecode.OpGreaterThan:
		b, a := vm.pop(), vm.pop()
		v, err := vm.compare(a, b, true)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpLessThan:
		b, a := vm.pop(), vm.pop()
		v, err := vm.compare(a, b, false)
		if err != nil {
			return err
		}
		vm.push(v)

	// === Variable access ===
	case bytecode.OpDefineGlobal:
		name := vm.readConstantString()
		vm.globals.Set(value.Obj(name), vm.pop())
	case bytecode.OpGetGlobal:
		name := vm.readConstantString()
		v, ok := vm.globals.Get(value.Obj(name))
		if !ok {
			return vm.runtimeErrorf("undefined variable '%s'", name.GoString())
		}
		vm.push(v)
	case bytecode.OpSetGlobal:
		name := vm.readConstantString()
		if _, ok := vm.globals.Get(value.Obj(name)); !ok {
			return vm.runtimeErrorf("undefined variable '%s'", name.GoString())
		}
		vm.globals.Set(value.Obj(name), vm.peek(0))
	case bytecode.OpGetLocal:
		slot := int(vm.readByte())
		vm.push(vm.stack[vm.currentFrame().slotBase+slot])
	case bytecode.OpSetLocal:
		slot := int(vm.readByte())
		vm.stack[vm.currentFrame().slotBase+slot] = vm.peek(0)
	case bytecode.OpGetUpValue:
		slot := int(vm.readByte())
		vm.push(vm.currentFrame().closure.Upvalues[slot].Get())
	case bytecode.OpSetUpValue:
		slot := int(vm.readByte())
		vm.currentFrame().closure.Upvalues[slot].Set(vm.peek(0))
	case bytecode.OpCloseUpValue:
		vm.closeUpvalues(vm.sp - 1)
		vm.pop()

	// === Object access ===
	case bytecode.OpGetProperty:
		name := vm.readConstantString()
		v, err := vm.getProperty(vm.pop(), name, false)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpGetSelfProperty:
		name := vm.readConstantString()
		v, err := vm.getSelfProperty(vm.pop(), name)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpSetProperty:
		name := vm.readConstantString()
		val := vm.pop()
		receiver := vm.pop()
		if err := vm.setProperty(receiver, name, val); err != nil {
			return err
		}
		vm.push(val)
	case bytecode.OpGetIndex:
		idx, receiver := vm.pop(), vm.pop()
		v, err := vm.getIndex(receiver, idx)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpGetRangedIndex:
		hi, lo, receiver := vm.pop(), vm.pop(), vm.pop()
		v, err := vm.getRangedIndex(receiver, lo, hi)
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpSetIndex:
		val, idx, receiver := vm.pop(), vm.pop(), vm.pop()
		if err := vm.setIndex(receiver, idx, val); err != nil {
			return err
		}
		vm.push(val)

	// === Control flow ===
	case bytecode.OpJump:
		offset := vm.readShort()
		vm.currentFrame().ip += int(offset)
	case bytecode.OpJumpIfFalse:
		offset := vm.readShort()
		if !vm.peek(0).IsTruthy() {
			vm.currentFrame().ip += int(offset)
		}
	case bytecode.OpLoop:
		offset := vm.readShort()
		vm.currentFrame().ip -= int(offset)
	case bytecode.OpBreakPL:
		return vm.runtimeErrorfPlain("internal error: unpatched BREAK_PL reached at runtime")
	case bytecode.OpSwitch:
		sw, _ := vm.readConstant().AsObject().(*object.Switch)
		val := vm.pop()
		off := sw.Lookup(val)
		if off == -1 {
			off = sw.Exit
		}
		vm.currentFrame().ip = off
	case bytecode.OpChoice:
		return vm.runtimeErrorfPlain("internal error: unemitted CHOICE reached at runtime")
	case bytecode.OpReturn:
		result := vm.pop()
		f := vm.currentFrame()
		vm.closeUpvalues(f.slotBase)
		retBase := f.slotBase
		vm.frames = vm.frames[:len(vm.frames)-1]
		vm.sp = retBase
		vm.push(result)

	// === Call and class machinery ===
	case bytecode.OpCall:
		argc := int(vm.readByte())
		return vm.callValue(vm.peek(argc), argc)
	case bytecode.OpInvoke:
		name := vm.readConstantString()
		argc := int(vm.readByte())
		return vm.invoke(name, argc, false)
	case bytecode.OpInvokeSelf:
		name := vm.readConstantString()
		argc := int(vm.readByte())
		return vm.invoke(name, argc, true)
	case bytecode.OpSuperInvoke:
		name := vm.readConstantString()
		argc := int(vm.readByte())
		return vm.superInvokeSelf(name, argc)
	case bytecode.OpSuperInvokeSelf:
		name := vm.readConstantString()
		argc := int(vm.readByte())
		return vm.superInvokeSelf(name, argc)
	case bytecode.OpClass:
		name := vm.readConstantString()
		cls := object.NewClass(name)
		vm.track(cls)
		vm.push(value.Obj(cls))
	case bytecode.OpInherit:
		superVal := vm.pop()
		super, ok := superVal.AsObject().(*object.Class)
		if !ok {
			return vm.runtimeErrorf("superclass must be a class")
		}
		sub, ok := vm.peek(0).AsObject().(*object.Class)
		if !ok {
			return vm.runtimeErrorf("internal error: INHERIT below non-class")
		}
		sub.Inherit(super)
	case bytecode.OpMethod:
		name := vm.readConstantString()
		_ = vm.readByte() // FunctionKind tag, already baked into the closure's Fn.Kind
		method := vm.pop()
		cls, ok := vm.peek(0).AsObject().(*object.Class)
		if !ok {
			return vm.runtimeErrorf("internal error: METHOD below non-class")
		}
		cls.BindMethod(name, method)
	case bytecode.OpClassProperty:
		name := vm.readConstantString()
		static := vm.readByte() != 0
		val := vm.pop()
		cls, ok := vm.peek(0).AsObject().(*object.Class)
		if !ok {
			return vm.runtimeErrorf("internal error: CLASS_PROPERTY below non-class")
		}
		if static {
			cls.Statics.Set(value.Obj(name), val)
		} else {
			cls.Properties.Set(value.Obj(name), val)
		}
	case bytecode.OpGetSuper:
		name := vm.readConstantString()
		return vm.getSuper(name)
	case bytecode.OpClosure:
		return vm.makeClosure()

	// === Containers ===
	case bytecode.OpList:
		n := int(vm.readShort())
		items := make([]value.Value, n)
		copy(items, vm.stack[vm.sp-n:vm.sp])
		vm.sp -= n
		vm.push(vm.allocList(items))
	case bytecode.OpDict:
		n := int(vm.readShort())
		d := value.NewDict()
		base := vm.sp - n*2
		for i := 0; i < n; i++ {
			k := vm.stack[base+i*2]
			v := vm.stack[base+i*2+1]
			d.Set(k, v)
		}
		vm.sp = base
		vm.track(d)
		vm.push(value.Obj(d))
	case bytecode.OpRange:
		upper, lower := vm.pop(), vm.pop()
		if upper.Kind() != value.KindNumber || lower.Kind() != value.KindNumber {
			return vm.runtimeErrorf("range bounds must be numbers")
		}
		r := &value.Range{Lower: int64(lower.AsNumber()), Upper: int64(upper.AsNumber())}
		vm.track(r)
		vm.push(value.Obj(r))

	// === I/O and misc ===
	case bytecode.OpEcho:
		fmt.Fprintln(vm.Stdout, value.ToDisplayString(vm.pop()))
	case bytecode.OpStringify:
		v, err := vm.stringifyValue(vm.pop())
		if err != nil {
			return err
		}
		vm.push(v)
	case bytecode.OpAssert:
		msg, cond := vm.pop(), vm.pop()
		return vm.raiseAssert(cond, msg)
	case bytecode.OpDie:
		return vm.raiseDie(vm.pop())

	// === Modules ===
	case bytecode.OpCallImport:
		path := vm.readConstantString()
		return vm.callImport(path, false)
	case bytecode.OpNativeModule:
		path := vm.readConstantString()
		return vm.callImport(path, true)
	case bytecode.OpSelectImport:
		name := vm.readConstantString()
		return vm.selectImport(name)
	case bytecode.OpSelectNativeImport:
		name := vm.readConstantString()
		return vm.selectImport(name)
	case bytecode.OpEjectImport, bytecode.OpEjectNativeImport:
		name := vm.readConstantString()
		return vm.ejectImport(name)
	case bytecode.OpImportAll:
		path := vm.readConstantString()
		return vm.importAll(path, false)
	case bytecode.OpImportAllNative:
		path := vm.readConstantString()
		return vm.importAll(path, true)

	// === Exceptions ===
	case bytecode.OpTry:
		return vm.execTry()
	case bytecode.OpPopTry:
		vm.popTry()
	case bytecode.OpPublishTry:
		return vm.publishTry()

	default:
		return vm.runtimeErrorfPlain("internal error: unimplemented opcode %s", op)
	}
	return nil
}

func (vm *VM) numOp(fn func(a, b float64) float64) error {
	b, a := vm.pop(), vm.pop()
	v, err := vm.numericBinary(fn, a, b)
	if err != nil {
		return err
	}
	vm.push(v)
	return nil
}

func (vm *VM) bitOp(fn func(a, b int32) int32) error {
	b, a := vm.pop(), vm.pop()
	v, err := vm.bitwiseBinary(fn, a, b)
	if err != nil {
		return err
	}
	vm.push(v)
	return nil
}

// execTry implements OP_TRY: resolve the catch class by name (globals
// only -- spec 4.9's Open Question decision, see DESIGN.md) and push a
// handler onto the current frame's handler stack (spec 4.7).
func (vm *VM) execTry() error {
	classIdx := vm.readShort()
	handlerAddr := int(vm.readShort())
	finallyAddr := int(vm.readShort())

	nameVal := vm.currentFrame().blob().Constants[classIdx]
	name, _ := nameVal.AsObject().(*value.String)
	var class *object.Class
	if name != nil {
		if v, ok := vm.globals.Get(value.Obj(name)); ok {
			class, _ = v.AsObject().(*object.Class)
		}
	}
	if class == nil {
		class = vm.exceptionClass
	}
	const maxHandlers = 16
	if len(vm.currentFrame().handlers) >= maxHandlers {
		return vm.runtimeErrorf("too many nested try blocks")
	}
	vm.pushTry(class, handlerAddr, finallyAddr)
	return nil
}

// makeClosure implements OP_CLOSURE: read the function constant, then one
// (isLocal, index) pair per declared upvalue, capturing each from either
// the enclosing frame's locals or its own upvalues (spec 4.5).
func (vm *VM) makeClosure() error {
	fnVal := vm.readConstant()
	fn, ok := fnVal.AsObject().(*value.Function)
	if !ok {
		return vm.runtimeErrorf("internal error: CLOSURE operand is not a function")
	}
	cl := &value.Closure{Fn: fn, Upvalues: make([]*value.Upvalue, len(fn.Upvalues))}
	enclosing := vm.currentFrame()
	for i := range fn.Upvalues {
		isLocal := vm.readByte() != 0
		index := int(vm.readByte())
		if isLocal {
			cl.Upvalues[i] = vm.captureUpvalue(enclosing.slotBase + index)
		} else {
			cl.Upvalues[i] = enclosing.closure.Upvalues[index]
		}
	}
	vm.track(cl)
	vm.push(value.Obj(cl))
	return nil
}
