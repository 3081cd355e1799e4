package vm

import (
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
)

// invokeBuiltin dispatches a method call against one of the built-in
// container kinds (List, Dict, Range, String, Bytes), reached only through
// INVOKE -- these types have no Class, so GET_PROPERTY never applies to
// them (spec 4.6: "built-in container methods dispatch the same way
// user-defined methods do", reached via the same invoke() fallback).
func (vm *VM) invokeBuiltin(receiver value.Value, name *value.String, argc int) error {
	slotBase := vm.sp - argc - 1
	args := vm.stack[slotBase+1 : vm.sp]
	n := name.GoString()

	var result value.Value
	var err error

	switch r := receiver.AsObject().(type) {
	case *value.List:
		result, err = vm.listMethod(r, n, args)
	case *value.Dict:
		result, err = vm.dictMethod(r, n, args)
	case *value.Range:
		result, err = vm.rangeMethod(r, n, args)
	case *value.String:
		result, err = vm.stringMethod(r, n, args)
	case *value.Bytes:
		result, err = vm.bytesMethod(r, n, args)
	default:
		return vm.runtimeErrorf("cannot call method '%s' on %s", n, value.TypeName(receiver))
	}
	if err != nil {
		return err
	}
	vm.sp = slotBase
	vm.push(result)
	return nil
}

func argOr(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.Nil
}

func (vm *VM) listMethod(l *value.List, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "@iter":
		key := argOr(args, 0)
		if key.Kind() != value.KindNumber {
			return value.Nil, vm.listMethodErr(name)
		}
		i := int(key.AsNumber())
		if i < 0 || i >= len(l.Items) {
			return value.Nil, vm.runtimeErrorf("list index out of range")
		}
		return l.Items[i], nil
	case "@itern":
		return vm.nextIndex(argOr(args, 0), len(l.Items)), nil
	case "len":
		return value.Number(float64(len(l.Items))), nil
	case "push", "append":
		l.Items = append(l.Items, args...)
		return value.Obj(l), nil
	case "pop":
		if len(l.Items) == 0 {
			return value.Nil, vm.runtimeErrorf("pop from empty list")
		}
		last := l.Items[len(l.Items)-1]
		l.Items = l.Items[:len(l.Items)-1]
		return last, nil
	case "clear":
		l.Items = nil
		return value.Obj(l), nil
	case "to_string":
		return vm.allocString([]byte(value.ToDisplayString(value.Obj(l)))), nil
	}
	return value.Nil, vm.listMethodErr(name)
}

func (vm *VM) listMethodErr(name string) error {
	return vm.runtimeErrorf("list has no method '%s'", name)
}

// nextIndex implements the common @itern contract for sequence types
// indexed 0..n-1: nil starts at 0, otherwise advances by one, returning
// false once the sequence is exhausted.
func (vm *VM) nextIndex(key value.Value, n int) value.Value {
	if key.IsNil() {
		if n == 0 {
			return value.False
		}
		return value.Number(0)
	}
	next := int(key.AsNumber()) + 1
	if next >= n {
		return value.False
	}
	return value.Number(float64(next))
}

func (vm *VM) dictMethod(d *value.Dict, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "@iter":
		key := argOr(args, 0)
		v, ok := d.Get(key)
		if !ok {
			return value.Nil, vm.runtimeErrorf("key not found in dict")
		}
		return v, nil
	case "@itern":
		return vm.nextDictKey(d, argOr(args, 0)), nil
	case "len":
		return value.Number(float64(len(d.Keys))), nil
	case "keys":
		items := make([]value.Value, len(d.Keys))
		copy(items, d.Keys)
		return vm.allocList(items), nil
	case "values":
		items := make([]value.Value, len(d.Values))
		copy(items, d.Values)
		return vm.allocList(items), nil
	case "has":
		_, ok := d.Get(argOr(args, 0))
		return value.Bool(ok), nil
	case "delete":
		return value.Bool(d.Delete(argOr(args, 0))), nil
	case "to_string":
		return vm.allocString([]byte(value.ToDisplayString(value.Obj(d)))), nil
	}
	return value.Nil, vm.runtimeErrorf("dict has no method '%s'", name)
}

func (vm *VM) nextDictKey(d *value.Dict, key value.Value) value.Value {
	if key.IsNil() {
		if len(d.Keys) == 0 {
			return value.False
		}
		return d.Keys[0]
	}
	for i, k := range d.Keys {
		if value.Equal(k, key) {
			if i+1 >= len(d.Keys) {
				return value.False
			}
			return d.Keys[i+1]
		}
	}
	return value.False
}

func (vm *VM) rangeMethod(r *value.Range, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "@iter":
		return argOr(args, 0), nil
	case "@itern":
		key := argOr(args, 0)
		if key.IsNil() {
			if r.Len() == 0 {
				return value.False, nil
			}
			return value.Number(float64(r.Lower)), nil
		}
		next := int64(key.AsNumber()) + r.Step()
		if r.Step() > 0 && next > r.Upper {
			return value.False, nil
		}
		if r.Step() < 0 && next < r.Upper {
			return value.False, nil
		}
		return value.Number(float64(next)), nil
	case "len":
		return value.Number(float64(r.Len())), nil
	case "to_list":
		items := make([]value.Value, 0, r.Len())
		for i := int64(0); i < r.Len(); i++ {
			items = append(items, value.Number(float64(r.Lower+i*r.Step())))
		}
		return vm.allocList(items), nil
	case "to_string":
		return vm.allocString([]byte(value.ToDisplayString(value.Obj(r)))), nil
	}
	return value.Nil, vm.runtimeErrorf("range has no method '%s'", name)
}

func (vm *VM) stringMethod(s *value.String, name string, args []value.Value) (value.Value, error) {
	runes := stringRunes(s)
	switch name {
	case "@iter":
		key := argOr(args, 0)
		i := int(key.AsNumber())
		if i < 0 || i >= len(runes) {
			return value.Nil, vm.runtimeErrorf("string index out of range")
		}
		return vm.allocString([]byte(string(runes[i]))), nil
	case "@itern":
		return vm.nextIndex(argOr(args, 0), len(runes)), nil
	case "len":
		return value.Number(float64(len(runes))), nil
	case "upper":
		return vm.allocString([]byte(toUpperASCII(s.GoString()))), nil
	case "lower":
		return vm.allocString([]byte(toLowerASCII(s.GoString()))), nil
	case "to_string":
		return value.Obj(s), nil
	}
	return value.Nil, vm.runtimeErrorf("string has no method '%s'", name)
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func (vm *VM) bytesMethod(b *value.Bytes, name string, args []value.Value) (value.Value, error) {
	switch name {
	case "@iter":
		key := argOr(args, 0)
		i := int(key.AsNumber())
		if i < 0 || i >= len(b.Data) {
			return value.Nil, vm.runtimeErrorf("bytes index out of range")
		}
		return value.Number(float64(b.Data[i])), nil
	case "@itern":
		return vm.nextIndex(argOr(args, 0), len(b.Data)), nil
	case "len":
		return value.Number(float64(len(b.Data))), nil
	case "to_string":
		return vm.allocString(append([]byte(nil), b.Data...)), nil
	}
	return value.Nil, vm.runtimeErrorf("bytes has no method '%s'", name)
}

// stringifyValue implements OP_STRINGIFY: string interpolation's coercion,
// checking an Instance's @to_string hook before falling back to the
// default display form (spec 4.6, "Override hooks").
func (vm *VM) stringifyValue(v value.Value) (value.Value, error) {
	if inst, ok := v.AsObject().(*object.Instance); ok {
		if method, ok := inst.Class.Hook(object.HookToString); ok {
			return vm.callHook(v, method)
		}
	}
	return vm.allocString([]byte(value.ToDisplayString(v))), nil
}

// callHook invokes a zero-argument hook method bound to receiver and
// returns its result, running the call to completion before returning to
// the caller (used by stringifyValue and any future coercion sites).
func (vm *VM) callHook(receiver value.Value, method value.Value) (value.Value, error) {
	cl, ok := method.AsObject().(*value.Closure)
	if !ok {
		return value.Nil, vm.runtimeErrorf("hook method is not callable")
	}
	depth := len(vm.frames)
	vm.push(receiver)
	if err := vm.callClosure(cl, 0, receiver, true); err != nil {
		return value.Nil, err
	}
	if err := vm.run(depth); err != nil {
		return value.Nil, err
	}
	return vm.pop(), nil
}
