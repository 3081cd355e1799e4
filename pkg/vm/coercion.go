package vm

import (
	"math"
	"strconv"
	"strings"

	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
)

// bootstrapCoercions registers the global coercion functions every script
// gets for free: to_string, to_bool, to_number, to_int, to_list, to_dict,
// to_bin, to_oct, to_hex, and abs (spec 4.7, "coercion hooks"). Each checks
// the receiver's matching @to_X hook before falling back to the built-in
// conversion, mirroring the way stringifyValue checks @to_string first.
func (vm *VM) bootstrapCoercions() {
	def := func(name string, fn value.NativeFn) {
		nf := &value.NativeFunction{Name: vm.internGo(name), Arity: 1, Fn: fn}
		vm.track(nf)
		vm.DefineGlobal(name, value.Obj(nf))
	}

	def("to_string", vm.coerceToString)
	def("to_bool", vm.coerceToBool)
	def("to_number", vm.coerceToNumber)
	def("to_int", vm.coerceToInt)
	def("to_list", vm.coerceToList)
	def("to_dict", vm.coerceToDict)
	def("to_bin", vm.coerceToBin)
	def("to_oct", vm.coerceToOct)
	def("to_hex", vm.coerceToHex)
	def("abs", vm.coerceAbs)
}

// hook looks up h on v's class if v is an Instance, returning the hook
// method and true if the class defines one.
func (vm *VM) hook(v value.Value, h object.Hook) (value.Value, bool) {
	inst, ok := v.AsObject().(*object.Instance)
	if !ok {
		return value.Nil, false
	}
	return inst.Class.Hook(h)
}

func (vm *VM) coerceToString(_ value.NativeVM, args []value.Value) (value.Value, error) {
	return vm.stringifyValue(args[0])
}

func (vm *VM) coerceToBool(_ value.NativeVM, args []value.Value) (value.Value, error) {
	v := args[0]
	if method, ok := vm.hook(v, object.HookToBool); ok {
		return vm.callHook(v, method)
	}
	return value.Bool(v.IsTruthy()), nil
}

func (vm *VM) coerceToNumber(_ value.NativeVM, args []value.Value) (value.Value, error) {
	v := args[0]
	if method, ok := vm.hook(v, object.HookToNumber); ok {
		return vm.callHook(v, method)
	}
	switch v.Kind() {
	case value.KindNumber:
		return v, nil
	case value.KindBool:
		if v.AsBool() {
			return value.Number(1), nil
		}
		return value.Number(0), nil
	case value.KindNil:
		return value.Number(-1), nil
	}
	return value.Number(parseNumber(value.ToDisplayString(v))), nil
}

func (vm *VM) coerceToInt(_ value.NativeVM, args []value.Value) (value.Value, error) {
	v := args[0]
	if method, ok := vm.hook(v, object.HookToInt); ok {
		return vm.callHook(v, method)
	}
	n, err := vm.coerceToNumber(nil, args)
	if err != nil {
		return value.Nil, err
	}
	return value.Number(float64(int64(n.AsNumber()))), nil
}

func (vm *VM) coerceAbs(_ value.NativeVM, args []value.Value) (value.Value, error) {
	v := args[0]
	if method, ok := vm.hook(v, object.HookToAbs); ok {
		return vm.callHook(v, method)
	}
	if v.Kind() != value.KindNumber {
		return value.Nil, vm.runtimeErrorf("abs() expects a number")
	}
	return value.Number(math.Abs(v.AsNumber())), nil
}

func (vm *VM) coerceToList(_ value.NativeVM, args []value.Value) (value.Value, error) {
	v := args[0]
	if method, ok := vm.hook(v, object.HookToList); ok {
		return vm.callHook(v, method)
	}
	switch o := v.AsObject().(type) {
	case *value.List:
		return v, nil
	case *value.Dict:
		pairs := make([]value.Value, len(o.Keys))
		for i, k := range o.Keys {
			pairs[i] = vm.allocList([]value.Value{k, o.Values[i]})
		}
		return vm.allocList(pairs), nil
	case *value.String:
		return vm.allocList(vm.stringRunes(o)), nil
	case *value.Range:
		n := o.Len()
		items := make([]value.Value, n)
		step, cur := o.Step(), o.Lower
		for i := int64(0); i < n; i++ {
			items[i] = value.Number(float64(cur))
			cur += step
		}
		return vm.allocList(items), nil
	}
	return vm.allocList([]value.Value{v}), nil
}

// stringRunes splits s into one-character strings in iteration order,
// the same unit invokeBuiltin's string methods iterate over.
func (vm *VM) stringRunes(s *value.String) []value.Value {
	runes := []rune(s.GoString())
	out := make([]value.Value, len(runes))
	for i, r := range runes {
		out[i] = vm.allocString([]byte(string(r)))
	}
	return out
}

func (vm *VM) coerceToDict(_ value.NativeVM, args []value.Value) (value.Value, error) {
	v := args[0]
	if method, ok := vm.hook(v, object.HookToDict); ok {
		return vm.callHook(v, method)
	}
	if _, ok := v.AsObject().(*value.Dict); ok {
		return v, nil
	}
	d := value.NewDict()
	d.Set(value.Number(0), v)
	vm.track(d)
	return value.Obj(d), nil
}

const (
	radixBinPrefix = "0b"
	radixOctPrefix = "0c"
	radixHexPrefix = "0x"
)

func (vm *VM) coerceToBin(_ value.NativeVM, args []value.Value) (value.Value, error) {
	return vm.coerceToRadix(args, object.HookToBin, radixBinPrefix, 2)
}

func (vm *VM) coerceToOct(_ value.NativeVM, args []value.Value) (value.Value, error) {
	return vm.coerceToRadix(args, object.HookToOct, radixOctPrefix, 8)
}

func (vm *VM) coerceToHex(_ value.NativeVM, args []value.Value) (value.Value, error) {
	return vm.coerceToRadix(args, object.HookToHex, radixHexPrefix, 16)
}

func (vm *VM) coerceToRadix(args []value.Value, h object.Hook, prefix string, base int) (value.Value, error) {
	v := args[0]
	if method, ok := vm.hook(v, h); ok {
		return vm.callHook(v, method)
	}
	if v.Kind() != value.KindNumber {
		return value.Nil, vm.runtimeErrorf("expected a number")
	}
	n := int64(v.AsNumber())
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, base)
	if neg {
		return vm.allocString([]byte("-" + prefix + digits)), nil
	}
	return vm.allocString([]byte(prefix + digits)), nil
}

// parseNumber mirrors to_number's reverse of to_bin/to_oct/to_hex: an
// optional leading '-', an optional "0b"/"0c"/"0x" radix prefix parsed as
// an integer, else a plain float parse defaulting to 0 on failure.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	neg := false
	rest := s
	if strings.HasPrefix(rest, "-") {
		neg = true
		rest = rest[1:]
	}
	if len(rest) > 2 && rest[0] == '0' {
		var base int
		switch rest[1] {
		case 'b':
			base = 2
		case 'c':
			base = 8
		case 'x':
			base = 16
		}
		if base != 0 {
			if n, err := strconv.ParseInt(rest[2:], base, 64); err == nil {
				if neg {
					return -float64(n)
				}
				return float64(n)
			}
		}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n
}
