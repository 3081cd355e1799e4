// Package stdlib supplies the three native modules registered at VM init
// (spec 4.12): _math, _os, _reflect. Each is deliberately small, enough to
// exercise native-module registration, field tables, and function tables
// end to end without reimplementing a full standard library.
package stdlib

import (
	"math"

	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

// Math builds the _math native module: abs, sqrt, pow, floor, ceil, and
// the constant PI.
func Math(v *vm.VM) (*object.Module, error) {
	mod := object.NewModule(v.Intern("_math"), "_math")

	def := func(name string, arity int, fn value.NativeFn) {
		nf := &value.NativeFunction{Name: v.Intern(name), Arity: arity, Fn: fn}
		v.Track(nf)
		mod.Values.Set(value.Obj(v.Intern(name)), value.Obj(nf))
	}

	def("abs", 1, func(_ value.NativeVM, args []value.Value) (value.Value, error) {
		n, err := oneNumber("abs", args)
		if err != nil {
			return value.Nil, err
		}
		return value.Number(math.Abs(n)), nil
	})
	def("sqrt", 1, func(_ value.NativeVM, args []value.Value) (value.Value, error) {
		n, err := oneNumber("sqrt", args)
		if err != nil {
			return value.Nil, err
		}
		return value.Number(math.Sqrt(n)), nil
	})
	def("pow", 2, func(_ value.NativeVM, args []value.Value) (value.Value, error) {
		if len(args) != 2 || args[0].Kind() != value.KindNumber || args[1].Kind() != value.KindNumber {
			return value.Nil, argError("pow", "two numbers")
		}
		return value.Number(math.Pow(args[0].AsNumber(), args[1].AsNumber())), nil
	})
	def("floor", 1, func(_ value.NativeVM, args []value.Value) (value.Value, error) {
		n, err := oneNumber("floor", args)
		if err != nil {
			return value.Nil, err
		}
		return value.Number(math.Floor(n)), nil
	})
	def("ceil", 1, func(_ value.NativeVM, args []value.Value) (value.Value, error) {
		n, err := oneNumber("ceil", args)
		if err != nil {
			return value.Nil, err
		}
		return value.Number(math.Ceil(n)), nil
	})

	mod.Values.Set(value.Obj(v.Intern("PI")), value.Number(math.Pi))
	return mod, nil
}

func oneNumber(name string, args []value.Value) (float64, error) {
	if len(args) != 1 || args[0].Kind() != value.KindNumber {
		return 0, argError(name, "one number")
	}
	return args[0].AsNumber(), nil
}

type argErr string

func (e argErr) Error() string { return string(e) }

func argError(name, want string) error {
	return argErr(name + " expects " + want)
}
