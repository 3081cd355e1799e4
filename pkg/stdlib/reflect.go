package stdlib

import (
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

// Reflect builds the _reflect native module: typeof(v), which returns
// value.TypeName(v), and isinstance(v, class) (spec 4.12).
func Reflect(v *vm.VM) (*object.Module, error) {
	mod := object.NewModule(v.Intern("_reflect"), "_reflect")

	typeofFn := &value.NativeFunction{
		Name:  v.Intern("typeof"),
		Arity: 1,
		Fn: func(_ value.NativeVM, args []value.Value) (value.Value, error) {
			return v.AllocString([]byte(value.TypeName(args[0]))), nil
		},
	}
	v.Track(typeofFn)
	mod.Values.Set(value.Obj(v.Intern("typeof")), value.Obj(typeofFn))

	isinstanceFn := &value.NativeFunction{
		Name:  v.Intern("isinstance"),
		Arity: 2,
		Fn: func(_ value.NativeVM, args []value.Value) (value.Value, error) {
			inst, ok := args[0].AsObject().(*object.Instance)
			if !ok {
				return value.False, nil
			}
			cls, ok := args[1].AsObject().(*object.Class)
			if !ok {
				return value.Nil, argError("isinstance", "a class as the second argument")
			}
			return value.Bool(inst.Class.IsSubclassOf(cls)), nil
		},
	}
	v.Track(isinstanceFn)
	mod.Values.Set(value.Obj(v.Intern("isinstance")), value.Obj(isinstanceFn))

	return mod, nil
}
