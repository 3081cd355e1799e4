package stdlib

import (
	"os"

	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

// OS builds the _os native module: the process argv list (passed through
// from the Host API's Argv slot) and a single env(name) lookup.
func OS(v *vm.VM) (*object.Module, error) {
	mod := object.NewModule(v.Intern("_os"), "_os")

	argv := make([]value.Value, len(v.Argv))
	for i, a := range v.Argv {
		argv[i] = v.AllocString([]byte(a))
	}
	mod.Values.Set(value.Obj(v.Intern("args")), v.AllocList(argv))

	envFn := &value.NativeFunction{
		Name:  v.Intern("env"),
		Arity: 1,
		Fn: func(_ value.NativeVM, args []value.Value) (value.Value, error) {
			name, ok := args[0].AsObject().(*value.String)
			if !ok {
				return value.Nil, argError("env", "a string name")
			}
			val, found := os.LookupEnv(name.GoString())
			if !found {
				return value.Nil, nil
			}
			return v.AllocString([]byte(val)), nil
		},
	}
	v.Track(envFn)
	mod.Values.Set(value.Obj(v.Intern("env")), value.Obj(envFn))

	return mod, nil
}
