package vm

import (
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// RunModule executes a freshly compiled module body to completion against
// a scratch globals table, then hands that table back as the module's
// values (spec 4.8: "its top-level definitions populate the module's
// values table"). vm.globals is swapped out for the duration of the call
// so a module's top-level `var`/`fn`/`class` declarations never leak into
// the importing script's globals -- only an explicit SELECT_IMPORT/
// IMPORT_ALL opcode copies bindings across that boundary.
func (vm *VM) RunModule(fn *value.Function) (*table.Table, error) {
	saved := vm.globals
	scratch := table.New()
	vm.globals = scratch
	defer func() { vm.globals = saved }()

	cl := &value.Closure{Fn: fn}
	vm.track(cl)
	depth := len(vm.frames)
	vm.push(value.Obj(cl))
	if err := vm.callClosure(cl, 0, value.Nil, false); err != nil {
		return nil, err
	}
	if err := vm.run(depth); err != nil {
		return nil, err
	}
	vm.pop() // the module function's own return value, discarded
	return scratch, nil
}
