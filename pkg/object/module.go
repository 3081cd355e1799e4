package object

import (
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// Preloader and Unloader are the optional native-module lifecycle hooks a
// host registers alongside a module's field/function/class tables (spec 3,
// "Module"; spec 6, "a module-registration call to add a native module").
type Preloader func(vm interface{}, mod *Module) error
type Unloader func(vm interface{}, mod *Module)

// Module is a first-class namespace: its top-level bindings live in
// Values. Native modules additionally carry a NativeHandle (opaque host
// state) and optional Preload/Unload callbacks, gated by Imported so the
// unload hook runs at most once (spec 3, "Module").
type Module struct {
	value.Header
	Name         *value.String
	Path         string
	Values       *table.Table
	Native       bool
	Preload      Preloader
	Unload       Unloader
	NativeHandle interface{}
	Imported     bool
}

func (m *Module) ObjKind() value.ObjKind { return value.ObjModule }
func (m *Module) Hash() uint32           { return 0 }
func (m *Module) TypeLabel() string      { return "module " + m.Name.GoString() }

// NewModule allocates an empty module.
func NewModule(name *value.String, path string) *Module {
	return &Module{Name: name, Path: path, Values: table.New()}
}

// AsCallable reports whether the module is usable as a callable, per spec
// 9 ("Module-as-callable. Deliberately treat a module with a self-named
// value as a callable"), returning the self-named value to dispatch to.
func (m *Module) AsCallable() (value.Value, bool) {
	return m.Values.Get(value.Obj(m.Name))
}
