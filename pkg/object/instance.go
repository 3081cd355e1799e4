package object

import (
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// Instance is a class's runtime object: a class pointer plus a per-instance
// property table, seeded by shallow-copying the class's property defaults
// at construction time (spec 3, "Instance").
type Instance struct {
	value.Header
	Class      *Class
	Properties *table.Table
}

func (i *Instance) ObjKind() value.ObjKind { return value.ObjInstance }
func (i *Instance) Hash() uint32           { return 0 }
func (i *Instance) TypeLabel() string      { return i.Class.Name.GoString() }

// NewInstance allocates an instance of class, copying its instance
// property defaults per value.Copy's one-level rule (spec 3).
func NewInstance(class *Class) *Instance {
	props := table.New()
	class.Properties.Each(func(k, v value.Value) {
		props.Set(k, value.Copy(v))
	})
	return &Instance{Class: class, Properties: props}
}

// Get resolves a property access: own properties first (so instance
// fields that happen to hold a callable shadow methods of the same name),
// then the class method chain (spec 4.6, "INVOKE name n looks up name
// first in the receiver's own properties ... then in its class's method
// table walking up the superclass chain").
func (i *Instance) Get(name *value.String) (value.Value, bool) {
	if v, ok := i.Properties.Get(value.Obj(name)); ok {
		return v, true
	}
	return i.Class.LookupMethod(name)
}
