// Package object implements the heap kinds whose fields are themselves
// Value-keyed tables: Class, Instance, Module, and Switch. They live in
// their own package (rather than pkg/value, alongside the other object
// kinds) purely to break the import cycle that would otherwise result --
// pkg/table must import pkg/value for the Value type, so anything that
// embeds a *table.Table cannot also live in pkg/value. Each type here
// embeds value.Header and implements value.Object, so instances of these
// types are ordinary Values from every other package's point of view.
package object

import (
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// Hook identifies one of the fixed override slots the runtime calls into
// when a built-in coercion is attempted on an instance (spec 4.6,
// "Override hooks"; spec 9, "cache the slot -> method map on the class").
// Hook is a closed enum, not a dynamic string lookup, so the cost of
// checking for an override is one slice index rather than a table probe
// on every arithmetic opcode.
type Hook int

const (
	HookToString Hook = iota
	HookToNumber
	HookToBool
	HookToList
	HookToDict
	HookToInt
	HookToAbs
	HookToBin
	HookToOct
	HookToHex
	HookIter
	HookItern
	hookCount
)

// HookNames is the source-level method name for each Hook, including the
// leading '@'.
var HookNames = [hookCount]string{
	HookToString: "@to_string",
	HookToNumber: "@to_number",
	HookToBool:   "@to_bool",
	HookToList:   "@to_list",
	HookToDict:   "@to_dict",
	HookToInt:    "@to_int",
	HookToAbs:    "@to_abs",
	HookToBin:    "@to_bin",
	HookToOct:    "@to_oct",
	HookToHex:    "@to_hex",
	HookIter:     "@iter",
	HookItern:    "@itern",
}

// Class holds a class's name, its three property/method tables, its
// cached initializer, and its superclass pointer (spec 3, "Class").
type Class struct {
	value.Header
	Name        *value.String
	Properties  *table.Table // instance field defaults
	Statics     *table.Table
	Methods     *table.Table
	Initializer value.Value
	Super       *Class
	hooks       [hookCount]value.Value
}

func (c *Class) ObjKind() value.ObjKind { return value.ObjClass }

// Hash satisfies value.Object: classes hash by name, per spec 4.1.
func (c *Class) Hash() uint32 {
	if c.Name == nil {
		return 0
	}
	return c.Name.HashVal
}

// TypeLabel satisfies value.Named so a class value stringifies as
// "class <Name>".
func (c *Class) TypeLabel() string { return "class " + c.Name.GoString() }

// NewClass allocates an empty class ready to receive methods/properties.
func NewClass(name *value.String) *Class {
	return &Class{
		Name:       name,
		Properties: table.New(),
		Statics:    table.New(),
		Methods:    table.New(),
	}
}

// Inherit copies methods and instance properties from super into c and
// links c.Super, per spec 3 ("Inheritance copies both properties and
// methods from the parent into the child at class creation") and spec 4,
// invariant 7 (initializer must equal the class's own-named method).
func (c *Class) Inherit(super *Class) {
	c.Super = super
	super.Methods.Each(func(k, v value.Value) { c.Methods.Set(k, v) })
	super.Properties.Each(func(k, v value.Value) { c.Properties.Set(k, value.Copy(v)) })
	c.hooks = super.hooks
}

// BindMethod registers a compiled method under name, tagging the
// initializer slot and refreshing the hook cache when name matches one of
// the fixed override slots.
func (c *Class) BindMethod(name *value.String, method value.Value) {
	key := value.Obj(name)
	c.Methods.Set(key, method)
	if name.GoString() == c.Name.GoString() {
		c.Initializer = method
	}
	for h, hn := range HookNames {
		if hn == name.GoString() {
			c.hooks[h] = method
		}
	}
}

// Hook returns the cached override method for slot h, and whether one is
// registered (possibly inherited).
func (c *Class) Hook(h Hook) (value.Value, bool) {
	v := c.hooks[h]
	return v, !v.IsNil()
}

// LookupMethod searches c's own method table, then walks Super, per spec
// 4.6 ("INVOKE name n ... class's method table walking up the superclass
// chain").
func (c *Class) LookupMethod(name *value.String) (value.Value, bool) {
	for cl := c; cl != nil; cl = cl.Super {
		if v, ok := cl.Methods.Get(value.Obj(name)); ok {
			return v, true
		}
	}
	return value.Nil, false
}

// IsSubclassOf reports whether c is super or a descendant of super,
// walking the Super chain -- used by the _reflect.isinstance native and
// by catch-clause class matching (spec 4.7, "class matches ... or any
// ancestor").
func (c *Class) IsSubclassOf(super *Class) bool {
	for cl := c; cl != nil; cl = cl.Super {
		if cl == super {
			return true
		}
	}
	return false
}
