package value

// ObjKind identifies the concrete heap object kind behind a KindObject Value.
type ObjKind byte

const (
	ObjString ObjKind = iota
	ObjBytes
	ObjRange
	ObjList
	ObjDict
	ObjFile
	ObjUpvalue
	ObjBoundMethod
	ObjClosure
	ObjFunction
	ObjInstance
	ObjClass
	ObjModule
	ObjSwitch
	ObjNativeFunction
	ObjPointer
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "String"
	case ObjBytes:
		return "Bytes"
	case ObjRange:
		return "Range"
	case ObjList:
		return "List"
	case ObjDict:
		return "Dict"
	case ObjFile:
		return "File"
	case ObjUpvalue:
		return "Upvalue"
	case ObjBoundMethod:
		return "BoundMethod"
	case ObjClosure:
		return "Closure"
	case ObjFunction:
		return "Function"
	case ObjInstance:
		return "Instance"
	case ObjClass:
		return "Class"
	case ObjModule:
		return "Module"
	case ObjSwitch:
		return "Switch"
	case ObjNativeFunction:
		return "NativeFunction"
	case ObjPointer:
		return "Pointer"
	}
	return "Unknown"
}

// Object is implemented by every heap value kind. Every heap object carries
// a GC mark bit and a sibling link threading it into the VM's single
// intrusive object list (spec 3, "Lifecycle and ownership"); Header
// supplies both, embedded into each concrete type.
type Object interface {
	ObjKind() ObjKind
	header() *Header
	Hash() uint32
}

// Header is embedded in every heap object. It is never exposed outside the
// value/gc packages: callers interact with the object through its concrete
// type or the Object interface.
type Header struct {
	Marked bool
	Next   Object
}

func (h *Header) header() *Header { return h }

// Mark and Unmark are thin helpers used by the gc package so it does not
// need to know about Header's field layout directly when walking the list.
func Mark(o Object) bool {
	h := o.header()
	if h.Marked {
		return false
	}
	h.Marked = true
	return true
}

func Unmark(o Object) { o.header().Marked = false }

func IsMarked(o Object) bool { return o.header().Marked }

func NextOf(o Object) Object { return o.header().Next }

func SetNext(o Object, next Object) { o.header().Next = next }

// Named is implemented by heap kinds whose TypeName rendering depends on
// runtime data rather than their ObjKind alone (Instance wants its class
// name; Class wants "class <Name>").
type Named interface {
	TypeLabel() string
}
