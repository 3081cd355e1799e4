package object

import (
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// Switch is the precomputed jump table a `using` statement compiles to
// (spec 3; spec 4.5). Cases maps each constant `when` Value to the
// absolute bytecode offset of its arm; Default and Exit are likewise
// absolute offsets for the default arm and the statement's exit point.
type Switch struct {
	value.Header
	Cases   *table.Table
	Default int
	Exit    int
}

func (s *Switch) ObjKind() value.ObjKind { return value.ObjSwitch }
func (s *Switch) Hash() uint32           { return 0 }

// NewSwitch allocates an empty jump table.
func NewSwitch() *Switch {
	return &Switch{Cases: table.New(), Default: -1, Exit: -1}
}

// Lookup returns the bytecode offset for val, falling back to Default.
func (s *Switch) Lookup(val value.Value) int {
	if off, ok := s.Cases.Get(val); ok {
		return int(off.AsNumber())
	}
	return s.Default
}
