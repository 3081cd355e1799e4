// Package gc implements the tracing mark-sweep collector described in
// spec 4.3. It owns the VM's intrusive object list and allocation-size
// threshold, but knows nothing about call frames or the value stack: the
// VM supplies roots as a flat []value.Value plus the set of pkg/table
// tables to treat as root containers (globals, module value tables, class
// tables reachable only indirectly). This keeps gc free of any dependency
// on pkg/vm, so pkg/vm can depend on gc without a cycle.
package gc

import (
	"github.com/kristofer/smog/pkg/object"
	"github.com/kristofer/smog/pkg/table"
	"github.com/kristofer/smog/pkg/value"
)

// minThreshold bounds the allocation threshold from below so the very
// first cycle doesn't fire after a handful of allocations.
const minThreshold = 1 << 16

// Collector owns the intrusive object list and drives mark-sweep cycles.
// The zero Collector is not usable; construct with New.
type Collector struct {
	head           value.Object
	bytesAllocated int64
	threshold      int64
	interner       *value.Interner
	gray           []value.Object

	// Trace, when non-nil, receives the Stats of each completed cycle.
	// Nothing in this repository sets it.
	Trace func(Stats)
}

// Stats summarizes one completed collection cycle.
type Stats struct {
	BytesBefore int64
	BytesAfter  int64
	Freed       int
	Threshold   int64
}

// New returns a Collector whose string-interning table is interner (so
// RemoveWhite can run against it between mark and sweep).
func New(interner *value.Interner) *Collector {
	return &Collector{interner: interner, threshold: minThreshold}
}

// BytesAllocated reports the current attributed allocation size.
func (c *Collector) BytesAllocated() int64 { return c.bytesAllocated }

// ShouldRun reports whether bytesAllocated has crossed the threshold
// (spec 4.3, "Triggered when bytes-allocated exceeds a threshold").
func (c *Collector) ShouldRun() bool { return c.bytesAllocated > c.threshold }

// Track registers a freshly allocated object on the intrusive list and
// attributes its approximate size to the allocation counter. Every
// constructor in pkg/vm that allocates a heap object must call this
// exactly once (spec 3, invariant 1: "every live object appears exactly
// once in the intrusive object list").
func (c *Collector) Track(o value.Object) {
	value.SetNext(o, c.head)
	c.head = o
	c.bytesAllocated += approxSize(o)
}

// markValue marks v's object (if any) and enqueues it on the gray
// worklist the first time it is seen.
func (c *Collector) markValue(v value.Value) {
	if v.Kind() != value.KindObject {
		return
	}
	o := v.AsObject()
	if o == nil {
		return
	}
	if value.Mark(o) {
		c.gray = append(c.gray, o)
	}
}

func (c *Collector) markTableValues(t *table.Table) {
	if t == nil {
		return
	}
	t.Each(func(_, v value.Value) { c.markValue(v) })
}

// Collect runs one full mark-sweep cycle. roots are the VM's direct value
// roots (stack slots, self, exception classes, ...); tables are the
// Value-keyed tables reachable as roots (globals, the modules table) whose
// *values* should be marked and whose dead-object *keys* should be
// stripped by the "remove whites" pass (spec 4.2).
func (c *Collector) Collect(roots []value.Value, tables []*table.Table) Stats {
	before := c.bytesAllocated
	c.gray = c.gray[:0]

	for _, r := range roots {
		c.markValue(r)
	}
	for _, t := range tables {
		c.markTableValues(t)
	}
	for len(c.gray) > 0 {
		o := c.gray[len(c.gray)-1]
		c.gray = c.gray[:len(c.gray)-1]
		c.blacken(o)
	}

	// "remove whites" runs between mark and sweep (spec 4.2, 4.3) so dead
	// interned strings and dead table keys don't outlive this cycle only
	// to be swept as if they were never referenced.
	c.interner.RemoveWhite(func(s *value.String) bool { return value.IsMarked(s) })
	for _, t := range tables {
		t.RemoveWhite(func(k value.Value) bool {
			return k.Kind() != value.KindObject || value.IsMarked(k.AsObject())
		})
	}

	freed := c.sweep()
	c.threshold = int64(float64(c.bytesAllocated)*1.25) + minThreshold
	stats := Stats{BytesBefore: before, BytesAfter: c.bytesAllocated, Freed: freed, Threshold: c.threshold}
	if c.Trace != nil {
		c.Trace(stats)
	}
	return stats
}

// blacken marks every Value an object directly references, per spec 4.3
// ("repeatedly pop and blacken (recursively mark referents ...)").
func (c *Collector) blacken(o value.Object) {
	switch t := o.(type) {
	case *value.String, *value.Bytes, *value.Range, *value.NativeFunction:
		// leaf objects: nothing further to mark

	case *value.List:
		for _, item := range t.Items {
			c.markValue(item)
		}

	case *value.Upvalue:
		c.markValue(t.Get())

	case *value.BoundMethod:
		c.markValue(t.Receiver)
		c.markValue(t.Method)

	case *value.Function:
		c.markValue(value.Obj(t.Name))
		if t.Blob != nil {
			for _, k := range t.Blob.Constants {
				c.markValue(k)
			}
		}
		if m, ok := t.Module.(value.Object); ok {
			c.markValue(value.Obj(m))
		}

	case *value.Closure:
		c.markValue(value.Obj(t.Fn))
		for _, uv := range t.Upvalues {
			c.markValue(value.Obj(uv))
		}

	case *object.Class:
		c.markValue(value.Obj(t.Name))
		c.markValue(t.Initializer)
		c.markTableValues(t.Properties)
		c.markTableValues(t.Statics)
		c.markTableValues(t.Methods)
		if t.Super != nil {
			c.markValue(value.Obj(t.Super))
		}

	case *object.Instance:
		c.markValue(value.Obj(t.Class))
		c.markTableValues(t.Properties)

	case *object.Module:
		c.markValue(value.Obj(t.Name))
		c.markTableValues(t.Values)

	case *object.Switch:
		c.markTableValues(t.Cases)

	default:
		// *value.Dict is handled here rather than its own case so the
		// import of value stays a type switch arm, matching the rest --
		// Dict keys are genuine user data (not a name table) so both
		// Keys and Values are marked, with no "remove whites" pruning.
		if d, ok := o.(*value.Dict); ok {
			for _, k := range d.Keys {
				c.markValue(k)
			}
			for _, v := range d.Values {
				c.markValue(v)
			}
		}
	}
}
