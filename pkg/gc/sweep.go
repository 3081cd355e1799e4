package gc

import "github.com/kristofer/smog/pkg/value"

// sweep walks the intrusive object list, unlinking and freeing unmarked
// objects per-kind (spec 4.3: "closing files, releasing byte buffers,
// invoking native-pointer free-functions"), and clears the mark bit on
// survivors. It rebuilds c.head in place, as a singly linked list splice.
func (c *Collector) sweep() int {
	freed := 0
	var prev value.Object
	cur := c.head
	for cur != nil {
		next := value.NextOf(cur)
		if value.IsMarked(cur) {
			value.Unmark(cur)
			prev = cur
		} else {
			c.bytesAllocated -= approxSize(cur)
			finalize(cur)
			if prev == nil {
				c.head = next
			} else {
				value.SetNext(prev, next)
			}
			freed++
		}
		cur = next
	}
	if c.bytesAllocated < 0 {
		c.bytesAllocated = 0
	}
	return freed
}

// finalize releases any non-Go-GC-managed resource a heap kind holds.
// Everything else is left to Go's own collector once unreachable.
func finalize(o value.Object) {
	switch t := o.(type) {
	case *value.File:
		if !t.Closed && t.Handle != nil {
			t.Handle.Close()
			t.Closed = true
		}
	case *value.Pointer:
		if t.Free != nil {
			t.Free(t.Data)
		}
	}
}

// approxSize attributes a rough, monotonic byte cost to an object so the
// allocation threshold (spec 4.3) has something meaningful to compare
// against; Go's own allocator does the real bookkeeping underneath.
func approxSize(o value.Object) int64 {
	const base = 48
	switch t := o.(type) {
	case *value.String:
		return base + int64(len(t.Bytes))
	case *value.Bytes:
		return base + int64(len(t.Data))
	case *value.List:
		return base + int64(len(t.Items))*16
	case *value.Dict:
		return base + int64(len(t.Keys))*32
	default:
		return base
	}
}
