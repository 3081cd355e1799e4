// Package table implements the open-addressed, linear-probe hash table
// (spec 4.2) that backs globals, module/class/instance property tables,
// and the Dict object's key index. It is the general-purpose Value-keyed
// map; string interning uses its own bespoke table in pkg/value because
// interning must key on raw bytes before a Value exists to look up with.
package table

import "github.com/kristofer/smog/pkg/value"

// loadFactorNum/Den express the 0.857 load factor from spec 4.2 as a
// fraction so resize decisions stay integer arithmetic: 6/7 ~= 0.857.
const (
	loadFactorNum = 6
	loadFactorDen = 7
)

// entry's Key field uses value.Empty to mark an unused slot and a
// tombstone simultaneously, distinguished by Value: unused slots carry
// Value == value.Nil, tombstones carry Value == value.True (spec 4.2).
type entry struct {
	Key   value.Value
	Value value.Value
}

func (e entry) isUnused() bool    { return e.Key.IsEmpty() && e.Value.IsNil() }
func (e entry) isTombstone() bool { return e.Key.IsEmpty() && !e.Value.IsNil() }

// Table is an open-addressed map from value.Value to value.Value.
type Table struct {
	entries []entry
	count   int // live entries
	used    int // live entries + tombstones, drives resize
}

// New returns an empty table with a small starting capacity.
func New() *Table {
	return &Table{entries: freshEntries(8)}
}

// freshEntries allocates n slots, each explicitly marked unused: Key must
// be value.Empty (not the zero Value, which is value.Nil) for isUnused to
// recognize it.
func freshEntries(n int) []entry {
	es := make([]entry, n)
	for i := range es {
		es[i] = entry{Key: value.Empty, Value: value.Nil}
	}
	return es
}

// Len returns the number of live (non-tombstone) entries.
func (t *Table) Len() int { return t.count }

// Get looks up key, returning (value, true) if present.
func (t *Table) Get(key value.Value) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	e := t.find(key)
	if e.isUnused() || e.isTombstone() {
		return value.Nil, false
	}
	return e.Value, true
}

// Set inserts or updates key -> val, growing the table first if doing so
// would push the load factor past 0.857. Returns true if this created a
// new entry (as opposed to overwriting an existing one).
func (t *Table) Set(key, val value.Value) bool {
	if (t.used+1)*loadFactorDen >= len(t.entries)*loadFactorNum {
		t.grow()
	}
	idx := t.findIndex(key)
	e := &t.entries[idx]
	isNew := e.isUnused()
	if isNew {
		t.used++
	}
	created := isNew || e.isTombstone()
	if created {
		t.count++
	}
	e.Key = key
	e.Value = val
	return created
}

// Delete removes key, writing a tombstone in its place (spec 4.2).
// Reports whether anything was removed.
func (t *Table) Delete(key value.Value) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx := t.findIndex(key)
	e := &t.entries[idx]
	if e.isUnused() || e.isTombstone() {
		return false
	}
	*e = entry{Key: value.Empty, Value: value.True}
	t.count--
	return true
}

// Each calls fn for every live entry. Iteration order is bucket order,
// not insertion order -- callers that need insertion order (Dict, module
// source-order enumeration) track it separately.
func (t *Table) Each(fn func(key, val value.Value)) {
	for _, e := range t.entries {
		if !e.isUnused() && !e.isTombstone() {
			fn(e.Key, e.Value)
		}
	}
}

// RemoveWhite deletes every live entry whose key is an unmarked object,
// the GC's "remove whites" pass (spec 4.2, run before sweep).
func (t *Table) RemoveWhite(isLive func(value.Value) bool) {
	for i := range t.entries {
		e := &t.entries[i]
		if !e.isUnused() && !e.isTombstone() && e.Key.Kind() == value.KindObject {
			if !isLive(e.Key) {
				t.entries[i] = entry{Key: value.Empty, Value: value.True}
				t.count--
			}
		}
	}
}

// find returns the matching slot or, if key is absent, the first
// tombstone seen on the probe path or else the terminal unused slot
// (spec 4.2); both come from findIndex below, which tracks the first
// tombstone for reuse on insert.
func (t *Table) find(key value.Value) entry {
	return t.entries[t.findIndex(key)]
}

func (t *Table) findIndex(key value.Value) int {
	mask := uint32(len(t.entries) - 1)
	idx := value.Hash(key) & mask
	var tombstone = -1
	for {
		e := &t.entries[idx]
		switch {
		case e.isUnused():
			if tombstone != -1 {
				return tombstone
			}
			return int(idx)
		case e.isTombstone():
			if tombstone == -1 {
				tombstone = int(idx)
			}
		default:
			if value.Equal(e.Key, key) {
				return int(idx)
			}
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) grow() {
	old := t.entries
	newCap := len(old) * 2
	if newCap < 8 {
		newCap = 8
	}
	t.entries = freshEntries(newCap)
	t.count, t.used = 0, 0
	for _, e := range old {
		if !e.isUnused() && !e.isTombstone() {
			t.Set(e.Key, e.Value)
		}
	}
}
