package value

// Bytes is a mutable byte buffer.
type Bytes struct {
	Header
	Data []byte
}

func (b *Bytes) ObjKind() ObjKind { return ObjBytes }
func (b *Bytes) Hash() uint32     { return fnv1a32(b.Data) }

// Range is an integer lower/upper/length triple; direction is inferred
// from the sign of (Upper - Lower).
type Range struct {
	Header
	Lower int64
	Upper int64
}

func (r *Range) ObjKind() ObjKind { return ObjRange }
func (r *Range) Hash() uint32     { return 0 }

// Len returns the number of integers the range produces when iterated.
func (r *Range) Len() int64 {
	if r.Upper >= r.Lower {
		return r.Upper - r.Lower + 1
	}
	return r.Lower - r.Upper + 1
}

// Step returns +1 or -1 depending on direction.
func (r *Range) Step() int64 {
	if r.Upper >= r.Lower {
		return 1
	}
	return -1
}

// List is an ordered, growable sequence of values.
type List struct {
	Header
	Items []Value
}

func (l *List) ObjKind() ObjKind { return ObjList }
func (l *List) Hash() uint32     { return 0 }

// Dict is an ordered key-value mapping: Keys preserves insertion order,
// Index maps a key's identity/hash bucket to its position in Keys/Values,
// giving O(1) average lookup while iteration remains insertion-ordered.
type Dict struct {
	Header
	Keys   []Value
	Values []Value
	index  map[uint32][]int // hash -> candidate positions in Keys
}

func (d *Dict) ObjKind() ObjKind { return ObjDict }
func (d *Dict) Hash() uint32     { return 0 }

// NewDict returns an empty dict ready for use.
func NewDict() *Dict {
	return &Dict{index: make(map[uint32][]int)}
}

// Get looks up key, returning (value, true) if present.
func (d *Dict) Get(key Value) (Value, bool) {
	h := Hash(key)
	for _, pos := range d.index[h] {
		if Equal(d.Keys[pos], key) {
			return d.Values[pos], true
		}
	}
	return Nil, false
}

// Set inserts or updates key, preserving the original insertion position
// on update.
func (d *Dict) Set(key, val Value) {
	h := Hash(key)
	for _, pos := range d.index[h] {
		if Equal(d.Keys[pos], key) {
			d.Values[pos] = val
			return
		}
	}
	pos := len(d.Keys)
	d.Keys = append(d.Keys, key)
	d.Values = append(d.Values, val)
	d.index[h] = append(d.index[h], pos)
}

// Delete removes key if present, reporting whether anything was removed.
// Deletion preserves insertion order of the remaining keys.
func (d *Dict) Delete(key Value) bool {
	h := Hash(key)
	positions := d.index[h]
	for i, pos := range positions {
		if Equal(d.Keys[pos], key) {
			d.index[h] = append(positions[:i], positions[i+1:]...)
			d.Keys = append(d.Keys[:pos], d.Keys[pos+1:]...)
			d.Values = append(d.Values[:pos], d.Values[pos+1:]...)
			d.reindexFrom(pos)
			return true
		}
	}
	return false
}

// reindexFrom repairs d.index after a deletion shifted every key at or
// after pos down by one slot.
func (d *Dict) reindexFrom(pos int) {
	for h, positions := range d.index {
		for i, p := range positions {
			if p > pos {
				positions[i] = p - 1
			}
		}
		d.index[h] = positions
	}
}

// File is a handle + mode + path triple backing the native file object.
type File struct {
	Header
	Path   string
	Mode   string
	Handle interface{ Close() error }
	Closed bool
}

func (f *File) ObjKind() ObjKind { return ObjFile }
func (f *File) Hash() uint32     { return 0 }

// Pointer wraps an opaque native handle (used by native modules that need
// to stash Go state on a Value, e.g. an open database cursor).
type Pointer struct {
	Header
	Tag  string
	Data interface{}
	Free func(interface{})
}

func (p *Pointer) ObjKind() ObjKind { return ObjPointer }
func (p *Pointer) Hash() uint32     { return 0 }
