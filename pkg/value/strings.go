package value

import "unicode/utf8"

// String is the immutable, interned string object. Construction always
// goes through an Interner so that two distinct constructions of equal
// bytes yield the identical *String (spec 3, "All strings are interned").
type String struct {
	Header
	Bytes     []byte
	RuneCount int
	HashVal   uint32
	Ascii     bool
}

func (s *String) ObjKind() ObjKind { return ObjString }
func (s *String) Hash() uint32     { return s.HashVal }

// GoString returns the string's bytes as a Go string, for use in contexts
// (error messages, map keys outside the VM) that want a native string.
func (s *String) GoString() string { return string(s.Bytes) }

// fnv1a32 is the concrete hash primitive the spec describes only as an
// opaque h(bytes, len) -> u32. FNV-1a is what blade's value.c uses.
func fnv1a32(b []byte) uint32 {
	const offset32 = 2166136261
	const prime32 = 16777619
	h := uint32(offset32)
	for _, c := range b {
		h ^= uint32(c)
		h *= prime32
	}
	return h
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// internEntry is a slot in the Interner's open-addressed table. It stores
// the raw bytes alongside the hash so the string fast-path lookup (spec
// 4.2) can reject non-matches by length and hash before comparing bytes.
type internEntry struct {
	used   bool
	hash   uint32
	bytes  []byte
	string *String
}

// Interner is the VM-owned table mapping (bytes, len, hash) to the unique
// *String instance for those bytes. It is a bespoke open-addressed table
// rather than a reuse of pkg/table's Value-keyed table, because interning
// must work from raw bytes before any String (and therefore any Value)
// exists to key a lookup with.
type Interner struct {
	entries  []internEntry
	count    int
	liveOnly int // not read or written by any code
}

// NewInterner creates an empty interner with a small starting capacity.
func NewInterner() *Interner {
	return &Interner{entries: make([]internEntry, 16)}
}

// Intern returns the canonical *String for b, allocating and registering
// a new one if this is the first time these bytes have been seen.
func (in *Interner) Intern(b []byte) *String {
	h := fnv1a32(b)
	if e := in.find(h, b); e != nil {
		return e.string
	}
	if (in.count+1)*100 >= len(in.entries)*70 {
		in.grow()
	}
	s := &String{
		Bytes:     append([]byte(nil), b...),
		RuneCount: utf8.RuneCount(b),
		HashVal:   h,
		Ascii:     isASCII(b),
	}
	in.insert(h, s)
	return s
}

func (in *Interner) find(h uint32, b []byte) *internEntry {
	if len(in.entries) == 0 {
		return nil
	}
	mask := uint32(len(in.entries) - 1)
	idx := h & mask
	for {
		e := &in.entries[idx]
		if !e.used {
			return nil
		}
		if e.hash == h && len(e.bytes) == len(b) && bytesEqual(e.bytes, b) {
			return e
		}
		idx = (idx + 1) & mask
	}
}

func (in *Interner) insert(h uint32, s *String) {
	mask := uint32(len(in.entries) - 1)
	idx := h & mask
	for in.entries[idx].used {
		idx = (idx + 1) & mask
	}
	in.entries[idx] = internEntry{used: true, hash: h, bytes: s.Bytes, string: s}
	in.count++
}

func (in *Interner) grow() {
	old := in.entries
	in.entries = make([]internEntry, len(old)*2)
	in.count = 0
	for _, e := range old {
		if e.used {
			in.insert(e.hash, e.string)
		}
	}
}

// RemoveWhite deletes every entry whose string is not marked live, per
// spec 4.2/4.3: the GC must strip dead interned strings from this table
// between the mark and sweep phases so the table itself does not keep
// unreachable strings alive.
func (in *Interner) RemoveWhite(isLive func(*String) bool) {
	old := in.entries
	in.entries = make([]internEntry, len(old))
	in.count = 0
	for _, e := range old {
		if e.used && isLive(e.string) {
			in.insert(e.hash, e.string)
		}
	}
}

// All calls fn for every interned string currently in the table.
func (in *Interner) All(fn func(*String)) {
	for _, e := range in.entries {
		if e.used {
			fn(e.string)
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
