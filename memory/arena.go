package memory

// Handle is an opaque reference to an Object record in an Arena.
// Handle 0 is reserved and always invalid.
type Handle uint32

// Arena stores every Object that has ever been allocated during a run.
// Records are never dropped: dead objects stay addressable by handle so that
// dangling pointers can still be described.
type Arena struct {
	entries []*Object
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		entries: make([]*Object, 0, 64),
	}
}

// Insert stores an object and returns its handle.
func (a *Arena) Insert(obj *Object) Handle {
	a.entries = append(a.entries, obj)
	return Handle(len(a.entries))
}

// Get retrieves an object by handle.
func (a *Arena) Get(handle Handle) (*Object, bool) {
	if handle == 0 {
		return nil, false
	}
	idx := handle - 1
	if int(idx) >= len(a.entries) {
		return nil, false
	}
	return a.entries[idx], true
}

// Len returns the number of records.
func (a *Arena) Len() int {
	return len(a.entries)
}

// Each iterates over all records in allocation order.
func (a *Arena) Each(fn func(Handle, *Object) bool) {
	for i, obj := range a.entries {
		if !fn(Handle(i+1), obj) {
			break
		}
	}
}

// Reset forgets every record. Handles issued before are invalid afterwards.
func (a *Arena) Reset() {
	clear(a.entries)
	a.entries = a.entries[:0]
}
