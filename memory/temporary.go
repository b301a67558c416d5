package memory

import (
	"github.com/wippyai/cppsim/errors"
)

// Temporaries allocates temporary objects in the temporary region. The cursor
// rewinds to the start whenever no temporary is live.
type Temporaries struct {
	mem   *Memory
	live  []*Object
	start uint32
	end   uint32
	top   uint32
}

func newTemporaries(mem *Memory) *Temporaries {
	start, end := mem.layout.Bounds(RegionTemporary)
	return &Temporaries{mem: mem, start: start, end: end, top: start}
}

func (t *Temporaries) reset() {
	t.live = nil
	t.top = t.start
}

// Allocate places obj in the temporary region.
func (t *Temporaries) Allocate(obj *Object) error {
	size := obj.Size()
	if size == 0 {
		size = 1
	}
	if uint64(t.top)+uint64(size) > uint64(t.end) {
		return errors.OutOfMemory(errors.PhaseRuntime, "temporary region", size)
	}
	t.mem.AllocateObject(obj, t.top)
	t.top += size
	t.live = append(t.live, obj)
	return nil
}

// Free deallocates a temporary object.
func (t *Temporaries) Free(obj *Object) {
	for i, o := range t.live {
		if o == obj {
			t.live = append(t.live[:i], t.live[i+1:]...)
			t.mem.Deallocate(obj)
			break
		}
	}
	if len(t.live) == 0 {
		t.top = t.start
	}
}

// Objects returns the live temporaries.
func (t *Temporaries) Objects() []*Object {
	return t.live
}
