package memory

import (
	"github.com/wippyai/cppsim/errors"
)

// Heap is a bump allocator growing downward from the end of the heap region.
// It tracks live dynamic objects by address.
type Heap struct {
	mem     *Memory
	objects map[uint32]*Object
	live    []*Object
	start   uint32
	end     uint32
	bottom  uint32
}

func newHeap(mem *Memory) *Heap {
	start, end := mem.layout.Bounds(RegionHeap)
	return &Heap{
		mem:     mem,
		objects: make(map[uint32]*Object),
		start:   start,
		end:     end,
		bottom:  end,
	}
}

func (h *Heap) reset() {
	clear(h.objects)
	h.live = nil
	h.bottom = h.end
}

// Bottom is the lowest address handed out so far.
func (h *Heap) Bottom() uint32 { return h.bottom }

// NewObject moves the bottom cursor down by obj's size and allocates obj there.
func (h *Heap) NewObject(obj *Object) error {
	size := obj.Size()
	if size == 0 {
		size = 1
	}
	if h.bottom < h.start+size {
		return errors.OutOfMemory(errors.PhaseRuntime, "heap", size)
	}
	h.bottom -= size
	h.mem.AllocateObject(obj, h.bottom)
	h.objects[h.bottom] = obj
	h.live = append(h.live, obj)
	return nil
}

// Lookup returns the live dynamic object allocated at addr.
func (h *Heap) Lookup(addr uint32) (*Object, bool) {
	obj, ok := h.objects[addr]
	return obj, ok
}

// DeleteObject removes the object at addr from the live index and
// deallocates it. Destructors are the caller's responsibility.
func (h *Heap) DeleteObject(addr uint32) (*Object, bool) {
	obj, ok := h.objects[addr]
	if !ok {
		return nil, false
	}
	delete(h.objects, addr)
	for i, o := range h.live {
		if o == obj {
			h.live = append(h.live[:i], h.live[i+1:]...)
			break
		}
	}
	h.mem.Deallocate(obj)
	return obj, true
}

// Objects returns the live dynamic objects in allocation order.
func (h *Heap) Objects() []*Object {
	return h.live
}
