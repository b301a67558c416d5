package memory

import (
	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/types"
)

// Local describes one automatic entity of a function: a parameter or a local
// declared anywhere in the body. Reference-typed locals get no storage.
type Local struct {
	Type types.Type
	Name string
	ID   int
}

// FrameSpec is everything needed to lay out an activation record.
type FrameSpec struct {
	// This is the type of the implicit this pointer; nil for free functions.
	This   types.Type
	Name   string
	Locals []Local
}

// Frame is the activation record of one function call.
type Frame struct {
	this       *Object
	objects    map[int]*Object
	references map[int]*Object
	name       string
	order      []*Object
	start      uint32
	size       uint32
}

// NewFrame lays out and allocates spec's objects starting at start: the
// implicit this pointer first, then each non-reference local in order.
func NewFrame(mem *Memory, start uint32, spec FrameSpec) *Frame {
	f := &Frame{
		name:       spec.Name,
		start:      start,
		objects:    make(map[int]*Object, len(spec.Locals)),
		references: make(map[int]*Object),
	}

	addr := start
	if spec.This != nil {
		f.this = NewObject(KindAutomatic, "this", spec.This)
		mem.AllocateObject(f.this, addr)
		f.order = append(f.order, f.this)
		addr += f.this.Size()
	}
	for _, l := range spec.Locals {
		if _, isRef := l.Type.(types.Reference); isRef {
			continue
		}
		obj := NewObject(KindAutomatic, l.Name, l.Type)
		mem.AllocateObject(obj, addr)
		f.objects[l.ID] = obj
		f.order = append(f.order, obj)
		addr += obj.Size()
	}
	f.size = addr - start
	return f
}

// FrameSize computes the bytes spec would occupy without allocating.
func FrameSize(spec FrameSpec) uint32 {
	var size uint32
	if spec.This != nil {
		size += spec.This.Size()
	}
	for _, l := range spec.Locals {
		size += l.Type.Size()
	}
	return size
}

func (f *Frame) Name() string  { return f.name }
func (f *Frame) Start() uint32 { return f.start }
func (f *Frame) Size() uint32  { return f.size }
func (f *Frame) This() *Object { return f.this }
func (f *Frame) Objects() []*Object {
	return f.order
}

// Object returns the storage of local id.
func (f *Frame) Object(id int) (*Object, bool) {
	obj, ok := f.objects[id]
	return obj, ok
}

// BindReference binds reference local id to obj. A reference is bound once.
func (f *Frame) BindReference(id int, obj *Object) bool {
	if _, bound := f.references[id]; bound {
		return false
	}
	f.references[id] = obj
	return true
}

// Reference returns the object reference local id is bound to.
func (f *Frame) Reference(id int) (*Object, bool) {
	obj, ok := f.references[id]
	return obj, ok
}

// UnbindReference forgets a binding so the declaration can run again, as in
// a loop body.
func (f *Frame) UnbindReference(id int) {
	delete(f.references, id)
}

// References returns the bound reference targets.
func (f *Frame) References() map[int]*Object {
	return f.references
}

// Stack is the LIFO of frames growing upward through the stack region.
type Stack struct {
	mem    *Memory
	frames []*Frame
	start  uint32
	end    uint32
	top    uint32
}

func newStack(mem *Memory) *Stack {
	start, end := mem.layout.Bounds(RegionStack)
	return &Stack{mem: mem, start: start, end: end, top: start}
}

func (s *Stack) reset() {
	s.frames = nil
	s.top = s.start
}

// Top is the first free stack address.
func (s *Stack) Top() uint32 { return s.top }

// Frames returns the live frames, bottom first.
func (s *Stack) Frames() []*Frame { return s.frames }

// Current returns the top frame.
func (s *Stack) Current() (*Frame, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	return s.frames[len(s.frames)-1], true
}

// PushFrame allocates a new frame at the top of the stack.
func (s *Stack) PushFrame(spec FrameSpec) (*Frame, error) {
	size := FrameSize(spec)
	if uint64(s.top)+uint64(size) > uint64(s.end) {
		return nil, errors.OutOfMemory(errors.PhaseRuntime, "stack", size)
	}
	f := NewFrame(s.mem, s.top, spec)
	s.frames = append(s.frames, f)
	s.top += f.size
	return f, nil
}

// PopFrame deallocates every object of the top frame and lowers the top.
func (s *Stack) PopFrame() (*Frame, bool) {
	f, ok := s.Current()
	if !ok {
		return nil, false
	}
	for _, obj := range f.order {
		s.mem.Deallocate(obj)
	}
	s.frames = s.frames[:len(s.frames)-1]
	s.top -= f.size
	return f, true
}
