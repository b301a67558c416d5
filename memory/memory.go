package memory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/cppsim"
	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// NullGuard is the number of bytes reserved at address zero so that no object
// is ever allocated at the null address.
const NullGuard = 4

// Region identifies one of the four address ranges.
type Region uint8

const (
	RegionStatic Region = iota
	RegionStack
	RegionHeap
	RegionTemporary
)

func (r Region) String() string {
	switch r {
	case RegionStatic:
		return "static"
	case RegionStack:
		return "stack"
	case RegionHeap:
		return "heap"
	case RegionTemporary:
		return "temporary"
	}
	return "unknown"
}

// Layout configures region capacities in bytes.
type Layout struct {
	Static    uint32
	Stack     uint32
	Heap      uint32
	Temporary uint32
}

// DefaultLayout returns the capacities used when nothing is configured.
func DefaultLayout() Layout {
	return Layout{Static: 1024, Stack: 8192, Heap: 8192, Temporary: 2048}
}

// Total is static+stack+heap, which is also the heap end.
func (l Layout) Total() uint32 {
	return l.Static + l.Stack + l.Heap
}

// Addressable is the size of the whole byte store, temporaries included.
func (l Layout) Addressable() uint32 {
	return l.Total() + l.Temporary
}

// Validate checks that every region can hold at least one object.
func (l Layout) Validate() error {
	if l.Static <= NullGuard {
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("static capacity %d must exceed the null guard", l.Static))
	}
	if l.Stack == 0 || l.Heap == 0 || l.Temporary == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "stack, heap and temporary capacities must be positive")
	}
	if uint64(l.Static)+uint64(l.Stack)+uint64(l.Heap)+uint64(l.Temporary) > 1<<31 {
		return errors.InvalidInput(errors.PhaseConfig, "layout exceeds the 2 GiB address space")
	}
	return nil
}

// Bounds returns the half-open address range [start, end) of a region.
func (l Layout) Bounds(r Region) (start, end uint32) {
	switch r {
	case RegionStatic:
		return 0, l.Static
	case RegionStack:
		return l.Static, l.Static + l.Stack
	case RegionHeap:
		return l.Static + l.Stack, l.Total()
	default:
		return l.Total(), l.Addressable()
	}
}

// RegionOf classifies an address.
func (l Layout) RegionOf(addr uint32) (Region, bool) {
	for _, r := range []Region{RegionStatic, RegionStack, RegionHeap, RegionTemporary} {
		start, end := l.Bounds(r)
		if addr >= start && addr < end {
			return r, true
		}
	}
	return 0, false
}

// EventType identifies an object lifecycle or access notification.
type EventType uint8

const (
	EventAllocated EventType = iota
	EventDeallocated
	EventValueWritten
	EventValueRead
)

// Event is an object lifecycle or access notification.
type Event struct {
	Object *Object
	Value  value.Value
	Type   EventType
}

// Observer receives memory events.
type Observer interface {
	OnMemoryEvent(Event)
}

// Memory is the single linear byte store with its region bookkeeping.
type Memory struct {
	store     cppsim.ByteStore
	arena     *Arena
	objects   map[uint32][]*Object
	stack     *Stack
	heap      *Heap
	temps     *Temporaries
	observers []subscription
	layout    Layout
	staticTop uint32

	nextObserver uint64
}

// New creates a memory over store, which must hold layout.Addressable() bytes.
// A nil store gets a SliceStore.
func New(layout Layout, store cppsim.ByteStore) (*Memory, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = NewSliceStore(layout.Addressable())
	}
	if sz, ok := store.(cppsim.StoreSizer); ok && sz.Size() < layout.Addressable() {
		return nil, errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("byte store holds %d bytes, layout needs %d", sz.Size(), layout.Addressable()))
	}

	m := &Memory{
		store:   store,
		arena:   NewArena(),
		objects: make(map[uint32][]*Object),
		layout:  layout,
	}
	m.stack = newStack(m)
	m.heap = newHeap(m)
	m.temps = newTemporaries(m)
	m.staticTop = NullGuard
	return m, nil
}

func (m *Memory) Layout() Layout            { return m.layout }
func (m *Memory) Arena() *Arena             { return m.arena }
func (m *Memory) Stack() *Stack             { return m.stack }
func (m *Memory) Heap() *Heap               { return m.heap }
func (m *Memory) Temporaries() *Temporaries { return m.temps }
func (m *Memory) StaticTop() uint32         { return m.staticTop }

// Reset zero-fills every byte and resets all region cursors and indexes.
func (m *Memory) Reset() error {
	if err := m.store.Reset(); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidData, err, "reset byte store")
	}
	m.arena.Reset()
	clear(m.objects)
	m.staticTop = NullGuard
	m.stack.reset()
	m.heap.reset()
	m.temps.reset()
	return nil
}

type subscription struct {
	observer Observer
	id       uint64
}

// Subscribe adds an observer for memory events and returns a function that
// removes it again.
func (m *Memory) Subscribe(o Observer) (unsubscribe func()) {
	m.nextObserver++
	id := m.nextObserver
	m.observers = append(m.observers, subscription{observer: o, id: id})
	return func() {
		for i, sub := range m.observers {
			if sub.id == id {
				m.observers = append(m.observers[:i:i], m.observers[i+1:]...)
				return
			}
		}
	}
}

func (m *Memory) notify(e Event) {
	for _, sub := range m.observers {
		sub.observer.OnMemoryEvent(e)
	}
}

// ReadBytes reads n bytes at addr from the byte store.
func (m *Memory) ReadBytes(addr, n uint32) ([]byte, error) {
	return m.store.Read(addr, n)
}

// WriteBytes writes data at addr to the byte store.
func (m *Memory) WriteBytes(addr uint32, data []byte) error {
	return m.store.Write(addr, data)
}

// ReadU8 reads a single byte.
func (m *Memory) ReadU8(addr uint32) (byte, error) {
	return m.store.ReadU8(addr)
}

func (m *Memory) peekBytes(addr, n uint32) ([]byte, error) {
	return m.store.Read(addr, n)
}

func (m *Memory) readValue(o *Object) value.Value {
	b, err := m.ReadBytes(o.address, o.typ.Size())
	if err != nil {
		Logger().Debug("read outside the byte store", zap.Uint32("address", o.address), zap.Error(err))
		v := value.Invalid(o.runtime)
		m.notify(Event{Type: EventValueRead, Object: o, Value: v})
		return v
	}
	v := value.Decode(o.runtime, b, o.valid)
	m.notify(Event{Type: EventValueRead, Object: o, Value: v})
	return v
}

func (m *Memory) writeValue(o *Object, v value.Value) {
	if types.IsPointer(o.typ) {
		if ap, ok := v.Type().(types.ArrayPointer); ok {
			ap.Const = o.typ.IsConst()
			o.runtime = ap
		} else {
			o.runtime = o.typ
		}
	}
	stored := value.New(v.Raw(), o.runtime, v.IsValid())
	if err := m.WriteBytes(o.address, stored.Encode()); err != nil {
		Logger().Debug("write outside the byte store", zap.Uint32("address", o.address), zap.Error(err))
	}
	o.valid = v.IsValid()
	m.notify(Event{Type: EventValueWritten, Object: o, Value: stored})
}

// index records obj as the most recent object at its address, dropping older
// records of the same type that it shadows.
func (m *Memory) index(obj *Object) {
	prev := m.objects[obj.address]
	list := make([]*Object, 0, len(prev)+1)
	list = append(list, obj)
	for _, o := range prev {
		if o == obj || types.Same(o.typ, obj.typ) {
			continue
		}
		list = append(list, o)
	}
	m.objects[obj.address] = list
}

// AllocateObject assigns obj the given address, marks it live, allocates its
// subobjects and writes its default value. Static objects and string literals
// are zero-initialized; all others start indeterminate.
func (m *Memory) AllocateObject(obj *Object, addr uint32) {
	obj.allocate(m, addr)
	zero := obj.kind == KindStatic || obj.kind == KindStringLiteral
	m.writeDefault(obj, zero)
	m.notify(Event{Type: EventAllocated, Object: obj})
}

func (m *Memory) writeDefault(obj *Object, valid bool) {
	if len(obj.children) > 0 {
		for _, c := range obj.children {
			m.writeDefault(c, valid)
		}
		return
	}
	if err := m.WriteBytes(obj.address, make([]byte, obj.typ.Size())); err != nil {
		Logger().Debug("default write outside the byte store", zap.Uint32("address", obj.address), zap.Error(err))
	}
	obj.valid = valid
}

// Deallocate ends the lifetime of a complete object. The record and its index
// entries are kept so that dangling accesses can be diagnosed.
func (m *Memory) Deallocate(obj *Object) {
	obj = obj.Complete()
	if !obj.alive {
		return
	}
	obj.alive = false
	obj.Invalidate()
	m.notify(Event{Type: EventDeallocated, Object: obj})
}

// DeallocateObject ends the lifetime of the live complete object at addr.
func (m *Memory) DeallocateObject(addr uint32) (*Object, bool) {
	for _, o := range m.objects[addr] {
		if o.parent == nil && o.alive {
			m.Deallocate(o)
			return o, true
		}
	}
	return nil, false
}

// AllocateStatic places obj at the next free address of the static region.
func (m *Memory) AllocateStatic(obj *Object) error {
	_, end := m.layout.Bounds(RegionStatic)
	size := obj.Size()
	if uint64(m.staticTop)+uint64(size) > uint64(end) {
		return errors.OutOfMemory(errors.PhaseRuntime, "static region", size)
	}
	m.AllocateObject(obj, m.staticTop)
	m.staticTop += size
	return nil
}

// ObjectAt returns the most recently allocated object at addr whose type is t
// (any type when t is nil).
func (m *Memory) ObjectAt(addr uint32, t types.Type) (*Object, bool) {
	for _, o := range m.objects[addr] {
		if t == nil || types.Same(o.typ, t) {
			return o, true
		}
	}
	return nil, false
}

// GetObject resolves a pointer value to the object it points to. Array
// pointers resolve through their provenance; otherwise the most recently
// allocated object of the pointee type at the address is used. When nothing
// is tracked there a synthetic anonymous object is returned so the caller can
// report the access instead of failing.
func (m *Memory) GetObject(ptr value.Value) *Object {
	addr := ptr.Address()
	pointee, ok := types.Pointee(ptr.Type())
	if ok {
		if _, isVoid := pointee.(types.Void); isVoid {
			pointee = nil
		}
	}

	if ap, isArr := ptr.Type().(types.ArrayPointer); isArr {
		if arr, ok := m.arena.Get(Handle(ap.Origin.Handle)); ok && arr.address == ap.Origin.Start {
			if elem, ok := arr.Element(ap.Index(addr)); ok && elem.address == addr {
				return elem
			}
		}
	}

	if o, ok := m.ObjectAt(addr, pointee); ok {
		return o
	}

	if pointee == nil {
		pointee = types.Char{}
	}
	return m.anonymous(addr, pointee)
}

func (m *Memory) anonymous(addr uint32, t types.Type) *Object {
	obj := NewObject(KindAnonymous, "", types.Unqualified(t))
	obj.attach(m, addr)
	return obj
}

// attach gives an untracked object an address without registering it.
func (o *Object) attach(m *Memory, addr uint32) {
	o.mem = m
	o.address = addr
	o.alive = true
	switch t := o.typ.(type) {
	case types.Array:
		for i, c := range o.children {
			c.attach(m, addr+uint32(i)*t.Elem.Size())
		}
	case types.Class:
		i := 0
		if base, ok := o.BaseSubobject(); ok {
			base.attach(m, addr)
			i = 1
		}
		for j, f := range t.Info.Fields {
			o.children[i+j].attach(m, addr+f.Offset)
		}
	}
}

// AllObjects returns every complete object allocated since the last reset,
// in allocation order.
func (m *Memory) AllObjects() []*Object {
	var out []*Object
	m.arena.Each(func(_ Handle, o *Object) bool {
		if o.parent == nil {
			out = append(out, o)
		}
		return true
	})
	return out
}
