package memory

import (
	"fmt"
	"strconv"

	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// Kind classifies how an object came to exist.
type Kind uint8

const (
	KindStatic Kind = iota
	KindAutomatic
	KindDynamic
	KindTemporary
	KindStringLiteral
	KindElement
	KindMember
	KindBase
	KindAnonymous
)

var kindNames = [...]string{
	KindStatic:        "static",
	KindAutomatic:     "automatic",
	KindDynamic:       "dynamic",
	KindTemporary:     "temporary",
	KindStringLiteral: "string literal",
	KindElement:       "array element",
	KindMember:        "member",
	KindBase:          "base",
	KindAnonymous:     "anonymous",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Object is a typed region of simulated memory. Arrays and classes are
// decomposed into subobjects (elements, or base then members) that are
// individually addressable; their liveness defers to the complete object.
type Object struct {
	mem      *Memory
	typ      types.Type
	runtime  types.Type
	parent   *Object
	name     string
	children []*Object
	handle   Handle
	address  uint32
	index    int
	kind     Kind
	alive    bool
	valid    bool
	leaked   bool
}

// NewObject creates an unallocated object of type t with its subobjects.
func NewObject(kind Kind, name string, t types.Type) *Object {
	obj := &Object{kind: kind, name: name, typ: t, runtime: t}
	obj.decompose()
	return obj
}

func (o *Object) decompose() {
	switch t := o.typ.(type) {
	case types.Array:
		o.children = make([]*Object, t.Length)
		for i := range o.children {
			child := &Object{kind: KindElement, typ: t.Elem, runtime: t.Elem, parent: o, index: i}
			child.decompose()
			o.children[i] = child
		}
	case types.Class:
		info := t.Info
		if info.Base != nil {
			base := &Object{kind: KindBase, name: info.Base.Name, typ: types.Class{Info: info.Base}, parent: o}
			base.runtime = base.typ
			base.decompose()
			o.children = append(o.children, base)
		}
		for _, f := range info.Fields {
			member := &Object{kind: KindMember, name: f.Name, typ: f.Type, runtime: f.Type, parent: o}
			member.decompose()
			o.children = append(o.children, member)
		}
	}
}

func (o *Object) Kind() Kind        { return o.kind }
func (o *Object) Name() string      { return o.name }
func (o *Object) Type() types.Type  { return o.typ }
func (o *Object) Handle() Handle    { return o.handle }
func (o *Object) Address() uint32   { return o.address }
func (o *Object) Size() uint32      { return o.typ.Size() }
func (o *Object) Parent() *Object   { return o.parent }
func (o *Object) IsLeaked() bool    { return o.leaked }
func (o *Object) SetLeaked(l bool)  { o.leaked = l }
func (o *Object) IsAllocated() bool { return o.mem != nil }
func (o *Object) IsAnonymous() bool { return o.kind == KindAnonymous }

// Subobjects returns array elements, or the base subobject followed by members.
func (o *Object) Subobjects() []*Object { return o.children }

// RuntimeType is the declared type, or for pointer objects the type of the
// last value written, which carries array provenance.
func (o *Object) RuntimeType() types.Type { return o.runtime }

// IsAlive reports whether the object's lifetime has begun and not ended.
// Subobjects are alive exactly when their complete object is.
func (o *Object) IsAlive() bool {
	if o.parent != nil {
		return o.parent.IsAlive()
	}
	return o.alive
}

// Complete walks up to the complete (outermost) object.
func (o *Object) Complete() *Object {
	c := o
	for c.parent != nil {
		c = c.parent
	}
	return c
}

// Elements returns the element subobjects of an array object.
func (o *Object) Elements() []*Object {
	if _, ok := o.typ.(types.Array); ok {
		return o.children
	}
	return nil
}

// Element returns element i of an array object.
func (o *Object) Element(i int) (*Object, bool) {
	elems := o.Elements()
	if i < 0 || i >= len(elems) {
		return nil, false
	}
	return elems[i], true
}

// Index is the position of an array element within its array.
func (o *Object) Index() int { return o.index }

// Member finds a member subobject declared directly in this object's class.
func (o *Object) Member(name string) (*Object, bool) {
	for _, c := range o.children {
		if c.kind == KindMember && c.name == name {
			return c, true
		}
	}
	return nil, false
}

// BaseSubobject returns the direct base subobject of a class object.
func (o *Object) BaseSubobject() (*Object, bool) {
	if len(o.children) > 0 && o.children[0].kind == KindBase {
		return o.children[0], true
	}
	return nil, false
}

// SubobjectOfClass finds the subobject (or o itself) whose type is class c,
// descending through base subobjects, and failing that ascending through the
// objects o is a base of.
func (o *Object) SubobjectOfClass(c *types.ClassInfo) (*Object, bool) {
	for cur := o; cur != nil; {
		for k := cur; k != nil; {
			if info, ok := types.ClassOf(k.typ); ok && info == c {
				return k, true
			}
			b, ok := k.BaseSubobject()
			if !ok {
				break
			}
			k = b
		}
		if cur.kind != KindBase {
			break
		}
		cur = cur.parent
	}
	return nil, false
}

// MostDerived returns the outermost object of which o is a (transitive) base
// subobject, i.e. the object whose type is o's dynamic type.
func (o *Object) MostDerived() *Object {
	c := o
	for c.kind == KindBase && c.parent != nil {
		c = c.parent
	}
	return c
}

// IsValid reports whether the object holds a determinate value. Arrays and
// classes are valid when all their subobjects are.
func (o *Object) IsValid() bool {
	if len(o.children) == 0 {
		return o.valid
	}
	for _, c := range o.children {
		if !c.IsValid() {
			return false
		}
	}
	return true
}

// Invalidate marks the value (and all subobject values) indeterminate.
func (o *Object) Invalidate() {
	o.valid = false
	for _, c := range o.children {
		c.Invalidate()
	}
}

// ReadValue reads a scalar object's value from memory.
func (o *Object) ReadValue() value.Value {
	if o.mem == nil {
		return value.Invalid(o.runtime)
	}
	return o.mem.readValue(o)
}

// PeekValue reads the value without notifying observers.
func (o *Object) PeekValue() value.Value {
	if o.mem == nil {
		return value.Invalid(o.runtime)
	}
	b, err := o.mem.peekBytes(o.address, o.typ.Size())
	if err != nil {
		return value.Invalid(o.runtime)
	}
	return value.Decode(o.runtime, b, o.valid)
}

// WriteValue stores a scalar value. Writing a pointer value also records its
// runtime type so that array provenance survives the round trip through memory.
func (o *Object) WriteValue(v value.Value) {
	if o.mem == nil {
		return
	}
	o.mem.writeValue(o, v)
}

// CopyFrom copies the value of src (same type) into o subobject by subobject.
func (o *Object) CopyFrom(src *Object) {
	if len(o.children) == 0 {
		o.WriteValue(src.ReadValue())
		return
	}
	for i, c := range o.children {
		if i < len(src.children) {
			c.CopyFrom(src.children[i])
		}
	}
}

// Describe names the object for diagnostics, e.g. "arr[2]", "p->x" style
// paths, or "heap object at 0x40".
func (o *Object) Describe() string {
	switch o.kind {
	case KindElement:
		return o.parent.Describe() + "[" + strconv.Itoa(o.index) + "]"
	case KindMember:
		return o.parent.Describe() + "." + o.name
	case KindBase:
		return fmt.Sprintf("%s subobject of %s", o.name, o.parent.Describe())
	case KindDynamic:
		return fmt.Sprintf("heap object at 0x%x", o.address)
	case KindAnonymous:
		return fmt.Sprintf("anonymous object at 0x%x", o.address)
	case KindTemporary:
		return fmt.Sprintf("temporary %s at 0x%x", o.typ, o.address)
	case KindStringLiteral:
		return fmt.Sprintf("string literal at 0x%x", o.address)
	}
	return o.name
}

func (o *Object) String() string {
	return fmt.Sprintf("%s %s @0x%x", o.typ, o.Describe(), o.address)
}

// allocate assigns addresses recursively and begins the lifetime.
func (o *Object) allocate(mem *Memory, addr uint32) {
	o.mem = mem
	o.address = addr
	o.alive = true
	o.leaked = false
	o.runtime = o.typ
	if o.handle == 0 {
		o.handle = mem.arena.Insert(o)
	}
	mem.index(o)

	switch t := o.typ.(type) {
	case types.Array:
		for i, c := range o.children {
			c.allocate(mem, addr+uint32(i)*t.Elem.Size())
		}
	case types.Class:
		i := 0
		if base, ok := o.BaseSubobject(); ok {
			base.allocate(mem, addr)
			i = 1
		}
		for j, f := range t.Info.Fields {
			o.children[i+j].allocate(mem, addr+f.Offset)
		}
	}
}
