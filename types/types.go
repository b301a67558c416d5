package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Sizes of the scalar types, in bytes.
const (
	SizeChar    = 1
	SizeBool    = 1
	SizeInt     = 4
	SizeDouble  = 8
	SizePointer = 4
)

// Type is implemented by every C++ type the engine can simulate.
type Type interface {
	// Size is the number of bytes an object of this type occupies.
	Size() uint32
	String() string
	IsConst() bool
	// WithConst returns a copy with top-level const set to c.
	WithConst(c bool) Type
}

func constPrefix(c bool) string {
	if c {
		return "const "
	}
	return ""
}

// Void is the type of expressions with no value.
type Void struct{ Const bool }

func (Void) Size() uint32            { return 0 }
func (t Void) String() string        { return constPrefix(t.Const) + "void" }
func (t Void) IsConst() bool         { return t.Const }
func (t Void) WithConst(c bool) Type { t.Const = c; return t }

// Int is a 32-bit signed integer.
type Int struct{ Const bool }

func (Int) Size() uint32            { return SizeInt }
func (t Int) String() string        { return constPrefix(t.Const) + "int" }
func (t Int) IsConst() bool         { return t.Const }
func (t Int) WithConst(c bool) Type { t.Const = c; return t }

// Char is an 8-bit signed character.
type Char struct{ Const bool }

func (Char) Size() uint32            { return SizeChar }
func (t Char) String() string        { return constPrefix(t.Const) + "char" }
func (t Char) IsConst() bool         { return t.Const }
func (t Char) WithConst(c bool) Type { t.Const = c; return t }

// Bool is a one-byte boolean.
type Bool struct{ Const bool }

func (Bool) Size() uint32            { return SizeBool }
func (t Bool) String() string        { return constPrefix(t.Const) + "bool" }
func (t Bool) IsConst() bool         { return t.Const }
func (t Bool) WithConst(c bool) Type { t.Const = c; return t }

// Double is an IEEE-754 double precision float.
type Double struct{ Const bool }

func (Double) Size() uint32            { return SizeDouble }
func (t Double) String() string        { return constPrefix(t.Const) + "double" }
func (t Double) IsConst() bool         { return t.Const }
func (t Double) WithConst(c bool) Type { t.Const = c; return t }

// Null is the type of the nullptr literal.
type Null struct{}

func (Null) Size() uint32          { return SizePointer }
func (Null) String() string        { return "nullptr_t" }
func (Null) IsConst() bool         { return false }
func (t Null) WithConst(bool) Type { return t }

// Pointer is a plain object pointer with no known array bounds.
type Pointer struct {
	Elem  Type
	Const bool
}

func (Pointer) Size() uint32            { return SizePointer }
func (t Pointer) IsConst() bool         { return t.Const }
func (t Pointer) WithConst(c bool) Type { t.Const = c; return t }
func (t Pointer) String() string {
	s := t.Elem.String() + "*"
	if t.Const {
		s += " const"
	}
	return s
}

// Origin records which array an ArrayPointer was derived from. Handle is the
// arena handle of the array object; Start and Length describe its bounds so
// that checks do not need to consult memory.
type Origin struct {
	Handle uint32
	Start  uint32
	Length uint32
}

// ArrayPointer is a pointer known to point into (or one past) an array.
// It prints and compares like the equivalent Pointer.
type ArrayPointer struct {
	Elem   Type
	Origin Origin
	Const  bool
}

func (ArrayPointer) Size() uint32            { return SizePointer }
func (t ArrayPointer) IsConst() bool         { return t.Const }
func (t ArrayPointer) WithConst(c bool) Type { t.Const = c; return t }
func (t ArrayPointer) String() string {
	return Pointer{Elem: t.Elem, Const: t.Const}.String()
}

// End is the one-past-the-end address of the originating array.
func (t ArrayPointer) End() uint32 {
	return t.Origin.Start + t.Origin.Length*t.Elem.Size()
}

// Index returns the element index addressed by addr, which may be negative
// or past the end.
func (t ArrayPointer) Index(addr uint32) int {
	size := int64(t.Elem.Size())
	if size == 0 {
		return 0
	}
	return int((int64(addr) - int64(t.Origin.Start)) / size)
}

// Array is a fixed-length array.
type Array struct {
	Elem   Type
	Length uint32
}

func (t Array) Size() uint32          { return t.Elem.Size() * t.Length }
func (t Array) IsConst() bool         { return t.Elem.IsConst() }
func (t Array) WithConst(c bool) Type { t.Elem = t.Elem.WithConst(c); return t }
func (t Array) String() string {
	return t.Elem.String() + "[" + strconv.FormatUint(uint64(t.Length), 10) + "]"
}

// Reference is an lvalue reference. References occupy no storage.
type Reference struct {
	Ref Type
}

func (Reference) Size() uint32          { return 0 }
func (Reference) IsConst() bool         { return false }
func (t Reference) WithConst(bool) Type { return t }
func (t Reference) String() string      { return t.Ref.String() + "&" }

// Function is a function signature.
type Function struct {
	Return      Type
	Params      []Type
	ConstMember bool
}

func (Function) Size() uint32          { return 0 }
func (Function) IsConst() bool         { return false }
func (t Function) WithConst(bool) Type { return t }
func (t Function) String() string {
	ret := "void"
	if t.Return != nil {
		ret = t.Return.String()
	}
	s := ret + "(" + ParamString(t.Params) + ")"
	if t.ConstMember {
		s += " const"
	}
	return s
}

// ParamString formats parameter types as a comma separated list.
func ParamString(params []Type) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

// Names returns the String form of each type.
func Names(ts []Type) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

// Field is a data member of a class.
type Field struct {
	Name   string
	Type   Type
	Offset uint32
}

// ClassInfo is the layout of a class: an optional base subobject at offset
// zero followed by the fields in declaration order. It is shared by every
// Class type value naming it.
type ClassInfo struct {
	Name   string
	Base   *ClassInfo
	Fields []Field
	size   uint32
}

// NewClassInfo creates an empty class layout deriving from base (may be nil).
func NewClassInfo(name string, base *ClassInfo) *ClassInfo {
	c := &ClassInfo{Name: name, Base: base}
	if base != nil {
		c.size = base.Size()
	}
	return c
}

// AddField appends a data member and returns its offset.
func (c *ClassInfo) AddField(name string, t Type) uint32 {
	off := c.size
	c.Fields = append(c.Fields, Field{Name: name, Type: t, Offset: off})
	c.size += t.Size()
	return off
}

// Field finds a data member declared directly in c.
func (c *ClassInfo) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Size of the complete object.
func (c *ClassInfo) Size() uint32 {
	if c.size == 0 {
		// Empty classes still occupy one byte.
		return 1
	}
	return c.size
}

// DerivesFrom reports whether base is c or one of its (transitive) bases.
func (c *ClassInfo) DerivesFrom(base *ClassInfo) bool {
	for k := c; k != nil; k = k.Base {
		if k == base {
			return true
		}
	}
	return false
}

// Class is a class type.
type Class struct {
	Info  *ClassInfo
	Const bool
}

func (t Class) Size() uint32          { return t.Info.Size() }
func (t Class) IsConst() bool         { return t.Const }
func (t Class) WithConst(c bool) Type { t.Const = c; return t }
func (t Class) String() string        { return constPrefix(t.Const) + t.Info.Name }

// Describe formats a type for diagnostics, e.g. "int[3]" or "pointer to A".
func Describe(t Type) string {
	switch t := t.(type) {
	case Pointer:
		return fmt.Sprintf("pointer to %s", Describe(t.Elem))
	case ArrayPointer:
		return fmt.Sprintf("pointer into array of %d %s", t.Origin.Length, t.Elem)
	case Array:
		return fmt.Sprintf("array of %d %s", t.Length, Describe(t.Elem))
	case Reference:
		return fmt.Sprintf("reference to %s", Describe(t.Ref))
	default:
		return t.String()
	}
}
