// Package value implements the immutable tagged scalars produced by every
// read of simulated storage.
package value

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/cppsim/types"
)

// Value is raw bits tagged with a type and a validity flag. Values are
// immutable; operations return new Values.
type Value struct {
	typ   types.Type
	raw   uint64
	valid bool
}

// New creates a value from raw bits.
func New(raw uint64, t types.Type, valid bool) Value {
	return Value{raw: raw, typ: t, valid: valid}
}

// Invalid creates an indeterminate value of type t.
func Invalid(t types.Type) Value {
	return Value{typ: t}
}

func Int(i int32) Value {
	return Value{raw: uint64(uint32(i)), typ: types.Int{}, valid: true}
}

func Char(c int8) Value {
	return Value{raw: uint64(uint8(c)), typ: types.Char{}, valid: true}
}

func Bool(b bool) Value {
	var raw uint64
	if b {
		raw = 1
	}
	return Value{raw: raw, typ: types.Bool{}, valid: true}
}

func Double(f float64) Value {
	return Value{raw: math.Float64bits(f), typ: types.Double{}, valid: true}
}

// Pointer creates a pointer value of type t (Pointer or ArrayPointer).
func Pointer(addr uint32, t types.Type) Value {
	return Value{raw: uint64(addr), typ: t, valid: true}
}

// Null is the nullptr literal.
func Null() Value {
	return Value{typ: types.Null{}, valid: true}
}

func (v Value) Type() types.Type { return v.typ }
func (v Value) IsValid() bool    { return v.valid }
func (v Value) Raw() uint64      { return v.raw }

// WithType retags the same bits with another type.
func (v Value) WithType(t types.Type) Value {
	v.typ = t
	return v
}

// WithValid returns a copy with the validity flag replaced.
func (v Value) WithValid(valid bool) Value {
	v.valid = valid
	return v
}

// Int returns the value as a signed integer, sign-extending per type.
func (v Value) Int() int64 {
	switch v.typ.(type) {
	case types.Int:
		return int64(int32(uint32(v.raw)))
	case types.Char:
		return int64(int8(uint8(v.raw)))
	case types.Double:
		return int64(math.Float64frombits(v.raw))
	}
	return int64(v.raw)
}

// Float returns the value as a float64.
func (v Value) Float() float64 {
	if _, ok := v.typ.(types.Double); ok {
		return math.Float64frombits(v.raw)
	}
	return float64(v.Int())
}

// Truthy returns the value converted to bool.
func (v Value) Truthy() bool {
	if _, ok := v.typ.(types.Double); ok {
		return v.Float() != 0
	}
	return v.raw != 0
}

// Address returns the raw bits of a pointer value.
func (v Value) Address() uint32 {
	return uint32(v.raw)
}

// IsNull reports whether v is a pointer holding address zero.
func (v Value) IsNull() bool {
	return types.IsPointer(v.typ) && uint32(v.raw) == 0
}

// Encode returns the little-endian representation of v, sized for its type.
func (v Value) Encode() []byte {
	buf := make([]byte, v.typ.Size())
	switch len(buf) {
	case 1:
		buf[0] = byte(v.raw)
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v.raw))
	case 8:
		binary.LittleEndian.PutUint64(buf, v.raw)
	}
	return buf
}

// Decode builds a Value of type t from its byte representation.
func Decode(t types.Type, b []byte, valid bool) Value {
	var raw uint64
	switch len(b) {
	case 1:
		raw = uint64(b[0])
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(b))
	case 8:
		raw = binary.LittleEndian.Uint64(b)
	}
	return Value{raw: raw, typ: t, valid: valid}
}

// Equal reports whether two values have identical bits, type and validity.
func (v Value) Equal(o Value) bool {
	return v.raw == o.raw && v.valid == o.valid && types.Same(v.typ, o.typ)
}

// String formats the value the way cout would print it.
func (v Value) String() string {
	if !v.valid {
		return "???"
	}
	switch v.typ.(type) {
	case types.Int:
		return strconv.FormatInt(v.Int(), 10)
	case types.Char:
		return string(rune(uint8(v.raw)))
	case types.Bool:
		if v.raw != 0 {
			return "1"
		}
		return "0"
	case types.Double:
		return FormatDouble(v.Float())
	case types.Null:
		return "0"
	case types.Pointer, types.ArrayPointer:
		return fmt.Sprintf("0x%x", uint32(v.raw))
	}
	return fmt.Sprintf("<%s 0x%x>", v.typ, v.raw)
}

// FormatDouble prints like the default iostream precision of 6 significant
// digits.
func FormatDouble(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 6, 64)
	return s
}
