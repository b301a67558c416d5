package value

import (
	"math"

	"github.com/wippyai/cppsim/types"
)

// Op is a binary operator on arithmetic values.
type Op string

const (
	OpAdd Op = "+"
	OpSub Op = "-"
	OpMul Op = "*"
	OpDiv Op = "/"
	OpMod Op = "%"
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
)

// IsComparison reports whether op yields bool.
func (op Op) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Fault reports an operation with undefined behavior.
type Fault int

const (
	FaultNone Fault = iota
	FaultDivideByZero
	FaultOverflow
)

func (f Fault) String() string {
	switch f {
	case FaultDivideByZero:
		return "division by zero"
	case FaultOverflow:
		return "signed integer overflow"
	}
	return ""
}

// Binary applies op to a and b. Both operands must already have the common
// arithmetic type (int or double); comparisons produce bool. If either operand
// is invalid the result is invalid.
func Binary(op Op, a, b Value) (Value, Fault) {
	valid := a.valid && b.valid
	if _, ok := a.typ.(types.Double); ok {
		return binaryDouble(op, a.Float(), b.Float(), valid)
	}
	return binaryInt(op, a.Int(), b.Int(), valid)
}

func binaryDouble(op Op, x, y float64, valid bool) (Value, Fault) {
	var r float64
	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpDiv:
		r = x / y
	case OpMod:
		r = math.Mod(x, y)
	default:
		return compare(op, compareFloat(x, y), valid), FaultNone
	}
	return Double(r).WithValid(valid), FaultNone
}

func binaryInt(op Op, x, y int64, valid bool) (Value, Fault) {
	var r int64
	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpDiv, OpMod:
		if y == 0 {
			return Invalid(types.Int{}), FaultDivideByZero
		}
		if op == OpDiv {
			r = x / y
		} else {
			r = x % y
		}
	default:
		return compare(op, compareInt(x, y), valid), FaultNone
	}
	res := Int(int32(r)).WithValid(valid)
	if valid && (r > math.MaxInt32 || r < math.MinInt32) {
		return res, FaultOverflow
	}
	return res, FaultNone
}

func compareInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	case x == y:
		return 0
	}
	// NaN compares unordered
	return 2
}

func compare(op Op, c int, valid bool) Value {
	var r bool
	switch op {
	case OpEq:
		r = c == 0
	case OpNe:
		r = c != 0
	case OpLt:
		r = c == -1
	case OpLe:
		r = c == -1 || c == 0
	case OpGt:
		r = c == 1
	case OpGe:
		r = c == 1 || c == 0
	}
	return Bool(r).WithValid(valid)
}

// ComparePointers compares two addresses with a relational or equality op.
func ComparePointers(op Op, a, b Value) Value {
	return compare(op, compareInt(int64(a.Address()), int64(b.Address())), a.valid && b.valid)
}

// Negate returns -v.
func Negate(v Value) Value {
	if _, ok := v.typ.(types.Double); ok {
		return Double(-v.Float()).WithValid(v.valid)
	}
	return Int(int32(-v.Int())).WithValid(v.valid)
}

// Not returns !v.
func Not(v Value) Value {
	return Bool(!v.Truthy()).WithValid(v.valid)
}

// Convert performs an implicit or explicit conversion to type to.
// Pointer-to-pointer conversions keep the address bits.
func Convert(v Value, to types.Type) Value {
	to = types.Unqualified(to)
	switch to.(type) {
	case types.Int:
		return Int(int32(v.Int())).WithValid(v.valid)
	case types.Char:
		return Char(int8(v.Int())).WithValid(v.valid)
	case types.Bool:
		return Bool(v.Truthy()).WithValid(v.valid)
	case types.Double:
		return Double(v.Float()).WithValid(v.valid)
	}
	return Value{raw: v.raw, typ: to, valid: v.valid}
}
