package sim

import (
	"fmt"
	"strconv"

	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// Expr is an expression construct. Lvalue expressions evaluate to an object,
// the others to a value (class prvalues to a temporary object).
type Expr interface {
	Construct
	Type() types.Type
	IsLvalue() bool
}

type exprBase struct {
	typ types.Type
}

func (e exprBase) Type() types.Type   { return e.typ }
func (exprBase) StackType() StackType { return StackExpression }

type lvalue struct{}

func (lvalue) IsLvalue() bool { return true }

type rvalue struct{}

func (rvalue) IsLvalue() bool { return false }

// pushOperands pushes the next unevaluated operand.
func (s *Simulation) pushOperands(in *Instance, ops ...Expr) bool {
	if in.index < len(ops) {
		s.push(in, ops[in.index])
		in.index++
		return true
	}
	return false
}

func (s *Simulation) setValue(in *Instance, v value.Value) {
	in.result = Result{Value: v}
	s.evaluated(in)
	s.pop(in)
}

func (s *Simulation) setObject(in *Instance, obj *memory.Object, checked bool) {
	in.result = Result{Object: obj, checked: checked}
	s.evaluated(in)
	s.pop(in)
}

// Literal is an int, double, char, bool or nullptr literal.
type Literal struct {
	exprBase
	rvalue
	val value.Value
}

func (l *Literal) Describe() string {
	switch l.typ.(type) {
	case types.Char:
		return strconv.QuoteRune(rune(uint8(l.val.Raw())))
	case types.Bool:
		return strconv.FormatBool(l.val.Truthy())
	case types.Null:
		return "nullptr"
	}
	return l.val.String()
}

func (l *Literal) upNext(*Simulation, *Instance) bool { return false }

func (l *Literal) stepForward(s *Simulation, in *Instance) {
	s.setValue(in, l.val)
}

// StringLiteral is a string literal: an lvalue const char array in static
// storage.
type StringLiteral struct {
	exprBase
	lvalue
	text string
}

func (l *StringLiteral) Describe() string { return strconv.Quote(l.text) }
func (l *StringLiteral) Text() string     { return l.text }

func (l *StringLiteral) upNext(*Simulation, *Instance) bool { return false }

func (l *StringLiteral) stepForward(s *Simulation, in *Instance) {
	obj, ok := s.mem.Arena().Get(s.literals[l])
	if !ok {
		panic("string literal " + l.Describe() + " was not allocated")
	}
	s.setObject(in, obj, true)
}

// Identifier names an entity and evaluates to its object.
type Identifier struct {
	exprBase
	lvalue
	entity Entity
}

func (e *Identifier) Describe() string { return e.entity.Describe() }
func (e *Identifier) Entity() Entity   { return e.entity }

func (e *Identifier) upNext(*Simulation, *Instance) bool { return false }

func (e *Identifier) stepForward(s *Simulation, in *Instance) {
	obj, ok := e.entity.lookup(s, in)
	if !ok {
		panic("no object for " + e.entity.Describe())
	}
	s.setObject(in, obj, false)
}

// This evaluates to the receiver pointer of the enclosing member function.
type This struct {
	exprBase
	rvalue
}

func (e *This) Describe() string { return "this" }

func (e *This) upNext(*Simulation, *Instance) bool { return false }

func (e *This) stepForward(s *Simulation, in *Instance) {
	f := in.Frame()
	if f == nil || f.This() == nil {
		panic("this used outside a member function")
	}
	s.setValue(in, f.This().ReadValue())
}

// LValueToRValue reads the value of a scalar object.
type LValueToRValue struct {
	exprBase
	rvalue
	Operand Expr
}

func (e *LValueToRValue) Describe() string { return e.Operand.Describe() }

func (e *LValueToRValue) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *LValueToRValue) stepForward(s *Simulation, in *Instance) {
	s.setValue(in, s.readObject(in, in.child(0).result))
}

// readObject reads a scalar object, reporting reads of objects that do not
// exist, are dead, or hold an indeterminate value.
func (s *Simulation) readObject(in *Instance, res Result) value.Value {
	obj := res.Object
	anonymous := obj.Complete().IsAnonymous()
	alive := obj.IsAlive() && !anonymous
	if !res.checked {
		switch {
		case anonymous:
			s.diagnose(in, SeverityUndefinedBehavior, "reads memory at 0x%x that holds no object", obj.Address())
		case !obj.IsAlive():
			s.diagnose(in, SeverityUndefinedBehavior, "reads %s, whose lifetime has ended", obj.Describe())
		}
	}
	v := obj.ReadValue()
	if !alive {
		return v.WithValid(false)
	}
	if !v.IsValid() {
		s.diagnose(in, SeverityUndefinedBehavior, "reads the uninitialized value of %s", obj.Describe())
	}
	return v
}

// writeObject stores v (or copies src for class objects) into res.Object.
func (s *Simulation) writeObject(in *Instance, res Result, v value.Value, src *memory.Object) {
	obj := res.Object
	complete := obj.Complete()
	if !res.checked {
		switch {
		case complete.IsAnonymous():
			s.diagnose(in, SeverityUndefinedBehavior, "writes to memory at 0x%x that holds no object", obj.Address())
		case !obj.IsAlive():
			s.diagnose(in, SeverityUndefinedBehavior, "writes to %s, whose lifetime has ended", obj.Describe())
		}
	}
	// objects made up at a null pointer are never backed by storage
	if complete.IsAnonymous() && complete.Address() < memory.NullGuard {
		return
	}
	if src != nil {
		obj.CopyFrom(src)
		return
	}
	obj.WriteValue(convertValue(v, obj.Type()))
}

// ArrayDecay converts an array lvalue to a pointer to its first element that
// remembers the array's bounds.
type ArrayDecay struct {
	exprBase
	rvalue
	Operand Expr
}

func (e *ArrayDecay) Describe() string { return e.Operand.Describe() }

func (e *ArrayDecay) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *ArrayDecay) stepForward(s *Simulation, in *Instance) {
	arr := in.child(0).result.Object
	s.setValue(in, arrayPointer(arr, arr.Address()))
}

// arrayPointer returns a pointer to addr carrying arr's bounds.
func arrayPointer(arr *memory.Object, addr uint32) value.Value {
	at := arr.Type().(types.Array)
	return value.Pointer(addr, types.ArrayPointer{
		Elem:   at.Elem,
		Origin: types.Origin{Handle: uint32(arr.Handle()), Start: arr.Address(), Length: at.Length},
	})
}

// Convert is an implicit or explicit conversion of a prvalue.
type Convert struct {
	exprBase
	rvalue
	Operand Expr
}

func (e *Convert) Describe() string { return e.Operand.Describe() }

func (e *Convert) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *Convert) stepForward(s *Simulation, in *Instance) {
	s.setValue(in, convertValue(in.child(0).result.Value, e.typ))
}

func convertValue(v value.Value, to types.Type) value.Value {
	if ap, ok := v.Type().(types.ArrayPointer); ok {
		if elem, isPtr := types.Pointee(to); isPtr && types.Same(ap.Elem, elem) {
			ap.Elem = elem
			return v.WithType(ap)
		}
	}
	return value.Convert(v, to)
}

// BaseConvert converts a class lvalue to its base class subobject.
type BaseConvert struct {
	exprBase
	lvalue
	Operand Expr
}

func (e *BaseConvert) Describe() string { return e.Operand.Describe() }

func (e *BaseConvert) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *BaseConvert) stepForward(s *Simulation, in *Instance) {
	res := in.child(0).result
	info, _ := types.ClassOf(e.typ)
	sub, ok := res.Object.SubobjectOfClass(info)
	if !ok {
		panic(fmt.Sprintf("%s has no %s subobject", res.Object.Describe(), info.Name))
	}
	s.setObject(in, sub, res.checked)
}

// Unary is unary minus or logical not.
type Unary struct {
	exprBase
	rvalue
	Op      byte
	Operand Expr
}

func (e *Unary) Describe() string { return string(e.Op) + e.Operand.Describe() }

func (e *Unary) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *Unary) stepForward(s *Simulation, in *Instance) {
	v := in.child(0).result.Value
	switch e.Op {
	case '-':
		v = value.Negate(v)
	case '!':
		v = value.Not(v)
	}
	s.setValue(in, v)
}

// Deref is the indirection operator. It evaluates to the pointed-to object,
// reporting null, dangling and out-of-bounds pointers.
type Deref struct {
	exprBase
	lvalue
	Operand Expr
}

func (e *Deref) Describe() string { return "*" + e.Operand.Describe() }

func (e *Deref) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *Deref) stepForward(s *Simulation, in *Instance) {
	s.setObject(in, s.dereference(in, in.child(0).result.Value), true)
}

// dereference resolves a pointer value, reporting every problem with the
// access once.
func (s *Simulation) dereference(in *Instance, ptr value.Value) *memory.Object {
	switch {
	case !ptr.IsValid():
		s.diagnose(in, SeverityUndefinedBehavior, "dereferences an uninitialized pointer")
		return s.mem.GetObject(ptr)
	case ptr.IsNull():
		s.diagnose(in, SeverityCrash, "dereferences a null pointer")
		return s.mem.GetObject(ptr)
	}

	if ap, ok := ptr.Type().(types.ArrayPointer); ok {
		addr := ptr.Address()
		if addr < ap.Origin.Start || addr >= ap.End() {
			arr, _ := s.mem.Arena().Get(memory.Handle(ap.Origin.Handle))
			desc := "an array"
			if arr != nil {
				desc = arr.Describe()
			}
			s.diagnose(in, SeverityUndefinedBehavior,
				"accesses index %d of %s, which has length %d", ap.Index(addr), desc, ap.Origin.Length)
			return s.mem.GetObject(ptr)
		}
	}

	obj := s.mem.GetObject(ptr)
	switch {
	case obj.IsAnonymous():
		s.diagnose(in, SeverityUndefinedBehavior, "dereferences 0x%x, where no object lives", ptr.Address())
	case !obj.IsAlive():
		s.diagnose(in, SeverityUndefinedBehavior, "dereferences a pointer to %s, a dead object", obj.Describe())
	}
	return obj
}

// AddressOf takes the address of an lvalue. The address of an array element
// keeps the bounds of its array.
type AddressOf struct {
	exprBase
	rvalue
	Operand Expr
}

func (e *AddressOf) Describe() string { return "&" + e.Operand.Describe() }

func (e *AddressOf) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *AddressOf) stepForward(s *Simulation, in *Instance) {
	obj := in.child(0).result.Object
	if obj.Kind() == memory.KindElement && obj.Parent() != nil {
		s.setValue(in, arrayPointer(obj.Parent(), obj.Address()))
		return
	}
	s.setValue(in, value.Pointer(obj.Address(), e.typ))
}

// IncDec is ++ or -- in prefix or postfix form.
type IncDec struct {
	exprBase
	Operand Expr
	Inc     bool
	Prefix  bool
}

func (e *IncDec) IsLvalue() bool { return e.Prefix }

func (e *IncDec) Describe() string {
	op := "--"
	if e.Inc {
		op = "++"
	}
	if e.Prefix {
		return op + e.Operand.Describe()
	}
	return e.Operand.Describe() + op
}

func (e *IncDec) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Operand)
}

func (e *IncDec) stepForward(s *Simulation, in *Instance) {
	res := in.child(0).result
	old := s.readObject(in, res)
	delta := int64(1)
	if !e.Inc {
		delta = -1
	}

	var next value.Value
	if types.IsPointer(old.Type()) {
		next = s.offsetPointer(in, old, delta)
	} else {
		one := value.Convert(value.Int(1), old.Type())
		if _, isDouble := old.Type().(types.Double); !isDouble {
			old, one = value.Convert(old, types.Int{}), value.Int(1)
		}
		op := value.OpAdd
		if !e.Inc {
			op = value.OpSub
		}
		var fault value.Fault
		next, fault = value.Binary(op, old, one)
		if fault != value.FaultNone {
			s.diagnose(in, SeverityUndefinedBehavior, "%s", fault)
		}
	}
	res.checked = true
	s.writeObject(in, res, next, nil)

	if e.Prefix {
		s.setObject(in, res.Object, true)
		return
	}
	s.setValue(in, convertValue(old, e.typ))
}

// offsetPointer moves p by n elements, reporting arithmetic that leaves the
// originating array (one past the end is allowed).
func (s *Simulation) offsetPointer(in *Instance, p value.Value, n int64) value.Value {
	elem, _ := types.Pointee(p.Type())
	size := int64(1)
	if elem != nil && elem.Size() > 0 {
		size = int64(elem.Size())
	}
	addr := int64(p.Address()) + n*size
	out := value.New(uint64(uint32(addr)), p.Type(), p.IsValid())

	ap, ok := p.Type().(types.ArrayPointer)
	if !ok || !p.IsValid() {
		return out
	}
	idx := (addr - int64(ap.Origin.Start)) / size
	if addr < int64(ap.Origin.Start) || idx > int64(ap.Origin.Length) {
		s.diagnose(in, SeverityUndefinedBehavior,
			"pointer arithmetic moves to index %d of an array of length %d", idx, ap.Origin.Length)
	}
	return out
}

// Binary is an arithmetic or comparison operator on prvalues, including
// pointer arithmetic, pointer difference and pointer comparison.
type Binary struct {
	exprBase
	rvalue
	Op    value.Op
	Left  Expr
	Right Expr
}

func (e *Binary) Describe() string {
	return e.Left.Describe() + " " + string(e.Op) + " " + e.Right.Describe()
}

func (e *Binary) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Left, e.Right)
}

func (e *Binary) stepForward(s *Simulation, in *Instance) {
	l, r := in.child(0).result.Value, in.child(1).result.Value
	s.setValue(in, s.binary(in, e.Op, l, r, e.typ))
}

func (s *Simulation) binary(in *Instance, op value.Op, l, r value.Value, typ types.Type) value.Value {
	lp, rp := types.IsPointer(l.Type()), types.IsPointer(r.Type())
	switch {
	case lp && rp && op == value.OpSub:
		return s.pointerDifference(in, l, r)
	case lp && rp:
		return s.comparePointers(in, op, l, r)
	case lp:
		if op == value.OpSub {
			return s.offsetPointer(in, l, -r.Int()).WithValid(l.IsValid() && r.IsValid())
		}
		return s.offsetPointer(in, l, r.Int()).WithValid(l.IsValid() && r.IsValid())
	case rp:
		return s.offsetPointer(in, r, l.Int()).WithValid(l.IsValid() && r.IsValid())
	}

	v, fault := value.Binary(op, l, r)
	if fault != value.FaultNone {
		s.diagnose(in, SeverityUndefinedBehavior, "%s", fault)
	}
	if op.IsComparison() {
		return v
	}
	return value.Convert(v, typ)
}

func (s *Simulation) pointerDifference(in *Instance, l, r value.Value) value.Value {
	elem, _ := types.Pointee(l.Type())
	size := int64(1)
	if elem != nil && elem.Size() > 0 {
		size = int64(elem.Size())
	}
	diff := value.Int(int32((int64(l.Address()) - int64(r.Address())) / size))
	la, lok := l.Type().(types.ArrayPointer)
	ra, rok := r.Type().(types.ArrayPointer)
	if !lok || !rok || la.Origin.Handle != ra.Origin.Handle {
		s.diagnose(in, SeverityUndefinedBehavior, "subtracts pointers that do not point into the same array")
		return diff.WithValid(false)
	}
	return diff.WithValid(l.IsValid() && r.IsValid())
}

func (s *Simulation) comparePointers(in *Instance, op value.Op, l, r value.Value) value.Value {
	if op != value.OpEq && op != value.OpNe && !l.IsNull() && !r.IsNull() {
		la, lok := l.Type().(types.ArrayPointer)
		ra, rok := r.Type().(types.ArrayPointer)
		if (!lok || !rok || la.Origin.Handle != ra.Origin.Handle) && l.Address() != r.Address() {
			s.diagnose(in, SeverityUnspecifiedBehavior, "compares pointers to unrelated objects with %s", op)
		}
	}
	return value.ComparePointers(op, l, r)
}

// Logical is a short-circuiting && or ||.
type Logical struct {
	exprBase
	rvalue
	Left  Expr
	Right Expr
	And   bool
}

func (e *Logical) Describe() string {
	op := " || "
	if e.And {
		op = " && "
	}
	return e.Left.Describe() + op + e.Right.Describe()
}

func (e *Logical) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case 0:
		in.stage = 1
		s.push(in, e.Left)
		return true
	case 1:
		in.stage = 2
		l := in.child(0).result.Value
		if l.Truthy() == e.And {
			s.push(in, e.Right)
			return true
		}
	}
	return false
}

func (e *Logical) stepForward(s *Simulation, in *Instance) {
	l := in.child(0).result.Value
	if len(in.children) == 1 {
		s.setValue(in, value.Bool(l.Truthy()).WithValid(l.IsValid()))
		return
	}
	r := in.child(1).result.Value
	s.setValue(in, value.Bool(r.Truthy()).WithValid(l.IsValid() && r.IsValid()))
}

// Conditional is the ?: operator.
type Conditional struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

func (e *Conditional) IsLvalue() bool { return e.Then.IsLvalue() && e.Else.IsLvalue() }

func (e *Conditional) Describe() string {
	return e.Cond.Describe() + " ? " + e.Then.Describe() + " : " + e.Else.Describe()
}

func (e *Conditional) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case 0:
		in.stage = 1
		s.push(in, e.Cond)
		return true
	case 1:
		in.stage = 2
		if in.child(0).result.Value.Truthy() {
			s.push(in, e.Then)
		} else {
			s.push(in, e.Else)
		}
		return true
	}
	return false
}

func (e *Conditional) stepForward(s *Simulation, in *Instance) {
	res := in.child(1).result
	if e.IsLvalue() {
		s.setObject(in, res.Object, res.checked)
		return
	}
	s.setValue(in, res.Value)
}

// Assign is simple assignment. Class objects are copied member by member.
type Assign struct {
	exprBase
	lvalue
	Left  Expr
	Right Expr
}

func (e *Assign) Describe() string { return e.Left.Describe() + " = " + e.Right.Describe() }

func (e *Assign) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Left, e.Right)
}

func (e *Assign) stepForward(s *Simulation, in *Instance) {
	target, src := in.child(0).result, in.child(1).result
	s.writeObject(in, target, src.Value, src.Object)
	s.setObject(in, target.Object, true)
}

// CompoundAssign is op= on arithmetic objects, and += or -= on pointers.
// Right has already been converted to the type the operation is done in.
type CompoundAssign struct {
	exprBase
	lvalue
	Op    value.Op
	Left  Expr
	Right Expr
}

func (e *CompoundAssign) Describe() string {
	return e.Left.Describe() + " " + string(e.Op) + "= " + e.Right.Describe()
}

func (e *CompoundAssign) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Left, e.Right)
}

func (e *CompoundAssign) stepForward(s *Simulation, in *Instance) {
	target, r := in.child(0).result, in.child(1).result.Value
	l := s.readObject(in, target)
	if !types.IsPointer(l.Type()) {
		l = value.Convert(l, r.Type())
	}
	v := s.binary(in, e.Op, l, r, r.Type())
	target.checked = true
	s.writeObject(in, target, v, nil)
	s.setObject(in, target.Object, true)
}

// Subscript is p[i] on a pointer prvalue (arrays decay first).
type Subscript struct {
	exprBase
	lvalue
	Pointer Expr
	Index   Expr
}

func (e *Subscript) Describe() string {
	return e.Pointer.Describe() + "[" + e.Index.Describe() + "]"
}

func (e *Subscript) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Pointer, e.Index)
}

func (e *Subscript) stepForward(s *Simulation, in *Instance) {
	p, i := in.child(0).result.Value, in.child(1).result.Value
	elem, _ := types.Pointee(p.Type())
	addr := int64(p.Address()) + i.Int()*int64(elem.Size())
	target := value.New(uint64(uint32(addr)), p.Type(), p.IsValid() && i.IsValid())
	s.setObject(in, s.dereference(in, target), true)
}

// Member is class member access with '.'; '->' is Member of a Deref.
type Member struct {
	exprBase
	lvalue
	Object Expr
	Field  *MemberVariable
}

func (e *Member) Describe() string {
	if d, ok := e.Object.(*Deref); ok {
		return d.Operand.Describe() + "->" + e.Field.name
	}
	return e.Object.Describe() + "." + e.Field.name
}

func (e *Member) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, e.Object)
}

func (e *Member) stepForward(s *Simulation, in *Instance) {
	res := in.child(0).result
	sub, ok := res.Object.SubobjectOfClass(e.Field.class.info)
	if !ok {
		panic(fmt.Sprintf("%s has no subobject of class %s", res.Object.Describe(), e.Field.class.Name()))
	}
	m, ok := sub.Member(e.Field.name)
	if !ok {
		panic("missing member " + e.Field.Describe())
	}
	s.setObject(in, m, res.checked)
}

// Rand is a call to rand(), drawing from the simulation's seeded generator.
type Rand struct {
	exprBase
	rvalue
}

// RandMax is the largest value rand() returns.
const RandMax = 32767

func (e *Rand) Describe() string { return "rand()" }

func (e *Rand) upNext(*Simulation, *Instance) bool { return false }

func (e *Rand) stepForward(s *Simulation, in *Instance) {
	s.setValue(in, value.Int(int32(s.rng.Intn(RandMax+1))))
}
