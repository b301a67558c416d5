package sim

import (
	"strings"

	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// InitKind selects how an Initialization gives its target a value.
type InitKind uint8

const (
	// InitDefault leaves scalars indeterminate (statics stay zero). For an
	// array of class type, Ctor default-constructs each element in order.
	InitDefault InitKind = iota
	// InitCopy copies Expr: a scalar prvalue or a class object.
	InitCopy
	// InitBind binds a reference to the object Expr designates.
	InitBind
	// InitConstruct runs constructor Ctor on the target.
	InitConstruct
	// InitList initializes array elements from List; the rest are zeroed.
	InitList
)

// Initialization initializes the object of Target. It is used for
// constructor member and base initializers, and for the object created by a
// new-expression.
type Initialization struct {
	Target Entity
	Expr   Expr
	Ctor   *Call
	List   []Expr
	Kind   InitKind
}

func (i *Initialization) StackType() StackType { return StackInitializer }

func (i *Initialization) Describe() string {
	name := i.Target.Describe()
	switch i.Kind {
	case InitCopy, InitBind:
		return name + " = " + i.Expr.Describe()
	case InitConstruct:
		args := make([]string, len(i.Ctor.Args))
		for k, a := range i.Ctor.Args {
			args[k] = a.Describe()
		}
		return name + "(" + strings.Join(args, ", ") + ")"
	case InitList:
		items := make([]string, len(i.List))
		for k, e := range i.List {
			items[k] = e.Describe()
		}
		return name + " = {" + strings.Join(items, ", ") + "}"
	}
	return i.Target.Type().String() + " " + name
}

func (i *Initialization) upNext(s *Simulation, in *Instance) bool {
	if v, ok := i.Target.(*LocalVariable); ok {
		s.begin(s.resolve(in, v))
	}
	switch i.Kind {
	case InitDefault:
		if i.Ctor != nil {
			if elem, ok := s.resolve(in, i.Target).Element(in.index); ok {
				in.index++
				s.pushCall(in, i.Ctor, elem)
				return true
			}
		}
	case InitCopy, InitBind:
		return s.pushOperands(in, i.Expr)
	case InitList:
		return s.pushOperands(in, i.List...)
	case InitConstruct:
		if in.stage == 0 {
			in.stage = 1
			s.pushCall(in, i.Ctor, s.resolve(in, i.Target))
			return true
		}
	}
	return false
}

func (i *Initialization) stepForward(s *Simulation, in *Instance) {
	switch i.Kind {
	case InitDefault:
		obj := s.resolve(in, i.Target)
		if obj.Kind() != memory.KindStatic && i.Ctor == nil {
			obj.Invalidate()
		}
	case InitCopy:
		res := in.child(0).result
		var src *memory.Object
		if !types.IsScalar(i.Target.Type()) {
			src = res.Object
		}
		s.writeObject(in, Result{Object: s.resolve(in, i.Target), checked: true}, res.Value, src)
	case InitBind:
		ref, ok := i.Target.(*LocalReference)
		if !ok {
			panic("cannot bind " + i.Target.Describe())
		}
		obj := in.child(0).result.Object
		in.Frame().UnbindReference(ref.id)
		if !ref.bind(in, obj) {
			panic("reference " + ref.name + " bound twice")
		}
		s.explain(in, "%s now refers to %s", ref.name, obj.Describe())
	case InitList:
		arr := s.resolve(in, i.Target)
		for k, e := range arr.Elements() {
			if k < len(in.children) {
				e.WriteValue(convertValue(in.child(k).result.Value, e.Type()))
				continue
			}
			e.WriteValue(value.Convert(value.Int(0), e.Type()))
		}
	}
	switch i.Target.(type) {
	case *LocalVariable, *StaticVariable:
		s.constructed(in, s.resolve(in, i.Target))
	}
	s.pop(in)
}

func (s *Simulation) resolve(in *Instance, e Entity) *memory.Object {
	obj, ok := e.lookup(s, in)
	if !ok {
		panic("no object for " + e.Describe())
	}
	return obj
}

// Declaration is a declaration statement; it initializes a local or static
// variable, or binds a local reference.
type Declaration struct {
	stmtBase
	Initialization
}

func (d *Declaration) StackType() StackType { return StackStatement }

// Entity returns the declared entity.
func (d *Declaration) Entity() Entity { return d.Target }

// new stages
const (
	newLength = iota
	newAllocate
	newInitialize
	newFinish
)

// NewExpr is a new or new[] expression. The object is allocated on the heap and
// stays a pending allocation, reachable for leak checking, until the
// statement that created it completes.
type NewExpr struct {
	exprBase
	rvalue
	Elem   types.Type
	Length Expr
	Init   *Initialization
	Array  bool
}

func (n *NewExpr) Describe() string {
	if n.Array {
		return "new " + n.Elem.String() + "[" + n.Length.Describe() + "]"
	}
	if n.Init == nil {
		return "new " + n.Elem.String()
	}
	var args []Expr
	switch n.Init.Kind {
	case InitCopy:
		args = []Expr{n.Init.Expr}
	case InitConstruct:
		args = n.Init.Ctor.Args
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Describe()
	}
	return "new " + n.Elem.String() + "(" + strings.Join(parts, ", ") + ")"
}

func (n *NewExpr) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case newLength:
		if n.Array && s.pushOperands(in, n.Length) {
			return true
		}
		in.stage = newAllocate
	case newInitialize:
		if in.target == nil {
			in.stage = newFinish
			return false
		}
		if !n.Array {
			if n.Init != nil && in.index == 0 {
				in.index = 1
				s.push(in, n.Init)
				return true
			}
		} else if cd := s.classDef(n.Elem); cd != nil && cd.defaultCtor != nil {
			if elem, ok := in.target.Element(in.index); ok {
				in.index++
				s.pushCall(in, cd.defaultCtor, elem)
				return true
			}
		}
		in.stage = newFinish
	}
	return false
}

func (n *NewExpr) stepForward(s *Simulation, in *Instance) {
	if in.stage == newAllocate {
		n.allocate(s, in)
		in.index = 0
		in.stage = newInitialize
		return
	}
	obj := in.target
	switch {
	case obj == nil:
		s.setValue(in, value.New(0, n.typ, true))
	case n.Array:
		s.setValue(in, arrayPointer(obj, obj.Address()))
	default:
		s.setValue(in, value.Pointer(obj.Address(), n.typ))
	}
}

func (n *NewExpr) allocate(s *Simulation, in *Instance) {
	t := n.Elem
	if n.Array {
		lv := in.child(0).result.Value
		length := lv.Int()
		if !lv.IsValid() || length < 0 {
			s.diagnose(in, SeverityUndefinedBehavior, "new[] with invalid length %d", length)
			length = 0
		}
		t = types.Array{Elem: n.Elem, Length: uint32(length)}
	}
	obj := memory.NewObject(memory.KindDynamic, "", t)
	if err := s.mem.Heap().NewObject(obj); err != nil {
		s.diagnose(in, SeverityCrash, "out of heap memory allocating %s", t)
		return
	}
	in.target = obj
	s.addPending(in, obj)
}

// delete stages
const (
	deleteOperand = iota
	deleteDestroy
	deleteFree
)

// Delete is a delete or delete[] expression. Declared destructors run
// before the storage is released.
type Delete struct {
	exprBase
	rvalue
	Operand Expr
	Array   bool
}

func (d *Delete) Describe() string {
	if d.Array {
		return "delete[] " + d.Operand.Describe()
	}
	return "delete " + d.Operand.Describe()
}

func (d *Delete) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case deleteOperand:
		return s.pushOperands(in, d.Operand)
	case deleteDestroy:
		if d.pushDestructor(s, in) {
			return true
		}
		in.stage = deleteFree
	}
	return false
}

func (d *Delete) stepForward(s *Simulation, in *Instance) {
	if in.stage == deleteOperand {
		if d.check(s, in) {
			in.stage = deleteDestroy
			return
		}
	} else if in.target != nil {
		s.mem.Heap().DeleteObject(in.target.Address())
		s.dropPending(in.target)
	}
	in.result = Result{}
	s.evaluated(in)
	s.pop(in)
}

// check validates the pointer and records the heap object to delete.
func (d *Delete) check(s *Simulation, in *Instance) bool {
	p := in.child(0).result.Value
	switch {
	case !p.IsValid():
		s.diagnose(in, SeverityUndefinedBehavior, "deletes through an uninitialized pointer")
		return false
	case p.IsNull():
		s.explain(in, "deleting a null pointer does nothing")
		return false
	}

	obj, ok := s.mem.Heap().Lookup(p.Address())
	if !ok {
		target := s.mem.GetObject(p).Complete()
		if target.Kind() == memory.KindDynamic && !target.IsAlive() {
			s.diagnose(in, SeverityUndefinedBehavior, "deletes %s, which was already deleted", target.Describe())
		} else {
			s.diagnose(in, SeverityUndefinedBehavior, "deletes %s, which was not allocated with new", target.Describe())
		}
		return false
	}

	_, isArray := obj.Type().(types.Array)
	switch {
	case isArray && !d.Array:
		s.diagnose(in, SeverityUndefinedBehavior, "uses delete on %s, which was allocated with new[]", obj.Describe())
	case !isArray && d.Array:
		s.diagnose(in, SeverityUndefinedBehavior, "uses delete[] on %s, which was not allocated with new[]", obj.Describe())
	}
	in.target = obj
	in.index = 0
	return true
}

// pushDestructor pushes the next destructor call, if any. Array elements
// are destroyed in reverse order.
func (d *Delete) pushDestructor(s *Simulation, in *Instance) bool {
	obj := in.target
	elems := obj.Elements()
	if _, isArray := obj.Type().(types.Array); isArray {
		if in.index >= len(elems) {
			return false
		}
		elem := elems[len(elems)-1-in.index]
		in.index++
		if cd := s.classDef(elem.Type()); cd != nil && cd.dtorCall != nil {
			s.pushCall(in, cd.dtorCall, elem)
			return true
		}
		return false
	}

	if in.index > 0 {
		return false
	}
	in.index = 1
	static, _ := types.Pointee(d.Operand.Type())
	cd := s.classDef(static)
	if cd == nil {
		return false
	}
	recv, ok := obj.SubobjectOfClass(cd.info)
	if !ok {
		recv = obj
	}
	if dyn := s.classDef(obj.Type()); dyn != nil && dyn != cd && (cd.dtor == nil || !cd.dtor.virtual) {
		s.diagnose(in, SeverityUndefinedBehavior,
			"deletes a %s through a pointer to %s, which has no virtual destructor", dyn.Name(), cd.Name())
	}
	if cd.dtorCall == nil {
		return false
	}
	s.pushCall(in, cd.dtorCall, recv)
	return true
}

// classDef returns the definition of a class type, or nil.
func (s *Simulation) classDef(t types.Type) *ClassDef {
	info, ok := types.ClassOf(t)
	if !ok {
		return nil
	}
	return s.program.classes[info]
}
