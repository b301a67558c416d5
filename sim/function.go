package sim

import (
	"maps"

	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/scope"
	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

type funcKind uint8

const (
	funcFree funcKind = iota
	funcMember
	funcConstructor
	funcDestructor
)

// FunctionDef is a function definition. It is both the function entity
// named by calls and the construct run by function instances.
type FunctionDef struct {
	class    *ClassDef
	body     *Block
	ret      *ReturnValue
	baseDtor *Call
	name     string
	sig      types.Function
	params   []Entity
	locals   []memory.Local
	prologue []*Initialization
	kind     funcKind
	virtual  bool
}

func newFunctionDef(name string, sig types.Function, class *ClassDef, kind funcKind) *FunctionDef {
	f := &FunctionDef{name: name, sig: sig, class: class, kind: kind}
	f.ret = &ReturnValue{fn: f}
	return f
}

func (f *FunctionDef) Name() string              { return f.name }
func (f *FunctionDef) Signature() types.Function { return f.sig }
func (f *FunctionDef) Type() types.Type          { return f.sig }
func (f *FunctionDef) Class() *ClassDef          { return f.class }
func (f *FunctionDef) Body() *Block              { return f.body }
func (f *FunctionDef) IsVirtual() bool           { return f.virtual }
func (f *FunctionDef) IsConstructor() bool       { return f.kind == funcConstructor }
func (f *FunctionDef) IsDestructor() bool        { return f.kind == funcDestructor }
func (f *FunctionDef) StackType() StackType      { return StackFunction }

// Describe returns the qualified signature, e.g. "A::f(int) const".
func (f *FunctionDef) Describe() string {
	s := f.name + "(" + types.ParamString(f.sig.Params) + ")"
	if f.sig.ConstMember {
		s += " const"
	}
	if f.class != nil {
		s = f.class.Name() + "::" + s
	}
	return s
}

// key identifies the function within a virtual table.
func (f *FunctionDef) key() string {
	if f.kind == funcDestructor {
		return "~"
	}
	k := f.name + "(" + types.ParamString(f.sig.Params) + ")"
	if f.sig.ConstMember {
		k += " const"
	}
	return k
}

func (f *FunctionDef) lookup(*Simulation, *Instance) (*memory.Object, bool) {
	return nil, false
}

func (f *FunctionDef) frameSpec() memory.FrameSpec {
	spec := memory.FrameSpec{Name: f.Describe(), Locals: f.locals}
	if f.class != nil {
		spec.This = f.thisType()
	}
	return spec
}

func (f *FunctionDef) thisType() types.Pointer {
	return types.Pointer{Elem: types.Class{Info: f.class.info, Const: f.sig.ConstMember}}
}

func (f *FunctionDef) returnsValue() bool {
	switch f.sig.Return.(type) {
	case nil, types.Void, types.Reference:
		return false
	}
	return true
}

func (f *FunctionDef) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case 0:
		if in.index < len(f.prologue) {
			s.push(in, f.prologue[in.index])
			in.index++
			return true
		}
		in.stage = 1
		if f.body != nil {
			s.push(in, f.body)
			return true
		}
		fallthrough
	case 1:
		// parameters were constructed first and are destroyed last
		in.dying = append(in.locals, in.dying...)
		in.locals = nil
		in.stage = 2
		fallthrough
	case 2:
		if s.unwind(in) {
			return true
		}
		in.stage = 3
		if f.baseDtor != nil {
			if base, ok := in.receiver.BaseSubobject(); ok {
				s.pushCall(in, f.baseDtor, base)
				return true
			}
		}
	}
	return false
}

// stepForward runs when control reaches the closing brace.
func (f *FunctionDef) stepForward(s *Simulation, in *Instance) {
	if f.returnsValue() && in.ret != nil && !in.returned {
		if s.program.main == f {
			in.ret.WriteValue(value.Int(0))
		} else {
			s.diagnose(in, SeverityUndefinedBehavior,
				"control reached the end of %s without returning a value", f.Describe())
		}
	}
	s.pop(in)
}

// ClassDef is a class definition: its layout, scope, members and virtual
// table.
type ClassDef struct {
	info        *types.ClassInfo
	base        *ClassDef
	scope       *scope.Scope
	members     []*MemberVariable
	methods     []*FunctionDef
	ctors       []*FunctionDef
	dtor        *FunctionDef
	dtorCall    *Call
	defaultCtor *Call
	vtable      map[string]*FunctionDef
}

func (c *ClassDef) Name() string                 { return c.info.Name }
func (c *ClassDef) Info() *types.ClassInfo       { return c.info }
func (c *ClassDef) Base() *ClassDef              { return c.base }
func (c *ClassDef) Scope() *scope.Scope          { return c.scope }
func (c *ClassDef) Type() types.Class            { return types.Class{Info: c.info} }
func (c *ClassDef) Members() []*MemberVariable   { return c.members }
func (c *ClassDef) Methods() []*FunctionDef      { return c.methods }
func (c *ClassDef) Constructors() []*FunctionDef { return c.ctors }
func (c *ClassDef) Destructor() *FunctionDef     { return c.dtor }

// VirtualTable maps signatures to the implementations used for objects whose
// most-derived class is c.
func (c *ClassDef) VirtualTable() map[string]*FunctionDef { return c.vtable }

// DefaultConstructor returns the constructor taking no arguments.
func (c *ClassDef) DefaultConstructor() *FunctionDef {
	for _, f := range c.ctors {
		if len(f.sig.Params) == 0 {
			return f
		}
	}
	return nil
}

// finalize builds the virtual table from the base's table. A method that
// overrides a virtual base method is virtual itself.
func (c *ClassDef) finalize() {
	c.vtable = make(map[string]*FunctionDef)
	if c.base != nil {
		maps.Copy(c.vtable, c.base.vtable)
	}
	for _, m := range c.methods {
		k := m.key()
		if _, inherited := c.vtable[k]; inherited {
			m.virtual = true
		}
		if m.virtual {
			c.vtable[k] = m
		}
	}
	if c.dtor != nil {
		if _, inherited := c.vtable["~"]; inherited {
			c.dtor.virtual = true
		}
		if c.dtor.virtual {
			c.vtable["~"] = c.dtor
		}
		if c.base != nil && c.base.dtor != nil {
			c.dtor.baseDtor = &Call{Target: c.base.dtor, direct: true}
		}
		c.dtorCall = newCall(c.dtor, nil, nil)
	}
	if ctor := c.DefaultConstructor(); ctor != nil {
		c.defaultCtor = newCall(ctor, nil, nil)
	}
}

// dispatch selects the implementation of f for recv. Virtual functions are
// looked up in the table of the receiver's dynamic class and the receiver is
// adjusted to the subobject the implementation belongs to. While a
// constructor or destructor of class C runs on the object, its dynamic class
// is C.
func (s *Simulation) dispatch(f *FunctionDef, recv *memory.Object) (*FunctionDef, *memory.Object) {
	if !f.virtual || recv == nil {
		return f, recv
	}
	dyn := recv.MostDerived()
	cd := s.classDef(dyn.Type())
	if c, obj, ok := s.underConstruction(dyn); ok {
		cd, dyn = c, obj
	}
	if cd == nil {
		return f, recv
	}
	impl, ok := cd.vtable[f.key()]
	if !ok {
		return f, recv
	}
	if sub, ok := dyn.SubobjectOfClass(impl.class.info); ok {
		return impl, sub
	}
	return impl, recv
}

// underConstruction finds the innermost constructor or destructor running on
// a base subobject of obj (or obj itself) and returns its class and receiver.
func (s *Simulation) underConstruction(obj *memory.Object) (*ClassDef, *memory.Object, bool) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		in := s.stack[i]
		f, ok := in.model.(*FunctionDef)
		if !ok || (f.kind != funcConstructor && f.kind != funcDestructor) || in.receiver == nil {
			continue
		}
		if in.receiver.MostDerived() == obj {
			return f.class, in.receiver, true
		}
	}
	return nil, nil, false
}

// Call is a function call expression. Member calls evaluate Receiver to
// the object the function runs on; constructor and destructor calls pushed
// by the engine get their receiver at run time instead. A direct call is
// never dispatched virtually.
type Call struct {
	Target   *FunctionDef
	Receiver Expr
	Args     []Expr
	temp     *Temporary
	direct   bool
}

func newCall(target *FunctionDef, recv Expr, args []Expr) *Call {
	c := &Call{Target: target, Receiver: recv, Args: args}
	if target.returnsValue() {
		c.temp = &Temporary{typ: types.Unqualified(target.sig.Return), owner: c}
	}
	return c
}

func (c *Call) StackType() StackType { return StackCall }
func (c *Call) Describe() string     { return "call " + c.Target.Describe() }

func (c *Call) Type() types.Type {
	if r, ok := c.Target.sig.Return.(types.Reference); ok {
		return r.Ref
	}
	if c.Target.sig.Return == nil {
		return types.Void{}
	}
	return c.Target.sig.Return
}

func (c *Call) IsLvalue() bool {
	_, ok := c.Target.sig.Return.(types.Reference)
	return ok
}

func (c *Call) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case 0:
		in.stage = 1
		if c.Receiver != nil && in.target == nil {
			s.push(in, c.Receiver)
			return true
		}
		fallthrough
	case 1:
		if c.Receiver != nil && in.target == nil {
			in.target = in.child(0).result.Object
		}
		if in.index < len(c.Args) {
			s.push(in, c.Args[in.index])
			in.index++
			return true
		}
		in.stage = 2
	}
	return false
}

func (c *Call) stepForward(s *Simulation, in *Instance) {
	if in.stage == 2 {
		s.invoke(in, c)
		return
	}
	c.finish(s, in)
}

func (s *Simulation) invoke(in *Instance, c *Call) {
	in.stage = 3
	callee, recv := c.Target, in.target
	if !c.direct {
		callee, recv = s.dispatch(c.Target, recv)
	}
	if callee.body == nil && callee.kind != funcConstructor && callee.kind != funcDestructor {
		s.diagnose(in, SeverityCrash, "%s is declared but never defined", callee.Describe())
		return
	}

	if c.temp != nil {
		obj := memory.NewObject(memory.KindTemporary, "", c.temp.typ)
		if !s.allocateTemporary(in, obj) {
			return
		}
		in.ret = obj
	}

	frame, err := s.mem.Stack().PushFrame(callee.frameSpec())
	if err != nil {
		s.diagnose(in, SeverityCrash, "stack overflow calling %s", callee.Describe())
		return
	}
	fi := s.pushFunction(in, callee, frame, recv)
	in.callee = fi

	if recv != nil {
		frame.This().WriteValue(value.Pointer(recv.Address(), callee.thisType()))
	}
	off := len(in.children) - 1 - len(c.Args)
	for i, p := range callee.params {
		arg := in.child(off + i).result
		switch p := p.(type) {
		case *LocalReference:
			if !p.bind(fi, arg.Object) {
				panic("reference parameter " + p.name + " bound twice")
			}
		case *LocalVariable:
			obj, _ := frame.Object(p.id)
			if _, isClass := p.typ.(types.Class); isClass {
				obj.CopyFrom(arg.Object)
				s.constructed(fi, obj)
			} else {
				obj.WriteValue(convertValue(arg.Value, p.typ))
			}
		}
	}
}

func (c *Call) finish(s *Simulation, in *Instance) {
	switch {
	case c.IsLvalue():
		if in.callee != nil && in.callee.refRet != nil {
			in.result.Object = in.callee.refRet
		} else {
			in.result.Object = s.mem.GetObject(value.Null())
		}
	case c.temp != nil:
		obj, ok := c.temp.lookup(s, in)
		switch {
		case !ok:
			in.result.Value = value.Invalid(c.temp.typ)
		case types.IsScalar(c.temp.typ):
			in.result.Value = obj.ReadValue()
		default:
			in.result.Object = obj
		}
	}
	s.evaluated(in)
	s.pop(in)
}

// mainCall runs static initializers, then main, then the destructors of
// statics in reverse order of construction.
type mainCall struct {
	program *Program
	call    *Call
}

func (m *mainCall) StackType() StackType { return StackMain }
func (m *mainCall) Describe() string     { return "program" }

func (m *mainCall) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case 0:
		if in.index < len(m.program.inits) {
			s.push(in, m.program.inits[in.index])
			in.index++
			return true
		}
		in.stage = 1
		s.push(in, m.call)
		return true
	case 1:
		s.exitCode = in.last().result.Value
		in.stage = 2
		fallthrough
	case 2:
		return s.exitScope(in)
	}
	return false
}

func (m *mainCall) stepForward(s *Simulation, in *Instance) {
	s.pop(in)
}
