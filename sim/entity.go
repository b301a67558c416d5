package sim

import (
	"fmt"

	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/types"
)

// Entity is the compile-time description of a declared name. Entities hold
// no storage; lookup resolves them to the live object for the running
// instance.
type Entity interface {
	Name() string
	Type() types.Type
	Describe() string
	lookup(s *Simulation, in *Instance) (*memory.Object, bool)
}

// LocalVariable is an automatic variable or a by-value parameter. It lives
// in the frame of the function it is declared in.
type LocalVariable struct {
	name string
	typ  types.Type
	id   int
}

func (v *LocalVariable) Name() string     { return v.name }
func (v *LocalVariable) Type() types.Type { return v.typ }
func (v *LocalVariable) Describe() string { return v.name }

func (v *LocalVariable) lookup(_ *Simulation, in *Instance) (*memory.Object, bool) {
	f := in.Frame()
	if f == nil {
		return nil, false
	}
	return f.Object(v.id)
}

// LocalReference is a reference variable or reference parameter. It has no
// storage of its own; lookup follows the binding recorded in the frame.
type LocalReference struct {
	name string
	typ  types.Reference
	id   int
}

func (r *LocalReference) Name() string     { return r.name }
func (r *LocalReference) Type() types.Type { return r.typ }
func (r *LocalReference) Describe() string { return r.name }

func (r *LocalReference) lookup(_ *Simulation, in *Instance) (*memory.Object, bool) {
	f := in.Frame()
	if f == nil {
		return nil, false
	}
	return f.Reference(r.id)
}

func (r *LocalReference) bind(in *Instance, obj *memory.Object) bool {
	f := in.Frame()
	return f != nil && f.BindReference(r.id, obj)
}

// StaticVariable is a variable with static storage duration. Its object is
// allocated when the simulation starts, before any initializer runs.
type StaticVariable struct {
	name string
	typ  types.Type
}

func (v *StaticVariable) Name() string     { return v.name }
func (v *StaticVariable) Type() types.Type { return v.typ }
func (v *StaticVariable) Describe() string { return v.name }

func (v *StaticVariable) lookup(s *Simulation, _ *Instance) (*memory.Object, bool) {
	h, ok := s.statics[v]
	if !ok {
		return nil, false
	}
	return s.mem.Arena().Get(h)
}

// MemberVariable is a data member. It resolves through the receiver of the
// enclosing member function.
type MemberVariable struct {
	class *ClassDef
	name  string
	typ   types.Type
}

func (m *MemberVariable) Name() string     { return m.name }
func (m *MemberVariable) Type() types.Type { return m.typ }
func (m *MemberVariable) Class() *ClassDef { return m.class }
func (m *MemberVariable) Describe() string { return m.class.Name() + "::" + m.name }

func (m *MemberVariable) lookup(_ *Simulation, in *Instance) (*memory.Object, bool) {
	recv := receiverOf(in)
	if recv == nil {
		return nil, false
	}
	sub, ok := recv.SubobjectOfClass(m.class.info)
	if !ok {
		return nil, false
	}
	return sub.Member(m.name)
}

// BaseSubobject is the base class part of the receiver, as named by a
// constructor's base initializer.
type BaseSubobject struct {
	class *ClassDef
}

func (b *BaseSubobject) Name() string     { return b.class.Name() }
func (b *BaseSubobject) Type() types.Type { return types.Class{Info: b.class.info} }
func (b *BaseSubobject) Describe() string { return "base " + b.class.Name() }

func (b *BaseSubobject) lookup(_ *Simulation, in *Instance) (*memory.Object, bool) {
	recv := receiverOf(in)
	if recv == nil {
		return nil, false
	}
	return recv.SubobjectOfClass(b.class.info)
}

// DynamicObject is the object created by a new-expression. It resolves
// to the allocation made by the nearest enclosing new instance.
type DynamicObject struct {
	typ types.Type
}

func (d *DynamicObject) Name() string     { return "" }
func (d *DynamicObject) Type() types.Type { return d.typ }
func (d *DynamicObject) Describe() string { return "the new " + d.typ.String() }

func (d *DynamicObject) lookup(_ *Simulation, in *Instance) (*memory.Object, bool) {
	owner := in.ancestor(func(a *Instance) bool {
		_, ok := a.model.(*NewExpr)
		return ok && a.target != nil
	})
	if owner == nil {
		return nil, false
	}
	return owner.target, true
}

// ReturnValue is the object a function call returns into.
type ReturnValue struct {
	fn *FunctionDef
}

func (r *ReturnValue) Name() string     { return "" }
func (r *ReturnValue) Type() types.Type { return r.fn.sig.Return }
func (r *ReturnValue) Describe() string { return "return value of " + r.fn.Describe() }

func (r *ReturnValue) lookup(_ *Simulation, in *Instance) (*memory.Object, bool) {
	if in.fn == nil || in.fn.ret == nil {
		return nil, false
	}
	return in.fn.ret, true
}

// Temporary is a temporary object materialized by an expression, such as
// the result of a call returning by value.
type Temporary struct {
	typ   types.Type
	owner Construct
}

func (t *Temporary) Name() string     { return "" }
func (t *Temporary) Type() types.Type { return t.typ }
func (t *Temporary) Describe() string {
	return fmt.Sprintf("temporary %s of %s", t.typ, t.owner.Describe())
}

func (t *Temporary) lookup(_ *Simulation, in *Instance) (*memory.Object, bool) {
	owner := in.ancestor(func(a *Instance) bool { return a.model == t.owner })
	if owner == nil || owner.ret == nil {
		return nil, false
	}
	return owner.ret, true
}

// receiverOf returns the object the enclosing member function runs on.
func receiverOf(in *Instance) *memory.Object {
	if in.fn == nil {
		return nil
	}
	return in.fn.receiver
}
