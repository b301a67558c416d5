package sim

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/scope"
	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// Param is a function parameter.
type Param struct {
	Name string
	Type types.Type
}

// MethodOptions qualifies a member function.
type MethodOptions struct {
	Virtual bool
	Const   bool
}

// Builder assembles a Program. Names are resolved and implicit conversions
// inserted as the program is built. The first error is kept and returned by
// Program; after an error the builder keeps accepting calls so that callers
// need not check every step.
//
// The embedded BlockBuilder is the global scope: Declare there creates a
// static variable.
type Builder struct {
	*BlockBuilder
	prog    *Program
	err     error
	funcs   []*FunctionBuilder
	classes []*ClassBuilder
	built   bool
}

// NewBuilder returns a builder for an empty program.
func NewBuilder() *Builder {
	b := &Builder{prog: newProgram()}
	b.BlockBuilder = &BlockBuilder{b: b, scope: b.prog.global, stmts: &b.prog.inits}
	return b
}

// Err returns the first error recorded so far.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
		Logger().Debug("build error", zap.Error(err))
	}
}

func (b *Builder) failf(kind errors.Kind, path []string, format string, args ...any) {
	b.fail(errors.New(errors.PhaseBuild, kind).Path(path...).Detail(format, args...).Build())
}

// Function declares and defines a free function. Statements added to the
// returned builder form its body.
func (b *Builder) Function(name string, ret types.Type, params ...Param) *FunctionBuilder {
	def := newFunctionDef(name, signature(ret, params, false), nil, funcFree)
	f := b.newFunction(def, b.prog.global, params)
	if err := b.prog.global.Declare(def); err != nil {
		b.fail(err)
	}
	b.prog.functions = append(b.prog.functions, def)
	if name == "main" {
		if len(params) > 0 {
			b.failf(errors.KindUnsupported, []string{"main"}, "main takes no parameters")
		}
		b.prog.main = def
	}
	return f
}

func signature(ret types.Type, params []Param, constMember bool) types.Function {
	if ret == nil {
		ret = types.Void{}
	}
	sig := types.Function{Return: ret, ConstMember: constMember, Params: make([]types.Type, len(params))}
	for i, p := range params {
		sig.Params[i] = p.Type
	}
	return sig
}

func (b *Builder) newFunction(def *FunctionDef, parent *scope.Scope, params []Param) *FunctionBuilder {
	f := &FunctionBuilder{def: def, inits: make(map[Entity]*Initialization)}
	f.BlockBuilder = &BlockBuilder{b: b, fn: f, scope: scope.New(def.name, parent), stmts: &f.body}
	for _, p := range params {
		id := f.newLocal(p.Name, p.Type)
		var e Entity
		if ref, ok := p.Type.(types.Reference); ok {
			e = &LocalReference{name: p.Name, typ: ref, id: id}
		} else {
			e = &LocalVariable{name: p.Name, typ: p.Type, id: id}
		}
		def.params = append(def.params, e)
		if p.Name != "" {
			f.declare(e)
		}
	}
	b.funcs = append(b.funcs, f)
	return f
}

// Class declares a class deriving from base (nil for none).
func (b *Builder) Class(name string, base *ClassBuilder) *ClassBuilder {
	var (
		baseInfo  *types.ClassInfo
		baseScope *scope.Scope
		baseDef   *ClassDef
	)
	if base != nil {
		base.derived = true
		baseDef, baseInfo, baseScope = base.def, base.def.info, base.def.scope
	}
	def := &ClassDef{
		info:  types.NewClassInfo(name, baseInfo),
		base:  baseDef,
		scope: scope.NewClass(name, b.prog.global, baseScope),
	}
	if err := b.prog.global.Declare(def); err != nil {
		b.fail(err)
	}
	b.prog.classes[def.info] = def
	b.prog.classOrder = append(b.prog.classOrder, def)
	c := &ClassBuilder{b: b, def: def}
	b.classes = append(b.classes, c)
	return c
}

// Program finishes the build: implicit constructors and destructors are
// added, constructor initializer lists completed and virtual tables built.
func (b *Builder) Program() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.built {
		return b.prog, nil
	}
	if b.prog.main == nil {
		return nil, errors.NotFound(errors.PhaseBuild, "function", "main")
	}
	for _, c := range b.classes {
		if c.def.base != nil && c.def.dtor == nil && c.def.base.dtor != nil {
			c.Destructor(false)
		}
	}
	for i := 0; i < len(b.funcs); i++ {
		b.funcs[i].finish()
	}
	if b.err != nil {
		return nil, b.err
	}
	for _, c := range b.prog.classOrder {
		c.finalize()
	}
	b.prog.entry = &mainCall{program: b.prog, call: newCall(b.prog.main, nil, nil)}
	b.built = true
	Logger().Debug("program built",
		zap.Int("functions", len(b.prog.functions)),
		zap.Int("classes", len(b.prog.classOrder)),
		zap.Int("statics", len(b.prog.statics)))
	return b.prog, nil
}

// ClassBuilder adds members to a class.
type ClassBuilder struct {
	b        *Builder
	def      *ClassDef
	implicit *FunctionBuilder
	derived  bool
}

func (c *ClassBuilder) Def() *ClassDef      { return c.def }
func (c *ClassBuilder) Type() types.Class   { return c.def.Type() }
func (c *ClassBuilder) Pointer() types.Type { return types.Pointer{Elem: c.def.Type()} }

// Field adds a data member.
func (c *ClassBuilder) Field(name string, t types.Type) *MemberVariable {
	m := &MemberVariable{class: c.def, name: name, typ: t}
	switch {
	case c.derived:
		c.b.failf(errors.KindUnsupported, []string{c.def.Name(), name}, "fields must be declared before the class is derived from")
		return m
	case isReference(t):
		c.b.failf(errors.KindUnsupported, []string{c.def.Name(), name}, "reference members are not supported")
		return m
	}
	if err := c.def.scope.Declare(m); err != nil {
		c.b.fail(err)
		return m
	}
	c.def.info.AddField(name, t)
	c.def.members = append(c.def.members, m)
	return m
}

// Method declares and defines a member function.
func (c *ClassBuilder) Method(name string, ret types.Type, opts MethodOptions, params ...Param) *FunctionBuilder {
	def := newFunctionDef(name, signature(ret, params, opts.Const), c.def, funcMember)
	def.virtual = opts.Virtual
	f := c.b.newFunction(def, c.def.scope, params)
	if err := c.def.scope.Declare(def); err != nil {
		c.b.fail(err)
	}
	c.def.methods = append(c.def.methods, def)
	c.b.prog.functions = append(c.b.prog.functions, def)
	return f
}

// Constructor declares a constructor. Use InitBase and InitMember on the
// result for its initializer list.
func (c *ClassBuilder) Constructor(params ...Param) *FunctionBuilder {
	if c.implicit != nil {
		c.b.failf(errors.KindUnsupported, []string{c.def.Name()},
			"constructor declared after %s was default-constructed", c.def.Name())
	}
	def := newFunctionDef(c.def.Name(), signature(nil, params, false), c.def, funcConstructor)
	for _, other := range c.def.ctors {
		if types.SameParams(other.sig.Params, def.sig.Params) {
			c.b.fail(errors.Redeclared(c.def.Name(), c.def.Name()))
		}
	}
	f := c.b.newFunction(def, c.def.scope, params)
	c.def.ctors = append(c.def.ctors, def)
	c.b.prog.functions = append(c.b.prog.functions, def)
	return f
}

// Destructor declares the destructor.
func (c *ClassBuilder) Destructor(virtual bool) *FunctionBuilder {
	if c.def.dtor != nil {
		c.b.fail(errors.Redeclared(c.def.Name(), "~"+c.def.Name()))
	}
	def := newFunctionDef("~"+c.def.Name(), signature(nil, nil, false), c.def, funcDestructor)
	def.virtual = virtual
	f := c.b.newFunction(def, c.def.scope, nil)
	c.def.dtor = def
	c.b.prog.functions = append(c.b.prog.functions, def)
	return f
}

// defaultConstructor returns the constructor taking no arguments, adding an
// implicit one to a class that declares none.
func (c *ClassBuilder) defaultConstructor() *FunctionDef {
	if len(c.def.ctors) == 0 {
		f := c.Constructor()
		c.implicit = f
	}
	return c.def.DefaultConstructor()
}

func (b *Builder) classBuilder(cd *ClassDef) *ClassBuilder {
	for _, c := range b.classes {
		if c.def == cd {
			return c
		}
	}
	return nil
}

// FunctionBuilder builds a function body. Its embedded BlockBuilder is the
// outermost block.
type FunctionBuilder struct {
	*BlockBuilder
	def      *FunctionDef
	body     []Stmt
	locals   []memory.Local
	inits    map[Entity]*Initialization
	baseInit *Initialization
}

// Def returns the function being built.
func (f *FunctionBuilder) Def() *FunctionDef { return f.def }

func (f *FunctionBuilder) newLocal(name string, t types.Type) int {
	id := len(f.locals)
	f.locals = append(f.locals, memory.Local{Type: t, Name: name, ID: id})
	return id
}

// InitBase adds the base class initializer of a constructor.
func (f *FunctionBuilder) InitBase(args ...Expr) {
	cd := f.def.class
	if f.def.kind != funcConstructor || cd.base == nil {
		f.b.failf(errors.KindUnsupported, []string{f.def.Describe()}, "base initializer outside a derived class constructor")
		return
	}
	target := &BaseSubobject{class: cd.base}
	f.baseInit = f.initialization(target, target.Type(), args)
}

// InitMember adds a member initializer of a constructor.
func (f *FunctionBuilder) InitMember(name string, args ...Expr) {
	if f.def.kind != funcConstructor {
		f.b.failf(errors.KindUnsupported, []string{f.def.Describe()}, "member initializer outside a constructor")
		return
	}
	for _, m := range f.def.class.members {
		if m.name == name {
			f.inits[m] = f.initialization(m, m.typ, args)
			return
		}
	}
	f.b.failf(errors.KindNotFound, []string{f.def.class.Name(), name}, "%s has no member %q", f.def.class.Name(), name)
}

// finish completes the definition: body, frame layout and, for
// constructors, the initializer list in base-then-member order.
func (f *FunctionBuilder) finish() {
	def := f.def
	def.body = &Block{Stmts: f.body}
	def.locals = f.locals
	if def.kind != funcConstructor {
		return
	}
	cd := def.class
	if cd.base != nil {
		init := f.baseInit
		if init == nil {
			target := &BaseSubobject{class: cd.base}
			init = f.initialization(target, target.Type(), nil)
		}
		if init != nil && init.Kind != InitDefault {
			def.prologue = append(def.prologue, init)
		}
	}
	for _, m := range cd.members {
		init, ok := f.inits[m]
		if !ok {
			if _, isClass := m.typ.(types.Class); !isClass {
				continue
			}
			init = f.initialization(m, m.typ, nil)
		}
		if init != nil && init.Kind != InitDefault {
			def.prologue = append(def.prologue, init)
		}
	}
}

// BlockBuilder builds a block: a scope and its statement list.
type BlockBuilder struct {
	b      *Builder
	fn     *FunctionBuilder
	scope  *scope.Scope
	stmts  *[]Stmt
	inLoop bool
}

func (bb *BlockBuilder) add(st Stmt) {
	if bb.fn == nil {
		if _, ok := st.(*Declaration); !ok {
			bb.b.failf(errors.KindUnsupported, nil, "%s outside a function", st.Describe())
			return
		}
	}
	*bb.stmts = append(*bb.stmts, st)
}

func (bb *BlockBuilder) declare(e Entity) {
	if err := bb.scope.Declare(e); err != nil {
		bb.b.fail(err)
	}
}

func (bb *BlockBuilder) path(name string) []string {
	if q := bb.scope.QualifiedName(); q != "" {
		return []string{q, name}
	}
	return []string{name}
}

func (bb *BlockBuilder) child(name string) *BlockBuilder {
	return &BlockBuilder{b: bb.b, fn: bb.fn, scope: scope.New(name, bb.scope), stmts: new([]Stmt), inLoop: bb.inLoop}
}

func (bb *BlockBuilder) build(name string, body func(*BlockBuilder), loop bool) *Block {
	c := bb.child(name)
	c.inLoop = c.inLoop || loop
	if body != nil {
		body(c)
	}
	return &Block{Stmts: *c.stmts}
}

// bad is the placeholder returned after an error.
func bad() Expr {
	return &Literal{exprBase: exprBase{typ: types.Int{}}, val: value.Int(0)}
}

// Declare declares a variable initialized from init: nothing (default
// initialization), one expression (copy initialization or reference
// binding), or constructor arguments for a class. Arrays take a list of
// element values. At global scope the variable is static.
func (bb *BlockBuilder) Declare(name string, t types.Type, init ...Expr) Entity {
	if bb.fn == nil {
		v := &StaticVariable{name: name, typ: t}
		if isReference(t) {
			bb.b.failf(errors.KindUnsupported, []string{name}, "static references are not supported")
			return v
		}
		in := bb.initialization(v, t, init)
		bb.declare(v)
		bb.b.prog.statics = append(bb.b.prog.statics, v)
		if in != nil && (in.Kind != InitDefault || in.Ctor != nil) {
			bb.add(&Declaration{Initialization: *in})
		}
		return v
	}

	id := bb.fn.newLocal(name, t)
	var e Entity
	if ref, ok := t.(types.Reference); ok {
		e = &LocalReference{name: name, typ: ref, id: id}
	} else {
		e = &LocalVariable{name: name, typ: t, id: id}
	}
	in := bb.initialization(e, t, init)
	bb.declare(e)
	if in != nil {
		bb.add(&Declaration{Initialization: *in})
	}
	return e
}

// initialization builds the initialization of target from args.
func (bb *BlockBuilder) initialization(target Entity, t types.Type, args []Expr) *Initialization {
	path := bb.path(target.Name())
	switch tt := t.(type) {
	case types.Reference:
		if len(args) != 1 {
			bb.b.failf(errors.KindInvalidInput, path, "a reference must be bound to exactly one object")
			return nil
		}
		return &Initialization{Target: target, Kind: InitBind, Expr: bb.bind(args[0], tt)}

	case types.Class:
		cd := bb.b.prog.classes[tt.Info]
		if len(args) == 1 {
			if info, ok := types.ClassOf(args[0].Type()); ok && info.DerivesFrom(tt.Info) {
				return &Initialization{Target: target, Kind: InitCopy, Expr: bb.convert(args[0], tt)}
			}
		}
		if len(args) == 0 {
			ctor := bb.b.classBuilder(cd).defaultConstructor()
			if ctor == nil {
				bb.b.failf(errors.KindNoMatch, path, "%s has no default constructor", cd.Name())
				return nil
			}
			return &Initialization{Target: target, Kind: InitConstruct, Ctor: newCall(ctor, nil, nil)}
		}
		candidates := make([]scope.Function, len(cd.ctors))
		for i, f := range cd.ctors {
			candidates[i] = f
		}
		ctor, err := pickOverload(candidates, args, []string{cd.Name(), cd.Name()})
		if err != nil {
			bb.b.fail(err)
			return nil
		}
		return &Initialization{Target: target, Kind: InitConstruct, Ctor: newCall(ctor, nil, bb.arguments(ctor, args))}

	case types.Array:
		if len(args) == 0 {
			in := &Initialization{Target: target, Kind: InitDefault}
			if info, ok := types.ClassOf(tt.Elem); ok {
				cd := bb.b.prog.classes[info]
				ctor := bb.b.classBuilder(cd).defaultConstructor()
				if ctor == nil {
					bb.b.failf(errors.KindNoMatch, path, "%s has no default constructor", cd.Name())
					return nil
				}
				in.Ctor = newCall(ctor, nil, nil)
			}
			return in
		}
		if uint32(len(args)) > tt.Length {
			bb.b.failf(errors.KindOutOfBounds, path, "%d initializers for %s", len(args), tt)
			return nil
		}
		list := make([]Expr, len(args))
		for i, a := range args {
			list[i] = bb.convert(a, tt.Elem)
		}
		return &Initialization{Target: target, Kind: InitList, List: list}
	}

	switch len(args) {
	case 0:
		return &Initialization{Target: target, Kind: InitDefault}
	case 1:
		return &Initialization{Target: target, Kind: InitCopy, Expr: bb.convert(args[0], t)}
	}
	bb.b.failf(errors.KindInvalidInput, path, "%d initializers for %s", len(args), t)
	return nil
}

// Literals.

func (bb *BlockBuilder) Int(v int) Expr {
	return &Literal{exprBase: exprBase{typ: types.Int{}}, val: value.Int(int32(v))}
}

func (bb *BlockBuilder) Double(v float64) Expr {
	return &Literal{exprBase: exprBase{typ: types.Double{}}, val: value.Double(v)}
}

func (bb *BlockBuilder) Char(c byte) Expr {
	return &Literal{exprBase: exprBase{typ: types.Char{}}, val: value.Char(int8(c))}
}

func (bb *BlockBuilder) Bool(v bool) Expr {
	return &Literal{exprBase: exprBase{typ: types.Bool{}}, val: value.Bool(v)}
}

func (bb *BlockBuilder) Nullptr() Expr {
	return &Literal{exprBase: exprBase{typ: types.Null{}}, val: value.Null()}
}

// Str is a string literal. Every occurrence gets its own static storage.
func (bb *BlockBuilder) Str(text string) Expr {
	l := &StringLiteral{exprBase: exprBase{typ: stringType(text)}, text: text}
	bb.b.prog.literals = append(bb.b.prog.literals, l)
	return l
}

// Rand is a call to rand().
func (bb *BlockBuilder) Rand() Expr {
	return &Rand{exprBase: exprBase{typ: types.Int{}}}
}

// Name refers to a variable visible from this block. Data members are
// accessed through the implicit this of a member function.
func (bb *BlockBuilder) Name(name string) Expr {
	r, err := bb.scope.RequiredLookup(name, scope.Options{})
	if err != nil {
		bb.b.fail(err)
		return bad()
	}
	e, ok := r.Entity.(Entity)
	if r.Kind != scope.Found || !ok {
		bb.b.failf(errors.KindTypeMismatch, bb.path(name), "%q is not a variable", name)
		return bad()
	}
	t := e.Type()
	switch e := e.(type) {
	case *LocalReference:
		t = e.typ.Ref
	case *MemberVariable:
		if bb.fn == nil || bb.fn.def.class == nil || bb.fn.def.kind == funcFree {
			bb.b.failf(errors.KindInvalidInput, bb.path(name), "member %s used outside a member function", e.Describe())
			return bad()
		}
		if bb.fn.def.sig.ConstMember {
			t = t.WithConst(true)
		}
	}
	return &Identifier{exprBase: exprBase{typ: t}, entity: e}
}

// This is the this pointer of the enclosing member function.
func (bb *BlockBuilder) This() Expr {
	if bb.fn == nil || bb.fn.def.class == nil {
		bb.b.failf(errors.KindInvalidInput, nil, "this used outside a member function")
		return bad()
	}
	return &This{exprBase: exprBase{typ: bb.fn.def.thisType()}}
}

// rvalue applies the lvalue-to-rvalue and array-to-pointer conversions.
// Class objects stay objects.
func (bb *BlockBuilder) rvalue(e Expr) Expr {
	if !e.IsLvalue() {
		return e
	}
	switch t := e.Type().(type) {
	case types.Array:
		return &ArrayDecay{exprBase: exprBase{typ: types.Pointer{Elem: t.Elem}}, Operand: e}
	case types.Class:
		return e
	}
	return &LValueToRValue{exprBase: exprBase{typ: types.Unqualified(e.Type())}, Operand: e}
}

// convert converts e to a prvalue of type to, or for class types to an
// object of class to.
func (bb *BlockBuilder) convert(e Expr, to types.Type) Expr {
	to = types.Unqualified(to)
	if ct, ok := to.(types.Class); ok {
		info, isClass := types.ClassOf(e.Type())
		switch {
		case isClass && info == ct.Info:
			return e
		case isClass && info.DerivesFrom(ct.Info) && e.IsLvalue():
			return &BaseConvert{exprBase: exprBase{typ: ct.WithConst(e.Type().IsConst())}, Operand: e}
		}
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{e.Describe()}, to.String(), e.Type().String()))
		return e
	}
	e = bb.rvalue(e)
	if types.Same(e.Type(), to) {
		return e
	}
	if types.ConversionRank(e.Type(), to) == types.RankNone {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{e.Describe()}, to.String(), e.Type().String()))
		return e
	}
	return &Convert{exprBase: exprBase{typ: to}, Operand: e}
}

// bind checks that e can initialize a reference of type ref.
func (bb *BlockBuilder) bind(e Expr, ref types.Reference) Expr {
	if !e.IsLvalue() {
		bb.b.failf(errors.KindUnsupported, []string{e.Describe()}, "a reference can only be bound to an lvalue")
		return e
	}
	if e.Type().IsConst() && !ref.Ref.IsConst() {
		bb.b.failf(errors.KindTypeMismatch, []string{e.Describe()}, "binding %s to a non-const reference drops const", e.Type())
		return e
	}
	if types.Same(e.Type(), ref.Ref) {
		return e
	}
	from, fok := types.ClassOf(e.Type())
	to, tok := types.ClassOf(ref.Ref)
	if fok && tok && from.DerivesFrom(to) {
		return &BaseConvert{exprBase: exprBase{typ: types.Class{Info: to, Const: e.Type().IsConst()}}, Operand: e}
	}
	bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{e.Describe()}, ref.String(), e.Type().String()))
	return e
}

func isReference(t types.Type) bool {
	_, ok := t.(types.Reference)
	return ok
}

func (bb *BlockBuilder) requireLvalue(e Expr, what string) bool {
	switch {
	case !e.IsLvalue():
		bb.b.failf(errors.KindInvalidInput, []string{e.Describe()}, "%s requires an lvalue", what)
	case e.Type().IsConst():
		bb.b.failf(errors.KindInvalidInput, []string{e.Describe()}, "%s of a const object", what)
	default:
		return true
	}
	return false
}

// arithmetic returns the type two arithmetic operands are converted to.
func arithmetic(a, b types.Type) types.Type {
	_, ad := a.(types.Double)
	_, bd := b.(types.Double)
	if ad || bd {
		return types.Double{}
	}
	return types.Int{}
}

func isArithmeticOp(op value.Op) bool {
	switch op {
	case value.OpAdd, value.OpSub, value.OpMul, value.OpDiv, value.OpMod:
		return true
	}
	return false
}

// Op builds a binary operator: + - * / % == != < <= > >= && ||.
func (bb *BlockBuilder) Op(op string, left, right Expr) Expr {
	if op == "&&" || op == "||" {
		return &Logical{
			exprBase: exprBase{typ: types.Bool{}},
			Left:     bb.convert(left, types.Bool{}),
			Right:    bb.convert(right, types.Bool{}),
			And:      op == "&&",
		}
	}
	vop := value.Op(op)
	if !isArithmeticOp(vop) && !vop.IsComparison() {
		bb.b.failf(errors.KindUnsupported, []string{op}, "unknown operator %q", op)
		return bad()
	}

	l, r := bb.rvalue(left), bb.rvalue(right)
	lt, rt := l.Type(), r.Type()
	lp, rp := types.IsPointer(lt), types.IsPointer(rt)
	mismatch := func() Expr {
		bb.b.failf(errors.KindTypeMismatch, []string{l.Describe() + " " + op + " " + r.Describe()},
			"invalid operands %s and %s", lt, rt)
		return bad()
	}

	switch {
	case lp && rp:
		switch {
		case vop == value.OpSub:
			le, _ := types.Pointee(lt)
			re, _ := types.Pointee(rt)
			if le == nil || re == nil || !types.Same(le, re) {
				return mismatch()
			}
			return &Binary{exprBase: exprBase{typ: types.Int{}}, Op: vop, Left: l, Right: r}
		case vop.IsComparison():
			return &Binary{exprBase: exprBase{typ: types.Bool{}}, Op: vop, Left: l, Right: r}
		}
		return mismatch()
	case lp && (vop == value.OpAdd || vop == value.OpSub) && types.IsIntegral(rt):
		return &Binary{exprBase: exprBase{typ: types.Unqualified(lt)}, Op: vop, Left: l, Right: bb.convert(r, types.Int{})}
	case rp && vop == value.OpAdd && types.IsIntegral(lt):
		return &Binary{exprBase: exprBase{typ: types.Unqualified(rt)}, Op: vop, Left: bb.convert(l, types.Int{}), Right: r}
	case lp || rp:
		return mismatch()
	case !types.IsArithmetic(lt) || !types.IsArithmetic(rt):
		return mismatch()
	}

	common := arithmetic(lt, rt)
	if _, isDouble := common.(types.Double); isDouble && vop == value.OpMod {
		return mismatch()
	}
	typ := common
	if vop.IsComparison() {
		typ = types.Bool{}
	}
	return &Binary{exprBase: exprBase{typ: typ}, Op: vop, Left: bb.convert(l, common), Right: bb.convert(r, common)}
}

// Neg is unary minus.
func (bb *BlockBuilder) Neg(e Expr) Expr {
	e = bb.rvalue(e)
	if !types.IsArithmetic(e.Type()) {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{e.Describe()}, "arithmetic type", e.Type().String()))
		return bad()
	}
	t := arithmetic(e.Type(), types.Int{})
	return &Unary{exprBase: exprBase{typ: t}, Op: '-', Operand: bb.convert(e, t)}
}

// Not is logical negation.
func (bb *BlockBuilder) Not(e Expr) Expr {
	return &Unary{exprBase: exprBase{typ: types.Bool{}}, Op: '!', Operand: bb.convert(e, types.Bool{})}
}

func (bb *BlockBuilder) incDec(e Expr, inc, prefix bool) Expr {
	if !bb.requireLvalue(e, "increment or decrement") {
		return bad()
	}
	if !types.IsScalar(e.Type()) {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{e.Describe()}, "scalar type", e.Type().String()))
		return bad()
	}
	return &IncDec{exprBase: exprBase{typ: types.Unqualified(e.Type())}, Operand: e, Inc: inc, Prefix: prefix}
}

func (bb *BlockBuilder) PreInc(e Expr) Expr  { return bb.incDec(e, true, true) }
func (bb *BlockBuilder) PreDec(e Expr) Expr  { return bb.incDec(e, false, true) }
func (bb *BlockBuilder) PostInc(e Expr) Expr { return bb.incDec(e, true, false) }
func (bb *BlockBuilder) PostDec(e Expr) Expr { return bb.incDec(e, false, false) }

// Deref is *p.
func (bb *BlockBuilder) Deref(p Expr) Expr {
	p = bb.rvalue(p)
	elem, ok := types.Pointee(p.Type())
	if _, isVoid := elem.(types.Void); !ok || isVoid {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{"*" + p.Describe()}, "object pointer", p.Type().String()))
		return bad()
	}
	return &Deref{exprBase: exprBase{typ: elem}, Operand: p}
}

// Addr is &e.
func (bb *BlockBuilder) Addr(e Expr) Expr {
	if !e.IsLvalue() {
		bb.b.failf(errors.KindInvalidInput, []string{"&" + e.Describe()}, "cannot take the address of a value")
		return bad()
	}
	return &AddressOf{exprBase: exprBase{typ: types.Pointer{Elem: e.Type()}}, Operand: e}
}

// Index is p[i].
func (bb *BlockBuilder) Index(p, i Expr) Expr {
	p = bb.rvalue(p)
	elem, ok := types.Pointee(p.Type())
	if !ok {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{p.Describe()}, "array or pointer", p.Type().String()))
		return bad()
	}
	return &Subscript{exprBase: exprBase{typ: elem}, Pointer: p, Index: bb.convert(i, types.Int{})}
}

// Dot is obj.name.
func (bb *BlockBuilder) Dot(obj Expr, name string) Expr {
	info, ok := types.ClassOf(obj.Type())
	if !ok {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{obj.Describe() + "." + name}, "class type", obj.Type().String()))
		return bad()
	}
	cd := bb.b.prog.classes[info]
	r, err := cd.scope.RequiredLookup(name, scope.Options{Own: true})
	if err != nil {
		bb.b.fail(err)
		return bad()
	}
	m, ok := r.Entity.(*MemberVariable)
	if !ok {
		bb.b.failf(errors.KindTypeMismatch, []string{cd.Name(), name}, "%q is not a data member", name)
		return bad()
	}
	t := m.typ
	if obj.Type().IsConst() {
		t = t.WithConst(true)
	}
	return &Member{exprBase: exprBase{typ: t}, Object: obj, Field: m}
}

// Arrow is p->name.
func (bb *BlockBuilder) Arrow(p Expr, name string) Expr {
	return bb.Dot(bb.Deref(p), name)
}

// Cond is c ? t : e.
func (bb *BlockBuilder) Cond(c, t, e Expr) Expr {
	cond := bb.convert(c, types.Bool{})
	if t.IsLvalue() && e.IsLvalue() && types.Same(t.Type(), e.Type()) && t.Type().IsConst() == e.Type().IsConst() {
		return &Conditional{exprBase: exprBase{typ: t.Type()}, Cond: cond, Then: t, Else: e}
	}
	tv, ev := bb.rvalue(t), bb.rvalue(e)
	typ := tv.Type()
	if types.IsArithmetic(tv.Type()) && types.IsArithmetic(ev.Type()) {
		typ = arithmetic(tv.Type(), ev.Type())
	}
	return &Conditional{exprBase: exprBase{typ: typ}, Cond: cond, Then: bb.convert(tv, typ), Else: bb.convert(ev, typ)}
}

// Assign is left = right.
func (bb *BlockBuilder) Assign(left, right Expr) Expr {
	if !bb.requireLvalue(left, "assignment") {
		return bad()
	}
	if _, isArray := left.Type().(types.Array); isArray {
		bb.b.failf(errors.KindUnsupported, []string{left.Describe()}, "arrays cannot be assigned")
		return bad()
	}
	return &Assign{exprBase: exprBase{typ: left.Type()}, Left: left, Right: bb.convert(right, left.Type())}
}

// AssignOp is left op= right for op in + - * / %. The operator may be given
// with or without its trailing "=".
func (bb *BlockBuilder) AssignOp(op string, left, right Expr) Expr {
	if !bb.requireLvalue(left, "compound assignment") {
		return bad()
	}
	op = strings.TrimSuffix(op, "=")
	vop := value.Op(op)
	lt := left.Type()
	var r Expr
	switch {
	case types.IsPointer(lt) && (vop == value.OpAdd || vop == value.OpSub):
		r = bb.convert(right, types.Int{})
	case types.IsArithmetic(lt) && isArithmeticOp(vop):
		common := arithmetic(lt, bb.rvalue(right).Type())
		if _, isDouble := common.(types.Double); isDouble && vop == value.OpMod {
			bb.b.failf(errors.KindTypeMismatch, []string{left.Describe()}, "%% on a double")
			return bad()
		}
		r = bb.convert(right, common)
	default:
		bb.b.failf(errors.KindTypeMismatch, []string{left.Describe()}, "invalid operands to %s=", op)
		return bad()
	}
	return &CompoundAssign{exprBase: exprBase{typ: lt}, Op: vop, Left: left, Right: r}
}

// Call calls a function by unqualified name. Member functions called
// from a member function get the implicit this as receiver.
func (bb *BlockBuilder) Call(name string, args ...Expr) Expr {
	f, err := resolveCall(bb.scope, name, args, false, false)
	if err != nil {
		bb.b.fail(err)
		return bad()
	}
	var recv Expr
	if f.class != nil {
		if bb.fn == nil || bb.fn.def.class == nil || !bb.fn.def.class.info.DerivesFrom(f.class.info) {
			bb.b.failf(errors.KindInvalidInput, bb.path(name), "member %s called without an object", f.Describe())
			return bad()
		}
		recv = bb.receiver(bb.Deref(bb.This()), f)
		if bb.fn.def.sig.ConstMember && !f.sig.ConstMember {
			bb.b.failf(errors.KindNoMatch, bb.path(name), "non-const %s called from a const member function", f.Describe())
			return bad()
		}
	}
	return newCall(f, recv, bb.arguments(f, args))
}

// MethodCall calls a member function on a class object.
func (bb *BlockBuilder) MethodCall(obj Expr, name string, args ...Expr) Expr {
	info, ok := types.ClassOf(obj.Type())
	if !ok {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{obj.Describe() + "." + name}, "class type", obj.Type().String()))
		return bad()
	}
	cd := bb.b.prog.classes[info]
	f, err := resolveCall(cd.scope, name, args, obj.Type().IsConst(), true)
	if err != nil {
		bb.b.fail(err)
		return bad()
	}
	return newCall(f, bb.receiver(obj, f), bb.arguments(f, args))
}

// ArrowCall is p->name(args).
func (bb *BlockBuilder) ArrowCall(p Expr, name string, args ...Expr) Expr {
	return bb.MethodCall(bb.Deref(p), name, args...)
}

// receiver converts obj to the subobject the member function belongs to.
func (bb *BlockBuilder) receiver(obj Expr, f *FunctionDef) Expr {
	info, _ := types.ClassOf(obj.Type())
	if info == f.class.info || !obj.IsLvalue() {
		return obj
	}
	return &BaseConvert{exprBase: exprBase{typ: types.Class{Info: f.class.info, Const: obj.Type().IsConst()}}, Operand: obj}
}

// arguments converts args to f's parameter types.
func (bb *BlockBuilder) arguments(f *FunctionDef, args []Expr) []Expr {
	out := make([]Expr, len(args))
	for i, a := range args {
		if ref, ok := f.sig.Params[i].(types.Reference); ok {
			out[i] = bb.bind(a, ref)
			continue
		}
		out[i] = bb.convert(a, f.sig.Params[i])
	}
	return out
}

// resolveCall looks name up from sc and picks the overload args match best.
// A viable function in a base class that is hidden by a declaration in the
// derived class is reported as hidden.
func resolveCall(sc *scope.Scope, name string, args []Expr, isConst, own bool) (*FunctionDef, error) {
	opts := scope.Options{IsThisConst: isConst, Own: own}
	r := sc.Lookup(name, opts)
	path := []string{name}
	if r.Scope != nil && r.Scope.QualifiedName() != "" {
		path = []string{r.Scope.QualifiedName(), name}
	}
	if r.Kind == scope.Found {
		return nil, errors.New(errors.PhaseLookup, errors.KindTypeMismatch).Path(path...).
			Detail("%q is not a function", name).Build()
	}
	if r.Kind != scope.Overloads {
		_, err := sc.RequiredLookup(name, opts)
		return nil, err
	}

	f, err := pickOverload(r.Functions, args, path)
	if err == nil || !errors.Is(err, errors.PhaseLookup, errors.KindNoMatch) {
		return f, err
	}
	if r.Scope.IsClass() && r.Scope.Base() != nil {
		br := r.Scope.Base().Lookup(name, scope.Options{IsThisConst: isConst, Own: true})
		if br.Kind == scope.Overloads {
			if _, _, ok := scope.BestOverload(br.Functions, exprTypes(args)); ok {
				return nil, errors.New(errors.PhaseLookup, errors.KindHidden).Path(path...).
					Args(types.Names(exprTypes(args))...).
					Detail("%q in %s is hidden by the declaration in %s", name, br.Scope.QualifiedName(), r.Scope.QualifiedName()).
					Build()
			}
		}
	}
	return nil, err
}

func pickOverload(candidates []scope.Function, args []Expr, path []string) (*FunctionDef, error) {
	argTypes := exprTypes(args)
	best, ambiguous, ok := scope.BestOverload(candidates, argTypes)
	switch {
	case !ok:
		return nil, errors.New(errors.PhaseLookup, errors.KindNoMatch).Path(path...).Args(types.Names(argTypes)...).
			Detail("no viable overload among %d candidates", len(candidates)).Build()
	case ambiguous:
		return nil, errors.New(errors.PhaseLookup, errors.KindAmbiguous).Path(path...).Args(types.Names(argTypes)...).
			Detail("call is ambiguous").Build()
	}
	f, ok := best.(*FunctionDef)
	if !ok {
		return nil, errors.Internal(fmt.Sprintf("overload %s is not a function definition", best.Name()), nil)
	}
	return f, nil
}

func exprTypes(args []Expr) []types.Type {
	out := make([]types.Type, len(args))
	for i, a := range args {
		out[i] = a.Type()
	}
	return out
}

// New is new T or new T(args...).
func (bb *BlockBuilder) New(t types.Type, args ...Expr) Expr {
	if isReference(t) {
		bb.b.failf(errors.KindUnsupported, []string{"new " + t.String()}, "cannot allocate a reference")
		return bad()
	}
	n := &NewExpr{exprBase: exprBase{typ: types.Pointer{Elem: t}}, Elem: t}
	target := &DynamicObject{typ: t}
	_, isClass := t.(types.Class)
	if isClass || len(args) > 0 {
		n.Init = bb.initialization(target, t, args)
	}
	return n
}

// NewArray is new T[length].
func (bb *BlockBuilder) NewArray(t types.Type, length Expr) Expr {
	if cd := bb.classDef(t); cd != nil && bb.b.classBuilder(cd).defaultConstructor() == nil {
		bb.b.failf(errors.KindNoMatch, []string{"new " + t.String() + "[]"}, "%s has no default constructor", cd.Name())
	}
	return &NewExpr{
		exprBase: exprBase{typ: types.Pointer{Elem: t}},
		Elem:     t,
		Length:   bb.convert(length, types.Int{}),
		Array:    true,
	}
}

func (bb *BlockBuilder) classDef(t types.Type) *ClassDef {
	info, ok := types.ClassOf(t)
	if !ok {
		return nil
	}
	return bb.b.prog.classes[info]
}

// Statements.

// Expr adds an expression statement.
func (bb *BlockBuilder) Expr(e Expr) {
	bb.add(&ExprStmt{Expr: e})
}

// Null adds an empty statement.
func (bb *BlockBuilder) Null() {
	bb.add(&Null{})
}

// Block adds a nested block.
func (bb *BlockBuilder) Block(body func(*BlockBuilder)) {
	bb.add(bb.build("", body, false))
}

// If adds an if statement; els may be nil.
func (bb *BlockBuilder) If(cond Expr, then, els func(*BlockBuilder)) {
	st := &If{Cond: bb.convert(cond, types.Bool{}), Then: bb.build("", then, false)}
	if els != nil {
		st.Else = bb.build("", els, false)
	}
	bb.add(st)
}

// While adds a while loop.
func (bb *BlockBuilder) While(cond Expr, body func(*BlockBuilder)) {
	bb.add(&While{Cond: bb.convert(cond, types.Bool{}), Body: bb.build("", body, true)})
}

// DoWhile adds a do-while loop.
func (bb *BlockBuilder) DoWhile(body func(*BlockBuilder), cond Expr) {
	bb.add(&While{Cond: bb.convert(cond, types.Bool{}), Body: bb.build("", body, true), Do: true})
}

// For adds a for loop. The callbacks share the loop's scope, so variables
// declared by init are visible in cond, post and body. Any callback may be
// nil.
func (bb *BlockBuilder) For(init func(*BlockBuilder), cond, post func(*BlockBuilder) Expr, body func(*BlockBuilder)) {
	loop := bb.child("")
	st := &For{}
	if init != nil {
		init(loop)
		switch stmts := *loop.stmts; len(stmts) {
		case 0:
		case 1:
			st.Init = stmts[0]
		default:
			st.Init = &Block{Stmts: stmts, inline: true}
		}
	}
	if cond != nil {
		st.Cond = loop.convert(cond(loop), types.Bool{})
	}
	if post != nil {
		st.Post = post(loop)
	}
	st.Body = loop.build("", body, true)
	bb.add(st)
}

// Break adds a break statement.
func (bb *BlockBuilder) Break() {
	if !bb.inLoop {
		bb.b.failf(errors.KindInvalidInput, nil, "break outside a loop")
		return
	}
	bb.add(&Break{})
}

// Continue adds a continue statement.
func (bb *BlockBuilder) Continue() {
	if !bb.inLoop {
		bb.b.failf(errors.KindInvalidInput, nil, "continue outside a loop")
		return
	}
	bb.add(&Continue{})
}

// Return adds a return statement with an optional value.
func (bb *BlockBuilder) Return(e ...Expr) {
	if bb.fn == nil {
		bb.b.failf(errors.KindInvalidInput, nil, "return outside a function")
		return
	}
	def := bb.fn.def
	st := &Return{fn: def}
	_, void := def.sig.Return.(types.Void)
	switch {
	case len(e) > 1:
		bb.b.failf(errors.KindInvalidInput, []string{def.Describe()}, "return takes at most one value")
		return
	case len(e) == 0 && !void:
		bb.b.failf(errors.KindInvalidInput, []string{def.Describe()}, "return without a value in a function returning %s", def.sig.Return)
		return
	case len(e) == 1 && void:
		bb.b.failf(errors.KindInvalidInput, []string{def.Describe()}, "return with a value in a void function")
		return
	case len(e) == 1:
		if ref, ok := def.sig.Return.(types.Reference); ok {
			st.Expr = bb.bind(e[0], ref)
		} else {
			st.Expr = bb.convert(e[0], def.sig.Return)
		}
	}
	bb.add(st)
}

func (bb *BlockBuilder) deleteStmt(p Expr, array bool) {
	p = bb.rvalue(p)
	if elem, ok := types.Pointee(p.Type()); !ok || elem == nil {
		bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{p.Describe()}, "pointer", p.Type().String()))
		return
	}
	bb.Expr(&Delete{exprBase: exprBase{typ: types.Void{}}, Operand: p, Array: array})
}

// Delete adds delete p.
func (bb *BlockBuilder) Delete(p Expr) { bb.deleteStmt(p, false) }

// DeleteArray adds delete[] p.
func (bb *BlockBuilder) DeleteArray(p Expr) { bb.deleteStmt(p, true) }

// Cout adds cout << items.
func (bb *BlockBuilder) Cout(items ...Expr) {
	out := make([]Expr, len(items))
	for i, it := range items {
		out[i] = bb.rvalue(it)
		if !types.IsScalar(out[i].Type()) {
			bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{it.Describe()}, "printable value", it.Type().String()))
		}
	}
	bb.add(&Output{Items: out})
}

// Cin adds cin >> targets.
func (bb *BlockBuilder) Cin(targets ...Expr) {
	for _, t := range targets {
		if !bb.requireLvalue(t, "cin") {
			return
		}
		if !types.IsArithmetic(t.Type()) {
			bb.b.fail(errors.TypeMismatch(errors.PhaseBuild, []string{t.Describe()}, "arithmetic object", t.Type().String()))
			return
		}
	}
	bb.add(&Input{Targets: targets})
}

// Assert adds assert(cond).
func (bb *BlockBuilder) Assert(cond Expr) {
	bb.add(&Assert{Cond: bb.convert(cond, types.Bool{})})
}
