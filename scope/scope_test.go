package scope

import (
	"testing"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/types"
)

type variable struct {
	name string
	typ  types.Type
}

func (v *variable) Name() string { return v.name }

type function struct {
	name string
	sig  types.Function
}

func (f *function) Name() string              { return f.name }
func (f *function) Signature() types.Function { return f.sig }

func fn(name string, constMember bool, params ...types.Type) *function {
	return &function{name: name, sig: types.Function{Return: types.Void{}, Params: params, ConstMember: constMember}}
}

func TestDeclare_Redeclaration(t *testing.T) {
	s := New("", nil)
	if err := s.Declare(&variable{name: "x", typ: types.Int{}}); err != nil {
		t.Fatalf("first declaration: %v", err)
	}
	err := s.Declare(&variable{name: "x", typ: types.Double{}})
	if !errors.Is(err, errors.PhaseBuild, errors.KindRedeclared) {
		t.Fatalf("expected redeclared error, got %v", err)
	}

	if err := s.Declare(fn("f", false, types.Int{})); err != nil {
		t.Fatal(err)
	}
	if err := s.Declare(fn("f", false, types.Double{})); err != nil {
		t.Fatalf("overload rejected: %v", err)
	}
	if err := s.Declare(fn("f", false, types.Int{})); err == nil {
		t.Fatal("duplicate signature accepted")
	}
	if err := s.Declare(fn("x", false)); err == nil {
		t.Fatal("function declared over a variable")
	}
}

func TestLookup_Lexical(t *testing.T) {
	global := New("", nil)
	outer := &variable{name: "x", typ: types.Int{}}
	_ = global.Declare(outer)
	block := New("", global)

	r := block.Lookup("x", Options{})
	if r.Kind != Found || r.Entity != outer {
		t.Fatalf("expected outer x, got %v", r.Kind)
	}

	inner := &variable{name: "x", typ: types.Double{}}
	_ = block.Declare(inner)
	if r := block.Lookup("x", Options{}); r.Entity != inner {
		t.Fatal("inner declaration does not shadow outer")
	}
	if r := block.Lookup("y", Options{}); r.Kind != NotFound {
		t.Fatalf("expected not found, got %v", r.Kind)
	}
	if r := New("", block).Lookup("x", Options{Own: true}); r.Kind != NotFound {
		t.Fatal("own lookup climbed to the parent")
	}
}

func TestLookup_Overloads(t *testing.T) {
	s := New("", nil)
	fi := fn("f", false, types.Int{})
	fd := fn("f", false, types.Double{})
	_ = s.Declare(fi)
	_ = s.Declare(fd)

	tests := []struct {
		name   string
		params []types.Type
		kind   ResultKind
		want   Function
		count  int
	}{
		{"all", nil, Overloads, nil, 2},
		{"int", []types.Type{types.Int{}}, Overloads, fi, 1},
		{"const int", []types.Type{types.Int{Const: true}}, Overloads, fi, 1},
		{"double", []types.Type{types.Double{}}, Overloads, fd, 1},
		{"char", []types.Type{types.Char{}}, NoMatch, nil, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := s.Lookup("f", Options{ParamTypes: tc.params})
			if r.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", r.Kind, tc.kind)
			}
			if len(r.Functions) != tc.count {
				t.Fatalf("got %d functions, want %d", len(r.Functions), tc.count)
			}
			if tc.want != nil && r.Functions[0] != tc.want {
				t.Fatal("wrong overload selected")
			}
		})
	}
}

func TestLookup_ConstMembers(t *testing.T) {
	c := NewClass("A", New("", nil), nil)
	get := fn("get", false)
	getConst := fn("get", true)
	_ = c.Declare(get)
	_ = c.Declare(getConst)

	r := c.Lookup("get", Options{ParamTypes: []types.Type{}, IsThisConst: true})
	if r.Kind != Overloads || r.Functions[0] != getConst {
		t.Fatal("const receiver must select the const member")
	}
	r = c.Lookup("get", Options{ParamTypes: []types.Type{}})
	if r.Kind != Overloads || r.Functions[0] != get {
		t.Fatalf("non-const receiver should prefer the non-const member, got %v", r.Kind)
	}

	onlyMut := NewClass("B", nil, nil)
	_ = onlyMut.Declare(fn("set", false))
	if r := onlyMut.Lookup("set", Options{IsThisConst: true}); r.Kind != NoMatch {
		t.Fatalf("non-const member callable on const receiver: %v", r.Kind)
	}
}

func TestLookup_NameHiding(t *testing.T) {
	global := New("", nil)
	base := NewClass("Base", global, nil)
	derived := NewClass("Derived", global, base)

	baseF := fn("f", false, types.Int{})
	_ = base.Declare(baseF)
	_ = base.Declare(fn("g", false))
	_ = derived.Declare(fn("f", false, types.Double{}))

	r := derived.Lookup("f", Options{ParamTypes: []types.Type{types.Int{}}})
	if r.Kind != Hidden {
		t.Fatalf("expected hidden, got %v", r.Kind)
	}
	if len(r.Functions) != 1 || r.Functions[0] != baseF {
		t.Fatal("hidden result should name the base candidate")
	}

	if r := derived.Lookup("f", Options{ParamTypes: []types.Type{types.Double{}}}); r.Kind != Overloads {
		t.Fatalf("derived f(double) not found: %v", r.Kind)
	}
	if r := derived.Lookup("g", Options{}); r.Kind != Overloads {
		t.Fatalf("base member g not inherited: %v", r.Kind)
	}
	if r := derived.Lookup("f", Options{ParamTypes: []types.Type{types.Char{}}}); r.Kind != NoMatch {
		t.Fatalf("expected no match, got %v", r.Kind)
	}

	_, err := derived.RequiredLookup("f", Options{ParamTypes: []types.Type{types.Int{}}})
	if !errors.Is(err, errors.PhaseLookup, errors.KindHidden) {
		t.Fatalf("expected hidden error, got %v", err)
	}
}

func TestRequiredLookup_Errors(t *testing.T) {
	s := New("ns", nil)
	_ = s.Declare(fn("f", false, types.Int{}))

	if _, err := s.RequiredLookup("f", Options{ParamTypes: []types.Type{types.Int{}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := s.RequiredLookup("missing", Options{})
	if !errors.Is(err, errors.PhaseLookup, errors.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_, err = s.RequiredLookup("f", Options{ParamTypes: []types.Type{types.Bool{}}})
	if !errors.Is(err, errors.PhaseLookup, errors.KindNoMatch) {
		t.Fatalf("expected no match, got %v", err)
	}
}

func TestBestOverload(t *testing.T) {
	fi := fn("f", false, types.Int{})
	fd := fn("f", false, types.Double{})
	fp := fn("f", false, types.Pointer{Elem: types.Int{}})
	cands := []Function{fi, fd, fp}

	tests := []struct {
		name      string
		args      []types.Type
		want      Function
		ambiguous bool
		ok        bool
	}{
		{"exact int", []types.Type{types.Int{}}, fi, false, true},
		{"exact double", []types.Type{types.Double{}}, fd, false, true},
		{"char promotes to int", []types.Type{types.Char{}}, fi, false, true},
		{"nullptr", []types.Type{types.Null{}}, fp, false, true},
		{"array decays", []types.Type{types.Array{Elem: types.Int{}, Length: 3}}, fp, false, true},
		{"arity", []types.Type{types.Int{}, types.Int{}}, nil, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, amb, ok := BestOverload(cands, tc.args)
			if ok != tc.ok || amb != tc.ambiguous {
				t.Fatalf("ok=%v ambiguous=%v, want ok=%v ambiguous=%v", ok, amb, tc.ok, tc.ambiguous)
			}
			if ok && got != tc.want {
				t.Fatalf("selected %v", got.Signature())
			}
		})
	}

	two := []Function{fn("g", false, types.Int{}, types.Double{}), fn("g", false, types.Double{}, types.Int{})}
	if _, amb, ok := BestOverload(two, []types.Type{types.Int{}, types.Int{}}); !ok || !amb {
		t.Fatal("crossed conversions should be ambiguous")
	}
}

func TestQualifiedName(t *testing.T) {
	global := New("", nil)
	ns := New("ns", global)
	c := NewClass("A", ns, nil)
	if got := c.QualifiedName(); got != "ns::A" {
		t.Fatalf("QualifiedName = %q", got)
	}
}
