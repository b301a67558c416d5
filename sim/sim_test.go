package sim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/types"
)

type recorder struct {
	events []Event
}

func (r *recorder) OnEvent(e Event) { r.events = append(r.events, e) }

func (r *recorder) count(t EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) diagnostics() []Event {
	var out []Event
	for _, e := range r.events {
		if e.IsDiagnostic() {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) has(sev Severity, substr string) bool {
	for _, e := range r.events {
		if e.Severity == sev && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) strings() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.String()
	}
	return out
}

func build(t *testing.T, fn func(b *Builder)) *Program {
	t.Helper()
	b := NewBuilder()
	fn(b)
	p, err := b.Program()
	if err != nil {
		t.Fatalf("Program: %v", err)
	}
	return p
}

func start(t *testing.T, p *Program, opts Options) (*Simulation, *recorder) {
	t.Helper()
	s, err := New(p, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := &recorder{}
	s.Subscribe(rec)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s, rec
}

func runToEnd(t *testing.T, p *Program, opts Options) (*Simulation, *recorder) {
	t.Helper()
	s, rec := start(t, p, opts)
	if err := s.StepForward(1_000_000); err != nil {
		t.Fatalf("StepForward: %v", err)
	}
	if !s.AtEnd() {
		t.Fatal("program did not reach the end")
	}
	return s, rec
}

func mainOnly(body func(m *FunctionBuilder)) func(b *Builder) {
	return func(b *Builder) {
		m := b.Function("main", types.Int{})
		body(m)
	}
}

func TestStartPausesAtMain(t *testing.T) {
	p := build(t, mainOnly(func(m *FunctionBuilder) {
		m.Return(m.Int(2))
	}))
	s, rec := start(t, p, Options{})

	if s.StepsTaken() != 0 {
		t.Errorf("StepsTaken after Start = %d, want 0", s.StepsTaken())
	}
	if s.AtEnd() {
		t.Fatal("simulation ended during Start")
	}
	if f := s.Top().Frame(); f == nil || f.Name() != "main()" {
		t.Errorf("top frame = %v, want main()", f)
	}
	if rec.count(EventStarted) != 1 {
		t.Errorf("started events = %d, want 1", rec.count(EventStarted))
	}

	if err := s.StepForward(100); err != nil {
		t.Fatal(err)
	}
	if !s.AtEnd() {
		t.Fatal("not at end")
	}
	if got := s.ExitCode().Int(); got != 2 {
		t.Errorf("exit code = %d, want 2", got)
	}
	if rec.count(EventAtEnded) != 1 {
		t.Errorf("atEnded events = %d, want 1", rec.count(EventAtEnded))
	}
	if len(s.Stack()) != 0 {
		t.Errorf("stack not empty at end: %v", s.Stack())
	}
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name  string
		input string
		build func(b *Builder)
		exit  int64
		out   string
	}{
		{
			name: "arithmetic",
			build: mainOnly(func(m *FunctionBuilder) {
				m.Declare("x", types.Int{}, m.Int(7))
				m.Declare("y", types.Double{}, m.Op("/", m.Name("x"), m.Double(2)))
				m.Cout(m.Name("y"), m.Str(" "), m.Op("%", m.Name("x"), m.Int(4)))
				m.Return(m.Op("*", m.Name("x"), m.Int(3)))
			}),
			exit: 21,
			out:  "3.5 3",
		},
		{
			name: "static initialization",
			build: func(b *Builder) {
				b.Declare("g", types.Int{}, b.Int(5))
				m := b.Function("main", types.Int{})
				m.Return(m.Op("*", m.Name("g"), m.Int(2)))
			},
			exit: 10,
		},
		{
			name: "reference parameters",
			build: func(b *Builder) {
				ref := types.Reference{Ref: types.Int{}}
				sw := b.Function("swap", types.Void{}, Param{"a", ref}, Param{"b", ref})
				sw.Declare("t", types.Int{}, sw.Name("a"))
				sw.Expr(sw.Assign(sw.Name("a"), sw.Name("b")))
				sw.Expr(sw.Assign(sw.Name("b"), sw.Name("t")))

				m := b.Function("main", types.Int{})
				m.Declare("x", types.Int{}, m.Int(1))
				m.Declare("y", types.Int{}, m.Int(2))
				m.Expr(m.Call("swap", m.Name("x"), m.Name("y")))
				m.Return(m.Op("+", m.Op("*", m.Name("x"), m.Int(10)), m.Name("y")))
			},
			exit: 21,
		},
		{
			name: "recursion",
			build: func(b *Builder) {
				f := b.Function("fact", types.Int{}, Param{"n", types.Int{}})
				f.If(f.Op("<=", f.Name("n"), f.Int(1)), func(t *BlockBuilder) {
					t.Return(t.Int(1))
				}, nil)
				f.Return(f.Op("*", f.Name("n"), f.Call("fact", f.Op("-", f.Name("n"), f.Int(1)))))

				m := b.Function("main", types.Int{})
				m.Return(m.Call("fact", m.Int(5)))
			},
			exit: 120,
		},
		{
			name: "loops",
			build: mainOnly(func(m *FunctionBuilder) {
				m.Declare("s", types.Int{}, m.Int(0))
				m.For(func(i *BlockBuilder) {
					i.Declare("i", types.Int{}, i.Int(0))
				}, func(c *BlockBuilder) Expr {
					return c.Op("<", c.Name("i"), c.Int(10))
				}, func(c *BlockBuilder) Expr {
					return c.PreInc(c.Name("i"))
				}, func(body *BlockBuilder) {
					body.If(body.Op("==", body.Name("i"), body.Int(3)), func(t *BlockBuilder) {
						t.Continue()
					}, nil)
					body.If(body.Op("==", body.Name("i"), body.Int(6)), func(t *BlockBuilder) {
						t.Break()
					}, nil)
					body.Expr(body.AssignOp("+=", body.Name("s"), body.Name("i")))
				})
				m.Declare("n", types.Int{}, m.Int(0))
				m.While(m.Op("<", m.Name("n"), m.Int(4)), func(body *BlockBuilder) {
					body.Expr(body.PostInc(body.Name("n")))
				})
				m.DoWhile(func(body *BlockBuilder) {
					body.Expr(body.PostDec(body.Name("n")))
				}, m.Op(">", m.Name("n"), m.Int(10)))
				// 0+1+2+4+5 = 12, n = 3
				m.Return(m.Op("+", m.Op("*", m.Name("s"), m.Int(10)), m.Name("n")))
			}),
			exit: 123,
		},
		{
			name:  "console",
			input: " 3\n4 x",
			build: mainOnly(func(m *FunctionBuilder) {
				m.Declare("a", types.Int{})
				m.Declare("b", types.Int{})
				m.Declare("c", types.Char{})
				m.Cin(m.Name("a"), m.Name("b"), m.Name("c"))
				m.Cout(m.Op("+", m.Name("a"), m.Name("b")), m.Char(' '), m.Name("c"), m.Str("\n"))
				m.Return(m.Int(0))
			}),
			out: "7 x\n",
		},
		{
			name: "arrays and pointers",
			build: mainOnly(func(m *FunctionBuilder) {
				m.Declare("a", types.Array{Elem: types.Int{}, Length: 3})
				m.Expr(m.Assign(m.Index(m.Name("a"), m.Int(0)), m.Int(4)))
				m.Expr(m.Assign(m.Index(m.Name("a"), m.Int(1)), m.Int(5)))
				m.Expr(m.Assign(m.Index(m.Name("a"), m.Int(2)), m.Int(6)))
				m.Declare("p", types.Pointer{Elem: types.Int{}}, m.Name("a"))
				m.Expr(m.AssignOp("+=", m.Name("p"), m.Int(2)))
				m.Declare("d", types.Int{}, m.Op("-", m.Name("p"), m.Name("a")))
				m.Return(m.Op("+", m.Deref(m.Name("p")), m.Name("d")))
			}),
			exit: 8,
		},
		{
			name: "conditional and logical",
			build: mainOnly(func(m *FunctionBuilder) {
				m.Declare("p", types.Pointer{Elem: types.Int{}}, m.Nullptr())
				m.Declare("ok", types.Bool{}, m.Op("&&", m.Op("!=", m.Name("p"), m.Nullptr()), m.Op(">", m.Deref(m.Name("p")), m.Int(0))))
				m.Return(m.Cond(m.Name("ok"), m.Int(1), m.Int(9)))
			}),
			exit: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := build(t, tt.build)
			s, rec := runToEnd(t, p, Options{Input: tt.input})
			if d := rec.diagnostics(); len(d) != 0 {
				t.Fatalf("unexpected diagnostics: %v", d)
			}
			if got := s.ExitCode().Int(); got != tt.exit {
				t.Errorf("exit code = %d, want %d", got, tt.exit)
			}
			if got := s.Console().Output(); got != tt.out {
				t.Errorf("output = %q, want %q", got, tt.out)
			}
		})
	}
}

func TestVirtualDispatch(t *testing.T) {
	tests := []struct {
		name    string
		virtual bool
		want    int64
	}{
		{"virtual", true, 2},
		{"non-virtual", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := build(t, func(b *Builder) {
				base := b.Class("Base", nil)
				base.Destructor(true)
				id := base.Method("id", types.Int{}, MethodOptions{Virtual: tt.virtual, Const: true})
				id.Return(id.Int(1))

				derived := b.Class("Derived", base)
				did := derived.Method("id", types.Int{}, MethodOptions{Const: true})
				did.Return(did.Int(2))

				m := b.Function("main", types.Int{})
				m.Declare("p", base.Pointer(), m.New(derived.Type()))
				m.Declare("r", types.Int{}, m.ArrowCall(m.Name("p"), "id"))
				m.Delete(m.Name("p"))
				m.Return(m.Name("r"))
			})
			s, rec := runToEnd(t, p, Options{})
			if d := rec.diagnostics(); len(d) != 0 {
				t.Fatalf("unexpected diagnostics: %v", d)
			}
			if got := s.ExitCode().Int(); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConstructionOrder(t *testing.T) {
	p := build(t, func(b *Builder) {
		base := b.Class("Base", nil)
		base.Field("x", types.Int{})
		bc := base.Constructor(Param{"v", types.Int{}})
		bc.InitMember("x", bc.Name("v"))
		bc.Cout(bc.Str("B"))
		bd := base.Destructor(true)
		bd.Cout(bd.Str("~B"))

		derived := b.Class("Derived", base)
		dc := derived.Constructor(Param{"v", types.Int{}})
		dc.InitBase(dc.Name("v"))
		dc.Cout(dc.Str("D"))
		dd := derived.Destructor(false)
		dd.Cout(dd.Str("~D"))

		m := b.Function("main", types.Int{})
		m.Declare("p", base.Pointer(), m.New(derived.Type(), m.Int(7)))
		m.Cout(m.Arrow(m.Name("p"), "x"))
		m.Delete(m.Name("p"))
		m.Block(func(inner *BlockBuilder) {
			inner.Declare("local", derived.Type(), inner.Int(1))
			inner.Cout(inner.Str("|"))
		})
		m.Return(m.Int(0))
	})
	s, rec := runToEnd(t, p, Options{})
	if d := rec.diagnostics(); len(d) != 0 {
		t.Fatalf("unexpected diagnostics: %v", d)
	}
	if got, want := s.Console().Output(), "BD7~D~BBD|~D~B"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestDiagnostics(t *testing.T) {
	intPtr := types.Pointer{Elem: types.Int{}}
	tests := []struct {
		name   string
		body   func(m *FunctionBuilder)
		sev    Severity
		substr string
	}{
		{
			name: "uninitialized read",
			body: func(m *FunctionBuilder) {
				m.Declare("x", types.Int{})
				m.Declare("y", types.Int{}, m.Name("x"))
			},
			sev:    SeverityUndefinedBehavior,
			substr: "uninitialized value of x",
		},
		{
			name: "use after delete",
			body: func(m *FunctionBuilder) {
				m.Declare("p", intPtr, m.New(types.Int{}, m.Int(3)))
				m.Delete(m.Name("p"))
				m.Declare("y", types.Int{}, m.Deref(m.Name("p")))
			},
			sev:    SeverityUndefinedBehavior,
			substr: "a dead object",
		},
		{
			name: "out of bounds",
			body: func(m *FunctionBuilder) {
				m.Declare("a", types.Array{Elem: types.Int{}, Length: 3})
				m.Expr(m.Assign(m.Index(m.Name("a"), m.Int(3)), m.Int(1)))
			},
			sev:    SeverityUndefinedBehavior,
			substr: "accesses index 3",
		},
		{
			name: "null dereference",
			body: func(m *FunctionBuilder) {
				m.Declare("p", intPtr, m.Nullptr())
				m.Expr(m.Assign(m.Deref(m.Name("p")), m.Int(1)))
			},
			sev:    SeverityCrash,
			substr: "null pointer",
		},
		{
			name: "double delete",
			body: func(m *FunctionBuilder) {
				m.Declare("p", intPtr, m.New(types.Int{}))
				m.Delete(m.Name("p"))
				m.Delete(m.Name("p"))
			},
			sev:    SeverityUndefinedBehavior,
			substr: "already deleted",
		},
		{
			name: "delete of array",
			body: func(m *FunctionBuilder) {
				m.Declare("p", intPtr, m.NewArray(types.Int{}, m.Int(3)))
				m.Delete(m.Name("p"))
			},
			sev:    SeverityUndefinedBehavior,
			substr: "allocated with new[]",
		},
		{
			name: "delete of local",
			body: func(m *FunctionBuilder) {
				m.Declare("x", types.Int{}, m.Int(1))
				m.Delete(m.Addr(m.Name("x")))
			},
			sev:    SeverityUndefinedBehavior,
			substr: "not allocated with new",
		},
		{
			name: "unrelated pointer difference",
			body: func(m *FunctionBuilder) {
				m.Declare("a", types.Array{Elem: types.Int{}, Length: 2})
				m.Declare("b", types.Array{Elem: types.Int{}, Length: 2})
				m.Declare("d", types.Int{}, m.Op("-", m.Addr(m.Index(m.Name("a"), m.Int(0))), m.Addr(m.Index(m.Name("b"), m.Int(0)))))
			},
			sev:    SeverityUndefinedBehavior,
			substr: "subtracts pointers",
		},
		{
			name: "unrelated pointer comparison",
			body: func(m *FunctionBuilder) {
				m.Declare("x", types.Int{}, m.Int(1))
				m.Declare("y", types.Int{}, m.Int(2))
				m.Declare("c", types.Bool{}, m.Op("<", m.Addr(m.Name("x")), m.Addr(m.Name("y"))))
			},
			sev:    SeverityUnspecifiedBehavior,
			substr: "unrelated objects",
		},
		{
			name: "failed assertion",
			body: func(m *FunctionBuilder) {
				m.Assert(m.Op("==", m.Int(1), m.Int(2)))
			},
			sev:    SeverityAssertionFailure,
			substr: "failed",
		},
		{
			name: "leak at block end",
			body: func(m *FunctionBuilder) {
				m.Block(func(inner *BlockBuilder) {
					inner.Declare("p", intPtr, inner.New(types.Int{}, inner.Int(1)))
				})
			},
			sev:    SeverityMemoryLeak,
			substr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := build(t, mainOnly(func(m *FunctionBuilder) {
				tt.body(m)
				m.Return(m.Int(0))
			}))
			s, rec := runToEnd(t, p, Options{})
			if !rec.has(tt.sev, tt.substr) {
				t.Fatalf("no %s diagnostic containing %q in %v", tt.sev, tt.substr, rec.diagnostics())
			}
			if s.Fault() != nil {
				t.Errorf("diagnostic made the run terminal: %v", s.Fault())
			}
		})
	}
}

func TestLeakTracking(t *testing.T) {
	intPtr := types.Pointer{Elem: types.Int{}}
	p := build(t, mainOnly(func(m *FunctionBuilder) {
		m.Declare("p", intPtr, m.New(types.Int{}, m.Int(3)))
		m.Expr(m.Assign(m.Name("p"), m.Op("-", m.Name("p"), m.Int(1))))
		m.Declare("x", types.Int{}, m.Int(0))
		m.Expr(m.Assign(m.Name("p"), m.Op("+", m.Name("p"), m.Int(1))))
		m.Delete(m.Name("p"))
		m.Return(m.Name("x"))
	}))
	_, rec := runToEnd(t, p, Options{})

	var leaked, unleaked int
	for i, e := range rec.events {
		switch e.Type {
		case EventLeaked:
			leaked++
			if e.Severity != SeverityMemoryLeak {
				t.Errorf("leaked event severity = %s", e.Severity)
			}
			if unleaked != 0 {
				t.Errorf("event %d: leaked after unleaked", i)
			}
		case EventUnleaked:
			unleaked++
		}
	}
	if leaked != 1 || unleaked != 1 {
		t.Errorf("leaked = %d, unleaked = %d, want 1 and 1", leaked, unleaked)
	}
	if n := rec.count(EventDeallocated); n < 1 {
		t.Errorf("heap object was never deallocated")
	}
}

func TestLeakMarksObject(t *testing.T) {
	p := build(t, func(b *Builder) {
		f := b.Function("f", types.Void{})
		f.Declare("q", types.Pointer{Elem: types.Int{}}, f.New(types.Int{}, f.Int(1)))

		m := b.Function("main", types.Int{})
		m.Expr(m.Call("f"))
		m.Return(m.Int(0))
	})
	s, rec := runToEnd(t, p, Options{})
	if rec.count(EventLeaked) != 1 {
		t.Fatalf("leaked events = %d, want 1", rec.count(EventLeaked))
	}
	objs := s.Memory().Heap().Objects()
	if len(objs) != 1 || !objs[0].IsLeaked() {
		t.Errorf("heap = %v, want one leaked object", objs)
	}
}

func loopProgram(t *testing.T) *Program {
	return build(t, mainOnly(func(m *FunctionBuilder) {
		m.Declare("s", types.Int{}, m.Int(0))
		m.For(func(i *BlockBuilder) {
			i.Declare("i", types.Int{}, i.Int(0))
		}, func(c *BlockBuilder) Expr {
			return c.Op("<", c.Name("i"), c.Int(5))
		}, func(c *BlockBuilder) Expr {
			return c.PostInc(c.Name("i"))
		}, func(body *BlockBuilder) {
			body.Expr(body.AssignOp("+=", body.Name("s"), body.Op("%", body.Rand(), body.Int(100))))
			body.Cout(body.Name("s"), body.Char(' '))
		})
		m.Return(m.Name("s"))
	}))
}

type snapshot struct {
	steps int
	out   string
	top   string
	depth int
}

func snap(s *Simulation) snapshot {
	top := ""
	if in := s.Top(); in != nil {
		top = in.Model().Describe()
	}
	return snapshot{steps: s.StepsTaken(), out: s.Console().Output(), top: top, depth: len(s.Stack())}
}

func TestStepBackward(t *testing.T) {
	p := loopProgram(t)
	s, rec := start(t, p, Options{Seed: 3})

	if err := s.StepForward(40); err != nil {
		t.Fatal(err)
	}
	before := snap(s)
	if err := s.StepForward(9); err != nil {
		t.Fatal(err)
	}
	if snap(s) == before {
		t.Fatal("stepping did not change the state")
	}

	mark := len(rec.events)
	if err := s.StepBackward(9); err != nil {
		t.Fatal(err)
	}
	if got := snap(s); got != before {
		t.Errorf("after StepBackward = %+v, want %+v", got, before)
	}
	replayed := rec.events[mark:]
	if len(replayed) != 2 || replayed[0].Type != EventCleared || replayed[1].Type != EventStarted {
		t.Errorf("replay emitted %v, want cleared then started", replayed)
	}

	if err := s.StepBackward(1000); err != nil {
		t.Fatal(err)
	}
	if s.StepsTaken() != 0 {
		t.Errorf("StepsTaken = %d, want 0", s.StepsTaken())
	}
}

func TestDeterminism(t *testing.T) {
	p := loopProgram(t)
	_, a := runToEnd(t, p, Options{Seed: 42})
	s, b := runToEnd(t, p, Options{Seed: 42})

	as, bs := a.strings(), b.strings()
	if len(as) != len(bs) {
		t.Fatalf("event counts differ: %d vs %d", len(as), len(bs))
	}
	for i := range as {
		if as[i] != bs[i] {
			t.Fatalf("event %d differs:\n%s\n%s", i, as[i], bs[i])
		}
	}

	first := s.Console().Output()
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.StepForward(1_000_000); err != nil {
		t.Fatal(err)
	}
	if got := s.Console().Output(); got != first {
		t.Errorf("restart output = %q, want %q", got, first)
	}
}

func callProgram(t *testing.T) *Program {
	return build(t, func(b *Builder) {
		add := b.Function("add", types.Int{}, Param{"a", types.Int{}}, Param{"b", types.Int{}})
		add.Declare("c", types.Int{}, add.Op("+", add.Name("a"), add.Name("b")))
		add.Return(add.Name("c"))

		m := b.Function("main", types.Int{})
		m.Declare("x", types.Int{}, m.Call("add", m.Int(1), m.Int(2)))
		m.Declare("y", types.Int{}, m.Name("x"))
		m.Return(m.Name("y"))
	})
}

func stackHas(s *Simulation, match func(*Instance) bool) bool {
	for _, in := range s.Stack() {
		if match(in) {
			return true
		}
	}
	return false
}

func declares(name string) func(*Instance) bool {
	return func(in *Instance) bool {
		d, ok := in.Model().(*Declaration)
		return ok && d.Entity().Name() == name
	}
}

func TestStepOver(t *testing.T) {
	s, _ := start(t, callProgram(t), Options{})
	if !stackHas(s, declares("x")) {
		t.Fatal("start did not stop in the first statement")
	}
	if err := s.StepOver(); err != nil {
		t.Fatal(err)
	}
	if stackHas(s, declares("x")) {
		t.Error("statement still on the stack after StepOver")
	}
	x, ok := s.Top().Frame().Object(0)
	if !ok || x.ReadValue().Int() != 3 {
		t.Errorf("x = %v, want 3", x)
	}
}

func TestStepOut(t *testing.T) {
	s, _ := start(t, callProgram(t), Options{})
	inAdd := func(in *Instance) bool {
		f, ok := in.Model().(*FunctionDef)
		return ok && f.Name() == "add"
	}
	for !stackHas(s, inAdd) {
		if err := s.StepForward(1); err != nil {
			t.Fatal(err)
		}
		if s.AtEnd() {
			t.Fatal("never entered add")
		}
	}
	if err := s.StepOut(); err != nil {
		t.Fatal(err)
	}
	if stackHas(s, inAdd) {
		t.Error("add still on the stack after StepOut")
	}
	if f := s.Top().Frame(); f == nil || f.Name() != "main()" {
		t.Errorf("top frame = %v, want main()", f)
	}
}

func TestAutoRun(t *testing.T) {
	t.Run("finish", func(t *testing.T) {
		s, _ := start(t, loopProgram(t), Options{Seed: 1})
		finished := false
		err := s.AutoRun(context.Background(), AutoRunOptions{
			OnFinish: func(*Simulation) { finished = true },
		})
		if err != nil {
			t.Fatal(err)
		}
		if !finished || !s.AtEnd() {
			t.Errorf("finished = %v, AtEnd = %v", finished, s.AtEnd())
		}
	})

	t.Run("pause if", func(t *testing.T) {
		s, _ := start(t, loopProgram(t), Options{Seed: 1})
		paused := false
		err := s.AutoRun(context.Background(), AutoRunOptions{
			PauseIf: func(s *Simulation) bool { return s.StepsTaken() >= 5 },
			OnPause: func(*Simulation) { paused = true },
		})
		if err != nil {
			t.Fatal(err)
		}
		if !paused || s.AtEnd() || s.StepsTaken() != 5 {
			t.Errorf("paused = %v, AtEnd = %v, steps = %d", paused, s.AtEnd(), s.StepsTaken())
		}
	})

	t.Run("step limit", func(t *testing.T) {
		s, _ := start(t, loopProgram(t), Options{Seed: 1})
		if err := s.AutoRun(context.Background(), AutoRunOptions{StepLimit: 12}); err != nil {
			t.Fatal(err)
		}
		if s.StepsTaken() != 12 {
			t.Errorf("steps = %d, want 12", s.StepsTaken())
		}
	})

	t.Run("canceled", func(t *testing.T) {
		s, _ := start(t, loopProgram(t), Options{Seed: 1})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := s.AutoRun(ctx, AutoRunOptions{After: time.Hour})
		if err == nil {
			t.Fatal("expected context error")
		}
		if s.AtEnd() {
			t.Error("canceled run reached the end")
		}
	})
}

func TestInternalFaultIsTerminal(t *testing.T) {
	s, rec := start(t, callProgram(t), Options{})
	err := s.guard(func() { panic("boom") })
	if err == nil {
		t.Fatal("expected fault")
	}
	if rec.count(EventCrash) != 1 {
		t.Errorf("crash events = %d, want 1", rec.count(EventCrash))
	}
	if !errors.Is(err, errors.PhaseRuntime, errors.KindInternal) {
		t.Errorf("fault = %v, want an internal runtime error", err)
	}
	if s.StepForward(1) == nil || s.StepBackward(1) == nil {
		t.Error("faulted simulation kept stepping")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if s.Fault() != nil {
		t.Errorf("fault survived restart: %v", s.Fault())
	}
}

func TestNotStarted(t *testing.T) {
	s, err := New(callProgram(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.StepForward(1); err == nil {
		t.Error("StepForward before Start succeeded")
	}
	if _, err := New(nil, Options{}); err == nil {
		t.Error("New(nil) succeeded")
	}
}

func TestPopUntilType(t *testing.T) {
	s, _ := start(t, callProgram(t), Options{})
	if err := s.guard(func() { s.popUntilType(StackCall) }); err != nil {
		t.Fatal(err)
	}
	if top := s.Top(); top == nil || !declares("x")(top) {
		t.Errorf("top = %v, want the declaration of x", top)
	}
}

func TestFedInputSurvivesStepBackward(t *testing.T) {
	p := build(t, mainOnly(func(m *FunctionBuilder) {
		m.Cout(m.Str("?"))
		m.Declare("x", types.Int{})
		m.Cin(m.Name("x"))
		m.Cout(m.Name("x"))
		m.Return(m.Int(0))
	}))
	s, _ := start(t, p, Options{})

	for s.Console().Output() == "" {
		if err := s.StepForward(1); err != nil {
			t.Fatal(err)
		}
	}
	fedAt := s.StepsTaken()
	s.Feed("42\n")
	if err := s.StepForward(1_000_000); err != nil {
		t.Fatal(err)
	}
	end := s.StepsTaken()

	if err := s.StepBackward(1); err != nil {
		t.Fatal(err)
	}
	if err := s.StepForward(1); err != nil {
		t.Fatal(err)
	}
	if got := s.Console().Output(); got != "?42" || s.Console().Failed() {
		t.Errorf("after one step back: output = %q, failed = %v", got, s.Console().Failed())
	}

	if err := s.StepBackward(end); err != nil {
		t.Fatal(err)
	}
	if s.Console().Input() != "" {
		t.Errorf("input %q available before step %d", s.Console().Input(), fedAt)
	}
	if err := s.StepForward(1_000_000); err != nil {
		t.Fatal(err)
	}
	if got := s.Console().Output(); got != "?42" || s.Console().Failed() {
		t.Errorf("after rewinding: output = %q, failed = %v", got, s.Console().Failed())
	}
}

func TestNullMemberWrite(t *testing.T) {
	p := build(t, func(b *Builder) {
		a := b.Class("A", nil)
		a.Field("x", types.Int{})
		a.Field("y", types.Int{})
		b.Declare("g", types.Int{}, b.Int(7))

		m := b.Function("main", types.Int{})
		m.Declare("p", a.Pointer(), m.Nullptr())
		m.Expr(m.Assign(m.Arrow(m.Name("p"), "y"), m.Int(5)))
		m.Cout(m.Name("g"))
		m.Return(m.Int(0))
	})
	s, rec := runToEnd(t, p, Options{})
	if !rec.has(SeverityCrash, "null pointer") {
		t.Errorf("no null pointer crash in %v", rec.diagnostics())
	}
	if got := s.Console().Output(); got != "7" {
		t.Errorf("output = %q, want %q", got, "7")
	}
}

// tally is an observer that cannot be compared with ==.
type tally struct {
	n    *int
	tags []string
}

func (o tally) OnEvent(Event) { *o.n++ }

func TestUnsubscribe(t *testing.T) {
	var byValue, byFunc int
	s, err := New(callProgram(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	stopValue := s.Subscribe(tally{n: &byValue, tags: []string{"value"}})
	stopFunc := s.Subscribe(ObserverFunc(func(Event) { byFunc++ }))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if byValue == 0 || byFunc == 0 {
		t.Fatalf("events before unsubscribing: %d and %d", byValue, byFunc)
	}

	stopValue()
	stopFunc()
	stopFunc()
	seenValue, seenFunc := byValue, byFunc
	if err := s.StepForward(1_000_000); err != nil {
		t.Fatal(err)
	}
	if byValue != seenValue || byFunc != seenFunc {
		t.Errorf("events after unsubscribing: %d and %d", byValue-seenValue, byFunc-seenFunc)
	}
}
