package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/sim"
)

const shapes = `
input: "4"
globals:
  - {name: count, type: int, init: [0]}
classes:
  - name: Shape
    fields:
      - {name: id, type: int}
    constructors:
      - params: [{name: n, type: int}]
        members: [{name: id, args: [n]}]
        body:
          - expr: {"+=": [count, 1]}
    destructor:
      virtual: true
      body:
        - expr: {"-=": [count, 1]}
    methods:
      - name: area
        returns: int
        virtual: true
        const: true
        body:
          - return: 0
  - name: Square
    base: Shape
    fields:
      - {name: side, type: int}
    constructors:
      - params: [{name: n, type: int}, {name: s, type: int}]
        base: [n]
        members: [{name: side, args: [s]}]
    methods:
      - name: area
        returns: int
        const: true
        body:
          - return: {"*": [side, side]}
functions:
  - name: total
    returns: int
    params: [{name: shapes, type: "Shape**"}, {name: n, type: int}]
    body:
      - decl: {name: sum, type: int, init: [0]}
      - for:
          init: [{decl: {name: i, type: int, init: [0]}}]
          cond: {"<": [i, n]}
          post: {"++x": i}
          body:
            - expr: {"+=": [sum, {arrow-method: [{index: [shapes, i]}, area]}]}
      - return: sum
  - name: main
    returns: int
    body:
      - decl: {name: side, type: int}
      - cin: [side]
      - decl: {name: list, type: "Shape*[2]"}
      - expr: {"=": [{index: [list, 0]}, {new: [Square, 1, side]}]}
      - expr: {"=": [{index: [list, 1]}, {new: [Shape, 2]}]}
      - decl: {name: t, type: int, init: [{call: [total, list, 2]}]}
      - cout: [t, {char: " "}, count, {str: "\n"}]
      - while:
          cond: {">": [count, 0]}
          body:
            - delete: {index: [list, {"-": [count, 1]}]}
      - if:
          cond: {"==": [count, 0]}
          then: [{return: t}]
          else: [{return: -1}]
`

func run(t *testing.T, c *Compiled) *sim.Simulation {
	t.Helper()
	s, err := sim.New(c.Program, sim.Options{Input: c.Input, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	var diags []sim.Event
	s.Subscribe(sim.ObserverFunc(func(e sim.Event) {
		if e.IsDiagnostic() {
			diags = append(diags, e)
		}
	}))
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.StepForward(1_000_000); err != nil {
		t.Fatal(err)
	}
	if !s.AtEnd() {
		t.Fatal("program did not end")
	}
	if len(diags) != 0 {
		t.Errorf("diagnostics: %v", diags)
	}
	return s
}

func TestParseAndRun(t *testing.T) {
	c, err := Parse("shapes.yaml", []byte(shapes))
	if err != nil {
		t.Fatal(err)
	}
	if c.Input != "4" {
		t.Errorf("input = %q", c.Input)
	}
	if _, ok := c.Program.Class("Square"); !ok {
		t.Error("class Square missing")
	}

	s := run(t, c)
	if got, want := s.Console().Output(), "16 2\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if got := s.ExitCode().Int(); got != 16 {
		t.Errorf("exit code = %d, want 16", got)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.yaml")
	src := `
functions:
  - name: main
    returns: int
    body:
      - cout: [{str: "hi"}]
      - return
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err == nil {
		t.Fatalf("expected a build error for a bare return in main, got %v", c)
	}

	src = `
functions:
  - name: main
    returns: int
    body:
      - cout: [{str: "hi"}]
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "hello.yaml" {
		t.Errorf("name = %q", c.Name)
	}
	s := run(t, c)
	if s.Console().Output() != "hi" || s.ExitCode().Int() != 0 {
		t.Errorf("output = %q, exit = %d", s.Console().Output(), s.ExitCode().Int())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		phase errors.Phase
		kind  errors.Kind
	}{
		{
			name:  "invalid yaml",
			src:   "functions: [",
			phase: errors.PhaseLoad,
			kind:  errors.KindInvalidData,
		},
		{
			name: "unknown type",
			src: `
functions:
  - name: main
    returns: integer
`,
			phase: errors.PhaseLoad,
			kind:  errors.KindInvalidData,
		},
		{
			name: "unknown statement",
			src: `
functions:
  - name: main
    returns: int
    body:
      - goto: end
`,
			phase: errors.PhaseLoad,
			kind:  errors.KindInvalidData,
		},
		{
			name: "base declared later",
			src: `
classes:
  - {name: B, base: A}
  - {name: A}
functions:
  - {name: main, returns: int}
`,
			phase: errors.PhaseLoad,
			kind:  errors.KindInvalidData,
		},
		{
			name: "hidden overload",
			src: `
classes:
  - name: A
    methods:
      - {name: f, returns: int, params: [{name: n, type: int}], body: [{return: n}]}
  - name: B
    base: A
    methods:
      - {name: f, returns: int, params: [{name: s, type: "const char*"}], body: [{return: 0}]}
functions:
  - name: main
    returns: int
    body:
      - decl: {name: b, type: B}
      - return: {method: [b, f, 1]}
`,
			phase: errors.PhaseLookup,
			kind:  errors.KindHidden,
		},
		{
			name: "undeclared name",
			src: `
functions:
  - name: main
    returns: int
    body:
      - return: missing
`,
			phase: errors.PhaseLookup,
			kind:  errors.KindNotFound,
		},
		{
			name: "wrong operand count",
			src: `
functions:
  - name: main
    returns: int
    body:
      - return: {"+": [1]}
`,
			phase: errors.PhaseLoad,
			kind:  errors.KindInvalidData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.phase, tt.kind) {
				t.Errorf("err = %v, want %s/%s", err, tt.phase, tt.kind)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	c := &compiler{classes: map[string]*sim.ClassBuilder{}}
	tests := []struct {
		in   string
		want string
	}{
		{"int", "int"},
		{"const char*", "const char*"},
		{"int* const", "int* const"},
		{"double[4]", "double[4]"},
		{"int&", "int&"},
		{"char*[3]", "char*[3]"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := c.parseType(tt.in)
			if !ok {
				t.Fatalf("parseType(%q) failed", tt.in)
			}
			if got.String() != tt.want {
				t.Errorf("parseType(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "integer", "int[0]", "int[x]", "Unknown*"} {
		if _, ok := c.parseType(bad); ok {
			t.Errorf("parseType(%q) succeeded", bad)
		}
	}
}
