package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/cppsim/errors"
	"github.com/wippyai/cppsim/sim"
	"github.com/wippyai/cppsim/types"
)

// Compiled is a built program together with the console input its document
// supplies.
type Compiled struct {
	Name    string
	Program *sim.Program
	Input   string
}

// Load reads and compiles a YAML program description.
func Load(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load([]string{path}, "cannot read program", err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse compiles a YAML program description. name is used in error paths.
func Parse(name string, data []byte) (*Compiled, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Load([]string{name}, "invalid YAML", err)
	}
	prog, err := Compile(name, &doc)
	if err != nil {
		return nil, err
	}
	return &Compiled{Name: name, Program: prog, Input: doc.Input}, nil
}

// Compile builds the program a document describes.
func Compile(name string, doc *Document) (*sim.Program, error) {
	c := &compiler{
		name:    name,
		b:       sim.NewBuilder(),
		classes: make(map[string]*sim.ClassBuilder),
	}
	c.compile(doc)
	if c.err != nil {
		Logger().Debug("load failed", zap.String("program", name), zap.Error(c.err))
		return nil, c.err
	}
	prog, err := c.b.Program()
	if err != nil {
		return nil, errors.Load([]string{name}, "build failed", err)
	}
	Logger().Debug("program loaded", zap.String("program", name),
		zap.Int("classes", len(doc.Classes)), zap.Int("functions", len(doc.Functions)))
	return prog, nil
}

type compiler struct {
	name    string
	b       *sim.Builder
	classes map[string]*sim.ClassBuilder
	err     error
}

// failf records the first schema error at node's line.
func (c *compiler) failf(n *yaml.Node, format string, args ...any) {
	if c.err != nil {
		return
	}
	line := 0
	if n != nil {
		line = n.Line
	}
	c.err = errors.Load([]string{c.name, fmt.Sprintf("line %d", line)}, fmt.Sprintf(format, args...), nil)
}

// checkBuild turns the builder's first error into a load error at n's line.
func (c *compiler) checkBuild(n *yaml.Node) {
	if c.err != nil {
		return
	}
	if err := c.b.Err(); err != nil {
		c.err = errors.Load([]string{c.name, fmt.Sprintf("line %d", n.Line)}, "invalid construct", err)
	}
}

func (c *compiler) typ(s string, where string) types.Type {
	t, ok := c.parseType(s)
	if !ok {
		if c.err == nil {
			c.err = errors.Load([]string{c.name, where}, fmt.Sprintf("unknown type %q", s), nil)
		}
		return types.Int{}
	}
	return t
}

func (c *compiler) params(ps []Param, where string) []sim.Param {
	out := make([]sim.Param, len(ps))
	for i, p := range ps {
		out[i] = sim.Param{Name: p.Name, Type: c.typ(p.Type, where)}
	}
	return out
}

func (c *compiler) returns(s string, where string) types.Type {
	if s == "" {
		return types.Void{}
	}
	return c.typ(s, where)
}

type pendingBody struct {
	fb   *sim.FunctionBuilder
	body []yaml.Node
	ctor *Constructor
}

// compile declares classes, then every function signature, then globals,
// and only then fills in bodies, so that bodies may refer to anything
// declared in the document.
func (c *compiler) compile(doc *Document) {
	for _, cl := range doc.Classes {
		var base *sim.ClassBuilder
		if cl.Base != "" {
			var ok bool
			if base, ok = c.classes[cl.Base]; !ok {
				c.err = errors.Load([]string{c.name, cl.Name}, fmt.Sprintf("base class %q must be declared first", cl.Base), nil)
				return
			}
		}
		cb := c.b.Class(cl.Name, base)
		c.classes[cl.Name] = cb
		for _, f := range cl.Fields {
			cb.Field(f.Name, c.typ(f.Type, cl.Name+"::"+f.Name))
		}
	}
	if c.err != nil {
		return
	}

	var bodies []pendingBody
	for ci := range doc.Classes {
		cl := &doc.Classes[ci]
		cb := c.classes[cl.Name]
		for i := range cl.Constructors {
			ctor := &cl.Constructors[i]
			fb := cb.Constructor(c.params(ctor.Params, cl.Name)...)
			bodies = append(bodies, pendingBody{fb: fb, body: ctor.Body, ctor: ctor})
		}
		if cl.Destructor != nil {
			fb := cb.Destructor(cl.Destructor.Virtual)
			bodies = append(bodies, pendingBody{fb: fb, body: cl.Destructor.Body})
		}
		for _, m := range cl.Methods {
			where := cl.Name + "::" + m.Name
			fb := cb.Method(m.Name, c.returns(m.Returns, where), sim.MethodOptions{Virtual: m.Virtual, Const: m.Const},
				c.params(m.Params, where)...)
			bodies = append(bodies, pendingBody{fb: fb, body: m.Body})
		}
	}
	for _, f := range doc.Functions {
		fb := c.b.Function(f.Name, c.returns(f.Returns, f.Name), c.params(f.Params, f.Name)...)
		bodies = append(bodies, pendingBody{fb: fb, body: f.Body})
	}
	if c.err != nil {
		return
	}

	for i := range doc.Globals {
		g := &doc.Globals[i]
		c.declare(c.b.BlockBuilder, g)
	}

	for _, pb := range bodies {
		if pb.ctor != nil {
			c.initializers(pb.fb, pb.ctor)
		}
		c.block(pb.fb.BlockBuilder, pb.body)
		if c.err != nil {
			return
		}
	}
}

func (c *compiler) initializers(fb *sim.FunctionBuilder, ctor *Constructor) {
	if ctor.Base != nil {
		fb.InitBase(c.exprs(fb.BlockBuilder, ctor.Base)...)
		if len(ctor.Base) > 0 {
			c.checkBuild(&ctor.Base[0])
		}
	}
	for _, m := range ctor.Members {
		fb.InitMember(m.Name, c.exprs(fb.BlockBuilder, m.Args)...)
		if len(m.Args) > 0 {
			c.checkBuild(&m.Args[0])
		}
	}
}

func (c *compiler) declare(bb *sim.BlockBuilder, v *Variable) {
	t := c.typ(v.Type, v.Name)
	bb.Declare(v.Name, t, c.exprs(bb, v.Init)...)
}

func (c *compiler) exprs(bb *sim.BlockBuilder, nodes []yaml.Node) []sim.Expr {
	out := make([]sim.Expr, len(nodes))
	for i := range nodes {
		out[i] = c.expr(bb, &nodes[i])
	}
	return out
}
