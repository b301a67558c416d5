package loader

import (
	"gopkg.in/yaml.v3"

	"github.com/wippyai/cppsim/sim"
)

type ifStmt struct {
	Cond yaml.Node   `yaml:"cond"`
	Then []yaml.Node `yaml:"then"`
	Else []yaml.Node `yaml:"else"`
}

type loopStmt struct {
	Init []yaml.Node `yaml:"init"`
	Cond yaml.Node   `yaml:"cond"`
	Post yaml.Node   `yaml:"post"`
	Body []yaml.Node `yaml:"body"`
}

func (c *compiler) block(bb *sim.BlockBuilder, stmts []yaml.Node) {
	for i := range stmts {
		if c.err != nil {
			return
		}
		c.stmt(bb, &stmts[i])
		c.checkBuild(&stmts[i])
	}
}

func (c *compiler) body(stmts []yaml.Node) func(*sim.BlockBuilder) {
	return func(bb *sim.BlockBuilder) { c.block(bb, stmts) }
}

func (c *compiler) decode(n *yaml.Node, v any, what string) bool {
	if err := n.Decode(v); err != nil {
		c.failf(n, "invalid %s: %v", what, err)
		return false
	}
	return true
}

func present(n *yaml.Node) bool {
	return n.Kind != 0 && !(n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func (c *compiler) stmt(bb *sim.BlockBuilder, n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "break":
			bb.Break()
		case "continue":
			bb.Continue()
		case "return":
			bb.Return()
		case "null", ";":
			bb.Null()
		default:
			c.failf(n, "unknown statement %q", n.Value)
		}
		return
	}

	key, val, ok := c.single(n, "statement")
	if !ok {
		return
	}
	switch key {
	case "decl":
		var v Variable
		if c.decode(val, &v, "declaration") {
			c.declare(bb, &v)
		}
	case "expr":
		bb.Expr(c.expr(bb, val))
	case "block":
		var stmts []yaml.Node
		if c.decode(val, &stmts, "block") {
			bb.Block(c.body(stmts))
		}
	case "if":
		var s ifStmt
		if !c.decode(val, &s, "if") {
			return
		}
		if !present(&s.Cond) {
			c.failf(val, "if needs a condition")
			return
		}
		var els func(*sim.BlockBuilder)
		if s.Else != nil {
			els = c.body(s.Else)
		}
		bb.If(c.expr(bb, &s.Cond), c.body(s.Then), els)
	case "while", "do-while":
		var s loopStmt
		if !c.decode(val, &s, key) {
			return
		}
		if !present(&s.Cond) {
			c.failf(val, "%s needs a condition", key)
			return
		}
		if key == "while" {
			bb.While(c.expr(bb, &s.Cond), c.body(s.Body))
		} else {
			bb.DoWhile(c.body(s.Body), c.expr(bb, &s.Cond))
		}
	case "for":
		var s loopStmt
		if !c.decode(val, &s, "for") {
			return
		}
		var cond, post func(*sim.BlockBuilder) sim.Expr
		if present(&s.Cond) {
			cond = func(lb *sim.BlockBuilder) sim.Expr { return c.expr(lb, &s.Cond) }
		}
		if present(&s.Post) {
			post = func(lb *sim.BlockBuilder) sim.Expr { return c.expr(lb, &s.Post) }
		}
		bb.For(c.body(s.Init), cond, post, c.body(s.Body))
	case "return":
		if present(val) {
			bb.Return(c.expr(bb, val))
		} else {
			bb.Return()
		}
	case "delete":
		bb.Delete(c.expr(bb, val))
	case "delete[]":
		bb.DeleteArray(c.expr(bb, val))
	case "cout":
		bb.Cout(c.list(bb, items(val))...)
	case "cin":
		bb.Cin(c.list(bb, items(val))...)
	case "assert":
		bb.Assert(c.expr(bb, val))
	default:
		c.failf(n, "unknown statement %q", key)
	}
}
