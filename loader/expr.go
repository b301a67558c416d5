package loader

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/cppsim/sim"
)

var binaryOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"&&": true, "||": true,
}

var compoundOps = map[string]bool{
	"+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
}

// single returns the key and value of a single-key map node.
func (c *compiler) single(n *yaml.Node, what string) (string, *yaml.Node, bool) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		c.failf(n, "%s must be a single-key map", what)
		return "", nil, false
	}
	return n.Content[0].Value, n.Content[1], true
}

// items returns the elements of a sequence node, or the node itself.
func items(n *yaml.Node) []*yaml.Node {
	if n.Kind == yaml.SequenceNode {
		return n.Content
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil
	}
	return []*yaml.Node{n}
}

func (c *compiler) operands(bb *sim.BlockBuilder, op string, n *yaml.Node, want int) []sim.Expr {
	args := items(n)
	if len(args) != want {
		c.failf(n, "%s takes %d operands, got %d", op, want, len(args))
		return nil
	}
	out := make([]sim.Expr, want)
	for i, a := range args {
		out[i] = c.expr(bb, a)
	}
	return out
}

func (c *compiler) nameOf(n *yaml.Node) string {
	if n.Kind != yaml.ScalarNode || n.Value == "" {
		c.failf(n, "expected a name")
		return ""
	}
	return n.Value
}

// expr compiles an expression node. After an error it returns a
// placeholder so the caller can continue.
func (c *compiler) expr(bb *sim.BlockBuilder, n *yaml.Node) sim.Expr {
	if c.err != nil {
		return bb.Int(0)
	}
	if n.Kind == yaml.ScalarNode {
		return c.scalar(bb, n)
	}
	key, val, ok := c.single(n, "expression")
	if !ok {
		return bb.Int(0)
	}

	switch {
	case binaryOps[key]:
		if ops := c.operands(bb, key, val, 2); ops != nil {
			return bb.Op(key, ops[0], ops[1])
		}
	case key == "=":
		if ops := c.operands(bb, key, val, 2); ops != nil {
			return bb.Assign(ops[0], ops[1])
		}
	case compoundOps[key]:
		if ops := c.operands(bb, key, val, 2); ops != nil {
			return bb.AssignOp(strings.TrimSuffix(key, "="), ops[0], ops[1])
		}
	}
	if binaryOps[key] || key == "=" || compoundOps[key] {
		return bb.Int(0)
	}

	switch key {
	case "neg":
		return bb.Neg(c.expr(bb, val))
	case "not":
		return bb.Not(c.expr(bb, val))
	case "deref":
		return bb.Deref(c.expr(bb, val))
	case "addr":
		return bb.Addr(c.expr(bb, val))
	case "++x":
		return bb.PreInc(c.expr(bb, val))
	case "--x":
		return bb.PreDec(c.expr(bb, val))
	case "x++":
		return bb.PostInc(c.expr(bb, val))
	case "x--":
		return bb.PostDec(c.expr(bb, val))
	case "str":
		return bb.Str(val.Value)
	case "char":
		if len(val.Value) != 1 {
			c.failf(val, "char literal must be one byte, got %q", val.Value)
			return bb.Int(0)
		}
		return bb.Char(val.Value[0])
	case "rand":
		return bb.Rand()
	case "index":
		if ops := c.operands(bb, key, val, 2); ops != nil {
			return bb.Index(ops[0], ops[1])
		}
	case "cond":
		if ops := c.operands(bb, key, val, 3); ops != nil {
			return bb.Cond(ops[0], ops[1], ops[2])
		}
	case "member", "arrow":
		args := items(val)
		if len(args) != 2 {
			c.failf(val, "%s takes an object and a field name", key)
			break
		}
		obj, field := c.expr(bb, args[0]), c.nameOf(args[1])
		if key == "member" {
			return bb.Dot(obj, field)
		}
		return bb.Arrow(obj, field)
	case "call":
		args := items(val)
		if len(args) == 0 {
			c.failf(val, "call needs a function name")
			break
		}
		return bb.Call(c.nameOf(args[0]), c.list(bb, args[1:])...)
	case "method", "arrow-method":
		args := items(val)
		if len(args) < 2 {
			c.failf(val, "%s needs an object and a method name", key)
			break
		}
		obj, method := c.expr(bb, args[0]), c.nameOf(args[1])
		if key == "method" {
			return bb.MethodCall(obj, method, c.list(bb, args[2:])...)
		}
		return bb.ArrowCall(obj, method, c.list(bb, args[2:])...)
	case "new":
		args := items(val)
		if len(args) == 0 {
			c.failf(val, "new needs a type")
			break
		}
		t := c.typ(args[0].Value, "line "+strconv.Itoa(args[0].Line))
		return bb.New(t, c.list(bb, args[1:])...)
	case "new[]":
		args := items(val)
		if len(args) != 2 {
			c.failf(val, "new[] takes a type and a length")
			break
		}
		t := c.typ(args[0].Value, "line "+strconv.Itoa(args[0].Line))
		return bb.NewArray(t, c.expr(bb, args[1]))
	default:
		c.failf(n, "unknown expression %q", key)
	}
	return bb.Int(0)
}

func (c *compiler) list(bb *sim.BlockBuilder, nodes []*yaml.Node) []sim.Expr {
	out := make([]sim.Expr, len(nodes))
	for i, a := range nodes {
		out[i] = c.expr(bb, a)
	}
	return out
}

func (c *compiler) scalar(bb *sim.BlockBuilder, n *yaml.Node) sim.Expr {
	switch n.Tag {
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 32)
		if err != nil {
			c.failf(n, "integer literal %s out of range", n.Value)
			return bb.Int(0)
		}
		return bb.Int(int(v))
	case "!!float":
		v, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			c.failf(n, "invalid floating literal %s", n.Value)
			return bb.Int(0)
		}
		return bb.Double(v)
	case "!!bool":
		return bb.Bool(n.Value == "true")
	case "!!null":
		c.failf(n, "missing expression")
		return bb.Int(0)
	}
	switch n.Value {
	case "nullptr":
		return bb.Nullptr()
	case "this":
		return bb.This()
	}
	return bb.Name(n.Value)
}
