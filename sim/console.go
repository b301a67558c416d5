package sim

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/wippyai/cppsim/types"
	"github.com/wippyai/cppsim/value"
)

// maxCString bounds how far printing a char* walks memory.
const maxCString = 4096

// Console holds the simulated cout buffer and the cin input buffer.
type Console struct {
	out    strings.Builder
	in     string
	pos    int
	failed bool
}

// Output returns everything written to cout.
func (c *Console) Output() string { return c.out.String() }

// Input returns the unread part of the cin buffer.
func (c *Console) Input() string { return c.in[c.pos:] }

// Failed reports whether an extraction from cin has failed.
func (c *Console) Failed() bool { return c.failed }

// feed appends text to the cin buffer.
func (c *Console) feed(text string) { c.in += text }

func (c *Console) reset(input string) {
	c.out.Reset()
	c.in = input
	c.pos = 0
	c.failed = false
}

func (c *Console) skipSpace() {
	for c.pos < len(c.in) && unicode.IsSpace(rune(c.in[c.pos])) {
		c.pos++
	}
}

// token reads the next whitespace-delimited word.
func (c *Console) token() (string, bool) {
	c.skipSpace()
	start := c.pos
	for c.pos < len(c.in) && !unicode.IsSpace(rune(c.in[c.pos])) {
		c.pos++
	}
	return c.in[start:c.pos], c.pos > start
}

// extract parses the next input item as type t.
func (c *Console) extract(t types.Type) (value.Value, bool) {
	if c.failed {
		return value.Value{}, false
	}
	if _, isChar := t.(types.Char); isChar {
		c.skipSpace()
		if c.pos >= len(c.in) {
			return value.Value{}, false
		}
		ch := c.in[c.pos]
		c.pos++
		return value.Char(int8(ch)), true
	}

	tok, ok := c.token()
	if !ok {
		return value.Value{}, false
	}
	switch t.(type) {
	case types.Int:
		n, err := strconv.ParseInt(tok, 10, 32)
		return value.Int(int32(n)), err == nil
	case types.Double:
		f, err := strconv.ParseFloat(tok, 64)
		return value.Double(f), err == nil
	case types.Bool:
		switch tok {
		case "0":
			return value.Bool(false), true
		case "1":
			return value.Bool(true), true
		}
	}
	return value.Value{}, false
}

// Console returns the simulation's console.
func (s *Simulation) Console() *Console { return s.console }

func (s *Simulation) output(in *Instance, text string) {
	s.console.out.WriteString(text)
	s.emit(Event{Type: EventOutput, Instance: in, Message: text})
}

// cString reads the null-terminated string a char pointer points to.
func (s *Simulation) cString(in *Instance, p value.Value) string {
	switch {
	case !p.IsValid():
		s.diagnose(in, SeverityUndefinedBehavior, "prints through an uninitialized char pointer")
		return ""
	case p.IsNull():
		s.diagnose(in, SeverityCrash, "prints through a null char pointer")
		return ""
	}

	end := uint32(0)
	if ap, ok := p.Type().(types.ArrayPointer); ok {
		end = ap.End()
	}
	var b strings.Builder
	addr := p.Address()
	for i := 0; i < maxCString; i++ {
		if end != 0 && addr >= end {
			s.diagnose(in, SeverityUndefinedBehavior, "prints a string that is not null-terminated within its array")
			break
		}
		ch, err := s.mem.ReadU8(addr)
		if err != nil {
			s.diagnose(in, SeverityUndefinedBehavior, "prints past the end of memory at 0x%x", addr)
			break
		}
		if ch == 0 {
			break
		}
		b.WriteByte(ch)
		addr++
	}
	return b.String()
}

// Output is a cout statement: cout << a << b ...
type Output struct {
	stmtBase
	Items []Expr
}

func (st *Output) Describe() string {
	var b strings.Builder
	b.WriteString("cout")
	for _, it := range st.Items {
		b.WriteString(" << ")
		b.WriteString(it.Describe())
	}
	return b.String() + ";"
}

func (st *Output) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, st.Items...)
}

func (st *Output) stepForward(s *Simulation, in *Instance) {
	var b strings.Builder
	for _, c := range in.children {
		v := c.result.Value
		if elem, ok := types.Pointee(v.Type()); ok {
			if _, isChar := elem.(types.Char); isChar {
				b.WriteString(s.cString(in, v))
				continue
			}
		}
		b.WriteString(v.String())
	}
	s.output(in, b.String())
	s.pop(in)
}

// Input is a cin statement: cin >> a >> b ...
type Input struct {
	stmtBase
	Targets []Expr
}

func (st *Input) Describe() string {
	var b strings.Builder
	b.WriteString("cin")
	for _, t := range st.Targets {
		b.WriteString(" >> ")
		b.WriteString(t.Describe())
	}
	return b.String() + ";"
}

func (st *Input) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, st.Targets...)
}

func (st *Input) stepForward(s *Simulation, in *Instance) {
	for _, c := range in.children {
		res := c.result
		t := types.Unqualified(res.Object.Type())
		v, ok := s.console.extract(t)
		if !ok {
			if !s.console.failed {
				s.explain(in, "cin could not read a %s; the stream is now in a failed state", t)
			}
			s.console.failed = true
			v = value.Convert(value.Int(0), t)
		}
		s.writeObject(in, res, v, nil)
	}
	s.pop(in)
}

// Assert is assert(cond).
type Assert struct {
	stmtBase
	Cond Expr
}

func (st *Assert) Describe() string { return "assert(" + st.Cond.Describe() + ");" }

func (st *Assert) upNext(s *Simulation, in *Instance) bool {
	return s.pushOperands(in, st.Cond)
}

func (st *Assert) stepForward(s *Simulation, in *Instance) {
	v := in.child(0).result.Value
	if v.IsValid() && !v.Truthy() {
		s.diagnose(in, SeverityAssertionFailure, "assertion %s failed", st.Cond.Describe())
	}
	s.pop(in)
}
