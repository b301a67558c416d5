package sim

import (
	"strings"

	"github.com/wippyai/cppsim/types"
)

// Stmt is a statement construct.
type Stmt interface {
	Construct
	stmt()
}

type stmtBase struct{}

func (stmtBase) StackType() StackType { return StackStatement }
func (stmtBase) stmt()                {}

// ExprStmt evaluates an expression for its side effects.
type ExprStmt struct {
	stmtBase
	Expr Expr
}

func (st *ExprStmt) Describe() string { return st.Expr.Describe() + ";" }

func (st *ExprStmt) upNext(s *Simulation, in *Instance) bool {
	if s.pushOperands(in, st.Expr) {
		return true
	}
	s.pop(in)
	return true
}

func (st *ExprStmt) stepForward(s *Simulation, in *Instance) { s.pop(in) }

// Null is the empty statement.
type Null struct {
	stmtBase
}

func (st *Null) Describe() string { return ";" }

func (st *Null) upNext(*Simulation, *Instance) bool { return false }

func (st *Null) stepForward(s *Simulation, in *Instance) { s.pop(in) }

// Block is a compound statement. Its locals are stored in the enclosing
// function's frame but live only until the block is left.
type Block struct {
	stmtBase
	Stmts []Stmt
	// inline blocks group statements without opening a scope, as the
	// declarations of a for statement's init.
	inline bool
}

func (st *Block) Describe() string {
	if len(st.Stmts) == 0 {
		return "{}"
	}
	return "{ " + st.Stmts[0].Describe() + " ... }"
}

func (st *Block) upNext(s *Simulation, in *Instance) bool {
	if in.index < len(st.Stmts) {
		s.push(in, st.Stmts[in.index])
		in.index++
		return true
	}
	if s.exitScope(in) {
		return true
	}
	if len(st.Stmts) == 0 {
		return false
	}
	s.pop(in)
	return true
}

func (st *Block) stepForward(s *Simulation, in *Instance) { s.pop(in) }

// If is an if statement with an optional else branch.
type If struct {
	stmtBase
	Cond Expr
	Then Stmt
	Else Stmt
}

func (st *If) Describe() string { return "if (" + st.Cond.Describe() + ")" }

func (st *If) upNext(s *Simulation, in *Instance) bool {
	switch in.stage {
	case 0:
		in.stage = 1
		s.push(in, st.Cond)
		return true
	case 1:
		in.stage = 2
		if in.child(0).result.Value.Truthy() {
			s.push(in, st.Then)
			return true
		}
		if st.Else != nil {
			s.push(in, st.Else)
			return true
		}
	}
	s.pop(in)
	return true
}

func (st *If) stepForward(s *Simulation, in *Instance) { s.pop(in) }

// loop stages
const (
	loopInit = iota
	loopCond
	loopTest
	loopBody
	loopPost
	loopDone
)

// While is a while or do-while loop.
type While struct {
	stmtBase
	Cond Expr
	Body Stmt
	Do   bool
}

func (st *While) Describe() string {
	if st.Do {
		return "do ... while (" + st.Cond.Describe() + ")"
	}
	return "while (" + st.Cond.Describe() + ")"
}

func (st *While) upNext(s *Simulation, in *Instance) bool {
	if s.unwind(in) {
		return true
	}
	if in.stage == loopInit {
		in.stage = loopCond
		if st.Do {
			in.stage = loopBody
		}
	}
	switch in.stage {
	case loopCond, loopPost:
		in.resetChildren()
		in.stage = loopTest
		s.push(in, st.Cond)
		return true
	case loopTest:
		if !in.last().result.Value.Truthy() {
			in.stage = loopDone
			break
		}
		fallthrough
	case loopBody:
		in.stage = loopPost
		s.push(in, st.Body)
		return true
	}
	s.pop(in)
	return true
}

func (st *While) stepForward(s *Simulation, in *Instance) { s.pop(in) }

// For is a for loop. Init, Cond and Post may be nil.
type For struct {
	stmtBase
	Init Stmt
	Cond Expr
	Post Expr
	Body Stmt
}

func (st *For) Describe() string {
	var b strings.Builder
	b.WriteString("for (")
	if st.Init != nil {
		b.WriteString(st.Init.Describe())
	} else {
		b.WriteString(";")
	}
	if st.Cond != nil {
		b.WriteString(" " + st.Cond.Describe())
	}
	b.WriteString(";")
	if st.Post != nil {
		b.WriteString(" " + st.Post.Describe())
	}
	b.WriteString(")")
	return b.String()
}

func (st *For) upNext(s *Simulation, in *Instance) bool {
	if s.unwind(in) {
		return true
	}
	switch in.stage {
	case loopInit:
		in.stage = loopCond
		if st.Init != nil {
			s.push(in, st.Init)
			return true
		}
		fallthrough
	case loopCond:
		in.resetChildren()
		in.stage = loopTest
		if st.Cond != nil {
			s.push(in, st.Cond)
			return true
		}
		fallthrough
	case loopTest:
		if st.Cond != nil && !in.last().result.Value.Truthy() {
			in.stage = loopDone
			break
		}
		in.stage = loopBody
		s.push(in, st.Body)
		return true
	case loopBody:
		in.stage = loopCond
		if st.Post != nil {
			s.push(in, st.Post)
			return true
		}
		return st.upNext(s, in)
	case loopPost:
		// continue jumps here: run the increment, then test again
		in.stage = loopBody
		return st.upNext(s, in)
	}
	// variables declared in the init statement end with the loop
	if s.exitScope(in) {
		return true
	}
	s.pop(in)
	return true
}

func (st *For) stepForward(s *Simulation, in *Instance) { s.pop(in) }

func isLoop(in *Instance) bool {
	switch in.model.(type) {
	case *While, *For:
		return true
	}
	return false
}

// Break leaves the innermost loop.
type Break struct {
	stmtBase
}

func (st *Break) Describe() string { return "break;" }

func (st *Break) upNext(*Simulation, *Instance) bool { return false }

func (st *Break) stepForward(s *Simulation, in *Instance) {
	loop := in.ancestor(isLoop)
	if loop == nil {
		panic("break outside a loop")
	}
	s.jump(in, loop)
	loop.stage = loopDone
}

// Continue starts the next iteration of the innermost loop.
type Continue struct {
	stmtBase
}

func (st *Continue) Describe() string { return "continue;" }

func (st *Continue) upNext(*Simulation, *Instance) bool { return false }

func (st *Continue) stepForward(s *Simulation, in *Instance) {
	loop := in.ancestor(isLoop)
	if loop == nil {
		panic("continue outside a loop")
	}
	s.jump(in, loop)
	switch loop.model.(type) {
	case *For:
		loop.stage = loopPost
	default:
		loop.stage = loopCond
	}
}

// Return leaves the enclosing function, storing the returned value in the
// return object (or binding the returned reference).
type Return struct {
	stmtBase
	Expr Expr
	fn   *FunctionDef
}

func (st *Return) Describe() string {
	if st.Expr == nil {
		return "return;"
	}
	return "return " + st.Expr.Describe() + ";"
}

func (st *Return) upNext(s *Simulation, in *Instance) bool {
	if st.Expr == nil {
		return false
	}
	return s.pushOperands(in, st.Expr)
}

func (st *Return) stepForward(s *Simulation, in *Instance) {
	fi := in.fn
	if fi == nil {
		panic("return outside a function")
	}
	if st.Expr != nil {
		res := in.child(0).result
		switch st.fn.sig.Return.(type) {
		case types.Reference:
			fi.refRet = res.Object
		case types.Void:
		default:
			if ret, ok := st.fn.ret.lookup(s, in); ok {
				if types.IsScalar(ret.Type()) {
					ret.WriteValue(convertValue(res.Value, ret.Type()))
				} else {
					ret.CopyFrom(res.Object)
				}
			}
		}
	}
	fi.returned = true
	s.jump(in, fi)
	fi.stage = 1
}
