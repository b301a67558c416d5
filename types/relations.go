package types

// Unqualified strips top-level const.
func Unqualified(t Type) Type {
	if t == nil {
		return nil
	}
	return t.WithConst(false)
}

// Same reports whether a and b denote the same type, ignoring top-level
// const. ArrayPointer and Pointer with the same element type are the same
// type; provenance is not part of type identity.
func Same(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ap, ok := a.(ArrayPointer); ok {
		a = Pointer{Elem: ap.Elem}
	}
	if bp, ok := b.(ArrayPointer); ok {
		b = Pointer{Elem: bp.Elem}
	}
	switch at := a.(type) {
	case Void:
		_, ok := b.(Void)
		return ok
	case Int:
		_, ok := b.(Int)
		return ok
	case Char:
		_, ok := b.(Char)
		return ok
	case Bool:
		_, ok := b.(Bool)
		return ok
	case Null:
		_, ok := b.(Null)
		return ok
	case Double:
		_, ok := b.(Double)
		return ok
	case Pointer:
		bt, ok := b.(Pointer)
		return ok && sameQualified(at.Elem, bt.Elem)
	case Array:
		bt, ok := b.(Array)
		return ok && at.Length == bt.Length && sameQualified(at.Elem, bt.Elem)
	case Reference:
		bt, ok := b.(Reference)
		return ok && sameQualified(at.Ref, bt.Ref)
	case Class:
		bt, ok := b.(Class)
		return ok && at.Info == bt.Info
	case Function:
		bt, ok := b.(Function)
		if !ok || at.ConstMember != bt.ConstMember || len(at.Params) != len(bt.Params) {
			return false
		}
		if !Same(at.Return, bt.Return) {
			return false
		}
		return SameParams(at.Params, bt.Params)
	}
	return false
}

func sameQualified(a, b Type) bool {
	return a.IsConst() == b.IsConst() && Same(a, b)
}

// SameParams compares two parameter lists for signature identity.
func SameParams(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Same(a[i], b[i]) {
			return false
		}
	}
	return true
}

// IsArithmetic reports whether t is int, char, bool or double.
func IsArithmetic(t Type) bool {
	switch t.(type) {
	case Int, Char, Bool, Double:
		return true
	}
	return false
}

// IsIntegral reports whether t is int, char or bool.
func IsIntegral(t Type) bool {
	switch t.(type) {
	case Int, Char, Bool:
		return true
	}
	return false
}

// IsPointer reports whether t is a pointer (with or without bounds) or nullptr.
func IsPointer(t Type) bool {
	switch t.(type) {
	case Pointer, ArrayPointer, Null:
		return true
	}
	return false
}

// IsScalar reports whether values of t fit in a single Value.
func IsScalar(t Type) bool {
	return IsArithmetic(t) || IsPointer(t)
}

// Pointee returns the element type of a pointer type.
func Pointee(t Type) (Type, bool) {
	switch p := t.(type) {
	case Pointer:
		return p.Elem, true
	case ArrayPointer:
		return p.Elem, true
	}
	return nil, false
}

// ClassOf returns the class layout of a class type, looking through references.
func ClassOf(t Type) (*ClassInfo, bool) {
	if r, ok := t.(Reference); ok {
		t = r.Ref
	}
	if c, ok := t.(Class); ok {
		return c.Info, true
	}
	return nil, false
}

// Rank orders implicit conversions for overload resolution.
type Rank int

const (
	RankNone Rank = iota
	RankConversion
	RankPromotion
	RankExact
)

// ConversionRank classifies the implicit conversion from an argument of type
// from to a parameter of type to.
func ConversionRank(from, to Type) Rank {
	if r, ok := to.(Reference); ok {
		to = r.Ref
		if Same(from, to) {
			if from.IsConst() && !to.IsConst() {
				return RankNone
			}
			return RankExact
		}
		fc, fok := ClassOf(from)
		tc, tok := ClassOf(to)
		if fok && tok && fc.DerivesFrom(tc) {
			return RankConversion
		}
		if !to.IsConst() {
			return RankNone
		}
	}
	if r, ok := from.(Reference); ok {
		from = r.Ref
	}
	if arr, ok := from.(Array); ok {
		from = Pointer{Elem: arr.Elem}
	}
	if Same(from, to) {
		return RankExact
	}
	switch to.(type) {
	case Int:
		switch from.(type) {
		case Char, Bool:
			return RankPromotion
		case Double:
			return RankConversion
		}
	case Double:
		if IsIntegral(from) {
			return RankConversion
		}
	case Char:
		if IsArithmetic(from) {
			return RankConversion
		}
	case Bool:
		if IsArithmetic(from) || IsPointer(from) {
			return RankConversion
		}
	case Pointer:
		if _, isNull := from.(Null); isNull {
			return RankConversion
		}
		fe, ok := Pointee(from)
		if !ok {
			return RankNone
		}
		te := to.(Pointer).Elem
		if fe.IsConst() && !te.IsConst() {
			return RankNone
		}
		if Same(fe, te) {
			return RankExact
		}
		if _, isVoid := te.(Void); isVoid {
			return RankConversion
		}
		fc, fok := ClassOf(fe)
		tc, tok := ClassOf(te)
		if fok && tok && fc.DerivesFrom(tc) {
			return RankConversion
		}
	case Class:
		fc, fok := ClassOf(from)
		if fok && fc.DerivesFrom(to.(Class).Info) {
			return RankConversion
		}
	}
	return RankNone
}
