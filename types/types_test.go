package types

import "testing"

func TestSame(t *testing.T) {
	a := NewClassInfo("A", nil)
	b := NewClassInfo("B", a)

	tests := []struct {
		name string
		x, y Type
		want bool
	}{
		{"int", Int{}, Int{}, true},
		{"top-level const ignored", Int{Const: true}, Int{}, true},
		{"int vs double", Int{}, Double{}, false},
		{"pointee const matters", Pointer{Elem: Int{Const: true}}, Pointer{Elem: Int{}}, false},
		{"pointer const ignored", Pointer{Elem: Int{}, Const: true}, Pointer{Elem: Int{}}, true},
		{"array pointer is pointer", ArrayPointer{Elem: Int{}, Origin: Origin{Handle: 3}}, Pointer{Elem: Int{}}, true},
		{"array length", Array{Elem: Int{}, Length: 3}, Array{Elem: Int{}, Length: 4}, false},
		{"class identity", Class{Info: a}, Class{Info: a}, true},
		{"derived is distinct", Class{Info: b}, Class{Info: a}, false},
		{"reference", Reference{Ref: Int{}}, Reference{Ref: Int{}}, true},
		{
			"function",
			Function{Return: Int{}, Params: []Type{Double{}}},
			Function{Return: Int{}, Params: []Type{Double{}}},
			true,
		},
		{
			"const member",
			Function{Return: Int{}, ConstMember: true},
			Function{Return: Int{}},
			false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Same(tc.x, tc.y); got != tc.want {
				t.Fatalf("Same(%s, %s) = %v, want %v", tc.x, tc.y, got, tc.want)
			}
		})
	}
}

func TestConversionRank(t *testing.T) {
	base := NewClassInfo("Base", nil)
	derived := NewClassInfo("Derived", base)

	tests := []struct {
		name     string
		from, to Type
		want     Rank
	}{
		{"exact", Int{}, Int{}, RankExact},
		{"char to int", Char{}, Int{}, RankPromotion},
		{"bool to int", Bool{}, Int{}, RankPromotion},
		{"int to double", Int{}, Double{}, RankConversion},
		{"double to int", Double{}, Int{}, RankConversion},
		{"pointer to bool", Pointer{Elem: Int{}}, Bool{}, RankConversion},
		{"null to pointer", Null{}, Pointer{Elem: Double{}}, RankConversion},
		{"int to pointer", Int{}, Pointer{Elem: Int{}}, RankNone},
		{"array decay", Array{Elem: Char{}, Length: 4}, Pointer{Elem: Char{}}, RankExact},
		{"drop pointee const", Pointer{Elem: Int{Const: true}}, Pointer{Elem: Int{}}, RankNone},
		{"add pointee const", Pointer{Elem: Int{}}, Pointer{Elem: Int{Const: true}}, RankExact},
		{"derived to base pointer", Pointer{Elem: Class{Info: derived}}, Pointer{Elem: Class{Info: base}}, RankConversion},
		{"base to derived pointer", Pointer{Elem: Class{Info: base}}, Pointer{Elem: Class{Info: derived}}, RankNone},
		{"to void pointer", Pointer{Elem: Int{}}, Pointer{Elem: Void{}}, RankConversion},
		{"bind reference", Int{}, Reference{Ref: Int{}}, RankExact},
		{"const object to non-const reference", Int{Const: true}, Reference{Ref: Int{}}, RankNone},
		{"temporary to const reference", Char{}, Reference{Ref: Int{Const: true}}, RankPromotion},
		{"derived to base reference", Class{Info: derived}, Reference{Ref: Class{Info: base}}, RankConversion},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ConversionRank(tc.from, tc.to); got != tc.want {
				t.Fatalf("ConversionRank(%s, %s) = %d, want %d", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestClassInfo_Layout(t *testing.T) {
	empty := NewClassInfo("Empty", nil)
	if empty.Size() != 1 {
		t.Fatalf("empty class size = %d, want 1", empty.Size())
	}

	a := NewClassInfo("A", nil)
	if off := a.AddField("x", Int{}); off != 0 {
		t.Fatalf("x offset = %d", off)
	}
	if off := a.AddField("d", Double{}); off != 4 {
		t.Fatalf("d offset = %d", off)
	}

	b := NewClassInfo("B", a)
	if off := b.AddField("c", Char{}); off != 12 {
		t.Fatalf("c offset = %d, want after base subobject", off)
	}
	if b.Size() != 13 {
		t.Fatalf("B size = %d", b.Size())
	}
	if _, ok := b.Field("x"); ok {
		t.Fatal("Field must only find members declared directly in the class")
	}
	if !b.DerivesFrom(a) || a.DerivesFrom(b) {
		t.Fatal("DerivesFrom wrong")
	}
}

func TestArrayPointer_Bounds(t *testing.T) {
	p := ArrayPointer{Elem: Int{}, Origin: Origin{Handle: 1, Start: 100, Length: 3}}
	if p.End() != 112 {
		t.Fatalf("End = %d", p.End())
	}
	for addr, want := range map[uint32]int{100: 0, 108: 2, 112: 3, 96: -1} {
		if got := p.Index(addr); got != want {
			t.Fatalf("Index(%d) = %d, want %d", addr, got, want)
		}
	}
	if p.String() != "int*" {
		t.Fatalf("String = %q", p.String())
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{Pointer{Elem: Char{Const: true}}, "const char*"},
		{Pointer{Elem: Int{}, Const: true}, "int* const"},
		{Array{Elem: Double{}, Length: 2}, "double[2]"},
		{Reference{Ref: Int{}}, "int&"},
		{Function{Return: Int{}, Params: []Type{Int{}, Char{}}, ConstMember: true}, "int(int, char) const"},
	}
	for _, tc := range tests {
		if got := tc.typ.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
