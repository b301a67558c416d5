package loader

import (
	"strconv"
	"strings"

	"github.com/wippyai/cppsim/types"
)

// parseType parses a C++ type name. Declarators bind right to left, so
// "const char*[3]" is an array of three pointers to const char.
func (c *compiler) parseType(s string) (types.Type, bool) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, false
	case strings.HasSuffix(s, "]"):
		open := strings.LastIndexByte(s, '[')
		if open < 0 {
			return nil, false
		}
		n, err := strconv.ParseUint(strings.TrimSpace(s[open+1:len(s)-1]), 10, 32)
		if err != nil || n == 0 {
			return nil, false
		}
		elem, ok := c.parseType(s[:open])
		if !ok {
			return nil, false
		}
		return types.Array{Elem: elem, Length: uint32(n)}, true
	case strings.HasSuffix(s, "&"):
		elem, ok := c.parseType(s[:len(s)-1])
		return types.Reference{Ref: elem}, ok
	case strings.HasSuffix(s, "*"):
		elem, ok := c.parseType(s[:len(s)-1])
		return types.Pointer{Elem: elem}, ok
	case strings.HasSuffix(s, " const"):
		t, ok := c.parseType(strings.TrimSuffix(s, " const"))
		if !ok {
			return nil, false
		}
		return t.WithConst(true), true
	case strings.HasPrefix(s, "const "):
		t, ok := c.parseType(strings.TrimPrefix(s, "const "))
		if !ok {
			return nil, false
		}
		return t.WithConst(true), true
	}

	switch s {
	case "int":
		return types.Int{}, true
	case "double":
		return types.Double{}, true
	case "char":
		return types.Char{}, true
	case "bool":
		return types.Bool{}, true
	case "void":
		return types.Void{}, true
	}
	if cb, ok := c.classes[s]; ok {
		return cb.Type(), true
	}
	return nil, false
}
