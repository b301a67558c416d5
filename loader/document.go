// Package loader compiles YAML program descriptions into sim programs.
//
// A document lists globals, classes and functions. Types are written the way
// they are in C++ ("int", "const char*", "int[4]", "Shape&"). Expressions and
// statements are scalars or single-key maps:
//
//	functions:
//	  - name: main
//	    returns: int
//	    body:
//	      - decl: {name: p, type: "int*", init: [{new: [int, 3]}]}
//	      - cout: [{deref: p}, {str: "\n"}]
//	      - delete: p
//	      - return: 0
//
// Schema problems are reported as load errors carrying the line. Name lookup
// and overload errors found while building keep their own phase and kind and
// are wrapped in a load error with the line of the statement.
package loader

import (
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a program.
type Document struct {
	Input     string     `yaml:"input"`
	Globals   []Variable `yaml:"globals"`
	Classes   []Class    `yaml:"classes"`
	Functions []Function `yaml:"functions"`
}

// Variable declares a global or local variable.
type Variable struct {
	Name string      `yaml:"name"`
	Type string      `yaml:"type"`
	Init []yaml.Node `yaml:"init"`
}

// Param is a function parameter or a class field.
type Param struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Class describes a class and its members.
type Class struct {
	Name         string        `yaml:"name"`
	Base         string        `yaml:"base"`
	Fields       []Param       `yaml:"fields"`
	Constructors []Constructor `yaml:"constructors"`
	Destructor   *Destructor   `yaml:"destructor"`
	Methods      []Function    `yaml:"methods"`
}

// Constructor describes a constructor with its initializer list.
type Constructor struct {
	Params  []Param      `yaml:"params"`
	Base    []yaml.Node  `yaml:"base"`
	Members []MemberInit `yaml:"members"`
	Body    []yaml.Node  `yaml:"body"`
}

// MemberInit initializes one field in a constructor's initializer list.
type MemberInit struct {
	Name string      `yaml:"name"`
	Args []yaml.Node `yaml:"args"`
}

// Destructor describes a destructor.
type Destructor struct {
	Virtual bool        `yaml:"virtual"`
	Body    []yaml.Node `yaml:"body"`
}

// Function describes a free function or a method.
type Function struct {
	Name    string      `yaml:"name"`
	Returns string      `yaml:"returns"`
	Params  []Param     `yaml:"params"`
	Virtual bool        `yaml:"virtual"`
	Const   bool        `yaml:"const"`
	Body    []yaml.Node `yaml:"body"`
}
