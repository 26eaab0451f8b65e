package config

// Directive is a name followed by its argument tokens, as they appeared
// before the terminating ';'. Ported from original_source/DirectiveNode.hpp.
type Directive struct {
	Name string
	Args []string
}

// Block is a named, optionally-parameterized group of directives and
// nested blocks. The only recognised types are "server" (top-level) and
// "location" (nested inside a server, carrying its path prefix as Param).
// Ported from original_source/BlockNode.hpp.
type Block struct {
	Type       string
	Param      string
	Directives []Directive
	SubBlocks  []Block
}
