package config

import "github.com/pkg/errors"

// ErrSyntax is wrapped by every parse error produced below.
var ErrSyntax = errors.New("config syntax error")

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) eof() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() string {
	if p.eof() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

// parseTree parses the whole token stream as a sequence of top-level
// "server" blocks, interleaved with bare global directives
// (error_page, max_request_body). Ported from
// original_source/Config.cpp's parseFile loop, which pushes each
// top-level construct onto root_.sub_blocks or root_.directives
// depending on isBlock().
func parseTree(tokens []string) ([]Directive, []Block, error) {
	p := &parser{tokens: tokens}
	var directives []Directive
	var blocks []Block
	for !p.eof() {
		if p.isBlock() {
			b, err := p.parseBlock()
			if err != nil {
				return nil, nil, err
			}
			blocks = append(blocks, b)
			continue
		}
		d, err := p.parseDirective()
		if err != nil {
			return nil, nil, err
		}
		directives = append(directives, d)
	}
	return directives, blocks, nil
}

// isBlock looks ahead from the current directive name to decide whether
// it opens a block ("{" appears before the terminating ";") or is a
// plain directive. Ported from original_source/Config.cpp's lookahead
// in parseDirectiveOrBlock().
func (p *parser) isBlock() bool {
	for i := p.pos; i < len(p.tokens); i++ {
		switch p.tokens[i] {
		case "{":
			return true
		case ";":
			return false
		}
	}
	return false
}

// parseBlock parses "type [param] { directives-and-subblocks }".
func (p *parser) parseBlock() (Block, error) {
	var b Block
	if p.eof() {
		return b, errors.Wrap(ErrSyntax, "unexpected end of input, expected block")
	}
	b.Type = p.next()

	for p.peek() != "{" {
		if p.eof() {
			return b, errors.Wrapf(ErrSyntax, "%q block: unexpected end of input before '{'", b.Type)
		}
		if b.Param != "" {
			return b, errors.Wrapf(ErrSyntax, "%q block: too many parameters", b.Type)
		}
		b.Param = p.next()
	}
	p.next() // consume "{"

	for {
		if p.eof() {
			return b, errors.Wrapf(ErrSyntax, "%q block: missing closing '}'", b.Type)
		}
		if p.peek() == "}" {
			p.next()
			return b, nil
		}
		if p.isBlock() {
			sub, err := p.parseBlock()
			if err != nil {
				return b, err
			}
			b.SubBlocks = append(b.SubBlocks, sub)
			continue
		}
		d, err := p.parseDirective()
		if err != nil {
			return b, err
		}
		b.Directives = append(b.Directives, d)
	}
}

// parseDirective parses "name arg1 arg2 ... ;".
func (p *parser) parseDirective() (Directive, error) {
	var d Directive
	if p.eof() {
		return d, errors.Wrap(ErrSyntax, "unexpected end of input, expected directive")
	}
	d.Name = p.next()
	for {
		if p.eof() {
			return d, errors.Wrapf(ErrSyntax, "directive %q: missing terminating ';'", d.Name)
		}
		tok := p.next()
		if tok == ";" {
			return d, nil
		}
		if tok == "{" || tok == "}" {
			return d, errors.Wrapf(ErrSyntax, "directive %q: unexpected %q", d.Name, tok)
		}
		d.Args = append(d.Args, tok)
	}
}
