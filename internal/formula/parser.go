package formula

import (
	"fmt"
)

// Resolver maps a metric id to its name.
type Resolver func(id int) (string, error)

type parser struct {
	tokens  []token
	pos     int
	resolve Resolver
	refs    []string
}

// parse builds the expression tree of src. Every `$<id>` reference is
// resolved to a metric name here, once per formula.
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ "^" unary ]
//	primary = number | ref | ident "(" [ expr { "," expr } ] ")" | "(" expr ")"
func parse(src string, resolve Resolver) (Expr, []string, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, nil, err
	}

	p := &parser{tokens: tokens, resolve: resolve}
	expr, err := p.expr()
	if err != nil {
		return nil, nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, nil, fmt.Errorf("unexpected %s %q at offset %d", tok.kind, tok.text, tok.pos)
	}
	return expr, p.refs, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) isOp(ops ...string) bool {
	tok := p.peek()
	if tok.kind != tokOp {
		return false
	}
	for _, op := range ops {
		if tok.text == op {
			return true
		}
	}
	return false
}

func (p *parser) expect(kind tokenKind) error {
	tok := p.next()
	if tok.kind != kind {
		return fmt.Errorf("expected %s, found %s at offset %d", kind, tok.kind, tok.pos)
	}
	return nil
}

func (p *parser) expr() (Expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) term() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/") {
		op := p.next().text
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &binary{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if p.isOp("+", "-") {
		op := p.next().text
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unary{op: op, operand: operand}, nil
	}
	return p.power()
}

func (p *parser) power() (Expr, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if p.isOp("^") {
		p.next()
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &binary{op: "^", left: base, right: exp}, nil
	}
	return base, nil
}

func (p *parser) primary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return &number{value: tok.num}, nil

	case tokRef:
		name, err := p.resolve(tok.ref)
		if err != nil {
			return nil, err
		}
		p.refs = append(p.refs, name)
		return &metricRef{id: tok.ref, name: name}, nil

	case tokIdent:
		fn, ok := functions[tok.text]
		if !ok {
			return nil, fmt.Errorf("unknown function %q at offset %d", tok.text, tok.pos)
		}
		if err := p.expect(tokLParen); err != nil {
			return nil, err
		}
		var args []Expr
		if p.peek().kind != tokRParen {
			for {
				arg, err := p.expr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.peek().kind != tokComma {
					break
				}
				p.next()
			}
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
			return nil, fmt.Errorf("wrong number of arguments to %s: %d", tok.text, len(args))
		}
		return &call{name: tok.text, fn: fn, args: args}, nil

	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return inner, nil

	default:
		return nil, fmt.Errorf("unexpected %s at offset %d", tok.kind, tok.pos)
	}
}
