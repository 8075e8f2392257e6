package query

// Parser builds an expression tree from tokens.
//
// Grammar (OR binds loosest, NOT tightest, AND may be implicit):
//
//	expr    := term (OR term)*
//	term    := factor (AND? factor)*
//	factor  := NOT? primary
//	primary := QUERY | LPAREN expr RPAREN
type Parser struct {
	tokens []Token
	pos    int
}

func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse returns the expression, or nil when there is no QUERY token.
func (p *Parser) Parse() (Expr, error) {
	if !p.hasQuery() {
		return nil, nil
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if !p.check(EOF) {
		return nil, syntaxErr("unexpected token %s at position %d", p.current().Kind, p.pos)
	}
	return e, nil
}

func (p *Parser) hasQuery() bool {
	for _, t := range p.tokens {
		if t.Kind == QUERY {
			return true
		}
	}
	return false
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Kind: EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) check(k Kind) bool { return p.current().Kind == k }

func (p *Parser) match(k Kind) bool {
	if p.check(k) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expr() (Expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.match(OR) {
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) term() (Expr, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.check(AND) || p.check(QUERY) || p.check(NOT) || p.check(LPAREN) {
		p.match(AND)
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) factor() (Expr, error) {
	if p.match(NOT) {
		operand, err := p.primary()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}
	return p.primary()
}

func (p *Parser) primary() (Expr, error) {
	if p.match(LPAREN) {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if !p.match(RPAREN) {
			return nil, syntaxErr("expected RPAREN at position %d, got %s", p.pos, p.current().Kind)
		}
		return e, nil
	}
	if tok := p.current(); tok.Kind == QUERY {
		p.pos++
		return &Term{Text: tok.Value}, nil
	}
	return nil, syntaxErr("expected query or '(' at position %d, got %s", p.pos, p.current().Kind)
}

// ParseCommand tokenizes args and parses the query expression.
func ParseCommand(args []string) (*Command, error) {
	tokens, cmd, err := Tokenize(args)
	if err != nil {
		return nil, err
	}
	expr, err := NewParser(tokens).Parse()
	if err != nil {
		return nil, err
	}
	cmd.Expr = expr
	return cmd, nil
}
