package language

import (
	"strconv"
	"strings"

	"github.com/truora/minisql/types"
)

// Parser represent the expression parser, it walks a token stream produced by
// the lexer with precedence climbing
type Parser struct {
	tokens []Token
	pos    int
}

const (
	_ int = iota
	precedenceLowest
	precedenceOR         // OR ||
	precedenceXOR        // XOR
	precedenceAND        // AND &&
	precedenceNOT        // NOT
	precedenceBetween    // BETWEEN CASE WHEN THEN ELSE
	precedenceComparison // = <=> >= > <= < <> != IS LIKE REGEXP RLIKE IN SOUNDS
	precedenceBitOr      // |
	precedenceBitAnd     // &
	precedenceShift      // << >>
	precedenceSum        // - +
	precedenceProduct    // * / DIV % MOD
	precedenceBitXor     // ^
	precedenceUnary      // - + ~
	precedenceBang       // !
	precedenceCollate    // BINARY COLLATE
	precedenceInterval   // INTERVAL
)

// LowestPrecedence lets Parse consume a complete expression
const LowestPrecedence = precedenceLowest

var precedences = map[string]int{
	OR:       precedenceOR,
	"||":     precedenceOR,
	XOR:      precedenceXOR,
	AND:      precedenceAND,
	"&&":     precedenceAND,
	BETWEEN:  precedenceBetween,
	"=":      precedenceComparison,
	"<=>":    precedenceComparison,
	">=":     precedenceComparison,
	">":      precedenceComparison,
	"<=":     precedenceComparison,
	"<":      precedenceComparison,
	"<>":     precedenceComparison,
	"!=":     precedenceComparison,
	IS:       precedenceComparison,
	LIKE:     precedenceComparison,
	REGEXP:   precedenceComparison,
	RLIKE:    precedenceComparison,
	IN:       precedenceComparison,
	SOUNDS:   precedenceComparison,
	"|":      precedenceBitOr,
	"&":      precedenceBitAnd,
	"<<":     precedenceShift,
	">>":     precedenceShift,
	"-":      precedenceSum,
	"+":      precedenceSum,
	"*":      precedenceProduct,
	"/":      precedenceProduct,
	DIV:      precedenceProduct,
	"%":      precedenceProduct,
	MOD:      precedenceProduct,
	"^":      precedenceBitXor,
	COLLATE:  precedenceCollate,
	INTERVAL: precedenceInterval,
}

// booleanOperators produce 1/0 and support negation
var booleanOperators = map[string]bool{
	AND: true, OR: true, "=": true, "<>": true, "!=": true, "<": true, "<=": true,
	">": true, ">=": true, LIKE: true, REGEXP: true, RLIKE: true, IS: true,
}

// keywords usable as function names
var keywordFunctions = map[string]bool{
	"VALUES": true, MOD: true, BINARY: true, "LEFT": true, "RIGHT": true, "INSERT": true,
}

// niladic functions MySQL accepts without parentheses
var bareFunctions = map[string]string{
	"CURRENT_TIMESTAMP": "NOW",
	"LOCALTIMESTAMP":    "NOW",
	"LOCALTIME":         "NOW",
	"CURRENT_DATE":      "CURDATE",
}

var castTypes = map[string]bool{
	"SIGNED": true, "UNSIGNED": true, "INTEGER": true, "INT": true, "CHAR": true,
	"NCHAR": true, "DECIMAL": true, "NUMERIC": true, "DOUBLE": true, "FLOAT": true,
	"REAL": true, "DATE": true, "DATETIME": true, "TIME": true, BINARY: true, "JSON": true,
}

// ParseExpression parses a complete expression, trailing tokens are an error
func ParseExpression(sql string) (Expression, error) {
	tokens, err := NewLexer(sql).Tokens()
	if err != nil {
		return nil, err
	}

	pos, exp, err := Parse(tokens, 0, nil, precedenceLowest, false)
	if err != nil {
		return nil, err
	}

	for pos < len(tokens) && tokens[pos].Type == SEMICOLON {
		pos++
	}

	if pos < len(tokens) {
		return nil, types.NewParseError(tokens[pos].Raw, tokens[pos].Position, "unexpected %s", tokens[pos].Raw)
	}

	return exp, nil
}

// Parse builds an expression starting at tokens[pointer]. The seed is used as
// the left operand when it is not nil. Operators binding looser than
// minPrecedence are left for the caller; with nested the parse stops at an
// unmatched closing parenthesis. It returns the position of the first token
// that was not consumed.
func Parse(tokens []Token, pointer int, seed Expression, minPrecedence int, nested bool) (int, Expression, error) {
	p := &Parser{tokens: tokens, pos: pointer}

	exp, err := p.parseExpression(seed, minPrecedence, nested)
	if err != nil {
		return p.pos, nil, err
	}

	if !exp.WellFormed() {
		return p.pos, nil, p.errorf(tokenOf(exp), "incomplete expression %s", exp.String())
	}

	return p.pos, exp, nil
}

func (p *Parser) cur() Token {
	return p.peek(0)
}

func (p *Parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		position := 0
		if len(p.tokens) > 0 {
			last := p.tokens[len(p.tokens)-1]
			position = last.Position + len(last.Raw)
		}

		return Token{Type: EOF, Position: position}
	}

	return p.tokens[p.pos+n]
}

func (p *Parser) next() {
	p.pos++
}

func (p *Parser) expect(t TokenType) (Token, error) {
	tok := p.cur()
	if tok.Type != t {
		return tok, p.errorf(tok, "expected %s", t)
	}

	p.next()

	return tok, nil
}

func (p *Parser) errorf(tok Token, format string, a ...interface{}) error {
	near := tok.Raw
	if tok.Type == EOF {
		near = "end of input"
	}

	return types.NewParseError(near, tok.Position, format, a...)
}

func (p *Parser) parseExpression(left Expression, minPrecedence int, nested bool) (Expression, error) {
	var err error

	if left == nil {
		left, err = p.parsePrefix(nested)
		if err != nil {
			return nil, err
		}
	}

	for {
		tok := p.cur()

		switch tok.Type {
		case EOF, COMMA, SEMICOLON:
			return left, nil
		case RPAREN:
			if !nested {
				return nil, p.errorf(tok, "unmatched )")
			}

			return left, nil
		}

		op, precedence, ok := p.infixOperator()
		if !ok || precedence < minPrecedence {
			return left, nil
		}

		left, err = p.parseInfix(left, op, precedence, nested)
		if err != nil {
			return nil, err
		}
	}
}

func (p *Parser) infixOperator() (string, int, bool) {
	tok := p.cur()
	if tok.Type != OPERATOR && tok.Type != KEYWORD {
		return "", 0, false
	}

	if tok.Literal == NOT {
		next := p.peek(1)

		switch {
		case next.Is(IN), next.Is(LIKE), next.Is(REGEXP), next.Is(RLIKE):
			return NOT, precedenceComparison, true
		case next.Is(BETWEEN):
			return NOT, precedenceBetween, true
		}

		return "", 0, false
	}

	precedence, ok := precedences[tok.Literal]
	if !ok || tok.Literal == INTERVAL {
		return "", 0, false
	}

	return tok.Literal, precedence, true
}

func (p *Parser) parseInfix(left Expression, op string, precedence int, nested bool) (Expression, error) {
	tok := p.cur()

	switch op {
	case NOT:
		p.next()

		exp, err := p.parseInfix(left, p.cur().Literal, precedence, nested)
		if err != nil {
			return nil, err
		}

		return Negate(exp)
	case BETWEEN:
		return p.parseBetween(left, nested)
	case IN:
		return p.parseIn(left)
	case IS:
		return p.parseIs(left)
	case COLLATE:
		return p.parseCollate(left)
	case SOUNDS:
		p.next()

		if !p.cur().Is(LIKE) {
			return nil, p.errorf(p.cur(), "expected LIKE after SOUNDS")
		}
	}

	p.next()

	// left associative: the right operand only takes tighter operators
	right, err := p.parseExpression(nil, precedence+1, nested)
	if err != nil {
		return nil, err
	}

	return &BinaryExpression{Token: tok, Left: left, Operator: op, Right: right}, nil
}

func (p *Parser) parseBetween(left Expression, nested bool) (Expression, error) {
	tok := p.cur()
	p.next()

	b := newBetweenBuilder(tok, left)

	err := p.parseBetweenBound(b, nested)
	if err != nil {
		return nil, err
	}

	if !p.cur().Is(AND) {
		return nil, p.errorf(p.cur(), "BETWEEN expects AND")
	}

	err = b.foundAnd()
	if err != nil {
		return nil, err
	}

	p.next()

	err = p.parseBetweenBound(b, nested)
	if err != nil {
		return nil, err
	}

	return b.build()
}

// parseBetweenBound reads a bound at bit expression level; a comparison that
// follows is rooted on the bound just read
func (p *Parser) parseBetweenBound(b *betweenBuilder, nested bool) error {
	bound, err := p.parseExpression(nil, precedenceBitOr, nested)
	if err != nil {
		return err
	}

	err = b.setNextChild(bound, false)
	if err != nil {
		return err
	}

	for {
		_, precedence, ok := p.infixOperator()
		if !ok || precedence != precedenceComparison {
			return nil
		}

		rerooted, err := p.parseExpression(b.latest(), precedenceComparison, nested)
		if err != nil {
			return err
		}

		err = b.setNextChild(rerooted, true)
		if err != nil {
			return err
		}
	}
}

func (p *Parser) parseIn(left Expression) (Expression, error) {
	tok := p.cur()
	p.next()

	open, err := p.expect(LPAREN)
	if err != nil {
		return nil, err
	}

	b := newListBuilder(tok, listIn)
	b.left = left

	if p.cur().Is(SELECT) {
		sub, err := p.parseSubquery(open)
		if err != nil {
			return nil, err
		}

		err = b.setNextChild(sub, false)
		if err != nil {
			return nil, err
		}

		b.close()

		return b.build()
	}

	err = p.parseList(b)
	if err != nil {
		return nil, err
	}

	return b.build()
}

func (p *Parser) parseIs(left Expression) (Expression, error) {
	tok := p.cur()
	p.next()

	negated := false
	if p.cur().Is(NOT) {
		negated = true

		p.next()
	}

	valTok := p.cur()

	var value Object

	switch {
	case valTok.Type == NULLCONST, valTok.Is(UNKNOWN):
		value = NULL
	case valTok.Is(TrueKeyword):
		value = TRUE
	case valTok.Is(FalseKeyword):
		value = FALSE
	default:
		return nil, p.errorf(valTok, "IS expects NULL, TRUE, FALSE or UNKNOWN")
	}

	p.next()

	return &BinaryExpression{
		Token:    tok,
		Left:     left,
		Operator: IS,
		Right:    &ConstantExpression{Token: valTok, Value: value},
		Negated:  negated,
	}, nil
}

func (p *Parser) parseCollate(left Expression) (Expression, error) {
	tok := p.cur()
	p.next()

	collation := p.cur()
	if collation.Type != IDENT && collation.Type != STRING {
		return nil, p.errorf(collation, "expected a collation name")
	}

	p.next()

	return &BinaryExpression{
		Token:    tok,
		Left:     left,
		Operator: COLLATE,
		Right:    &ConstantExpression{Token: collation, Value: &String{Value: collation.Literal}},
	}, nil
}

// parseList reads comma separated expressions up to the closing parenthesis,
// the opening one is already consumed
func (p *Parser) parseList(b *listBuilder) error {
	if p.cur().Type == RPAREN {
		p.next()
		b.close()

		return nil
	}

	for {
		exp, err := p.parseExpression(nil, precedenceLowest, true)
		if err != nil {
			return err
		}

		err = b.setNextChild(exp, false)
		if err != nil {
			return err
		}

		tok := p.cur()

		switch {
		case tok.Type == COMMA:
			p.next()
		case tok.Type == RPAREN:
			p.next()
			b.close()

			return nil
		case b.kind == listFunction && (b.name == "SUBSTRING" || b.name == "SUBSTR") && (tok.Is("FROM") || tok.Is("FOR")):
			p.next()
		default:
			return p.errorf(tok, "expected , or )")
		}
	}
}

// parseSubquery captures the balanced token range of a nested statement, the
// current token is the first one after the opening parenthesis
func (p *Parser) parseSubquery(open Token) (*SubqueryExpression, error) {
	depth := 1
	start := p.pos

	for ; p.pos < len(p.tokens); p.pos++ {
		switch p.tokens[p.pos].Type {
		case LPAREN:
			depth++
		case RPAREN:
			depth--
			if depth == 0 {
				sub := &SubqueryExpression{Token: open, Tokens: append([]Token{}, p.tokens[start:p.pos]...)}
				p.pos++

				for _, t := range p.tokens[:start] {
					if t.Type == PARAM {
						sub.ParamOffset++
					}
				}

				return sub, nil
			}
		}
	}

	return nil, p.errorf(open, "unterminated subquery")
}

func (p *Parser) parsePrefix(nested bool) (Expression, error) {
	tok := p.cur()

	switch tok.Type {
	case NUMBER:
		p.next()

		return p.parseNumber(tok)
	case STRING:
		p.next()

		return &ConstantExpression{Token: tok, Value: &String{Value: tok.Literal}}, nil
	case NULLCONST:
		p.next()

		return &ConstantExpression{Token: tok, Value: NULL}, nil
	case PARAM:
		index := 0

		for _, t := range p.tokens[:p.pos] {
			if t.Type == PARAM {
				index++
			}
		}

		p.next()

		return &ParameterExpression{Token: tok, Index: index}, nil
	case NAMEDPARAM:
		p.next()

		return &ParameterExpression{Token: tok, Name: tok.Literal}, nil
	case VARIABLE:
		p.next()

		return &VariableExpression{Token: tok, Name: tok.Literal}, nil
	case LPAREN:
		return p.parseGrouped()
	case IDENT:
		return p.parseIdentifier()
	case KEYWORD:
		return p.parseKeyword(nested)
	case OPERATOR:
		return p.parseOperatorPrefix(nested)
	case EOF:
		return nil, p.errorf(tok, "unexpected end of expression")
	}

	return nil, p.errorf(tok, "unexpected %s", tok.Raw)
}

func (p *Parser) parseNumber(tok Token) (Expression, error) {
	lit := tok.Literal

	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		u, err := strconv.ParseUint(lit[2:], 16, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid hexadecimal literal")
		}

		return &ConstantExpression{Token: tok, Value: newUnsigned(u)}, nil
	}

	if !strings.ContainsAny(lit, ".eE") {
		if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
			return &ConstantExpression{Token: tok, Value: &Integer{Value: i}}, nil
		}
	}

	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, p.errorf(tok, "invalid numeric literal")
	}

	return &ConstantExpression{Token: tok, Value: &Float{Value: f}}, nil
}

func (p *Parser) parseGrouped() (Expression, error) {
	open := p.cur()
	p.next()

	if p.cur().Is(SELECT) {
		return p.parseSubquery(open)
	}

	first, err := p.parseExpression(nil, precedenceLowest, true)
	if err != nil {
		return nil, err
	}

	if p.cur().Type == COMMA {
		p.next()

		b := newListBuilder(open, listRow)

		err = b.setNextChild(first, false)
		if err != nil {
			return nil, err
		}

		err = p.parseList(b)
		if err != nil {
			return nil, err
		}

		return b.build()
	}

	_, err = p.expect(RPAREN)
	if err != nil {
		return nil, err
	}

	return first, nil
}

func (p *Parser) parseIdentifier() (Expression, error) {
	tok := p.cur()

	if p.peek(1).Type == LPAREN && !strings.Contains(tok.Literal, ".") {
		return p.parseFunction(tok)
	}

	p.next()

	if name, ok := bareFunctions[strings.ToUpper(tok.Literal)]; ok && !strings.HasPrefix(tok.Raw, "`") {
		return &FunctionExpression{Token: tok, Name: name, Arguments: []Expression{}}, nil
	}

	return NewColumnExpression(tok), nil
}

func (p *Parser) parseFunction(nameTok Token) (Expression, error) {
	name := strings.ToUpper(nameTok.Literal)

	p.next()
	p.next()

	switch name {
	case "CAST":
		return p.parseCast(nameTok)
	case "CONVERT":
		return p.parseConvert(nameTok)
	}

	b := newListBuilder(nameTok, listFunction)
	b.name = name

	if p.cur().Is(DISTINCT) {
		b.distinct = true

		p.next()
	}

	err := p.parseList(b)
	if err != nil {
		return nil, err
	}

	return b.build()
}

func (p *Parser) parseCast(tok Token) (Expression, error) {
	exp, err := p.parseExpression(nil, precedenceLowest, true)
	if err != nil {
		return nil, err
	}

	if !p.cur().Is(AS) {
		return nil, p.errorf(p.cur(), "CAST expects AS")
	}

	p.next()

	castType, err := p.parseCastType()
	if err != nil {
		return nil, err
	}

	_, err = p.expect(RPAREN)
	if err != nil {
		return nil, err
	}

	return &CastExpression{Token: tok, Expression: exp, Type: castType}, nil
}

func (p *Parser) parseConvert(tok Token) (Expression, error) {
	exp, err := p.parseExpression(nil, precedenceLowest, true)
	if err != nil {
		return nil, err
	}

	castType := CastType{Name: "CHAR"}

	switch {
	case p.cur().Type == COMMA:
		p.next()

		castType, err = p.parseCastType()
		if err != nil {
			return nil, err
		}
	case p.cur().Is("USING"):
		p.next()

		if p.cur().Type != IDENT {
			return nil, p.errorf(p.cur(), "expected a character set name")
		}

		p.next()
	default:
		return nil, p.errorf(p.cur(), "CONVERT expects a type or USING")
	}

	_, err = p.expect(RPAREN)
	if err != nil {
		return nil, err
	}

	return &CastExpression{Token: tok, Expression: exp, Type: castType}, nil
}

func (p *Parser) parseCastType() (CastType, error) {
	tok := p.cur()
	name := strings.ToUpper(tok.Literal)

	if (tok.Type != IDENT && tok.Type != KEYWORD) || !castTypes[name] {
		return CastType{}, p.errorf(tok, "unknown cast type %s", tok.Raw)
	}

	p.next()

	castType := CastType{Name: name}

	switch name {
	case "SIGNED", "UNSIGNED":
		next := strings.ToUpper(p.cur().Literal)
		if p.cur().Type == IDENT && (next == "INTEGER" || next == "INT") {
			p.next()
		}
	case "INT", "INTEGER":
		castType.Name = "SIGNED"
	}

	if p.cur().Type != LPAREN {
		return castType, nil
	}

	p.next()

	length, err := p.expect(NUMBER)
	if err != nil {
		return CastType{}, err
	}

	castType.Length, err = strconv.Atoi(length.Literal)
	if err != nil {
		return CastType{}, p.errorf(length, "invalid type length")
	}

	if p.cur().Type == COMMA {
		p.next()

		scale, err := p.expect(NUMBER)
		if err != nil {
			return CastType{}, err
		}

		castType.Scale, err = strconv.Atoi(scale.Literal)
		if err != nil {
			return CastType{}, p.errorf(scale, "invalid type scale")
		}
	}

	_, err = p.expect(RPAREN)
	if err != nil {
		return CastType{}, err
	}

	return castType, nil
}

func (p *Parser) parseKeyword(nested bool) (Expression, error) {
	tok := p.cur()

	switch tok.Literal {
	case NOT:
		p.next()

		operand, err := p.parseExpression(nil, precedenceNOT, nested)
		if err != nil {
			return nil, err
		}

		return negateOrBang(tok, operand)
	case TrueKeyword:
		p.next()

		return &ConstantExpression{Token: tok, Value: TRUE}, nil
	case FalseKeyword:
		p.next()

		return &ConstantExpression{Token: tok, Value: FALSE}, nil
	case CASE:
		return p.parseCase()
	case EXISTS:
		p.next()

		open, err := p.expect(LPAREN)
		if err != nil {
			return nil, err
		}

		if !p.cur().Is(SELECT) {
			return nil, p.errorf(p.cur(), "EXISTS expects a subquery")
		}

		sub, err := p.parseSubquery(open)
		if err != nil {
			return nil, err
		}

		return &ExistsExpression{Token: tok, Subquery: sub}, nil
	case INTERVAL:
		return p.parseInterval(nested)
	case ROW:
		p.next()

		open, err := p.expect(LPAREN)
		if err != nil {
			return nil, err
		}

		b := newListBuilder(open, listRow)

		err = p.parseList(b)
		if err != nil {
			return nil, err
		}

		return b.build()
	case ANY, SOME, "ALL":
		if p.peek(1).Type == LPAREN && p.peek(2).Is(SELECT) {
			p.next()
			open := p.cur()
			p.next()

			sub, err := p.parseSubquery(open)
			if err != nil {
				return nil, err
			}

			return &UnaryExpression{Token: tok, Operator: tok.Literal, Right: sub}, nil
		}
	}

	if keywordFunctions[tok.Literal] && p.peek(1).Type == LPAREN {
		return p.parseFunction(tok)
	}

	if tok.Literal == BINARY {
		p.next()

		operand, err := p.parseExpression(nil, precedenceCollate, nested)
		if err != nil {
			return nil, err
		}

		return &FunctionExpression{Token: tok, Name: BINARY, Arguments: []Expression{operand}}, nil
	}

	return nil, p.errorf(tok, "unexpected keyword %s", tok.Literal)
}

func negateOrBang(tok Token, operand Expression) (Expression, error) {
	switch node := operand.(type) {
	case *BetweenExpression, *InExpression, *ExistsExpression:
		return Negate(operand)
	case *BinaryExpression:
		if booleanOperators[node.Operator] {
			return Negate(operand)
		}
	}

	return &UnaryExpression{Token: tok, Operator: "!", Right: operand}, nil
}

func (p *Parser) parseCase() (Expression, error) {
	tok := p.cur()
	p.next()

	b := newCaseBuilder(tok)

	for {
		cur := p.cur()

		switch {
		case cur.Type == EOF:
			return nil, p.errorf(cur, "CASE without END")
		case cur.Is(WHEN), cur.Is(THEN), cur.Is(ELSE), cur.Is(END):
			err := b.keyword(cur)
			if err != nil {
				return nil, err
			}

			p.next()

			if cur.Is(END) {
				return b.build()
			}
		default:
			exp, err := p.parseExpression(nil, precedenceLowest, true)
			if err != nil {
				return nil, err
			}

			err = b.setNextChild(exp, false)
			if err != nil {
				return nil, err
			}
		}
	}
}

func (p *Parser) parseInterval(nested bool) (Expression, error) {
	tok := p.cur()
	p.next()

	number, err := p.parseExpression(nil, precedenceLowest, nested)
	if err != nil {
		return nil, err
	}

	unitTok := p.cur()

	unit, ok := intervalUnits[strings.ToUpper(unitTok.Literal)]
	if (unitTok.Type != IDENT && unitTok.Type != KEYWORD) || !ok {
		return nil, p.errorf(unitTok, "unknown interval unit %s", unitTok.Raw)
	}

	p.next()

	return &IntervalExpression{Token: tok, Number: number, Unit: unit}, nil
}

func (p *Parser) parseOperatorPrefix(nested bool) (Expression, error) {
	tok := p.cur()

	var operator string

	precedence := precedenceUnary

	switch tok.Literal {
	case "-":
		operator = UnaryMinus
	case "+":
		operator = UnaryPlus
	case "~":
		operator = "~"
	case "!":
		operator = "!"
		precedence = precedenceBang
	case "*":
		p.next()

		return &ColumnExpression{Token: tok, Column: "*"}, nil
	default:
		return nil, p.errorf(tok, "unexpected operator %s", tok.Literal)
	}

	p.next()

	operand, err := p.parseExpression(nil, precedence, nested)
	if err != nil {
		return nil, err
	}

	return &UnaryExpression{Token: tok, Operator: operator, Right: operand}, nil
}
