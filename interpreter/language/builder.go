package language

import (
	"github.com/truora/minisql/types"
)

// builder assembles a compound expression one child at a time. A node is only
// produced by build once every required child is in place.
type builder interface {
	// setNextChild fills the next empty slot, with overwrite the latest filled
	// slot is replaced instead
	setNextChild(exp Expression, overwrite bool) error
	wellFormed() bool
	build() (Expression, error)
}

type betweenBuilder struct {
	token   Token
	left    Expression
	start   Expression
	end     Expression
	andSeen bool
	negated bool
}

func newBetweenBuilder(tok Token, left Expression) *betweenBuilder {
	return &betweenBuilder{token: tok, left: left}
}

func (b *betweenBuilder) setNextChild(exp Expression, overwrite bool) error {
	if overwrite {
		switch {
		case b.end != nil:
			b.end = exp
		case b.start != nil:
			b.start = exp
		default:
			return b.errorf("nothing to replace in BETWEEN")
		}

		return nil
	}

	switch {
	case b.start == nil:
		b.start = exp
	case !b.andSeen:
		return b.errorf("BETWEEN expects AND after the lower bound")
	case b.end == nil:
		b.end = exp
	default:
		return b.errorf("BETWEEN is already complete")
	}

	return nil
}

// latest returns the most recently filled bound
func (b *betweenBuilder) latest() Expression {
	if b.end != nil {
		return b.end
	}

	return b.start
}

func (b *betweenBuilder) foundAnd() error {
	if b.andSeen {
		return b.errorf("unexpected AND in BETWEEN")
	}

	if b.start == nil {
		return b.errorf("BETWEEN requires a lower bound before AND")
	}

	b.andSeen = true

	return nil
}

func (b *betweenBuilder) wellFormed() bool {
	return b.left != nil && b.start != nil && b.andSeen && b.end != nil
}

func (b *betweenBuilder) build() (Expression, error) {
	if !b.wellFormed() {
		return nil, b.errorf("incomplete BETWEEN expression")
	}

	return &BetweenExpression{
		Token:   b.token,
		Left:    b.left,
		Start:   b.start,
		End:     b.end,
		Negated: b.negated,
	}, nil
}

func (b *betweenBuilder) errorf(format string, a ...interface{}) error {
	return types.NewParseError(b.token.Raw, b.token.Position, format, a...)
}

type caseState int

const (
	caseStateCase caseState = iota
	caseStateWhen
	caseStateThen
	caseStateElse
	caseStateEnd
)

var caseStateNames = map[caseState]string{
	caseStateCase: CASE,
	caseStateWhen: WHEN,
	caseStateThen: THEN,
	caseStateElse: ELSE,
	caseStateEnd:  END,
}

type caseBuilder struct {
	token    Token
	state    caseState
	filled   bool
	subject  Expression
	when     Expression
	branches []CaseBranch
	elseExp  Expression
}

func newCaseBuilder(tok Token) *caseBuilder {
	return &caseBuilder{token: tok, state: caseStateCase}
}

// keyword moves the state machine CASE -> (WHEN -> THEN)+ -> [ELSE] -> END
func (b *caseBuilder) keyword(tok Token) error {
	next := caseStateEnd

	switch tok.Literal {
	case WHEN:
		next = caseStateWhen
	case THEN:
		next = caseStateThen
	case ELSE:
		next = caseStateElse
	case END:
		next = caseStateEnd
	default:
		return types.NewParseError(tok.Raw, tok.Position, "unexpected %s in CASE", tok.Literal)
	}

	legal := false

	switch next {
	case caseStateWhen:
		legal = b.state == caseStateCase || (b.state == caseStateThen && b.filled)
	case caseStateThen:
		legal = b.state == caseStateWhen && b.filled
	case caseStateElse:
		legal = b.state == caseStateThen && b.filled
	case caseStateEnd:
		legal = (b.state == caseStateThen || b.state == caseStateElse) && b.filled
	}

	if !legal {
		return types.NewParseError(tok.Raw, tok.Position, "unexpected %s after %s", tok.Literal, caseStateNames[b.state])
	}

	b.state = next
	b.filled = false

	return nil
}

func (b *caseBuilder) setNextChild(exp Expression, overwrite bool) error {
	if b.filled && !overwrite {
		return types.NewParseError(b.token.Raw, b.token.Position, "unexpected expression after %s", caseStateNames[b.state])
	}

	switch b.state {
	case caseStateCase:
		b.subject = exp
	case caseStateWhen:
		b.when = exp
	case caseStateThen:
		if b.filled {
			b.branches[len(b.branches)-1].Then = exp
		} else {
			b.branches = append(b.branches, CaseBranch{When: b.when, Then: exp})
		}
	case caseStateElse:
		b.elseExp = exp
	default:
		return types.NewParseError(b.token.Raw, b.token.Position, "CASE is already complete")
	}

	b.filled = true

	return nil
}

func (b *caseBuilder) wellFormed() bool {
	return b.state == caseStateEnd && len(b.branches) > 0
}

func (b *caseBuilder) build() (Expression, error) {
	if !b.wellFormed() {
		return nil, types.NewParseError(b.token.Raw, b.token.Position, "incomplete CASE expression")
	}

	elseExp := b.elseExp
	if elseExp == nil {
		elseExp = &ConstantExpression{Token: Token{Type: NULLCONST, Literal: "NULL", Raw: "NULL"}, Value: NULL}
	}

	return &CaseExpression{
		Token:    b.token,
		Case:     b.subject,
		Branches: b.branches,
		Else:     elseExp,
	}, nil
}

type listKind int

const (
	listIn listKind = iota
	listFunction
	listRow
)

// listBuilder collects the comma separated children of IN lists, function
// arguments and row constructors
type listBuilder struct {
	token    Token
	kind     listKind
	left     Expression
	name     string
	distinct bool
	closed   bool
	elements []Expression
}

func newListBuilder(tok Token, kind listKind) *listBuilder {
	return &listBuilder{token: tok, kind: kind, elements: []Expression{}}
}

func (b *listBuilder) setNextChild(exp Expression, overwrite bool) error {
	if b.closed {
		return types.NewParseError(b.token.Raw, b.token.Position, "list is already closed")
	}

	if overwrite && len(b.elements) > 0 {
		b.elements[len(b.elements)-1] = exp

		return nil
	}

	b.elements = append(b.elements, exp)

	return nil
}

func (b *listBuilder) close() {
	b.closed = true
}

func (b *listBuilder) wellFormed() bool {
	if !b.closed {
		return false
	}

	switch b.kind {
	case listIn:
		return b.left != nil
	case listRow:
		return len(b.elements) > 0
	}

	return b.name != ""
}

func (b *listBuilder) build() (Expression, error) {
	if !b.wellFormed() {
		return nil, types.NewParseError(b.token.Raw, b.token.Position, "incomplete expression list")
	}

	switch b.kind {
	case listIn:
		return &InExpression{Token: b.token, Left: b.left, List: b.elements}, nil
	case listRow:
		return &RowExpression{Token: b.token, Elements: b.elements}, nil
	}

	return &FunctionExpression{Token: b.token, Name: b.name, Arguments: b.elements, Distinct: b.distinct}, nil
}
