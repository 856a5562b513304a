package language

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/truora/minisql/types"
)

// Node the AST node type
type Node interface {
	TokenLiteral() string
	// String returns the display name of the node, the column name MySQL
	// gives to it in a result set
	String() string
}

// Expression represents the node type expression
type Expression interface {
	Node
	// WellFormed reports whether the node has every child it needs to be
	// evaluated
	WellFormed() bool
	expressionNode()
}

// ConstantExpression literal value
type ConstantExpression struct {
	Token Token
	Value Object
}

func (ce *ConstantExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ce *ConstantExpression) TokenLiteral() string { return ce.Token.Literal }

// WellFormed constants are always complete
func (ce *ConstantExpression) WellFormed() bool { return ce.Value != nil }

func (ce *ConstantExpression) String() string {
	switch {
	case ce.Token.Type == STRING:
		return ce.Token.Literal
	case ce.Token.Raw != "":
		return ce.Token.Raw
	case ce.Value != nil:
		return ce.Value.Inspect()
	}

	return ""
}

// ColumnExpression reference to a column of the row
type ColumnExpression struct {
	Token    Token
	Database string
	Table    string
	Column   string
	// AllowFallthrough lets qualified references fall back to an unqualified
	// row lookup, used for ORDER BY against projected rows
	AllowFallthrough bool
}

// NewColumnExpression splits a dotted identifier into its parts
func NewColumnExpression(tok Token) *ColumnExpression {
	col := &ColumnExpression{Token: tok}

	parts := strings.Split(tok.Literal, ".")
	switch len(parts) {
	case 1:
		col.Column = parts[0]
	case 2:
		col.Table, col.Column = parts[0], parts[1]
	default:
		col.Database = strings.Join(parts[:len(parts)-2], ".")
		col.Table, col.Column = parts[len(parts)-2], parts[len(parts)-1]
	}

	return col
}

func (c *ColumnExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (c *ColumnExpression) TokenLiteral() string { return c.Token.Literal }

// WellFormed columns are complete once named
func (c *ColumnExpression) WellFormed() bool { return c.Column != "" }

// Key returns the row key the column is stored under
func (c *ColumnExpression) Key() string {
	if c.Table == "" {
		return c.Column
	}

	return c.Table + "." + c.Column
}

func (c *ColumnExpression) String() string { return c.Key() }

// UnaryExpression prefix operator expression
type UnaryExpression struct {
	Token    Token // The prefix token, e.g. -
	Operator string
	Right    Expression
}

func (ue *UnaryExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ue *UnaryExpression) TokenLiteral() string { return ue.Token.Literal }

// WellFormed reports whether the operand is set
func (ue *UnaryExpression) WellFormed() bool { return ue.Right != nil }

func (ue *UnaryExpression) String() string {
	var out bytes.Buffer

	switch ue.Operator {
	case UnaryMinus:
		out.WriteString("-")
	case UnaryPlus:
		out.WriteString("+")
	default:
		out.WriteString(ue.Operator)
	}

	if ue.Right != nil {
		out.WriteString(ue.Right.String())
	}

	return out.String()
}

// BinaryExpression infix operator expression
type BinaryExpression struct {
	Token    Token // The operator token, e.g. =
	Left     Expression
	Operator string
	Right    Expression
	Negated  bool
}

func (be *BinaryExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (be *BinaryExpression) TokenLiteral() string { return be.Token.Literal }

// WellFormed reports whether both operands are set
func (be *BinaryExpression) WellFormed() bool { return be.Left != nil && be.Right != nil }

// NegatedInt returns the negation as 0/1, it is XORed into boolean results
func (be *BinaryExpression) NegatedInt() int64 {
	if be.Negated {
		return 1
	}

	return 0
}

func (be *BinaryExpression) String() string {
	var out bytes.Buffer

	left, right := "", ""
	if be.Left != nil {
		left = be.Left.String()
	}

	if be.Right != nil {
		right = be.Right.String()
	}

	switch {
	case be.Negated && be.Operator == IS:
		out.WriteString(left + " IS NOT " + right)
	case be.Negated && (be.Operator == LIKE || be.Operator == REGEXP || be.Operator == RLIKE):
		out.WriteString(left + " NOT " + be.Operator + " " + right)
	case be.Negated:
		out.WriteString("NOT " + left + " " + be.Operator + " " + right)
	default:
		out.WriteString(left + " " + be.Operator + " " + right)
	}

	return out.String()
}

// BetweenExpression range comparison, inclusive on both ends
type BetweenExpression struct {
	Token   Token // The 'BETWEEN' token
	Left    Expression
	Start   Expression
	End     Expression
	Negated bool
}

func (be *BetweenExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (be *BetweenExpression) TokenLiteral() string { return be.Token.Literal }

// WellFormed reports whether subject and both bounds are set
func (be *BetweenExpression) WellFormed() bool {
	return be.Left != nil && be.Start != nil && be.End != nil
}

func (be *BetweenExpression) String() string {
	var out bytes.Buffer

	out.WriteString(be.Left.String())

	if be.Negated {
		out.WriteString(" NOT")
	}

	out.WriteString(" BETWEEN ")
	out.WriteString(be.Start.String())
	out.WriteString(" AND ")
	out.WriteString(be.End.String())

	return out.String()
}

// InExpression compare operand against a list of values or a subquery
type InExpression struct {
	Token   Token // The 'IN' token
	Left    Expression
	List    []Expression
	Negated bool
}

func (ie *InExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ie *InExpression) TokenLiteral() string { return ie.Token.Literal }

// WellFormed reports whether the subject and the list are set; an empty list
// is well formed and rejected when evaluated
func (ie *InExpression) WellFormed() bool { return ie.Left != nil && ie.List != nil }

func (ie *InExpression) String() string {
	var out bytes.Buffer

	out.WriteString(ie.Left.String())

	if ie.Negated {
		out.WriteString(" NOT")
	}

	out.WriteString(" IN ")

	if len(ie.List) == 1 {
		if sub, ok := ie.List[0].(*SubqueryExpression); ok {
			out.WriteString(sub.String())

			return out.String()
		}
	}

	out.WriteString("(")
	out.WriteString(joinExpressions(ie.List))
	out.WriteString(")")

	return out.String()
}

// CaseBranch a WHEN ... THEN ... pair
type CaseBranch struct {
	When Expression
	Then Expression
}

// CaseExpression CASE [subject] WHEN ... THEN ... [ELSE ...] END
type CaseExpression struct {
	Token    Token
	Case     Expression
	Branches []CaseBranch
	Else     Expression
}

func (ce *CaseExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ce *CaseExpression) TokenLiteral() string { return ce.Token.Literal }

// WellFormed reports whether there is at least one branch and an ELSE, the
// parser synthesizes a NULL ELSE when omitted
func (ce *CaseExpression) WellFormed() bool {
	if len(ce.Branches) == 0 || ce.Else == nil {
		return false
	}

	for _, b := range ce.Branches {
		if b.When == nil || b.Then == nil {
			return false
		}
	}

	return true
}

func (ce *CaseExpression) String() string {
	var out bytes.Buffer

	out.WriteString("CASE")

	if ce.Case != nil {
		out.WriteString(" " + ce.Case.String())
	}

	for _, b := range ce.Branches {
		out.WriteString(" WHEN " + b.When.String() + " THEN " + b.Then.String())
	}

	if ce.Else != nil {
		out.WriteString(" ELSE " + ce.Else.String())
	}

	out.WriteString(" END")

	return out.String()
}

// FunctionExpression function call expression
type FunctionExpression struct {
	Token     Token // The function name token
	Name      string
	Arguments []Expression
	Distinct  bool
}

func (fe *FunctionExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (fe *FunctionExpression) TokenLiteral() string { return fe.Token.Literal }

// WellFormed functions are complete once their argument list is closed
func (fe *FunctionExpression) WellFormed() bool {
	for _, a := range fe.Arguments {
		if a == nil {
			return false
		}
	}

	return fe.Name != ""
}

func (fe *FunctionExpression) String() string {
	var out bytes.Buffer

	out.WriteString(fe.Name)
	out.WriteString("(")

	if fe.Distinct {
		out.WriteString("DISTINCT ")
	}

	out.WriteString(joinExpressions(fe.Arguments))
	out.WriteString(")")

	return out.String()
}

// RowExpression tuple constructor (a, b)
type RowExpression struct {
	Token    Token
	Elements []Expression
}

func (re *RowExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (re *RowExpression) TokenLiteral() string { return re.Token.Literal }

// WellFormed rows need at least one element
func (re *RowExpression) WellFormed() bool { return len(re.Elements) > 0 }

func (re *RowExpression) String() string {
	return "(" + joinExpressions(re.Elements) + ")"
}

// SubqueryExpression a nested SELECT; the statement is opaque to the
// expression engine and handed to the statement executor as tokens
type SubqueryExpression struct {
	Token  Token // the '(' token
	Tokens []Token
	// ParamOffset is the number of ? placeholders before the subquery
	ParamOffset int
}

func (se *SubqueryExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (se *SubqueryExpression) TokenLiteral() string { return se.Token.Literal }

// WellFormed subqueries need a statement
func (se *SubqueryExpression) WellFormed() bool { return len(se.Tokens) > 0 }

// SQL returns the text of the nested statement
func (se *SubqueryExpression) SQL() string {
	parts := make([]string, 0, len(se.Tokens))
	for _, t := range se.Tokens {
		parts = append(parts, t.Raw)
	}

	return strings.Join(parts, " ")
}

func (se *SubqueryExpression) String() string { return "(" + se.SQL() + ")" }

// ExistsExpression EXISTS (subquery)
type ExistsExpression struct {
	Token    Token
	Subquery *SubqueryExpression
	Negated  bool
}

func (ee *ExistsExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ee *ExistsExpression) TokenLiteral() string { return ee.Token.Literal }

// WellFormed reports whether the subquery is set
func (ee *ExistsExpression) WellFormed() bool { return ee.Subquery != nil }

func (ee *ExistsExpression) String() string {
	prefix := "EXISTS "
	if ee.Negated {
		prefix = "NOT EXISTS "
	}

	if ee.Subquery == nil {
		return prefix
	}

	return prefix + ee.Subquery.String()
}

// IntervalUnit calendar unit of an INTERVAL expression
type IntervalUnit string

// Interval units supported by date arithmetic
const (
	UnitMicrosecond IntervalUnit = "MICROSECOND"
	UnitSecond      IntervalUnit = "SECOND"
	UnitMinute      IntervalUnit = "MINUTE"
	UnitHour        IntervalUnit = "HOUR"
	UnitDay         IntervalUnit = "DAY"
	UnitWeek        IntervalUnit = "WEEK"
	UnitMonth       IntervalUnit = "MONTH"
	UnitQuarter     IntervalUnit = "QUARTER"
	UnitYear        IntervalUnit = "YEAR"
)

var intervalUnits = map[string]IntervalUnit{
	"MICROSECOND": UnitMicrosecond,
	"SECOND":      UnitSecond,
	"MINUTE":      UnitMinute,
	"HOUR":        UnitHour,
	"DAY":         UnitDay,
	"WEEK":        UnitWeek,
	"MONTH":       UnitMonth,
	"QUARTER":     UnitQuarter,
	"YEAR":        UnitYear,
}

// IntervalExpression INTERVAL n unit
type IntervalExpression struct {
	Token  Token
	Number Expression
	Unit   IntervalUnit
}

func (ie *IntervalExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ie *IntervalExpression) TokenLiteral() string { return ie.Token.Literal }

// WellFormed reports whether the amount and unit are set
func (ie *IntervalExpression) WellFormed() bool { return ie.Number != nil && ie.Unit != "" }

func (ie *IntervalExpression) String() string {
	return "INTERVAL " + ie.Number.String() + " " + string(ie.Unit)
}

// CastType target type of a CAST
type CastType struct {
	Name   string
	Length int
	Scale  int
}

func (ct CastType) String() string {
	switch {
	case ct.Length > 0 && ct.Scale > 0:
		return ct.Name + "(" + strconv.Itoa(ct.Length) + "," + strconv.Itoa(ct.Scale) + ")"
	case ct.Length > 0:
		return ct.Name + "(" + strconv.Itoa(ct.Length) + ")"
	}

	return ct.Name
}

// CastExpression CAST(expr AS type)
type CastExpression struct {
	Token      Token
	Expression Expression
	Type       CastType
}

func (ce *CastExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ce *CastExpression) TokenLiteral() string { return ce.Token.Literal }

// WellFormed reports whether the operand and target type are set
func (ce *CastExpression) WellFormed() bool { return ce.Expression != nil && ce.Type.Name != "" }

func (ce *CastExpression) String() string {
	return "CAST(" + ce.Expression.String() + " AS " + ce.Type.String() + ")"
}

// PositionExpression 1-indexed reference to a SELECT list entry, ORDER BY 2
type PositionExpression struct {
	Token    Token
	Position int
}

func (pe *PositionExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (pe *PositionExpression) TokenLiteral() string { return pe.Token.Literal }

// WellFormed positions start at 1
func (pe *PositionExpression) WellFormed() bool { return pe.Position > 0 }

func (pe *PositionExpression) String() string { return strconv.Itoa(pe.Position) }

// ParameterExpression bound parameter, positional (?) or named (:name)
type ParameterExpression struct {
	Token Token
	// Index is the 0-based position of a ? placeholder
	Index int
	Name  string
}

func (pe *ParameterExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (pe *ParameterExpression) TokenLiteral() string { return pe.Token.Literal }

// WellFormed parameters are always complete
func (pe *ParameterExpression) WellFormed() bool { return true }

func (pe *ParameterExpression) String() string {
	if pe.Name != "" {
		return ":" + pe.Name
	}

	return "?"
}

// VariableExpression session variable @name
type VariableExpression struct {
	Token Token
	Name  string
}

func (ve *VariableExpression) expressionNode() {}

// TokenLiteral returns the literal token of the node
func (ve *VariableExpression) TokenLiteral() string { return ve.Token.Literal }

// WellFormed reports whether the variable is named
func (ve *VariableExpression) WellFormed() bool { return ve.Name != "" }

func (ve *VariableExpression) String() string { return "@" + ve.Name }

// Negate returns a copy of the expression with its negation flipped. Only
// BETWEEN, binary operators, IN and EXISTS can be negated.
func Negate(exp Expression) (Expression, error) {
	switch node := exp.(type) {
	case *BinaryExpression:
		negated := *node
		negated.Negated = !node.Negated

		return &negated, nil
	case *BetweenExpression:
		negated := *node
		negated.Negated = !node.Negated

		return &negated, nil
	case *InExpression:
		negated := *node
		negated.Negated = !node.Negated

		return &negated, nil
	case *ExistsExpression:
		negated := *node
		negated.Negated = !node.Negated

		return &negated, nil
	case nil:
		return nil, types.NewParseError("NOT", 0, "NOT requires an operand")
	}

	return nil, types.NewParseError(exp.TokenLiteral(), tokenOf(exp).Position, "%s does not support negation", exp.String())
}

func joinExpressions(exps []Expression) string {
	parts := make([]string, 0, len(exps))
	for _, e := range exps {
		if e == nil {
			continue
		}

		parts = append(parts, e.String())
	}

	return strings.Join(parts, ", ")
}

// tokenOf returns the token the node was built from
func tokenOf(exp Expression) Token {
	switch node := exp.(type) {
	case *ConstantExpression:
		return node.Token
	case *ColumnExpression:
		return node.Token
	case *UnaryExpression:
		return node.Token
	case *BinaryExpression:
		return node.Token
	case *BetweenExpression:
		return node.Token
	case *InExpression:
		return node.Token
	case *CaseExpression:
		return node.Token
	case *FunctionExpression:
		return node.Token
	case *RowExpression:
		return node.Token
	case *SubqueryExpression:
		return node.Token
	case *ExistsExpression:
		return node.Token
	case *IntervalExpression:
		return node.Token
	case *CastExpression:
		return node.Token
	case *PositionExpression:
		return node.Token
	case *ParameterExpression:
		return node.Token
	case *VariableExpression:
		return node.Token
	}

	return Token{}
}
