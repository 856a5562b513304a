package language

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/truora/minisql/types"
)

func TestConstantExpression(t *testing.T) {
	es := ConstantExpression{
		Token: Token{Type: STRING, Literal: "a", Raw: "'a'"},
		Value: &String{Value: "a"},
	}

	tl := es.TokenLiteral()
	if tl != "a" {
		t.Fatalf("wrong token literal. expected=%q, got=%q", "a", tl)
	}

	if es.String() != "a" {
		t.Fatalf("wrong display name. expected=%q, got=%q", "a", es.String())
	}

	number := ConstantExpression{Value: &Integer{Value: 3}}
	require.Equal(t, "3", number.String())
	require.True(t, number.WellFormed())
	require.False(t, (&ConstantExpression{}).WellFormed())
}

func TestColumnExpression(t *testing.T) {
	tests := []struct {
		literal  string
		database string
		table    string
		column   string
		key      string
	}{
		{"a", "", "", "a", "a"},
		{"t.a", "", "t", "a", "t.a"},
		{"db.t.a", "db", "t", "a", "t.a"},
		{"t.*", "", "t", "*", "t.*"},
	}

	for _, tt := range tests {
		col := NewColumnExpression(Token{Type: IDENT, Literal: tt.literal})

		require.Equal(t, tt.database, col.Database, tt.literal)
		require.Equal(t, tt.table, col.Table, tt.literal)
		require.Equal(t, tt.column, col.Column, tt.literal)
		require.Equal(t, tt.key, col.Key(), tt.literal)
		require.Equal(t, tt.literal, col.TokenLiteral())
	}
}

func TestBinaryExpression(t *testing.T) {
	be := &BinaryExpression{
		Token:    Token{Type: OPERATOR, Literal: "="},
		Operator: "=",
		Left:     &ColumnExpression{Column: "a"},
		Right:    &ColumnExpression{Column: "b"},
	}

	require.Equal(t, "=", be.TokenLiteral())
	require.Equal(t, "a = b", be.String())
	require.Equal(t, int64(0), be.NegatedInt())

	be.Negated = true
	require.Equal(t, "NOT a = b", be.String())
	require.Equal(t, int64(1), be.NegatedInt())

	be.Operator = LIKE
	require.Equal(t, "a NOT LIKE b", be.String())

	be.Operator = IS
	require.Equal(t, "a IS NOT b", be.String())

	require.False(t, (&BinaryExpression{Left: be.Left}).WellFormed())
}

func TestWellFormed(t *testing.T) {
	a := &ColumnExpression{Column: "a"}
	one := &ConstantExpression{Value: &Integer{Value: 1}}

	tests := []struct {
		exp      Expression
		expected bool
	}{
		{&BetweenExpression{Left: a, Start: one}, false},
		{&BetweenExpression{Left: a, Start: one, End: one}, true},
		{&InExpression{Left: a}, false},
		{&InExpression{Left: a, List: []Expression{}}, true},
		{&CaseExpression{Branches: []CaseBranch{{When: a, Then: one}}}, false},
		{&CaseExpression{Branches: []CaseBranch{{When: a, Then: one}}, Else: one}, true},
		{&CaseExpression{Else: one}, false},
		{&UnaryExpression{Operator: UnaryMinus}, false},
		{&FunctionExpression{Name: "NOW"}, true},
		{&FunctionExpression{Name: "F", Arguments: []Expression{nil}}, false},
		{&RowExpression{}, false},
		{&ExistsExpression{}, false},
		{&IntervalExpression{Number: one}, false},
		{&CastExpression{Expression: a, Type: CastType{Name: "SIGNED"}}, true},
		{&PositionExpression{}, false},
		{&ParameterExpression{}, true},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, tt.exp.WellFormed(), "%T", tt.exp)
	}
}

func TestNegate(t *testing.T) {
	original := &BetweenExpression{
		Left:  &ColumnExpression{Column: "a"},
		Start: &ConstantExpression{Value: &Integer{Value: 1}},
		End:   &ConstantExpression{Value: &Integer{Value: 2}},
	}

	negated, err := Negate(original)
	require.NoError(t, err)
	require.True(t, negated.(*BetweenExpression).Negated)
	require.False(t, original.Negated)
	require.Equal(t, "a NOT BETWEEN 1 AND 2", negated.String())

	twice, err := Negate(negated)
	require.NoError(t, err)
	require.False(t, twice.(*BetweenExpression).Negated)

	in, err := Negate(&InExpression{Left: original.Left, List: []Expression{original.Start}})
	require.NoError(t, err)
	require.Equal(t, "a NOT IN (1)", in.String())

	exists, err := Negate(&ExistsExpression{Subquery: &SubqueryExpression{Tokens: []Token{{Raw: "SELECT"}, {Raw: "1"}}}})
	require.NoError(t, err)
	require.Equal(t, "NOT EXISTS (SELECT 1)", exists.String())

	_, err = Negate(&ColumnExpression{Column: "a"})
	require.Error(t, err)
	require.True(t, errors.Is(err, types.ErrParse))

	_, err = Negate(nil)
	require.Error(t, err)
}

func TestDisplayNames(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"-a", "-a"},
		{"COUNT(DISTINCT a)", "COUNT(DISTINCT a)"},
		{"a IN (1, 2)", "a IN (1, 2)"},
		{"(1, 2)", "(1, 2)"},
		{"CAST(a AS CHAR(2))", "CAST(a AS CHAR(2))"},
		{"d - INTERVAL 3 HOUR", "d - INTERVAL 3 HOUR"},
		{"@v + :p + ?", "@v + :p + ?"},
		{"a IN (SELECT b FROM t)", "a IN (SELECT b FROM t)"},
	}

	for _, tt := range tests {
		exp, err := ParseExpression(tt.input)
		require.NoError(t, err, tt.input)
		require.Equal(t, tt.expected, exp.String(), tt.input)
	}
}
