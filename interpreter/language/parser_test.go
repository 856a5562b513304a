package language

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/truora/minisql/types"
)

// tree renders the expression fully parenthesized so the grouping chosen by
// the parser is visible
func tree(exp Expression) string {
	switch node := exp.(type) {
	case *BinaryExpression:
		s := "(" + tree(node.Left) + " " + node.Operator + " " + tree(node.Right) + ")"
		if node.Negated {
			return "NOT" + s
		}

		return s
	case *UnaryExpression:
		op := node.Operator

		switch op {
		case UnaryMinus:
			op = "-"
		case UnaryPlus:
			op = "+"
		}

		return "(" + op + tree(node.Right) + ")"
	case *BetweenExpression:
		s := "(" + tree(node.Left) + " BETWEEN " + tree(node.Start) + " AND " + tree(node.End) + ")"
		if node.Negated {
			return "NOT" + s
		}

		return s
	case *InExpression:
		items := []string{}
		for _, e := range node.List {
			items = append(items, tree(e))
		}

		s := "(" + tree(node.Left) + " IN (" + strings.Join(items, ", ") + "))"
		if node.Negated {
			return "NOT" + s
		}

		return s
	case *FunctionExpression:
		args := []string{}
		for _, e := range node.Arguments {
			args = append(args, tree(e))
		}

		distinct := ""
		if node.Distinct {
			distinct = "DISTINCT "
		}

		return node.Name + "(" + distinct + strings.Join(args, ", ") + ")"
	case *RowExpression:
		items := []string{}
		for _, e := range node.Elements {
			items = append(items, tree(e))
		}

		return "(" + strings.Join(items, ", ") + ")"
	case *SubqueryExpression:
		return node.SQL()
	}

	return exp.String()
}

func TestParsingPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"1 + 2 = 3", "((1 + 2) = 3)"},
		{"a = b = c", "((a = b) = c)"},
		{"a OR b AND c", "(a OR (b AND c))"},
		{"a = 1 AND b = 2", "((a = 1) AND (b = 2))"},
		{"a XOR b OR c", "((a XOR b) OR c)"},
		{"-a * b", "((-a) * b)"},
		{"a - -1", "(a - (-1))"},
		{"a | b & c", "(a | (b & c))"},
		{"1 << 2 + 3", "(1 << (2 + 3))"},
		{"a * b ^ c", "(a * (b ^ c))"},
		{"a DIV 2 MOD 3", "((a DIV 2) MOD 3)"},
		{"!a = b", "((!a) = b)"},
		{"NOT a", "(!a)"},
		{"NOT a = 1", "NOT(a = 1)"},
		{"NOT NOT a = 1", "(a = 1)"},
		{"a = 1 OR NOT b = 2", "((a = 1) OR NOT(b = 2))"},
		{"NOT (a AND b)", "NOT(a AND b)"},
		{"NOT a + 1", "(!(a + 1))"},
		{"(a + b) * c", "((a + b) * c)"},
		{"(a, b) = (1, 2)", "((a, b) = (1, 2))"},
		{"ROW(a, b) = ROW(1, 2)", "((a, b) = (1, 2))"},
		{"t.a = db.t.b", "(t.a = t.b)"},
		{"BINARY a = b", "(BINARY(a) = b)"},
		{"a COLLATE utf8mb4_bin = b", "((a COLLATE utf8mb4_bin) = b)"},
		{"d + INTERVAL 1 DAY", "(d + INTERVAL 1 DAY)"},
		{"INTERVAL 2 MONTH + d", "(INTERVAL 2 MONTH + d)"},
		{"a IS NULL", "(a IS NULL)"},
		{"a IS NOT TRUE", "NOT(a IS TRUE)"},
		{"a IS UNKNOWN AND b", "((a IS UNKNOWN) AND b)"},
		{"a LIKE 'x%'", "(a LIKE x%)"},
		{"a NOT LIKE 'x%' OR b", "(NOT(a LIKE x%) OR b)"},
		{"a NOT REGEXP '^x'", "NOT(a REGEXP ^x)"},
		{"a RLIKE '^x'", "(a RLIKE ^x)"},
		{"a SOUNDS LIKE b", "(a SOUNDS b)"},
		{"a <=> b", "(a <=> b)"},
		{"a && b || c", "((a && b) || c)"},
	}

	for _, tt := range tests {
		exp, err := ParseExpression(tt.input)
		require.NoError(t, err, tt.input)

		if diff := cmp.Diff(tt.expected, tree(exp)); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestParsingBetween(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a BETWEEN 1 AND 5", "(a BETWEEN 1 AND 5)"},
		{"a BETWEEN 1 AND 5 AND b", "((a BETWEEN 1 AND 5) AND b)"},
		{"a BETWEEN 1 + 1 AND 5 * 2", "(a BETWEEN (1 + 1) AND (5 * 2))"},
		{"a NOT BETWEEN 1 AND 2", "NOT(a BETWEEN 1 AND 2)"},
		{"NOT a BETWEEN 1 AND 2", "NOT(a BETWEEN 1 AND 2)"},
		{"a BETWEEN b = 1 AND 5", "(a BETWEEN (b = 1) AND 5)"},
		{"a BETWEEN 1 AND b < 2", "(a BETWEEN 1 AND (b < 2))"},
		{"a BETWEEN 1 AND 5 OR c BETWEEN 2 AND 3", "((a BETWEEN 1 AND 5) OR (c BETWEEN 2 AND 3))"},
		{"x = a BETWEEN 1 AND 2", "((x = a) BETWEEN 1 AND 2)"},
	}

	for _, tt := range tests {
		exp, err := ParseExpression(tt.input)
		require.NoError(t, err, tt.input)

		if diff := cmp.Diff(tt.expected, tree(exp)); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestParsingLists(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a IN (1, 2, 3)", "(a IN (1, 2, 3))"},
		{"a NOT IN (1)", "NOT(a IN (1))"},
		{"a IN ()", "(a IN ())"},
		{"(a, b) IN ((1, 2), (3, 4))", "((a, b) IN ((1, 2), (3, 4)))"},
		{"a IN (SELECT id FROM t WHERE (x = 1))", "(a IN (SELECT id FROM t WHERE ( x = 1 )))"},
		{"COUNT(*)", "COUNT(*)"},
		{"count(DISTINCT a)", "COUNT(DISTINCT a)"},
		{"CONCAT(a, 'b', LOWER(c))", "CONCAT(a, b, LOWER(c))"},
		{"NOW()", "NOW()"},
		{"CURRENT_TIMESTAMP", "NOW()"},
		{"CURRENT_DATE + 1", "(CURDATE() + 1)"},
		{"SUBSTRING(a FROM 2 FOR 3)", "SUBSTRING(a, 2, 3)"},
		{"LEFT(a, 2)", "LEFT(a, 2)"},
		{"VALUES(a) + 1", "(VALUES(a) + 1)"},
		{"MOD(a, 2)", "MOD(a, 2)"},
		{"IF(a > 1, 'x', 'y')", "IF((a > 1), x, y)"},
		{"DATE_ADD(d, INTERVAL 1 + 1 DAY)", "DATE_ADD(d, INTERVAL 1 + 1 DAY)"},
		{"CAST(a AS DECIMAL(10,2))", "CAST(a AS DECIMAL(10,2))"},
		{"CAST(a AS UNSIGNED INTEGER)", "CAST(a AS UNSIGNED)"},
		{"CAST(a AS INT)", "CAST(a AS SIGNED)"},
		{"CAST(a AS CHAR(3))", "CAST(a AS CHAR(3))"},
		{"CONVERT(a, SIGNED)", "CAST(a AS SIGNED)"},
		{"CONVERT(a USING utf8mb4)", "CAST(a AS CHAR)"},
		{"EXISTS (SELECT 1)", "EXISTS (SELECT 1)"},
		{"NOT EXISTS (SELECT 1)", "NOT EXISTS (SELECT 1)"},
		{"a = (SELECT MAX(b) FROM t)", "(a = SELECT MAX ( b ) FROM t)"},
	}

	for _, tt := range tests {
		exp, err := ParseExpression(tt.input)
		require.NoError(t, err, tt.input)

		if diff := cmp.Diff(tt.expected, tree(exp)); diff != "" {
			t.Errorf("%q mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestParsingCase(t *testing.T) {
	exp, err := ParseExpression("CASE a WHEN 1 THEN 'one' WHEN 2 THEN 'two' END")
	require.NoError(t, err)

	c, ok := exp.(*CaseExpression)
	require.True(t, ok, "exp not *CaseExpression. got=%T", exp)
	require.Equal(t, "a", c.Case.String())
	require.Len(t, c.Branches, 2)
	require.Equal(t, NULL, c.Else.(*ConstantExpression).Value)
	require.Equal(t, "CASE a WHEN 1 THEN one WHEN 2 THEN two ELSE NULL END", c.String())

	exp, err = ParseExpression("CASE WHEN a > 1 THEN b + 1 ELSE c END * 2")
	require.NoError(t, err)
	require.Equal(t, "(CASE WHEN a > 1 THEN b + 1 ELSE c END * 2)", tree(exp))
}

func TestParsingParameters(t *testing.T) {
	exp, err := ParseExpression("? + ? = :total AND @limit > ?")
	require.NoError(t, err)

	params := []*ParameterExpression{}

	var walk func(e Expression)
	walk = func(e Expression) {
		switch node := e.(type) {
		case *BinaryExpression:
			walk(node.Left)
			walk(node.Right)
		case *ParameterExpression:
			params = append(params, node)
		}
	}

	walk(exp)

	require.Len(t, params, 4)
	require.Equal(t, 0, params[0].Index)
	require.Equal(t, 1, params[1].Index)
	require.Equal(t, "total", params[2].Name)
	require.Equal(t, 2, params[3].Index)
}

func TestParsingSubqueryParameters(t *testing.T) {
	exp, err := ParseExpression("x = ? AND EXISTS (SELECT 1 FROM t WHERE a = ?) AND y = ?")
	require.NoError(t, err)

	and, ok := exp.(*BinaryExpression)
	require.True(t, ok)

	last, ok := and.Right.(*BinaryExpression)
	require.True(t, ok)
	require.Equal(t, 2, last.Right.(*ParameterExpression).Index, "placeholders inside the subquery are counted")

	inner, ok := and.Left.(*BinaryExpression)
	require.True(t, ok)

	exists, ok := inner.Right.(*ExistsExpression)
	require.True(t, ok)
	require.Equal(t, 1, exists.Subquery.ParamOffset)
	require.Equal(t, "SELECT", exists.Subquery.Tokens[0].Literal)
}

func TestParsingNumbers(t *testing.T) {
	tests := []struct {
		input    string
		expected Object
	}{
		{"42", &Integer{Value: 42}},
		{"4.5", &Float{Value: 4.5}},
		{"1e3", &Float{Value: 1000}},
		{"0x10", &Integer{Value: 16}},
		{"0xFFFFFFFFFFFFFFFF", &String{Value: "18446744073709551615"}},
		{"99999999999999999999", &Float{Value: 1e20}},
	}

	for _, tt := range tests {
		exp, err := ParseExpression(tt.input)
		require.NoError(t, err, tt.input)

		c, ok := exp.(*ConstantExpression)
		require.True(t, ok, tt.input)
		require.Equal(t, tt.expected, c.Value, tt.input)
	}
}

func TestParseContract(t *testing.T) {
	tokens, err := NewLexer("a + b, c").Tokens()
	require.NoError(t, err)

	pos, exp, err := Parse(tokens, 0, nil, precedenceLowest, false)
	require.NoError(t, err)
	require.Equal(t, 3, pos)
	require.Equal(t, "(a + b)", tree(exp))

	pos, exp, err = Parse(tokens, 4, nil, precedenceLowest, false)
	require.NoError(t, err)
	require.Equal(t, 5, pos)
	require.Equal(t, "c", tree(exp))

	tokens, err = NewLexer("a AND b").Tokens()
	require.NoError(t, err)

	pos, exp, err = Parse(tokens, 0, nil, precedenceComparison, false)
	require.NoError(t, err)
	require.Equal(t, 1, pos)
	require.Equal(t, "a", tree(exp))

	tokens, err = NewLexer("+ 1 * 2").Tokens()
	require.NoError(t, err)

	seed := &ColumnExpression{Column: "x"}

	pos, exp, err = Parse(tokens, 0, seed, precedenceLowest, false)
	require.NoError(t, err)
	require.Equal(t, 4, pos)
	require.Equal(t, "(x + (1 * 2))", tree(exp))

	tokens, err = NewLexer("a) + 1").Tokens()
	require.NoError(t, err)

	pos, exp, err = Parse(tokens, 0, nil, precedenceLowest, true)
	require.NoError(t, err)
	require.Equal(t, 1, pos)
	require.Equal(t, "a", tree(exp))

	_, _, err = Parse(tokens, 0, nil, precedenceLowest, false)
	require.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		near  string
	}{
		{"a +", "end of input"},
		{"a )", ")"},
		{"(a", "end of input"},
		{"a b", "b"},
		{"NOT", "end of input"},
		{"a BETWEEN 1", "end of input"},
		{"a BETWEEN 1 OR 2", "OR"},
		{"CASE a END", "END"},
		{"CASE WHEN a END", "END"},
		{"CASE WHEN a THEN b", "end of input"},
		{"CASE WHEN a THEN b ELSE c ELSE d END", "ELSE"},
		{"CASE THEN a END", "THEN"},
		{"a IS 5", "5"},
		{"CAST(a AS FOO)", "FOO"},
		{"CAST(a)", ")"},
		{"d + INTERVAL 1 FORTNIGHT", "FORTNIGHT"},
		{"a IN 1", "1"},
		{"f(a,", "end of input"},
		{"a = (SELECT 1", "("},
		{"EXISTS (1)", "1"},
		{"NOT a LIKE", "end of input"},
		{"a NOT b", "NOT"},
	}

	for _, tt := range tests {
		_, err := ParseExpression(tt.input)
		require.Error(t, err, tt.input)
		require.True(t, errors.Is(err, types.ErrParse), "%q: %v", tt.input, err)

		var parseErr *types.ParseError

		require.True(t, errors.As(err, &parseErr), tt.input)
		require.Equal(t, tt.near, parseErr.Near(), tt.input)
		require.Equal(t, types.CodeParseError, parseErr.Code())
	}
}
