package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

// JoinType kind of join
type JoinType string

const (
	// JoinInner INNER JOIN, also plain JOIN
	JoinInner JoinType = "INNER"
	// JoinStraight STRAIGHT_JOIN, an inner join with a fixed read order
	JoinStraight JoinType = "STRAIGHT_JOIN"
	// JoinLeft LEFT [OUTER] JOIN
	JoinLeft JoinType = "LEFT"
	// JoinRight RIGHT [OUTER] JOIN
	JoinRight JoinType = "RIGHT"
	// JoinCross CROSS JOIN
	JoinCross JoinType = "CROSS"
	// JoinNatural NATURAL JOIN
	JoinNatural JoinType = "NATURAL"
)

// ErrNoCommonColumns when a NATURAL JOIN finds no column shared by both sides
var ErrNoCommonColumns = errors.New("natural join without common columns")

var joinTypes = map[string]JoinType{
	"JOIN":             JoinInner,
	"INNER":            JoinInner,
	"INNER JOIN":       JoinInner,
	"STRAIGHT_JOIN":    JoinStraight,
	"LEFT":             JoinLeft,
	"LEFT JOIN":        JoinLeft,
	"LEFT OUTER JOIN":  JoinLeft,
	"RIGHT":            JoinRight,
	"RIGHT JOIN":       JoinRight,
	"RIGHT OUTER JOIN": JoinRight,
	"CROSS":            JoinCross,
	"CROSS JOIN":       JoinCross,
	"NATURAL":          JoinNatural,
	"NATURAL JOIN":     JoinNatural,
}

// ParseJoinType returns the join type of keywords such as "left outer join"
func ParseJoinType(s string) (JoinType, error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(s), " "))

	jt, ok := joinTypes[normalized]
	if !ok {
		return "", types.NewParseError(s, 0, "unknown join type %q", s)
	}

	return jt, nil
}

// Join combines two datasets. Candidate rows are the right row merged on top
// of a copy of the left row, so right columns win on equal keys. The on
// expression is ignored by CROSS and NATURAL joins, a nil on matches every
// pair. rightSchema lists the right table columns used to pad unmatched LEFT
// JOIN rows with NULLs; when it is empty the bare left row is emitted.
func Join(left, right language.Dataset, rightTable string, joinType JoinType, on language.Expression, rightSchema []string, scope *language.Scope) (language.Dataset, error) {
	switch joinType {
	case JoinInner, JoinStraight:
		return innerJoin(left, right, onMatcher(on, scope))
	case JoinCross:
		return innerJoin(left, right, onMatcher(nil, scope))
	case JoinLeft:
		return leftJoin(left, right, rightTable, on, rightSchema, scope)
	case JoinRight:
		return rightJoin(left, right, on, scope)
	case JoinNatural:
		return naturalJoin(left, right, scope)
	}

	return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "join type %s is not supported yet", joinType)
}

func joinMatch(on language.Expression, row *language.Row, scope *language.Scope) (bool, error) {
	if on == nil {
		return true, nil
	}

	return language.EvalBool(on, row, scope)
}

// pairMatcher decides whether a left and a right row join, merged is the
// candidate row built from both
type pairMatcher func(left, right, merged *language.Row) (bool, error)

func onMatcher(on language.Expression, scope *language.Scope) pairMatcher {
	return func(_, _, merged *language.Row) (bool, error) {
		return joinMatch(on, merged, scope)
	}
}

func innerJoin(left, right language.Dataset, match pairMatcher) (language.Dataset, error) {
	out := language.Dataset{}

	for _, l := range left {
		for _, r := range right {
			candidate := l.Merge(r)

			matched, err := match(l, r, candidate)
			if err != nil {
				return nil, err
			}

			if matched {
				out = append(out, candidate)
			}
		}
	}

	return out, nil
}

func leftJoin(left, right language.Dataset, rightTable string, on language.Expression, rightSchema []string, scope *language.Scope) (language.Dataset, error) {
	out := language.Dataset{}
	padding := qualifiedSchema(rightTable, rightSchema)

	for _, l := range left {
		found := false

		for _, r := range right {
			candidate := l.Merge(r)

			matched, err := joinMatch(on, candidate, scope)
			if err != nil {
				return nil, err
			}

			if matched {
				found = true

				out = append(out, candidate)
			}
		}

		if !found {
			out = append(out, pad(l, padding))
		}
	}

	return out, nil
}

func rightJoin(left, right language.Dataset, on language.Expression, scope *language.Scope) (language.Dataset, error) {
	out := language.Dataset{}

	padding := language.NewRow()
	if len(left) > 0 {
		padding = nullRow(left[0].Columns())
	}

	for _, r := range right {
		found := false

		for _, l := range left {
			candidate := l.Merge(r)

			matched, err := joinMatch(on, candidate, scope)
			if err != nil {
				return nil, err
			}

			if matched {
				found = true

				out = append(out, candidate)
			}
		}

		if !found {
			out = append(out, padding.Merge(r))
		}
	}

	return out, nil
}

func qualifiedSchema(table string, schema []string) []string {
	out := make([]string, 0, len(schema))

	for _, column := range schema {
		if table == "" || strings.Contains(column, ".") {
			out = append(out, column)

			continue
		}

		out = append(out, table+"."+column)
	}

	return out
}

func nullRow(columns []string) *language.Row {
	row := language.NewRow()
	for _, c := range columns {
		row.Set(c, language.NULL)
	}

	return row
}

// pad adds the missing columns to a copy of the row as NULL
func pad(row *language.Row, columns []string) *language.Row {
	out := row.Copy()

	for _, c := range columns {
		if _, ok := out.Get(c); !ok {
			out.Set(c, language.NULL)
		}
	}

	return out
}

func suffix(key string) string {
	return key[strings.LastIndex(key, ".")+1:]
}

const (
	naturalLeft  = "natural_left"
	naturalRight = "natural_right"
)

// columnPair is a column of each side sharing the same name
type columnPair struct {
	left  string
	right string
}

// naturalJoin joins on the columns both sides share by name. Values are read
// from each side before merging, so both sides may use the same key.
func naturalJoin(left, right language.Dataset, scope *language.Scope) (language.Dataset, error) {
	if len(left) == 0 || len(right) == 0 {
		return language.Dataset{}, nil
	}

	pairs, err := naturalColumns(left[0], right[0])
	if err != nil {
		return nil, err
	}

	condition := naturalCondition(len(pairs))

	return innerJoin(left, right, func(l, r, _ *language.Row) (bool, error) {
		values := language.NewRow()

		for i, pair := range pairs {
			values.Set(pairKey(naturalLeft, i), columnValue(l, pair.left))
			values.Set(pairKey(naturalRight, i), columnValue(r, pair.right))
		}

		return language.EvalBool(condition, values, scope)
	})
}

// naturalColumns lists the columns both rows share by name
func naturalColumns(left, right *language.Row) ([]columnPair, error) {
	pairs := []columnPair{}
	rightColumns := right.Columns()

	for _, lc := range left.Columns() {
		for _, rc := range rightColumns {
			if strings.EqualFold(suffix(lc), suffix(rc)) {
				pairs = append(pairs, columnPair{left: lc, right: rc})

				break
			}
		}
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoCommonColumns, types.NewRuntimeError(types.CodeWrongArguments, "NATURAL JOIN needs at least one common column"))
	}

	return pairs, nil
}

// naturalCondition builds the AND of equalities between the pair values
func naturalCondition(n int) language.Expression {
	var condition language.Expression

	for i := 0; i < n; i++ {
		eq := &language.BinaryExpression{
			Token:    language.Token{Type: language.OPERATOR, Literal: "=", Raw: "="},
			Left:     columnReference(pairKey(naturalLeft, i)),
			Operator: "=",
			Right:    columnReference(pairKey(naturalRight, i)),
		}

		if condition == nil {
			condition = eq

			continue
		}

		condition = &language.BinaryExpression{
			Token:    language.Token{Type: language.KEYWORD, Literal: language.AND, Raw: language.AND},
			Left:     condition,
			Operator: language.AND,
			Right:    eq,
		}
	}

	return condition
}

func pairKey(side string, i int) string {
	return fmt.Sprintf("%s.c%d", side, i)
}

func columnValue(row *language.Row, key string) language.Object {
	val, ok := row.Get(key)
	if !ok || val == nil {
		return language.NULL
	}

	return val
}

func columnReference(key string) *language.ColumnExpression {
	return language.NewColumnExpression(language.Token{Type: language.IDENT, Literal: key, Raw: key})
}
