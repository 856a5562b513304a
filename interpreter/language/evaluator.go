package language

import (
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/truora/minisql/types"
)

var comparisonOperators = map[string]bool{
	"=": true, "<>": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

var arithmeticOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, DIV: true, "%": true, MOD: true,
	"<<": true, ">>": true, "|": true, "&": true,
}

// compiled LIKE and REGEXP patterns, shared by every evaluation
var patternCache sync.Map

// Eval evaluates the expression against the row or group
func Eval(exp Expression, row RowOrGroup, scope *Scope) (Object, error) {
	if scope == nil {
		scope = NewScope()
	}

	if row == nil || row.Representative() == nil {
		row = NewRow()
	}

	switch node := exp.(type) {
	case *ConstantExpression:
		return nativeNilToNullObject(node.Value), nil
	case *ColumnExpression:
		return evalColumn(node, row, scope)
	case *UnaryExpression:
		return evalUnary(node, row, scope)
	case *BinaryExpression:
		return evalBinary(node, row, scope)
	case *BetweenExpression:
		return evalBetween(node, row, scope)
	case *InExpression:
		return evalIn(node, row, scope)
	case *CaseExpression:
		return evalCase(node, row, scope)
	case *FunctionExpression:
		return evalFunction(node, row, scope)
	case *RowExpression:
		return evalRow(node, row, scope)
	case *SubqueryExpression:
		return evalSubquery(node, row, scope)
	case *ExistsExpression:
		return evalExists(node, row, scope)
	case *CastExpression:
		return evalCast(node, row, scope)
	case *PositionExpression:
		return evalPosition(node, row)
	case *ParameterExpression:
		if node.Name != "" {
			return scope.NamedParameter(node.Name)
		}

		return scope.Parameter(node.Index)
	case *VariableExpression:
		return scope.Variable(node.Name), nil
	case *IntervalExpression:
		return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "%s is only valid in date arithmetic", node.String())
	case nil:
		return nil, types.NewRuntimeError(types.CodeWrongArguments, "missing expression")
	}

	return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "unsupported expression: %s", exp.String())
}

// EvalBool evaluates the expression as a filter, NULL is false
func EvalBool(exp Expression, row RowOrGroup, scope *Scope) (bool, error) {
	obj, err := Eval(exp, row, scope)
	if err != nil {
		return false, err
	}

	return isTruthy(obj), nil
}

func boolResult(b bool) Object {
	return nativeBoolToBooleanObject(b)
}

// scalarValue unwraps subquery results used as a single value
func scalarValue(obj Object) (Object, error) {
	switch o := obj.(type) {
	case Dataset:
		if len(o) > 1 {
			return nil, types.NewRuntimeError(types.CodeSubqueryNoOneRow, "Subquery returns more than 1 row")
		}

		if len(o) == 1 && o[0].Len() > 1 {
			return nil, types.NewRuntimeError(types.CodeOperandColumns, "Operand should contain 1 column(s)")
		}
	case *List:
		if len(o.Value) > 1 {
			return nil, types.NewRuntimeError(types.CodeOperandColumns, "Operand should contain 1 column(s)")
		}
	}

	return scalar(obj), nil
}

// ScalarValue returns the single value of a scalar subquery result, other
// objects are returned untouched
func ScalarValue(obj Object) (Object, error) {
	if _, ok := obj.(Dataset); !ok {
		return obj, nil
	}

	return scalarValue(obj)
}

func evalScalar(exp Expression, row RowOrGroup, scope *Scope) (Object, error) {
	obj, err := Eval(exp, row, scope)
	if err != nil {
		return nil, err
	}

	return scalarValue(obj)
}

// asTuple returns the row constructor value of the object, single row
// subqueries with several columns count as row constructors
func asTuple(obj Object) (*List, bool) {
	switch o := obj.(type) {
	case *List:
		return o, true
	case Dataset:
		if len(o) == 1 && o[0].Len() > 1 {
			return &List{Value: o[0].Values()}, true
		}
	}

	return nil, false
}

func isStringToken(exp Expression) bool {
	c, ok := exp.(*ConstantExpression)

	return ok && c.Token.Type == STRING
}

func bothStrings(a, b Object) bool {
	_, aok := a.(*String)
	_, bok := b.(*String)

	return aok && bok
}

func bareName(key string) string {
	return key[strings.LastIndex(key, ".")+1:]
}

func evalColumn(node *ColumnExpression, row RowOrGroup, scope *Scope) (Object, error) {
	if node.Column == "*" {
		return nil, types.NewRuntimeError(types.CodeBadField, "'*' is only valid in a select list or COUNT(*)")
	}

	r := row.Representative()
	key := node.Key()

	if obj, ok := r.Get(key); ok {
		return obj, nil
	}

	columns := r.Columns()

	for _, c := range columns {
		if strings.EqualFold(c, key) {
			obj, _ := r.Get(c)

			return obj, nil
		}
	}

	if node.Table == "" || node.AllowFallthrough {
		for _, c := range columns {
			if strings.EqualFold(bareName(c), node.Column) {
				obj, _ := r.Get(c)

				return obj, nil
			}
		}
	}

	if obj, ok := r.Get(node.Column); ok {
		return obj, nil
	}

	if scope.MissingColumnsAsNull {
		return NULL, nil
	}

	return nil, types.NewRuntimeError(types.CodeBadField, "Unknown column '%s' in 'field list'", node.String())
}

func evalUnary(node *UnaryExpression, row RowOrGroup, scope *Scope) (Object, error) {
	switch node.Operator {
	case ANY, SOME, "ALL":
		return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "operator %s is not supported yet", node.Operator)
	}

	right, err := evalScalar(node.Right, row, scope)
	if err != nil {
		return nil, err
	}

	if isNull(right) {
		return NULL, nil
	}

	switch node.Operator {
	case UnaryMinus:
		switch n := toNumber(right).(type) {
		case *Integer:
			if n.Value == math.MinInt64 {
				return nil, types.NewRuntimeError(types.CodeDataOutOfRange, "BIGINT value is out of range in '-(%d)'", n.Value)
			}

			return &Integer{Value: -n.Value}, nil
		case *Float:
			return &Float{Value: -n.Value}, nil
		}
	case UnaryPlus:
		return toNumber(right), nil
	case "~":
		return newUnsigned(^uint64(toInt(right))), nil
	case "!":
		return boolResult(!isTruthy(right)), nil
	}

	return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "unknown operator: %s", node.Operator)
}

func evalBinary(node *BinaryExpression, row RowOrGroup, scope *Scope) (Object, error) {
	switch node.Operator {
	case AND, OR:
		return evalLogical(node, row, scope)
	case IS:
		return evalIs(node, row, scope)
	case LIKE:
		return evalLike(node, row, scope)
	case REGEXP, RLIKE:
		return evalRegexp(node, row, scope)
	}

	if !comparisonOperators[node.Operator] && !arithmeticOperators[node.Operator] {
		return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "operator %s is not supported yet", node.Operator)
	}

	if iv, ok := node.Right.(*IntervalExpression); ok && (node.Operator == "+" || node.Operator == "-") {
		sign := 1.0
		if node.Operator == "-" {
			sign = -1
		}

		return evalDateArithmetic(node.Left, iv, sign, row, scope)
	}

	if iv, ok := node.Left.(*IntervalExpression); ok && node.Operator == "+" {
		return evalDateArithmetic(node.Right, iv, 1, row, scope)
	}

	left, err := Eval(node.Left, row, scope)
	if err != nil {
		return nil, err
	}

	right, err := Eval(node.Right, row, scope)
	if err != nil {
		return nil, err
	}

	lt, lok := asTuple(left)
	rt, rok := asTuple(right)

	switch {
	case lok && rok:
		return compareRows(node, lt, rt)
	case lok:
		return nil, types.NewRuntimeError(types.CodeOperandColumns, "Operand should contain %d column(s)", len(lt.Value))
	case rok:
		return nil, types.NewRuntimeError(types.CodeOperandColumns, "Operand should contain 1 column(s)")
	}

	left, err = scalarValue(left)
	if err != nil {
		return nil, err
	}

	right, err = scalarValue(right)
	if err != nil {
		return nil, err
	}

	if comparisonOperators[node.Operator] {
		if isNull(left) || isNull(right) {
			return NULL, nil
		}

		stringMode := isStringToken(node.Left) || isStringToken(node.Right) || bothStrings(left, right)
		cmp := compareValues(left, right, stringMode)

		return boolResult(applyComparison(node.Operator, cmp) != node.Negated), nil
	}

	return arithmetic(node.Operator, left, right, scope)
}

// compareRows compares row constructors pairwise, the first unequal pair (or
// the last one) decides the result
func compareRows(node *BinaryExpression, left, right *List) (Object, error) {
	if !comparisonOperators[node.Operator] {
		return nil, types.NewRuntimeError(types.CodeOperandColumns, "Operand should contain 1 column(s)")
	}

	if len(left.Value) != len(right.Value) {
		return nil, types.NewRuntimeError(types.CodeOperandColumns, "Operand should contain %d column(s)", len(left.Value))
	}

	last := len(left.Value) - 1

	for i := range left.Value {
		a, b := scalar(left.Value[i]), scalar(right.Value[i])
		if isNull(a) || isNull(b) {
			return NULL, nil
		}

		cmp := compareValues(a, b, bothStrings(a, b))
		if i < last && cmp == 0 {
			continue
		}

		return boolResult(applyComparison(node.Operator, cmp) != node.Negated), nil
	}

	return NULL, nil
}

func applyComparison(operator string, cmp int) bool {
	switch operator {
	case "=":
		return cmp == 0
	case "<>", "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}

	return false
}

// compareStrings compares with a case insensitive collation
func compareStrings(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareValues(a, b Object, stringMode bool) int {
	if stringMode {
		return compareStrings(toStringValue(a), toStringValue(b))
	}

	na, nb := toNumber(a), toNumber(b)

	ai, aok := na.(*Integer)
	bi, bok := nb.(*Integer)

	if aok && bok {
		switch {
		case ai.Value < bi.Value:
			return -1
		case ai.Value > bi.Value:
			return 1
		}

		return 0
	}

	fa, fb := toFloat(na), toFloat(nb)

	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	}

	return 0
}

// looseEqual is the equality used by IN, CASE and NULLIF
func looseEqual(a, b Object, stringToken bool) bool {
	at, aok := asTuple(a)
	bt, bok := asTuple(b)

	if aok || bok {
		if !aok || !bok || len(at.Value) != len(bt.Value) {
			return false
		}

		for i := range at.Value {
			if !looseEqual(at.Value[i], bt.Value[i], false) {
				return false
			}
		}

		return true
	}

	a, b = scalar(a), scalar(b)
	if isNull(a) || isNull(b) {
		return false
	}

	return compareValues(a, b, stringToken || bothStrings(a, b)) == 0
}

func divisionByZero(scope *Scope) (Object, error) {
	if scope.StrictMode {
		return nil, types.NewRuntimeError(types.CodeDivisionByZero, "Division by 0")
	}

	return NULL, nil
}

func arithmetic(operator string, left, right Object, scope *Scope) (Object, error) {
	if isNull(left) || isNull(right) {
		return NULL, nil
	}

	ln, rn := toNumber(left), toNumber(right)
	li, lok := ln.(*Integer)
	ri, rok := rn.(*Integer)
	ints := lok && rok

	switch operator {
	case "+", "-", "*":
		if ints {
			n, ok := integerArithmetic(operator, li.Value, ri.Value)
			if !ok {
				return nil, outOfRange(operator, li.Value, ri.Value)
			}

			return &Integer{Value: n}, nil
		}

		lf, rf := toFloat(ln), toFloat(rn)

		switch operator {
		case "+":
			return &Float{Value: lf + rf}, nil
		case "-":
			return &Float{Value: lf - rf}, nil
		}

		return &Float{Value: lf * rf}, nil
	case "/":
		divisor := toFloat(rn)
		if divisor == 0 {
			return divisionByZero(scope)
		}

		return &Float{Value: toFloat(ln) / divisor}, nil
	case DIV:
		if ints {
			if ri.Value == 0 {
				return divisionByZero(scope)
			}

			if li.Value == math.MinInt64 && ri.Value == -1 {
				return nil, outOfRange(DIV, li.Value, ri.Value)
			}

			return &Integer{Value: li.Value / ri.Value}, nil
		}

		divisor := toFloat(rn)
		if divisor == 0 {
			return divisionByZero(scope)
		}

		return &Integer{Value: int64(toFloat(ln) / divisor)}, nil
	case "%", MOD:
		if ints {
			if ri.Value == 0 {
				return divisionByZero(scope)
			}

			return &Integer{Value: li.Value % ri.Value}, nil
		}

		divisor := toFloat(rn)
		if divisor == 0 {
			return divisionByZero(scope)
		}

		return &Float{Value: math.Mod(toFloat(ln), divisor)}, nil
	case "<<":
		return newUnsigned(uint64(toInt(ln)) << uint64(toInt(rn))), nil
	case ">>":
		return newUnsigned(uint64(toInt(ln)) >> uint64(toInt(rn))), nil
	case "|":
		return newUnsigned(uint64(toInt(ln)) | uint64(toInt(rn))), nil
	case "&":
		return newUnsigned(uint64(toInt(ln)) & uint64(toInt(rn))), nil
	}

	return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "operator %s is not supported yet", operator)
}

// integerArithmetic applies + - or * reporting false when the result does
// not fit in a BIGINT
func integerArithmetic(operator string, a, b int64) (int64, bool) {
	switch operator {
	case "+":
		r := a + b

		return r, (a >= 0) != (b >= 0) || (r >= 0) == (a >= 0)
	case "-":
		r := a - b

		return r, (a >= 0) == (b >= 0) || (r >= 0) == (a >= 0)
	}

	if a == 0 || b == 0 {
		return 0, true
	}

	r := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || r/b != a {
		return 0, false
	}

	return r, true
}

func outOfRange(operator string, a, b int64) error {
	return types.NewRuntimeError(types.CodeDataOutOfRange, "BIGINT value is out of range in '(%d %s %d)'", a, operator, b)
}

func evalLogical(node *BinaryExpression, row RowOrGroup, scope *Scope) (Object, error) {
	left, err := Eval(node.Left, row, scope)
	if err != nil {
		return nil, err
	}

	l := isTruthy(left)

	if node.Operator == AND && !l {
		return boolResult(node.Negated), nil
	}

	if node.Operator == OR && l {
		return boolResult(!node.Negated), nil
	}

	right, err := Eval(node.Right, row, scope)
	if err != nil {
		return nil, err
	}

	return boolResult(isTruthy(right) != node.Negated), nil
}

func evalIs(node *BinaryExpression, row RowOrGroup, scope *Scope) (Object, error) {
	c, ok := node.Right.(*ConstantExpression)
	if !ok {
		return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "IS only supports NULL, TRUE, FALSE and UNKNOWN")
	}

	left, err := evalScalar(node.Left, row, scope)
	if err != nil {
		return nil, err
	}

	var matched bool

	switch {
	case isNull(c.Value):
		matched = isNull(left)
	case isTruthy(c.Value):
		matched = !isNull(left) && isTruthy(left)
	default:
		matched = !isNull(left) && !isTruthy(left)
	}

	return boolResult(matched != node.Negated), nil
}

func evalLike(node *BinaryExpression, row RowOrGroup, scope *Scope) (Object, error) {
	switch node.Right.(type) {
	case *ConstantExpression, *ParameterExpression:
	default:
		return nil, types.NewRuntimeError(types.CodeWrongArguments, "LIKE requires a constant pattern, got %s", node.Right.String())
	}

	left, err := evalScalar(node.Left, row, scope)
	if err != nil {
		return nil, err
	}

	right, err := evalScalar(node.Right, row, scope)
	if err != nil {
		return nil, err
	}

	if isNull(left) || isNull(right) {
		return NULL, nil
	}

	re, err := likePattern(toStringValue(right))
	if err != nil {
		return nil, err
	}

	return boolResult(re.MatchString(toStringValue(left)) != node.Negated), nil
}

// likePattern translates % and _ wildcards into an anchored regular
// expression, backslash escapes the next character
func likePattern(pattern string) (*regexp.Regexp, error) {
	key := "like:" + pattern
	if re, ok := patternCache.Load(key); ok {
		return re.(*regexp.Regexp), nil
	}

	var out strings.Builder

	out.WriteString("(?s)^")

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch c := runes[i]; {
		case c == '\\' && i+1 < len(runes):
			i++
			out.WriteString(regexp.QuoteMeta(string(runes[i])))
		case c == '%':
			out.WriteString(".*?")
		case c == '_':
			out.WriteString(".")
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	out.WriteString("$")

	re, err := regexp.Compile(out.String())
	if err != nil {
		return nil, types.NewRuntimeError(types.CodeRegexpError, "Got error '%s' from regexp", err.Error())
	}

	patternCache.Store(key, re)

	return re, nil
}

func isBinaryCall(exp Expression) bool {
	fn, ok := exp.(*FunctionExpression)

	return ok && fn.Name == BINARY
}

func evalRegexp(node *BinaryExpression, row RowOrGroup, scope *Scope) (Object, error) {
	left, err := evalScalar(node.Left, row, scope)
	if err != nil {
		return nil, err
	}

	right, err := evalScalar(node.Right, row, scope)
	if err != nil {
		return nil, err
	}

	if isNull(left) || isNull(right) {
		return NULL, nil
	}

	pattern := toStringValue(right)
	if !isBinaryCall(node.Right) && !isBinaryCall(node.Left) {
		pattern = "(?i)" + pattern
	}

	key := "regexp:" + pattern

	cached, ok := patternCache.Load(key)
	if !ok {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, types.NewRuntimeError(types.CodeRegexpError, "Got error '%s' from regexp", err.Error())
		}

		patternCache.Store(key, re)
		cached = re
	}

	re := cached.(*regexp.Regexp)

	return boolResult(re.MatchString(toStringValue(left)) != node.Negated), nil
}

func evalBetween(node *BetweenExpression, row RowOrGroup, scope *Scope) (Object, error) {
	if !node.WellFormed() {
		return nil, types.NewRuntimeError(types.CodeParseError, "incomplete BETWEEN expression")
	}

	subject, err := evalScalar(node.Left, row, scope)
	if err != nil {
		return nil, err
	}

	start, err := evalScalar(node.Start, row, scope)
	if err != nil {
		return nil, err
	}

	end, err := evalScalar(node.End, row, scope)
	if err != nil {
		return nil, err
	}

	if isNull(subject) || isNull(start) || isNull(end) {
		return NULL, nil
	}

	numeric := isNumeric(subject)
	in := compareValues(subject, start, !numeric) >= 0 && compareValues(subject, end, !numeric) <= 0

	return boolResult(in != node.Negated), nil
}

func evalIn(node *InExpression, row RowOrGroup, scope *Scope) (Object, error) {
	if len(node.List) == 0 {
		return nil, types.NewParseError(node.Token.Raw, node.Token.Position, "IN requires at least one value")
	}

	left, err := Eval(node.Left, row, scope)
	if err != nil {
		return nil, err
	}

	candidates := make([]Object, 0, len(node.List))

	for _, exp := range node.List {
		obj, err := Eval(exp, row, scope)
		if err != nil {
			return nil, err
		}

		candidates = append(candidates, obj)
	}

	if _, sub := node.List[0].(*SubqueryExpression); len(node.List) == 1 && !sub && isNull(scalar(candidates[0])) {
		if node.Negated {
			return nil, types.NewRuntimeError(types.CodeWrongArguments, "NOT IN (NULL) never matches")
		}

		return FALSE, nil
	}

	_, tuple := asTuple(left)
	if !tuple {
		left, err = scalarValue(left)
		if err != nil {
			return nil, err
		}

		if isNull(left) {
			return NULL, nil
		}
	}

	stringToken := isStringToken(node.Left)

	for i, candidate := range candidates {
		values := []Object{candidate}

		if ds, ok := candidate.(Dataset); ok {
			values = make([]Object, 0, len(ds))

			for _, r := range ds {
				if tuple {
					values = append(values, &List{Value: r.Values()})

					continue
				}

				if r.Len() != 1 {
					return nil, types.NewRuntimeError(types.CodeOperandColumns, "Operand should contain 1 column(s)")
				}

				values = append(values, r.Values()[0])
			}
		}

		for _, v := range values {
			if looseEqual(left, v, stringToken || isStringToken(node.List[i])) {
				return boolResult(!node.Negated), nil
			}
		}
	}

	return boolResult(node.Negated), nil
}

func evalCase(node *CaseExpression, row RowOrGroup, scope *Scope) (Object, error) {
	if !node.WellFormed() {
		return nil, types.NewRuntimeError(types.CodeParseError, "incomplete CASE expression")
	}

	var subject Object

	if node.Case != nil {
		var err error

		subject, err = evalScalar(node.Case, row, scope)
		if err != nil {
			return nil, err
		}
	}

	for _, b := range node.Branches {
		when, err := evalScalar(b.When, row, scope)
		if err != nil {
			return nil, err
		}

		matched := isTruthy(when)
		if node.Case != nil {
			matched = looseEqual(subject, when, isStringToken(node.Case) || isStringToken(b.When))
		}

		if matched {
			return Eval(b.Then, row, scope)
		}
	}

	return Eval(node.Else, row, scope)
}

func evalRow(node *RowExpression, row RowOrGroup, scope *Scope) (Object, error) {
	l := &List{Value: make([]Object, 0, len(node.Elements))}

	for _, e := range node.Elements {
		obj, err := Eval(e, row, scope)
		if err != nil {
			return nil, err
		}

		l.Value = append(l.Value, obj)
	}

	return l, nil
}

func evalSubquery(node *SubqueryExpression, row RowOrGroup, scope *Scope) (Object, error) {
	if scope.Executor == nil {
		return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "subqueries need a statement executor")
	}

	ds, err := scope.Executor.ExecuteSubquery(node, row.Representative(), scope)
	if err != nil {
		return nil, err
	}

	if ds == nil {
		ds = Dataset{}
	}

	return ds, nil
}

func evalExists(node *ExistsExpression, row RowOrGroup, scope *Scope) (Object, error) {
	if node.Subquery == nil {
		return nil, types.NewRuntimeError(types.CodeParseError, "EXISTS requires a subquery")
	}

	obj, err := evalSubquery(node.Subquery, row, scope)
	if err != nil {
		return nil, err
	}

	ds, _ := obj.(Dataset)

	return boolResult((len(ds) > 0) != node.Negated), nil
}

func evalPosition(node *PositionExpression, row RowOrGroup) (Object, error) {
	values := row.Representative().Values()
	if node.Position < 1 || node.Position > len(values) {
		return nil, types.NewRuntimeError(types.CodeBadField, "Unknown column '%d' in 'order clause'", node.Position)
	}

	return values[node.Position-1], nil
}
