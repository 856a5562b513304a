package language

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/truora/minisql/types"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ValuesNamespace is the row table holding the VALUES() of an
// INSERT ... ON DUPLICATE KEY UPDATE
const ValuesNamespace = "sql_fake_values"

var dateLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	dateTimeLayout,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	dateLayout,
}

// Function represents a builtin function of the expression language
type Function struct {
	Name      string
	Aggregate bool
	MinArgs   int
	// MaxArgs is -1 for variadic functions
	MaxArgs int
	// Value receives the evaluated arguments
	Value func(scope *Scope, args ...Object) (Object, error)
	// Expression receives the call unevaluated, used when arguments are
	// evaluated lazily or once per grouped row
	Expression func(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error)
}

// Inspect returns the readable value of the object
func (fn *Function) Inspect() string {
	return fn.Name
}

var functions map[string]*Function

func init() {
	functions = map[string]*Function{}

	register := func(f *Function, aliases ...string) {
		functions[f.Name] = f

		for _, a := range aliases {
			functions[a] = f
		}
	}

	register(&Function{Name: "COUNT", Aggregate: true, MinArgs: 1, MaxArgs: 1, Expression: aggregateCount})
	register(&Function{Name: "SUM", Aggregate: true, MinArgs: 1, MaxArgs: 1, Expression: aggregateSum})
	register(&Function{Name: "MIN", Aggregate: true, MinArgs: 1, MaxArgs: 1, Expression: aggregateMin})
	register(&Function{Name: "MAX", Aggregate: true, MinArgs: 1, MaxArgs: 1, Expression: aggregateMax})
	register(&Function{Name: "AVG", Aggregate: true, MinArgs: 1, MaxArgs: 1, Expression: aggregateAvg})

	register(&Function{Name: "IF", MinArgs: 3, MaxArgs: 3, Expression: ifFunction})
	register(&Function{Name: "VALUES", MinArgs: 1, MaxArgs: 1, Expression: valuesFunction})
	register(&Function{Name: "DATE_ADD", MinArgs: 2, MaxArgs: 2, Expression: dateAdd(1)}, "ADDDATE")
	register(&Function{Name: "DATE_SUB", MinArgs: 2, MaxArgs: 2, Expression: dateAdd(-1)}, "SUBDATE")

	register(&Function{Name: "MOD", MinArgs: 2, MaxArgs: 2, Value: modFunction})
	register(&Function{Name: "IFNULL", MinArgs: 2, MaxArgs: 2, Value: coalesce})
	register(&Function{Name: "COALESCE", MinArgs: 1, MaxArgs: -1, Value: coalesce})
	register(&Function{Name: "NULLIF", MinArgs: 2, MaxArgs: 2, Value: nullIf})
	register(&Function{Name: "ISNULL", MinArgs: 1, MaxArgs: 1, Value: isNullFunction})
	register(&Function{Name: "SUBSTRING", MinArgs: 2, MaxArgs: 3, Value: substring}, "SUBSTR", "MID")
	register(&Function{Name: "SUBSTRING_INDEX", MinArgs: 3, MaxArgs: 3, Value: substringIndex})
	register(&Function{Name: "LEFT", MinArgs: 2, MaxArgs: 2, Value: leftFunction})
	register(&Function{Name: "RIGHT", MinArgs: 2, MaxArgs: 2, Value: rightFunction})
	register(&Function{Name: "LENGTH", MinArgs: 1, MaxArgs: 1, Value: length}, "OCTET_LENGTH")
	register(&Function{Name: "CHAR_LENGTH", MinArgs: 1, MaxArgs: 1, Value: charLength}, "CHARACTER_LENGTH")
	register(&Function{Name: "LOWER", MinArgs: 1, MaxArgs: 1, Value: stringFunction(strings.ToLower)}, "LCASE")
	register(&Function{Name: "UPPER", MinArgs: 1, MaxArgs: 1, Value: stringFunction(strings.ToUpper)}, "UCASE")
	register(&Function{Name: "TRIM", MinArgs: 1, MaxArgs: 1, Value: stringFunction(strings.TrimSpace)})
	register(&Function{Name: "LTRIM", MinArgs: 1, MaxArgs: 1, Value: stringFunction(trimLeft)})
	register(&Function{Name: "RTRIM", MinArgs: 1, MaxArgs: 1, Value: stringFunction(trimRight)})
	register(&Function{Name: "REPLACE", MinArgs: 3, MaxArgs: 3, Value: replaceFunction})
	register(&Function{Name: "CONCAT", MinArgs: 1, MaxArgs: -1, Value: concat})
	register(&Function{Name: "CONCAT_WS", MinArgs: 2, MaxArgs: -1, Value: concatWS})
	register(&Function{Name: "FIELD", MinArgs: 2, MaxArgs: -1, Value: field})
	register(&Function{Name: BINARY, MinArgs: 1, MaxArgs: 1, Value: binaryFunction})
	register(&Function{Name: "GREATEST", MinArgs: 2, MaxArgs: -1, Value: extreme(1)})
	register(&Function{Name: "LEAST", MinArgs: 2, MaxArgs: -1, Value: extreme(-1)})
	register(&Function{Name: "ROUND", MinArgs: 1, MaxArgs: 2, Value: round})
	register(&Function{Name: "ABS", MinArgs: 1, MaxArgs: 1, Value: abs})
	register(&Function{Name: "CEIL", MinArgs: 1, MaxArgs: 1, Value: roundingFunction(math.Ceil)}, "CEILING")
	register(&Function{Name: "FLOOR", MinArgs: 1, MaxArgs: 1, Value: roundingFunction(math.Floor)})

	register(&Function{Name: "NOW", MinArgs: 0, MaxArgs: 1, Value: now}, "SYSDATE")
	register(&Function{Name: "CURDATE", MinArgs: 0, MaxArgs: 0, Value: curdate})
	register(&Function{Name: "DATE", MinArgs: 1, MaxArgs: 1, Value: dateFunction})
	register(&Function{Name: "DATE_FORMAT", MinArgs: 2, MaxArgs: 2, Value: dateFormat})
	register(&Function{Name: "FROM_UNIXTIME", MinArgs: 1, MaxArgs: 2, Value: fromUnixTime})
	register(&Function{Name: "UNIX_TIMESTAMP", MinArgs: 0, MaxArgs: 1, Value: unixTimestamp})
}

// IsAggregate reports whether the function name is an aggregate
func IsAggregate(name string) bool {
	f, ok := functions[strings.ToUpper(name)]

	return ok && f.Aggregate
}

// ContainsAggregate reports whether any aggregate call is part of the
// expression
func ContainsAggregate(exp Expression) bool {
	switch node := exp.(type) {
	case *FunctionExpression:
		return IsAggregate(node.Name) || anyAggregate(node.Arguments...)
	case *UnaryExpression:
		return ContainsAggregate(node.Right)
	case *BinaryExpression:
		return anyAggregate(node.Left, node.Right)
	case *BetweenExpression:
		return anyAggregate(node.Left, node.Start, node.End)
	case *InExpression:
		return anyAggregate(node.Left) || anyAggregate(node.List...)
	case *CaseExpression:
		exps := []Expression{node.Case, node.Else}
		for _, b := range node.Branches {
			exps = append(exps, b.When, b.Then)
		}

		return anyAggregate(exps...)
	case *RowExpression:
		return anyAggregate(node.Elements...)
	case *CastExpression:
		return ContainsAggregate(node.Expression)
	case *IntervalExpression:
		return ContainsAggregate(node.Number)
	}

	return false
}

func anyAggregate(exps ...Expression) bool {
	for _, e := range exps {
		if e != nil && ContainsAggregate(e) {
			return true
		}
	}

	return false
}

func evalFunction(node *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	f, ok := functions[node.Name]
	if !ok {
		return nil, types.NewRuntimeError(types.CodeFunctionNotExists, "FUNCTION %s does not exist", node.Name)
	}

	n := len(node.Arguments)
	if n < f.MinArgs || (f.MaxArgs >= 0 && n > f.MaxArgs) {
		return nil, types.NewRuntimeError(types.CodeWrongParamCount, "Incorrect parameter count in the call to native function '%s'", node.Name)
	}

	if node.Distinct && !f.Aggregate {
		return nil, types.NewRuntimeError(types.CodeWrongArguments, "DISTINCT is only valid in aggregate functions")
	}

	if !f.Aggregate && !anyAggregate(node.Arguments...) {
		row = row.Representative()
	}

	if f.Expression != nil {
		return f.Expression(node, row, scope)
	}

	args := make([]Object, 0, n)

	for _, a := range node.Arguments {
		obj, err := evalScalar(a, row, scope)
		if err != nil {
			return nil, err
		}

		args = append(args, obj)
	}

	return f.Value(scope, args...)
}

// aggregateValues evaluates the argument once per grouped row, skipping NULL
func aggregateValues(fn *FunctionExpression, row RowOrGroup, scope *Scope) ([]Object, error) {
	out := []Object{}
	seen := map[string]bool{}

	for _, r := range row.Rows() {
		obj, err := evalScalar(fn.Arguments[0], r, scope)
		if err != nil {
			return nil, err
		}

		if isNull(obj) {
			continue
		}

		if fn.Distinct {
			key := string(obj.Type()) + ":" + obj.Inspect()
			if seen[key] {
				continue
			}

			seen[key] = true
		}

		out = append(out, obj)
	}

	return out, nil
}

func aggregateCount(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	if col, ok := fn.Arguments[0].(*ColumnExpression); ok && col.Column == "*" {
		return &Integer{Value: int64(len(row.Rows()))}, nil
	}

	values, err := aggregateValues(fn, row, scope)
	if err != nil {
		return nil, err
	}

	return &Integer{Value: int64(len(values))}, nil
}

func columnTypeOf(exp Expression, scope *Scope) (ColumnType, bool) {
	col, ok := exp.(*ColumnExpression)
	if !ok {
		return ColumnType{}, false
	}

	return scope.ColumnType(col)
}

func toDecimal(obj Object) decimal.Decimal {
	switch o := scalar(obj).(type) {
	case *Integer:
		return decimal.NewFromInt(o.Value)
	case *Float:
		return decimal.NewFromFloat(o.Value)
	case *String:
		if d, err := decimal.NewFromString(strings.TrimSpace(o.Value)); err == nil {
			return d
		}

		return decimal.NewFromFloat(parseLeadingFloat(o.Value))
	}

	return decimal.Zero
}

func aggregateSum(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	values, err := aggregateValues(fn, row, scope)
	if err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return &Integer{Value: 0}, nil
	}

	if ct, ok := columnTypeOf(fn.Arguments[0], scope); ok && ct.IsDecimal() {
		sum := decimal.Zero
		for _, v := range values {
			sum = sum.Add(toDecimal(v))
		}

		return &String{Value: sum.StringFixed(int32(ct.Scale))}, nil
	}

	var (
		intSum   int64
		exactSum = decimal.Zero
		floatSum float64
		ints     = true
		overflow bool
	)

	for _, v := range values {
		n := toNumber(v)
		if i, ok := n.(*Integer); ok {
			exactSum = exactSum.Add(decimal.NewFromInt(i.Value))

			if !overflow {
				intSum, overflow = addInt(intSum, i.Value)
			}
		} else {
			ints = false
		}

		floatSum += toFloat(n)
	}

	if ints && overflow {
		// integer sums are exact DECIMAL values past the BIGINT range
		return &String{Value: exactSum.String()}, nil
	}

	if ints {
		return &Integer{Value: intSum}, nil
	}

	return &Float{Value: floatSum}, nil
}

// addInt returns the sum and whether it overflowed
func addInt(a, b int64) (int64, bool) {
	sum, ok := integerArithmetic("+", a, b)

	return sum, !ok
}

func aggregateAvg(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	values, err := aggregateValues(fn, row, scope)
	if err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return NULL, nil
	}

	if ct, ok := columnTypeOf(fn.Arguments[0], scope); ok && ct.IsDecimal() {
		sum := decimal.Zero
		for _, v := range values {
			sum = sum.Add(toDecimal(v))
		}

		avg := sum.Div(decimal.NewFromInt(int64(len(values))))

		return &String{Value: avg.StringFixed(int32(ct.Scale + 4))}, nil
	}

	sum := 0.0
	for _, v := range values {
		sum += toFloat(v)
	}

	return &Float{Value: sum / float64(len(values))}, nil
}

func aggregateMin(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	return aggregateExtreme(fn, row, scope, -1)
}

func aggregateMax(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	return aggregateExtreme(fn, row, scope, 1)
}

func aggregateExtreme(fn *FunctionExpression, row RowOrGroup, scope *Scope, direction int) (Object, error) {
	values, err := aggregateValues(fn, row, scope)
	if err != nil {
		return nil, err
	}

	return pickExtreme(values, direction), nil
}

// pickExtreme returns the greatest (direction 1) or least (direction -1)
// value, numbers compare numerically unless a string is involved
func pickExtreme(values []Object, direction int) Object {
	if len(values) == 0 {
		return NULL
	}

	numeric := true
	for _, v := range values {
		if !isNumeric(v) {
			numeric = false
		}
	}

	best := values[0]
	for _, v := range values[1:] {
		if compareValues(v, best, !numeric)*direction > 0 {
			best = v
		}
	}

	return best
}

func ifFunction(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	cond, err := Eval(fn.Arguments[0], row, scope)
	if err != nil {
		return nil, err
	}

	if isTruthy(cond) {
		return Eval(fn.Arguments[1], row, scope)
	}

	return Eval(fn.Arguments[2], row, scope)
}

func valuesFunction(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
	col, ok := fn.Arguments[0].(*ColumnExpression)
	if !ok {
		return nil, types.NewRuntimeError(types.CodeWrongArguments, "VALUES() expects a column, got %s", fn.Arguments[0].String())
	}

	obj, ok := row.Representative().Get(ValuesNamespace + "." + col.Column)
	if !ok {
		return NULL, nil
	}

	return obj, nil
}

func modFunction(scope *Scope, args ...Object) (Object, error) {
	return arithmetic(MOD, args[0], args[1], scope)
}

func coalesce(_ *Scope, args ...Object) (Object, error) {
	for _, a := range args {
		if !isNull(a) {
			return a, nil
		}
	}

	return NULL, nil
}

func nullIf(_ *Scope, args ...Object) (Object, error) {
	if looseEqual(args[0], args[1], false) {
		return NULL, nil
	}

	return args[0], nil
}

func isNullFunction(_ *Scope, args ...Object) (Object, error) {
	return boolResult(isNull(args[0])), nil
}

func substring(_ *Scope, args ...Object) (Object, error) {
	for _, a := range args {
		if isNull(a) {
			return NULL, nil
		}
	}

	runes := []rune(toStringValue(args[0]))
	size := int64(len(runes))
	pos := toInt(args[1])

	var start int64

	switch {
	case pos == 0 || pos > size || -pos > size:
		return &String{Value: ""}, nil
	case pos > 0:
		start = pos - 1
	default:
		start = size + pos
	}

	end := size
	if len(args) == 3 {
		l := toInt(args[2])
		if l <= 0 {
			return &String{Value: ""}, nil
		}

		if start+l < end {
			end = start + l
		}
	}

	return &String{Value: string(runes[start:end])}, nil
}

func substringIndex(_ *Scope, args ...Object) (Object, error) {
	for _, a := range args {
		if isNull(a) {
			return NULL, nil
		}
	}

	str := toStringValue(args[0])
	delim := toStringValue(args[1])
	count := toInt(args[2])

	if delim == "" || count == 0 {
		return &String{Value: ""}, nil
	}

	parts := strings.Split(str, delim)
	n := int64(len(parts))

	if count > 0 {
		if count >= n {
			return &String{Value: str}, nil
		}

		return &String{Value: strings.Join(parts[:count], delim)}, nil
	}

	if -count >= n {
		return &String{Value: str}, nil
	}

	return &String{Value: strings.Join(parts[n+count:], delim)}, nil
}

func leftFunction(_ *Scope, args ...Object) (Object, error) {
	if isNull(args[0]) || isNull(args[1]) {
		return NULL, nil
	}

	runes := []rune(toStringValue(args[0]))
	n := toInt(args[1])

	switch {
	case n <= 0:
		return &String{Value: ""}, nil
	case n >= int64(len(runes)):
		return &String{Value: string(runes)}, nil
	}

	return &String{Value: string(runes[:n])}, nil
}

func rightFunction(_ *Scope, args ...Object) (Object, error) {
	if isNull(args[0]) || isNull(args[1]) {
		return NULL, nil
	}

	runes := []rune(toStringValue(args[0]))
	n := toInt(args[1])

	switch {
	case n <= 0:
		return &String{Value: ""}, nil
	case n >= int64(len(runes)):
		return &String{Value: string(runes)}, nil
	}

	return &String{Value: string(runes[int64(len(runes))-n:])}, nil
}

func length(_ *Scope, args ...Object) (Object, error) {
	if isNull(args[0]) {
		return NULL, nil
	}

	return &Integer{Value: int64(len(toStringValue(args[0])))}, nil
}

func charLength(_ *Scope, args ...Object) (Object, error) {
	if isNull(args[0]) {
		return NULL, nil
	}

	return &Integer{Value: int64(utf8.RuneCountInString(toStringValue(args[0])))}, nil
}

func trimLeft(s string) string {
	return strings.TrimLeft(s, " ")
}

func trimRight(s string) string {
	return strings.TrimRight(s, " ")
}

func stringFunction(transform func(string) string) func(*Scope, ...Object) (Object, error) {
	return func(_ *Scope, args ...Object) (Object, error) {
		if isNull(args[0]) {
			return NULL, nil
		}

		return &String{Value: transform(toStringValue(args[0]))}, nil
	}
}

func replaceFunction(_ *Scope, args ...Object) (Object, error) {
	for _, a := range args {
		if isNull(a) {
			return NULL, nil
		}
	}

	from := toStringValue(args[1])
	if from == "" {
		return &String{Value: toStringValue(args[0])}, nil
	}

	return &String{Value: strings.ReplaceAll(toStringValue(args[0]), from, toStringValue(args[2]))}, nil
}

func concat(_ *Scope, args ...Object) (Object, error) {
	var out strings.Builder

	for _, a := range args {
		if isNull(a) {
			return NULL, nil
		}

		out.WriteString(toStringValue(a))
	}

	return &String{Value: out.String()}, nil
}

func concatWS(_ *Scope, args ...Object) (Object, error) {
	if isNull(args[0]) {
		return NULL, nil
	}

	parts := []string{}

	for _, a := range args[1:] {
		if isNull(a) {
			continue
		}

		parts = append(parts, toStringValue(a))
	}

	return &String{Value: strings.Join(parts, toStringValue(args[0]))}, nil
}

func field(_ *Scope, args ...Object) (Object, error) {
	if isNull(args[0]) {
		return &Integer{Value: 0}, nil
	}

	for i, a := range args[1:] {
		if looseEqual(args[0], a, false) {
			return &Integer{Value: int64(i + 1)}, nil
		}
	}

	return &Integer{Value: 0}, nil
}

func binaryFunction(_ *Scope, args ...Object) (Object, error) {
	return args[0], nil
}

func extreme(direction int) func(*Scope, ...Object) (Object, error) {
	return func(_ *Scope, args ...Object) (Object, error) {
		for _, a := range args {
			if isNull(a) {
				return NULL, nil
			}
		}

		return pickExtreme(args, direction), nil
	}
}

func round(_ *Scope, args ...Object) (Object, error) {
	for _, a := range args {
		if isNull(a) {
			return NULL, nil
		}
	}

	places := int64(0)
	if len(args) == 2 {
		places = toInt(args[1])
	}

	switch n := toNumber(args[0]).(type) {
	case *Integer:
		if places >= 0 {
			return n, nil
		}

		rounded := decimal.NewFromInt(n.Value).Round(int32(places))

		return &Integer{Value: rounded.IntPart()}, nil
	case *Float:
		rounded, _ := decimal.NewFromFloat(n.Value).Round(int32(places)).Float64()

		return &Float{Value: rounded}, nil
	}

	return NULL, nil
}

func abs(_ *Scope, args ...Object) (Object, error) {
	switch n := toNumber(args[0]).(type) {
	case *Integer:
		if n.Value < 0 {
			return &Integer{Value: -n.Value}, nil
		}

		return n, nil
	case *Float:
		return &Float{Value: math.Abs(n.Value)}, nil
	}

	return NULL, nil
}

func roundingFunction(rounding func(float64) float64) func(*Scope, ...Object) (Object, error) {
	return func(_ *Scope, args ...Object) (Object, error) {
		switch n := toNumber(args[0]).(type) {
		case *Integer:
			return n, nil
		case *Float:
			return &Integer{Value: int64(rounding(n.Value))}, nil
		}

		return NULL, nil
	}
}

// parseTime reads a DATE or DATETIME value in the scope location
func parseTime(obj Object, scope *Scope) (time.Time, bool) {
	obj = scalar(obj)
	if isNull(obj) {
		return time.Time{}, false
	}

	s := strings.TrimSpace(toStringValue(obj))
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}, false
	}

	loc := scope.location()

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}

	t, err := cast.ToTimeInDefaultLocationE(s, loc)
	if err != nil {
		return time.Time{}, false
	}

	return t.In(loc), true
}

func hasTimePart(obj Object) bool {
	return len(strings.TrimSpace(toStringValue(obj))) > len(dateLayout)
}

func formatDateTime(t time.Time) string {
	if t.Nanosecond() != 0 {
		return t.Format("2006-01-02 15:04:05.000000")
	}

	return t.Format(dateTimeLayout)
}

func now(scope *Scope, _ ...Object) (Object, error) {
	return &String{Value: scope.Now().Format(dateTimeLayout)}, nil
}

func curdate(scope *Scope, _ ...Object) (Object, error) {
	return &String{Value: scope.Now().Format(dateLayout)}, nil
}

func dateFunction(scope *Scope, args ...Object) (Object, error) {
	t, ok := parseTime(args[0], scope)
	if !ok {
		return NULL, nil
	}

	return &String{Value: t.Format(dateLayout)}, nil
}

func dateFormat(scope *Scope, args ...Object) (Object, error) {
	if isNull(args[1]) {
		return NULL, nil
	}

	t, ok := parseTime(args[0], scope)
	if !ok {
		return NULL, nil
	}

	return &String{Value: formatMySQLDate(t, toStringValue(args[1]))}, nil
}

func fromUnixTime(scope *Scope, args ...Object) (Object, error) {
	for _, a := range args {
		if isNull(a) {
			return NULL, nil
		}
	}

	sec, frac := math.Modf(toFloat(args[0]))
	t := time.Unix(int64(sec), int64(math.Round(frac*1e6))*1000).In(scope.location())

	if len(args) == 2 {
		return &String{Value: formatMySQLDate(t, toStringValue(args[1]))}, nil
	}

	return &String{Value: formatDateTime(t)}, nil
}

func unixTimestamp(scope *Scope, args ...Object) (Object, error) {
	if len(args) == 0 {
		return &Integer{Value: scope.Now().Unix()}, nil
	}

	t, ok := parseTime(args[0], scope)
	if !ok {
		return NULL, nil
	}

	return &Integer{Value: t.Unix()}, nil
}

func dateAdd(sign float64) func(*FunctionExpression, RowOrGroup, *Scope) (Object, error) {
	return func(fn *FunctionExpression, row RowOrGroup, scope *Scope) (Object, error) {
		iv, ok := fn.Arguments[1].(*IntervalExpression)
		if !ok {
			// ADDDATE(date, days)
			iv = &IntervalExpression{Token: fn.Token, Number: fn.Arguments[1], Unit: UnitDay}
		}

		return evalDateArithmetic(fn.Arguments[0], iv, sign, row, scope)
	}
}

var timeUnits = map[IntervalUnit]bool{
	UnitMicrosecond: true,
	UnitSecond:      true,
	UnitMinute:      true,
	UnitHour:        true,
}

func evalDateArithmetic(dateExp Expression, iv *IntervalExpression, sign float64, row RowOrGroup, scope *Scope) (Object, error) {
	date, err := evalScalar(dateExp, row, scope)
	if err != nil {
		return nil, err
	}

	amount, err := evalScalar(iv.Number, row, scope)
	if err != nil {
		return nil, err
	}

	if isNull(date) || isNull(amount) {
		return NULL, nil
	}

	t, ok := parseTime(date, scope)
	if !ok {
		return NULL, nil
	}

	t = addInterval(t, sign*toFloat(amount), iv.Unit)

	if hasTimePart(date) || timeUnits[iv.Unit] {
		return &String{Value: formatDateTime(t)}, nil
	}

	return &String{Value: t.Format(dateLayout)}, nil
}

func addInterval(t time.Time, amount float64, unit IntervalUnit) time.Time {
	whole := int(math.Round(amount))

	switch unit {
	case UnitMicrosecond:
		return t.Add(time.Duration(amount) * time.Microsecond)
	case UnitSecond:
		return t.Add(time.Duration(amount * float64(time.Second)))
	case UnitMinute:
		return t.Add(time.Duration(amount * float64(time.Minute)))
	case UnitHour:
		return t.Add(time.Duration(amount * float64(time.Hour)))
	case UnitDay:
		return t.AddDate(0, 0, whole)
	case UnitWeek:
		return t.AddDate(0, 0, 7*whole)
	case UnitMonth:
		return addMonths(t, whole)
	case UnitQuarter:
		return addMonths(t, 3*whole)
	case UnitYear:
		return addMonths(t, 12*whole)
	}

	return t
}

// addMonths clamps the day to the end of the target month, 2024-01-31 plus one
// month is 2024-02-29
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()

	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}

	return first.AddDate(0, 0, d-1)
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}

	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}

	return "th"
}

// formatMySQLDate renders the DATE_FORMAT specifiers
func formatMySQLDate(t time.Time, format string) string {
	var out strings.Builder

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' || i+1 == len(format) {
			out.WriteByte(c)

			continue
		}

		i++

		hour12 := t.Hour() % 12
		if hour12 == 0 {
			hour12 = 12
		}

		switch format[i] {
		case 'Y':
			out.WriteString(t.Format("2006"))
		case 'y':
			out.WriteString(t.Format("06"))
		case 'm':
			out.WriteString(t.Format("01"))
		case 'c':
			out.WriteString(strconv.Itoa(int(t.Month())))
		case 'M':
			out.WriteString(t.Month().String())
		case 'b':
			out.WriteString(t.Format("Jan"))
		case 'd':
			out.WriteString(t.Format("02"))
		case 'e':
			out.WriteString(strconv.Itoa(t.Day()))
		case 'D':
			out.WriteString(strconv.Itoa(t.Day()) + ordinalSuffix(t.Day()))
		case 'H':
			out.WriteString(t.Format("15"))
		case 'k':
			out.WriteString(strconv.Itoa(t.Hour()))
		case 'h', 'I':
			out.WriteString(fmt.Sprintf("%02d", hour12))
		case 'l':
			out.WriteString(strconv.Itoa(hour12))
		case 'i':
			out.WriteString(t.Format("04"))
		case 's', 'S':
			out.WriteString(t.Format("05"))
		case 'f':
			out.WriteString(fmt.Sprintf("%06d", t.Nanosecond()/1000))
		case 'p':
			out.WriteString(t.Format("PM"))
		case 'W':
			out.WriteString(t.Weekday().String())
		case 'a':
			out.WriteString(t.Format("Mon"))
		case 'w':
			out.WriteString(strconv.Itoa(int(t.Weekday())))
		case 'j':
			out.WriteString(fmt.Sprintf("%03d", t.YearDay()))
		case 'T':
			out.WriteString(t.Format(timeLayout))
		case 'r':
			out.WriteString(t.Format("03:04:05 PM"))
		default:
			out.WriteByte(format[i])
		}
	}

	return out.String()
}

func evalCast(node *CastExpression, row RowOrGroup, scope *Scope) (Object, error) {
	v, err := evalScalar(node.Expression, row, scope)
	if err != nil {
		return nil, err
	}

	if isNull(v) {
		return NULL, nil
	}

	switch node.Type.Name {
	case "SIGNED":
		return &Integer{Value: toInt(v)}, nil
	case "UNSIGNED":
		return newUnsigned(uint64(toInt(v))), nil
	case "CHAR", "NCHAR":
		runes := []rune(toStringValue(v))
		if node.Type.Length > 0 && len(runes) > node.Type.Length {
			runes = runes[:node.Type.Length]
		}

		return &String{Value: string(runes)}, nil
	case BINARY:
		s := toStringValue(v)
		if node.Type.Length > 0 && len(s) > node.Type.Length {
			s = s[:node.Type.Length]
		}

		return &String{Value: s}, nil
	case "DECIMAL", "NUMERIC":
		return castDecimal(v, node.Type), nil
	case "DOUBLE", "FLOAT", "REAL":
		return &Float{Value: toFloat(v)}, nil
	case "DATE":
		t, ok := parseTime(v, scope)
		if !ok {
			return NULL, nil
		}

		return &String{Value: t.Format(dateLayout)}, nil
	case "DATETIME":
		t, ok := parseTime(v, scope)
		if !ok {
			return NULL, nil
		}

		return &String{Value: formatDateTime(t)}, nil
	case "TIME":
		t, ok := parseTime(v, scope)
		if !ok {
			return NULL, nil
		}

		return &String{Value: t.Format(timeLayout)}, nil
	}

	return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "CAST to %s is not supported yet", node.Type.String())
}

// castDecimal rounds to the scale and clamps to the largest value the
// precision can hold
func castDecimal(v Object, t CastType) Object {
	precision := t.Length
	if precision == 0 {
		precision = 10
	}

	d := toDecimal(v).Round(int32(t.Scale))

	limit := decimal.New(1, int32(precision-t.Scale)).Sub(decimal.New(1, -int32(t.Scale)))

	switch {
	case d.GreaterThan(limit):
		d = limit
	case d.LessThan(limit.Neg()):
		d = limit.Neg()
	}

	if t.Scale == 0 {
		return &Integer{Value: d.IntPart()}
	}

	return &String{Value: d.StringFixed(int32(t.Scale))}
}
