package interpreter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/truora/minisql/interpreter/language"
)

// Native simple interpreter running precompiled expr programs registered for
// the SQL expressions a test is going to send
type Native struct {
	mu                  sync.RWMutex
	filterExpressions   map[string]*vm.Program
	joinExpressions     map[string]*vm.Program
	havingExpressions   map[string]*vm.Program
	evaluateExpressions map[string]*vm.Program
}

// NewNativeInterpreter returns a new native interpreter
func NewNativeInterpreter() *Native {
	return &Native{
		filterExpressions:   map[string]*vm.Program{},
		joinExpressions:     map[string]*vm.Program{},
		havingExpressions:   map[string]*vm.Program{},
		evaluateExpressions: map[string]*vm.Program{},
	}
}

// Match evalute the row with the program registered for the expression
func (ni *Native) Match(input MatchInput) (bool, error) {
	program, err := ni.getMatcher(input.TableName, input.Expression, input.ExpressionType)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, Env(input.Row, input.Scope))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnsupportedFeature, err)
	}

	matched, _ := out.(bool)

	return matched, nil
}

// Evaluate returns the value of the program registered for the expression
func (ni *Native) Evaluate(input EvaluateInput) (language.Object, error) {
	ni.mu.RLock()
	program, found := ni.evaluateExpressions[input.TableName+"|"+normalizeExpression(input.Expression)]
	ni.mu.RUnlock()

	if !found {
		return nil, fmt.Errorf(
			"%w: evaluator not found for %q expression in table %q",
			ErrUnsupportedFeature,
			input.Expression,
			input.TableName,
		)
	}

	out, err := expr.Run(program, Env(input.Row, input.Scope))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedFeature, err)
	}

	return language.NativeToObject(out), nil
}

func (ni *Native) getMatcher(tablename, expression string, kind ExpressionType) (*vm.Program, error) {
	ni.mu.RLock()
	defer ni.mu.RUnlock()

	var (
		program *vm.Program
		found   bool
	)

	key := tablename + "|" + normalizeExpression(expression)

	switch kind {
	case ExpressionTypeFilter:
		program, found = ni.filterExpressions[key]
	case ExpressionTypeJoin:
		program, found = ni.joinExpressions[key]
	case ExpressionTypeHaving:
		program, found = ni.havingExpressions[key]
	}

	if !found {
		return nil, fmt.Errorf(
			"%w: matcher %q not found for %q expression in table %q",
			ErrUnsupportedFeature,
			string(kind),
			expression,
			tablename,
		)
	}

	return program, nil
}

// normalizeExpression makes registrations insensitive to spacing
func normalizeExpression(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// compile builds a program over the Env variables. Builtins are disabled so
// columns named type, count, date or len resolve to the row values.
func compile(program string, opts ...expr.Option) (*vm.Program, error) {
	opts = append([]expr.Option{expr.AllowUndefinedVariables(), expr.DisableAllBuiltins()}, opts...)

	return expr.Compile(program, opts...)
}

// AddMatcher compiles the program and uses it for the SQL expression on
// matches of the given kind
func (ni *Native) AddMatcher(tablename string, t ExpressionType, sqlExpression, program string) error {
	compiled, err := compile(program, expr.AsBool())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSyntaxError, err)
	}

	key := tablename + "|" + normalizeExpression(sqlExpression)

	ni.mu.Lock()
	defer ni.mu.Unlock()

	switch t {
	case ExpressionTypeFilter:
		ni.filterExpressions[key] = compiled
	case ExpressionTypeJoin:
		ni.joinExpressions[key] = compiled
	case ExpressionTypeHaving:
		ni.havingExpressions[key] = compiled
	default:
		return fmt.Errorf("%w: expression type %q", ErrUnsupportedFeature, t)
	}

	return nil
}

// AddEvaluator compiles the program and uses it to evaluate the SQL expression
func (ni *Native) AddEvaluator(tablename, sqlExpression, program string) error {
	compiled, err := compile(program)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSyntaxError, err)
	}

	ni.mu.Lock()
	ni.evaluateExpressions[tablename+"|"+normalizeExpression(sqlExpression)] = compiled
	ni.mu.Unlock()

	return nil
}

// Env builds the variables a program sees: every column by its bare name,
// qualified columns also under their table (t.id), the positional parameters
// as params and the named ones as named
func Env(row language.RowOrGroup, scope *language.Scope) map[string]interface{} {
	env := map[string]interface{}{}

	if row != nil && row.Representative() != nil {
		r := row.Representative()

		for _, key := range r.Columns() {
			obj, _ := r.Get(key)
			val := obj.ToNative()

			parts := strings.Split(key, ".")
			column := parts[len(parts)-1]

			if len(parts) > 1 {
				table := parts[len(parts)-2]

				columns, ok := env[table].(map[string]interface{})
				if !ok {
					columns = map[string]interface{}{}
					env[table] = columns
				}

				columns[column] = val
			}

			if _, taken := env[column]; !taken {
				env[column] = val
			}
		}
	}

	params := []interface{}{}
	named := map[string]interface{}{}

	if scope != nil {
		for _, p := range scope.Parameters {
			if p == nil {
				params = append(params, nil)

				continue
			}

			params = append(params, p.ToNative())
		}

		for name, p := range scope.NamedParameters {
			if p == nil {
				named[name] = nil

				continue
			}

			named[name] = p.ToNative()
		}
	}

	env["params"] = params
	env["named"] = named

	return env
}
