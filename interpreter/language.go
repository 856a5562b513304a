package interpreter

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/truora/minisql/interpreter/language"
)

// Language interpreter
type Language struct {
	Debug  bool
	Logger logrus.FieldLogger

	// parsed expressions by source text, the AST is immutable once built
	expressions sync.Map
}

// Parse returns the expression tree of the given source text
func (li *Language) Parse(expression string) (language.Expression, error) {
	if exp, ok := li.expressions.Load(expression); ok {
		return exp.(language.Expression), nil
	}

	exp, err := language.ParseExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSyntaxError, err)
	}

	li.expressions.Store(expression, exp)

	return exp, nil
}

// Match evalute the row with given expression, NULL does not match
func (li *Language) Match(input MatchInput) (bool, error) {
	exp, err := li.Parse(input.Expression)
	if err != nil {
		return false, err
	}

	matched, err := language.EvalBool(exp, input.Row, input.Scope)

	li.trace(input.TableName, exp, input.Row, input.Scope, fmt.Sprint(matched), err)

	return matched, err
}

// Evaluate returns the value of the expression for the given row
func (li *Language) Evaluate(input EvaluateInput) (language.Object, error) {
	exp, err := li.Parse(input.Expression)
	if err != nil {
		return nil, err
	}

	obj, err := language.Eval(exp, input.Row, input.Scope)

	result := ""
	if obj != nil {
		result = obj.Inspect()
	}

	li.trace(input.TableName, exp, input.Row, input.Scope, result, err)

	return obj, err
}

func (li *Language) trace(table string, exp language.Expression, row language.RowOrGroup, scope *language.Scope, result string, err error) {
	if !li.Debug {
		return
	}

	logger := li.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fields := logrus.Fields{
		"table":      table,
		"expression": exp.String(),
		"result":     result,
	}

	if row != nil && row.Representative() != nil {
		fields["row"] = row.Representative().String()
	}

	if scope != nil {
		fields["scope"] = scope.String()
	}

	entry := logger.WithFields(fields)
	if err != nil {
		entry.WithError(err).Debug("expression failed")

		return
	}

	entry.Debug("expression evaluated")
}
