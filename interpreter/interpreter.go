package interpreter

import (
	"errors"

	"github.com/truora/minisql/interpreter/language"
)

var (
	// ErrSyntaxError when a syntax error is detected
	ErrSyntaxError = errors.New("syntax error")
	// ErrUnsupportedFeature when an expression or value type is not yet supported by the interpreter
	ErrUnsupportedFeature = errors.New("unsupported expression or value type")
)

// ExpressionType type of the evaluated expression
type ExpressionType string

const (
	// ExpressionTypeFilter expression used to filter rows (WHERE)
	ExpressionTypeFilter ExpressionType = "filter"
	// ExpressionTypeJoin expression used to combine rows (ON)
	ExpressionTypeJoin ExpressionType = "join"
	// ExpressionTypeHaving expression used to filter groups (HAVING)
	ExpressionTypeHaving ExpressionType = "having"
)

// MatchInput parameters to use match function
type MatchInput struct {
	TableName      string
	Expression     string
	ExpressionType ExpressionType
	Row            language.RowOrGroup
	Scope          *language.Scope
}

// EvaluateInput parameters to use Evaluate function
type EvaluateInput struct {
	TableName  string
	Expression string
	Row        language.RowOrGroup
	Scope      *language.Scope
}

// Interpreter mysql expression interpreter interface
type Interpreter interface {
	Match(input MatchInput) (bool, error)
	Evaluate(input EvaluateInput) (language.Object, error)
}
