package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

var (
	// revive:disable-next-line
	errMissingField = errors.New("The key column is missing")

	// ErrUnknownColumn when a statement names a column the table does not have
	ErrUnknownColumn = errors.New("unknown column")
)

const (
	// PrimaryIndexName is the name MySQL reports for the primary key
	PrimaryIndexName = "PRIMARY"
)

// Column is the definition of a table column
type Column struct {
	Name          string
	Type          language.ColumnType
	Default       language.Expression
	AutoIncrement bool
	PrimaryKey    bool
	Unique        bool
}

// NewColumn builds a column from a MySQL column definition such as
// "decimal(10,2) unsigned not null default 0"
func NewColumn(name, definition string) (Column, error) {
	col := Column{Name: name, Type: language.ColumnType{Nullable: true}}

	tokens, err := language.NewLexer(definition).Tokens()
	if err != nil {
		return col, err
	}

	if len(tokens) == 0 {
		return col, types.NewParseError(definition, 0, "missing type for column %s", name)
	}

	col.Type.Type = strings.ToLower(tokens[0].Literal)

	pos := 1

	if pos < len(tokens) && tokens[pos].Type == language.LPAREN {
		pos, err = parseTypeSize(tokens, pos, &col.Type)
		if err != nil {
			return col, err
		}
	}

	for pos < len(tokens) {
		tok := tokens[pos]
		word := strings.ToUpper(tok.Literal)

		switch {
		case word == "UNSIGNED":
			col.Type.Unsigned = true
		case word == language.NOT && pos+1 < len(tokens) && tokens[pos+1].Type == language.NULLCONST:
			col.Type.Nullable = false
			pos++
		case tok.Type == language.NULLCONST:
			col.Type.Nullable = true
		case word == "AUTO_INCREMENT":
			col.AutoIncrement = true
			col.Type.Nullable = false
		case word == "PRIMARY" && pos+1 < len(tokens) && strings.ToUpper(tokens[pos+1].Literal) == "KEY":
			col.PrimaryKey = true
			col.Type.Nullable = false
			pos++
		case word == "UNIQUE":
			col.Unique = true
		case word == "DEFAULT":
			pos, err = parseDefault(definition, tokens, pos+1, &col)
			if err != nil {
				return col, err
			}

			continue
		default:
			return col, types.NewParseError(tok.Raw, tok.Position, "unexpected %s in definition of column %s", tok.Raw, name)
		}

		pos++
	}

	return col, nil
}

func parseTypeSize(tokens []language.Token, pos int, ct *language.ColumnType) (int, error) {
	sizes := []int{}

	for pos++; pos < len(tokens) && tokens[pos].Type != language.RPAREN; pos++ {
		tok := tokens[pos]

		switch tok.Type {
		case language.COMMA:
		case language.NUMBER:
			n, err := strconv.Atoi(tok.Literal)
			if err != nil {
				return pos, types.NewParseError(tok.Raw, tok.Position, "invalid column size")
			}

			sizes = append(sizes, n)
		default:
			return pos, types.NewParseError(tok.Raw, tok.Position, "invalid column size")
		}
	}

	if pos == len(tokens) || len(sizes) == 0 || len(sizes) > 2 {
		return pos, types.NewParseError("(", tokens[0].Position, "invalid column size")
	}

	ct.Length = sizes[0]
	if len(sizes) == 2 {
		ct.Scale = sizes[1]
	}

	return pos + 1, nil
}

// parseDefault reads a literal, a niladic function name or a parenthesized
// expression, the only forms MySQL accepts after DEFAULT
func parseDefault(definition string, tokens []language.Token, pos int, col *Column) (int, error) {
	if pos >= len(tokens) {
		return pos, types.NewParseError("end of input", len(definition), "DEFAULT expects a value")
	}

	start := pos
	end := pos + 1

	switch {
	case tokens[pos].Type == language.LPAREN:
		depth := 0

		for end = pos; end < len(tokens); end++ {
			if tokens[end].Type == language.LPAREN {
				depth++
			}

			if tokens[end].Type == language.RPAREN {
				depth--
			}

			if depth == 0 {
				break
			}
		}

		end++
	case tokens[pos].Literal == "-" && pos+1 < len(tokens):
		end = pos + 2
	}

	if end > len(tokens) {
		return pos, types.NewParseError(tokens[pos].Raw, tokens[pos].Position, "unbalanced DEFAULT expression")
	}

	last := tokens[end-1]
	source := definition[tokens[start].Position : last.Position+len(last.Raw)]

	exp, err := language.ParseExpression(source)
	if err != nil {
		return pos, err
	}

	col.Default = exp

	return end, nil
}

// coerceValue converts the value to the representation MySQL returns for the
// column type: integers for integer columns, fixed point strings for
// DECIMAL(p,s), floats for FLOAT/DOUBLE and strings for everything else
func coerceValue(col Column, obj language.Object) (language.Object, error) {
	if obj == nil || obj.Type() == language.ObjectTypeNull {
		return language.NULL, nil
	}

	raw := strings.TrimSpace(obj.Inspect())

	switch {
	case col.Type.IsInteger():
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, incorrectValue("integer", raw, col.Name)
		}

		return &language.Integer{Value: d.Round(0).IntPart()}, nil
	case col.Type.IsDecimal():
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, incorrectValue("decimal", raw, col.Name)
		}

		return &language.String{Value: d.StringFixed(int32(col.Type.Scale))}, nil
	case isFloatType(col.Type.Type):
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, incorrectValue("double", raw, col.Name)
		}

		return &language.Float{Value: f}, nil
	}

	return &language.String{Value: cast.ToString(obj.ToNative())}, nil
}

func isFloatType(name string) bool {
	switch strings.ToLower(name) {
	case "float", "double", "real":
		return true
	}

	return false
}

func incorrectValue(kind, raw, column string) error {
	return types.NewRuntimeError(types.CodeTruncatedWrongValueForField, "Incorrect %s value: '%s' for column '%s' at row 1", kind, raw, column)
}

func unknownColumn(column, table string) error {
	return fmt.Errorf("%w: %w", ErrUnknownColumn, types.NewRuntimeError(types.CodeBadField, "Unknown column '%s' in '%s'", column, table))
}
