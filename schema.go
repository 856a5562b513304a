package minisql

import (
	"strings"

	"github.com/truora/minisql/core"
	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

type constraintKind int

const (
	constraintPrimary constraintKind = iota + 1
	constraintUnique
	// plain KEY or INDEX, lookups are scans so it only validates the columns
	constraintIndex
)

type tableConstraint struct {
	kind    constraintKind
	name    string
	columns []string
}

func buildTable(name string, definitions []string) (*core.Table, error) {
	if len(definitions) == 0 {
		return nil, types.NewRuntimeError(types.CodeTableMustHaveColumns, "A table must have at least 1 column")
	}

	columns := []core.Column{}
	constraints := []tableConstraint{}

	for _, definition := range definitions {
		if c, ok := parseConstraint(definition); ok {
			constraints = append(constraints, c)

			continue
		}

		fields := strings.Fields(definition)
		if len(fields) == 0 {
			return nil, types.NewParseError(definition, 0, "empty column definition")
		}

		col, err := core.NewColumn(strings.Trim(fields[0], "`"), strings.TrimSpace(strings.TrimSpace(definition)[len(fields[0]):]))
		if err != nil {
			return nil, err
		}

		columns = append(columns, col)
	}

	if len(columns) == 0 {
		return nil, types.NewRuntimeError(types.CodeTableMustHaveColumns, "A table must have at least 1 column")
	}

	table, err := core.NewTable(name, columns...)
	if err != nil {
		return nil, err
	}

	for _, c := range constraints {
		if err := addConstraint(table, c); err != nil {
			return nil, err
		}
	}

	return table, nil
}

func addConstraint(table *core.Table, c tableConstraint) error {
	switch c.kind {
	case constraintPrimary:
		if len(table.KeySchema.Columns) > 0 {
			return types.NewRuntimeError(types.CodeMultiplePriKey, "Multiple primary key defined")
		}

		return table.SetPrimaryKey(c.columns...)
	case constraintUnique:
		name := c.name
		if name == "" {
			name = c.columns[0]
		}

		return table.AddUniqueIndex(name, c.columns...)
	}

	for _, column := range c.columns {
		if _, ok := table.ColumnSchema("", table.Name, column); !ok {
			return types.NewRuntimeError(types.CodeKeyColumnDoesNotExist, "Key column '%s' doesn't exist in table", column)
		}
	}

	return nil
}

// parseConstraint recognizes the table keys: PRIMARY KEY (cols),
// UNIQUE [KEY|INDEX] [name] (cols) and KEY|INDEX [name] (cols). Anything else
// is left to the column definition parser.
func parseConstraint(definition string) (tableConstraint, bool) {
	tokens, err := language.NewLexer(definition).Tokens()
	if err != nil || len(tokens) == 0 {
		return tableConstraint{}, false
	}

	c := tableConstraint{}
	pos := 1

	if strings.EqualFold(tokens[0].Literal, "CONSTRAINT") {
		tokens = tokens[1:]

		if len(tokens) > 0 && tokens[0].Type == language.IDENT && !isConstraintWord(tokens[0].Literal) {
			tokens = tokens[1:]
		}

		if len(tokens) == 0 {
			return tableConstraint{}, false
		}
	}

	switch strings.ToUpper(tokens[0].Literal) {
	case "PRIMARY":
		if len(tokens) < 2 || !strings.EqualFold(tokens[1].Literal, "KEY") {
			return tableConstraint{}, false
		}

		c.kind = constraintPrimary
		pos = 2
	case "UNIQUE":
		c.kind = constraintUnique

		if pos < len(tokens) && (strings.EqualFold(tokens[pos].Literal, "KEY") || strings.EqualFold(tokens[pos].Literal, "INDEX")) {
			pos++
		}
	case "KEY", "INDEX":
		c.kind = constraintIndex
	default:
		return tableConstraint{}, false
	}

	if c.kind != constraintPrimary && pos < len(tokens) && tokens[pos].Type == language.IDENT {
		c.name = tokens[pos].Literal
		pos++
	}

	columns, ok := parseKeyColumns(tokens, pos)
	if !ok {
		return tableConstraint{}, false
	}

	c.columns = columns

	return c, true
}

func isConstraintWord(word string) bool {
	switch strings.ToUpper(word) {
	case "PRIMARY", "UNIQUE", "KEY", "INDEX":
		return true
	}

	return false
}

// parseKeyColumns reads a parenthesized identifier list that must end the
// definition
func parseKeyColumns(tokens []language.Token, pos int) ([]string, bool) {
	if pos >= len(tokens) || tokens[pos].Type != language.LPAREN {
		return nil, false
	}

	columns := []string{}

	for pos++; pos < len(tokens); pos++ {
		if tokens[pos].Type != language.IDENT {
			return nil, false
		}

		columns = append(columns, tokens[pos].Literal)
		pos++

		if pos >= len(tokens) {
			return nil, false
		}

		switch tokens[pos].Type {
		case language.COMMA:
			continue
		case language.RPAREN:
			return columns, pos == len(tokens)-1
		}

		return nil, false
	}

	return nil, false
}
