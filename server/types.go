package server

import "github.com/truora/minisql/core"

// Statements read their values from JSON, numbers are decoded with
// json.Number so DECIMAL columns keep their exact digits.

// Assignment is a SET column = expression pair.
type Assignment struct {
	Column     string `json:"column"`
	Expression string `json:"expression"`
}

// CreateTableInput holds the column and constraint definitions of a table.
type CreateTableInput struct {
	Table       string   `json:"table"`
	Definitions []string `json:"definitions"`
}

// DropTableInput names the table to drop.
type DropTableInput struct {
	Table string `json:"table"`
}

// DescribeTableInput names the table to describe.
type DescribeTableInput struct {
	Table string `json:"table"`
}

// DescribeTableOutput is the schema and size of a table.
type DescribeTableOutput struct {
	Table core.TableDescription `json:"table"`
}

// InsertInput is a single row insert.
type InsertInput struct {
	Table  string                 `json:"table"`
	Values map[string]interface{} `json:"values"`
}

// InsertOnDuplicateInput is an INSERT ... ON DUPLICATE KEY UPDATE.
type InsertOnDuplicateInput struct {
	Table   string                 `json:"table"`
	Values  map[string]interface{} `json:"values"`
	Updates []Assignment           `json:"updates"`
	Params  []interface{}          `json:"params,omitempty"`
}

// SelectInput filters the rows of a table.
type SelectInput struct {
	Table  string        `json:"table"`
	Filter string        `json:"filter,omitempty"`
	Limit  int64         `json:"limit,omitempty"`
	Params []interface{} `json:"params,omitempty"`
}

// SelectOutput lists the matched rows keyed by table.column.
type SelectOutput struct {
	Rows  []map[string]interface{} `json:"rows"`
	Count int                      `json:"count"`
}

// UpdateInput sets columns on the rows matching the filter.
type UpdateInput struct {
	Table   string        `json:"table"`
	Filter  string        `json:"filter,omitempty"`
	Updates []Assignment  `json:"updates"`
	Params  []interface{} `json:"params,omitempty"`
}

// DeleteInput removes the rows matching the filter.
type DeleteInput struct {
	Table  string        `json:"table"`
	Filter string        `json:"filter,omitempty"`
	Params []interface{} `json:"params,omitempty"`
}

// WriteOutput mirrors database/sql.Result.
type WriteOutput struct {
	RowsAffected int64 `json:"rowsAffected"`
	LastInsertID int64 `json:"lastInsertId"`
}

// EvaluateInput evaluates an expression against an optional row.
type EvaluateInput struct {
	Expression string                 `json:"expression"`
	Row        map[string]interface{} `json:"row,omitempty"`
	Params     []interface{}          `json:"params,omitempty"`
}

// EvaluateOutput holds the value, null for SQL NULL.
type EvaluateOutput struct {
	Value interface{} `json:"value"`
}

// JoinInput joins every row of Table with RightTable.
type JoinInput struct {
	Table      string        `json:"table"`
	Type       string        `json:"type"`
	RightTable string        `json:"rightTable"`
	On         string        `json:"on,omitempty"`
	Params     []interface{} `json:"params,omitempty"`
}
