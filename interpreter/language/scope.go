package language

import (
	"sort"
	"strings"
	"time"

	"github.com/truora/minisql/types"
)

// ColumnType is the schema metadata of a column
type ColumnType struct {
	// Type is the lower-cased MySQL type name: int, bigint, decimal, varchar...
	Type     string
	Length   int
	Scale    int
	Unsigned bool
	Nullable bool
}

var integerTypes = map[string]bool{
	"tinyint":   true,
	"smallint":  true,
	"mediumint": true,
	"int":       true,
	"integer":   true,
	"bigint":    true,
}

// IsInteger reports whether the column holds integers
func (c ColumnType) IsInteger() bool {
	return integerTypes[strings.ToLower(c.Type)]
}

// IsDecimal reports whether the column holds fixed point numbers
func (c ColumnType) IsDecimal() bool {
	t := strings.ToLower(c.Type)

	return t == "decimal" || t == "numeric"
}

// SchemaProvider resolves column metadata
type SchemaProvider interface {
	ColumnSchema(database, table, column string) (ColumnType, bool)
}

// StatementExecutor runs the nested statements of subquery and EXISTS
// expressions against the outer row
type StatementExecutor interface {
	ExecuteSubquery(sub *SubqueryExpression, outer *Row, scope *Scope) (Dataset, error)
}

// Scope represents the execution context of a single statement. It must not
// be shared by evaluations running at the same time.
type Scope struct {
	Database        string
	Parameters      []Object
	NamedParameters map[string]Object
	Variables       map[string]Object

	// StrictMode turns division by zero into an error
	StrictMode bool
	// MissingColumnsAsNull resolves unknown columns to NULL instead of failing
	MissingColumnsAsNull bool

	// Columns holds column types by row key, it takes precedence over Schema
	Columns  map[string]ColumnType
	Schema   SchemaProvider
	Executor StatementExecutor

	Location *time.Location
	Clock    func() time.Time
}

// NewScope creates a new scope bound to the given parameters
func NewScope(params ...Object) *Scope {
	return &Scope{
		Parameters:      params,
		NamedParameters: map[string]Object{},
		Variables:       map[string]Object{},
		Columns:         map[string]ColumnType{},
		Location:        time.UTC,
	}
}

// Parameter returns the positional parameter at the 0-based index
func (s *Scope) Parameter(index int) (Object, error) {
	if index < 0 || index >= len(s.Parameters) {
		return nil, types.NewRuntimeError(types.CodeWrongArguments, "parameter %d out of range, %d bound", index+1, len(s.Parameters))
	}

	return nativeNilToNullObject(s.Parameters[index]), nil
}

// NamedParameter returns the parameter bound to :name
func (s *Scope) NamedParameter(name string) (Object, error) {
	obj, ok := s.NamedParameters[name]
	if !ok {
		return nil, types.NewRuntimeError(types.CodeWrongArguments, "parameter :%s is not bound", name)
	}

	return nativeNilToNullObject(obj), nil
}

// Variable returns the session variable, undefined variables are NULL
func (s *Scope) Variable(name string) Object {
	obj, ok := s.Variables[strings.ToLower(name)]
	if !ok {
		return NULL
	}

	return nativeNilToNullObject(obj)
}

// SetVariable assigns a session variable
func (s *Scope) SetVariable(name string, val Object) {
	if s.Variables == nil {
		s.Variables = map[string]Object{}
	}

	s.Variables[strings.ToLower(name)] = nativeNilToNullObject(val)
}

// Now returns the statement clock reading in the scope location
func (s *Scope) Now() time.Time {
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}

	return now.In(s.location())
}

// ColumnType returns the schema type of the referenced column
func (s *Scope) ColumnType(col *ColumnExpression) (ColumnType, bool) {
	if ct, ok := s.Columns[col.Key()]; ok {
		return ct, true
	}

	if ct, ok := s.Columns[col.Column]; ok {
		return ct, true
	}

	if s.Schema == nil {
		return ColumnType{}, false
	}

	database := col.Database
	if database == "" {
		database = s.Database
	}

	return s.Schema.ColumnSchema(database, col.Table, col.Column)
}

func (s *Scope) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}

	return s.Location
}

func (s *Scope) String() string {
	out := []string{}

	for n, v := range s.Variables {
		out = append(out, "@"+n+" => "+v.Inspect())
	}

	sort.Strings(out)

	return "{" + strings.Join(out, ",") + "}"
}
