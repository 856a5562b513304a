package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/truora/minisql/interpreter"
	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

// QueryInput struct to represent the WHERE and LIMIT of a statement
type QueryInput struct {
	Filter string
	Scope  *language.Scope
	Limit  int64
}

// Assignment is a column = expression item of a SET or ON DUPLICATE KEY
// UPDATE clause. Scope, when set, replaces the statement scope for this
// expression only.
type Assignment struct {
	Column     string
	Expression string
	Scope      *language.Scope
}

// Table struct to mock a MySQL table
type Table struct {
	Name                 string
	Columns              []Column
	KeySchema            keySchema
	Indexes              map[string]*index
	SortedKeys           []string
	Data                 map[string]*language.Row
	UseNativeInterpreter bool
	NativeInterpreter    *interpreter.Native
	LangInterpreter      *interpreter.Language

	ChangeLogEnabled bool
	ChangeLogView    ChangeView
	ChangeLog        []ChangeRecord

	autoIncrement int64
	// hidden row id of tables without a primary key
	rowID int64
}

// TableDescription summarizes the schema and contents of a table
type TableDescription struct {
	Name          string
	Columns       []string
	PrimaryKey    []string
	Indexes       map[string]int64
	RowCount      int64
	AutoIncrement int64
}

// NewTable creates a new Table. Columns flagged as primary key or unique get
// their keys created.
func NewTable(name string, columns ...Column) (*Table, error) {
	t := &Table{
		Name:              name,
		Columns:           []Column{},
		Indexes:           map[string]*index{},
		SortedKeys:        []string{},
		Data:              map[string]*language.Row{},
		NativeInterpreter: interpreter.NewNativeInterpreter(),
		LangInterpreter:   &interpreter.Language{},
	}

	primary := []string{}

	for _, col := range columns {
		if _, exists := t.column(col.Name); exists {
			return nil, types.NewRuntimeError(types.CodeDupFieldName, "Duplicate column name '%s'", col.Name)
		}

		t.Columns = append(t.Columns, col)

		if col.PrimaryKey {
			primary = append(primary, col.Name)
		}
	}

	if len(primary) > 0 {
		if err := t.SetPrimaryKey(primary...); err != nil {
			return nil, err
		}
	}

	for _, col := range t.Columns {
		if !col.Unique || col.PrimaryKey {
			continue
		}

		if err := t.AddUniqueIndex(col.Name, col.Name); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Table) column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}

	return Column{}, false
}

func (t *Table) columnNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))

	for _, name := range names {
		col, ok := t.column(name)
		if !ok {
			return nil, types.NewRuntimeError(types.CodeKeyColumnDoesNotExist, "Key column '%s' doesn't exist in table", name)
		}

		out = append(out, col.Name)
	}

	return out, nil
}

// SetPrimaryKey sets the primary key columns, only allowed on empty tables
func (t *Table) SetPrimaryKey(columns ...string) error {
	if len(t.Data) > 0 {
		return types.NewRuntimeError(types.CodeNotSupportedYet, "changing the primary key of a table with rows is not supported yet")
	}

	names, err := t.columnNames(columns)
	if err != nil {
		return err
	}

	for i, col := range t.Columns {
		for _, name := range names {
			if col.Name == name {
				t.Columns[i].PrimaryKey = true
				t.Columns[i].Type.Nullable = false
			}
		}
	}

	t.KeySchema = keySchema{Columns: names}

	return nil
}

// AddUniqueIndex creates a unique index over the columns, existing rows must
// not hold duplicates
func (t *Table) AddUniqueIndex(name string, columns ...string) error {
	if _, exists := t.Indexes[name]; exists || strings.EqualFold(name, PrimaryIndexName) {
		return types.NewRuntimeError(types.CodeDupKeyName, "Duplicate key name '%s'", name)
	}

	names, err := t.columnNames(columns)
	if err != nil {
		return err
	}

	i := newIndex(t, name, keySchema{Columns: names})

	for _, key := range t.SortedKeys {
		if err := i.putData(key, t.Data[key]); err != nil {
			return err
		}
	}

	t.Indexes[name] = i

	return nil
}

// ColumnNames returns the column names in definition order
func (t *Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, col := range t.Columns {
		names = append(names, col.Name)
	}

	return names
}

// QualifiedColumnNames returns the column names as table.column
func (t *Table) QualifiedColumnNames() []string {
	names := t.ColumnNames()
	for i, name := range names {
		names[i] = t.Name + "." + name
	}

	return names
}

// ColumnSchema returns the type of the column, the database is resolved by
// the catalog holding the table
func (t *Table) ColumnSchema(database, table, column string) (language.ColumnType, bool) {
	if table != "" && !strings.EqualFold(table, t.Name) {
		return language.ColumnType{}, false
	}

	col, ok := t.column(column)
	if !ok {
		return language.ColumnType{}, false
	}

	return col.Type, true
}

// ColumnTypes returns the column types keyed the way Scope.Columns expects
func (t *Table) ColumnTypes() map[string]language.ColumnType {
	out := make(map[string]language.ColumnType, len(t.Columns))
	for _, col := range t.Columns {
		out[t.Name+"."+col.Name] = col.Type
	}

	return out
}

func lessKey(a, b string) bool {
	x, errX := decimal.NewFromString(a)
	y, errY := decimal.NewFromString(b)

	if errX == nil && errY == nil {
		return x.LessThan(y)
	}

	return a < b
}

func (t *Table) searchKey(key string) int {
	return sort.Search(len(t.SortedKeys), func(i int) bool {
		return !lessKey(t.SortedKeys[i], key)
	})
}

func (t *Table) setRow(key string, row *language.Row) {
	_, exists := t.Data[key]
	t.Data[key] = row

	if exists {
		return
	}

	pos := t.searchKey(key)

	t.SortedKeys = append(t.SortedKeys, "")
	copy(t.SortedKeys[pos+1:], t.SortedKeys[pos:])
	t.SortedKeys[pos] = key
}

func (t *Table) removeRow(key string) {
	delete(t.Data, key)

	pos := t.searchKey(key)
	if pos == len(t.SortedKeys) || t.SortedKeys[pos] != key {
		return
	}

	copy(t.SortedKeys[pos:], t.SortedKeys[pos+1:])
	t.SortedKeys[len(t.SortedKeys)-1] = ""
	t.SortedKeys = t.SortedKeys[:len(t.SortedKeys)-1]
}

// Clear removes data and sorted keys from a table
func (t *Table) Clear() {
	t.SortedKeys = []string{}
	t.Data = map[string]*language.Row{}
	t.autoIncrement = 0
	t.rowID = 0

	for _, i := range t.Indexes {
		i.Clear()
	}
}

// qualify returns the row with table.column keys
func (t *Table) qualify(row *language.Row) *language.Row {
	out := language.NewRow()

	for _, col := range t.Columns {
		val, _ := row.Get(col.Name)
		out.Set(t.Name+"."+col.Name, val)
	}

	return out
}

// Dataset returns every row in primary key order with table.column keys
func (t *Table) Dataset() language.Dataset {
	ds := make(language.Dataset, 0, len(t.SortedKeys))
	for _, key := range t.SortedKeys {
		ds = append(ds, t.qualify(t.Data[key]))
	}

	return ds
}

func (t *Table) primaryKey(row *language.Row) (string, error) {
	if len(t.KeySchema.Columns) == 0 {
		t.rowID++

		return fmt.Sprint(t.rowID), nil
	}

	key, err := t.KeySchema.GetKey(row)
	if err != nil {
		return "", err
	}

	return normalizeKey(key), nil
}

func (t *Table) duplicatePrimary(row *language.Row) error {
	key, _ := t.KeySchema.GetKey(row)

	return types.NewRuntimeError(types.CodeDupEntry, "Duplicate entry '%s' for key '%s.%s'", key, t.Name, PrimaryIndexName)
}

func implicitDefault(col Column) language.Object {
	switch {
	case col.Type.IsInteger(), col.Type.IsDecimal(), isFloatType(col.Type.Type):
		return &language.Integer{Value: 0}
	}

	return &language.String{Value: ""}
}

// buildRow fills the row of an INSERT with defaults, auto increment values and
// the column coercions
func (t *Table) buildRow(values map[string]interface{}, scope *language.Scope) (*language.Row, error) {
	provided := map[string]language.Object{}

	for name, val := range values {
		col, ok := t.column(name)
		if !ok {
			return nil, unknownColumn(name, "field list")
		}

		provided[col.Name] = language.NativeToObject(val)
	}

	row := language.NewRow()

	for _, col := range t.Columns {
		val, err := t.columnValue(col, provided, scope)
		if err != nil {
			return nil, err
		}

		row.Set(col.Name, val)
	}

	return row, nil
}

func (t *Table) columnValue(col Column, provided map[string]language.Object, scope *language.Scope) (language.Object, error) {
	val, ok := provided[col.Name]

	switch {
	case col.AutoIncrement && (!ok || val.Type() == language.ObjectTypeNull || val.Inspect() == "0"):
		t.autoIncrement++

		return &language.Integer{Value: t.autoIncrement}, nil
	case ok:
	case col.Default != nil:
		def, err := language.Eval(col.Default, nil, scope)
		if err != nil {
			return nil, err
		}

		val = def
	case col.Type.Nullable:
		return language.NULL, nil
	case scope != nil && scope.StrictMode:
		return nil, types.NewRuntimeError(types.CodeNoDefaultForField, "Field '%s' doesn't have a default value", col.Name)
	default:
		val = implicitDefault(col)
	}

	coerced, err := coerceValue(col, val)
	if err != nil {
		return nil, err
	}

	if coerced.Type() == language.ObjectTypeNull && !col.Type.Nullable {
		return nil, types.NewRuntimeError(types.CodeBadNull, "Column '%s' cannot be null", col.Name)
	}

	if col.AutoIncrement {
		if n, ok := coerced.(*language.Integer); ok && n.Value > t.autoIncrement {
			t.autoIncrement = n.Value
		}
	}

	return coerced, nil
}

// conflictKey returns the key of the stored row the new row collides with and
// the duplicate entry error for it
func (t *Table) conflictKey(key string, row *language.Row) (string, error) {
	if _, exists := t.Data[key]; exists {
		return key, t.duplicatePrimary(row)
	}

	for _, name := range t.indexNames() {
		i := t.Indexes[name]

		if owner, indexKey, taken := i.conflict(key, row); taken {
			return owner, i.duplicateError(indexKey)
		}
	}

	return "", nil
}

func (t *Table) indexNames() []string {
	names := make([]string, 0, len(t.Indexes))
	for name := range t.Indexes {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (t *Table) store(key string, row *language.Row) error {
	t.setRow(key, row)

	for _, name := range t.indexNames() {
		if err := t.Indexes[name].putData(key, row); err != nil {
			return err
		}
	}

	return nil
}

func (t *Table) keyError(row *language.Row, err error) error {
	for _, column := range t.KeySchema.Columns {
		if v, ok := row.Get(column); !ok || v.Type() == language.ObjectTypeNull {
			return types.NewRuntimeError(types.CodeBadNull, "Column '%s' cannot be null", column)
		}
	}

	return err
}

// Insert adds a row, the values are keyed by column name
func (t *Table) Insert(values map[string]interface{}, scope *language.Scope) (*language.Row, error) {
	row, err := t.buildRow(values, scope)
	if err != nil {
		return nil, err
	}

	key, err := t.primaryKey(row)
	if err != nil {
		return nil, t.keyError(row, err)
	}

	if _, err := t.conflictKey(key, row); err != nil {
		return nil, err
	}

	if err := t.store(key, row); err != nil {
		return nil, err
	}

	t.record(ChangeInsert, nil, row)

	return row.Copy(), nil
}

// InsertOnDuplicate inserts the row or, when it collides with a primary or
// unique key, applies the updates to the stored row. VALUES(col) reads the
// value the insert proposed. It returns the affected rows count MySQL reports:
// 1 for an insert, 2 for an update and 0 when the update changed nothing.
func (t *Table) InsertOnDuplicate(values map[string]interface{}, updates []Assignment, scope *language.Scope) (int64, error) {
	row, err := t.buildRow(values, scope)
	if err != nil {
		return 0, err
	}

	key, err := t.primaryKey(row)
	if err != nil {
		return 0, t.keyError(row, err)
	}

	existing, conflict := t.conflictKey(key, row)
	if conflict == nil {
		if err := t.store(key, row); err != nil {
			return 0, err
		}

		t.record(ChangeInsert, nil, row)

		return 1, nil
	}

	proposed := language.NewRow()
	for _, col := range row.Columns() {
		val, _ := row.Get(col)
		proposed.Set(language.ValuesNamespace+"."+col, val)
	}

	changed, err := t.updateRow(existing, updates, proposed, scope)
	if err != nil || !changed {
		return 0, err
	}

	return 2, nil
}

func (t *Table) interpreterMatch(input interpreter.MatchInput) (bool, error) {
	if t.UseNativeInterpreter {
		matched, err := t.NativeInterpreter.Match(input)
		if err == nil {
			return matched, nil
		}
	}

	return t.LangInterpreter.Match(input)
}

func (t *Table) interpreterEvaluate(input interpreter.EvaluateInput) (language.Object, error) {
	if t.UseNativeInterpreter {
		obj, err := t.NativeInterpreter.Evaluate(input)
		if err == nil {
			return obj, nil
		}
	}

	return t.LangInterpreter.Evaluate(input)
}

func (t *Table) matches(input QueryInput, row *language.Row) (bool, error) {
	if input.Filter == "" {
		return true, nil
	}

	return t.interpreterMatch(interpreter.MatchInput{
		TableName:      t.Name,
		Expression:     input.Filter,
		ExpressionType: interpreter.ExpressionTypeFilter,
		Row:            t.qualify(row),
		Scope:          input.Scope,
	})
}

// matchedKeys returns the keys of the rows passing the filter, in primary key
// order and up to the limit
func (t *Table) matchedKeys(input QueryInput) ([]string, error) {
	keys := []string{}

	for _, key := range t.SortedKeys {
		matched, err := t.matches(input, t.Data[key])
		if err != nil {
			return nil, err
		}

		if !matched {
			continue
		}

		keys = append(keys, key)

		if input.Limit != 0 && int64(len(keys)) == input.Limit {
			break
		}
	}

	return keys, nil
}

// Select returns the rows passing the filter with table.column keys
func (t *Table) Select(input QueryInput) (language.Dataset, error) {
	keys, err := t.matchedKeys(input)
	if err != nil {
		return nil, err
	}

	ds := make(language.Dataset, 0, len(keys))
	for _, key := range keys {
		ds = append(ds, t.qualify(t.Data[key]))
	}

	return ds, nil
}

// Update applies the assignments, left to right, to the rows passing the
// filter. It returns the number of rows that changed.
func (t *Table) Update(input QueryInput, assignments []Assignment) (int64, error) {
	keys, err := t.matchedKeys(input)
	if err != nil {
		return 0, err
	}

	var count int64

	for _, key := range keys {
		changed, err := t.updateRow(key, assignments, nil, input.Scope)
		if err != nil {
			return count, err
		}

		if changed {
			count++
		}
	}

	return count, nil
}

func (t *Table) updateRow(key string, assignments []Assignment, extra *language.Row, scope *language.Scope) (bool, error) {
	old := t.Data[key]
	row := old.Copy()

	for _, a := range assignments {
		col, ok := t.column(a.Column)
		if !ok {
			return false, unknownColumn(a.Column, "field list")
		}

		env := t.qualify(row)
		if extra != nil {
			env = env.Merge(extra)
		}

		assignmentScope := scope
		if a.Scope != nil {
			assignmentScope = a.Scope
		}

		val, err := t.interpreterEvaluate(interpreter.EvaluateInput{
			TableName:  t.Name,
			Expression: a.Expression,
			Row:        env,
			Scope:      assignmentScope,
		})
		if err != nil {
			return false, err
		}

		coerced, err := coerceValue(col, val)
		if err != nil {
			return false, err
		}

		if coerced.Type() == language.ObjectTypeNull && !col.Type.Nullable {
			return false, types.NewRuntimeError(types.CodeBadNull, "Column '%s' cannot be null", col.Name)
		}

		row.Set(col.Name, coerced)
	}

	if row.String() == old.String() {
		return false, nil
	}

	newKey := key

	if len(t.KeySchema.Columns) > 0 {
		k, err := t.KeySchema.GetKey(row)
		if err != nil {
			return false, t.keyError(row, err)
		}

		newKey = normalizeKey(k)
	}

	if _, exists := t.Data[newKey]; exists && newKey != key {
		return false, t.duplicatePrimary(row)
	}

	for _, name := range t.indexNames() {
		if _, indexKey, taken := t.Indexes[name].conflict(key, row); taken {
			return false, t.Indexes[name].duplicateError(indexKey)
		}
	}

	if newKey != key {
		t.removeRow(key)
	}

	t.setRow(newKey, row)

	for _, name := range t.indexNames() {
		if err := t.Indexes[name].updateData(key, newKey, row); err != nil {
			return false, err
		}
	}

	t.record(ChangeUpdate, old, row)

	return true, nil
}

// Delete removes the rows passing the filter and returns how many were removed
func (t *Table) Delete(input QueryInput) (int64, error) {
	keys, err := t.matchedKeys(input)
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		row := t.Data[key]

		t.removeRow(key)

		for _, i := range t.Indexes {
			i.delete(key)
		}

		t.record(ChangeDelete, row, nil)
	}

	return int64(len(keys)), nil
}

// Description returns the description of a table
func (t *Table) Description() TableDescription {
	desc := TableDescription{
		Name:          t.Name,
		Columns:       t.ColumnNames(),
		PrimaryKey:    append([]string{}, t.KeySchema.Columns...),
		Indexes:       map[string]int64{},
		RowCount:      int64(len(t.SortedKeys)),
		AutoIncrement: t.autoIncrement + 1,
	}

	for name, i := range t.Indexes {
		desc.Indexes[name] = i.count()
	}

	return desc
}
