package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/truora/minisql/interpreter"
	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

var tableName = "users"

func mustColumn(t *testing.T, name, definition string) Column {
	t.Helper()

	col, err := NewColumn(name, definition)
	require.NoError(t, err)

	return col
}

func usersTable(t *testing.T) *Table {
	t.Helper()

	table, err := NewTable(tableName,
		mustColumn(t, "id", "int not null auto_increment primary key"),
		mustColumn(t, "email", "varchar(100) unique"),
		mustColumn(t, "name", "varchar(50) not null"),
		mustColumn(t, "balance", "decimal(10,2) default 0"),
		mustColumn(t, "age", "int"),
	)
	require.NoError(t, err)

	return table
}

func natives(ds language.Dataset) []map[string]interface{} {
	out := []map[string]interface{}{}
	for _, row := range ds {
		out = append(out, row.ToNative())
	}

	return out
}

func TestCreateTable(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)
	c.Equal(tableName, table.Name)
	c.Equal([]string{"id", "email", "name", "balance", "age"}, table.ColumnNames())
	c.Equal([]string{"users.id", "users.email", "users.name", "users.balance", "users.age"}, table.QualifiedColumnNames())
	c.Equal([]string{"id"}, table.KeySchema.Columns)
	c.Contains(table.Indexes, "email")

	ct, ok := table.ColumnSchema("shop", "USERS", "Balance")
	c.True(ok)
	c.Equal(language.ColumnType{Type: "decimal", Length: 10, Scale: 2, Nullable: true}, ct)

	_, ok = table.ColumnSchema("shop", "orders", "balance")
	c.False(ok)

	_, ok = table.ColumnSchema("", "", "missing")
	c.False(ok)

	c.Equal(language.ColumnType{Type: "int"}, table.ColumnTypes()["users.id"])

	_, err := NewTable("dup", mustColumn(t, "a", "int"), mustColumn(t, "A", "int"))
	c.Equal(types.CodeDupFieldName, mysqlCode(err))

	err = table.AddUniqueIndex("email", "name")
	c.Equal(types.CodeDupKeyName, mysqlCode(err))

	err = table.AddUniqueIndex("by_level", "level")
	c.Equal(types.CodeKeyColumnDoesNotExist, mysqlCode(err))
}

func TestInsert(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)

	row, err := table.Insert(map[string]interface{}{"email": "ash@kanto.com", "name": "Ash"}, nil)
	c.NoError(err)
	c.Equal(map[string]interface{}{
		"id":      int64(1),
		"email":   "ash@kanto.com",
		"name":    "Ash",
		"balance": "0.00",
		"age":     nil,
	}, row.ToNative())

	_, err = table.Insert(map[string]interface{}{"id": 10, "name": "Misty", "age": "17"}, nil)
	c.NoError(err)

	row, err = table.Insert(map[string]interface{}{"NAME": "Brock", "balance": 12.5}, nil)
	c.NoError(err)
	c.Equal(map[string]interface{}{
		"id":      int64(11),
		"email":   nil,
		"name":    "Brock",
		"balance": "12.50",
		"age":     nil,
	}, row.ToNative())

	c.Equal([]string{"1", "10", "11"}, table.SortedKeys)

	desc := table.Description()
	c.Equal(int64(3), desc.RowCount)
	c.Equal(int64(12), desc.AutoIncrement)
	c.Equal(map[string]int64{"email": 1}, desc.Indexes)
}

func TestInsertErrors(t *testing.T) {
	table := usersTable(t)

	_, err := table.Insert(map[string]interface{}{"id": 1, "email": "ash@kanto.com", "name": "Ash"}, nil)
	require.NoError(t, err)

	strict := language.NewScope()
	strict.StrictMode = true

	testCases := []struct {
		name    string
		values  map[string]interface{}
		scope   *language.Scope
		code    uint16
		message string
	}{
		{
			name:    "duplicate primary key",
			values:  map[string]interface{}{"id": 1, "name": "Gary"},
			code:    types.CodeDupEntry,
			message: "Duplicate entry '1' for key 'users.PRIMARY'",
		},
		{
			name:    "duplicate unique key ignores case",
			values:  map[string]interface{}{"email": "ASH@kanto.com", "name": "Gary"},
			code:    types.CodeDupEntry,
			message: "Duplicate entry 'ASH@kanto.com' for key 'users.email'",
		},
		{
			name:    "null into not null column",
			values:  map[string]interface{}{"name": nil},
			code:    types.CodeBadNull,
			message: "Column 'name' cannot be null",
		},
		{
			name:    "missing value in strict mode",
			values:  map[string]interface{}{"email": "gary@kanto.com"},
			scope:   strict,
			code:    types.CodeNoDefaultForField,
			message: "Field 'name' doesn't have a default value",
		},
		{
			name:    "wrong integer",
			values:  map[string]interface{}{"name": "Gary", "age": "old"},
			code:    types.CodeTruncatedWrongValueForField,
			message: "Incorrect integer value: 'old' for column 'age'",
		},
		{
			name:    "unknown column",
			values:  map[string]interface{}{"name": "Gary", "level": 3},
			code:    types.CodeBadField,
			message: "Unknown column 'level' in 'field list'",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := table.Insert(tc.values, tc.scope)
			require.Error(t, err)
			require.Equal(t, tc.code, mysqlCode(err))
			require.Contains(t, err.Error(), tc.message)
		})
	}

	require.Len(t, table.Data, 1)

	row, err := table.Insert(map[string]interface{}{"email": "gary@kanto.com"}, nil)
	require.NoError(t, err)

	name, _ := row.Get("name")
	require.Equal(t, &language.String{Value: ""}, name, "non strict mode uses the implicit default")
}

func TestSelect(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)

	for _, values := range []map[string]interface{}{
		{"id": 2, "name": "Misty", "age": 17},
		{"id": 10, "name": "Brock", "age": 20},
		{"id": 1, "name": "Ash", "age": 10},
	} {
		_, err := table.Insert(values, nil)
		c.NoError(err)
	}

	ds, err := table.Select(QueryInput{})
	c.NoError(err)
	c.Len(ds, 3)
	c.Equal([]string{"users.id", "users.email", "users.name", "users.balance", "users.age"}, ds[0].Columns())

	ids := []interface{}{}
	for _, row := range natives(ds) {
		ids = append(ids, row["users.id"])
	}

	c.Equal([]interface{}{int64(1), int64(2), int64(10)}, ids, "rows come in primary key order")

	ds, err = table.Select(QueryInput{Filter: "age > ? AND users.name <> 'brock'", Scope: language.NewScope(&language.Integer{Value: 12})})
	c.NoError(err)
	c.Len(ds, 1)
	c.Equal("Misty", natives(ds)[0]["users.name"])

	ds, err = table.Select(QueryInput{Filter: "age >= 10", Limit: 2})
	c.NoError(err)
	c.Len(ds, 2)

	_, err = table.Select(QueryInput{Filter: "level = 1"})
	c.Equal(types.CodeBadField, mysqlCode(err))

	_, err = table.Select(QueryInput{Filter: "age >"})
	c.True(errors.Is(err, interpreter.ErrSyntaxError))

	c.Equal(natives(table.Dataset()), natives(mustSelect(t, table, "")))
}

func mustSelect(t *testing.T, table *Table, filter string) language.Dataset {
	t.Helper()

	ds, err := table.Select(QueryInput{Filter: filter})
	require.NoError(t, err)

	return ds
}

func TestSelectNativeInterpreter(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)

	_, err := table.Insert(map[string]interface{}{"name": "Ash", "age": 10}, nil)
	c.NoError(err)

	_, err = table.Insert(map[string]interface{}{"name": "Brock", "age": 20}, nil)
	c.NoError(err)

	table.UseNativeInterpreter = true

	err = table.NativeInterpreter.AddMatcher(tableName, interpreter.ExpressionTypeFilter, "age > 15", "true")
	c.NoError(err)

	c.Len(mustSelect(t, table, "age > 15"), 2, "the registered program decides the match")
	c.Len(mustSelect(t, table, "age > 5 + 10"), 1, "unregistered expressions fall back to the language interpreter")

	err = table.NativeInterpreter.AddEvaluator(tableName, "age * 2", "age * 3")
	c.NoError(err)

	updated, err := table.Update(QueryInput{Filter: "name = 'ash'"}, []Assignment{{Column: "age", Expression: "age * 2"}})
	c.NoError(err)
	c.Equal(int64(1), updated)
	c.Equal(int64(30), natives(mustSelect(t, table, "users.id = 1"))[0]["users.age"])
}

func TestUpdate(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)

	_, err := table.Insert(map[string]interface{}{"email": "ash@kanto.com", "name": "Ash"}, nil)
	c.NoError(err)

	_, err = table.Insert(map[string]interface{}{"email": "misty@kanto.com", "name": "Misty", "age": 17}, nil)
	c.NoError(err)

	updated, err := table.Update(QueryInput{Filter: "id = 1"}, []Assignment{
		{Column: "balance", Expression: "balance + 10.5"},
		{Column: "age", Expression: "age + 1"},
	})
	c.NoError(err)
	c.Equal(int64(1), updated)

	row := natives(mustSelect(t, table, "id = 1"))[0]
	c.Equal("10.50", row["users.balance"])
	c.Nil(row["users.age"])

	updated, err = table.Update(QueryInput{}, []Assignment{{Column: "name", Expression: "name"}})
	c.NoError(err)
	c.Equal(int64(0), updated, "rows keeping their values are not counted")

	updated, err = table.Update(QueryInput{Filter: "name = 'misty'"}, []Assignment{
		{Column: "age", Expression: "age + 1"},
		{Column: "balance", Expression: "age * 2"},
	})
	c.NoError(err)
	c.Equal(int64(1), updated)
	c.Equal("36.00", natives(mustSelect(t, table, "id = 2"))[0]["users.balance"], "assignments see the values set before them")

	_, err = table.Update(QueryInput{Filter: "id = 2"}, []Assignment{{Column: "email", Expression: "'ASH@KANTO.COM'"}})
	c.Equal(types.CodeDupEntry, mysqlCode(err))

	_, err = table.Update(QueryInput{Filter: "id = 2"}, []Assignment{{Column: "id", Expression: "1"}})
	c.Equal(types.CodeDupEntry, mysqlCode(err))

	_, err = table.Update(QueryInput{Filter: "id = 2"}, []Assignment{{Column: "name", Expression: "NULL"}})
	c.Equal(types.CodeBadNull, mysqlCode(err))

	_, err = table.Update(QueryInput{Filter: "id = 2"}, []Assignment{{Column: "level", Expression: "1"}})
	c.True(errors.Is(err, ErrUnknownColumn))

	updated, err = table.Update(QueryInput{Filter: "id = 2"}, []Assignment{{Column: "id", Expression: "100"}})
	c.NoError(err)
	c.Equal(int64(1), updated)
	c.Equal([]string{"1", "100"}, table.SortedKeys)
	c.Len(mustSelect(t, table, "email = 'misty@kanto.com' AND id = 100"), 1)

	_, err = table.Insert(map[string]interface{}{"email": "misty@kanto.com", "name": "Misty"}, nil)
	c.Equal(types.CodeDupEntry, mysqlCode(err), "the unique index follows the moved row")
}

func TestDelete(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)

	for _, values := range []map[string]interface{}{
		{"email": "ash@kanto.com", "name": "Ash"},
		{"email": "misty@kanto.com", "name": "Misty", "age": 17},
		{"email": "brock@kanto.com", "name": "Brock"},
	} {
		_, err := table.Insert(values, nil)
		c.NoError(err)
	}

	deleted, err := table.Delete(QueryInput{Filter: "age IS NULL"})
	c.NoError(err)
	c.Equal(int64(2), deleted)
	c.Equal([]string{"2"}, table.SortedKeys)
	c.Equal(int64(1), table.Description().Indexes["email"])

	_, err = table.Insert(map[string]interface{}{"email": "ash@kanto.com", "name": "Ash"}, nil)
	c.NoError(err, "deleted rows release their unique keys")

	deleted, err = table.Delete(QueryInput{Filter: "id = 99"})
	c.NoError(err)
	c.Equal(int64(0), deleted)

	table.Clear()
	c.Empty(table.Data)
	c.Empty(table.SortedKeys)
	c.Equal(int64(1), table.Description().AutoIncrement)
	c.Equal(int64(0), table.Description().Indexes["email"])
}

func TestInsertOnDuplicate(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)

	affected, err := table.InsertOnDuplicate(map[string]interface{}{"id": 1, "email": "ash@kanto.com", "name": "Ash", "balance": 5}, []Assignment{
		{Column: "balance", Expression: "balance + VALUES(balance)"},
	}, nil)
	c.NoError(err)
	c.Equal(int64(1), affected)

	affected, err = table.InsertOnDuplicate(map[string]interface{}{"id": 1, "name": "Ash", "balance": 5}, []Assignment{
		{Column: "balance", Expression: "balance + VALUES(balance)"},
	}, nil)
	c.NoError(err)
	c.Equal(int64(2), affected)
	c.Equal("10.00", natives(table.Dataset())[0]["users.balance"])

	affected, err = table.InsertOnDuplicate(map[string]interface{}{"id": 1, "name": "Ash"}, []Assignment{
		{Column: "name", Expression: "VALUES(name)"},
	}, nil)
	c.NoError(err)
	c.Equal(int64(0), affected, "an update that changes nothing affects no rows")

	affected, err = table.InsertOnDuplicate(map[string]interface{}{"email": "ASH@kanto.com", "name": "Ash Ketchum"}, []Assignment{
		{Column: "name", Expression: "VALUES(name)"},
	}, nil)
	c.NoError(err)
	c.Equal(int64(2), affected, "unique keys also trigger the update")

	c.Len(table.Data, 1)
	c.Equal("Ash Ketchum", natives(table.Dataset())[0]["users.name"])

	_, err = table.InsertOnDuplicate(map[string]interface{}{"id": 1, "name": "Ash"}, []Assignment{
		{Column: "name", Expression: "NULL"},
	}, nil)
	c.Equal(types.CodeBadNull, mysqlCode(err))
}

func TestTableWithoutPrimaryKey(t *testing.T) {
	c := require.New(t)

	table, err := NewTable("logs", mustColumn(t, "message", "text"))
	c.NoError(err)

	for i := 0; i < 2; i++ {
		_, err = table.Insert(map[string]interface{}{"message": "hello"}, nil)
		c.NoError(err)
	}

	c.Len(table.Dataset(), 2)

	err = table.SetPrimaryKey("message")
	c.Equal(types.CodeNotSupportedYet, mysqlCode(err))

	table.Clear()

	err = table.SetPrimaryKey("message")
	c.NoError(err)
	c.Equal([]string{"message"}, table.Description().PrimaryKey)
}

func TestAddUniqueIndexWithData(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)

	for _, name := range []string{"Ash", "ash"} {
		_, err := table.Insert(map[string]interface{}{"name": name}, nil)
		c.NoError(err)
	}

	err := table.AddUniqueIndex("by_name", "name")
	c.Equal(types.CodeDupEntry, mysqlCode(err))
	c.NotContains(table.Indexes, "by_name")

	err = table.AddUniqueIndex("by_name_age", "name", "id")
	c.NoError(err)
	c.Equal(int64(2), table.Description().Indexes["by_name_age"])
}

func TestChangeLog(t *testing.T) {
	c := require.New(t)

	table := usersTable(t)
	table.EnableChangeLog(ChangeViewNewAndOldImages)

	_, err := table.Insert(map[string]interface{}{"name": "Ash"}, nil)
	c.NoError(err)

	_, err = table.Update(QueryInput{}, []Assignment{{Column: "age", Expression: "10"}})
	c.NoError(err)

	_, err = table.Delete(QueryInput{})
	c.NoError(err)

	records := table.GetChangeRecords()
	c.Len(records, 3)

	c.Equal(ChangeInsert, records[0].Type)
	c.Equal(tableName, records[0].Table)
	c.Equal(map[string]interface{}{"users.id": int64(1)}, records[0].Keys.ToNative())
	c.Nil(records[0].Old)
	c.Equal("Ash", records[0].New.ToNative()["users.name"])

	c.Equal(ChangeUpdate, records[1].Type)
	c.Nil(records[1].Old.ToNative()["users.age"])
	c.Equal(int64(10), records[1].New.ToNative()["users.age"])

	c.Equal(ChangeDelete, records[2].Type)
	c.Nil(records[2].New)
	c.Equal(int64(10), records[2].Old.ToNative()["users.age"])

	table.ClearChangeRecords()
	table.EnableChangeLog(ChangeViewKeysOnly)

	_, err = table.Insert(map[string]interface{}{"name": "Misty"}, nil)
	c.NoError(err)

	records = table.GetChangeRecords()
	c.Len(records, 1)
	c.Nil(records[0].New)
	c.Equal(map[string]interface{}{"users.id": int64(2)}, records[0].Keys.ToNative())

	table.DisableChangeLog()

	_, err = table.Insert(map[string]interface{}{"name": "Brock"}, nil)
	c.NoError(err)
	c.Len(table.GetChangeRecords(), 1)
}
