package minisql

import (
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/truora/minisql/core"
	"github.com/truora/minisql/interpreter"
	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

var strictModes = map[string]bool{
	"STRICT_TRANS_TABLES": true,
	"STRICT_ALL_TABLES":   true,
	"TRADITIONAL":         true,
}

// Session is an in-memory MySQL connection: a current database, session
// variables, the SQL mode and the tables created through it. Statements are
// serialized.
type Session struct {
	mu sync.Mutex
	// guards tables, taken for reading by the schema lookups evaluation does
	// while a statement holds mu
	catalogMu sync.RWMutex

	database   string
	location   *time.Location
	strictMode bool
	variables  map[string]language.Object
	tables     map[string]*core.Table

	logger               logrus.FieldLogger
	langInterpreter      *interpreter.Language
	nativeInterpreter    *interpreter.Native
	useNativeInterpreter bool
	forceFailureErr      error
	clock                func() time.Time

	// parsed subquery statements by expression node
	selects sync.Map
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger used for statements and expression traces
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) {
		s.logger = logger
		s.langInterpreter.Logger = logger
	}
}

// WithDebug traces every evaluated expression
func WithDebug() Option {
	return func(s *Session) {
		s.langInterpreter.Debug = true
	}
}

// WithNativeInterpreter prefers the registered expr programs over the
// language interpreter
func WithNativeInterpreter() Option {
	return func(s *Session) {
		s.useNativeInterpreter = true
	}
}

// WithClock replaces the wall clock read by NOW() and friends
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// NewSession returns a session configured from a go-sql-driver DSN such as
// "user:pass@tcp(localhost:3306)/shop?loc=UTC&sql_mode=TRADITIONAL". Only the
// database, loc and sql_mode parts are used. Without sql_mode the session is
// strict, as MySQL 8 is by default.
func NewSession(dsn string, opts ...Option) (*Session, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	s := &Session{
		database:          cfg.DBName,
		location:          cfg.Loc,
		strictMode:        true,
		variables:         map[string]language.Object{},
		tables:            map[string]*core.Table{},
		logger:            logrus.StandardLogger(),
		langInterpreter:   &interpreter.Language{},
		nativeInterpreter: interpreter.NewNativeInterpreter(),
	}

	if mode, ok := cfg.Params["sql_mode"]; ok {
		s.strictMode = isStrictMode(mode)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func isStrictMode(mode string) bool {
	for _, m := range strings.Split(strings.Trim(mode, "'\""), ",") {
		if strictModes[strings.ToUpper(strings.TrimSpace(m))] {
			return true
		}
	}

	return false
}

// ActivateDebug it activates the debug mode
func (s *Session) ActivateDebug() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.langInterpreter.Debug = true
}

// ActivateNativeInterpreter makes every table try the native interpreter first
func (s *Session) ActivateNativeInterpreter() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.useNativeInterpreter = true

	for _, table := range s.tables {
		table.UseNativeInterpreter = true
	}
}

// SetInterpreter assigns a native interpreter
func (s *Session) SetInterpreter(i interpreter.Interpreter) {
	native, ok := i.(*interpreter.Native)
	if !ok {
		panic("invalid interpreter type")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nativeInterpreter = native

	for _, table := range s.tables {
		table.NativeInterpreter = native
	}
}

// GetNativeInterpreter returns native interpreter
func (s *Session) GetNativeInterpreter() *interpreter.Native {
	return s.nativeInterpreter
}

// Database returns the current database
func (s *Session) Database() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.database
}

// UseDatabase changes the current database, like USE db
func (s *Session) UseDatabase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.database = name
}

// StrictMode reports whether the session runs with a strict sql_mode
func (s *Session) StrictMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.strictMode
}

// SetStrictMode turns strict mode on or off, like SET sql_mode
func (s *Session) SetStrictMode(strict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.strictMode = strict
}

// SetVariable assigns the user variable read as @name
func (s *Session) SetVariable(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.variables[strings.ToLower(strings.TrimPrefix(name, "@"))] = language.NativeToObject(value)
}

// Variable returns the user variable @name, nil when it is not set
func (s *Session) Variable(name string) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.variables[strings.ToLower(strings.TrimPrefix(name, "@"))]
	if !ok {
		return nil
	}

	return obj.ToNative()
}

// tableKey returns the catalog key and bare name of a possibly qualified table
// name
func (s *Session) tableKey(name string) (string, string, error) {
	database := s.database
	table := name

	if i := strings.LastIndex(name, "."); i >= 0 {
		database, table = name[:i], name[i+1:]
	}

	if database == "" {
		return "", "", types.NewRuntimeError(types.CodeNoDB, "No database selected")
	}

	return strings.ToLower(database + "." + table), table, nil
}

func (s *Session) getTable(name string) (*core.Table, error) {
	key, _, err := s.tableKey(name)
	if err != nil {
		return nil, err
	}

	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	table, ok := s.tables[key]
	if !ok {
		return nil, types.NewRuntimeError(types.CodeNoSuchTable, "Table '%s' doesn't exist", key)
	}

	return table, nil
}

// CreateTable creates a new table. Each definition is either a column, its
// name followed by the type and attributes ("id int not null auto_increment
// primary key"), or a table key such as "PRIMARY KEY (a, b)" or
// "UNIQUE KEY email (email)".
func (s *Session) CreateTable(name string, definitions ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return s.forceFailureErr
	}

	key, bare, err := s.tableKey(name)
	if err != nil {
		return err
	}

	s.catalogMu.RLock()
	_, exists := s.tables[key]
	s.catalogMu.RUnlock()

	if exists {
		return types.NewRuntimeError(types.CodeTableExists, "Table '%s' already exists", bare)
	}

	newTable, err := buildTable(bare, definitions)
	if err != nil {
		return err
	}

	newTable.NativeInterpreter = s.nativeInterpreter
	newTable.UseNativeInterpreter = s.useNativeInterpreter
	newTable.LangInterpreter = s.langInterpreter

	s.catalogMu.Lock()
	s.tables[key] = newTable
	s.catalogMu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"table":   key,
		"columns": newTable.ColumnNames(),
	}).Debug("table created")

	return nil
}

// DropTable removes the table and its rows
func (s *Session) DropTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return s.forceFailureErr
	}

	key, _, err := s.tableKey(name)
	if err != nil {
		return err
	}

	s.catalogMu.Lock()
	defer s.catalogMu.Unlock()

	if _, ok := s.tables[key]; !ok {
		return types.NewRuntimeError(types.CodeBadTable, "Unknown table '%s'", key)
	}

	delete(s.tables, key)

	s.logger.WithField("table", key).Debug("table dropped")

	return nil
}

// DescribeTable returns the schema and size of a table
func (s *Session) DescribeTable(name string) (core.TableDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.getTable(name)
	if err != nil {
		return core.TableDescription{}, err
	}

	return table.Description(), nil
}

// Tables returns the names of the tables in the current database
func (s *Session) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	prefix := strings.ToLower(s.database) + "."
	names := []string{}

	for key, table := range s.tables {
		if strings.HasPrefix(key, prefix) {
			names = append(names, table.Name)
		}
	}

	sort.Strings(names)

	return names
}

// ClearTable removes all data from a table and its indexes
func (s *Session) ClearTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.getTable(name)
	if err != nil {
		return err
	}

	table.Clear()

	return nil
}

// Reset removes all tables, session variables and the emulated failure
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalogMu.Lock()
	s.tables = map[string]*core.Table{}
	s.catalogMu.Unlock()

	s.variables = map[string]language.Object{}
	s.forceFailureErr = nil
}

// EnableChangeLog starts recording the writes made to the table
func (s *Session) EnableChangeLog(name string, view core.ChangeView) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.getTable(name)
	if err != nil {
		return err
	}

	table.EnableChangeLog(view)

	return nil
}

// ChangeRecords returns the writes recorded for the table since the change
// log was enabled
func (s *Session) ChangeRecords(name string) ([]core.ChangeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.getTable(name)
	if err != nil {
		return nil, err
	}

	return table.GetChangeRecords(), nil
}

// ColumnSchema returns the type of a column. An empty database means the
// current one and an empty table searches every table of the database.
func (s *Session) ColumnSchema(database, table, column string) (language.ColumnType, bool) {
	if database == "" {
		database = s.database
	}

	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()

	if table != "" {
		t, ok := s.tables[strings.ToLower(database+"."+table)]
		if !ok {
			return language.ColumnType{}, false
		}

		return t.ColumnSchema(database, t.Name, column)
	}

	prefix := strings.ToLower(database) + "."
	keys := []string{}

	for key := range s.tables {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	for _, key := range keys {
		t := s.tables[key]
		if ct, ok := t.ColumnSchema(database, t.Name, column); ok {
			return ct, true
		}
	}

	return language.ColumnType{}, false
}

// NewScope returns the scope of a read statement bound to the session state
// and the given parameters. A sql.NamedArg binds the :name placeholder.
func (s *Session) NewScope(params ...interface{}) *language.Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := s.newScope(params)

	variables := make(map[string]language.Object, len(s.variables))
	for k, v := range s.variables {
		variables[k] = v
	}

	scope.Variables = variables

	return scope
}

func (s *Session) newScope(params []interface{}) *language.Scope {
	scope := language.NewScope()
	scope.Database = s.database
	scope.Schema = s
	scope.Executor = s
	scope.Variables = s.variables
	scope.Clock = s.clock

	if s.location != nil {
		scope.Location = s.location
	}

	for _, p := range params {
		if named, ok := p.(sql.NamedArg); ok {
			scope.NamedParameters[named.Name] = language.NativeToObject(named.Value)

			continue
		}

		scope.Parameters = append(scope.Parameters, language.NativeToObject(p))
	}

	return scope
}

// writeScope is the scope of INSERT, UPDATE and DELETE, the only statements
// strict mode applies to
func (s *Session) writeScope(params []interface{}) *language.Scope {
	scope := s.newScope(params)
	scope.StrictMode = s.strictMode

	return scope
}

// withParameters returns a copy of the scope whose positional parameters start
// at the offset
func withParameters(scope *language.Scope, offset int) *language.Scope {
	out := *scope

	if offset > len(scope.Parameters) {
		offset = len(scope.Parameters)
	}

	out.Parameters = scope.Parameters[offset:]

	return &out
}

// placeholders counts the ? parameters of the expression
func placeholders(expression string) (int, error) {
	tokens, err := language.NewLexer(expression).Tokens()
	if err != nil {
		return 0, err
	}

	count := 0

	for _, tok := range tokens {
		if tok.Type == language.PARAM {
			count++
		}
	}

	return count, nil
}

func (s *Session) evaluate(input interpreter.EvaluateInput) (language.Object, error) {
	if s.useNativeInterpreter {
		obj, err := s.nativeInterpreter.Evaluate(input)
		if err == nil {
			return obj, nil
		}
	}

	return s.langInterpreter.Evaluate(input)
}

func (s *Session) match(input interpreter.MatchInput) (bool, error) {
	if s.useNativeInterpreter {
		matched, err := s.nativeInterpreter.Match(input)
		if err == nil {
			return matched, nil
		}
	}

	return s.langInterpreter.Match(input)
}

// Evaluate returns the value of the expression for the given row, as the
// driver would scan it: int64, float64, string or nil. A scalar subquery
// yields its single value.
func (s *Session) Evaluate(expression string, row map[string]interface{}, params ...interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return nil, s.forceFailureErr
	}

	obj, err := s.evaluate(interpreter.EvaluateInput{
		Expression: expression,
		Row:        language.RowFromMap(row),
		Scope:      s.newScope(params),
	})
	if err == nil {
		obj, err = language.ScalarValue(obj)
	}

	if err != nil {
		s.logger.WithError(err).WithField("expression", expression).Debug("evaluation failed")

		return nil, err
	}

	return obj.ToNative(), nil
}

// Match reports whether the row passes the filter expression, NULL does not
// match
func (s *Session) Match(expression string, row map[string]interface{}, params ...interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return false, s.forceFailureErr
	}

	return s.match(interpreter.MatchInput{
		Expression:     expression,
		ExpressionType: interpreter.ExpressionTypeFilter,
		Row:            language.RowFromMap(row),
		Scope:          s.newScope(params),
	})
}

// Select returns the rows of the table passing the filter, an empty filter
// matches every row. Rows are keyed table.column in primary key order.
func (s *Session) Select(name, filter string, params ...interface{}) (language.Dataset, error) {
	return s.SelectLimit(name, filter, 0, params...)
}

// SelectLimit is Select returning at most limit rows, 0 means no limit
func (s *Session) SelectLimit(name, filter string, limit int64, params ...interface{}) (language.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return nil, s.forceFailureErr
	}

	table, err := s.getTable(name)
	if err != nil {
		return nil, err
	}

	ds, err := table.Select(core.QueryInput{
		Filter: filter,
		Scope:  s.newScope(params),
		Limit:  limit,
	})

	s.trace("select", table.Name, filter, int64(len(ds)), err)

	return ds, err
}

// Insert adds a row to the table. Missing columns take their default, the
// auto increment value is reported as the last insert id.
func (s *Session) Insert(name string, values map[string]interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return nil, s.forceFailureErr
	}

	table, err := s.getTable(name)
	if err != nil {
		return nil, err
	}

	row, err := table.Insert(values, s.writeScope(nil))
	if err != nil {
		s.trace("insert", table.Name, "", 0, err)

		return nil, err
	}

	s.trace("insert", table.Name, "", 1, nil)

	return result{lastInsertID: autoIncrementValue(table, row), rowsAffected: 1}, nil
}

// InsertOnDuplicate runs INSERT ... ON DUPLICATE KEY UPDATE. The parameters
// bind the placeholders of the updates from left to right. The rows affected
// are 1 for an insert, 2 for an update and 0 when the update changed nothing.
func (s *Session) InsertOnDuplicate(name string, values map[string]interface{}, updates []core.Assignment, params ...interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return nil, s.forceFailureErr
	}

	table, err := s.getTable(name)
	if err != nil {
		return nil, err
	}

	scope := s.writeScope(params)

	assignments, _, err := bindAssignments(updates, scope)
	if err != nil {
		return nil, err
	}

	affected, err := table.InsertOnDuplicate(values, assignments, scope)

	s.trace("insert on duplicate", table.Name, "", affected, err)

	if err != nil {
		return nil, err
	}

	res := result{rowsAffected: affected}
	if affected == 1 && hasAutoIncrement(table) {
		res.lastInsertID = table.Description().AutoIncrement - 1
	}

	return res, nil
}

// Update runs UPDATE name SET updates WHERE filter. The parameters bind the
// placeholders in statement order: the updates from left to right and then
// the filter.
func (s *Session) Update(name, filter string, updates []core.Assignment, params ...interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return nil, s.forceFailureErr
	}

	table, err := s.getTable(name)
	if err != nil {
		return nil, err
	}

	scope := s.writeScope(params)

	assignments, offset, err := bindAssignments(updates, scope)
	if err != nil {
		return nil, err
	}

	affected, err := table.Update(core.QueryInput{
		Filter: filter,
		Scope:  withParameters(scope, offset),
	}, assignments)

	s.trace("update", table.Name, filter, affected, err)

	if err != nil {
		return nil, err
	}

	return result{rowsAffected: affected}, nil
}

// Delete removes the rows of the table passing the filter
func (s *Session) Delete(name, filter string, params ...interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return nil, s.forceFailureErr
	}

	table, err := s.getTable(name)
	if err != nil {
		return nil, err
	}

	affected, err := table.Delete(core.QueryInput{
		Filter: filter,
		Scope:  s.writeScope(params),
	})

	s.trace("delete", table.Name, filter, affected, err)

	if err != nil {
		return nil, err
	}

	return result{rowsAffected: affected}, nil
}

// Join combines the left dataset with the rows of the right table. joinType
// takes the SQL keywords, "LEFT JOIN" or "natural join" for instance, and on
// is the join condition, ignored by CROSS and NATURAL joins.
func (s *Session) Join(left language.Dataset, joinType, rightTable, on string, params ...interface{}) (language.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.forceFailureErr != nil {
		return nil, s.forceFailureErr
	}

	jt, err := core.ParseJoinType(joinType)
	if err != nil {
		return nil, err
	}

	table, err := s.getTable(rightTable)
	if err != nil {
		return nil, err
	}

	var condition language.Expression

	if on != "" {
		condition, err = s.langInterpreter.Parse(on)
		if err != nil {
			return nil, err
		}
	}

	ds, err := core.Join(left, table.Dataset(), table.Name, jt, condition, table.ColumnNames(), s.newScope(params))

	s.trace(strings.ToLower(string(jt))+" join", table.Name, on, int64(len(ds)), err)

	return ds, err
}

// bindAssignments gives every assignment the parameters its placeholders
// bind, it returns the number of parameters consumed
func bindAssignments(updates []core.Assignment, scope *language.Scope) ([]core.Assignment, int, error) {
	out := make([]core.Assignment, 0, len(updates))
	offset := 0

	for _, a := range updates {
		count, err := placeholders(a.Expression)
		if err != nil {
			return nil, 0, err
		}

		if count > 0 {
			a.Scope = withParameters(scope, offset)
		}

		offset += count

		out = append(out, a)
	}

	return out, offset, nil
}

func hasAutoIncrement(table *core.Table) bool {
	for _, col := range table.Columns {
		if col.AutoIncrement {
			return true
		}
	}

	return false
}

func autoIncrementValue(table *core.Table, row *language.Row) int64 {
	for _, col := range table.Columns {
		if !col.AutoIncrement {
			continue
		}

		if val, ok := row.Get(col.Name); ok {
			return cast.ToInt64(val.ToNative())
		}
	}

	return 0
}

func (s *Session) trace(statement, table, filter string, affected int64, err error) {
	entry := s.logger.WithFields(logrus.Fields{
		"statement": statement,
		"table":     table,
		"rows":      affected,
	})

	if filter != "" {
		entry = entry.WithField("filter", filter)
	}

	if err != nil {
		entry.WithError(err).Debug("statement failed")

		return
	}

	entry.Debug("statement executed")
}

type result struct {
	lastInsertID int64
	rowsAffected int64
}

func (r result) LastInsertId() (int64, error) {
	return r.lastInsertID, nil
}

func (r result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}
