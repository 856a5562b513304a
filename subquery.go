package minisql

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/truora/minisql/core"
	"github.com/truora/minisql/interpreter/language"
	"github.com/truora/minisql/types"
)

const keywordFrom = "FROM"

type selectItem struct {
	exp   language.Expression
	alias string
	// star is * or table.*, the qualifier is kept in table
	star  bool
	table string
}

// selectStatement is the SELECT a subquery runs:
// SELECT [DISTINCT] items FROM table [[AS] alias] [WHERE expr] [LIMIT n]
type selectStatement struct {
	distinct bool
	items    []selectItem
	table    string
	alias    string
	where    language.Expression
	limit    language.Expression
}

type selectParser struct {
	tokens []language.Token
	pos    int
}

func (p *selectParser) cur() language.Token {
	if p.pos >= len(p.tokens) {
		return language.Token{Type: language.EOF}
	}

	return p.tokens[p.pos]
}

func (p *selectParser) keyword(word string) bool {
	tok := p.cur()

	return tok.Type == language.KEYWORD && tok.Literal == word
}

func (p *selectParser) errorf(format string, a ...interface{}) error {
	tok := p.cur()

	return types.NewParseError(tok.Raw, tok.Position, format, a...)
}

func (p *selectParser) expression() (language.Expression, error) {
	pos, exp, err := language.Parse(p.tokens, p.pos, nil, language.LowestPrecedence, false)
	if err != nil {
		return nil, err
	}

	p.pos = pos

	return exp, nil
}

// identifier reads a table name or alias
func (p *selectParser) identifier() (string, bool) {
	tok := p.cur()
	if tok.Type != language.IDENT && tok.Type != language.STRING {
		return "", false
	}

	p.pos++

	return tok.Literal, true
}

func parseSelect(tokens []language.Token) (*selectStatement, error) {
	p := &selectParser{tokens: tokens}
	stmt := &selectStatement{}

	if !p.keyword(language.SELECT) {
		return nil, p.errorf("subqueries must be SELECT statements")
	}

	p.pos++

	if p.keyword(language.DISTINCT) {
		stmt.distinct = true
		p.pos++
	}

	for {
		item, err := p.selectItem()
		if err != nil {
			return nil, err
		}

		stmt.items = append(stmt.items, item)

		if p.cur().Type != language.COMMA {
			break
		}

		p.pos++
	}

	if !p.keyword(keywordFrom) {
		return nil, p.errorf("expected FROM")
	}

	p.pos++

	table, ok := p.identifier()
	if !ok {
		return nil, p.errorf("expected a table name")
	}

	stmt.table = table

	if p.keyword(language.AS) {
		p.pos++

		if stmt.alias, ok = p.identifier(); !ok {
			return nil, p.errorf("expected an alias")
		}
	} else if alias, ok := p.identifier(); ok {
		stmt.alias = alias
	}

	if p.keyword("WHERE") {
		p.pos++

		where, err := p.expression()
		if err != nil {
			return nil, err
		}

		stmt.where = where
	}

	if p.keyword("LIMIT") {
		p.pos++

		limit, err := p.expression()
		if err != nil {
			return nil, err
		}

		stmt.limit = limit
	}

	for p.cur().Type == language.SEMICOLON {
		p.pos++
	}

	if p.pos < len(p.tokens) {
		return nil, p.errorf("unexpected %s", p.cur().Raw)
	}

	return stmt, nil
}

func (p *selectParser) selectItem() (selectItem, error) {
	tok := p.cur()

	if tok.Type == language.OPERATOR && tok.Literal == "*" {
		p.pos++

		return selectItem{star: true}, nil
	}

	if tok.Type == language.IDENT && strings.HasSuffix(tok.Literal, ".*") {
		p.pos++

		return selectItem{star: true, table: strings.TrimSuffix(tok.Literal, ".*")}, nil
	}

	exp, err := p.expression()
	if err != nil {
		return selectItem{}, err
	}

	item := selectItem{exp: exp}

	if p.keyword(language.AS) {
		p.pos++

		alias, ok := p.identifier()
		if !ok {
			return selectItem{}, p.errorf("expected an alias")
		}

		item.alias = alias
	} else if alias, ok := p.identifier(); ok {
		item.alias = alias
	}

	return item, nil
}

func (item selectItem) name() string {
	if item.alias != "" {
		return item.alias
	}

	return item.exp.String()
}

func (stmt *selectStatement) aggregated() bool {
	for _, item := range stmt.items {
		if item.exp != nil && language.ContainsAggregate(item.exp) {
			return true
		}
	}

	return false
}

func (s *Session) parsedSelect(sub *language.SubqueryExpression) (*selectStatement, error) {
	if stmt, ok := s.selects.Load(sub); ok {
		return stmt.(*selectStatement), nil
	}

	stmt, err := parseSelect(sub.Tokens)
	if err != nil {
		return nil, err
	}

	s.selects.Store(sub, stmt)

	return stmt, nil
}

// ExecuteSubquery runs the SELECT of a subquery or EXISTS expression against
// the session tables. The inner rows see the columns of the outer row,
// unqualified names resolve to the inner table first.
func (s *Session) ExecuteSubquery(sub *language.SubqueryExpression, outer *language.Row, scope *language.Scope) (language.Dataset, error) {
	stmt, err := s.parsedSelect(sub)
	if err != nil {
		return nil, err
	}

	table, err := s.getTable(stmt.table)
	if err != nil {
		return nil, err
	}

	qualifier := table.Name
	if stmt.alias != "" {
		qualifier = stmt.alias
	}

	subScope := subqueryScope(scope, sub.ParamOffset, table, qualifier)

	inner := []*language.Row{}
	envs := []*language.Row{}

	for _, row := range table.Dataset() {
		row = requalify(row, table.Name, qualifier)
		env := correlate(row, outer)

		if stmt.where != nil {
			matched, err := language.EvalBool(stmt.where, env, subScope)
			if err != nil {
				return nil, err
			}

			if !matched {
				continue
			}
		}

		inner = append(inner, row)
		envs = append(envs, env)
	}

	var ds language.Dataset

	if stmt.aggregated() {
		row, err := stmt.project(language.Group(envs), nil, subScope)
		if err != nil {
			return nil, err
		}

		ds = language.Dataset{row}
	} else {
		ds = make(language.Dataset, 0, len(envs))

		for i, env := range envs {
			row, err := stmt.project(env, inner[i], subScope)
			if err != nil {
				return nil, err
			}

			ds = append(ds, row)
		}
	}

	if stmt.distinct {
		ds = distinct(ds)
	}

	return stmt.applyLimit(ds, subScope)
}

func (stmt *selectStatement) project(env language.RowOrGroup, inner *language.Row, scope *language.Scope) (*language.Row, error) {
	out := language.NewRow()

	if len(env.Rows()) == 0 {
		empty := *scope
		empty.MissingColumnsAsNull = true
		scope = &empty
	}

	for _, item := range stmt.items {
		if item.star {
			if inner == nil {
				return nil, types.NewRuntimeError(types.CodeNotSupportedYet, "* with aggregates is not supported yet")
			}

			for _, c := range inner.Columns() {
				if item.table != "" && !strings.HasPrefix(strings.ToLower(c), strings.ToLower(item.table)+".") {
					continue
				}

				val, _ := inner.Get(c)
				out.Set(c, val)
			}

			continue
		}

		val, err := language.Eval(item.exp, env, scope)
		if err != nil {
			return nil, err
		}

		out.Set(item.name(), val)
	}

	return out, nil
}

func (stmt *selectStatement) applyLimit(ds language.Dataset, scope *language.Scope) (language.Dataset, error) {
	if stmt.limit == nil {
		return ds, nil
	}

	obj, err := language.Eval(stmt.limit, language.NewRow(), scope)
	if err != nil {
		return nil, err
	}

	limit, err := cast.ToInt64E(obj.ToNative())
	if err != nil || limit < 0 {
		return nil, types.NewRuntimeError(types.CodeWrongArguments, "Incorrect arguments to LIMIT")
	}

	if int64(len(ds)) > limit {
		ds = ds[:limit]
	}

	return ds, nil
}

// subqueryScope returns the scope of the nested statement: its placeholders
// start after the ones of the outer expression and the alias columns are typed
func subqueryScope(scope *language.Scope, offset int, table *core.Table, qualifier string) *language.Scope {
	out := withParameters(scope, offset)

	columns := make(map[string]language.ColumnType, len(scope.Columns)+len(table.Columns))
	for k, v := range scope.Columns {
		columns[k] = v
	}

	for _, col := range table.Columns {
		columns[qualifier+"."+col.Name] = col.Type
	}

	out.Columns = columns

	return out
}

func requalify(row *language.Row, from, to string) *language.Row {
	if from == to {
		return row
	}

	out := language.NewRow()

	for _, c := range row.Columns() {
		val, _ := row.Get(c)
		out.Set(to+strings.TrimPrefix(c, from), val)
	}

	return out
}

// correlate adds the outer columns the inner row does not define, keeping the
// inner columns first
func correlate(inner, outer *language.Row) *language.Row {
	env := inner.Copy()

	if outer == nil {
		return env
	}

	for _, c := range outer.Columns() {
		if _, ok := env.Get(c); ok {
			continue
		}

		val, _ := outer.Get(c)
		env.Set(c, val)
	}

	return env
}

func distinct(ds language.Dataset) language.Dataset {
	seen := map[string]bool{}
	out := language.Dataset{}

	for _, row := range ds {
		key := row.String()
		if seen[key] {
			continue
		}

		seen[key] = true

		out = append(out, row)
	}

	return out
}
