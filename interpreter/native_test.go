package interpreter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/truora/minisql/interpreter/language"
)

func TestNativeMatch(t *testing.T) {
	input := MatchInput{
		TableName:      "pokemons",
		Expression:     "pokemons.id = ? AND type = 'electric'",
		ExpressionType: ExpressionTypeFilter,
		Row:            pokemonRow(),
		Scope:          language.NewScope(&language.Integer{Value: 25}),
	}

	native := NewNativeInterpreter()

	_, err := native.Match(input)
	if !errors.Is(err, ErrUnsupportedFeature) {
		t.Error("match without a defined expression should fail")
	}

	err = native.AddMatcher("pokemons", ExpressionTypeFilter, "pokemons.id = ?  AND type = 'electric'", `pokemons.id == params[0] && type == "electric"`)
	require.NoError(t, err)

	matched, err := native.Match(input)
	if err != nil {
		t.Errorf("match with a defined expression should not fail: %v", err)
	}

	if !matched {
		t.Error("input should match")
	}

	input.Scope = language.NewScope(&language.Integer{Value: 1})

	matched, err = native.Match(input)
	require.NoError(t, err)
	require.False(t, matched)

	input.ExpressionType = ExpressionTypeJoin

	_, err = native.Match(input)
	require.True(t, errors.Is(err, ErrUnsupportedFeature), "matchers are registered per expression type")
}

func TestNativeColumnsNamedAsBuiltins(t *testing.T) {
	c := require.New(t)

	row := language.NewRowFromPairs(
		"stock.count", 3,
		"stock.len", 10,
		"stock.date", "2024-02-29",
		"stock.max", 7,
	)

	native := NewNativeInterpreter()

	err := native.AddMatcher("stock", ExpressionTypeFilter, "count < max AND date = ?", `count < max && date == params[0]`)
	c.NoError(err)

	matched, err := native.Match(MatchInput{
		TableName:      "stock",
		Expression:     "count < max AND date = ?",
		ExpressionType: ExpressionTypeFilter,
		Row:            row,
		Scope:          language.NewScope(&language.String{Value: "2024-02-29"}),
	})
	c.NoError(err)
	c.True(matched)

	err = native.AddEvaluator("stock", "len * count", "len * count")
	c.NoError(err)

	obj, err := native.Evaluate(EvaluateInput{TableName: "stock", Expression: "len * count", Row: row})
	c.NoError(err)
	c.Equal(&language.Integer{Value: 30}, obj)
}

func TestAddMatcher(t *testing.T) {
	native := NewNativeInterpreter()
	etypes := []ExpressionType{
		ExpressionTypeFilter,
		ExpressionTypeJoin,
		ExpressionTypeHaving,
	}

	for _, etype := range etypes {
		err := native.AddMatcher("test", etype, "a = 1", "a == 1")
		require.NoError(t, err)
	}

	if len(native.filterExpressions) != 1 {
		t.Errorf("filter expression should be 1 but got %d", len(native.filterExpressions))
	}

	if len(native.joinExpressions) != 1 {
		t.Errorf("join expression should be 1 but got %d", len(native.joinExpressions))
	}

	if len(native.havingExpressions) != 1 {
		t.Errorf("having expression should be 1 but got %d", len(native.havingExpressions))
	}

	err := native.AddMatcher("test", ExpressionTypeFilter, "a = 1", "a ==")
	require.True(t, errors.Is(err, ErrSyntaxError))

	err = native.AddMatcher("test", ExpressionType("update"), "a = 1", "a == 1")
	require.True(t, errors.Is(err, ErrUnsupportedFeature))

	err = native.AddMatcher("test", ExpressionTypeFilter, "a", `"not a bool"`)
	require.True(t, errors.Is(err, ErrSyntaxError), "matchers must return booleans")
}

func TestNativeEvaluate(t *testing.T) {
	native := NewNativeInterpreter()

	err := native.AddEvaluator("pokemons", "CONCAT(name, '!')", `name + "!"`)
	require.NoError(t, err)

	obj, err := native.Evaluate(EvaluateInput{TableName: "pokemons", Expression: "CONCAT(name,  '!')", Row: pokemonRow()})
	require.NoError(t, err)
	require.Equal(t, &language.String{Value: "Pikachu!"}, obj)

	err = native.AddEvaluator("pokemons", ":bonus + id", "named.bonus + id")
	require.NoError(t, err)

	scope := language.NewScope()
	scope.NamedParameters["bonus"] = &language.Integer{Value: 5}

	obj, err = native.Evaluate(EvaluateInput{TableName: "pokemons", Expression: ":bonus + id", Row: pokemonRow(), Scope: scope})
	require.NoError(t, err)
	require.Equal(t, &language.Integer{Value: 30}, obj)

	_, err = native.Evaluate(EvaluateInput{TableName: "other", Expression: ":bonus + id"})
	require.True(t, errors.Is(err, ErrUnsupportedFeature))
}

func TestEnv(t *testing.T) {
	row := language.NewRowFromPairs("a.id", 1, "b.id", 2, "b.name", "x")

	env := Env(row, language.NewScope(nil, &language.String{Value: "p"}))

	require.Equal(t, int64(1), env["id"], "the first qualified column wins the bare name")
	require.Equal(t, map[string]interface{}{"id": int64(2), "name": "x"}, env["b"])
	require.Equal(t, "x", env["name"])
	require.Equal(t, []interface{}{nil, "p"}, env["params"])

	empty := Env(nil, nil)
	require.Equal(t, []interface{}{}, empty["params"])
	require.Equal(t, map[string]interface{}{}, empty["named"])
}

var _ Interpreter = &Native{}
var _ Interpreter = &Language{}
