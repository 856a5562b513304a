package language

import "strings"

// TokenType represents the type of the token
type TokenType string

// Token represents a token of a MySQL expression
type Token struct {
	Type TokenType
	// Literal is the token value: unquoted string contents, the upper-cased
	// keyword or operator, the unquoted identifier
	Literal  string
	Raw      string
	Position int
}

const (
	// ILLEGAL illegal token
	ILLEGAL TokenType = "ILLEGAL"
	// EOF end of the file(input)
	EOF TokenType = "EOF"

	// NUMBER numeric constant
	NUMBER TokenType = "NUMERIC_CONSTANT"
	// STRING quoted string constant
	STRING TokenType = "STRING_CONSTANT"
	// NULLCONST the NULL constant
	NULLCONST TokenType = "NULL_CONSTANT"
	// IDENT identifier of a column, table or function
	IDENT TokenType = "IDENTIFIER"
	// KEYWORD reserved word
	KEYWORD TokenType = "KEYWORD"
	// OPERATOR symbolic operator
	OPERATOR TokenType = "OPERATOR"

	// COMMA list delimiter
	COMMA TokenType = ","
	// SEMICOLON statement delimiter
	SEMICOLON TokenType = ";"
	// LPAREN left parentheses delimiter
	LPAREN TokenType = "("
	// RPAREN right parentheses delimiter
	RPAREN TokenType = ")"

	// PARAM positional placeholder ?
	PARAM TokenType = "PARAM"
	// NAMEDPARAM named placeholder :name
	NAMEDPARAM TokenType = "NAMED_PARAM"
	// VARIABLE session variable @name
	VARIABLE TokenType = "VARIABLE"
)

// Operators and keywords the parser gives meaning to
const (
	AND      = "AND"
	OR       = "OR"
	XOR      = "XOR"
	NOT      = "NOT"
	BETWEEN  = "BETWEEN"
	IN       = "IN"
	IS       = "IS"
	LIKE     = "LIKE"
	REGEXP   = "REGEXP"
	RLIKE    = "RLIKE"
	CASE     = "CASE"
	WHEN     = "WHEN"
	THEN     = "THEN"
	ELSE     = "ELSE"
	END      = "END"
	EXISTS   = "EXISTS"
	INTERVAL = "INTERVAL"
	DIV      = "DIV"
	MOD      = "MOD"
	BINARY   = "BINARY"
	COLLATE  = "COLLATE"
	SELECT   = "SELECT"
	DISTINCT = "DISTINCT"
	AS       = "AS"
	ROW      = "ROW"
	ANY      = "ANY"
	SOME     = "SOME"
	SOUNDS   = "SOUNDS"
	UNKNOWN  = "UNKNOWN"

	// TrueKeyword boolean literal TRUE
	TrueKeyword = "TRUE"
	// FalseKeyword boolean literal FALSE
	FalseKeyword = "FALSE"

	// UnaryMinus operator name of the prefix -
	UnaryMinus = "UNARY_MINUS"
	// UnaryPlus operator name of the prefix +
	UnaryPlus = "UNARY_PLUS"
)

var keywords = map[string]bool{
	AND: true, OR: true, XOR: true, NOT: true, BETWEEN: true, IN: true, IS: true,
	LIKE: true, REGEXP: true, RLIKE: true, CASE: true, WHEN: true, THEN: true,
	ELSE: true, END: true, EXISTS: true, INTERVAL: true, DIV: true, MOD: true,
	BINARY: true, COLLATE: true, SELECT: true, DISTINCT: true, AS: true,
	TrueKeyword: true, FalseKeyword: true, ROW: true, ANY: true, SOME: true, SOUNDS: true,
	UNKNOWN: true,
	"FROM": true, "WHERE": true, "GROUP": true, "ORDER": true, "BY": true,
	"HAVING": true, "LIMIT": true, "OFFSET": true, "ON": true, "USING": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "CROSS": true,
	"NATURAL": true, "STRAIGHT_JOIN": true, "UNION": true, "ALL": true,
	"ASC": true, "DESC": true, "INTO": true, "VALUES": true, "SET": true,
	"UPDATE": true, "DELETE": true, "INSERT": true, "DUPLICATE": true, "KEY": true,
	"FOR": true, "ESCAPE": true,
}

// LookupIdent checks if the ident is a keyword
func LookupIdent(ident string) TokenType {
	upper := strings.ToUpper(ident)
	if upper == "NULL" {
		return NULLCONST
	}

	if keywords[upper] {
		return KEYWORD
	}

	return IDENT
}

// Is reports whether the token is the given keyword or operator
func (t Token) Is(literal string) bool {
	return (t.Type == KEYWORD || t.Type == OPERATOR) && t.Literal == literal
}
