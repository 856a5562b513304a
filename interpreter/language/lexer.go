package language

import (
	"strings"

	"github.com/truora/minisql/types"
)

// Lexer MySQL expression lexer
type Lexer struct {
	input    string
	position int
	// current position in input (points to current char)
	readPosition int
	// current reading position in input (after current char)
	ch byte // current char under examination
}

var singleChar = map[byte]TokenType{
	'(': LPAREN,
	')': RPAREN,
	',': COMMA,
	';': SEMICOLON,
}

// operators ordered longest first so the greedy match wins
var operators = []string{
	"<=>", "<>", "!=", "<=", ">=", "<<", ">>", "&&", "||", ":=",
	"=", "<", ">", "+", "-", "*", "/", "%", "&", "|", "^", "~", "!",
}

var especialChars = map[byte]bool{
	'_': true,
	'$': true,
}

var escapes = map[byte]byte{
	'0':  0,
	'b':  '\b',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'Z':  26,
	'\\': '\\',
	'\'': '\'',
	'"':  '"',
}

// NewLexer creates a new lexer
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()

	return l
}

// Tokens reads the whole input. ILLEGAL tokens are reported as parse errors.
func (l *Lexer) Tokens() ([]Token, error) {
	tokens := []Token{}

	for {
		tok := l.NextToken()
		if tok.Type == ILLEGAL {
			return nil, types.NewParseError(tok.Raw, tok.Position, "unexpected character %q", tok.Raw)
		}

		if tok.Type == EOF {
			return tokens, nil
		}

		tokens = append(tokens, tok)
	}
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}

	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}

	return l.input[l.readPosition]
}

// NextToken look up for the next token
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	start := l.position

	if l.position >= len(l.input) {
		return Token{Type: EOF, Position: start}
	}

	single, ok := singleChar[l.ch]
	if ok {
		l.readChar()

		return l.newToken(single, l.input[start:l.position], start)
	}

	switch {
	case l.ch == '\'' || l.ch == '"':
		return l.readString(start)
	case l.ch == '`':
		return l.readIdentifier(start)
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber(start)
	case l.ch == '?':
		l.readChar()

		return l.newToken(PARAM, "?", start)
	case l.ch == ':' && isIdentifierLetter(l.peekChar()):
		l.readChar()
		name := l.readWord()

		return Token{Type: NAMEDPARAM, Literal: name, Raw: l.input[start:l.position], Position: start}
	case l.ch == '@':
		return l.readVariable(start)
	case isIdentifierLetter(l.ch):
		return l.readIdentifier(start)
	}

	for _, op := range operators {
		if strings.HasPrefix(l.input[l.position:], op) {
			for range op {
				l.readChar()
			}

			return l.newToken(OPERATOR, op, start)
		}
	}

	l.readChar()

	return Token{Type: ILLEGAL, Literal: l.input[start:l.position], Raw: l.input[start:l.position], Position: start}
}

func (l *Lexer) newToken(tokenType TokenType, literal string, start int) Token {
	return Token{Type: tokenType, Literal: literal, Raw: l.input[start:l.position], Position: start}
}

func (l *Lexer) readString(start int) Token {
	quote := l.ch
	var out strings.Builder

	l.readChar()

	for {
		switch {
		case l.position >= len(l.input):
			return Token{Type: ILLEGAL, Literal: l.input[start:], Raw: l.input[start:], Position: start}
		case l.ch == '\\' && l.readPosition < len(l.input):
			l.readChar()

			// \% and \_ are kept escaped for LIKE patterns
			if l.ch == '%' || l.ch == '_' {
				out.WriteByte('\\')
				out.WriteByte(l.ch)
			} else if esc, ok := escapes[l.ch]; ok {
				out.WriteByte(esc)
			} else {
				out.WriteByte(l.ch)
			}
		case l.ch == quote && l.peekChar() == quote:
			out.WriteByte(quote)
			l.readChar()
		case l.ch == quote:
			l.readChar()

			return Token{Type: STRING, Literal: out.String(), Raw: l.input[start:l.position], Position: start}
		default:
			out.WriteByte(l.ch)
		}

		l.readChar()
	}
}

func (l *Lexer) readNumber(start int) Token {
	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()

		for isHexDigit(l.ch) {
			l.readChar()
		}

		return l.newToken(NUMBER, l.input[start:l.position], start)
	}

	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == '.' {
		l.readChar()

		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '-' || next == '+' {
			l.readChar()
			l.readChar()

			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}

	return l.newToken(NUMBER, l.input[start:l.position], start)
}

// readIdentifier reads plain and backtick quoted identifiers, joining dotted
// parts (db.table.column) into a single token
func (l *Lexer) readIdentifier(start int) Token {
	parts := []string{}
	quoted := false

	for {
		if l.ch == '`' {
			quoted = true
			l.readChar()

			part := strings.Builder{}
			for l.ch != '`' || l.peekChar() == '`' {
				if l.position >= len(l.input) {
					return Token{Type: ILLEGAL, Literal: l.input[start:], Raw: l.input[start:], Position: start}
				}

				if l.ch == '`' {
					l.readChar()
				}

				part.WriteByte(l.ch)
				l.readChar()
			}

			l.readChar()
			parts = append(parts, part.String())
		} else {
			parts = append(parts, l.readWord())
		}

		if l.ch != '.' || !(isIdentifierLetter(l.peekChar()) || l.peekChar() == '`' || l.peekChar() == '*') {
			break
		}

		l.readChar()

		if l.ch == '*' {
			l.readChar()
			parts = append(parts, "*")

			break
		}
	}

	literal := strings.Join(parts, ".")
	if quoted || len(parts) > 1 {
		return l.newToken(IDENT, literal, start)
	}

	tokenType := LookupIdent(literal)
	if tokenType != IDENT {
		literal = strings.ToUpper(literal)
	}

	return l.newToken(tokenType, literal, start)
}

func (l *Lexer) readVariable(start int) Token {
	for l.ch == '@' {
		l.readChar()
	}

	if l.ch == '`' || l.ch == '\'' || l.ch == '"' {
		quote := l.ch
		l.readChar()

		nameStart := l.position
		for l.ch != quote && l.position < len(l.input) {
			l.readChar()
		}

		name := l.input[nameStart:l.position]
		l.readChar()

		return Token{Type: VARIABLE, Literal: name, Raw: l.input[start:l.position], Position: start}
	}

	name := l.readWord()
	for l.ch == '.' && isIdentifierLetter(l.peekChar()) {
		l.readChar()
		name += "." + l.readWord()
	}

	return Token{Type: VARIABLE, Literal: name, Raw: l.input[start:l.position], Position: start}
}

func (l *Lexer) readWord() string {
	position := l.position

	for isIdentifierLetter(l.ch) {
		l.readChar()
	}

	return l.input[position:l.position]
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '#' || (l.ch == '-' && l.peekChar() == '-' && l.isSpaceAt(l.readPosition+1)):
			for l.ch != '\n' && l.position < len(l.input) {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()

			for !(l.ch == '*' && l.peekChar() == '/') && l.position < len(l.input) {
				l.readChar()
			}

			l.readChar()
			l.readChar()
		default:
			return
		}
	}
}

func (l *Lexer) isSpaceAt(pos int) bool {
	if pos >= len(l.input) {
		return true
	}

	ch := l.input[pos]

	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isIdentifierLetter(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || especialChars[ch] || ch >= 0x80
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}
