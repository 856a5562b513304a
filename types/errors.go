package types

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers reported by the engine.
const (
	// CodeParseError ER_PARSE_ERROR
	CodeParseError uint16 = 1064
	// CodeBadField ER_BAD_FIELD_ERROR
	CodeBadField uint16 = 1054
	// CodeWrongArguments ER_WRONG_ARGUMENTS
	CodeWrongArguments uint16 = 1210
	// CodeNotSupportedYet ER_NOT_SUPPORTED_YET
	CodeNotSupportedYet uint16 = 1235
	// CodeOperandColumns ER_OPERAND_COLUMNS
	CodeOperandColumns uint16 = 1241
	// CodeSubqueryNoOneRow ER_SUBQUERY_NO_1_ROW
	CodeSubqueryNoOneRow uint16 = 1242
	// CodeFunctionNotExists ER_SP_DOES_NOT_EXIST
	CodeFunctionNotExists uint16 = 1305
	// CodeDivisionByZero ER_DIVISION_BY_ZERO
	CodeDivisionByZero uint16 = 1365
	// CodeWrongParamCount ER_WRONG_PARAMCOUNT_TO_NATIVE_FCT
	CodeWrongParamCount uint16 = 1582
	// CodeNonUniqError ER_NON_UNIQ_ERROR
	CodeNonUniqError uint16 = 1052
	// CodeRegexpError ER_REGEXP_ERROR
	CodeRegexpError uint16 = 1139
	// CodeTruncatedWrongValue ER_TRUNCATED_WRONG_VALUE
	CodeTruncatedWrongValue uint16 = 1292
	// CodeDataOutOfRange ER_DATA_OUT_OF_RANGE
	CodeDataOutOfRange uint16 = 1690

	// storage errors

	// CodeNoDB ER_NO_DB_ERROR
	CodeNoDB uint16 = 1046
	// CodeBadTable ER_BAD_TABLE_ERROR
	CodeBadTable uint16 = 1051
	// CodeMultiplePriKey ER_MULTIPLE_PRI_KEY
	CodeMultiplePriKey uint16 = 1068
	// CodeTableMustHaveColumns ER_TABLE_MUST_HAVE_COLUMNS
	CodeTableMustHaveColumns uint16 = 1113
	// CodeTableExists ER_TABLE_EXISTS_ERROR
	CodeTableExists uint16 = 1050
	// CodeNoSuchTable ER_NO_SUCH_TABLE
	CodeNoSuchTable uint16 = 1146
	// CodeBadNull ER_BAD_NULL_ERROR
	CodeBadNull uint16 = 1048
	// CodeDupEntry ER_DUP_ENTRY
	CodeDupEntry uint16 = 1062
	// CodeNoDefaultForField ER_NO_DEFAULT_FOR_FIELD
	CodeNoDefaultForField uint16 = 1364
	// CodeTruncatedWrongValueForField ER_TRUNCATED_WRONG_VALUE_FOR_FIELD
	CodeTruncatedWrongValueForField uint16 = 1366
	// CodeDupFieldName ER_DUP_FIELDNAME
	CodeDupFieldName uint16 = 1060
	// CodeDupKeyName ER_DUP_KEYNAME
	CodeDupKeyName uint16 = 1061
	// CodeKeyColumnDoesNotExist ER_KEY_COLUMN_DOES_NOT_EXITS
	CodeKeyColumnDoesNotExist uint16 = 1072

	// emulated failures

	// CodeLockWaitTimeout ER_LOCK_WAIT_TIMEOUT
	CodeLockWaitTimeout uint16 = 1205
	// CodeLockDeadlock ER_LOCK_DEADLOCK
	CodeLockDeadlock uint16 = 1213
)

var (
	// ErrParse matches every ParseError with errors.Is
	ErrParse = errors.New("parse error")
	// ErrRuntime matches every RuntimeError with errors.Is
	ErrRuntime = errors.New("runtime error")
)

// An Error carries a MySQL error number and a message. The concrete types are
// ParseError and RuntimeError; both unwrap to a *mysql.MySQLError so a driver
// facade can hand them to callers exactly as go-sql-driver would.
type Error interface {
	error

	Code() uint16
	Message() string
}

// SprintError returns a string of the formatted error code.
func SprintError(kind string, code uint16, message, extra string) string {
	msg := fmt.Sprintf("%s %d: %s", kind, code, message)
	if extra != "" {
		msg = fmt.Sprintf("%s\n\t%s", msg, extra)
	}

	return msg
}

// ParseError is raised for malformed expression syntax. It is always fatal to
// the statement being parsed.
type ParseError struct {
	message  string
	near     string
	position int
}

// NewParseError returns a ParseError located at the given token.
func NewParseError(near string, position int, format string, a ...interface{}) *ParseError {
	return &ParseError{
		message:  fmt.Sprintf(format, a...),
		near:     near,
		position: position,
	}
}

// Error returns the string representation of the error.
func (e *ParseError) Error() string {
	return SprintError("parse error", e.Code(), e.message, fmt.Sprintf("near %q at position %d", e.near, e.position))
}

// Code returns the MySQL error number
func (e *ParseError) Code() uint16 { return CodeParseError }

// Message returns the error details message.
func (e *ParseError) Message() string { return e.message }

// Near returns the raw text of the offending token
func (e *ParseError) Near() string { return e.near }

// Position returns the offset of the offending token in the source text
func (e *ParseError) Position() int { return e.position }

// Is reports ErrParse membership
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Unwrap returns the server-side representation of the error
func (e *ParseError) Unwrap() error {
	return &mysql.MySQLError{
		Number:  CodeParseError,
		Message: fmt.Sprintf("You have an error in your SQL syntax; %s near '%s'", e.message, e.near),
	}
}

// RuntimeError is raised while evaluating an expression. It is always fatal to
// the statement being evaluated.
type RuntimeError struct {
	code    uint16
	message string
}

// NewRuntimeError returns a RuntimeError with the given MySQL error number
func NewRuntimeError(code uint16, format string, a ...interface{}) *RuntimeError {
	return &RuntimeError{code: code, message: fmt.Sprintf(format, a...)}
}

// Error returns the string representation of the error.
func (e *RuntimeError) Error() string {
	return SprintError("runtime error", e.code, e.message, "")
}

// Code returns the MySQL error number
func (e *RuntimeError) Code() uint16 { return e.code }

// Message returns the error details message.
func (e *RuntimeError) Message() string { return e.message }

// Is reports ErrRuntime membership
func (e *RuntimeError) Is(target error) bool { return target == ErrRuntime }

// Unwrap returns the server-side representation of the error
func (e *RuntimeError) Unwrap() error {
	return &mysql.MySQLError{Number: e.code, Message: e.message}
}

// ToMySQLError converts any engine error into the error a MySQL server would
// report. Errors that are not engine errors are returned untouched.
func ToMySQLError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr
	}

	return err
}
