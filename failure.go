package minisql

import (
	"github.com/go-sql-driver/mysql"
	"github.com/truora/minisql/types"
)

// FailureCondition describe the failure condition to emulate.
type FailureCondition string

const (
	// FailureConditionNone emulates the system working normally.
	FailureConditionNone FailureCondition = "none"
	// FailureConditionConnectionLost emulates a dropped server connection.
	FailureConditionConnectionLost FailureCondition = "connection_lost"
	// FailureConditionLockWaitTimeout emulates a row lock that was never released.
	FailureConditionLockWaitTimeout FailureCondition = "lock_wait_timeout"
	// FailureConditionDeadlock emulates InnoDB picking the statement as deadlock victim.
	FailureConditionDeadlock FailureCondition = "deadlock"
)

var emulatingErrors = map[FailureCondition]error{
	FailureConditionNone:           nil,
	FailureConditionConnectionLost: mysql.ErrInvalidConn,
	FailureConditionLockWaitTimeout: &mysql.MySQLError{
		Number:  types.CodeLockWaitTimeout,
		Message: "Lock wait timeout exceeded; try restarting transaction",
	},
	FailureConditionDeadlock: &mysql.MySQLError{
		Number:  types.CodeLockDeadlock,
		Message: "Deadlock found when trying to get lock; try restarting transaction",
	},
}

// EmulateFailure forces every following statement to fail with the error the
// driver reports for the condition, until FailureConditionNone is set.
func (s *Session) EmulateFailure(condition FailureCondition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forceFailureErr = emulatingErrors[condition]
}
