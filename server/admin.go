package server

import (
	"errors"

	"github.com/truora/minisql"
)

var errNotInitialized = errors.New("server not initialized")

// EmulateFailure forces the following requests to fail with the condition.
func (s *Server) EmulateFailure(condition minisql.FailureCondition) {
	if s == nil || s.session == nil {
		return
	}

	s.session.EmulateFailure(condition)
}

// ClearTable removes all rows from a table keeping its schema.
func (s *Server) ClearTable(tableName string) error {
	if s == nil || s.session == nil {
		return errNotInitialized
	}

	return s.session.ClearTable(tableName)
}

// Reset drops every table of the session and clears emulated failures.
func (s *Server) Reset() error {
	if s == nil || s.session == nil {
		return errNotInitialized
	}

	s.session.Reset()

	return nil
}
