package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/truora/minisql"
	"github.com/truora/minisql/core"
	"github.com/truora/minisql/interpreter/language"
)

// TargetHeader selects the operation, the last dot separated part is used so
// both "Select" and "MiniSQL.Select" are accepted.
const TargetHeader = "X-Minisql-Target"

const contentType = "application/json"

// Server implements http.Handler exposing a session as a JSON API.
type Server struct {
	session  *minisql.Session
	logger   logrus.FieldLogger
	requests *prometheus.CounterVec
}

// NewServer creates an HTTP handler over the session.
func NewServer(session *minisql.Session) *Server {
	return &Server{
		session:  session,
		logger:   logrus.StandardLogger(),
		requests: newRequestCounter(),
	}
}

// WithLogger replaces the logger used for transport errors.
func (s *Server) WithLogger(logger logrus.FieldLogger) *Server {
	s.logger = logger

	return s
}

// Session returns the session served by the handler.
func (s *Server) Session() *minisql.Session {
	return s.session
}

// ServeHTTP dispatches the JSON requests based on X-Minisql-Target.
//
//gocyclo:ignore
//gocognit:ignore
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.observe("", http.StatusMethodNotAllowed)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	defer func() {
		err := r.Body.Close()
		if err != nil {
			s.logger.WithError(err).Warn("error closing body")
		}
	}()

	op := ""

	target := r.Header.Get(TargetHeader)
	if target != "" {
		parts := strings.Split(target, ".")
		op = parts[len(parts)-1]
	}

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	var (
		resp interface{}
		err  error
	)

	switch op {
	case "CreateTable":
		var input CreateTableInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = s.createTable(&input)
		}
	case "DropTable":
		var input DropTableInput
		if err = decoder.Decode(&input); err == nil {
			err = s.session.DropTable(input.Table)
			resp = struct{}{}
		}
	case "DescribeTable":
		var input DescribeTableInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = s.describeTable(&input)
		}
	case "Insert":
		var input InsertInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = writeOutput(s.session.Insert(input.Table, nativeMap(input.Values)))
		}
	case "InsertOnDuplicate":
		var input InsertOnDuplicateInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = writeOutput(s.session.InsertOnDuplicate(input.Table, nativeMap(input.Values), assignments(input.Updates), nativeList(input.Params)...))
		}
	case "Select":
		var input SelectInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = selectOutput(s.session.SelectLimit(input.Table, input.Filter, input.Limit, nativeList(input.Params)...))
		}
	case "Update":
		var input UpdateInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = writeOutput(s.session.Update(input.Table, input.Filter, assignments(input.Updates), nativeList(input.Params)...))
		}
	case "Delete":
		var input DeleteInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = writeOutput(s.session.Delete(input.Table, input.Filter, nativeList(input.Params)...))
		}
	case "Evaluate":
		var input EvaluateInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = s.evaluate(&input)
		}
	case "Join":
		var input JoinInput
		if err = decoder.Decode(&input); err == nil {
			resp, err = s.join(&input)
		}
	default:
		s.observe("", http.StatusBadRequest)
		http.Error(w, "unsupported operation", http.StatusBadRequest)

		return
	}

	if err != nil {
		s.observe(op, writeError(w, err))
		return
	}

	w.Header().Set("Content-Type", contentType)

	if err := encoder.Encode(resp); err != nil {
		s.observe(op, http.StatusInternalServerError)
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	s.observe(op, http.StatusOK)
}

func (s *Server) createTable(input *CreateTableInput) (*DescribeTableOutput, error) {
	if err := s.session.CreateTable(input.Table, input.Definitions...); err != nil {
		return nil, err
	}

	return s.describeTable(&DescribeTableInput{Table: input.Table})
}

func (s *Server) describeTable(input *DescribeTableInput) (*DescribeTableOutput, error) {
	desc, err := s.session.DescribeTable(input.Table)
	if err != nil {
		return nil, err
	}

	return &DescribeTableOutput{Table: desc}, nil
}

func (s *Server) evaluate(input *EvaluateInput) (*EvaluateOutput, error) {
	val, err := s.session.Evaluate(input.Expression, nativeMap(input.Row), nativeList(input.Params)...)
	if err != nil {
		return nil, err
	}

	return &EvaluateOutput{Value: val}, nil
}

func (s *Server) join(input *JoinInput) (*SelectOutput, error) {
	left, err := s.session.Select(input.Table, "")
	if err != nil {
		return nil, err
	}

	return selectOutput(s.session.Join(left, input.Type, input.RightTable, input.On, nativeList(input.Params)...))
}

func writeOutput(res sql.Result, err error) (*WriteOutput, error) {
	if err != nil {
		return nil, err
	}

	out := &WriteOutput{}
	out.RowsAffected, _ = res.RowsAffected()
	out.LastInsertID, _ = res.LastInsertId()

	return out, nil
}

func selectOutput(ds language.Dataset, err error) (*SelectOutput, error) {
	if err != nil {
		return nil, err
	}

	out := &SelectOutput{Rows: make([]map[string]interface{}, 0, len(ds)), Count: len(ds)}
	for _, row := range ds {
		out.Rows = append(out.Rows, row.ToNative())
	}

	return out, nil
}

func assignments(in []Assignment) []core.Assignment {
	out := make([]core.Assignment, 0, len(in))
	for _, a := range in {
		out = append(out, core.Assignment{Column: a.Column, Expression: a.Expression})
	}

	return out
}

// nativeValue turns integral JSON numbers into int64, other numbers are kept
// as their decimal text
func nativeValue(v interface{}) interface{} {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}

	if i, err := n.Int64(); err == nil {
		return i
	}

	return n.String()
}

func nativeMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}

	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = nativeValue(v)
	}

	return out
}

func nativeList(in []interface{}) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, v := range in {
		out = append(out, nativeValue(v))
	}

	return out
}

// writeError encodes the error and returns the status code sent
func writeError(w http.ResponseWriter, err error) int {
	type errorBody struct {
		Type    string `json:"__type"`
		Code    uint16 `json:"code,omitempty"`
		Message string `json:"message"`
	}

	status := http.StatusBadRequest
	body := errorBody{Type: "InternalFailure", Message: err.Error()}

	var mysqlErr *mysql.MySQLError

	switch {
	case errors.As(err, &mysqlErr):
		body.Type = "MySQLError"
		body.Code = mysqlErr.Number
		body.Message = mysqlErr.Message
	case errors.Is(err, mysql.ErrInvalidConn):
		body.Type = "ConnectionLost"
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)

	return status
}
