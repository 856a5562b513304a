package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/truora/minisql"
)

type response struct {
	status int
	body   map[string]interface{}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	session, err := minisql.NewSession("/shop")
	require.NoError(t, err)

	srv := NewServer(session)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return srv, ts
}

func call(t *testing.T, ts *httptest.Server, op string, input interface{}) response {
	t.Helper()

	payload, err := json.Marshal(input)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewReader(payload))
	require.NoError(t, err)

	req.Header.Set(TargetHeader, "MiniSQL."+op)

	res, err := ts.Client().Do(req)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, res.Body.Close())
	}()

	out := response{status: res.StatusCode, body: map[string]interface{}{}}

	if res.Header.Get("Content-Type") == contentType {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out.body))
	}

	return out
}

func makeShop(t *testing.T, ts *httptest.Server) {
	t.Helper()

	res := call(t, ts, "CreateTable", CreateTableInput{
		Table: "users",
		Definitions: []string{
			"id int not null auto_increment primary key",
			"email varchar(100) unique",
			"name varchar(50) not null",
			"balance decimal(10,2) default 0",
		},
	})
	require.Equal(t, http.StatusOK, res.status, res.body)

	res = call(t, ts, "CreateTable", CreateTableInput{
		Table: "orders",
		Definitions: []string{
			"id int not null auto_increment primary key",
			"user_id int not null",
			"total decimal(8,2) not null",
		},
	})
	require.Equal(t, http.StatusOK, res.status, res.body)
}

func errorCode(res response) float64 {
	code, _ := res.body["code"].(float64)

	return code
}

func TestServerCRUD(t *testing.T) {
	c := require.New(t)

	_, ts := newTestServer(t)
	makeShop(t, ts)

	res := call(t, ts, "DescribeTable", DescribeTableInput{Table: "users"})
	c.Equal(http.StatusOK, res.status)

	table := res.body["table"].(map[string]interface{})
	c.Equal("users", table["Name"])
	c.Equal([]interface{}{"id", "email", "name", "balance"}, table["Columns"])

	res = call(t, ts, "Insert", InsertInput{
		Table:  "users",
		Values: map[string]interface{}{"email": "ash@kanto.com", "name": "Ash", "balance": json.Number("10.50")},
	})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(1), res.body["rowsAffected"])
	c.Equal(float64(1), res.body["lastInsertId"])

	res = call(t, ts, "Insert", InsertInput{
		Table:  "users",
		Values: map[string]interface{}{"email": "misty@kanto.com", "name": "Misty"},
	})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(2), res.body["lastInsertId"])

	res = call(t, ts, "Insert", InsertInput{
		Table:  "users",
		Values: map[string]interface{}{"email": "ash@kanto.com", "name": "Ash"},
	})
	c.Equal(http.StatusBadRequest, res.status)
	c.Equal("MySQLError", res.body["__type"])
	c.Equal(float64(1062), errorCode(res))

	res = call(t, ts, "Select", SelectInput{Table: "users", Filter: "users.balance > ?", Params: []interface{}{5}})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(1), res.body["count"])

	rows := res.body["rows"].([]interface{})
	c.Equal("Ash", rows[0].(map[string]interface{})["users.name"])
	c.Equal("10.50", rows[0].(map[string]interface{})["users.balance"])

	res = call(t, ts, "Update", UpdateInput{
		Table:   "users",
		Filter:  "id = ?",
		Updates: []Assignment{{Column: "name", Expression: "UPPER(name)"}},
		Params:  []interface{}{2},
	})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(1), res.body["rowsAffected"])

	res = call(t, ts, "InsertOnDuplicate", InsertOnDuplicateInput{
		Table:   "users",
		Values:  map[string]interface{}{"email": "misty@kanto.com", "name": "Misty"},
		Updates: []Assignment{{Column: "balance", Expression: "balance + ?"}},
		Params:  []interface{}{json.Number("2.25")},
	})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(2), res.body["rowsAffected"])

	res = call(t, ts, "Select", SelectInput{Table: "users", Filter: "email = 'misty@kanto.com'"})
	c.Equal(http.StatusOK, res.status, res.body)

	rows = res.body["rows"].([]interface{})
	c.Equal("MISTY", rows[0].(map[string]interface{})["users.name"])
	c.Equal("2.25", rows[0].(map[string]interface{})["users.balance"])

	res = call(t, ts, "Delete", DeleteInput{Table: "users", Filter: "name = ?", Params: []interface{}{"misty"}})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(1), res.body["rowsAffected"])

	res = call(t, ts, "DropTable", DropTableInput{Table: "users"})
	c.Equal(http.StatusOK, res.status, res.body)

	res = call(t, ts, "DescribeTable", DescribeTableInput{Table: "users"})
	c.Equal(http.StatusBadRequest, res.status)
	c.Equal(float64(1146), errorCode(res))
}

func TestServerEvaluate(t *testing.T) {
	c := require.New(t)

	_, ts := newTestServer(t)

	res := call(t, ts, "Evaluate", EvaluateInput{Expression: "? + 1", Params: []interface{}{41}})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(42), res.body["value"])

	res = call(t, ts, "Evaluate", EvaluateInput{
		Expression: "CONCAT(users.name, '!')",
		Row:        map[string]interface{}{"users.name": "Brock"},
	})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal("Brock!", res.body["value"])

	res = call(t, ts, "Evaluate", EvaluateInput{Expression: "NULL + 1"})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Contains(res.body, "value")
	c.Nil(res.body["value"])

	res = call(t, ts, "Evaluate", EvaluateInput{Expression: "1 +"})
	c.Equal(http.StatusBadRequest, res.status)
	c.Equal(float64(1064), errorCode(res))
}

func TestServerJoin(t *testing.T) {
	c := require.New(t)

	_, ts := newTestServer(t)
	makeShop(t, ts)

	for _, name := range []string{"Ash", "Brock"} {
		res := call(t, ts, "Insert", InsertInput{Table: "users", Values: map[string]interface{}{"name": name}})
		c.Equal(http.StatusOK, res.status, res.body)
	}

	for _, total := range []string{"12.50", "3.00"} {
		res := call(t, ts, "Insert", InsertInput{
			Table:  "orders",
			Values: map[string]interface{}{"user_id": 1, "total": json.Number(total)},
		})
		c.Equal(http.StatusOK, res.status, res.body)
	}

	res := call(t, ts, "Join", JoinInput{
		Table:      "users",
		Type:       "left join",
		RightTable: "orders",
		On:         "users.id = orders.user_id",
	})
	c.Equal(http.StatusOK, res.status, res.body)
	c.Equal(float64(3), res.body["count"])

	rows := res.body["rows"].([]interface{})
	c.Equal("Brock", rows[2].(map[string]interface{})["users.name"])
	c.Nil(rows[2].(map[string]interface{})["orders.total"])

	res = call(t, ts, "Join", JoinInput{Table: "users", Type: "full join", RightTable: "orders"})
	c.Equal(http.StatusBadRequest, res.status)
	c.Equal(float64(1064), errorCode(res))
}

func TestServerFailures(t *testing.T) {
	c := require.New(t)

	srv, ts := newTestServer(t)
	makeShop(t, ts)

	srv.EmulateFailure(minisql.FailureConditionDeadlock)

	res := call(t, ts, "Select", SelectInput{Table: "users"})
	c.Equal(http.StatusBadRequest, res.status)
	c.Equal(float64(1213), errorCode(res))

	srv.EmulateFailure(minisql.FailureConditionConnectionLost)

	res = call(t, ts, "Select", SelectInput{Table: "users"})
	c.Equal(http.StatusInternalServerError, res.status)
	c.Equal("ConnectionLost", res.body["__type"])

	srv.EmulateFailure(minisql.FailureConditionNone)

	res = call(t, ts, "Insert", InsertInput{Table: "users", Values: map[string]interface{}{"name": "Ash"}})
	c.Equal(http.StatusOK, res.status, res.body)

	c.NoError(srv.ClearTable("users"))

	res = call(t, ts, "Select", SelectInput{Table: "users"})
	c.Equal(float64(0), res.body["count"])

	c.NoError(srv.Reset())

	res = call(t, ts, "DescribeTable", DescribeTableInput{Table: "users"})
	c.Equal(float64(1146), errorCode(res))

	var nilServer *Server
	c.ErrorIs(nilServer.Reset(), errNotInitialized)
}

func TestServerBadRequests(t *testing.T) {
	c := require.New(t)

	_, ts := newTestServer(t)

	res, err := ts.Client().Get(ts.URL)
	c.NoError(err)
	c.NoError(res.Body.Close())
	c.Equal(http.StatusMethodNotAllowed, res.StatusCode)

	out := call(t, ts, "Scan", map[string]interface{}{})
	c.Equal(http.StatusBadRequest, out.status)

	req, err := http.NewRequest(http.MethodPost, ts.URL, bytes.NewBufferString("{"))
	c.NoError(err)
	req.Header.Set(TargetHeader, "Select")

	res, err = ts.Client().Do(req)
	c.NoError(err)
	c.NoError(res.Body.Close())
	c.Equal(http.StatusBadRequest, res.StatusCode)
}

func TestServerMetrics(t *testing.T) {
	c := require.New(t)

	srv, ts := newTestServer(t)

	reg := prometheus.NewRegistry()
	c.NoError(srv.Register(reg))
	c.Error(srv.Register(reg))

	call(t, ts, "Evaluate", EvaluateInput{Expression: "1"})
	call(t, ts, "Evaluate", EvaluateInput{Expression: "2"})
	call(t, ts, "Evaluate", EvaluateInput{Expression: "1 +"})
	call(t, ts, "Scan", map[string]interface{}{})

	c.Equal(float64(2), testutil.ToFloat64(srv.requests.WithLabelValues("Evaluate", "200")))
	c.Equal(float64(1), testutil.ToFloat64(srv.requests.WithLabelValues("Evaluate", "400")))
	c.Equal(float64(1), testutil.ToFloat64(srv.requests.WithLabelValues("unknown", "400")))
	c.Equal(3, testutil.CollectAndCount(srv.requests))
}
