package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koustreak/xdb/internal/database/dbtest"
	"github.com/koustreak/xdb/internal/errs"
	"github.com/koustreak/xdb/internal/logger"
	"github.com/koustreak/xdb/internal/query"
	"github.com/koustreak/xdb/internal/querylog"
	"github.com/koustreak/xdb/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func companies(c dbtest.Call) (*dbtest.Rows, error) {
	switch c.Text {
	case "SELECT id, sym FROM companies ORDER BY id":
		return dbtest.NewRows("id", "sym").
			Add(int64(1), "AAPL").
			Add(int64(2), "GOOGL"), nil

	case "SELECT sector, sym FROM companies":
		return dbtest.NewRows("sector", "sym").
			Add("tech", "AAPL").
			Add("energy", "XOM").
			Add("tech", "GOOGL"), nil

	case "SELECT sym FROM companies WHERE id = :id":
		out := dbtest.NewRows("sym")
		if c.Arg("id") == int64(1) {
			out.Add("AAPL")
		}
		return out, nil

	case "INSERT INTO companies (sym) VALUES (:sym)":
		if c.Arg("sym") == "AAPL" {
			return nil, errs.New(errs.ErrKindConstraint, "duplicate key value violates unique constraint")
		}
		return &dbtest.Rows{Affected: 1}, nil

	case "DELETE FROM companies":
		return &dbtest.Rows{Affected: 2}, nil
	}
	return nil, errs.Newf(errs.ErrKindQueryFailed, "unexpected statement %q", c.Text)
}

type fixture struct {
	srv *Server
	drv *dbtest.Driver
	log *querylog.Log
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	drv := dbtest.New(companies)
	drv.LastID = int64(3)
	log := querylog.New()
	exec := query.New(drv, query.WithQueryLog(log))
	return &fixture{srv: New(exec, log, nil, opts...), drv: drv, log: log}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestFetch_All(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/fetch/all", StatementRequest{Statement: "SELECT id, sym FROM companies ORDER BY id"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"id":1,"sym":"AAPL"},{"id":2,"sym":"GOOGL"}],"found":true}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestFetch_KeyedModes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/fetch/assoc", StatementRequest{Statement: "SELECT id, sym FROM companies ORDER BY id"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"1":{"id":1,"sym":"AAPL"},"2":{"id":2,"sym":"GOOGL"}},"found":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/fetch/pairs", StatementRequest{Statement: "SELECT id, sym FROM companies ORDER BY id"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"1":"AAPL","2":"GOOGL"},"found":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/fetch/group", StatementRequest{Statement: "SELECT sector, sym FROM companies"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{
		"tech":[{"sector":"tech","sym":"AAPL"},{"sector":"tech","sym":"GOOGL"}],
		"energy":[{"sector":"energy","sym":"XOM"}]
	},"found":true}`, rec.Body.String())
}

func TestFetch_ColumnAndObject(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/fetch/column", StatementRequest{Statement: "SELECT id, sym FROM companies ORDER BY id"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[1,2],"found":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/fetch/object", StatementRequest{Statement: "SELECT id, sym FROM companies ORDER BY id"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"id":1,"sym":"AAPL"},{"id":2,"sym":"GOOGL"}],"found":true}`, rec.Body.String())
}

func TestFetch_ValueAndOne(t *testing.T) {
	f := newFixture(t)
	stmt := "SELECT sym FROM companies WHERE id = :id"

	rec := f.do(t, http.MethodPost, "/fetch/value", StatementRequest{Statement: stmt, Values: map[string]any{":id": 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":"AAPL","found":true}`, rec.Body.String())
	assert.Equal(t, int64(1), f.drv.Calls[0].Arg("id"), "JSON numbers bind as integers")

	rec = f.do(t, http.MethodPost, "/fetch/value", StatementRequest{Statement: stmt, Values: map[string]any{":id": "99"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null,"found":false}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/fetch/one", StatementRequest{Statement: stmt, Values: map[string]any{":id": "1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"sym":"AAPL"},"found":true}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/fetch/one", StatementRequest{Statement: stmt, Values: map[string]any{":id": 7}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null,"found":false}`, rec.Body.String())
}

func TestFetch_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		kind   string
	}{
		{
			name:   "unbindable value",
			path:   "/fetch/value",
			body:   StatementRequest{Statement: "SELECT sym FROM companies WHERE id = :id", Values: map[string]any{":id": []int{1, 2}}},
			status: http.StatusBadRequest,
			kind:   "invalid_input",
		},
		{
			name:   "unknown mode",
			path:   "/fetch/cursor",
			body:   StatementRequest{Statement: "SELECT id, sym FROM companies ORDER BY id"},
			status: http.StatusBadRequest,
			kind:   "invalid_input",
		},
		{
			name:   "missing statement",
			path:   "/fetch/all",
			body:   map[string]any{},
			status: http.StatusBadRequest,
			kind:   "invalid_input",
		},
		{
			name:   "driver error",
			path:   "/fetch/all",
			body:   StatementRequest{Statement: "SELECT * FROM nowhere"},
			status: http.StatusInternalServerError,
			kind:   "query_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decodeBody[ErrorResponse](t, rec).Kind)
		})
	}
}

func TestFetch_MalformedBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/fetch/all", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExec(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/exec", StatementRequest{
		Statement: "INSERT INTO companies (sym) VALUES (:sym)",
		Values:    map[string]any{":sym": "MSFT"},
		ReturnID:  true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows_affected":1,"last_insert_id":3}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/exec", StatementRequest{Statement: "DELETE FROM companies"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rows_affected":2}`, rec.Body.String())
	assert.Empty(t, f.drv.Calls[len(f.drv.Calls)-1].Bound, "no values runs the statement unprepared")

	rec = f.do(t, http.MethodPost, "/exec", StatementRequest{
		Statement: "INSERT INTO companies (sym) VALUES (:sym)",
		Values:    map[string]any{":sym": "AAPL"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "constraint_violation", decodeBody[ErrorResponse](t, rec).Kind)
}

func TestQueryLogRoutes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/log/active", map[string]bool{"active": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.log.Active())

	f.do(t, http.MethodPost, "/fetch/column", StatementRequest{Statement: "SELECT id, sym FROM companies ORDER BY id"})

	rec = f.do(t, http.MethodGet, "/log", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Active  bool             `json:"active"`
		Entries []querylog.Entry `json:"entries"`
	}](t, rec)
	assert.True(t, body.Active)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "FetchColumn", body.Entries[0].Function)

	rec = f.do(t, http.MethodDelete, "/log", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.log.Entries())

	rec = f.do(t, http.MethodPut, "/log/active", map[string]string{"enabled": "yes"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryLogRoutes_Disabled(t *testing.T) {
	srv := New(query.New(dbtest.New(nil)), nil, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/log", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubSchema struct {
	schema.Reader
	gotSchema string
}

func (s *stubSchema) ListTables(_ context.Context, name string) ([]string, error) {
	s.gotSchema = name
	return []string{"companies", "prices"}, nil
}

func (s *stubSchema) InspectTable(_ context.Context, name, table string) (*schema.TableInfo, error) {
	if table != "companies" {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found", name, table)
	}
	return &schema.TableInfo{Schema: name, Name: table, Columns: []schema.ColumnInfo{{Name: "id", DataType: "integer", IsPrimaryKey: true}}}, nil
}

func TestTables(t *testing.T) {
	stub := &stubSchema{}
	f := newFixture(t, WithSchema(stub))

	rec := f.do(t, http.MethodGet, "/tables?schema=markets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"schema":"markets","tables":["companies","prices"]}`, rec.Body.String())
	assert.Equal(t, "markets", stub.gotSchema)

	rec = f.do(t, http.MethodGet, "/tables/companies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[schema.TableInfo](t, rec)
	assert.Equal(t, "public", info.Schema)
	assert.True(t, info.Columns[0].IsPrimaryKey)

	rec = f.do(t, http.MethodGet, "/tables/trades", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogging(t *testing.T) {
	var buf bytes.Buffer
	lg := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})
	srv := New(query.New(dbtest.New(companies)), nil, lg)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	out := buf.String()
	assert.Contains(t, out, `"message":"http request"`)
	assert.Contains(t, out, `"path":"/healthz"`)
	assert.Contains(t, out, `"status":200`)
}
