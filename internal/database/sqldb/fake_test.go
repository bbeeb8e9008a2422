package sqldb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/koustreak/xdb/internal/database"
)

// fakeAnswer is what the fake server replies to one statement.
type fakeAnswer struct {
	columns  []string
	types    []string
	data     [][]driver.Value
	affected int64
	lastID   int64
	err      error
}

type fakeCall struct {
	query string
	args  []driver.Value
}

// fakeServer is an in-memory database/sql/driver.Connector scripted by a
// handler.
type fakeServer struct {
	mu      sync.Mutex
	handler func(query string, args []driver.Value) fakeAnswer
	prepErr error

	prepared []string
	calls    []fakeCall
	opened   int
}

func (f *fakeServer) Connect(context.Context) (driver.Conn, error) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	return &fakeConn{srv: f}, nil
}

func (f *fakeServer) Driver() driver.Driver { return fakeDriver{f} }

type fakeDriver struct{ srv *fakeServer }

func (d fakeDriver) Open(string) (driver.Conn, error) { return d.srv.Connect(context.Background()) }

func (f *fakeServer) answer(query string, args []driver.Value) fakeAnswer {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{query, args})
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return fakeAnswer{}
	}
	return h(query, args)
}

type fakeConn struct{ srv *fakeServer }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	if c.srv.prepErr != nil {
		return nil, c.srv.prepErr
	}
	c.srv.mu.Lock()
	c.srv.prepared = append(c.srv.prepared, query)
	c.srv.mu.Unlock()
	return &fakeStmt{srv: c.srv, query: query}, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) { return nil, errors.New("fake: no transactions") }

type fakeStmt struct {
	srv   *fakeServer
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	a := s.srv.answer(s.query, args)
	if a.err != nil {
		return nil, a.err
	}
	return fakeResult{a.affected, a.lastID}, nil
}

func (s *fakeStmt) Query(args []driver.Value) (driver.Rows, error) {
	a := s.srv.answer(s.query, args)
	if a.err != nil {
		return nil, a.err
	}
	return &fakeRows{answer: a}, nil
}

type fakeResult struct{ affected, lastID int64 }

func (r fakeResult) LastInsertId() (int64, error) { return r.lastID, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeRows struct {
	answer fakeAnswer
	pos    int
}

func (r *fakeRows) Columns() []string { return r.answer.columns }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.answer.data) {
		return io.EOF
	}
	copy(dest, r.answer.data[r.pos])
	r.pos++
	return nil
}

func (r *fakeRows) ColumnTypeDatabaseTypeName(i int) string {
	if i < len(r.answer.types) {
		return r.answer.types[i]
	}
	return "VARCHAR"
}

// newFakeDriver wraps a fake server in a sqldb Driver of the given dialect.
func newFakeDriver(t *testing.T, name database.DriverName, h func(string, []driver.Value) fakeAnswer) (*Driver, *fakeServer) {
	t.Helper()
	srv := &fakeServer{handler: h}
	db := sqlx.NewDb(sql.OpenDB(srv), "fake")
	t.Cleanup(func() { db.Close() })

	d, err := Wrap(db, name)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	return d, srv
}
