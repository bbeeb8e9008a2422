package query

import (
	"context"
	"errors"
	"testing"

	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/database/dbtest"
	"github.com/koustreak/xdb/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsDriver(rows *dbtest.Rows) *dbtest.Driver {
	return dbtest.New(func(dbtest.Call) (*dbtest.Rows, error) { return rows, nil })
}

func TestFetchAll_QueryOrder(t *testing.T) {
	e, drv, _ := newExecutor(t)

	rows, err := e.FetchAll(context.Background(), "SELECT id, sym FROM companies", nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, map[string]any{"id": int64(1), "sym": "AAPL"}, rows[0].Map())
	assert.Equal(t, map[string]any{"id": int64(2), "sym": "GOOGL"}, rows[1].Map())
	assert.True(t, drv.Results[0].Closed)
}

func TestFetchAll_Empty(t *testing.T) {
	e := New(rowsDriver(dbtest.NewRows("id")))

	rows, err := e.FetchAll(context.Background(), "SELECT id FROM companies", nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFetchAllWith_TransformOncePerRowInOrder(t *testing.T) {
	e, _, _ := newExecutor(t)

	var seen []int64
	doubled, err := FetchAllWith(context.Background(), e, "SELECT id, sym FROM companies", nil,
		func(row database.Row) (database.Row, error) {
			id, _ := row.Get("id")
			seen = append(seen, id.(int64))
			return row.With("id", id.(int64)*2), nil
		})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, seen)
	require.Len(t, doubled, 2)
	assert.Equal(t, int64(2), doubled[0].At(0))
	assert.Equal(t, "AAPL", doubled[0].At(1))
	assert.Equal(t, int64(4), doubled[1].At(0))
	assert.Equal(t, "GOOGL", doubled[1].At(1))
}

func TestFetchAllWith_TransformErrorAborts(t *testing.T) {
	e, drv, _ := newExecutor(t)
	stop := errors.New("stop")

	calls := 0
	out, err := FetchAllWith(context.Background(), e, "SELECT id, sym FROM companies", nil,
		func(database.Row) (string, error) {
			calls++
			return "", stop
		})
	assert.Nil(t, out)
	assert.Same(t, stop, err)
	assert.Equal(t, 1, calls)
	assert.True(t, drv.Results[0].Closed)
}

func TestFetchAllWith_NilTransformNeedsMatchingType(t *testing.T) {
	e, _, _ := newExecutor(t)

	_, err := FetchAllWith[string](context.Background(), e, "SELECT id, sym FROM companies", nil, nil)
	assert.True(t, errs.IsInvalidInput(err))

	rows, err := FetchAllWith[any](context.Background(), e, "SELECT id, sym FROM companies", nil, nil)
	require.NoError(t, err)
	assert.IsType(t, database.Row{}, rows[0])
}

func TestFetchAssoc_KeyedByFirstColumn(t *testing.T) {
	e, _, table := newExecutor(t)
	ctx := context.Background()

	got, err := e.FetchAssoc(ctx, "SELECT sym, id FROM companies", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got["AAPL"].At(1))
	assert.Equal(t, int64(2), got["GOOGL"].At(1))

	table.rows = append(table.rows, []any{int64(3), "AAPL", "tech"})

	got, err = e.FetchAssoc(ctx, "SELECT sym, id FROM companies", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got["AAPL"].At(1), "later row wins")
}

func TestFetchAssoc_RejectDuplicates(t *testing.T) {
	e, _, table := newExecutor(t, WithDuplicateKeys(RejectDuplicates))
	table.rows = append(table.rows, []any{int64(3), "AAPL", "tech"})

	got, err := e.FetchAssoc(context.Background(), "SELECT sym, id FROM companies", nil)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "AAPL")
}

func TestFetchAssoc_BytesKeyBecomesString(t *testing.T) {
	e := New(rowsDriver(dbtest.NewRows("sym", "id").Add([]byte("MSFT"), int64(9))))

	got, err := e.FetchAssoc(context.Background(), "SELECT sym, id FROM companies", nil)
	require.NoError(t, err)
	assert.Contains(t, got, "MSFT")
}

func TestFetchAssoc_UnhashableKey(t *testing.T) {
	e := New(rowsDriver(dbtest.NewRows("tags").Add([]string{"a"})))

	_, err := e.FetchAssoc(context.Background(), "SELECT tags FROM companies", nil)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestFetchAssocWith(t *testing.T) {
	e, _, _ := newExecutor(t)

	got, err := FetchAssocWith(context.Background(), e, "SELECT sym, id FROM companies", nil,
		func(row database.Row) (int64, error) { return row.At(1).(int64), nil })
	require.NoError(t, err)
	assert.Equal(t, map[any]int64{"AAPL": 1, "GOOGL": 2}, got)
}

func TestFetchOne_ShortCircuits(t *testing.T) {
	e, drv, _ := newExecutor(t)

	row, ok, err := e.FetchOne(context.Background(), "SELECT id, sym FROM companies", nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAPL", row.At(1))
	assert.Equal(t, 1, drv.Results[0].Reads)
	assert.True(t, drv.Results[0].Closed)
}

func TestFetchOne_Absent(t *testing.T) {
	e := New(rowsDriver(dbtest.NewRows("id")))

	row, ok, err := e.FetchOne(context.Background(), "SELECT id FROM companies", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, row.Len())
}

func TestFetchOneWith(t *testing.T) {
	e, _, _ := newExecutor(t)

	sym, ok, err := FetchOneWith(context.Background(), e, "SELECT id, sym FROM companies", nil,
		func(row database.Row) (string, error) {
			v, _ := row.Get("sym")
			return v.(string), nil
		})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "AAPL", sym)
}

func TestFetchValue_ZeroRowsIsAbsent(t *testing.T) {
	e, _, _ := newExecutor(t)

	v, ok, err := e.FetchValue(context.Background(), "SELECT id FROM companies WHERE sym = :sym", bind.Values{":sym": "NOPE"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestFetchValue_NullIsPresent(t *testing.T) {
	e := New(rowsDriver(dbtest.NewRows("deleted_at").Add(nil)))

	v, ok, err := e.FetchValue(context.Background(), "SELECT deleted_at FROM companies", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestFetchValue_ZeroColumns(t *testing.T) {
	e := New(rowsDriver(dbtest.NewRows().Add()))

	_, _, err := e.FetchValue(context.Background(), "DO NOTHING", nil)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestFetchValue_IntegerRoundTrip(t *testing.T) {
	e, _, _ := newExecutor(t)
	ctx := context.Background()

	_, err := e.RowsAffected(ctx, "INSERT INTO companies (id, sym, sector) VALUES (:id, :sym, :sector)", bind.Values{
		":id": "42", ":sym": "NVDA", ":sector": "tech",
	})
	require.NoError(t, err)

	v, ok, err := e.FetchValue(ctx, "SELECT id FROM companies WHERE sym = :sym", bind.Values{":sym": "NVDA"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
}

func TestFetchValueWith(t *testing.T) {
	e, drv, _ := newExecutor(t)

	n, ok, err := FetchValueWith(context.Background(), e, "SELECT id, sym FROM companies", nil,
		func(v any) (int, error) { return int(v.(int64)) * 10, nil })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, n)
	assert.Equal(t, 1, drv.Results[0].Reads)
}

func TestFetchColumn(t *testing.T) {
	e, _, _ := newExecutor(t)

	syms, err := e.FetchColumn(context.Background(), "SELECT sym, id FROM companies", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"AAPL", "GOOGL"}, syms)
}

func TestFetchColumnWith(t *testing.T) {
	e, _, _ := newExecutor(t)

	ids, err := FetchColumnWith(context.Background(), e, "SELECT id, sym FROM companies", nil,
		func(v any) (int64, error) { return v.(int64), nil })
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestFetchGroup(t *testing.T) {
	rows := dbtest.NewRows("sector", "sym").
		Add("tech", "AAPL").
		Add("energy", "XOM").
		Add("tech", "GOOGL")
	e := New(rowsDriver(rows))

	got, err := e.FetchGroup(context.Background(), "SELECT sector, sym FROM companies", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Len(t, got["tech"], 2)
	assert.Equal(t, "AAPL", got["tech"][0].At(1))
	assert.Equal(t, "GOOGL", got["tech"][1].At(1))
	assert.Len(t, got["energy"], 1)
}

func TestFetchGroupWith(t *testing.T) {
	rows := dbtest.NewRows("sector", "sym").
		Add("tech", "AAPL").
		Add("tech", "GOOGL")
	e := New(rowsDriver(rows))

	got, err := FetchGroupWith(context.Background(), e, "SELECT sector, sym FROM companies", nil,
		func(row database.Row) (string, error) { return row.At(1).(string), nil })
	require.NoError(t, err)
	assert.Equal(t, map[any][]string{"tech": {"AAPL", "GOOGL"}}, got)
}

func TestFetchPairs(t *testing.T) {
	e, _, _ := newExecutor(t)

	got, err := e.FetchPairs(context.Background(), "SELECT sym, id FROM companies", nil)
	require.NoError(t, err)
	assert.Equal(t, map[any]any{"AAPL": int64(1), "GOOGL": int64(2)}, got)
}

func TestFetchPairs_NeedsTwoColumns(t *testing.T) {
	e := New(rowsDriver(dbtest.NewRows("sym").Add("AAPL")))

	_, err := e.FetchPairs(context.Background(), "SELECT sym FROM companies", nil)
	assert.True(t, errs.IsQueryFailed(err))
}

func TestFetch_CancelledContext(t *testing.T) {
	e, drv, _ := newExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.FetchAll(ctx, "SELECT id, sym FROM companies", nil)
	assert.True(t, errs.IsTimeout(err))
	assert.True(t, drv.Results[0].Closed)
}

func TestFetch_DriverErrorUnchanged(t *testing.T) {
	driverErr := errs.New(errs.ErrKindConnectionFailed, "server closed the connection unexpectedly")
	e := New(dbtest.New(func(dbtest.Call) (*dbtest.Rows, error) { return nil, driverErr }))
	ctx := context.Background()

	_, err := e.FetchAll(ctx, "SELECT 1", nil)
	assert.Same(t, driverErr, err)

	_, _, err = e.FetchValue(ctx, "SELECT 1", nil)
	assert.Same(t, driverErr, err)

	_, err = e.FetchAssoc(ctx, "SELECT 1", nil)
	assert.Same(t, driverErr, err)
}
