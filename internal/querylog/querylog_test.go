package querylog

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/xdb/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_InactiveDropsEntries(t *testing.T) {
	l := New()
	assert.False(t, l.Active())

	l.Add(time.Millisecond, "fetchAll", "SELECT 1", nil)
	assert.Empty(t, l.Entries())
}

func TestLog_RecordsWhenActive(t *testing.T) {
	l := New()
	l.SetActive(true)

	l.Add(2*time.Millisecond, "fetchOne", "SELECT * FROM companies WHERE id = :id", map[string]any{":id": 1})
	l.Add(time.Millisecond, "execute", "DELETE FROM companies", nil)

	entries := l.Entries()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, "fetchOne", first.Function)
	assert.Equal(t, "SELECT * FROM companies WHERE id = :id", first.Statement)
	assert.Equal(t, 2*time.Millisecond, first.Duration)
	assert.Equal(t, map[string]any{":id": 1}, first.Values)
	assert.False(t, first.At.IsZero())

	assert.Equal(t, "execute", entries[1].Function)
	assert.Nil(t, entries[1].Values)
	assert.NotEqual(t, first.ID, entries[1].ID)
}

func TestLog_ValuesAreCopied(t *testing.T) {
	l := New()
	l.SetActive(true)

	vals := map[string]any{"sym": "AAPL"}
	l.Add(0, "fetchValue", "SELECT 1", vals)
	vals["sym"] = "MSFT"

	assert.Equal(t, "AAPL", l.Entries()[0].Values["sym"])
}

type sector string

func TestLog_ValuesAreJSONSafe(t *testing.T) {
	l := New()
	l.SetActive(true)

	n := 5
	var nilInt *sql.NullInt64
	l.Add(0, "fetchAll", "SELECT 1", map[string]any{
		"ch":     make(chan int),
		"fn":     func() {},
		"nan":    math.NaN(),
		"inf":    math.Inf(1),
		"ptr":    &n,
		"nilptr": nilInt,
		"valuer": sql.NullString{String: "AAPL", Valid: true},
		"named":  sector("tech"),
		"struct": struct{ A int }{1},
		"num":    2.5,
	})

	vals := l.Entries()[0].Values
	assert.Equal(t, "chan int", vals["ch"])
	assert.Equal(t, "func()", vals["fn"])
	assert.Equal(t, "NaN", vals["nan"])
	assert.Equal(t, "+Inf", vals["inf"])
	assert.Equal(t, 5, vals["ptr"])
	assert.Nil(t, vals["nilptr"])
	assert.Equal(t, "AAPL", vals["valuer"])
	assert.Equal(t, "tech", vals["named"])
	assert.Equal(t, "struct { A int }", vals["struct"])
	assert.Equal(t, 2.5, vals["num"])

	_, err := json.Marshal(l.Entries())
	require.NoError(t, err)
}

func TestLog_Limit(t *testing.T) {
	l := New(WithLimit(2))
	l.SetActive(true)

	for _, stmt := range []string{"a", "b", "c"} {
		l.Add(0, "execute", stmt, nil)
	}

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Statement)
	assert.Equal(t, "c", entries[1].Statement)
}

func TestLog_ResetKeepsActive(t *testing.T) {
	l := New()
	l.SetActive(true)
	l.Add(0, "execute", "SELECT 1", nil)

	l.Reset()
	assert.Empty(t, l.Entries())
	assert.True(t, l.Active())

	l.Add(0, "execute", "SELECT 2", nil)
	assert.Len(t, l.Entries(), 1)
}

func TestLog_EntriesIsSnapshot(t *testing.T) {
	l := New()
	l.SetActive(true)
	l.Add(0, "execute", "SELECT 1", nil)

	snap := l.Entries()
	l.Add(0, "execute", "SELECT 2", nil)
	snap[0].Statement = "changed"

	assert.Len(t, snap, 1)
	assert.Equal(t, "SELECT 1", l.Entries()[0].Statement)
}

func TestLog_Deactivate(t *testing.T) {
	l := New()
	l.SetActive(true)
	l.Add(0, "execute", "SELECT 1", nil)
	l.SetActive(false)
	l.Add(0, "execute", "SELECT 2", nil)

	assert.Len(t, l.Entries(), 1)
}

func TestLog_Mirror(t *testing.T) {
	var buf bytes.Buffer
	lg := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &buf})

	l := New(WithMirror(lg))
	l.SetActive(true)
	l.Add(time.Millisecond, "fetchColumn", "SELECT symbol FROM companies", nil)

	out := buf.String()
	assert.Contains(t, out, `"message":"query recorded"`)
	assert.Contains(t, out, `"function":"fetchColumn"`)
	assert.Contains(t, out, `"statement":"SELECT symbol FROM companies"`)
}

func TestLog_ConcurrentAdd(t *testing.T) {
	l := New()
	l.SetActive(true)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Add(0, "execute", "SELECT 1", nil)
		}()
	}
	wg.Wait()

	assert.Len(t, l.Entries(), 50)
}
