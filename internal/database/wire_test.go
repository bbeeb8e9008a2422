package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/koustreak/xdb/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	zipCode string
	lotSize int32
)

func TestCoerce(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 7
	s := "text"
	var nilNullInt *sql.NullInt64

	tests := []struct {
		name  string
		value any
		wire  WireType
		want  any
	}{
		{"int", 42, WireInteger, int64(42)},
		{"uint8", uint8(9), WireInteger, int64(9)},
		{"numeric text", " -42 ", WireInteger, int64(-42)},
		{"plus sign", "+7", WireInteger, int64(7)},
		{"int pointer", &n, WireInteger, int64(7)},
		{"bool", true, WireBoolean, true},
		{"bool text", "FALSE", WireBoolean, false},
		{"null", nil, WireNull, nil},
		{"null valuer", sql.NullString{}, WireNull, nil},
		{"valuer", sql.NullInt64{Int64: 5, Valid: true}, WireInteger, int64(5)},
		{"string", "hello", WireString, "hello"},
		{"string pointer", &s, WireString, "text"},
		{"bytes", []byte("raw"), WireString, []byte("raw")},
		{"time", now, WireString, now},
		{"float", 1.5, WireString, "1.5"},
		{"float32", float32(0.25), WireString, "0.25"},
		{"huge uint as text", uint64(1 << 63), WireString, "9223372036854775808"},
		{"nil valuer pointer", nilNullInt, WireNull, nil},
		{"named string", zipCode("AAPL"), WireString, "AAPL"},
		{"named numeric string", zipCode("10001"), WireInteger, int64(10001)},
		{"named int", lotSize(100), WireInteger, int64(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.wire)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerce_Errors(t *testing.T) {
	_, err := Coerce("abc", WireInteger)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = Coerce(uint64(1<<63), WireInteger)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = Coerce("yes", WireBoolean)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestValuerValue_NilPointer(t *testing.T) {
	var v *sql.NullInt64
	got, err := ValuerValue(v)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ValuerValue(&sql.NullInt64{Int64: 4, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, int64(4), got)
}

func TestUnderlying(t *testing.T) {
	got, ok := Underlying(zipCode("10001"))
	assert.True(t, ok)
	assert.Equal(t, "10001", got)

	_, ok = Underlying("plain")
	assert.False(t, ok)

	_, ok = Underlying(time.Now())
	assert.False(t, ok)

	_, ok = Underlying(struct{ A int }{1})
	assert.False(t, ok)
}

func TestWireType_String(t *testing.T) {
	assert.Equal(t, "INTEGER", WireInteger.String())
	assert.Equal(t, "BOOLEAN", WireBoolean.String())
	assert.Equal(t, "NULL", WireNull.String())
	assert.Equal(t, "STRING", WireString.String())
}
