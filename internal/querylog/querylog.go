// Package querylog records executed statements for inspection.
//
// A Recorder is injected into the query executor; when it is active the
// executor adds one Entry per executed statement. An inactive or absent
// recorder costs nothing.
package querylog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/logger"
)

// Recorder is the boundary the query executor logs through.
type Recorder interface {
	SetActive(active bool)
	Active() bool
	Add(duration time.Duration, function, statement string, values map[string]any)
	Entries() []Entry
	Reset()
}

// Entry is one recorded statement.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	At        time.Time      `json:"at"`
	Duration  time.Duration  `json:"duration_ns"`
	Function  string         `json:"function"`
	Statement string         `json:"statement"`
	Values    map[string]any `json:"values,omitempty"`
}

// Log is an in-memory Recorder. It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	active  bool
	entries []Entry
	limit   int
	mirror  *logger.Logger
	now     func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithLimit keeps only the most recent n entries. n <= 0 keeps everything.
func WithLimit(n int) Option {
	return func(l *Log) { l.limit = n }
}

// WithMirror also writes every recorded entry to lg at debug level.
func WithMirror(lg *logger.Logger) Option {
	return func(l *Log) { l.mirror = lg }
}

// New returns an inactive Log.
func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) SetActive(active bool) {
	l.mu.Lock()
	l.active = active
	l.mu.Unlock()
}

func (l *Log) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Add records a statement. It is a no-op while the log is inactive.
func (l *Log) Add(duration time.Duration, function, statement string, values map[string]any) {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}

	e := Entry{
		ID:        uuid.New(),
		At:        l.now(),
		Duration:  duration,
		Function:  function,
		Statement: statement,
		Values:    copyValues(values),
	}
	l.entries = append(l.entries, e)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]Entry(nil), l.entries[len(l.entries)-l.limit:]...)
	}
	mirror := l.mirror
	l.mu.Unlock()

	if mirror != nil {
		mirror.DebugWith("query recorded", map[string]interface{}{
			"id":          e.ID.String(),
			"function":    e.Function,
			"statement":   e.Statement,
			"duration_ms": float64(e.Duration) / float64(time.Millisecond),
		})
	}
}

// Entries returns a snapshot of the recorded entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Reset drops every recorded entry. The active flag is unchanged.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func copyValues(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = loggable(v)
	}
	return out
}

// loggable returns a JSON-encodable rendering of a bound value. Values with
// no such rendering (channels, funcs, arbitrary structs) are stored as their
// type name.
func loggable(v any) any {
	switch x := v.(type) {
	case nil, bool, string, []byte, time.Time, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v
	case float32:
		return loggableFloat(float64(x), v)
	case float64:
		return loggableFloat(x, v)
	case driver.Valuer:
		inner, err := database.ValuerValue(x)
		if err != nil {
			return fmt.Sprintf("%T", v)
		}
		return loggable(inner)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return loggable(rv.Elem().Interface())
	}
	if conv, ok := database.Underlying(v); ok {
		return loggable(conv)
	}
	return fmt.Sprintf("%T", v)
}

func loggableFloat(f float64, v any) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v
}
