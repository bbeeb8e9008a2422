package schema

import (
	"context"

	"github.com/koustreak/xdb/internal/bind"
	"github.com/koustreak/xdb/internal/database"
	"github.com/koustreak/xdb/internal/errs"
	"github.com/koustreak/xdb/internal/query"
)

const (
	listTablesSQL = `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = :schema
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	tableExistsSQL = `
		SELECT 1 AS found
		FROM information_schema.tables
		WHERE table_schema = :schema AND table_name = :table`

	columnsSQL = `
		SELECT
			c.column_name              AS column_name,
			c.data_type                AS data_type,
			CASE WHEN c.is_nullable = 'YES' THEN 1 ELSE 0 END AS is_nullable,
			c.column_default           AS column_default,
			c.character_maximum_length AS character_maximum_length
		FROM information_schema.columns c
		WHERE c.table_schema = :schema AND c.table_name = :table
		ORDER BY c.ordinal_position`

	keysSQL = `
		SELECT kcu.column_name AS column_name, tc.constraint_type AS constraint_type
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		  AND tc.table_schema = :schema
		  AND tc.table_name   = :table`

	foreignKeysSQL = `
		SELECT
			tc.constraint_name     AS constraint_name,
			kcu.table_name         AS from_table,
			kcu.column_name        AS from_column,
			kcu2.table_name        AS to_table,
			kcu2.column_name       AS to_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		JOIN information_schema.key_column_usage kcu2
			ON kcu2.constraint_name = rc.unique_constraint_name
			AND kcu2.table_schema = rc.unique_constraint_schema
			AND kcu2.ordinal_position = kcu.ordinal_position
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = :schema
		ORDER BY tc.constraint_name, kcu.ordinal_position`
)

// Inspector implements Reader on top of a query.Executor.
type Inspector struct {
	exec *query.Executor
}

// NewInspector returns an Inspector running its queries through exec.
func NewInspector(exec *query.Executor) *Inspector {
	return &Inspector{exec: exec}
}

// ListTables returns all base table names in schema, sorted.
func (i *Inspector) ListTables(ctx context.Context, schema string) ([]string, error) {
	return query.FetchColumnWith(ctx, i.exec, listTablesSQL, bind.Values{":schema": schema}, asString)
}

// TableExists reports whether schema.table exists.
func (i *Inspector) TableExists(ctx context.Context, schema, table string) (bool, error) {
	_, ok, err := i.exec.FetchValue(ctx, tableExistsSQL, bind.Values{":schema": schema, ":table": table})
	return ok, err
}

// InspectTable returns column details for a single table.
func (i *Inspector) InspectTable(ctx context.Context, schema, table string) (*TableInfo, error) {
	values := bind.Values{":schema": schema, ":table": table}

	cols, err := query.FetchObject[ColumnInfo](ctx, i.exec, columnsSQL, values, nil)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found", schema, table)
	}

	keys, err := query.FetchGroupWith(ctx, i.exec, keysSQL, values, func(row database.Row) (string, error) {
		return asString(row.At(1))
	})
	if err != nil {
		return nil, err
	}

	for n := range cols {
		for _, kind := range keys[cols[n].Name] {
			switch kind {
			case "PRIMARY KEY":
				cols[n].IsPrimaryKey = true
			case "UNIQUE":
				cols[n].IsUnique = true
			}
		}
	}
	return &TableInfo{Schema: schema, Name: table, Columns: cols}, nil
}

// InspectSchema returns all tables and foreign keys in schema.
func (i *Inspector) InspectSchema(ctx context.Context, schema string) (*SchemaInfo, error) {
	tables, err := i.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}

	info := &SchemaInfo{Tables: make([]TableInfo, 0, len(tables))}
	for _, table := range tables {
		ti, err := i.InspectTable(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		info.Tables = append(info.Tables, *ti)
	}

	fks, err := query.FetchObject[ForeignKey](ctx, i.exec, foreignKeysSQL, bind.Values{":schema": schema}, nil)
	if err != nil {
		return nil, err
	}
	info.ForeignKeys = fks
	return info, nil
}

func asString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", errs.Newf(errs.ErrKindQueryFailed, "expected text, got %T", v)
}

var _ Reader = (*Inspector)(nil)
