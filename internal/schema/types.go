package schema

// ColumnInfo describes a single column in a table
type ColumnInfo struct {
	Name         string  `db:"column_name" json:"name"`
	DataType     string  `db:"data_type" json:"data_type"` // text, integer, varchar, ...
	IsNullable   bool    `db:"is_nullable" json:"nullable"`
	DefaultValue *string `db:"column_default" json:"default,omitempty"`              // nil if no default
	MaxLength    *int    `db:"character_maximum_length" json:"max_length,omitempty"` // nil for non-char types
	IsPrimaryKey bool    `db:"-" json:"primary_key"`
	IsUnique     bool    `db:"-" json:"unique"`
}

// TableInfo describes a table and its columns
type TableInfo struct {
	Schema  string       `json:"schema"`
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ForeignKey describes a relationship between two tables
type ForeignKey struct {
	Name       string `db:"constraint_name" json:"name"`
	FromTable  string `db:"from_table" json:"from_table"`
	FromColumn string `db:"from_column" json:"from_column"`
	ToTable    string `db:"to_table" json:"to_table"`
	ToColumn   string `db:"to_column" json:"to_column"`
}

// SchemaInfo is the full introspected database schema
type SchemaInfo struct {
	Tables      []TableInfo  `json:"tables"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}
