// Package dialect abstracts the SQL differences between the two supported
// backends (PostgreSQL and SQLite): concrete column types, placeholder
// syntax, boolean and JSON value encoding, relative-time expressions, and
// forward-only column synchronization.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
)

// Kind identifies a concrete SQL dialect. It is chosen explicitly at
// configuration time; repositories never inspect the driver to guess it.
type Kind string

const (
	Postgres Kind = "postgres"
	SQLite   Kind = "sqlite"
)

// ColumnType is the abstract column type declared by repository
// configurations. Each dialect maps it to a concrete SQL type string.
type ColumnType int

const (
	TypeSerial ColumnType = iota // auto-incrementing integer primary key
	TypeInt
	TypeBigInt
	TypeFloat
	TypeText
	TypeBool
	TypeJSON
	TypeTimestamp
)

// String returns the abstract type name, mostly for error messages.
func (t ColumnType) String() string {
	switch t {
	case TypeSerial:
		return "serial"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeJSON:
		return "json"
	case TypeTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

// Column declares one table column: name, abstract type, and constraints.
// Default, when set, is a raw SQL default expression.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
	Unique  bool
	Default string
}

// Dialect is the capability set a repository needs from a backend.
type Dialect interface {
	// Kind returns the dialect tag.
	Kind() Kind

	// TypeOf maps an abstract column type to the concrete SQL type string.
	TypeOf(t ColumnType) string

	// Placeholder returns the bind placeholder for the i-th argument
	// (1-based): "$1" on Postgres, "?" on SQLite.
	Placeholder(i int) string

	// EncodeBool converts a Go bool to the driver value the backend
	// stores: native bool on Postgres, 0/1 integer on SQLite.
	EncodeBool(b bool) any

	// DecodeBool converts a scanned value back to a Go bool.
	DecodeBool(v any) bool

	// EncodeJSON converts an arbitrary JSON-serializable value to the
	// driver value stored in a JSON column.
	EncodeJSON(v any) (any, error)

	// DecodeJSON converts a scanned JSON column value back to a Go value.
	// On parse failure the raw string is returned as-is.
	DecodeJSON(v any) any

	// AgeExpr returns a SQL expression for "now minus the given number of
	// seconds", evaluated inside the database so comparisons against
	// created_at are timezone-consistent with column defaults.
	AgeExpr(seconds int64) string

	// CurrentTimestamp returns the SQL expression used as the created_at
	// column default.
	CurrentTimestamp() string

	// SupportsReturning reports whether INSERT ... RETURNING can be used.
	SupportsReturning() bool

	// SyncColumns reconciles the live table against the declared columns
	// by adding any that are missing. It never drops or alters existing
	// columns. Returns true if at least one column was added.
	SyncColumns(ctx context.Context, db *sql.DB, table string, cols []Column) (bool, error)
}

// New returns the Dialect implementation for the given kind.
func New(kind Kind) (Dialect, error) {
	switch kind {
	case Postgres:
		return &postgresDialect{schema: "public"}, nil
	case SQLite:
		return &sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", kind)
	}
}

// ColumnDef renders a full column definition ("name TYPE NOT NULL DEFAULT x")
// for CREATE TABLE and ADD COLUMN statements in the given dialect.
func ColumnDef(d Dialect, c Column) string {
	def := c.Name + " " + d.TypeOf(c.Type)
	if c.NotNull {
		def += " NOT NULL"
	}
	if c.Unique {
		def += " UNIQUE"
	}
	if c.Default != "" {
		def += " DEFAULT " + c.Default
	}
	return def
}
