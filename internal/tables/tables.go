// Package tables provides the table repository family: a generic base
// repository (CRUD, soft delete, stable priority reordering), a TTL-aware
// cache repository, a key-value repository, and a JSON content repository.
// All of them generate dialect-correct SQL through the dialect package and
// execute against a caller-supplied store.
package tables

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"time"
)

// Sentinel errors returned by repositories.
var (
	// ErrNotFound indicates the referenced row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a malformed id, filter, or value.
	// Raised before any statement is issued.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFeatureDisabled indicates an operation requiring a feature flag
	// (soft delete, priority) that the repository was built without.
	ErrFeatureDisabled = errors.New("feature disabled")

	// ErrUnsupportedType indicates a content type outside the configured
	// whitelist.
	ErrUnsupportedType = errors.New("unsupported type")
)

// Row is a generic table row keyed by column name. Values are normalized to
// int64, float64, bool, string, time.Time, decoded JSON values, or nil.
type Row map[string]any

// ID returns the row's id column as int64, or 0 if absent.
func (r Row) ID() int64 {
	id, _ := asInt64(r["id"])
	return id
}

// GetOptions controls single-row reads.
type GetOptions struct {
	IncludeDeleted bool
}

// ListOptions controls pagination and sorting for list queries.
type ListOptions struct {
	IncludeDeleted bool
	Limit          int    // Max results per page (default 50, max 1000).
	Offset         int    // Number of results to skip.
	OrderBy        string // Column name (validated against declared columns).
	Order          string // "asc" or "desc" (default "asc").
}

// normalizeListOptions applies defaults and caps to list options.
func normalizeListOptions(opts ListOptions) ListOptions {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Order != "desc" {
		opts.Order = "asc"
	}
	if opts.OrderBy == "" {
		opts.OrderBy = "id"
	}
	return opts
}

// dbtx is satisfied by *sql.DB and *sql.Tx so repository internals can run
// either standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// identRE matches safe SQL identifiers; table and column names are validated
// against it at construction time so statements never interpolate untrusted
// strings.
var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// timeLayouts are the textual timestamp formats the two drivers hand back.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
}

// asInt64 converts a scanned numeric value. ok is false for nil and
// non-numeric input.
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	default:
		return "", false
	}
}

// asTime converts a scanned timestamp. Postgres hands back time.Time;
// SQLite DATETIME columns come back as text.
func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return parseTime(x)
	case []byte:
		return parseTime(string(x))
	default:
		return time.Time{}, false
	}
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
