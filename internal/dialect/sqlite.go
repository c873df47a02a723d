package dialect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// sqliteDialect targets SQLite via the pure-Go modernc.org/sqlite driver.
// Booleans are stored as 0/1 integers and JSON documents as text.
type sqliteDialect struct{}

func (d *sqliteDialect) Kind() Kind { return SQLite }

func (d *sqliteDialect) TypeOf(t ColumnType) string {
	switch t {
	case TypeSerial:
		return "INTEGER"
	case TypeInt, TypeBigInt, TypeBool:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	case TypeText, TypeJSON:
		return "TEXT"
	case TypeTimestamp:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func (d *sqliteDialect) Placeholder(int) string { return "?" }

func (d *sqliteDialect) EncodeBool(b bool) any {
	if b {
		return 1
	}
	return 0
}

func (d *sqliteDialect) DecodeBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	case []byte:
		return len(x) > 0 && x[0] == '1'
	case string:
		return x == "1" || x == "true"
	default:
		return false
	}
}

func (d *sqliteDialect) EncodeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return string(raw), nil
}

func (d *sqliteDialect) DecodeJSON(v any) any {
	return decodeJSONValue(v)
}

func (d *sqliteDialect) AgeExpr(seconds int64) string {
	return fmt.Sprintf("datetime('now', '-%d seconds')", seconds)
}

func (d *sqliteDialect) CurrentTimestamp() string { return "CURRENT_TIMESTAMP" }

func (d *sqliteDialect) SupportsReturning() bool { return true }

// SyncColumns diffs PRAGMA table_info against the declared set and adds the
// missing columns. SQLite rejects ALTER TABLE ADD COLUMN with a UNIQUE
// constraint, so uniqueness on added columns is enforced with an index.
func (d *sqliteDialect) SyncColumns(ctx context.Context, db *sql.DB, table string, cols []Column) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("introspect columns of %q: %w", table, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table_info row: %w", err)
		}
		existing[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return false, err
	}

	added := false
	for _, c := range cols {
		if existing[strings.ToLower(c.Name)] {
			continue
		}
		plain := c
		plain.Unique = false
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, ColumnDef(d, plain))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return added, fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
		}
		if c.Unique {
			idx := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
				table, c.Name, table, c.Name)
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return true, fmt.Errorf("unique index %s.%s: %w", table, c.Name, err)
			}
		}
		added = true
	}
	return added, nil
}
