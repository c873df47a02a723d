package dialect

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// postgresDialect targets PostgreSQL via the pgx stdlib driver.
type postgresDialect struct {
	schema string
}

func (d *postgresDialect) Kind() Kind { return Postgres }

func (d *postgresDialect) TypeOf(t ColumnType) string {
	switch t {
	case TypeSerial:
		return "BIGSERIAL"
	case TypeInt:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeText:
		return "TEXT"
	case TypeBool:
		return "BOOLEAN"
	case TypeJSON:
		return "JSONB"
	case TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (d *postgresDialect) Placeholder(i int) string {
	return "$" + strconv.Itoa(i)
}

func (d *postgresDialect) EncodeBool(b bool) any { return b }

func (d *postgresDialect) DecodeBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case []byte:
		return len(x) > 0 && (x[0] == 't' || x[0] == '1')
	case string:
		return x == "true" || x == "t" || x == "1"
	default:
		return false
	}
}

func (d *postgresDialect) EncodeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return string(raw), nil
}

func (d *postgresDialect) DecodeJSON(v any) any {
	return decodeJSONValue(v)
}

func (d *postgresDialect) AgeExpr(seconds int64) string {
	return fmt.Sprintf("now() - make_interval(secs => %d)", seconds)
}

func (d *postgresDialect) CurrentTimestamp() string { return "now()" }

func (d *postgresDialect) SupportsReturning() bool { return true }

// SyncColumns diffs information_schema.columns against the declared set and
// issues ALTER TABLE ADD COLUMN for each missing column.
func (d *postgresDialect) SyncColumns(ctx context.Context, db *sql.DB, table string, cols []Column) (bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2`,
		d.schema, table,
	)
	if err != nil {
		return false, fmt.Errorf("introspect columns of %q: %w", table, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, fmt.Errorf("scan column name: %w", err)
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
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, ColumnDef(d, c))
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return added, fmt.Errorf("add column %s.%s: %w", table, c.Name, err)
		}
		added = true
	}
	return added, nil
}

// decodeJSONValue unmarshals a JSON column value scanned as text or bytes.
// Non-JSON input is returned unchanged.
func decodeJSONValue(v any) any {
	var raw []byte
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	default:
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return string(raw)
	}
	return out
}
