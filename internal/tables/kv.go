package tables

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/tablestore/internal/dialect"
	"github.com/HerbHall/tablestore/internal/store"
)

// Absent is the sentinel for "do not touch this key". SetValue rejects it;
// ImportData skips entries carrying it. A nil value, by contrast, is an
// explicit clear.
var Absent = &absent{}

type absent struct{}

// KVConfig declares one key-value table. ValueType is typically TypeJSON or
// TypeText and defaults to TypeJSON.
type KVConfig struct {
	Table     string
	ValueType dialect.ColumnType
}

// KVRepository maps string keys to typed values with upsert semantics. Keys
// are unique by convention, not by constraint.
type KVRepository struct {
	st     *store.Store
	d      dialect.Dialect
	cfg    KVConfig
	logger *zap.Logger
}

const (
	colValue     = "value"
	colUpdatedAt = "updated_at"
)

// NewKV builds a key-value repository bound to the store's dialect.
func NewKV(st *store.Store, cfg KVConfig, logger *zap.Logger) (*KVRepository, error) {
	if !identRE.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrInvalidArgument, cfg.Table)
	}
	if cfg.ValueType == dialect.TypeSerial {
		cfg.ValueType = dialect.TypeJSON
	}
	d, err := dialect.New(st.Kind())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KVRepository{st: st, d: d, cfg: cfg, logger: logger}, nil
}

// EnsureSchema creates the key-value table if absent.
func (r *KVRepository) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL, %s %s, %s %s NOT NULL DEFAULT %s)",
		r.cfg.Table,
		colKey,
		colValue, r.d.TypeOf(r.cfg.ValueType),
		colUpdatedAt, r.d.TypeOf(dialect.TypeTimestamp), r.d.CurrentTimestamp(),
	)
	if _, err := r.st.DB().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema %q: %w", r.cfg.Table, err)
	}
	return nil
}

// GetValue returns the decoded value for key. ok is false when the key has
// never been set; a nil value with ok true means it was explicitly cleared.
func (r *KVRepository) GetValue(ctx context.Context, key string) (value any, ok bool, err error) {
	q := newQuery(r.d)
	q.where(colKey, "=", key)
	stmt := q.selectSQL(r.cfg.Table, []string{colValue}, colUpdatedAt+" DESC", 1, 0)

	var raw any
	if err := r.st.DB().QueryRowContext(ctx, stmt, q.args...).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s %q: %w", r.cfg.Table, key, err)
	}

	if raw == nil {
		return nil, true, nil
	}
	if s, isStr := asString(raw); isStr && s == "" {
		return nil, true, nil
	}
	return r.decode(raw), true, nil
}

// SetValue upserts key: update first, insert on zero rows affected. The
// Absent sentinel is rejected; nil and empty string are explicit clears.
// Non-JSON-serializable values are rejected before any write, leaving the
// prior value untouched.
func (r *KVRepository) SetValue(ctx context.Context, key string, value any) error {
	if value == Absent {
		return fmt.Errorf("%w: value for key %q is the absent sentinel", ErrInvalidArgument, key)
	}
	enc, err := r.encode(value)
	if err != nil {
		return err
	}

	return r.st.Tx(ctx, func(tx *sql.Tx) error {
		return r.upsert(ctx, tx, key, enc)
	})
}

// upsert runs the update-then-insert-on-miss strategy for one key.
func (r *KVRepository) upsert(ctx context.Context, tx dbtx, key string, enc any) error {
	q := newQuery(r.d)
	upd := q.update()
	upd.set(colValue, enc)
	upd.setExpr(colUpdatedAt, r.d.CurrentTimestamp())
	q.where(colKey, "=", key)

	res, err := tx.ExecContext(ctx, upd.sql(r.cfg.Table), q.args...)
	if err != nil {
		return fmt.Errorf("update %s %q: %w", r.cfg.Table, key, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	iq := newQuery(r.d)
	ins := iq.insert()
	ins.set(colKey, key)
	ins.set(colValue, enc)
	if _, err := tx.ExecContext(ctx, ins.sql(r.cfg.Table, ""), iq.args...); err != nil {
		return fmt.Errorf("insert %s %q: %w", r.cfg.Table, key, err)
	}
	return nil
}

// ExportData reads the whole table as a key-to-value map.
func (r *KVRepository) ExportData(ctx context.Context) (map[string]any, error) {
	q := newQuery(r.d)
	stmt := q.selectSQL(r.cfg.Table, []string{colKey, colValue}, colKey+" asc", 0, 0)

	rows, err := r.st.DB().QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", r.cfg.Table, err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var (
			key string
			raw any
		)
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", r.cfg.Table, err)
		}
		if raw == nil {
			out[key] = nil
			continue
		}
		out[key] = r.decode(raw)
	}
	return out, rows.Err()
}

// ImportData upserts every entry in one transaction, skipping Absent-valued
// keys. A failure on any key rolls the whole import back.
func (r *KVRepository) ImportData(ctx context.Context, data map[string]any) error {
	encoded := make(map[string]any, len(data))
	for key, value := range data {
		if value == Absent {
			continue
		}
		enc, err := r.encode(value)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		encoded[key] = enc
	}

	return r.st.Tx(ctx, func(tx *sql.Tx) error {
		for key, enc := range encoded {
			if err := r.upsert(ctx, tx, key, enc); err != nil {
				return err
			}
		}
		return nil
	})
}

// encode converts a caller value to the stored driver value.
func (r *KVRepository) encode(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	// Empty string is an explicit clear, same as nil.
	if s, ok := value.(string); ok && s == "" {
		return nil, nil
	}
	if _, err := json.Marshal(value); err != nil {
		return nil, fmt.Errorf("%w: value is not JSON-serializable: %v", ErrInvalidArgument, err)
	}
	switch r.cfg.ValueType {
	case dialect.TypeJSON:
		return r.d.EncodeJSON(value)
	case dialect.TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: want bool, got %T", ErrInvalidArgument, value)
		}
		return r.d.EncodeBool(b), nil
	default:
		return value, nil
	}
}

func (r *KVRepository) decode(raw any) any {
	switch r.cfg.ValueType {
	case dialect.TypeJSON:
		return r.d.DecodeJSON(raw)
	case dialect.TypeBool:
		return r.d.DecodeBool(raw)
	case dialect.TypeText:
		if s, ok := asString(raw); ok {
			return s
		}
		return raw
	default:
		return raw
	}
}
