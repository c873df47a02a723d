package tables

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tablestore/internal/dialect"
	"github.com/HerbHall/tablestore/internal/store"
)

// TTL sentinels. Positive values are a window in seconds; the sentinels
// select query modes instead.
const (
	// TTLUnlimited matches all rows regardless of age or expired flag.
	TTLUnlimited int64 = 0

	// TTLNotExpired matches all not-expired rows regardless of age.
	// It is the default policy for reads.
	TTLNotExpired int64 = -1

	// TTLExpired matches only rows already marked expired.
	TTLExpired int64 = -2

	// DefaultTTL is the read policy used when a caller has none.
	DefaultTTL = TTLNotExpired
)

// Cache-managed column names.
const (
	colKey      = "key"
	colType     = "type"
	colContent  = "content"
	colMetadata = "metadata"
	colExpired  = "expired"
)

// CacheConfig declares a cache table: the mandatory key/type columns are
// implied; Columns lists extra equality-filter columns (e.g. "reference").
type CacheConfig struct {
	Table   string
	Columns []dialect.Column
}

// CacheFilter is the equality filter identifying cache entries: key, type,
// and any declared extra columns. Absent fields are not filtered on.
type CacheFilter map[string]any

// CacheEntry is one decoded cache row.
type CacheEntry struct {
	ID        int64          `json:"id"`
	Key       string         `json:"key"`
	Type      string         `json:"type"`
	Content   any            `json:"content"`
	Metadata  any            `json:"metadata,omitempty"`
	Expired   bool           `json:"expired"`
	CreatedAt time.Time      `json:"created_at"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// CacheRecord identifies a cache entry being written.
type CacheRecord struct {
	Key      string
	Type     string
	Metadata any
	Extra    map[string]any // declared extra columns
}

// CacheRepository is a TTL-aware append-only cache table. Writes never fail
// the caller's primary flow: insert errors are logged and reported as false.
type CacheRepository struct {
	base   *Repository
	logger *zap.Logger
}

// NewCache builds a cache repository. The underlying table carries id, key,
// type, content, metadata, expired, created_at plus the declared extras.
func NewCache(st *store.Store, cfg CacheConfig, logger *zap.Logger) (*CacheRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cols := []dialect.Column{
		{Name: colKey, Type: dialect.TypeText, NotNull: true},
		{Name: colType, Type: dialect.TypeText, NotNull: true},
		{Name: colContent, Type: dialect.TypeJSON},
		{Name: colMetadata, Type: dialect.TypeJSON},
		{Name: colExpired, Type: dialect.TypeBool, NotNull: true},
	}
	cols = append(cols, cfg.Columns...)

	base, err := New(st, Config{Table: cfg.Table, Columns: cols}, logger)
	if err != nil {
		return nil, err
	}
	return &CacheRepository{base: base, logger: logger}, nil
}

// EnsureSchema creates the cache table if absent.
func (c *CacheRepository) EnsureSchema(ctx context.Context) error {
	return c.base.EnsureSchema(ctx)
}

// SyncColumns adds missing declared columns to the live table.
func (c *CacheRepository) SyncColumns(ctx context.Context) (bool, error) {
	return c.base.SyncColumns(ctx)
}

// Save inserts a new cache row for the record. A nil content is rejected
// with a false return, not an error. Insert failures are retried once
// without the RETURNING clause, then logged and reported as false: callers
// must treat false as "cache write skipped", never as a hard failure.
func (c *CacheRepository) Save(ctx context.Context, rec CacheRecord, content any) bool {
	if content == nil {
		return false
	}

	values := Row{colKey: rec.Key, colType: rec.Type, colContent: content}
	if rec.Metadata != nil {
		values[colMetadata] = rec.Metadata
	}
	for k, v := range rec.Extra {
		values[k] = v
	}
	values[colExpired] = false

	if err := c.insert(ctx, values, true); err != nil {
		if retryErr := c.insert(ctx, values, false); retryErr != nil {
			c.logger.Warn("cache write skipped",
				zap.String("table", c.base.cfg.Table),
				zap.String("key", rec.Key),
				zap.String("type", rec.Type),
				zap.Error(retryErr),
			)
			return false
		}
	}
	return true
}

// Create is an alias for Save.
func (c *CacheRepository) Create(ctx context.Context, rec CacheRecord, content any) bool {
	return c.Save(ctx, rec, content)
}

func (c *CacheRepository) insert(ctx context.Context, values Row, wantID bool) error {
	q := newQuery(c.base.d)
	ins := q.insert()
	for _, col := range c.base.cfg.Columns {
		v, ok := values[col.Name]
		if !ok {
			continue
		}
		enc, err := c.base.encodeValue(col, v)
		if err != nil {
			return err
		}
		ins.set(col.Name, enc)
	}

	db := c.base.st.DB()
	if wantID && c.base.d.SupportsReturning() {
		var id int64
		return db.QueryRowContext(ctx, ins.sql(c.base.cfg.Table, colID), q.args...).Scan(&id)
	}
	_, err := db.ExecContext(ctx, ins.sql(c.base.cfg.Table, ""), q.args...)
	return err
}

// ttlQuery builds a fresh query carrying the shared filter + TTL predicate.
func (c *CacheRepository) ttlQuery(sel CacheFilter, ttl int64) (*query, error) {
	q := newQuery(c.base.d)
	if err := c.applyTTL(q, sel, ttl); err != nil {
		return nil, err
	}
	return q, nil
}

// applyTTL adds the equality filter and TTL predicate to q. It is split from
// ttlQuery so UPDATE statements can bind their SET pairs first, keeping
// placeholder numbering aligned with statement order.
func (c *CacheRepository) applyTTL(q *query, sel CacheFilter, ttl int64) error {
	filtered := 0
	for _, col := range c.base.cfg.Columns {
		v, ok := sel[col.Name]
		if !ok || v == nil {
			continue
		}
		enc, err := c.base.encodeValue(col, v)
		if err != nil {
			return err
		}
		q.where(col.Name, "=", enc)
		filtered++
	}
	if filtered == 0 {
		return fmt.Errorf("%w: cache filter must set at least one field", ErrInvalidArgument)
	}

	switch {
	case ttl > 0:
		q.where(colExpired, "=", c.base.d.EncodeBool(false))
		q.whereExpr(colCreatedAt + " >= " + c.base.d.AgeExpr(ttl))
	case ttl == TTLNotExpired:
		q.where(colExpired, "=", c.base.d.EncodeBool(false))
	case ttl == TTLExpired:
		q.where(colExpired, "=", c.base.d.EncodeBool(true))
	case ttl == TTLUnlimited:
		// no age or expiry predicate
	default:
		return fmt.Errorf("%w: invalid ttl %d", ErrInvalidArgument, ttl)
	}
	return nil
}

// newestFirst orders rows newest first, ties broken by highest id.
const newestFirst = colCreatedAt + " DESC, " + colID + " DESC"

// GetLast returns the most recent matching row's decoded content, or nil if
// nothing matches the filter and TTL policy.
func (c *CacheRepository) GetLast(ctx context.Context, sel CacheFilter, ttl int64) (any, error) {
	entries, err := c.query(ctx, sel, ttl, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0].Content, nil
}

// GetAll returns every matching row newest-first.
func (c *CacheRepository) GetAll(ctx context.Context, sel CacheFilter, ttl int64) ([]CacheEntry, error) {
	return c.query(ctx, sel, ttl, 0)
}

// IsCached reports whether any row matches the filter and TTL policy.
func (c *CacheRepository) IsCached(ctx context.Context, sel CacheFilter, ttl int64) (bool, error) {
	q, err := c.ttlQuery(sel, ttl)
	if err != nil {
		return false, err
	}
	var n int64
	if err := c.base.st.DB().QueryRowContext(ctx, q.countSQL(c.base.cfg.Table), q.args...).Scan(&n); err != nil {
		return false, fmt.Errorf("count %s: %w", c.base.cfg.Table, err)
	}
	return n > 0, nil
}

func (c *CacheRepository) query(ctx context.Context, sel CacheFilter, ttl int64, limit int) ([]CacheEntry, error) {
	q, err := c.ttlQuery(sel, ttl)
	if err != nil {
		return nil, err
	}
	stmt := q.selectSQL(c.base.cfg.Table, c.base.columnNames(), newestFirst, limit, 0)

	rows, err := c.base.st.DB().QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.base.cfg.Table, err)
	}
	defer rows.Close()

	var out []CacheEntry
	for rows.Next() {
		row, err := c.base.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c.entryFromRow(row))
	}
	return out, rows.Err()
}

func (c *CacheRepository) entryFromRow(row Row) CacheEntry {
	e := CacheEntry{
		ID:       row.ID(),
		Content:  row[colContent],
		Metadata: row[colMetadata],
	}
	e.Key, _ = row[colKey].(string)
	e.Type, _ = row[colType].(string)
	e.Expired, _ = row[colExpired].(bool)
	if t, ok := row[colCreatedAt].(time.Time); ok {
		e.CreatedAt = t
	}
	for _, col := range c.base.cfg.Columns {
		switch col.Name {
		case colKey, colType, colContent, colMetadata, colExpired:
			continue
		}
		if v, ok := row[col.Name]; ok {
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}
			e.Extra[col.Name] = v
		}
	}
	return e
}

// ExpireEntries marks matching not-already-expired rows created within the
// ttl window as expired and returns the number of rows affected. The ttl
// must be a positive window, never a sentinel.
func (c *CacheRepository) ExpireEntries(ctx context.Context, sel CacheFilter, ttl int64) (int64, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: ttl must be a positive window, got %d", ErrInvalidArgument, ttl)
	}
	q := newQuery(c.base.d)
	upd := q.update()
	upd.set(colExpired, c.base.d.EncodeBool(true))
	if err := c.applyTTL(q, sel, ttl); err != nil {
		return 0, err
	}

	res, err := c.base.st.DB().ExecContext(ctx, upd.sql(c.base.cfg.Table), q.args...)
	if err != nil {
		return 0, fmt.Errorf("expire %s: %w", c.base.cfg.Table, err)
	}
	return res.RowsAffected()
}

// CleanExpiredEntries deletes matching rows currently marked expired and
// returns the number deleted.
func (c *CacheRepository) CleanExpiredEntries(ctx context.Context, sel CacheFilter) (int64, error) {
	q, err := c.ttlQuery(sel, TTLExpired)
	if err != nil {
		return 0, err
	}
	res, err := c.base.st.DB().ExecContext(ctx, q.deleteSQL(c.base.cfg.Table), q.args...)
	if err != nil {
		return 0, fmt.Errorf("clean %s: %w", c.base.cfg.Table, err)
	}
	return res.RowsAffected()
}
