package tables

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/HerbHall/tablestore/internal/dialect"
	"github.com/HerbHall/tablestore/internal/store"
)

// Reserved column names managed by the base repository itself.
const (
	colID        = "id"
	colPriority  = "priority"
	colDeletedAt = "deleted_at"
	colCreatedAt = "created_at"
)

// Config declares one table-bound repository. Feature flags are explicit;
// there is no subclassing.
type Config struct {
	Table       string
	SoftDelete  bool
	HasPriority bool
	Columns     []dialect.Column // extra columns beyond the managed ones
}

// Repository is the generic table repository: schema creation, CRUD,
// optional soft delete, and stable priority reordering.
type Repository struct {
	cfg    Config
	st     *store.Store
	d      dialect.Dialect
	logger *zap.Logger
	cols   []dialect.Column // full column list including managed columns
}

// New builds a Repository bound to the store's dialect. Table and column
// names are validated up front so no statement ever interpolates an unsafe
// identifier.
func New(st *store.Store, cfg Config, logger *zap.Logger) (*Repository, error) {
	if !identRE.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrInvalidArgument, cfg.Table)
	}
	for _, c := range cfg.Columns {
		if !identRE.MatchString(c.Name) {
			return nil, fmt.Errorf("%w: invalid column name %q", ErrInvalidArgument, c.Name)
		}
		switch c.Name {
		case colID, colPriority, colDeletedAt, colCreatedAt:
			return nil, fmt.Errorf("%w: column name %q is reserved", ErrInvalidArgument, c.Name)
		}
	}
	d, err := dialect.New(st.Kind())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Repository{cfg: cfg, st: st, d: d, logger: logger}
	r.cols = r.columnList()
	return r, nil
}

// Config returns the repository's configuration.
func (r *Repository) Config() Config { return r.cfg }

// Store returns the store the repository is bound to.
func (r *Repository) Store() *store.Store { return r.st }

// Dialect returns the dialect the repository generates SQL for.
func (r *Repository) Dialect() dialect.Dialect { return r.d }

// columnList assembles the managed columns plus the declared extras.
func (r *Repository) columnList() []dialect.Column {
	cols := []dialect.Column{{Name: colID, Type: dialect.TypeSerial}}
	if r.cfg.HasPriority {
		cols = append(cols, dialect.Column{Name: colPriority, Type: dialect.TypeInt})
	}
	if r.cfg.SoftDelete {
		cols = append(cols, dialect.Column{Name: colDeletedAt, Type: dialect.TypeTimestamp})
	}
	cols = append(cols, dialect.Column{
		Name: colCreatedAt, Type: dialect.TypeTimestamp,
		NotNull: true, Default: r.d.CurrentTimestamp(),
	})
	return append(cols, r.cfg.Columns...)
}

func (r *Repository) columnNames() []string {
	names := make([]string, len(r.cols))
	for i, c := range r.cols {
		names[i] = c.Name
	}
	return names
}

func (r *Repository) column(name string) (dialect.Column, bool) {
	for _, c := range r.cols {
		if c.Name == name {
			return c, true
		}
	}
	return dialect.Column{}, false
}

// EnsureSchema creates the table if it does not exist. It is safe to call
// repeatedly; reconciling column differences on an existing table is
// SyncColumns's job.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	defs := make([]string, 0, len(r.cols))
	for _, c := range r.cols {
		if c.Name == colID {
			if r.d.Kind() == dialect.SQLite {
				defs = append(defs, "id INTEGER PRIMARY KEY AUTOINCREMENT")
			} else {
				defs = append(defs, "id BIGSERIAL PRIMARY KEY")
			}
			continue
		}
		defs = append(defs, dialect.ColumnDef(r.d, c))
	}

	stmt := "CREATE TABLE IF NOT EXISTS " + r.cfg.Table + " ("
	for i, def := range defs {
		if i > 0 {
			stmt += ", "
		}
		stmt += def
	}
	stmt += ")"

	if _, err := r.st.DB().ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema %q: %w", r.cfg.Table, err)
	}
	return nil
}

// SyncColumns adds declared extra columns missing from the live table.
// Forward-only: existing columns are never dropped or altered.
func (r *Repository) SyncColumns(ctx context.Context) (bool, error) {
	return r.d.SyncColumns(ctx, r.st.DB(), r.cfg.Table, r.cfg.Columns)
}

// encodeValue converts a caller value to the driver value for the column.
func (r *Repository) encodeValue(c dialect.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Type {
	case dialect.TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: column %q wants bool, got %T", ErrInvalidArgument, c.Name, v)
		}
		return r.d.EncodeBool(b), nil
	case dialect.TypeJSON:
		enc, err := r.d.EncodeJSON(v)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrInvalidArgument, c.Name, err)
		}
		return enc, nil
	default:
		return v, nil
	}
}

// Create inserts a row from the declared-column subset of values. With the
// priority feature on and no valid positive priority supplied, the new row's
// priority is stamped equal to its generated id inside the same transaction,
// which keeps priorities unique without a max-priority query.
func (r *Repository) Create(ctx context.Context, values Row) (Row, error) {
	explicitPriority := int64(0)
	if r.cfg.HasPriority {
		if p, ok := asInt64(values[colPriority]); ok && p > 0 {
			explicitPriority = p
		}
	}

	var row Row
	err := r.st.Tx(ctx, func(tx *sql.Tx) error {
		q := newQuery(r.d)
		ins := q.insert()
		for _, c := range r.cfg.Columns {
			v, ok := values[c.Name]
			if !ok {
				continue
			}
			enc, err := r.encodeValue(c, v)
			if err != nil {
				return err
			}
			ins.set(c.Name, enc)
		}
		if explicitPriority > 0 {
			ins.set(colPriority, explicitPriority)
		}

		id, err := r.execInsert(ctx, tx, ins, q)
		if err != nil {
			return fmt.Errorf("insert into %q: %w", r.cfg.Table, err)
		}

		if r.cfg.HasPriority && explicitPriority == 0 {
			uq := newQuery(r.d)
			upd := uq.update()
			upd.setExpr(colPriority, colID)
			uq.where(colID, "=", id)
			if _, err := tx.ExecContext(ctx, upd.sql(r.cfg.Table), uq.args...); err != nil {
				return fmt.Errorf("stamp priority from id: %w", err)
			}
		}

		row, err = r.getByID(ctx, tx, id, GetOptions{IncludeDeleted: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// execInsert runs the insert and resolves the generated id, falling back to
// LastInsertId when the dialect has no RETURNING support.
func (r *Repository) execInsert(ctx context.Context, tx dbtx, ins *insert, q *query) (int64, error) {
	var id int64
	if r.d.SupportsReturning() {
		err := tx.QueryRowContext(ctx, ins.sql(r.cfg.Table, colID), q.args...).Scan(&id)
		return id, err
	}
	res, err := tx.ExecContext(ctx, ins.sql(r.cfg.Table, ""), q.args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetByID returns the row with the given id, excluding soft-deleted rows
// unless opts.IncludeDeleted is set.
func (r *Repository) GetByID(ctx context.Context, id int64, opts GetOptions) (Row, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be a positive integer, got %d", ErrInvalidArgument, id)
	}
	return r.getByID(ctx, r.st.DB(), id, opts)
}

func (r *Repository) getByID(ctx context.Context, db dbtx, id int64, opts GetOptions) (Row, error) {
	q := newQuery(r.d)
	q.where(colID, "=", id)
	if r.cfg.SoftDelete && !opts.IncludeDeleted {
		q.whereNull(colDeletedAt, true)
	}
	stmt := q.selectSQL(r.cfg.Table, r.columnNames(), "", 0, 0)

	rows, err := db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("get %s id=%d: %w", r.cfg.Table, id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return r.scanRow(rows)
}

// List returns a page of rows, excluding soft-deleted rows by default.
func (r *Repository) List(ctx context.Context, opts ListOptions) ([]Row, error) {
	opts = normalizeListOptions(opts)
	if _, ok := r.column(opts.OrderBy); !ok {
		return nil, fmt.Errorf("%w: unknown order column %q", ErrInvalidArgument, opts.OrderBy)
	}

	q := newQuery(r.d)
	if r.cfg.SoftDelete && !opts.IncludeDeleted {
		q.whereNull(colDeletedAt, true)
	}
	orderBy := opts.OrderBy + " " + opts.Order
	stmt := q.selectSQL(r.cfg.Table, r.columnNames(), orderBy, opts.Limit, opts.Offset)

	rows, err := r.st.DB().QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.cfg.Table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Update applies a partial update of declared columns and returns the
// updated row. Reserved columns in the patch are ignored.
func (r *Repository) Update(ctx context.Context, id int64, patch Row) (Row, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be a positive integer, got %d", ErrInvalidArgument, id)
	}

	q := newQuery(r.d)
	upd := q.update()
	touched := 0
	for _, c := range r.cfg.Columns {
		v, ok := patch[c.Name]
		if !ok {
			continue
		}
		enc, err := r.encodeValue(c, v)
		if err != nil {
			return nil, err
		}
		upd.set(c.Name, enc)
		touched++
	}
	if touched == 0 {
		return r.getByID(ctx, r.st.DB(), id, GetOptions{IncludeDeleted: true})
	}
	q.where(colID, "=", id)

	res, err := r.st.DB().ExecContext(ctx, upd.sql(r.cfg.Table), q.args...)
	if err != nil {
		return nil, fmt.Errorf("update %s id=%d: %w", r.cfg.Table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.getByID(ctx, r.st.DB(), id, GetOptions{IncludeDeleted: true})
}

// Delete soft-deletes the row when the feature is configured, affecting only
// a currently-active row. Without soft delete it removes the row permanently
// and returns no content.
func (r *Repository) Delete(ctx context.Context, id int64) (Row, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be a positive integer, got %d", ErrInvalidArgument, id)
	}

	if !r.cfg.SoftDelete {
		n, err := r.PermanentDelete(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	}

	q := newQuery(r.d)
	upd := q.update()
	upd.setExpr(colDeletedAt, r.d.CurrentTimestamp())
	q.where(colID, "=", id)
	q.whereNull(colDeletedAt, true)

	res, err := r.st.DB().ExecContext(ctx, upd.sql(r.cfg.Table), q.args...)
	if err != nil {
		return nil, fmt.Errorf("delete %s id=%d: %w", r.cfg.Table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.getByID(ctx, r.st.DB(), id, GetOptions{IncludeDeleted: true})
}

// Restore clears deleted_at on a soft-deleted row.
func (r *Repository) Restore(ctx context.Context, id int64) (Row, error) {
	if !r.cfg.SoftDelete {
		return nil, fmt.Errorf("%w: soft delete is not configured for %q", ErrFeatureDisabled, r.cfg.Table)
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be a positive integer, got %d", ErrInvalidArgument, id)
	}

	q := newQuery(r.d)
	upd := q.update()
	upd.setExpr(colDeletedAt, "NULL")
	q.where(colID, "=", id)
	q.whereNull(colDeletedAt, false)

	res, err := r.st.DB().ExecContext(ctx, upd.sql(r.cfg.Table), q.args...)
	if err != nil {
		return nil, fmt.Errorf("restore %s id=%d: %w", r.cfg.Table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.getByID(ctx, r.st.DB(), id, GetOptions{})
}

// PermanentDelete unconditionally removes the row and returns the number of
// rows removed (0 or 1).
func (r *Repository) PermanentDelete(ctx context.Context, id int64) (int64, error) {
	if id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer, got %d", ErrInvalidArgument, id)
	}

	q := newQuery(r.d)
	q.where(colID, "=", id)
	res, err := r.st.DB().ExecContext(ctx, q.deleteSQL(r.cfg.Table), q.args...)
	if err != nil {
		return 0, fmt.Errorf("permanent delete %s id=%d: %w", r.cfg.Table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// UpdatePriority moves the row to targetPriority, shifting only the rows
// between its old and new rank by one unit so everyone else's relative order
// is preserved. The read, the shift, and the final assignment run in one
// transaction. Correctness under concurrent writers depends on the store's
// transaction isolation; no application-level lock is taken.
func (r *Repository) UpdatePriority(ctx context.Context, id, targetPriority int64) (Row, error) {
	if !r.cfg.HasPriority {
		return nil, fmt.Errorf("%w: priority is not configured for %q", ErrFeatureDisabled, r.cfg.Table)
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be a positive integer, got %d", ErrInvalidArgument, id)
	}
	if targetPriority < 0 {
		return nil, fmt.Errorf("%w: target priority must be non-negative, got %d", ErrInvalidArgument, targetPriority)
	}

	var row Row
	err := r.st.Tx(ctx, func(tx *sql.Tx) error {
		cq := newQuery(r.d)
		cq.where(colID, "=", id)
		stmt := cq.selectSQL(r.cfg.Table, []string{colPriority}, "", 0, 0)

		var current sql.NullInt64
		if err := tx.QueryRowContext(ctx, stmt, cq.args...).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read priority %s id=%d: %w", r.cfg.Table, id, err)
		}

		cur := current.Int64
		if current.Valid && cur == targetPriority {
			var err error
			row, err = r.getByID(ctx, tx, id, GetOptions{IncludeDeleted: true})
			return err
		}

		// Shift the rows between the old and new rank by one unit in the
		// direction that keeps active priorities contiguous and distinct.
		sq := newQuery(r.d)
		shift := sq.update()
		if cur < targetPriority {
			shift.setExpr(colPriority, colPriority+" - 1")
			sq.where(colPriority, ">", cur)
			sq.where(colPriority, "<=", targetPriority)
		} else {
			shift.setExpr(colPriority, colPriority+" + 1")
			sq.where(colPriority, ">=", targetPriority)
			sq.where(colPriority, "<", cur)
		}
		if r.cfg.SoftDelete {
			sq.whereNull(colDeletedAt, true)
		}
		if _, err := tx.ExecContext(ctx, shift.sql(r.cfg.Table), sq.args...); err != nil {
			return fmt.Errorf("shift priorities in %s: %w", r.cfg.Table, err)
		}

		fq := newQuery(r.d)
		fin := fq.update()
		fin.set(colPriority, targetPriority)
		fq.where(colID, "=", id)
		if _, err := tx.ExecContext(ctx, fin.sql(r.cfg.Table), fq.args...); err != nil {
			return fmt.Errorf("assign priority %d to %s id=%d: %w", targetPriority, r.cfg.Table, id, err)
		}

		var err error
		row, err = r.getByID(ctx, tx, id, GetOptions{IncludeDeleted: true})
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// scanRow scans the current result row into a Row, normalizing driver values
// per declared column type.
func (r *Repository) scanRow(rows *sql.Rows) (Row, error) {
	raw := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan %s row: %w", r.cfg.Table, err)
	}

	row := make(Row, len(r.cols))
	for i, c := range r.cols {
		row[c.Name] = r.decodeValue(c, raw[i])
	}
	return row, nil
}

// decodeValue normalizes a scanned driver value per the column's abstract type.
func (r *Repository) decodeValue(c dialect.Column, v any) any {
	if v == nil {
		return nil
	}
	switch c.Type {
	case dialect.TypeSerial, dialect.TypeInt, dialect.TypeBigInt:
		if n, ok := asInt64(v); ok {
			return n
		}
	case dialect.TypeFloat:
		if f, ok := asFloat64(v); ok {
			return f
		}
	case dialect.TypeBool:
		return r.d.DecodeBool(v)
	case dialect.TypeJSON:
		return r.d.DecodeJSON(v)
	case dialect.TypeTimestamp:
		if t, ok := asTime(v); ok {
			return t
		}
	case dialect.TypeText:
		if s, ok := asString(v); ok {
			return s
		}
	}
	return v
}
