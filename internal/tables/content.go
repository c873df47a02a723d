package tables

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/HerbHall/tablestore/internal/dialect"
	"github.com/HerbHall/tablestore/internal/store"
)

// ContentConfig declares a JSON content table. SupportedTypes is the type
// whitelist; empty means unrestricted.
type ContentConfig struct {
	Table          string
	SoftDelete     bool
	HasPriority    bool
	SupportedTypes []string
}

// ContentRepository stores a type-tagged JSON document per row while
// surfacing its fields as top-level object properties. The id, priority, and
// type fields live in dedicated columns and are stripped from the stored
// blob, then reassembled onto the decoded object on read.
type ContentRepository struct {
	base *Repository
	cfg  ContentConfig
}

// NewContent builds a content repository over the base table machinery.
func NewContent(st *store.Store, cfg ContentConfig, logger *zap.Logger) (*ContentRepository, error) {
	base, err := New(st, Config{
		Table:       cfg.Table,
		SoftDelete:  cfg.SoftDelete,
		HasPriority: cfg.HasPriority,
		Columns: []dialect.Column{
			{Name: colType, Type: dialect.TypeText, NotNull: true},
			{Name: colContent, Type: dialect.TypeJSON},
		},
	}, logger)
	if err != nil {
		return nil, err
	}
	return &ContentRepository{base: base, cfg: cfg}, nil
}

// Base exposes the underlying base repository (delete, restore, priority).
func (r *ContentRepository) Base() *Repository { return r.base }

// EnsureSchema creates the content table if absent.
func (r *ContentRepository) EnsureSchema(ctx context.Context) error {
	return r.base.EnsureSchema(ctx)
}

// checkType validates a type tag against the whitelist.
func (r *ContentRepository) checkType(typ string) error {
	if len(r.cfg.SupportedTypes) == 0 {
		return nil
	}
	if slices.Contains(r.cfg.SupportedTypes, typ) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedType, typ)
}

// splitContent strips the dedicated-column fields out of the flattened
// object, leaving only the JSON blob payload. Nil-valued fields are dropped,
// matching stringify semantics for undefined object properties.
func splitContent(obj map[string]any) map[string]any {
	blob := make(map[string]any, len(obj))
	for k, v := range obj {
		switch k {
		case colID, colPriority, colType:
			continue
		}
		if v == nil {
			continue
		}
		blob[k] = v
	}
	return blob
}

// CreateWithContent inserts a flattened object. The object must carry a
// non-empty "type" field, validated against the whitelist when one is
// configured.
func (r *ContentRepository) CreateWithContent(ctx context.Context, obj map[string]any) (map[string]any, error) {
	typ, _ := obj[colType].(string)
	if typ == "" {
		return nil, fmt.Errorf("%w: type must be provided", ErrInvalidArgument)
	}
	if err := r.checkType(typ); err != nil {
		return nil, err
	}

	values := Row{colType: typ, colContent: splitContent(obj)}
	if r.base.cfg.HasPriority {
		if p, ok := asInt64(obj[colPriority]); ok && p > 0 {
			values[colPriority] = p
		}
	}

	row, err := r.base.Create(ctx, values)
	if err != nil {
		return nil, err
	}
	return r.flatten(row), nil
}

// GetByIDWithContent reads a row and reconstructs the flattened object.
func (r *ContentRepository) GetByIDWithContent(ctx context.Context, id int64, opts GetOptions) (map[string]any, error) {
	row, err := r.base.GetByID(ctx, id, opts)
	if err != nil {
		return nil, err
	}
	return r.flatten(row), nil
}

// ListWithContent reads a page of rows as flattened objects.
func (r *ContentRepository) ListWithContent(ctx context.Context, opts ListOptions) ([]map[string]any, error) {
	rows, err := r.base.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = r.flatten(row)
	}
	return out, nil
}

// UpdateWithContent shallow-merges the patch's content fields onto the
// stored blob: a patch to a nested key replaces the whole top-level key.
// A "type" field in the patch is re-validated against the whitelist; a
// "priority" field is routed through the stable reordering operation.
func (r *ContentRepository) UpdateWithContent(ctx context.Context, id int64, patch map[string]any) (map[string]any, error) {
	if typ, ok := patch[colType].(string); ok {
		if err := r.checkType(typ); err != nil {
			return nil, err
		}
	}

	row, err := r.base.GetByID(ctx, id, GetOptions{})
	if err != nil {
		return nil, err
	}

	stored, _ := row[colContent].(map[string]any)
	merged := make(map[string]any, len(stored)+len(patch))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range splitContent(patch) {
		merged[k] = v
	}

	update := Row{colContent: merged}
	if typ, ok := patch[colType].(string); ok && typ != "" {
		update[colType] = typ
	}
	if row, err = r.base.Update(ctx, id, update); err != nil {
		return nil, err
	}

	if r.base.cfg.HasPriority {
		if p, ok := asInt64(patch[colPriority]); ok {
			if row, err = r.base.UpdatePriority(ctx, id, p); err != nil {
				return nil, err
			}
		}
	}
	return r.flatten(row), nil
}

// flatten reassembles the stored blob's fields plus the dedicated columns
// into one object.
func (r *ContentRepository) flatten(row Row) map[string]any {
	out := make(map[string]any)
	if blob, ok := row[colContent].(map[string]any); ok {
		for k, v := range blob {
			out[k] = v
		}
	}
	out[colID] = row.ID()
	out[colType] = row[colType]
	if r.base.cfg.HasPriority {
		out[colPriority] = row[colPriority]
	}
	if r.base.cfg.SoftDelete {
		out[colDeletedAt] = row[colDeletedAt]
	}
	out[colCreatedAt] = row[colCreatedAt]
	return out
}
