package server

import (
	"context"

	"github.com/HerbHall/tablestore/internal/tables"
)

// Resource is what a handler needs from a table: the base repository and the
// content repository both fit behind it.
type Resource interface {
	List(ctx context.Context, opts tables.ListOptions) (any, error)
	Get(ctx context.Context, id int64, opts tables.GetOptions) (any, error)
	Create(ctx context.Context, body map[string]any) (any, error)
	Update(ctx context.Context, id int64, patch map[string]any) (any, error)
	Delete(ctx context.Context, id int64) (any, error)
	Restore(ctx context.Context, id int64) (any, error)
	UpdatePriority(ctx context.Context, id, priority int64) (any, error)
}

// BaseResource adapts a base repository to the handler surface.
type BaseResource struct {
	Repo *tables.Repository
}

func (b BaseResource) List(ctx context.Context, opts tables.ListOptions) (any, error) {
	return b.Repo.List(ctx, opts)
}

func (b BaseResource) Get(ctx context.Context, id int64, opts tables.GetOptions) (any, error) {
	return b.Repo.GetByID(ctx, id, opts)
}

func (b BaseResource) Create(ctx context.Context, body map[string]any) (any, error) {
	return b.Repo.Create(ctx, tables.Row(body))
}

func (b BaseResource) Update(ctx context.Context, id int64, patch map[string]any) (any, error) {
	return b.Repo.Update(ctx, id, tables.Row(patch))
}

// Delete normalizes the nil row a hard delete yields so the handler can
// answer 204 instead of encoding a JSON null.
func (b BaseResource) Delete(ctx context.Context, id int64) (any, error) {
	row, err := b.Repo.Delete(ctx, id)
	if row == nil {
		return nil, err
	}
	return row, err
}

func (b BaseResource) Restore(ctx context.Context, id int64) (any, error) {
	return b.Repo.Restore(ctx, id)
}

func (b BaseResource) UpdatePriority(ctx context.Context, id, priority int64) (any, error) {
	return b.Repo.UpdatePriority(ctx, id, priority)
}

// ContentResource adapts a JSON content repository to the handler surface.
type ContentResource struct {
	Repo *tables.ContentRepository
}

func (c ContentResource) List(ctx context.Context, opts tables.ListOptions) (any, error) {
	return c.Repo.ListWithContent(ctx, opts)
}

func (c ContentResource) Get(ctx context.Context, id int64, opts tables.GetOptions) (any, error) {
	return c.Repo.GetByIDWithContent(ctx, id, opts)
}

func (c ContentResource) Create(ctx context.Context, body map[string]any) (any, error) {
	return c.Repo.CreateWithContent(ctx, body)
}

func (c ContentResource) Update(ctx context.Context, id int64, patch map[string]any) (any, error) {
	return c.Repo.UpdateWithContent(ctx, id, patch)
}

func (c ContentResource) Delete(ctx context.Context, id int64) (any, error) {
	row, err := c.Repo.Base().Delete(ctx, id)
	if row == nil {
		return nil, err
	}
	return row, err
}

func (c ContentResource) Restore(ctx context.Context, id int64) (any, error) {
	return c.Repo.Base().Restore(ctx, id)
}

func (c ContentResource) UpdatePriority(ctx context.Context, id, priority int64) (any, error) {
	return c.Repo.Base().UpdatePriority(ctx, id, priority)
}

