package tables_test

import (
	"context"
	"errors"
	"testing"

	"github.com/HerbHall/tablestore/internal/dialect"
	"github.com/HerbHall/tablestore/internal/tables"
	"github.com/HerbHall/tablestore/internal/testutil"
)

func newRepo(t *testing.T, cfg tables.Config) *tables.Repository {
	t.Helper()
	st := testutil.NewStore(t)
	repo, err := tables.New(st, cfg, nil)
	if err != nil {
		t.Fatalf("tables.New: %v", err)
	}
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return repo
}

func taskConfig() tables.Config {
	return tables.Config{
		Table:       "tasks",
		SoftDelete:  true,
		HasPriority: true,
		Columns: []dialect.Column{
			{Name: "title", Type: dialect.TypeText},
			{Name: "done", Type: dialect.TypeBool},
			{Name: "meta", Type: dialect.TypeJSON},
		},
	}
}

func TestRepositoryCreateAndGet(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	row, err := repo.Create(ctx, tables.Row{"title": "first", "done": false})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if row.ID() <= 0 {
		t.Fatalf("ID = %d, want positive", row.ID())
	}
	if row["title"] != "first" {
		t.Errorf("title = %v, want %q", row["title"], "first")
	}
	if row["created_at"] == nil {
		t.Error("created_at is nil")
	}

	got, err := repo.GetByID(ctx, row.ID(), tables.GetOptions{})
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got["title"] != "first" {
		t.Errorf("title = %v, want %q", got["title"], "first")
	}
	if got["done"] != false {
		t.Errorf("done = %v, want false", got["done"])
	}
}

func TestRepositoryGetByIDInvalidID(t *testing.T) {
	repo := newRepo(t, taskConfig())

	for _, id := range []int64{0, -3} {
		_, err := repo.GetByID(context.Background(), id, tables.GetOptions{})
		if !errors.Is(err, tables.ErrInvalidArgument) {
			t.Errorf("GetByID(%d) = %v, want ErrInvalidArgument", id, err)
		}
	}
}

func TestRepositoryGetByIDNotFound(t *testing.T) {
	repo := newRepo(t, taskConfig())

	_, err := repo.GetByID(context.Background(), 999, tables.GetOptions{})
	if !errors.Is(err, tables.ErrNotFound) {
		t.Errorf("GetByID(999) = %v, want ErrNotFound", err)
	}
}

func TestRepositoryCreateStampsPriorityFromID(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	seen := make(map[int64]bool)
	for i := 0; i < 4; i++ {
		row, err := repo.Create(ctx, tables.Row{"title": "t"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		p, ok := row["priority"].(int64)
		if !ok {
			t.Fatalf("priority = %v (%T), want int64", row["priority"], row["priority"])
		}
		if p != row.ID() {
			t.Errorf("priority = %d, want id %d", p, row.ID())
		}
		if seen[p] {
			t.Errorf("priority %d assigned twice", p)
		}
		seen[p] = true
	}
}

func TestRepositoryCreateExplicitPriority(t *testing.T) {
	repo := newRepo(t, taskConfig())

	row, err := repo.Create(context.Background(), tables.Row{"title": "t", "priority": int64(42)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if row["priority"] != int64(42) {
		t.Errorf("priority = %v, want 42", row["priority"])
	}
}

func TestRepositoryList(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	for _, title := range []string{"a", "b", "c"} {
		if _, err := repo.Create(ctx, tables.Row{"title": title}); err != nil {
			t.Fatalf("Create %q: %v", title, err)
		}
	}

	rows, err := repo.List(ctx, tables.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len = %d, want 3", len(rows))
	}

	rows, err = repo.List(ctx, tables.ListOptions{Limit: 2, Offset: 1, OrderBy: "id", Order: "desc"})
	if err != nil {
		t.Fatalf("List paged: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len = %d, want 2", len(rows))
	}
	if rows[0]["title"] != "b" {
		t.Errorf("rows[0].title = %v, want %q", rows[0]["title"], "b")
	}
}

func TestRepositoryListRejectsUnknownOrderColumn(t *testing.T) {
	repo := newRepo(t, taskConfig())

	_, err := repo.List(context.Background(), tables.ListOptions{OrderBy: "nope"})
	if !errors.Is(err, tables.ErrInvalidArgument) {
		t.Errorf("List = %v, want ErrInvalidArgument", err)
	}
}

func TestRepositoryUpdate(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	row, err := repo.Create(ctx, tables.Row{"title": "before", "done": false})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := repo.Update(ctx, row.ID(), tables.Row{"title": "after", "done": true})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated["title"] != "after" {
		t.Errorf("title = %v, want %q", updated["title"], "after")
	}
	if updated["done"] != true {
		t.Errorf("done = %v, want true", updated["done"])
	}

	if _, err := repo.Update(ctx, 999, tables.Row{"title": "x"}); !errors.Is(err, tables.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestRepositorySoftDeleteAndRestore(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	row, err := repo.Create(ctx, tables.Row{"title": "keep"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := row.ID()

	deleted, err := repo.Delete(ctx, id)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted["deleted_at"] == nil {
		t.Error("deleted_at still nil after Delete")
	}

	// Default reads exclude soft-deleted rows.
	if _, err := repo.GetByID(ctx, id, tables.GetOptions{}); !errors.Is(err, tables.ErrNotFound) {
		t.Errorf("GetByID after delete = %v, want ErrNotFound", err)
	}
	got, err := repo.GetByID(ctx, id, tables.GetOptions{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("GetByID include deleted: %v", err)
	}
	if got["title"] != "keep" {
		t.Errorf("title = %v, want %q", got["title"], "keep")
	}

	// Deleting an already-deleted row is a no-op reported as not found.
	if _, err := repo.Delete(ctx, id); !errors.Is(err, tables.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}

	restored, err := repo.Restore(ctx, id)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored["deleted_at"] != nil {
		t.Errorf("deleted_at = %v after restore, want nil", restored["deleted_at"])
	}
	if restored["title"] != "keep" {
		t.Errorf("title = %v, want %q", restored["title"], "keep")
	}

	// Restoring an active row is reported as not found.
	if _, err := repo.Restore(ctx, id); !errors.Is(err, tables.ErrNotFound) {
		t.Errorf("second Restore = %v, want ErrNotFound", err)
	}
}

func TestRepositoryListExcludesSoftDeleted(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	a, _ := repo.Create(ctx, tables.Row{"title": "a"})
	if _, err := repo.Create(ctx, tables.Row{"title": "b"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Delete(ctx, a.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	rows, err := repo.List(ctx, tables.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, row := range rows {
		if row["deleted_at"] != nil {
			t.Errorf("soft-deleted row %d in default list", row.ID())
		}
	}
	if len(rows) != 1 {
		t.Errorf("len = %d, want 1", len(rows))
	}

	rows, err = repo.List(ctx, tables.ListOptions{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("List include deleted: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("len = %d, want 2", len(rows))
	}
}

func TestRepositoryHardDelete(t *testing.T) {
	cfg := taskConfig()
	cfg.SoftDelete = false
	repo := newRepo(t, cfg)
	ctx := context.Background()

	row, err := repo.Create(ctx, tables.Row{"title": "gone"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Without soft delete, Delete removes permanently and returns no content.
	got, err := repo.Delete(ctx, row.ID())
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got != nil {
		t.Errorf("Delete returned %v, want nil", got)
	}
	if _, err := repo.GetByID(ctx, row.ID(), tables.GetOptions{IncludeDeleted: true}); !errors.Is(err, tables.ErrNotFound) {
		t.Errorf("GetByID = %v, want ErrNotFound", err)
	}

	if _, err := repo.Restore(ctx, row.ID()); !errors.Is(err, tables.ErrFeatureDisabled) {
		t.Errorf("Restore = %v, want ErrFeatureDisabled", err)
	}
}

func TestRepositoryPermanentDelete(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	row, err := repo.Create(ctx, tables.Row{"title": "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.PermanentDelete(ctx, row.ID())
	if err != nil {
		t.Fatalf("PermanentDelete: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}

	n, err = repo.PermanentDelete(ctx, row.ID())
	if err != nil {
		t.Fatalf("second PermanentDelete: %v", err)
	}
	if n != 0 {
		t.Errorf("removed = %d, want 0", n)
	}
}

// priorities reads back id -> priority for all active rows.
func priorities(t *testing.T, repo *tables.Repository) map[int64]int64 {
	t.Helper()
	rows, err := repo.List(context.Background(), tables.ListOptions{OrderBy: "priority"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := make(map[int64]int64, len(rows))
	for _, row := range rows {
		p, ok := row["priority"].(int64)
		if !ok {
			t.Fatalf("row %d has priority %v (%T)", row.ID(), row["priority"], row["priority"])
		}
		out[row.ID()] = p
	}
	return out
}

func TestRepositoryUpdatePriorityMoveUp(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	// ids 1..5 created with priority == id.
	for i := 0; i < 5; i++ {
		if _, err := repo.Create(ctx, tables.Row{"title": "t"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	// Move id 1 from rank 1 to rank 4: rows in (1,4] shift down by one.
	row, err := repo.UpdatePriority(ctx, 1, 4)
	if err != nil {
		t.Fatalf("UpdatePriority: %v", err)
	}
	if row["priority"] != int64(4) {
		t.Errorf("priority = %v, want 4", row["priority"])
	}

	want := map[int64]int64{1: 4, 2: 1, 3: 2, 4: 3, 5: 5}
	got := priorities(t, repo)
	for id, p := range want {
		if got[id] != p {
			t.Errorf("id %d priority = %d, want %d", id, got[id], p)
		}
	}
}

func TestRepositoryUpdatePriorityMoveDown(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := repo.Create(ctx, tables.Row{"title": "t"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	// Move id 5 from rank 5 to rank 2: rows in [2,5) shift up by one.
	if _, err := repo.UpdatePriority(ctx, 5, 2); err != nil {
		t.Fatalf("UpdatePriority: %v", err)
	}

	want := map[int64]int64{1: 1, 2: 3, 3: 4, 4: 5, 5: 2}
	got := priorities(t, repo)
	for id, p := range want {
		if got[id] != p {
			t.Errorf("id %d priority = %d, want %d", id, got[id], p)
		}
	}
}

func TestRepositoryUpdatePriorityDistinctAfterEachMove(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if _, err := repo.Create(ctx, tables.Row{"title": "t"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	moves := []struct{ id, target int64 }{
		{3, 6}, {1, 1}, {6, 2}, {2, 5}, {4, 4},
	}
	for _, m := range moves {
		if _, err := repo.UpdatePriority(ctx, m.id, m.target); err != nil {
			t.Fatalf("UpdatePriority(%d, %d): %v", m.id, m.target, err)
		}
		seen := make(map[int64]bool)
		for id, p := range priorities(t, repo) {
			if seen[p] {
				t.Fatalf("after move %+v: id %d duplicates priority %d", m, id, p)
			}
			seen[p] = true
		}
	}
}

func TestRepositoryUpdatePriorityNoop(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, tables.Row{"title": "t"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	row, err := repo.UpdatePriority(ctx, 2, 2)
	if err != nil {
		t.Fatalf("UpdatePriority noop: %v", err)
	}
	if row["priority"] != int64(2) {
		t.Errorf("priority = %v, want 2", row["priority"])
	}

	want := map[int64]int64{1: 1, 2: 2, 3: 3}
	got := priorities(t, repo)
	for id, p := range want {
		if got[id] != p {
			t.Errorf("id %d priority = %d, want %d", id, got[id], p)
		}
	}
}

func TestRepositoryUpdatePriorityErrors(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	if _, err := repo.UpdatePriority(ctx, 999, 1); !errors.Is(err, tables.ErrNotFound) {
		t.Errorf("missing id = %v, want ErrNotFound", err)
	}
	if _, err := repo.UpdatePriority(ctx, 1, -1); !errors.Is(err, tables.ErrInvalidArgument) {
		t.Errorf("negative target = %v, want ErrInvalidArgument", err)
	}

	cfg := taskConfig()
	cfg.Table = "plain_tasks"
	cfg.HasPriority = false
	plain := newRepo(t, cfg)
	if _, err := plain.UpdatePriority(ctx, 1, 1); !errors.Is(err, tables.ErrFeatureDisabled) {
		t.Errorf("no priority feature = %v, want ErrFeatureDisabled", err)
	}
}

func TestRepositoryRejectsReservedColumn(t *testing.T) {
	st := testutil.NewStore(t)
	_, err := tables.New(st, tables.Config{
		Table:   "bad",
		Columns: []dialect.Column{{Name: "id", Type: dialect.TypeInt}},
	}, nil)
	if !errors.Is(err, tables.ErrInvalidArgument) {
		t.Errorf("New = %v, want ErrInvalidArgument", err)
	}
}

func TestRepositoryJSONColumnRoundTrip(t *testing.T) {
	repo := newRepo(t, taskConfig())
	ctx := context.Background()

	meta := map[string]any{"labels": []any{"a", "b"}, "weight": float64(3)}
	row, err := repo.Create(ctx, tables.Row{"title": "j", "meta": meta})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, ok := row["meta"].(map[string]any)
	if !ok {
		t.Fatalf("meta = %v (%T), want map", row["meta"], row["meta"])
	}
	if got["weight"] != float64(3) {
		t.Errorf("weight = %v, want 3", got["weight"])
	}
	labels, _ := got["labels"].([]any)
	if len(labels) != 2 || labels[0] != "a" {
		t.Errorf("labels = %v, want [a b]", got["labels"])
	}
}
