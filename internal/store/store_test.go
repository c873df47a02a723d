package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/HerbHall/tablestore/internal/dialect"
	"github.com/HerbHall/tablestore/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(dialect.SQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenUnknownDialect(t *testing.T) {
	if _, err := store.Open("mysql", ""); err == nil {
		t.Error("Open(mysql) succeeded, want error")
	}
}

func TestKind(t *testing.T) {
	st := newStore(t)
	if st.Kind() != dialect.SQLite {
		t.Errorf("Kind = %v, want sqlite", st.Kind())
	}
}

func TestTxCommit(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	if _, err := st.DB().ExecContext(ctx, "CREATE TABLE t (n INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := st.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (n) VALUES (1)")
		return err
	})
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}

	var n int
	if err := st.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestTxRollback(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	if _, err := st.DB().ExecContext(ctx, "CREATE TABLE t (n INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	boom := errors.New("boom")
	err := st.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (n) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Tx = %v, want boom", err)
	}

	var n int
	if err := st.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d after rollback, want 0", n)
	}
}
