package offer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestSQLDirectory(t *testing.T, clock Clock) *SQLDirectory {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewSQLDirectory(db, clock)
}

func TestSQLDirectory(t *testing.T) {
	clock := newFakeClock()
	exerciseDirectory(t, newTestSQLDirectory(t, clock), clock)
}

func TestSQLDirectory_Purge(t *testing.T) {
	clock := newFakeClock()
	dir := newTestSQLDirectory(t, clock)
	ctx := context.Background()

	if err := dir.Put(ctx, Offer{TransferID: "short", ConnectionHandle: "A", ValidUntil: clock.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Put(short): %v", err)
	}
	if err := dir.Put(ctx, Offer{TransferID: "long", ConnectionHandle: "B", ValidUntil: clock.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Put(long): %v", err)
	}

	clock.Advance(2 * time.Minute)
	n, err := dir.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("Purge removed %d rows, want 1", n)
	}
	if _, err := dir.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(short) err=%v, want ErrNotFound", err)
	}
	if got, err := dir.Get(ctx, "long"); err != nil || got.ConnectionHandle != "B" {
		t.Fatalf("Get(long)=%+v, %v; want handle B", got, err)
	}
}
