package offer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// exerciseDirectory runs the behaviour every backend must share.
func exerciseDirectory(t *testing.T, dir Directory, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()

	if _, err := dir.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) err=%v, want ErrNotFound", err)
	}

	o := Offer{TransferID: "t1", ConnectionHandle: "A", ValidUntil: clock.Now().Add(15 * time.Minute)}
	if err := dir.Put(ctx, o); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := dir.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ConnectionHandle != "A" || got.TransferID != "t1" {
		t.Fatalf("Get=%+v, want handle A for t1", got)
	}
	if !got.ValidUntil.Equal(o.ValidUntil) {
		t.Fatalf("ValidUntil=%v, want %v", got.ValidUntil, o.ValidUntil)
	}

	// Last writer wins.
	o2 := Offer{TransferID: "t1", ConnectionHandle: "B", ValidUntil: clock.Now().Add(15 * time.Minute)}
	if err := dir.Put(ctx, o2); err != nil {
		t.Fatalf("Put(overwrite): %v", err)
	}
	got, err = dir.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if got.ConnectionHandle != "B" {
		t.Fatalf("handle=%q, want B", got.ConnectionHandle)
	}

	clock.Advance(15*time.Minute - time.Second)
	if _, err := dir.Get(ctx, "t1"); err != nil {
		t.Fatalf("Get before expiry: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := dir.Get(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get at expiry err=%v, want ErrNotFound", err)
	}

	if err := dir.Put(ctx, Offer{TransferID: "", ConnectionHandle: "A", ValidUntil: clock.Now().Add(time.Minute)}); !errors.Is(err, ErrInvalidOffer) {
		t.Fatalf("Put(empty id) err=%v, want ErrInvalidOffer", err)
	}
	if err := dir.Put(ctx, Offer{TransferID: "t2", ValidUntil: clock.Now().Add(time.Minute)}); !errors.Is(err, ErrInvalidOffer) {
		t.Fatalf("Put(empty handle) err=%v, want ErrInvalidOffer", err)
	}
}

func TestOfferExpired(t *testing.T) {
	now := time.Unix(100, 0)
	o := Offer{ValidUntil: now}
	if !o.Expired(now) {
		t.Fatalf("Expired(ValidUntil)=false, want true")
	}
	if o.Expired(now.Add(-time.Nanosecond)) {
		t.Fatalf("Expired(before ValidUntil)=true, want false")
	}
}
