package offer

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryMaxOffers bounds the in-memory directory so that abandoned
// offers cannot grow it without limit.
const DefaultMemoryMaxOffers = 100_000

// MemoryDirectory is an in-process Directory. Entries are purged by the LRU
// after purgeAfter, and Get double-checks ValidUntil against the clock.
type MemoryDirectory struct {
	clock Clock
	lru   *expirable.LRU[string, Offer]
}

// NewMemoryDirectory returns a directory holding up to maxOffers entries.
// purgeAfter should be at least the offer TTL; <= 0 disables time-based purge.
func NewMemoryDirectory(maxOffers int, purgeAfter time.Duration, clock Clock) *MemoryDirectory {
	if maxOffers <= 0 {
		maxOffers = DefaultMemoryMaxOffers
	}
	return &MemoryDirectory{
		clock: clockOrReal(clock),
		lru:   expirable.NewLRU[string, Offer](maxOffers, nil, purgeAfter),
	}
}

func (d *MemoryDirectory) Put(ctx context.Context, o Offer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.validate(); err != nil {
		return err
	}
	d.lru.Add(o.TransferID, o)
	return nil
}

func (d *MemoryDirectory) Get(ctx context.Context, transferID string) (Offer, error) {
	if err := ctx.Err(); err != nil {
		return Offer{}, err
	}
	o, ok := d.lru.Get(transferID)
	if !ok {
		return Offer{}, ErrNotFound
	}
	return live(o, d.clock.Now())
}

// Len returns the number of entries currently held, including expired ones
// that have not been purged yet.
func (d *MemoryDirectory) Len() int {
	return d.lru.Len()
}
