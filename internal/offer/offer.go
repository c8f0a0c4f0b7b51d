// Package offer contains the offer directory: the only durable state of the
// coordinator. An Offer maps a transfer id to the offering peer's live
// connection handle until it expires.
//
// Backends:
//   - MemoryDirectory: in-process, for development and tests.
//   - DynamoDBDirectory: an AWS DynamoDB table with TTL on valid_until.
//   - EtcdDirectory: etcd keys attached to a lease of the offer's lifetime.
//   - SQLDirectory: a SQLite table via gorm.
package offer

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Directory.Get when there is no live offer for
	// the transfer id.
	ErrNotFound = errors.New("offer not found")
	// ErrInvalidOffer is returned by Directory.Put for offers missing a key
	// field.
	ErrInvalidOffer = errors.New("invalid offer")
)

// Offer pairs a transfer id with the offerer's connection handle.
type Offer struct {
	TransferID       string
	ConnectionHandle string
	ValidUntil       time.Time
}

// Expired reports whether the offer is no longer valid at now.
func (o Offer) Expired(now time.Time) bool {
	return !now.Before(o.ValidUntil)
}

func (o Offer) validate() error {
	if o.TransferID == "" || o.ConnectionHandle == "" {
		return ErrInvalidOffer
	}
	return nil
}

// Directory stores at most one offer per transfer id.
//
// Put is an unconditional upsert (last writer wins). Get must report
// ErrNotFound for an offer whose ValidUntil has passed even if the backing
// store has not purged it yet.
type Directory interface {
	Put(ctx context.Context, o Offer) error
	Get(ctx context.Context, transferID string) (Offer, error)
}

// Clock is the time source used by directories to evaluate expiry.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func clockOrReal(c Clock) Clock {
	if c == nil {
		return realClock{}
	}
	return c
}

// live returns o unless it has expired at now.
func live(o Offer, now time.Time) (Offer, error) {
	if o.Expired(now) {
		return Offer{}, ErrNotFound
	}
	return o, nil
}
