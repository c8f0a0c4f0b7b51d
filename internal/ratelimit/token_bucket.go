// Package ratelimit limits how fast a single gateway connection may send
// frames.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// One token is 1e9 nano-tokens, so a rate of X tokens/sec adds X nano-tokens
// per elapsed nanosecond and no floating point is needed.
const nanoTokensPerToken int64 = int64(time.Second)

const maxInt64 = int64(^uint64(0) >> 1)

// TokenBucket refills at an integer rate (tokens/sec) up to its capacity. It
// starts full. It is safe for concurrent use.
type TokenBucket struct {
	mu    sync.Mutex
	clock Clock

	capacity  int64 // nano-tokens
	rate      int64 // tokens/sec == nano-tokens/ns
	available int64 // nano-tokens
	last      time.Time
}

func NewTokenBucket(clock Clock, capacityTokens, tokensPerSecond int64) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	if tokensPerSecond < 0 {
		tokensPerSecond = 0
	}
	capacity := toNano(capacityTokens)
	return &TokenBucket{
		clock:     clock,
		capacity:  capacity,
		rate:      tokensPerSecond,
		available: capacity,
		last:      clock.Now(),
	}
}

// PerSecond returns a bucket allowing n events per second with a burst of n.
func PerSecond(clock Clock, n int) *TokenBucket {
	return NewTokenBucket(clock, int64(n), int64(n))
}

// Allow consumes tokens if they are available. tokens <= 0 always succeeds.
func (b *TokenBucket) Allow(tokens int64) bool {
	if tokens <= 0 {
		return true
	}
	cost := toNano(tokens)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.available < cost {
		return false
	}
	b.available -= cost
	return true
}

func (b *TokenBucket) refillLocked() {
	now := b.clock.Now()
	elapsed := now.Sub(b.last).Nanoseconds()
	// A clock that went backwards only moves the reference point.
	b.last = now
	if elapsed <= 0 || b.rate == 0 || b.available >= b.capacity {
		return
	}

	need := b.capacity - b.available
	// elapsed*rate could overflow; anything past the fill time just fills.
	if elapsed >= need/b.rate+1 {
		b.available = b.capacity
		return
	}
	b.available += elapsed * b.rate
	if b.available > b.capacity {
		b.available = b.capacity
	}
}

func toNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoTokensPerToken {
		return maxInt64
	}
	return tokens * nanoTokensPerToken
}
