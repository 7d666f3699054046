package ratelimit

import (
	"sync"
	"time"
)

const (
	bucketSize   = 5
	refillWindow = 5 * time.Second
)

// Bucket is a coarse per-connection token bucket: the full allowance
// comes back once the refill window has elapsed, so a burst right
// after a window boundary is tolerated.
type Bucket struct {
	mu         sync.Mutex
	tokens     int
	lastRefill time.Time

	now func() time.Time
}

func NewBucket() *Bucket {
	b := &Bucket{tokens: bucketSize, now: time.Now}
	b.lastRefill = b.now()
	return b
}

// Allow admits or rejects one send attempt.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if now.Sub(b.lastRefill) > refillWindow {
		b.tokens = bucketSize
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}
