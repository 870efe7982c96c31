// Package telemetry tracks mutable operational counters kept beside the
// ledger, never inside it. Scan counts change on every verification attempt
// and are telemetry, not history, so they must not participate in the hash
// chain.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScanCounter counts verification attempts per credential nonce inside a
// sliding window. Bump records one more scan and returns the count observed
// in the current window, including this one.
type ScanCounter interface {
	Bump(ctx context.Context, nonce string) (int64, error)
}

// RedisScanCounter keeps the counters in Redis so every service instance
// observes the same scan pressure.
type RedisScanCounter struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedisScanCounter wraps an existing client. window bounds how long a
// nonce's scan count survives without new scans.
func NewRedisScanCounter(client *redis.Client, prefix string, window time.Duration) *RedisScanCounter {
	if prefix == "" {
		prefix = "veritrace"
	}
	return &RedisScanCounter{client: client, prefix: prefix, window: window}
}

func (c *RedisScanCounter) Bump(ctx context.Context, nonce string) (int64, error) {
	key := fmt.Sprintf("%s:scans:%s", c.prefix, nonce)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// MemoryScanCounter is a process-local ScanCounter for tests and the demo
// binary.
type MemoryScanCounter struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	counts map[string]*windowCount
}

type windowCount struct {
	n       int64
	expires time.Time
}

// NewMemoryScanCounter returns a counter with the given sliding window.
func NewMemoryScanCounter(window time.Duration) *MemoryScanCounter {
	return &MemoryScanCounter{
		window: window,
		now:    time.Now,
		counts: make(map[string]*windowCount),
	}
}

func (c *MemoryScanCounter) Bump(ctx context.Context, nonce string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	wc, ok := c.counts[nonce]
	if !ok || now.After(wc.expires) {
		wc = &windowCount{}
		c.counts[nonce] = wc
	}
	wc.n++
	wc.expires = now.Add(c.window)
	return wc.n, nil
}
