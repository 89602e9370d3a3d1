package strategy

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wudi/edgecache/internal/cache"
)

// Coalescer deduplicates concurrent identical origin fetches using
// singleflight. A burst of tabs requesting the same uncached asset results
// in a single origin round trip.
type Coalescer struct {
	group   singleflight.Group
	timeout time.Duration

	groupsCreated     atomic.Int64
	requestsCoalesced atomic.Int64
	timeouts          atomic.Int64
}

// CoalesceStats is a snapshot of coalescing counters.
type CoalesceStats struct {
	GroupsCreated     int64 `json:"groups_created"`
	RequestsCoalesced int64 `json:"requests_coalesced"`
	Timeouts          int64 `json:"timeouts"`
}

// NewCoalescer creates a coalescer. timeout bounds how long a caller waits
// on a shared in-flight fetch before falling through to its own.
func NewCoalescer(timeout time.Duration) *Coalescer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coalescer{timeout: timeout}
}

// Fetch runs fn once per key, sharing the result with concurrent callers.
// The second return reports whether this caller shared another's result.
// On timeout the key is forgotten and a deadline error is returned; a stuck
// origin fetch never fans out into extra origin load.
func (c *Coalescer) Fetch(ctx context.Context, key string, fn func() (*cache.Entry, error)) (*cache.Entry, bool, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		c.groupsCreated.Add(1)
		return fn()
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			return nil, false, result.Err
		}
		if result.Shared {
			c.requestsCoalesced.Add(1)
		}
		return result.Val.(*cache.Entry), result.Shared, nil

	case <-time.After(c.timeout):
		// Forget the key so later callers don't queue on a stuck fetch.
		c.group.Forget(key)
		c.timeouts.Add(1)
		return nil, false, context.DeadlineExceeded

	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Stats returns a snapshot of the coalescing counters.
func (c *Coalescer) Stats() CoalesceStats {
	return CoalesceStats{
		GroupsCreated:     c.groupsCreated.Load(),
		RequestsCoalesced: c.requestsCoalesced.Load(),
		Timeouts:          c.timeouts.Load(),
	}
}
