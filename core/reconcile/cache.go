package reconcile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache holds the latest report for a TTL.
type Cache struct {
	ttl     time.Duration
	analyze func(context.Context) (*Report, error)

	mu     sync.RWMutex
	built  time.Time
	report *Report
	sf     singleflight.Group
}

// NewCache creates a cache that fills itself with analyze.
func NewCache(ttl time.Duration, analyze func(context.Context) (*Report, error)) *Cache {
	return &Cache{ttl: ttl, analyze: analyze}
}

func (c *Cache) fresh() (*Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.report == nil || c.ttl == 0 || time.Since(c.built) > c.ttl {
		return nil, false
	}
	return c.report, true
}

// Get returns the cached report or builds a new one. Concurrent callers
// share a single analysis.
func (c *Cache) Get(ctx context.Context) (*Report, error) {
	if report, ok := c.fresh(); ok {
		return report, nil
	}

	result, err, _ := c.sf.Do("report", func() (any, error) {
		if report, ok := c.fresh(); ok {
			return report, nil
		}
		// Detached so one caller's cancellation does not fail the others.
		report, err := c.analyze(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.report = report
		c.built = time.Now()
		c.mu.Unlock()
		return report, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Report), nil
}

// Invalidate drops the cached report.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.report = nil
	c.mu.Unlock()
}
