// Package admission bounds the number of connection workers running at once.
package admission

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMax is the worker ceiling used when none is configured.
const DefaultMax = 20

// Controller is a counting gate. Acquire must be called before a worker is
// started and Release exactly once when the worker's transaction is done.
type Controller struct {
	sem    *semaphore.Weighted
	max    int64
	active atomic.Int64
	peak   atomic.Int64
}

// NewController creates a Controller admitting at most max workers.
// A non-positive max falls back to DefaultMax.
func NewController(max int) *Controller {
	if max <= 0 {
		max = DefaultMax
	}
	return &Controller{
		sem: semaphore.NewWeighted(int64(max)),
		max: int64(max),
	}
}

// Acquire blocks until fewer than Max workers are active, then takes a slot.
// It returns ctx.Err() without taking a slot if ctx ends first.
func (c *Controller) Acquire(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.admitted()
	return nil
}

func (c *Controller) admitted() {
	n := c.active.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Release frees a slot and lets one blocked Acquire proceed. Releasing
// more slots than were acquired panics.
func (c *Controller) Release() {
	if c.active.Add(-1) < 0 {
		panic("admission: release without matching acquire")
	}
	c.sem.Release(1)
}

// Active returns the number of slots currently held.
func (c *Controller) Active() int {
	return int(c.active.Load())
}

// Max returns the configured ceiling.
func (c *Controller) Max() int {
	return int(c.max)
}

// Peak returns the highest number of slots ever held at once.
func (c *Controller) Peak() int {
	return int(c.peak.Load())
}
