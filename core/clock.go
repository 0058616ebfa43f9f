package core

import (
	"sync"
	"time"
)

// monotonicClock reads wall-clock seconds with a floor at the last value
// handed out, so the dispenser never observes time moving backwards even if
// the host clock is stepped.
type monotonicClock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{now: time.Now}
}

func (c *monotonicClock) CurrentTime() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := uint64(c.now().UTC().Unix())
	if now < c.last {
		return c.last
	}
	c.last = now
	return now
}
