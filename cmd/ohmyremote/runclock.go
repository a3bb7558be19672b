package main

import (
	"sync"
	"time"
)

// runClock tracks each in-flight run's wall-clock start time so the
// run_finished event (which carries only a terminal status, not a
// duration) can still be reported to the streamer and dashboard with an
// elapsed time.
type runClock struct {
	mu     sync.Mutex
	starts map[string]time.Time
}

func newRunClock() *runClock {
	return &runClock{starts: map[string]time.Time{}}
}

// touch records runID's first-seen time if this is the first event
// observed for it.
func (c *runClock) touch(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.starts[runID]; !ok {
		c.starts[runID] = time.Now()
	}
}

// elapsedMs returns the milliseconds since touch was first called for
// runID and forgets it.
func (c *runClock) elapsedMs(runID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	start, ok := c.starts[runID]
	delete(c.starts, runID)
	if !ok {
		return 0
	}
	return time.Since(start).Milliseconds()
}
