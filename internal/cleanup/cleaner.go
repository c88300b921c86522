package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper drops expired in-memory state and reports how much it removed
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Cleaner periodically sweeps idle editor sessions, expired auth sessions and stale rate limiters
type Cleaner struct {
	sweepers map[string]Sweeper
	interval time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		sweepers: make(map[string]Sweeper),
		interval: interval,
	}
}

// Register adds a named sweeper. Must be called before Start.
func (c *Cleaner) Register(name string, s Sweeper) {
	c.sweepers[name] = s
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "sweepers", len(c.sweepers))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.Cleanup(ctx)
		}
	}
}

// Cleanup runs one sweep over every registered sweeper and returns the total removed
func (c *Cleaner) Cleanup(ctx context.Context) int {
	slog.Debug("running cleanup cycle")

	total := 0
	for name, s := range c.sweepers {
		if ctx.Err() != nil {
			return total
		}

		removed := s.Sweep(ctx)
		if removed > 0 {
			slog.Info("expired entries removed", "sweeper", name, "count", removed)
		}
		total += removed
	}
	return total
}
