// Package channel carries feed adapter output into the terminal event loop.
package channel

import (
	"context"
	"sync"

	"cryptoterm/internal/models"
	"cryptoterm/logger"
)

// ChannelStats tracks enqueue and drop counters.
type ChannelStats struct {
	TicksSent    int64
	TicksDropped int64
	StatesSent   int64
}

// Events exposes the tick and connection-state streams. Ticks may be dropped
// under back-pressure; state events never are.
type Events struct {
	Ticks  chan models.Tick
	States chan models.StateEvent

	stats ChannelStats
	mu    sync.RWMutex
	log   *logger.Log
}

// NewEvents allocates buffered channels. The state buffer is sized so that one
// transition per exchange never blocks an adapter.
func NewEvents(tickBufferSize int) *Events {
	if tickBufferSize <= 0 {
		tickBufferSize = 1
	}
	stateBufferSize := 4 * len(models.Exchanges)

	log := logger.GetLogger()
	ch := &Events{
		Ticks:  make(chan models.Tick, tickBufferSize),
		States: make(chan models.StateEvent, stateBufferSize),
		log:    log,
	}

	log.WithComponent("event_channels").WithFields(logger.Fields{
		"tick_buffer_size":  tickBufferSize,
		"state_buffer_size": stateBufferSize,
	}).Info("event channels initialized")

	return ch
}

// SendTick enqueues a tick without blocking. It reports false when the buffer
// is full or ctx is done.
func (c *Events) SendTick(ctx context.Context, tick models.Tick) bool {
	select {
	case c.Ticks <- tick:
		c.mu.Lock()
		c.stats.TicksSent++
		c.mu.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.mu.Lock()
		c.stats.TicksDropped++
		c.mu.Unlock()
		return false
	}
}

// SendState enqueues a state transition, blocking until it is accepted or
// ctx is done.
func (c *Events) SendState(ctx context.Context, ev models.StateEvent) bool {
	select {
	case c.States <- ev:
		c.mu.Lock()
		c.stats.StatesSent++
		c.mu.Unlock()
		return true
	case <-ctx.Done():
		return false
	}
}

// GetStats returns a snapshot of the counters.
func (c *Events) GetStats() ChannelStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Len and Cap report tick buffer occupancy.
func (c *Events) Len() int { return len(c.Ticks) }
func (c *Events) Cap() int { return cap(c.Ticks) }
