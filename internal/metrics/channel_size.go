package metrics

import (
	"context"
	"time"

	"cryptoterm/logger"
)

// BufferReporter is anything with a bounded buffer worth watching.
type BufferReporter interface {
	Len() int
	Cap() int
}

// StartChannelSizeMetrics emits the occupancy of the tick buffer every
// interval until ctx is cancelled. A non-positive interval means one second.
func StartChannelSizeMetrics(ctx context.Context, buf BufferReporter, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) || buf == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				EmitMetric(log, "channel_buffers", "tick_buffer_length", buf.Len(), "gauge", logger.Fields{
					"buffer":   "ticks",
					"capacity": buf.Cap(),
				})
			}
		}
	}()
}
