package metrics

import "cryptoterm/logger"

// DropMetric identifies the metric name emitted when a message is discarded.
type DropMetric string

const (
	// DropMetricTick records ticks dropped because the event buffer was full.
	DropMetricTick DropMetric = "tick_messages_dropped"
	// DropMetricMalformed records frames that did not parse into a tick.
	DropMetricMalformed DropMetric = "malformed_frames_dropped"
	// DropMetricStale records completions discarded for an outdated generation.
	DropMetricStale DropMetric = "stale_events_dropped"
)

// EmitDropMetric emits one dropped-message count with optional exchange, pair
// and stage dimensions, and mirrors it into the Prometheus drop counter.
func EmitDropMetric(log *logger.Log, metric DropMetric, exchange, pair, stage string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if pair != "" {
		fields["pair"] = pair
	}
	if stage != "" {
		fields["stage"] = stage
	}

	ObserveDrop(exchange, string(metric))
	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
