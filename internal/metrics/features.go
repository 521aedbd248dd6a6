package metrics

import (
	"strings"
	"sync/atomic"

	appconfig "cryptoterm/config"
)

// Feature names an optional family of metrics that can be switched off.
type Feature string

const (
	FeatureChannelSize  Feature = "channel_size"
	FeatureFetchLatency Feature = "fetch_latency"
)

type featureState struct {
	channelSize  bool
	fetchLatency bool
}

var features atomic.Pointer[featureState]

func init() {
	features.Store(&featureState{channelSize: true, fetchLatency: true})
}

// Configure applies the metric feature switches from configuration.
func Configure(cfg appconfig.MetricsConfig) {
	features.Store(&featureState{
		channelSize:  cfg.ChannelSize,
		fetchLatency: cfg.FetchLatency,
	})
}

// IsFeatureEnabled reports whether metrics of the given feature are emitted.
func IsFeatureEnabled(f Feature) bool {
	state := features.Load()
	switch f {
	case FeatureChannelSize:
		return state.channelSize
	case FeatureFetchLatency:
		return state.fetchLatency
	default:
		return true
	}
}

func featureForMetric(name string) (Feature, bool) {
	switch {
	case strings.HasSuffix(name, "_buffer_length"):
		return FeatureChannelSize, true
	case name == "fetch_duration_ms":
		return FeatureFetchLatency, true
	default:
		return "", false
	}
}
