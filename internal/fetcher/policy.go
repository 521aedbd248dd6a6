package fetcher

import (
	"time"

	"cryptoterm/internal/models"
)

const (
	// MaxBackendLimit caps bars per request for minute and coarser timeframes.
	MaxBackendLimit = 200000
	// MaxBackendLimitSubMinute caps bars per request for 1s and 5s timeframes.
	MaxBackendLimitSubMinute = 5000
	// MaxHistoryDays bounds every day-based selection.
	MaxHistoryDays = 7300
)

var historyDayBase = []int{1, 3, 7, 14, 30, 60, 90, 180, 365, 730, 1825, 3650, 7300}

// BarsPerDay returns the number of candles a day spans at tf.
func BarsPerDay(tf models.Timeframe) int {
	switch tf {
	case models.TF1s:
		return 86400
	case models.TF5s:
		return 17280
	case models.TF1m:
		return 1440
	case models.TF5m:
		return 288
	case models.TF15m:
		return 96
	case models.TF30m:
		return 48
	case models.TF1h:
		return 24
	case models.TF2h:
		return 12
	case models.TF4h:
		return 6
	case models.TF1d:
		return 1
	default:
		return 1440
	}
}

// MaxLimit returns the largest limit the backend accepts for tf.
func MaxLimit(tf models.Timeframe) int {
	if tf.SubMinute() {
		return MaxBackendLimitSubMinute
	}
	return MaxBackendLimit
}

// PollInterval is the live refetch cadence for tf.
func PollInterval(tf models.Timeframe) time.Duration {
	switch tf {
	case models.TF1s, models.TF5s:
		return time.Second
	case models.TF1m:
		return 5 * time.Second
	case models.TF5m:
		return 10 * time.Second
	case models.TF15m, models.TF30m:
		return 15 * time.Second
	case models.TF1h, models.TF2h, models.TF4h:
		return 30 * time.Second
	case models.TF1d:
		return time.Minute
	default:
		return 10 * time.Second
	}
}

// LimitForHistory converts a history window in days into a request limit.
func LimitForHistory(historyDays int, tf models.Timeframe) int {
	bpd := BarsPerDay(tf)
	return min(max(historyDays*bpd, bpd), MaxLimit(tf))
}

// MaxHistoryDaysFor is the longest history window the backend can serve at tf.
func MaxHistoryDaysFor(tf models.Timeframe) int {
	return max(1, min(MaxHistoryDays, MaxLimit(tf)/BarsPerDay(tf)))
}

// HistoryDayOptions lists selectable history windows for tf.
func HistoryDayOptions(tf models.Timeframe) []int {
	maxDays := MaxHistoryDaysFor(tf)
	out := make([]int, 0, len(historyDayBase))
	for _, d := range historyDayBase {
		if d <= maxDays {
			out = append(out, d)
		}
	}
	return out
}

// ClampHistoryDays keeps a selection inside what tf allows.
func ClampHistoryDays(days int, tf models.Timeframe) int {
	return clamp(days, 1, MaxHistoryDaysFor(tf))
}

// TimeframeOption is one entry of the timeframe picker.
type TimeframeOption struct {
	Timeframe models.Timeframe `json:"timeframe"`
	Disabled  bool             `json:"disabled"`
	Reason    string           `json:"reason,omitempty"`
}

// TimeframeSupported reports whether every exchange in exchanges can serve tf.
// Sub-minute bars are built from Binance trades only and Coinbase has no
// 30m or 2h granularity.
func TimeframeSupported(tf models.Timeframe, exchanges []models.ExchangeID) bool {
	_, ok := unsupportedReason(tf, exchanges)
	return ok
}

func unsupportedReason(tf models.Timeframe, exchanges []models.ExchangeID) (string, bool) {
	if !tf.Valid() {
		return "unknown timeframe", false
	}
	if tf.SubMinute() {
		if len(exchanges) == 0 {
			return "1s/5s are only available on binance", false
		}
		for _, ex := range exchanges {
			if ex != models.Binance {
				return "1s/5s are only available on binance", false
			}
		}
	}
	if tf == models.TF30m || tf == models.TF2h {
		for _, ex := range exchanges {
			if ex == models.Coinbase {
				return "not supported by coinbase", false
			}
		}
	}
	return "", true
}

// TimeframeOptions lists all timeframes with unsupported ones disabled.
func TimeframeOptions(exchanges []models.ExchangeID) []TimeframeOption {
	out := make([]TimeframeOption, 0, len(models.Timeframes))
	for _, tf := range models.Timeframes {
		reason, ok := unsupportedReason(tf, exchanges)
		out = append(out, TimeframeOption{Timeframe: tf, Disabled: !ok, Reason: reason})
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
