// Registers:
//
//	#cryptoterm_ticks_total
//	#cryptoterm_dropped_total
//	#cryptoterm_fetch_total
//	#cryptoterm_fetch_duration_seconds
//	#cryptoterm_connection_state
//	#cryptoterm_reconnects_total
//	#go_* and process_* system metrics
//
// The dashboard serves them through Handler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoterm/internal/models"
)

var (
	once          sync.Once
	registry      *prometheus.Registry
	ticksTotal    *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	fetchTotal    *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	connState     *prometheus.GaugeVec
	reconnects    *prometheus.CounterVec
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		ticksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoterm_ticks_total",
				Help: "Price ticks applied to the live price table",
			},
			[]string{"exchange"},
		)
		droppedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoterm_dropped_total",
				Help: "Messages dropped before reaching the terminal loop",
			},
			[]string{"exchange", "reason"},
		)
		fetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoterm_fetch_total",
				Help: "Candle fetches by outcome",
			},
			[]string{"result"},
		)
		fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptoterm_fetch_duration_seconds",
			Help:    "Candle fetch latency",
			Buckets: prometheus.DefBuckets,
		})
		connState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptoterm_connection_state",
				Help: "1 for the current state of each exchange stream",
			},
			[]string{"exchange", "state"},
		)
		reconnects = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoterm_reconnects_total",
				Help: "Adapters replaced by the reconnect sweep",
			},
			[]string{"exchange"},
		)

		registry.MustRegister(ticksTotal, droppedTotal, fetchTotal, fetchDuration, connState, reconnects)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registered collectors in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveTick counts one applied tick.
func ObserveTick(exchange models.ExchangeID) {
	if ticksTotal != nil {
		ticksTotal.WithLabelValues(string(exchange)).Inc()
	}
}

// ObserveDrop counts one dropped message.
func ObserveDrop(exchange, reason string) {
	if droppedTotal != nil {
		droppedTotal.WithLabelValues(exchange, reason).Inc()
	}
}

// ObserveFetch records a completed candle fetch.
func ObserveFetch(err error, d time.Duration) {
	if fetchTotal == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	fetchTotal.WithLabelValues(result).Inc()
	fetchDuration.Observe(d.Seconds())
}

// SetConnState marks state as the only active state for exchange.
func SetConnState(exchange models.ExchangeID, state models.ConnState) {
	if connState == nil {
		return
	}
	for _, s := range []models.ConnState{models.StateConnecting, models.StateConnected, models.StateDisconnected} {
		v := 0.0
		if s == state {
			v = 1
		}
		connState.WithLabelValues(string(exchange), string(s)).Set(v)
	}
}

// IncReconnect counts one adapter replacement.
func IncReconnect(exchange models.ExchangeID) {
	if reconnects != nil {
		reconnects.WithLabelValues(string(exchange)).Inc()
	}
}
