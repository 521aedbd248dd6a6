package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"

	"cryptoterm/logger"
)

// Metric is one structured metric event. Fields never carries the metric,
// value or metric_type keys; those live in the struct.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler receives every emitted metric on the emitting goroutine.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registration. Zero is never issued.
type MetricHandlerID uint64

type handlerRegistry struct {
	mu   sync.RWMutex
	next MetricHandlerID
	byID map[MetricHandlerID]MetricHandler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{byID: make(map[MetricHandlerID]MetricHandler)}
}

var handlers = newHandlerRegistry()

// RegisterMetricHandler adds handler to the fan-out. A nil handler is ignored
// and yields zero.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	handlers.mu.Lock()
	defer handlers.mu.Unlock()
	handlers.next++
	handlers.byID[handlers.next] = handler
	return handlers.next
}

// UnregisterMetricHandler removes a registration; unknown ids are ignored.
func UnregisterMetricHandler(id MetricHandlerID) {
	handlers.mu.Lock()
	delete(handlers.byID, id)
	handlers.mu.Unlock()
}

// snapshot returns the handlers in registration order.
func (r *handlerRegistry) snapshot() []MetricHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.byID) == 0 {
		return nil
	}
	ids := slices.Sorted(maps.Keys(r.byID))
	out := make([]MetricHandler, len(ids))
	for i, id := range ids {
		out[i] = r.byID[id]
	}
	return out
}

// recordMetric logs the metric and fans it out. It reports false when the
// metric has no name or its feature switch is off.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if f, gated := featureForMetric(name); gated && !IsFeatureEnabled(f) {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	metric := Metric{
		Timestamp: timeNow(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    logger.Fields{},
	}
	maps.Copy(metric.Fields, fields)

	log.LogMetric(component, name, value, metricType, metric.Fields)

	for _, handle := range handlers.snapshot() {
		handle(metric)
	}
	return metric, true
}
