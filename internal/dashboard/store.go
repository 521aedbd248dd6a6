package dashboard

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cryptoterm/internal/metrics"
)

// ring keeps the most recent limit items. It is safe for concurrent use.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = 200
	}
	return &ring[T]{limit: limit}
}

func (r *ring[T]) push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)
	if len(r.items) > r.limit {
		// keep the most recent entries only
		r.items = append([]T(nil), r.items[len(r.items)-r.limit:]...)
	}
}

// snapshot copies the retained items, oldest first, keeping those keep
// accepts. A nil keep accepts everything.
func (r *ring[T]) snapshot(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.items))
	for _, item := range r.items {
		if keep == nil || keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// metricStore retains the most recent metrics emitted through metrics.EmitMetric.
type metricStore struct {
	*ring[metrics.Metric]
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{ring: newRing[metrics.Metric](limit)}
}

func (s *metricStore) handle(metric metrics.Metric) {
	s.push(metric)
}

// byComponent returns retained metrics, restricted to component when set.
func (s *metricStore) byComponent(component string) []metrics.Metric {
	if component == "" {
		return s.snapshot(nil)
	}
	return s.snapshot(func(m metrics.Metric) bool { return m.Component == component })
}

// logRecord is the serialisable representation of a captured log entry.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore is a logrus hook that retains the most recent log entries.
type logStore struct {
	*ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{ring: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}

	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}

	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}

			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.push(record)
	return nil
}

// atLeast returns retained records at or above level, restricted to
// component when set.
func (s *logStore) atLeast(level logrus.Level, component string) []logRecord {
	return s.snapshot(func(r logRecord) bool {
		l, err := logrus.ParseLevel(r.Level)
		if err != nil || l > level {
			return false
		}
		return component == "" || r.Component == component
	})
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
