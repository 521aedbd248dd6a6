package dashboard

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"cryptoterm/internal/channel"
	"cryptoterm/logger"
)

// resourceSnapshot captures a single sample of host and process resource
// usage together with the tick channel counters.
type resourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
	Goroutines  int       `json:"goroutines"`
	HeapAlloc   uint64    `json:"heap_alloc"`
	HeapSys     uint64    `json:"heap_sys"`
	Sys         uint64    `json:"sys"`
	NumGC       uint32    `json:"num_gc"`
	TickBuffer  int       `json:"tick_buffer"`
	TicksSent   int64     `json:"ticks_sent"`
	TicksDrop   int64     `json:"ticks_dropped"`
	StatesSent  int64     `json:"states_sent"`
}

// BufferReporter reports the occupancy of the tick buffer.
type BufferReporter interface {
	Len() int
}

// statsReporter is implemented by *channel.Events.
type statsReporter interface {
	GetStats() channel.ChannelStats
}

type resourceSampler struct {
	mu       sync.RWMutex
	items    []resourceSnapshot
	limit    int
	interval time.Duration
	diskPath string
	buffer   BufferReporter

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

var (
	// A zero interval reports usage since the previous call without blocking.
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
	memStatsFn    = func(m *runtime.MemStats) { runtime.ReadMemStats(m) }
	goroutineFn   = runtime.NumGoroutine
)

func newResourceSampler(limit int, interval time.Duration, diskPath string, buffer BufferReporter, log *logger.Log) *resourceSampler {
	if limit <= 0 {
		limit = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &resourceSampler{
		limit:    limit,
		interval: interval,
		diskPath: diskPath,
		buffer:   buffer,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil {
		return
	}
	if s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if cancel := s.cancel; cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *resourceSampler) snapshot() []resourceSnapshot {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resourceSnapshot, len(s.items))
	copy(out, s.items)
	return out
}

func (s *resourceSampler) append(snapshot resourceSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snapshot)
	if len(s.items) > s.limit {
		s.items = append([]resourceSnapshot(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *resourceSampler) sample(ctx context.Context) (resourceSnapshot, error) {
	cpuSamples, err := cpuPercentFn(ctx, 0)
	if err != nil {
		return resourceSnapshot{}, fmt.Errorf("sample cpu usage: %w", err)
	}
	memStats, err := memoryStatsFn(ctx)
	if err != nil {
		return resourceSnapshot{}, fmt.Errorf("sample memory usage: %w", err)
	}
	diskStats, err := diskUsageFn(ctx, s.diskPath)
	if err != nil {
		return resourceSnapshot{}, fmt.Errorf("sample disk usage: %w", err)
	}

	var rt runtime.MemStats
	memStatsFn(&rt)
	snap := resourceSnapshot{
		Timestamp:   time.Now(),
		CPUPercent:  firstSample(cpuSamples),
		MemoryUsed:  memStats.Used,
		MemoryTotal: memStats.Total,
		MemoryPct:   memStats.UsedPercent,
		DiskUsed:    diskStats.Used,
		DiskTotal:   diskStats.Total,
		DiskPct:     diskStats.UsedPercent,
		Goroutines:  goroutineFn(),
		HeapAlloc:   rt.HeapAlloc,
		HeapSys:     rt.HeapSys,
		Sys:         rt.Sys,
		NumGC:       rt.NumGC,
	}
	if s.buffer != nil {
		snap.TickBuffer = s.buffer.Len()
	}
	if sr, ok := s.buffer.(statsReporter); ok {
		stats := sr.GetStats()
		snap.TicksSent = stats.TicksSent
		snap.TicksDrop = stats.TicksDropped
		snap.StatesSent = stats.StatesSent
	}
	return snap, nil
}

func (s *resourceSampler) collect(ctx context.Context) {
	snap, err := s.sample(ctx)
	if err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample resources")
		return
	}
	s.append(snap)
}

func (s *resourceSampler) run(ctx context.Context) {
	defer s.running.Store(false)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.collect(ctx)
		}
	}
}

func firstSample(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[0]
}
