package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type channelStat struct {
	messages int64
	bytes    int64
}

type levelStat struct {
	warns  int64
	errors int64
}

var (
	channels   sync.Map // map[string]*channelStat
	components sync.Map // map[string]*levelStat
)

var (
	reportCPUFn  = func() ([]float64, error) { return cpu.Percent(0, false) }
	reportMemFn  = mem.VirtualMemory
	reportDiskFn = func() (*disk.UsageStat, error) { return disk.Usage("/") }
	reportNetFn  = func() ([]gnet.IOCountersStat, error) { return gnet.IOCounters(false) }
)

func componentStat(component string) *levelStat {
	v, _ := components.LoadOrStore(component, &levelStat{})
	return v.(*levelStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentStat(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentStat(component).errors, 1)
}

// RecordChannelMessage counts one message of size bytes passing through name.
func RecordChannelMessage(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// RuntimeReport returns host, process and channel statistics gathered so
// far. Host collectors that fail report zero.
func RuntimeReport() Fields {
	var rt runtime.MemStats
	runtime.ReadMemStats(&rt)

	cpuPct := 0.0
	if samples, err := reportCPUFn(); err == nil && len(samples) > 0 {
		cpuPct = samples[0]
	}
	var memoryMB, diskMB int64
	if vm, err := reportMemFn(); err == nil && vm != nil {
		memoryMB = int64(vm.Used) / 1024 / 1024
	}
	if du, err := reportDiskFn(); err == nil && du != nil {
		diskMB = int64(du.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if counters, err := reportNetFn(); err == nil && len(counters) > 0 {
		bytesSent = counters[0].BytesSent
		bytesRecv = counters[0].BytesRecv
	}

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	componentData := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		ls := v.(*levelStat)
		componentData[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&ls.warns),
			"errors": atomic.LoadInt64(&ls.errors),
		}
		return true
	})

	return Fields{
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  int64(rt.HeapAlloc) / 1024 / 1024,
		"sys_mb":         int64(rt.Sys) / 1024 / 1024,
		"num_gc":         rt.NumGC,
		"cpu_percent":    cpuPct,
		"memory_mb":      memoryMB,
		"disk_mb":        diskMB,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
		"channels":       channelData,
		"components":     componentData,
	}
}

// StartReport logs RuntimeReport every interval until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.WithComponent("report").WithFields(RuntimeReport()).Info("runtime report")
			}
		}
	}()
}
