package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// LOG_LEVEL must not override the provided level here
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "terminal.log")

	log := Logger()
	if err := log.Configure("debug", "json", path, 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	log.WithComponent("terminal").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, data)
	}
	if line["message"] != "hello" || line["component"] != "terminal" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestWarnCountsPerComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(&bytes.Buffer{})

	log.WithComponent("report_test").Warn("first")
	log.WithComponent("report_test").Error("second")
	RecordChannelMessage("report_test_channel", 10)

	report := RuntimeReport()
	comps := report["components"].(map[string]map[string]int64)
	if comps["report_test"]["warns"] < 1 || comps["report_test"]["errors"] < 1 {
		t.Fatalf("expected warn and error counts, got %v", comps["report_test"])
	}
	chans := report["channels"].(map[string]map[string]int64)
	if chans["report_test_channel"]["bytes"] < 10 {
		t.Fatalf("expected channel bytes, got %v", chans["report_test_channel"])
	}
}

func TestRuntimeReportHostStats(t *testing.T) {
	originalCPU, originalMem, originalDisk, originalNet := reportCPUFn, reportMemFn, reportDiskFn, reportNetFn
	t.Cleanup(func() {
		reportCPUFn, reportMemFn, reportDiskFn, reportNetFn = originalCPU, originalMem, originalDisk, originalNet
	})

	reportCPUFn = func() ([]float64, error) { return []float64{12.5}, nil }
	reportMemFn = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 3 * 1024 * 1024}, nil
	}
	reportDiskFn = func() (*disk.UsageStat, error) { return nil, errors.New("unmounted") }
	reportNetFn = func() ([]gnet.IOCountersStat, error) {
		return []gnet.IOCountersStat{{BytesSent: 100, BytesRecv: 200}}, nil
	}

	report := RuntimeReport()
	if report["cpu_percent"] != 12.5 || report["memory_mb"] != int64(3) {
		t.Fatalf("unexpected host stats: cpu=%v mem=%v", report["cpu_percent"], report["memory_mb"])
	}
	if report["disk_mb"] != int64(0) {
		t.Fatalf("failed disk collector should report zero, got %v", report["disk_mb"])
	}
	if report["net_bytes_sent"] != int64(100) || report["net_bytes_recv"] != int64(200) {
		t.Fatalf("unexpected net counters: %v %v", report["net_bytes_sent"], report["net_bytes_recv"])
	}
}
