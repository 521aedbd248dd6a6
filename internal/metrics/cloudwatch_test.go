package metrics

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cryptoterm/logger"
)

// stubCloudWatch installs a client-backed state, a fixed clock and a
// recording publisher. It returns the clock setter and the recorded batches.
func stubCloudWatch(t *testing.T, interval time.Duration) (func(time.Time), *[][]cwtypes.MetricDatum) {
	t.Helper()
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}, namespace: "CryptoTerm"})
	prevInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = interval
	resetMetricPublishTimes()

	var batches [][]cwtypes.MetricDatum
	publishMetricsFunc = func(_ context.Context, _ *cloudWatchState, data []cwtypes.MetricDatum) {
		batches = append(batches, append([]cwtypes.MetricDatum(nil), data...))
	}

	t.Cleanup(func() {
		cwState.Store(prevState)
		cloudWatchPublishInterval = prevInterval
		publishMetricsFunc = publishMetrics
		timeNow = time.Now
		resetMetricPublishTimes()
	})
	return func(at time.Time) { timeNow = func() time.Time { return at } }, &batches
}

func TestPublishMetricDatumThrottle(t *testing.T) {
	tests := []struct {
		name      string
		gap       time.Duration
		published []float64
	}{
		{"inside interval", 25 * time.Millisecond, []float64{1}},
		{"after interval", 75 * time.Millisecond, []float64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setNow, batches := stubCloudWatch(t, 50*time.Millisecond)
			base := time.Now()

			metric := Metric{Component: "fetcher", Name: "fetch_errors", Fields: logger.Fields{"unit": "count", "pair": "BTC/USDT"}}
			setNow(base)
			metric.Timestamp = base
			publishMetricDatum(metric, 1)

			setNow(base.Add(tt.gap))
			metric.Timestamp = base.Add(tt.gap)
			publishMetricDatum(metric, 2)

			if len(*batches) != len(tt.published) {
				t.Fatalf("expected %d publishes, got %d", len(tt.published), len(*batches))
			}
			for i, want := range tt.published {
				batch := (*batches)[i]
				if len(batch) != 1 {
					t.Fatalf("publish %d carried %d datums", i, len(batch))
				}
				datum := batch[0]
				if datum.MetricName == nil || *datum.MetricName != "fetch_errors" {
					t.Fatalf("unexpected metric name: %v", datum.MetricName)
				}
				if datum.Value == nil || *datum.Value != want {
					t.Fatalf("publish %d value = %v, want %v", i, datum.Value, want)
				}
				if datum.Unit != cwtypes.StandardUnitCount || len(datum.Dimensions) != 2 {
					t.Fatalf("unexpected unit or dimensions: %v %v", datum.Unit, datum.Dimensions)
				}
			}
		})
	}
}

func TestMetricUnitFromString(t *testing.T) {
	tests := map[string]cwtypes.StandardUnit{
		"ms":      cwtypes.StandardUnitMilliseconds,
		"Percent": cwtypes.StandardUnitPercent,
		"bytes":   cwtypes.StandardUnitBytes,
	}
	for in, want := range tests {
		if got, ok := metricUnitFromString(in); !ok || got != want {
			t.Fatalf("%s: got %v %v", in, got, ok)
		}
	}
	if _, ok := metricUnitFromString("furlongs"); ok {
		t.Fatal("unknown unit must not parse")
	}
}

func TestRenderDashboardSubstitutesNamespaceAndRegion(t *testing.T) {
	body := renderDashboard("TermProd", "eu-west-1")
	if !json.Valid([]byte(body)) {
		t.Fatalf("rendered dashboard is not valid JSON")
	}
	if strings.Contains(body, "\"CryptoTerm\"") || strings.Contains(body, "\"us-east-1\"") {
		t.Fatalf("placeholders left in dashboard: %s", body)
	}
	if !strings.Contains(body, "\"TermProd\"") || !strings.Contains(body, "\"eu-west-1\"") {
		t.Fatalf("substitution missing: %s", body)
	}
}

func TestEmitMetricWithoutClientDoesNotPublish(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{namespace: "CryptoTerm"})
	t.Cleanup(func() { cwState.Store(prevState) })

	called := false
	publishMetricsFunc = func(context.Context, *cloudWatchState, []cwtypes.MetricDatum) { called = true }
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	EmitMetric(nil, "fetcher", "fetch_errors", 1, "counter", nil)
	if called {
		t.Fatal("publish must be skipped without a client")
	}
}
