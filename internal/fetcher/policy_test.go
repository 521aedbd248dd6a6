package fetcher

import (
	"reflect"
	"testing"
	"time"

	"cryptoterm/internal/models"
)

func TestLimitForHistory(t *testing.T) {
	tests := []struct {
		days int
		tf   models.Timeframe
		want int
	}{
		{3, models.TF1m, 4320},
		{0, models.TF1m, 1440},
		{7300, models.TF1m, MaxBackendLimit},
		{1, models.TF1s, MaxBackendLimitSubMinute},
		{365, models.TF1d, 365},
		{7, models.TF4h, 42},
	}
	for _, tt := range tests {
		if got := LimitForHistory(tt.days, tt.tf); got != tt.want {
			t.Errorf("LimitForHistory(%d,%s)=%d want %d", tt.days, tt.tf, got, tt.want)
		}
	}
}

func TestLimitNeverExceedsMax(t *testing.T) {
	for _, tf := range models.Timeframes {
		for _, days := range []int{1, 3, 30, 365, 7300, 100000} {
			if got := LimitForHistory(days, tf); got > MaxLimit(tf) {
				t.Fatalf("%s/%d: limit %d exceeds %d", tf, days, got, MaxLimit(tf))
			}
		}
	}
	if MaxLimit(models.TF1s) >= MaxLimit(models.TF1m) {
		t.Fatal("sub-minute limit must be strictly lower")
	}
}

func TestHistoryDayOptions(t *testing.T) {
	if got := HistoryDayOptions(models.TF1s); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("1s options %v", got)
	}
	if got := HistoryDayOptions(models.TF1m); !reflect.DeepEqual(got, []int{1, 3, 7, 14, 30, 60, 90}) {
		t.Fatalf("1m options %v", got)
	}
	if got := HistoryDayOptions(models.TF1d); got[len(got)-1] != MaxHistoryDays {
		t.Fatalf("1d options must reach %d, got %v", MaxHistoryDays, got)
	}
	if got := ClampHistoryDays(365, models.TF1m); got != 138 {
		t.Fatalf("ClampHistoryDays(365,1m)=%d want 138", got)
	}
	if got := ClampHistoryDays(0, models.TF1h); got != 1 {
		t.Fatalf("ClampHistoryDays(0,1h)=%d want 1", got)
	}
}

func TestPollInterval(t *testing.T) {
	tests := map[models.Timeframe]time.Duration{
		models.TF1s:  time.Second,
		models.TF5s:  time.Second,
		models.TF1m:  5 * time.Second,
		models.TF5m:  10 * time.Second,
		models.TF30m: 15 * time.Second,
		models.TF2h:  30 * time.Second,
		models.TF1d:  time.Minute,
		"3m":         10 * time.Second,
	}
	for tf, want := range tests {
		if got := PollInterval(tf); got != want {
			t.Errorf("PollInterval(%s)=%v want %v", tf, got, want)
		}
	}
}

func TestTimeframeSupported(t *testing.T) {
	tests := []struct {
		tf   models.Timeframe
		exs  []models.ExchangeID
		want bool
	}{
		{models.TF1s, []models.ExchangeID{models.Binance}, true},
		{models.TF1s, []models.ExchangeID{models.Binance, models.OKX}, false},
		{models.TF5s, nil, false},
		{models.TF30m, []models.ExchangeID{models.Coinbase}, false},
		{models.TF2h, []models.ExchangeID{models.Binance, models.Coinbase}, false},
		{models.TF1h, []models.ExchangeID{models.Coinbase}, true},
		{"7m", []models.ExchangeID{models.Binance}, false},
	}
	for _, tt := range tests {
		if got := TimeframeSupported(tt.tf, tt.exs); got != tt.want {
			t.Errorf("TimeframeSupported(%s,%v)=%v want %v", tt.tf, tt.exs, got, tt.want)
		}
	}

	opts := TimeframeOptions([]models.ExchangeID{models.Coinbase})
	if len(opts) != len(models.Timeframes) {
		t.Fatalf("expected %d options, got %d", len(models.Timeframes), len(opts))
	}
	for _, o := range opts {
		wantDisabled := o.Timeframe.SubMinute() || o.Timeframe == models.TF30m || o.Timeframe == models.TF2h
		if o.Disabled != wantDisabled {
			t.Errorf("%s disabled=%v want %v", o.Timeframe, o.Disabled, wantDisabled)
		}
		if o.Disabled && o.Reason == "" {
			t.Errorf("%s disabled without reason", o.Timeframe)
		}
	}
}
