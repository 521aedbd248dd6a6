package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appconfig "cryptoterm/config"
	"cryptoterm/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(appconfig.BackendConfig{
		BaseURL:           srv.URL + "/",
		Timeout:           2 * time.Second,
		UserAgent:         "cryptoterm-test",
		RequestsPerSecond: 100,
		Burst:             10,
	})
}

func TestListPairs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/pairs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("User-Agent"); got != "cryptoterm-test" {
			t.Errorf("unexpected user agent %q", got)
		}
		if r.Header.Get(requestIDHeader) == "" {
			t.Errorf("missing request id header")
		}
		w.Write([]byte(`[{"pair":"BTC/USDT","exchanges":["binance","kraken"],"symbols":{"kraken":"XBTUSDT"},"change24hPct":1.5,"kinds":["perp"]}]`))
	})

	pairs, err := client.ListPairs(context.Background())
	if err != nil {
		t.Fatalf("ListPairs: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Pair != "BTC/USDT" {
		t.Fatalf("unexpected pairs %+v", pairs)
	}
	if native, ok := pairs[0].Native(models.Kraken); !ok || native != "XBTUSDT" {
		t.Fatalf("unexpected kraken symbol %q", native)
	}
	if pairs[0].Change24hPct == nil || *pairs[0].Change24hPct != 1.5 {
		t.Fatalf("change24hPct not decoded: %+v", pairs[0])
	}
	if pairs[0].HasKind(models.MarketSpot) {
		t.Fatal("pair should be perp only")
	}
}

func TestCandlesQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/market/candles" || q.Get("exchange") != "okx" || q.Get("pair") != "ETH/USDT" ||
			q.Get("timeframe") != "5m" || q.Get("limit") != "864" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(`{"exchange":"okx","pair":"ETH/USDT","timeframe":"5m","candles":[{"ts":1,"open":1,"high":2,"low":0.5,"close":1.5,"volume":10}]}`))
	})

	series, err := client.Candles(context.Background(), CandleQuery{
		Exchange: models.OKX, Pair: "ETH/USDT", Timeframe: models.TF5m, Limit: 864,
	})
	if err != nil {
		t.Fatalf("Candles: %v", err)
	}
	if len(series.Candles) != 1 || series.Candles[0].Close != 1.5 {
		t.Fatalf("unexpected series %+v", series)
	}
}

func TestAggregateCandlesQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/market/candles/aggregate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("exchanges"); got != "binance,bybit" {
			t.Errorf("unexpected exchanges %q", got)
		}
		w.Write([]byte(`{"exchanges":["binance","bybit"],"pair":"BTC/USDT","timeframe":"1h","candles":[]}`))
	})

	series, err := client.AggregateCandles(context.Background(), CandleQuery{
		Exchanges: []models.ExchangeID{models.Binance, models.Bybit}, Pair: "BTC/USDT", Timeframe: models.TF1h,
	})
	if err != nil {
		t.Fatalf("AggregateCandles: %v", err)
	}
	if len(series.Exchanges) != 2 {
		t.Fatalf("unexpected series %+v", series)
	}
}

func TestNon200ReturnsStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 2000), http.StatusBadGateway)
	})

	_, err := client.ListPairs(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusBadGateway {
		t.Fatalf("unexpected code %d", statusErr.Code)
	}
	if len(statusErr.Body) > maxErrorBody {
		t.Fatalf("body excerpt too long: %d", len(statusErr.Body))
	}
	if !strings.HasPrefix(statusErr.Error(), "HTTP 502") {
		t.Fatalf("unexpected message %q", statusErr.Error())
	}
}

func TestCancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.ListPairs(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
