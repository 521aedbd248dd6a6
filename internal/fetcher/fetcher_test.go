package fetcher

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"cryptoterm/internal/backend"
	"cryptoterm/internal/models"
)

type fakeSource struct {
	single    []backend.CandleQuery
	aggregate []backend.CandleQuery
	series    models.CandleSeries
	err       error
}

func (f *fakeSource) Candles(_ context.Context, q backend.CandleQuery) (models.CandleSeries, error) {
	f.single = append(f.single, q)
	return f.series, f.err
}

func (f *fakeSource) AggregateCandles(_ context.Context, q backend.CandleQuery) (models.CandleSeries, error) {
	f.aggregate = append(f.aggregate, q)
	return f.series, f.err
}

func TestFetchSortsAndDedupes(t *testing.T) {
	src := &fakeSource{series: models.CandleSeries{Candles: []models.Candle{
		{TS: 3, Close: 3}, {TS: 1, Close: 1}, {TS: 2, Close: 2}, {TS: 3, Close: 30},
	}}}
	got, err := New(src).Fetch(context.Background(), Request{
		Pair: "BTC/USDT", Timeframe: models.TF1m, Exchanges: []models.ExchangeID{models.Binance}, Limit: 4320,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	var ts []int64
	for _, c := range got {
		ts = append(ts, c.TS)
	}
	if !reflect.DeepEqual(ts, []int64{1, 2, 3}) {
		t.Fatalf("unexpected order %v", ts)
	}
	if got[2].Close != 30 {
		t.Fatalf("duplicate must keep last value, got %v", got[2].Close)
	}
	if len(src.single) != 1 || src.single[0].Exchange != models.Binance || src.single[0].Limit != 4320 {
		t.Fatalf("unexpected query %+v", src.single)
	}
}

func TestFetchAggregateRoutes(t *testing.T) {
	src := &fakeSource{}
	exs := []models.ExchangeID{models.Binance, models.OKX}
	if _, err := New(src).Fetch(context.Background(), Request{
		Pair: "ETH/USDT", Timeframe: models.TF5m, Exchanges: exs, Aggregate: true, Limit: 10,
	}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(src.aggregate) != 1 || !reflect.DeepEqual(src.aggregate[0].Exchanges, exs) {
		t.Fatalf("expected aggregate query, got %+v", src.aggregate)
	}
	if len(src.single) != 0 {
		t.Fatalf("unexpected single-exchange query %+v", src.single)
	}
}

func TestFetchClampsLimit(t *testing.T) {
	src := &fakeSource{}
	if _, err := New(src).Fetch(context.Background(), Request{
		Pair: "BTC/USDT", Timeframe: models.TF1s, Exchanges: []models.ExchangeID{models.Binance}, Limit: 86400,
	}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if src.single[0].Limit != MaxBackendLimitSubMinute {
		t.Fatalf("limit %d not clamped", src.single[0].Limit)
	}
}

func TestFetchRefusesUnsupportedTimeframe(t *testing.T) {
	src := &fakeSource{}
	_, err := New(src).Fetch(context.Background(), Request{
		Pair: "BTC/USDT", Timeframe: models.TF1s, Exchanges: []models.ExchangeID{models.Binance, models.OKX}, Aggregate: true,
	})
	if !errors.Is(err, ErrUnsupportedTimeframe) {
		t.Fatalf("expected ErrUnsupportedTimeframe, got %v", err)
	}
	if len(src.aggregate)+len(src.single) != 0 {
		t.Fatal("backend must not be called for unsupported timeframe")
	}
}

func TestFetchPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	src := &fakeSource{err: boom}
	_, err := New(src).Fetch(context.Background(), Request{
		Pair: "BTC/USDT", Timeframe: models.TF1m, Exchanges: []models.ExchangeID{models.Binance},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if _, err := New(src).Fetch(context.Background(), Request{Pair: "BTC/USDT", Timeframe: models.TF1m}); !errors.Is(err, ErrNoExchanges) {
		t.Fatalf("expected ErrNoExchanges, got %v", err)
	}
}
