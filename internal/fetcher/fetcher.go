// Package fetcher turns a terminal selection into backend candle requests and
// owns the timeframe, limit and polling policy.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoterm/internal/backend"
	"cryptoterm/internal/models"
	"cryptoterm/logger"
)

var (
	// ErrUnsupportedTimeframe is returned when an exchange in the request
	// cannot serve the requested timeframe.
	ErrUnsupportedTimeframe = errors.New("timeframe not supported by selected exchanges")
	// ErrNoExchanges is returned when a request names no exchange at all.
	ErrNoExchanges = errors.New("no exchange selected")
)

// Source is the subset of the backend client the fetcher depends on.
type Source interface {
	Candles(ctx context.Context, q backend.CandleQuery) (models.CandleSeries, error)
	AggregateCandles(ctx context.Context, q backend.CandleQuery) (models.CandleSeries, error)
}

// Request describes one candle fetch. With Aggregate unset only Exchanges[0]
// is queried.
type Request struct {
	Pair      string
	Timeframe models.Timeframe
	Exchanges []models.ExchangeID
	Aggregate bool
	Limit     int
}

// Fetcher executes candle requests against a Source.
type Fetcher struct {
	src Source
	log *logger.Log
}

// New returns a Fetcher backed by src.
func New(src Source) *Fetcher {
	return &Fetcher{src: src, log: logger.GetLogger()}
}

// Fetch returns the sorted, de-duplicated candle series for req.
func (f *Fetcher) Fetch(ctx context.Context, req Request) ([]models.Candle, error) {
	if len(req.Exchanges) == 0 {
		return nil, ErrNoExchanges
	}
	active := req.Exchanges
	if !req.Aggregate {
		active = req.Exchanges[:1]
	}
	if !TimeframeSupported(req.Timeframe, active) {
		return nil, fmt.Errorf("%w: %s on %v", ErrUnsupportedTimeframe, req.Timeframe, active)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = BarsPerDay(req.Timeframe)
	}
	limit = min(limit, MaxLimit(req.Timeframe))

	q := backend.CandleQuery{
		Exchange:  active[0],
		Exchanges: active,
		Pair:      req.Pair,
		Timeframe: req.Timeframe,
		Limit:     limit,
	}

	start := time.Now()
	var (
		series models.CandleSeries
		err    error
	)
	if req.Aggregate {
		series, err = f.src.AggregateCandles(ctx, q)
	} else {
		series, err = f.src.Candles(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	candles := models.SortCandles(series.Candles)
	f.log.WithComponent("fetcher").WithFields(logger.Fields{
		"pair":        req.Pair,
		"timeframe":   req.Timeframe,
		"exchanges":   active,
		"aggregate":   req.Aggregate,
		"limit":       limit,
		"candles":     len(candles),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("candles fetched")
	return candles, nil
}
