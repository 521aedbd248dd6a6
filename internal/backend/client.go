// Package backend is the REST client for the market-data backend that serves
// the pair catalogue and historical candles.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appconfig "cryptoterm/config"
	"cryptoterm/internal/models"
	"cryptoterm/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 512
)

// StatusError is returned when the backend answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// CandleQuery selects a candle series. Exchanges with more than one entry, or
// Aggregate set, routes to the aggregate endpoint.
type CandleQuery struct {
	Exchange  models.ExchangeID
	Exchanges []models.ExchangeID
	Pair      string
	Timeframe models.Timeframe
	Limit     int
}

// Client talks to the backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient builds a client from the backend section of the configuration.
func NewClient(cfg appconfig.BackendConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: userAgentTransport{agent: cfg.UserAgent, base: http.DefaultTransport},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}
}

// ListPairs returns the pair catalogue.
func (c *Client) ListPairs(ctx context.Context) ([]models.PairInfo, error) {
	var pairs []models.PairInfo
	if err := c.get(ctx, "/market/pairs", nil, &pairs); err != nil {
		return nil, fmt.Errorf("list pairs: %w", err)
	}
	if pairs == nil {
		pairs = []models.PairInfo{}
	}
	return pairs, nil
}

// Candles fetches the series for a single exchange.
func (c *Client) Candles(ctx context.Context, q CandleQuery) (models.CandleSeries, error) {
	params := url.Values{}
	params.Set("exchange", string(q.Exchange))
	params.Set("pair", q.Pair)
	params.Set("timeframe", string(q.Timeframe))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var series models.CandleSeries
	if err := c.get(ctx, "/market/candles", params, &series); err != nil {
		return models.CandleSeries{}, fmt.Errorf("candles %s %s %s: %w", q.Exchange, q.Pair, q.Timeframe, err)
	}
	return series, nil
}

// AggregateCandles fetches the series merged across q.Exchanges.
func (c *Client) AggregateCandles(ctx context.Context, q CandleQuery) (models.CandleSeries, error) {
	names := make([]string, len(q.Exchanges))
	for i, ex := range q.Exchanges {
		names[i] = string(ex)
	}

	params := url.Values{}
	params.Set("exchanges", strings.Join(names, ","))
	params.Set("pair", q.Pair)
	params.Set("timeframe", string(q.Timeframe))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var series models.CandleSeries
	if err := c.get(ctx, "/market/candles/aggregate", params, &series); err != nil {
		return models.CandleSeries{}, fmt.Errorf("aggregate candles %s %s %s: %w", strings.Join(names, ","), q.Pair, q.Timeframe, err)
	}
	return series, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	log := c.log.WithComponent("backend").WithFields(logger.Fields{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Warn("backend request failed")
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	log.Debug("backend request completed")
	return nil
}
