package terminal

import (
	"time"

	"cryptoterm/internal/models"
)

// Snapshot is an immutable view of the terminal published after every change.
// Candles and Indicators cover the visible window only.
type Snapshot struct {
	Generation         string                                        `json:"generation"`
	Selection          Selection                                     `json:"selection"`
	Filters            Filters                                       `json:"filters"`
	Candles            []models.Candle                               `json:"candles"`
	TotalCandles       int                                           `json:"totalCandles"`
	FetchLimit         int                                           `json:"fetchLimit"`
	Indicators         models.IndicatorBundle                        `json:"indicators"`
	Viewport           models.Viewport                               `json:"viewport"`
	ConnState          map[models.ExchangeID]models.ConnState        `json:"connState"`
	LivePrices         map[models.ExchangeID]map[string]models.Quote `json:"livePrices"`
	MergedPrices       map[string]float64                            `json:"mergedPrices"`
	Pairs              []models.PairInfo                             `json:"pairs"`
	AvailableExchanges []models.ExchangeID                           `json:"availableExchanges"`
	Error              string                                        `json:"error,omitempty"`
	PairsError         string                                        `json:"pairsError,omitempty"`
	Loading            bool                                          `json:"loading"`
	LastPrice          *float64                                      `json:"lastPrice,omitempty"`
	Change1BarPct      *float64                                      `json:"change1BarPct,omitempty"`
	Change24BarsPct    *float64                                      `json:"change24BarsPct,omitempty"`
	UpdatedAt          time.Time                                     `json:"updatedAt"`
}

// changePct is the percent move of the last close against the close bars
// earlier. It is nil when the series is too short or the base is zero.
func changePct(candles []models.Candle, bars int) *float64 {
	n := len(candles)
	if bars <= 0 || n <= bars {
		return nil
	}
	base := candles[n-1-bars].Close
	if base == 0 {
		return nil
	}
	v := (candles[n-1].Close - base) / base * 100
	return &v
}
