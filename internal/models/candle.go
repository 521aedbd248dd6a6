package models

import "sort"

// Candle is one OHLCV bar. TS is the bucket open time in epoch milliseconds.
type Candle struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// CandleSeries is the backend response envelope for both candle endpoints.
type CandleSeries struct {
	Exchange  string   `json:"exchange,omitempty"`
	Exchanges []string `json:"exchanges,omitempty"`
	Pair      string   `json:"pair"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

// SortCandles returns candles ordered by TS with duplicate timestamps
// collapsed onto the last occurrence. The input slice is not modified.
func SortCandles(in []Candle) []Candle {
	if len(in) == 0 {
		return []Candle{}
	}
	out := make([]Candle, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS < out[j].TS })

	n := 0
	for i := range out {
		if n > 0 && out[n-1].TS == out[i].TS {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// Closes extracts close prices in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
