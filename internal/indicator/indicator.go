// Package indicator derives EMA, MACD and RSI series and crossover signals from
// an ordered candle window. Every function here is pure.
package indicator

import (
	"cryptoterm/internal/models"
)

const (
	FastPeriod   = 8
	SlowPeriod   = 21
	SignalPeriod = 9
	RSIPeriod    = 14

	// BuyRSICeiling gates buy signals away from overbought conditions.
	BuyRSICeiling = 65.0
	// SellRSIFloor gates sell signals away from oversold conditions.
	SellRSIFloor = 35.0

	buyReason  = "MACD cross + RSI relief"
	sellReason = "MACD crossdown + RSI fade"
)

// EMA returns the exponential moving average of values, seeded with values[0].
func EMA(period int, values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// RSI returns the Wilder-smoothed relative strength index of closes. The first
// value is a neutral 50 and a zero average loss yields rs=100.
func RSI(period int, closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(closes) == 0 {
		return out
	}
	p := float64(period)
	var avgGain, avgLoss float64
	out[0] = 50
	for i := 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p

		rs := 100.0
		if avgLoss != 0 {
			rs = avgGain / avgLoss
		}
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// CrossUps returns every i>=2 where line crosses from <= to > signal.
func CrossUps(line, signal []float64) []int {
	var idx []int
	for i := 2; i < len(line) && i < len(signal); i++ {
		if line[i-1] <= signal[i-1] && line[i] > signal[i] {
			idx = append(idx, i)
		}
	}
	return idx
}

// CrossDowns returns every i>=2 where line crosses from >= to < signal.
func CrossDowns(line, signal []float64) []int {
	var idx []int
	for i := 2; i < len(line) && i < len(signal); i++ {
		if line[i-1] >= signal[i-1] && line[i] < signal[i] {
			idx = append(idx, i)
		}
	}
	return idx
}

// Compute builds the full indicator bundle for candles.
func Compute(candles []models.Candle) models.IndicatorBundle {
	closes := models.Closes(candles)

	emaFast := EMA(FastPeriod, closes)
	emaSlow := EMA(SlowPeriod, closes)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaFast[i] - emaSlow[i]
	}
	macdSignal := EMA(SignalPeriod, macd)
	rsi := RSI(RSIPeriod, closes)

	return models.IndicatorBundle{
		EMAFast:    emaFast,
		EMASlow:    emaSlow,
		MACD:       macd,
		MACDSignal: macdSignal,
		RSI:        rsi,
		Signals:    Signals(macd, macdSignal, rsi),
	}
}

// Signals emits gated buy and sell crossovers in index order.
func Signals(macd, signal, rsi []float64) []models.Signal {
	out := []models.Signal{}
	n := len(macd)
	if len(signal) < n {
		n = len(signal)
	}
	if len(rsi) < n {
		n = len(rsi)
	}
	for i := 2; i < n; i++ {
		crossedUp := macd[i-1] <= signal[i-1] && macd[i] > signal[i]
		crossedDown := macd[i-1] >= signal[i-1] && macd[i] < signal[i]
		if crossedUp && rsi[i] < BuyRSICeiling {
			out = append(out, models.Signal{Index: i, Side: models.SideBuy, Reason: buyReason})
		}
		if crossedDown && rsi[i] > SellRSIFloor {
			out = append(out, models.Signal{Index: i, Side: models.SideSell, Reason: sellReason})
		}
	}
	return out
}
