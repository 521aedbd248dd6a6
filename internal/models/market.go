package models

import (
	"fmt"
	"strings"
)

// ExchangeID names an exchange the terminal can stream from.
type ExchangeID string

const (
	Binance  ExchangeID = "binance"
	OKX      ExchangeID = "okx"
	Bybit    ExchangeID = "bybit"
	Kraken   ExchangeID = "kraken"
	Coinbase ExchangeID = "coinbase"
)

// Exchanges lists every supported exchange in display order.
var Exchanges = []ExchangeID{Binance, OKX, Bybit, Kraken, Coinbase}

// ParseExchange normalises a user supplied exchange name.
func ParseExchange(s string) (ExchangeID, error) {
	id := ExchangeID(strings.ToLower(strings.TrimSpace(s)))
	for _, ex := range Exchanges {
		if ex == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown exchange %q", s)
}

// MarketType selects perpetual or spot instruments.
type MarketType string

const (
	MarketPerp MarketType = "perp"
	MarketSpot MarketType = "spot"
)

// Valid reports whether m is a known market type.
func (m MarketType) Valid() bool {
	return m == MarketPerp || m == MarketSpot
}

// Mode is the trading mode of the terminal. Only live mode streams.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeBacktest Mode = "backtest"
	ModeTraining Mode = "training"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeLive, ModeBacktest, ModeTraining:
		return true
	}
	return false
}

// Timeframe is a candle bucket width such as "1m" or "4h".
type Timeframe string

const (
	TF1s  Timeframe = "1s"
	TF5s  Timeframe = "5s"
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF2h  Timeframe = "2h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Timeframes lists supported timeframes from finest to coarsest.
var Timeframes = []Timeframe{TF1s, TF5s, TF1m, TF5m, TF15m, TF30m, TF1h, TF2h, TF4h, TF1d}

// SubMinute reports whether tf is finer than one minute.
func (tf Timeframe) SubMinute() bool {
	return tf == TF1s || tf == TF5s
}

// Valid reports whether tf is one of Timeframes.
func (tf Timeframe) Valid() bool {
	for _, t := range Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}
