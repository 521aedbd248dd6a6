// Package feed streams last-trade prices from exchange websockets and
// normalises them into ticks for the terminal loop.
package feed

import (
	"context"

	"github.com/gorilla/websocket"

	"cryptoterm/internal/models"
)

// Exchange isolates the wire differences between venues. Implementations are
// stateless and safe for concurrent use.
type Exchange interface {
	ID() models.ExchangeID
	// Endpoint is the default websocket URL for market.
	Endpoint(market models.MarketType) string
	// SubscribeMessage builds the single subscription request for symbols.
	SubscribeMessage(symbols []string) any
	// ParseTick extracts the instrument id and last price from one frame.
	ParseTick(raw []byte) (symbol, price string, ok bool)
}

// Pinger is implemented by exchanges that expect an application level ping
// instead of a websocket control frame.
type Pinger interface {
	PingMessage() (messageType int, data []byte)
}

// Sink receives adapter output. channel.Events satisfies it.
type Sink interface {
	SendTick(ctx context.Context, tick models.Tick) bool
	SendState(ctx context.Context, ev models.StateEvent) bool
}

var exchanges = map[models.ExchangeID]Exchange{
	models.Binance:  binanceExchange{},
	models.OKX:      okxExchange{},
	models.Bybit:    bybitExchange{},
	models.Coinbase: coinbaseExchange{},
	models.Kraken:   krakenExchange{},
}

// Lookup returns the Exchange implementation for id.
func Lookup(id models.ExchangeID) (Exchange, bool) {
	ex, ok := exchanges[id]
	return ex, ok
}

func controlPing() (int, []byte) {
	return websocket.PingMessage, nil
}
