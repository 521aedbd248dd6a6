package feed

import (
	"encoding/json"
	"strings"

	"github.com/gorilla/websocket"

	"cryptoterm/internal/models"
)

const (
	bybitSpotURL   = "wss://stream.bybit.com/v5/public/spot"
	bybitLinearURL = "wss://stream.bybit.com/v5/public/linear"
	bybitTopic     = "tickers."
)

type bybitExchange struct{}

type bybitTickerPayload struct {
	Topic string `json:"topic"`
	Data  *struct {
		LastPrice string `json:"lastPrice"`
		Last      string `json:"last"`
	} `json:"data"`
}

func (bybitExchange) ID() models.ExchangeID { return models.Bybit }

func (bybitExchange) Endpoint(market models.MarketType) string {
	if market == models.MarketSpot {
		return bybitSpotURL
	}
	return bybitLinearURL
}

func (bybitExchange) SubscribeMessage(symbols []string) any {
	args := make([]string, len(symbols))
	for i, s := range symbols {
		args[i] = bybitTopic + s
	}
	return struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}{Op: "subscribe", Args: args}
}

func (bybitExchange) ParseTick(raw []byte) (string, string, bool) {
	var payload bybitTickerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", "", false
	}
	if payload.Data == nil || !strings.HasPrefix(payload.Topic, bybitTopic) {
		return "", "", false
	}
	symbol := strings.TrimPrefix(payload.Topic, bybitTopic)
	price := payload.Data.LastPrice
	if price == "" {
		price = payload.Data.Last
	}
	if symbol == "" || price == "" {
		return "", "", false
	}
	return symbol, price, true
}

func (bybitExchange) PingMessage() (int, []byte) {
	return websocket.TextMessage, []byte(`{"op":"ping"}`)
}
