package feed

import (
	"encoding/json"

	"cryptoterm/internal/models"
)

const coinbaseFeedURL = "wss://ws-feed.exchange.coinbase.com"

type coinbaseExchange struct{}

type coinbaseChannel struct {
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

type coinbaseTicker struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
}

func (coinbaseExchange) ID() models.ExchangeID { return models.Coinbase }

func (coinbaseExchange) Endpoint(models.MarketType) string { return coinbaseFeedURL }

func (coinbaseExchange) SubscribeMessage(symbols []string) any {
	return struct {
		Type     string            `json:"type"`
		Channels []coinbaseChannel `json:"channels"`
	}{
		Type:     "subscribe",
		Channels: []coinbaseChannel{{Name: "ticker", ProductIDs: symbols}},
	}
}

func (coinbaseExchange) ParseTick(raw []byte) (string, string, bool) {
	var msg coinbaseTicker
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", "", false
	}
	if msg.Type != "ticker" || msg.ProductID == "" || msg.Price == "" {
		return "", "", false
	}
	return msg.ProductID, msg.Price, true
}
