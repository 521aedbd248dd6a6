package feed

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"cryptoterm/internal/models"
)

const krakenV2URL = "wss://ws.kraken.com/v2"

type krakenExchange struct{}

type krakenSubscribeParams struct {
	Channel string   `json:"channel"`
	Symbol  []string `json:"symbol"`
}

// Kraken v2 sends last as a JSON number, so it is kept raw to preserve the
// exact decimal text.
type krakenTicker struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Data    []struct {
		Symbol string          `json:"symbol"`
		Last   json.RawMessage `json:"last"`
	} `json:"data"`
}

func (krakenExchange) ID() models.ExchangeID { return models.Kraken }

func (krakenExchange) Endpoint(models.MarketType) string { return krakenV2URL }

func (krakenExchange) SubscribeMessage(symbols []string) any {
	return struct {
		Method string                `json:"method"`
		Params krakenSubscribeParams `json:"params"`
	}{
		Method: "subscribe",
		Params: krakenSubscribeParams{Channel: "ticker", Symbol: symbols},
	}
}

func (krakenExchange) ParseTick(raw []byte) (string, string, bool) {
	var msg krakenTicker
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", "", false
	}
	if msg.Channel != "ticker" || (msg.Type != "update" && msg.Type != "snapshot") || len(msg.Data) == 0 {
		return "", "", false
	}
	row := msg.Data[0]
	price := rawNumber(row.Last)
	if row.Symbol == "" || price == "" {
		return "", "", false
	}
	return row.Symbol, price, true
}

func (krakenExchange) PingMessage() (int, []byte) {
	return websocket.TextMessage, []byte(`{"method":"ping"}`)
}

// rawNumber accepts either a JSON string or a JSON number.
func rawNumber(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
