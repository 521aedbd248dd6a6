package feed

import (
	"encoding/json"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"cryptoterm/internal/models"
)

type binanceExchange struct{}

func (binanceExchange) ID() models.ExchangeID { return models.Binance }

func (binanceExchange) Endpoint(market models.MarketType) string {
	if market == models.MarketPerp {
		return futures.BaseWsMainUrl
	}
	return binance.BaseWsMainURL
}

func (binanceExchange) SubscribeMessage(symbols []string) any {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = strings.ToLower(s) + "@miniTicker"
	}
	return struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     int      `json:"id"`
	}{Method: "SUBSCRIBE", Params: params, ID: 1}
}

func (binanceExchange) ParseTick(raw []byte) (string, string, bool) {
	var ev binance.WsMiniMarketsStatEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", "", false
	}
	if ev.Symbol == "" || ev.LastPrice == "" {
		return "", "", false
	}
	return ev.Symbol, ev.LastPrice, true
}
