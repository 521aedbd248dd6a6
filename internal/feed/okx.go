package feed

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"cryptoterm/internal/models"
)

const okxPublicURL = "wss://ws.okx.com:8443/ws/v5/public"

type okxExchange struct{}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxTickerPayload struct {
	Arg  okxArg `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

func (okxExchange) ID() models.ExchangeID { return models.OKX }

func (okxExchange) Endpoint(models.MarketType) string { return okxPublicURL }

func (okxExchange) SubscribeMessage(symbols []string) any {
	args := make([]okxArg, len(symbols))
	for i, s := range symbols {
		args[i] = okxArg{Channel: "tickers", InstID: s}
	}
	return struct {
		Op   string   `json:"op"`
		Args []okxArg `json:"args"`
	}{Op: "subscribe", Args: args}
}

func (okxExchange) ParseTick(raw []byte) (string, string, bool) {
	var payload okxTickerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", "", false
	}
	if payload.Arg.InstID == "" || len(payload.Data) == 0 || payload.Data[0].Last == "" {
		return "", "", false
	}
	return payload.Arg.InstID, payload.Data[0].Last, true
}

// OKX drops idle connections after 30s unless it sees a literal "ping".
func (okxExchange) PingMessage() (int, []byte) {
	return websocket.TextMessage, []byte("ping")
}
