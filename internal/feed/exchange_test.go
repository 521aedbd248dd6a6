package feed

import (
	"encoding/json"
	"testing"

	"cryptoterm/internal/models"
)

func TestParseTick(t *testing.T) {
	tests := []struct {
		name   string
		ex     models.ExchangeID
		raw    string
		symbol string
		price  string
		ok     bool
	}{
		{"binance mini ticker", models.Binance, `{"e":"24hrMiniTicker","E":1,"s":"BTCUSDT","c":"43000.10","o":"1","h":"2","l":"0.5","v":"10","q":"20"}`, "BTCUSDT", "43000.10", true},
		{"binance subscribe ack", models.Binance, `{"result":null,"id":1}`, "", "", false},
		{"okx ticker", models.OKX, `{"arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","last":"43001.5"}]}`, "BTC-USDT-SWAP", "43001.5", true},
		{"okx event", models.OKX, `{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT"}}`, "", "", false},
		{"okx pong", models.OKX, `pong`, "", "", false},
		{"bybit lastPrice", models.Bybit, `{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"42999.9"}}`, "BTCUSDT", "42999.9", true},
		{"bybit last fallback", models.Bybit, `{"topic":"tickers.ETHUSDT","data":{"last":"2300.1"}}`, "ETHUSDT", "2300.1", true},
		{"bybit other topic", models.Bybit, `{"topic":"orderbook.1.BTCUSDT","data":{"lastPrice":"1"}}`, "", "", false},
		{"bybit op response", models.Bybit, `{"success":true,"op":"subscribe"}`, "", "", false},
		{"coinbase ticker", models.Coinbase, `{"type":"ticker","product_id":"BTC-USD","price":"43002.01"}`, "BTC-USD", "43002.01", true},
		{"coinbase subscriptions", models.Coinbase, `{"type":"subscriptions","channels":[]}`, "", "", false},
		{"kraken update", models.Kraken, `{"channel":"ticker","type":"update","data":[{"symbol":"XBT/USDT","last":43003.2}]}`, "XBT/USDT", "43003.2", true},
		{"kraken snapshot string price", models.Kraken, `{"channel":"ticker","type":"snapshot","data":[{"symbol":"ETH/USD","last":"2301"}]}`, "ETH/USD", "2301", true},
		{"kraken heartbeat", models.Kraken, `{"channel":"heartbeat"}`, "", "", false},
		{"kraken status", models.Kraken, `{"channel":"status","type":"update","data":[{"system":"online"}]}`, "", "", false},
		{"garbage", models.Binance, `not json`, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, _ := Lookup(tt.ex)
			symbol, price, ok := ex.ParseTick([]byte(tt.raw))
			if ok != tt.ok || symbol != tt.symbol || price != tt.price {
				t.Fatalf("ParseTick=(%q,%q,%v) want (%q,%q,%v)", symbol, price, ok, tt.symbol, tt.price, tt.ok)
			}
		})
	}
}

func TestSubscribeMessages(t *testing.T) {
	tests := []struct {
		ex      models.ExchangeID
		symbols []string
		want    string
	}{
		{models.Binance, []string{"BTCUSDT", "ETHUSDT"}, `{"method":"SUBSCRIBE","params":["btcusdt@miniTicker","ethusdt@miniTicker"],"id":1}`},
		{models.OKX, []string{"BTC-USDT"}, `{"op":"subscribe","args":[{"channel":"tickers","instId":"BTC-USDT"}]}`},
		{models.Bybit, []string{"BTCUSDT"}, `{"op":"subscribe","args":["tickers.BTCUSDT"]}`},
		{models.Coinbase, []string{"BTC-USD"}, `{"type":"subscribe","channels":[{"name":"ticker","product_ids":["BTC-USD"]}]}`},
		{models.Kraken, []string{"XBT/USDT"}, `{"method":"subscribe","params":{"channel":"ticker","symbol":["XBT/USDT"]}}`},
	}
	for _, tt := range tests {
		ex, _ := Lookup(tt.ex)
		got, err := json.Marshal(ex.SubscribeMessage(tt.symbols))
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.ex, err)
		}
		if string(got) != tt.want {
			t.Errorf("%s subscribe=%s want %s", tt.ex, got, tt.want)
		}
	}
}

func TestEndpoints(t *testing.T) {
	binanceEx, _ := Lookup(models.Binance)
	if got := binanceEx.Endpoint(models.MarketSpot); got != "wss://stream.binance.com:9443/ws" {
		t.Errorf("binance spot endpoint %s", got)
	}
	if got := binanceEx.Endpoint(models.MarketPerp); got != "wss://fstream.binance.com/ws" {
		t.Errorf("binance perp endpoint %s", got)
	}
	bybitEx, _ := Lookup(models.Bybit)
	if got := bybitEx.Endpoint(models.MarketSpot); got != bybitSpotURL {
		t.Errorf("bybit spot endpoint %s", got)
	}
	if got := bybitEx.Endpoint(models.MarketPerp); got != bybitLinearURL {
		t.Errorf("bybit perp endpoint %s", got)
	}
	for _, id := range models.Exchanges {
		if _, ok := Lookup(id); !ok {
			t.Errorf("no feed registered for %s", id)
		}
	}
}
