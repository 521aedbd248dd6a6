// Package symbols resolves canonical BASE/QUOTE pairs to the instrument ids each
// exchange expects on its streaming API, and maps inbound ids back to pairs.
package symbols

import (
	"strings"

	"cryptoterm/internal/models"
)

var krakenQuotes = []string{"USDT", "USD", "USDC"}

// Subscription is the resolved instrument set for one exchange.
type Subscription struct {
	Exchange models.ExchangeID
	// Symbols holds wire ids in first-seen order without duplicates.
	Symbols []string
	pairs   map[string]string
}

// Empty reports whether no pair resolved for the exchange.
func (s Subscription) Empty() bool {
	return len(s.Symbols) == 0
}

// Pair maps an inbound instrument id back to its canonical pair.
func (s Subscription) Pair(symbol string) (string, bool) {
	p, ok := s.pairs[lookupKey(s.Exchange, symbol)]
	return p, ok && p != ""
}

// Resolve builds the subscription for ex over pairs. Pairs without a native
// symbol are skipped, except on Binance where the slashless pair is used.
func Resolve(ex models.ExchangeID, pairs []models.PairInfo) Subscription {
	sub := Subscription{Exchange: ex, Symbols: []string{}, pairs: make(map[string]string)}
	for _, p := range pairs {
		native, ok := NativeSymbol(ex, p)
		if !ok {
			continue
		}
		wire, ok := StreamSymbol(ex, native)
		if !ok {
			continue
		}
		key := lookupKey(ex, wire)
		if _, seen := sub.pairs[key]; seen {
			continue
		}
		sub.pairs[key] = p.Pair
		sub.Symbols = append(sub.Symbols, wire)
	}
	return sub
}

// NativeSymbol returns the backend supplied symbol for ex.
func NativeSymbol(ex models.ExchangeID, p models.PairInfo) (string, bool) {
	if native, ok := p.Native(ex); ok {
		return native, true
	}
	if ex == models.Binance && p.Pair != "" {
		return strings.ReplaceAll(p.Pair, "/", ""), true
	}
	return "", false
}

// StreamSymbol converts a native (REST) symbol into the id used on the
// exchange's websocket.
func StreamSymbol(ex models.ExchangeID, native string) (string, bool) {
	native = strings.TrimSpace(native)
	if native == "" {
		return "", false
	}
	switch ex {
	case models.Binance:
		return strings.ToUpper(native), true
	case models.Kraken:
		return KrakenWSSymbol(native)
	default:
		return native, true
	}
}

// KrakenWSSymbol turns a Kraken REST symbol such as XBTUSDT into the v2
// websocket form XBT/USDT.
func KrakenWSSymbol(native string) (string, bool) {
	upper := strings.ToUpper(native)
	for _, quote := range krakenQuotes {
		if !strings.HasSuffix(upper, quote) {
			continue
		}
		base := strings.TrimSuffix(upper, quote)
		if base == "" {
			return "", false
		}
		return base + "/" + quote, true
	}
	return "", false
}

// Binance reports symbols in upper case regardless of how they were requested.
func lookupKey(ex models.ExchangeID, symbol string) string {
	if ex == models.Binance {
		return strings.ToUpper(symbol)
	}
	return symbol
}
