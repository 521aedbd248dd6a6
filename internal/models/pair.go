package models

// PairInfo describes a tradable pair as reported by GET /market/pairs.
// Symbols maps each exchange to its wire-level instrument identifier.
type PairInfo struct {
	Pair           string                `json:"pair"`
	Exchanges      []ExchangeID          `json:"exchanges,omitempty"`
	Symbols        map[ExchangeID]string `json:"symbols,omitempty"`
	Last           *float64              `json:"last,omitempty"`
	Change24hPct   *float64              `json:"change24hPct,omitempty"`
	Volume24hQuote *float64              `json:"volume24hQuote,omitempty"`
	Spread         *float64              `json:"spread,omitempty"`
	Kinds          []MarketType          `json:"kinds,omitempty"`
}

// HasKind reports whether the pair trades as kind. Pairs without a kinds
// list are treated as both perp and spot.
func (p PairInfo) HasKind(kind MarketType) bool {
	if len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Native returns the exchange symbol for the pair, if the backend supplied one.
func (p PairInfo) Native(ex ExchangeID) (string, bool) {
	s, ok := p.Symbols[ex]
	return s, ok && s != ""
}

// DefaultPairs is the seed list shown before the first pair refresh completes.
func DefaultPairs() []PairInfo {
	return []PairInfo{{Pair: "BTC/USDT"}, {Pair: "ETH/USDT"}, {Pair: "SOL/USDT"}}
}
