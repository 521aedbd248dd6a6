// Package reconciler keeps the latest price per exchange and pair and merges
// them into one price per pair.
package reconciler

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cryptoterm/internal/models"
)

type quote struct {
	price decimal.Decimal
	at    time.Time
}

// LivePriceTable maps exchange to pair to the last reported quote. It is not
// safe for concurrent use; the terminal loop owns it.
type LivePriceTable struct {
	rows map[models.ExchangeID]map[string]quote
}

// NewLivePriceTable returns an empty table.
func NewLivePriceTable() *LivePriceTable {
	return &LivePriceTable{rows: make(map[models.ExchangeID]map[string]quote)}
}

// Upsert stores price for (exchange, pair). It reports false and leaves the
// table untouched when price is not positive or equals the stored value.
func (t *LivePriceTable) Upsert(exchange models.ExchangeID, pair string, price decimal.Decimal, at time.Time) bool {
	if !price.IsPositive() {
		return false
	}
	row, ok := t.rows[exchange]
	if !ok {
		row = make(map[string]quote)
		t.rows[exchange] = row
	}
	if cur, ok := row[pair]; ok && cur.price.Equal(price) {
		return false
	}
	row[pair] = quote{price: price, at: at}
	return true
}

// DropExchange removes every quote reported by exchange.
func (t *LivePriceTable) DropExchange(exchange models.ExchangeID) bool {
	if _, ok := t.rows[exchange]; !ok {
		return false
	}
	delete(t.rows, exchange)
	return true
}

// Expire removes quotes older than maxAge relative to now and reports whether
// anything was removed. A non-positive maxAge disables expiry.
func (t *LivePriceTable) Expire(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	removed := false
	for ex, row := range t.rows {
		for pair, q := range row {
			if now.Sub(q.at) > maxAge {
				delete(row, pair)
				removed = true
			}
		}
		if len(row) == 0 {
			delete(t.rows, ex)
		}
	}
	return removed
}

// Clear empties the table.
func (t *LivePriceTable) Clear() {
	t.rows = make(map[models.ExchangeID]map[string]quote)
}

// Quotes returns a copy of the table with float prices, for presentation.
func (t *LivePriceTable) Quotes() map[models.ExchangeID]map[string]models.Quote {
	out := make(map[models.ExchangeID]map[string]models.Quote, len(t.rows))
	for ex, row := range t.rows {
		m := make(map[string]models.Quote, len(row))
		for pair, q := range row {
			f, _ := q.price.Float64()
			m[pair] = models.Quote{Price: f, At: q.at}
		}
		out[ex] = m
	}
	return out
}

// Merge averages, per pair, the prices reported by the active exchanges.
// Pairs no active exchange reports are omitted. The mean is computed exactly
// and converted to float64 once.
func Merge(live *LivePriceTable, active []models.ExchangeID) map[string]float64 {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int64)
	seen := make(map[models.ExchangeID]bool, len(active))
	for _, ex := range active {
		if seen[ex] {
			continue
		}
		seen[ex] = true
		for pair, q := range live.rows[ex] {
			sums[pair] = sums[pair].Add(q.price)
			counts[pair]++
		}
	}

	merged := make(map[string]float64, len(sums))
	for pair, sum := range sums {
		mean := sum.Div(decimal.NewFromInt(counts[pair]))
		f, _ := mean.Float64()
		merged[pair] = f
	}
	return merged
}

// Pairs returns the merged pairs in name order.
func Pairs(merged map[string]float64) []string {
	out := make([]string, 0, len(merged))
	for p := range merged {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
