package terminal

import (
	"slices"
	"sort"

	"cryptoterm/internal/models"
)

// FilterPairs sorts pairs by name, keeps those trading as market (all of them
// when none do) and applies the change and volume filters in that order.
func FilterPairs(pairs []models.PairInfo, market models.MarketType, f Filters) []models.PairInfo {
	sorted := append([]models.PairInfo(nil), pairs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Pair < sorted[j].Pair })

	filtered := make([]models.PairInfo, 0, len(sorted))
	for _, p := range sorted {
		if p.HasKind(market) {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		filtered = sorted
	}

	if f.Change == ChangeUp || f.Change == ChangeDown {
		ranked := rankBy(filtered, func(p models.PairInfo) *float64 { return p.Change24hPct })
		if f.Change == ChangeDown {
			slices.Reverse(ranked)
		}
		filtered = ranked[:min(sliceCount(len(ranked)), len(ranked))]
	}

	if f.Volume == VolumeTop || f.Volume == VolumeBottom {
		ranked := rankBy(filtered, func(p models.PairInfo) *float64 { return p.Volume24hQuote })
		if f.Volume == VolumeBottom {
			slices.Reverse(ranked)
		}
		filtered = ranked[:min(sliceCount(len(ranked)), len(ranked))]
	}

	return filtered
}

// rankBy keeps pairs with a value and orders them descending by it.
func rankBy(pairs []models.PairInfo, value func(models.PairInfo) *float64) []models.PairInfo {
	out := make([]models.PairInfo, 0, len(pairs))
	for _, p := range pairs {
		if value(p) != nil {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return *value(out[i]) > *value(out[j]) })
	return out
}

func sliceCount(n int) int {
	return max(10, min(20, n))
}

// AvailableExchanges lists the exchanges pair trades on, or every exchange
// when the pair list does not say.
func AvailableExchanges(pairs []models.PairInfo, pair string) []models.ExchangeID {
	for _, p := range pairs {
		if p.Pair != pair {
			continue
		}
		out := make([]models.ExchangeID, 0, len(p.Exchanges))
		for _, ex := range p.Exchanges {
			if slices.Contains(models.Exchanges, ex) && !slices.Contains(out, ex) {
				out = append(out, ex)
			}
		}
		if len(out) > 0 {
			return out
		}
		break
	}
	return append([]models.ExchangeID(nil), models.Exchanges...)
}

// coerceExchanges moves the selection onto exchanges that list the pair.
func coerceExchanges(sel Selection, available []models.ExchangeID) Selection {
	if len(available) == 0 {
		return sel
	}
	if !slices.Contains(available, sel.Exchange) {
		sel.Exchange = available[0]
	}
	agg := make([]models.ExchangeID, 0, len(sel.AggExchanges))
	for _, ex := range sel.AggExchanges {
		if slices.Contains(available, ex) {
			agg = append(agg, ex)
		}
	}
	if len(agg) == 0 {
		agg = []models.ExchangeID{available[0]}
	}
	sel.AggExchanges = agg
	return sel
}

func containsPair(pairs []models.PairInfo, pair string) bool {
	for _, p := range pairs {
		if p.Pair == pair {
			return true
		}
	}
	return false
}

// streamedPairs caps the filtered list at limit.
func streamedPairs(filtered []models.PairInfo, limit int) []models.PairInfo {
	if limit <= 0 || len(filtered) <= limit {
		return filtered
	}
	return filtered[:limit]
}
