package terminal

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	appconfig "cryptoterm/config"
	"cryptoterm/internal/fetcher"
	"cryptoterm/internal/models"
)

var (
	// ErrUnknownExchange is returned when a selection names an exchange the
	// terminal has no feed for.
	ErrUnknownExchange = errors.New("unknown exchange")
	// ErrInvalidSelection is returned for malformed selection values.
	ErrInvalidSelection = errors.New("invalid selection")
	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("terminal stopped")
)

// VolumeFilter narrows the pair list by 24h quote volume.
type VolumeFilter string

const (
	VolumeAll    VolumeFilter = "all"
	VolumeTop    VolumeFilter = "top"
	VolumeBottom VolumeFilter = "bottom"
)

// ChangeFilter narrows the pair list by 24h price change.
type ChangeFilter string

const (
	ChangeAll  ChangeFilter = "all"
	ChangeUp   ChangeFilter = "up"
	ChangeDown ChangeFilter = "down"
)

// Filters are the pair-list filters.
type Filters struct {
	Volume VolumeFilter `json:"volume"`
	Change ChangeFilter `json:"change"`
}

// Selection is everything the operator controls that affects what is fetched
// and streamed.
type Selection struct {
	Mode         models.Mode         `json:"mode"`
	MarketType   models.MarketType   `json:"marketType"`
	Exchange     models.ExchangeID   `json:"exchange"`
	Aggregate    bool                `json:"aggregate"`
	AggExchanges []models.ExchangeID `json:"aggExchanges"`
	Pair         string              `json:"pair"`
	Timeframe    models.Timeframe    `json:"timeframe"`
	HistoryDays  int                 `json:"historyDays"`
	VisibleDays  int                 `json:"visibleDays"`
}

// ActiveExchanges returns the exchanges candles and prices come from. An
// aggregate selection with no exchanges falls back to the single exchange.
func (s Selection) ActiveExchanges() []models.ExchangeID {
	if s.Aggregate && len(s.AggExchanges) > 0 {
		return append([]models.ExchangeID(nil), s.AggExchanges...)
	}
	return []models.ExchangeID{s.Exchange}
}

// FetchLimit is the number of bars requested for the selection.
func (s Selection) FetchLimit() int {
	return fetcher.LimitForHistory(s.HistoryDays, s.Timeframe)
}

func (s Selection) clone() Selection {
	s.AggExchanges = append([]models.ExchangeID(nil), s.AggExchanges...)
	return s
}

// dataKey changes whenever a refetch is required.
func (s Selection) dataKey() string {
	return fmt.Sprintf("%s|%s|%v|%v|%d", s.Pair, s.Timeframe, s.Aggregate, s.ActiveExchanges(), s.HistoryDays)
}

// SelectionPatch is a partial selection update. Nil fields are left alone.
type SelectionPatch struct {
	Mode         *string  `json:"mode,omitempty"`
	MarketType   *string  `json:"marketType,omitempty"`
	Exchange     *string  `json:"exchange,omitempty"`
	Aggregate    *bool    `json:"aggregate,omitempty"`
	AggExchanges []string `json:"aggExchanges,omitempty"`
	Pair         *string  `json:"pair,omitempty"`
	Timeframe    *string  `json:"timeframe,omitempty"`
	HistoryDays  *int     `json:"historyDays,omitempty"`
	VisibleDays  *int     `json:"visibleDays,omitempty"`
	VolumeFilter *string  `json:"volumeFilter,omitempty"`
	ChangeFilter *string  `json:"changeFilter,omitempty"`
}

// Apply returns sel and f with the patch applied. Nothing is returned on error.
func (p SelectionPatch) Apply(sel Selection, f Filters) (Selection, Filters, error) {
	sel = sel.clone()

	if p.Mode != nil {
		m := models.Mode(strings.ToLower(strings.TrimSpace(*p.Mode)))
		if !m.Valid() {
			return Selection{}, Filters{}, fmt.Errorf("%w: mode %q", ErrInvalidSelection, *p.Mode)
		}
		sel.Mode = m
	}
	if p.MarketType != nil {
		m := models.MarketType(strings.ToLower(strings.TrimSpace(*p.MarketType)))
		if !m.Valid() {
			return Selection{}, Filters{}, fmt.Errorf("%w: market type %q", ErrInvalidSelection, *p.MarketType)
		}
		sel.MarketType = m
	}
	if p.Exchange != nil {
		ex, err := models.ParseExchange(*p.Exchange)
		if err != nil {
			return Selection{}, Filters{}, fmt.Errorf("%w: %q", ErrUnknownExchange, *p.Exchange)
		}
		sel.Exchange = ex
	}
	if p.Aggregate != nil {
		sel.Aggregate = *p.Aggregate
	}
	if p.AggExchanges != nil {
		exs, err := parseExchanges(p.AggExchanges)
		if err != nil {
			return Selection{}, Filters{}, err
		}
		sel.AggExchanges = exs
	}
	if p.Pair != nil {
		pair := strings.ToUpper(strings.TrimSpace(*p.Pair))
		if !strings.Contains(pair, "/") {
			return Selection{}, Filters{}, fmt.Errorf("%w: pair %q must be BASE/QUOTE", ErrInvalidSelection, *p.Pair)
		}
		sel.Pair = pair
	}
	if p.Timeframe != nil {
		tf := models.Timeframe(strings.TrimSpace(*p.Timeframe))
		if !tf.Valid() {
			return Selection{}, Filters{}, fmt.Errorf("%w: %s", fetcher.ErrUnsupportedTimeframe, *p.Timeframe)
		}
		sel.Timeframe = tf
	}
	if p.HistoryDays != nil {
		if *p.HistoryDays <= 0 {
			return Selection{}, Filters{}, fmt.Errorf("%w: history days must be positive", ErrInvalidSelection)
		}
		sel.HistoryDays = *p.HistoryDays
	}
	if p.VisibleDays != nil {
		if *p.VisibleDays <= 0 {
			return Selection{}, Filters{}, fmt.Errorf("%w: visible days must be positive", ErrInvalidSelection)
		}
		sel.VisibleDays = *p.VisibleDays
	}
	if p.VolumeFilter != nil {
		v := VolumeFilter(strings.ToLower(strings.TrimSpace(*p.VolumeFilter)))
		switch v {
		case VolumeAll, VolumeTop, VolumeBottom:
			f.Volume = v
		default:
			return Selection{}, Filters{}, fmt.Errorf("%w: volume filter %q", ErrInvalidSelection, *p.VolumeFilter)
		}
	}
	if p.ChangeFilter != nil {
		c := ChangeFilter(strings.ToLower(strings.TrimSpace(*p.ChangeFilter)))
		switch c {
		case ChangeAll, ChangeUp, ChangeDown:
			f.Change = c
		default:
			return Selection{}, Filters{}, fmt.Errorf("%w: change filter %q", ErrInvalidSelection, *p.ChangeFilter)
		}
	}

	sel.HistoryDays = fetcher.ClampHistoryDays(sel.HistoryDays, sel.Timeframe)
	return sel, f, nil
}

// SelectionFromConfig builds the startup selection.
func SelectionFromConfig(cfg appconfig.SelectionConfig) (Selection, Filters, error) {
	aggregate := cfg.Aggregate
	patch := SelectionPatch{
		Mode:         &cfg.Mode,
		MarketType:   &cfg.MarketType,
		Exchange:     &cfg.Exchange,
		Aggregate:    &aggregate,
		AggExchanges: cfg.AggExchanges,
		Pair:         &cfg.Pair,
		Timeframe:    &cfg.Timeframe,
		HistoryDays:  &cfg.HistoryDays,
		VisibleDays:  &cfg.VisibleDays,
		VolumeFilter: &cfg.VolumeFilter,
		ChangeFilter: &cfg.ChangeFilter,
	}
	sel, f, err := patch.Apply(Selection{}, Filters{Volume: VolumeAll, Change: ChangeAll})
	if err != nil {
		return Selection{}, Filters{}, fmt.Errorf("defaults: %w", err)
	}
	if err := validate(sel); err != nil {
		return Selection{}, Filters{}, fmt.Errorf("defaults: %w", err)
	}
	return sel, f, nil
}

// validate refuses selections the backend cannot serve.
// nearestSupportedTimeframe returns the timeframe closest to tf that the
// exchanges serve, preferring the coarser one on a tie.
func nearestSupportedTimeframe(tf models.Timeframe, exchanges []models.ExchangeID) models.Timeframe {
	idx := slices.Index(models.Timeframes, tf)
	if idx < 0 {
		return models.TF1h
	}
	for d := 0; d < len(models.Timeframes); d++ {
		for _, i := range []int{idx + d, idx - d} {
			if i >= 0 && i < len(models.Timeframes) && fetcher.TimeframeSupported(models.Timeframes[i], exchanges) {
				return models.Timeframes[i]
			}
		}
	}
	return tf
}

func validate(sel Selection) error {
	if !fetcher.TimeframeSupported(sel.Timeframe, sel.ActiveExchanges()) {
		return fmt.Errorf("%w: %s on %v", fetcher.ErrUnsupportedTimeframe, sel.Timeframe, sel.ActiveExchanges())
	}
	return nil
}

func parseExchanges(names []string) ([]models.ExchangeID, error) {
	out := make([]models.ExchangeID, 0, len(names))
	seen := make(map[models.ExchangeID]bool, len(names))
	for _, n := range names {
		ex, err := models.ParseExchange(n)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, n)
		}
		if seen[ex] {
			continue
		}
		seen[ex] = true
		out = append(out, ex)
	}
	return out, nil
}
