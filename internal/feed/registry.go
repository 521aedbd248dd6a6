package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cryptoterm/internal/metrics"
	"cryptoterm/internal/models"
	"cryptoterm/logger"
)

// Registry owns the live adapters, at most one per exchange.
type Registry struct {
	sink Sink
	opts Options
	log  *logger.Log

	mu       sync.Mutex
	ctx      context.Context
	market   models.MarketType
	pairs    []models.PairInfo
	adapters map[models.ExchangeID]*Adapter
}

// NewRegistry returns an empty registry whose adapters emit into sink.
func NewRegistry(sink Sink, opts Options) *Registry {
	return &Registry{
		sink:     sink,
		opts:     opts,
		log:      logger.GetLogger(),
		adapters: make(map[models.ExchangeID]*Adapter),
	}
}

// Rebuild closes every adapter and opens one per exchange for pairs. It
// returns the new session id of each opened adapter.
func (r *Registry) Rebuild(ctx context.Context, market models.MarketType, exchanges []models.ExchangeID, pairs []models.PairInfo) (map[models.ExchangeID]string, error) {
	r.CloseAll()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx = ctx
	r.market = market
	r.pairs = append([]models.PairInfo(nil), pairs...)

	sessions := make(map[models.ExchangeID]string, len(exchanges))
	var unknown []models.ExchangeID
	for _, id := range exchanges {
		ex, ok := Lookup(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		a := newAdapter(ex, market, r.pairs, r.sink, r.opts)
		r.adapters[id] = a
		sessions[id] = a.Session()
		a.Open(ctx)
	}

	r.log.WithComponent("feed_registry").WithFields(logger.Fields{
		"market":    market,
		"exchanges": exchanges,
		"pairs":     len(pairs),
	}).Info("streaming adapters rebuilt")

	if len(unknown) > 0 {
		return sessions, fmt.Errorf("no feed for exchanges %v", unknown)
	}
	return sessions, nil
}

// Sweep replaces every adapter that is neither connected nor connecting with
// a fresh one for the same exchange and returns the replacement sessions.
func (r *Registry) Sweep() map[models.ExchangeID]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := make(map[models.ExchangeID]string)
	if r.ctx == nil || r.ctx.Err() != nil {
		return replaced
	}
	for id, old := range r.adapters {
		switch old.State() {
		case models.StateConnected, models.StateConnecting:
			continue
		}
		if old.sub.Empty() {
			continue
		}
		old.Close()

		ex, _ := Lookup(id)
		a := newAdapter(ex, r.market, r.pairs, r.sink, r.opts)
		r.adapters[id] = a
		replaced[id] = a.Session()
		a.Open(r.ctx)
		metrics.IncReconnect(id)
	}

	if len(replaced) > 0 {
		r.log.WithComponent("feed_registry").WithFields(logger.Fields{"replaced": len(replaced)}).Info("reconnect sweep replaced adapters")
	}
	return replaced
}

// CloseAll closes every adapter in exchange order and empties the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	for _, id := range ids {
		r.adapters[models.ExchangeID(id)].Close()
	}
	r.adapters = make(map[models.ExchangeID]*Adapter)
}

// States returns the current state of each registered adapter.
func (r *Registry) States() map[models.ExchangeID]models.ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[models.ExchangeID]models.ConnState, len(r.adapters))
	for id, a := range r.adapters {
		out[id] = a.State()
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.adapters)
}
