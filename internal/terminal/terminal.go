// Package terminal runs the single event loop that ties the exchange feeds,
// the price reconciler, candle fetching, the viewport and the indicator
// engine together and publishes immutable snapshots of the result.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	appconfig "cryptoterm/config"
	"cryptoterm/internal/channel"
	"cryptoterm/internal/fetcher"
	"cryptoterm/internal/indicator"
	"cryptoterm/internal/metrics"
	"cryptoterm/internal/models"
	"cryptoterm/internal/reconciler"
	"cryptoterm/internal/viewport"
	"cryptoterm/logger"
)

// PairSource lists the tradable pairs.
type PairSource interface {
	ListPairs(ctx context.Context) ([]models.PairInfo, error)
}

// CandleFetcher loads a candle series.
type CandleFetcher interface {
	Fetch(ctx context.Context, req fetcher.Request) ([]models.Candle, error)
}

// Streamer owns the exchange adapters. *feed.Registry implements it.
type Streamer interface {
	Rebuild(ctx context.Context, market models.MarketType, exchanges []models.ExchangeID, pairs []models.PairInfo) (map[models.ExchangeID]string, error)
	Sweep() map[models.ExchangeID]string
	CloseAll()
}

// Deps are the collaborators of a Terminal. A nil Streamer disables
// streaming; a nil Events means no ticks or state events arrive.
type Deps struct {
	Pairs    PairSource
	Fetcher  CandleFetcher
	Streamer Streamer
	Events   *channel.Events
}

// expireEvery bounds how often ticks trigger a stale-quote sweep.
const expireEvery = time.Second

var (
	timeNow = time.Now
	// newPollTicker starts the live refetch clock. The returned func stops it.
	newPollTicker = func(d time.Duration) (<-chan time.Time, func()) {
		ticker := time.NewTicker(d)
		return ticker.C, ticker.Stop
	}
)

type command struct {
	fn    func() error
	reply chan error
}

type fetchResult struct {
	gen     uint64
	pair    string
	candles []models.Candle
	err     error
	took    time.Duration
}

type pairsResult struct {
	pairs []models.PairInfo
	err   error
}

// Terminal is the orchestrator. All fields below the channels are owned by
// the Run goroutine.
type Terminal struct {
	streaming appconfig.StreamingConfig
	refresh   time.Duration
	deps      Deps
	log       *logger.Log

	cmds      chan command
	fetchDone chan fetchResult
	pairsDone chan pairsResult
	done      chan struct{}
	started   atomic.Bool
	snap      atomic.Pointer[Snapshot]

	ctx context.Context

	sel       Selection
	filters   Filters
	pairs     []models.PairInfo
	filtered  []models.PairInfo
	pairsErr  string
	pairsBusy bool

	candles     []models.Candle
	fetchErr    string
	loading     bool
	gen         uint64
	genID       string
	fetchCancel context.CancelFunc
	fetchBusy   bool
	fetchedKey  string

	view      *viewport.Controller
	live      *reconciler.LivePriceTable
	merged    map[string]float64
	conn      map[models.ExchangeID]models.ConnState
	sessions  map[models.ExchangeID]string
	streamKey string

	pollC      <-chan time.Time
	pollStop   func()
	pollEvery  time.Duration
	lastExpire time.Time

	ind      models.IndicatorBundle
	indStart int
	indEnd   int
	indValid bool
}

// New builds a terminal seeded with cfg.Defaults. It does nothing until Run.
func New(cfg *appconfig.Config, deps Deps) (*Terminal, error) {
	if deps.Pairs == nil || deps.Fetcher == nil {
		return nil, errors.New("terminal requires a pair source and a candle fetcher")
	}
	sel, filters, err := SelectionFromConfig(cfg.Defaults)
	if err != nil {
		return nil, err
	}

	t := &Terminal{
		streaming: cfg.Streaming,
		refresh:   cfg.Market.PairsRefreshInterval,
		deps:      deps,
		log:       logger.GetLogger(),
		cmds:      make(chan command),
		fetchDone: make(chan fetchResult),
		pairsDone: make(chan pairsResult),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		sel:       sel,
		filters:   filters,
		pairs:     models.DefaultPairs(),
		genID:     uuid.NewString(),
		view:      viewport.New(sel.Timeframe, sel.FetchLimit(), sel.VisibleDays),
		live:      reconciler.NewLivePriceTable(),
		merged:    map[string]float64{},
		conn:      map[models.ExchangeID]models.ConnState{},
		sessions:  map[models.ExchangeID]string{},
	}
	t.filtered = FilterPairs(t.pairs, sel.MarketType, filters)
	t.publish()
	return t, nil
}

// Snapshot returns the latest published snapshot. It is never nil and must
// not be modified.
func (t *Terminal) Snapshot() *Snapshot {
	return t.snap.Load()
}

// Run drives the event loop until ctx is cancelled. It may be called once.
func (t *Terminal) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return errors.New("terminal already running")
	}
	defer close(t.done)
	t.ctx = ctx
	log := t.log.WithComponent("terminal")

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()
	if t.deps.Streamer != nil && t.streaming.Enabled {
		if _, err := scheduler.Every(t.streaming.ReconnectInterval).WaitForSchedule().Do(func() {
			t.post(ctx, t.sweep)
		}); err != nil {
			return fmt.Errorf("failed to schedule reconnect sweep: %w", err)
		}
	}
	if t.refresh > 0 {
		if _, err := scheduler.Every(t.refresh).WaitForSchedule().Do(func() {
			t.post(ctx, t.refreshPairs)
		}); err != nil {
			return fmt.Errorf("failed to schedule pair refresh: %w", err)
		}
	}
	scheduler.StartAsync()
	defer t.shutdown(scheduler)

	log.WithFields(logger.Fields{
		"mode":      t.sel.Mode,
		"market":    t.sel.MarketType,
		"pair":      t.sel.Pair,
		"timeframe": t.sel.Timeframe,
		"exchanges": t.sel.ActiveExchanges(),
	}).Info("terminal started")

	t.refreshPairs()
	t.commit(true)
	t.publish()

	var (
		ticks  <-chan models.Tick
		states <-chan models.StateEvent
	)
	if t.deps.Events != nil {
		ticks = t.deps.Events.Ticks
		states = t.deps.Events.States
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("terminal stopping")
			return nil
		case cmd := <-t.cmds:
			err := cmd.fn()
			t.publish()
			if cmd.reply != nil {
				cmd.reply <- err
			} else if err != nil {
				log.WithError(err).Warn("scheduled job failed")
			}
			continue
		case tick := <-ticks:
			t.handleTick(tick)
		case ev := <-states:
			t.handleState(ev)
		case res := <-t.fetchDone:
			t.handleFetch(res)
		case res := <-t.pairsDone:
			t.handlePairs(res)
		case <-t.pollC:
			t.pollFetch()
		}
		t.publish()
	}
}

func (t *Terminal) shutdown(scheduler *gocron.Scheduler) {
	scheduler.Stop()
	if t.fetchCancel != nil {
		t.fetchCancel()
		t.fetchCancel = nil
	}
	t.stopPoll()
	if t.deps.Streamer != nil {
		t.deps.Streamer.CloseAll()
	}
}

// Select applies patch. Invalid or unsupported selections are refused before
// any state changes.
func (t *Terminal) Select(ctx context.Context, patch SelectionPatch) error {
	return t.do(ctx, func() error {
		sel, filters, err := patch.Apply(t.sel, t.filters)
		if err != nil {
			return err
		}
		sel, _ = t.normalize(sel, filters)
		if err := validate(sel); err != nil {
			return err
		}
		t.sel, t.filters = sel, filters
		t.commit(false)
		return nil
	})
}

// PanStart begins a drag at x.
func (t *Terminal) PanStart(ctx context.Context, x float64) error {
	return t.do(ctx, func() error {
		t.view.PanStart(x)
		return nil
	})
}

// PanMove drags the view to x on a chart width pixels wide.
func (t *Terminal) PanMove(ctx context.Context, x, width float64) error {
	return t.do(ctx, func() error {
		t.view.PanMove(x, width)
		return nil
	})
}

// PanEnd finishes a drag.
func (t *Terminal) PanEnd(ctx context.Context) error {
	return t.do(ctx, func() error {
		t.view.PanEnd()
		return nil
	})
}

// Zoom steps the visible days; negative zooms in.
func (t *Terminal) Zoom(ctx context.Context, dir int) error {
	return t.do(ctx, func() error {
		t.view.Zoom(dir)
		t.sel.VisibleDays = t.view.VisibleDays()
		return nil
	})
}

// ResetView pins the view to the newest bar.
func (t *Terminal) ResetView(ctx context.Context) error {
	return t.do(ctx, func() error {
		t.view.Reset()
		return nil
	})
}

func (t *Terminal) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case t.cmds <- command{fn: fn, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrStopped
	}
}

func (t *Terminal) post(ctx context.Context, fn func() error) {
	select {
	case t.cmds <- command{fn: fn}:
	case <-ctx.Done():
	case <-t.done:
	}
}

// normalize moves sel onto a pair in the filtered list and onto exchanges
// that list that pair.
func (t *Terminal) normalize(sel Selection, filters Filters) (Selection, []models.PairInfo) {
	filtered := FilterPairs(t.pairs, sel.MarketType, filters)
	if len(filtered) > 0 && !containsPair(filtered, sel.Pair) {
		sel.Pair = filtered[0].Pair
	}
	sel = coerceExchanges(sel, AvailableExchanges(t.pairs, sel.Pair))
	sel.HistoryDays = fetcher.ClampHistoryDays(sel.HistoryDays, sel.Timeframe)
	return sel, filtered
}

// commit reconciles every derived piece of state with the current selection.
func (t *Terminal) commit(force bool) {
	t.sel, t.filtered = t.normalize(t.sel, t.filters)

	key := t.sel.dataKey()
	refetch := force || key != t.fetchedKey
	if refetch {
		t.bumpGeneration()
	}

	t.syncStreaming()

	if refetch {
		if key != t.fetchedKey {
			t.candles = nil
			t.fetchErr = ""
			t.view.SetTotal(0)
			t.indValid = false
		}
		t.fetchedKey = key
		t.view.Configure(t.sel.Timeframe, t.sel.FetchLimit())
		t.startFetch(true)
	}

	t.view.SetVisibleDays(t.sel.VisibleDays)
	t.sel.VisibleDays = t.view.VisibleDays()
	t.syncPoll()
}

func (t *Terminal) bumpGeneration() {
	t.gen++
	t.genID = uuid.NewString()
	if t.fetchCancel != nil {
		t.fetchCancel()
		t.fetchCancel = nil
	}
	t.fetchBusy = false
}

func (t *Terminal) startFetch(showLoading bool) {
	gen := t.gen
	ctx, cancel := context.WithCancel(t.ctx)
	t.fetchCancel = cancel
	t.fetchBusy = true
	if showLoading {
		t.loading = true
	}

	req := fetcher.Request{
		Pair:      t.sel.Pair,
		Timeframe: t.sel.Timeframe,
		Exchanges: t.sel.ActiveExchanges(),
		Aggregate: t.sel.Aggregate,
		Limit:     t.sel.FetchLimit(),
	}
	done := t.fetchDone
	loopCtx := t.ctx
	go func() {
		start := time.Now()
		candles, err := t.deps.Fetcher.Fetch(ctx, req)
		res := fetchResult{gen: gen, pair: req.Pair, candles: candles, err: err, took: time.Since(start)}
		select {
		case done <- res:
		case <-loopCtx.Done():
		}
	}()
}

func (t *Terminal) pollFetch() {
	if t.fetchBusy {
		return
	}
	t.startFetch(false)
}

func (t *Terminal) handleFetch(res fetchResult) {
	if res.gen != t.gen {
		metrics.EmitDropMetric(t.log, metrics.DropMetricStale, "", res.pair, "fetch")
		return
	}
	if t.fetchCancel != nil {
		t.fetchCancel()
		t.fetchCancel = nil
	}
	t.fetchBusy = false
	t.loading = false

	metrics.ObserveFetch(res.err, res.took)
	metrics.EmitMetric(t.log, "fetcher", "fetch_duration_ms", res.took.Milliseconds(), "gauge", logger.Fields{
		"pair":      res.pair,
		"timeframe": t.sel.Timeframe,
	})

	if res.err != nil {
		t.candles = nil
		t.fetchErr = res.err.Error()
		t.log.WithComponent("terminal").WithError(res.err).WithFields(logger.Fields{
			"pair":      res.pair,
			"timeframe": t.sel.Timeframe,
		}).Warn("candle fetch failed")
	} else {
		t.candles = res.candles
		t.fetchErr = ""
		logger.LogPerformanceEntry(t.log.WithFields(logger.Fields{"pair": res.pair}), "terminal", "fetch_candles", res.took, logger.Fields{
			"candles":   len(res.candles),
			"timeframe": t.sel.Timeframe,
		})
	}
	t.view.SetTotal(len(t.candles))
	t.sel.VisibleDays = t.view.VisibleDays()
	t.indValid = false
}

func (t *Terminal) refreshPairs() error {
	if t.pairsBusy {
		return nil
	}
	t.pairsBusy = true
	ctx := t.ctx
	done := t.pairsDone
	go func() {
		pairs, err := t.deps.Pairs.ListPairs(ctx)
		select {
		case done <- pairsResult{pairs: pairs, err: err}:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (t *Terminal) handlePairs(res pairsResult) {
	t.pairsBusy = false
	if res.err != nil {
		t.pairsErr = res.err.Error()
		t.log.WithComponent("terminal").WithError(res.err).Warn("pair refresh failed; keeping previous list")
		return
	}
	if len(res.pairs) == 0 {
		t.pairsErr = "backend returned no pairs"
		return
	}
	t.pairs = res.pairs
	t.pairsErr = ""
	logger.LogDataFlowEntry(t.log.WithComponent("terminal"), "backend", "terminal", len(res.pairs), "pairs")
	if !containsPair(t.pairs, t.sel.Pair) {
		t.sel.Pair = FilterPairs(t.pairs, t.sel.MarketType, Filters{Volume: VolumeAll, Change: ChangeAll})[0].Pair
	}
	if next, _ := t.normalize(t.sel, t.filters); validate(next) != nil {
		tf := nearestSupportedTimeframe(next.Timeframe, next.ActiveExchanges())
		t.log.WithComponent("terminal").WithFields(logger.Fields{
			"pair":      next.Pair,
			"exchanges": next.ActiveExchanges(),
			"from":      next.Timeframe,
			"to":        tf,
		}).Info("timeframe unsupported after pair refresh")
		t.sel.Timeframe = tf
	}
	t.commit(false)
}

func (t *Terminal) streamingKey() string {
	if t.deps.Streamer == nil || !t.streaming.Enabled || t.sel.Mode != models.ModeLive {
		return ""
	}
	streamed := streamedPairs(t.filtered, t.streaming.MaxPairs)
	names := make([]string, len(streamed))
	for i, p := range streamed {
		names[i] = p.Pair
	}
	return fmt.Sprintf("%s|%s|%v|%s", t.sel.Mode, t.sel.MarketType, t.sel.ActiveExchanges(), strings.Join(names, ","))
}

// syncStreaming tears every adapter down and opens fresh ones whenever the
// mode, market, active exchanges or streamed pairs change.
func (t *Terminal) syncStreaming() {
	key := t.streamingKey()
	if key == t.streamKey {
		return
	}
	t.streamKey = key

	if t.deps.Streamer != nil {
		t.deps.Streamer.CloseAll()
	}
	t.live.Clear()
	t.merged = map[string]float64{}
	t.conn = map[models.ExchangeID]models.ConnState{}
	t.sessions = map[models.ExchangeID]string{}
	if key == "" {
		return
	}

	active := t.sel.ActiveExchanges()
	sessions, err := t.deps.Streamer.Rebuild(t.ctx, t.sel.MarketType, active, streamedPairs(t.filtered, t.streaming.MaxPairs))
	if err != nil {
		t.log.WithComponent("terminal").WithError(err).Warn("streaming rebuild incomplete")
	}
	for ex, session := range sessions {
		t.sessions[ex] = session
		t.conn[ex] = models.StateConnecting
		metrics.SetConnState(ex, models.StateConnecting)
	}
}

func (t *Terminal) syncPoll() {
	var want time.Duration
	if t.sel.Mode == models.ModeLive {
		want = fetcher.PollInterval(t.sel.Timeframe)
	}
	if want == t.pollEvery {
		return
	}
	t.stopPoll()
	t.pollEvery = want
	if want > 0 {
		t.pollC, t.pollStop = newPollTicker(want)
	}
}

func (t *Terminal) stopPoll() {
	if t.pollStop != nil {
		t.pollStop()
	}
	t.pollC, t.pollStop = nil, nil
}

func (t *Terminal) sweep() error {
	if t.streamKey == "" {
		return nil
	}
	for ex, session := range t.deps.Streamer.Sweep() {
		t.sessions[ex] = session
		t.conn[ex] = models.StateConnecting
		metrics.SetConnState(ex, models.StateConnecting)
	}
	if t.expire(timeNow()) {
		t.remerge()
	}
	return nil
}

func (t *Terminal) handleTick(tick models.Tick) {
	if session, ok := t.sessions[tick.Exchange]; !ok || session != tick.Session {
		metrics.ObserveDrop(string(tick.Exchange), "stale_session")
		return
	}
	metrics.ObserveTick(tick.Exchange)

	now := timeNow()
	at := tick.At
	if at.IsZero() {
		at = now
	}
	changed := t.live.Upsert(tick.Exchange, tick.Pair, tick.Price, at)
	expired := false
	if now.Sub(t.lastExpire) >= expireEvery {
		expired = t.expire(now)
	}
	if expired || changed {
		t.remerge()
	}
}

func (t *Terminal) handleState(ev models.StateEvent) {
	if session, ok := t.sessions[ev.Exchange]; !ok || session != ev.Session {
		return
	}
	prev := t.conn[ev.Exchange]
	t.conn[ev.Exchange] = ev.State
	metrics.SetConnState(ev.Exchange, ev.State)

	entry := t.log.WithComponent("terminal").WithFields(logger.Fields{
		"exchange": ev.Exchange,
		"from":     prev,
		"to":       ev.State,
	})
	if ev.Err != nil {
		entry.WithError(ev.Err).Warn("stream state changed")
	} else if prev != ev.State {
		entry.Info("stream state changed")
	}

	if ev.State == models.StateDisconnected && t.live.DropExchange(ev.Exchange) {
		t.remerge()
	}
}

func (t *Terminal) expire(now time.Time) bool {
	if t.streaming.StaleAfter <= 0 {
		return false
	}
	t.lastExpire = now
	return t.live.Expire(now, t.streaming.StaleAfter)
}

func (t *Terminal) remerge() {
	t.merged = reconciler.Merge(t.live, t.sel.ActiveExchanges())
}

func (t *Terminal) publish() {
	start, end := t.view.Window()
	end = min(end, len(t.candles))
	start = min(start, end)
	if !t.indValid || start != t.indStart || end != t.indEnd {
		t.ind = indicator.Compute(t.candles[start:end])
		t.indStart, t.indEnd, t.indValid = start, end, true
	}

	snap := &Snapshot{
		Generation:         t.genID,
		Selection:          t.sel.clone(),
		Filters:            t.filters,
		Candles:            append([]models.Candle(nil), t.candles[start:end]...),
		TotalCandles:       len(t.candles),
		FetchLimit:         t.sel.FetchLimit(),
		Indicators:         t.ind,
		Viewport:           t.view.State(),
		ConnState:          maps.Clone(t.conn),
		LivePrices:         t.live.Quotes(),
		MergedPrices:       maps.Clone(t.merged),
		Pairs:              t.filtered,
		AvailableExchanges: AvailableExchanges(t.pairs, t.sel.Pair),
		Error:              t.fetchErr,
		PairsError:         t.pairsErr,
		Loading:            t.loading,
		Change1BarPct:      changePct(t.candles, 1),
		Change24BarsPct:    changePct(t.candles, 24),
		UpdatedAt:          time.Now(),
	}
	if p, ok := t.merged[t.sel.Pair]; ok {
		snap.LastPrice = &p
	} else if n := len(t.candles); n > 0 {
		last := t.candles[n-1].Close
		snap.LastPrice = &last
	}
	t.snap.Store(snap)
}
