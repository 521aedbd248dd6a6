package feed

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"cryptoterm/internal/metrics"
	"cryptoterm/internal/models"
	"cryptoterm/internal/symbols"
	"cryptoterm/logger"
)

const (
	defaultKeepAlive        = 20 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 5 * time.Second
)

// Options configure every adapter a Registry opens.
type Options struct {
	Keepalive        time.Duration
	HandshakeTimeout time.Duration
	// Endpoints overrides Exchange.Endpoint per exchange.
	Endpoints map[models.ExchangeID]string
	// Header is sent with the websocket handshake.
	Header http.Header
}

// Adapter owns one websocket session to one exchange. Its lifecycle is
// open, active, closed; a closed adapter is never reopened.
type Adapter struct {
	ex       Exchange
	market   models.MarketType
	sub      symbols.Subscription
	session  string
	endpoint string
	sink     Sink
	opts     Options
	log      *logger.Entry

	mu     sync.Mutex
	state  models.ConnState
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

func newAdapter(ex Exchange, market models.MarketType, pairs []models.PairInfo, sink Sink, opts Options) *Adapter {
	endpoint := ex.Endpoint(market)
	if override, ok := opts.Endpoints[ex.ID()]; ok && override != "" {
		endpoint = override
	}
	session := uuid.NewString()
	return &Adapter{
		ex:       ex,
		market:   market,
		sub:      symbols.Resolve(ex.ID(), pairs),
		session:  session,
		endpoint: endpoint,
		sink:     sink,
		opts:     opts,
		state:    models.StateDisconnected,
		done:     make(chan struct{}),
		log: logger.GetLogger().WithComponent(string(ex.ID()) + "_feed").WithFields(logger.Fields{
			"session": session,
			"market":  market,
		}),
	}
}

// Session identifies this adapter instance in emitted events.
func (a *Adapter) Session() string { return a.session }

// Exchange returns the exchange id the adapter streams from.
func (a *Adapter) Exchange() models.ExchangeID { return a.ex.ID() }

// Symbols returns the wire ids the adapter subscribes to.
func (a *Adapter) Symbols() []string { return a.sub.Symbols }

// State returns the current connection state.
func (a *Adapter) State() models.ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Open starts the session in the background and never blocks on the sink.
// With no resolvable symbols the adapter reports disconnected and never dials.
func (a *Adapter) Open(parent context.Context) {
	a.mu.Lock()
	if a.closed || a.ctx != nil {
		a.mu.Unlock()
		return
	}
	a.ctx, a.cancel = context.WithCancel(parent)
	ctx := a.ctx
	if !a.sub.Empty() {
		a.state = models.StateConnecting
	}
	a.mu.Unlock()

	if a.sub.Empty() {
		a.log.Info("no symbols to stream; not connecting")
		go func() {
			defer close(a.done)
			a.setState(ctx, models.StateDisconnected, nil)
		}()
		return
	}

	go a.run(ctx)
}

// Close tears the session down and waits for the read loop to exit. Events
// are not emitted after Close returns.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	started := a.ctx != nil
	if a.cancel != nil {
		a.cancel()
	}
	if a.conn != nil {
		a.conn.Close()
	}
	a.mu.Unlock()

	if started {
		<-a.done
	}
	a.mu.Lock()
	a.state = models.StateDisconnected
	a.mu.Unlock()
}

func (a *Adapter) run(ctx context.Context) {
	defer close(a.done)
	a.setState(ctx, models.StateConnecting, nil)

	handshake := a.opts.HandshakeTimeout
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshake,
	}

	conn, _, err := dialer.DialContext(ctx, a.endpoint, a.opts.Header)
	if err != nil {
		if ctx.Err() == nil {
			a.log.WithError(err).WithFields(logger.Fields{"url": a.endpoint}).Warn("failed to connect to websocket")
		}
		a.setState(ctx, models.StateDisconnected, err)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conn = conn
	a.mu.Unlock()
	defer conn.Close()

	a.setState(ctx, models.StateConnected, nil)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(a.ex.SubscribeMessage(a.sub.Symbols)); err != nil {
		a.log.WithError(err).Warn("failed to send subscription")
		a.setState(ctx, models.StateDisconnected, err)
		return
	}
	a.log.WithFields(logger.Fields{"symbols": len(a.sub.Symbols), "url": a.endpoint}).Info("subscribed")

	pingCancel := a.startPingLoop(ctx, conn)
	defer pingCancel()

	err = a.readMessages(ctx, conn)
	if ctx.Err() == nil {
		a.log.WithError(err).Warn("websocket read loop ended")
	}
	a.setState(ctx, models.StateDisconnected, err)
}

func (a *Adapter) readMessages(ctx context.Context, conn *websocket.Conn) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logger.RecordChannelMessage(string(a.ex.ID())+"_ws", len(msg))
		a.handleMessage(ctx, msg)
	}
}

// handleMessage forwards one frame as a tick. It reports whether a tick was
// produced.
func (a *Adapter) handleMessage(ctx context.Context, raw []byte) bool {
	symbol, priceStr, ok := a.ex.ParseTick(raw)
	if !ok {
		a.log.WithFields(logger.Fields{"payload_size": len(raw)}).Debug("ignoring non-ticker frame")
		return false
	}
	pair, ok := a.sub.Pair(symbol)
	if !ok {
		a.log.WithFields(logger.Fields{"symbol": symbol}).Debug("ignoring unrequested symbol")
		return false
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil || !price.IsPositive() {
		a.log.WithFields(logger.Fields{"symbol": symbol, "price": priceStr}).Debug("ignoring unparseable price")
		metrics.EmitDropMetric(logger.GetLogger(), metrics.DropMetricMalformed, string(a.ex.ID()), pair, "parse")
		return false
	}

	tick := models.Tick{
		Session:  a.session,
		Exchange: a.ex.ID(),
		Pair:     pair,
		Price:    price,
		At:       time.Now().UTC(),
	}
	if !a.sink.SendTick(ctx, tick) {
		if ctx.Err() == nil {
			metrics.EmitDropMetric(logger.GetLogger(), metrics.DropMetricTick, string(a.ex.ID()), pair, "ticks")
		}
		return false
	}
	return true
}

func (a *Adapter) setState(ctx context.Context, state models.ConnState, err error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.state = state
	a.mu.Unlock()

	a.sink.SendState(ctx, models.StateEvent{
		Session:  a.session,
		Exchange: a.ex.ID(),
		State:    state,
		Err:      err,
	})
}

func (a *Adapter) startPingLoop(ctx context.Context, conn *websocket.Conn) context.CancelFunc {
	interval := a.opts.Keepalive
	if interval <= 0 {
		interval = defaultKeepAlive
	}
	ping := controlPing
	if p, ok := a.ex.(Pinger); ok {
		ping = p.PingMessage
	}

	pingCtx, cancel := context.WithCancel(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				if err := writePing(conn, ping); err != nil {
					if !errors.Is(err, websocket.ErrCloseSent) && pingCtx.Err() == nil {
						a.log.WithError(err).Warn("failed to send websocket ping")
					}
					return
				}
			}
		}
	}()
	return cancel
}

func writePing(conn *websocket.Conn, ping func() (int, []byte)) error {
	deadline := time.Now().Add(writeTimeout)
	messageType, data := ping()
	if messageType == websocket.PingMessage {
		return conn.WriteControl(websocket.PingMessage, data, deadline)
	}
	conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(messageType, data)
}
