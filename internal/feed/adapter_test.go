package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cryptoterm/internal/channel"
	"cryptoterm/internal/models"
)

// wsServer accepts websocket clients, records the first frame each sends and
// then writes frames to them.
type wsServer struct {
	*httptest.Server
	mu         sync.Mutex
	subscribes []string
	frames     []string
	conns      int
}

func newWSServer(t *testing.T, frames ...string) *wsServer {
	t.Helper()
	s := &wsServer{frames: frames}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.subscribes = append(s.subscribes, string(msg))
		s.conns++
		s.mu.Unlock()
		for _, f := range s.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *wsServer) subscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribes)
}

func waitState(t *testing.T, events *channel.Events, want models.ConnState) models.StateEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events.States:
			if ev.State == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func TestAdapterStreamsRequestedPairs(t *testing.T) {
	srv := newWSServer(t,
		`{"result":null,"id":1}`,
		`{"e":"24hrMiniTicker","s":"DOGEUSDT","c":"0.1"}`,
		`{"e":"24hrMiniTicker","s":"BTCUSDT","c":"43000.5"}`,
		`{"e":"24hrMiniTicker","s":"ETHUSDT","c":"bad"}`,
		`{"e":"24hrMiniTicker","s":"ETHUSDT","c":"2300"}`,
	)
	events := channel.NewEvents(16)
	ex, _ := Lookup(models.Binance)
	a := newAdapter(ex, models.MarketSpot, []models.PairInfo{{Pair: "BTC/USDT"}, {Pair: "ETH/USDT"}}, events,
		Options{Endpoints: map[models.ExchangeID]string{models.Binance: srv.wsURL()}, Keepalive: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.Open(ctx)
	defer a.Close()

	connected := waitState(t, events, models.StateConnected)
	if connected.Session != a.Session() {
		t.Fatalf("state event carries session %q want %q", connected.Session, a.Session())
	}

	var got []models.Tick
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case tick := <-events.Ticks:
			got = append(got, tick)
		case <-timeout:
			t.Fatalf("timed out waiting for ticks, got %+v", got)
		}
	}
	if got[0].Pair != "BTC/USDT" || got[0].Price.String() != "43000.5" {
		t.Fatalf("unexpected first tick %+v", got[0])
	}
	if got[1].Pair != "ETH/USDT" || got[1].Price.String() != "2300" {
		t.Fatalf("unexpected second tick %+v", got[1])
	}
	if got[0].Session != a.Session() || got[0].Exchange != models.Binance {
		t.Fatalf("tick missing session or exchange: %+v", got[0])
	}

	if n := srv.subscribeCount(); n != 1 {
		t.Fatalf("expected exactly one subscribe request, got %d", n)
	}
	srv.mu.Lock()
	sub := srv.subscribes[0]
	srv.mu.Unlock()
	if !strings.Contains(sub, "btcusdt@miniTicker") || !strings.Contains(sub, "ethusdt@miniTicker") {
		t.Fatalf("subscription does not list every instrument: %s", sub)
	}
}

func TestAdapterWithoutSymbolsDoesNotConnect(t *testing.T) {
	events := channel.NewEvents(1)
	ex, _ := Lookup(models.OKX)
	a := newAdapter(ex, models.MarketPerp, []models.PairInfo{{Pair: "BTC/USDT"}}, events,
		Options{Endpoints: map[models.ExchangeID]string{models.OKX: "ws://127.0.0.1:1/never"}})

	a.Open(context.Background())
	defer a.Close()

	ev := waitState(t, events, models.StateDisconnected)
	if ev.Err != nil {
		t.Fatalf("unexpected error %v", ev.Err)
	}
	if a.State() != models.StateDisconnected {
		t.Fatalf("state %s want disconnected", a.State())
	}
}

func TestAdapterDialFailureReportsDisconnected(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	events := channel.NewEvents(1)
	ex, _ := Lookup(models.Binance)
	a := newAdapter(ex, models.MarketSpot, []models.PairInfo{{Pair: "BTC/USDT"}}, events,
		Options{Endpoints: map[models.ExchangeID]string{models.Binance: url}, HandshakeTimeout: time.Second})
	a.Open(context.Background())
	defer a.Close()

	ev := waitState(t, events, models.StateDisconnected)
	if ev.Err == nil {
		t.Fatal("expected dial error on disconnected event")
	}
}

func TestAdapterCloseIsSynchronous(t *testing.T) {
	srv := newWSServer(t)
	events := channel.NewEvents(4)
	ex, _ := Lookup(models.Coinbase)
	pairs := []models.PairInfo{{Pair: "BTC/USDT", Symbols: map[models.ExchangeID]string{models.Coinbase: "BTC-USD"}}}
	a := newAdapter(ex, models.MarketSpot, pairs, events,
		Options{Endpoints: map[models.ExchangeID]string{models.Coinbase: srv.wsURL()}})
	a.Open(context.Background())
	waitState(t, events, models.StateConnected)

	done := make(chan struct{})
	go func() {
		a.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if a.State() != models.StateDisconnected {
		t.Fatalf("state after close %s", a.State())
	}
	a.Close()
}
