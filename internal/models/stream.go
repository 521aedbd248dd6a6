package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConnState is the connection state of one exchange stream.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// Tick is a normalised price update emitted by a feed adapter.
type Tick struct {
	Session  string
	Exchange ExchangeID
	Pair     string
	Price    decimal.Decimal
	At       time.Time
}

// StateEvent reports a connection state transition for one adapter session.
type StateEvent struct {
	Session  string
	Exchange ExchangeID
	State    ConnState
	Err      error
}

// Quote is the latest price an exchange reported for a pair.
type Quote struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}
