package models

// Side is the direction of a trading signal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Signal marks a crossover at Index of the candle window it was computed over.
// Confidence stays nil until a real scoring model exists.
type Signal struct {
	Index      int      `json:"idx"`
	Side       Side     `json:"side"`
	Reason     string   `json:"reason"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// IndicatorBundle holds indicator series parallel to the candle window.
type IndicatorBundle struct {
	EMAFast    []float64 `json:"emaFast"`
	EMASlow    []float64 `json:"emaSlow"`
	MACD       []float64 `json:"macd"`
	MACDSignal []float64 `json:"macdSignal"`
	RSI        []float64 `json:"rsi"`
	Signals    []Signal  `json:"signals"`
}
