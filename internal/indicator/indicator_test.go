package indicator

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	"cryptoterm/internal/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEMA(t *testing.T) {
	got := EMA(3, []float64{1, 2, 3})
	want := []float64{1, 1.5, 2.25}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Fatalf("EMA[%d]=%v want %v", i, got[i], want[i])
		}
	}
	if out := EMA(8, nil); len(out) != 0 {
		t.Fatalf("expected empty EMA for empty input, got %v", out)
	}
}

func TestEMAIsDeterministic(t *testing.T) {
	closes := randomWalk(500, 7)
	a := EMA(21, closes)
	b := EMA(21, closes)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("EMA produced different output for identical input")
	}
}

func TestRSIConstantPrice(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100}
	rsi := RSI(RSIPeriod, closes)
	if rsi[0] != 50 {
		t.Fatalf("rsi[0]=%v want 50", rsi[0])
	}
	want := 100 - 100/(1+100.0)
	for i := 1; i < len(rsi); i++ {
		if !almostEqual(rsi[i], want) {
			t.Fatalf("rsi[%d]=%v want %v", i, rsi[i], want)
		}
	}
}

func TestRSIBounded(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		for i, v := range RSI(RSIPeriod, randomWalk(300, seed)) {
			if math.IsNaN(v) || v < 0 || v > 100 {
				t.Fatalf("seed %d: rsi[%d]=%v out of [0,100]", seed, i, v)
			}
		}
	}
}

func TestRSIFallingPrices(t *testing.T) {
	rsi := RSI(RSIPeriod, []float64{10, 9, 8, 7})
	for i := 1; i < len(rsi); i++ {
		if !almostEqual(rsi[i], 0) {
			t.Fatalf("rsi[%d]=%v want 0 on strictly falling prices", i, rsi[i])
		}
	}
}

func TestCrossDetection(t *testing.T) {
	tests := []struct {
		name      string
		macd      []float64
		signal    []float64
		wantUps   []int
		wantDowns []int
	}{
		{
			// the only upward cross happens between 0 and 1, which is before i>=2
			name:   "cross before index two",
			macd:   []float64{-1, -0.5, 0.2, 0.3},
			signal: []float64{-0.8, -0.6, -0.1, 0.0},
		},
		{
			name:      "up then down",
			macd:      []float64{0, -1, -0.5, 0.5, 0.4, -0.2},
			signal:    []float64{0, -0.8, -0.4, 0.1, 0.45, 0.0},
			wantUps:   []int{3},
			wantDowns: []int{4},
		},
		{
			name:    "touching counts as below",
			macd:    []float64{0, 0, 1, 2},
			signal:  []float64{0, 1, 1, 1},
			wantUps: []int{3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CrossUps(tt.macd, tt.signal); !reflect.DeepEqual(got, tt.wantUps) {
				t.Fatalf("CrossUps=%v want %v", got, tt.wantUps)
			}
			if got := CrossDowns(tt.macd, tt.signal); !reflect.DeepEqual(got, tt.wantDowns) {
				t.Fatalf("CrossDowns=%v want %v", got, tt.wantDowns)
			}
		})
	}
}

func TestSignalsGating(t *testing.T) {
	macd := []float64{0, -1, -0.5, 0.5, 0.4, -0.2}
	signal := []float64{0, -0.8, -0.4, 0.1, 0.45, 0.0}

	got := Signals(macd, signal, []float64{50, 50, 50, 60, 40, 50})
	if len(got) != 2 {
		t.Fatalf("expected 2 signals, got %+v", got)
	}
	if got[0].Index != 3 || got[0].Side != models.SideBuy {
		t.Fatalf("unexpected first signal %+v", got[0])
	}
	if got[1].Index != 4 || got[1].Side != models.SideSell {
		t.Fatalf("unexpected second signal %+v", got[1])
	}
	if got[0].Confidence != nil {
		t.Fatal("confidence must stay unset")
	}

	gated := Signals(macd, signal, []float64{50, 50, 50, 65, 35, 50})
	if len(gated) != 0 {
		t.Fatalf("expected RSI gate to suppress both signals, got %+v", gated)
	}
}

func TestComputeSignalsRespectRSIGate(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		closes := randomWalk(400, seed)
		candles := make([]models.Candle, len(closes))
		for i, c := range closes {
			candles[i] = models.Candle{TS: int64(i) * 60_000, Open: c, High: c, Low: c, Close: c}
		}
		b := Compute(candles)
		if len(b.EMAFast) != len(candles) || len(b.RSI) != len(candles) || len(b.MACDSignal) != len(candles) {
			t.Fatalf("bundle series must be parallel to candles")
		}
		last := -1
		for _, s := range b.Signals {
			if s.Index < 2 || s.Index < last {
				t.Fatalf("signals out of order: %+v", b.Signals)
			}
			last = s.Index
			switch s.Side {
			case models.SideBuy:
				if b.RSI[s.Index] >= BuyRSICeiling {
					t.Fatalf("buy at %d with rsi %v", s.Index, b.RSI[s.Index])
				}
			case models.SideSell:
				if b.RSI[s.Index] <= SellRSIFloor {
					t.Fatalf("sell at %d with rsi %v", s.Index, b.RSI[s.Index])
				}
			}
		}
	}
}

func TestComputeEmpty(t *testing.T) {
	b := Compute(nil)
	if len(b.MACD) != 0 || len(b.Signals) != 0 {
		t.Fatalf("expected empty bundle, got %+v", b)
	}
}

func randomWalk(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price += r.NormFloat64()
		if price < 1 {
			price = 1
		}
		out[i] = price
	}
	return out
}
