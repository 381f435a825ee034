package backtest

import (
	"math"
	"time"
)

// Bar is one enriched OHLCV candle. Feature fields are opaque to the
// engine; Confidence is the externally supplied signal score in [0,1].
// Bars are immutable once produced.
type Bar struct {
	Ts         time.Time          `json:"ts"`
	Symbol     string             `json:"symbol"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     float64            `json:"volume"`
	Features   map[string]float64 `json:"features,omitempty"`
	Confidence float64            `json:"confidence"`
}

// Valid reports whether every price is finite and positive. Malformed bars
// are skipped by the simulator with a logged warning.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	return true
}
