package engine

import (
	"time"
)

// Side is the direction of a position.
type Side int

const (
	Long Side = iota + 1
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Sign returns +1 for long and -1 for short, the multiplier applied to
// price moves when computing PnL.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// Status of a position. A position transitions to StatusClosed exactly once.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ExitReason records which condition closed a position.
type ExitReason string

const (
	ExitTakeProfit       ExitReason = "take_profit"
	ExitTrailingStop     ExitReason = "trailing_stop"
	ExitStopLoss         ExitReason = "stop_loss"
	ExitClosedExternally ExitReason = "closed_externally"
	ExitDrawdownStop     ExitReason = "drawdown_stop"
	ExitManual           ExitReason = "manual"
	ExitEndOfData        ExitReason = "end_of_data"
)

// Position is the mutable state of one trade. It is owned exclusively by the
// Engine that created it until closed; afterwards callers hold only the
// immutable Trade snapshot.
type Position struct {
	ID           string     `json:"id"`
	Symbol       string     `json:"symbol"`
	Side         Side       `json:"side"`
	EntryPrice   float64    `json:"entryPrice"`
	Quantity     float64    `json:"quantity"`
	StopLoss     float64    `json:"stopLoss"`
	TakeProfit   float64    `json:"takeProfit"`
	TrailingStop float64    `json:"trailingStop"`
	Excursion    float64    `json:"excursion"` // best price seen in the position's favor
	Status       Status     `json:"status"`
	ExitReason   ExitReason `json:"exitReason,omitempty"`
	ExitPrice    float64    `json:"exitPrice,omitempty"`
	RealizedPnL  float64    `json:"realizedPnl,omitempty"`
	EntryTime    time.Time  `json:"entryTime"`
	ExitTime     time.Time  `json:"exitTime,omitempty"`

	// Adopted marks positions discovered on the exchange with no local
	// counterpart. They carry no stop or target and await manual review.
	Adopted bool `json:"adopted,omitempty"`
}

// Trade is the immutable record of a closed position.
type Trade struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Side       Side       `json:"side"`
	EntryPrice float64    `json:"entryPrice"`
	ExitPrice  float64    `json:"exitPrice"`
	Quantity   float64    `json:"quantity"`
	PnL        float64    `json:"pnl"`
	ExitReason ExitReason `json:"exitReason"`
	EntryTime  time.Time  `json:"entryTime"`
	ExitTime   time.Time  `json:"exitTime"`
}

// EquityPoint is the account balance after a closed trade.
type EquityPoint struct {
	Ts     time.Time `json:"ts"`
	Equity float64   `json:"equity"`
}
