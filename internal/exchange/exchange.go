// Package exchange defines the connector boundary to the trading venue:
// order submission, account snapshots and the live price stream. The REST
// and WebSocket clients here implement a generic API shape; venue-specific
// wire details stay out of the core.
package exchange

import (
	"context"
	"time"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	TradeSideOpen  = "OPEN"
	TradeSideClose = "CLOSE"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
)

// OrderRequest is an order submission.
type OrderRequest struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`      // BUY or SELL
	TradeSide string  `json:"tradeSide"` // OPEN or CLOSE
	Quantity  float64 `json:"qty,string"`
	OrderType string  `json:"orderType"`
	Price     float64 `json:"price,string,omitempty"` // limit orders only
}

// OrderResult is the exchange's response to a submission.
type OrderResult struct {
	OrderID        string  `json:"orderId"`
	Status         string  `json:"status"`
	FilledQuantity float64 `json:"filledQty,string"`
	AvgFillPrice   float64 `json:"avgFillPrice,string"`
}

// SnapshotPosition is one exchange-reported open position.
type SnapshotPosition struct {
	PositionID string  `json:"positionId"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // BUY (long) or SELL (short)
	Quantity   float64 `json:"qty,string"`
	EntryPrice float64 `json:"entryPrice,string"`
}

// Snapshot is the exchange-reported ground truth fetched each
// reconciliation cycle. It is read and diffed, never mutated.
type Snapshot struct {
	Balance   float64            `json:"balance,string"`
	Positions []SnapshotPosition `json:"positions"`
	Ts        time.Time          `json:"-"`
}

// PriceTick is one observation from the live price stream.
type PriceTick struct {
	Symbol string
	Price  float64
	Ts     time.Time
}

// Connector is the order/account surface the live executor drives.
type Connector interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	FetchSnapshot(ctx context.Context) (Snapshot, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
}
