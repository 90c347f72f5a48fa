// Package order owns order identity and status transitions. The Ledger
// is the single writer for every order; all other components reference
// orders by id only.
package order

import (
	"fmt"
	"time"

	"github.com/rustyeddy/oms/market"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Type is the order type.
type Type string

const (
	TypeMarket         Type = "MARKET"
	TypeLimit          Type = "LIMIT"
	TypeStopLoss       Type = "STOP_LOSS"
	TypeStopLossMarket Type = "STOP_LOSS_MARKET"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeMarket, TypeLimit, TypeStopLoss, TypeStopLossMarket:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown order type %q", s)
	}
}

// RequiresPrice reports whether the type needs an explicit price
// (limit price or stop trigger).
func (t Type) RequiresPrice() bool {
	return t != TypeMarket
}

// TimeInForce controls how long an order rests at the venue.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
	TIFGTC TimeInForce = "GTC"
)

func ParseTimeInForce(s string) (TimeInForce, error) {
	switch TimeInForce(s) {
	case TIFDay, TIFIOC, TIFFOK, TIFGTC:
		return TimeInForce(s), nil
	default:
		return "", fmt.Errorf("unknown time in force %q", s)
	}
}

// Priority orders queue handling at the gateway. Informational here.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusSubmitted       Status = "SUBMITTED"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusFailed          Status = "FAILED"
)

// Terminal reports whether no further transition is legal.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// Request is what callers hand to Ledger.Submit.
type Request struct {
	Symbol      string
	Side        Side
	Type        Type
	Quantity    int64
	Price       *float64 // nil for market orders
	TimeInForce TimeInForce
	Venue       market.Venue
	Priority    Priority
	AlgorithmID string // empty for manual orders
	Tags        []string
}

// Order is the ledger's view of one order. Values handed out by the
// Ledger are copies; only the Ledger mutates the canonical record.
type Order struct {
	ID          string
	Symbol      string
	Side        Side
	Type        Type
	Quantity    int64
	Price       *float64
	TimeInForce TimeInForce
	Venue       market.Venue
	Priority    Priority
	Tags        []string

	Status            Status
	FilledQuantity    int64
	RemainingQuantity int64
	AvgFillPrice      float64
	CancelRequested   bool
	Reason            string // reject/fail reason, if any

	// ReferencePrice anchors slippage: limit price for priced orders,
	// last tick at submission for market orders.
	ReferencePrice float64

	AlgorithmID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EstimatedValue is the notional at the reference price.
func (o Order) EstimatedValue() float64 {
	return float64(o.Quantity) * o.ReferencePrice
}
