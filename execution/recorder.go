// Package execution appends immutable fill records against orders and
// keeps the rolling execution-quality aggregate. It references orders
// by id only; the order package owns them.
package execution

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/oms/internal/id"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/order"
)

// Execution is one confirmed fill. Immutable once created.
type Execution struct {
	ID           string
	OrderID      string
	Symbol       string
	Side         order.Side
	Quantity     int64
	Price        float64
	Venue        market.Venue
	Commission   float64
	Tax          float64
	NetAmount    float64
	Slippage     float64 // signed, relative to the order's reference price
	SpeedMillis  int64
	Counterparty string
	AlgorithmID  string
	Time         time.Time
}

// Costs carries the venue-reported charges on a fill notification.
type Costs struct {
	Commission   float64
	Tax          float64
	SpeedMillis  int64
	Counterparty string
}

// Quality is the rolling execution-quality aggregate.
type Quality struct {
	Fills           int64
	AvgSlippage     float64
	AvgSpeedMillis  float64
	FillRate        float64 // fully filled / orders created
	RejectionRate   float64 // rejected / orders created
	PartialFillRate float64 // partially filled, not yet complete / orders created
}

// Recorder validates fills against the ledger and persists them. The
// ledger update and the execution record are atomic: a rejected fill
// leaves no record, and a record exists only for an applied fill.
type Recorder struct {
	ledger *order.Ledger
	jrnl   journal.Journal
	log    *zap.Logger

	mu      sync.Mutex
	byOrder map[string][]Execution

	created  int64
	filled   int64
	partial  map[string]struct{}
	rejected int64
	sumSlip  float64
	sumSpeed float64
	fills    int64
}

func NewRecorder(ledger *order.Ledger, jrnl journal.Journal, log *zap.Logger) *Recorder {
	if jrnl == nil {
		jrnl = journal.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Recorder{
		ledger:  ledger,
		jrnl:    jrnl,
		log:     log,
		byOrder: make(map[string][]Execution),
		partial: make(map[string]struct{}),
	}
	ledger.Subscribe(r)
	return r
}

// Record applies a fill notification. It fails with *order.OverfillError
// when the cumulative fill would exceed the order's quantity; that guard
// lives in the ledger so a concurrent duplicate notification can never
// double-count.
func (r *Recorder) Record(orderID string, qty int64, price float64, venue market.Venue, costs Costs) (Execution, error) {
	o, ok := r.ledger.Get(orderID)
	if !ok {
		return Execution{}, fmt.Errorf("record execution: %w: %s", order.ErrUnknownOrder, orderID)
	}

	updated, err := r.ledger.RecordFill(orderID, qty, price)
	if err != nil {
		return Execution{}, err
	}

	if venue == "" {
		venue = o.Venue
	}
	gross := float64(qty) * price
	x := Execution{
		ID:           id.New(),
		OrderID:      orderID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Quantity:     qty,
		Price:        price,
		Venue:        venue,
		Commission:   costs.Commission,
		Tax:          costs.Tax,
		NetAmount:    gross - costs.Commission - costs.Tax,
		Slippage:     slippage(price, o.ReferencePrice),
		SpeedMillis:  costs.SpeedMillis,
		Counterparty: costs.Counterparty,
		AlgorithmID:  o.AlgorithmID,
		Time:         time.Now().UTC(),
	}

	r.mu.Lock()
	r.byOrder[orderID] = append(r.byOrder[orderID], x)
	r.fills++
	r.sumSlip += x.Slippage
	r.sumSpeed += float64(x.SpeedMillis)
	if updated.Status == order.StatusFilled {
		r.filled++
		delete(r.partial, orderID)
	} else {
		r.partial[orderID] = struct{}{}
	}
	r.mu.Unlock()

	if err := r.jrnl.RecordExecution(journal.ExecutionRecord{
		ExecutionID:  x.ID,
		OrderID:      x.OrderID,
		Symbol:       x.Symbol,
		Side:         string(x.Side),
		Quantity:     x.Quantity,
		Price:        x.Price,
		Venue:        string(x.Venue),
		Commission:   x.Commission,
		Tax:          x.Tax,
		NetAmount:    x.NetAmount,
		Slippage:     x.Slippage,
		SpeedMillis:  x.SpeedMillis,
		Counterparty: x.Counterparty,
		Time:         x.Time,
	}); err != nil {
		// Audit trail is best-effort; the fill itself already applied.
		r.log.Error("journal execution failed",
			zap.String("execution_id", x.ID),
			zap.String("order_id", x.OrderID),
			zap.Error(err))
	}

	return x, nil
}

// ByOrder returns copies of the executions recorded for one order, in
// the order they were applied.
func (r *Recorder) ByOrder(orderID string) []Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	xs := r.byOrder[orderID]
	out := make([]Execution, len(xs))
	copy(out, xs)
	return out
}

// Quality returns the rolling execution-quality aggregate.
func (r *Recorder) Quality() Quality {
	r.mu.Lock()
	defer r.mu.Unlock()

	q := Quality{Fills: r.fills}
	if r.fills > 0 {
		q.AvgSlippage = r.sumSlip / float64(r.fills)
		q.AvgSpeedMillis = r.sumSpeed / float64(r.fills)
	}
	if r.created > 0 {
		q.FillRate = float64(r.filled) / float64(r.created)
		q.RejectionRate = float64(r.rejected) / float64(r.created)
		q.PartialFillRate = float64(len(r.partial)) / float64(r.created)
	}
	return q
}

// OnOrderEvent tracks order outcomes for the quality ratios.
func (r *Recorder) OnOrderEvent(evt order.Event) {
	switch evt.Type {
	case order.EventCreated:
		r.mu.Lock()
		r.created++
		r.mu.Unlock()
	case order.EventStatusChanged:
		if evt.Order.Status == order.StatusRejected {
			r.mu.Lock()
			r.rejected++
			r.mu.Unlock()
		}
	}
}

func slippage(executionPrice, referencePrice float64) float64 {
	if referencePrice == 0 {
		return 0
	}
	return (executionPrice - referencePrice) / referencePrice
}
