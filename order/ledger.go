package order

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/oms/internal/id"
	"github.com/rustyeddy/oms/market"
)

// Ledger is the canonical store for orders. Transitions on a single
// order are serialized by a per-order mutex; distinct orders transition
// in parallel.
type Ledger struct {
	log    *zap.Logger
	prices *market.PriceStore

	mu        sync.RWMutex
	entries   map[string]*entry
	listeners []Listener
}

type entry struct {
	mu sync.Mutex
	o  Order
}

// NewLedger creates an empty ledger. prices may be nil when no market
// reference is available; market orders then carry a zero reference
// price until the first fill.
func NewLedger(prices *market.PriceStore, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		log:     log,
		prices:  prices,
		entries: make(map[string]*entry),
	}
}

// Subscribe registers a listener for all ledger events.
func (l *Ledger) Subscribe(ln Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, ln)
}

// Submit validates the request and creates the order in PENDING state.
func (l *Ledger) Submit(req Request) (Order, error) {
	if err := validate(req); err != nil {
		l.log.Warn("order rejected at validation",
			zap.String("symbol", req.Symbol),
			zap.String("reason", err.Error()))
		return Order{}, err
	}

	meta := market.Symbols[req.Symbol]
	venue := req.Venue
	if venue == "" {
		venue = meta.Venue
	}
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	now := time.Now().UTC()
	o := Order{
		ID:                id.New(),
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Quantity:          req.Quantity,
		Price:             req.Price,
		TimeInForce:       req.TimeInForce,
		Venue:             venue,
		Priority:          priority,
		Tags:              req.Tags,
		Status:            StatusPending,
		RemainingQuantity: req.Quantity,
		AlgorithmID:       req.AlgorithmID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	o.ReferencePrice = l.referencePrice(o)

	l.mu.Lock()
	l.entries[o.ID] = &entry{o: o}
	l.mu.Unlock()

	l.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("type", string(o.Type)),
		zap.Int64("quantity", o.Quantity),
		zap.String("algorithm_id", o.AlgorithmID))

	l.emit(Event{Type: EventCreated, Order: o, At: now})
	return o, nil
}

// Accept records the venue's acknowledgment: PENDING -> SUBMITTED.
func (l *Ledger) Accept(orderID string) (Order, error) {
	return l.withOrder(orderID, func(o *Order) (EventType, error) {
		if err := transition(o, StatusSubmitted); err != nil {
			return "", err
		}
		return EventStatusChanged, nil
	})
}

// Reject records a venue refusal: PENDING or SUBMITTED -> REJECTED.
func (l *Ledger) Reject(orderID, reason string) (Order, error) {
	return l.withOrder(orderID, func(o *Order) (EventType, error) {
		if err := transition(o, StatusRejected); err != nil {
			return "", err
		}
		o.Reason = reason
		o.RemainingQuantity = 0
		return EventStatusChanged, nil
	})
}

// Fail records an internal error: PENDING or SUBMITTED -> FAILED. Once
// any fill has occurred the order can no longer fail.
func (l *Ledger) Fail(orderID, reason string) (Order, error) {
	return l.withOrder(orderID, func(o *Order) (EventType, error) {
		if err := transition(o, StatusFailed); err != nil {
			return "", err
		}
		o.Reason = reason
		o.RemainingQuantity = 0
		return EventStatusChanged, nil
	})
}

// RecordFill is the only mutation path for FilledQuantity. It enforces
// the cumulative-fill invariant and derives the new status from filled
// vs. total quantity.
func (l *Ledger) RecordFill(orderID string, fillQty int64, fillPrice float64) (Order, error) {
	e, ok := l.lookup(orderID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}

	e.mu.Lock()
	o := &e.o
	if fillQty <= 0 {
		e.mu.Unlock()
		return *o, validationErrorf("fill quantity must be positive")
	}
	if o.Status.Terminal() {
		err := &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusPartiallyFilled}
		cp := *o
		e.mu.Unlock()
		return cp, err
	}
	if o.Status == StatusPending {
		err := &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusPartiallyFilled}
		cp := *o
		e.mu.Unlock()
		return cp, err
	}
	if fillQty > o.RemainingQuantity {
		err := &OverfillError{OrderID: o.ID, Remaining: o.RemainingQuantity, Fill: fillQty}
		cp := *o
		e.mu.Unlock()
		l.log.Error("overfill detected",
			zap.String("order_id", orderID),
			zap.Int64("fill_quantity", fillQty),
			zap.Int64("remaining_quantity", cp.RemainingQuantity))
		return cp, err
	}

	prevFilled := o.FilledQuantity
	o.FilledQuantity += fillQty
	o.RemainingQuantity -= fillQty
	o.AvgFillPrice = (o.AvgFillPrice*float64(prevFilled) + fillPrice*float64(fillQty)) / float64(o.FilledQuantity)
	if o.RemainingQuantity == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.UpdatedAt = time.Now().UTC()
	cp := *o
	e.mu.Unlock()

	l.log.Info("fill applied",
		zap.String("order_id", cp.ID),
		zap.Int64("fill_quantity", fillQty),
		zap.Float64("fill_price", fillPrice),
		zap.String("status", string(cp.Status)))

	l.emit(Event{Type: EventFilled, Order: cp, FillQuantity: fillQty, FillPrice: fillPrice, At: cp.UpdatedAt})
	return cp, nil
}

// RequestCancel marks the order for cancellation. A PENDING order never
// reached the venue, so it finalizes immediately; otherwise the order
// stays in its current state until ConfirmCancel, and late fills within
// the remaining quantity are still applied.
func (l *Ledger) RequestCancel(orderID string) (Order, error) {
	return l.withOrder(orderID, func(o *Order) (EventType, error) {
		if o.Status.Terminal() {
			return "", &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: StatusCancelled}
		}
		if o.Status == StatusPending {
			if err := transition(o, StatusCancelled); err != nil {
				return "", err
			}
			o.RemainingQuantity = 0
			return EventStatusChanged, nil
		}
		o.CancelRequested = true
		o.UpdatedAt = time.Now().UTC()
		return "", nil
	})
}

// ConfirmCancel finalizes a requested cancel. The remaining quantity is
// released; the filled quantity keeps its last value.
func (l *Ledger) ConfirmCancel(orderID string) (Order, error) {
	return l.withOrder(orderID, func(o *Order) (EventType, error) {
		if o.Status == StatusCancelled {
			return "", nil
		}
		if err := transition(o, StatusCancelled); err != nil {
			return "", err
		}
		o.RemainingQuantity = 0
		return EventStatusChanged, nil
	})
}

// Get returns a copy of the order.
func (l *Ledger) Get(orderID string) (Order, bool) {
	e, ok := l.lookup(orderID)
	if !ok {
		return Order{}, false
	}
	e.mu.Lock()
	cp := e.o
	e.mu.Unlock()
	return cp, true
}

// Open returns copies of all orders not yet in a terminal state.
func (l *Ledger) Open() []Order {
	l.mu.RLock()
	entries := make([]*entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	l.mu.RUnlock()

	var open []Order
	for _, e := range entries {
		e.mu.Lock()
		if !e.o.Status.Terminal() {
			open = append(open, e.o)
		}
		e.mu.Unlock()
	}
	return open
}

func (l *Ledger) lookup(orderID string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[orderID]
	return e, ok
}

// withOrder runs fn under the order's lock and emits the returned event
// type, if any, after the lock is released.
func (l *Ledger) withOrder(orderID string, fn func(*Order) (EventType, error)) (Order, error) {
	e, ok := l.lookup(orderID)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	e.mu.Lock()
	evt, err := fn(&e.o)
	cp := e.o
	e.mu.Unlock()
	if err != nil {
		return cp, err
	}
	if evt != "" {
		l.emit(Event{Type: evt, Order: cp, At: cp.UpdatedAt})
	}
	return cp, nil
}

func (l *Ledger) emit(evt Event) {
	l.mu.RLock()
	listeners := make([]Listener, len(l.listeners))
	copy(listeners, l.listeners)
	l.mu.RUnlock()
	for _, ln := range listeners {
		ln.OnOrderEvent(evt)
	}
}

func (l *Ledger) referencePrice(o Order) float64 {
	if o.Price != nil {
		return *o.Price
	}
	if l.prices == nil {
		return 0
	}
	tick, err := l.prices.Get(o.Symbol)
	if err != nil {
		return 0
	}
	return tick.Price
}

func transition(o *Order, to Status) error {
	if !legal(o.Status, to) {
		return &InvalidTransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func legal(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusSubmitted:
		return from == StatusPending
	case StatusPartiallyFilled, StatusFilled:
		return from == StatusSubmitted || from == StatusPartiallyFilled
	case StatusCancelled:
		return from == StatusPending || from == StatusSubmitted || from == StatusPartiallyFilled
	case StatusRejected, StatusFailed:
		// Partial fills are never retroactively invalidated.
		return from == StatusPending || from == StatusSubmitted
	default:
		return false
	}
}

func validate(req Request) error {
	if req.Symbol == "" {
		return validationErrorf("symbol is required")
	}
	if _, ok := market.Symbols[req.Symbol]; !ok {
		return validationErrorf("unknown symbol %q", req.Symbol)
	}
	if _, err := ParseSide(string(req.Side)); err != nil {
		return validationErrorf("%s", err.Error())
	}
	if _, err := ParseType(string(req.Type)); err != nil {
		return validationErrorf("%s", err.Error())
	}
	if req.Quantity <= 0 {
		return validationErrorf("quantity must be positive")
	}
	if req.Type.RequiresPrice() {
		if req.Price == nil {
			return validationErrorf("price is required for %s orders", req.Type)
		}
		if *req.Price <= 0 {
			return validationErrorf("price must be positive")
		}
	}
	if req.Venue != "" {
		if _, err := market.ParseVenue(string(req.Venue)); err != nil {
			return validationErrorf("%s", err.Error())
		}
	}
	if req.TimeInForce != "" {
		if _, err := ParseTimeInForce(string(req.TimeInForce)); err != nil {
			return validationErrorf("%s", err.Error())
		}
	}
	return nil
}
