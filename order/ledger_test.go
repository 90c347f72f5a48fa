package order

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/oms/market"
)

func ptr(f float64) *float64 { return &f }

func limitBuy(t *testing.T, l *Ledger, symbol string, qty int64, price float64) Order {
	t.Helper()
	o, err := l.Submit(Request{
		Symbol:      symbol,
		Side:        SideBuy,
		Type:        TypeLimit,
		Quantity:    qty,
		Price:       ptr(price),
		TimeInForce: TIFDay,
	})
	require.NoError(t, err)
	return o
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "missing_symbol",
			req:  Request{Side: SideBuy, Type: TypeMarket, Quantity: 10},
			want: "symbol is required",
		},
		{
			name: "unknown_symbol",
			req:  Request{Symbol: "NOPE", Side: SideBuy, Type: TypeMarket, Quantity: 10},
			want: `unknown symbol "NOPE"`,
		},
		{
			name: "zero_quantity",
			req:  Request{Symbol: "RELIANCE", Side: SideBuy, Type: TypeMarket, Quantity: 0},
			want: "quantity must be positive",
		},
		{
			name: "negative_quantity",
			req:  Request{Symbol: "RELIANCE", Side: SideSell, Type: TypeMarket, Quantity: -5},
			want: "quantity must be positive",
		},
		{
			name: "limit_without_price",
			req:  Request{Symbol: "RELIANCE", Side: SideBuy, Type: TypeLimit, Quantity: 10},
			want: "price is required for LIMIT orders",
		},
		{
			name: "stop_without_price",
			req:  Request{Symbol: "RELIANCE", Side: SideSell, Type: TypeStopLoss, Quantity: 10},
			want: "price is required for STOP_LOSS orders",
		},
		{
			name: "non_positive_price",
			req:  Request{Symbol: "RELIANCE", Side: SideBuy, Type: TypeLimit, Quantity: 10, Price: ptr(0)},
			want: "price must be positive",
		},
		{
			name: "bad_side",
			req:  Request{Symbol: "RELIANCE", Side: "LONG", Type: TypeMarket, Quantity: 10},
			want: `unknown side "LONG"`,
		},
		{
			name: "bad_venue",
			req:  Request{Symbol: "RELIANCE", Side: SideBuy, Type: TypeMarket, Quantity: 10, Venue: "NYSE"},
			want: `unknown venue "NYSE"`,
		},
	}

	l := NewLedger(nil, nil)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := l.Submit(tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Error())
		})
	}
}

func TestSubmitDefaults(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(0), o.FilledQuantity)
	assert.Equal(t, int64(100), o.RemainingQuantity)
	assert.Equal(t, market.VenueNSE, o.Venue, "venue defaults from the symbol listing")
	assert.Equal(t, PriorityNormal, o.Priority)
	assert.Equal(t, 2850.0, o.ReferencePrice)
	assert.Equal(t, 285000.0, o.EstimatedValue())
	assert.False(t, o.CreatedAt.IsZero())
}

func TestMarketOrderReferencePrice(t *testing.T) {
	t.Parallel()

	prices := market.NewPriceStore()
	prices.Set(market.Tick{Symbol: "TCS", Price: 4125.30})

	l := NewLedger(prices, nil)
	o, err := l.Submit(Request{Symbol: "TCS", Side: SideSell, Type: TypeMarket, Quantity: 50})
	require.NoError(t, err)
	assert.Equal(t, 4125.30, o.ReferencePrice)
}

func TestFillLifecycle(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)

	o, err := l.Accept(o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, o.Status)

	o, err = l.RecordFill(o.ID, 60, 2849.95)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.Equal(t, int64(60), o.FilledQuantity)
	assert.Equal(t, int64(40), o.RemainingQuantity)

	o, err = l.RecordFill(o.ID, 40, 2850.10)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, o.Status)
	assert.Equal(t, int64(100), o.FilledQuantity)
	assert.Equal(t, int64(0), o.RemainingQuantity)

	_, err = l.RecordFill(o.ID, 1, 2850)
	var ierr *InvalidTransitionError
	assert.ErrorAs(t, err, &ierr, "terminal orders accept no further fills")
}

func TestFillInvariant(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "TCS", 90, 4100)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)

	for _, qty := range []int64{10, 20, 30} {
		got, err := l.RecordFill(o.ID, qty, 4100)
		require.NoError(t, err)
		assert.Equal(t, got.Quantity, got.FilledQuantity+got.RemainingQuantity)
	}
}

func TestOverfill(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)
	_, err = l.RecordFill(o.ID, 60, 2850)
	require.NoError(t, err)

	got, err := l.RecordFill(o.ID, 41, 2850)
	var oerr *OverfillError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, int64(40), oerr.Remaining)
	assert.Equal(t, int64(41), oerr.Fill)
	assert.Equal(t, int64(60), got.FilledQuantity, "state unchanged on overfill")
	assert.Equal(t, StatusPartiallyFilled, got.Status)
}

func TestFillBeforeAccept(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)

	_, err := l.RecordFill(o.ID, 10, 2850)
	var ierr *InvalidTransitionError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, StatusPending, ierr.From)
}

func TestCancelPendingFinalizesImmediately(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)

	o, err := l.RequestCancel(o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, int64(0), o.RemainingQuantity)
}

func TestCancelPartiallyFilled(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)
	_, err = l.RecordFill(o.ID, 60, 2850)
	require.NoError(t, err)

	o, err = l.RequestCancel(o.ID)
	require.NoError(t, err)
	assert.True(t, o.CancelRequested)
	assert.Equal(t, StatusPartiallyFilled, o.Status, "cancel is a request, not a transition")

	o, err = l.ConfirmCancel(o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, int64(60), o.FilledQuantity, "filled quantity keeps its last value")
	assert.Equal(t, int64(0), o.RemainingQuantity)
}

func TestLateFillAppliesBeforeCancelFinalizes(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)
	_, err = l.RecordFill(o.ID, 60, 2850)
	require.NoError(t, err)

	_, err = l.RequestCancel(o.ID)
	require.NoError(t, err)

	// A fill already in flight from the venue lands after the cancel
	// was accepted locally.
	o, err = l.RecordFill(o.ID, 30, 2850)
	require.NoError(t, err)
	assert.Equal(t, int64(90), o.FilledQuantity)

	o, err = l.ConfirmCancel(o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, int64(90), o.FilledQuantity)
	assert.Equal(t, int64(0), o.RemainingQuantity)
}

func TestLateFillCompletesDespiteCancel(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)
	_, err = l.RequestCancel(o.ID)
	require.NoError(t, err)

	o, err = l.RecordFill(o.ID, 100, 2850)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, o.Status)

	_, err = l.ConfirmCancel(o.ID)
	var ierr *InvalidTransitionError
	assert.ErrorAs(t, err, &ierr, "the cancel lost the race")
}

func TestCancelTerminal(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 10, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)
	_, err = l.RecordFill(o.ID, 10, 2850)
	require.NoError(t, err)

	_, err = l.RequestCancel(o.ID)
	var ierr *InvalidTransitionError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, StatusFilled, ierr.From)
	assert.Equal(t, StatusCancelled, ierr.To)
}

func TestRejectAndFail(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)

	o := limitBuy(t, l, "RELIANCE", 10, 2850)
	o, err := l.Reject(o.ID, "price outside daily limit")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, "price outside daily limit", o.Reason)

	o2 := limitBuy(t, l, "TCS", 10, 4100)
	_, err = l.Accept(o2.ID)
	require.NoError(t, err)
	o2, err = l.Fail(o2.ID, "gateway timeout")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, o2.Status)
}

func TestNoFailAfterPartialFill(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)
	_, err = l.RecordFill(o.ID, 1, 2850)
	require.NoError(t, err)

	_, err = l.Fail(o.ID, "late failure")
	var ierr *InvalidTransitionError
	require.ErrorAs(t, err, &ierr)

	got, ok := l.Get(o.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPartiallyFilled, got.Status, "state unchanged after rejected transition")
}

func TestTransitionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusFilled, false},
		{StatusSubmitted, StatusPartiallyFilled, true},
		{StatusSubmitted, StatusFilled, true},
		{StatusSubmitted, StatusCancelled, true},
		{StatusSubmitted, StatusRejected, true},
		{StatusSubmitted, StatusFailed, true},
		{StatusPartiallyFilled, StatusFilled, true},
		{StatusPartiallyFilled, StatusCancelled, true},
		{StatusPartiallyFilled, StatusFailed, false},
		{StatusPartiallyFilled, StatusRejected, false},
		{StatusFilled, StatusCancelled, false},
		{StatusCancelled, StatusSubmitted, false},
		{StatusRejected, StatusFilled, false},
		{StatusFailed, StatusSubmitted, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, legal(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	var mu sync.Mutex
	var events []Event
	l.Subscribe(ListenerFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	o := limitBuy(t, l, "RELIANCE", 100, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)
	_, err = l.RecordFill(o.ID, 100, 2850)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 3)
	assert.Equal(t, EventCreated, events[0].Type)
	assert.Equal(t, EventStatusChanged, events[1].Type)
	assert.Equal(t, EventFilled, events[2].Type)
	assert.Equal(t, int64(100), events[2].FillQuantity)
	assert.Equal(t, StatusFilled, events[2].Order.Status)
}

func TestConcurrentFillsDistinctOrders(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)

	const n = 20
	ids := make([]string, n)
	for i := range ids {
		o := limitBuy(t, l, "RELIANCE", 100, 2850)
		_, err := l.Accept(o.ID)
		require.NoError(t, err)
		ids[i] = o.ID
	}

	var wg sync.WaitGroup
	for _, orderID := range ids {
		for j := 0; j < 10; j++ {
			wg.Add(1)
			go func(orderID string) {
				defer wg.Done()
				_, err := l.RecordFill(orderID, 10, 2850)
				assert.NoError(t, err)
			}(orderID)
		}
	}
	wg.Wait()

	for _, orderID := range ids {
		o, ok := l.Get(orderID)
		require.True(t, ok)
		assert.Equal(t, StatusFilled, o.Status)
		assert.Equal(t, int64(100), o.FilledQuantity)
	}
}

func TestConcurrentOverfillGuard(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil, nil)
	o := limitBuy(t, l, "RELIANCE", 100, 2850)
	_, err := l.Accept(o.ID)
	require.NoError(t, err)

	// 20 duplicate notifications of 10 units: only 10 can land.
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied, overfilled := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.RecordFill(o.ID, 10, 2850)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				applied++
				return
			}
			var oerr *OverfillError
			var ierr *InvalidTransitionError
			if errors.As(err, &oerr) || errors.As(err, &ierr) {
				overfilled++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, applied)
	assert.Equal(t, 10, overfilled)

	got, _ := l.Get(o.ID)
	assert.Equal(t, int64(100), got.FilledQuantity)
}
