package core

import (
	"sync"

	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/order"
)

// holding is one symbol's net position under average-cost accounting.
type holding struct {
	qty      int64 // signed
	avgPrice float64
}

// positionBook tracks net positions built from fills. Average-cost:
// adding to a position reweights the average, reducing one realizes
// PnL against it.
type positionBook struct {
	mu       sync.Mutex
	holdings map[string]*holding
	realized float64
	cash     float64
}

func newPositionBook(cash float64) *positionBook {
	return &positionBook{holdings: make(map[string]*holding), cash: cash}
}

// apply books a fill and returns the realized PnL delta.
func (b *positionBook) apply(symbol string, side order.Side, qty int64, price float64) float64 {
	signed := qty
	if side == order.SideSell {
		signed = -qty
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cash -= float64(signed) * price

	h, ok := b.holdings[symbol]
	if !ok {
		h = &holding{}
		b.holdings[symbol] = h
	}

	var realized float64
	switch {
	case h.qty == 0 || (h.qty > 0) == (signed > 0):
		// Opening or adding: reweight the average cost.
		total := h.qty + signed
		h.avgPrice = (h.avgPrice*float64(abs(h.qty)) + price*float64(abs(signed))) / float64(abs(total))
		h.qty = total
	default:
		// Reducing or flipping.
		closing := signed
		if abs(closing) > abs(h.qty) {
			closing = -h.qty
		}
		realized = float64(-closing) * (price - h.avgPrice)
		h.qty += signed
		if (h.qty > 0) == (signed > 0) && h.qty != 0 {
			// Flipped through zero: remainder opens at the fill price.
			h.avgPrice = price
		}
		if h.qty == 0 {
			h.avgPrice = 0
		}
	}
	b.realized += realized
	return realized
}

// positions marks current holdings against the price store. Symbols
// without a tick fall back to their average cost.
func (b *positionBook) positions(prices *market.PriceStore) []market.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]market.Position, 0, len(b.holdings))
	for symbol, h := range b.holdings {
		if h.qty == 0 {
			continue
		}
		mark := h.avgPrice
		if prices != nil {
			if t, err := prices.Get(symbol); err == nil {
				mark = t.Price
			}
		}
		out = append(out, market.Position{
			Symbol:    symbol,
			Quantity:  h.qty,
			AvgPrice:  h.avgPrice,
			MarkPrice: mark,
		})
	}
	return out
}

// unrealized marks open holdings to the price store.
func (b *positionBook) unrealized(prices *market.PriceStore) float64 {
	var total float64
	for _, p := range b.positions(prices) {
		total += float64(p.Quantity) * (p.MarkPrice - p.AvgPrice)
	}
	return total
}

func (b *positionBook) realizedPnL() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realized
}

func (b *positionBook) cashBalance() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

func (b *positionBook) openCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, h := range b.holdings {
		if h.qty != 0 {
			n++
		}
	}
	return n
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
