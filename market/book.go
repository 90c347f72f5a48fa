package market

import (
	"sync"
	"time"
)

// BookLevel is one price level of a venue-provided order book.
type BookLevel struct {
	Price    float64
	Quantity int64
	Orders   int
}

// Book is a read-only depth snapshot for a symbol. Levels come from the
// venue feed; the core never matches against them.
type Book struct {
	Symbol      string
	Bids        []BookLevel // best first
	Asks        []BookLevel // best first
	LastUpdated time.Time
}

// Spread returns best ask minus best bid, 0 when either side is empty.
func (b Book) Spread() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price - b.Bids[0].Price
}

// Mid returns the midpoint of the best bid and ask, 0 when either side
// is empty.
func (b Book) Mid() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// TotalBidVolume sums quantity across bid levels.
func (b Book) TotalBidVolume() int64 {
	var total int64
	for _, l := range b.Bids {
		total += l.Quantity
	}
	return total
}

// TotalAskVolume sums quantity across ask levels.
func (b Book) TotalAskVolume() int64 {
	var total int64
	for _, l := range b.Asks {
		total += l.Quantity
	}
	return total
}

// BookStore keeps the latest depth snapshot per symbol.
type BookStore struct {
	mu    sync.RWMutex
	books map[string]Book
}

func NewBookStore() *BookStore {
	return &BookStore{books: make(map[string]Book)}
}

func (bs *BookStore) Set(b Book) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.books[b.Symbol] = b
}

func (bs *BookStore) Get(symbol string) (Book, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	b, ok := bs.books[symbol]
	return b, ok
}
