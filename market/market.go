// Package market holds the reference data the execution core trades
// against: venues, listed symbols, last-known prices and venue-provided
// order book levels. It performs no matching or price discovery.
package market

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Venue is an execution venue code.
type Venue string

const (
	VenueNSE Venue = "NSE"
	VenueBSE Venue = "BSE"
	VenueMCX Venue = "MCX"
)

// ParseVenue validates a venue code from external input.
func ParseVenue(s string) (Venue, error) {
	switch Venue(s) {
	case VenueNSE, VenueBSE, VenueMCX:
		return Venue(s), nil
	default:
		return "", fmt.Errorf("unknown venue %q", s)
	}
}

// SymbolMeta describes a listed instrument.
type SymbolMeta struct {
	Symbol     string
	Venue      Venue
	LotSize    int64
	TickSize   float64
	MarginRate float64 // fraction of notional held as margin
	ADV        float64 // average daily volume, units, for liquidity scoring
}

// Symbols is the static listing used for validation and margin math.
var Symbols = map[string]SymbolMeta{
	"RELIANCE":   {Symbol: "RELIANCE", Venue: VenueNSE, LotSize: 1, TickSize: 0.05, MarginRate: 0.20, ADV: 6_500_000},
	"TCS":        {Symbol: "TCS", Venue: VenueNSE, LotSize: 1, TickSize: 0.05, MarginRate: 0.20, ADV: 2_400_000},
	"INFY":       {Symbol: "INFY", Venue: VenueNSE, LotSize: 1, TickSize: 0.05, MarginRate: 0.20, ADV: 5_100_000},
	"HDFCBANK":   {Symbol: "HDFCBANK", Venue: VenueNSE, LotSize: 1, TickSize: 0.05, MarginRate: 0.20, ADV: 8_200_000},
	"ICICIBANK":  {Symbol: "ICICIBANK", Venue: VenueNSE, LotSize: 1, TickSize: 0.05, MarginRate: 0.20, ADV: 9_000_000},
	"SBIN":       {Symbol: "SBIN", Venue: VenueNSE, LotSize: 1, TickSize: 0.05, MarginRate: 0.20, ADV: 14_000_000},
	"GOLDPETAL":  {Symbol: "GOLDPETAL", Venue: VenueMCX, LotSize: 1, TickSize: 1, MarginRate: 0.10, ADV: 90_000},
	"SENSEXBEES": {Symbol: "SENSEXBEES", Venue: VenueBSE, LotSize: 1, TickSize: 0.01, MarginRate: 0.20, ADV: 250_000},
}

// Tick is a last-traded price update from the market data collaborator.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

var ErrNoPrice = errors.New("price not found")

// PriceStore keeps the last tick per symbol.
type PriceStore struct {
	mu    sync.RWMutex
	ticks map[string]Tick
}

func NewPriceStore() *PriceStore {
	return &PriceStore{ticks: make(map[string]Tick)}
}

func (ps *PriceStore) Set(t Tick) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.ticks[t.Symbol] = t
}

func (ps *PriceStore) Get(symbol string) (Tick, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	t, ok := ps.ticks[symbol]
	if !ok {
		return Tick{}, fmt.Errorf("%w: %s", ErrNoPrice, symbol)
	}
	return t, nil
}

// Position is a holding in one symbol, marked to the last tick.
type Position struct {
	Symbol    string
	Quantity  int64 // signed, negative for short
	AvgPrice  float64
	MarkPrice float64
}

// Notional returns the absolute marked value of the position.
func (p Position) Notional() float64 {
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return float64(qty) * p.MarkPrice
}
