package risk

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/order"
)

type staticSource struct {
	mu        sync.Mutex
	cash      float64
	positions []market.Position
}

func (s *staticSource) Positions() []market.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]market.Position(nil), s.positions...)
}

func (s *staticSource) Cash() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

type riskJournal struct {
	journal.Nop

	mu      sync.Mutex
	records []journal.RiskRecord
}

func (j *riskJournal) RecordRisk(rec journal.RiskRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *riskJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

func testConfig() Config {
	return Config{Weights: DefaultWeights, MarginCapacity: 4_500_000, DailyVol: 0.02}
}

func TestNewAggregatorRejectsBadWeights(t *testing.T) {
	t.Parallel()

	_, err := NewAggregator(Config{Weights: Weights{Margin: 0.9}}, nil, nil, nil, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "risk weights must sum to 1")
}

func TestRecomputePublishes(t *testing.T) {
	t.Parallel()

	src := &staticSource{
		cash: 100_000,
		positions: []market.Position{
			{Symbol: "RELIANCE", Quantity: 100, AvgPrice: 2800, MarkPrice: 2850},
		},
	}
	a, err := NewAggregator(testConfig(), src, nil, nil, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Zero(t, a.Latest().PortfolioValue, "empty snapshot before the first recompute")

	snap := a.Recompute()
	assert.Equal(t, 100_000+100*2850.0, snap.PortfolioValue)
	assert.False(t, snap.ComputedAt.IsZero())
	assert.Equal(t, snap, a.Latest())
}

func TestPeakTracking(t *testing.T) {
	t.Parallel()

	src := &staticSource{cash: 1_000_000}
	a, err := NewAggregator(testConfig(), src, nil, nil, nil)
	require.NoError(t, err)
	defer a.Close()

	a.Recompute()

	src.mu.Lock()
	src.cash = 900_000
	src.mu.Unlock()

	snap := a.Recompute()
	assert.Equal(t, -100_000.0, snap.MaxDrawdown, "drawdown measured from the prior peak")

	src.mu.Lock()
	src.cash = 1_200_000
	src.mu.Unlock()
	snap = a.Recompute()
	assert.Zero(t, snap.MaxDrawdown)

	src.mu.Lock()
	src.cash = 1_100_000
	src.mu.Unlock()
	snap = a.Recompute()
	assert.Equal(t, -100_000.0, snap.MaxDrawdown, "the peak ratchets up")
}

func TestLedgerEventsTriggerRecompute(t *testing.T) {
	t.Parallel()

	l := order.NewLedger(nil, nil)
	src := &staticSource{cash: 500_000}
	a, err := NewAggregator(testConfig(), src, l, nil, nil)
	require.NoError(t, err)
	defer a.Close()

	price := 2850.0
	_, err = l.Submit(order.Request{
		Symbol: "RELIANCE", Side: order.SideBuy, Type: order.TypeLimit, Quantity: 100, Price: &price,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return a.Latest().TotalExposure == 100*2850.0
	}, 2*time.Second, 10*time.Millisecond, "order creation schedules a recompute")
}

func TestRecomputeJournals(t *testing.T) {
	t.Parallel()

	jrnl := &riskJournal{}
	src := &staticSource{cash: 250_000}
	a, err := NewAggregator(testConfig(), src, nil, jrnl, nil)
	require.NoError(t, err)
	defer a.Close()

	a.Recompute()
	a.Recompute()
	assert.Equal(t, 2, jrnl.count())
}

func TestTriggerCoalesces(t *testing.T) {
	t.Parallel()

	src := &staticSource{cash: 100_000}
	a, err := NewAggregator(testConfig(), src, nil, nil, nil)
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 100; i++ {
		a.Trigger()
	}
	require.Eventually(t, func() bool {
		return a.Latest().PortfolioValue == 100_000
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()

	a, err := NewAggregator(testConfig(), nil, nil, nil, nil)
	require.NoError(t, err)
	a.Close()
	a.Close()
}
