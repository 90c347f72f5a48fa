package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/order"
)

// PositionSource supplies current holdings, marked by the market-data
// collaborator.
type PositionSource interface {
	Positions() []market.Position
	Cash() float64
}

// Aggregator recomputes the portfolio snapshot after every order or
// execution event. Recomputation runs on its own goroutine so order
// acceptance never waits on it; the latest snapshot is published by
// atomic pointer swap.
type Aggregator struct {
	cfg    Config
	src    PositionSource
	ledger *order.Ledger
	jrnl   journal.Journal
	log    *zap.Logger

	latest  atomic.Pointer[Snapshot]
	peakMu  sync.Mutex
	peak    float64
	trigger chan struct{}
	done    chan struct{}
	closed  sync.Once
}

// NewAggregator validates the configuration, wires the aggregator into
// the ledger's event feed and starts the recompute worker.
func NewAggregator(cfg Config, src PositionSource, ledger *order.Ledger, jrnl journal.Journal, log *zap.Logger) (*Aggregator, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if jrnl == nil {
		jrnl = journal.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	a := &Aggregator{
		cfg:     cfg,
		src:     src,
		ledger:  ledger,
		jrnl:    jrnl,
		log:     log,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	a.latest.Store(&Snapshot{})
	if ledger != nil {
		ledger.Subscribe(a)
	}
	go a.loop()
	return a, nil
}

// Latest returns the most recently published snapshot.
func (a *Aggregator) Latest() Snapshot {
	return *a.latest.Load()
}

// Recompute runs one synchronous pass and publishes the result.
func (a *Aggregator) Recompute() Snapshot {
	in := Inputs{}
	if a.src != nil {
		in.Positions = a.src.Positions()
		in.Cash = a.src.Cash()
	}
	if a.ledger != nil {
		in.OpenOrders = a.ledger.Open()
	}

	a.peakMu.Lock()
	in.PeakPortfolioValue = a.peak
	snap := Compute(a.cfg, in)
	if snap.PortfolioValue > a.peak {
		a.peak = snap.PortfolioValue
	}
	a.peakMu.Unlock()

	snap.ComputedAt = time.Now().UTC()
	a.latest.Store(&snap)

	if err := a.jrnl.RecordRisk(journal.RiskRecord{
		Time:              snap.ComputedAt,
		PortfolioValue:    snap.PortfolioValue,
		TotalExposure:     snap.TotalExposure,
		UsedMargin:        snap.UsedMargin,
		AvailableMargin:   snap.AvailableMargin,
		MarginUtilization: snap.MarginUtilization,
		VaR95:             snap.VaR95,
		ExpectedShortfall: snap.ExpectedShortfall,
		MaxDrawdown:       snap.MaxDrawdown,
		ConcentrationRisk: snap.ConcentrationRisk,
		LiquidityRisk:     snap.LiquidityRisk,
		OverallRiskScore:  snap.OverallRiskScore,
	}); err != nil {
		a.log.Error("journal risk snapshot failed", zap.Error(err))
	}

	return snap
}

// OnOrderEvent schedules a recompute for exposure-changing events
// without blocking the caller.
func (a *Aggregator) OnOrderEvent(evt order.Event) {
	switch evt.Type {
	case order.EventCreated, order.EventFilled:
		a.Trigger()
	}
}

// OnTick schedules a recompute when market data moves the marks.
func (a *Aggregator) OnTick(market.Tick) {
	a.Trigger()
}

// Trigger requests an asynchronous recompute; pending requests coalesce.
func (a *Aggregator) Trigger() {
	select {
	case a.trigger <- struct{}{}:
	default:
	}
}

// Close stops the recompute worker.
func (a *Aggregator) Close() {
	a.closed.Do(func() { close(a.done) })
}

func (a *Aggregator) loop() {
	for {
		select {
		case <-a.done:
			return
		case <-a.trigger:
			a.Recompute()
		}
	}
}
