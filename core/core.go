// Package core wires the order ledger, execution recorder, batch
// processor, algorithm runner and risk aggregator into the operations
// exposed to collaborators (UI, API gateway).
package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/oms/algo"
	"github.com/rustyeddy/oms/bulk"
	"github.com/rustyeddy/oms/config"
	"github.com/rustyeddy/oms/execution"
	"github.com/rustyeddy/oms/journal"
	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/marketdata"
	"github.com/rustyeddy/oms/order"
	"github.com/rustyeddy/oms/risk"
)

// FillNotification is the execution venue's callback payload.
type FillNotification struct {
	OrderID  string
	Quantity int64
	Price    float64
	Venue    market.Venue
	Costs    execution.Costs
}

// Core owns the wiring. All component state lives in the components;
// Core adds the account position book and the venue-facing callbacks.
type Core struct {
	log    *zap.Logger
	cfg    *config.Config
	jrnl   journal.Journal
	prices *market.PriceStore
	books  *market.BookStore

	Ledger    *order.Ledger
	Recorder  *execution.Recorder
	Batches   *bulk.Processor
	Algos     *algo.Runner
	Risk      *risk.Aggregator
	account   *positionBook
	algoMu    sync.Mutex
	algoBooks map[string]*positionBook

	stream *marketdata.Stream
}

// New builds a core from configuration. Configuration errors (risk
// weights, journal backend) have already failed at load.
func New(cfg *config.Config, log *zap.Logger) (*Core, error) {
	if log == nil {
		log = zap.NewNop()
	}

	jrnl, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	threshold, err := cfg.Algorithms.Threshold()
	if err != nil {
		return nil, err
	}

	prices := market.NewPriceStore()
	ledger := order.NewLedger(prices, log.Named("order"))

	c := &Core{
		log:       log,
		cfg:       cfg,
		jrnl:      jrnl,
		prices:    prices,
		books:     market.NewBookStore(),
		Ledger:    ledger,
		Recorder:  execution.NewRecorder(ledger, jrnl, log.Named("execution")),
		Batches:   bulk.NewProcessor(ledger, cfg.Bulk.Workers, log.Named("bulk")),
		Algos:     algo.NewRunner(threshold, log.Named("algo")),
		account:   newPositionBook(cfg.Account.Cash),
		algoBooks: make(map[string]*positionBook),
	}
	ledger.Subscribe(c.Algos)

	agg, err := risk.NewAggregator(risk.Config{
		Weights:        cfg.Risk.Weights(),
		MarginCapacity: cfg.Account.MarginCapacity,
		DailyVol:       cfg.Risk.DailyVol,
	}, c, ledger, jrnl, log.Named("risk"))
	if err != nil {
		jrnl.Close()
		return nil, err
	}
	c.Risk = agg

	return c, nil
}

// CreateOrder submits and, as the venue gateway, acknowledges the order:
// PENDING -> SUBMITTED. A live venue integration would instead call
// Ledger.Accept or Ledger.Reject from its ack callback.
func (c *Core) CreateOrder(req order.Request) (order.Order, error) {
	o, err := c.Ledger.Submit(req)
	if err != nil {
		return order.Order{}, err
	}
	return c.Ledger.Accept(o.ID)
}

// CancelOrder requests and finalizes a cancel. A fill notification that
// raced the cancel and arrived before this call has already been
// applied; remaining quantity is released on finalization.
func (c *Core) CancelOrder(orderID string) (order.Order, error) {
	o, err := c.Ledger.RequestCancel(orderID)
	if err != nil {
		return o, err
	}
	if o.Status == order.StatusCancelled {
		return o, nil
	}
	return c.Ledger.ConfirmCancel(orderID)
}

// GetOrder returns a copy of an order.
func (c *Core) GetOrder(orderID string) (order.Order, bool) {
	return c.Ledger.Get(orderID)
}

// UploadBatch ingests a CSV reader as one bulk batch. Orders the batch
// created successfully are acknowledged immediately.
func (c *Core) UploadBatch(name, fileName string, r io.Reader) (bulk.Batch, error) {
	b, err := c.Batches.IngestCSV(name, fileName, r)
	if err != nil {
		return bulk.Batch{}, err
	}
	for _, orderID := range b.OrderIDs {
		if _, err := c.Ledger.Accept(orderID); err != nil {
			c.log.Warn("batch order ack failed",
				zap.String("batch_id", b.ID),
				zap.String("order_id", orderID),
				zap.Error(err))
		}
	}
	return b, nil
}

// OnFillNotification applies a fill from the execution venue. The
// recorder enforces the overfill guard; positions and algorithm metrics
// update only after the fill is accepted.
func (c *Core) OnFillNotification(n FillNotification) (execution.Execution, error) {
	x, err := c.Recorder.Record(n.OrderID, n.Quantity, n.Price, n.Venue, n.Costs)
	if err != nil {
		return execution.Execution{}, err
	}

	c.account.apply(x.Symbol, x.Side, x.Quantity, x.Price)

	if x.AlgorithmID != "" {
		book := c.algoBook(x.AlgorithmID)
		book.apply(x.Symbol, x.Side, x.Quantity, x.Price)
		c.Algos.NoteExecution(x.AlgorithmID, x.SpeedMillis)
		if err := c.Algos.UpdatePnL(x.AlgorithmID,
			book.realizedPnL(),
			book.unrealized(c.prices),
			book.openCount()); err != nil {
			c.log.Warn("algorithm pnl update failed",
				zap.String("algorithm_id", x.AlgorithmID), zap.Error(err))
		}
	}

	return x, nil
}

// RegisterAlgorithm registers a strategy with the runner.
func (c *Core) RegisterAlgorithm(cfg algo.Config) (algo.Algorithm, error) {
	return c.Algos.Register(cfg)
}

func (c *Core) StartAlgorithm(algoID string) (algo.Algorithm, error) { return c.Algos.Start(algoID) }
func (c *Core) PauseAlgorithm(algoID string) (algo.Algorithm, error) { return c.Algos.Pause(algoID) }
func (c *Core) StopAlgorithm(algoID string) (algo.Algorithm, error)  { return c.Algos.Stop(algoID) }

// Heartbeat forwards a strategy liveness signal.
func (c *Core) Heartbeat(algoID string, at time.Time) error {
	return c.Algos.Heartbeat(algoID, at)
}

// GetRiskSnapshot returns the latest published snapshot.
func (c *Core) GetRiskSnapshot() risk.Snapshot {
	return c.Risk.Latest()
}

// RecomputeRisk forces a synchronous recompute.
func (c *Core) RecomputeRisk() risk.Snapshot {
	return c.Risk.Recompute()
}

// Positions implements risk.PositionSource.
func (c *Core) Positions() []market.Position {
	return c.account.positions(c.prices)
}

// Cash implements risk.PositionSource.
func (c *Core) Cash() float64 {
	return c.account.cashBalance()
}

// Book returns the latest venue depth snapshot for a symbol.
func (c *Core) Book(symbol string) (market.Book, bool) {
	return c.books.Get(symbol)
}

// ConnectMarketData starts the websocket tick stream and routes ticks
// into the price store and the risk aggregator.
func (c *Core) ConnectMarketData(ctx context.Context) error {
	if c.cfg.MarketData.URL == "" {
		return fmt.Errorf("marketdata url not configured")
	}
	stream, err := marketdata.NewStream(marketdata.Config{
		URL:     c.cfg.MarketData.URL,
		Symbols: c.cfg.MarketData.Symbols,
	}, c.log.Named("marketdata"))
	if err != nil {
		return err
	}
	stream.SetTickHandler(func(t market.Tick) {
		c.prices.Set(t)
		c.Risk.OnTick(t)
	})
	stream.SetBookHandler(func(b market.Book) {
		c.books.Set(b)
	})
	if err := stream.Start(ctx); err != nil {
		return err
	}
	c.stream = stream
	return nil
}

// Close releases the aggregator worker, the stream and the journal.
func (c *Core) Close() error {
	if c.stream != nil {
		c.stream.Stop()
	}
	c.Risk.Close()
	return c.jrnl.Close()
}

func (c *Core) algoBook(algoID string) *positionBook {
	c.algoMu.Lock()
	defer c.algoMu.Unlock()
	book, ok := c.algoBooks[algoID]
	if !ok {
		book = newPositionBook(0)
		c.algoBooks[algoID] = book
	}
	return book
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "csv":
		return journal.NewCSV(cfg.ExecutionsFile, cfg.RiskFile)
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	default:
		return journal.Nop{}, nil
	}
}
