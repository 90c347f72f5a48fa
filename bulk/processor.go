// Package bulk converts uploaded order files into validated orders. Rows
// are independent: one bad row never aborts the batch.
package bulk

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/oms/internal/id"
	"github.com/rustyeddy/oms/order"
)

// Status is the batch lifecycle state.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusCompleted          Status = "COMPLETED"
	StatusPartiallyProcessed Status = "PARTIALLY_PROCESSED"
	StatusFailed             Status = "FAILED"
)

// Batch is the accounting record for one upload.
type Batch struct {
	ID               string
	Name             string
	FileName         string
	TotalOrders      int
	ProcessedOrders  int
	SuccessfulOrders int
	FailedOrders     int
	Status           Status
	ValidationErrors []string // row order, "Row <n>: <reason>"
	OrderIDs         []string // ids of successfully submitted orders
	TotalValue       float64  // estimated notional of successful rows
	UploadedAt       time.Time
	ProcessedAt      time.Time
}

// Processor runs batches through the order ledger.
type Processor struct {
	ledger  *order.Ledger
	log     *zap.Logger
	workers int

	mu      sync.RWMutex
	batches map[string]*Batch
}

// NewProcessor creates a processor with the given row-worker count.
// workers <= 1 processes rows sequentially.
func NewProcessor(ledger *order.Ledger, workers int, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		ledger:  ledger,
		log:     log,
		workers: workers,
		batches: make(map[string]*Batch),
	}
}

// IngestCSV parses and processes an uploaded file. A file-level problem
// (unreadable, bad header) is returned as an error before a batch is
// created; row problems are accounted inside the batch.
func (p *Processor) IngestCSV(name, fileName string, r io.Reader) (Batch, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return Batch{}, fmt.Errorf("ingest %s: %w", fileName, err)
	}
	return p.Ingest(name, fileName, rows), nil
}

type rowResult struct {
	orderID string
	value   float64
	err     error
}

// Ingest processes parsed rows, submitting valid ones to the ledger.
// ProcessedOrders is updated under the batch lock so concurrent row
// workers never lose an update; ValidationErrors keep input row order
// regardless of worker interleaving.
func (p *Processor) Ingest(name, fileName string, rows []Row) Batch {
	b := &Batch{
		ID:          id.New(),
		Name:        name,
		FileName:    fileName,
		TotalOrders: len(rows),
		Status:      StatusPending,
		UploadedAt:  time.Now().UTC(),
	}
	p.mu.Lock()
	p.batches[b.ID] = b
	p.mu.Unlock()

	results := make([]rowResult, len(rows))

	process := func(i int) {
		results[i] = p.processRow(rows[i])
		p.mu.Lock()
		if b.Status == StatusPending {
			b.Status = StatusInProgress
		}
		b.ProcessedOrders++
		if results[i].err != nil {
			b.FailedOrders++
		} else {
			b.SuccessfulOrders++
		}
		p.mu.Unlock()
	}

	if p.workers == 1 || len(rows) < 2 {
		for i := range rows {
			process(i)
		}
	} else {
		sem := make(chan struct{}, p.workers)
		var wg sync.WaitGroup
		for i := range rows {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int) {
				defer wg.Done()
				process(i)
				<-sem
			}(i)
		}
		wg.Wait()
	}

	p.mu.Lock()
	for i, res := range results {
		if res.err != nil {
			b.ValidationErrors = append(b.ValidationErrors, fmt.Sprintf("Row %d: %s", rows[i].Line, res.err.Error()))
		} else {
			b.OrderIDs = append(b.OrderIDs, res.orderID)
			b.TotalValue += res.value
		}
	}
	b.ProcessedAt = time.Now().UTC()
	switch {
	case b.TotalOrders > 0 && b.FailedOrders == b.TotalOrders:
		b.Status = StatusFailed
	case b.FailedOrders > 0:
		b.Status = StatusPartiallyProcessed
	default:
		b.Status = StatusCompleted
	}
	cp := snapshot(b)
	p.mu.Unlock()

	p.log.Info("batch processed",
		zap.String("batch_id", cp.ID),
		zap.String("file", cp.FileName),
		zap.Int("total", cp.TotalOrders),
		zap.Int("successful", cp.SuccessfulOrders),
		zap.Int("failed", cp.FailedOrders),
		zap.String("status", string(cp.Status)))

	return cp
}

// Get returns a copy of a batch by id.
func (p *Processor) Get(batchID string) (Batch, bool) {
	p.mu.RLock()
	b, ok := p.batches[batchID]
	p.mu.RUnlock()
	if !ok {
		return Batch{}, false
	}
	return snapshot(b), true
}

func (p *Processor) processRow(row Row) rowResult {
	if row.Err != nil {
		return rowResult{err: row.Err}
	}
	o, err := p.ledger.Submit(row.Request)
	if err != nil {
		return rowResult{err: err}
	}
	return rowResult{orderID: o.ID, value: o.EstimatedValue()}
}

func snapshot(b *Batch) Batch {
	cp := *b
	cp.ValidationErrors = append([]string(nil), b.ValidationErrors...)
	cp.OrderIDs = append([]string(nil), b.OrderIDs...)
	return cp
}
