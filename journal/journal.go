package journal

import "time"

// ExecutionRecord is one confirmed fill, written once and never updated.
type ExecutionRecord struct {
	ExecutionID  string
	OrderID      string
	Symbol       string
	Side         string
	Quantity     int64
	Price        float64
	Venue        string
	Commission   float64
	Tax          float64
	NetAmount    float64
	Slippage     float64
	SpeedMillis  int64
	Counterparty string
	Time         time.Time
}

// RiskRecord is a portfolio risk snapshot at a point in time.
type RiskRecord struct {
	Time              time.Time
	PortfolioValue    float64
	TotalExposure     float64
	UsedMargin        float64
	AvailableMargin   float64
	MarginUtilization float64
	VaR95             float64
	ExpectedShortfall float64
	MaxDrawdown       float64
	ConcentrationRisk float64
	LiquidityRisk     float64
	OverallRiskScore  float64
}

// Journal persists the audit trail. Backends are best-effort: a write
// error is reported to the caller but never blocks order flow.
type Journal interface {
	RecordExecution(ExecutionRecord) error
	RecordRisk(RiskRecord) error
	Close() error
}

// Nop discards everything. Useful for tests and dry runs.
type Nop struct{}

func (Nop) RecordExecution(ExecutionRecord) error { return nil }
func (Nop) RecordRisk(RiskRecord) error           { return nil }
func (Nop) Close() error                          { return nil }
