package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	executions *csv.Writer
	risks      *csv.Writer
	xf, rf     *os.File
}

func NewCSV(executionsPath, riskPath string) (*CSVJournal, error) {
	xf, err := os.Create(executionsPath)
	if err != nil {
		return nil, err
	}
	rf, err := os.Create(riskPath)
	if err != nil {
		xf.Close()
		return nil, err
	}

	xw := csv.NewWriter(xf)
	rw := csv.NewWriter(rf)

	if err := xw.Write([]string{"execution_id", "order_id", "symbol", "side", "quantity", "price", "venue", "commission", "tax", "net_amount", "slippage", "speed_ms", "counterparty", "time"}); err != nil {
		return nil, err
	}
	if err := rw.Write([]string{"time", "portfolio_value", "total_exposure", "used_margin", "available_margin", "margin_utilization", "var95", "expected_shortfall", "max_drawdown", "concentration_risk", "liquidity_risk", "overall_risk_score"}); err != nil {
		return nil, err
	}

	xw.Flush()
	if err := xw.Error(); err != nil {
		return nil, err
	}
	rw.Flush()
	if err := rw.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{xw, rw, xf, rf}, nil
}

func (j *CSVJournal) RecordExecution(x ExecutionRecord) error {
	err := j.executions.Write([]string{
		x.ExecutionID,
		x.OrderID,
		x.Symbol,
		x.Side,
		strconv.FormatInt(x.Quantity, 10),
		f(x.Price),
		x.Venue,
		f(x.Commission),
		f(x.Tax),
		f(x.NetAmount),
		f(x.Slippage),
		strconv.FormatInt(x.SpeedMillis, 10),
		x.Counterparty,
		x.Time.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	j.executions.Flush()
	return j.executions.Error()
}

func (j *CSVJournal) RecordRisk(r RiskRecord) error {
	err := j.risks.Write([]string{
		r.Time.Format(time.RFC3339Nano),
		f(r.PortfolioValue),
		f(r.TotalExposure),
		f(r.UsedMargin),
		f(r.AvailableMargin),
		f(r.MarginUtilization),
		f(r.VaR95),
		f(r.ExpectedShortfall),
		f(r.MaxDrawdown),
		f(r.ConcentrationRisk),
		f(r.LiquidityRisk),
		f(r.OverallRiskScore),
	})
	if err != nil {
		return err
	}
	j.risks.Flush()
	return j.risks.Error()
}

func (j *CSVJournal) Close() error {
	j.executions.Flush()
	if err := j.executions.Error(); err != nil {
		return err
	}
	j.risks.Flush()
	if err := j.risks.Error(); err != nil {
		return err
	}

	if err := j.xf.Close(); err != nil {
		return err
	}
	return j.rf.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
