package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordExecution(x ExecutionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO executions
		(execution_id, order_id, symbol, side, quantity, price, venue, commission, tax, net_amount, slippage, speed_ms, counterparty, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		x.ExecutionID, x.OrderID, x.Symbol, x.Side, x.Quantity, x.Price, x.Venue,
		x.Commission, x.Tax, x.NetAmount, x.Slippage, x.SpeedMillis, x.Counterparty, x.Time,
	)
	return err
}

func (j *SQLiteJournal) RecordRisk(r RiskRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO risk_snapshots
		(time, portfolio_value, total_exposure, used_margin, available_margin, margin_utilization, var95, expected_shortfall, max_drawdown, concentration_risk, liquidity_risk, overall_risk_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Time, r.PortfolioValue, r.TotalExposure, r.UsedMargin, r.AvailableMargin,
		r.MarginUtilization, r.VaR95, r.ExpectedShortfall, r.MaxDrawdown,
		r.ConcentrationRisk, r.LiquidityRisk, r.OverallRiskScore,
	)
	return err
}

// ListExecutionsByOrder returns the audit trail for one order, oldest first.
func (j *SQLiteJournal) ListExecutionsByOrder(orderID string) ([]ExecutionRecord, error) {
	rows, err := j.db.Query(`
		SELECT execution_id, order_id, symbol, side, quantity, price, venue, commission, tax, net_amount, slippage, speed_ms, counterparty, time
		FROM executions WHERE order_id = ? ORDER BY execution_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExecutionRecord
	for rows.Next() {
		var x ExecutionRecord
		if err := rows.Scan(&x.ExecutionID, &x.OrderID, &x.Symbol, &x.Side, &x.Quantity, &x.Price, &x.Venue,
			&x.Commission, &x.Tax, &x.NetAmount, &x.Slippage, &x.SpeedMillis, &x.Counterparty, &x.Time); err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
