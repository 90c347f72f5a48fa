package journal

const Schema = `
CREATE TABLE IF NOT EXISTS executions (
	execution_id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price REAL NOT NULL,
	venue TEXT NOT NULL,
	commission REAL NOT NULL,
	tax REAL NOT NULL,
	net_amount REAL NOT NULL,
	slippage REAL NOT NULL,
	speed_ms INTEGER NOT NULL,
	counterparty TEXT NOT NULL,
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_order ON executions(order_id);

CREATE TABLE IF NOT EXISTS risk_snapshots (
	time DATETIME NOT NULL,
	portfolio_value REAL NOT NULL,
	total_exposure REAL NOT NULL,
	used_margin REAL NOT NULL,
	available_margin REAL NOT NULL,
	margin_utilization REAL NOT NULL,
	var95 REAL NOT NULL,
	expected_shortfall REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	concentration_risk REAL NOT NULL,
	liquidity_risk REAL NOT NULL,
	overall_risk_score REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_time ON risk_snapshots(time);
`
