// Package risk recomputes portfolio-level risk from current exposure.
// Compute is a pure function; the Aggregator wraps it with event wiring
// and an atomically published latest snapshot.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/order"
)

// Weights combine the component scores into the overall risk score.
// They must sum to 1.
type Weights struct {
	Margin        float64 `yaml:"marginWeight" json:"marginWeight"`
	Concentration float64 `yaml:"concentrationWeight" json:"concentrationWeight"`
	Liquidity     float64 `yaml:"liquidityWeight" json:"liquidityWeight"`
}

// DefaultWeights favor margin pressure over concentration and liquidity.
var DefaultWeights = Weights{Margin: 0.5, Concentration: 0.3, Liquidity: 0.2}

const weightTolerance = 1e-9

// Validate fails fast on weights that do not form a convex combination.
func (w Weights) Validate() error {
	if w.Margin < 0 || w.Concentration < 0 || w.Liquidity < 0 {
		return fmt.Errorf("risk weights must be non-negative")
	}
	sum := w.Margin + w.Concentration + w.Liquidity
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("risk weights must sum to 1, got %g", sum)
	}
	return nil
}

// Config tunes the aggregator.
type Config struct {
	Weights        Weights
	MarginCapacity float64 // total margin the account may commit
	DailyVol       float64 // volatility proxy for the VaR estimate, e.g. 0.02
}

// Inputs is everything Compute reads. PeakPortfolioValue is carried by
// the caller so Compute itself stays history-free.
type Inputs struct {
	Cash               float64
	Positions          []market.Position
	OpenOrders         []order.Order
	PeakPortfolioValue float64
}

// Snapshot is the recomputed risk state. A new value is produced on every
// recompute; readers never see a partially updated snapshot.
type Snapshot struct {
	PortfolioValue    float64
	TotalExposure     float64
	UsedMargin        float64
	AvailableMargin   float64
	MarginUtilization float64 // [0,1]
	VaR95             float64 // negative: potential loss
	ExpectedShortfall float64 // negative, beyond VaR95
	MaxDrawdown       float64 // negative or zero
	ConcentrationRisk float64 // [0,1]
	LiquidityRisk     float64 // [0,1]
	OverallRiskScore  float64 // [0,1]
	ComputedAt        time.Time
}

// Compute derives a snapshot from current exposure. Identical inputs
// produce identical outputs.
func Compute(cfg Config, in Inputs) Snapshot {
	var (
		signedValue   float64
		exposure      float64
		usedMargin    float64
		notionals     []float64
		liquidityAcc  float64
		notionalTotal float64
	)

	for _, p := range in.Positions {
		n := p.Notional()
		signedValue += float64(p.Quantity) * p.MarkPrice
		exposure += n
		notionals = append(notionals, n)
		notionalTotal += n

		meta, ok := market.Symbols[p.Symbol]
		rate := 0.2
		if ok {
			rate = meta.MarginRate
		}
		usedMargin += n * rate

		liquidityAcc += n * liquidityScore(p, meta, ok)
	}

	for _, o := range in.OpenOrders {
		n := float64(o.RemainingQuantity) * o.ReferencePrice
		if n <= 0 {
			continue
		}
		exposure += n
		rate := 0.2
		if meta, ok := market.Symbols[o.Symbol]; ok {
			rate = meta.MarginRate
		}
		usedMargin += n * rate
	}

	portfolioValue := in.Cash + signedValue

	available := cfg.MarginCapacity - usedMargin
	if available < 0 {
		available = 0
	}
	utilization := 0.0
	if usedMargin+available > 0 {
		utilization = clamp01(usedMargin / (usedMargin + available))
	}

	concentration := herfindahl(notionals, notionalTotal)

	liquidity := 0.0
	if notionalTotal > 0 {
		liquidity = clamp01(liquidityAcc / notionalTotal)
	}

	var95 := -1.645 * cfg.DailyVol * exposure
	shortfall := var95 * 1.25

	drawdown := 0.0
	if in.PeakPortfolioValue > portfolioValue {
		drawdown = portfolioValue - in.PeakPortfolioValue
	}

	score := clamp01(cfg.Weights.Margin*utilization +
		cfg.Weights.Concentration*concentration +
		cfg.Weights.Liquidity*liquidity)

	return Snapshot{
		PortfolioValue:    portfolioValue,
		TotalExposure:     exposure,
		UsedMargin:        usedMargin,
		AvailableMargin:   available,
		MarginUtilization: utilization,
		VaR95:             var95,
		ExpectedShortfall: shortfall,
		MaxDrawdown:       drawdown,
		ConcentrationRisk: concentration,
		LiquidityRisk:     liquidity,
		OverallRiskScore:  score,
	}
}

// herfindahl measures concentration as the sum of squared notional
// shares: 1/n for an even book, 1 for a single-name book.
func herfindahl(notionals []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	var h float64
	for _, n := range notionals {
		w := n / total
		h += w * w
	}
	return clamp01(h)
}

// liquidityScore estimates how hard a position is to unwind: the
// fraction of average daily volume it represents, capped at 1.
func liquidityScore(p market.Position, meta market.SymbolMeta, known bool) float64 {
	if !known || meta.ADV <= 0 {
		return 1
	}
	qty := p.Quantity
	if qty < 0 {
		qty = -qty
	}
	return clamp01(float64(qty) / meta.ADV)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
