// Package algo supervises algorithmic strategies: lifecycle, heartbeat
// health, and the counters fed by the orders they generate. It never
// owns orders; an order outlives the algorithm that created it.
package algo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/oms/order"
)

// Status is the algorithm lifecycle state.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusRunning      Status = "RUNNING"
	StatusPaused       Status = "PAUSED"
	StatusStopped      Status = "STOPPED"
	StatusError        Status = "ERROR"
)

// Health classifies heartbeat recency. It is derived at read time, not
// stored, and is independent of Status.
type Health string

const (
	HealthHealthy  Health = "HEALTHY"
	HealthWarning  Health = "WARNING"
	HealthCritical Health = "CRITICAL"
)

// DefaultHeartbeatThreshold is the liveness window when none is configured.
const DefaultHeartbeatThreshold = 30 * time.Second

// errorStreak is how many consecutive illegal control transitions flip
// an automated algorithm to ERROR instead of letting the loop spin.
const errorStreak = 3

var ErrUnknownAlgorithm = errors.New("algorithm not found")

// InvalidTransitionError reports an illegal lifecycle change.
type InvalidTransitionError struct {
	AlgorithmID string
	From        Status
	To          Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("algorithm %s: invalid transition %s -> %s", e.AlgorithmID, e.From, e.To)
}

// Algorithm is the runner's view of one registered strategy.
type Algorithm struct {
	ID            string
	Name          string
	Status        Status
	LastHeartbeat time.Time
	RunningSince  time.Time // zero unless Status == RUNNING

	OrdersGenerated int64
	OrdersExecuted  int64
	OrdersFailed    int64
	SuccessRate     float64 // executed / generated, 0 when generated == 0

	AvgExecutionMillis float64
	CurrentPositions   int
	RiskScore          float64 // [0,1]
	RealizedPnL        float64
	UnrealizedPnL      float64

	Reason    string // ERROR reason, if any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Uptime is the time spent in the current RUNNING stretch.
func (a Algorithm) Uptime(now time.Time) time.Duration {
	if a.Status != StatusRunning || a.RunningSince.IsZero() {
		return 0
	}
	return now.Sub(a.RunningSince)
}

// Config registers a strategy with the runner.
type Config struct {
	ID   string // optional; assigned when empty
	Name string
}

type entry struct {
	a           Algorithm
	invalidRuns int // consecutive illegal control transitions
	sumSpeed    float64
	speedCount  int64
}

// Runner owns Algorithm records. Orders carry a back-reference by id
// only; the runner looks orders up through ledger events.
type Runner struct {
	threshold time.Duration
	log       *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	algos    map[string]*entry
	archived map[string]Algorithm
}

func NewRunner(heartbeatThreshold time.Duration, log *zap.Logger) *Runner {
	if heartbeatThreshold <= 0 {
		heartbeatThreshold = DefaultHeartbeatThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		threshold: heartbeatThreshold,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		algos:     make(map[string]*entry),
		archived:  make(map[string]Algorithm),
	}
}

// Register creates an algorithm in INITIALIZING state.
func (r *Runner) Register(cfg Config) (Algorithm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	algoID := cfg.ID
	if algoID == "" {
		algoID = fmt.Sprintf("algo-%d", len(r.algos)+len(r.archived)+1)
	}
	if _, ok := r.algos[algoID]; ok {
		return Algorithm{}, fmt.Errorf("algorithm %s already registered", algoID)
	}

	now := r.now()
	a := Algorithm{
		ID:            algoID,
		Name:          cfg.Name,
		Status:        StatusInitializing,
		LastHeartbeat: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.algos[algoID] = &entry{a: a}
	r.log.Info("algorithm registered", zap.String("algorithm_id", algoID), zap.String("name", cfg.Name))
	return a, nil
}

// Start moves INITIALIZING or PAUSED to RUNNING.
func (r *Runner) Start(algoID string) (Algorithm, error) {
	return r.control(algoID, StatusRunning, StatusInitializing, StatusPaused)
}

// Pause moves RUNNING to PAUSED.
func (r *Runner) Pause(algoID string) (Algorithm, error) {
	return r.control(algoID, StatusPaused, StatusRunning)
}

// Stop moves any non-terminal state, ERROR included, to STOPPED.
func (r *Runner) Stop(algoID string) (Algorithm, error) {
	return r.control(algoID, StatusStopped,
		StatusInitializing, StatusRunning, StatusPaused, StatusError)
}

// MarkError records an unrecoverable fault. Legal from INITIALIZING,
// RUNNING or PAUSED; the only exit from ERROR is Stop.
func (r *Runner) MarkError(algoID, reason string) (Algorithm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return Algorithm{}, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algoID)
	}
	switch e.a.Status {
	case StatusInitializing, StatusRunning, StatusPaused:
	default:
		return e.a, &InvalidTransitionError{AlgorithmID: algoID, From: e.a.Status, To: StatusError}
	}
	e.a.Status = StatusError
	e.a.Reason = reason
	e.a.RunningSince = time.Time{}
	e.a.UpdatedAt = r.now()
	r.log.Error("algorithm errored", zap.String("algorithm_id", algoID), zap.String("reason", reason))
	return e.a, nil
}

// Heartbeat records a liveness signal.
func (r *Runner) Heartbeat(algoID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algoID)
	}
	if at.After(e.a.LastHeartbeat) {
		e.a.LastHeartbeat = at
	}
	return nil
}

// HealthOf derives heartbeat health at now. A CRITICAL algorithm is not
// auto-stopped here; that policy belongs to a supervising collaborator.
func (r *Runner) HealthOf(algoID string, now time.Time) (Health, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algoID)
	}
	return classify(now.Sub(e.a.LastHeartbeat), r.threshold), nil
}

// Get returns a copy of a registered algorithm.
func (r *Runner) Get(algoID string) (Algorithm, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.algos[algoID]
	if !ok {
		return Algorithm{}, false
	}
	return e.a, true
}

// List returns copies of all registered algorithms.
func (r *Runner) List() []Algorithm {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Algorithm, 0, len(r.algos))
	for _, e := range r.algos {
		out = append(out, e.a)
	}
	return out
}

// Remove archives a stopped algorithm. Removal is always explicit and
// requires the terminal state first.
func (r *Runner) Remove(algoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algoID)
	}
	if e.a.Status != StatusStopped {
		return fmt.Errorf("algorithm %s: cannot remove in state %s, stop it first", algoID, e.a.Status)
	}
	r.archived[algoID] = e.a
	delete(r.algos, algoID)
	r.log.Info("algorithm archived", zap.String("algorithm_id", algoID))
	return nil
}

// Archived returns the archived record for a removed algorithm.
func (r *Runner) Archived(algoID string) (Algorithm, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.archived[algoID]
	return a, ok
}

// OnOrderEvent updates counters from ledger events for orders the
// algorithm spawned. Events for manual orders are ignored.
func (r *Runner) OnOrderEvent(evt order.Event) {
	if evt.Order.AlgorithmID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[evt.Order.AlgorithmID]
	if !ok {
		return
	}

	switch evt.Type {
	case order.EventCreated:
		e.a.OrdersGenerated++
	case order.EventFilled:
		if evt.Order.Status == order.StatusFilled {
			e.a.OrdersExecuted++
		}
	case order.EventStatusChanged:
		switch evt.Order.Status {
		case order.StatusRejected, order.StatusFailed:
			e.a.OrdersFailed++
		}
	}
	if e.a.OrdersGenerated > 0 {
		e.a.SuccessRate = float64(e.a.OrdersExecuted) / float64(e.a.OrdersGenerated)
	} else {
		e.a.SuccessRate = 0
	}
	e.a.UpdatedAt = r.now()
}

// NoteExecution attributes one fill's execution speed to an algorithm.
func (r *Runner) NoteExecution(algoID string, speedMillis int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return
	}
	e.sumSpeed += float64(speedMillis)
	e.speedCount++
	e.a.AvgExecutionMillis = e.sumSpeed / float64(e.speedCount)
	e.a.UpdatedAt = r.now()
}

// UpdatePnL records PnL reported by the position-keeping collaborator.
func (r *Runner) UpdatePnL(algoID string, realized, unrealized float64, positions int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algoID)
	}
	e.a.RealizedPnL = realized
	e.a.UnrealizedPnL = unrealized
	e.a.CurrentPositions = positions
	e.a.UpdatedAt = r.now()
	return nil
}

// SetRiskScore records the aggregator's per-algorithm score, clamped to [0,1].
func (r *Runner) SetRiskScore(algoID string, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algoID)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	e.a.RiskScore = score
	e.a.UpdatedAt = r.now()
	return nil
}

// control applies a lifecycle transition, tracking consecutive illegal
// attempts. An automated loop hammering an illegal transition flips the
// algorithm to ERROR rather than spinning forever.
func (r *Runner) control(algoID string, to Status, legalFrom ...Status) (Algorithm, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.algos[algoID]
	if !ok {
		return Algorithm{}, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algoID)
	}

	from := e.a.Status
	for _, s := range legalFrom {
		if from != s {
			continue
		}
		e.a.Status = to
		e.a.UpdatedAt = r.now()
		e.invalidRuns = 0
		if to == StatusRunning {
			e.a.RunningSince = e.a.UpdatedAt
		} else {
			e.a.RunningSince = time.Time{}
		}
		r.log.Info("algorithm transitioned",
			zap.String("algorithm_id", algoID),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
		return e.a, nil
	}

	err := &InvalidTransitionError{AlgorithmID: algoID, From: from, To: to}
	e.invalidRuns++
	if e.invalidRuns >= errorStreak {
		switch from {
		case StatusInitializing, StatusRunning, StatusPaused:
			e.a.Status = StatusError
			e.a.Reason = fmt.Sprintf("%d consecutive invalid transitions to %s", e.invalidRuns, to)
			e.a.RunningSince = time.Time{}
			e.a.UpdatedAt = r.now()
			r.log.Error("algorithm errored after repeated invalid transitions",
				zap.String("algorithm_id", algoID),
				zap.String("attempted", string(to)),
				zap.Int("attempts", e.invalidRuns))
		}
	}
	return e.a, err
}

func classify(age, threshold time.Duration) Health {
	switch {
	case age < threshold:
		return HealthHealthy
	case age < 3*threshold:
		return HealthWarning
	default:
		return HealthCritical
	}
}
