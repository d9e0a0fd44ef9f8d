// Package risk implements the portfolio-level veto gate of spec.md
// §4.5: RiskPosition bookkeeping across all strategies, user-supplied
// veto predicates, and the circuit-breaker-protected persistence
// read-modify-write that keeps the gate's "positions" entry
// serialized (spec.md §5).
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sigtrader/enginecore/internal/persistence"
	"github.com/sigtrader/enginecore/pkg/sigengine"
)

const positionsEntityID = "positions"

func namespace(riskName string) string {
	return fmt.Sprintf("risk/%s/positions", riskName)
}

type positionEntry struct {
	Key      string                  `json:"key"` // "strategyName/symbol"
	Position sigengine.RiskPosition `json:"position"`
}

func positionKey(strategyName, symbol string) string {
	return strategyName + "/" + symbol
}

// Gate is the default RiskGate realization: an in-memory index of
// active positions mirrored to Persistence under
// risk/{riskName}/positions, guarded by a mutex (the "single executor"
// serialization option of spec.md §5) and a circuit breaker around the
// write path so a wedged backend degrades to fail-open/fail-closed
// predictably instead of hanging every tick.
type Gate struct {
	name       string
	store      persistence.Store
	breakers   *CircuitBreakerManager
	predicates []sigengine.RiskPredicate
	log        zerolog.Logger

	mu        sync.Mutex
	positions map[string]sigengine.RiskPosition

	onAllowed  func(ctx sigengine.RiskCheckContext)
	onRejected func(ctx sigengine.RiskCheckContext, note string)
}

// NewGate builds a risk gate named riskName with the given veto
// predicates, evaluated in order (spec.md §4.5: "the first predicate
// that fails ... rejects the signal").
func NewGate(riskName string, store persistence.Store, breakers *CircuitBreakerManager, predicates []sigengine.RiskPredicate, log zerolog.Logger) *Gate {
	return &Gate{
		name:       riskName,
		store:      store,
		breakers:   breakers,
		predicates: predicates,
		log:        log,
		positions:  make(map[string]sigengine.RiskPosition),
	}
}

// OnAllowed / OnRejected register optional host callbacks mirroring
// spec.md §4.5's onAllowed/onRejected hooks.
func (g *Gate) OnAllowed(fn func(ctx sigengine.RiskCheckContext))                      { g.onAllowed = fn }
func (g *Gate) OnRejected(fn func(ctx sigengine.RiskCheckContext, note string)) { g.onRejected = fn }

// Load hydrates the in-memory index from persistence; callers run this
// once at startup before the first tick, mirroring the engine's own
// lazy-load-on-first-use discipline.
func (g *Gate) Load(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := g.store.Read(ctx, namespace(g.name), positionsEntityID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("risk: load positions: %w", err)
	}

	var entries []positionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		g.log.Warn().Err(err).Str("risk", g.name).Msg("corrupt risk positions entry, starting empty")
		return nil
	}
	for _, e := range entries {
		g.positions[e.Key] = e.Position
	}
	return nil
}

// Check runs every predicate against the current aggregate. The first
// error returned rejects the signal.
func (g *Gate) Check(ctx context.Context, rc sigengine.RiskCheckContext) error {
	g.mu.Lock()
	rc.ActivePositionCount = len(g.positions)
	rc.ActivePositions = make([]sigengine.RiskPosition, 0, len(g.positions))
	for _, p := range g.positions {
		rc.ActivePositions = append(rc.ActivePositions, p)
	}
	g.mu.Unlock()

	for _, predicate := range g.predicates {
		if err := predicate(rc); err != nil {
			note := err.Error()
			if g.onRejected != nil {
				g.onRejected(rc, note)
			}
			return &sigengine.RiskRejectionError{RiskName: g.name, Note: note}
		}
	}
	if g.onAllowed != nil {
		g.onAllowed(rc)
	}
	return nil
}

// Add records a newly opened position and persists the updated set
// (spec.md §4.5 "called on transition into opened").
func (g *Gate) Add(ctx context.Context, rec sigengine.SignalRecord, strategyName, exchangeName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := positionKey(strategyName, rec.Symbol)
	g.positions[key] = sigengine.RiskPosition{
		Signal:       rec,
		StrategyName: strategyName,
		ExchangeName: exchangeName,
		OpenedAtMS:   rec.PendingAt,
	}
	return g.persistLocked(ctx)
}

// Drop removes a position on close/cancel and persists the updated set.
func (g *Gate) Drop(ctx context.Context, strategyName, symbol string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.positions, positionKey(strategyName, symbol))
	return g.persistLocked(ctx)
}

func (g *Gate) persistLocked(ctx context.Context) error {
	entries := make([]positionEntry, 0, len(g.positions))
	for k, p := range g.positions {
		entries = append(entries, positionEntry{Key: k, Position: p})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("risk: marshal positions: %w", err)
	}

	_, err = g.breakers.Persistence().Execute(func() (interface{}, error) {
		return nil, g.store.Write(ctx, namespace(g.name), positionsEntityID, data)
	})
	if err != nil {
		g.breakers.Metrics().RecordRequest("risk_persistence", false)
		return fmt.Errorf("risk: persist positions: %w", err)
	}
	g.breakers.Metrics().RecordRequest("risk_persistence", true)
	return nil
}
