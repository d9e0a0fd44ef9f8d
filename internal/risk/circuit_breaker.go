package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Default thresholds for the two services this process calls out to:
// the candle exchange (network, flaky) and the risk gate's own
// persistence writes (local disk or Redis, rarely flaky but a stuck
// backend should not wedge every tick).
const (
	ExchangeMinRequests     = 5
	ExchangeFailureRatio    = 0.6
	ExchangeOpenTimeout     = 30 * time.Second
	ExchangeHalfOpenMaxReqs = 3
	ExchangeCountInterval   = 10 * time.Second

	PersistenceMinRequests     = 10
	PersistenceFailureRatio    = 0.5
	PersistenceOpenTimeout     = 15 * time.Second
	PersistenceHalfOpenMaxReqs = 5
	PersistenceCountInterval   = 10 * time.Second
)

// CircuitBreakerManager owns the breakers this process needs: one
// around candle-fetch calls, one around the risk gate's persisted
// positions read-modify-write (spec.md §5 "a short-lived advisory lock
// ... or serialize through a single executor" — the breaker protects
// the serializing executor itself from a wedged backend).
type CircuitBreakerManager struct {
	exchange    *gobreaker.CircuitBreaker
	persistence *gobreaker.CircuitBreaker
	metrics     *CircuitBreakerMetrics
}

// CircuitBreakerMetrics holds the Prometheus metrics shared by every
// breaker this process runs.
type CircuitBreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	globalMetrics *CircuitBreakerMetrics
	metricsOnce   sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &CircuitBreakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "sigengine_circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sigengine_circuit_breaker_requests_total",
					Help: "Total number of requests through a circuit breaker",
				},
				[]string{"service", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "sigengine_circuit_breaker_failures_total",
					Help: "Total number of failures tracked by a circuit breaker",
				},
				[]string{"service"},
			),
		}
	})
}

// ServiceSettings holds circuit breaker configuration for one service.
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// NewCircuitBreakerManager builds a manager with default thresholds.
func NewCircuitBreakerManager() *CircuitBreakerManager {
	return NewCircuitBreakerManagerWithSettings(nil, nil)
}

// NewCircuitBreakerManagerWithSettings builds a manager from explicit
// settings; a nil argument falls back to the package defaults.
func NewCircuitBreakerManagerWithSettings(exchangeSettings, persistenceSettings *ServiceSettings) *CircuitBreakerManager {
	initMetrics()

	if exchangeSettings == nil {
		exchangeSettings = &ServiceSettings{
			MinRequests:     ExchangeMinRequests,
			FailureRatio:    ExchangeFailureRatio,
			OpenTimeout:     ExchangeOpenTimeout,
			HalfOpenMaxReqs: ExchangeHalfOpenMaxReqs,
			CountInterval:   ExchangeCountInterval,
		}
	}
	if persistenceSettings == nil {
		persistenceSettings = &ServiceSettings{
			MinRequests:     PersistenceMinRequests,
			FailureRatio:    PersistenceFailureRatio,
			OpenTimeout:     PersistenceOpenTimeout,
			HalfOpenMaxReqs: PersistenceHalfOpenMaxReqs,
			CountInterval:   PersistenceCountInterval,
		}
	}

	manager := &CircuitBreakerManager{metrics: globalMetrics}

	manager.exchange = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: exchangeSettings.HalfOpenMaxReqs,
		Interval:    exchangeSettings.CountInterval,
		Timeout:     exchangeSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= exchangeSettings.MinRequests && ratio >= exchangeSettings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			manager.updateMetrics("exchange", to)
		},
	})

	manager.persistence = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "risk_persistence",
		MaxRequests: persistenceSettings.HalfOpenMaxReqs,
		Interval:    persistenceSettings.CountInterval,
		Timeout:     persistenceSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= persistenceSettings.MinRequests && ratio >= persistenceSettings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			manager.updateMetrics("risk_persistence", to)
		},
	})

	manager.updateMetrics("exchange", manager.exchange.State())
	manager.updateMetrics("risk_persistence", manager.persistence.State())

	return manager
}

// NewPassthroughCircuitBreakerManager never trips — useful in tests
// that want to exercise RiskGate without breaker interference.
func NewPassthroughCircuitBreakerManager() *CircuitBreakerManager {
	initMetrics()

	neverTrip := func(counts gobreaker.Counts) bool { return false }

	manager := &CircuitBreakerManager{metrics: globalMetrics}
	manager.exchange = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "exchange_passthrough", MaxRequests: 1000, Timeout: time.Millisecond, ReadyToTrip: neverTrip,
	})
	manager.persistence = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "risk_persistence_passthrough", MaxRequests: 1000, Timeout: time.Millisecond, ReadyToTrip: neverTrip,
	})
	return manager
}

// Exchange returns the candle-fetch circuit breaker.
func (m *CircuitBreakerManager) Exchange() *gobreaker.CircuitBreaker { return m.exchange }

// Persistence returns the risk-gate persistence circuit breaker.
func (m *CircuitBreakerManager) Persistence() *gobreaker.CircuitBreaker { return m.persistence }

func (m *CircuitBreakerManager) updateMetrics(service string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(service).Set(stateValue)
}

// RecordRequest records a request result for metrics.
func (m *CircuitBreakerMetrics) RecordRequest(service string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(service).Inc()
	}
	m.requests.WithLabelValues(service, result).Inc()
}

// Metrics returns the metrics instance for manual recording.
func (m *CircuitBreakerManager) Metrics() *CircuitBreakerMetrics { return m.metrics }
