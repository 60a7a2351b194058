package risk

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	// Metric result labels
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Price-source circuit breaker thresholds. Public market APIs recover
// quickly, so the open window is short relative to the tick interval.
const (
	SourceMinRequests     = 5                // Minimum requests before tripping
	SourceFailureRatio    = 0.6              // Failure ratio threshold (60%)
	SourceOpenTimeout     = 60 * time.Second // How long circuit stays open
	SourceHalfOpenMaxReqs = 3                // Max requests in half-open state
	SourceCountInterval   = 2 * time.Minute  // Window for counting failures
)

// SourceBreakerManager manages one circuit breaker per upstream price source
type SourceBreakerManager struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	settings ServiceSettings
	metrics  *BreakerMetrics
}

// BreakerMetrics holds Prometheus metrics for price-source circuit breakers
type BreakerMetrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	// Global metrics instance (singleton)
	globalMetrics *BreakerMetrics
	metricsOnce   sync.Once
)

// initMetrics initializes the global metrics instance exactly once in a thread-safe manner
func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &BreakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "cryptoguard_source_breaker_state",
					Help: "Price source circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"source"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cryptoguard_source_requests_total",
					Help: "Total number of requests through the source circuit breakers",
				},
				[]string{"source", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cryptoguard_source_failures_total",
					Help: "Total number of failures tracked by the source circuit breakers",
				},
				[]string{"source"},
			),
		}
	})
}

// ServiceSettings holds circuit breaker configuration for a price source
type ServiceSettings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// NewSourceBreakerManager creates a breaker manager with default settings
func NewSourceBreakerManager() *SourceBreakerManager {
	return NewSourceBreakerManagerWithSettings(nil)
}

// NewSourceBreakerManagerWithSettings creates a breaker manager with
// Prometheus metrics. Nil settings fall back to the constants above.
func NewSourceBreakerManagerWithSettings(settings *ServiceSettings) *SourceBreakerManager {
	initMetrics()

	if settings == nil {
		settings = &ServiceSettings{
			MinRequests:     SourceMinRequests,
			FailureRatio:    SourceFailureRatio,
			OpenTimeout:     SourceOpenTimeout,
			HalfOpenMaxReqs: SourceHalfOpenMaxReqs,
			CountInterval:   SourceCountInterval,
		}
	}

	return &SourceBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		settings: *settings,
		metrics:  globalMetrics,
	}
}

// NewPassthroughSourceBreakerManager creates a manager whose breakers never
// trip. Useful for testing other components without breaker interference.
func NewPassthroughSourceBreakerManager() *SourceBreakerManager {
	initMetrics()

	return &SourceBreakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		settings: ServiceSettings{
			MinRequests:     1 << 30,
			FailureRatio:    1.1,
			OpenTimeout:     time.Millisecond,
			HalfOpenMaxReqs: 1000,
		},
		metrics: globalMetrics,
	}
}

// Breaker returns the circuit breaker for a named source, creating it on
// first use.
func (m *SourceBreakerManager) Breaker(source string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[source]; ok {
		return cb
	}

	settings := m.settings
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: settings.HalfOpenMaxReqs,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.updateMetrics(name, to)
		},
		// Every request through the breaker feeds the request and
		// failure counters.
		IsSuccessful: func(err error) bool {
			m.metrics.recordRequest(source, err == nil)
			return err == nil
		},
	})
	m.breakers[source] = cb
	m.updateMetrics(source, cb.State())
	return cb
}

// updateMetrics updates Prometheus metrics for a breaker state change
func (m *SourceBreakerManager) updateMetrics(source string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(source).Set(stateValue)
}

// recordRequest records a request outcome on the source counters
func (m *BreakerMetrics) recordRequest(source string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(source).Inc()
	}
	m.requests.WithLabelValues(source, result).Inc()
}
