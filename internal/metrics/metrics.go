// Package metrics defines the collector the ledger engine reports to.
package metrics

import (
	"time"
)

// Collector receives ledger engine measurements. Implementations export
// them to a backend such as Prometheus.
type Collector interface {
	// Ledger computation
	RecordLedgerComputed(lines int, duration time.Duration)
	RecordIntegrityError(reason string)

	// Writes and cache maintenance
	RecordTransaction(kind string)
	RecordRecompute(success bool, duration time.Duration)
	RecordCacheDrift(partners int)

	// Store access
	RecordStoreOp(op string, success bool, duration time.Duration)
	RecordCircuitState(name string, state CircuitState)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordLedgerComputed(lines int, duration time.Duration)        {}
func (NoOpCollector) RecordIntegrityError(reason string)                            {}
func (NoOpCollector) RecordTransaction(kind string)                                 {}
func (NoOpCollector) RecordRecompute(success bool, duration time.Duration)          {}
func (NoOpCollector) RecordCacheDrift(partners int)                                 {}
func (NoOpCollector) RecordStoreOp(op string, success bool, duration time.Duration) {}
func (NoOpCollector) RecordCircuitState(name string, state CircuitState)            {}

var _ Collector = NoOpCollector{}
