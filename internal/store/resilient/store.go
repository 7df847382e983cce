// Package resilient wraps a store.Store with per-call timeouts and a circuit
// breaker. Timeouts and an open breaker surface as *store.UnavailableError.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/logging"
	"github.com/curasupply/curaledger/internal/metrics"
	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// Store is a store.Store guarded by a timeout and a circuit breaker.
type Store struct {
	inner       store.Store
	cb          *gobreaker.CircuitBreaker
	timeout     time.Duration
	lockTimeout time.Duration
	metrics     metrics.Collector
	logger      *logging.Logger
}

// New wraps inner. A nil collector is replaced with metrics.NoOpCollector.
func New(name string, inner store.Store, config Config, collector metrics.Collector) *Store {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger := logging.L().Named("resilient").With(zap.String("store", name))

	s := &Store{
		inner:       inner,
		timeout:     config.Timeout,
		lockTimeout: config.LockTimeout,
		metrics:     collector,
		logger:      logger,
	}

	threshold := config.Breaker.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.Breaker.MaxRequests,
		Interval:    config.Breaker.Interval,
		Timeout:     config.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			s.metrics.RecordCircuitState(name, circuitState(to))
		},
	})

	logger.Debug("resilient store initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Duration("lock_timeout", config.LockTimeout),
		zap.Uint32("consecutive_failures", threshold),
	)
	return s
}

// isSuccessful decides what counts against the breaker. Domain answers such
// as "not found" or a rejected transaction mean the backend is healthy.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, ledger.ErrDataIntegrity),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// timedOut reports whether err is the result of ctx's deadline and has not
// already been classified by the inner store.
func timedOut(ctx context.Context, err error) bool {
	if err == nil || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return false
	}
	return !errors.Is(err, store.ErrUnavailable) && !errors.Is(err, store.ErrContention)
}

func circuitState(state gobreaker.State) metrics.CircuitState {
	switch state {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// State reports the breaker state.
func (s *Store) State() gobreaker.State {
	return s.cb.State()
}

// call runs fn through the breaker under the per-call timeout.
func call[T any](ctx context.Context, s *Store, op string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	duration := time.Since(start)
	s.metrics.RecordStoreOp(op, isSuccessful(err), duration)

	if err == nil {
		return result.(T), nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		s.logger.Warn("circuit breaker open, request rejected", zap.String("operation", op))
		return zero, store.Unavailable(op, err)
	case timedOut(ctx, err):
		s.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.Duration("timeout", timeout),
			zap.Duration("elapsed", duration),
		)
		return zero, store.Unavailable(op, context.DeadlineExceeded)
	}

	if !isSuccessful(err) {
		s.logger.Error("store operation failed",
			zap.String("operation", op),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}
	return zero, err
}

type none struct{}

func exec(ctx context.Context, s *Store, op string, fn func(ctx context.Context) error) error {
	_, err := call(ctx, s, op, s.timeout, func(ctx context.Context) (none, error) {
		return none{}, fn(ctx)
	})
	return err
}

// AppendTransaction implements store.TransactionStore.
func (s *Store) AppendTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	return call(ctx, s, "append_transaction", s.timeout, func(ctx context.Context) (model.Transaction, error) {
		return s.inner.AppendTransaction(ctx, tx)
	})
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context, f store.Filter) ([]model.Transaction, error) {
	return call(ctx, s, "list_transactions", s.timeout, func(ctx context.Context) ([]model.Transaction, error) {
		return s.inner.ListTransactions(ctx, f)
	})
}

// GetPartner implements store.PartnerStore.
func (s *Store) GetPartner(ctx context.Context, id string) (model.Partner, error) {
	return call(ctx, s, "get_partner", s.timeout, func(ctx context.Context) (model.Partner, error) {
		return s.inner.GetPartner(ctx, id)
	})
}

// ListPartners implements store.PartnerStore.
func (s *Store) ListPartners(ctx context.Context) ([]model.Partner, error) {
	return call(ctx, s, "list_partners", s.timeout, func(ctx context.Context) ([]model.Partner, error) {
		return s.inner.ListPartners(ctx)
	})
}

// SavePartner implements store.PartnerStore.
func (s *Store) SavePartner(ctx context.Context, p model.Partner) error {
	return exec(ctx, s, "save_partner", func(ctx context.Context) error {
		return s.inner.SavePartner(ctx, p)
	})
}

// UpdateCachedBalance implements store.PartnerStore.
func (s *Store) UpdateCachedBalance(ctx context.Context, id string, value decimal.Decimal, at time.Time) error {
	return exec(ctx, s, "update_cached_balance", func(ctx context.Context) error {
		return s.inner.UpdateCachedBalance(ctx, id, value, at)
	})
}

// GetInvoice implements store.PartnerStore.
func (s *Store) GetInvoice(ctx context.Context, id string) (model.Invoice, error) {
	return call(ctx, s, "get_invoice", s.timeout, func(ctx context.Context) (model.Invoice, error) {
		return s.inner.GetInvoice(ctx, id)
	})
}

// ListInvoices implements store.PartnerStore.
func (s *Store) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	return call(ctx, s, "list_invoices", s.timeout, func(ctx context.Context) ([]model.Invoice, error) {
		return s.inner.ListInvoices(ctx)
	})
}

// SaveInvoice implements store.PartnerStore.
func (s *Store) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	return exec(ctx, s, "save_invoice", func(ctx context.Context) error {
		return s.inner.SaveInvoice(ctx, inv)
	})
}

// WithPartnerLock implements store.Locker. The whole section, fn included,
// runs under LockTimeout; store calls made by fn pass through the breaker
// individually.
func (s *Store) WithPartnerLock(ctx context.Context, partnerID string, fn func(ctx context.Context) error) error {
	start := time.Now()
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	err := s.inner.WithPartnerLock(ctx, partnerID, fn)
	s.metrics.RecordStoreOp("partner_lock", isSuccessful(err), time.Since(start))

	if timedOut(ctx, err) {
		s.logger.Warn("partner lock section timed out",
			zap.String("partner_id", partnerID),
			zap.Duration("timeout", s.lockTimeout),
		)
		return store.Unavailable("partner_lock", context.DeadlineExceeded)
	}
	return err
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.inner.Close()
}

var _ store.Store = (*Store)(nil)
