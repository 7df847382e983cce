// Package finance is the ledger engine's application layer: it records
// transactions, keeps each partner's cached balance in step with the fold and
// builds statements and reports.
package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curasupply/curaledger/internal/auditlog"
	"github.com/curasupply/curaledger/internal/events"
	"github.com/curasupply/curaledger/internal/id"
	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/logging"
	"github.com/curasupply/curaledger/internal/metrics"
	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// ErrInvalidPartner is returned by SavePartner for incomplete partner records.
var ErrInvalidPartner = errors.New("finance: invalid partner")

// Auditor receives one entry per ledger write.
type Auditor interface {
	Append(entries ...auditlog.Entry) error
}

// Service coordinates the store, the calculator and the side channels.
type Service struct {
	store     store.Store
	publisher events.Publisher
	audit     Auditor
	metrics   metrics.Collector
	logger    *logging.Logger
	now       func() time.Time

	// invoiceMu serializes invoice numbering within the process.
	invoiceMu sync.Mutex

	reportWorkers int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithAuditLog sets where ledger writes are recorded.
func WithAuditLog(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithReportWorkers bounds how many partners Report loads concurrently.
func WithReportWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.reportWorkers = n
		}
	}
}

// NewService creates a Service over st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:         st,
		publisher:     events.NopPublisher{},
		metrics:       metrics.NoOpCollector{},
		logger:        logging.L(),
		now:           time.Now,
		reportWorkers: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("finance")
	return s
}

// Record validates tx, appends it and recomputes the partner's cached
// balance before returning. An empty ID or timestamp is filled in. If the
// recompute fails the stored transaction is returned with the error; the
// write is durable but not complete.
func (s *Service) Record(ctx context.Context, actor string, tx model.Transaction) (model.Transaction, error) {
	if tx.ID == "" {
		tx.ID = id.NewTransactionID()
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = s.now()
	}
	tx.Seq = 0
	tx.OrderNumber = ""

	if err := ledger.Validate(tx); err != nil {
		s.integrityError(err)
		return model.Transaction{}, err
	}

	if _, err := s.store.GetPartner(ctx, tx.PartnerID); err != nil {
		return model.Transaction{}, fmt.Errorf("recording %s: %w", tx.ID, err)
	}

	if tx.InvoiceID != "" {
		inv, err := s.store.GetInvoice(ctx, tx.InvoiceID)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("recording %s: %w", tx.ID, err)
		}
		if err := ledger.ValidateInvoiceRef(tx, inv); err != nil {
			s.integrityError(err)
			return model.Transaction{}, err
		}
	}

	stored, err := s.store.AppendTransaction(ctx, tx)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("recording %s: %w", tx.ID, err)
	}
	s.metrics.RecordTransaction(string(stored.Kind))

	s.logger.Info("transaction recorded",
		zap.String("transaction_id", stored.ID),
		zap.String("partner_id", stored.PartnerID),
		zap.String("kind", string(stored.Kind)),
		zap.String("amount", stored.Amount.StringFixed(2)),
	)
	s.auditEntry(auditlog.Entry{
		Actor:         actor,
		Action:        auditlog.ActionRecordTransaction,
		PartnerID:     stored.PartnerID,
		TransactionID: stored.ID,
		Details:       fmt.Sprintf("%s %s", stored.Kind, stored.Amount.StringFixed(2)),
	})

	if _, err := s.RecomputeAndStore(ctx, stored.PartnerID); err != nil {
		return stored, fmt.Errorf("recorded %s but recomputing balance: %w", stored.ID, err)
	}

	s.publish(ctx, events.TransactionRecorded{
		TransactionID: stored.ID,
		PartnerID:     stored.PartnerID,
		Kind:          string(stored.Kind),
		Amount:        stored.Amount.StringFixed(2),
		InvoiceID:     stored.InvoiceID,
		OccurredAt:    stored.Timestamp,
	})
	return stored, nil
}

// RecomputeAndStore folds the partner's transactions under the partner lock
// and writes the result to the cached balance column.
func (s *Service) RecomputeAndStore(ctx context.Context, partnerID string) (decimal.Decimal, error) {
	start := s.now()
	var balance decimal.Decimal

	err := s.store.WithPartnerLock(ctx, partnerID, func(ctx context.Context) error {
		txs, err := s.transactions(ctx, store.Filter{PartnerID: partnerID})
		if err != nil {
			return err
		}
		view, err := s.compute(txs)
		if err != nil {
			return err
		}
		balance = view.Summary.CurrentBalance
		return s.store.UpdateCachedBalance(ctx, partnerID, balance, s.now())
	})
	s.metrics.RecordRecompute(err == nil, s.now().Sub(start))
	if err != nil {
		s.logger.Error("balance recompute failed", zap.String("partner_id", partnerID), zap.Error(err))
		return decimal.Zero, fmt.Errorf("recomputing balance for %s: %w", partnerID, err)
	}

	s.logger.Debug("balance recomputed",
		zap.String("partner_id", partnerID),
		zap.String("balance", balance.StringFixed(2)),
	)
	s.publish(ctx, events.BalanceRecomputed{
		PartnerID:  partnerID,
		Balance:    balance.StringFixed(2),
		ComputedAt: s.now(),
	})
	return balance, nil
}

// Balance returns the partner's balance computed from the transaction log.
func (s *Service) Balance(ctx context.Context, partnerID string) (decimal.Decimal, error) {
	if _, err := s.store.GetPartner(ctx, partnerID); err != nil {
		return decimal.Zero, err
	}
	return s.fold(ctx, partnerID)
}

// CachedBalance returns the denormalized balance and when it was written.
func (s *Service) CachedBalance(ctx context.Context, partnerID string) (decimal.Decimal, time.Time, error) {
	p, err := s.store.GetPartner(ctx, partnerID)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	return p.CachedBalance, p.BalanceUpdatedAt, nil
}

// Partner returns one partner.
func (s *Service) Partner(ctx context.Context, partnerID string) (model.Partner, error) {
	return s.store.GetPartner(ctx, partnerID)
}

// Partners lists every partner ordered by ID.
func (s *Service) Partners(ctx context.Context) ([]model.Partner, error) {
	return s.store.ListPartners(ctx)
}

// SavePartner creates or updates a partner. A missing ID is generated. The
// cached balance is never taken from p.
func (s *Service) SavePartner(ctx context.Context, actor string, p model.Partner) (model.Partner, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return model.Partner{}, fmt.Errorf("%w: name is required", ErrInvalidPartner)
	}
	if !p.Type.Valid() {
		return model.Partner{}, fmt.Errorf("%w: unknown type %q", ErrInvalidPartner, p.Type)
	}
	if p.ID == "" {
		p.ID = id.NewTransactionID()
	}

	if err := s.store.SavePartner(ctx, p); err != nil {
		return model.Partner{}, fmt.Errorf("saving partner %s: %w", p.ID, err)
	}
	s.auditEntry(auditlog.Entry{
		Actor:     actor,
		Action:    auditlog.ActionSavePartner,
		PartnerID: p.ID,
		Details:   fmt.Sprintf("%s (%s)", p.Name, p.Type),
	})
	return s.store.GetPartner(ctx, p.ID)
}

// transactions lists the store; a stored record that cannot be read counts
// as an integrity violation like one the fold rejects.
func (s *Service) transactions(ctx context.Context, f store.Filter) ([]model.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, f)
	if err != nil {
		s.integrityError(err)
		return nil, err
	}
	return txs, nil
}

// compute sorts txs into ledger order and folds them.
func (s *Service) compute(txs []model.Transaction) (ledger.View, error) {
	start := time.Now()
	view, err := ledger.Compute(ledger.SortChronological(txs))
	if err != nil {
		s.integrityError(err)
		return ledger.View{}, err
	}
	s.metrics.RecordLedgerComputed(len(view.Lines), time.Since(start))
	return view, nil
}

func (s *Service) integrityError(err error) {
	var die *ledger.DataIntegrityError
	if !errors.As(err, &die) {
		return
	}
	s.metrics.RecordIntegrityError(die.Rule)
	s.logger.Warn("data integrity violation",
		zap.String("transaction_id", die.TransactionID),
		zap.String("partner_id", die.PartnerID),
		zap.String("rule", die.Rule),
		zap.String("reason", die.Reason),
	)
}

// publish delivers events; a failed delivery is logged and does not undo the write.
func (s *Service) publish(ctx context.Context, evs ...events.Event) {
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.logger.Warn("publishing events failed", zap.Int("count", len(evs)), zap.Error(err))
	}
}

func (s *Service) auditEntry(e auditlog.Entry) {
	if s.audit == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if e.Actor == "" {
		e.Actor = "system"
	}
	if err := s.audit.Append(e); err != nil {
		s.logger.Warn("writing audit log failed", zap.String("action", e.Action), zap.Error(err))
	}
}
