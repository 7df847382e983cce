// Package store defines the persistence contracts of the ledger engine.
// Implementations live in the memory, csvstore and postgres subpackages.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/model"
)

// Filter narrows a transaction listing. Zero fields are ignored. From is
// inclusive and To exclusive.
type Filter struct {
	PartnerID string
	From      time.Time
	To        time.Time
}

// Match reports whether tx passes the filter.
func (f Filter) Match(tx model.Transaction) bool {
	if f.PartnerID != "" && tx.PartnerID != f.PartnerID {
		return false
	}
	if !f.From.IsZero() && tx.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.Timestamp.Before(f.To) {
		return false
	}
	return true
}

// TransactionStore is the append-only transaction log.
type TransactionStore interface {
	// AppendTransaction stores tx, assigns its Seq and resolves OrderNumber
	// from the referenced invoice. The stored record is returned.
	AppendTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error)

	// ListTransactions returns matching transactions ascending by
	// (Timestamp, Seq).
	ListTransactions(ctx context.Context, f Filter) ([]model.Transaction, error)
}

// PartnerStore persists partners, invoices and the cached balance column.
type PartnerStore interface {
	GetPartner(ctx context.Context, id string) (model.Partner, error)
	ListPartners(ctx context.Context) ([]model.Partner, error)
	SavePartner(ctx context.Context, p model.Partner) error
	UpdateCachedBalance(ctx context.Context, id string, value decimal.Decimal, at time.Time) error

	GetInvoice(ctx context.Context, id string) (model.Invoice, error)
	ListInvoices(ctx context.Context) ([]model.Invoice, error)
	SaveInvoice(ctx context.Context, inv model.Invoice) error
}

// Locker serializes cached-balance recomputation per partner.
type Locker interface {
	// WithPartnerLock runs fn while holding the partner's lock. Store calls
	// made with the ctx passed to fn take part in the locked section. If the
	// lock cannot be taken before ctx expires, ErrContention is returned.
	WithPartnerLock(ctx context.Context, partnerID string, fn func(ctx context.Context) error) error
}

// Store is the full persistence surface used by the finance service.
type Store interface {
	TransactionStore
	PartnerStore
	Locker
	Close() error
}
