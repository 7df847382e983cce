package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// Store is an in-memory store.Store. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	transactions []model.Transaction
	txIDs        map[string]bool
	partners     map[string]model.Partner
	invoices     map[string]model.Invoice
	seq          int64
	locks        *store.KeyedLock
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		txIDs:    make(map[string]bool),
		partners: make(map[string]model.Partner),
		invoices: make(map[string]model.Invoice),
		locks:    store.NewKeyedLock(),
	}
}

// AppendTransaction implements store.TransactionStore.
func (s *Store) AppendTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return model.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txIDs[tx.ID] {
		return model.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, store.ErrDuplicate)
	}
	if tx.InvoiceID != "" {
		inv, ok := s.invoices[tx.InvoiceID]
		if !ok {
			return model.Transaction{}, fmt.Errorf("invoice %s: %w", tx.InvoiceID, store.ErrNotFound)
		}
		tx.OrderNumber = inv.OrderNumber
	}

	s.seq++
	tx.Seq = s.seq
	s.transactions = append(s.transactions, tx)
	s.txIDs[tx.ID] = true
	return tx, nil
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context, f store.Filter) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, tx := range s.transactions {
		if f.Match(tx) {
			result = append(result, tx)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// GetPartner implements store.PartnerStore.
func (s *Store) GetPartner(ctx context.Context, id string) (model.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.partners[id]
	if !ok {
		return model.Partner{}, fmt.Errorf("partner %s: %w", id, store.ErrNotFound)
	}
	return p, nil
}

// ListPartners implements store.PartnerStore. Partners are ordered by ID.
func (s *Store) ListPartners(ctx context.Context) ([]model.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Partner, 0, len(s.partners))
	for _, p := range s.partners {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SavePartner implements store.PartnerStore. The cached balance of an
// existing partner is preserved; only UpdateCachedBalance writes it.
func (s *Store) SavePartner(ctx context.Context, p model.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.partners[p.ID]; ok {
		p.CachedBalance = existing.CachedBalance
		p.BalanceUpdatedAt = existing.BalanceUpdatedAt
	}
	s.partners[p.ID] = p
	return nil
}

// UpdateCachedBalance implements store.PartnerStore.
func (s *Store) UpdateCachedBalance(ctx context.Context, id string, value decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.partners[id]
	if !ok {
		return fmt.Errorf("partner %s: %w", id, store.ErrNotFound)
	}
	p.CachedBalance = value
	p.BalanceUpdatedAt = at
	s.partners[id] = p
	return nil
}

// GetInvoice implements store.PartnerStore.
func (s *Store) GetInvoice(ctx context.Context, id string) (model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return model.Invoice{}, fmt.Errorf("invoice %s: %w", id, store.ErrNotFound)
	}
	return inv, nil
}

// ListInvoices implements store.PartnerStore. Invoices are ordered by ID.
func (s *Store) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		result = append(result, inv)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveInvoice implements store.PartnerStore.
func (s *Store) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invoices[inv.ID] = inv
	return nil
}

// WithPartnerLock implements store.Locker.
func (s *Store) WithPartnerLock(ctx context.Context, partnerID string, fn func(ctx context.Context) error) error {
	return s.locks.Do(ctx, partnerID, fn)
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
