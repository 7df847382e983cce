// Package csvstore keeps the ledger in plain CSV files under one directory:
// transactions.csv (append-only), partners.csv and invoices.csv.
package csvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

const (
	transactionsFile = "transactions.csv"
	partnersFile     = "partners.csv"
	invoicesFile     = "invoices.csv"
)

// Store is a file-backed store.Store. A single process may use a directory
// at a time.
type Store struct {
	dir   string
	mu    sync.Mutex
	locks *store.KeyedLock
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Store{dir: dir, locks: store.NewKeyedLock()}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// AppendTransaction implements store.TransactionStore.
func (s *Store) AppendTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return model.Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, bad, err := s.readTransactions()
	if err != nil {
		return model.Transaction{}, err
	}
	for _, b := range bad {
		existing = append(existing, b.Tx)
	}

	var maxSeq int64
	for _, e := range existing {
		if e.ID == tx.ID {
			return model.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, store.ErrDuplicate)
		}
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}

	if tx.InvoiceID != "" {
		inv, err := s.findInvoice(tx.InvoiceID)
		if err != nil {
			return model.Transaction{}, err
		}
		tx.OrderNumber = inv.OrderNumber
	}
	tx.Seq = maxSeq + 1

	path := filepath.Join(s.dir, transactionsFile)
	isNew := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		isNew = true
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("opening transactions: %w", err)
	}
	defer f.Close()

	if isNew {
		if _, err := fmt.Fprintln(f, TransactionHeader); err != nil {
			return model.Transaction{}, fmt.Errorf("writing header: %w", err)
		}
	}
	if err := AppendTransactions(f, []model.Transaction{tx}); err != nil {
		return model.Transaction{}, fmt.Errorf("appending transaction: %w", err)
	}
	return tx, nil
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context, f store.Filter) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	all, bad, err := s.readTransactions()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	// A malformed row fails its own partner's listing only. Its timestamp
	// may be the broken cell, so the date range is not consulted.
	for _, b := range bad {
		if f.PartnerID == "" || b.Tx.PartnerID == f.PartnerID {
			return nil, b.IntegrityError()
		}
	}

	var result []model.Transaction
	for _, tx := range all {
		if f.Match(tx) {
			result = append(result, tx)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

// GetPartner implements store.PartnerStore.
func (s *Store) GetPartner(ctx context.Context, id string) (model.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	partners, err := s.readPartners()
	if err != nil {
		return model.Partner{}, err
	}
	for _, p := range partners {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Partner{}, fmt.Errorf("partner %s: %w", id, store.ErrNotFound)
}

// ListPartners implements store.PartnerStore. Partners are ordered by ID.
func (s *Store) ListPartners(ctx context.Context) ([]model.Partner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	partners, err := s.readPartners()
	if err != nil {
		return nil, err
	}
	sort.Slice(partners, func(i, j int) bool { return partners[i].ID < partners[j].ID })
	return partners, nil
}

// SavePartner implements store.PartnerStore. The cached balance of an
// existing partner is preserved.
func (s *Store) SavePartner(ctx context.Context, p model.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partners, err := s.readPartners()
	if err != nil {
		return err
	}

	replaced := false
	for i := range partners {
		if partners[i].ID == p.ID {
			p.CachedBalance = partners[i].CachedBalance
			p.BalanceUpdatedAt = partners[i].BalanceUpdatedAt
			partners[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		p.CachedBalance = decimal.Zero
		partners = append(partners, p)
	}
	return s.writeFile(partnersFile, func(w io.Writer) error { return WritePartners(w, partners) })
}

// UpdateCachedBalance implements store.PartnerStore.
func (s *Store) UpdateCachedBalance(ctx context.Context, id string, value decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	partners, err := s.readPartners()
	if err != nil {
		return err
	}
	for i := range partners {
		if partners[i].ID == id {
			partners[i].CachedBalance = value
			partners[i].BalanceUpdatedAt = at
			return s.writeFile(partnersFile, func(w io.Writer) error { return WritePartners(w, partners) })
		}
	}
	return fmt.Errorf("partner %s: %w", id, store.ErrNotFound)
}

// GetInvoice implements store.PartnerStore.
func (s *Store) GetInvoice(ctx context.Context, id string) (model.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findInvoice(id)
}

// ListInvoices implements store.PartnerStore.
func (s *Store) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readInvoices()
}

// SaveInvoice implements store.PartnerStore.
func (s *Store) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoices, err := s.readInvoices()
	if err != nil {
		return err
	}
	replaced := false
	for i := range invoices {
		if invoices[i].ID == inv.ID {
			invoices[i] = inv
			replaced = true
		}
	}
	if !replaced {
		invoices = append(invoices, inv)
	}
	return s.writeFile(invoicesFile, func(w io.Writer) error { return WriteInvoices(w, invoices) })
}

// WithPartnerLock implements store.Locker.
func (s *Store) WithPartnerLock(ctx context.Context, partnerID string, fn func(ctx context.Context) error) error {
	return s.locks.Do(ctx, partnerID, fn)
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

func (s *Store) findInvoice(id string) (model.Invoice, error) {
	invoices, err := s.readInvoices()
	if err != nil {
		return model.Invoice{}, err
	}
	for _, inv := range invoices {
		if inv.ID == id {
			return inv, nil
		}
	}
	return model.Invoice{}, fmt.Errorf("invoice %s: %w", id, store.ErrNotFound)
}

func (s *Store) readTransactions() ([]model.Transaction, []*RowError, error) {
	var (
		txs []model.Transaction
		bad []*RowError
	)
	err := s.readFile(transactionsFile, func(r io.Reader) (err error) {
		txs, bad, err = ReadTransactions(r)
		return err
	})
	return txs, bad, err
}

func (s *Store) readPartners() ([]model.Partner, error) {
	var partners []model.Partner
	err := s.readFile(partnersFile, func(r io.Reader) (err error) {
		partners, err = ReadPartners(r)
		return err
	})
	return partners, err
}

func (s *Store) readInvoices() ([]model.Invoice, error) {
	var invoices []model.Invoice
	err := s.readFile(invoicesFile, func(r io.Reader) (err error) {
		invoices, err = ReadInvoices(r)
		return err
	})
	return invoices, err
}

// readFile opens name and hands it to read. A missing file reads as empty.
func (s *Store) readFile(name string, read func(r io.Reader) error) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := read(f); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

// writeFile replaces name atomically with the output of write.
func (s *Store) writeFile(name string, write func(w io.Writer) error) error {
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

var _ store.Store = (*Store)(nil)
