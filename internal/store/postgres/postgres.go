// Package postgres is the PostgreSQL implementation of store.Store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LockTimeout     time.Duration `yaml:"lock_timeout"`
}

// DefaultConfig returns local development settings.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "curaledger",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		LockTimeout:     2 * time.Second,
	}
}

// DSN returns the lib/pq connection string. A non-empty URL wins over the
// individual fields.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Store is a PostgreSQL-backed store.Store.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// Open connects, verifies the connection and ensures the tables exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, store.Unavailable("ping", err)
	}

	s := New(db, cfg.LockTimeout)
	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing tables: %w", err)
	}
	return s, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

func (s *Store) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS partners (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			tax_number TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			cached_balance NUMERIC(15,2) NOT NULL DEFAULT 0,
			balance_updated_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE TABLE IF NOT EXISTS invoices (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			partner_id TEXT NOT NULL,
			order_number TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS finance_transactions (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			partner_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount NUMERIC(15,2) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			invoice_id TEXT REFERENCES invoices(id),
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_finance_transactions_partner ON finance_transactions(partner_id, created_at, seq)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// q returns the transaction started by WithPartnerLock, if ctx carries one.
func (s *Store) q(ctx context.Context) queryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// AppendTransaction implements store.TransactionStore.
func (s *Store) AppendTransaction(ctx context.Context, tx model.Transaction) (model.Transaction, error) {
	const query = `INSERT INTO finance_transactions (id, partner_id, kind, amount, created_at, invoice_id, description)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING seq`

	if tx.InvoiceID != "" {
		inv, err := s.GetInvoice(ctx, tx.InvoiceID)
		if err != nil {
			return model.Transaction{}, err
		}
		tx.OrderNumber = inv.OrderNumber
	}

	err := s.q(ctx).QueryRowContext(ctx, query,
		tx.ID, tx.PartnerID, string(tx.Kind), tx.Amount, tx.Timestamp, nullString(tx.InvoiceID), tx.Description,
	).Scan(&tx.Seq)
	if err != nil {
		return model.Transaction{}, classify("append_transaction", err)
	}
	return tx, nil
}

// ListTransactions implements store.TransactionStore.
func (s *Store) ListTransactions(ctx context.Context, f store.Filter) ([]model.Transaction, error) {
	const query = `SELECT t.seq, t.id, t.partner_id, t.kind, t.amount, t.created_at,
		COALESCE(t.invoice_id, ''), COALESCE(i.order_number, ''), t.description
	FROM finance_transactions t
	LEFT JOIN invoices i ON i.id = t.invoice_id
	WHERE ($1 = '' OR t.partner_id = $1)
	  AND ($2::timestamptz IS NULL OR t.created_at >= $2)
	  AND ($3::timestamptz IS NULL OR t.created_at < $3)
	ORDER BY t.created_at ASC, t.seq ASC`

	rows, err := s.q(ctx).QueryContext(ctx, query, f.PartnerID, nullTime(f.From), nullTime(f.To))
	if err != nil {
		return nil, classify("list_transactions", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var kind string
		if err := rows.Scan(&tx.Seq, &tx.ID, &tx.PartnerID, &kind, &tx.Amount, &tx.Timestamp,
			&tx.InvoiceID, &tx.OrderNumber, &tx.Description); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		tx.Kind = model.Kind(kind)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list_transactions", err)
	}
	return txs, nil
}

const partnerColumns = `id, name, type, tax_number, email, phone, address, cached_balance, balance_updated_at`

func scanPartner(row interface{ Scan(...any) error }) (model.Partner, error) {
	var p model.Partner
	var ptype string
	var updatedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &ptype, &p.TaxNumber, &p.Email, &p.Phone, &p.Address,
		&p.CachedBalance, &updatedAt); err != nil {
		return model.Partner{}, err
	}
	p.Type = model.PartnerType(ptype)
	if updatedAt.Valid {
		p.BalanceUpdatedAt = updatedAt.Time
	}
	return p, nil
}

// GetPartner implements store.PartnerStore.
func (s *Store) GetPartner(ctx context.Context, id string) (model.Partner, error) {
	query := `SELECT ` + partnerColumns + ` FROM partners WHERE id = $1`

	p, err := scanPartner(s.q(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Partner{}, fmt.Errorf("partner %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Partner{}, classify("get_partner", err)
	}
	return p, nil
}

// ListPartners implements store.PartnerStore.
func (s *Store) ListPartners(ctx context.Context) ([]model.Partner, error) {
	query := `SELECT ` + partnerColumns + ` FROM partners ORDER BY id`

	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list_partners", err)
	}
	defer rows.Close()

	var partners []model.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning partner: %w", err)
		}
		partners = append(partners, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list_partners", err)
	}
	return partners, nil
}

// SavePartner implements store.PartnerStore. The cached balance columns are
// left alone on update.
func (s *Store) SavePartner(ctx context.Context, p model.Partner) error {
	const query = `INSERT INTO partners (id, name, type, tax_number, email, phone, address)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, type = EXCLUDED.type, tax_number = EXCLUDED.tax_number,
		email = EXCLUDED.email, phone = EXCLUDED.phone, address = EXCLUDED.address`

	_, err := s.q(ctx).ExecContext(ctx, query, p.ID, p.Name, string(p.Type), p.TaxNumber, p.Email, p.Phone, p.Address)
	return classify("save_partner", err)
}

// UpdateCachedBalance implements store.PartnerStore.
func (s *Store) UpdateCachedBalance(ctx context.Context, id string, value decimal.Decimal, at time.Time) error {
	const query = `UPDATE partners SET cached_balance = $2, balance_updated_at = $3 WHERE id = $1`

	res, err := s.q(ctx).ExecContext(ctx, query, id, value, at)
	if err != nil {
		return classify("update_cached_balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("update_cached_balance", err)
	}
	if n == 0 {
		return fmt.Errorf("partner %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetInvoice implements store.PartnerStore.
func (s *Store) GetInvoice(ctx context.Context, id string) (model.Invoice, error) {
	const query = `SELECT id, number, partner_id, order_number FROM invoices WHERE id = $1`

	var inv model.Invoice
	err := s.q(ctx).QueryRowContext(ctx, query, id).Scan(&inv.ID, &inv.Number, &inv.PartnerID, &inv.OrderNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Invoice{}, fmt.Errorf("invoice %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.Invoice{}, classify("get_invoice", err)
	}
	return inv, nil
}

// ListInvoices implements store.PartnerStore.
func (s *Store) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	const query = `SELECT id, number, partner_id, order_number FROM invoices ORDER BY id`

	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list_invoices", err)
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		var inv model.Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.PartnerID, &inv.OrderNumber); err != nil {
			return nil, fmt.Errorf("scanning invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list_invoices", err)
	}
	return invoices, nil
}

// SaveInvoice implements store.PartnerStore.
func (s *Store) SaveInvoice(ctx context.Context, inv model.Invoice) error {
	const query = `INSERT INTO invoices (id, number, partner_id, order_number)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET number = EXCLUDED.number, partner_id = EXCLUDED.partner_id,
		order_number = EXCLUDED.order_number`

	_, err := s.q(ctx).ExecContext(ctx, query, inv.ID, inv.Number, inv.PartnerID, inv.OrderNumber)
	return classify("save_invoice", err)
}

// WithPartnerLock implements store.Locker. It opens a transaction, takes a
// row lock on the partner with SELECT ... FOR UPDATE and runs fn inside it.
// fn's store calls reuse the transaction through ctx.
func (s *Store) WithPartnerLock(ctx context.Context, partnerID string, fn func(ctx context.Context) error) (err error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		// SET LOCAL does not take bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = dbTx.ExecContext(ctx, stmt); err != nil {
			return classify("set_lock_timeout", err)
		}
	}

	var locked string
	err = dbTx.QueryRowContext(ctx, `SELECT id FROM partners WHERE id = $1 FOR UPDATE`, partnerID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("partner %s: %w", partnerID, store.ErrNotFound)
	}
	if err != nil {
		return classify("lock_partner", err)
	}

	if err = fn(context.WithValue(ctx, txKey{}, dbTx)); err != nil {
		return err
	}
	if err = dbTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// PostgreSQL error codes the store maps onto store errors.
const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
	codeSerialization    = "40001"
	codeDeadlockDetected = "40P01"
)

// classify maps driver errors onto store errors.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.Unavailable(op, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
		case codeLockNotAvailable, codeSerialization, codeDeadlockDetected:
			return fmt.Errorf("%s: %w: %v", op, store.ErrContention, pqErr.Message)
		}
		if pqErr.Code.Class() == "08" {
			return store.Unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, pq.ErrSSLNotSupported) {
		return store.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

var _ store.Store = (*Store)(nil)
