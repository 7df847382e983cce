package csvstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/model"
)

// TransactionHeader is the CSV header for transactions.csv.
const TransactionHeader = "seq,id,timestamp,partner_id,kind,amount,invoice_id,order_number,description"

// PartnerHeader is the CSV header for partners.csv.
const PartnerHeader = "id,name,type,tax_number,email,phone,address,cached_balance,balance_updated_at"

// InvoiceHeader is the CSV header for invoices.csv.
const InvoiceHeader = "id,number,partner_id,order_number"

const timeFormat = time.RFC3339Nano

const (
	txFields   = 9
	colSeq     = 0
	colID      = 1
	colTime    = 2
	colPartner = 3
	colKind    = 4
	colAmount  = 5
	colInvoice = 6
	colOrder   = 7
	colDesc    = 8
)

const (
	partnerFields = 9
	colPID        = 0
	colPName      = 1
	colPType      = 2
	colPTax       = 3
	colPEmail     = 4
	colPPhone     = 5
	colPAddress   = 6
	colPBalance   = 7
	colPBalanceAt = 8
)

const (
	invoiceFields = 4
	colIID        = 0
	colINumber    = 1
	colIPartner   = 2
	colIOrder     = 3
)

// RowError is a transactions.csv row with a cell that does not parse. Tx
// holds what did parse, so the row can still be pinned to its partner.
type RowError struct {
	Row int
	Tx  model.Transaction
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// IntegrityError restates e as a data integrity violation of its partner.
func (e *RowError) IntegrityError() *ledger.DataIntegrityError {
	return &ledger.DataIntegrityError{
		TransactionID: e.Tx.ID,
		PartnerID:     e.Tx.PartnerID,
		Rule:          ledger.RuleMalformedRecord,
		Reason:        e.Error(),
	}
}

// ReadTransactions reads all transactions from a transactions.csv reader.
// Rows with an unparseable cell are returned in bad instead of txs; only a
// structurally broken file fails the read.
func ReadTransactions(r io.Reader) (txs []model.Transaction, bad []*RowError, err error) {
	records, err := readRecords(r, txFields)
	if err != nil {
		return nil, nil, fmt.Errorf("reading transactions CSV: %w", err)
	}

	for i, rec := range records {
		tx, err := UnmarshalTransaction(rec)
		if err != nil {
			bad = append(bad, &RowError{Row: i + 2, Tx: tx, Err: err})
			continue
		}
		txs = append(txs, tx)
	}
	return txs, bad, nil
}

// AppendTransactions writes transactions to w without a header.
func AppendTransactions(w io.Writer, txs []model.Transaction) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	for i, tx := range txs {
		if err := cw.Write(MarshalTransaction(tx)); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	return cw.Error()
}

// MarshalTransaction converts a Transaction to a CSV row.
func MarshalTransaction(tx model.Transaction) []string {
	row := make([]string, txFields)
	row[colSeq] = strconv.FormatInt(tx.Seq, 10)
	row[colID] = tx.ID
	row[colTime] = tx.Timestamp.UTC().Format(timeFormat)
	row[colPartner] = tx.PartnerID
	row[colKind] = string(tx.Kind)
	row[colAmount] = tx.Amount.StringFixed(2)
	row[colInvoice] = tx.InvoiceID
	row[colOrder] = tx.OrderNumber
	row[colDesc] = tx.Description
	return row
}

// UnmarshalTransaction converts a CSV row to a Transaction. Semantic checks
// (kind, sign of amount) are left to the ledger. A cell that does not parse
// is left zero in the returned Transaction and reported in the error.
func UnmarshalTransaction(record []string) (model.Transaction, error) {
	if len(record) != txFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", txFields, len(record))
	}

	tx := model.Transaction{
		ID:          record[colID],
		PartnerID:   record[colPartner],
		Kind:        model.Kind(record[colKind]),
		InvoiceID:   record[colInvoice],
		OrderNumber: record[colOrder],
		Description: record[colDesc],
	}

	var errs error
	seq, err := strconv.ParseInt(record[colSeq], 10, 64)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("parsing seq %q: %w", record[colSeq], err))
	} else {
		tx.Seq = seq
	}

	ts, err := time.Parse(timeFormat, record[colTime])
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("parsing timestamp %q: %w", record[colTime], err))
	} else {
		tx.Timestamp = ts
	}

	if record[colAmount] != "" {
		amount, err := decimal.NewFromString(record[colAmount])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("parsing amount %q: %w", record[colAmount], err))
		} else {
			tx.Amount = amount
		}
	}

	return tx, errs
}

// ReadPartners reads partners.csv.
func ReadPartners(r io.Reader) ([]model.Partner, error) {
	records, err := readRecords(r, partnerFields)
	if err != nil {
		return nil, fmt.Errorf("reading partners CSV: %w", err)
	}

	var partners []model.Partner
	for i, rec := range records {
		p, err := UnmarshalPartner(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		partners = append(partners, p)
	}
	return partners, nil
}

// WritePartners writes partners.csv including the header.
func WritePartners(w io.Writer, partners []model.Partner) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(PartnerHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, p := range partners {
		if err := cw.Write(MarshalPartner(p)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// MarshalPartner converts a Partner to a CSV row.
func MarshalPartner(p model.Partner) []string {
	row := make([]string, partnerFields)
	row[colPID] = p.ID
	row[colPName] = p.Name
	row[colPType] = string(p.Type)
	row[colPTax] = p.TaxNumber
	row[colPEmail] = p.Email
	row[colPPhone] = p.Phone
	row[colPAddress] = p.Address
	row[colPBalance] = p.CachedBalance.StringFixed(2)
	if !p.BalanceUpdatedAt.IsZero() {
		row[colPBalanceAt] = p.BalanceUpdatedAt.UTC().Format(timeFormat)
	}
	return row
}

// UnmarshalPartner converts a CSV row to a Partner.
func UnmarshalPartner(record []string) (model.Partner, error) {
	if len(record) != partnerFields {
		return model.Partner{}, fmt.Errorf("expected %d fields, got %d", partnerFields, len(record))
	}

	balance := decimal.Zero
	var err error
	if record[colPBalance] != "" {
		balance, err = decimal.NewFromString(record[colPBalance])
		if err != nil {
			return model.Partner{}, fmt.Errorf("parsing cached_balance %q: %w", record[colPBalance], err)
		}
	}

	var updatedAt time.Time
	if record[colPBalanceAt] != "" {
		updatedAt, err = time.Parse(timeFormat, record[colPBalanceAt])
		if err != nil {
			return model.Partner{}, fmt.Errorf("parsing balance_updated_at %q: %w", record[colPBalanceAt], err)
		}
	}

	return model.Partner{
		ID:               record[colPID],
		Name:             record[colPName],
		Type:             model.PartnerType(record[colPType]),
		TaxNumber:        record[colPTax],
		Email:            record[colPEmail],
		Phone:            record[colPPhone],
		Address:          record[colPAddress],
		CachedBalance:    balance,
		BalanceUpdatedAt: updatedAt,
	}, nil
}

// ReadInvoices reads invoices.csv.
func ReadInvoices(r io.Reader) ([]model.Invoice, error) {
	records, err := readRecords(r, invoiceFields)
	if err != nil {
		return nil, fmt.Errorf("reading invoices CSV: %w", err)
	}

	invoices := make([]model.Invoice, 0, len(records))
	for _, rec := range records {
		invoices = append(invoices, model.Invoice{
			ID:          rec[colIID],
			Number:      rec[colINumber],
			PartnerID:   rec[colIPartner],
			OrderNumber: rec[colIOrder],
		})
	}
	return invoices, nil
}

// WriteInvoices writes invoices.csv including the header.
func WriteInvoices(w io.Writer, invoices []model.Invoice) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(InvoiceHeader, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, inv := range invoices {
		if err := cw.Write([]string{inv.ID, inv.Number, inv.PartnerID, inv.OrderNumber}); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// readRecords returns all rows after the header.
func readRecords(r io.Reader, fields int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = fields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) <= 1 {
		return nil, nil
	}
	return records[1:], nil
}
