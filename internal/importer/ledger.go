package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/id"
	"github.com/curasupply/curaledger/internal/model"
)

// LedgerParser reads curaledger's own transaction export:
//
//	id,date,partner_id,kind,amount,invoice_id,description
//
// An empty id is derived from the row. Dates are YYYY-MM-DD or RFC 3339.
type LedgerParser struct{}

const (
	ledgerNumFields = 7
	ledgerColID     = 0
	ledgerColDate   = 1
	ledgerColPID    = 2
	ledgerColKind   = 3
	ledgerColAmount = 4
	ledgerColIID    = 5
	ledgerColDesc   = 6
)

// Format returns the parser name.
func (p *LedgerParser) Format() string { return "ledger" }

// Parse reads a ledger CSV. Kind and amount are not checked here; the
// finance service rejects invalid rows when they are recorded.
func (p *LedgerParser) Parse(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = ledgerNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	seen := make(map[string]int)
	var txs []model.Transaction
	for i, rec := range records[1:] {
		tx, err := parseLedgerRow(rec, seen)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parseLedgerRow(rec []string, seen map[string]int) (model.Transaction, error) {
	ts, err := parseLedgerDate(rec[ledgerColDate])
	if err != nil {
		return model.Transaction{}, err
	}

	amount, err := decimal.NewFromString(rec[ledgerColAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", rec[ledgerColAmount], err)
	}

	tx := model.Transaction{
		PartnerID:   strings.TrimSpace(rec[ledgerColPID]),
		Kind:        model.Kind(strings.ToUpper(strings.TrimSpace(rec[ledgerColKind]))),
		Amount:      amount,
		Timestamp:   ts,
		InvoiceID:   strings.TrimSpace(rec[ledgerColIID]),
		Description: rec[ledgerColDesc],
	}

	if raw := strings.TrimSpace(rec[ledgerColID]); raw != "" {
		if tx.ID, err = id.ParseTransactionID(raw); err != nil {
			return model.Transaction{}, err
		}
		return tx, nil
	}
	tx.ID = rowID(seen, "ledger", rec[ledgerColDate], tx.PartnerID, string(tx.Kind), amount.String(), tx.InvoiceID, tx.Description)
	return tx, nil
}

func parseLedgerDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.ParseInLocation("2006-01-02", v, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: want YYYY-MM-DD or RFC 3339", v)
	}
	return t, nil
}
