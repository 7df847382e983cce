package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/id"
	"github.com/curasupply/curaledger/internal/model"
)

// ChaseParser parses Chase business checking CSV exports.
//
// Money received (positive amount) is a CREDIT to the paying partner; money
// sent (negative amount) is a DEBT to the supplier paid. The counterparty is
// only named in the description, so PartnerID is left for MatchPartners.
type ChaseParser struct{}

const (
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColBalance = 5
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return "chase" }

// Parse reads a Chase CSV and returns unassigned transactions.
func (p *ChaseParser) Parse(r io.Reader) ([]model.Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	seen := make(map[string]int)
	var txs []model.Transaction
	for i, rec := range records[1:] {
		tx, err := parseChaseRow(rec, seen)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parseChaseRow(rec []string, seen map[string]int) (model.Transaction, error) {
	date, err := time.ParseInLocation(chaseDateFormat, rec[chaseColDate], time.UTC)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err)
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err)
	}

	kind := model.KindCredit
	if amount.IsNegative() {
		kind = model.KindDebt
	}

	desc := rec[chaseColDesc]
	return model.Transaction{
		ID:          rowID(seen, "chase", date.Format("20060102"), desc, amount.String(), rec[chaseColBalance]),
		Kind:        kind,
		Amount:      amount.Abs(),
		Timestamp:   date,
		Description: desc,
	}, nil
}

// rowID derives a transaction ID from a row's identifying fields. Identical
// rows within one file get distinct IDs by their order of appearance.
func rowID(seen map[string]int, source string, fields ...string) string {
	base := id.ImportTransactionID(source, fields...)
	n := seen[base]
	seen[base]++
	if n == 0 {
		return base
	}
	return id.ImportTransactionID(source, append(fields, fmt.Sprint(n))...)
}
