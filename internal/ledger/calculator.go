package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/model"
)

// Line is one transaction in a ledger view, annotated with the running
// balance after it was applied.
type Line struct {
	Transaction  model.Transaction
	PartnerName  string
	SignedAmount decimal.Decimal
	Balance      decimal.Decimal
}

// Summary holds the aggregate totals of a ledger view.
type Summary struct {
	TotalDebt        decimal.Decimal
	TotalCredit      decimal.Decimal
	CurrentBalance   decimal.Decimal
	TransactionCount int
}

// View is a read-only projection of a ledger: lines newest first plus totals.
type View struct {
	Lines   []Line
	Summary Summary
}

// Compute folds transactions into a View.
//
// txs must already be in ledger order (ascending timestamp, then Seq); see
// SortChronological. Balances are accumulated oldest first and the lines are
// reversed afterwards for display. Any malformed record aborts the fold with a
// *DataIntegrityError and a zero View.
func Compute(txs []model.Transaction) (View, error) {
	view := View{Summary: zeroSummary()}
	if len(txs) == 0 {
		return view, nil
	}

	lines := make([]Line, 0, len(txs))
	balance := decimal.Zero
	totalDebt := decimal.Zero
	totalCredit := decimal.Zero

	for _, tx := range txs {
		if err := Validate(tx); err != nil {
			return View{Summary: zeroSummary()}, err
		}

		switch tx.Kind {
		case model.KindDebt:
			balance = balance.Add(tx.Amount)
			totalDebt = totalDebt.Add(tx.Amount)
		case model.KindCredit:
			balance = balance.Sub(tx.Amount)
			totalCredit = totalCredit.Add(tx.Amount)
		}

		lines = append(lines, Line{
			Transaction:  tx,
			SignedAmount: tx.Signed(),
			Balance:      balance,
		})
	}

	// Presentation order is a separate pass; balances are already fixed.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}

	view.Lines = lines
	view.Summary = Summary{
		TotalDebt:        totalDebt,
		TotalCredit:      totalCredit,
		CurrentBalance:   balance,
		TransactionCount: len(lines),
	}
	return view, nil
}

// SortChronological returns a copy of txs in ledger order.
func SortChronological(txs []model.Transaction) []model.Transaction {
	sorted := make([]model.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Before(sorted[j])
	})
	return sorted
}

// WithPartnerNames fills Line.PartnerName from names, keyed by partner ID.
func (v View) WithPartnerNames(names map[string]string) View {
	for i := range v.Lines {
		v.Lines[i].PartnerName = names[v.Lines[i].Transaction.PartnerID]
	}
	return v
}

// GroupByPartner splits txs by partner, preserving relative order.
func GroupByPartner(txs []model.Transaction) map[string][]model.Transaction {
	groups := make(map[string][]model.Transaction)
	for _, tx := range txs {
		groups[tx.PartnerID] = append(groups[tx.PartnerID], tx)
	}
	return groups
}

func zeroSummary() Summary {
	return Summary{
		TotalDebt:      decimal.Zero,
		TotalCredit:    decimal.Zero,
		CurrentBalance: decimal.Zero,
	}
}
