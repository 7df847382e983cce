package finance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// Statement is a ledger view over a date range. Running balances carry the
// history before the range, which is summarized as Opening; Summary totals
// cover only the lines shown, so CurrentBalance = Opening + TotalDebt - TotalCredit.
type Statement struct {
	ledger.View
	Opening decimal.Decimal
	Filter  store.Filter
}

// Statement builds the ledger for f. An empty f.PartnerID spans all
// partners in one running balance, the admin "all transactions" view.
func (s *Service) Statement(ctx context.Context, f store.Filter) (Statement, error) {
	if f.PartnerID != "" {
		if _, err := s.store.GetPartner(ctx, f.PartnerID); err != nil {
			return Statement{}, err
		}
	}

	names, err := s.partnerNames(ctx)
	if err != nil {
		return Statement{}, err
	}
	return s.statement(ctx, f, names)
}

func (s *Service) statement(ctx context.Context, f store.Filter, names map[string]string) (Statement, error) {
	// History before From still moves the balance, so list from the start.
	txs, err := s.transactions(ctx, store.Filter{PartnerID: f.PartnerID, To: f.To})
	if err != nil {
		return Statement{}, fmt.Errorf("listing transactions: %w", err)
	}
	view, err := s.compute(txs)
	if err != nil {
		return Statement{}, err
	}
	return trim(view.WithPartnerNames(names), f), nil
}

// trim drops lines before f.From and restates the summary over what is left.
func trim(view ledger.View, f store.Filter) Statement {
	st := Statement{View: view, Opening: decimal.Zero, Filter: f}
	if f.From.IsZero() {
		return st
	}

	// Lines are newest first; find the first one older than From.
	cut := len(view.Lines)
	for i, line := range view.Lines {
		if line.Transaction.Timestamp.Before(f.From) {
			cut = i
			break
		}
	}
	if cut < len(view.Lines) {
		st.Opening = view.Lines[cut].Balance
	}

	kept := view.Lines[:cut]
	summary := ledger.Summary{
		TotalDebt:        decimal.Zero,
		TotalCredit:      decimal.Zero,
		CurrentBalance:   view.Summary.CurrentBalance,
		TransactionCount: len(kept),
	}
	for _, line := range kept {
		switch line.Transaction.Kind {
		case model.KindDebt:
			summary.TotalDebt = summary.TotalDebt.Add(line.Transaction.Amount)
		case model.KindCredit:
			summary.TotalCredit = summary.TotalCredit.Add(line.Transaction.Amount)
		}
	}

	st.Lines = kept
	st.Summary = summary
	return st
}

func (s *Service) partnerNames(ctx context.Context) (map[string]string, error) {
	partners, err := s.store.ListPartners(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing partners: %w", err)
	}
	names := make(map[string]string, len(partners))
	for _, p := range partners {
		names[p.ID] = p.Name
	}
	return names, nil
}
