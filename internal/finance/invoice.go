package finance

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/curasupply/curaledger/internal/auditlog"
	"github.com/curasupply/curaledger/internal/id"
	"github.com/curasupply/curaledger/internal/model"
)

// CreateInvoice issues the next invoice number of the current year for
// partnerID and links it to orderNumber.
func (s *Service) CreateInvoice(ctx context.Context, actor, partnerID, orderNumber string) (model.Invoice, error) {
	if _, err := s.store.GetPartner(ctx, partnerID); err != nil {
		return model.Invoice{}, err
	}

	s.invoiceMu.Lock()
	defer s.invoiceMu.Unlock()

	existing, err := s.store.ListInvoices(ctx)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("listing invoices: %w", err)
	}

	year := s.now().Year()
	next := 1
	for _, inv := range existing {
		y, seq, err := id.ParseInvoiceNumber(inv.Number)
		if err != nil || y != year {
			continue
		}
		if seq >= next {
			next = seq + 1
		}
	}

	inv := model.Invoice{
		ID:          uuid.NewString(),
		Number:      id.FormatInvoiceNumber(year, next),
		PartnerID:   partnerID,
		OrderNumber: orderNumber,
	}
	if err := s.store.SaveInvoice(ctx, inv); err != nil {
		return model.Invoice{}, fmt.Errorf("saving invoice %s: %w", inv.Number, err)
	}

	s.auditEntry(auditlog.Entry{
		Actor:     actor,
		Action:    auditlog.ActionCreateInvoice,
		PartnerID: partnerID,
		Details:   fmt.Sprintf("%s order %s", inv.Number, orderNumber),
	})
	return inv, nil
}

// Invoices lists every invoice.
func (s *Service) Invoices(ctx context.Context) ([]model.Invoice, error) {
	return s.store.ListInvoices(ctx)
}
