package finance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// PartnerError records why one partner's ledger could not be built.
type PartnerError struct {
	PartnerID string
	Err       error
}

func (e PartnerError) Error() string {
	return fmt.Sprintf("partner %s: %v", e.PartnerID, e.Err)
}

func (e PartnerError) Unwrap() error { return e.Err }

// PartnerStatement is one successfully computed entry of a Report.
type PartnerStatement struct {
	Partner   model.Partner
	Statement Statement
}

// Report holds every partner's statement. A partner whose ledger fails is
// listed in Errors and left out of Partners; the others are unaffected.
type Report struct {
	Partners []PartnerStatement
	Errors   []PartnerError
}

// Err combines the per-partner failures, or returns nil.
func (r Report) Err() error {
	var err error
	for _, pe := range r.Errors {
		err = multierr.Append(err, pe)
	}
	return err
}

// Report computes each partner's statement over [f.From, f.To) independently.
// f.PartnerID is ignored. The returned error is only for failures that stop
// the whole report, such as listing partners.
func (s *Service) Report(ctx context.Context, f store.Filter) (Report, error) {
	partners, err := s.store.ListPartners(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing partners: %w", err)
	}

	names := make(map[string]string, len(partners))
	for _, p := range partners {
		names[p.ID] = p.Name
	}

	var (
		mu     sync.Mutex
		report Report
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.reportWorkers)

	for _, p := range partners {
		g.Go(func() error {
			pf := f
			pf.PartnerID = p.ID
			st, err := s.statement(gctx, pf, names)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("partner ledger unavailable", zap.String("partner_id", p.ID), zap.Error(err))
				report.Errors = append(report.Errors, PartnerError{PartnerID: p.ID, Err: err})
				return nil
			}
			report.Partners = append(report.Partners, PartnerStatement{Partner: p, Statement: st})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	sort.Slice(report.Partners, func(i, j int) bool {
		return report.Partners[i].Partner.ID < report.Partners[j].Partner.ID
	})
	sort.Slice(report.Errors, func(i, j int) bool {
		return report.Errors[i].PartnerID < report.Errors[j].PartnerID
	})
	return report, nil
}
