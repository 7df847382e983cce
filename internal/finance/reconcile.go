package finance

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curasupply/curaledger/internal/auditlog"
	"github.com/curasupply/curaledger/internal/store"
)

// Drift is a partner whose cached balance disagrees with the fold.
type Drift struct {
	PartnerID string
	Cached    decimal.Decimal
	Computed  decimal.Decimal
	Repaired  bool
}

// Reconciliation is the outcome of Reconcile.
type Reconciliation struct {
	Checked int
	Drift   []Drift
	Errors  []PartnerError
}

// Recompute is RecomputeAndStore on behalf of actor, recorded in the audit log.
func (s *Service) Recompute(ctx context.Context, actor, partnerID string) (decimal.Decimal, error) {
	if _, err := s.store.GetPartner(ctx, partnerID); err != nil {
		return decimal.Zero, err
	}
	balance, err := s.RecomputeAndStore(ctx, partnerID)
	if err != nil {
		return decimal.Zero, err
	}
	s.auditEntry(auditlog.Entry{
		Actor:     actor,
		Action:    auditlog.ActionRecompute,
		PartnerID: partnerID,
		Details:   balance.StringFixed(2),
	})
	return balance, nil
}

// Reconcile compares every partner's cached balance with the fold of its
// transactions. With repair set, drifted partners are recomputed and stored.
// A partner that cannot be folded is reported in Errors and skipped.
func (s *Service) Reconcile(ctx context.Context, actor string, repair bool) (Reconciliation, error) {
	partners, err := s.store.ListPartners(ctx)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("listing partners: %w", err)
	}

	var result Reconciliation
	for _, p := range partners {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++

		cached, computed, err := s.compare(ctx, p.ID)
		if err != nil {
			result.Errors = append(result.Errors, PartnerError{PartnerID: p.ID, Err: err})
			continue
		}
		if computed.Equal(cached) {
			continue
		}

		d := Drift{PartnerID: p.ID, Cached: cached, Computed: computed}
		s.logger.Warn("cached balance drift",
			zap.String("partner_id", p.ID),
			zap.String("cached", cached.StringFixed(2)),
			zap.String("computed", computed.StringFixed(2)),
		)
		if repair {
			if _, err := s.RecomputeAndStore(ctx, p.ID); err != nil {
				result.Errors = append(result.Errors, PartnerError{PartnerID: p.ID, Err: err})
			} else {
				d.Repaired = true
				s.auditEntry(auditlog.Entry{
					Actor:     actor,
					Action:    auditlog.ActionRepairCache,
					PartnerID: p.ID,
					Details:   fmt.Sprintf("%s -> %s", cached.StringFixed(2), computed.StringFixed(2)),
				})
			}
		}
		result.Drift = append(result.Drift, d)
	}

	s.metrics.RecordCacheDrift(len(result.Drift))
	return result, nil
}

// compare reads the cached balance and folds the log under the partner
// lock, so a write in progress cannot show up as drift.
func (s *Service) compare(ctx context.Context, partnerID string) (cached, computed decimal.Decimal, err error) {
	err = s.store.WithPartnerLock(ctx, partnerID, func(ctx context.Context) error {
		p, err := s.store.GetPartner(ctx, partnerID)
		if err != nil {
			return err
		}
		cached = p.CachedBalance
		computed, err = s.fold(ctx, partnerID)
		return err
	})
	return cached, computed, err
}

func (s *Service) fold(ctx context.Context, partnerID string) (decimal.Decimal, error) {
	txs, err := s.transactions(ctx, store.Filter{PartnerID: partnerID})
	if err != nil {
		return decimal.Zero, err
	}
	view, err := s.compute(txs)
	if err != nil {
		return decimal.Zero, err
	}
	return view.Summary.CurrentBalance, nil
}
