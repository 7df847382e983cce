// Package storetest holds a conformance suite shared by store.Store
// implementations.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

var base = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

// Run exercises a store.Store produced by newStore. Each subtest gets a
// fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("AppendAssignsSeq", func(t *testing.T) { testAppendAssignsSeq(t, newStore(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("ListFilter", func(t *testing.T) { testListFilter(t, newStore(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, newStore(t)) })
	t.Run("InvoiceOrderNumber", func(t *testing.T) { testInvoiceOrderNumber(t, newStore(t)) })
	t.Run("Partners", func(t *testing.T) { testPartners(t, newStore(t)) })
	t.Run("CachedBalance", func(t *testing.T) { testCachedBalance(t, newStore(t)) })
	t.Run("PartnerLock", func(t *testing.T) { testPartnerLock(t, newStore(t)) })
}

// Tx builds a valid transaction for partnerID.
func Tx(id, partnerID string, kind model.Kind, amount string, ts time.Time) model.Transaction {
	return model.Transaction{
		ID:          id,
		PartnerID:   partnerID,
		Kind:        kind,
		Amount:      decimal.RequireFromString(amount),
		Timestamp:   ts,
		Description: "test " + id,
	}
}

func testAppendAssignsSeq(t *testing.T, s store.Store) {
	ctx := context.Background()
	first, err := s.AppendTransaction(ctx, Tx("t1", "p-1", model.KindDebt, "10.00", base))
	require.NoError(t, err)
	second, err := s.AppendTransaction(ctx, Tx("t2", "p-1", model.KindDebt, "10.00", base))
	require.NoError(t, err)

	assert.Positive(t, first.Seq)
	assert.Greater(t, second.Seq, first.Seq)
}

func testListOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	// Appended out of time order, and two sharing a timestamp.
	_, err := s.AppendTransaction(ctx, Tx("late", "p-1", model.KindDebt, "1.00", base.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, Tx("tie-a", "p-1", model.KindDebt, "2.00", base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, Tx("tie-b", "p-1", model.KindCredit, "3.00", base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, Tx("early", "p-1", model.KindDebt, "4.00", base))
	require.NoError(t, err)

	got, err := s.ListTransactions(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 4)

	ids := []string{got[0].ID, got[1].ID, got[2].ID, got[3].ID}
	assert.Equal(t, []string{"early", "tie-a", "tie-b", "late"}, ids)
	assert.True(t, got[2].Amount.Equal(decimal.RequireFromString("3.00")))
	assert.Equal(t, model.KindCredit, got[2].Kind)
	assert.True(t, got[0].Timestamp.Equal(base))
}

func testListFilter(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, p := range []string{"p-1", "p-2", "p-1", "p-2"} {
		id := p + "-" + string(rune('a'+i))
		_, err := s.AppendTransaction(ctx, Tx(id, p, model.KindDebt, "1.00", base.AddDate(0, 0, i)))
		require.NoError(t, err)
	}

	got, err := s.ListTransactions(ctx, store.Filter{PartnerID: "p-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, tx := range got {
		assert.Equal(t, "p-1", tx.PartnerID)
	}

	got, err = s.ListTransactions(ctx, store.Filter{From: base.AddDate(0, 0, 1), To: base.AddDate(0, 0, 3)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListTransactions(ctx, store.Filter{PartnerID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDuplicateID(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.AppendTransaction(ctx, Tx("dup", "p-1", model.KindDebt, "1.00", base))
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, Tx("dup", "p-1", model.KindDebt, "1.00", base))
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testInvoiceOrderNumber(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveInvoice(ctx, model.Invoice{ID: "inv-1", Number: "INV-2025-00001", PartnerID: "p-1", OrderNumber: "ORD-77"}))

	inv, err := s.GetInvoice(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-77", inv.OrderNumber)

	invoices, err := s.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)

	tx := Tx("t1", "p-1", model.KindDebt, "50.00", base)
	tx.InvoiceID = "inv-1"
	stored, err := s.AppendTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, "ORD-77", stored.OrderNumber)

	listed, err := s.ListTransactions(ctx, store.Filter{PartnerID: "p-1"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "inv-1", listed[0].InvoiceID)
	assert.Equal(t, "ORD-77", listed[0].OrderNumber)

	tx = Tx("t2", "p-1", model.KindDebt, "50.00", base)
	tx.InvoiceID = "missing"
	_, err = s.AppendTransaction(ctx, tx)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetInvoice(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPartners(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := model.Partner{
		ID:        "p-2",
		Name:      "Lakeside Pharmacy",
		Type:      model.PartnerTypeCustomer,
		TaxNumber: "TX-99",
		Email:     "orders@lakeside.example",
	}
	require.NoError(t, s.SavePartner(ctx, p))
	require.NoError(t, s.SavePartner(ctx, model.Partner{ID: "p-1", Name: "MedCo", Type: model.PartnerTypeSupplier}))

	got, err := s.GetPartner(ctx, "p-2")
	require.NoError(t, err)
	assert.Equal(t, "Lakeside Pharmacy", got.Name)
	assert.Equal(t, model.PartnerTypeCustomer, got.Type)
	assert.Equal(t, "TX-99", got.TaxNumber)

	all, err := s.ListPartners(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p-1", all[0].ID)

	_, err = s.GetPartner(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCachedBalance(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SavePartner(ctx, model.Partner{ID: "p-1", Name: "MedCo", Type: model.PartnerTypeBoth}))

	when := base.Add(time.Minute)
	require.NoError(t, s.UpdateCachedBalance(ctx, "p-1", decimal.RequireFromString("120.50"), when))

	got, err := s.GetPartner(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, got.CachedBalance.Equal(decimal.RequireFromString("120.50")), "got %s", got.CachedBalance)
	assert.True(t, got.BalanceUpdatedAt.Equal(when))

	// Saving partner details must not clobber the cache.
	got.Name = "MedCo Ltd"
	got.CachedBalance = decimal.Zero
	require.NoError(t, s.SavePartner(ctx, got))
	again, err := s.GetPartner(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "MedCo Ltd", again.Name)
	assert.True(t, again.CachedBalance.Equal(decimal.RequireFromString("120.50")))

	err = s.UpdateCachedBalance(ctx, "nobody", decimal.Zero, when)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPartnerLock(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SavePartner(ctx, model.Partner{ID: "p-1", Name: "MedCo", Type: model.PartnerTypeCustomer}))

	// Read-modify-write of the cache under the lock must not lose updates.
	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithPartnerLock(ctx, "p-1", func(ctx context.Context) error {
				p, err := s.GetPartner(ctx, "p-1")
				if err != nil {
					return err
				}
				return s.UpdateCachedBalance(ctx, "p-1", p.CachedBalance.Add(decimal.NewFromInt(1)), time.Now())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := s.GetPartner(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, p.CachedBalance.Equal(decimal.NewFromInt(writers)), "got %s", p.CachedBalance)
}
