package finance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curasupply/curaledger/internal/auditlog"
	"github.com/curasupply/curaledger/internal/events"
	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
	"github.com/curasupply/curaledger/internal/store/memory"
	"github.com/curasupply/curaledger/internal/store/storetest"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(day int) time.Time { return time.Date(2025, 5, day, 9, 0, 0, 0, time.UTC) }

type fixture struct {
	svc       *Service
	store     *memory.Store
	published *events.Recorder
	audit     *auditlog.Log
}

func newFixture(t *testing.T, partners ...string) fixture {
	t.Helper()
	st := memory.New()
	rec := &events.Recorder{}
	audit := auditlog.Open(t.TempDir())
	svc := NewService(st,
		WithPublisher(rec),
		WithAuditLog(audit),
		WithClock(func() time.Time { return now }),
	)

	for _, id := range partners {
		_, err := svc.SavePartner(context.Background(), "test", model.Partner{
			ID:   id,
			Name: "Partner " + id,
			Type: model.PartnerTypeCustomer,
		})
		require.NoError(t, err)
	}
	return fixture{svc: svc, store: st, published: rec, audit: audit}
}

func (f fixture) record(t *testing.T, id, partnerID string, kind model.Kind, amount string, ts time.Time) model.Transaction {
	t.Helper()
	stored, err := f.svc.Record(context.Background(), "test", storetest.Tx(id, partnerID, kind, amount, ts))
	require.NoError(t, err)
	return stored
}

func TestRecord_WorkedExample(t *testing.T) {
	f := newFixture(t, "p-1")
	ctx := context.Background()

	f.record(t, "t1", "p-1", model.KindDebt, "100", at(1))
	f.record(t, "t2", "p-1", model.KindCredit, "30", at(2))
	f.record(t, "t3", "p-1", model.KindDebt, "50", at(3))

	cached, updatedAt, err := f.svc.CachedBalance(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "120.00", cached.StringFixed(2))
	assert.Equal(t, now, updatedAt)

	balance, err := f.svc.Balance(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(cached))

	st, err := f.svc.Statement(ctx, store.Filter{PartnerID: "p-1"})
	require.NoError(t, err)
	require.Len(t, st.Lines, 3)
	assert.Equal(t, "t3", st.Lines[0].Transaction.ID)
	assert.Equal(t, "120.00", st.Lines[0].Balance.StringFixed(2))
	assert.Equal(t, "70.00", st.Lines[1].Balance.StringFixed(2))
	assert.Equal(t, "100.00", st.Lines[2].Balance.StringFixed(2))
	assert.Equal(t, "Partner p-1", st.Lines[0].PartnerName)
	assert.Equal(t, "150.00", st.Summary.TotalDebt.StringFixed(2))
	assert.Equal(t, "30.00", st.Summary.TotalCredit.StringFixed(2))
}

func TestRecord_FillsIDAndTimestamp(t *testing.T) {
	f := newFixture(t, "p-1")

	stored, err := f.svc.Record(context.Background(), "", model.Transaction{
		PartnerID: "p-1",
		Kind:      model.KindDebt,
		Amount:    dec("12.50"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, now, stored.Timestamp)
	assert.Equal(t, int64(1), stored.Seq)
}

func TestRecord_NegativeAmountLeavesNoTrace(t *testing.T) {
	f := newFixture(t, "p-1")
	ctx := context.Background()
	f.record(t, "t1", "p-1", model.KindDebt, "100", at(1))
	before := len(f.published.Events())

	_, err := f.svc.Record(ctx, "test", storetest.Tx("bad", "p-1", model.KindDebt, "-10", at(2)))
	require.ErrorIs(t, err, ledger.ErrDataIntegrity)

	var die *ledger.DataIntegrityError
	require.ErrorAs(t, err, &die)
	assert.Equal(t, "bad", die.TransactionID)

	txs, err := f.store.ListTransactions(ctx, store.Filter{PartnerID: "p-1"})
	require.NoError(t, err)
	assert.Len(t, txs, 1)

	cached, _, err := f.svc.CachedBalance(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "100.00", cached.StringFixed(2))
	assert.Len(t, f.published.Events(), before)
}

func TestRecord_UnknownPartner(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Record(context.Background(), "test", storetest.Tx("t1", "ghost", model.KindDebt, "1", at(1)))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecord_InvoiceOfOtherPartner(t *testing.T) {
	f := newFixture(t, "p-1", "p-2")
	ctx := context.Background()

	inv, err := f.svc.CreateInvoice(ctx, "test", "p-2", "ORD-7")
	require.NoError(t, err)

	tx := storetest.Tx("t1", "p-1", model.KindDebt, "10", at(1))
	tx.InvoiceID = inv.ID
	_, err = f.svc.Record(ctx, "test", tx)
	assert.ErrorIs(t, err, ledger.ErrDataIntegrity)

	tx.PartnerID = "p-2"
	stored, err := f.svc.Record(ctx, "test", tx)
	require.NoError(t, err)
	assert.Equal(t, "ORD-7", stored.OrderNumber)
}

func TestRecord_PublishesAndAudits(t *testing.T) {
	f := newFixture(t, "p-1")
	f.record(t, "t1", "p-1", model.KindCredit, "5", at(1))

	evs := f.published.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.BalanceRecomputed{PartnerID: "p-1", Balance: "-5.00", ComputedAt: now}, evs[0])
	recorded, ok := evs[1].(events.TransactionRecorded)
	require.True(t, ok)
	assert.Equal(t, "t1", recorded.TransactionID)
	assert.Equal(t, "5.00", recorded.Amount)

	entries, err := f.audit.Read()
	require.NoError(t, err)
	var actions []string
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{auditlog.ActionSavePartner, auditlog.ActionRecordTransaction}, actions)
}

// lockFailStore fails every partner lock.
type lockFailStore struct {
	*memory.Store
}

func (s lockFailStore) WithPartnerLock(ctx context.Context, partnerID string, fn func(ctx context.Context) error) error {
	return store.Unavailable("partner_lock", errors.New("connection reset"))
}

func TestRecord_RecomputeFailureIsReturned(t *testing.T) {
	st := lockFailStore{memory.New()}
	svc := NewService(st)
	ctx := context.Background()
	require.NoError(t, st.SavePartner(ctx, model.Partner{ID: "p-1", Name: "A", Type: model.PartnerTypeCustomer}))

	stored, err := svc.Record(ctx, "test", storetest.Tx("t1", "p-1", model.KindDebt, "10", at(1)))
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))
	assert.Equal(t, "t1", stored.ID, "the append itself succeeded")
}

func TestConcurrentWritersKeepCacheExact(t *testing.T) {
	f := newFixture(t, "p-1")
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kind := model.KindDebt
			if i%3 == 0 {
				kind = model.KindCredit
			}
			_, err := f.svc.Record(ctx, "test", storetest.Tx(fmt.Sprintf("t%02d", i), "p-1", kind, "10.10", at(1+i%20)))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cached, _, err := f.svc.CachedBalance(ctx, "p-1")
	require.NoError(t, err)
	folded, err := f.svc.Balance(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, cached.Equal(folded), "cached %s, folded %s", cached, folded)

	// 9 credits and 16 debits of 10.10.
	assert.Equal(t, "70.70", folded.StringFixed(2))
}

func TestSavePartner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.SavePartner(ctx, "test", model.Partner{Name: "  MedCo  ", Type: model.PartnerTypeBoth})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "MedCo", p.Name)
	assert.True(t, p.CachedBalance.IsZero())

	_, err = f.svc.SavePartner(ctx, "test", model.Partner{Name: "X", Type: "VENDOR"})
	assert.ErrorIs(t, err, ErrInvalidPartner)

	_, err = f.svc.SavePartner(ctx, "test", model.Partner{Type: model.PartnerTypeSupplier})
	assert.ErrorIs(t, err, ErrInvalidPartner)
}

func TestSavePartner_KeepsCachedBalance(t *testing.T) {
	f := newFixture(t, "p-1")
	ctx := context.Background()
	f.record(t, "t1", "p-1", model.KindDebt, "40", at(1))

	p, err := f.svc.SavePartner(ctx, "test", model.Partner{
		ID:            "p-1",
		Name:          "Renamed",
		Type:          model.PartnerTypeCustomer,
		CachedBalance: dec("999"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, "40.00", p.CachedBalance.StringFixed(2))
}

func TestCreateInvoice_Numbering(t *testing.T) {
	f := newFixture(t, "p-1")
	ctx := context.Background()

	require.NoError(t, f.store.SaveInvoice(ctx, model.Invoice{ID: "old", Number: "INV-2024-00042", PartnerID: "p-1"}))
	require.NoError(t, f.store.SaveInvoice(ctx, model.Invoice{ID: "i7", Number: "INV-2025-00007", PartnerID: "p-1"}))

	inv, err := f.svc.CreateInvoice(ctx, "test", "p-1", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00008", inv.Number)
	assert.Equal(t, "ORD-1", inv.OrderNumber)

	_, err = f.svc.CreateInvoice(ctx, "test", "ghost", "ORD-2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateInvoice_FirstOfYear(t *testing.T) {
	f := newFixture(t, "p-1")
	inv, err := f.svc.CreateInvoice(context.Background(), "test", "p-1", "")
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00001", inv.Number)
}
