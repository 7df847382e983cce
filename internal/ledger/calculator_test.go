package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curasupply/curaledger/internal/model"
)

var base = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func at(day int) time.Time {
	return base.AddDate(0, 0, day)
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func tx(seq int64, kind model.Kind, amount string, ts time.Time) model.Transaction {
	return model.Transaction{
		ID:        fmt.Sprintf("tx-%03d", seq),
		Seq:       seq,
		PartnerID: "p-1",
		Kind:      kind,
		Amount:    dec(amount),
		Timestamp: ts,
	}
}

func TestCompute_Example(t *testing.T) {
	txs := []model.Transaction{
		tx(1, model.KindDebt, "100", at(1)),
		tx(2, model.KindCredit, "30", at(2)),
		tx(3, model.KindDebt, "50", at(3)),
	}

	view, err := Compute(txs)
	require.NoError(t, err)
	require.Len(t, view.Lines, 3)

	// Newest first.
	assert.Equal(t, "tx-003", view.Lines[0].Transaction.ID)
	assert.Equal(t, "tx-002", view.Lines[1].Transaction.ID)
	assert.Equal(t, "tx-001", view.Lines[2].Transaction.ID)

	assert.True(t, view.Lines[0].Balance.Equal(dec("120")), "got %s", view.Lines[0].Balance)
	assert.True(t, view.Lines[1].Balance.Equal(dec("70")), "got %s", view.Lines[1].Balance)
	assert.True(t, view.Lines[2].Balance.Equal(dec("100")), "got %s", view.Lines[2].Balance)

	assert.True(t, view.Lines[1].SignedAmount.Equal(dec("-30")))

	s := view.Summary
	assert.True(t, s.TotalDebt.Equal(dec("150")))
	assert.True(t, s.TotalCredit.Equal(dec("30")))
	assert.True(t, s.CurrentBalance.Equal(dec("120")))
	assert.Equal(t, 3, s.TransactionCount)
}

func TestCompute_Empty(t *testing.T) {
	for _, input := range [][]model.Transaction{nil, {}} {
		view, err := Compute(input)
		require.NoError(t, err)
		assert.Empty(t, view.Lines)
		assert.True(t, view.Summary.TotalDebt.IsZero())
		assert.True(t, view.Summary.TotalCredit.IsZero())
		assert.True(t, view.Summary.CurrentBalance.IsZero())
		assert.Zero(t, view.Summary.TransactionCount)
	}
}

func TestCompute_NegativeAmount(t *testing.T) {
	txs := []model.Transaction{
		tx(1, model.KindDebt, "100", at(1)),
		tx(2, model.KindDebt, "-10", at(2)),
		tx(3, model.KindCredit, "5", at(3)),
	}
	before := make([]model.Transaction, len(txs))
	copy(before, txs)

	view, err := Compute(txs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataIntegrity))

	var die *DataIntegrityError
	require.True(t, errors.As(err, &die))
	assert.Equal(t, "tx-002", die.TransactionID)

	// No partial output and the input is untouched.
	assert.Empty(t, view.Lines)
	assert.True(t, view.Summary.CurrentBalance.IsZero())
	assert.Zero(t, view.Summary.TransactionCount)
	assert.Equal(t, before, txs)
}

func TestCompute_UnknownKind(t *testing.T) {
	txs := []model.Transaction{tx(1, model.Kind("REFUND"), "10", at(1))}
	_, err := Compute(txs)
	assert.ErrorIs(t, err, ErrDataIntegrity)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestCompute_MissingAmount(t *testing.T) {
	bad := tx(1, model.KindDebt, "0", at(1))
	bad.Amount = decimal.Decimal{}
	_, err := Compute([]model.Transaction{bad})
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestCompute_BalanceIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		n := rng.Intn(200)
		txs := make([]model.Transaction, n)
		for i := range txs {
			kind := model.KindDebt
			if rng.Intn(2) == 0 {
				kind = model.KindCredit
			}
			cents := rng.Int63n(1_000_000) + 1
			txs[i] = model.Transaction{
				ID:        fmt.Sprintf("tx-%d", i),
				Seq:       int64(i + 1),
				PartnerID: "p-1",
				Kind:      kind,
				Amount:    decimal.New(cents, -2),
				Timestamp: at(i),
			}
		}

		view, err := Compute(txs)
		require.NoError(t, err)

		s := view.Summary
		assert.True(t, s.CurrentBalance.Equal(s.TotalDebt.Sub(s.TotalCredit)),
			"round %d: %s != %s - %s", round, s.CurrentBalance, s.TotalDebt, s.TotalCredit)
		if n > 0 {
			assert.True(t, view.Lines[0].Balance.Equal(s.CurrentBalance), "round %d", round)
		}
	}
}

func TestCompute_DecimalExactness(t *testing.T) {
	// 0.1 added a thousand times drifts in float64; it must be exact here.
	var txs []model.Transaction
	for i := 0; i < 1000; i++ {
		txs = append(txs, tx(int64(i+1), model.KindDebt, "0.10", at(i)))
	}
	txs = append(txs, tx(1001, model.KindCredit, "100.00", at(1001)))

	view, err := Compute(txs)
	require.NoError(t, err)
	assert.True(t, view.Summary.CurrentBalance.IsZero(), "got %s", view.Summary.CurrentBalance)
}

func TestCompute_Idempotent(t *testing.T) {
	txs := []model.Transaction{
		tx(2, model.KindCredit, "30", at(1)),
		tx(1, model.KindDebt, "100", at(1)),
		tx(3, model.KindDebt, "50", at(2)),
	}
	sorted := SortChronological(txs)

	first, err := Compute(sorted)
	require.NoError(t, err)
	second, err := Compute(SortChronological(txs))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompute_OrderInvariance(t *testing.T) {
	txs := []model.Transaction{
		tx(1, model.KindDebt, "100", at(1)),
		tx(2, model.KindCredit, "30", at(2)),
		tx(3, model.KindDebt, "50", at(3)),
		tx(4, model.KindCredit, "200", at(4)),
	}
	ref, err := Compute(txs)
	require.NoError(t, err)

	shuffled := []model.Transaction{txs[3], txs[1], txs[0], txs[2]}
	got, err := Compute(shuffled)
	require.NoError(t, err)

	assert.True(t, got.Summary.TotalDebt.Equal(ref.Summary.TotalDebt))
	assert.True(t, got.Summary.TotalCredit.Equal(ref.Summary.TotalCredit))
	assert.True(t, got.Summary.CurrentBalance.Equal(ref.Summary.CurrentBalance))

	// The per-line running balances depend on the fold order.
	refBalances := balancesByID(ref)
	gotBalances := balancesByID(got)
	differs := false
	for id, b := range refBalances {
		if !b.Equal(gotBalances[id]) {
			differs = true
		}
	}
	assert.True(t, differs, "running balances should depend on order")
}

func TestSortChronological_TieBreak(t *testing.T) {
	txs := []model.Transaction{
		tx(3, model.KindDebt, "1", at(1)),
		tx(1, model.KindDebt, "1", at(1)),
		tx(2, model.KindDebt, "1", at(0)),
	}
	sorted := SortChronological(txs)
	assert.Equal(t, []int64{2, 1, 3}, []int64{sorted[0].Seq, sorted[1].Seq, sorted[2].Seq})
	// Input untouched.
	assert.Equal(t, int64(3), txs[0].Seq)
}

func TestWithPartnerNames(t *testing.T) {
	view, err := Compute([]model.Transaction{tx(1, model.KindDebt, "10", at(1))})
	require.NoError(t, err)

	view = view.WithPartnerNames(map[string]string{"p-1": "Northside Clinic"})
	assert.Equal(t, "Northside Clinic", view.Lines[0].PartnerName)
}

func TestGroupByPartner(t *testing.T) {
	a := tx(1, model.KindDebt, "10", at(1))
	b := tx(2, model.KindDebt, "20", at(2))
	b.PartnerID = "p-2"
	c := tx(3, model.KindCredit, "5", at(3))

	groups := GroupByPartner([]model.Transaction{a, b, c})
	require.Len(t, groups, 2)
	assert.Equal(t, []model.Transaction{a, c}, groups["p-1"])
	assert.Equal(t, []model.Transaction{b}, groups["p-2"])
}

func balancesByID(v View) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(v.Lines))
	for _, l := range v.Lines {
		m[l.Transaction.ID] = l.Balance
	}
	return m
}
