package csvstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
	"github.com/curasupply/curaledger/internal/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestAppend_CreatesFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "data"))
	require.NoError(t, err)

	ts := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	_, err = s.AppendTransaction(context.Background(), storetest.Tx("t1", "p-1", model.KindDebt, "4", ts))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "data", transactionsFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, TransactionHeader, lines[0])
	assert.Contains(t, lines[1], ",4.00,", "amounts are written with two decimals")
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ts := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, storetest.Tx("t1", "p-1", model.KindDebt, "4.00", ts))
	require.NoError(t, err)
	require.NoError(t, s.SavePartner(ctx, model.Partner{ID: "p-1", Name: "MedCo", Type: model.PartnerTypeCustomer}))

	reopened, err := Open(dir)
	require.NoError(t, err)
	txs, err := reopened.ListTransactions(ctx, store.Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(1), txs[0].Seq)

	stored, err := reopened.AppendTransaction(ctx, storetest.Tx("t2", "p-1", model.KindCredit, "1.00", ts))
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Seq)

	p, err := reopened.GetPartner(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "MedCo", p.Name)
}

func TestEmptyDir(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	txs, err := s.ListTransactions(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, txs)

	partners, err := s.ListPartners(ctx)
	require.NoError(t, err)
	assert.Empty(t, partners)
}

func TestCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, transactionsFile),
		[]byte(TransactionHeader+"\n1,t1,2025-01-01T00:00:00Z,p-1\n"), 0o644))

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.ListTransactions(context.Background(), store.Filter{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrDataIntegrity)
}

func TestMalformedRowFailsOnlyItsPartner(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ts := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, storetest.Tx("t1", "p-1", model.KindDebt, "10.00", ts))
	require.NoError(t, err)
	_, err = s.AppendTransaction(ctx, storetest.Tx("t2", "p-2", model.KindDebt, "5.00", ts))
	require.NoError(t, err)
	corruptAmount(t, dir, "t2", "5.00x")

	txs, err := s.ListTransactions(ctx, store.Filter{PartnerID: "p-1"})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "t1", txs[0].ID)

	_, err = s.ListTransactions(ctx, store.Filter{PartnerID: "p-2"})
	var die *ledger.DataIntegrityError
	require.ErrorAs(t, err, &die)
	assert.Equal(t, ledger.RuleMalformedRecord, die.Rule)
	assert.Equal(t, "p-2", die.PartnerID)
	assert.Equal(t, "t2", die.TransactionID)
	assert.Contains(t, die.Reason, "parsing amount")

	_, err = s.ListTransactions(ctx, store.Filter{})
	assert.ErrorIs(t, err, ledger.ErrDataIntegrity)

	// Appends keep working and still see the malformed row's seq and ID.
	_, err = s.AppendTransaction(ctx, storetest.Tx("t2", "p-3", model.KindDebt, "1.00", ts))
	assert.ErrorIs(t, err, store.ErrDuplicate)
	stored, err := s.AppendTransaction(ctx, storetest.Tx("t3", "p-1", model.KindCredit, "4.00", ts))
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Seq)
}

// corruptAmount rewrites the amount cell of transaction id on disk.
func corruptAmount(t *testing.T, dir, id, amount string) {
	t.Helper()
	path := filepath.Join(dir, transactionsFile)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(string(data), "\n")
	found := false
	for i, line := range lines {
		cells := strings.Split(line, ",")
		if len(cells) == txFields && cells[colID] == id {
			cells[colAmount] = amount
			lines[i] = strings.Join(cells, ",")
			found = true
		}
	}
	require.True(t, found, "transaction %s not on disk", id)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
}
