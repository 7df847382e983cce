package commands

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curasupply/curaledger/internal/auditlog"
	"github.com/curasupply/curaledger/internal/buildinfo"
	"github.com/curasupply/curaledger/internal/cart"
	"github.com/curasupply/curaledger/internal/config"
	"github.com/curasupply/curaledger/internal/id"
	"github.com/curasupply/curaledger/internal/ledger"
	"github.com/curasupply/curaledger/internal/store"
	"github.com/curasupply/curaledger/internal/store/csvstore"
)

// runCuraledger executes the root command in-process and returns what it
// wrote to stdout and stderr.
func runCuraledger(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// newProject initializes a csv-backed project with one customer, p-1.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := runCuraledger(t, "init", dir, "--name", "Test Supplies")
	require.NoError(t, err)
	_, err = runCuraledger(t, "-C", dir, "partner", "add", "--id", "p-1", "--name", "Clinic A")
	require.NoError(t, err)
	return dir
}

// recordWorkedExample records +100, -30, +50 on three consecutive days.
func recordWorkedExample(t *testing.T, dir string) {
	t.Helper()
	for _, args := range [][]string{
		{"p-1", "DEBT", "100", "--date", "2025-05-01"},
		{"p-1", "CREDIT", "30", "--date", "2025-05-02"},
		{"p-1", "DEBT", "50", "--date", "2025-05-03"},
	} {
		_, err := runCuraledger(t, append([]string{"-C", dir, "record"}, args...)...)
		require.NoError(t, err)
	}
}

func TestInit_CreatesProject(t *testing.T) {
	dir := t.TempDir()
	out, err := runCuraledger(t, "init", dir, "--name", "Test Supplies")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized curaledger project")

	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, "Test Supplies", cfg.Business.Name)
	assert.Equal(t, config.DriverCSV, cfg.Store.Driver)

	for _, d := range []string{"data", "logs", "import", filepath.Join("import", "processed")} {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "%s should exist", d)
		assert.True(t, info.IsDir())
	}

	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".env")
	assert.Contains(t, string(data), cfg.Cart.Path)
}

func TestInit_RequiresName(t *testing.T) {
	_, err := runCuraledger(t, "init", t.TempDir())
	require.Error(t, err, "init without --name should fail")
}

func TestInit_RefusesExistingProject(t *testing.T) {
	dir := t.TempDir()
	_, err := runCuraledger(t, "init", dir, "--name", "Test Supplies")
	require.NoError(t, err)

	_, err = runCuraledger(t, "init", dir, "--name", "Other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInit_UnknownDriver(t *testing.T) {
	_, err := runCuraledger(t, "init", t.TempDir(), "--name", "Test Supplies", "--driver", "sqlite")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := runCuraledger(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, buildinfo.Version)
}

func TestRecordAndStatement(t *testing.T) {
	dir := newProject(t)

	out, err := runCuraledger(t, "-C", dir, "record", "p-1", "DEBT", "100", "--date", "2025-05-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded DEBT 100.00 for p-1")
	assert.Contains(t, out, "Balance: 100.00")

	out, err = runCuraledger(t, "-C", dir, "record", "p-1", "credit", "30", "--date", "2025-05-02")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance: 70.00")

	out, err = runCuraledger(t, "-C", dir, "record", "p-1", "DEBT", "50", "--date", "2025-05-03T09:30:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance: 120.00")

	out, err = runCuraledger(t, "-C", dir, "statement", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Transactions: 3  Debt: 150.00  Credit: 30.00")
	assert.Contains(t, out, "Balance: 120.00")
	assert.NotContains(t, out, "Opening balance")

	// Newest first, each with its running balance.
	first := strings.Index(out, "2025-05-03")
	last := strings.Index(out, "2025-05-01")
	require.True(t, first >= 0 && last >= 0)
	assert.Less(t, first, last)
	assert.Regexp(t, `2025-05-02\s+\S+\s+Clinic A\s+CREDIT\s+-30\.00\s+70\.00`, out)

	out, err = runCuraledger(t, "-C", dir, "partner", "list")
	require.NoError(t, err)
	assert.Regexp(t, `p-1\s+Clinic A\s+CUSTOMER\s+120\.00`, out)

	entries, err := auditlog.Open(dir).Read()
	require.NoError(t, err)
	recorded := 0
	for _, e := range entries {
		if e.Action == auditlog.ActionRecordTransaction {
			recorded++
		}
	}
	assert.Equal(t, 3, recorded)
}

func TestRecord_NegativeAmountRejected(t *testing.T) {
	dir := newProject(t)

	_, err := runCuraledger(t, "-C", dir, "record", "p-1", "DEBT", "--", "-10")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDataIntegrity)

	out, err := runCuraledger(t, "-C", dir, "statement", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Transactions: 0")
	assert.Contains(t, out, "Balance: 0.00")
}

func TestRecord_InvalidInput(t *testing.T) {
	dir := newProject(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad amount", []string{"p-1", "DEBT", "ten"}},
		{"bad kind", []string{"p-1", "REFUND", "10"}},
		{"bad date", []string{"p-1", "DEBT", "10", "--date", "05/01/2025"}},
		{"too many decimals", []string{"p-1", "DEBT", "10.001"}},
		{"bad id", []string{"p-1", "DEBT", "10", "--id", "tx-1"}},
		{"unknown partner", []string{"p-404", "DEBT", "10"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCuraledger(t, append([]string{"-C", dir, "record"}, tt.args...)...)
			require.Error(t, err)
		})
	}

	out, err := runCuraledger(t, "-C", dir, "statement", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Transactions: 0")
}

func TestRecord_ExplicitID(t *testing.T) {
	dir := newProject(t)

	out, err := runCuraledger(t, "-C", dir, "record", "p-1", "DEBT", "10",
		"--id", "9B2F8A52-3C1E-4D0F-9F57-0D5C0E4B8A11")
	require.NoError(t, err)
	assert.Contains(t, out, "(9b2f8a52-3c1e-4d0f-9f57-0d5c0e4b8a11)")

	_, err = runCuraledger(t, "-C", dir, "record", "p-1", "DEBT", "10",
		"--id", "9b2f8a52-3c1e-4d0f-9f57-0d5c0e4b8a11")
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestStatement_DateRange(t *testing.T) {
	dir := newProject(t)
	recordWorkedExample(t, dir)

	out, err := runCuraledger(t, "-C", dir, "statement", "p-1", "--from", "2025-05-02", "--to", "2025-05-02")
	require.NoError(t, err)
	assert.Contains(t, out, "Opening balance: 100.00")
	assert.Contains(t, out, "Transactions: 1  Debt: 0.00  Credit: 30.00")
	assert.Contains(t, out, "Balance: 70.00")
	assert.NotContains(t, out, "2025-05-03")

	_, err = runCuraledger(t, "-C", dir, "statement", "p-1", "--from", "2025-05-03", "--to", "2025-05-01")
	require.Error(t, err)
}

func TestStatement_UnknownPartner(t *testing.T) {
	dir := newProject(t)

	out, err := runCuraledger(t, "-C", dir, "statement", "p-404")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Contains(t, out, "balance unavailable")
}

func TestReport(t *testing.T) {
	dir := newProject(t)
	recordWorkedExample(t, dir)

	_, err := runCuraledger(t, "-C", dir, "partner", "add", "--id", "p-2", "--name", "Pharma B", "--type", "supplier")
	require.NoError(t, err)
	_, err = runCuraledger(t, "-C", dir, "record", "p-2", "CREDIT", "15.25", "--date", "2025-05-04")
	require.NoError(t, err)

	out, err := runCuraledger(t, "-C", dir, "report")
	require.NoError(t, err)
	assert.Regexp(t, `p-1\s+Clinic A\s+3\s+150\.00\s+30\.00\s+120\.00`, out)
	assert.Regexp(t, `p-2\s+Pharma B\s+1\s+0\.00\s+15\.25\s+-15\.25`, out)
	assert.NotContains(t, out, "balance unavailable")
}

func TestRecomputeAndReconcile(t *testing.T) {
	dir := newProject(t)
	recordWorkedExample(t, dir)

	out, err := runCuraledger(t, "-C", dir, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "Checked 1 partners, 0 drifted, 0 unavailable")

	// Corrupt the cached balance behind the service's back.
	st, err := csvstore.Open(filepath.Join(dir, "data"))
	require.NoError(t, err)
	require.NoError(t, st.UpdateCachedBalance(context.Background(), "p-1", decimal.RequireFromString("999"), time.Now()))

	out, err = runCuraledger(t, "-C", dir, "partner", "show", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance:  120.00")
	assert.Contains(t, out, "Cached:   999.00")
	assert.Contains(t, out, "out of date")

	out, err = runCuraledger(t, "-C", dir, "reconcile")
	require.NoError(t, err)
	assert.Regexp(t, `p-1\s+999\.00\s+120\.00\s+false`, out)
	assert.Contains(t, out, "1 drifted")

	out, err = runCuraledger(t, "-C", dir, "reconcile", "--repair")
	require.NoError(t, err)
	assert.Regexp(t, `p-1\s+999\.00\s+120\.00\s+true`, out)

	out, err = runCuraledger(t, "-C", dir, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "0 drifted")

	out, err = runCuraledger(t, "-C", dir, "recompute", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Balance of p-1: 120.00")

	out, err = runCuraledger(t, "-C", dir, "recompute", "p-404")
	require.Error(t, err)
	assert.Contains(t, out, "balance unavailable")
}

func TestInvoice(t *testing.T) {
	dir := newProject(t)

	out, err := runCuraledger(t, "-C", dir, "invoice", "create", "p-1", "--order", "ORD-7")
	require.NoError(t, err)
	assert.Contains(t, out, id.FormatInvoiceNumber(time.Now().Year(), 1))

	m := regexp.MustCompile(`\(([^)]+)\)`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	invoiceID := m[1]

	_, err = runCuraledger(t, "-C", dir, "record", "p-1", "DEBT", "40", "--invoice", invoiceID)
	require.NoError(t, err)

	out, err = runCuraledger(t, "-C", dir, "statement", "p-1")
	require.NoError(t, err)
	assert.Contains(t, out, "ORD-7")

	out, err = runCuraledger(t, "-C", dir, "invoice", "list")
	require.NoError(t, err)
	assert.Contains(t, out, invoiceID)

	// An invoice belongs to one partner only.
	_, err = runCuraledger(t, "-C", dir, "partner", "add", "--id", "p-2", "--name", "Clinic B")
	require.NoError(t, err)
	_, err = runCuraledger(t, "-C", dir, "record", "p-2", "DEBT", "40", "--invoice", invoiceID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrDataIntegrity)
}

func TestCart(t *testing.T) {
	dir := newProject(t)

	out, err := runCuraledger(t, "-C", dir, "cart", "add", "sku-1", "--name", "Nitrile gloves", "--price", "4.50", "--qty", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart: 2 items, total 9.00")

	_, err = runCuraledger(t, "-C", dir, "cart", "add", "sku-1", "--name", "Nitrile gloves", "--price", "4.50")
	require.NoError(t, err)

	out, err = runCuraledger(t, "-C", dir, "cart", "set", "sku-1", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart: 1 items, total 4.50")

	out, err = runCuraledger(t, "-C", dir, "cart", "fav", "sku-1")
	require.NoError(t, err)
	assert.Contains(t, out, "added to favorites")

	out, err = runCuraledger(t, "-C", dir, "cart", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Nitrile gloves")
	assert.Contains(t, out, "Favorites: [sku-1]")

	_, err = runCuraledger(t, "-C", dir, "cart", "remove", "sku-2")
	assert.ErrorIs(t, err, cart.ErrNotInCart)

	_, err = runCuraledger(t, "-C", dir, "cart", "remove", "sku-1")
	require.NoError(t, err)

	c, err := cart.Load(filepath.Join(dir, "data", "cart.yaml"))
	require.NoError(t, err)
	assert.Empty(t, c.Items)
	assert.True(t, c.IsFavorite("sku-1"))
}

func TestImport(t *testing.T) {
	dir := newProject(t)
	_, err := runCuraledger(t, "-C", dir, "partner", "add", "--id", "p-2", "--name", "Medline", "--type", "SUPPLIER")
	require.NoError(t, err)

	bank := "Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #\n" +
		"CREDIT,01/03/2025,ONLINE TRANSFER FROM CLINIC A,350.00,ACH_CREDIT,10350.00,\n" +
		"DEBIT,01/06/2025,MEDLINE INDUSTRIES PAYMENT,-1200.50,ACH_DEBIT,9149.50,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "jan.csv"), []byte(bank), 0o644))

	out, err := runCuraledger(t, "-C", dir, "import", "--format", "chase", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "jan.csv: 2 rows, 2 matched, 0 unmatched")
	_, err = os.Stat(filepath.Join(dir, "import", "jan.csv"))
	require.NoError(t, err, "dry run leaves the file in place")

	out, err = runCuraledger(t, "-C", dir, "import", "--format", "chase")
	require.NoError(t, err)
	assert.Contains(t, out, "jan.csv: 2 recorded, 0 already imported, 0 unmatched, 0 failed")
	_, err = os.Stat(filepath.Join(dir, "import", "processed", "jan.csv"))
	require.NoError(t, err)

	out, err = runCuraledger(t, "-C", dir, "partner", "list")
	require.NoError(t, err)
	assert.Regexp(t, `p-1\s+Clinic A\s+CUSTOMER\s+-350\.00`, out)
	assert.Regexp(t, `p-2\s+Medline\s+SUPPLIER\s+1200\.50`, out)

	// The same statement dropped in again is recognized.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "jan-again.csv"), []byte(bank), 0o644))
	out, err = runCuraledger(t, "-C", dir, "import", "--format", "chase")
	require.NoError(t, err)
	assert.Contains(t, out, "0 recorded, 2 already imported")

	// Unmatched rows keep the file pending.
	fee := "Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #\n" +
		"DEBIT,01/31/2025,MONTHLY SERVICE FEE,-15.00,FEE_TRANSACTION,9134.50,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "import", "fee.csv"), []byte(fee), 0o644))
	out, err = runCuraledger(t, "-C", dir, "import", "--format", "chase")
	require.Error(t, err)
	assert.Contains(t, out, `unmatched 2025-01-31 DEBT 15.00 "MONTHLY SERVICE FEE"`)
	_, err = os.Stat(filepath.Join(dir, "import", "fee.csv"))
	require.NoError(t, err)

	_, err = runCuraledger(t, "-C", dir, "import", "--format", "ofx")
	require.Error(t, err)
}

func TestInit_GitTracksLedgerChanges(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	out, err := runCuraledger(t, "init", dir, "--name", "Test Supplies", "--git")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized curaledger project")

	_, err = runCuraledger(t, "-C", dir, "partner", "add", "--id", "p-1", "--name", "Clinic A")
	require.NoError(t, err)
	_, err = runCuraledger(t, "-C", dir, "record", "p-1", "DEBT", "100", "--date", "2025-05-01")
	require.NoError(t, err)

	log := exec.Command("git", "log", "--format=%s")
	log.Dir = dir
	history, err := log.Output()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"record: DEBT 100.00 for p-1",
		"partner: save p-1 (Clinic A)",
		"init: Initialize Test Supplies",
	}, strings.Split(strings.TrimSpace(string(history)), "\n"))

	status := exec.Command("git", "status", "--porcelain")
	status.Dir = dir
	dirty, err := status.Output()
	require.NoError(t, err)
	assert.Empty(t, strings.TrimSpace(string(dirty)), "ledger files and audit log are committed")
}
