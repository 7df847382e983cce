package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/finance"
	"github.com/curasupply/curaledger/internal/metrics"
	"github.com/curasupply/curaledger/internal/store"
)

const dateLayout = "2006-01-02"

// balanceUnavailable is printed in place of a balance that could not be computed.
const balanceUnavailable = "balance unavailable"

// withApp opens the service stack for the duration of fn.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := opts.openApp(ctx, metrics.NoOpCollector{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// dateRange holds --from/--to flags. Both dates are inclusive.
type dateRange struct {
	from string
	to   string
}

func (d *dateRange) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.from, "from", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.to, "to", "", "last day to include (YYYY-MM-DD)")
}

// filter converts the flags into a store.Filter with an exclusive To.
func (d *dateRange) filter(partnerID string) (store.Filter, error) {
	f := store.Filter{PartnerID: partnerID}
	if d.from != "" {
		from, err := time.ParseInLocation(dateLayout, d.from, time.UTC)
		if err != nil {
			return store.Filter{}, fmt.Errorf("invalid --from: %w", err)
		}
		f.From = from
	}
	if d.to != "" {
		to, err := time.ParseInLocation(dateLayout, d.to, time.UTC)
		if err != nil {
			return store.Filter{}, fmt.Errorf("invalid --to: %w", err)
		}
		f.To = to.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return store.Filter{}, fmt.Errorf("--from %s is after --to %s", d.from, d.to)
	}
	return f, nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printStatement writes the statement lines, newest first, and its summary.
func printStatement(w io.Writer, st finance.Statement) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DATE\tID\tPARTNER\tKIND\tAMOUNT\tBALANCE\tORDER\tDESCRIPTION")
	for _, line := range st.Lines {
		tx := line.Transaction
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.Timestamp.UTC().Format(dateLayout),
			tx.ID,
			line.PartnerName,
			tx.Kind,
			line.SignedAmount.StringFixed(2),
			line.Balance.StringFixed(2),
			tx.OrderNumber,
			tx.Description,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sum := st.Summary
	if !st.Filter.From.IsZero() {
		fmt.Fprintf(w, "Opening balance: %s\n", st.Opening.StringFixed(2))
	}
	fmt.Fprintf(w, "Transactions: %d  Debt: %s  Credit: %s\n",
		sum.TransactionCount, sum.TotalDebt.StringFixed(2), sum.TotalCredit.StringFixed(2))
	fmt.Fprintf(w, "Balance: %s\n", sum.CurrentBalance.StringFixed(2))
	return nil
}
