package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/id"
	"github.com/curasupply/curaledger/internal/model"
)

func newRecordCommand(opts *options) *cobra.Command {
	var tx model.Transaction
	var date string

	cmd := &cobra.Command{
		Use:   "record <partner-id> <DEBT|CREDIT> <amount>",
		Short: "Append a transaction to a partner ledger",
		Long: `Append a DEBT (the partner owes more) or CREDIT (the partner paid or was
credited) to the partner's ledger and recompute its cached balance.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[2], err)
			}
			if tx.ID != "" {
				if tx.ID, err = id.ParseTransactionID(tx.ID); err != nil {
					return err
				}
			}
			tx.PartnerID = args[0]
			tx.Kind = model.Kind(strings.ToUpper(args[1]))
			tx.Amount = amount
			if date != "" {
				if tx.Timestamp, err = parseTimestamp(date); err != nil {
					return err
				}
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return runRecord(ctx, cmd, opts, a, tx)
			})
		},
	}

	cmd.Flags().StringVar(&tx.ID, "id", "", "transaction UUID (generated when empty)")
	cmd.Flags().StringVar(&date, "date", "", "transaction date, YYYY-MM-DD or RFC 3339 (default now)")
	cmd.Flags().StringVar(&tx.InvoiceID, "invoice", "", "invoice id the transaction settles")
	cmd.Flags().StringVar(&tx.Description, "description", "", "free-text description")

	return cmd
}

func runRecord(ctx context.Context, cmd *cobra.Command, opts *options, a *app, tx model.Transaction) error {
	out := cmd.OutOrStdout()
	stored, err := a.svc.Record(ctx, opts.actor, tx)
	if stored.ID == "" {
		return err
	}
	fmt.Fprintf(out, "Recorded %s %s for %s (%s)\n", stored.Kind, stored.Amount.StringFixed(2), stored.PartnerID, stored.ID)
	a.commit(fmt.Sprintf("record: %s %s for %s", stored.Kind, stored.Amount.StringFixed(2), stored.PartnerID))
	if err != nil {
		fmt.Fprintf(out, "Balance: %s\n", balanceUnavailable)
		return err
	}

	balance, err := a.svc.Balance(ctx, stored.PartnerID)
	if err != nil {
		fmt.Fprintf(out, "Balance: %s\n", balanceUnavailable)
		return err
	}
	fmt.Fprintf(out, "Balance: %s\n", balance.StringFixed(2))
	return nil
}

func parseTimestamp(v string) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, v, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC 3339", v)
	}
	return t, nil
}
