package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/finance"
)

func newStatementCommand(opts *options) *cobra.Command {
	var dates dateRange

	cmd := &cobra.Command{
		Use:   "statement [partner-id]",
		Short: "Print a partner ledger, newest first",
		Long: `Print a partner's ledger with a running balance, newest transaction first.
Without a partner id every partner's transactions are folded into one ledger.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partnerID := ""
			if len(args) > 0 {
				partnerID = args[0]
			}
			f, err := dates.filter(partnerID)
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				st, err := a.svc.Statement(ctx, f)
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), balanceUnavailable)
					return err
				}
				return printStatement(cmd.OutOrStdout(), st)
			})
		},
	}
	dates.register(cmd)

	return cmd
}

func newReportCommand(opts *options) *cobra.Command {
	var dates dateRange

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print every partner's balance",
		Long: `Print the balance of every partner over the date range. A partner whose
ledger cannot be computed is shown as unavailable without affecting the rest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := dates.filter("")
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				report, err := a.svc.Report(ctx, f)
				if err != nil {
					return err
				}
				if err := printReport(cmd, report); err != nil {
					return err
				}
				return report.Err()
			})
		},
	}
	dates.register(cmd)

	return cmd
}

func printReport(cmd *cobra.Command, report finance.Report) error {
	type row struct {
		id, name, txs, debt, credit, balance string
	}
	var rows []row
	for _, ps := range report.Partners {
		sum := ps.Statement.Summary
		rows = append(rows, row{
			id:      ps.Partner.ID,
			name:    ps.Partner.Name,
			txs:     fmt.Sprint(sum.TransactionCount),
			debt:    sum.TotalDebt.StringFixed(2),
			credit:  sum.TotalCredit.StringFixed(2),
			balance: sum.CurrentBalance.StringFixed(2),
		})
	}
	for _, pe := range report.Errors {
		rows = append(rows, row{id: pe.PartnerID, txs: "-", debt: "-", credit: "-", balance: balanceUnavailable})
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tNAME\tTXS\tDEBT\tCREDIT\tBALANCE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.id, r.name, r.txs, r.debt, r.credit, r.balance)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, pe := range report.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", pe.PartnerID, pe.Err)
	}
	return nil
}
