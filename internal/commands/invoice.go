package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newInvoiceCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Issue and list invoices",
	}
	cmd.AddCommand(newInvoiceCreateCommand(opts), newInvoiceListCommand(opts))
	return cmd
}

func newInvoiceCreateCommand(opts *options) *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "create <partner-id>",
		Short: "Issue the next invoice number for a partner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				inv, err := a.svc.CreateInvoice(ctx, opts.actor, args[0], order)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created invoice %s (%s) for %s\n", inv.Number, inv.ID, inv.PartnerID)
				a.commit(fmt.Sprintf("invoice: %s for %s", inv.Number, inv.PartnerID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&order, "order", "", "order number the invoice bills")

	return cmd
}

func newInvoiceListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				invoices, err := a.svc.Invoices(ctx)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "NUMBER\tID\tPARTNER\tORDER")
				for _, inv := range invoices {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inv.Number, inv.ID, inv.PartnerID, inv.OrderNumber)
				}
				return tw.Flush()
			})
		},
	}
}
