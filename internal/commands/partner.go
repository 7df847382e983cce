package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/model"
)

func newPartnerCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partner",
		Short: "Manage customers and suppliers",
	}
	cmd.AddCommand(newPartnerAddCommand(opts), newPartnerListCommand(opts), newPartnerShowCommand(opts))
	return cmd
}

func newPartnerAddCommand(opts *options) *cobra.Command {
	var p model.Partner
	var partnerType string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or update a partner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Type = model.PartnerType(strings.ToUpper(partnerType))
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				saved, err := a.svc.SavePartner(ctx, opts.actor, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved partner %s (%s)\n", saved.ID, saved.Name)
				a.commit(fmt.Sprintf("partner: save %s (%s)", saved.ID, saved.Name))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&p.ID, "id", "", "partner id (generated when empty)")
	cmd.Flags().StringVar(&p.Name, "name", "", "partner name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&partnerType, "type", string(model.PartnerTypeCustomer), "CUSTOMER, SUPPLIER or BOTH")
	cmd.Flags().StringVar(&p.TaxNumber, "tax-number", "", "tax number")
	cmd.Flags().StringVar(&p.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&p.Phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&p.Address, "address", "", "postal address")

	return cmd
}

func newPartnerListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List partners with their cached balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				partners, err := a.svc.Partners(ctx)
				if err != nil {
					return err
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCACHED BALANCE\tUPDATED")
				for _, p := range partners {
					updated := "-"
					if !p.BalanceUpdatedAt.IsZero() {
						updated = p.BalanceUpdatedAt.UTC().Format(dateLayout)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Type, p.CachedBalance.StringFixed(2), updated)
				}
				return tw.Flush()
			})
		},
	}
}

func newPartnerShowCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <partner-id>",
		Short: "Show a partner with its computed and cached balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				p, err := a.svc.Partner(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:       %s\n", p.ID)
				fmt.Fprintf(out, "Name:     %s\n", p.Name)
				fmt.Fprintf(out, "Type:     %s\n", p.Type)
				if p.TaxNumber != "" {
					fmt.Fprintf(out, "Tax no.:  %s\n", p.TaxNumber)
				}
				if p.Email != "" {
					fmt.Fprintf(out, "Email:    %s\n", p.Email)
				}
				if p.Phone != "" {
					fmt.Fprintf(out, "Phone:    %s\n", p.Phone)
				}
				if p.Address != "" {
					fmt.Fprintf(out, "Address:  %s\n", p.Address)
				}

				balance, err := a.svc.Balance(ctx, p.ID)
				if err != nil {
					fmt.Fprintf(out, "Balance:  %s\n", balanceUnavailable)
					return err
				}
				fmt.Fprintf(out, "Balance:  %s\n", balance.StringFixed(2))
				fmt.Fprintf(out, "Cached:   %s\n", p.CachedBalance.StringFixed(2))
				if !balance.Equal(p.CachedBalance) {
					fmt.Fprintln(out, "Cached balance is out of date; run `curaledger recompute`.")
				}
				return nil
			})
		},
	}
}
