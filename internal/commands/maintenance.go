package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRecomputeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <partner-id>",
		Short: "Recompute and store a partner's cached balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				balance, err := a.svc.Recompute(ctx, opts.actor, args[0])
				if err != nil {
					fmt.Fprintln(cmd.OutOrStdout(), balanceUnavailable)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Balance of %s: %s\n", args[0], balance.StringFixed(2))
				a.commit(fmt.Sprintf("recompute: %s = %s", args[0], balance.StringFixed(2)))
				return nil
			})
		},
	}
}

func newReconcileCommand(opts *options) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare cached balances with the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				result, err := a.svc.Reconcile(ctx, opts.actor, repair)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				tw := newTable(out)
				if len(result.Drift) > 0 {
					fmt.Fprintln(tw, "PARTNER\tCACHED\tCOMPUTED\tREPAIRED")
					for _, d := range result.Drift {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", d.PartnerID, d.Cached.StringFixed(2), d.Computed.StringFixed(2), d.Repaired)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}
				for _, pe := range result.Errors {
					fmt.Fprintf(out, "%s: %s (%v)\n", pe.PartnerID, balanceUnavailable, pe.Err)
				}
				fmt.Fprintf(out, "Checked %d partners, %d drifted, %d unavailable\n",
					result.Checked, len(result.Drift), len(result.Errors))
				if repair && len(result.Drift) > 0 {
					a.commit(fmt.Sprintf("reconcile: repaired %d cached balances", len(result.Drift)))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "rewrite drifted cached balances")

	return cmd
}
