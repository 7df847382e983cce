package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:     "curaledger",
		Short:   "Partner ledger and balance engine for the medical supplies back office",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "project directory holding curaledger.yaml")
	rootCmd.PersistentFlags().StringVar(&opts.actor, "actor", defaultActor(), "name recorded in the audit log")

	rootCmd.AddCommand(
		newInitCommand(),
		newServeCommand(opts),
		newPartnerCommand(opts),
		newRecordCommand(opts),
		newStatementCommand(opts),
		newReportCommand(opts),
		newRecomputeCommand(opts),
		newReconcileCommand(opts),
		newInvoiceCommand(opts),
		newImportCommand(opts),
		newCartCommand(opts),
	)

	return rootCmd
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}
