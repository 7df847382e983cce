package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/curasupply/curaledger/internal/importer"
	"github.com/curasupply/curaledger/internal/model"
)

func newImportCommand(opts *options) *cobra.Command {
	var format string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Record transactions from CSV files in import/",
		Long: `Record every transaction found in the CSV files of the project's import/
directory. Bank statements are matched to partners by tax number or name.
A file is moved to import/processed/ once all of its rows are in the ledger;
importing a file twice records nothing new.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := importer.DefaultRegistry().Get(format)
			if parser == nil {
				return fmt.Errorf("unknown import format %q", format)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return runImport(ctx, cmd, opts, a, parser, dryRun)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "ledger", "file format: ledger or chase")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and match without recording")

	return cmd
}

func runImport(ctx context.Context, cmd *cobra.Command, opts *options, a *app, parser importer.Parser, dryRun bool) error {
	out := cmd.OutOrStdout()

	files, err := importer.Scan(opts.dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No files to import.")
		return nil
	}

	partners, err := a.svc.Partners(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, file := range files {
		f, err := os.Open(file.Path)
		if err != nil {
			return fmt.Errorf("opening %s: %w", file.Name, err)
		}
		txs, err := parser.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", file.Name, err)
		}

		if dryRun {
			matched, unmatched := importer.MatchPartners(txs, partners)
			fmt.Fprintf(out, "%s: %d rows, %d matched, %d unmatched\n", file.Name, len(txs), len(matched), len(unmatched))
			printUnmatched(cmd, unmatched)
			continue
		}

		res, err := importer.Import(ctx, a.svc, opts.actor, txs, partners)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d recorded, %d already imported, %d unmatched, %d failed\n",
			file.Name, res.Recorded, res.Duplicates, len(res.Unmatched), len(res.Errors))
		printUnmatched(cmd, res.Unmatched)
		for _, re := range res.Errors {
			fmt.Fprintf(out, "  failed %s %s %s: %v\n",
				re.Transaction.Timestamp.UTC().Format(dateLayout), re.Transaction.Kind, re.Transaction.Amount.StringFixed(2), re.Err)
		}

		if res.Recorded > 0 {
			a.commit(fmt.Sprintf("import: %d transactions from %s", res.Recorded, file.Name))
		}
		if !res.Clean() {
			pending++
			continue
		}
		if err := importer.MarkProcessed(opts.dir, file.Name); err != nil {
			return err
		}
	}

	if pending > 0 {
		return fmt.Errorf("%d file(s) left in import/ need attention", pending)
	}
	return nil
}

func printUnmatched(cmd *cobra.Command, unmatched []model.Transaction) {
	for _, tx := range unmatched {
		fmt.Fprintf(cmd.OutOrStdout(), "  unmatched %s %s %s %q\n",
			tx.Timestamp.UTC().Format(dateLayout), tx.Kind, tx.Amount.StringFixed(2), tx.Description)
	}
}
