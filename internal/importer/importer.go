// Package importer loads ledger transactions from CSV files dropped into a
// project's import/ directory: native ledger exports and bank statements.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/curasupply/curaledger/internal/model"
	"github.com/curasupply/curaledger/internal/store"
)

// Parser converts a CSV file into transactions. Transaction IDs are derived
// from row content, so parsing the same file twice yields the same IDs.
// PartnerID is empty when the source names the counterparty only in free text.
type Parser interface {
	Parse(r io.Reader) ([]model.Transaction, error)
	Format() string
}

// Registry holds named parsers.
type Registry struct {
	parsers map[string]Parser
}

// FileInfo describes a CSV file in the import directory.
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser. Panics on duplicate format.
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Format())
	if _, ok := r.parsers[key]; ok {
		panic("duplicate parser format: " + key)
	}
	r.parsers[key] = p
}

// Get returns the parser for format, or nil.
func (r *Registry) Get(format string) Parser {
	return r.parsers[strings.ToLower(format)]
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&LedgerParser{})
	r.Register(&ChaseParser{})
	return r
}

// importDir is the subdirectory for import CSVs.
const importDir = "import"

// processedDir is the subdirectory for processed CSVs.
const processedDir = "import/processed"

// Dirs are the directories a project needs for importing, relative to its root.
var Dirs = []string{importDir, processedDir}

// Scan returns CSV files in <root>/import/.
func Scan(root string) ([]FileInfo, error) {
	dir := filepath.Join(root, importDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading import dir: %w", err)
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, FileInfo{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Size: info.Size(),
		})
	}
	return files, nil
}

// MarkProcessed moves a file from import/ to import/processed/.
func MarkProcessed(root, fileName string) error {
	src := filepath.Join(root, importDir, fileName)
	dstDir := filepath.Join(root, processedDir)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("creating processed dir: %w", err)
	}

	dst := filepath.Join(dstDir, fileName)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s to processed: %w", fileName, err)
	}
	return nil
}

// MatchPartners assigns a partner to every transaction that lacks one. A
// partner's tax number found in the description wins; otherwise exactly one
// partner name must appear in it. Transactions that match nothing, or more
// than one name, are returned as unmatched.
func MatchPartners(txs []model.Transaction, partners []model.Partner) (matched, unmatched []model.Transaction) {
	for _, tx := range txs {
		if tx.PartnerID == "" {
			pid, ok := matchPartner(tx.Description, partners)
			if !ok {
				unmatched = append(unmatched, tx)
				continue
			}
			tx.PartnerID = pid
		}
		matched = append(matched, tx)
	}
	return matched, unmatched
}

func matchPartner(desc string, partners []model.Partner) (string, bool) {
	text := strings.ToUpper(desc)
	var byName []string
	for _, p := range partners {
		if p.TaxNumber != "" && strings.Contains(text, strings.ToUpper(p.TaxNumber)) {
			return p.ID, true
		}
		if p.Name != "" && strings.Contains(text, strings.ToUpper(p.Name)) {
			byName = append(byName, p.ID)
		}
	}
	if len(byName) == 1 {
		return byName[0], true
	}
	return "", false
}

// Recorder records one ledger transaction.
type Recorder interface {
	Record(ctx context.Context, actor string, tx model.Transaction) (model.Transaction, error)
}

// RowError is a transaction that could not be recorded.
type RowError struct {
	Transaction model.Transaction
	Err         error
}

func (e RowError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Transaction.ID, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Result summarizes one import.
type Result struct {
	Recorded   int
	Duplicates int // already in the ledger from an earlier import
	Unmatched  []model.Transaction
	Errors     []RowError
}

// Clean reports whether every row is now in the ledger.
func (r Result) Clean() bool {
	return len(r.Unmatched) == 0 && len(r.Errors) == 0
}

// Import matches txs to partners and records them one by one. Rows already
// recorded are counted as duplicates. A row whose balance recompute failed is
// both recorded and listed in Errors.
func Import(ctx context.Context, rec Recorder, actor string, txs []model.Transaction, partners []model.Partner) (Result, error) {
	matched, unmatched := MatchPartners(txs, partners)
	result := Result{Unmatched: unmatched}

	for _, tx := range matched {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		stored, err := rec.Record(ctx, actor, tx)
		switch {
		case err == nil:
			result.Recorded++
		case errors.Is(err, store.ErrDuplicate):
			result.Duplicates++
		default:
			if stored.ID != "" {
				result.Recorded++
			}
			result.Errors = append(result.Errors, RowError{Transaction: tx, Err: err})
		}
	}
	return result, nil
}
